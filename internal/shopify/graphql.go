package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

type GraphQLError struct {
	Message    string `json:"message"`
	Path       []any  `json:"path,omitempty"`
	Extensions struct {
		Code string `json:"code,omitempty"`
	} `json:"extensions,omitempty"`
}

type GraphQLResponse[T any] struct {
	Data   T              `json:"data"`
	Errors []GraphQLError `json:"errors"`
}

// UserError is the field-level error shape Shopify mutations return.
type UserError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

// Doer lets callers swap the HTTP client in tests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// PostGraphQL posts one Admin API query/mutation and decodes the response
// envelope. The second return is the HTTP status; GraphQL-level errors come
// back in the envelope, not as a Go error.
func PostGraphQL[T any](ctx context.Context, client Doer, shopDomain, apiVersion, accessToken string, query string, variables any) (*GraphQLResponse[T], int, error) {
	endpoint := fmt.Sprintf("https://%s/admin/api/%s/graphql.json", shopDomain, apiVersion)

	body := map[string]any{
		"query":     query,
		"variables": variables,
	}
	b, _ := json.Marshal(body)

	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	req.Header.Set("content-type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", accessToken)

	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()

	raw, _ := io.ReadAll(res.Body)

	var out GraphQLResponse[T]
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, res.StatusCode, fmt.Errorf("decode graphql response (http %d): %w", res.StatusCode, err)
	}

	return &out, res.StatusCode, nil
}

// JoinGraphQLErrors flattens the envelope error list for logging and
// response messages.
func JoinGraphQLErrors(errs []GraphQLError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if e.Extensions.Code != "" {
			msgs = append(msgs, e.Message+" ("+e.Extensions.Code+")")
		} else {
			msgs = append(msgs, e.Message)
		}
	}
	return strings.Join(msgs, "; ")
}

// JoinUserErrors flattens mutation userErrors, keeping field paths.
func JoinUserErrors(errs []UserError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		if len(e.Field) > 0 {
			msgs = append(msgs, strings.Join(e.Field, ".")+": "+e.Message)
		} else {
			msgs = append(msgs, e.Message)
		}
	}
	return strings.Join(msgs, "; ")
}
