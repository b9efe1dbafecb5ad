package handlers

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

func jsonResp(status int, v any) (events.APIGatewayV2HTTPResponse, error) {
	b, _ := json.Marshal(v)
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers: map[string]string{
			"content-type":                "application/json",
			"access-control-allow-origin": "*",
		},
		Body: string(b),
	}, nil
}

func errResp(status int, msg string) (events.APIGatewayV2HTTPResponse, error) {
	return jsonResp(status, map[string]any{
		"success": false,
		"message": msg,
	})
}

// sessionShop extracts the shop domain from the embedded-app session token
// claims the gateway authorizer verified. Shopify session tokens carry the
// shop in `dest` as https://<shop>.myshopify.com.
func sessionShop(req events.APIGatewayV2HTTPRequest) (string, error) {
	if req.RequestContext.Authorizer == nil || req.RequestContext.Authorizer.JWT == nil ||
		req.RequestContext.Authorizer.JWT.Claims == nil {
		return "", errors.New("missing authorizer claims")
	}
	dest := strings.TrimSpace(req.RequestContext.Authorizer.JWT.Claims["dest"])
	dest = strings.TrimPrefix(dest, "https://")
	dest = strings.TrimSuffix(dest, "/")
	dest = strings.ToLower(dest)
	if !isValidShopDomain(dest) {
		return "", fmt.Errorf("claims carry no usable shop domain")
	}
	return dest, nil
}

func isValidShopDomain(shop string) bool {
	if !strings.HasSuffix(shop, ".myshopify.com") {
		return false
	}
	if strings.Contains(shop, "/") || strings.Contains(shop, " ") {
		return false
	}
	return len(shop) >= len("a.myshopify.com")
}

func randomState(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func verifyShopifyHMAC(params map[string]string, secret, providedHex string) bool {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "hmac" || k == "signature" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, params[k]))
	}
	msg := strings.Join(parts, "&")

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(msg))
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(strings.ToLower(providedHex)))
}

// gidSuffix returns the numeric tail of a gid://shopify/... identifier.
func gidSuffix(gid string) string {
	if i := strings.LastIndex(gid, "/"); i >= 0 {
		return gid[i+1:]
	}
	return gid
}

// requestBody returns the raw request body, decoding the gateway's base64
// wrapping when present.
func requestBody(req events.APIGatewayV2HTTPRequest) ([]byte, error) {
	if req.IsBase64Encoded {
		return base64.StdEncoding.DecodeString(req.Body)
	}
	return []byte(req.Body), nil
}

// headerValue does a case-insensitive header lookup (the gateway lowercases
// names, tests often don't).
func headerValue(req events.APIGatewayV2HTTPRequest, name string) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
