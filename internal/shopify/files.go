package shopify

import (
	"context"
	"fmt"
	"strconv"
)

// MediaImage is the slice of a Shopify file node the app works with.
type MediaImage struct {
	ID         string
	Alt        string
	FileStatus string
	URL        string
	Width      int
	Height     int
}

// StagedTarget is the single-use upload ticket issued by
// stagedUploadsCreate. Parameters must be replayed as form fields on the
// upload POST; ResourceURL is what fileCreate consumes afterwards.
type StagedTarget struct {
	URL         string
	ResourceURL string
	Parameters  []StagedParameter
}

type StagedParameter struct {
	Name  string
	Value string
}

// AdminClient runs the file-related Admin API operations for one shop
// session.
type AdminClient struct {
	Shop       string
	APIVersion string
	Token      string
	HTTP       Doer
}

type mediaImageNode struct {
	ID         string `json:"id"`
	Alt        string `json:"alt"`
	FileStatus string `json:"fileStatus"`
	Image      *struct {
		URL    string `json:"url"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	} `json:"image"`
}

func (n *mediaImageNode) toMediaImage() *MediaImage {
	m := &MediaImage{ID: n.ID, Alt: n.Alt, FileStatus: n.FileStatus}
	if n.Image != nil {
		m.URL = n.Image.URL
		m.Width = n.Image.Width
		m.Height = n.Image.Height
	}
	return m
}

// MediaImageByID resolves a MediaImage by GID. Returns (nil, nil) when the
// origin has no such node.
func (c *AdminClient) MediaImageByID(ctx context.Context, gid string) (*MediaImage, error) {
	const query = `
query mediaImage($id: ID!) {
  node(id: $id) {
    ... on MediaImage {
      id
      alt
      fileStatus
      image { url width height }
    }
  }
}`

	type page struct {
		Node *mediaImageNode `json:"node"`
	}

	resp, status, err := PostGraphQL[page](ctx, c.HTTP, c.Shop, c.APIVersion, c.Token, query, map[string]any{"id": gid})
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("shopify node query: http %d", status)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("shopify node query: %s", JoinGraphQLErrors(resp.Errors))
	}
	// A node of the wrong type comes back as {} with no id.
	if resp.Data.Node == nil || resp.Data.Node.ID == "" {
		return nil, nil
	}
	return resp.Data.Node.toMediaImage(), nil
}

// StagedUploadCreate requests a one-time upload ticket for the given file.
// Both an explicit userErrors list and a well-formed-but-empty target list
// are staging failures; the origin's detail is carried in the error.
func (c *AdminClient) StagedUploadCreate(ctx context.Context, filename, mimeType string, size int) (*StagedTarget, error) {
	const mutation = `
mutation stagedUploadsCreate($input: [StagedUploadInput!]!) {
  stagedUploadsCreate(input: $input) {
    stagedTargets {
      url
      resourceUrl
      parameters { name value }
    }
    userErrors { field message }
  }
}`

	type page struct {
		StagedUploadsCreate struct {
			StagedTargets []struct {
				URL         string `json:"url"`
				ResourceURL string `json:"resourceUrl"`
				Parameters  []struct {
					Name  string `json:"name"`
					Value string `json:"value"`
				} `json:"parameters"`
			} `json:"stagedTargets"`
			UserErrors []UserError `json:"userErrors"`
		} `json:"stagedUploadsCreate"`
	}

	vars := map[string]any{
		"input": []map[string]any{
			{
				"resource":   "FILE",
				"filename":   filename,
				"mimeType":   mimeType,
				"httpMethod": "POST",
				"fileSize":   strconv.Itoa(size),
			},
		},
	}

	resp, status, err := PostGraphQL[page](ctx, c.HTTP, c.Shop, c.APIVersion, c.Token, mutation, vars)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("stagedUploadsCreate: http %d", status)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("stagedUploadsCreate: %s", JoinGraphQLErrors(resp.Errors))
	}
	out := resp.Data.StagedUploadsCreate
	if len(out.UserErrors) > 0 {
		return nil, fmt.Errorf("stagedUploadsCreate: %s", JoinUserErrors(out.UserErrors))
	}
	if len(out.StagedTargets) == 0 || out.StagedTargets[0].URL == "" {
		return nil, fmt.Errorf("stagedUploadsCreate: no usable staged target in response")
	}

	t := out.StagedTargets[0]
	target := &StagedTarget{URL: t.URL, ResourceURL: t.ResourceURL}
	for _, p := range t.Parameters {
		target.Parameters = append(target.Parameters, StagedParameter{Name: p.Name, Value: p.Value})
	}
	return target, nil
}

// FileCreate registers an uploaded blob as a new file. The returned
// MediaImage may lack a URL right after creation; callers poll with
// MediaImageByID until the CDN has indexed it.
func (c *AdminClient) FileCreate(ctx context.Context, resourceURL, alt string) (*MediaImage, error) {
	const mutation = `
mutation fileCreate($files: [FileCreateInput!]!) {
  fileCreate(files: $files) {
    files {
      id
      alt
      fileStatus
      ... on MediaImage {
        image { url width height }
      }
    }
    userErrors { field message }
  }
}`

	type page struct {
		FileCreate struct {
			Files      []mediaImageNode `json:"files"`
			UserErrors []UserError      `json:"userErrors"`
		} `json:"fileCreate"`
	}

	vars := map[string]any{
		"files": []map[string]any{
			{
				"alt":            alt,
				"contentType":    "IMAGE",
				"originalSource": resourceURL,
			},
		},
	}

	resp, status, err := PostGraphQL[page](ctx, c.HTTP, c.Shop, c.APIVersion, c.Token, mutation, vars)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("fileCreate: http %d", status)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("fileCreate: %s", JoinGraphQLErrors(resp.Errors))
	}
	out := resp.Data.FileCreate
	if len(out.UserErrors) > 0 {
		return nil, fmt.Errorf("fileCreate: %s", JoinUserErrors(out.UserErrors))
	}
	if len(out.Files) == 0 || out.Files[0].ID == "" {
		return nil, fmt.Errorf("fileCreate: empty files list in response")
	}
	n := out.Files[0]
	return n.toMediaImage(), nil
}

// ShopMetafield reads one shop-level metafield. Returns the shop GID and
// the metafield value ("" when unset).
func (c *AdminClient) ShopMetafield(ctx context.Context, namespace, key string) (string, string, error) {
	const query = `
query shopMetafield($namespace: String!, $key: String!) {
  shop {
    id
    metafield(namespace: $namespace, key: $key) { value }
  }
}`

	type page struct {
		Shop struct {
			ID        string `json:"id"`
			Metafield *struct {
				Value string `json:"value"`
			} `json:"metafield"`
		} `json:"shop"`
	}

	resp, status, err := PostGraphQL[page](ctx, c.HTTP, c.Shop, c.APIVersion, c.Token, query, map[string]any{
		"namespace": namespace,
		"key":       key,
	})
	if err != nil {
		return "", "", err
	}
	if status < 200 || status >= 300 {
		return "", "", fmt.Errorf("shop metafield query: http %d", status)
	}
	if len(resp.Errors) > 0 {
		return "", "", fmt.Errorf("shop metafield query: %s", JoinGraphQLErrors(resp.Errors))
	}
	value := ""
	if resp.Data.Shop.Metafield != nil {
		value = resp.Data.Shop.Metafield.Value
	}
	return resp.Data.Shop.ID, value, nil
}

// MetafieldSet writes one JSON metafield on any owner (shop or product).
func (c *AdminClient) MetafieldSet(ctx context.Context, ownerID, namespace, key, valueType, value string) error {
	const mutation = `
mutation metafieldsSet($metafields: [MetafieldsSetInput!]!) {
  metafieldsSet(metafields: $metafields) {
    metafields { id }
    userErrors { field message }
  }
}`

	type page struct {
		MetafieldsSet struct {
			UserErrors []UserError `json:"userErrors"`
		} `json:"metafieldsSet"`
	}

	vars := map[string]any{
		"metafields": []map[string]any{
			{
				"ownerId":   ownerID,
				"namespace": namespace,
				"key":       key,
				"type":      valueType,
				"value":     value,
			},
		},
	}

	resp, status, err := PostGraphQL[page](ctx, c.HTTP, c.Shop, c.APIVersion, c.Token, mutation, vars)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("metafieldsSet: http %d", status)
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("metafieldsSet: %s", JoinGraphQLErrors(resp.Errors))
	}
	if ue := resp.Data.MetafieldsSet.UserErrors; len(ue) > 0 {
		return fmt.Errorf("metafieldsSet: %s", JoinUserErrors(ue))
	}
	return nil
}
