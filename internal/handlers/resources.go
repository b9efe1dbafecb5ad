package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/shopify"
	"backend/internal/suggest"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// ResourcesAPI serves the merchant-session content endpoints: product,
// page and blog listings/updates, AI content suggestions, and product
// comments.
type ResourcesAPI struct {
	cfg     *config.Config
	ddb     *dynamodb.Client
	bedrock suggest.BedrockClient
	http    *http.Client
}

func NewResourcesAPI(cfg *config.Config, ddb *dynamodb.Client, bedrock suggest.BedrockClient) *ResourcesAPI {
	return &ResourcesAPI{cfg: cfg, ddb: ddb, bedrock: bedrock, http: http.DefaultClient}
}

func (a *ResourcesAPI) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := req.RequestContext.HTTP.Method

	shop, err := sessionShop(req)
	if err != nil {
		return errResp(401, "unauthorized")
	}

	body, err := requestBody(req)
	if err != nil {
		return errResp(400, "malformed request body")
	}

	switch req.RawPath {
	case "/api/admin/resources/products":
		if method == http.MethodGet {
			return a.listProducts(ctx, shop)
		}
		if method == http.MethodPost {
			return a.updateProduct(ctx, shop, body)
		}
		return errResp(405, "method not allowed")
	case "/api/admin/resources/pages":
		if method == http.MethodGet {
			return a.listPages(ctx, shop)
		}
		if method == http.MethodPost {
			return a.updatePage(ctx, shop, body)
		}
		return errResp(405, "method not allowed")
	case "/api/admin/resources/blogs":
		if method == http.MethodGet {
			return a.listBlogs(ctx, shop)
		}
		if method == http.MethodPost {
			return a.updateArticle(ctx, shop, body)
		}
		return errResp(405, "method not allowed")
	case "/api/admin/resources/suggest":
		if method != http.MethodPost {
			return errResp(405, "method not allowed")
		}
		return a.suggestContent(ctx, body)
	case "/api/save-comment-product":
		if method != http.MethodPost {
			return errResp(405, "method not allowed")
		}
		return a.saveComment(ctx, shop, body)
	default:
		return errResp(404, "not found")
	}
}

func (a *ResourcesAPI) session(ctx context.Context, shop string) (*shopify.AdminClient, error) {
	token, _, err := shopify.LoadStoreToken(ctx, a.ddb, a.cfg, shop)
	if err != nil {
		return nil, err
	}
	c := shopify.AdminClientFor(a.cfg, shop, token)
	c.HTTP = a.http
	return c, nil
}

func (a *ResourcesAPI) gql(ctx context.Context, shop, query string, vars any, out any) error {
	token, _, err := shopify.LoadStoreToken(ctx, a.ddb, a.cfg, shop)
	if err != nil {
		return err
	}
	return postAndDecode(ctx, a.http, shop, a.cfg.ShopifyAPIVersion, token, query, vars, out)
}

func (a *ResourcesAPI) listProducts(ctx context.Context, shop string) (events.APIGatewayV2HTTPResponse, error) {
	const query = `
query products {
  products(first: 20) {
    edges {
      node {
        id
        title
        descriptionHtml
      }
    }
  }
}`

	var page struct {
		Products struct {
			Edges []struct {
				Node struct {
					ID              string `json:"id"`
					Title           string `json:"title"`
					DescriptionHTML string `json:"descriptionHtml"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"products"`
	}
	if err := a.gql(ctx, shop, query, nil, &page); err != nil {
		log.Printf("resources: list products for %s: %v", shop, err)
		return errResp(502, "failed to fetch products")
	}

	products := make([]map[string]any, 0, len(page.Products.Edges))
	for _, e := range page.Products.Edges {
		products = append(products, map[string]any{
			"id":              e.Node.ID,
			"title":           e.Node.Title,
			"descriptionHtml": e.Node.DescriptionHTML,
		})
	}
	return jsonResp(200, map[string]any{"products": products})
}

func (a *ResourcesAPI) updateProduct(ctx context.Context, shop string, body []byte) (events.APIGatewayV2HTTPResponse, error) {
	var in struct {
		ID              string `json:"id"`
		Title           string `json:"title"`
		DescriptionHTML string `json:"descriptionHtml"`
	}
	if err := json.Unmarshal(body, &in); err != nil || in.ID == "" {
		return errResp(400, "missing product fields")
	}

	const mutation = `
mutation productUpdate($input: ProductInput!) {
  productUpdate(input: $input) {
    product {
      id
      title
      descriptionHtml
    }
    userErrors { field message }
  }
}`

	var page struct {
		ProductUpdate struct {
			Product struct {
				ID              string `json:"id"`
				Title           string `json:"title"`
				DescriptionHTML string `json:"descriptionHtml"`
			} `json:"product"`
			UserErrors []shopify.UserError `json:"userErrors"`
		} `json:"productUpdate"`
	}
	vars := map[string]any{
		"input": map[string]any{
			"id":              in.ID,
			"title":           in.Title,
			"descriptionHtml": in.DescriptionHTML,
		},
	}
	if err := a.gql(ctx, shop, mutation, vars, &page); err != nil {
		log.Printf("resources: update product for %s: %v", shop, err)
		return errResp(502, "failed to update product")
	}
	if len(page.ProductUpdate.UserErrors) > 0 {
		return jsonResp(400, map[string]any{
			"success": false,
			"message": shopify.JoinUserErrors(page.ProductUpdate.UserErrors),
		})
	}
	return jsonResp(200, map[string]any{
		"success": true,
		"product": page.ProductUpdate.Product,
	})
}

func (a *ResourcesAPI) listPages(ctx context.Context, shop string) (events.APIGatewayV2HTTPResponse, error) {
	const query = `
query pages {
  pages(first: 20) {
    edges {
      node {
        id
        title
        bodySummary
      }
    }
  }
}`

	var page struct {
		Pages struct {
			Edges []struct {
				Node struct {
					ID          string `json:"id"`
					Title       string `json:"title"`
					BodySummary string `json:"bodySummary"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"pages"`
	}
	if err := a.gql(ctx, shop, query, nil, &page); err != nil {
		log.Printf("resources: list pages for %s: %v", shop, err)
		return errResp(502, "failed to fetch pages")
	}

	pages := make([]map[string]any, 0, len(page.Pages.Edges))
	for _, e := range page.Pages.Edges {
		pages = append(pages, map[string]any{
			"id":          e.Node.ID,
			"title":       e.Node.Title,
			"bodySummary": e.Node.BodySummary,
		})
	}
	return jsonResp(200, map[string]any{"pages": pages})
}

func (a *ResourcesAPI) updatePage(ctx context.Context, shop string, body []byte) (events.APIGatewayV2HTTPResponse, error) {
	var in struct {
		ID    string  `json:"id"`
		Title string  `json:"title"`
		Body  *string `json:"body"`
	}
	if err := json.Unmarshal(body, &in); err != nil || in.ID == "" || in.Title == "" || in.Body == nil {
		return errResp(400, "missing fields")
	}

	const mutation = `
mutation pageUpdate($id: ID!, $page: PageUpdateInput!) {
  pageUpdate(id: $id, page: $page) {
    page {
      id
      title
      body
      handle
    }
    userErrors { field message }
  }
}`

	var page struct {
		PageUpdate struct {
			Page struct {
				ID     string `json:"id"`
				Title  string `json:"title"`
				Body   string `json:"body"`
				Handle string `json:"handle"`
			} `json:"page"`
			UserErrors []shopify.UserError `json:"userErrors"`
		} `json:"pageUpdate"`
	}
	vars := map[string]any{
		"id": in.ID,
		"page": map[string]any{
			"title": in.Title,
			"body":  *in.Body,
		},
	}
	if err := a.gql(ctx, shop, mutation, vars, &page); err != nil {
		log.Printf("resources: update page for %s: %v", shop, err)
		return errResp(502, "failed to update page")
	}
	if len(page.PageUpdate.UserErrors) > 0 {
		return jsonResp(400, map[string]any{
			"success": false,
			"message": shopify.JoinUserErrors(page.PageUpdate.UserErrors),
		})
	}
	return jsonResp(200, map[string]any{
		"success": true,
		"page":    page.PageUpdate.Page,
	})
}

func (a *ResourcesAPI) listBlogs(ctx context.Context, shop string) (events.APIGatewayV2HTTPResponse, error) {
	const query = `
query blogsWithArticles($first: Int!, $articlesFirst: Int!) {
  blogs(first: $first) {
    edges {
      node {
        id
        title
        handle
        articles(first: $articlesFirst) {
          edges {
            node {
              id
              title
              handle
              body
            }
          }
        }
      }
    }
  }
}`

	type articleNode struct {
		ID     string `json:"id"`
		Title  string `json:"title"`
		Handle string `json:"handle"`
		Body   string `json:"body"`
	}
	var page struct {
		Blogs struct {
			Edges []struct {
				Node struct {
					ID       string `json:"id"`
					Title    string `json:"title"`
					Handle   string `json:"handle"`
					Articles struct {
						Edges []struct {
							Node articleNode `json:"node"`
						} `json:"edges"`
					} `json:"articles"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"blogs"`
	}
	vars := map[string]any{"first": 5, "articlesFirst": 10}
	if err := a.gql(ctx, shop, query, vars, &page); err != nil {
		log.Printf("resources: list blogs for %s: %v", shop, err)
		return errResp(502, "failed to fetch blogs")
	}

	blogs := make([]map[string]any, 0, len(page.Blogs.Edges))
	for _, e := range page.Blogs.Edges {
		articles := make([]articleNode, 0, len(e.Node.Articles.Edges))
		for _, ae := range e.Node.Articles.Edges {
			articles = append(articles, ae.Node)
		}
		blogs = append(blogs, map[string]any{
			"id":       e.Node.ID,
			"title":    e.Node.Title,
			"handle":   e.Node.Handle,
			"articles": articles,
		})
	}
	return jsonResp(200, map[string]any{"blogs": blogs})
}

func (a *ResourcesAPI) updateArticle(ctx context.Context, shop string, body []byte) (events.APIGatewayV2HTTPResponse, error) {
	var in struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		BodyHTML string `json:"bodyHtml"`
	}
	if err := json.Unmarshal(body, &in); err != nil || in.ID == "" {
		return errResp(400, "missing article fields")
	}

	const mutation = `
mutation articleUpdate($id: ID!, $article: ArticleUpdateInput!) {
  articleUpdate(id: $id, article: $article) {
    article {
      id
      title
      handle
      body
    }
    userErrors { field message }
  }
}`

	var page struct {
		ArticleUpdate struct {
			Article struct {
				ID     string `json:"id"`
				Title  string `json:"title"`
				Handle string `json:"handle"`
				Body   string `json:"body"`
			} `json:"article"`
			UserErrors []shopify.UserError `json:"userErrors"`
		} `json:"articleUpdate"`
	}
	vars := map[string]any{
		"id": in.ID,
		"article": map[string]any{
			"title": in.Title,
			"body":  in.BodyHTML,
		},
	}
	if err := a.gql(ctx, shop, mutation, vars, &page); err != nil {
		log.Printf("resources: update article for %s: %v", shop, err)
		return errResp(502, "failed to update article")
	}
	if len(page.ArticleUpdate.UserErrors) > 0 {
		return jsonResp(400, map[string]any{
			"success": false,
			"message": shopify.JoinUserErrors(page.ArticleUpdate.UserErrors),
		})
	}
	return jsonResp(200, map[string]any{
		"success": true,
		"article": page.ArticleUpdate.Article,
	})
}

func (a *ResourcesAPI) suggestContent(ctx context.Context, body []byte) (events.APIGatewayV2HTTPResponse, error) {
	var in struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	_ = json.Unmarshal(body, &in)

	if strings.TrimSpace(in.Title) == "" && strings.TrimSpace(in.Description) == "" {
		return errResp(400, "missing title and description")
	}

	s, err := suggest.Rewrite(ctx, a.bedrock, a.cfg.BedrockModelID, in.Title, in.Description)
	if err != nil {
		log.Printf("resources: suggest: %v", err)
		return errResp(502, "failed to suggest content")
	}

	return jsonResp(200, map[string]any{
		"title":       s.Title,
		"description": s.Description,
	})
}

func (a *ResourcesAPI) saveComment(ctx context.Context, shop string, body []byte) (events.APIGatewayV2HTTPResponse, error) {
	var in struct {
		ProductID string `json:"productId"` // gid://shopify/Product/...
		Comment   string `json:"comment"`
	}
	if err := json.Unmarshal(body, &in); err != nil || in.ProductID == "" || in.Comment == "" {
		return errResp(400, "productId and comment are required")
	}

	if !strings.HasPrefix(in.ProductID, "gid://shopify/Product/") {
		return errResp(400, "invalid product id")
	}
	numericID := gidSuffix(in.ProductID)
	if numericID == "" {
		return errResp(400, "invalid product id")
	}

	if err := db.PutComment(ctx, a.ddb, a.cfg.CommentsTable, db.CommentItem{
		ProductGID: in.ProductID,
		ProductID:  numericID,
		Shop:       shop,
		Comment:    in.Comment,
	}); err != nil {
		log.Printf("resources: save comment for %s: %v", shop, err)
		return errResp(500, "failed to save comment")
	}

	// Mirror the comment into a product metafield for the storefront.
	client, err := a.session(ctx, shop)
	if err != nil {
		log.Printf("resources: comment session for %s: %v", shop, err)
		return errResp(500, "failed to load shop session")
	}
	if err := client.MetafieldSet(ctx, in.ProductID, "custom", "comment", "multi_line_text_field", in.Comment); err != nil {
		log.Printf("resources: comment metafield for %s: %v", shop, err)
		return errResp(502, "failed to mirror comment to metafield")
	}

	return jsonResp(200, map[string]any{
		"success": true,
		"message": "Comment saved",
	})
}

// postAndDecode posts one query and unwraps the envelope into out,
// flattening transport, HTTP and GraphQL errors.
func postAndDecode(ctx context.Context, httpc *http.Client, shop, apiVersion, token, query string, vars any, out any) error {
	resp, status, err := shopify.PostGraphQL[json.RawMessage](ctx, httpc, shop, apiVersion, token, query, vars)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("shopify graphql: http %d", status)
	}
	if len(resp.Errors) > 0 {
		return fmt.Errorf("shopify graphql: %s", shopify.JoinGraphQLErrors(resp.Errors))
	}
	return json.Unmarshal(resp.Data, out)
}
