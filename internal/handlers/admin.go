package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"

	"backend/internal/auth"
	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/security"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// AdminPortalAPI serves the internal back-office: operator login, the
// installed-store roster, and per-store product listings. These routes sit
// behind a standalone JWT rather than the embedded-app session.
type AdminPortalAPI struct {
	cfg  *config.Config
	ddb  *dynamodb.Client
	http *http.Client
}

func NewAdminPortalAPI(cfg *config.Config, ddb *dynamodb.Client) *AdminPortalAPI {
	return &AdminPortalAPI{cfg: cfg, ddb: ddb, http: http.DefaultClient}
}

func (a *AdminPortalAPI) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := req.RequestContext.HTTP.Method

	switch {
	case req.RawPath == "/api/admin/login":
		if method != http.MethodPost {
			return errResp(405, "method not allowed")
		}
		return a.login(ctx, req)
	case req.RawPath == "/api/admin/stores":
		if method != http.MethodGet {
			return errResp(405, "method not allowed")
		}
		return a.withOperator(req, func() (events.APIGatewayV2HTTPResponse, error) {
			return a.listStores(ctx)
		})
	case strings.HasPrefix(req.RawPath, "/api/admin/productslist/"):
		if method != http.MethodGet {
			return errResp(405, "method not allowed")
		}
		return a.withOperator(req, func() (events.APIGatewayV2HTTPResponse, error) {
			return a.storeProducts(ctx, strings.TrimPrefix(req.RawPath, "/api/admin/productslist/"))
		})
	default:
		return errResp(404, "not found")
	}
}

// withOperator gates a route on a valid operator token.
func (a *AdminPortalAPI) withOperator(req events.APIGatewayV2HTTPRequest, next func() (events.APIGatewayV2HTTPResponse, error)) (events.APIGatewayV2HTTPResponse, error) {
	token, err := auth.BearerToken(headerValue(req, "Authorization"))
	if err != nil {
		return errResp(401, "missing bearer token")
	}
	if _, err := auth.VerifyAdminToken(a.cfg.AdminJWTSecret, token); err != nil {
		return errResp(401, "invalid token")
	}
	return next()
}

func (a *AdminPortalAPI) login(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	body, err := requestBody(req)
	if err != nil {
		return errResp(400, "malformed request body")
	}

	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(body, &in); err != nil || in.Username == "" || in.Password == "" {
		return errResp(400, "username and password are required")
	}

	user, err := db.GetAdminUser(ctx, a.ddb, a.cfg.AdminUsersTable, in.Username)
	if err != nil {
		log.Printf("admin: load user %s: %v", in.Username, err)
		return errResp(500, "failed to load user")
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, in.Password) {
		return errResp(401, "invalid credentials")
	}

	token, err := auth.IssueAdminToken(a.cfg.AdminJWTSecret, user.Username, user.Role)
	if err != nil {
		log.Printf("admin: issue token for %s: %v", in.Username, err)
		return errResp(500, "failed to issue token")
	}

	return jsonResp(200, map[string]any{"token": token})
}

func (a *AdminPortalAPI) listStores(ctx context.Context) (events.APIGatewayV2HTTPResponse, error) {
	items, err := db.ListStores(ctx, a.ddb, a.cfg.StoresTable)
	if err != nil {
		log.Printf("admin: list stores: %v", err)
		return errResp(500, "failed to list stores")
	}

	stores := make([]map[string]any, 0, len(items))
	for _, s := range items {
		stores = append(stores, map[string]any{
			"shopId":      s.ShopID,
			"shop":        s.MyshopifyDomain,
			"name":        s.Name,
			"email":       s.Email,
			"domain":      s.Domain,
			"status":      s.Status,
			"installedAt": s.InstalledAt,
		})
	}
	return jsonResp(200, map[string]any{"stores": stores})
}

func (a *AdminPortalAPI) storeProducts(ctx context.Context, rawID string) (events.APIGatewayV2HTTPResponse, error) {
	shopID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return errResp(400, "shop id must be numeric")
	}

	store, err := db.GetStoreByShopID(ctx, a.ddb, a.cfg.StoresTable, shopID)
	if err != nil {
		log.Printf("admin: lookup shop %d: %v", shopID, err)
		return errResp(500, "failed to look up store")
	}
	if store == nil {
		return errResp(404, "store not found")
	}
	if store.AccessTokenEnc == "" {
		return errResp(409, "store has no active session")
	}

	key, err := security.LoadKeyFromBase64(a.cfg.TokenEncKeyB64)
	if err != nil {
		log.Printf("admin: token key: %v", err)
		return errResp(500, "failed to decrypt store token")
	}
	token, err := security.DecryptAESGCM(key, store.AccessTokenEnc)
	if err != nil {
		log.Printf("admin: open token for %s: %v", store.MyshopifyDomain, err)
		return errResp(500, "failed to decrypt store token")
	}

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
	if err := postAndDecode(ctx, a.http, store.MyshopifyDomain, a.cfg.ShopifyAPIVersion, token, query, nil, &page); err != nil {
		log.Printf("admin: products for %s: %v", store.MyshopifyDomain, err)
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
	return jsonResp(200, map[string]any{
		"shop":     store.MyshopifyDomain,
		"products": products,
	})
}
