package handlers

import (
	"context"
	"log"
	"net/http"

	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/shopify"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// ShopAPI serves GET /api/shop: refresh the local shop mirror from the
// Admin API and return the stored record.
type ShopAPI struct {
	cfg  *config.Config
	ddb  *dynamodb.Client
	http *http.Client
}

func NewShopAPI(cfg *config.Config, ddb *dynamodb.Client) *ShopAPI {
	return &ShopAPI{cfg: cfg, ddb: ddb, http: http.DefaultClient}
}

func (a *ShopAPI) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	if req.RawPath != "/api/shop" || req.RequestContext.HTTP.Method != http.MethodGet {
		return errResp(404, "not found")
	}

	shop, err := sessionShop(req)
	if err != nil {
		return errResp(401, "unauthorized")
	}

	token, existing, err := shopify.LoadStoreToken(ctx, a.ddb, a.cfg, shop)
	if err != nil {
		log.Printf("shop: load token for %s: %v", shop, err)
		return errResp(500, "failed to load shop session")
	}

	info, err := fetchShopInfo(ctx, a.http, a.cfg, shop, token)
	if err != nil {
		log.Printf("shop: fetch info for %s: %v", shop, err)
		return errResp(502, "failed to fetch shop info")
	}

	item := storeItemFromShopInfo(info)
	// Carry install bookkeeping forward; the sync only refreshes mirror
	// fields.
	item.AccessTokenEnc = existing.AccessTokenEnc
	item.Scope = existing.Scope
	item.InstalledAt = existing.InstalledAt
	item.AlertsTopicArn = existing.AlertsTopicArn
	item.Status = existing.Status

	if err := db.UpsertStore(ctx, a.ddb, a.cfg.StoresTable, item); err != nil {
		log.Printf("shop: upsert %s: %v", shop, err)
		return errResp(500, "failed to store shop info")
	}

	return jsonResp(200, map[string]any{
		"id":                item.ShopID,
		"name":              item.Name,
		"email":             item.Email,
		"shop":              item.Shop,
		"domain":            item.Domain,
		"myshopify_domain":  item.MyshopifyDomain,
		"plan_display_name": item.PlanDisplayName,
		"country":           item.Country,
		"currency":          item.Currency,
		"iana_timezone":     item.IanaTimezone,
		"address1":          item.Address1,
		"address2":          item.Address2,
		"phone":             item.Phone,
		"shop_created_at":   item.ShopCreatedAt,
		"installedAt":       item.InstalledAt,
	})
}
