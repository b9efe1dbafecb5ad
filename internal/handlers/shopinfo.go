package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/shopify"
)

const shopInfoQuery = `
query shopInfo {
  shop {
    id
    name
    email
    contactEmail
    myshopifyDomain
    shopOwnerName
    ianaTimezone
    currencyCode
    createdAt
    plan { displayName }
    billingAddress {
      address1
      address2
      city
      country
      zip
      phone
    }
    primaryDomain { url }
  }
}`

type shopInfo struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	ContactEmail    string `json:"contactEmail"`
	MyshopifyDomain string `json:"myshopifyDomain"`
	ShopOwnerName   string `json:"shopOwnerName"`
	IanaTimezone    string `json:"ianaTimezone"`
	CurrencyCode    string `json:"currencyCode"`
	CreatedAt       string `json:"createdAt"`
	Plan            struct {
		DisplayName string `json:"displayName"`
	} `json:"plan"`
	BillingAddress struct {
		Address1 string `json:"address1"`
		Address2 string `json:"address2"`
		City     string `json:"city"`
		Country  string `json:"country"`
		Zip      string `json:"zip"`
		Phone    string `json:"phone"`
	} `json:"billingAddress"`
	PrimaryDomain struct {
		URL string `json:"url"`
	} `json:"primaryDomain"`
}

func fetchShopInfo(ctx context.Context, httpc *http.Client, cfg *config.Config, shop, token string) (*shopInfo, error) {
	type page struct {
		Shop shopInfo `json:"shop"`
	}

	resp, status, err := shopify.PostGraphQL[page](ctx, httpc, shop, cfg.ShopifyAPIVersion, token, shopInfoQuery, nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("shop info query: http %d", status)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("shop info query: %s", shopify.JoinGraphQLErrors(resp.Errors))
	}
	return &resp.Data.Shop, nil
}

// storeItemFromShopInfo maps the GraphQL shop payload onto the persisted
// mirror. Token, scope and install bookkeeping are filled in by callers.
func storeItemFromShopInfo(info *shopInfo) db.StoreItem {
	shopID, _ := strconv.ParseInt(gidSuffix(info.ID), 10, 64)

	email := info.Email
	if email == "" {
		email = info.ContactEmail
	}

	return db.StoreItem{
		ShopID:          shopID,
		Shop:            strings.ToLower(info.MyshopifyDomain),
		Name:            info.Name,
		Email:           email,
		Domain:          info.PrimaryDomain.URL,
		MyshopifyDomain: strings.ToLower(info.MyshopifyDomain),
		PlanDisplayName: info.Plan.DisplayName,
		Country:         info.BillingAddress.Country,
		Currency:        info.CurrencyCode,
		IanaTimezone:    info.IanaTimezone,
		Address1:        info.BillingAddress.Address1,
		Address2:        info.BillingAddress.Address2,
		Phone:           info.BillingAddress.Phone,
		ShopCreatedAt:   info.CreatedAt,
		Status:          "installed",
		InstalledAt:     time.Now().UTC().Format(time.RFC3339),
	}
}
