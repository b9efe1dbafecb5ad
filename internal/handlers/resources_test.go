package handlers

import (
	"context"
	"testing"

	"backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResourcesAPI() *ResourcesAPI {
	return NewResourcesAPI(&config.Config{ShopifyAPIVersion: "2026-01", BedrockModelID: "model"}, nil, nil)
}

func TestResourcesHandle_Routing(t *testing.T) {
	api := newTestResourcesAPI()

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"unknown path", "GET", "/api/admin/resources/unknown", 404},
		{"products delete", "DELETE", "/api/admin/resources/products", 405},
		{"pages delete", "DELETE", "/api/admin/resources/pages", 405},
		{"blogs delete", "DELETE", "/api/admin/resources/blogs", 405},
		{"suggest get", "GET", "/api/admin/resources/suggest", 405},
		{"comment get", "GET", "/api/save-comment-product", 405},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := api.Handle(context.Background(), authorizedReq(tt.method, tt.path, "https://demo.myshopify.com"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestResourcesHandle_RequiresSession(t *testing.T) {
	api := newTestResourcesAPI()
	resp, err := api.Handle(context.Background(), anonymousReq("GET", "/api/admin/resources/products"))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestSuggest_RequiresInput(t *testing.T) {
	api := newTestResourcesAPI()

	tests := []struct {
		name string
		body string
	}{
		{"empty object", `{}`},
		{"blank fields", `{"title":"  ","description":""}`},
		{"no body", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authorizedReq("POST", "/api/admin/resources/suggest", "https://demo.myshopify.com")
			req.Body = tt.body
			resp, err := api.Handle(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, 400, resp.StatusCode)
		})
	}
}

func TestUpdateProduct_RequiresID(t *testing.T) {
	api := newTestResourcesAPI()
	req := authorizedReq("POST", "/api/admin/resources/products", "https://demo.myshopify.com")
	req.Body = `{"title":"New title"}`
	resp, err := api.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestUpdatePage_RequiresAllFields(t *testing.T) {
	api := newTestResourcesAPI()

	tests := []struct {
		name string
		body string
	}{
		{"missing id", `{"title":"About","body":"text"}`},
		{"missing title", `{"id":"gid://shopify/Page/1","body":"text"}`},
		{"missing body", `{"id":"gid://shopify/Page/1","title":"About"}`},
		{"not json", `title=About`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authorizedReq("POST", "/api/admin/resources/pages", "https://demo.myshopify.com")
			req.Body = tt.body
			resp, err := api.Handle(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, 400, resp.StatusCode)
		})
	}
}

func TestSaveComment_Validation(t *testing.T) {
	api := newTestResourcesAPI()

	tests := []struct {
		name string
		body string
	}{
		{"missing comment", `{"productId":"gid://shopify/Product/1"}`},
		{"missing product", `{"comment":"nice"}`},
		{"numeric id only", `{"productId":"12345","comment":"nice"}`},
		{"wrong gid type", `{"productId":"gid://shopify/Page/1","comment":"nice"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := authorizedReq("POST", "/api/save-comment-product", "https://demo.myshopify.com")
			req.Body = tt.body
			resp, err := api.Handle(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, 400, resp.StatusCode)
		})
	}
}
