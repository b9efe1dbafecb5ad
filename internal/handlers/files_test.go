package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"testing"

	"backend/internal/config"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeResp(t *testing.T, resp events.APIGatewayV2HTTPResponse) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resp.Body), &out))
	return out
}

func newTestFilesAPI() *FilesAPI {
	return NewFilesAPI(&config.Config{ShopifyAPIVersion: "2026-01"}, nil, nil)
}

func TestFilesHandle_Routing(t *testing.T) {
	api := newTestFilesAPI()

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"unknown path", "GET", "/api/admin/nothing", 404},
		{"list wrong method", "POST", "/api/admin/files", 405},
		{"optimize wrong method", "GET", "/api/admin/files/optimize/42", 405},
		{"upload wrong method", "GET", "/api/admin/files/upload", 405},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := api.Handle(context.Background(), authorizedReq(tt.method, tt.path, "https://demo.myshopify.com"))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestFilesOptimize_RequiresSession(t *testing.T) {
	api := newTestFilesAPI()
	resp, err := api.Handle(context.Background(), anonymousReq("POST", "/api/admin/files/optimize/42"))
	require.NoError(t, err)
	assert.Equal(t, 401, resp.StatusCode)
}

func TestFilesOptimize_RejectsBadIDs(t *testing.T) {
	api := newTestFilesAPI()

	tests := []struct {
		name string
		id   string
	}{
		{"non numeric", "abc"},
		{"full gid", "gid:%2F%2Fshopify%2FMediaImage%2F42"},
		{"empty", ""},
		{"mixed", "42abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := api.Handle(context.Background(),
				authorizedReq("POST", "/api/admin/files/optimize/"+tt.id, "https://demo.myshopify.com"))
			require.NoError(t, err)
			assert.Equal(t, 400, resp.StatusCode)
			body := decodeResp(t, resp)
			assert.Equal(t, false, body["success"])
		})
	}
}

func multipartBody(t *testing.T, fieldName, filename string, content []byte) (body []byte, contentType string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(fieldName, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

func TestFilesUpload_RejectsMalformedBodies(t *testing.T) {
	api := newTestFilesAPI()

	t.Run("not multipart", func(t *testing.T) {
		req := authorizedReq("POST", "/api/admin/files/upload", "https://demo.myshopify.com")
		req.Headers = map[string]string{"content-type": "application/json"}
		req.Body = `{"file": "nope"}`
		resp, err := api.Handle(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 400, resp.StatusCode)
	})

	t.Run("missing file field", func(t *testing.T) {
		body, ct := multipartBody(t, "attachment", "a.png", []byte("data"))
		req := authorizedReq("POST", "/api/admin/files/upload", "https://demo.myshopify.com")
		req.Headers = map[string]string{"content-type": ct}
		req.Body = base64.StdEncoding.EncodeToString(body)
		req.IsBase64Encoded = true
		resp, err := api.Handle(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 400, resp.StatusCode)
		assert.Contains(t, decodeResp(t, resp)["message"], "missing file field")
	})

	t.Run("truncated multipart", func(t *testing.T) {
		body, ct := multipartBody(t, "file", "a.png", []byte("data"))
		req := authorizedReq("POST", "/api/admin/files/upload", "https://demo.myshopify.com")
		req.Headers = map[string]string{"content-type": ct}
		req.Body = string(body[:len(body)/4])
		resp, err := api.Handle(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 400, resp.StatusCode)
	})
}

func TestFilePart_ExtractsFileField(t *testing.T) {
	content := []byte{0x89, 0x50, 0x4E, 0x47}
	body, ct := multipartBody(t, "file", "logo.png", content)

	req := authorizedReq("POST", "/api/admin/files/upload", "https://demo.myshopify.com")
	req.Headers = map[string]string{"content-type": ct}
	req.Body = base64.StdEncoding.EncodeToString(body)
	req.IsBase64Encoded = true

	filename, contentType, data, err := filePart(req)
	require.NoError(t, err)
	assert.Equal(t, "logo.png", filename)
	assert.Equal(t, "application/octet-stream", contentType)
	assert.Equal(t, content, data)
}
