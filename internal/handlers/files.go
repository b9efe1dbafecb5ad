package handlers

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/optimize"
	"backend/internal/shopify"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// FilesAPI serves the admin files endpoints: list, optimize and direct
// upload. One instance per cold start; per-request state stays on the
// stack.
type FilesAPI struct {
	cfg  *config.Config
	ddb  *dynamodb.Client
	s3c  *s3.Client
	http *http.Client
}

func NewFilesAPI(cfg *config.Config, ddb *dynamodb.Client, s3c *s3.Client) *FilesAPI {
	return &FilesAPI{cfg: cfg, ddb: ddb, s3c: s3c, http: http.DefaultClient}
}

func (a *FilesAPI) Handle(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	method := req.RequestContext.HTTP.Method

	switch {
	case req.RawPath == "/api/admin/files":
		if method != http.MethodGet {
			return errResp(405, "method not allowed")
		}
		return a.list(ctx, req)
	case strings.HasPrefix(req.RawPath, "/api/admin/files/optimize/"):
		if method != http.MethodPost {
			return errResp(405, "method not allowed")
		}
		return a.optimize(ctx, req)
	case req.RawPath == "/api/admin/files/upload":
		if method != http.MethodPost {
			return errResp(405, "method not allowed")
		}
		return a.upload(ctx, req)
	default:
		return errResp(404, "not found")
	}
}

// pipelineFor builds a pipeline bound to the shop's stored session.
func (a *FilesAPI) pipelineFor(ctx context.Context, shop string) (*optimize.Pipeline, error) {
	token, _, err := shopify.LoadStoreToken(ctx, a.ddb, a.cfg, shop)
	if err != nil {
		return nil, err
	}
	client := shopify.AdminClientFor(a.cfg, shop, token)

	var archiver optimize.Archiver
	if a.cfg.ArchiveBucket != "" && a.s3c != nil {
		archiver = &optimize.S3Archiver{Client: a.s3c, Bucket: a.cfg.ArchiveBucket, Prefix: a.cfg.ArchivePrefix}
	}

	store := imageStore{ddb: a.ddb, table: a.cfg.ImagesTable}
	return optimize.New(a.cfg, client, a.http, store, archiver), nil
}

type fileListEntry struct {
	ID         string `json:"id"`
	Alt        string `json:"alt"`
	FileStatus string `json:"fileStatus"`
	URL        string `json:"url,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
}

func (a *FilesAPI) list(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	shop, err := sessionShop(req)
	if err != nil {
		return errResp(401, "unauthorized")
	}

	token, _, err := shopify.LoadStoreToken(ctx, a.ddb, a.cfg, shop)
	if err != nil {
		log.Printf("files: load token for %s: %v", shop, err)
		return errResp(500, "failed to load shop session")
	}

	const query = `
query files {
  files(first: 20) {
    edges {
      node {
        ... on MediaImage {
          id
          alt
          fileStatus
          image { url width height }
        }
      }
    }
  }
}`

	type page struct {
		Files struct {
			Edges []struct {
				Node struct {
					ID         string `json:"id"`
					Alt        string `json:"alt"`
					FileStatus string `json:"fileStatus"`
					Image      *struct {
						URL    string `json:"url"`
						Width  int    `json:"width"`
						Height int    `json:"height"`
					} `json:"image"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"files"`
	}

	resp, status, err := shopify.PostGraphQL[page](ctx, a.http, shop, a.cfg.ShopifyAPIVersion, token, query, nil)
	if err != nil {
		log.Printf("files: list for %s: %v", shop, err)
		return errResp(502, "failed to fetch files")
	}
	if status < 200 || status >= 300 || len(resp.Errors) > 0 {
		log.Printf("files: list for %s: http %d, errors: %s", shop, status, shopify.JoinGraphQLErrors(resp.Errors))
		return errResp(502, "failed to fetch files")
	}

	files := make([]fileListEntry, 0, len(resp.Data.Files.Edges))
	for _, e := range resp.Data.Files.Edges {
		n := e.Node
		if n.ID == "" {
			continue
		}
		entry := fileListEntry{ID: n.ID, Alt: n.Alt, FileStatus: n.FileStatus}
		if n.Image != nil {
			entry.URL = n.Image.URL
			entry.Width = n.Image.Width
			entry.Height = n.Image.Height
		}
		files = append(files, entry)
	}

	records, err := db.ListImagesForShop(ctx, a.ddb, a.cfg.ImagesTable, shop, 50)
	if err != nil {
		log.Printf("files: list records for %s: %v", shop, err)
		records = nil
	}

	type recordEntry struct {
		SourceType      string `json:"sourceType"`
		OriginalMediaID string `json:"originalMediaId,omitempty"`
		OriginalURL     string `json:"originalUrl,omitempty"`
		MediaID         string `json:"mediaId"`
		URL             string `json:"url,omitempty"`
		Width           int    `json:"width"`
		Height          int    `json:"height"`
		Size            int    `json:"size"`
		Filename        string `json:"filename"`
		CreatedAt       string `json:"createdAt"`
	}
	recs := make([]recordEntry, 0, len(records))
	for _, r := range records {
		recs = append(recs, recordEntry{
			SourceType:      r.SourceType,
			OriginalMediaID: r.OriginalMediaID,
			OriginalURL:     r.OriginalURL,
			MediaID:         r.MediaID,
			URL:             r.URL,
			Width:           r.Width,
			Height:          r.Height,
			Size:            r.Size,
			Filename:        r.Filename,
			CreatedAt:       r.CreatedAt,
		})
	}

	return jsonResp(200, map[string]any{
		"success": true,
		"files":   files,
		"records": recs,
	})
}

func (a *FilesAPI) optimize(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	shop, err := sessionShop(req)
	if err != nil {
		return errResp(401, "unauthorized")
	}

	id := strings.TrimPrefix(req.RawPath, "/api/admin/files/optimize/")
	if id == "" {
		return errResp(400, "missing file id")
	}
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return errResp(400, "file id must be numeric")
	}
	gid := "gid://shopify/MediaImage/" + id

	pipe, err := a.pipelineFor(ctx, shop)
	if err != nil {
		log.Printf("files: optimize %s for %s: %v", gid, shop, err)
		return errResp(500, "failed to load shop session")
	}

	result, err := pipe.Optimize(ctx, shop, gid)
	if err != nil {
		log.Printf("files: optimize %s for %s: %v", gid, shop, err)
		return errResp(optimize.HTTPStatus(err), err.Error())
	}

	return jsonResp(200, map[string]any{
		"success": true,
		"message": fmt.Sprintf("File %s optimized", gid),
		"file":    result,
	})
}

func (a *FilesAPI) upload(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	shop, err := sessionShop(req)
	if err != nil {
		return errResp(401, "unauthorized")
	}

	filename, contentType, data, err := filePart(req)
	if err != nil {
		return errResp(400, err.Error())
	}

	pipe, err := a.pipelineFor(ctx, shop)
	if err != nil {
		log.Printf("files: upload for %s: %v", shop, err)
		return errResp(500, "failed to load shop session")
	}

	result, err := pipe.Upload(ctx, shop, filename, contentType, data)
	if err != nil {
		log.Printf("files: upload %s for %s: %v", filename, shop, err)
		return errResp(optimize.HTTPStatus(err), err.Error())
	}

	return jsonResp(200, map[string]any{
		"success": true,
		"file":    result,
	})
}

// filePart pulls the `file` field out of a multipart request body.
func filePart(req events.APIGatewayV2HTTPRequest) (filename, contentType string, data []byte, err error) {
	body, err := requestBody(req)
	if err != nil {
		return "", "", nil, fmt.Errorf("invalid request body encoding")
	}

	mediaType, params, err := mime.ParseMediaType(headerValue(req, "content-type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		return "", "", nil, fmt.Errorf("expected multipart form data")
	}

	mr := multipart.NewReader(strings.NewReader(string(body)), params["boundary"])
	for {
		part, perr := mr.NextPart()
		if perr == io.EOF {
			break
		}
		if perr != nil {
			return "", "", nil, fmt.Errorf("malformed multipart body")
		}
		if part.FormName() != "file" {
			continue
		}
		data, err = io.ReadAll(part)
		if err != nil {
			return "", "", nil, fmt.Errorf("failed to read file field")
		}
		filename = part.FileName()
		contentType = part.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		return filename, contentType, data, nil
	}
	return "", "", nil, fmt.Errorf("missing file field")
}

// imageStore adapts the images table to the pipeline's RecordStore.
type imageStore struct {
	ddb   *dynamodb.Client
	table string
}

func (s imageStore) PutImage(ctx context.Context, item db.ImageItem) error {
	return db.PutImage(ctx, s.ddb, s.table, item)
}
