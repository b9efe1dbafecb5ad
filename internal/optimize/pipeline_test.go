package optimize

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"backend/internal/config"
	"backend/internal/db"
	"backend/internal/shopify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAdmin records every Admin API call the pipeline makes.
type fakeAdmin struct {
	media     map[string]*shopify.MediaImage
	mediaErr  error
	stagedErr error

	created       *shopify.MediaImage // fileCreate answer
	createdErr    error
	pollAnswers   []*shopify.MediaImage // consumed by successive MediaImageByID calls after fileCreate
	metafieldVal  string
	metafieldErr  error

	resolveCalls   int
	stagedCalls    int
	createCalls    int
	pollCalls      int
	metafieldSets  []string // raw values written
	createAlt      string
	stagedFilename string
	stagedSize     int
}

func (f *fakeAdmin) MediaImageByID(ctx context.Context, gid string) (*shopify.MediaImage, error) {
	if f.createCalls > 0 {
		// Post-finalize lookups are the indexing poll.
		f.pollCalls++
		if len(f.pollAnswers) > 0 {
			m := f.pollAnswers[0]
			f.pollAnswers = f.pollAnswers[1:]
			return m, nil
		}
		return &shopify.MediaImage{ID: gid}, nil
	}
	f.resolveCalls++
	if f.mediaErr != nil {
		return nil, f.mediaErr
	}
	return f.media[gid], nil
}

func (f *fakeAdmin) StagedUploadCreate(ctx context.Context, filename, mimeType string, size int) (*shopify.StagedTarget, error) {
	f.stagedCalls++
	f.stagedFilename = filename
	f.stagedSize = size
	if f.stagedErr != nil {
		return nil, f.stagedErr
	}
	return &shopify.StagedTarget{
		URL:         "https://staging.test/upload",
		ResourceURL: "https://staging.test/resource/abc",
		Parameters: []shopify.StagedParameter{
			{Name: "key", Value: "tmp/abc"},
		},
	}, nil
}

func (f *fakeAdmin) FileCreate(ctx context.Context, resourceURL, alt string) (*shopify.MediaImage, error) {
	f.createCalls++
	f.createAlt = alt
	if f.createdErr != nil {
		return nil, f.createdErr
	}
	return f.created, nil
}

func (f *fakeAdmin) ShopMetafield(ctx context.Context, namespace, key string) (string, string, error) {
	if f.metafieldErr != nil {
		return "", "", f.metafieldErr
	}
	return "gid://shopify/Shop/1", f.metafieldVal, nil
}

func (f *fakeAdmin) MetafieldSet(ctx context.Context, ownerID, namespace, key, valueType, value string) error {
	f.metafieldSets = append(f.metafieldSets, value)
	return nil
}

type fakeStore struct {
	items []db.ImageItem
	err   error
}

func (s *fakeStore) PutImage(ctx context.Context, item db.ImageItem) error {
	if s.err != nil {
		return s.err
	}
	s.items = append(s.items, item)
	return nil
}

// roundTrip answers source-image fetches and staged-ticket uploads.
type roundTrip func(*http.Request) (*http.Response, error)

func (rt roundTrip) Do(req *http.Request) (*http.Response, error) { return rt(req) }

func okBody(body []byte) *http.Response {
	return &http.Response{StatusCode: 200, Body: io.NopCloser(strings.NewReader(string(body)))}
}

func servingImage(t *testing.T, img []byte) roundTrip {
	return func(req *http.Request) (*http.Response, error) {
		if req.Method == http.MethodGet {
			return okBody(img), nil
		}
		return okBody(nil), nil
	}
}

func instantPoll() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Delay:       2 * time.Second,
		Sleep:       func(ctx context.Context, d time.Duration) error { return nil },
	}
}

func testConfig() *config.Config {
	return &config.Config{HTTPUserAgent: "test-agent/1.0", ShopifyAPIVersion: "2026-01"}
}

func newTestPipeline(t *testing.T, api *fakeAdmin, httpc shopify.Doer, store *fakeStore) *Pipeline {
	t.Helper()
	p := New(testConfig(), api, httpc, store, nil)
	p.SetPollPolicy(instantPoll())
	p.logf = func(string, ...any) {}
	return p
}

const srcGID = "gid://shopify/MediaImage/42"

func installedMedia() map[string]*shopify.MediaImage {
	return map[string]*shopify.MediaImage{
		srcGID: {ID: srcGID, Alt: "hero shot", URL: "https://cdn.test/photo.png", Width: 2400, Height: 1200},
	}
}

func TestOptimize_FullRun(t *testing.T) {
	api := &fakeAdmin{
		media:   installedMedia(),
		created: &shopify.MediaImage{ID: "gid://shopify/MediaImage/99", URL: "https://cdn.test/photo-optimized.jpg", Width: 1200, Height: 600},
	}
	store := &fakeStore{}
	p := newTestPipeline(t, api, servingImage(t, pngBytes(t, 2400, 1200)), store)

	res, err := p.Optimize(context.Background(), "demo.myshopify.com", srcGID)
	require.NoError(t, err)

	assert.Equal(t, "gid://shopify/MediaImage/99", res.ID)
	require.NotNil(t, res.URL)
	assert.Equal(t, "https://cdn.test/photo-optimized.jpg", *res.URL)
	assert.Equal(t, 1200, res.Width)
	assert.Equal(t, 600, res.Height)
	assert.Positive(t, res.Size)

	assert.Equal(t, 1, api.stagedCalls)
	assert.Equal(t, "photo-optimized.jpg", api.stagedFilename)
	assert.Equal(t, res.Size, api.stagedSize)
	assert.Equal(t, "hero shot", api.createAlt)
	assert.Zero(t, api.pollCalls, "no poll when fileCreate returns a url")

	require.Len(t, store.items, 1)
	rec := store.items[0]
	assert.Equal(t, "optimized", rec.SourceType)
	assert.Equal(t, srcGID, rec.OriginalMediaID)
	assert.Equal(t, "https://cdn.test/photo.png", rec.OriginalURL)
	assert.Equal(t, "gid://shopify/MediaImage/99", rec.MediaID)
	assert.Equal(t, res.Size, rec.Size)

	require.Len(t, api.metafieldSets, 1)
	var mapping map[string]string
	require.NoError(t, json.Unmarshal([]byte(api.metafieldSets[0]), &mapping))
	assert.Equal(t, "https://cdn.test/photo-optimized.jpg", mapping["https://cdn.test/photo.png"])
}

func TestOptimize_UnknownMediaIsNotFound(t *testing.T) {
	api := &fakeAdmin{media: map[string]*shopify.MediaImage{}}
	store := &fakeStore{}
	p := newTestPipeline(t, api, servingImage(t, nil), store)

	_, err := p.Optimize(context.Background(), "demo.myshopify.com", srcGID)
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindNotFound, kind)
	assert.Zero(t, api.stagedCalls, "no staging after a failed resolve")
	assert.Empty(t, store.items)
}

func TestOptimize_MediaWithoutURLIsNotFound(t *testing.T) {
	api := &fakeAdmin{media: map[string]*shopify.MediaImage{
		srcGID: {ID: srcGID}, // still processing, no source url yet
	}}
	p := newTestPipeline(t, api, servingImage(t, nil), &fakeStore{})

	_, err := p.Optimize(context.Background(), "demo.myshopify.com", srcGID)
	kind, _ := KindOf(err)
	assert.Equal(t, KindNotFound, kind)
}

func TestOptimize_UpstreamFetchFailure(t *testing.T) {
	api := &fakeAdmin{media: installedMedia()}
	httpc := roundTrip(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: 403, Body: io.NopCloser(strings.NewReader("denied"))}, nil
	})
	p := newTestPipeline(t, api, httpc, &fakeStore{})

	_, err := p.Optimize(context.Background(), "demo.myshopify.com", srcGID)
	kind, _ := KindOf(err)
	assert.Equal(t, KindUpstreamFetch, kind)
	assert.Zero(t, api.stagedCalls)
}

func TestOptimize_NonImageSourceIsTranscodeError(t *testing.T) {
	api := &fakeAdmin{media: installedMedia()}
	p := newTestPipeline(t, api, servingImage(t, []byte("<html>not an image</html>")), &fakeStore{})

	_, err := p.Optimize(context.Background(), "demo.myshopify.com", srcGID)
	kind, _ := KindOf(err)
	assert.Equal(t, KindTranscode, kind)
	assert.Zero(t, api.stagedCalls)
}

func TestOptimize_StagingFailure(t *testing.T) {
	api := &fakeAdmin{
		media:     installedMedia(),
		stagedErr: assert.AnError,
	}
	store := &fakeStore{}
	p := newTestPipeline(t, api, servingImage(t, pngBytes(t, 100, 100)), store)

	_, err := p.Optimize(context.Background(), "demo.myshopify.com", srcGID)
	kind, _ := KindOf(err)
	assert.Equal(t, KindStaging, kind)
	assert.Empty(t, store.items)
}

func TestOptimize_FinalizeFailure(t *testing.T) {
	api := &fakeAdmin{
		media:      installedMedia(),
		createdErr: assert.AnError,
	}
	p := newTestPipeline(t, api, servingImage(t, pngBytes(t, 100, 100)), &fakeStore{})

	_, err := p.Optimize(context.Background(), "demo.myshopify.com", srcGID)
	kind, _ := KindOf(err)
	assert.Equal(t, KindFinalize, kind)
}

func TestOptimize_PollExhaustionYieldsNullURL(t *testing.T) {
	api := &fakeAdmin{
		media:   installedMedia(),
		created: &shopify.MediaImage{ID: "gid://shopify/MediaImage/99"}, // no url yet
	}
	store := &fakeStore{}
	p := newTestPipeline(t, api, servingImage(t, pngBytes(t, 2400, 1200)), store)

	var sleeps int
	p.SetPollPolicy(RetryPolicy{
		MaxAttempts: 5,
		Delay:       2 * time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			sleeps++
			return nil
		},
	})

	res, err := p.Optimize(context.Background(), "demo.myshopify.com", srcGID)
	require.NoError(t, err, "exhaustion degrades, it does not fail")

	assert.Nil(t, res.URL)
	assert.Equal(t, 5, sleeps)
	assert.Equal(t, 5, api.pollCalls)
	// Dimensions fall back to the transcode output.
	assert.Equal(t, 1200, res.Width)
	assert.Equal(t, 600, res.Height)
	// The run is still recorded, without a url.
	require.Len(t, store.items, 1)
	assert.Empty(t, store.items[0].URL)
	// No mapping entry without a new url.
	assert.Empty(t, api.metafieldSets)
}

func TestOptimize_PollResolvesMidway(t *testing.T) {
	api := &fakeAdmin{
		media:   installedMedia(),
		created: &shopify.MediaImage{ID: "gid://shopify/MediaImage/99"},
		pollAnswers: []*shopify.MediaImage{
			{ID: "gid://shopify/MediaImage/99"}, // not indexed yet
			{ID: "gid://shopify/MediaImage/99", URL: "https://cdn.test/late.jpg", Width: 1200, Height: 600},
		},
	}
	p := newTestPipeline(t, api, servingImage(t, pngBytes(t, 2400, 1200)), &fakeStore{})

	res, err := p.Optimize(context.Background(), "demo.myshopify.com", srcGID)
	require.NoError(t, err)
	require.NotNil(t, res.URL)
	assert.Equal(t, "https://cdn.test/late.jpg", *res.URL)
	assert.Equal(t, 2, api.pollCalls)
}

func TestOptimize_MappingMergePreservesExistingEntries(t *testing.T) {
	api := &fakeAdmin{
		media:        installedMedia(),
		created:      &shopify.MediaImage{ID: "gid://shopify/MediaImage/99", URL: "https://cdn.test/new.jpg", Width: 1200, Height: 600},
		metafieldVal: `{"https://cdn.test/old-a.png":"https://cdn.test/new-a.jpg"}`,
	}
	p := newTestPipeline(t, api, servingImage(t, pngBytes(t, 2400, 1200)), &fakeStore{})

	_, err := p.Optimize(context.Background(), "demo.myshopify.com", srcGID)
	require.NoError(t, err)

	require.Len(t, api.metafieldSets, 1)
	var mapping map[string]string
	require.NoError(t, json.Unmarshal([]byte(api.metafieldSets[0]), &mapping))
	assert.Len(t, mapping, 2)
	assert.Equal(t, "https://cdn.test/new-a.jpg", mapping["https://cdn.test/old-a.png"])
	assert.Equal(t, "https://cdn.test/new.jpg", mapping["https://cdn.test/photo.png"])
}

func TestMergeURLMapping_ConcurrentWritersLastOneWins(t *testing.T) {
	// Two runs read the metafield before either writes: plain
	// read-modify-write, so the later write drops the earlier entry.
	api := &fakeAdmin{metafieldVal: ""} // both readers see an empty mapping
	p := newTestPipeline(t, api, servingImage(t, nil), &fakeStore{})

	require.NoError(t, p.MergeURLMapping(context.Background(), "old-a", "new-a"))
	require.NoError(t, p.MergeURLMapping(context.Background(), "old-b", "new-b"))

	require.Len(t, api.metafieldSets, 2)
	var last map[string]string
	require.NoError(t, json.Unmarshal([]byte(api.metafieldSets[1]), &last))
	// The second writer's entry survives; the first's is gone from the
	// final blob because its write was never re-read.
	assert.Equal(t, "new-b", last["old-b"])
	assert.NotContains(t, last, "old-a")
}

func TestOptimize_MappingFailureIsNonFatal(t *testing.T) {
	api := &fakeAdmin{
		media:        installedMedia(),
		created:      &shopify.MediaImage{ID: "gid://shopify/MediaImage/99", URL: "https://cdn.test/new.jpg"},
		metafieldErr: assert.AnError,
	}
	store := &fakeStore{}
	p := newTestPipeline(t, api, servingImage(t, pngBytes(t, 100, 100)), store)

	res, err := p.Optimize(context.Background(), "demo.myshopify.com", srcGID)
	require.NoError(t, err, "the record is durable; a lost mapping entry only degrades")
	assert.NotNil(t, res.URL)
	assert.Len(t, store.items, 1)
}

func TestUpload_FullRun(t *testing.T) {
	api := &fakeAdmin{
		created: &shopify.MediaImage{ID: "gid://shopify/MediaImage/7", URL: "https://cdn.test/up.png", Width: 320, Height: 240},
	}
	store := &fakeStore{}
	p := newTestPipeline(t, api, servingImage(t, nil), store)

	payload := pngBytes(t, 320, 240)
	res, err := p.Upload(context.Background(), "demo.myshopify.com", "banner.png", "image/png", payload)
	require.NoError(t, err)

	require.NotNil(t, res.URL)
	assert.Equal(t, len(payload), res.Size)

	// The staged name keeps the extension and gains a collision suffix.
	assert.True(t, strings.HasPrefix(api.stagedFilename, "banner-"))
	assert.True(t, strings.HasSuffix(api.stagedFilename, ".png"))
	assert.NotEqual(t, "banner.png", api.stagedFilename)

	require.Len(t, store.items, 1)
	rec := store.items[0]
	assert.Equal(t, "upload", rec.SourceType)
	assert.Empty(t, rec.OriginalMediaID)
	assert.Empty(t, api.metafieldSets, "direct uploads have no old url to map")
}

func TestUpload_RejectsOversizedPayload(t *testing.T) {
	api := &fakeAdmin{}
	p := newTestPipeline(t, api, servingImage(t, nil), &fakeStore{})

	big := make([]byte, MaxUploadBytes+1)
	_, err := p.Upload(context.Background(), "demo.myshopify.com", "huge.bin", "application/octet-stream", big)
	require.Error(t, err)
	kind, _ := KindOf(err)
	assert.Equal(t, KindPayloadTooLarge, kind)
	assert.Zero(t, api.stagedCalls, "size guard runs before any network step")
}

func TestUpload_BlobUploadFailure(t *testing.T) {
	api := &fakeAdmin{}
	httpc := roundTrip(func(req *http.Request) (*http.Response, error) {
		return &http.Response{StatusCode: 500, Body: io.NopCloser(strings.NewReader("bucket down"))}, nil
	})
	p := newTestPipeline(t, api, httpc, &fakeStore{})

	_, err := p.Upload(context.Background(), "demo.myshopify.com", "a.png", "image/png", pngBytes(t, 10, 10))
	kind, _ := KindOf(err)
	assert.Equal(t, KindBlobUpload, kind)
	assert.Zero(t, api.createCalls, "no finalize after a failed upload")
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindNotFound, 404},
		{KindTranscode, 422},
		{KindPayloadTooLarge, 413},
		{KindUpstreamFetch, 502},
		{KindStaging, 502},
		{KindBlobUpload, 502},
		{KindFinalize, 502},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(errf(tt.kind, "x")))
		})
	}
	assert.Equal(t, 500, HTTPStatus(assert.AnError))
}

func TestDerivedFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"png with query", "https://cdn.test/a/photo.png?v=2", "photo-optimized.jpg"},
		{"already jpeg", "https://cdn.test/pic.jpg", "pic-optimized.jpg"},
		{"no extension", "https://cdn.test/banner", "banner-optimized.jpg"},
		{"bare host", "https://cdn.test/", "image-optimized.jpg"},
		{"unparseable", "://", "image-optimized.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, derivedFilename(tt.in))
		})
	}
}
