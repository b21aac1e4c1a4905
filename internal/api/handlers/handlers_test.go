package handlers

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/pysugar/photopick/internal/apperr"
	"github.com/pysugar/photopick/internal/auth/token"
	"github.com/pysugar/photopick/internal/db"
	"github.com/pysugar/photopick/internal/export"
	"github.com/pysugar/photopick/internal/upstream"
)

type fakeProvider struct {
	id      string
	items   map[string]upstream.MediaItem
	data    map[string]string
	listErr error
}

func (f *fakeProvider) ID() string { return f.id }

func (f *fakeProvider) ListImages(_ context.Context, ref, pageToken string, _ int) (*upstream.Page, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if ref == "" {
		return nil, apperr.Validation("folderId is required")
	}
	if pageToken == "" {
		return &upstream.Page{Items: []upstream.MediaItem{f.items["a"]}, NextPageToken: "next"}, nil
	}
	return &upstream.Page{Items: []upstream.MediaItem{f.items["b"]}}, nil
}

func (f *fakeProvider) GetFile(_ context.Context, id string) (*upstream.MediaItem, error) {
	item, ok := f.items[id]
	if !ok {
		return nil, apperr.NotFound(f.id, "file not found")
	}
	return &item, nil
}

func (f *fakeProvider) GetFolderName(_ context.Context, ref string) (string, error) {
	return "Folder " + ref, nil
}

func (f *fakeProvider) FetchContent(_ context.Context, item upstream.MediaItem) (*upstream.Content, error) {
	return &upstream.Content{Data: []byte(f.data[item.ID]), ContentType: item.MimeType}, nil
}

// thumbProvider proxies thumbnails; fakeProvider alone does not.
type thumbProvider struct {
	*fakeProvider
	thumb    []byte
	thumbErr error
}

func (t *thumbProvider) FetchThumbnail(context.Context, string, string, int) (*upstream.Content, error) {
	if t.thumbErr != nil {
		return nil, t.thumbErr
	}
	return &upstream.Content{Data: t.thumb, ContentType: "image/png"}, nil
}

type fakeTokens struct {
	token   string
	err     error
	cleared int64
}

func (f *fakeTokens) GetAccessToken(context.Context, string) (string, error) { return f.token, f.err }
func (f *fakeTokens) Clear(context.Context) (int64, error)                   { return f.cleared, nil }
func (f *fakeTokens) Statuses(context.Context) ([]token.Status, error) {
	return []token.Status{{Provider: "googledrive", Connected: true}, {Provider: "googlephotos"}}, nil
}

type fakeSessions struct{}

func (fakeSessions) Login(_ http.ResponseWriter, _ *http.Request, u, p string) (bool, error) {
	return u == "admin" && p == "pw", nil
}
func (fakeSessions) Logout(http.ResponseWriter, *http.Request) error { return nil }

type fixture struct {
	router      http.Handler
	drive       *thumbProvider
	plain       *fakeProvider
	tokens      *fakeTokens
	submissions *db.SubmissionStore
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})

	items := map[string]upstream.MediaItem{
		"a": {ID: "a", DisplayURL: "https://src/a", ThumbnailURL: "https://thumb/a", MimeType: "image/jpeg", Filename: "a.jpg"},
		"b": {ID: "b", DisplayURL: "https://src/b", ThumbnailURL: "https://thumb/b", MimeType: "image/png"},
	}
	data := map[string]string{"a": "AAA", "b": "BBB"}
	drive := &thumbProvider{
		fakeProvider: &fakeProvider{id: "googledrive", items: items, data: data},
		thumb:        pngBytes(t, 400, 200),
	}
	plain := &fakeProvider{id: "gumlet", items: items, data: data}
	tokens := &fakeTokens{token: "picker-token", cleared: 2}
	submissions := db.NewSubmissionStore(gdb)

	a := New(Config{DefaultProvider: "googledrive", DeveloperKey: "dev-key"},
		upstream.NewRegistry(drive, plain), submissions, db.NewFolderStore(gdb),
		tokens, fakeSessions{}, export.New(nil, nil, time.Second), nil)

	r := chi.NewRouter()
	r.Get("/photos", a.Photos)
	r.Post("/selection", a.Selection)
	r.Get("/image", a.Image)
	r.Get("/folders", a.PublicFolders)
	r.Get("/folders/info", a.FolderInfo)
	r.Post("/admin/login", a.Login)
	r.Get("/admin/submissions", a.Submissions)
	r.Get("/admin/photos", a.AdminPhotos)
	r.Get("/admin/download", a.Download)
	r.Post("/admin/clear-tokens", a.ClearTokens)
	r.Get("/admin/picker/token", a.PickerToken)
	r.Get("/admin/tokens", a.TokenStatuses)
	r.Post("/admin/folders", a.AddFolder)
	r.Delete("/admin/folders/{id}", a.DeleteFolder)

	return &fixture{router: r, drive: drive, plain: plain, tokens: tokens, submissions: submissions}
}

func (f *fixture) do(t *testing.T, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func TestPhotosProxiesThumbnailsForFetchers(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/photos?folderId=folder-1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		MediaItems []struct {
			ID                   string `json:"id"`
			BaseURL              string `json:"baseUrl"`
			ThumbnailURL         string `json:"thumbnailUrl"`
			OriginalThumbnailURL string `json:"originalThumbnailUrl"`
		} `json:"mediaItems"`
		NextPageToken string `json:"nextPageToken"`
	}
	decode(t, rec, &body)
	require.Len(t, body.MediaItems, 1)
	item := body.MediaItems[0]
	assert.Equal(t, "https://src/a", item.BaseURL)
	assert.Equal(t, "https://thumb/a", item.OriginalThumbnailURL)
	assert.True(t, strings.HasPrefix(item.ThumbnailURL, "/image?"), item.ThumbnailURL)
	assert.Contains(t, item.ThumbnailURL, "size=220")
	assert.Equal(t, "next", body.NextPageToken)

	rec = f.do(t, http.MethodGet, "/photos?provider=gumlet&folderId=x&pageToken=next", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "originalThumbnailUrl")
	assert.NotContains(t, rec.Body.String(), "nextPageToken")
}

func TestPhotosErrorStatuses(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/photos", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/photos?provider=nope&folderId=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.drive.listErr = apperr.NoToken("googledrive")
	rec = f.do(t, http.MethodGet, "/photos?folderId=x", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), `"needsAuth":true`)

	f.drive.listErr = apperr.NotFound("googledrive", "folder not found")
	rec = f.do(t, http.MethodGet, "/photos?folderId=x", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.drive.listErr = apperr.Upstream("googledrive", "boom", 502)
	rec = f.do(t, http.MethodGet, "/photos?folderId=x", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSelectionValidatesAndRecordsRequestMetadata(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/selection", `{"photoIds":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, "/selection", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, "/selection", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/selection", `{"photoIds":["a","b"],"folderId":"F1"}`,
		"X-Forwarded-For", "203.0.113.9, 10.0.0.1", "User-Agent", "test-agent")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		SubmissionID string `json:"submissionId"`
	}
	decode(t, rec, &out)
	require.True(t, strings.HasPrefix(out.SubmissionID, "sub_"), out.SubmissionID)

	sub, err := f.submissions.Get(context.Background(), out.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, "203.0.113.9", sub.IPAddress)
	assert.Equal(t, "test-agent", sub.UserAgent)
	assert.Equal(t, "Folder F1", sub.FolderName)
	assert.Equal(t, "googledrive", sub.Provider)

	rec = f.do(t, http.MethodGet, "/admin/submissions?submissionId="+out.SubmissionID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var summaries []submissionSummary
	decode(t, rec, &summaries)
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].PhotoCount)
	assert.Equal(t, []string{"a", "b"}, summaries[0].PhotoIDs)

	rec = f.do(t, http.MethodGet, "/admin/submissions?dateFrom=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadVariants(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/admin/download", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/admin/download?submissionId=sub_missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/admin/download?photoIds=a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AAA", rec.Body.String())
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="a.jpg"`, rec.Header().Get("Content-Disposition"))

	rec = f.do(t, http.MethodGet, "/admin/download?photoIds=a,b,missing", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Regexp(t, `attachment; filename="photos_\d+\.zip"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "1", rec.Header().Get("X-Skipped-Photos"))
	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	assert.Len(t, zr.File, 2)

	rec = f.do(t, http.MethodGet, "/admin/download?photoIds=missing1,missing2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	id, err := f.submissions.Create(context.Background(), db.NewSubmission{PhotoIDs: []string{"a", "b"}, Provider: "gumlet"})
	require.NoError(t, err)
	rec = f.do(t, http.MethodGet, "/admin/download?submissionId="+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, fmt.Sprintf(`attachment; filename="submission_%s_photos.zip"`, id), rec.Header().Get("Content-Disposition"))
}

func TestAdminPhotosResolvesWithPlaceholders(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/admin/photos", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/admin/photos?photoIds=b,zzz,a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Photos []struct {
			ID           string `json:"id"`
			Filename     string `json:"filename"`
			ThumbnailURL string `json:"thumbnailUrl"`
		} `json:"photos"`
	}
	decode(t, rec, &body)
	require.Len(t, body.Photos, 3)
	assert.Equal(t, "b", body.Photos[0].ID)
	assert.Equal(t, "photo_zzz.jpg", body.Photos[1].Filename)
	assert.Empty(t, body.Photos[1].ThumbnailURL)
	assert.Equal(t, "a", body.Photos[2].ID)
}

func TestPickerTokenAndClearTokens(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/admin/picker/token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"accessToken":"picker-token","developerKey":"dev-key"}`, rec.Body.String())

	f.tokens.err = apperr.NoToken("googlephotos")
	rec = f.do(t, http.MethodGet, "/admin/picker/token", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), `"needsAuth":true`)

	rec = f.do(t, http.MethodPost, "/admin/clear-tokens", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]interface{}
	decode(t, rec, &out)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, float64(2), out["deletedCount"])

	rec = f.do(t, http.MethodGet, "/admin/tokens", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "picker-token")
}

func TestImageProxyResizesAndSetsHeaders(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/image?provider=googledrive&fileId=a&size=100", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "public, max-age=3600", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	cfg, _, err := image.DecodeConfig(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.Width)

	rec = f.do(t, http.MethodGet, "/image?provider=gumlet&fileId=a", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"useOriginalUrl":true`)

	f.drive.thumbErr = apperr.NotFound("googledrive", "thumbnail not found")
	rec = f.do(t, http.MethodGet, "/image?provider=googledrive&fileId=a", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"useOriginalUrl":true`)
}

func TestFolderEndpoints(t *testing.T) {
	f := newFixture(t)
	const id = "1a2B3c4D5e6F7g8H9i0JkLmNo"

	rec := f.do(t, http.MethodGet, "/folders/info?folderId=short", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/folders/info?folderId="+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"folderId":"`+id+`","folderName":"Folder `+id+`"}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/admin/folders", `{"url":"https://example.com/nothing"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/admin/folders", `{"url":"https://drive.google.com/drive/folders/`+id+`?usp=sharing"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"link":"/google-drive/`+id+`"`)

	rec = f.do(t, http.MethodGet, "/folders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), id)

	rec = f.do(t, http.MethodDelete, "/admin/folders/"+id, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodDelete, "/admin/folders/"+id, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/admin/login", `{"username":"admin","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodPost, "/admin/login", `{"username":"admin"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/admin/login", `{"username":"admin","password":"pw"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "unknown", clientIP(req))
	req.Header.Set("X-Real-IP", "198.51.100.4")
	assert.Equal(t, "198.51.100.4", clientIP(req))
	req.Header.Set("X-Forwarded-For", " 203.0.113.1 ,10.0.0.2")
	assert.Equal(t, "203.0.113.1", clientIP(req))
}
