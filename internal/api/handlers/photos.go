package handlers

import (
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/pysugar/photopick/internal/apperr"
	"github.com/pysugar/photopick/internal/logging"
	"github.com/pysugar/photopick/internal/thumbnail"
	"github.com/pysugar/photopick/internal/upstream"
)

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// photoView is a MediaItem as served to the browser. When the thumbnail is
// proxied, the provider URL is kept in OriginalThumbnailURL.
type photoView struct {
	upstream.MediaItem
	OriginalThumbnailURL string `json:"originalThumbnailUrl,omitempty"`
}

type photosResponse struct {
	MediaItems    []photoView `json:"mediaItems"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
}

// Photos serves GET /photos.
func (a *API) Photos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := a.provider(q.Get("provider"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	page, err := p.ListImages(r.Context(), q.Get("folderId"), q.Get("pageToken"), pageSize(q.Get("pageSize")))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, photosResponse{
		MediaItems:    a.views(p, page.Items),
		NextPageToken: page.NextPageToken,
	})
}

func pageSize(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultPageSize
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return n
}

func (a *API) views(p upstream.Provider, items []upstream.MediaItem) []photoView {
	_, proxied := p.(upstream.ThumbnailFetcher)
	out := make([]photoView, 0, len(items))
	for _, item := range items {
		v := photoView{MediaItem: item}
		if proxied && item.ThumbnailURL != "" {
			v.OriginalThumbnailURL = item.ThumbnailURL
			v.ThumbnailURL = imageProxyURL(p.ID(), item.ID, item.ThumbnailURL, thumbnail.DefaultSize)
		}
		out = append(out, v)
	}
	return out
}

func imageProxyURL(provider, fileID, thumbURL string, size int) string {
	q := url.Values{}
	q.Set("provider", provider)
	q.Set("fileId", fileID)
	q.Set("thumbnailUrl", thumbURL)
	q.Set("size", strconv.Itoa(size))
	return "/image?" + q.Encode()
}

// Image serves GET /image, the thumbnail proxy.
func (a *API) Image(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fail := func(status int, msg string) {
		writeJSON(w, status, map[string]interface{}{"error": msg, "useOriginalUrl": true})
	}

	fileID := q.Get("fileId")
	if fileID == "" {
		fail(http.StatusBadRequest, "fileId is required")
		return
	}
	p, err := a.provider(q.Get("provider"))
	if err != nil {
		fail(apperr.HTTPStatus(err), apperr.Message(err))
		return
	}
	fetcher, ok := p.(upstream.ThumbnailFetcher)
	if !ok {
		fail(http.StatusBadRequest, "provider serves thumbnails directly")
		return
	}

	size := thumbnail.ParseSize(q.Get("size"))
	content, err := fetcher.FetchThumbnail(r.Context(), fileID, q.Get("thumbnailUrl"), size)
	if err != nil {
		logging.FromContext(r.Context(), a.logger).Warn("thumbnail fetch failed",
			zap.String("provider", p.ID()), zap.String("file_id", fileID), zap.Error(err))
		fail(apperr.HTTPStatus(err), apperr.Message(err))
		return
	}
	content, _ = thumbnail.Fit(content, size)

	w.Header().Set("Content-Type", content.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(content.Data)))
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	w.Write(content.Data)
}
