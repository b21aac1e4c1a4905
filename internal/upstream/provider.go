package upstream

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pysugar/photopick/internal/apperr"
)

// MediaItem is the provider-agnostic view of one photo. It is never persisted.
type MediaItem struct {
	ID           string `json:"id"`
	DisplayURL   string `json:"baseUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
	MimeType     string `json:"mimeType"`
	Filename     string `json:"filename"`
}

// Page is one page of a listing. NextPageToken is opaque and empty on the last page.
type Page struct {
	Items         []MediaItem
	NextPageToken string
}

// Content is a fetched binary body.
type Content struct {
	Data        []byte
	ContentType string
}

// Provider is the capability surface every photo source implements.
type Provider interface {
	ID() string
	ListImages(ctx context.Context, ref, pageToken string, pageSize int) (*Page, error)
	GetFile(ctx context.Context, id string) (*MediaItem, error)
	// GetFolderName is best-effort; sources without folders return ref.
	GetFolderName(ctx context.Context, ref string) (string, error)
	FetchContent(ctx context.Context, item MediaItem) (*Content, error)
}

// ThumbnailFetcher is implemented by sources whose thumbnails need auth or
// are blocked cross-origin, so the API serves them through the image proxy.
type ThumbnailFetcher interface {
	FetchThumbnail(ctx context.Context, id, thumbnailURL string, size int) (*Content, error)
}

// TokenSource hands out bearer tokens for OAuth-backed providers.
type TokenSource interface {
	GetAccessToken(ctx context.Context, provider string) (string, error)
}

// Registry resolves provider IDs to adapters.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

func (r *Registry) Register(p Provider) {
	if p == nil {
		return
	}
	r.providers[strings.ToLower(p.ID())] = p
}

// Get returns the adapter for id, or a validation error for unknown IDs.
func (r *Registry) Get(id string) (Provider, error) {
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return nil, apperr.Validation(fmt.Sprintf("unknown provider %q", id))
	}
	return p, nil
}

// IDs returns registered provider IDs in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
