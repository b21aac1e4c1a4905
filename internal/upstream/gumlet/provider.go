// Package gumlet lists images from a Gumlet asset library using a server-side API key.
package gumlet

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pysugar/photopick/internal/apperr"
	"github.com/pysugar/photopick/internal/upstream"
)

const (
	ProviderID     = "gumlet"
	defaultBaseURL = "https://api.gumlet.com"
	defaultTimeout = 30 * time.Second
)

// Response field names vary across API versions; keys are listed in priority order.
var (
	itemListKeys  = []string{"assets", "items", "results"}
	mimeKeys      = []string{"mime_type", "mimeType", "content_type"}
	idKeys        = []string{"id", "asset_id", "_id"}
	nameKeys      = []string{"name", "filename", "title"}
	urlKeys       = []string{"url", "source_url", "original_url"}
	thumbKeys     = []string{"thumbnail_url", "thumbnail"}
	nextPageKeys  = []string{"next_cursor", "next_page_token", "pagination.next", "next_cursor_token"}
	folderNameKey = []string{"name", "folder_name", "title"}
)

type Provider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewProvider creates a Provider with explicit configuration.
func NewProvider(apiKey, baseURL string, timeout time.Duration) *Provider {
	return NewProviderWithClient(apiKey, baseURL, timeout, nil)
}

// NewProviderWithClient creates a Provider with optional custom HTTP client.
func NewProviderWithClient(apiKey, baseURL string, timeout time.Duration, httpClient *http.Client) *Provider {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		trimmed = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Provider{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: httpClient,
	}
}

// IsEnabled indicates whether provider has an API key.
func (p *Provider) IsEnabled() bool {
	return p != nil && p.apiKey != ""
}

func (p *Provider) ID() string { return ProviderID }

func (p *Provider) ListImages(ctx context.Context, ref, pageToken string, pageSize int) (*upstream.Page, error) {
	q := url.Values{}
	if pageSize > 0 {
		q.Set("limit", strconv.Itoa(pageSize))
	}
	if ref = strings.TrimSpace(ref); ref != "" {
		q.Set("folder_id", ref)
	}
	if pageToken != "" {
		q.Set("cursor", pageToken)
	}

	body, err := p.getFields(ctx, p.baseURL+"/v1/assets?"+q.Encode(), "folder")
	if err != nil {
		return nil, err
	}

	entries := body.List(itemListKeys...)
	page := &upstream.Page{Items: make([]upstream.MediaItem, 0, len(entries)), NextPageToken: body.String(nextPageKeys...)}
	for _, entry := range entries {
		if !upstream.IsImage(entry.String(mimeKeys...)) {
			continue
		}
		if item, ok := toMediaItem(entry); ok {
			page.Items = append(page.Items, item)
		}
	}
	return page, nil
}

func (p *Provider) GetFile(ctx context.Context, id string) (*upstream.MediaItem, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("asset id is required")
	}
	body, err := p.getFields(ctx, p.baseURL+"/v1/assets/"+url.PathEscape(id), "asset")
	if err != nil {
		return nil, err
	}
	// Single-asset responses may omit the id; the requested one stands in.
	if body.String(idKeys...) == "" {
		if body == nil {
			body = upstream.Fields{}
		}
		body["id"] = id
	}
	item, _ := toMediaItem(body)
	return &item, nil
}

// GetFolderName falls back to ref when the folder has no readable name.
func (p *Provider) GetFolderName(ctx context.Context, ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", apperr.Validation("folder id is required")
	}
	body, err := p.getFields(ctx, p.baseURL+"/v1/folders/"+url.PathEscape(ref), "folder")
	if err != nil {
		return "", err
	}
	if name := body.String(folderNameKey...); name != "" {
		return name, nil
	}
	return ref, nil
}

func (p *Provider) FetchContent(ctx context.Context, item upstream.MediaItem) (*upstream.Content, error) {
	target := item.DisplayURL
	if target == "" {
		resolved, err := p.GetFile(ctx, item.ID)
		if err != nil {
			return nil, err
		}
		target = resolved.DisplayURL
	}
	if target == "" {
		return nil, apperr.NotFound(ProviderID, "asset has no source url")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := upstream.Do(p.httpClient, ProviderID, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := upstream.CheckResponse(ProviderID, resp, "asset"); err != nil {
		return nil, err
	}
	return upstream.ReadContent(ProviderID, resp, item.MimeType)
}

func (p *Provider) getFields(ctx context.Context, target, what string) (upstream.Fields, error) {
	if !p.IsEnabled() {
		return nil, apperr.Auth(ProviderID, "api key not configured", 0)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	upstream.SetBearer(req, p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := upstream.Do(p.httpClient, ProviderID, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := upstream.CheckResponse(ProviderID, resp, what); err != nil {
		return nil, err
	}
	var body upstream.Fields
	if err := upstream.DecodeJSON(ProviderID, resp, &body); err != nil {
		return nil, err
	}
	return body, nil
}

func toMediaItem(f upstream.Fields) (upstream.MediaItem, bool) {
	id := f.String(idKeys...)
	if id == "" {
		return upstream.MediaItem{}, false
	}
	name := f.String(nameKeys...)
	if name == "" {
		name = "image-" + id
	}
	display := f.String(urlKeys...)
	thumb := f.String(thumbKeys...)
	if thumb == "" && display != "" {
		thumb = strings.Replace(display, "/upload/", "/upload/w_400,h_400,c_fill/", 1)
	}
	return upstream.MediaItem{
		ID:           id,
		DisplayURL:   display,
		ThumbnailURL: thumb,
		MimeType:     f.String(mimeKeys...),
		Filename:     name,
	}, true
}
