// Package filestack lists images stored in Filestack using an API key passed as a query parameter.
package filestack

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/pysugar/photopick/internal/apperr"
	"github.com/pysugar/photopick/internal/upstream"
)

const (
	ProviderID     = "filestack"
	defaultBaseURL = "https://www.filestackapi.com/api"
	defaultCDNURL  = "https://cdn.filestackcontent.com"
	defaultTimeout = 30 * time.Second
	thumbTransform = "resize=width:400,height:400,fit:clip"
)

var (
	itemListKeys = []string{"files", "items", "results"}
	mimeKeys     = []string{"mimetype", "mime_type", "type"}
	idKeys       = []string{"handle", "url", "id", "_id"}
	nameKeys     = []string{"filename", "name"}
	nextPageKeys = []string{"next_cursor", "cursor", "pagination.next", "next_page_token"}
	folderKeys   = []string{"name", "folder_name", "title"}
)

type Provider struct {
	apiKey     string
	baseURL    string
	cdnURL     string
	httpClient *http.Client
}

// NewProvider creates a Provider with explicit configuration.
func NewProvider(apiKey, baseURL, cdnURL string, timeout time.Duration) *Provider {
	return NewProviderWithClient(apiKey, baseURL, cdnURL, timeout, nil)
}

// NewProviderWithClient creates a Provider with optional custom HTTP client.
func NewProviderWithClient(apiKey, baseURL, cdnURL string, timeout time.Duration, httpClient *http.Client) *Provider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if strings.TrimSpace(cdnURL) == "" {
		cdnURL = defaultCDNURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Provider{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		cdnURL:     strings.TrimRight(strings.TrimSpace(cdnURL), "/"),
		httpClient: httpClient,
	}
}

// IsEnabled indicates whether provider has an API key.
func (p *Provider) IsEnabled() bool {
	return p != nil && p.apiKey != ""
}

func (p *Provider) ID() string { return ProviderID }

func (p *Provider) ListImages(ctx context.Context, ref, pageToken string, pageSize int) (*upstream.Page, error) {
	q := url.Values{"mimetype": {"image/*"}}
	if pageSize > 0 {
		q.Set("limit", strconv.Itoa(pageSize))
	}
	if ref = strings.TrimSpace(ref); ref != "" {
		q.Set("path", ref)
	}
	if pageToken != "" {
		q.Set("cursor", pageToken)
	}

	body, err := p.getFields(ctx, "/store/list", q, "folder")
	if err != nil {
		return nil, err
	}

	entries := body.List(itemListKeys...)
	page := &upstream.Page{Items: make([]upstream.MediaItem, 0, len(entries)), NextPageToken: body.String(nextPageKeys...)}
	for _, entry := range entries {
		if mime := entry.String(mimeKeys...); mime != "" && !upstream.IsImage(mime) {
			continue
		}
		if item, ok := p.toMediaItem(entry, ""); ok {
			page.Items = append(page.Items, item)
		}
	}
	return page, nil
}

func (p *Provider) GetFile(ctx context.Context, id string) (*upstream.MediaItem, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("file handle is required")
	}
	body, err := p.getFields(ctx, "/store/metadata", url.Values{"handle": {id}}, "file")
	if err != nil {
		return nil, err
	}
	item, _ := p.toMediaItem(body, id)
	return &item, nil
}

// GetFolderName never fails; any lookup problem yields ref.
func (p *Provider) GetFolderName(ctx context.Context, ref string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(ref), "/")
	if trimmed == "" {
		return ref, nil
	}
	if strings.Contains(trimmed, "/") {
		return path.Base(trimmed), nil
	}
	body, err := p.getFields(ctx, "/store/metadata", url.Values{"path": {ref}}, "folder")
	if err != nil {
		return ref, nil
	}
	if name := body.String(folderKeys...); name != "" {
		return name, nil
	}
	return ref, nil
}

func (p *Provider) FetchContent(ctx context.Context, item upstream.MediaItem) (*upstream.Content, error) {
	target := item.DisplayURL
	if target == "" {
		target = p.cdnURL + "/" + url.PathEscape(item.ID)
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
	if err := upstream.CheckResponse(ProviderID, resp, "file"); err != nil {
		return nil, err
	}
	return upstream.ReadContent(ProviderID, resp, item.MimeType)
}

func (p *Provider) getFields(ctx context.Context, endpoint string, q url.Values, what string) (upstream.Fields, error) {
	if !p.IsEnabled() {
		return nil, apperr.Auth(ProviderID, "api key not configured", 0)
	}
	q.Set("key", p.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
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

func (p *Provider) toMediaItem(f upstream.Fields, fallbackID string) (upstream.MediaItem, bool) {
	id := f.String(idKeys...)
	if id == "" {
		id = fallbackID
	}
	if id == "" {
		return upstream.MediaItem{}, false
	}
	handle := f.String("handle")
	if handle == "" {
		handle = id
	}
	display := f.String("url")
	if display == "" {
		display = p.cdnURL + "/" + handle
	}
	name := f.String(nameKeys...)
	if name == "" {
		name = "image-" + id
	}
	return upstream.MediaItem{
		ID:           id,
		DisplayURL:   display,
		ThumbnailURL: p.cdnURL + "/" + thumbTransform + "/" + handle,
		MimeType:     f.String(mimeKeys...),
		Filename:     name,
	}, true
}
