// Package photospicker reads images a visitor selected through a Google
// Photos Picker session.
package photospicker

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pysugar/photopick/internal/apperr"
	"github.com/pysugar/photopick/internal/upstream"
)

const (
	ProviderID        = "googlephotos"
	defaultBaseURL    = "https://photospicker.googleapis.com/v1"
	defaultLibraryURL = "https://photoslibrary.googleapis.com/v1"
	defaultTimeout    = 30 * time.Second
	listThumbSize     = 400
)

// Session is a picker session the visitor completes in the Google UI.
type Session struct {
	ID        string `json:"id"`
	PickerURI string `json:"pickerUri"`
}

type mediaFile struct {
	BaseURL  string `json:"baseUrl"`
	MimeType string `json:"mimeType"`
	Filename string `json:"filename"`
}

type pickedItem struct {
	ID        string    `json:"id"`
	MediaFile mediaFile `json:"mediaFile"`
}

type pickedList struct {
	MediaItems    []pickedItem `json:"mediaItems"`
	NextPageToken string       `json:"nextPageToken"`
}

type libraryItem struct {
	ID       string `json:"id"`
	BaseURL  string `json:"baseUrl"`
	MimeType string `json:"mimeType"`
	Filename string `json:"filename"`
}

type Provider struct {
	baseURL    string
	libraryURL string
	tokens     upstream.TokenSource
	httpClient *http.Client
}

// NewProvider creates a Provider with explicit configuration.
func NewProvider(tokens upstream.TokenSource, baseURL, libraryURL string, timeout time.Duration) *Provider {
	return NewProviderWithClient(tokens, baseURL, libraryURL, timeout, nil)
}

// NewProviderWithClient creates a Provider with optional custom HTTP client.
func NewProviderWithClient(tokens upstream.TokenSource, baseURL, libraryURL string, timeout time.Duration, httpClient *http.Client) *Provider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if strings.TrimSpace(libraryURL) == "" {
		libraryURL = defaultLibraryURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Provider{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		libraryURL: strings.TrimRight(strings.TrimSpace(libraryURL), "/"),
		tokens:     tokens,
		httpClient: httpClient,
	}
}

func (p *Provider) ID() string { return ProviderID }

// CreateSession starts a new picker session.
func (p *Provider) CreateSession(ctx context.Context) (*Session, error) {
	var s Session
	if err := p.doJSON(ctx, http.MethodPost, p.baseURL+"/sessions", []byte("{}"), "session", &s); err != nil {
		return nil, err
	}
	if s.ID == "" {
		return nil, apperr.Upstream(ProviderID, "session response missing id", http.StatusOK)
	}
	return &s, nil
}

// ListImages lists the images picked in session ref.
func (p *Provider) ListImages(ctx context.Context, ref, pageToken string, pageSize int) (*upstream.Page, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, apperr.Validation("picker session id is required")
	}
	q := url.Values{"sessionId": {ref}}
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	var out pickedList
	if err := p.doJSON(ctx, http.MethodGet, p.baseURL+"/mediaItems?"+q.Encode(), nil, "picker session", &out); err != nil {
		return nil, err
	}

	page := &upstream.Page{Items: make([]upstream.MediaItem, 0, len(out.MediaItems)), NextPageToken: out.NextPageToken}
	for _, it := range out.MediaItems {
		if !upstream.IsImage(it.MediaFile.MimeType) {
			continue
		}
		page.Items = append(page.Items, toMediaItem(it.ID, it.MediaFile.BaseURL, it.MediaFile.MimeType, it.MediaFile.Filename))
	}
	return page, nil
}

func (p *Provider) GetFile(ctx context.Context, id string) (*upstream.MediaItem, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("photo id is required")
	}
	var it libraryItem
	if err := p.doJSON(ctx, http.MethodGet, p.libraryURL+"/mediaItems/"+url.PathEscape(id), nil, "photo", &it); err != nil {
		return nil, err
	}
	if it.ID == "" {
		it.ID = id
	}
	item := toMediaItem(it.ID, it.BaseURL, it.MimeType, it.Filename)
	return &item, nil
}

// GetFolderName returns ref; picker sessions have no folder name.
func (p *Provider) GetFolderName(_ context.Context, ref string) (string, error) {
	return ref, nil
}

func (p *Provider) FetchContent(ctx context.Context, item upstream.MediaItem) (*upstream.Content, error) {
	base, err := p.baseURLFor(ctx, item.ID, item.DisplayURL)
	if err != nil {
		return nil, err
	}
	return p.fetch(ctx, base+"=d", item.MimeType)
}

// FetchThumbnail fetches a sized rendition of id. A client-supplied
// thumbnailURL is only used when it points at Google's media CDN; anything
// else is resolved again through the Library API.
func (p *Provider) FetchThumbnail(ctx context.Context, id, thumbnailURL string, size int) (*upstream.Content, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("fileId is required")
	}
	known := stripSizing(thumbnailURL)
	if !upstream.IsGoogleMediaURL(known) {
		known = ""
	}
	base, err := p.baseURLFor(ctx, id, known)
	if err != nil {
		return nil, err
	}
	return p.fetch(ctx, base+sizing(size), "image/jpeg")
}

func (p *Provider) baseURLFor(ctx context.Context, id, known string) (string, error) {
	if known != "" {
		return known, nil
	}
	item, err := p.GetFile(ctx, id)
	if err != nil {
		return "", err
	}
	if item.DisplayURL == "" {
		return "", apperr.NotFound(ProviderID, "photo has no download url")
	}
	return item.DisplayURL, nil
}

func (p *Provider) fetch(ctx context.Context, target, fallbackType string) (*upstream.Content, error) {
	token, err := p.tokens.GetAccessToken(ctx, ProviderID)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	upstream.SetBearer(req, token)

	resp, err := upstream.Do(p.httpClient, ProviderID, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := upstream.CheckResponse(ProviderID, resp, "photo"); err != nil {
		return nil, err
	}
	return upstream.ReadContent(ProviderID, resp, fallbackType)
}

func (p *Provider) doJSON(ctx context.Context, method, target string, body []byte, what string, v any) error {
	token, err := p.tokens.GetAccessToken(ctx, ProviderID)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	upstream.SetBearer(req, token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := upstream.Do(p.httpClient, ProviderID, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := upstream.CheckResponse(ProviderID, resp, what); err != nil {
		return err
	}
	return upstream.DecodeJSON(ProviderID, resp, v)
}

func toMediaItem(id, baseURL, mimeType, filename string) upstream.MediaItem {
	thumb := ""
	if baseURL != "" {
		thumb = baseURL + sizing(listThumbSize)
	}
	return upstream.MediaItem{
		ID:           id,
		DisplayURL:   baseURL,
		ThumbnailURL: thumb,
		MimeType:     mimeType,
		Filename:     filename,
	}
}

func sizing(size int) string {
	return fmt.Sprintf("=w%d-h%d-c", size, size)
}

var sizingSuffix = regexp.MustCompile(`=(w\d+-h\d+(-c)?|d)$`)

func stripSizing(u string) string {
	return sizingSuffix.ReplaceAllString(strings.TrimSpace(u), "")
}
