// Package googledrive lists and downloads images from a Google Drive folder
// using the stored OAuth credential of the "googledrive" token provider.
package googledrive

import (
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
	ProviderID            = "googledrive"
	defaultBaseURL        = "https://www.googleapis.com/drive/v3"
	defaultTimeout        = 30 * time.Second
	defaultThumbTimeout   = 8 * time.Second
	unknownFolderName     = "Unknown Folder"
	defaultImageMimeType  = "image/jpeg"
	fileFields            = "id,name,mimeType,thumbnailLink,webContentLink,webViewLink"
	listFields            = "nextPageToken,files(" + fileFields + ")"
	fallbackThumbTemplate = "https://drive.google.com/thumbnail?id=%s&sz=w400-h400"
)

type file struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	MimeType       string `json:"mimeType"`
	ThumbnailLink  string `json:"thumbnailLink"`
	WebContentLink string `json:"webContentLink"`
	WebViewLink    string `json:"webViewLink"`
}

type fileList struct {
	NextPageToken string `json:"nextPageToken"`
	Files         []file `json:"files"`
}

// Provider talks to the Drive v3 REST API.
type Provider struct {
	baseURL      string
	tokens       upstream.TokenSource
	httpClient   *http.Client
	thumbTimeout time.Duration
}

// NewProvider creates a Provider with explicit configuration.
func NewProvider(tokens upstream.TokenSource, baseURL string, timeout time.Duration) *Provider {
	return NewProviderWithClient(tokens, baseURL, timeout, nil)
}

// NewProviderWithClient creates a Provider with optional custom HTTP client.
func NewProviderWithClient(tokens upstream.TokenSource, baseURL string, timeout time.Duration, httpClient *http.Client) *Provider {
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
		baseURL:      strings.TrimRight(trimmed, "/"),
		tokens:       tokens,
		httpClient:   httpClient,
		thumbTimeout: defaultThumbTimeout,
	}
}

// SetThumbnailTimeout overrides the per-candidate thumbnail deadline.
func (p *Provider) SetThumbnailTimeout(d time.Duration) {
	if d > 0 {
		p.thumbTimeout = d
	}
}

func (p *Provider) ID() string { return ProviderID }

func (p *Provider) ListImages(ctx context.Context, ref, pageToken string, pageSize int) (*upstream.Page, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, apperr.Validation("folderId is required")
	}
	// ref is embedded in a Drive query string; anything but an ID is rejected.
	if !bareID.MatchString(ref) {
		return nil, apperr.Validation("invalid folder id")
	}

	q := url.Values{}
	q.Set("q", fmt.Sprintf("'%s' in parents and mimeType contains 'image/' and trashed=false", quoteEscaper.Replace(ref)))
	q.Set("fields", listFields)
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	var out fileList
	if err := p.getJSON(ctx, p.baseURL+"/files?"+q.Encode(), "folder", &out); err != nil {
		return nil, err
	}

	page := &upstream.Page{Items: make([]upstream.MediaItem, 0, len(out.Files)), NextPageToken: out.NextPageToken}
	for _, f := range out.Files {
		page.Items = append(page.Items, toMediaItem(f))
	}
	return page, nil
}

func (p *Provider) GetFile(ctx context.Context, id string) (*upstream.MediaItem, error) {
	var f file
	if err := p.getJSON(ctx, p.fileURL(id, url.Values{"fields": {fileFields}}), "file", &f); err != nil {
		return nil, err
	}
	item := toMediaItem(f)
	return &item, nil
}

func (p *Provider) GetFolderName(ctx context.Context, ref string) (string, error) {
	var f file
	if err := p.getJSON(ctx, p.fileURL(ref, url.Values{"fields": {"name"}}), "folder", &f); err != nil {
		return "", err
	}
	if f.Name == "" {
		return unknownFolderName, nil
	}
	return f.Name, nil
}

func (p *Provider) FetchContent(ctx context.Context, item upstream.MediaItem) (*upstream.Content, error) {
	token, err := p.tokens.GetAccessToken(ctx, ProviderID)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.fileURL(item.ID, url.Values{"alt": {"media"}}), nil)
	if err != nil {
		return nil, err
	}
	upstream.SetBearer(req, token)

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

// FetchThumbnail tries the CDN URL (anonymous, then authenticated), the Drive
// thumbnail endpoint and finally the metadata thumbnailLink.
func (p *Provider) FetchThumbnail(ctx context.Context, id, thumbnailURL string, size int) (*upstream.Content, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation("fileId is required")
	}

	var lastErr error
	if isCDNURL(thumbnailURL) {
		sized := resizeThumbnailLink(thumbnailURL, size)
		for _, withAuth := range []bool{false, true} {
			content, err := p.fetchCandidate(ctx, sized, withAuth)
			if err == nil {
				return content, nil
			}
			lastErr = err
		}
	}

	endpoint := p.baseURL + "/files/" + url.PathEscape(id) + "/thumbnail?sz=w" + strconv.Itoa(size)
	content, err := p.fetchCandidate(ctx, endpoint, true)
	if err == nil {
		return content, nil
	}
	lastErr = err

	link, err := p.thumbnailLink(ctx, id)
	if err != nil {
		return nil, err
	}
	if link == "" {
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, apperr.NotFound(ProviderID, "thumbnail not found")
	}
	return p.fetchCandidate(ctx, resizeThumbnailLink(link, size), true)
}

func (p *Provider) thumbnailLink(ctx context.Context, id string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.thumbTimeout)
	defer cancel()

	var f file
	if err := p.getJSON(ctx, p.fileURL(id, url.Values{"fields": {"thumbnailLink"}}), "file", &f); err != nil {
		return "", err
	}
	return f.ThumbnailLink, nil
}

func (p *Provider) fetchCandidate(ctx context.Context, target string, withAuth bool) (*upstream.Content, error) {
	ctx, cancel := context.WithTimeout(ctx, p.thumbTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if withAuth {
		token, err := p.tokens.GetAccessToken(ctx, ProviderID)
		if err != nil {
			return nil, err
		}
		upstream.SetBearer(req, token)
	}

	resp, err := upstream.Do(p.httpClient, ProviderID, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := upstream.CheckResponse(ProviderID, resp, "thumbnail"); err != nil {
		return nil, err
	}
	return upstream.ReadContent(ProviderID, resp, defaultImageMimeType)
}

func (p *Provider) getJSON(ctx context.Context, target, what string, v any) error {
	token, err := p.tokens.GetAccessToken(ctx, ProviderID)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	upstream.SetBearer(req, token)
	req.Header.Set("Accept", "application/json")

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

func (p *Provider) fileURL(id string, q url.Values) string {
	return p.baseURL + "/files/" + url.PathEscape(id) + "?" + q.Encode()
}

func toMediaItem(f file) upstream.MediaItem {
	thumb := f.ThumbnailLink
	if thumb == "" {
		thumb = fmt.Sprintf(fallbackThumbTemplate, url.QueryEscape(f.ID))
	}
	display := f.WebContentLink
	if display == "" {
		display = f.WebViewLink
	}
	mime := f.MimeType
	if mime == "" {
		mime = defaultImageMimeType
	}
	return upstream.MediaItem{
		ID:           f.ID,
		DisplayURL:   display,
		ThumbnailURL: thumb,
		MimeType:     mime,
		Filename:     f.Name,
	}
}

func isCDNURL(raw string) bool {
	return upstream.IsGoogleMediaURL(raw)
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

var sizeSuffix = regexp.MustCompile(`=s\d+(-[a-z0-9-]+)?$`)

// resizeThumbnailLink rewrites the trailing "=s<N>" size directive of a Drive
// thumbnail link, or appends one when absent.
func resizeThumbnailLink(link string, size int) string {
	if size <= 0 {
		return link
	}
	directive := "=s" + strconv.Itoa(size)
	if sizeSuffix.MatchString(link) {
		return sizeSuffix.ReplaceAllString(link, directive)
	}
	if strings.Contains(link, "?") {
		return link
	}
	return link + directive
}
