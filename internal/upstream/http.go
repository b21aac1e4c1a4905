package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/pysugar/photopick/internal/apperr"
	"github.com/pysugar/photopick/internal/util"
)

// MaxContentBytes bounds a single downloaded file.
const MaxContentBytes = 64 << 20

// Do sends req and classifies transport failures. Deadline errors become Timeout.
func Do(client *http.Client, provider string, req *http.Request) (*http.Response, error) {
	resp, err := client.Do(req)
	if err == nil {
		return resp, nil
	}
	if isTimeout(err) {
		return nil, apperr.Timeout(provider, err)
	}
	if errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("%s request cancelled: %w", provider, err)
	}
	return nil, &apperr.Error{Kind: apperr.KindUpstream, Provider: provider, Message: "request failed", Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// CheckResponse maps a non-2xx response onto the error taxonomy:
// 404 is NotFound, 401/403 is Auth, anything else is Upstream.
func CheckResponse(provider string, resp *http.Response, what string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := strings.TrimSpace(util.ErrorDetail(body))

	switch resp.StatusCode {
	case http.StatusNotFound:
		return apperr.NotFound(provider, what+" not found")
	case http.StatusUnauthorized, http.StatusForbidden:
		msg := "credentials rejected"
		if detail != "" {
			msg += ": " + detail
		}
		return apperr.Auth(provider, msg, resp.StatusCode)
	default:
		msg := fmt.Sprintf("unexpected status %d", resp.StatusCode)
		if detail != "" {
			msg += ": " + detail
		}
		return apperr.Upstream(provider, msg, resp.StatusCode)
	}
}

// DecodeJSON decodes a successful response body.
func DecodeJSON(provider string, resp *http.Response, v any) error {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &apperr.Error{Kind: apperr.KindUpstream, Provider: provider, Message: "malformed response", Err: err}
	}
	return nil
}

// ReadContent reads a binary body up to MaxContentBytes.
func ReadContent(provider string, resp *http.Response, fallbackType string) (*Content, error) {
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxContentBytes+1))
	if err != nil {
		if isTimeout(err) {
			return nil, apperr.Timeout(provider, err)
		}
		return nil, &apperr.Error{Kind: apperr.KindUpstream, Provider: provider, Message: "read body", Err: err}
	}
	if len(data) > MaxContentBytes {
		return nil, apperr.Upstream(provider, "file exceeds size limit", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || strings.HasPrefix(contentType, "application/octet-stream") {
		if fallbackType != "" {
			contentType = fallbackType
		} else {
			contentType = http.DetectContentType(data)
		}
	}
	return &Content{Data: data, ContentType: contentType}, nil
}

// SetBearer sets an Authorization bearer header.
func SetBearer(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
}
