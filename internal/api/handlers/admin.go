package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pysugar/photopick/internal/apperr"
	"github.com/pysugar/photopick/internal/db"
	"github.com/pysugar/photopick/internal/logging"
	"github.com/pysugar/photopick/internal/upstream/photospicker"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login serves POST /admin/login.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := a.decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	ok, err := a.sessions.Login(w, r, req.Username, req.Password)
	if err != nil {
		a.writeError(w, r, fmt.Errorf("save admin session: %w", err))
		return
	}
	if !ok {
		logging.FromContext(r.Context(), a.logger).Warn("admin login rejected", zap.String("ip", clientIP(r)))
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Logout serves POST /admin/logout.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.Logout(w, r); err != nil {
		a.writeError(w, r, fmt.Errorf("clear admin session: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type submissionSummary struct {
	SubmissionID string    `json:"submissionId"`
	PhotoIDs     []string  `json:"photoIds"`
	PhotoCount   int       `json:"photoCount"`
	SubmittedAt  time.Time `json:"submittedAt"`
	Provider     string    `json:"provider"`
	FolderID     string    `json:"folderId,omitempty"`
	FolderName   string    `json:"folderName,omitempty"`
	IPAddress    string    `json:"ipAddress,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
}

// Submissions serves GET /admin/submissions.
func (a *API) Submissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDate(q.Get("dateFrom"), false)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	to, err := parseDate(q.Get("dateTo"), true)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	subs, err := a.submissions.Query(r.Context(), db.SubmissionFilter{
		DateFrom:     from,
		DateTo:       to,
		SubmissionID: strings.TrimSpace(q.Get("submissionId")),
		FolderID:     strings.TrimSpace(q.Get("folderId")),
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	out := make([]submissionSummary, 0, len(subs))
	for _, s := range subs {
		out = append(out, submissionSummary{
			SubmissionID: s.SubmissionID,
			PhotoIDs:     s.SelectedPhotoIDs,
			PhotoCount:   s.PhotoCount(),
			SubmittedAt:  s.SubmittedAt,
			Provider:     s.Provider,
			FolderID:     s.FolderID,
			FolderName:   s.FolderName,
			IPAddress:    s.IPAddress,
			UserAgent:    s.UserAgent,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// parseDate accepts RFC3339 or YYYY-MM-DD. A bare date used as an upper
// bound covers the whole day.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, apperr.Validation(fmt.Sprintf("invalid date %q", raw))
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

// AdminPhotos serves GET /admin/photos.
func (a *API) AdminPhotos(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ids := splitIDs(q.Get("photoIds"))
	if len(ids) == 0 {
		a.writeError(w, r, apperr.Validation("photoIds is required"))
		return
	}
	p, err := a.provider(q.Get("provider"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	items := a.exporter.ResolveMany(r.Context(), p, ids)
	writeJSON(w, http.StatusOK, map[string]interface{}{"photos": a.views(p, items)})
}

// Download serves GET /admin/download.
func (a *API) Download(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if subID := strings.TrimSpace(q.Get("submissionId")); subID != "" {
		a.downloadSubmission(w, r, subID)
		return
	}

	ids := splitIDs(q.Get("photoIds"))
	if len(ids) == 0 {
		a.writeError(w, r, apperr.Validation("photoIds or submissionId is required"))
		return
	}
	p, err := a.provider(q.Get("provider"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	if len(ids) == 1 {
		file, err := a.exporter.Download(r.Context(), p, ids[0])
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeAttachment(w, file.Name, file.ContentType, file.Data)
		return
	}

	archive, err := a.exporter.ExportArchive(r.Context(), p, ids)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("X-Skipped-Photos", strconv.Itoa(len(archive.Skipped)))
	writeAttachment(w, fmt.Sprintf("photos_%d.zip", a.now().UnixMilli()), "application/zip", archive.Data)
}

func (a *API) downloadSubmission(w http.ResponseWriter, r *http.Request, subID string) {
	sub, err := a.submissions.Get(r.Context(), subID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if sub.PhotoCount() == 0 {
		a.writeError(w, r, apperr.Validation("submission has no photos"))
		return
	}
	p, err := a.provider(sub.Provider)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	archive, err := a.exporter.ExportArchive(r.Context(), p, sub.SelectedPhotoIDs)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	w.Header().Set("X-Skipped-Photos", strconv.Itoa(len(archive.Skipped)))
	writeAttachment(w, fmt.Sprintf("submission_%s_photos.zip", sub.SubmissionID), "application/zip", archive.Data)
}

func writeAttachment(w http.ResponseWriter, name, contentType string, data []byte) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// ClearTokens serves POST /admin/clear-tokens.
func (a *API) ClearTokens(w http.ResponseWriter, r *http.Request) {
	n, err := a.tokens.Clear(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	logging.FromContext(r.Context(), a.logger).Info("stored tokens cleared", zap.Int64("deleted", n))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"message":      fmt.Sprintf("Cleared %d stored token(s)", n),
		"deletedCount": n,
	})
}

// PickerToken serves GET /admin/picker/token. Missing or rejected credentials
// answer 401 so the admin UI can send the user through sign-in.
func (a *API) PickerToken(w http.ResponseWriter, r *http.Request) {
	tok, err := a.tokens.GetAccessToken(r.Context(), photospicker.ProviderID)
	if err != nil {
		if apperr.NeedsAuth(err) {
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
				"error":     apperr.Message(err),
				"needsAuth": true,
			})
			return
		}
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"accessToken":  tok,
		"developerKey": a.cfg.DeveloperKey,
	})
}

// TokenStatuses serves GET /admin/tokens.
func (a *API) TokenStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := a.tokens.Statuses(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

type sessionCreator interface {
	CreateSession(ctx context.Context) (*photospicker.Session, error)
}

// PickerSession serves POST /picker/sessions.
func (a *API) PickerSession(w http.ResponseWriter, r *http.Request) {
	p, err := a.providers.Get(photospicker.ProviderID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	creator, ok := p.(sessionCreator)
	if !ok {
		a.writeError(w, r, apperr.Validation("provider does not support picker sessions"))
		return
	}
	s, err := creator.CreateSession(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sessionId": s.ID, "pickerUri": s.PickerURI})
}
