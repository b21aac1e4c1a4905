package handlers

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pysugar/photopick/internal/db"
	"github.com/pysugar/photopick/internal/logging"
)

type selectionRequest struct {
	PhotoIDs   []string `json:"photoIds" validate:"required,min=1"`
	FolderID   string   `json:"folderId"`
	FolderName string   `json:"folderName"`
	Provider   string   `json:"provider"`
}

// Selection serves POST /selection.
func (a *API) Selection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := a.decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	p, err := a.provider(req.Provider)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	folderName := strings.TrimSpace(req.FolderName)
	if folderName == "" && req.FolderID != "" {
		folderName = a.lookupFolderName(r, p.GetFolderName, req.FolderID)
	}

	id, err := a.submissions.Create(r.Context(), db.NewSubmission{
		PhotoIDs:   req.PhotoIDs,
		Provider:   p.ID(),
		FolderID:   req.FolderID,
		FolderName: folderName,
		IPAddress:  clientIP(r),
		UserAgent:  userAgent(r),
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	logging.FromContext(r.Context(), a.logger).Info("selection submitted",
		zap.String("submission_id", id),
		zap.Int("photo_count", len(req.PhotoIDs)),
		zap.String("provider", p.ID()))
	writeJSON(w, http.StatusOK, map[string]string{"submissionId": id})
}

// lookupFolderName is best-effort: failures are logged and yield "".
func (a *API) lookupFolderName(r *http.Request, lookup func(context.Context, string) (string, error), folderID string) string {
	ctx, cancel := context.WithTimeout(r.Context(), a.cfg.FolderNameTimeout)
	defer cancel()

	name, err := lookup(ctx, folderID)
	if err != nil {
		logging.FromContext(r.Context(), a.logger).Warn("folder name lookup failed",
			zap.String("folder_id", folderID), zap.Error(err))
		return ""
	}
	return name
}
