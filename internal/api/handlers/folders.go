package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pysugar/photopick/internal/apperr"
	"github.com/pysugar/photopick/internal/db/models"
	"github.com/pysugar/photopick/internal/upstream/googledrive"
)

// FolderInfo serves GET /folders/info.
func (a *API) FolderInfo(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	providerID := q.Get("provider")
	if providerID == "" {
		providerID = googledrive.ProviderID
	}
	folderID := strings.TrimSpace(q.Get("folderId"))
	if err := validateFolderID(providerID, folderID); err != nil {
		a.writeError(w, r, err)
		return
	}

	p, err := a.provider(providerID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	name, err := p.GetFolderName(r.Context(), folderID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"folderId": folderID, "folderName": name})
}

func validateFolderID(providerID, folderID string) error {
	if folderID == "" {
		return apperr.Validation("folderId is required")
	}
	if strings.EqualFold(providerID, googledrive.ProviderID) && !googledrive.IsValidFolderID(folderID) {
		return apperr.Validation("invalid folder id")
	}
	return nil
}

// PublicFolders serves GET /folders.
func (a *API) PublicFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := a.folders.List(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if folders == nil {
		folders = []models.SourceFolder{}
	}
	writeJSON(w, http.StatusOK, folders)
}

type addFolderRequest struct {
	URL      string `json:"url" validate:"required_without=FolderID"`
	FolderID string `json:"folderId"`
	Provider string `json:"provider"`
}

// AddFolder serves POST /admin/folders. The input may be a sharing URL or a bare ID.
func (a *API) AddFolder(w http.ResponseWriter, r *http.Request) {
	var req addFolderRequest
	if err := a.decodeBody(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	providerID := strings.ToLower(strings.TrimSpace(req.Provider))
	if providerID == "" {
		providerID = googledrive.ProviderID
	}
	p, err := a.provider(providerID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	input := req.FolderID
	if input == "" {
		input = req.URL
	}
	folderID := strings.TrimSpace(input)
	link := "/" + p.ID() + "/" + folderID
	if p.ID() == googledrive.ProviderID {
		id, ok := googledrive.ExtractFolderID(input)
		if !ok {
			a.writeError(w, r, apperr.Validation("could not extract a folder id"))
			return
		}
		folderID = id
		link = googledrive.FolderLink(id)
	}
	if err := validateFolderID(p.ID(), folderID); err != nil {
		a.writeError(w, r, err)
		return
	}

	name, err := p.GetFolderName(r.Context(), folderID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	folder := &models.SourceFolder{FolderID: folderID, Provider: p.ID(), Name: name, Link: link}
	if err := a.folders.Upsert(r.Context(), folder); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, folder)
}

// DeleteFolder serves DELETE /admin/folders/{id}.
func (a *API) DeleteFolder(w http.ResponseWriter, r *http.Request) {
	if err := a.folders.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
