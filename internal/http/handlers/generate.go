package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"bargen/internal/generate"
	"bargen/internal/validate"
)

const sessionHeader = "X-Session-ID"

type generateRequest struct {
	Symbology string           `json:"symbology"`
	Data      string           `json:"data"`
	Format    string           `json:"format"`
	Options   validate.Options `json:"options"`
}

type snapshotResponse struct {
	State            string `json:"state"`
	Symbology        string `json:"symbology,omitempty"`
	Format           string `json:"format,omitempty"`
	ImageURL         string `json:"image_url,omitempty"`
	CopyPayload      string `json:"copy_payload,omitempty"`
	DownloadFilename string `json:"download_filename,omitempty"`
	Message          string `json:"message,omitempty"`
	ValidationReason string `json:"validation_reason,omitempty"`
	RetryAfter       string `json:"retry_after,omitempty"`
}

func snapshotToResponse(snap generate.Snapshot) snapshotResponse {
	resp := snapshotResponse{
		State:      string(snap.State),
		Message:    snap.Message,
		RetryAfter: snap.RetryAfter,
	}
	if snap.Request.Symbology != "" {
		resp.Symbology = string(snap.Request.Symbology)
		resp.Format = string(snap.Request.Format)
	}
	if snap.ValidationErr != nil {
		resp.ValidationReason = string(snap.ValidationErr.Reason)
	}
	if snap.State == generate.StateSuccess && snap.Artifact != nil {
		resp.ImageURL = snap.Artifact.URL
		resp.CopyPayload = snap.CopyPayload()
		name, _ := snap.DownloadPayload()
		resp.DownloadFilename = name
	}
	return resp
}

// Generate submits a candidate request on the caller's session. A second
// submit on the same session supersedes the in-flight one; the in-flight
// result is discarded when it arrives. Responds 202 while the dispatch is
// pending and 422 when validation rejected the candidate without any
// network call.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}

	orch, sid := a.Sessions.Get(r.Header.Get(sessionHeader))
	w.Header().Set(sessionHeader, sid)

	// Dispatch outlives this request; polling happens on GET.
	snap := orch.Submit(context.WithoutCancel(r.Context()), generate.Candidate{
		Symbology: req.Symbology,
		Data:      req.Data,
		Format:    req.Format,
		Options:   req.Options,
	})

	if snap.ValidationErr != nil {
		a.json(w, http.StatusUnprocessableEntity, snapshotToResponse(snap))
		return
	}
	a.json(w, http.StatusAccepted, snapshotToResponse(snap))
}

// GenerateState returns the current lifecycle snapshot for the session.
func (a *App) GenerateState(w http.ResponseWriter, r *http.Request) {
	orch, sid := a.Sessions.Get(r.Header.Get(sessionHeader))
	w.Header().Set(sessionHeader, sid)
	a.json(w, http.StatusOK, snapshotToResponse(orch.Snapshot()))
}

// GenerateDownload serves the artifact bytes of a successful generation with
// a download disposition.
func (a *App) GenerateDownload(w http.ResponseWriter, r *http.Request) {
	orch, sid := a.Sessions.Get(r.Header.Get(sessionHeader))
	w.Header().Set(sessionHeader, sid)

	snap := orch.Snapshot()
	name, data := snap.DownloadPayload()
	if data == nil {
		a.error(w, http.StatusConflict, "not_ready", "no successful generation to download")
		return
	}
	w.Header().Set("Content-Type", snap.Artifact.MIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
