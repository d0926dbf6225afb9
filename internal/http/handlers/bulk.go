package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bargen/internal/bulk"
	"bargen/internal/validate"
)

type bulkRowMarker struct {
	Line     int    `json:"line"`
	Data     string `json:"data"`
	Filename string `json:"filename,omitempty"`
	Valid    bool   `json:"valid"`
	Error    string `json:"error,omitempty"`
}

type bulkUploadResponse struct {
	BatchID string          `json:"batch_id"`
	Rows    []bulkRowMarker `json:"rows"`
	Valid   int             `json:"valid"`
	Total   int             `json:"total"`
}

type bulkRowOutcome struct {
	Line     int    `json:"line"`
	Data     string `json:"data"`
	Status   string `json:"status"`
	ImageURL string `json:"image_url,omitempty"`
	Filename string `json:"filename,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BulkUpload parses an uploaded delimited or spreadsheet file, validates
// every row against the candidate symbology and format, and stores the
// batch. Nothing is dispatched here; submission is a separate step.
func (a *App) BulkUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "missing file field")
		return
	}
	defer file.Close()

	symbology := r.FormValue("symbology")
	format := r.FormValue("format")
	opts := validate.Options{}
	if v := r.FormValue("show_text"); v != "" {
		opts.ShowText, _ = strconv.ParseBool(v)
	}
	if v := r.FormValue("rotation"); v != "" {
		opts.Rotation, _ = strconv.Atoi(v)
	}

	batch, err := bulk.Parse(file, header.Filename)
	if err != nil {
		switch {
		case errors.Is(err, bulk.ErrEmptyFile):
			a.error(w, http.StatusUnprocessableEntity, "empty_file", err.Error())
		case errors.Is(err, bulk.ErrMissingDataColumn):
			a.error(w, http.StatusUnprocessableEntity, "missing_data_column", err.Error())
		default:
			a.error(w, http.StatusUnprocessableEntity, "parse_failed", err.Error())
		}
		return
	}
	if max := a.Cfg.BulkMaxRows; max > 0 && len(batch.Rows) > max {
		a.error(w, http.StatusRequestEntityTooLarge, "too_many_rows",
			fmt.Sprintf("batch has %d rows, limit is %d", len(batch.Rows), max))
		return
	}

	valid := batch.Validate(symbology, format, opts)
	entry := a.Batches.Put(batch, symbology, format, opts)

	resp := bulkUploadResponse{
		BatchID: entry.ID,
		Rows:    rowMarkers(batch),
		Valid:   valid,
		Total:   len(batch.Rows),
	}
	a.json(w, http.StatusCreated, resp)
}

// BulkSubmit dispatches every valid row of a stored batch and reports the
// per-row outcomes. Partial failure is a normal result, not an error.
func (a *App) BulkSubmit(w http.ResponseWriter, r *http.Request) {
	entry, err := a.Batches.Get(chi.URLParam(r, "id"))
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "unknown batch")
		return
	}

	submitter := bulk.NewSubmitter(a.Gen, a.Cfg.BulkWorkers, a.Logger)
	results := submitter.Submit(r.Context(), entry.Batch, entry.Symbology, entry.Format, entry.Options)
	_ = a.Batches.SetResults(entry.ID, results)

	a.json(w, http.StatusOK, map[string]any{
		"batch_id": entry.ID,
		"rows":     rowOutcomes(results),
	})
}

// BulkStatus returns the stored batch with its validity markers and, after
// submission, its per-row outcomes.
func (a *App) BulkStatus(w http.ResponseWriter, r *http.Request) {
	entry, err := a.Batches.Get(chi.URLParam(r, "id"))
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "unknown batch")
		return
	}

	resp := map[string]any{
		"batch_id": entry.ID,
		"rows":     rowMarkers(entry.Batch),
		"valid":    entry.Batch.Valid(),
		"total":    len(entry.Batch.Rows),
	}
	if entry.Results != nil {
		resp["results"] = rowOutcomes(entry.Results)
	}
	a.json(w, http.StatusOK, resp)
}

// BulkArchive serves a zip of every succeeded row's artifact, in input order.
func (a *App) BulkArchive(w http.ResponseWriter, r *http.Request) {
	entry, err := a.Batches.Get(chi.URLParam(r, "id"))
	if err != nil {
		a.error(w, http.StatusNotFound, "not_found", "unknown batch")
		return
	}
	if entry.Results == nil {
		a.error(w, http.StatusConflict, "not_submitted", "batch has not been submitted")
		return
	}

	archive, err := bulk.Archive(entry.Results)
	if err != nil {
		if errors.Is(err, bulk.ErrNothingToArchive) {
			a.error(w, http.StatusConflict, "nothing_to_archive", err.Error())
			return
		}
		a.Logger.Error().Err(err).Str("batch_id", entry.ID).Msg("bulk archive failed")
		a.error(w, http.StatusInternalServerError, "archive_failed", "could not build archive")
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "barcodes-"+entry.ID+".zip"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func rowMarkers(batch *bulk.Batch) []bulkRowMarker {
	markers := make([]bulkRowMarker, 0, len(batch.Rows))
	for _, row := range batch.Rows {
		marker := bulkRowMarker{
			Line:     row.Line,
			Data:     row.Data,
			Filename: row.Filename,
			Valid:    row.Invalid == nil,
		}
		if row.Invalid != nil {
			marker.Error = row.Invalid.Error()
		}
		markers = append(markers, marker)
	}
	return markers
}

func rowOutcomes(results []bulk.RowResult) []bulkRowOutcome {
	outcomes := make([]bulkRowOutcome, 0, len(results))
	for _, result := range results {
		outcome := bulkRowOutcome{
			Line:   result.Row.Line,
			Data:   result.Row.Data,
			Status: string(result.Status),
			Error:  result.Snapshot.Message,
		}
		if result.Status == bulk.RowStatusSucceeded && result.Snapshot.Artifact != nil {
			outcome.ImageURL = result.Snapshot.Artifact.URL
			outcome.Filename = result.Filename()
			outcome.Error = ""
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}
