package bulk

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"bargen/internal/generate"
	"bargen/internal/validate"
)

// RowStatus is the per-row outcome of a batch submission.
type RowStatus string

const (
	RowStatusInvalid     RowStatus = "invalid"
	RowStatusSucceeded   RowStatus = "succeeded"
	RowStatusFailed      RowStatus = "failed"
	RowStatusRateLimited RowStatus = "rate_limited"
)

// RowResult pairs a row with its dispatch outcome. Results keep the input
// order of the batch.
type RowResult struct {
	Row      Row
	Status   RowStatus
	Snapshot generate.Snapshot
}

// Filename returns the export filename for the row: the uploaded filename
// column when present, otherwise one derived from the request.
func (r RowResult) Filename() string {
	name := r.Row.Filename
	if name == "" {
		name = generate.DownloadFilename(r.Snapshot.Request)
	} else if ext := "." + r.Snapshot.Request.Format.Ext(); !strings.HasSuffix(strings.ToLower(name), ext) {
		name += ext
	}
	return name
}

// Submitter dispatches a validated batch row by row through the same
// generator path the single orchestrator uses. Rows are independent: one
// row's failure or rate limit never blocks or cancels its siblings.
type Submitter struct {
	gen     generate.Generator
	workers int
	logger  zerolog.Logger
}

// NewSubmitter builds a submitter with a bounded worker pool. workers <= 0
// means sequential dispatch.
func NewSubmitter(gen generate.Generator, workers int, logger zerolog.Logger) *Submitter {
	if workers <= 0 {
		workers = 1
	}
	return &Submitter{gen: gen, workers: workers, logger: logger}
}

// Submit dispatches every valid row of the batch and returns one result per
// row, in input order. The candidate symbology, format, and options must be
// the ones the batch was validated with.
func (s *Submitter) Submit(ctx context.Context, batch *Batch, symbology, format string, opts validate.Options) []RowResult {
	results := make([]RowResult, len(batch.Rows))
	sem := make(chan struct{}, s.workers)
	var wg sync.WaitGroup

	for i, row := range batch.Rows {
		results[i].Row = row
		if row.Invalid != nil {
			results[i].Status = RowStatusInvalid
			results[i].Snapshot = generate.Snapshot{
				State:         generate.StateFailed,
				ValidationErr: row.Invalid,
				Message:       row.Invalid.Error(),
			}
			continue
		}

		req, verr := validate.Validate(symbology, row.Data, format, opts)
		if verr != nil {
			// The batch was re-validated against different parameters than
			// the caller submitted with.
			results[i].Status = RowStatusInvalid
			results[i].Snapshot = generate.Snapshot{
				State:         generate.StateFailed,
				ValidationErr: verr,
				Message:       verr.Error(),
			}
			continue
		}

		wg.Add(1)
		go func(i int, req validate.Request) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			artifact, err := s.gen.Generate(ctx, req)
			snap := generate.Resolve(req, artifact, err)
			results[i].Snapshot = snap
			switch snap.State {
			case generate.StateSuccess:
				results[i].Status = RowStatusSucceeded
			case generate.StateRateLimited:
				results[i].Status = RowStatusRateLimited
			default:
				results[i].Status = RowStatusFailed
			}
			if err != nil {
				s.logger.Debug().
					Int("line", results[i].Row.Line).
					Err(err).
					Msg("bulk row dispatch failed")
			}
		}(i, req)
	}

	wg.Wait()
	return results
}
