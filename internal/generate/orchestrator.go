// Package generate manages the request/response lifecycle for a single
// barcode: it validates the candidate, dispatches it to the rendering
// service, and tracks the resulting state so presentation layers can render
// loading, error, limit-exceeded, and success views.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"bargen/internal/providers/barcodeapi"
	"bargen/internal/validate"
)

// State is the observable lifecycle state of an orchestrator.
type State string

const (
	StateIdle        State = "idle"
	StateValidating  State = "validating"
	StatePending     State = "pending"
	StateSuccess     State = "success"
	StateFailed      State = "failed"
	StateRateLimited State = "rate_limited"
)

// Terminal reports whether the state ends a submission. Terminal states are
// all re-enterable: a new submission moves back through validating.
func (s State) Terminal() bool {
	switch s {
	case StateSuccess, StateFailed, StateRateLimited:
		return true
	}
	return false
}

// Generator dispatches a validated request to the rendering service.
// *barcodeapi.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, req validate.Request) (*barcodeapi.Artifact, error)
}

// Candidate is a user-submitted, not-yet-validated request.
type Candidate struct {
	Symbology string
	Data      string
	Format    string
	Options   validate.Options
}

// Snapshot is the externally visible state of the orchestrator at one point
// in time. Artifact, ValidationErr, Message and RetryAfter are populated
// according to State.
type Snapshot struct {
	State         State
	Seq           uint64
	Request       validate.Request
	Artifact      *barcodeapi.Artifact
	ValidationErr *validate.Error
	Message       string
	RetryAfter    string // human-readable window, empty unless rate limited
}

// CopyPayload returns the copy-to-clipboard payload derived from a success
// snapshot: the artifact reference itself.
func (s Snapshot) CopyPayload() string {
	if s.State != StateSuccess || s.Artifact == nil {
		return ""
	}
	return s.Artifact.URL
}

// DownloadPayload returns the download filename and image bytes for a
// success snapshot.
func (s Snapshot) DownloadPayload() (string, []byte) {
	if s.State != StateSuccess || s.Artifact == nil {
		return "", nil
	}
	return DownloadFilename(s.Request), s.Artifact.Data
}

// DownloadFilename derives a filesystem-safe filename for a request's
// artifact from its symbology, payload and format.
func DownloadFilename(req validate.Request) string {
	return fmt.Sprintf("%s-%s.%s", req.Symbology, sanitize(req.Data), req.Format.Ext())
}

func sanitize(data string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, data)
	const maxStem = 40
	if len(cleaned) > maxStem {
		cleaned = cleaned[:maxStem]
	}
	if cleaned == "" {
		cleaned = "barcode"
	}
	return cleaned
}

// Orchestrator owns the lifecycle of one logical request slot. Submitting a
// new candidate supersedes the in-flight one: each submission takes a fresh
// sequence token, and a resolution whose token no longer matches is
// discarded on arrival. The most recently issued request's outcome always
// wins, so a slow earlier response can never clobber a faster later one.
type Orchestrator struct {
	gen    Generator
	logger zerolog.Logger

	mu      sync.Mutex
	seq     uint64
	snap    Snapshot
	changed chan struct{}
}

// New returns an idle orchestrator dispatching through gen.
func New(gen Generator, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		gen:     gen,
		logger:  logger,
		snap:    Snapshot{State: StateIdle},
		changed: make(chan struct{}),
	}
}

// Submit validates the candidate and, if it passes, dispatches it
// asynchronously. The returned snapshot reflects the synchronous part of the
// transition: failed on rejection (no network call is made), pending on
// acceptance. There is no automatic retry; a failed or rate-limited state is
// left in place until the user resubmits.
func (o *Orchestrator) Submit(ctx context.Context, c Candidate) Snapshot {
	o.mu.Lock()
	o.seq++
	token := o.seq
	o.transitionLocked(Snapshot{State: StateValidating, Seq: token})

	req, verr := validate.Validate(c.Symbology, c.Data, c.Format, c.Options)
	if verr != nil {
		snap := Snapshot{
			State:         StateFailed,
			Seq:           token,
			ValidationErr: verr,
			Message:       verr.Error(),
		}
		o.transitionLocked(snap)
		o.mu.Unlock()
		return snap
	}

	snap := Snapshot{State: StatePending, Seq: token, Request: req}
	o.transitionLocked(snap)
	o.mu.Unlock()

	go o.dispatch(ctx, token, req)
	return snap
}

// Snapshot returns the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snap
}

// Wait blocks until the current submission reaches a terminal state, then
// returns it. It returns early with the latest snapshot when ctx ends.
func (o *Orchestrator) Wait(ctx context.Context) (Snapshot, error) {
	for {
		o.mu.Lock()
		snap, ch := o.snap, o.changed
		o.mu.Unlock()
		if snap.State.Terminal() {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ch:
		}
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, token uint64, req validate.Request) {
	artifact, err := o.gen.Generate(ctx, req)
	snap := Resolve(req, artifact, err)
	snap.Seq = token

	o.mu.Lock()
	defer o.mu.Unlock()
	if token != o.seq {
		// Superseded while in flight; the newer submission's outcome wins.
		o.logger.Debug().
			Uint64("token", token).
			Uint64("current", o.seq).
			Msg("discarding stale generation result")
		return
	}
	o.transitionLocked(snap)
}

func (o *Orchestrator) transitionLocked(snap Snapshot) {
	o.snap = snap
	close(o.changed)
	o.changed = make(chan struct{})
}

// Resolve classifies one dispatch outcome into a terminal snapshot. The bulk
// pipeline reuses it so single and per-row dispatch interpret the service
// identically.
func Resolve(req validate.Request, artifact *barcodeapi.Artifact, err error) Snapshot {
	switch {
	case err == nil:
		return Snapshot{State: StateSuccess, Request: req, Artifact: artifact}
	case errors.Is(err, barcodeapi.ErrRateLimited):
		snap := Snapshot{State: StateRateLimited, Request: req, Message: err.Error()}
		var rl *barcodeapi.RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			snap.RetryAfter = rl.RetryAfter.String()
		}
		return snap
	default:
		return Snapshot{State: StateFailed, Request: req, Message: err.Error()}
	}
}
