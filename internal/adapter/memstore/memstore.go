// Package memstore keeps per-session orchestrators and parsed bulk batches
// in memory. Nothing here outlives the process: the service intentionally
// holds no state beyond the current session. Both stores are capped; when a
// store is full the least recently used entry is evicted.
package memstore

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"bargen/internal/bulk"
	"bargen/internal/generate"
	"bargen/internal/validate"
)

// ErrBatchNotFound is returned for unknown, expired, or evicted batch IDs.
var ErrBatchNotFound = errors.New("memstore: batch not found")

const (
	maxSessions = 1024
	maxBatches  = 256
)

type sessionEntry struct {
	orch    *generate.Orchestrator
	lastUse time.Time
}

// Sessions maps a session ID to its orchestrator, creating one on first use.
type Sessions struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
	factory func() *generate.Orchestrator
	cap     int
}

// NewSessions builds a session store; factory constructs the orchestrator
// for a new session.
func NewSessions(factory func() *generate.Orchestrator) *Sessions {
	return &Sessions{
		entries: make(map[string]*sessionEntry),
		factory: factory,
		cap:     maxSessions,
	}
}

// Get returns the orchestrator for id, creating a session when id is new or
// empty. The second result is the effective session ID.
func (s *Sessions) Get(id string) (*generate.Orchestrator, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	if entry, ok := s.entries[id]; ok {
		entry.lastUse = time.Now()
		return entry.orch, id
	}
	if len(s.entries) >= s.cap {
		s.evictOldestLocked()
	}
	entry := &sessionEntry{orch: s.factory(), lastUse: time.Now()}
	s.entries[id] = entry
	return entry.orch, id
}

func (s *Sessions) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, entry := range s.entries {
		if oldestID == "" || entry.lastUse.Before(oldest) {
			oldestID, oldest = id, entry.lastUse
		}
	}
	delete(s.entries, oldestID)
}

// BatchEntry holds one parsed upload together with the candidate parameters
// it was validated against and, after submission, its per-row results.
type BatchEntry struct {
	ID        string
	Batch     *bulk.Batch
	Symbology string
	Format    string
	Options   validate.Options
	Results   []bulk.RowResult

	lastUse time.Time
}

// Batches maps batch IDs to parsed uploads.
type Batches struct {
	mu      sync.Mutex
	entries map[string]*BatchEntry
	cap     int
}

// NewBatches builds an empty batch store.
func NewBatches() *Batches {
	return &Batches{
		entries: make(map[string]*BatchEntry),
		cap:     maxBatches,
	}
}

// Put stores a freshly parsed batch and returns its ID.
func (b *Batches) Put(batch *bulk.Batch, symbology, format string, opts validate.Options) *BatchEntry {
	entry := &BatchEntry{
		ID:        uuid.NewString(),
		Batch:     batch,
		Symbology: symbology,
		Format:    format,
		Options:   opts,
		lastUse:   time.Now(),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.entries) >= b.cap {
		b.evictOldestLocked()
	}
	b.entries[entry.ID] = entry
	cp := *entry
	return &cp
}

// Get returns a copy of the entry for id, taken under the store lock so a
// concurrent SetResults on the same batch cannot race with the read. The
// stored entry is only ever mutated through SetResults.
func (b *Batches) Get(id string) (*BatchEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.entries[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	entry.lastUse = time.Now()
	cp := *entry
	return &cp, nil
}

// SetResults records the submission outcome for id.
func (b *Batches) SetResults(id string, results []bulk.RowResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	entry, ok := b.entries[id]
	if !ok {
		return ErrBatchNotFound
	}
	entry.lastUse = time.Now()
	entry.Results = results
	return nil
}

func (b *Batches) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, entry := range b.entries {
		if oldestID == "" || entry.lastUse.Before(oldest) {
			oldestID, oldest = id, entry.lastUse
		}
	}
	delete(b.entries, oldestID)
}
