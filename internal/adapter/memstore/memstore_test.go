package memstore

import (
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"bargen/internal/bulk"
	"bargen/internal/generate"
	"bargen/internal/validate"
)

func TestSessionsCreateAndReuse(t *testing.T) {
	sessions := NewSessions(func() *generate.Orchestrator {
		return generate.New(nil, zerolog.Nop())
	})

	orch, id := sessions.Get("")
	if orch == nil || id == "" {
		t.Fatalf("expected a new session")
	}
	again, sameID := sessions.Get(id)
	if again != orch || sameID != id {
		t.Fatalf("existing session was not reused")
	}
	other, otherID := sessions.Get("")
	if other == orch || otherID == id {
		t.Fatalf("distinct sessions must not share an orchestrator")
	}
}

func TestBatchesRoundTrip(t *testing.T) {
	batches := NewBatches()
	batch := &bulk.Batch{Rows: []bulk.Row{{Line: 2, Data: "x"}}}

	entry := batches.Put(batch, "qr", "png", validate.Options{})
	if entry.ID == "" {
		t.Fatalf("expected a batch id")
	}

	got, err := batches.Get(entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Batch != batch || got.Symbology != "qr" {
		t.Fatalf("entry = %+v", got)
	}

	if err := batches.SetResults(entry.ID, []bulk.RowResult{}); err != nil {
		t.Fatalf("SetResults: %v", err)
	}
	if _, err := batches.Get("unknown"); !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("err = %v, want ErrBatchNotFound", err)
	}
}

func TestBatchesGetReturnsDetachedCopy(t *testing.T) {
	batches := NewBatches()
	entry := batches.Put(&bulk.Batch{Rows: []bulk.Row{{Line: 2, Data: "x"}}}, "qr", "png", validate.Options{})

	before, err := batches.Get(entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if err := batches.SetResults(entry.ID, []bulk.RowResult{{Status: bulk.RowStatusFailed}}); err != nil {
		t.Fatalf("SetResults: %v", err)
	}
	if before.Results != nil {
		t.Fatalf("earlier copy observed a later write")
	}
	after, err := batches.Get(entry.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(after.Results) != 1 {
		t.Fatalf("results = %d, want 1", len(after.Results))
	}
}

func TestBatchesConcurrentReadAndSetResults(t *testing.T) {
	// Status polling must be safe against a submission recording its
	// results at the same time. Run under the race detector.
	batches := NewBatches()
	entry := batches.Put(&bulk.Batch{Rows: []bulk.Row{{Line: 2, Data: "x"}}}, "qr", "png", validate.Options{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = batches.SetResults(entry.ID, []bulk.RowResult{{Status: bulk.RowStatusSucceeded}})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			got, err := batches.Get(entry.ID)
			if err != nil {
				t.Errorf("Get: %v", err)
				return
			}
			_ = len(got.Results)
		}
	}()
	wg.Wait()
}

func TestSessionsEvictStalest(t *testing.T) {
	sessions := NewSessions(func() *generate.Orchestrator {
		return generate.New(nil, zerolog.Nop())
	})
	sessions.cap = 2

	first, firstID := sessions.Get("")
	_, secondID := sessions.Get("")
	sessions.Get(firstID) // refresh so the second session is now the stalest
	sessions.Get("")

	if len(sessions.entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(sessions.entries))
	}
	if _, ok := sessions.entries[secondID]; ok {
		t.Fatalf("stalest session was not evicted")
	}
	if again, _ := sessions.Get(firstID); again != first {
		t.Fatalf("refreshed session must survive eviction")
	}
}

func TestBatchesEvictStalest(t *testing.T) {
	batches := NewBatches()
	batches.cap = 2
	batch := &bulk.Batch{Rows: []bulk.Row{{Line: 2, Data: "x"}}}

	first := batches.Put(batch, "qr", "png", validate.Options{})
	second := batches.Put(batch, "qr", "png", validate.Options{})
	if _, err := batches.Get(first.ID); err != nil {
		t.Fatalf("refresh first: %v", err)
	}
	third := batches.Put(batch, "qr", "png", validate.Options{})

	if _, err := batches.Get(second.ID); !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("stalest batch should be evicted, err = %v", err)
	}
	if _, err := batches.Get(first.ID); err != nil {
		t.Fatalf("refreshed batch must survive: %v", err)
	}
	if _, err := batches.Get(third.ID); err != nil {
		t.Fatalf("newest batch must survive: %v", err)
	}
}
