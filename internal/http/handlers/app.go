package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"bargen/internal/adapter/memstore"
	"bargen/internal/generate"
	"bargen/internal/infra"
)

// App bundles the handlers' dependencies: configuration, the per-session
// orchestrators, the parsed batch store, and the shared generator client.
type App struct {
	Cfg      *infra.Config
	Logger   zerolog.Logger
	Gen      generate.Generator
	Sessions *memstore.Sessions
	Batches  *memstore.Batches
}

// NewApp wires an App around the given generator.
func NewApp(cfg *infra.Config, logger zerolog.Logger, gen generate.Generator) *App {
	return &App{
		Cfg:    cfg,
		Logger: logger,
		Gen:    gen,
		Sessions: memstore.NewSessions(func() *generate.Orchestrator {
			return generate.New(gen, logger)
		}),
		Batches: memstore.NewBatches(),
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, map[string]string{"error": kind, "message": message})
}
