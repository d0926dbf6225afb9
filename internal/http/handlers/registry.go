package handlers

import (
	"net/http"

	"bargen/internal/registry"
)

type symbologyInfo struct {
	Name  string `json:"name"`
	Limit int    `json:"limit,omitempty"` // inclusive maximum, absent when unconstrained
}

// Registry exposes the closed symbology and format sets plus the character
// limit mapping, so form UIs can build candidate requests without hardcoding
// the catalogue.
func (a *App) Registry(w http.ResponseWriter, r *http.Request) {
	symbologies := make([]symbologyInfo, 0, len(registry.Symbologies()))
	for _, s := range registry.Symbologies() {
		info := symbologyInfo{Name: string(s)}
		if limit, ok := registry.CharacterLimit(s); ok {
			info.Limit = limit
		}
		symbologies = append(symbologies, info)
	}

	formats := make([]string, 0, len(registry.Formats()))
	for _, f := range registry.Formats() {
		formats = append(formats, string(f))
	}

	a.json(w, http.StatusOK, map[string]any{
		"symbologies": symbologies,
		"formats":     formats,
	})
}
