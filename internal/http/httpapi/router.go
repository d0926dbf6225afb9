package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"bargen/internal/http/handlers"
	"bargen/internal/middleware"
)

// NewRouter assembles the JSON API consumed by the barcode form UI.
func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
	)
	if len(app.Cfg.CORSOrigins) > 0 {
		r.Use(middleware.CORS(app.Cfg.CORSOrigins))
	}

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/registry", app.Registry)

	r.Group(func(r chi.Router) {
		if app.Cfg.RateLimitPerMin > 0 {
			r.Use(middleware.RateLimit(app.Cfg.RateLimitPerMin, time.Minute))
		}

		r.Route("/v1/generate", func(r chi.Router) {
			r.Post("/", app.Generate)
			r.Get("/", app.GenerateState)
			r.Get("/download", app.GenerateDownload)
		})

		r.Route("/v1/bulk", func(r chi.Router) {
			r.Post("/", app.BulkUpload)
			r.Get("/{id}", app.BulkStatus)
			r.Post("/{id}/submit", app.BulkSubmit)
			r.Get("/{id}/archive", app.BulkArchive)
		})
	})

	return r
}
