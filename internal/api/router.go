package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"dmflow/internal/automation"
)

func (s *Server) router(svc *automation.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}

	h := &workspaceHandler{svc: svc, log: s.log}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/recipients", func(r chi.Router) {
		r.Get("/", h.listRecipients)
		r.Post("/", h.addRecipient)
		r.Delete("/{id}", h.removeRecipient)
		r.Post("/{id}/select", h.toggleSelect)
	})

	r.Get("/template", h.getTemplate)
	r.Put("/template", h.putTemplate)
	r.Get("/variables", h.getVariables)
	r.Put("/variables", h.putVariables)
	r.Get("/variables/catalog", h.variableCatalog)
	r.Get("/preview/{id}", h.preview)

	r.Post("/send-now", h.sendNow)
	r.Post("/schedule", h.schedule)

	r.Get("/timeline", h.timeline)
	r.Get("/stats", h.stats)
	r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.recentEvents())
	})

	return r
}
