package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/kundali-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса кундали.
// API доступно как от корня, так и под префиксом /api.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Group(h.routes)
	r.Route("/api", h.routes)

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, http.StatusText(http.StatusNotFound))
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
	})

	return r
}

func (h *Handler) routes(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/payment", func(r chi.Router) {
		r.Post("/create-order", h.CreateOrder)
		r.Post("/verify", h.VerifyPayment)
	})

	r.Post("/kundali/generate", h.GenerateKundali)
}
