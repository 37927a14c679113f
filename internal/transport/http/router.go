package http

import (
	"net/http"
	"time"

	"github.com/cwrk-planet/poker-service/internal/metrics"
	httpmw "github.com/cwrk-planet/poker-service/internal/transport/http/middleware"
	"github.com/cwrk-planet/poker-service/internal/transport/ws"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

func NewRouter(h *Handler, wsServer *ws.Server, cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(httpmw.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)
	r.Use(httpmw.Logging)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", httpmw.HeaderRequestID},
		ExposedHeaders: []string{httpmw.HeaderRequestID},
		MaxAge:         300,
	}))

	// WS живёт дольше любого таймаута запроса
	r.Get("/ws/rooms/{id}", wsServer.HandleWS)

	r.Group(func(pr chi.Router) {
		pr.Use(middlewareChi.Timeout(cfg.RequestTimeout))

		pr.Get("/cards", h.Cards)

		pr.Route("/rooms/{id}", func(rr chi.Router) {
			rr.Put("/", h.EnsureRoom)
			rr.Get("/", h.GetRoom)
			rr.Post("/reveal", h.ToggleReveal)
			rr.Post("/reset", h.ResetAllVotes)

			rr.Route("/participants", func(pp chi.Router) {
				pp.Post("/", h.AddParticipant)
				pp.Delete("/", h.ClearParticipants)
				pp.Delete("/{pid}", h.RemoveParticipant)
				pp.Put("/{pid}/vote", h.UpdateVote)
			})
		})
	})

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())

	return r
}
