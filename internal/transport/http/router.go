package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/cwrk-planet/room-sync/pkg/httputil"
)

type Deps struct {
	Handler     *Handler
	Verifier    TokenVerifier
	WS          http.HandlerFunc
	Metrics     http.Handler
	CORSOrigins []string
	Logger      *slog.Logger
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httputil.MiddlewareRequestID)
	r.Use(httputil.MiddlewareTracing("room-sync/http"))
	r.Use(httputil.MiddlewareLogging(d.Logger))

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.OK(w, map[string]string{"status": "ok"})
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	// ws: the token travels in the query and ws.Server checks it
	if d.WS != nil {
		r.Get("/ws/rooms/{id}/notifications", d.WS)
	}

	r.Group(func(pr chi.Router) {
		pr.Use(AuthMiddleware(d.Verifier))
		pr.Use(middleware.Timeout(30 * time.Second))

		pr.Route("/rooms", func(rm chi.Router) {
			rm.Get("/", d.Handler.ListRooms)

			rm.Route("/{id}", func(rr chi.Router) {
				rr.Get("/snapshot", d.Handler.GetSnapshot)
				rr.Get("/participants", d.Handler.GetParticipants)
				rr.Get("/votes", d.Handler.GetVotes)
				rr.Post("/refresh", d.Handler.Refresh)
			})
		})
	})

	return r
}
