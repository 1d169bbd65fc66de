package http

import (
	"net/http"

	"github.com/cwrk-planet/coop-relay/pkg/httputil"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterConfig struct {
	AllowedOrigins []string
}

func NewRouter(h *Handler, ws http.HandlerFunc, cfg RouterConfig) http.Handler {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(httputil.MiddlewareRequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(httputil.MiddlewareTracing)
	r.Use(httputil.MiddlewareLogging)
	r.Use(middlewareChi.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", httputil.HeaderRequestID},
		ExposedHeaders: []string{httputil.HeaderRequestID},
		MaxAge:         300,
	}))

	// WS endpoint: клиенты старой версии подключаются прямо к "/"
	r.Get("/", ws)
	r.Get("/ws", ws)

	r.Route("/rooms", func(rm chi.Router) {
		rm.Get("/", h.ListRooms)
		rm.Route("/{name}", func(rr chi.Router) {
			rr.Get("/", h.GetRoom)
			rr.Get("/events", h.RoomEvents)
		})
	})

	r.Route("/extensions", func(er chi.Router) {
		er.Get("/", h.ListExtensions)
		er.Get("/{file}", h.GetExtension)
	})

	// health
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
