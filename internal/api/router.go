package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yegors/interview-scribe/pkg/logger"
)

// Router builds the HTTP routes of the service
type Router struct {
	handler        *Handler
	allowedOrigins []string
	staticDir      string
	logger         *logger.Logger
}

// NewRouter creates a new router. staticDir may be empty.
func NewRouter(handler *Handler, allowedOrigins []string, staticDir string, log *logger.Logger) *Router {
	return &Router{
		handler:        handler,
		allowedOrigins: allowedOrigins,
		staticDir:      staticDir,
		logger:         log.Named("router"),
	}
}

// Routes returns the root handler
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(rt.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors(rt.allowedOrigins))

	h := rt.handler

	r.Get("/", h.GetRoot)
	r.Get("/health", h.GetHealth)
	r.Get("/ws/{sessionID}", h.HandleWebSocket)
	r.Get("/progress/{sessionID}", h.GetProgress)

	r.Post("/analyze", h.Analyze)
	r.Post("/debug_transcription", h.DebugTranscription)

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", h.GetJobs)
		r.Get("/{id}", h.GetJob)
	})

	if rt.staticDir != "" {
		r.Handle("/static/*", http.StripPrefix("/static", NewStaticFileHandler(rt.staticDir, rt.logger)))
	}

	return r
}

// requestLogger logs one line per request
func (rt *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		rt.logger.Debug("Request served",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Duration("duration", time.Since(start)),
			logger.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// cors allows the configured browser origins. "*" allows any origin.
func cors(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				if _, ok := allowed[origin]; ok || allowAll {
					h := w.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Set("Access-Control-Allow-Credentials", "true")
					h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
					h.Set("Access-Control-Allow-Headers", "*")
					h.Add("Vary", "Origin")
				}
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
