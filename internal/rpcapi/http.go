package rpcapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/opencode-ai/agentrund/internal/eventlog"
	"github.com/opencode-ai/agentrund/pkg/types"
)

// Config holds HTTPServer configuration, grounded on telnet2-opencode's
// internal/server.Config.
type Config struct {
	Addr         string
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig mirrors telnet2-opencode's DefaultConfig, except
// WriteTimeout stays zero here too: the SSE stream handler is long-lived
// and a fixed write deadline would sever it mid-stream.
func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		EnableCORS:  true,
		ReadTimeout: 30 * time.Second,
	}
}

// HTTPServer exposes Service over chi, the way telnet2-opencode's
// internal/server.Server wraps its own sessionService — trimmed to this
// runtime's six routes instead of opencode's several dozen.
type HTTPServer struct {
	config  Config
	router  *chi.Mux
	httpSrv *http.Server
	service *Service
}

// NewHTTPServer constructs an HTTPServer. Call Start to begin serving.
func NewHTTPServer(cfg Config, service *Service) *HTTPServer {
	srv := &HTTPServer{config: cfg, router: chi.NewRouter(), service: service}
	srv.setupMiddleware()
	srv.setupRoutes()
	return srv
}

func (srv *HTTPServer) setupMiddleware() {
	srv.router.Use(middleware.RequestID)
	srv.router.Use(middleware.Logger)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(middleware.RealIP)

	if srv.config.EnableCORS {
		srv.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

func (srv *HTTPServer) setupRoutes() {
	srv.router.Route("/sessions", func(r chi.Router) {
		r.Post("/", srv.createSession)
		r.Get("/", srv.listSessions)

		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", srv.getSession)
			r.Delete("/", srv.deleteSession)
			r.Get("/events", srv.subscribeEvents)
			r.Post("/commands", srv.sendCommand)
		})
	})
}

// Router returns the chi router for testing.
func (srv *HTTPServer) Router() *chi.Mux { return srv.router }

// Start serves on Addr until it fails or Shutdown is called.
func (srv *HTTPServer) Start() error {
	srv.httpSrv = &http.Server{
		Addr:         srv.config.Addr,
		Handler:      srv.router,
		ReadTimeout:  srv.config.ReadTimeout,
		WriteTimeout: srv.config.WriteTimeout,
	}
	return srv.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (srv *HTTPServer) Shutdown(ctx context.Context) error {
	if srv.httpSrv == nil {
		return nil
	}
	return srv.httpSrv.Shutdown(ctx)
}

func sessionIDParam(r *http.Request) types.SessionID {
	return types.SessionID(chi.URLParam(r, "sessionID"))
}

func parseFromQuery(r *http.Request) types.SequenceNumber {
	raw := r.URL.Query().Get("from")
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return types.SequenceNumber(n)
}

func (srv *HTTPServer) createSession(w http.ResponseWriter, r *http.Request) {
	var params CreateSessionParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeDomainError(w, types.NewDomainError(types.ErrorValidation, "invalid request body", err))
		return
	}

	id, err := srv.service.CreateSession(r.Context(), params)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]types.SessionID{"id": id})
}

func (srv *HTTPServer) getSession(w http.ResponseWriter, r *http.Request) {
	meta, err := srv.service.GetSession(r.Context(), sessionIDParam(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (srv *HTTPServer) listSessions(w http.ResponseWriter, r *http.Request) {
	filter := eventlog.SessionFilter{Tag: r.URL.Query().Get("tag")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Limit = n
		}
	}

	summaries, err := srv.service.ListSessions(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (srv *HTTPServer) deleteSession(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	if err := srv.service.DeleteSession(r.Context(), sessionIDParam(r), force); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (srv *HTTPServer) sendCommand(w http.ResponseWriter, r *http.Request) {
	sessionID := sessionIDParam(r)

	var cmd ClientCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeDomainError(w, types.NewDomainError(types.ErrorValidation, "invalid request body", err))
		return
	}

	actor, err := srv.service.supervisor.Get(r.Context(), sessionID)
	if err != nil {
		writeDomainError(w, types.NewDomainError(types.ErrorPersistence, fmt.Sprintf("load session %s", sessionID), err))
		return
	}

	result, err := dispatchCommand(r.Context(), actor, cmd)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, result)
}
