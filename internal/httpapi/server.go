// Package httpapi is the JSON-over-HTTP request layer: one POST endpoint
// per filesystem operation under /api/fs/, the /rpc endpoint for the bulk
// service, tool invocation, health, and metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/tierfs/tierfs/internal/auth"
	"github.com/tierfs/tierfs/internal/config"
	"github.com/tierfs/tierfs/internal/metrics"
	"github.com/tierfs/tierfs/internal/vfs"
	"github.com/tierfs/tierfs/pkg/fserrors"
	"github.com/tierfs/tierfs/pkg/types"
)

// NamespaceHeader carries the tenant on every request.
const NamespaceHeader = "X-Fsx-Namespace"

// Version reported by ping and /info.
const Version = "1.0.0"

// RPCService is the surface the /rpc endpoint dispatches into.
type RPCService interface {
	Dispatch(ctx context.Context, method string, params json.RawMessage) (interface{}, error)
}

// ToolService is the surface the tool endpoints dispatch into.
type ToolService interface {
	Invoke(ctx context.Context, name string, params map[string]interface{}, info *auth.Info) (interface{}, error)
	Schemas() []map[string]interface{}
}

// Server is the HTTP front of the service.
type Server struct {
	fs      *vfs.FileSystem
	rpc     RPCService
	tools   ToolService
	authn   *auth.Authenticator
	log     logrus.FieldLogger
	metrics *metrics.Collector
	cfg     config.ServerConfig
	defNS   string

	httpServer *http.Server
}

// New assembles the server and its routes.
func New(fs *vfs.FileSystem, rpc RPCService, tools ToolService, authn *auth.Authenticator,
	log logrus.FieldLogger, mc *metrics.Collector, cfg *config.Configuration) *Server {
	s := &Server{
		fs:      fs,
		rpc:     rpc,
		tools:   tools,
		authn:   authn,
		log:     log,
		metrics: mc,
		cfg:     cfg.Server,
		defNS:   cfg.Namespace.Default,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleHealthz)
	r.Get("/info", s.handleInfo)
	if cfg.Metrics.Enabled {
		r.Handle("/metrics", mc.Handler())
	}

	r.Route("/api/fs", func(r chi.Router) {
		for op, h := range s.fsEndpoints() {
			r.Post("/"+op, h)
		}
	})

	r.Post("/rpc", s.handleRPC)

	r.Route("/api/tools", func(r chi.Router) {
		r.Get("/", s.handleToolList)
		r.Post("/{name}", s.handleToolInvoke)
	})

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// Start blocks serving requests until Shutdown.
func (s *Server) Start() error {
	s.log.WithField("address", s.cfg.Address).Info("http server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// requestLogger tags each request with an id and logs its outcome.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := uuid.NewString()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(r.Context()))
		s.log.WithFields(logrus.Fields{
			"request_id": reqID,
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
		}).Debug("request handled")
	})
}

// requestContext derives the operation context: namespace from the header
// (default tenant when absent) and caller identity.
func (s *Server) requestContext(r *http.Request) context.Context {
	ctx := r.Context()
	ns := r.Header.Get(NamespaceHeader)
	if ns == "" {
		ns = s.defNS
	}
	return types.WithNamespace(ctx, ns)
}

// authInfo resolves the request's Authorization header.
func (s *Server) authInfo(r *http.Request) *auth.Info {
	return s.authn.FromHeader(r.Header.Get("Authorization"))
}

// authorize gates an operation: reads may be anonymous when configured;
// writes always need the write scope.
func (s *Server) authorize(r *http.Request, write bool) error {
	info := s.authInfo(r)
	if write {
		if !info.Authenticated {
			return fserrors.New(fserrors.EAUTH, "authentication required")
		}
		if !info.Has(auth.ScopeWrite) {
			return fserrors.New(fserrors.EACCES, "write scope required")
		}
		return nil
	}
	if info.Authenticated {
		if !info.Has(auth.ScopeRead) {
			return fserrors.New(fserrors.EACCES, "read scope required")
		}
		return nil
	}
	if s.authn.AllowAnonymousRead() && info.Token == "" {
		return nil
	}
	return fserrors.New(fserrors.EAUTH, "authentication required")
}

// envelope is the uniform response shape.
type envelope struct {
	Success bool            `json:"success"`
	Data    interface{}     `json:"data,omitempty"`
	Error   *fserrors.Error `json:"error,omitempty"`
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	fe := fserrors.Convert(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(fserrors.HTTPStatus(fe.Code))
	json.NewEncoder(w).Encode(envelope{Success: false, Error: fe})
}

// decode parses a JSON request body, returning EINVAL on malformed input.
func decode(r *http.Request, into interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(into); err != nil {
		return fserrors.Inval("request", "", "malformed request body: "+err.Error())
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UnixMilli(),
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"name":    "tierfs",
		"version": Version,
	})
}

// rpcRequest is the framed call on /rpc.
type rpcRequest struct {
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params"`
	ID        interface{}     `json:"id"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

type rpcError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type rpcResponse struct {
	Data       interface{} `json:"data,omitempty"`
	Error      *rpcError   `json:"error,omitempty"`
	ID         interface{} `json:"id"`
	DurationMs int64       `json:"durationMs"`
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}

	// Every RPC method mutates or reads in bulk; batchRead/stat, stream
	// reads, dirSize, checksum, verify and ping are read-level, the rest
	// (unknown methods included) write-level.
	if err := s.authorize(r, rpcMethodWrites(req.Method)); err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	ctx := s.requestContext(r)
	data, err := s.rpc.Dispatch(ctx, req.Method, req.Params)
	resp := rpcResponse{ID: req.ID, DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		fe := fserrors.Convert(err)
		resp.Error = &rpcError{Code: string(fe.Code), Message: fe.Message}
		if fe.Path != "" {
			resp.Error.Details = map[string]string{"path": fe.Path}
		}
	} else {
		resp.Data = data
	}
	s.metrics.Operation("rpc", req.Method, time.Since(start), errCode(err))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// rpcMethodWrites classifies RPC methods for the auth gate.
func rpcMethodWrites(method string) bool {
	switch method {
	case "batchRead", "batchStat", "streamReadStart", "streamReadChunk", "streamReadEnd",
		"dirSize", "checksum", "verify", "ping":
		return false
	}
	return true
}

func (s *Server) handleToolList(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, map[string]interface{}{"tools": s.tools.Schemas()})
}

func (s *Server) handleToolInvoke(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var params map[string]interface{}
	if err := decode(r, &params); err != nil {
		writeError(w, err)
		return
	}
	start := time.Now()
	result, err := s.tools.Invoke(s.requestContext(r), name, params, s.authInfo(r))
	s.metrics.Operation("tools", name, time.Since(start), errCode(err))
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, result)
}

func errCode(err error) string {
	if err == nil {
		return ""
	}
	return string(fserrors.CodeOf(err))
}
