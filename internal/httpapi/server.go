// Package httpapi serves sync status and controls to browser and kiosk
// front ends, plus Prometheus metrics and a health endpoint peers can use
// as a probe target.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/matheus3301/fieldsync/internal/bus"
	"github.com/matheus3301/fieldsync/internal/netmon"
	"github.com/matheus3301/fieldsync/internal/store"
	intsync "github.com/matheus3301/fieldsync/internal/sync"
	"go.uber.org/zap"
)

// Server is the HTTP front of the daemon.
type Server struct {
	engine  *intsync.Engine
	monitor *netmon.Monitor
	hub     *Hub
	metrics http.Handler
	logger  *zap.Logger

	srv *http.Server
	lis net.Listener
}

// New builds the server. metrics may be nil, in which case /metrics is
// not mounted.
func New(addr string, engine *intsync.Engine, monitor *netmon.Monitor, hub *Hub, metrics http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if hub == nil {
		hub = NewHub(logger)
	}
	s := &Server{
		engine:  engine,
		monitor: monitor,
		hub:     hub,
		metrics: metrics,
		logger:  logger,
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/sync/status", s.handleStatus)
	mux.HandleFunc("POST /api/sync/force", s.handleForce)
	mux.HandleFunc("POST /api/sync/clear", s.handleClear)
	mux.HandleFunc("POST /api/sync/requeue", s.handleRequeue)
	mux.HandleFunc("GET /api/sync/queue", s.handleQueue)
	mux.HandleFunc("GET /api/sync/ws", s.handleWS)
	mux.HandleFunc("GET /api/network", s.handleNetwork)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// Start binds the listener and serves in the background. Relaying bus
// events to websocket clients stops when ctx is done.
func (s *Server) Start(ctx context.Context, b *bus.Bus) error {
	lis, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.lis = lis
	if b != nil {
		s.hub.Follow(ctx, b)
	}
	go func() {
		if err := s.srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", zap.Error(err))
		}
	}()
	s.logger.Info("http server listening", zap.String("addr", lis.Addr().String()))
	return nil
}

// Addr returns the bound address once Start has returned.
func (s *Server) Addr() string {
	if s.lis == nil {
		return s.srv.Addr
	}
	return s.lis.Addr().String()
}

// Stop shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.engine.GetSyncStatus(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleForce(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.ForceSyncNow(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.ClearSyncedItems(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": n})
}

func (s *Server) handleRequeue(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []string `json:"ids"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid body: " + err.Error()})
			return
		}
	}
	n, err := s.engine.RequeueFailed(r.Context(), body.IDs...)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"requeued": n})
}

// handleQueue accepts ?status=pending,error&collection=samples&record=id.
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.QueueFilter{Collection: q.Get("collection"), RecordID: q.Get("record")}
	if raw := q.Get("status"); raw != "" {
		for _, v := range strings.Split(raw, ",") {
			st := store.SyncStatus(strings.TrimSpace(v))
			if !st.Valid() {
				writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown status " + string(st)})
				return
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	items, err := s.engine.ListQueue(r.Context(), f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if items == nil {
		items = []store.QueueItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleNetwork(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.monitor.Snapshot())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	var first *Envelope
	if st, err := s.engine.GetSyncStatus(r.Context()); err == nil {
		first = &Envelope{Type: bus.KindSyncStatusChanged, Data: st}
	}
	s.hub.Serve(w, r, first)
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case intsync.IsOffline(err):
		code = http.StatusServiceUnavailable
	case store.IsNotFound(err):
		code = http.StatusNotFound
	case store.IsUnknownCollection(err):
		code = http.StatusBadRequest
	}
	if code == http.StatusInternalServerError {
		s.logger.Error("http request failed", zap.Error(err))
	}
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
