// Package control is the local operator surface of a module: plain HTTP routes plus a
// websocket channel that behaves like the short-range configuration link.
package control

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/janael-pinheiro/trap-module-golang/pkg/entities"
	"github.com/janael-pinheiro/trap-module-golang/pkg/gateways/camera"
	"github.com/janael-pinheiro/trap-module-golang/pkg/trap"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	requestTimeout  = 5 * time.Second
	shutdownTimeout = 3 * time.Second
)

// Controller is what the surface needs from a module.
type Controller interface {
	ModuleInfo(ctx context.Context) (trap.ModuleInfo, error)
	MeshGraph(ctx context.Context) (trap.MeshGraph, error)
	SetConfig(ctx context.Context, doc entities.ConfigDocument) (bool, error)
	Capture(ctx context.Context, resolution camera.Resolution) (bool, error)
	SendDebug(ctx context.Context, message string, nodeID uint32) (bool, error)
	InitGps(ctx context.Context) (bool, error)
	GetGps(ctx context.Context) (bool, error)
	SetCurrentTime(ctx context.Context, t time.Time) (bool, error)
}

type result struct {
	Result bool `json:"result"`
}

type debugRequest struct {
	Message string `json:"message"`
	NodeID  uint32 `json:"node_id"`
}

type timeRequest struct {
	CurrentTime int64 `json:"current_time"`
}

type Server struct {
	controller Controller
	metrics    http.Handler
	config     *configChannel
	log        *logrus.Entry
}

// NewServer builds the surface. metrics may be nil when no collector is exposed.
func NewServer(controller Controller, metrics http.Handler, log *logrus.Entry) *Server {
	return &Server{
		controller: controller,
		metrics:    metrics,
		config:     newConfigChannel(controller, log),
		log:        log,
	}
}

// Handler wires every route on a fresh mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/getModuleInfo", s.handleModuleInfo)
	mux.HandleFunc("/getMeshGraph", s.handleMeshGraph)
	mux.HandleFunc("/setConfig", s.post(s.handleSetConfig))
	mux.HandleFunc("/snapShot", s.post(s.handleSnapshot))
	mux.HandleFunc("/sendMessage", s.post(s.handleSendMessage))
	mux.HandleFunc("/initGps", s.post(s.handleInitGps))
	mux.HandleFunc("/getGps", s.post(s.handleGetGps))
	mux.HandleFunc("/setCurrentTime", s.post(s.handleSetCurrentTime))
	mux.HandleFunc("/ws/config", s.config.handle)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// ListenAndServe serves until ctx ends, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{Addr: addr, Handler: s.Handler(), ReadHeaderTimeout: requestTimeout}
	failed := make(chan error, 1)
	go func() {
		s.log.Infof("control surface listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			failed <- errors.Wrap(err, "control surface")
		}
		close(failed)
	}()
	select {
	case err := <-failed:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.config.closeAll()
	return server.Shutdown(shutdownCtx)
}

func (s *Server) post(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleModuleInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.controller.ModuleInfo(r.Context())
	if err != nil {
		s.unavailable(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleMeshGraph(w http.ResponseWriter, r *http.Request) {
	graph, err := s.controller.MeshGraph(r.Context())
	if err != nil {
		s.unavailable(w, err)
		return
	}
	writeJSON(w, http.StatusOK, graph)
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var doc entities.ConfigDocument
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	s.reply(w)(s.controller.SetConfig(r.Context(), doc))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	resolution := camera.Resolution(r.URL.Query().Get("resolution"))
	if resolution == "" {
		resolution = camera.Resolution320x240
	}
	s.reply(w)(s.controller.Capture(r.Context(), resolution))
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var request debugRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	s.reply(w)(s.controller.SendDebug(r.Context(), request.Message, request.NodeID))
}

func (s *Server) handleInitGps(w http.ResponseWriter, r *http.Request) {
	s.reply(w)(s.controller.InitGps(r.Context()))
}

func (s *Server) handleGetGps(w http.ResponseWriter, r *http.Request) {
	s.reply(w)(s.controller.GetGps(r.Context()))
}

func (s *Server) handleSetCurrentTime(w http.ResponseWriter, r *http.Request) {
	var request timeRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil || request.CurrentTime <= 0 {
		http.Error(w, "current_time is required", http.StatusBadRequest)
		return
	}
	s.reply(w)(s.controller.SetCurrentTime(r.Context(), entities.FromUnixSeconds(request.CurrentTime)))
}

func (s *Server) reply(w http.ResponseWriter) func(bool, error) {
	return func(ok bool, err error) {
		if err != nil {
			s.unavailable(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result{Result: ok})
	}
}

func (s *Server) unavailable(w http.ResponseWriter, err error) {
	s.log.Warnf("control request failed: %v", err)
	http.Error(w, "module busy", http.StatusServiceUnavailable)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Debugf("failed to write response: %v", err)
	}
}
