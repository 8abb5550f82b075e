package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"converse/pkg/session"
)

const healthCheckTimeout = 2 * time.Second

// Server exposes the health root and the Prometheus metrics endpoint.
type Server struct {
	addr      string
	worker    *Worker
	store     *session.Store
	gatherer  prometheus.Gatherer
	log       *slog.Logger
	startedAt time.Time
}

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Broker        string `json:"broker"`
	Store         string `json:"store"`
}

// NewServer builds the status server for one worker.
func NewServer(addr string, w *Worker, store *session.Store, gatherer prometheus.Gatherer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		addr:     addr,
		worker:   w,
		store:    store,
		gatherer: gatherer,
		log:      log.With("component", "worker.server"),
	}
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.startedAt = time.Now().UTC()

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Status server started", "address", s.addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	payload := healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Broker:        "up",
		Store:         "up",
	}

	statusCode := http.StatusOK
	if s.worker != nil && !s.worker.BrokerConnected() {
		payload.Broker = "down"
	}
	if err := s.store.Ping(ctx); err != nil {
		payload.Store = "down"
	}
	if payload.Broker == "down" || payload.Store == "down" {
		payload.Status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to write health response", "error", err)
	}
}
