// Package api is the JSON gateway of the vault daemon. Writes are sequenced
// commands; reads are served from the read model.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"epoch_vault/internal/domain"
	"epoch_vault/internal/event"
	"epoch_vault/internal/infra"
	"epoch_vault/internal/service"

	"github.com/google/uuid"
)

const maxBodyBytes = 64 << 10

// Submitter sequences events.
type Submitter interface {
	Submit(ctx context.Context, ev event.Event) (event.Result, error)
}

// EpochSource lists settled epochs.
type EpochSource interface {
	Epochs(ctx context.Context) ([]domain.EpochReport, error)
}

// Server serves the HTTP API.
type Server struct {
	submitter  Submitter
	view       *service.FundView
	epochs     EpochSource
	metrics    *infra.Metrics
	simEnabled bool
	timeout    time.Duration
	logger     *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithSimulation exposes POST /api/sim.
func WithSimulation(enabled bool) Option { return func(s *Server) { s.simEnabled = enabled } }

// WithMetrics sets the metrics served at /api/metrics.
func WithMetrics(m *infra.Metrics) Option { return func(s *Server) { s.metrics = m } }

// WithTimeout bounds how long a request waits for the sequencer.
func WithTimeout(d time.Duration) Option { return func(s *Server) { s.timeout = d } }

// NewServer creates the gateway.
func NewServer(submitter Submitter, view *service.FundView, epochs EpochSource, opts ...Option) *Server {
	s := &Server{
		submitter: submitter,
		view:      view,
		epochs:    epochs,
		metrics:   infra.GlobalMetrics,
		timeout:   10 * time.Second,
		logger:    slog.Default().With(slog.String("module", "api")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/commands", s.handleCommand)
	mux.HandleFunc("POST /api/sim", s.handleSimulation)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/holders", s.handleHolders)
	mux.HandleFunc("GET /api/epochs", s.handleEpochs)
	mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

// CommandResponse is the reply to a sequenced write.
type CommandResponse struct {
	ID    string `json:"id,omitempty"`
	Seq   uint64 `json:"seq"`
	Value int64  `json:"value"`
	Code  string `json:"code"`
	Error string `json:"error,omitempty"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	cmd := event.AcquireCommand()
	if err := decode(w, r, cmd); err != nil {
		event.ReleaseCommand(cmd)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	cmd.Seq, cmd.Ts = 0, 0
	if cmd.ID == "" {
		cmd.ID = uuid.NewString()
	}
	if err := cmd.Validate(); err != nil {
		resp := CommandResponse{ID: cmd.ID, Code: domain.Code(err), Error: err.Error()}
		event.ReleaseCommand(cmd)
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	id := cmd.ID
	res, ok := s.submit(w, r, cmd)
	if !ok {
		// The sequencer may still hold the command; leave it to the GC.
		return
	}
	event.ReleaseCommand(cmd)
	s.writeResult(w, id, res)
}

func (s *Server) handleSimulation(w http.ResponseWriter, r *http.Request) {
	if !s.simEnabled {
		http.NotFound(w, r)
		return
	}
	var ev event.SimulationEvent
	if err := decode(w, r, &ev); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !event.IsSimulation(ev.Kind) {
		writeJSON(w, http.StatusBadRequest, CommandResponse{
			Code:  domain.Code(domain.ErrUnknownCommand),
			Error: "unknown simulation type",
		})
		return
	}
	ev.Seq, ev.Ts = 0, 0

	res, ok := s.submit(w, r, &ev)
	if !ok {
		return
	}
	s.writeResult(w, "", res)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, ev event.Event) (event.Result, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	res, err := s.submitter.Submit(ctx, ev)
	if err != nil {
		s.logger.Warn("Submit failed", slog.String("type", string(ev.GetType())), slog.Any("error", err))
		writeError(w, http.StatusServiceUnavailable, err)
		return event.Result{}, false
	}
	return res, true
}

func (s *Server) writeResult(w http.ResponseWriter, id string, res event.Result) {
	resp := CommandResponse{ID: id, Seq: res.Seq, Value: res.Value, Code: domain.Code(res.Err)}
	status := http.StatusOK
	if res.Err != nil {
		resp.Error = res.Err.Error()
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st, ok := s.view.Status()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, errors.New("fund state not loaded"))
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleHolders(w http.ResponseWriter, _ *http.Request) {
	holders := s.view.Holders()
	if holders == nil {
		holders = []service.Holder{}
	}
	writeJSON(w, http.StatusOK, holders)
}

func (s *Server) handleEpochs(w http.ResponseWriter, r *http.Request) {
	epochs, err := s.epochs.Epochs(r.Context())
	if err != nil {
		s.logger.Error("Failed to load epochs", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if epochs == nil {
		epochs = []domain.EpochReport{}
	}
	writeJSON(w, http.StatusOK, epochs)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", slog.Any("error", err))
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
