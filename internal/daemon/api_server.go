package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"attentionguard/internal/aggregate"
	"attentionguard/internal/config"
	"attentionguard/internal/logging"
	"attentionguard/internal/records"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
	followWait        = 25 * time.Second
)

// StatsResponse is the payload of GET /api/stats.
type StatsResponse struct {
	Durable bool             `json:"durable"`
	Records []records.Record `json:"records"`
}

// SurfaceView pairs an active surface with its indicator.
type SurfaceView struct {
	SurfaceID string              `json:"surfaceId"`
	Source    string              `json:"source"`
	Indicator aggregate.Indicator `json:"indicator"`
}

// SurfacesResponse is the payload of GET /api/surfaces.
type SurfacesResponse struct {
	Surfaces []SurfaceView `json:"surfaces"`
}

// EventsResponse is the payload of GET /api/events.
type EventsResponse struct {
	Events []aggregate.Event `json:"events"`
	Next   uint64            `json:"next"`
}

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
	group    *errgroup.Group
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}
	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(cfg.Paths.APIToken),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      followWait + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) routes(token string) http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /api/status", s.handleStatus)
	api.HandleFunc("GET /api/stats", s.handleStats)
	api.HandleFunc("DELETE /api/stats", s.handleResetStats)
	api.HandleFunc("GET /api/stats/{source}", s.handleSourceStats)
	api.HandleFunc("DELETE /api/stats/{source}", s.handleResetStats)
	api.HandleFunc("GET /api/surfaces", s.handleSurfaces)
	api.HandleFunc("GET /api/events", s.handleEvents)
	api.Handle("GET /metrics", promhttp.HandlerFor(s.daemon.metrics, promhttp.HandlerOpts{}))

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/", authMiddleware(token, api))
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		return nil
	})
	s.group = g

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.group != nil {
		_ = s.group.Wait()
		s.group = nil
	}
	s.listener = nil
}

func (s *apiServer) address() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status())
}

func (s *apiServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	agg := s.daemon.Aggregator()
	s.writeJSON(w, http.StatusOK, StatsResponse{Durable: agg.Durable(), Records: agg.Records()})
}

func (s *apiServer) handleSourceStats(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.daemon.Aggregator().GetStats(r.PathValue("source"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "no stats for source")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

// handleResetStats resets the {source} record, or every record when the
// route carries no source.
func (s *apiServer) handleResetStats(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.Aggregator().ResetSource(r.Context(), r.PathValue("source")); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleSurfaces(w http.ResponseWriter, _ *http.Request) {
	agg := s.daemon.Aggregator()
	active := agg.ActiveSurfaces()
	views := make([]SurfaceView, 0, len(active))
	for id, source := range active {
		views = append(views, SurfaceView{SurfaceID: id, Source: source, Indicator: agg.Indicator(id)})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].SurfaceID < views[j].SurfaceID })
	s.writeJSON(w, http.StatusOK, SurfacesResponse{Surfaces: views})
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var since uint64
	if raw := strings.TrimSpace(query.Get("since")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid since")
			return
		}
		since = parsed
	}
	limit := defaultEventLimit
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(parsed, maxEventLimit)
	}
	follow := query.Get("follow") == "1" || strings.EqualFold(query.Get("follow"), "true")

	ctx := r.Context()
	if follow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, followWait)
		defer cancel()
	}
	events, next, err := s.daemon.Aggregator().Hub().Fetch(ctx, since, limit, follow)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []aggregate.Event{}
	}
	s.writeJSON(w, http.StatusOK, EventsResponse{Events: events, Next: next})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
