package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"attentionguard/internal/daemon"
	"attentionguard/internal/logging"
)

const maxEventsWait = 30 * time.Second

// Server exposes the aggregator via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}
	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	svc := &service{daemon: d, logger: logging.NewComponentLogger(logger, "ipc"), ctx: serverCtx}
	if err := rpcServer.RegisterName(serviceName, svc); err != nil {
		cancel()
		_ = listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the server is closed.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				if s.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "surfaces may fail to report"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				stop := context.AfterFunc(s.ctx, func() { _ = c.Close() })
				defer stop()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

func (s *service) requestContext(id string) context.Context {
	if strings.TrimSpace(id) == "" {
		return s.ctx
	}
	return logging.WithRequestID(s.ctx, id)
}

func (s *service) ReportStats(req ReportStatsRequest, resp *ReportStatsResponse) error {
	ctx := s.requestContext(req.RequestID)
	rec, err := s.daemon.Aggregator().ReportStats(ctx, req.SurfaceID, req.Source, req.Stats)
	if err != nil {
		return err
	}
	logging.WithContext(ctx, s.logger).Debug("stats reported",
		logging.String(logging.FieldEventType, "stats_reported"),
		logging.String(logging.FieldSource, rec.Source),
		logging.String(logging.FieldSurface, req.SurfaceID),
		logging.Int("total", rec.Total))
	resp.Record = rec
	return nil
}

func (s *service) GetStats(req GetStatsRequest, resp *GetStatsResponse) error {
	rec, ok := s.daemon.Aggregator().GetStats(req.Source)
	resp.Found = ok
	resp.Record = rec
	return nil
}

func (s *service) ListRecords(_ ListRecordsRequest, resp *ListRecordsResponse) error {
	agg := s.daemon.Aggregator()
	resp.Durable = agg.Durable()
	resp.Records = agg.Records()
	return nil
}

func (s *service) Reset(req ResetRequest, resp *ResetResponse) error {
	ctx := s.requestContext(req.RequestID)
	if err := s.daemon.Aggregator().ResetSource(ctx, req.Source); err != nil {
		return err
	}
	resp.Reset = true
	target := req.Source
	if target == "" {
		target = "all"
	}
	logging.WithContext(ctx, s.logger).Info("stats reset via IPC",
		logging.String(logging.FieldEventType, "stats_reset"),
		logging.String(logging.FieldSource, target))
	return nil
}

func (s *service) SetPersistence(req SetPersistenceRequest, resp *SetPersistenceResponse) error {
	agg := s.daemon.Aggregator()
	if err := agg.SetPersistenceMode(s.requestContext(req.RequestID), req.Durable); err != nil {
		return err
	}
	status := agg.Status()
	resp.Durable = status.Durable
	resp.Backend = status.Backend
	return nil
}

func (s *service) SurfaceActivated(req SurfaceActivatedRequest, resp *IndicatorResponse) error {
	resp.Indicator = s.daemon.Aggregator().SurfaceActivated(s.requestContext(req.RequestID), req.SurfaceID, req.Address)
	return nil
}

func (s *service) SourceActive(req SourceActiveRequest, resp *IndicatorResponse) error {
	ind, err := s.daemon.Aggregator().SourceActive(s.requestContext(req.RequestID), req.SurfaceID, req.Source)
	if err != nil {
		return err
	}
	resp.Indicator = ind
	return nil
}

func (s *service) SurfaceClosed(req SurfaceClosedRequest, _ *SurfaceClosedResponse) error {
	s.daemon.Aggregator().SurfaceClosed(req.SurfaceID)
	return nil
}

func (s *service) Indicator(req IndicatorRequest, resp *IndicatorResponse) error {
	resp.Indicator = s.daemon.Aggregator().Indicator(req.SurfaceID)
	return nil
}

func (s *service) Events(req EventsRequest, resp *EventsResponse) error {
	wait := min(time.Duration(req.WaitMillis)*time.Millisecond, maxEventsWait)
	ctx := s.ctx
	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, wait)
		defer cancel()
	}
	events, next, err := s.daemon.Aggregator().Hub().Fetch(ctx, req.Since, req.Limit, wait > 0)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return err
	}
	resp.Events = events
	resp.Next = next
	return nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	*resp = s.daemon.Status()
	return nil
}
