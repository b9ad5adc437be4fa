package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/matheus3301/fieldsync/internal/api"
	"github.com/matheus3301/fieldsync/internal/metrics"
	"github.com/matheus3301/fieldsync/internal/profile"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpcstatus "google.golang.org/grpc/status"
)

// Server is the control plane: record CRUD and sync control over the
// profile's Unix socket.
type Server struct {
	grpc       *grpc.Server
	listener   net.Listener
	socketPath string
	logger     *zap.Logger
}

func NewServer(
	p Params,
	logger *zap.Logger,
	m *metrics.Metrics,
	records *api.RecordService,
	syncSvc *api.SyncService,
) (*Server, error) {
	socketPath := p.SocketPath
	if socketPath == "" {
		socketPath = profile.SocketPath(p.ProfileName)
	}
	listener, err := listenUnix(socketPath)
	if err != nil {
		return nil, err
	}

	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(observeUnary(logger, m)),
		grpc.ChainStreamInterceptor(observeStream(logger, m)),
	)
	api.RegisterRecordServer(srv, records)
	api.RegisterSyncServer(srv, syncSvc)

	return &Server{grpc: srv, listener: listener, socketPath: socketPath, logger: logger}, nil
}

// listenUnix binds path with owner-only permissions, replacing a stale
// socket left by a crashed daemon. The profile lock is already held, so
// nothing live can own it.
func listenUnix(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("chmod socket: %w", err)
	}
	return l, nil
}

// Start serves until Stop.
func (s *Server) Start() error {
	s.logger.Info("control server listening", zap.String("socket", s.socketPath))
	err := s.grpc.Serve(s.listener)
	if errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return err
}

// Stop drains in-flight calls, cutting open status streams once ctx
// expires, and removes the socket.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("control server stopping")
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.grpc.Stop()
		<-done
	}
	// Serve may never have run; the listener is then still open.
	_ = s.listener.Close()
	_ = os.Remove(s.socketPath)
}

func observeUnary(logger *zap.Logger, m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		observeCall(logger, m, info.FullMethod, err)
		return resp, err
	}
}

func observeStream(logger *zap.Logger, m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		err := handler(srv, ss)
		observeCall(logger, m, info.FullMethod, err)
		return err
	}
}

func observeCall(logger *zap.Logger, m *metrics.Metrics, method string, err error) {
	code := grpcstatus.Code(err)
	if m != nil {
		m.ObserveRPC(method, code.String())
	}
	if err != nil {
		logger.Debug("rpc failed", zap.String("method", method), zap.Stringer("code", code), zap.Error(err))
	}
}
