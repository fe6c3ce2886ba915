// rpc/health.go
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/wfunc/skullscore/logger"
)

// ServiceName is the health service name reported next to "".
const ServiceName = "skullscore.Scoreboard"

// HealthServer serves grpc.health.v1 on its own listener.
type HealthServer struct {
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
}

func NewHealthServer(addr string) (*HealthServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &HealthServer{
		listener:   listener,
		grpcServer: grpcServer,
		health:     healthServer,
	}, nil
}

func (s *HealthServer) Addr() string {
	return s.listener.Addr().String()
}

// SetServing flips the reported status, e.g. after a store ping.
func (s *HealthServer) SetServing(serving bool) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve blocks until ctx is done or the server fails.
func (s *HealthServer) Serve(ctx context.Context) error {
	logger.Log.Infof("gRPC health server listening on %s", s.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		err := <-serveErr
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	case err := <-serveErr:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("serve gRPC: %w", err)
	}
}

// Stop 立即停止; also releases the listener when Serve never ran.
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.grpcServer.Stop()
	s.listener.Close()
}
