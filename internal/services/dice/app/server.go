// Package server wires the dice gRPC service lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"

	"github.com/louisbranch/dicebot/internal/dice"
	platformgrpc "github.com/louisbranch/dicebot/internal/platform/grpc"
	diceservice "github.com/louisbranch/dicebot/internal/services/dice/api/grpc/dice"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

// Server hosts the dice gRPC API and its health service.
type Server struct {
	listener   net.Listener
	grpcServer *grpc.Server
	health     *health.Server
}

// New creates a configured dice server listening on the provided port.
func New(port int, limits dice.Limits) (*Server, error) {
	return NewWithAddr(fmt.Sprintf(":%d", port), limits)
}

// NewWithAddr creates a configured dice server for the provided address.
func NewWithAddr(addr string, limits dice.Limits) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return NewWithListener(listener, limits), nil
}

// NewWithListener serves on an existing listener, which the server owns.
func NewWithListener(listener net.Listener, limits dice.Limits) *Server {
	grpcServer, healthServer := platformgrpc.NewServer([]string{diceservice.ServiceName})
	diceservice.RegisterDiceServiceServer(grpcServer, diceservice.NewService(limits))
	return &Server{
		listener:   listener,
		grpcServer: grpcServer,
		health:     healthServer,
	}
}

// Addr returns the listener address for the server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a dice server until context cancellation.
func Run(ctx context.Context, port int, limits dice.Limits) error {
	server, err := New(port, limits)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// RunWithAddr creates and serves a dice server on addr until context cancellation.
func RunWithAddr(ctx context.Context, addr string, limits dice.Limits) error {
	server, err := NewWithAddr(addr, limits)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the gRPC server until context cancellation.
func (s *Server) Serve(ctx context.Context) error {
	if s == nil {
		return errors.New("server is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.Close()

	log.Printf("dice server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.grpcServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		return serveResult(<-serveErr)
	case err := <-serveErr:
		return serveResult(err)
	}
}

func serveResult(err error) error {
	if err == nil || errors.Is(err, grpc.ErrServerStopped) {
		return nil
	}
	return fmt.Errorf("serve gRPC: %w", err)
}

// Close releases dice server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.health != nil {
		s.health.Shutdown()
	}
	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}
	if s.listener != nil {
		_ = s.listener.Close()
	}
}
