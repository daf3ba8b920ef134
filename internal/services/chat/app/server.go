package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/louisbranch/dicebot/internal/dice"
	platformgrpc "github.com/louisbranch/dicebot/internal/platform/grpc"
	"github.com/louisbranch/dicebot/internal/platform/timeouts"
	dicegrpc "github.com/louisbranch/dicebot/internal/services/dice/api/grpc/dice"
	gogrpc "google.golang.org/grpc"
)

// Config defines the inputs for the chat transport boundary.
type Config struct {
	HTTPAddr string
	// TokenSecret enables HS256 socket auth when set.
	TokenSecret string
	// DiceAddr routes rolls to the dice gRPC service when set.
	DiceAddr          string
	MaxDice           uint64
	MaxBatches        uint64
	GRPCDialTimeout   time.Duration
	ReadHeaderTimeout time.Duration
	ShutdownTimeout   time.Duration
}

// Server hosts the chat HTTP/WebSocket process.
type Server struct {
	httpAddr        string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	diceConn        *gogrpc.ClientConn
}

// NewServer builds a configured chat server.
func NewServer(config Config) (*Server, error) {
	return NewServerWithContext(context.Background(), config)
}

// NewServerWithContext builds a configured chat server with an explicit
// context. An unreachable dice service falls back to the local engine.
func NewServerWithContext(ctx context.Context, config Config) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	httpAddr := strings.TrimSpace(config.HTTPAddr)
	if httpAddr == "" {
		return nil, errors.New("http address is required")
	}
	if config.ReadHeaderTimeout <= 0 {
		config.ReadHeaderTimeout = timeouts.ReadHeader
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = timeouts.Shutdown
	}
	if config.GRPCDialTimeout <= 0 {
		config.GRPCDialTimeout = timeouts.GRPCDial
	}
	if config.MaxDice == 0 {
		config.MaxDice = DefaultMaxDice
	}
	if config.MaxBatches == 0 {
		config.MaxBatches = DefaultMaxBatches
	}

	var diceConn *gogrpc.ClientConn
	var r roller = newLocalRoller(dice.Limits{MaxDice: config.MaxDice, MaxBatches: config.MaxBatches})
	if addr := strings.TrimSpace(config.DiceAddr); addr != "" {
		conn, err := platformgrpc.DialWithHealth(ctx, addr, platformgrpc.DialConfig{
			Service: dicegrpc.ServiceName,
			Timeout: config.GRPCDialTimeout,
			Logf:    log.Printf,
		})
		if err != nil {
			log.Printf("chat: dice gRPC dial failed, rolling locally: addr=%s err=%v", addr, err)
		} else {
			diceConn = conn
			r = &remoteRoller{client: dicegrpc.NewClient(conn)}
		}
	}

	var auth authenticator
	if tokenAuth := newTokenAuthenticator(config.TokenSecret); tokenAuth != nil {
		auth = tokenAuth
	}

	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           newHandler(auth, newRollBot(r)),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}

	return &Server{
		httpAddr:        httpAddr,
		shutdownTimeout: config.ShutdownTimeout,
		httpServer:      httpServer,
		diceConn:        diceConn,
	}, nil
}

// Run creates and serves a chat server until the context ends.
func Run(ctx context.Context, config Config) error {
	server, err := NewServerWithContext(ctx, config)
	if err != nil {
		return fmt.Errorf("init chat server: %w", err)
	}
	defer server.Close()

	if err := server.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve chat: %w", err)
	}
	return nil
}

// ListenAndServe runs the HTTP server until the context ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("chat server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}
	listener, err := net.Listen("tcp", s.httpAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpAddr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve accepts connections on listener until the context ends.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if s == nil {
		return errors.New("chat server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	serveErr := make(chan error, 1)
	log.Printf("chat server listening on %s", listener.Addr())
	go func() {
		serveErr <- s.httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		err := s.httpServer.Shutdown(shutdownCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// Close releases server resources.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.diceConn != nil {
		if err := s.diceConn.Close(); err != nil {
			log.Printf("close dice gRPC connection: %v", err)
		}
	}
}
