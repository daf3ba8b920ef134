package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/louisbranch/dicebot/internal/dice"
	platformgrpc "github.com/louisbranch/dicebot/internal/platform/grpc"
	"github.com/louisbranch/dicebot/internal/platform/timeouts"
	dicegrpc "github.com/louisbranch/dicebot/internal/services/dice/api/grpc/dice"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/grpc"
)

const (
	serverName    = "dicebot MCP"
	serverVersion = "0.1.0"

	// DefaultMaxDice bounds the dice one tool call may sample.
	DefaultMaxDice = 10000
	// DefaultMaxBatches bounds the batches one tool call may request.
	DefaultMaxBatches = 100
)

// TransportKind identifies the MCP transport implementation.
type TransportKind string

const (
	// TransportStdio uses standard input/output for MCP.
	TransportStdio TransportKind = "stdio"
	// TransportHTTP serves streamable HTTP for remote clients.
	TransportHTTP TransportKind = "http"
)

// Config configures the MCP server.
type Config struct {
	// DiceAddr routes rolls to the dice gRPC service when set.
	DiceAddr  string
	Transport TransportKind
	// HTTPAddr defaults to localhost:8081 for HTTP transport.
	HTTPAddr     string
	AllowedHosts []string
	MaxDice      uint64
	MaxBatches   uint64
}

// Server hosts the MCP server.
type Server struct {
	mcpServer *mcp.Server
	conn      *grpc.ClientConn
}

// New creates an MCP server. With a dice address it dials the dice service
// and waits for it to report healthy; otherwise it rolls in process.
func New(ctx context.Context, cfg Config) (*Server, error) {
	addr := strings.TrimSpace(cfg.DiceAddr)
	if addr == "" {
		limits := dice.Limits{MaxDice: cfg.MaxDice, MaxBatches: cfg.MaxBatches}
		if limits.MaxDice == 0 {
			limits.MaxDice = DefaultMaxDice
		}
		if limits.MaxBatches == 0 {
			limits.MaxBatches = DefaultMaxBatches
		}
		return newServer(localRoller(dicegrpc.NewService(limits)), nil), nil
	}

	conn, err := dialDiceGRPC(ctx, addr)
	if err != nil {
		return nil, err
	}
	return newServer(remoteRoller(dicegrpc.NewClient(conn)), conn), nil
}

func newServer(roll roller, conn *grpc.ClientConn) *Server {
	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	mcp.AddTool(mcpServer, RollDiceTool(), RollDiceHandler(roll))
	return &Server{mcpServer: mcpServer, conn: conn}
}

// Run is the service entrypoint for MCP and blocks until context cancellation.
func Run(ctx context.Context, cfg Config) error {
	if cfg.Transport == "" {
		cfg.Transport = TransportStdio
	}
	switch cfg.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("transport %q is not supported", cfg.Transport)
	}

	server, err := New(ctx, cfg)
	if err != nil {
		return err
	}
	if cfg.Transport == TransportStdio {
		return server.serveWithTransport(ctx, &mcp.StdioTransport{})
	}
	defer func() {
		if err := server.Close(); err != nil {
			log.Printf("mcp: close dice connection: %v", err)
		}
	}()

	httpAddr := cfg.HTTPAddr
	if httpAddr == "" {
		httpAddr = "localhost:8081"
	}
	return NewHTTPTransport(httpAddr, server.mcpServer, cfg.AllowedHosts).Start(ctx)
}

// Serve starts the MCP server on stdio and blocks until it stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	return s.serveWithTransport(ctx, &mcp.StdioTransport{})
}

// Close releases the gRPC connection held by the server.
func (s *Server) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return err
	}
	s.conn = nil
	return nil
}

// serveWithTransport runs the MCP session and closes the dice connection on exit.
func (s *Server) serveWithTransport(ctx context.Context, transport mcp.Transport) error {
	if s == nil || s.mcpServer == nil {
		return fmt.Errorf("MCP server is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.mcpServer.Run(ctx, transport)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	closeErr := s.Close()
	if closeErr != nil {
		if err == nil {
			return fmt.Errorf("close gRPC connection: %w", closeErr)
		}
		return fmt.Errorf("serve MCP: %v; close gRPC connection: %w", err, closeErr)
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

func dialDiceGRPC(ctx context.Context, addr string) (*grpc.ClientConn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logf := func(format string, args ...any) {
		log.Printf("dice %s", fmt.Sprintf(format, args...))
	}
	conn, err := platformgrpc.DialWithHealth(ctx, addr, platformgrpc.DialConfig{
		Service: dicegrpc.ServiceName,
		Timeout: timeouts.GRPCDial,
		Logf:    logf,
	})
	if err != nil {
		var dialErr *platformgrpc.DialError
		if errors.As(err, &dialErr) && dialErr.Stage == platformgrpc.DialStageConnect {
			return nil, fmt.Errorf("connect to dice server at %s: %w", addr, dialErr.Err)
		}
		return nil, fmt.Errorf("dice server at %s: %w", addr, err)
	}
	return conn, nil
}
