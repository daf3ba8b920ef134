package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/louisbranch/dicebot/internal/platform/timeouts"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var listenTCP = net.Listen

// HTTPTransport serves MCP over streamable HTTP at /mcp with a health probe
// at /mcp/health.
type HTTPTransport struct {
	addr       string
	guard      hostGuard
	handler    http.Handler
	httpServer *http.Server
}

// NewHTTPTransport wraps server in the SDK's streamable HTTP handler.
func NewHTTPTransport(addr string, server *mcp.Server, allowedHosts []string) *HTTPTransport {
	t := &HTTPTransport{addr: addr, guard: newHostGuard(allowedHosts)}
	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/mcp", t.guarded(streamable))
	mux.Handle("/mcp/health", t.guarded(http.HandlerFunc(handleHealth)))
	t.handler = mux
	return t
}

// Handler returns the routes without a listener.
func (t *HTTPTransport) Handler() http.Handler {
	return t.handler
}

func (t *HTTPTransport) guarded(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := t.guard.check(r); err != nil {
			log.Printf("mcp: rejected request host=%q origin=%q err=%v", r.Host, r.Header.Get("Origin"), err)
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Printf("mcp: write health response: %v", err)
	}
}

// Start listens on the transport address and serves until ctx ends.
func (t *HTTPTransport) Start(ctx context.Context) error {
	listener, err := listenTCP("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", t.addr, err)
	}
	return t.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx ends.
func (t *HTTPTransport) Serve(ctx context.Context, listener net.Listener) error {
	t.httpServer = &http.Server{
		Handler:           t.handler,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}

	log.Printf("mcp: HTTP server listening on %s", listener.Addr())
	errChan := make(chan error, 1)
	go func() {
		errChan <- t.httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		log.Printf("mcp: shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		defer cancel()
		if err := t.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown HTTP server: %w", err)
		}
		return nil
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTP server error: %w", err)
	}
}
