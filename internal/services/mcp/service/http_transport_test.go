package service

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHostGuard(t *testing.T) {
	guard := newHostGuard([]string{" Dice.Example.com ", ""})

	tests := []struct {
		name   string
		host   string
		origin string
		want   error
	}{
		{name: "loopback", host: "localhost:8081"},
		{name: "ipv6 loopback", host: "[::1]:8081"},
		{name: "allowed host", host: "dice.example.com"},
		{name: "allowed origin", host: "127.0.0.1:8081", origin: "https://dice.example.com"},
		{name: "foreign host", host: "evil.example.com", want: errInvalidHost},
		{name: "foreign origin", host: "localhost", origin: "https://evil.example.com", want: errInvalidOrigin},
		{name: "opaque origin", host: "localhost", origin: "null", want: errInvalidOrigin},
		{name: "empty host", host: "", want: errInvalidHost},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/mcp/health", nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := guard.check(req); got != tt.want {
				t.Fatalf("check() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHTTPTransportHealth(t *testing.T) {
	transport := NewHTTPTransport("localhost:0", newLocalServer(t).mcpServer, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/mcp/health", nil)
	req.Host = "localhost"
	transport.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Body.String() != "OK" {
		t.Fatalf("health = %d %q, want 200 OK", rr.Code, rr.Body.String())
	}

	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/mcp/health", nil)
	req.Host = "evil.example.com"
	transport.Handler().ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("foreign host status = %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestHTTPTransportServeStopsOnCancel(t *testing.T) {
	transport := NewHTTPTransport("localhost:0", newLocalServer(t).mcpServer, nil)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- transport.Serve(ctx, listener)
	}()

	resp, err := http.Get("http://" + listener.Addr().String() + "/mcp/health")
	if err != nil {
		t.Fatalf("get health: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	cancel()
	select {
	case err := <-serveErr:
		if err != nil {
			t.Fatalf("serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop after cancel")
	}
}
