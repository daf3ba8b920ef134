package service

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/louisbranch/dicebot/internal/dice"
	"github.com/louisbranch/dicebot/internal/random"
	dicegrpc "github.com/louisbranch/dicebot/internal/services/dice/api/grpc/dice"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
)

func connectSession(t *testing.T, server *Server) *mcp.ClientSession {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := server.mcpServer.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("connect server: %v", err)
	}
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("connect client: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func callRoll(t *testing.T, session *mcp.ClientSession, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := session.CallTool(context.Background(), &mcp.CallToolParams{Name: "roll_dice", Arguments: args})
	if err != nil {
		t.Fatalf("CallTool() error = %v", err)
	}
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("content length = %d, want 1", len(res.Content))
	}
	text, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T, want *mcp.TextContent", res.Content[0])
	}
	return text.Text
}

func decodeRollResult(t *testing.T, res *mcp.CallToolResult) RollDiceResult {
	t.Helper()
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	var out RollDiceResult
	if err := json.Unmarshal([]byte(resultText(t, res)), &out); err != nil {
		t.Fatalf("decode tool result: %v", err)
	}
	return out
}

func localOutput(t *testing.T, notation string, seed int64) string {
	t.Helper()
	cmd, err := dice.Parse(notation)
	if err != nil {
		t.Fatalf("parse %q: %v", notation, err)
	}
	output, err := cmd.Evaluate(random.NewSeededSource(seed))
	if err != nil {
		t.Fatalf("evaluate %q: %v", notation, err)
	}
	return output
}

func newLocalServer(t *testing.T) *Server {
	t.Helper()
	server, err := New(context.Background(), Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return server
}

// TestRollDiceToolReplaysSeed ensures a seeded call returns the engine output
// for that seed and echoes the seed back.
func TestRollDiceToolReplaysSeed(t *testing.T) {
	session := connectSession(t, newLocalServer(t))

	res := callRoll(t, session, map[string]any{"notation": "2 3d6 + 1", "seed": "-42"})
	got := decodeRollResult(t, res)
	want := RollDiceResult{Output: localOutput(t, "2 3d6 + 1", -42), Batches: 2, Seed: "-42"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("roll mismatch (-want +got):\n%s", diff)
	}
}

func TestRollDiceToolReportsReplayableSeed(t *testing.T) {
	session := connectSession(t, newLocalServer(t))

	got := decodeRollResult(t, callRoll(t, session, map[string]any{"notation": "4d20 k1"}))
	seed, err := strconv.ParseInt(got.Seed, 10, 64)
	if err != nil {
		t.Fatalf("seed %q is not an integer: %v", got.Seed, err)
	}
	if want := localOutput(t, "4d20 k1", seed); got.Output != want {
		t.Fatalf("output = %q, want replay %q", got.Output, want)
	}
}

func TestRollDiceToolErrors(t *testing.T) {
	session := connectSession(t, newLocalServer(t))

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{
			name: "trailing input",
			args: map[string]any{"notation": "1d6 x"},
			want: "Error, unexpected character: x",
		},
		{
			name: "blank notation",
			args: map[string]any{"notation": " "},
			want: "Error, failed to parse roll command: Incomplete expression",
		},
		{
			name: "invalid seed",
			args: map[string]any{"notation": "1d6", "seed": "lucky"},
			want: "Error, invalid seed: lucky",
		},
		{
			name: "too many dice",
			args: map[string]any{"notation": "20000d6"},
			want: "Error, too many dice: 20000 requested, limit is 10000",
		},
		{
			name: "localized",
			args: map[string]any{"notation": "d", "locale": "pt-BR"},
			want: "Erro, falha ao interpretar o comando de rolagem: expressão incompleta",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := callRoll(t, session, tt.args)
			if !res.IsError {
				t.Fatalf("expected tool error, got %s", resultText(t, res))
			}
			if got := resultText(t, res); got != tt.want {
				t.Fatalf("error text = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRollDiceToolRemote(t *testing.T) {
	listener := bufconn.Listen(1 << 20)
	grpcServer := grpc.NewServer()
	dicegrpc.RegisterDiceServiceServer(grpcServer, dicegrpc.NewService(dice.Limits{MaxDice: 5}))
	go func() {
		_ = grpcServer.Serve(listener)
	}()
	t.Cleanup(grpcServer.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufconn: %v", err)
	}
	server := newServer(remoteRoller(dicegrpc.NewClient(conn)), conn)
	t.Cleanup(func() { _ = server.Close() })
	session := connectSession(t, server)

	got := decodeRollResult(t, callRoll(t, session, map[string]any{"notation": "1d8", "seed": "7"}))
	if want := localOutput(t, "1d8", 7); got.Output != want {
		t.Fatalf("output = %q, want %q", got.Output, want)
	}

	res := callRoll(t, session, map[string]any{"notation": "6d6"})
	if !res.IsError || !strings.HasPrefix(resultText(t, res), "Error, too many dice") {
		t.Fatalf("expected too many dice tool error, got %+v", res)
	}
}

func TestServerListsRollDiceTool(t *testing.T) {
	session := connectSession(t, newLocalServer(t))

	tools, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools() error = %v", err)
	}
	if len(tools.Tools) != 1 || tools.Tools[0].Name != "roll_dice" {
		t.Fatalf("tools = %+v, want roll_dice only", tools.Tools)
	}
}

// TestRunUnsupportedTransport ensures Run rejects unknown transport kinds.
func TestRunUnsupportedTransport(t *testing.T) {
	err := Run(context.Background(), Config{Transport: "websocket"})
	if err == nil {
		t.Fatal("expected error for unsupported transport")
	}
	if !strings.Contains(err.Error(), "not supported") {
		t.Errorf("expected 'not supported' in error, got: %v", err)
	}
}

func TestServeWithTransportStopsOnCancel(t *testing.T) {
	server := newLocalServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.serveWithTransport(ctx, serverTransport)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(context.Background(), clientTransport, nil)
	if err != nil {
		t.Fatalf("connect client: %v", err)
	}
	defer session.Close()

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
