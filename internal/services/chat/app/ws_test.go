package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/louisbranch/dicebot/internal/dice"
	"golang.org/x/net/websocket"
)

type wsTestFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsTestAckPayload struct {
	Result struct {
		Status     string `json:"status"`
		MessageID  string `json:"message_id"`
		SequenceID int64  `json:"sequence_id"`
		Count      int    `json:"count"`
	} `json:"result"`
}

type wsTestMessagePayload struct {
	Message struct {
		SequenceID int64  `json:"sequence_id"`
		Kind       string `json:"kind"`
		Body       string `json:"body"`
		Actor      struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"actor"`
	} `json:"message"`
}

type wsTestJoinedPayload struct {
	RoomID           string `json:"room_id"`
	LatestSequenceID int64  `json:"latest_sequence_id"`
	Locale           string `json:"locale"`
}

// maxSource always rolls the highest face.
type maxSource struct{}

func (maxSource) Uint64N(n uint64) uint64 { return n - 1 }

func testRoller(limits dice.Limits) *localRoller {
	return &localRoller{
		limits: limits,
		newSource: func() (dice.Source, error) {
			return maxSource{}, nil
		},
	}
}

func testHandler() http.Handler {
	return newHandler(nil, newRollBot(testRoller(dice.Limits{MaxDice: DefaultMaxDice, MaxBatches: DefaultMaxBatches})))
}

func dialWS(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	return dialWSWithHandler(t, testHandler(), path, "")
}

func dialWSWithHandler(t *testing.T, handler http.Handler, path string, cookie string) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	conn, err := dialWSWithServerURL(srv.URL, path, cookie)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func dialWSWithHandlerErr(t *testing.T, handler http.Handler, path string, cookie string) error {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	conn, err := dialWSWithServerURL(srv.URL, path, cookie)
	if conn != nil {
		_ = conn.Close()
	}
	return err
}

func dialWSWithServerURL(httpURL string, path string, cookie string) (*websocket.Conn, error) {
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + path
	if strings.TrimSpace(cookie) == "" {
		return websocket.Dial(wsURL, "", httpURL)
	}
	cfg, err := websocket.NewConfig(wsURL, httpURL)
	if err != nil {
		return nil, err
	}
	cfg.Header = make(http.Header)
	cfg.Header.Set("Cookie", cookie)
	return websocket.DialConfig(cfg)
}

func dialWSWithExistingServer(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	conn, err := dialWSWithServerURL(srv.URL, path, "")
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	if err := json.NewEncoder(conn).Encode(frame); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) wsTestFrame {
	t.Helper()
	_ = conn.SetDeadline(time.Now().Add(2 * time.Second))
	var got wsTestFrame
	if err := json.NewDecoder(conn).Decode(&got); err != nil {
		t.Fatalf("decode server frame: %v", err)
	}
	return got
}

func decodeAckPayload(t *testing.T, payload json.RawMessage) wsTestAckPayload {
	t.Helper()
	var ack wsTestAckPayload
	if err := json.Unmarshal(payload, &ack); err != nil {
		t.Fatalf("decode ack payload: %v", err)
	}
	return ack
}

func decodeMessagePayload(t *testing.T, payload json.RawMessage) wsTestMessagePayload {
	t.Helper()
	var msg wsTestMessagePayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("decode message payload: %v", err)
	}
	return msg
}

func joinRoom(t *testing.T, conn *websocket.Conn, roomID string) wsTestJoinedPayload {
	t.Helper()
	writeFrame(t, conn, map[string]any{
		"type":       "chat.join",
		"request_id": "req-join-1",
		"payload":    map[string]any{"room_id": roomID},
	})
	got := readFrame(t, conn)
	if got.Type != "chat.joined" {
		t.Fatalf("frame type = %q, want %q", got.Type, "chat.joined")
	}
	var joined wsTestJoinedPayload
	if err := json.Unmarshal(got.Payload, &joined); err != nil {
		t.Fatalf("decode joined payload: %v", err)
	}
	return joined
}

func sendMessage(t *testing.T, conn *websocket.Conn, clientMessageID string, body string) {
	t.Helper()
	writeFrame(t, conn, map[string]any{
		"type":       "chat.send",
		"request_id": "req-" + clientMessageID,
		"payload": map[string]any{
			"client_message_id": clientMessageID,
			"body":              body,
		},
	})
}

// rollReply sends a roll command and returns the bot reply seen by the sender.
func rollReply(t *testing.T, conn *websocket.Conn, clientMessageID string, body string) wsTestMessagePayload {
	t.Helper()
	sendMessage(t, conn, clientMessageID, body)
	if ack := readFrame(t, conn); ack.Type != "chat.ack" {
		t.Fatalf("frame type = %q, want %q", ack.Type, "chat.ack")
	}
	if echo := readFrame(t, conn); echo.Type != "chat.message" {
		t.Fatalf("frame type = %q, want %q", echo.Type, "chat.message")
	}
	reply := readFrame(t, conn)
	if reply.Type != "chat.message" {
		t.Fatalf("reply frame type = %q, want %q", reply.Type, "chat.message")
	}
	return decodeMessagePayload(t, reply.Payload)
}

func TestWebSocketJoinReturnsJoinedFrame(t *testing.T) {
	conn := dialWS(t, "/ws")

	joined := joinRoom(t, conn, "room-1")
	if joined.RoomID != "room-1" {
		t.Fatalf("joined room = %q, want %q", joined.RoomID, "room-1")
	}
	if joined.LatestSequenceID != 0 {
		t.Fatalf("latest sequence = %d, want 0", joined.LatestSequenceID)
	}
	if joined.Locale != "en-US" {
		t.Fatalf("joined locale = %q, want %q", joined.Locale, "en-US")
	}
}

func TestWebSocketJoinRequiresRoomID(t *testing.T) {
	conn := dialWS(t, "/ws")

	writeFrame(t, conn, map[string]any{
		"type":       "chat.join",
		"request_id": "req-join-1",
		"payload":    map[string]any{"room_id": "  "},
	})

	got := readFrame(t, conn)
	if got.Type != "chat.error" {
		t.Fatalf("frame type = %q, want %q", got.Type, "chat.error")
	}
	if !strings.Contains(string(got.Payload), "room_id is required") {
		t.Fatalf("error payload = %s, expected room_id message", string(got.Payload))
	}
}

func TestWebSocketUnknownTypeReturnsChatError(t *testing.T) {
	conn := dialWS(t, "/ws")

	writeFrame(t, conn, map[string]any{
		"type":       "chat.unknown",
		"request_id": "req-bad-1",
		"payload":    map[string]any{},
	})

	got := readFrame(t, conn)
	if got.Type != "chat.error" {
		t.Fatalf("frame type = %q, want %q", got.Type, "chat.error")
	}
	if got.RequestID != "req-bad-1" {
		t.Fatalf("request id = %q, want %q", got.RequestID, "req-bad-1")
	}
	if !strings.Contains(string(got.Payload), "INVALID_ARGUMENT") {
		t.Fatalf("error payload = %s, expected INVALID_ARGUMENT code", string(got.Payload))
	}
}

func TestWebSocketSendBeforeJoinReturnsForbidden(t *testing.T) {
	conn := dialWS(t, "/ws")

	sendMessage(t, conn, "cli-1", "hello")

	got := readFrame(t, conn)
	if got.Type != "chat.error" {
		t.Fatalf("frame type = %q, want %q", got.Type, "chat.error")
	}
	if !strings.Contains(string(got.Payload), "FORBIDDEN") {
		t.Fatalf("error payload = %s, expected FORBIDDEN", string(got.Payload))
	}
}

func TestWebSocketSendRejectsLongBody(t *testing.T) {
	conn := dialWS(t, "/ws")
	joinRoom(t, conn, "room-1")

	sendMessage(t, conn, "cli-1", strings.Repeat("a", maxMessageBodyRunes+1))

	got := readFrame(t, conn)
	if got.Type != "chat.error" {
		t.Fatalf("frame type = %q, want %q", got.Type, "chat.error")
	}
	if !strings.Contains(string(got.Payload), "at most 2000 characters") {
		t.Fatalf("error payload = %s, expected body length message", string(got.Payload))
	}
}

func TestWebSocketSendBroadcastsWithinRoom(t *testing.T) {
	srv := httptest.NewServer(testHandler())
	t.Cleanup(srv.Close)

	connA := dialWSWithExistingServer(t, srv, "/ws?name=alice")
	connB := dialWSWithExistingServer(t, srv, "/ws?name=bob")

	joinRoom(t, connA, "room-1")
	joinRoom(t, connB, "room-1")

	sendMessage(t, connA, "cli-1", "hello room")

	ack := readFrame(t, connA)
	if ack.Type != "chat.ack" {
		t.Fatalf("sender frame type = %q, want %q", ack.Type, "chat.ack")
	}
	senderMessage := readFrame(t, connA)
	if senderMessage.Type != "chat.message" {
		t.Fatalf("sender frame type = %q, want %q", senderMessage.Type, "chat.message")
	}

	receiverMessage := readFrame(t, connB)
	if receiverMessage.Type != "chat.message" {
		t.Fatalf("receiver frame type = %q, want %q", receiverMessage.Type, "chat.message")
	}
	payload := decodeMessagePayload(t, receiverMessage.Payload)
	if payload.Message.Body != "hello room" {
		t.Fatalf("receiver message body = %q, want %q", payload.Message.Body, "hello room")
	}
	if payload.Message.Actor.Name != "alice" {
		t.Fatalf("receiver actor = %q, want %q", payload.Message.Actor.Name, "alice")
	}
	if payload.Message.Kind != "text" {
		t.Fatalf("receiver kind = %q, want %q", payload.Message.Kind, "text")
	}
}

func TestWebSocketSendIsIdempotentByClientMessageID(t *testing.T) {
	conn := dialWS(t, "/ws")
	joinRoom(t, conn, "room-1")

	sendMessage(t, conn, "cli-dup-1", "hello once")
	firstAck := readFrame(t, conn)
	if firstAck.Type != "chat.ack" {
		t.Fatalf("first frame type = %q, want %q", firstAck.Type, "chat.ack")
	}
	_ = readFrame(t, conn)

	sendMessage(t, conn, "cli-dup-1", "hello twice")
	secondAck := readFrame(t, conn)
	if secondAck.Type != "chat.ack" {
		t.Fatalf("second frame type = %q, want %q", secondAck.Type, "chat.ack")
	}

	first := decodeAckPayload(t, firstAck.Payload)
	second := decodeAckPayload(t, secondAck.Payload)
	if first.Result.MessageID == "" {
		t.Fatal("expected first ack message_id")
	}
	if first.Result.MessageID != second.Result.MessageID {
		t.Fatalf("message_id mismatch: %q != %q", first.Result.MessageID, second.Result.MessageID)
	}
	if first.Result.SequenceID != second.Result.SequenceID {
		t.Fatalf("sequence_id mismatch: %d != %d", first.Result.SequenceID, second.Result.SequenceID)
	}
}

func TestWebSocketHistoryBeforeReturnsMessagesAndAck(t *testing.T) {
	conn := dialWS(t, "/ws")
	joinRoom(t, conn, "room-1")

	sendMessage(t, conn, "cli-1", "m1")
	_ = readFrame(t, conn)
	_ = readFrame(t, conn)

	sendMessage(t, conn, "cli-2", "m2")
	_ = readFrame(t, conn)
	_ = readFrame(t, conn)

	writeFrame(t, conn, map[string]any{
		"type":       "chat.history.before",
		"request_id": "req-history-1",
		"payload": map[string]any{
			"before_sequence_id": 3,
			"limit":              10,
		},
	})

	m1 := readFrame(t, conn)
	m2 := readFrame(t, conn)
	ack := readFrame(t, conn)
	if m1.Type != "chat.message" || m2.Type != "chat.message" {
		t.Fatalf("expected two chat.message frames, got %q and %q", m1.Type, m2.Type)
	}
	if body := decodeMessagePayload(t, m1.Payload).Message.Body; body != "m1" {
		t.Fatalf("first history body = %q, want %q", body, "m1")
	}
	if ack.Type != "chat.ack" {
		t.Fatalf("ack frame type = %q, want %q", ack.Type, "chat.ack")
	}
	ackPayload := decodeAckPayload(t, ack.Payload)
	if ackPayload.Result.Count != 2 {
		t.Fatalf("history ack count = %d, want 2", ackPayload.Result.Count)
	}
}

func TestWebSocketRollReply(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "single batch",
			body: "!roll 1d6",
			want: "alice requested `[1d6]` Roll: `[6]` Result: `6`",
		},
		{
			name: "multiple batches",
			body: "!roll 2 1d6 + 1",
			want: "alice requested `[2 1d6 + 1]` Rolls:\n`[6]` Result: `7`\n`[6]` Result: `7`",
		},
		{
			name: "parse error",
			body: "!roll d",
			want: "alice requested `[d]` Roll: Error, failed to parse roll command: Incomplete expression",
		},
		{
			name: "too many dice",
			body: "!roll 10001d6",
			want: "alice requested `[10001d6]` Roll: Error, too many dice: 10001 requested, limit is 10000",
		},
		{
			name: "output too long",
			body: "!roll 1000d6",
			want: "alice requested `[1000d6]` Error, roll output exceeds 2000 characters",
		},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dialWS(t, "/ws?name=alice")
			joinRoom(t, conn, "room-1")

			reply := rollReply(t, conn, "cli-roll-"+string(rune('a'+i)), tt.body)
			if reply.Message.Kind != "roll" {
				t.Fatalf("reply kind = %q, want %q", reply.Message.Kind, "roll")
			}
			if reply.Message.Actor.ID != botActorID {
				t.Fatalf("reply actor = %q, want %q", reply.Message.Actor.ID, botActorID)
			}
			if reply.Message.Body != tt.want {
				t.Fatalf("reply body = %q, want %q", reply.Message.Body, tt.want)
			}
		})
	}
}

func TestWebSocketRollReplyBroadcastsToRoom(t *testing.T) {
	srv := httptest.NewServer(testHandler())
	t.Cleanup(srv.Close)

	connA := dialWSWithExistingServer(t, srv, "/ws?name=alice")
	connB := dialWSWithExistingServer(t, srv, "/ws?name=bob")
	joinRoom(t, connA, "room-1")
	joinRoom(t, connB, "room-1")

	_ = rollReply(t, connA, "cli-1", "!roll 1d4")

	if echo := readFrame(t, connB); echo.Type != "chat.message" {
		t.Fatalf("receiver frame type = %q, want %q", echo.Type, "chat.message")
	}
	reply := decodeMessagePayload(t, readFrame(t, connB).Payload)
	want := "alice requested `[1d4]` Roll: `[4]` Result: `4`"
	if reply.Message.Body != want {
		t.Fatalf("receiver reply = %q, want %q", reply.Message.Body, want)
	}
	if reply.Message.SequenceID != 2 {
		t.Fatalf("reply sequence = %d, want 2", reply.Message.SequenceID)
	}
}

func TestWebSocketDuplicateRollIsNotRerolled(t *testing.T) {
	conn := dialWS(t, "/ws?name=alice")
	joinRoom(t, conn, "room-1")

	_ = rollReply(t, conn, "cli-1", "!roll 1d6")

	sendMessage(t, conn, "cli-1", "!roll 1d6")
	if ack := readFrame(t, conn); ack.Type != "chat.ack" {
		t.Fatalf("frame type = %q, want %q", ack.Type, "chat.ack")
	}

	writeFrame(t, conn, map[string]any{
		"type":       "chat.history.before",
		"request_id": "req-history-1",
		"payload":    map[string]any{"before_sequence_id": 100},
	})
	_ = readFrame(t, conn)
	_ = readFrame(t, conn)
	ack := decodeAckPayload(t, readFrame(t, conn).Payload)
	if ack.Result.Count != 2 {
		t.Fatalf("history count = %d, want 2", ack.Result.Count)
	}
}

func TestWebSocketRollReplyUsesRequestLocale(t *testing.T) {
	conn := dialWS(t, "/ws?name=ana&locale=pt-BR")
	joined := joinRoom(t, conn, "room-1")
	if joined.Locale != "pt-BR" {
		t.Fatalf("joined locale = %q, want %q", joined.Locale, "pt-BR")
	}

	reply := rollReply(t, conn, "cli-1", "!roll 1d6")
	want := "ana pediu `[1d6]` Rolagem: `[6]` Result: `6`"
	if reply.Message.Body != want {
		t.Fatalf("reply body = %q, want %q", reply.Message.Body, want)
	}

	reply = rollReply(t, conn, "cli-2", "!roll d")
	want = "ana pediu `[d]` Rolagem: Erro, falha ao interpretar o comando de rolagem: expressão incompleta"
	if reply.Message.Body != want {
		t.Fatalf("reply body = %q, want %q", reply.Message.Body, want)
	}
}

func TestWebSocketPlainMessageGetsNoReply(t *testing.T) {
	conn := dialWS(t, "/ws")
	joinRoom(t, conn, "room-1")

	sendMessage(t, conn, "cli-1", "!rolling 1d6")
	_ = readFrame(t, conn)
	_ = readFrame(t, conn)

	sendMessage(t, conn, "cli-2", "next")
	if ack := readFrame(t, conn); ack.Type != "chat.ack" {
		t.Fatalf("frame type = %q, want %q", ack.Type, "chat.ack")
	}
	msg := decodeMessagePayload(t, readFrame(t, conn).Payload)
	if msg.Message.SequenceID != 2 {
		t.Fatalf("sequence = %d, want 2", msg.Message.SequenceID)
	}
}

func TestWebSocketEndpointRequiresTokenWhenAuthConfigured(t *testing.T) {
	handler := newHandler(newTokenAuthenticator("secret"), newRollBot(testRoller(dice.Limits{})))
	err := dialWSWithHandlerErr(t, handler, "/ws", "")
	if err == nil {
		t.Fatal("expected websocket dial error")
	}
	if !strings.Contains(err.Error(), "bad status") {
		t.Fatalf("dial error = %v, expected bad status", err)
	}
}

func TestWebSocketTokenIdentityNamesRoller(t *testing.T) {
	auth := newTokenAuthenticator("secret")
	handler := newHandler(auth, newRollBot(testRoller(dice.Limits{})))
	token := signToken(t, "secret", chatClaims{Nickname: "Grace", Locale: "pt-BR"}, "user-7")

	conn := dialWSWithHandler(t, handler, "/ws", tokenCookieName+"="+token)
	joinRoom(t, conn, "room-1")

	reply := rollReply(t, conn, "cli-1", "!roll 1d2")
	want := "Grace pediu `[1d2]` Rolagem: `[2]` Result: `2`"
	if reply.Message.Body != want {
		t.Fatalf("reply body = %q, want %q", reply.Message.Body, want)
	}
}
