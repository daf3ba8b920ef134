package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/louisbranch/dicebot/internal/dice"
	"github.com/louisbranch/dicebot/internal/platform/i18n/catalog"
	"github.com/louisbranch/dicebot/internal/platform/timeouts"
	"golang.org/x/net/websocket"
)

const (
	maxFramePayloadBytes   = 16 * 1024
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3

	maxMessageBodyRunes     = 2000
	maxClientMessageIDRunes = 128
	maxRoomIDRunes          = 128

	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type wsIdentityContextKey struct{}

// NewHandler creates anonymous chat routes that roll with the local engine
// under the default limits.
func NewHandler() http.Handler {
	return newHandler(nil, newRollBot(newLocalRoller(dice.Limits{
		MaxDice:    DefaultMaxDice,
		MaxBatches: DefaultMaxBatches,
	})))
}

// newHandler requires a valid token on every socket when auth is set.
func newHandler(auth authenticator, bot *rollBot) http.Handler {
	hub := newRoomHub()
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	wsHandler := websocket.Handler(func(conn *websocket.Conn) {
		handleWSConn(conn, hub, bot)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		ident := anonymousIdentity(r)
		if auth != nil {
			token := tokenFromRequest(r)
			if token == "" {
				log.Printf("chat: websocket unauthorized: missing token host=%q remote=%s", r.Host, r.RemoteAddr)
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			resolved, err := auth.Authenticate(token)
			if err != nil {
				log.Printf("chat: websocket unauthorized: host=%q remote=%s err=%v", r.Host, r.RemoteAddr, err)
				http.Error(w, "authentication required", http.StatusUnauthorized)
				return
			}
			ident = resolved
		}
		ident.Locale = catalog.Default().Match(requestLocale(r, ident))

		r = r.WithContext(context.WithValue(r.Context(), wsIdentityContextKey{}, ident))
		wsHandler.ServeHTTP(w, r)
	})

	return mux
}

func handleWSConn(conn *websocket.Conn, hub *roomHub, bot *rollBot) {
	defer func() {
		_ = conn.Close()
	}()

	ctx := context.Background()
	ident := identity{ID: "anon:" + anonymousName, Name: anonymousName, Locale: catalog.BaseLocale}
	if request := conn.Request(); request != nil {
		ctx = request.Context()
		if resolved, ok := ctx.Value(wsIdentityContextKey{}).(identity); ok {
			ident = resolved
		}
	}

	decoder := json.NewDecoder(conn)
	peer := newWSPeer(json.NewEncoder(conn), func() error {
		return conn.SetWriteDeadline(time.Now().Add(timeouts.WSWrite))
	})
	session := newWSSession(ident, ident.Locale, peer)
	defer func() {
		hub.release(session.currentRoom(), session.peer)
	}()

	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame wsFrame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			decodeErrors++
			_ = writeWSError(session.peer, "", errCodeInvalidArgument, "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		if len(frame.Payload) > maxFramePayloadBytes {
			_ = writeWSError(session.peer, frame.RequestID, errCodeInvalidArgument, "payload too large")
			continue
		}

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			_ = writeWSError(session.peer, frame.RequestID, errCodeResourceExhausted, "rate limit exceeded")
			return
		}

		switch frame.Type {
		case frameJoin:
			handleJoinFrame(session, hub, frame)
		case frameSend:
			handleSendFrame(ctx, session, bot, frame)
		case frameHistoryBefore:
			handleHistoryBeforeFrame(session, frame)
		default:
			_ = writeWSError(session.peer, frame.RequestID, errCodeInvalidArgument, "unsupported frame type")
		}
	}
}

func handleJoinFrame(session *wsSession, hub *roomHub, frame wsFrame) {
	var payload joinPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, errCodeInvalidArgument, "invalid join payload")
		return
	}
	roomID := strings.TrimSpace(payload.RoomID)
	if roomID == "" {
		_ = writeWSError(session.peer, frame.RequestID, errCodeInvalidArgument, "room_id is required")
		return
	}
	if utf8.RuneCountInString(roomID) > maxRoomIDRunes {
		_ = writeWSError(session.peer, frame.RequestID, errCodeInvalidArgument, "room_id must be at most 128 characters")
		return
	}

	room, latest := hub.join(roomID, session.peer)
	if previous := session.setRoom(room); previous != nil && previous != room {
		hub.release(previous, session.peer)
	}

	_ = session.peer.writeFrame(wsFrame{
		Type:      frameJoined,
		RequestID: frame.RequestID,
		Payload: mustJSON(joinedPayload{
			RoomID:           roomID,
			LatestSequenceID: latest,
			ServerTime:       time.Now().UTC().Format(time.RFC3339),
			Locale:           session.locale,
		}),
	})
}

func handleSendFrame(ctx context.Context, session *wsSession, bot *rollBot, frame wsFrame) {
	var payload sendPayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, errCodeInvalidArgument, "invalid send payload")
		return
	}

	clientMessageID := strings.TrimSpace(payload.ClientMessageID)
	if clientMessageID == "" {
		_ = writeWSError(session.peer, frame.RequestID, errCodeInvalidArgument, "client_message_id is required")
		return
	}
	if utf8.RuneCountInString(clientMessageID) > maxClientMessageIDRunes {
		_ = writeWSError(session.peer, frame.RequestID, errCodeInvalidArgument, "client_message_id must be at most 128 characters")
		return
	}

	body := strings.TrimSpace(payload.Body)
	if body == "" {
		_ = writeWSError(session.peer, frame.RequestID, errCodeInvalidArgument, "body is required")
		return
	}
	if utf8.RuneCountInString(body) > maxMessageBodyRunes {
		_ = writeWSError(session.peer, frame.RequestID, errCodeInvalidArgument, "body must be at most 2000 characters")
		return
	}

	room := session.currentRoom()
	if room == nil {
		_ = writeWSError(session.peer, frame.RequestID, errCodeForbidden, "must join a room before sending")
		return
	}

	msg, duplicate, subscribers := room.appendMessage(messageDraft{
		Kind:            messageKindText,
		Actor:           messageActor{ID: session.ident.ID, Name: session.ident.Name},
		Body:            body,
		ClientMessageID: clientMessageID,
	})

	_ = session.peer.writeFrame(wsFrame{
		Type:      frameAck,
		RequestID: frame.RequestID,
		Payload: mustJSON(ackEnvelope{
			Result: ackResult{
				Status:     "ok",
				MessageID:  msg.MessageID,
				SequenceID: msg.SequenceID,
			},
		}),
	})

	if duplicate {
		return
	}
	broadcast(subscribers, msg)

	text, ok := rollText(payload.Body)
	if !ok || bot == nil {
		return
	}
	reply, _, subscribers := room.appendMessage(messageDraft{
		Kind:  messageKindRoll,
		Actor: bot.actor(session.locale),
		Body:  bot.reply(ctx, session.ident.Name, session.locale, text),
	})
	broadcast(subscribers, reply)
}

func broadcast(subscribers []*wsPeer, msg chatMessage) {
	messageFrame := wsFrame{
		Type:    frameMessage,
		Payload: mustJSON(messageEnvelope{Message: msg}),
	}
	for _, subscriber := range subscribers {
		_ = subscriber.writeFrame(messageFrame)
	}
}

func handleHistoryBeforeFrame(session *wsSession, frame wsFrame) {
	var payload historyBeforePayload
	if err := json.Unmarshal(frame.Payload, &payload); err != nil {
		_ = writeWSError(session.peer, frame.RequestID, errCodeInvalidArgument, "invalid history payload")
		return
	}
	if payload.BeforeSequenceID < 1 {
		_ = writeWSError(session.peer, frame.RequestID, errCodeInvalidArgument, "before_sequence_id must be >= 1")
		return
	}
	if payload.Limit <= 0 {
		payload.Limit = defaultHistoryLimit
	}
	if payload.Limit > maxHistoryLimit {
		payload.Limit = maxHistoryLimit
	}

	room := session.currentRoom()
	if room == nil {
		_ = writeWSError(session.peer, frame.RequestID, errCodeForbidden, "must join a room before requesting history")
		return
	}

	history := room.historyBefore(payload.BeforeSequenceID, payload.Limit)
	for _, msg := range history {
		_ = session.peer.writeFrame(wsFrame{
			Type:    frameMessage,
			Payload: mustJSON(messageEnvelope{Message: msg}),
		})
	}
	_ = session.peer.writeFrame(wsFrame{
		Type:      frameAck,
		RequestID: frame.RequestID,
		Payload: mustJSON(ackEnvelope{
			Result: ackResult{
				Status: "ok",
				Count:  len(history),
			},
		}),
	})
}

func writeWSError(peer *wsPeer, requestID string, code string, message string) error {
	return peer.writeFrame(wsFrame{
		Type:      frameError,
		RequestID: requestID,
		Payload: mustJSON(wsErrorEnvelope{
			Error: wsError{
				Code:      code,
				Message:   message,
				Retryable: code == errCodeResourceExhausted,
			},
		}),
	})
}
