package server

import (
	"encoding/json"
	"log"
)

const (
	frameJoin          = "chat.join"
	frameSend          = "chat.send"
	frameHistoryBefore = "chat.history.before"
	frameJoined        = "chat.joined"
	frameMessage       = "chat.message"
	frameAck           = "chat.ack"
	frameError         = "chat.error"
)

const (
	messageKindText = "text"
	messageKindRoll = "roll"
)

const (
	errCodeInvalidArgument   = "INVALID_ARGUMENT"
	errCodeForbidden         = "FORBIDDEN"
	errCodeResourceExhausted = "RESOURCE_EXHAUSTED"
)

type wsFrame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type wsErrorEnvelope struct {
	Error wsError `json:"error"`
}

type wsError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

type joinPayload struct {
	RoomID string `json:"room_id"`
}

type joinedPayload struct {
	RoomID           string `json:"room_id"`
	LatestSequenceID int64  `json:"latest_sequence_id"`
	ServerTime       string `json:"server_time"`
	Locale           string `json:"locale"`
}

type sendPayload struct {
	ClientMessageID string `json:"client_message_id"`
	Body            string `json:"body"`
}

type historyBeforePayload struct {
	BeforeSequenceID int64 `json:"before_sequence_id"`
	Limit            int   `json:"limit"`
}

type messageEnvelope struct {
	Message chatMessage `json:"message"`
}

type chatMessage struct {
	MessageID       string       `json:"message_id"`
	RoomID          string       `json:"room_id"`
	SequenceID      int64        `json:"sequence_id"`
	SentAt          string       `json:"sent_at"`
	Kind            string       `json:"kind"`
	Actor           messageActor `json:"actor"`
	Body            string       `json:"body"`
	ClientMessageID string       `json:"client_message_id,omitempty"`
}

type messageActor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ackEnvelope struct {
	Result ackResult `json:"result"`
}

type ackResult struct {
	Status     string `json:"status"`
	MessageID  string `json:"message_id,omitempty"`
	SequenceID int64  `json:"sequence_id,omitempty"`
	Count      int    `json:"count,omitempty"`
}

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("chat: failed to marshal websocket frame payload: %v", err)
		return nil
	}
	return b
}
