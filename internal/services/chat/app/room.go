package server

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	maxRoomMessages      = 1000
	maxIdempotencyRecord = 4000
)

type wsSession struct {
	mu     sync.Mutex
	ident  identity
	locale string
	room   *chatRoom
	peer   *wsPeer
}

func newWSSession(ident identity, locale string, peer *wsPeer) *wsSession {
	return &wsSession{
		ident:  ident,
		locale: locale,
		peer:   peer,
	}
}

func (s *wsSession) setRoom(next *chatRoom) *chatRoom {
	s.mu.Lock()
	previous := s.room
	s.room = next
	s.mu.Unlock()
	return previous
}

func (s *wsSession) currentRoom() *chatRoom {
	s.mu.Lock()
	room := s.room
	s.mu.Unlock()
	return room
}

type wsPeer struct {
	mu      sync.Mutex
	encoder *json.Encoder
	// deadline bounds each write when set.
	deadline func() error
}

func newWSPeer(encoder *json.Encoder, deadline func() error) *wsPeer {
	return &wsPeer{encoder: encoder, deadline: deadline}
}

func (p *wsPeer) writeFrame(frame wsFrame) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deadline != nil {
		if err := p.deadline(); err != nil {
			return err
		}
	}
	return p.encoder.Encode(frame)
}

type roomHub struct {
	mu    sync.Mutex
	rooms map[string]*chatRoom
}

func newRoomHub() *roomHub {
	return &roomHub{rooms: make(map[string]*chatRoom)}
}

// join subscribes peer to the room, creating it on first use, and returns the
// latest sequence id it has seen.
func (h *roomHub) join(roomID string, peer *wsPeer) (*chatRoom, int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[roomID]
	if !ok {
		room = newChatRoom(roomID)
		h.rooms[roomID] = room
	}
	return room, room.join(peer)
}

func (h *roomHub) roomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// release drops an empty room so idle rooms do not accumulate.
func (h *roomHub) release(room *chatRoom, peer *wsPeer) {
	if room == nil || peer == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if room.leave(peer) && h.rooms[room.roomID] == room {
		delete(h.rooms, room.roomID)
	}
}

// chatRoom relays messages to its subscribers and keeps a bounded backlog
// for history requests.
type chatRoom struct {
	mu               sync.Mutex
	roomID           string
	nextSequence     int64
	messages         []chatMessage
	idempotencyBy    map[string]chatMessage
	idempotencyOrder []string
	subscribers      map[*wsPeer]struct{}
}

func newChatRoom(roomID string) *chatRoom {
	return &chatRoom{
		roomID:        roomID,
		idempotencyBy: make(map[string]chatMessage),
		subscribers:   make(map[*wsPeer]struct{}),
	}
}

func (r *chatRoom) join(peer *wsPeer) int64 {
	r.mu.Lock()
	r.subscribers[peer] = struct{}{}
	latest := r.nextSequence
	r.mu.Unlock()
	return latest
}

func (r *chatRoom) leave(peer *wsPeer) bool {
	r.mu.Lock()
	delete(r.subscribers, peer)
	empty := len(r.subscribers) == 0
	r.mu.Unlock()
	return empty
}

type messageDraft struct {
	Kind            string
	Actor           messageActor
	Body            string
	ClientMessageID string
}

// appendMessage sequences a draft and returns the subscribers to notify.
// A repeated client message id returns the original message and duplicate=true.
func (r *chatRoom) appendMessage(draft messageDraft) (msg chatMessage, duplicate bool, subscribers []*wsPeer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	clientMessageID := strings.TrimSpace(draft.ClientMessageID)
	if clientMessageID != "" {
		if existing, ok := r.idempotencyBy[clientMessageID]; ok {
			return existing, true, nil
		}
	}

	r.nextSequence++
	now := time.Now()
	msg = chatMessage{
		MessageID:       fmt.Sprintf("msg_%d_%d", now.UnixNano(), r.nextSequence),
		RoomID:          r.roomID,
		SequenceID:      r.nextSequence,
		SentAt:          now.UTC().Format(time.RFC3339),
		Kind:            draft.Kind,
		Actor:           draft.Actor,
		Body:            draft.Body,
		ClientMessageID: clientMessageID,
	}

	r.messages = append(r.messages, msg)
	if len(r.messages) > maxRoomMessages {
		r.messages = r.messages[len(r.messages)-maxRoomMessages:]
	}

	if clientMessageID != "" {
		r.idempotencyBy[clientMessageID] = msg
		r.idempotencyOrder = append(r.idempotencyOrder, clientMessageID)
		if len(r.idempotencyOrder) > maxIdempotencyRecord {
			evict := r.idempotencyOrder[0]
			r.idempotencyOrder = r.idempotencyOrder[1:]
			delete(r.idempotencyBy, evict)
		}
	}

	subscribers = make([]*wsPeer, 0, len(r.subscribers))
	for subscriber := range r.subscribers {
		subscribers = append(subscribers, subscriber)
	}
	return msg, false, subscribers
}

func (r *chatRoom) historyBefore(beforeSequenceID int64, limit int) []chatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()

	history := make([]chatMessage, 0, limit)
	for _, msg := range r.messages {
		if msg.SequenceID < beforeSequenceID {
			history = append(history, msg)
		}
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}
