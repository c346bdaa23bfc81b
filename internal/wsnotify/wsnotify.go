// Package wsnotify keeps the connected operator websocket sessions and
// relays notifier events to them.
package wsnotify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"whatsapp-router/internal/notifier"
	"whatsapp-router/internal/utils"
)

const writeWait = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func Upgrader() *websocket.Upgrader {
	return &upgrader
}

// Filter decides whether a message-level event may reach a session.
// Conversation-level events always go through.
type Filter func(event notifier.Event) bool

// Conn is the subset of *websocket.Conn the hub writes to.
type Conn interface {
	SetWriteDeadline(t time.Time) error
	WriteJSON(v interface{}) error
	Close() error
}

type session struct {
	conn    Conn
	adminID int
	filter  Filter
	mu      sync.Mutex
}

// Hub is a notifier sink. Each session receives every conversation-level
// event and the message-level events its filter accepts.
type Hub struct {
	lock     sync.RWMutex
	sessions map[Conn]*session
	onChange func(count int)
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[Conn]*session)}
}

// OnSessionsChanged registers a callback fired with the session count.
func (h *Hub) OnSessionsChanged(fn func(count int)) {
	h.lock.Lock()
	h.onChange = fn
	h.lock.Unlock()
}

func (h *Hub) AddClient(conn Conn, adminID int, filter Filter) {
	h.lock.Lock()
	h.sessions[conn] = &session{conn: conn, adminID: adminID, filter: filter}
	count, fn := len(h.sessions), h.onChange
	h.lock.Unlock()

	utils.LogDebug("Sessão websocket adicionada para admin %d (%d ativas)", adminID, count)
	if fn != nil {
		fn(count)
	}
}

func (h *Hub) RemoveClient(conn Conn) {
	h.lock.Lock()
	_, existed := h.sessions[conn]
	delete(h.sessions, conn)
	count, fn := len(h.sessions), h.onChange
	h.lock.Unlock()

	if existed && fn != nil {
		fn(count)
	}
}

func (h *Hub) Count() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.sessions)
}

func (h *Hub) Name() string { return "websocket" }

// Deliver writes the event to every interested session. Broken sessions are
// closed and dropped; that never fails the delivery as a whole.
func (h *Hub) Deliver(ctx context.Context, event notifier.Event) error {
	h.lock.RLock()
	targets := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		if event.IsMessageLevel() && s.filter != nil && !s.filter(event) {
			continue
		}
		targets = append(targets, s)
	}
	h.lock.RUnlock()

	for _, s := range targets {
		if err := s.write(event); err != nil {
			utils.LogWarning("Erro ao enviar evento para admin %d: %v", s.adminID, err)
			s.conn.Close()
			h.RemoveClient(s.conn)
		}
	}
	return nil
}

func (s *session) write(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}
