package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"

	"github.com/galynx/galynx-server/internal/audit"
	"github.com/galynx/galynx-server/internal/auth"
	"github.com/galynx/galynx-server/internal/channel"
	"github.com/galynx/galynx-server/internal/ratelimit"
	"github.com/galynx/galynx-server/internal/reaction"
	"github.com/galynx/galynx-server/internal/store"
)

const (
	// maxFrameSize bounds a single inbound command frame.
	maxFrameSize = 64 * 1024

	// writeWait is the time allowed to flush one outbound frame.
	writeWait = 10 * time.Second

	sendBuffer = 256
)

// SessionDeps are the services a websocket session dispatches into.
type SessionDeps struct {
	Store     *store.Store
	Channels  *channel.Service
	Reactions *reaction.Service
	Audit     *audit.Service
	Limits    *ratelimit.Service
	Hub       *Hub
}

// Session drives one authenticated websocket connection: a write pump for
// outbound frames, a forwarder that drains the hub subscription, and a read
// loop dispatching client commands. Command failures are reported as ERROR
// events without closing the socket.
type Session struct {
	conn  *websocket.Conn
	actor auth.Context
	deps  SessionDeps
	sub   *Subscription
	send  chan []byte
	log   zerolog.Logger

	closeOnce sync.Once
}

func NewSession(conn *websocket.Conn, actor auth.Context, deps SessionDeps, logger zerolog.Logger) *Session {
	return &Session{
		conn:  conn,
		actor: actor,
		deps:  deps,
		send:  make(chan []byte, sendBuffer),
		log: logger.With().
			Str("component", "realtime-session").
			Str("user_id", actor.UserID.String()).
			Logger(),
	}
}

// Run blocks until the connection ends. The caller owns the connection's
// lifetime; Run closes it on exit.
func (s *Session) Run() {
	ctx := context.Background()

	s.sub = s.deps.Hub.Subscribe(s.actor.WorkspaceID)
	defer s.close()

	s.deps.Audit.Write(ctx, s.actor.WorkspaceID, &s.actor.UserID, "WS_CONNECTED", "session", nil, map[string]any{
		"transport": "websocket",
	})

	go s.writePump()
	go s.forwardEvents()

	workspaceID := s.actor.WorkspaceID
	s.enqueueEvent(Event{
		EventType:   "WELCOME",
		WorkspaceID: &workspaceID,
		ServerTS:    time.Now().UnixMilli(),
		Payload: map[string]any{
			"user_id": s.actor.UserID,
			"role":    s.actor.Role,
		},
	})

	s.readLoop(ctx)
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.sub.Close()
		_ = s.conn.Close()
	})
}

// readLoop consumes inbound frames. Only text frames carry commands; the
// websocket library answers pings on its own.
func (s *Session) readLoop(ctx context.Context) {
	s.conn.SetReadLimit(maxFrameSize)
	for {
		messageType, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("WebSocket read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if err := s.handleFrame(ctx, raw); err != nil {
			s.enqueueError(err)
		}
	}
}

// writePump is the only goroutine that writes to the connection.
func (s *Session) writePump() {
	defer s.close()
	for {
		select {
		case frame := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-s.sub.Done():
			return
		}
	}
}

// forwardEvents relays hub broadcasts into the send queue.
func (s *Session) forwardEvents() {
	for {
		select {
		case event := <-s.sub.Events():
			s.enqueueEvent(event)
		case <-s.sub.Done():
			return
		}
	}
}

func (s *Session) enqueueEvent(event Event) {
	raw, err := json.Marshal(event)
	if err != nil {
		s.log.Warn().Err(err).Str("event_type", event.EventType).Msg("Failed to serialize event")
		return
	}
	s.enqueue(raw)
}

func (s *Session) enqueue(frame []byte) {
	select {
	case s.send <- frame:
	case <-s.sub.Done():
	}
}
