// Package ws bridges WebSocket connections to the broadcast hub and the
// process supervisor.
package ws

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/craft-console/backend/internal/hub"
	"github.com/craft-console/backend/internal/model"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed since the last liveness response before
	// the session is considered dead.
	pongWait = 10 * time.Second

	// pingPeriod is the liveness probe interval. Must be less than pongWait.
	pingPeriod = 5 * time.Second

	// maxMessageSize bounds commands received from the peer.
	maxMessageSize = 8192

	// noticeBacklog buffers session-local messages (banner, command acks)
	// heading to the transport.
	noticeBacklog = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: Implement proper origin checking in production
		return true
	},
}

// Upgrade upgrades an HTTP request to a WebSocket connection.
func Upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return upgrader.Upgrade(w, r, nil)
}

// CommandSink receives console commands typed by clients. The supervisor
// implements it.
type CommandSink interface {
	SendCommand(command string) error
}

// Heartbeat holds the liveness timing for a session. The zero value selects
// the defaults (probe every 5s, drop after 10s of silence).
type Heartbeat struct {
	PingPeriod time.Duration
	PongWait   time.Duration
	WriteWait  time.Duration
}

func (h Heartbeat) withDefaults() Heartbeat {
	if h.PingPeriod <= 0 {
		h.PingPeriod = pingPeriod
	}
	if h.PongWait <= 0 {
		h.PongWait = pongWait
	}
	if h.WriteWait <= 0 {
		h.WriteWait = writeWait
	}
	return h
}

// Session is the per-connection state machine. It registers with the hub,
// forwards delivered console lines to the transport, forwards received text
// frames to the supervisor as commands, and terminates itself when the peer
// misses its liveness deadline.
type Session struct {
	log      *zap.SugaredLogger
	conn     *websocket.Conn
	hub      *hub.Hub
	commands CommandSink
	hb       Heartbeat

	sub     *hub.Subscriber
	notices chan string
}

// NewSession creates a session bound to an upgraded connection.
func NewSession(conn *websocket.Conn, h *hub.Hub, commands CommandSink, log *zap.SugaredLogger) *Session {
	return NewSessionWithHeartbeat(conn, h, commands, Heartbeat{}, log)
}

// NewSessionWithHeartbeat creates a session with explicit liveness timing.
func NewSessionWithHeartbeat(conn *websocket.Conn, h *hub.Hub, commands CommandSink, hb Heartbeat, log *zap.SugaredLogger) *Session {
	return &Session{
		log:      log,
		conn:     conn,
		hub:      h,
		commands: commands,
		hb:       hb.withDefaults(),
		notices:  make(chan string, noticeBacklog),
	}
}

// Start registers the session with the hub, queues the welcome banner, and
// starts the read and write pumps. It returns immediately; the pumps own the
// connection from here on.
func (s *Session) Start() {
	s.sub = s.hub.Register()
	s.log = s.log.With("clientID", s.sub.ID())

	s.notices <- fmt.Sprintf(
		"--- Connected to console WebSocket (client ID: %d, timestamp: %d) ---",
		s.sub.ID(), time.Now().Unix(),
	)

	go s.writePump()
	go s.readPump()
}

// ClientID returns the hub-assigned client id. Valid after Start.
func (s *Session) ClientID() uint64 {
	return s.sub.ID()
}

// readPump reads frames from the peer. Text frames are acknowledged
// synchronously and forwarded to the supervisor asynchronously; a rejected
// command is logged, never fatal to the connection. The read deadline doubles
// as the heartbeat timeout: it is pushed forward on every pong.
func (s *Session) readPump() {
	defer func() {
		s.hub.Unregister(s.sub.ID())
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.hb.PongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.hb.PongWait))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debugw("read failed", "error", err)
			}
			return
		}

		command := strings.TrimSpace(string(message))
		if command == "" {
			continue
		}
		s.log.Debugw("command received", "command", command)
		s.notice("Command received: " + command)

		go func() {
			if err := s.commands.SendCommand(command); err != nil {
				if errors.Is(err, model.ErrNotRunning) {
					s.log.Infow("command rejected, server not running", "command", command)
					return
				}
				s.log.Warnw("failed to forward command", "command", command, "error", err)
			}
		}()
	}
}

// writePump is the single writer on the connection. It forwards delivered
// console lines and session notices, and sends the liveness probe on every
// tick.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.hb.PingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case line, ok := <-s.sub.Lines():
			s.conn.SetWriteDeadline(time.Now().Add(s.hb.WriteWait))
			if !ok {
				// The hub dropped us.
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, []byte(line.Render())); err != nil {
				return
			}
		case notice := <-s.notices:
			s.conn.SetWriteDeadline(time.Now().Add(s.hb.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, []byte(notice)); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.hb.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// notice queues a session-local message for the transport. If the session is
// too backed up to take it, the notice is dropped rather than blocking the
// read loop.
func (s *Session) notice(text string) {
	select {
	case s.notices <- text:
	default:
		s.log.Debugw("notice dropped", "notice", text)
	}
}
