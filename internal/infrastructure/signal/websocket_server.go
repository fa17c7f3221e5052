package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"peerlens/internal/core/domain"
	"peerlens/internal/core/services"
	"peerlens/pkg/tracing"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// wsHandle adapts a websocket connection to ports.ConnectionHandle. Writes
// are serialized by a mutex; Close is idempotent.
type wsHandle struct {
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu        sync.Mutex
	closeOnce sync.Once
}

func (h *wsHandle) Send(msg domain.SignalMessage) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
	return h.conn.WriteJSON(msg)
}

func (h *wsHandle) Close() error {
	var err error
	h.closeOnce.Do(func() {
		err = h.conn.Close()
	})
	return err
}

// WebSocketServer terminates signaling channels for the relay. One goroutine
// reads each connection; routing happens synchronously in that goroutine, so
// messages from one peer stay in arrival order.
type WebSocketServer struct {
	relay *services.RelayService

	pingInterval time.Duration
	pongTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	logger *zap.SugaredLogger
}

func NewWebSocketServer(relay *services.RelayService, logger *zap.Logger) *WebSocketServer {
	return &WebSocketServer{
		relay:        relay,
		pingInterval: 30 * time.Second,
		pongTimeout:  60 * time.Second,
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		logger:       logger.Sugar(),
	}
}

// SetPingInterval sets the ping interval for signaling connections.
func (s *WebSocketServer) SetPingInterval(interval time.Duration) {
	s.pingInterval = interval
}

// SetPongTimeout sets the pong timeout for signaling connections.
func (s *WebSocketServer) SetPongTimeout(timeout time.Duration) {
	s.pongTimeout = timeout
	s.readTimeout = timeout
}

// HandleWebSocket upgrades the request and serves one peer's signaling
// channel until it closes. The session id comes from the query string; the
// role from the initial join message.
func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := domain.SessionID(r.URL.Query().Get("session"))
	if sessionID == "" {
		http.Error(w, "missing session in query parameters", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	handle := &wsHandle{conn: conn, writeTimeout: s.writeTimeout}
	defer handle.Close()

	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return nil
	})

	// first message must be a join declaring the role
	var join domain.SignalMessage
	if err := conn.ReadJSON(&join); err != nil {
		s.logger.Infow("failed to read join message", "session_id", sessionID, "error", err)
		return
	}
	if join.Type != domain.SignalJoin || !join.Role.Valid() {
		s.logger.Infow("malformed join, closing channel", "session_id", sessionID, "type", join.Type, "role", join.Role)
		return
	}
	role := join.Role

	ctx := r.Context()
	if err := s.relay.HandleJoin(ctx, sessionID, role, handle); err != nil {
		s.logger.Infow("join rejected", "session_id", sessionID, "role", role, "error", err)
		return
	}
	defer s.relay.HandleDisconnect(context.Background(), sessionID, role, handle)

	messageChan := make(chan domain.SignalMessage, 10)
	errorChan := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go s.readPump(conn, done, messageChan, errorChan)

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case msg := <-messageChan:
			msgCtx, span := tracing.TraceSignal(ctx, string(msg.Type), string(sessionID), string(role))
			s.relay.HandleMessage(msgCtx, sessionID, role, msg)
			span.End()

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Infow("ping failed", "session_id", sessionID, "role", role, "error", err)
				return
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Infow("signaling channel read error", "session_id", sessionID, "role", role, "error", err)
			}
			return
		}
	}
}

// readPump reads the connection and forwards messages until the connection
// errors or done is closed. Channel sends race against done, so the pump
// cannot strand on a full buffer once its consumer has returned.
func (s *WebSocketServer) readPump(conn *websocket.Conn, done <-chan struct{}, msgs chan<- domain.SignalMessage, errs chan<- error) {
	for {
		var msg domain.SignalMessage
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case errs <- err:
			case <-done:
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		select {
		case msgs <- msg:
		case <-done:
			return
		}
	}
}
