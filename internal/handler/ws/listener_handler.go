package ws

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"webconf-backend/internal/domain"
	"webconf-backend/internal/service/notification"
	"webconf-backend/pkg/constants"
	"webconf-backend/pkg/logger"
	"webconf-backend/pkg/metrics"
	"webconf-backend/pkg/response"
)

// ListenerHandler streams the call events of the authenticated user over a WebSocket
type ListenerHandler struct {
	hub            *notification.Hub
	metrics        *metrics.Metrics
	upgrader       websocket.Upgrader
	maxConnections int
	// Semaphore for limiting concurrent connections
	semaphore chan struct{}
}

// RegisteredMessage is the first frame sent on a listener socket
type RegisteredMessage struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	ClientID string `json:"client_id"`
}

// NewListenerHandler creates a listener handler accepting up to maxConnections sockets
func NewListenerHandler(hub *notification.Hub, m *metrics.Metrics, maxConnections int, allowedOrigins []string) *ListenerHandler {
	if maxConnections <= 0 {
		maxConnections = constants.DefaultMaxListenerConnections
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin = strings.TrimSpace(origin); origin != "" {
			allowed[origin] = true
		}
	}
	return &ListenerHandler{
		hub:     hub,
		metrics: m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowed),
		},
		maxConnections: maxConnections,
		semaphore:      make(chan struct{}, maxConnections),
	}
}

// checkOrigin accepts non-browser clients, the serving host and the configured origins
func checkOrigin(allowed map[string]bool) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowed[origin] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// ServeWS registers a listener for the caller until the socket closes
// GET /v1/calls/listen?client_id=...
func (h *ListenerHandler) ServeWS(c *gin.Context) {
	select {
	case h.semaphore <- struct{}{}:
		defer func() { <-h.semaphore }()
	default:
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", h.maxConnections))
		response.Error(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Server at capacity, please try again later")
		return
	}

	userID := c.GetString("user_id")
	if userID == "" {
		response.Unauthorized(c, "Not authenticated")
		return
	}
	clientID := c.Query("client_id")
	if clientID == "" {
		clientID = uuid.New().String()
	}
	if len(clientID) > constants.MaxIDLength {
		response.ValidationError(c, "client_id is too long")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed",
			zap.String("user_id", userID),
			zap.Error(err))
		return
	}

	l := &listener{
		conn:     conn,
		send:     make(chan []byte, constants.ListenerSendBuffer),
		done:     make(chan struct{}),
		userID:   userID,
		clientID: clientID,
		metrics:  h.metrics,
	}
	hello, _ := json.Marshal(RegisteredMessage{Type: "registered", UserID: userID, ClientID: clientID})
	l.send <- hello

	h.hub.Register(l)
	h.metrics.IncWebSocketConnections()
	logger.Debug("Call listener registered",
		zap.String("user_id", userID),
		zap.String("client_id", clientID))

	go l.writePump()
	l.readPump()

	h.hub.Unregister(l)
	h.metrics.DecWebSocketConnections()
	logger.Debug("Call listener unregistered",
		zap.String("user_id", userID),
		zap.String("client_id", clientID))
}

// listener is the hub side of one socket. Notify never blocks: events that do not fit
// the send buffer are dropped.
type listener struct {
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	once     sync.Once
	userID   string
	clientID string
	metrics  *metrics.Metrics
}

func (l *listener) UserID() string   { return l.userID }
func (l *listener) ClientID() string { return l.clientID }

func (l *listener) Notify(event domain.CallEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to encode call event", zap.Error(err))
		return
	}
	select {
	case <-l.done:
	case l.send <- payload:
	default:
		logger.Warn("Listener send buffer full, event dropped",
			zap.String("user_id", l.userID),
			zap.String("client_id", l.clientID),
			zap.String("call_id", event.CallID))
	}
}

func (l *listener) close() {
	l.once.Do(func() {
		close(l.done)
		l.conn.Close()
	})
}

// readPump drains the socket to process pongs and close frames
func (l *listener) readPump() {
	defer l.close()

	l.conn.SetReadLimit(512)
	l.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval + constants.WebSocketWriteWait))
	l.conn.SetPongHandler(func(string) error {
		l.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval + constants.WebSocketWriteWait))
		return nil
	})

	for {
		if _, _, err := l.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("WebSocket connection closed",
					zap.String("user_id", l.userID),
					zap.Error(err))
			}
			return
		}
		l.metrics.RecordWebSocketMessage("in")
	}
}

// writePump writes queued events and keeps the connection alive with pings
func (l *listener) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval)
	defer func() {
		ticker.Stop()
		l.close()
	}()

	for {
		select {
		case <-l.done:
			return
		case message := <-l.send:
			l.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := l.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
			l.metrics.RecordWebSocketMessage("out")
		case <-ticker.C:
			l.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
