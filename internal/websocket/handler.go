package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/ammar1510/huddle/internal/apperr"
	"github.com/ammar1510/huddle/internal/live"
	"github.com/ammar1510/huddle/internal/logger"
	"github.com/ammar1510/huddle/internal/models"
)

// Frame types
const (
	TypeMessage     = "message"
	TypeMessageSent = "message_sent"
	TypeRead        = "read"
	TypeTyping      = "typing"
	TypeChats       = "chats"
	TypeRequests    = "requests"
	TypeError       = "error"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 64 * 1024
	sendBuffer     = 256
)

var log = logger.New("websocket")

// ChatService is the part of the chat use cases reachable over a socket.
type ChatService interface {
	SendMessage(ctx context.Context, chatID, senderID uuid.UUID, content string) (*models.Message, error)
	MarkAllAsRead(ctx context.Context, chatID, userID uuid.UUID) (*models.Chat, error)
	ObserveUserChats(ctx context.Context, userID uuid.UUID) <-chan live.Snapshot[[]*models.ChatSummary]
	SharesChat(ctx context.Context, a, b uuid.UUID) (bool, error)
}

// RequestService streams a user's pending friend requests.
type RequestService interface {
	ObservePending(ctx context.Context, userID uuid.UUID) <-chan live.Snapshot[[]*models.FriendRequest]
}

// Frame is one JSON message on the socket in either direction.
type Frame struct {
	Type       string      `json:"type"`
	ChatID     string      `json:"chat_id,omitempty"`
	ReceiverID string      `json:"receiver_id,omitempty"`
	SenderID   string      `json:"sender_id,omitempty"`
	Content    string      `json:"content,omitempty"`
	Code       string      `json:"code,omitempty"`
	IsTyping   bool        `json:"is_typing,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Client is one socket of a user. A user may hold several.
type Client struct {
	ID     uuid.UUID
	Socket *websocket.Conn
	Send   chan []byte

	ctx     context.Context
	cancel  context.CancelFunc
	limiter *rate.Limiter
}

// Options tunes a Manager.
type Options struct {
	MessagesPerMinute int
	AllowedOrigins    []string
}

// Manager tracks connected clients and streams live snapshots to them.
type Manager struct {
	clients    map[uuid.UUID]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.Mutex

	chats    ChatService
	requests RequestService
	opts     Options
	upgrader websocket.Upgrader
}

func NewManager(chats ChatService, requests RequestService, opts Options) *Manager {
	if opts.MessagesPerMinute <= 0 {
		opts.MessagesPerMinute = 60
	}
	m := &Manager{
		clients:    make(map[uuid.UUID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		chats:      chats,
		requests:   requests,
		opts:       opts,
	}
	m.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     m.checkOrigin,
	}
	return m
}

func (m *Manager) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(m.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range m.opts.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	log.Warn("Rejected websocket origin %s", origin)
	return false
}

// Run owns client registration until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	defer close(m.done)
	for {
		select {
		case <-ctx.Done():
			m.mutex.Lock()
			for _, set := range m.clients {
				for c := range set {
					c.cancel()
				}
			}
			m.clients = make(map[uuid.UUID]map[*Client]struct{})
			m.mutex.Unlock()
			return
		case client := <-m.register:
			m.mutex.Lock()
			set, ok := m.clients[client.ID]
			if !ok {
				set = make(map[*Client]struct{})
				m.clients[client.ID] = set
			}
			set[client] = struct{}{}
			m.mutex.Unlock()
			log.Info("Client connected: %s", client.ID)
		case client := <-m.unregister:
			m.mutex.Lock()
			if set, ok := m.clients[client.ID]; ok {
				if _, ok := set[client]; ok {
					delete(set, client)
					client.cancel()
					log.Info("Client disconnected: %s", client.ID)
				}
				if len(set) == 0 {
					delete(m.clients, client.ID)
				}
			}
			m.mutex.Unlock()
		}
	}
}

// Connected reports how many sockets userID holds.
func (m *Manager) Connected(userID uuid.UUID) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.clients[userID])
}

// SendToUser queues message on every socket of userID.
func (m *Manager) SendToUser(userID uuid.UUID, message []byte) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	set, ok := m.clients[userID]
	if !ok {
		log.Debug("User %s not connected", userID)
		return
	}
	for c := range set {
		c.enqueue(message)
	}
}

// enqueue drops the frame when the client is gone or too slow.
func (c *Client) enqueue(message []byte) {
	select {
	case <-c.ctx.Done():
	case c.Send <- message:
	default:
		log.Warn("Send buffer full for client %s, dropping frame", c.ID)
	}
}

func (c *Client) sendFrame(f Frame) {
	f.Timestamp = time.Now().UTC()
	data, err := json.Marshal(f)
	if err != nil {
		log.Error("Failed to encode %s frame: %v", f.Type, err)
		return
	}
	c.enqueue(data)
}

func (c *Client) sendError(err error) {
	c.sendFrame(Frame{Type: TypeError, Content: err.Error(), Code: string(apperr.CodeOf(err))})
}

// HandleWebSocket upgrades an authenticated request. The auth middleware must
// have stored the user id under "userID".
func (m *Manager) HandleWebSocket(c *gin.Context) {
	userID, exists := c.Get("userID")
	if !exists {
		log.Warn("No userID in context, rejecting connection from %s", c.Request.RemoteAddr)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	userUUID, ok := userID.(uuid.UUID)
	if !ok {
		log.Error("Invalid UUID in context from %s", c.Request.RemoteAddr)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Invalid user identification"})
		return
	}

	conn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("Failed to upgrade connection: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	perMinute := m.opts.MessagesPerMinute
	client := &Client{
		ID:      userUUID,
		Socket:  conn,
		Send:    make(chan []byte, sendBuffer),
		ctx:     ctx,
		cancel:  cancel,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
	}
	select {
	case m.register <- client:
	case <-m.done:
		cancel()
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(m)
	if m.chats != nil {
		go forward(client, TypeChats, m.chats.ObserveUserChats(ctx, userUUID))
	}
	if m.requests != nil {
		go forward(client, TypeRequests, m.requests.ObservePending(ctx, userUUID))
	}
}

// forward pushes every snapshot to the client until the watch closes.
func forward[T any](c *Client, frameType string, updates <-chan live.Snapshot[T]) {
	for snap := range updates {
		if snap.Err != nil {
			c.sendError(snap.Err)
			continue
		}
		c.sendFrame(Frame{Type: frameType, Data: snap.Value})
	}
}

// readPump handles frames from the socket until it closes.
func (c *Client) readPump(m *Manager) {
	defer func() {
		select {
		case m.unregister <- c:
		case <-m.done:
			c.cancel()
		}
		c.Socket.Close()
	}()

	c.Socket.SetReadLimit(maxMessageSize)
	c.Socket.SetReadDeadline(time.Now().Add(pongWait))
	c.Socket.SetPongHandler(func(string) error {
		c.Socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error("Error reading from client %s: %v", c.ID, err)
			} else {
				log.Debug("Client %s closed connection: %v", c.ID, err)
			}
			return
		}

		if !c.limiter.Allow() {
			log.Warn("Rate limit exceeded for client %s", c.ID)
			c.sendFrame(Frame{Type: TypeError, Content: "rate limit exceeded", Code: "RATE_LIMITED"})
			continue
		}

		var frame Frame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.sendFrame(Frame{Type: TypeError, Content: "Invalid message format"})
			continue
		}
		m.handleFrame(c, frame)
	}
}

func (m *Manager) handleFrame(c *Client, frame Frame) {
	switch frame.Type {
	case TypeMessage:
		chatID, err := models.ParseID(frame.ChatID)
		if err != nil {
			c.sendError(apperr.ErrInvalidID.With("chat_id", frame.ChatID))
			return
		}
		msg, err := m.chats.SendMessage(c.ctx, chatID, c.ID, frame.Content)
		if err != nil {
			c.sendError(err)
			return
		}
		c.sendFrame(Frame{Type: TypeMessageSent, ChatID: chatID.String(), Data: msg})

	case TypeRead:
		chatID, err := models.ParseID(frame.ChatID)
		if err != nil {
			c.sendError(apperr.ErrInvalidID.With("chat_id", frame.ChatID))
			return
		}
		if _, err := m.chats.MarkAllAsRead(c.ctx, chatID, c.ID); err != nil {
			c.sendError(err)
		}

	case TypeTyping:
		receiverID, err := models.ParseID(frame.ReceiverID)
		if err != nil {
			log.Debug("Invalid receiver ID in typing indicator from client %s", c.ID)
			return
		}
		// Only relay to someone the sender already chats with.
		shared, err := m.chats.SharesChat(c.ctx, c.ID, receiverID)
		if err != nil {
			c.sendError(err)
			return
		}
		if !shared {
			log.Debug("Client %s has no chat with %s, typing indicator dropped", c.ID, receiverID)
			c.sendError(apperr.ErrNotParticipant.With("receiver_id", receiverID.String()))
			return
		}
		relay := Frame{Type: TypeTyping, SenderID: c.ID.String(), ChatID: frame.ChatID, IsTyping: frame.IsTyping}
		relay.Timestamp = time.Now().UTC()
		data, err := json.Marshal(relay)
		if err != nil {
			return
		}
		m.SendToUser(receiverID, data)

	default:
		log.Warn("Unknown message type '%s' from client %s", frame.Type, c.ID)
		c.sendFrame(Frame{Type: TypeError, Content: "Unknown message type"})
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Socket.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			c.Socket.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.Send:
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Socket.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
