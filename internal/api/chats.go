package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ammar1510/huddle/internal/chat"
	"github.com/ammar1510/huddle/internal/models"
)

// ChatHandler exposes one-to-one chats and their messages
type ChatHandler struct {
	Chats *chat.Service
}

// NewChatHandler creates a new chat handler
func NewChatHandler(svc *chat.Service) *ChatHandler {
	return &ChatHandler{Chats: svc}
}

// CreateChat opens, or returns the existing, chat with user_id
func (h *ChatHandler) CreateChat(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var input models.CreateChatRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	otherID, ok := bodyID(c, "user_id", input.UserID)
	if !ok {
		return
	}
	// Same pair in either order yields the same chat
	ch, err := h.Chats.CreateOrGetChat(c.Request.Context(), userID, otherID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

// ListChats returns the caller's chats, most recently active first
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	chats, err := h.Chats.ListUserChats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chats)
}

// GetChat returns one chat if the caller takes part in it
func (h *ChatHandler) GetChat(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	chatID, ok := pathID(c, "chatID")
	if !ok {
		return
	}
	ch, err := h.Chats.GetChat(c.Request.Context(), chatID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

// GetMessages returns the chat log in sequence order
func (h *ChatHandler) GetMessages(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	chatID, ok := pathID(c, "chatID")
	if !ok {
		return
	}
	messages, err := h.Chats.GetMessages(c.Request.Context(), chatID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// SendMessage appends a message from the caller
func (h *ChatHandler) SendMessage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	chatID, ok := pathID(c, "chatID")
	if !ok {
		return
	}
	var input models.MessageRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	// Blank content and non-participants are rejected by the service
	msg, err := h.Chats.SendMessage(c.Request.Context(), chatID, userID, input.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkRead marks every message the caller received in the chat as read
func (h *ChatHandler) MarkRead(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	chatID, ok := pathID(c, "chatID")
	if !ok {
		return
	}
	ch, err := h.Chats.MarkAllAsRead(c.Request.Context(), chatID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}
