package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ammar1510/huddle/internal/friends"
	"github.com/ammar1510/huddle/internal/models"
)

// FriendsHandler exposes friend requests and friendships
type FriendsHandler struct {
	Friends *friends.Service
}

// NewFriendsHandler creates a new friends handler
func NewFriendsHandler(svc *friends.Service) *FriendsHandler {
	return &FriendsHandler{Friends: svc}
}

// ListFriends returns the caller's friends with their profiles
func (h *FriendsHandler) ListFriends(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.Friends.ListFriends(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// Status reports the relationship between the caller and :userID
func (h *FriendsHandler) Status(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	otherID, ok := pathID(c, "userID")
	if !ok {
		return
	}
	status, err := h.Friends.Status(c.Request.Context(), userID, otherID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

// RemoveFriend ends the friendship with :userID
func (h *FriendsHandler) RemoveFriend(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	otherID, ok := pathID(c, "userID")
	if !ok {
		return
	}
	if err := h.Friends.RemoveFriend(c.Request.Context(), userID, otherID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Friend removed"})
}

// SendRequest sends a friend request to receiver_id
func (h *FriendsHandler) SendRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	var input models.FriendRequestRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	receiverID, ok := bodyID(c, "receiver_id", input.ReceiverID)
	if !ok {
		return
	}
	// Self requests, duplicates and existing friendships are refused
	req, err := h.Friends.Send(c.Request.Context(), userID, receiverID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

// PendingRequests lists requests waiting on the caller
func (h *FriendsHandler) PendingRequests(c *gin.Context) {
	h.list(c, h.Friends.PendingRequests)
}

// SentRequests lists the caller's outgoing pending requests
func (h *FriendsHandler) SentRequests(c *gin.Context) {
	h.list(c, h.Friends.SentRequests)
}

// list writes the caller's requests as loaded, an empty array when none.
func (h *FriendsHandler) list(c *gin.Context, load func(context.Context, uuid.UUID) ([]*models.FriendRequest, error)) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	reqs, err := load(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, reqs)
}

// Accept accepts :requestID as its receiver
func (h *FriendsHandler) Accept(c *gin.Context) { h.transition(c, h.Friends.Accept) }

// Reject declines :requestID as its receiver
func (h *FriendsHandler) Reject(c *gin.Context) { h.transition(c, h.Friends.Reject) }

// Cancel withdraws :requestID as its sender
func (h *FriendsHandler) Cancel(c *gin.Context) { h.transition(c, h.Friends.Cancel) }

func (h *FriendsHandler) transition(c *gin.Context, apply func(context.Context, uuid.UUID, uuid.UUID) (*models.FriendRequest, error)) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	requestID, ok := pathID(c, "requestID")
	if !ok {
		return
	}
	// The service checks the caller's role and that the request is pending
	req, err := apply(c.Request.Context(), requestID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}
