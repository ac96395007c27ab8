package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/huddle/internal/models"
)

func TestFriendRequestFlow(t *testing.T) {
	env := newTestEnv(t)
	aliceID, alice := env.signUp(t, "alice")
	bobID, bob := env.signUp(t, "bob")

	w := env.do(t, http.MethodPost, "/api/friends/requests", alice, models.FriendRequestRequest{ReceiverID: bobID.String()})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var req models.FriendRequest
	decode(t, w, &req)
	assert.Equal(t, models.RequestPending, req.Status)

	w = env.do(t, http.MethodPost, "/api/friends/requests", alice, models.FriendRequestRequest{ReceiverID: bobID.String()})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_REQUEST", errorCode(t, w))

	w = env.do(t, http.MethodGet, "/api/friends/requests/pending", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var pending []models.FriendRequest
	decode(t, w, &pending)
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].ID)

	w = env.do(t, http.MethodGet, "/api/friends/requests/sent", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sent []models.FriendRequest
	decode(t, w, &sent)
	assert.Len(t, sent, 1)

	w = env.do(t, http.MethodGet, "/api/friends/status/"+aliceID.String(), bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"REQUEST_RECEIVED"}`, w.Body.String())

	accept := "/api/friends/requests/" + req.ID.String() + "/accept"
	w = env.do(t, http.MethodPost, accept, alice, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "NOT_RECEIVER", errorCode(t, w))

	w = env.do(t, http.MethodPost, accept, bob, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &req)
	assert.Equal(t, models.RequestAccepted, req.Status)

	w = env.do(t, http.MethodPost, accept, bob, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_STATE", errorCode(t, w))

	w = env.do(t, http.MethodGet, "/api/friends/status/"+bobID.String(), alice, nil)
	assert.JSONEq(t, `{"status":"FRIENDS"}`, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/friends", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Friend
	decode(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, bobID, list[0].User.ID)

	w = env.do(t, http.MethodDelete, "/api/friends/"+aliceID.String(), bob, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, http.MethodDelete, "/api/friends/"+aliceID.String(), bob, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "FRIENDSHIP_NOT_FOUND", errorCode(t, w))
}

func TestFriendRequestRejectAndCancel(t *testing.T) {
	env := newTestEnv(t)
	_, alice := env.signUp(t, "alice")
	bobID, bob := env.signUp(t, "bob")

	send := func() models.FriendRequest {
		w := env.do(t, http.MethodPost, "/api/friends/requests", alice, models.FriendRequestRequest{ReceiverID: bobID.String()})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var req models.FriendRequest
		decode(t, w, &req)
		return req
	}

	req := send()
	w := env.do(t, http.MethodPost, "/api/friends/requests/"+req.ID.String()+"/reject", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &req)
	assert.Equal(t, models.RequestRejected, req.Status)

	req = send()
	w = env.do(t, http.MethodPost, "/api/friends/requests/"+req.ID.String()+"/cancel", bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "NOT_SENDER", errorCode(t, w))

	w = env.do(t, http.MethodPost, "/api/friends/requests/"+req.ID.String()+"/cancel", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &req)
	assert.Equal(t, models.RequestCancelled, req.Status)

	w = env.do(t, http.MethodPost, "/api/friends/requests/"+models.NewID().String()+"/accept", bob, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "REQUEST_NOT_FOUND", errorCode(t, w))
}

func TestEmptyListsAreArrays(t *testing.T) {
	env := newTestEnv(t)
	_, alice := env.signUp(t, "alice")

	for _, path := range []string{
		"/api/friends",
		"/api/friends/requests/pending",
		"/api/friends/requests/sent",
		"/api/chats",
	} {
		w := env.do(t, http.MethodGet, path, alice, nil)
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.JSONEq(t, `[]`, w.Body.String(), path)
	}
}

func TestSendFriendRequestValidation(t *testing.T) {
	env := newTestEnv(t)
	aliceID, alice := env.signUp(t, "alice")

	tests := []struct {
		name       string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{"to self", models.FriendRequestRequest{ReceiverID: aliceID.String()}, http.StatusBadRequest, "SELF_REQUEST"},
		{"unknown receiver", models.FriendRequestRequest{ReceiverID: models.NewID().String()}, http.StatusNotFound, "USER_NOT_FOUND"},
		{"malformed receiver", models.FriendRequestRequest{ReceiverID: "bob"}, http.StatusBadRequest, "INVALID_ID"},
		{"missing receiver", map[string]string{}, http.StatusBadRequest, codeInvalidBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/friends/requests", alice, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, w))
		})
	}
}

func TestChatFlow(t *testing.T) {
	env := newTestEnv(t)
	aliceID, alice := env.signUp(t, "alice")
	bobID, bob := env.signUp(t, "bob")
	_, carol := env.signUp(t, "carol")

	w := env.do(t, http.MethodPost, "/api/chats", alice, models.CreateChatRequest{UserID: bobID.String()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var ch models.Chat
	decode(t, w, &ch)

	w = env.do(t, http.MethodPost, "/api/chats", bob, models.CreateChatRequest{UserID: aliceID.String()})
	require.Equal(t, http.StatusOK, w.Code)
	var again models.Chat
	decode(t, w, &again)
	assert.Equal(t, ch.ID, again.ID)

	w = env.do(t, http.MethodPost, "/api/chats", alice, models.CreateChatRequest{UserID: aliceID.String()})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "SELF_CHAT", errorCode(t, w))

	messages := "/api/chats/" + ch.ID.String() + "/messages"
	for _, text := range []string{"hi", "are you there?"} {
		w = env.do(t, http.MethodPost, messages, alice, models.MessageRequest{Content: text})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodPost, messages, alice, models.MessageRequest{Content: "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "EMPTY_CONTENT", errorCode(t, w))

	w = env.do(t, http.MethodGet, messages, carol, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "NOT_PARTICIPANT", errorCode(t, w))

	w = env.do(t, http.MethodGet, messages, bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []models.Message
	decode(t, w, &history)
	require.Len(t, history, 2)
	assert.Equal(t, int64(1), history[0].Seq)
	assert.Equal(t, "are you there?", history[1].Content)

	w = env.do(t, http.MethodGet, "/api/chats", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summaries []models.ChatSummary
	decode(t, w, &summaries)
	require.Len(t, summaries, 1)
	assert.Equal(t, 2, summaries[0].UnreadCount)
	assert.Equal(t, aliceID, summaries[0].OtherUser.ID)

	w = env.do(t, http.MethodPost, "/api/chats/"+ch.ID.String()+"/read", bob, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &ch)
	assert.Equal(t, 0, ch.UnreadCount(bobID))
	assert.Equal(t, "are you there?", *ch.LastMessage)

	w = env.do(t, http.MethodGet, "/api/chats/"+ch.ID.String(), carol, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = env.do(t, http.MethodGet, "/api/chats/"+models.NewID().String(), alice, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "CHAT_NOT_FOUND", errorCode(t, w))
}
