package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ammar1510/huddle/internal/auth"
	"github.com/ammar1510/huddle/internal/chat"
	"github.com/ammar1510/huddle/internal/database"
	"github.com/ammar1510/huddle/internal/friends"
	"github.com/ammar1510/huddle/internal/live"
	"github.com/ammar1510/huddle/internal/models"
	"github.com/ammar1510/huddle/internal/websocket"
)

type testEnv struct {
	router *gin.Engine
	db     *database.MemoryDB
}

// newTestEnv wires the full router over an in-memory store.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	auth.InitJWTKey([]byte("test-secret"))

	db := database.NewMemoryDB()
	hub := live.NewHub()
	chatSvc := chat.NewService(db, hub, nil)
	friendSvc := friends.NewService(db, hub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ws := websocket.NewManager(chatSvc, friendSvc, websocket.Options{MessagesPerMinute: 60})
	go ws.Run(ctx)

	router := gin.New()
	RegisterRoutes(router, Handlers{
		Auth:      NewAuthHandler(db),
		Friends:   NewFriendsHandler(friendSvc),
		Chats:     NewChatHandler(chatSvc),
		WebSocket: ws.HandleWebSocket,
	})
	return &testEnv{router: router, db: db}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// signUp registers and logs in a user through the API.
func (e *testEnv) signUp(t *testing.T, username string) (uuid.UUID, string) {
	t.Helper()
	email := username + "@example.com"
	w := e.do(t, http.MethodPost, "/api/auth/register", "", models.UserRegistration{
		Username: username,
		Email:    email,
		Password: "password123",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(t, http.MethodPost, "/api/auth/login", "", models.UserLogin{Email: email, Password: "password123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token string              `json:"token"`
		User  models.UserResponse `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.User.ID, resp.Token
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	decode(t, w, &body)
	return body.Code
}
