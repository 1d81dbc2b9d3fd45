package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-board/pkg/jwt"
	"github.com/weiawesome/wes-board/pkg/middleware"
	"github.com/weiawesome/wes-board/pkg/response"
	"github.com/weiawesome/wes-board/realtime-service/internal/access"
	"github.com/weiawesome/wes-board/realtime-service/internal/auth"
	"github.com/weiawesome/wes-board/realtime-service/internal/config"
	"github.com/weiawesome/wes-board/realtime-service/internal/domain"
	"github.com/weiawesome/wes-board/realtime-service/internal/hub"
	"github.com/weiawesome/wes-board/realtime-service/internal/relay"
	"github.com/weiawesome/wes-board/realtime-service/internal/repository"
	"github.com/weiawesome/wes-board/realtime-service/internal/service"
)

type stubUsers map[string]*domain.Identity

func (s stubUsers) GetByID(_ context.Context, id string) (*domain.Identity, error) {
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, repository.ErrUserNotFound
}

var users = stubUsers{
	"u1": {ID: "u1", FirstName: "Alice", LastName: "Chen", Email: "alice@example.com"},
	"u2": {ID: "u2", FirstName: "Bob", LastName: "Lee", Email: "bob@example.com"},
}

type testServer struct {
	srv     *httptest.Server
	hub     *hub.Hub
	manager *jwt.Manager
}

// onlyUsers admits the listed users to every project.
type onlyUsers map[string]bool

func (o onlyUsers) CanJoin(_ context.Context, identity *domain.Identity, _ string) (bool, error) {
	return o[identity.ID], nil
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, nil, service.Options{})
}

func newTestServerWith(t *testing.T, authz access.Authorizer, opts service.Options) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := hub.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	manager, err := jwt.NewManager("test-secret", "", time.Hour)
	require.NoError(t, err)

	svc := service.NewRealtimeService(h, relay.NewTable(relay.Options{}), authz, nil, opts)
	wsCfg := config.WebSocketConfig{
		PingInterval: time.Minute,
		PongWait:     time.Minute,
		WriteWait:    time.Second,
		SendBuffer:   16,
	}

	r := gin.New()
	NewWSHandler(h, svc, auth.NewAuthenticator(manager, users), wsCfg).RegisterRoutes(r)
	NewHandler(svc, middleware.NewAuthMiddleware(manager)).RegisterRoutes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-h.Done()
	})
	return &testServer{srv: srv, hub: h, manager: manager}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := s.manager.GenerateToken(userID)
	require.NoError(t, err)
	return token
}

func (s *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws"
}

func (s *testServer) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL()+"?token="+s.token(t, userID), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	frame, err := domain.EncodeFrame(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func read(t *testing.T, conn *websocket.Conn) domain.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame domain.Frame
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

// barrier waits until everything conn sent before it has been handled.
func barrier(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	send(t, conn, domain.EventPing, nil)
	assert.Equal(t, domain.EventPong, read(t, conn).Event)
}

func join(t *testing.T, conn *websocket.Conn, projectID string) {
	t.Helper()
	send(t, conn, domain.EventJoinProject, projectID)
	barrier(t, conn)
}

func TestWebSocket_TaskMovedReachesOthersOnly(t *testing.T) {
	s := newTestServer(t)
	a := s.dial(t, "u1")
	b := s.dial(t, "u2")
	join(t, a, "proj-1")
	join(t, b, "proj-1")

	payload := json.RawMessage(`{"task":{"id":"t1"},"projectId":"proj-1","fromColumn":"todo","toColumn":"done"}`)
	send(t, a, domain.EventTaskMoved, payload)

	frame := read(t, b)
	assert.Equal(t, domain.EventTaskMoved, frame.Event)
	assert.JSONEq(t, `{
		"task":{"id":"t1"},"projectId":"proj-1","fromColumn":"todo","toColumn":"done",
		"movedBy":{"id":"u1","firstName":"Alice","lastName":"Chen","email":"alice@example.com"}
	}`, string(frame.Data))

	// Nothing for the sender ahead of its own pong.
	barrier(t, a)
}

func TestWebSocket_OtherRoomReceivesNothing(t *testing.T) {
	s := newTestServer(t)
	a := s.dial(t, "u1")
	b := s.dial(t, "u2")
	join(t, a, "proj-1")
	join(t, b, "proj-2")

	send(t, a, domain.EventTaskCreated, map[string]interface{}{"projectId": "proj-1", "task": map[string]string{"id": "t9"}})
	barrier(t, a)
	barrier(t, b)
}

func TestWebSocket_JoinAcceptsObjectForm(t *testing.T) {
	s := newTestServer(t)
	a := s.dial(t, "u1")
	b := s.dial(t, "u2")
	join(t, a, "proj-1")
	send(t, b, domain.EventJoinProject, map[string]string{"projectId": "proj-1"})
	barrier(t, b)

	send(t, a, domain.EventTypingStart, map[string]string{"projectId": "proj-1", "taskId": "t1"})
	frame := read(t, b)
	assert.Equal(t, domain.EventUserTyping, frame.Event)
	assert.JSONEq(t, `{"userId":"u1","userName":"Alice Chen","taskId":"t1"}`, string(frame.Data))
}

func TestWebSocket_LeaveStopsDelivery(t *testing.T) {
	s := newTestServer(t)
	a := s.dial(t, "u1")
	b := s.dial(t, "u2")
	join(t, a, "proj-1")
	join(t, b, "proj-1")

	send(t, b, domain.EventLeaveProject, "proj-1")
	barrier(t, b)

	send(t, a, domain.EventCommentAdded, map[string]interface{}{"projectId": "proj-1", "comment": map[string]string{"text": "hi"}})
	barrier(t, a)
	barrier(t, b)
}

func TestWebSocket_DisconnectLeavesRooms(t *testing.T) {
	s := newTestServer(t)
	a := s.dial(t, "u1")
	b := s.dial(t, "u2")
	join(t, a, "proj-1")
	join(t, b, "proj-1")
	require.Equal(t, 2, s.hub.RoomSize("proj-1"))

	require.NoError(t, b.Close())

	require.Eventually(t, func() bool { return s.hub.RoomSize("proj-1") == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, s.hub.ClientCount())
}

func TestWebSocket_InvalidTokenRejected(t *testing.T) {
	s := newTestServer(t)

	expired, err := jwt.NewManager("test-secret", "", -time.Minute)
	require.NoError(t, err)
	expiredToken, err := expired.GenerateToken("u1")
	require.NoError(t, err)

	for name, query := range map[string]string{
		"missing": "",
		"garbage": "?token=garbage",
		"expired": "?token=" + expiredToken,
	} {
		t.Run(name, func(t *testing.T) {
			conn, resp, err := websocket.DefaultDialer.Dial(s.wsURL()+query, nil)
			if conn != nil {
				conn.Close()
			}
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			var body response.Response
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.False(t, body.Success)
			assert.Equal(t, response.CodeAuthentication, body.Error.Code)
		})
	}

	assert.Equal(t, 0, s.hub.ClientCount())
}

func TestWebSocket_UnknownUserRejected(t *testing.T) {
	s := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(s.wsURL()+"?token="+s.token(t, "ghost"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var body response.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, response.CodeUserNotFound, body.Error.Code)
	assert.Equal(t, 0, s.hub.ClientCount())
}

func TestWebSocket_BearerHeader(t *testing.T) {
	s := newTestServer(t)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.token(t, "u2"))
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL(), header)
	require.NoError(t, err)
	defer conn.Close()

	barrier(t, conn)
}

func TestWebSocket_ErrorFrames(t *testing.T) {
	s := newTestServer(t)
	a := s.dial(t, "u1")

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("not json")))
	frame := read(t, a)
	assert.Equal(t, domain.EventError, frame.Event)
	assert.JSONEq(t, `{"code":"BAD_REQUEST","message":"invalid message format"}`, string(frame.Data))

	send(t, a, "task-archived", map[string]string{"projectId": "p"})
	frame = read(t, a)
	assert.Equal(t, domain.EventError, frame.Event)
	assert.JSONEq(t, `{"code":"BAD_REQUEST","message":"unknown event"}`, string(frame.Data))

	send(t, a, domain.EventJoinProject, 42)
	frame = read(t, a)
	assert.Equal(t, domain.EventError, frame.Event)

	// The connection survives bad input.
	barrier(t, a)
}

func doRequest(t *testing.T, s *testServer, method, path, token, body string) (*http.Response, response.Response) {
	t.Helper()
	req, err := http.NewRequest(method, s.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out response.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestHTTP_EmitEvent(t *testing.T) {
	s := newTestServer(t)
	a := s.dial(t, "u1")
	b := s.dial(t, "u2")
	join(t, a, "proj-1")
	join(t, b, "proj-1")

	resp, body := doRequest(t, s, http.MethodPost, "/api/v1/projects/proj-1/events", s.token(t, "u1"),
		`{"event":"project-updated","data":{"name":"Launch"}}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.True(t, body.Success)

	for _, conn := range []*websocket.Conn{a, b} {
		frame := read(t, conn)
		assert.Equal(t, "project-updated", frame.Event)
		assert.JSONEq(t, `{"name":"Launch"}`, string(frame.Data))
	}
}

func TestHTTP_EmitEventValidation(t *testing.T) {
	s := newTestServer(t)

	resp, body := doRequest(t, s, http.MethodPost, "/api/v1/projects/proj-1/events", s.token(t, "u1"), `{"data":{}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, response.CodeBadRequest, body.Error.Code)

	resp, _ = doRequest(t, s, http.MethodPost, "/api/v1/projects/proj-1/events", "", `{"event":"x"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHTTP_Presence(t *testing.T) {
	s := newTestServer(t)
	a := s.dial(t, "u1")
	join(t, a, "proj-1")

	resp, body := doRequest(t, s, http.MethodGet, "/api/v1/projects/proj-1/presence", s.token(t, "u2"), "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	data := body.Data.(map[string]interface{})
	assert.Equal(t, "proj-1", data["projectId"])
	assert.EqualValues(t, 1, data["connections"])
}

func TestHTTP_Health(t *testing.T) {
	s := newTestServer(t)

	resp, body := doRequest(t, s, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)
}

func TestHTTP_RoomPolicyAppliesToRESTCallers(t *testing.T) {
	s := newTestServerWith(t, onlyUsers{"u1": true}, service.Options{AuthorizeJoin: true})
	a := s.dial(t, "u1")
	b := s.dial(t, "u2")
	join(t, a, "proj-1")

	send(t, b, domain.EventJoinProject, "proj-1")
	frame := read(t, b)
	assert.Equal(t, domain.EventError, frame.Event)
	assert.JSONEq(t, `{"code":"FORBIDDEN","message":"access denied to this project"}`, string(frame.Data))

	resp, body := doRequest(t, s, http.MethodPost, "/api/v1/projects/proj-1/events", s.token(t, "u2"),
		`{"event":"task-deleted","data":{"taskId":"t1","projectId":"proj-1"}}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, response.CodeForbidden, body.Error.Code)

	resp, body = doRequest(t, s, http.MethodGet, "/api/v1/projects/proj-1/presence", s.token(t, "u2"), "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, response.CodeForbidden, body.Error.Code)

	// Nothing reached the room ahead of the member's own pong.
	barrier(t, a)

	resp, _ = doRequest(t, s, http.MethodPost, "/api/v1/projects/proj-1/events", s.token(t, "u1"),
		`{"event":"task-deleted","data":{"taskId":"t1","projectId":"proj-1"}}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, domain.EventTaskDeleted, read(t, a).Event)

	resp, body = doRequest(t, s, http.MethodGet, "/api/v1/projects/proj-1/presence", s.token(t, "u1"), "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body.Data.(map[string]interface{})["connections"])
}
