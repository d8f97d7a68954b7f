package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"teleraid/internal/config"
	"teleraid/internal/message_store"
	"teleraid/internal/models"
	"teleraid/internal/queue"
	"teleraid/internal/raid_store"
	"teleraid/internal/service"
)

type testServer struct {
	handler  http.Handler
	events   *queue.Queue[models.Envelope]
	raids    *raid_store.Store
	messages *message_store.Store
}

func newTestServer(t *testing.T, admin bool) *testServer {
	t.Helper()
	cfg := &config.Config{}
	if admin {
		hash, err := service.HashPassword("hunter2")
		require.NoError(t, err)
		cfg.Admin.Enabled = true
		cfg.Admin.Username = "admin"
		cfg.Admin.PasswordHash = hash
		cfg.Admin.JWTSecret = "secret"
		cfg.Admin.TokenTTLHours = 1
	}

	ts := &testServer{
		events:   queue.New[models.Envelope](),
		raids:    raid_store.New(),
		messages: message_store.New(),
	}
	ts.handler = NewServer(cfg, ts.events, ts.raids, ts.messages, zap.NewNop()).Handler()
	return ts
}

func (ts *testServer) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func TestPing(t *testing.T) {
	ts := newTestServer(t, false)
	w := ts.do(http.MethodGet, "/ping", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())
}

func TestWebhookQueuesSingleEvent(t *testing.T) {
	ts := newTestServer(t, false)
	w := ts.do(http.MethodPost, "/", `{"type":"raid","message":{"gym_id":"G1"}}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"accepted":1}`, w.Body.String())

	require.Equal(t, 1, ts.events.Len())
}

func TestWebhookQueuesArrayInOrder(t *testing.T) {
	ts := newTestServer(t, false)
	body := `[{"type":"pokemon","message":{}},{"type":"raid","message":{"gym_id":"G2"}}]`
	w := ts.do(http.MethodPost, "/", body, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"accepted":2}`, w.Body.String())

	ctx := context.Background()
	first, err := ts.events.Pop(ctx)
	require.NoError(t, err)
	second, err := ts.events.Pop(ctx)
	require.NoError(t, err)

	assert.Equal(t, "pokemon", first.Type)
	assert.Equal(t, "raid", second.Type)
	assert.JSONEq(t, `{"gym_id":"G2"}`, string(second.Message))
	assert.NotEmpty(t, first.DeliveryID)
	assert.NotEqual(t, first.DeliveryID, second.DeliveryID)
	assert.False(t, first.ReceivedAt.IsZero())
}

func TestWebhookRejectsInvalidJSON(t *testing.T) {
	ts := newTestServer(t, false)
	w := ts.do(http.MethodPost, "/", `{"type":`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, ts.events.Len())
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, false)
	w := ts.do(http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "teleraid_event_queue_depth")
}

func TestAdminRoutesDisabled(t *testing.T) {
	ts := newTestServer(t, false)
	w := ts.do(http.MethodGet, "/api/raids", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminLoginAndStatus(t *testing.T) {
	ts := newTestServer(t, true)
	now := time.Now().UTC().Truncate(time.Second)
	ts.raids.Add(models.Raid{GymID: "G1", PokemonID: 150, Level: 5, Start: now, End: now.Add(time.Hour)}, now)
	ts.messages.Put(models.MessageRecord{ID: 3, ChatID: -100, GymID: "G1", Text: "Raid"})

	w := ts.do(http.MethodGet, "/api/raids", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(http.MethodPost, "/api/auth/login", `{"username":"admin","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(http.MethodPost, "/api/auth/login", `{"username":"admin","password":"hunter2"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	require.NotEmpty(t, login.Token)

	w = ts.do(http.MethodGet, "/api/raids", "", login.Token)
	require.Equal(t, http.StatusOK, w.Code)
	var raids struct {
		Count int           `json:"count"`
		Raids []models.Raid `json:"raids"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raids))
	assert.Equal(t, 1, raids.Count)
	assert.Equal(t, "G1", raids.Raids[0].GymID)

	w = ts.do(http.MethodGet, "/api/messages", "", login.Token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"gym_id":"G1"`)

	w = ts.do(http.MethodGet, "/api/messages", "", "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
