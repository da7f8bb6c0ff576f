package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"harbor-chat/internal/events"
	"harbor-chat/internal/services"
	"harbor-chat/internal/transport/httpdto"
	"harbor-chat/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRegistry struct {
	mu     sync.Mutex
	online map[string]bool
	sent   map[string][]events.Event
}

func newStubRegistry(onlineIDs ...string) *stubRegistry {
	online := make(map[string]bool, len(onlineIDs))
	for _, id := range onlineIDs {
		online[id] = true
	}
	return &stubRegistry{online: online, sent: make(map[string][]events.Event)}
}

func (r *stubRegistry) Send(_ context.Context, userID string, ev events.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent[userID] = append(r.sent[userID], ev)
	return r.online[userID]
}

func (r *stubRegistry) ListConnectedUserIDs(context.Context) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.online))
	for id := range r.online {
		ids = append(ids, id)
	}
	return ids
}

func callSignalRouter(reg *stubRegistry, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(services.WithUserID(c.Request.Context(), userID))
	})
	h := NewCallHandler(reg, []string{"stun:stun.example.org:3478"}, logger.NewNop())
	r.POST("/call/signal", h.Signal)
	r.GET("/call/connected", h.Connected)
	r.GET("/call/config", h.Config)
	return r
}

func postSignal(t *testing.T, router *gin.Engine, req httpdto.CallSignalRequest) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/call/signal", bytes.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, r)
	return w
}

func TestCallSignalRoutedToCounterpart(t *testing.T) {
	caller := uuid.New()
	receiver := uuid.New()
	reg := newStubRegistry(receiver.String())
	router := callSignalRouter(reg, caller)

	w := postSignal(t, router, httpdto.CallSignalRequest{
		Type:     "call_incoming",
		CallID:   "call-1",
		CallType: "audio",
		Caller:   httpdto.CallPartyDTO{ID: caller.String(), Name: "Alice"},
		Receiver: httpdto.CallPartyDTO{ID: receiver.String(), Name: "Bob"},
		PeerID:   "alice-1f2e",
	})

	require.Equal(t, http.StatusOK, w.Code)
	var resp httpdto.Response[httpdto.CallSignalResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.Data.Delivered)

	require.Len(t, reg.sent[receiver.String()], 1)
	assert.Equal(t, events.TypeCallIncoming, reg.sent[receiver.String()][0].Type)
	assert.Empty(t, reg.sent[caller.String()])
}

func TestCallSignalOfflineCounterpart(t *testing.T) {
	caller := uuid.New()
	receiver := uuid.New()
	reg := newStubRegistry()
	router := callSignalRouter(reg, caller)

	w := postSignal(t, router, httpdto.CallSignalRequest{
		Type:     "call_ended",
		CallID:   "call-1",
		CallType: "audio",
		Caller:   httpdto.CallPartyDTO{ID: caller.String(), Name: "Alice"},
		Receiver: httpdto.CallPartyDTO{ID: receiver.String(), Name: "Bob"},
	})

	require.Equal(t, http.StatusOK, w.Code)
	var resp httpdto.Response[httpdto.CallSignalResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Data.Delivered)
}

func TestCallSignalRejectsNonParty(t *testing.T) {
	reg := newStubRegistry()
	router := callSignalRouter(reg, uuid.New())

	w := postSignal(t, router, httpdto.CallSignalRequest{
		Type:     "call_incoming",
		CallID:   "call-1",
		CallType: "audio",
		Caller:   httpdto.CallPartyDTO{ID: uuid.New().String()},
		Receiver: httpdto.CallPartyDTO{ID: uuid.New().String()},
		PeerID:   "x",
	})

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, reg.sent)
}

func TestCallSignalValidation(t *testing.T) {
	caller := uuid.New()
	reg := newStubRegistry()
	router := callSignalRouter(reg, caller)

	// call_incoming without a peer address is malformed.
	w := postSignal(t, router, httpdto.CallSignalRequest{
		Type:     "call_incoming",
		CallID:   "call-1",
		CallType: "audio",
		Caller:   httpdto.CallPartyDTO{ID: caller.String()},
		Receiver: httpdto.CallPartyDTO{ID: uuid.New().String()},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postSignal(t, router, httpdto.CallSignalRequest{
		Type:   "call_paused",
		CallID: "call-1",
		Caller: httpdto.CallPartyDTO{ID: caller.String()},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCallConnected(t *testing.T) {
	reg := newStubRegistry("u1")
	router := callSignalRouter(reg, uuid.New())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/call/connected", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp httpdto.Response[httpdto.ConnectedUsersResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"u1"}, resp.Data.UserIDs)
}

func TestCallConfig(t *testing.T) {
	router := callSignalRouter(newStubRegistry(), uuid.New())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/call/config", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp httpdto.Response[httpdto.CallConfigResponse]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"stun:stun.example.org:3478"}, resp.Data.StunServers)
}
