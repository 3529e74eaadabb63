package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhruvsoni1802/browser-hub/internal/config"
	"github.com/dhruvsoni1802/browser-hub/internal/core"
	"github.com/dhruvsoni1802/browser-hub/internal/engine/enginetest"
	"github.com/dhruvsoni1802/browser-hub/internal/failure"
	"github.com/dhruvsoni1802/browser-hub/internal/session"
	"github.com/dhruvsoni1802/browser-hub/internal/storage"
)

// Test helper: API server over a fake engine and a temp file store
func setupServer(t *testing.T, heartbeat time.Duration) (*httptest.Server, *core.Core, *enginetest.Engine) {
	t.Helper()

	root := t.TempDir()
	cfg := &config.Config{
		ServerPort:     "0",
		NavTimeout:     time.Second,
		ActionTimeout:  time.Second,
		SessionBackend: config.BackendFile,
		SessionsDir:    filepath.Join(root, "sessions"),
		ProfilesDir:    filepath.Join(root, "profiles"),
		ExtensionsDir:  filepath.Join(root, "extensions"),
		LoginTimeout:   time.Minute,
		CDPEndpoint:    "http://127.0.0.1:1",
		CDPTimeout:     200 * time.Millisecond,
		WSHeartbeat:    heartbeat,
	}

	store, err := storage.NewFileStore(cfg.SessionsDir)
	require.NoError(t, err)

	eng := enginetest.New()
	hub := core.New(cfg, eng, store)
	server := httptest.NewServer(NewServer(hub, nil).Handler())

	t.Cleanup(func() {
		server.Close()
		hub.Shutdown(context.Background())
	})
	return server, hub, eng
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	decoded := map[string]any{}
	if resp.StatusCode != http.StatusNoContent {
		json.NewDecoder(resp.Body).Decode(&decoded)
	}
	return resp, decoded
}

func errorCode(body map[string]any) string {
	detail, _ := body["error"].(map[string]any)
	code, _ := detail["code"].(string)
	return code
}

func TestHealth(t *testing.T) {
	server, _, _ := setupServer(t, 5*time.Second)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, resp.Header.Get("Content-Type"))
}

func TestNavigateAndContent(t *testing.T) {
	server, hub, _ := setupServer(t, 5*time.Second)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/navigate", map[string]any{
		"context_id": "c1",
		"url":        "https://example.com",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://example.com", body["url"])
	assert.Equal(t, "Title of https://example.com", body["title"])

	resp, body = doJSON(t, http.MethodPost, server.URL+"/content", map[string]any{"context_id": "c1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["html"], "example.com")

	assert.Equal(t, 1, hub.Registry.Count())
}

func TestActionValidation(t *testing.T) {
	server, _, _ := setupServer(t, 5*time.Second)

	tests := []struct {
		name string
		path string
		body map[string]any
	}{
		{"navigate without context", "/navigate", map[string]any{"url": "https://example.com"}},
		{"navigate without url", "/navigate", map[string]any{"context_id": "c1"}},
		{"click without selector", "/click", map[string]any{"context_id": "c1"}},
		{"evaluate without script", "/evaluate", map[string]any{"context_id": "c1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, http.MethodPost, server.URL+tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, ErrCodeInvalidRequest, errorCode(body))
		})
	}
}

func TestClickTypeEvaluateScreenshot(t *testing.T) {
	server, hub, _ := setupServer(t, 5*time.Second)

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/click", map[string]any{"context_id": "c1", "selector": "#go"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, server.URL+"/type", map[string]any{
		"context_id": "c1", "selector": "#email", "text": "me@example.com",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	page, err := hub.Page(context.Background(), "c1", "", true)
	require.NoError(t, err)
	fake := page.(*enginetest.Page)
	assert.Equal(t, []string{"#go"}, fake.Clicks())
	assert.Equal(t, "me@example.com", fake.Filled("#email"))

	resp, body := doJSON(t, http.MethodPost, server.URL+"/evaluate", map[string]any{"context_id": "c1", "script": "() => undefined"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "result")
	assert.Equal(t, "c1", body["context_id"])

	resp, body = doJSON(t, http.MethodPost, server.URL+"/screenshot", map[string]any{"context_id": "c1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "png", body["format"])
	assert.NotEmpty(t, body["screenshot"])
}

func TestSessionsListAndDelete(t *testing.T) {
	server, hub, _ := setupServer(t, 5*time.Second)
	require.NoError(t, hub.Store.Save(context.Background(), "demo", []byte(enginetest.EmptyState)))

	resp, body := doJSON(t, http.MethodGet, server.URL+"/sessions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["count"])

	resp, _ = doJSON(t, http.MethodDelete, server.URL+"/sessions/demo", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = doJSON(t, http.MethodDelete, server.URL+"/sessions/demo", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, ErrCodeNotFound, errorCode(body))
}

func TestLoginFlow(t *testing.T) {
	server, hub, eng := setupServer(t, 5*time.Second)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/sessions/github/login", map[string]any{"url": "https://github.com/login"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "github", body["name"])

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/logins", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	eng.Persistent()[0].SetStorageState(`{"cookies":[{"name":"a","value":"1"}],"origins":[]}`)

	resp, _ = doJSON(t, http.MethodPost, server.URL+"/sessions/github/save", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, server.URL+"/sessions/github/close", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, eng.Persistent()[0].IsClosed())

	exists, err := hub.Store.Exists(context.Background(), "github")
	require.NoError(t, err)
	assert.True(t, exists)

	resp, body = doJSON(t, http.MethodPost, server.URL+"/sessions/github/save", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, ErrCodeNotFound, errorCode(body))
}

func TestLoginNavigationFailureIsBadGateway(t *testing.T) {
	server, _, eng := setupServer(t, 5*time.Second)
	eng.SetPersistentHook(func(c *enginetest.Context) { c.PageGotoErr = errors.New("net::ERR_NAME_NOT_RESOLVED") })

	resp, body := doJSON(t, http.MethodPost, server.URL+"/sessions/broken/login", map[string]any{"url": "https://nope.invalid"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, ErrCodeNavigationFailed, errorCode(body))
}

func TestCloseContextAndShutdown(t *testing.T) {
	server, hub, _ := setupServer(t, 5*time.Second)
	ctx := context.Background()

	for _, key := range []session.Key{{ContextID: "c1"}, {ContextID: "c1", Session: "demo"}, {ContextID: "c2"}} {
		_, err := hub.Page(ctx, key.ContextID, key.Session, true)
		require.NoError(t, err)
	}

	resp, body := doJSON(t, http.MethodPost, server.URL+"/contexts/c1/close?session=demo", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["closed"])

	resp, body = doJSON(t, http.MethodPost, server.URL+"/contexts/c1/close", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["closed"])
	assert.Equal(t, 1, hub.Registry.Count())

	resp, _ = doJSON(t, http.MethodPost, server.URL+"/shutdown", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, hub.Registry.Count())

	// the registry keeps serving after a shutdown request
	resp, _ = doJSON(t, http.MethodPost, server.URL+"/navigate", map[string]any{"context_id": "c3", "url": "https://example.com"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBridgeRoutes(t *testing.T) {
	server, _, _ := setupServer(t, 5*time.Second)

	resp, _ := doJSON(t, http.MethodGet, server.URL+"/tabs", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/chrome/connect", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, ErrCodeAttachFailed, errorCode(body))
	detail := body["error"].(map[string]any)
	assert.Contains(t, detail["guidance"], "--remote-debugging-port")

	resp, body = doJSON(t, http.MethodPost, server.URL+"/chrome/launch", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["profile_dir"])
}

func TestStatusAndMetrics(t *testing.T) {
	server, _, _ := setupServer(t, 5*time.Second)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "browsers")
	assert.Contains(t, body, "bridge")

	metricsResp, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer metricsResp.Body.Close()
	assert.Equal(t, http.StatusOK, metricsResp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{failure.New(failure.NotFound, "op", "missing"), http.StatusNotFound},
		{failure.New(failure.AttachFailure, "op", "refused"), http.StatusServiceUnavailable},
		{failure.New(failure.LaunchFailure, "op", "crashed"), http.StatusServiceUnavailable},
		{failure.New(failure.NavigationFailure, "op", "dns"), http.StatusBadGateway},
		{failure.New(failure.PersistenceFailure, "op", "disk"), http.StatusInternalServerError},
		{failure.New(failure.InvalidInput, "op", "bad"), http.StatusBadRequest},
		{session.ErrInvalidKey, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		status, _ := statusFor(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}

func wsURL(server *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws" + query
}

func TestRelayRunsActions(t *testing.T) {
	server, hub, _ := setupServer(t, 5*time.Second)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "?context_id=ws1"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello wsReply
	require.NoError(t, conn.ReadJSON(&hello))
	assert.True(t, hello.Success)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"id":     1,
		"action": "navigate",
		"params": map[string]any{"url": "https://example.com"},
	}))

	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, float64(1), reply["id"])
	assert.Equal(t, true, reply["success"])
	result := reply["result"].(map[string]any)
	assert.Equal(t, "https://example.com", result["url"])

	require.NoError(t, conn.WriteJSON(map[string]any{"id": 2, "action": "fly"}))
	reply = map[string]any{}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, false, reply["success"])
	assert.Contains(t, reply["error"], "unknown action")

	assert.Equal(t, 1, hub.Registry.Count())
}

func TestRelayGeneratesContextID(t *testing.T) {
	server, _, _ := setupServer(t, 5*time.Second)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, ""), nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello map[string]any
	require.NoError(t, conn.ReadJSON(&hello))
	result := hello["result"].(map[string]any)
	assert.Len(t, result["context_id"], 36)
}

func TestRelayMissedHeartbeatClosesContext(t *testing.T) {
	server, hub, _ := setupServer(t, 50*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "?context_id=idle"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello wsReply
	require.NoError(t, conn.ReadJSON(&hello))
	require.NoError(t, conn.WriteJSON(map[string]any{"id": 1, "action": "content"}))
	var reply wsReply
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, 1, hub.Registry.Count())

	// the client stops reading, so pings go unanswered
	assert.Eventually(t, func() bool {
		return hub.Registry.Count() == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRelaySlowActionKeepsResponsiveClient(t *testing.T) {
	server, hub, _ := setupServer(t, 100*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, "?context_id=busy"), nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello wsReply
	require.NoError(t, conn.ReadJSON(&hello))

	// a humanized scroll pauses at least 300ms per step, spanning several ticks;
	// the client keeps reading, so its pongs go out while the action runs
	require.NoError(t, conn.WriteJSON(map[string]any{"id": 1, "action": "scroll"}))

	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, true, reply["success"])
	result := reply["result"].(map[string]any)
	assert.Greater(t, result["distance"], float64(0))
	assert.Equal(t, 1, hub.Registry.Count())

	require.NoError(t, conn.WriteJSON(map[string]any{"id": 2, "action": "content"}))
	reply = map[string]any{}
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, true, reply["success"])
}
