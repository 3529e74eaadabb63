package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dhruvsoni1802/browser-hub/internal/metrics"
)

const (
	pingWriteWait = 5 * time.Second

	// commands a client may queue while one is running
	wsQueueSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the relay is a local automation endpoint, any origin may drive it
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsRequest is one relay command
type wsRequest struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Action string          `json:"action"`
	Params wsParams        `json:"params"`
}

type wsParams struct {
	Session  string `json:"session,omitempty"`
	Headless *bool  `json:"headless,omitempty"`
	URL      string `json:"url,omitempty"`
	Selector string `json:"selector,omitempty"`
	Text     string `json:"text,omitempty"`
	Humanize bool   `json:"humanize,omitempty"`
	Script   string `json:"script,omitempty"`
	FullPage bool   `json:"full_page,omitempty"`
}

// wsReply answers a wsRequest with the same id
type wsReply struct {
	ID      json.RawMessage `json:"id,omitempty"`
	Success bool            `json:"success"`
	Result  any             `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Relay serves GET /ws. Every client owns one context id for its lifetime.
func (h *Handlers) Relay(w http.ResponseWriter, r *http.Request) {
	contextID := r.URL.Query().Get("context_id")
	if contextID == "" {
		contextID = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}

	metrics.WSClientConnected()
	slog.Info("websocket client connected", "context_id", contextID, "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		conn.Close()
		closed := h.hub.Registry.Close(contextID, nil)
		metrics.WSClientDisconnected()
		slog.Info("websocket client disconnected", "context_id", contextID, "contexts_closed", closed)
	}()

	var alive atomic.Bool
	alive.Store(true)
	conn.SetPongHandler(func(string) error {
		alive.Store(true)
		return nil
	})
	go h.heartbeat(ctx, conn, contextID, &alive)

	if err := conn.WriteJSON(wsReply{Success: true, Result: map[string]string{"context_id": contextID}}); err != nil {
		return
	}

	// reads run on their own goroutine so pongs are handled while an action is busy
	messages := make(chan []byte, wsQueueSize)
	readErr := make(chan error, 1)
	go readLoop(ctx, conn, messages, readErr)

	for {
		var data []byte
		select {
		case err := <-readErr:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("websocket read failed", "context_id", contextID, "error", err)
			}
			return
		case data = <-messages:
		}

		var req wsRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if err := conn.WriteJSON(wsReply{Success: false, Error: "invalid JSON message"}); err != nil {
				return
			}
			continue
		}

		result, err := h.dispatch(ctx, contextID, req)
		reply := wsReply{ID: req.ID, Success: err == nil, Result: result}
		if err != nil {
			reply.Error = err.Error()
		}
		if err := conn.WriteJSON(reply); err != nil {
			return
		}

		if req.Action == "close" {
			return
		}
	}
}

// readLoop queues client messages until the connection fails or ctx ends
func readLoop(ctx context.Context, conn *websocket.Conn, messages chan<- []byte, readErr chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}
		select {
		case messages <- data:
		case <-ctx.Done():
			return
		}
	}
}

// heartbeat pings every interval. A client that has not answered the previous ping is cut off.
func (h *Handlers) heartbeat(ctx context.Context, conn *websocket.Conn, contextID string, alive *atomic.Bool) {
	interval := h.hub.Config.WSHeartbeat
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !alive.Swap(false) {
				slog.Info("websocket heartbeat missed, terminating", "context_id", contextID)
				conn.Close()
				return
			}
			deadline := time.Now().Add(pingWriteWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				conn.Close()
				return
			}
		}
	}
}

// dispatch runs one relay action on the client's page
func (h *Handlers) dispatch(ctx context.Context, contextID string, req wsRequest) (any, error) {
	params := req.Params
	if req.Action == "close" {
		var sessionName *string
		if params.Session != "" {
			sessionName = &params.Session
		}
		return map[string]int{"closed": h.hub.Registry.Close(contextID, sessionName)}, nil
	}

	headless := params.Headless == nil || *params.Headless
	page, err := h.hub.Page(ctx, contextID, params.Session, headless)
	if err != nil {
		return nil, err
	}

	runner := h.hub.Actions
	switch req.Action {
	case "navigate":
		if params.URL == "" {
			return nil, fmt.Errorf("url is required")
		}
		return runner.Navigate(page, params.URL)
	case "click":
		return nil, runner.Click(page, params.Selector)
	case "type":
		return nil, runner.Type(page, params.Selector, params.Text, params.Humanize)
	case "scroll":
		distance, err := runner.Scroll(page)
		return map[string]float64{"distance": distance}, err
	case "evaluate":
		return runner.Evaluate(page, params.Script)
	case "content":
		return runner.Content(page)
	case "screenshot":
		data, err := runner.Screenshot(page, params.FullPage)
		if err != nil {
			return nil, err
		}
		return map[string]any{"screenshot": base64.StdEncoding.EncodeToString(data), "format": "png", "size": len(data)}, nil
	default:
		return nil, fmt.Errorf("unknown action %q", req.Action)
	}
}
