package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startWSServer runs a JSON-RPC echo server that answers every request
// whose method is not in silence, and returns its ws:// URL.
func startWSServer(t *testing.T, silence map[string]bool) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req JSONRPCRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			if req.ID == nil || silence[req.Method] {
				continue
			}
			resp := JSONRPCResponse{JSONRPC: "2.0", ID: req.ID, Result: json.RawMessage(`{"method":"` + req.Method + `"}`)}
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSTransportCallRoundTrip(t *testing.T) {
	url := startWSServer(t, nil)
	tr := newWSTransport(&ServerConfig{ID: "ws", Transport: TransportWebSocket, URL: url, Timeout: 2 * time.Second})
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	result, err := tr.Call(context.Background(), "tools/list", nil)
	require.NoError(t, err)
	assert.Contains(t, string(result), "tools/list")
}

func TestWSTransportTimeoutPurgesPendingAndRecovers(t *testing.T) {
	url := startWSServer(t, map[string]bool{"tools/call": true})
	tr := newWSTransport(&ServerConfig{ID: "ws", Transport: TransportWebSocket, URL: url, Timeout: 100 * time.Millisecond})
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	_, err := tr.Call(context.Background(), "tools/call", map[string]any{"name": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")

	tr.pendingMu.Lock()
	pendingAfter := len(tr.pending)
	tr.pendingMu.Unlock()
	assert.Zero(t, pendingAfter, "timed-out entry must be purged")

	// The transport stays usable for subsequent requests.
	result, err := tr.Call(context.Background(), "tools/list", nil)
	require.NoError(t, err)
	assert.Contains(t, string(result), "tools/list")
}

func TestWSTransportNotifyDoesNotAllocatePending(t *testing.T) {
	url := startWSServer(t, nil)
	tr := newWSTransport(&ServerConfig{ID: "ws", Transport: TransportWebSocket, URL: url})
	require.NoError(t, tr.Connect(context.Background()))
	defer tr.Close()

	require.NoError(t, tr.Notify(context.Background(), "notifications/progress", map[string]any{"pct": 50}))
	tr.pendingMu.Lock()
	defer tr.pendingMu.Unlock()
	assert.Zero(t, len(tr.pending))
}

func TestWSConfigValidation(t *testing.T) {
	cfg := &ServerConfig{ID: "w", Transport: TransportWebSocket, URL: "http://nope"}
	require.Error(t, cfg.Validate())
	cfg.URL = "wss://example.com/mcp"
	require.NoError(t, cfg.Validate())
}
