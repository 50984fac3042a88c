package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// wsTransport speaks JSON-RPC over a websocket: one JSON message per
// frame in both directions. Like stdio it is a full-duplex stream, so
// it shares the pending-call table idiom rather than HTTP's
// request/response pairing.
type wsTransport struct {
	config *ServerConfig
	logger *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	pendingMu sync.Mutex
	pending   map[int64]*pendingCall
	nextID    atomic.Int64

	events   chan *JSONRPCNotification
	requests chan *JSONRPCRequest

	connected atomic.Bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func newWSTransport(cfg *ServerConfig) *wsTransport {
	return &wsTransport{
		config:   cfg,
		logger:   slog.Default().With("mcp_server", cfg.ID, "transport", "websocket"),
		pending:  make(map[int64]*pendingCall),
		events:   make(chan *JSONRPCNotification, 100),
		requests: make(chan *JSONRPCRequest, 10),
		stopCh:   make(chan struct{}),
	}
}

func (t *wsTransport) Connect(ctx context.Context) error {
	if t.config.URL == "" {
		return fmt.Errorf("url is required for websocket transport")
	}

	header := http.Header{}
	for k, v := range t.config.Headers {
		header.Set(k, v)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, t.config.URL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("websocket dial: %w", err)
	}
	if resp != nil {
		resp.Body.Close()
	}

	t.connMu.Lock()
	t.conn = conn
	t.connMu.Unlock()
	t.connected.Store(true)

	t.wg.Add(2)
	go t.readLoop()
	go t.sweepExpired()
	return nil
}

func (t *wsTransport) Close() error {
	if !t.connected.CompareAndSwap(true, false) {
		return nil
	}
	close(t.stopCh)
	t.connMu.Lock()
	if t.conn != nil {
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		t.conn.Close()
	}
	t.connMu.Unlock()
	t.wg.Wait()
	t.failAllPending(fmt.Errorf("transport closed"))
	return nil
}

func (t *wsTransport) writeJSON(v any) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()
	if t.conn == nil {
		return fmt.Errorf("transport not connected")
	}
	return t.conn.WriteJSON(v)
}

func (t *wsTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, fmt.Errorf("transport not connected")
	}

	id := t.nextID.Add(1)
	req := JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = raw
	}

	timeout := t.config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	call := &pendingCall{respCh: make(chan *JSONRPCResponse, 1), expires: time.Now().Add(timeout)}
	t.pendingMu.Lock()
	t.pending[id] = call
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
	}()

	if err := t.writeJSON(req); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.stopCh:
		return nil, fmt.Errorf("transport closed")
	case <-time.After(timeout):
		return nil, fmt.Errorf("request %s timed out after %s", method, timeout)
	case resp := <-call.respCh:
		if resp == nil {
			return nil, fmt.Errorf("connection lost")
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("mcp error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	}
}

func (t *wsTransport) Notify(ctx context.Context, method string, params any) error {
	if !t.connected.Load() {
		return fmt.Errorf("transport not connected")
	}
	notif := JSONRPCNotification{JSONRPC: "2.0", Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		notif.Params = raw
	}
	return t.writeJSON(notif)
}

func (t *wsTransport) Respond(ctx context.Context, id any, result any, rpcErr *JSONRPCError) error {
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: rpcErr}
	if rpcErr == nil && result != nil {
		raw, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		resp.Result = raw
	}
	return t.writeJSON(resp)
}

func (t *wsTransport) Events() <-chan *JSONRPCNotification { return t.events }
func (t *wsTransport) Requests() <-chan *JSONRPCRequest    { return t.requests }
func (t *wsTransport) Connected() bool                     { return t.connected.Load() }

// readLoop routes inbound frames: responses complete pending calls,
// requests and notifications go to their channels. Unknown or
// malformed frames are logged and dropped, never fatal.
func (t *wsTransport) readLoop() {
	defer t.wg.Done()
	for {
		t.connMu.Lock()
		conn := t.conn
		t.connMu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if t.connected.Load() {
				t.logger.Warn("websocket read failed", "error", err)
				t.connected.Store(false)
				t.failAllPending(fmt.Errorf("connection lost: %w", err))
			}
			return
		}

		var envelope struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      any             `json:"id"`
			Method  string          `json:"method"`
			Result  json.RawMessage `json:"result,omitempty"`
			Error   *JSONRPCError   `json:"error,omitempty"`
			Params  json.RawMessage `json:"params,omitempty"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			t.logger.Warn("unparseable frame, dropping", "error", err)
			continue
		}

		switch {
		case envelope.Method == "" && envelope.ID != nil:
			t.deliverResponse(&JSONRPCResponse{JSONRPC: envelope.JSONRPC, ID: envelope.ID, Result: envelope.Result, Error: envelope.Error})
		case envelope.Method != "" && envelope.ID != nil:
			select {
			case t.requests <- &JSONRPCRequest{JSONRPC: envelope.JSONRPC, ID: envelope.ID, Method: envelope.Method, Params: envelope.Params}:
			default:
				t.logger.Warn("request channel full, dropping")
			}
		case envelope.Method != "":
			select {
			case t.events <- &JSONRPCNotification{JSONRPC: envelope.JSONRPC, Method: envelope.Method, Params: envelope.Params}:
			default:
				t.logger.Warn("notification channel full, dropping")
			}
		}
	}
}

// deliverResponse completes the matching pending call; a response with
// no matching id is logged and dropped.
func (t *wsTransport) deliverResponse(resp *JSONRPCResponse) {
	id, ok := asInt64(resp.ID)
	if !ok {
		t.logger.Warn("response with non-numeric id, dropping", "id", resp.ID)
		return
	}
	t.pendingMu.Lock()
	call, found := t.pending[id]
	if found {
		delete(t.pending, id)
	}
	t.pendingMu.Unlock()
	if !found {
		t.logger.Warn("response with no pending call, dropping", "id", id)
		return
	}
	call.respCh <- resp
}

// sweepExpired purges pending calls past their deadline even when no
// new call triggers cleanup.
func (t *wsTransport) sweepExpired() {
	defer t.wg.Done()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			now := time.Now()
			t.pendingMu.Lock()
			for id, call := range t.pending {
				if now.After(call.expires) {
					delete(t.pending, id)
					close(call.respCh)
				}
			}
			t.pendingMu.Unlock()
		}
	}
}

func (t *wsTransport) failAllPending(reason error) {
	t.pendingMu.Lock()
	defer t.pendingMu.Unlock()
	if len(t.pending) > 0 {
		t.logger.Warn("failing in-flight calls", "count", len(t.pending), "reason", reason)
	}
	for id, call := range t.pending {
		delete(t.pending, id)
		close(call.respCh)
	}
}
