package mcp

import (
	"context"
	"encoding/json"
)

// transport is the wire-level interface a Client drives. One
// implementation speaks newline-delimited JSON-RPC over a subprocess's
// stdio; another POSTs JSON-RPC over HTTP and listens for
// server-initiated messages on an SSE stream; a third exchanges one
// JSON-RPC message per websocket frame.
type transport interface {
	Connect(ctx context.Context) error
	Close() error
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
	Notify(ctx context.Context, method string, params any) error
	Events() <-chan *JSONRPCNotification
	Requests() <-chan *JSONRPCRequest
	Respond(ctx context.Context, id any, result any, rpcErr *JSONRPCError) error
	Connected() bool
}

func newTransport(cfg *ServerConfig) transport {
	switch cfg.Transport {
	case TransportHTTP:
		return newHTTPTransport(cfg)
	case TransportWebSocket:
		return newWSTransport(cfg)
	default:
		return newStdioTransport(cfg)
	}
}
