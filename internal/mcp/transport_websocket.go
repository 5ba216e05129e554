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

// WebSocketTransport implements the MCP transport over a persistent
// websocket connection, the third transport spec §4.4 names alongside
// stdio and http.
type WebSocketTransport struct {
	config *ServerConfig
	logger *slog.Logger
	dialer *websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	connected atomic.Bool
	nextID    atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]chan *JSONRPCResponse

	events   chan *JSONRPCNotification
	requests chan *JSONRPCRequest
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewWebSocketTransport creates a new websocket transport.
func NewWebSocketTransport(cfg *ServerConfig) *WebSocketTransport {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &WebSocketTransport{
		config:   cfg,
		logger:   slog.Default().With("mcp_server", cfg.ID, "transport", "websocket"),
		dialer:   &websocket.Dialer{HandshakeTimeout: timeout},
		pending:  make(map[int64]chan *JSONRPCResponse),
		events:   make(chan *JSONRPCNotification, 100),
		requests: make(chan *JSONRPCRequest, 100),
		stopChan: make(chan struct{}),
	}
}

// Connect dials the websocket server and starts the read loop.
func (t *WebSocketTransport) Connect(ctx context.Context) error {
	if t.config.URL == "" {
		return fmt.Errorf("URL is required for websocket transport")
	}

	header := http.Header{}
	for k, v := range t.config.Headers {
		header.Set(k, v)
	}

	conn, _, err := t.dialer.DialContext(ctx, t.config.URL, header)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()
	t.connected.Store(true)
	t.logger.Info("websocket transport connected", "url", t.config.URL)

	t.wg.Add(1)
	go t.readLoop()

	return nil
}

// Close closes the websocket connection and stops the read loop.
func (t *WebSocketTransport) Close() error {
	if !t.connected.CompareAndSwap(true, false) {
		return nil
	}
	close(t.stopChan)

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	t.wg.Wait()

	t.pendingMu.Lock()
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
	t.pendingMu.Unlock()

	return nil
}

// Call sends a request and blocks until its matching response arrives,
// the context is cancelled, or the connection drops.
func (t *WebSocketTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.connected.Load() {
		return nil, fmt.Errorf("not connected")
	}

	id := t.nextID.Add(1)
	req := JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal params: %w", err)
		}
		req.Params = paramsJSON
	}

	respCh := make(chan *JSONRPCResponse, 1)
	t.pendingMu.Lock()
	t.pending[id] = respCh
	t.pendingMu.Unlock()
	defer func() {
		t.pendingMu.Lock()
		delete(t.pending, id)
		t.pendingMu.Unlock()
	}()

	if err := t.writeJSON(req); err != nil {
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.stopChan:
		return nil, fmt.Errorf("websocket transport closed")
	case resp, ok := <-respCh:
		if !ok {
			return nil, fmt.Errorf("websocket transport closed before response")
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("MCP error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	}
}

// Notify sends a notification; no response is expected.
func (t *WebSocketTransport) Notify(ctx context.Context, method string, params any) error {
	if !t.connected.Load() {
		return fmt.Errorf("not connected")
	}
	notif := JSONRPCNotification{JSONRPC: "2.0", Method: method}
	if params != nil {
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("marshal params: %w", err)
		}
		notif.Params = paramsJSON
	}
	return t.writeJSON(notif)
}

func (t *WebSocketTransport) writeJSON(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return fmt.Errorf("not connected")
	}
	return t.conn.WriteJSON(v)
}

// Events returns the notification channel.
func (t *WebSocketTransport) Events() <-chan *JSONRPCNotification { return t.events }

// Requests returns the server-initiated request channel.
func (t *WebSocketTransport) Requests() <-chan *JSONRPCRequest { return t.requests }

// Respond replies to a server-initiated request.
func (t *WebSocketTransport) Respond(ctx context.Context, id any, result any, rpcErr *JSONRPCError) error {
	if !t.connected.Load() {
		return fmt.Errorf("not connected")
	}
	resp := JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: rpcErr}
	if rpcErr == nil && result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		resp.Result = data
	}
	return t.writeJSON(resp)
}

// Connected reports whether the transport currently holds a live connection.
func (t *WebSocketTransport) Connected() bool {
	return t.connected.Load()
}

// readLoop decodes frames off the socket, routing responses to their
// waiting Call, requests to the Requests channel, and notifications to
// the Events channel.
func (t *WebSocketTransport) readLoop() {
	defer t.wg.Done()
	defer t.connected.Store(false)

	for {
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-t.stopChan:
			default:
				t.logger.Debug("websocket read error", "error", err)
			}
			return
		}

		var envelope struct {
			JSONRPC string          `json:"jsonrpc"`
			ID      json.RawMessage `json:"id"`
			Method  string          `json:"method"`
			Params  json.RawMessage `json:"params,omitempty"`
			Result  json.RawMessage `json:"result,omitempty"`
			Error   *JSONRPCError   `json:"error,omitempty"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			t.logger.Debug("discarding malformed frame", "error", err)
			continue
		}

		switch {
		case envelope.Method != "" && len(envelope.ID) > 0:
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
		case len(envelope.ID) > 0:
			var id int64
			if err := json.Unmarshal(envelope.ID, &id); err != nil {
				continue
			}
			t.pendingMu.Lock()
			ch, ok := t.pending[id]
			t.pendingMu.Unlock()
			if !ok {
				continue
			}
			ch <- &JSONRPCResponse{JSONRPC: envelope.JSONRPC, ID: id, Result: envelope.Result, Error: envelope.Error}
		}
	}
}
