package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/domain"
	"github.com/seu-repo/ocpp-csms/internal/observability/telemetry"
)

const ocppSubprotocol = "ocpp1.6"

// WebsocketAdapter terminates persistent bidirectional sockets on
// /ocpp?id=<chargerID>. Chargers must offer the ocpp1.6 subprotocol.
// Outbound correlation is positional: while a call is in flight the next
// inbound frame on that socket is taken as its response.
type WebsocketAdapter struct {
	addr         string
	pingInterval time.Duration
	pongWait     time.Duration
	handler      Handler
	reg          Registry
	log          *zap.Logger

	upgrader websocket.Upgrader
	server   *http.Server

	stop     chan struct{}
	stopOnce sync.Once

	mu    sync.RWMutex
	conns map[string]*wsConn

	// OnDisconnect fires after the socket is torn down; pingTimeout marks
	// a missed keep-alive, which transitions the charger to Offline.
	OnDisconnect func(chargerID string, pingTimeout bool)
}

type wsConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	sendMu  sync.Mutex
	pending chan []byte
	closed  chan struct{}
	once    sync.Once

	mu       sync.Mutex
	awaiting bool
}

func NewWebsocketAdapter(addr string, pingInterval, pongWait time.Duration, reg Registry, log *zap.Logger) *WebsocketAdapter {
	return &WebsocketAdapter{
		addr:         addr,
		pingInterval: pingInterval,
		pongWait:     pongWait,
		reg:          reg,
		log:          log,
		upgrader: websocket.Upgrader{
			Subprotocols:    []string{ocppSubprotocol},
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		stop:  make(chan struct{}),
		conns: make(map[string]*wsConn),
	}
}

func (a *WebsocketAdapter) Name() string { return NameWebsocket }

func (a *WebsocketAdapter) SetHandler(h Handler) { a.handler = h }

func (a *WebsocketAdapter) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ocpp", a.handleUpgrade)

	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("websocket transport: listen %s: %w", a.addr, err)
	}

	a.server = &http.Server{Handler: mux}
	go func() {
		if err := a.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			a.log.Error("Websocket transport stopped", zap.Error(err))
		}
	}()

	a.log.Info("Websocket transport listening",
		zap.String("addr", a.addr),
		zap.String("subprotocol", ocppSubprotocol),
	)
	return nil
}

func (a *WebsocketAdapter) Stop(ctx context.Context) error {
	// Flagged before the sockets close so in-flight calls resolve as
	// ErrShuttingDown rather than a peer disconnect.
	a.stopOnce.Do(func() { close(a.stop) })

	a.mu.Lock()
	conns := make(map[string]*wsConn, len(a.conns))
	for id, c := range a.conns {
		conns[id] = c
	}
	a.mu.Unlock()

	for id, c := range conns {
		c.close()
		a.dropConn(id, c, false)
	}
	if a.server != nil {
		return a.server.Shutdown(ctx)
	}
	return nil
}

func (a *WebsocketAdapter) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	chargerID := r.URL.Query().Get("id")
	if chargerID == "" {
		http.Error(w, "missing id query parameter", http.StatusBadRequest)
		return
	}

	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("Websocket upgrade failed", zap.String("charger_id", chargerID), zap.Error(err))
		return
	}

	if ws.Subprotocol() != ocppSubprotocol {
		a.log.Warn("Charger did not offer required subprotocol",
			zap.String("charger_id", chargerID),
			zap.String("offered", ws.Subprotocol()),
		)
		msg := websocket.FormatCloseMessage(websocket.CloseProtocolError, "subprotocol ocpp1.6 required")
		ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		ws.Close()
		return
	}

	conn := &wsConn{
		ws:      ws,
		pending: make(chan []byte, 1),
		closed:  make(chan struct{}),
	}

	a.mu.Lock()
	if old, ok := a.conns[chargerID]; ok {
		old.close()
	}
	a.conns[chargerID] = conn
	a.mu.Unlock()

	a.reg.Attach(r.Context(), chargerID, NameWebsocket)
	telemetry.ConnectedChargers.WithLabelValues(NameWebsocket).Inc()
	a.log.Info("Charger connected via websocket", zap.String("charger_id", chargerID))

	go a.pingLoop(chargerID, conn)
	a.readLoop(chargerID, conn)
}

func (a *WebsocketAdapter) pingLoop(chargerID string, c *wsConn) {
	ticker := time.NewTicker(a.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(a.pongWait))
			c.writeMu.Unlock()
			if err != nil {
				c.close()
				return
			}
		}
	}
}

func (a *WebsocketAdapter) readLoop(chargerID string, c *wsConn) {
	resetDeadline := func() {
		c.ws.SetReadDeadline(time.Now().Add(a.pingInterval + a.pongWait))
	}
	resetDeadline()
	c.ws.SetPongHandler(func(string) error {
		resetDeadline()
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			pingTimeout := false
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				pingTimeout = true
			}
			c.close()
			a.dropConn(chargerID, c, pingTimeout)
			return
		}
		resetDeadline()
		a.reg.Touch(context.Background(), chargerID)

		// A frame arriving while an outbound call is in flight is that
		// call's response, not a new request.
		c.mu.Lock()
		awaiting := c.awaiting
		c.mu.Unlock()
		if awaiting {
			select {
			case c.pending <- data:
			default:
			}
			continue
		}

		resp, violation := a.handleFrame(chargerID, data)
		if violation {
			msg := websocket.FormatCloseMessage(websocket.CloseProtocolError, "malformed frame")
			c.writeMu.Lock()
			c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			c.writeMu.Unlock()
			c.close()
			a.dropConn(chargerID, c, false)
			return
		}
		if resp != nil {
			c.writeMu.Lock()
			err = c.ws.WriteMessage(websocket.TextMessage, resp)
			c.writeMu.Unlock()
			if err != nil {
				c.close()
				a.dropConn(chargerID, c, false)
				return
			}
		}
	}
}

// handleFrame decodes and dispatches one inbound frame, returning the
// serialized response. violation is set for malformed JSON, which on this
// carrier closes the socket.
func (a *WebsocketAdapter) handleFrame(chargerID string, data []byte) (resp []byte, violation bool) {
	var frame struct {
		Action  string          `json:"action"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &frame); err != nil || frame.Action == "" {
		a.log.Warn("Protocol violation on websocket",
			zap.String("charger_id", chargerID),
			zap.Error(err),
		)
		return nil, true
	}

	result, err := a.handler(context.Background(), chargerID, frame.Action, frame.Payload)
	if err != nil {
		result = map[string]string{"error": err.Error()}
	}
	out, err := json.Marshal(result)
	if err != nil {
		a.log.Error("Failed to serialize response",
			zap.String("charger_id", chargerID),
			zap.String("action", frame.Action),
			zap.Error(err),
		)
		return nil, false
	}
	telemetry.OCPPMessagesTotal.WithLabelValues(frame.Action, "outbound").Inc()
	return out, false
}

func (a *WebsocketAdapter) dropConn(chargerID string, c *wsConn, pingTimeout bool) {
	a.mu.Lock()
	current, ok := a.conns[chargerID]
	if ok && current == c {
		delete(a.conns, chargerID)
	} else {
		ok = false
	}
	a.mu.Unlock()
	if !ok {
		return
	}

	a.reg.Detach(context.Background(), chargerID)
	telemetry.ConnectedChargers.WithLabelValues(NameWebsocket).Dec()
	a.log.Info("Charger disconnected from websocket",
		zap.String("charger_id", chargerID),
		zap.Bool("ping_timeout", pingTimeout),
	)
	if a.OnDisconnect != nil {
		a.OnDisconnect(chargerID, pingTimeout)
	}
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.closed)
		c.ws.Close()
	})
}

func (a *WebsocketAdapter) IsConnected(chargerID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.conns[chargerID]
	return ok
}

// SendMessage writes {action, payload} and waits for the next inbound
// frame as the response. Calls to the same charger are serialized;
// a late response after timeout is discarded by the read loop.
func (a *WebsocketAdapter) SendMessage(ctx context.Context, chargerID, action string, payload json.RawMessage, timeout time.Duration) (*SendResult, error) {
	a.mu.RLock()
	c, ok := a.conns[chargerID]
	a.mu.RUnlock()
	if !ok {
		return nil, domain.ErrChargerNotConnected
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	frame, err := json.Marshal(map[string]any{"action": action, "payload": payload})
	if err != nil {
		return nil, fmt.Errorf("websocket transport: marshal frame: %w", err)
	}

	c.mu.Lock()
	c.awaiting = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.awaiting = false
		c.mu.Unlock()
		select {
		case <-c.pending:
		default:
		}
	}()

	c.writeMu.Lock()
	err = c.ws.WriteMessage(websocket.TextMessage, frame)
	c.writeMu.Unlock()
	if err != nil {
		return nil, domain.ErrChargerNotConnected
	}
	telemetry.OCPPMessagesTotal.WithLabelValues(action, "outbound").Inc()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case data := <-c.pending:
		return &SendResult{Success: true, Data: data}, nil
	case <-timer.C:
		return nil, domain.ErrTimeout
	case <-a.stop:
		return nil, domain.ErrShuttingDown
	case <-c.closed:
		select {
		case <-a.stop:
			return nil, domain.ErrShuttingDown
		default:
		}
		return nil, domain.ErrChargerNotConnected
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
