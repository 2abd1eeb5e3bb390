package transport

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/domain"
	"github.com/seu-repo/ocpp-csms/internal/observability/telemetry"
)

// HTTPPullAdapter serves chargers that cannot hold a socket open: they
// POST inbound frames to /ocpp/:chargerID and poll GET /ocpp/:chargerID
// for queued outbound commands. Outbound sends never get a synchronous
// response; they are queued with a request id the charger echoes back in
// a later POST. A charger counts as connected while its last POST or
// poll is inside the freshness window.
type HTTPPullAdapter struct {
	freshness time.Duration
	handler   Handler
	reg       Registry
	log       *zap.Logger

	mu       sync.Mutex
	queues   map[string][]*queuedCall
	lastSeen map[string]time.Time
	stopped  bool
}

type queuedCall struct {
	RequestID string          `json:"requestId"`
	Action    string          `json:"action"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	QueuedAt  time.Time       `json:"queuedAt"`
}

func NewHTTPPullAdapter(freshness time.Duration, reg Registry, log *zap.Logger) *HTTPPullAdapter {
	if freshness <= 0 {
		freshness = 5 * time.Minute
	}
	return &HTTPPullAdapter{
		freshness: freshness,
		reg:       reg,
		log:       log,
		queues:    make(map[string][]*queuedCall),
		lastSeen:  make(map[string]time.Time),
	}
}

func (a *HTTPPullAdapter) Name() string { return NameHTTP }

func (a *HTTPPullAdapter) SetHandler(h Handler) { a.handler = h }

func (a *HTTPPullAdapter) Start(ctx context.Context) error {
	a.log.Info("HTTP pull transport ready", zap.Duration("freshness_window", a.freshness))
	return nil
}

func (a *HTTPPullAdapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	a.queues = make(map[string][]*queuedCall)
	return nil
}

// RegisterRoutes mounts the carrier endpoints on the shared HTTP server.
func (a *HTTPPullAdapter) RegisterRoutes(router fiber.Router) {
	router.Post("/ocpp/:chargerID", a.handlePost)
	router.Get("/ocpp/:chargerID", a.handlePoll)
}

func (a *HTTPPullAdapter) handlePost(c *fiber.Ctx) error {
	chargerID := c.Params("chargerID")

	var frame struct {
		Action  string          `json:"action"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := c.BodyParser(&frame); err != nil || frame.Action == "" {
		return fiber.NewError(fiber.StatusBadRequest, "body must be {action, payload}")
	}

	a.touch(c.Context(), chargerID)

	result, err := a.handler(c.Context(), chargerID, frame.Action, frame.Payload)
	if err != nil {
		result = fiber.Map{"error": err.Error()}
	}
	telemetry.OCPPMessagesTotal.WithLabelValues(frame.Action, "outbound").Inc()

	return c.JSON(fiber.Map{
		"response": result,
		"pending":  a.popPending(chargerID),
	})
}

func (a *HTTPPullAdapter) handlePoll(c *fiber.Ctx) error {
	chargerID := c.Params("chargerID")
	a.touch(c.Context(), chargerID)
	return c.JSON(fiber.Map{
		"pending": a.popPending(chargerID),
	})
}

func (a *HTTPPullAdapter) touch(ctx context.Context, chargerID string) {
	a.mu.Lock()
	_, known := a.lastSeen[chargerID]
	a.lastSeen[chargerID] = time.Now()
	a.mu.Unlock()

	if known {
		a.reg.Touch(ctx, chargerID)
	} else {
		a.reg.Attach(ctx, chargerID, NameHTTP)
		telemetry.ConnectedChargers.WithLabelValues(NameHTTP).Inc()
		a.log.Info("Charger connected via http pull", zap.String("charger_id", chargerID))
	}
}

// popPending dequeues at most one outbound call, skipping entries that
// aged past the freshness window.
func (a *HTTPPullAdapter) popPending(chargerID string) *queuedCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	queue := a.queues[chargerID]
	for len(queue) > 0 {
		call := queue[0]
		queue = queue[1:]
		if time.Since(call.QueuedAt) > a.freshness {
			continue
		}
		a.queues[chargerID] = queue
		return call
	}
	a.queues[chargerID] = queue
	return nil
}

func (a *HTTPPullAdapter) IsConnected(chargerID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	seen, ok := a.lastSeen[chargerID]
	return ok && time.Since(seen) <= a.freshness
}

// SendMessage enqueues the call for the charger's next poll. The carrier
// is store-and-forward, so the result is always Queued; the eventual
// charger response arrives as a later POST echoing RequestID.
func (a *HTTPPullAdapter) SendMessage(ctx context.Context, chargerID, action string, payload json.RawMessage, timeout time.Duration) (*SendResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return nil, domain.ErrShuttingDown
	}

	call := &queuedCall{
		RequestID: uuid.NewString(),
		Action:    action,
		Payload:   payload,
		QueuedAt:  time.Now(),
	}
	a.queues[chargerID] = append(a.queues[chargerID], call)
	telemetry.OCPPMessagesTotal.WithLabelValues(action, "outbound").Inc()

	return &SendResult{Success: true, Queued: true, RequestID: call.RequestID}, nil
}
