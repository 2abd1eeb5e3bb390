package ocpp

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/domain"
	"github.com/seu-repo/ocpp-csms/internal/observability/telemetry"
)

// HandlerFunc processes one inbound action for one charger and returns
// the protocol response object.
type HandlerFunc func(ctx context.Context, chargerID string, payload json.RawMessage) (any, error)

// Dispatcher routes inbound (chargerID, action, payload) triples to the
// registered handler. Handlers run concurrently across chargers but all
// work for a single charger is serialized through a per-charger mailbox,
// so wire order is commit order.
type Dispatcher struct {
	mu        sync.Mutex
	handlers  map[string]HandlerFunc
	mailboxes map[string]*mailbox
	closed    bool
	log       *zap.Logger
}

type job struct {
	ctx     context.Context
	action  string
	payload json.RawMessage
	reply   chan result
}

type result struct {
	response any
	err      error
}

type mailbox struct {
	jobs chan job
	done chan struct{}
}

const mailboxDepth = 64

func NewDispatcher(log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handlers:  make(map[string]HandlerFunc),
		mailboxes: make(map[string]*mailbox),
		log:       log,
	}
}

// Register binds an action name to a handler. Not safe to call after
// dispatching has started.
func (d *Dispatcher) Register(action string, fn HandlerFunc) {
	d.handlers[action] = fn
}

// Dispatch enqueues the message on the charger's mailbox and waits for
// the handler result. A mailbox is created on first use and torn down by
// Release when the charger detaches.
func (d *Dispatcher) Dispatch(ctx context.Context, chargerID, action string, payload json.RawMessage) (any, error) {
	telemetry.OCPPMessagesTotal.WithLabelValues(action, "inbound").Inc()

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, domain.ErrShuttingDown
	}
	mb, ok := d.mailboxes[chargerID]
	if !ok {
		mb = &mailbox{jobs: make(chan job, mailboxDepth), done: make(chan struct{})}
		d.mailboxes[chargerID] = mb
		go d.consume(chargerID, mb)
	}
	d.mu.Unlock()

	j := job{ctx: ctx, action: action, payload: payload, reply: make(chan result, 1)}
	select {
	case mb.jobs <- j:
	case <-mb.done:
		return nil, context.Canceled
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-j.reply:
		return res.response, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *Dispatcher) consume(chargerID string, mb *mailbox) {
	for {
		select {
		case j := <-mb.jobs:
			j.reply <- d.run(j.ctx, chargerID, j.action, j.payload)
		case <-mb.done:
			// Drain whatever was queued before teardown.
			for {
				select {
				case j := <-mb.jobs:
					j.reply <- d.run(j.ctx, chargerID, j.action, j.payload)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, chargerID, action string, payload json.RawMessage) result {
	fn, ok := d.handlers[action]
	if !ok {
		d.log.Warn("Unknown OCPP action",
			zap.String("charger_id", chargerID),
			zap.String("action", action),
		)
		return result{response: UnknownActionResponse{Error: "UnknownAction", Action: action}}
	}

	resp, err := fn(ctx, chargerID, payload)
	if err != nil {
		d.log.Error("OCPP handler failed",
			zap.String("charger_id", chargerID),
			zap.String("action", action),
			zap.Error(err),
		)
		return result{err: err}
	}
	return result{response: resp}
}

// Release tears down the charger's mailbox; queued jobs still run. Called
// when the last transport holding the charger detaches.
func (d *Dispatcher) Release(chargerID string) {
	d.mu.Lock()
	mb, ok := d.mailboxes[chargerID]
	if ok {
		delete(d.mailboxes, chargerID)
	}
	d.mu.Unlock()
	if ok {
		close(mb.done)
	}
}

// Close tears down every mailbox. In-flight jobs finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	boxes := d.mailboxes
	d.mailboxes = make(map[string]*mailbox)
	d.mu.Unlock()
	for _, mb := range boxes {
		close(mb.done)
	}
}
