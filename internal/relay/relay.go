package relay

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrDropped is returned by an endpoint that skipped an event but remains usable
// (for example a remote client whose send buffer is full).
var ErrDropped = errors.New("event dropped")

// ErrEndpointClosed is returned by an endpoint after it has been closed.
var ErrEndpointClosed = errors.New("endpoint closed")

// Endpoint is a UI delivery target.
//
// The relay only holds a weak reference: it never waits for an endpoint to
// go away and skips it once Alive reports false.
type Endpoint interface {
	// ID uniquely identifies the endpoint within a relay.
	ID() string

	// Alive reports whether deliveries can still reach the endpoint.
	Alive() bool

	// Deliver hands an event to the endpoint. Must not block for long.
	Deliver(ev Event) error
}

// Callbacks contains optional hooks for relay activity.
type Callbacks struct {
	// OnPublish is called once per published event.
	OnPublish func(ev Event)

	// OnDeliveryDropped is called when an endpoint skips an event.
	OnDeliveryDropped func(endpointID string, ev Event)

	// OnEndpointsChanged is called with the new subscriber count.
	OnEndpointsChanged func(count int)
}

// Relay broadcasts events to every subscribed endpoint.
type Relay struct {
	logger    *slog.Logger
	callbacks Callbacks

	mu        sync.RWMutex
	endpoints map[string]Endpoint
	order     []string
}

// New creates an empty relay.
func New(logger *slog.Logger, callbacks Callbacks) *Relay {
	return &Relay{
		logger:    logger,
		callbacks: callbacks,
		endpoints: make(map[string]Endpoint),
	}
}

// Subscribe registers ep. Re-subscribing an ID replaces the previous endpoint.
func (r *Relay) Subscribe(ep Endpoint) {
	r.mu.Lock()
	id := ep.ID()
	if _, ok := r.endpoints[id]; !ok {
		r.order = append(r.order, id)
	}
	r.endpoints[id] = ep
	count := len(r.endpoints)
	r.mu.Unlock()

	r.logger.Debug("relay_endpoint_subscribed", "endpoint", id)
	r.notifyCount(count)
}

// Unsubscribe removes the endpoint with the given ID. Unknown IDs are ignored.
func (r *Relay) Unsubscribe(id string) {
	r.mu.Lock()
	_, ok := r.endpoints[id]
	if ok {
		delete(r.endpoints, id)
		r.order = removeID(r.order, id)
	}
	count := len(r.endpoints)
	r.mu.Unlock()

	if ok {
		r.logger.Debug("relay_endpoint_unsubscribed", "endpoint", id)
		r.notifyCount(count)
	}
}

// Len returns the number of subscribed endpoints.
func (r *Relay) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints)
}

// Publish delivers ev to every live endpoint in subscription order.
// Endpoints that are gone or fail are dropped from the registry.
func (r *Relay) Publish(ev Event) {
	if r.callbacks.OnPublish != nil {
		r.callbacks.OnPublish(ev)
	}

	for _, ep := range r.snapshot() {
		if !ep.Alive() {
			r.drop(ep.ID(), "not_alive")
			continue
		}

		err := ep.Deliver(ev)
		switch {
		case err == nil:
		case errors.Is(err, ErrDropped):
			if r.callbacks.OnDeliveryDropped != nil {
				r.callbacks.OnDeliveryDropped(ep.ID(), ev)
			}
		default:
			r.logger.Warn("relay_delivery_failed", "endpoint", ep.ID(), "type", ev.Type, "error", err)
			r.drop(ep.ID(), "delivery_failed")
		}
	}
}

// Emit implements the supervisor's event sink.
func (r *Relay) Emit(ev Event) {
	r.Publish(ev)
}

func (r *Relay) snapshot() []Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	eps := make([]Endpoint, 0, len(r.order))
	for _, id := range r.order {
		eps = append(eps, r.endpoints[id])
	}
	return eps
}

func (r *Relay) drop(id, reason string) {
	r.logger.Info("relay_endpoint_dropped", "endpoint", id, "reason", reason)
	r.Unsubscribe(id)
}

func (r *Relay) notifyCount(count int) {
	if r.callbacks.OnEndpointsChanged != nil {
		r.callbacks.OnEndpointsChanged(count)
	}
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
