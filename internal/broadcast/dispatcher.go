// Package broadcast fans committed events out to live subscribers. Delivery
// is at-least-once with per-aggregate ordering; one slow or broken consumer
// never blocks the fan-out or other subscribers.
package broadcast

import (
	"sync"

	"github.com/sirupsen/logrus"

	"taskstream/internal/aggregate"
	"taskstream/internal/platform/metrics"
	"taskstream/internal/subscription"
	id "taskstream/pkg/domain"
)

// PushChannel is the transport-side delivery capability. Send blocks until
// the event is written to the wire or the connection fails; Close releases
// the underlying connection and must be safe to call once.
type PushChannel interface {
	Send(event aggregate.Event) error
	Close()
}

// RouteSource resolves the routing facets of an event from read views.
type RouteSource interface {
	Route(event aggregate.Event) subscription.Route
}

type subscriber struct {
	sessionID id.SessionID
	ch        PushChannel
	queue     chan aggregate.Event
	ready     chan struct{}
	done      chan struct{}
	start     sync.Once
	stop      sync.Once
}

func (s *subscriber) signalStart() {
	s.start.Do(func() { close(s.ready) })
}

func (s *subscriber) signalStop() {
	s.stop.Do(func() { close(s.done) })
}

// Dispatcher connects the command processor's publish side to subscriber
// push channels. Construct with NewDispatcher.
type Dispatcher struct {
	registry *subscription.Registry
	routes   RouteSource
	log      *logrus.Logger
	metrics  *metrics.Metrics
	buffer   int

	mu          sync.RWMutex
	subscribers map[id.SessionID]*subscriber
	wg          sync.WaitGroup
}

func NewDispatcher(registry *subscription.Registry, routes RouteSource, log *logrus.Logger, m *metrics.Metrics, buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = 64
	}
	return &Dispatcher{
		registry:    registry,
		routes:      routes,
		log:         log,
		metrics:     m,
		buffer:      buffer,
		subscribers: make(map[id.SessionID]*subscriber),
	}
}

// Attach binds a push channel to a session. Events published from this point
// on queue up on the subscriber buffer, but delivery begins only when the
// returned start function is called. That gives the transport room to replay
// history through the channel first without losing events committed
// meanwhile or racing the delivery loop; the registry cursor suppresses any
// overlap between the replay and the queue. Attaching a session twice
// replaces the previous channel.
func (d *Dispatcher) Attach(sessionID id.SessionID, ch PushChannel) (start func()) {
	sub := &subscriber{
		sessionID: sessionID,
		ch:        ch,
		queue:     make(chan aggregate.Event, d.buffer),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}

	d.mu.Lock()
	if prev := d.subscribers[sessionID]; prev != nil {
		prev.signalStop()
	}
	d.subscribers[sessionID] = sub
	d.mu.Unlock()

	d.wg.Add(1)
	go d.deliver(sub)
	return sub.signalStart
}

// Detach stops delivery to the session and closes its channel. The session's
// registry subscriptions are left intact for the transport to tear down.
func (d *Dispatcher) Detach(sessionID id.SessionID) {
	d.mu.Lock()
	sub := d.subscribers[sessionID]
	delete(d.subscribers, sessionID)
	d.mu.Unlock()
	if sub != nil {
		sub.signalStop()
	}
}

// Publish enqueues committed events for fan-out and returns immediately.
// A subscriber whose buffer is saturated is dropped and must resynchronize
// through the event log on reconnect.
func (d *Dispatcher) Publish(events []aggregate.Event) {
	for _, event := range events {
		route := d.routes.Route(event)
		for _, sessionID := range d.registry.Resolve(route) {
			d.mu.RLock()
			sub := d.subscribers[sessionID]
			d.mu.RUnlock()
			if sub == nil {
				continue
			}
			select {
			case sub.queue <- event:
			default:
				d.drop(sub, "buffer saturated")
			}
		}
	}
}

// Close tears down every subscriber and waits for delivery loops to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	subs := make([]*subscriber, 0, len(d.subscribers))
	for _, sub := range d.subscribers {
		subs = append(subs, sub)
	}
	d.subscribers = make(map[id.SessionID]*subscriber)
	d.mu.Unlock()

	for _, sub := range subs {
		sub.signalStop()
	}
	d.wg.Wait()
}

func (d *Dispatcher) deliver(sub *subscriber) {
	defer d.wg.Done()
	defer sub.ch.Close()
	select {
	case <-sub.done:
		return
	case <-sub.ready:
	}
	for {
		select {
		case <-sub.done:
			return
		case event := <-sub.queue:
			// Advance is the redelivery filter; a sequence at or behind the
			// cursor was already delivered on this session.
			if !d.registry.Advance(sub.sessionID, event.AggregateID, event.Seq) {
				continue
			}
			if err := sub.ch.Send(event); err != nil {
				d.log.WithError(err).WithField("session_id", sub.sessionID).
					Debug("subscriber send failed, dropping subscription")
				d.drop(sub, "send failed")
				return
			}
			d.metrics.EventsDelivered.Inc()
		}
	}
}

// drop removes the subscriber and its registry bindings. The session must
// reconnect and replay from its last cursor.
func (d *Dispatcher) drop(sub *subscriber, reason string) {
	d.mu.Lock()
	current, present := d.subscribers[sub.sessionID]
	if present && current == sub {
		delete(d.subscribers, sub.sessionID)
	}
	d.mu.Unlock()
	if !present || current != sub {
		return
	}

	sub.signalStop()
	d.registry.DropSession(sub.sessionID)
	d.metrics.SubscribersDropped.Inc()
	d.log.WithFields(logrus.Fields{
		"session_id": sub.sessionID,
		"reason":     reason,
	}).Warn("subscription dropped")
}
