// Package notifier is the process-wide event broadcaster: a monotonically
// increasing sequence counter plus a ring buffer of recent events for
// reconnect backfill. Publishers never wait on subscribers.
package notifier

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Recognized event kinds.
const (
	EventAnomalyDetected = "anomaly.detected"
	EventIncidentCreated = "incident.created"
	EventIncidentUpdated = "incident.updated"
	EventScanCompleted   = "scan.completed"
	EventDiscoveryUpdate = "discovery.update"
)

// Event is one broadcast lifecycle event.
type Event struct {
	Seq     uint64    `json:"seq"`
	Kind    string    `json:"kind"`
	Payload any       `json:"payload"`
	At      time.Time `json:"at"`
}

// subscriberQueueSlack is extra channel capacity beyond the backfill so a
// live subscriber absorbs bursts before being considered lagged.
const subscriberQueueSlack = 64

// Subscriber receives events in seq order on C. When the subscriber falls
// too far behind, C is closed and Lagged reports true; the client must
// reconcile over REST and resubscribe.
type Subscriber struct {
	C  <-chan Event
	id uint64

	mu     sync.Mutex
	lagged bool
}

// Lagged reports whether this subscriber was disconnected for falling behind.
func (s *Subscriber) Lagged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lagged
}

// Notifier broadcasts events to subscribers.
type Notifier struct {
	mu          sync.Mutex
	seq         uint64
	ring        []Event // oldest first, at most capacity entries
	capacity    int
	subscribers map[uint64]*subscriberState
	nextSubID   uint64
	logger      *zap.Logger
	now         func() time.Time
}

type subscriberState struct {
	ch  chan Event
	sub *Subscriber
}

// New creates a notifier retaining the last capacity events for backfill.
func New(capacity int, logger *zap.Logger) *Notifier {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Notifier{
		capacity:    capacity,
		subscribers: make(map[uint64]*subscriberState),
		logger:      logger.Named("notifier"),
		now:         time.Now,
	}
}

// Publish assigns the next seq and fans the event out. Non-blocking from
// the caller's perspective: a subscriber whose queue is full is dropped
// with a lagged signal instead of stalling the publisher.
func (n *Notifier) Publish(kind string, payload any) Event {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.seq++
	event := Event{
		Seq:     n.seq,
		Kind:    kind,
		Payload: payload,
		At:      n.now().UTC(),
	}

	n.ring = append(n.ring, event)
	if len(n.ring) > n.capacity {
		n.ring = n.ring[len(n.ring)-n.capacity:]
	}

	for id, state := range n.subscribers {
		select {
		case state.ch <- event:
		default:
			n.logger.Warn("dropping lagged subscriber", zap.Uint64("subscriber", id))
			n.dropLocked(id, true)
		}
	}
	return event
}

// Subscribe registers a subscriber. sinceSeq > 0 requests backfill of every
// retained event with seq > sinceSeq, delivered before any live event. A
// gap older than the ring is silently truncated to what is retained; the
// client detects this from the first backfilled seq.
func (n *Notifier) Subscribe(sinceSeq uint64) *Subscriber {
	n.mu.Lock()
	defer n.mu.Unlock()

	var backfill []Event
	for _, event := range n.ring {
		if event.Seq > sinceSeq {
			backfill = append(backfill, event)
		}
	}

	ch := make(chan Event, n.capacity+subscriberQueueSlack)
	for _, event := range backfill {
		ch <- event
	}

	n.nextSubID++
	sub := &Subscriber{C: ch, id: n.nextSubID}
	n.subscribers[n.nextSubID] = &subscriberState{ch: ch, sub: sub}
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (n *Notifier) Unsubscribe(sub *Subscriber) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dropLocked(sub.id, false)
}

func (n *Notifier) dropLocked(id uint64, lagged bool) {
	state, ok := n.subscribers[id]
	if !ok {
		return
	}
	delete(n.subscribers, id)
	if lagged {
		state.sub.mu.Lock()
		state.sub.lagged = true
		state.sub.mu.Unlock()
	}
	close(state.ch)
}

// LastSeq returns the most recently assigned sequence number.
func (n *Notifier) LastSeq() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.seq
}

// SubscriberCount returns the number of connected subscribers.
func (n *Notifier) SubscriberCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subscribers)
}

// Close disconnects all subscribers.
func (n *Notifier) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id := range n.subscribers {
		n.dropLocked(id, false)
	}
}
