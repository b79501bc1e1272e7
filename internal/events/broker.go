package events

import (
	"sync"
	"time"
)

// Event types published by the services.
const (
	TypeLedgerEntry       = "ledger_entry"
	TypeTaskReviewed      = "task_reviewed"
	TypeWithdrawalUpdated = "withdrawal_updated"
	TypeCheckin           = "checkin"
)

type Event struct {
	Type      string    `json:"type"`
	UserID    int       `json:"user_id"`
	Payload   any       `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

type subscriber struct {
	ch     chan Event
	userID int // 0 subscribes to all users
}

// Broker fans events out to SSE subscribers. Publishing never blocks;
// slow subscribers drop events instead of stalling the services.
type Broker struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[*subscriber]struct{}),
	}
}

// Subscribe registers a listener for events belonging to userID.
// userID 0 receives every event. The returned cancel func must be
// called when the listener goes away.
func (b *Broker) Subscribe(userID int) (<-chan Event, func()) {
	sub := &subscriber{
		ch:     make(chan Event, 16),
		userID: userID,
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[sub]; ok {
			delete(b.subs, sub)
			close(sub.ch)
		}
		b.mu.Unlock()
	}
	return sub.ch, cancel
}

// Publish delivers the event to every matching subscriber.
func (b *Broker) Publish(event Event) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if sub.userID != 0 && sub.userID != event.UserID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// Subscriber buffer full, drop rather than block.
		}
	}
}

// SubscriberCount reports the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
