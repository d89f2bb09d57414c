package storage

import (
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/log"
)

// subscriberBuffer is how many events a slow subscriber may lag behind
// before further events are dropped for it. The last slot is kept for the
// OpResync marker that replaces them.
const subscriberBuffer = 32

type subKey struct {
	userID     string
	collection string
}

type subscriber struct {
	ch   chan core.ChangeEvent
	once sync.Once
	// lagged is set once events were dropped and the OpResync marker
	// queued. Guarded by Broker.mu.
	lagged bool
}

func (s *subscriber) close() {
	s.once.Do(func() { close(s.ch) })
}

// Broker fans document changes out to in-process subscribers.
type Broker struct {
	mu     sync.Mutex
	subs   map[subKey]map[*subscriber]struct{}
	closed bool
	logger *log.Logger
}

func NewBroker(logger *log.Logger) *Broker {
	return &Broker{
		subs:   make(map[subKey]map[*subscriber]struct{}),
		logger: logger,
	}
}

// Subscribe streams the changes of a user's collection. An empty
// collection matches all of them, and an empty userID matches every user. The returned func cancels
// the subscription and closes the channel.
func (b *Broker) Subscribe(userID, collection string) (<-chan core.ChangeEvent, func()) {
	sub := &subscriber{ch: make(chan core.ChangeEvent, subscriberBuffer)}
	key := subKey{userID: userID, collection: collection}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.close()
		return sub.ch, func() {}
	}
	if b.subs[key] == nil {
		b.subs[key] = make(map[*subscriber]struct{})
	}
	b.subs[key][sub] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set := b.subs[key]; set != nil {
			delete(set, sub)
			if len(set) == 0 {
				delete(b.subs, key)
			}
		}
		b.mu.Unlock()
		sub.close()
	}
	return sub.ch, cancel
}

// Publish delivers ev without blocking. A subscriber whose buffer is full
// misses it and receives a single OpResync event instead.
func (b *Broker) Publish(ev core.ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := []subKey{
		{ev.UserID, ev.Collection},
		{ev.UserID, ""},
		{"", ev.Collection},
		{"", ""},
	}
	for _, key := range keys {
		for sub := range b.subs[key] {
			b.deliver(sub, ev)
		}
	}
}

// deliver runs with b.mu held, so Publish is the only sender and the length
// checks cannot race with another send.
func (b *Broker) deliver(sub *subscriber, ev core.ChangeEvent) {
	if len(sub.ch) < cap(sub.ch)-1 {
		select {
		case sub.ch <- ev:
			sub.lagged = false
		default:
		}
		return
	}

	if b.logger != nil {
		b.logger.Warn("Dropping change event for slow subscriber",
			log.FieldUserID, ev.UserID,
			log.FieldCollection, ev.Collection,
			log.FieldDocID, ev.DocID)
	}
	if sub.lagged {
		return
	}
	select {
	case sub.ch <- core.ChangeEvent{Op: core.OpResync, At: ev.At}:
		sub.lagged = true
	default:
	}
}

// Close ends every subscription.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for key, set := range b.subs {
		for sub := range set {
			sub.close()
		}
		delete(b.subs, key)
	}
}
