package daemon

import "sync"

const subscriberBuffer = 8

// statusBroadcaster fans status changes out to subscribers. Slow subscribers
// lose their oldest pending update, never the newest.
type statusBroadcaster struct {
	mu   sync.Mutex
	next int
	subs map[int]chan Status
}

func newStatusBroadcaster() *statusBroadcaster {
	return &statusBroadcaster{subs: make(map[int]chan Status)}
}

func (b *statusBroadcaster) subscribe() (<-chan Status, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Status, subscriberBuffer)
	b.subs[id] = ch
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
		})
	}
}

func (b *statusBroadcaster) publish(status Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- status:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- status:
		default:
		}
	}
}
