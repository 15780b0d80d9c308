package events

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/mailkeep/mailkeep/interfaces"
	"github.com/mailkeep/mailkeep/internal/logger"
	"github.com/mailkeep/mailkeep/internal/utils"
)

// Dispatcher is an in-process fan-out of cache change notifications. Delivery
// is best effort: a subscriber whose channel is full misses the event rather
// than blocking the sync loop, so consumers must treat events as hints and
// re-read the cache for truth.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]chan interfaces.Event
	closed      bool
	log         logger.Logger
}

func NewDispatcher(log logger.Logger) interfaces.EventDispatcher {
	return &Dispatcher{
		subscribers: make(map[string]chan interfaces.Event),
		log:         log,
	}
}

func (d *Dispatcher) Publish(ctx context.Context, event interfaces.Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.At.IsZero() {
		event.At = utils.Now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	for id, ch := range d.subscribers {
		select {
		case ch <- event:
		default:
			d.log.Warnf("event subscriber %s is not keeping up, dropping %s", id, event.Type)
		}
	}
}

func (d *Dispatcher) Subscribe(buffer int) (<-chan interfaces.Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan interfaces.Event, buffer)
	id := uuid.New().String()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		close(ch)
		return ch, func() {}
	}
	d.subscribers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			if _, ok := d.subscribers[id]; ok {
				delete(d.subscribers, id)
				close(ch)
			}
		})
	}
	return ch, cancel
}

func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for id, ch := range d.subscribers {
		delete(d.subscribers, id)
		close(ch)
	}
}
