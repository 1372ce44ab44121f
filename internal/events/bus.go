package events

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Handler receives events synchronously on the publishing goroutine.
type Handler func(Event)

// Bus is an in-process publisher that keeps a bounded history for polling
// clients and notifies subscribers.
type Bus struct {
	log *logrus.Logger

	mu      sync.RWMutex
	max     int
	history []Event // ring buffer
	start   int
	subs    map[Type]map[int]Handler
	nextSub int
}

func NewBus(maxHistory int, log *logrus.Logger) *Bus {
	if maxHistory <= 0 {
		maxHistory = 1000
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Bus{log: log, max: maxHistory, subs: make(map[Type]map[int]Handler)}
}

// Subscribe registers h for events of type t and returns a function that
// removes it.
func (b *Bus) Subscribe(t Type, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSub
	b.nextSub++
	if b.subs[t] == nil {
		b.subs[t] = make(map[int]Handler)
	}
	b.subs[t][id] = h
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[t], id)
	}
}

func (b *Bus) Publish(_ context.Context, e Event) error {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	b.mu.Lock()
	if len(b.history) < b.max {
		b.history = append(b.history, e)
	} else {
		b.history[b.start] = e
		b.start = (b.start + 1) % b.max
	}
	handlers := make([]Handler, 0, len(b.subs[e.Type]))
	for _, h := range b.subs[e.Type] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		b.deliver(h, e)
	}
	return nil
}

func (b *Bus) deliver(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithField("event", e.Type).Errorf("event handler panicked: %v", r)
		}
	}()
	h(e)
}

// Since returns events newer than t, oldest first. An empty typ matches
// every type.
func (b *Bus) Since(t time.Time, typ Type) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Event
	for i := 0; i < len(b.history); i++ {
		e := b.history[(b.start+i)%len(b.history)]
		if !e.Time.After(t) {
			continue
		}
		if typ != "" && e.Type != typ {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Recent returns up to n of the newest events, oldest first.
func (b *Bus) Recent(n int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n <= 0 || n > len(b.history) {
		n = len(b.history)
	}
	out := make([]Event, 0, n)
	for i := len(b.history) - n; i < len(b.history); i++ {
		out = append(out, b.history[(b.start+i)%len(b.history)])
	}
	return out
}

func (b *Bus) Close() error { return nil }
