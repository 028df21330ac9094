package realtime

import (
	"context"
	"errors"
	"sync"
)

var ErrBusClosed = errors.New("realtime: bus closed")

// MemoryBus delivers messages in-process, synchronously on the publishing goroutine.
// It backs single-instance deployments without NATS and tests.
type MemoryBus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*memorySub
	closed bool
}

type memorySub struct {
	bus     *MemoryBus
	id      int
	pattern string
	handler Handler
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: map[int]*memorySub{}}
}

func (b *MemoryBus) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	matched := make([]*memorySub, 0, len(b.subs))
	for _, sub := range b.subs {
		if subjectMatches(sub.pattern, subject) {
			matched = append(matched, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range matched {
		payload := append([]byte(nil), data...)
		sub.handler(Message{Subject: subject, Data: payload})
	}
	return nil
}

func (b *MemoryBus) Subscribe(subject string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBusClosed
	}
	b.nextID++
	sub := &memorySub{bus: b, id: b.nextID, pattern: subject, handler: handler}
	b.subs[sub.id] = sub
	return sub, nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = map[int]*memorySub{}
	return nil
}

func (s *memorySub) Unsubscribe() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	delete(s.bus.subs, s.id)
	return nil
}
