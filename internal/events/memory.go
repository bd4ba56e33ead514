package events

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("event bus closed")

// MemoryBus is an in-process Bus backed by a buffered channel.
type MemoryBus struct {
	ch        chan Delivery
	done      chan struct{}
	closeOnce sync.Once
}

func NewMemoryBus(buffer int) *MemoryBus {
	if buffer <= 0 {
		buffer = 256
	}
	return &MemoryBus{
		ch:   make(chan Delivery, buffer),
		done: make(chan struct{}),
	}
}

var _ Bus = (*MemoryBus)(nil)

func (b *MemoryBus) Publish(ctx context.Context, d Delivery) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	select {
	case b.ch <- d:
		return nil
	case <-b.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBus) Subscribe(ctx context.Context, fn func(Delivery)) error {
	for {
		select {
		case d := <-b.ch:
			fn(d)
		case <-b.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *MemoryBus) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return nil
}
