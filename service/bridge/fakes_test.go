package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

var errRejected = errors.New("rejected")

type fakeConn struct {
	id string

	mu     sync.Mutex
	msgs   [][]byte
	reject bool
	closed bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Enqueue(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reject || c.closed {
		return errRejected
	}
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) notifications() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notification, 0, len(c.msgs))
	for _, m := range c.msgs {
		var n Notification
		if err := json.Unmarshal(m, &n); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func (c *fakeConn) sessionStarts() []string {
	var games []string
	for _, n := range c.notifications() {
		if n.Type == TypeSessionStart {
			games = append(games, n.Resource)
		}
	}
	return games
}

type record struct {
	key   string
	value []byte
}

// loopStream is an in-memory stream: whatever is published comes back out of
// Run in publish order.
type loopStream struct {
	ch        chan record
	failWith  error
	mu        sync.Mutex
	published []record
}

func newLoopStream() *loopStream { return &loopStream{ch: make(chan record, 64)} }

func (s *loopStream) Publish(ctx context.Context, key string, value []byte) error {
	if s.failWith != nil {
		return s.failWith
	}
	r := record{key: key, value: value}
	s.mu.Lock()
	s.published = append(s.published, r)
	s.mu.Unlock()
	select {
	case s.ch <- r:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *loopStream) Run(ctx context.Context, handle func(ctx context.Context, key, value []byte) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-s.ch:
			_ = handle(ctx, []byte(r.key), r.value)
		}
	}
}

func (s *loopStream) Close() error { return nil }

func (s *loopStream) records() []record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]record(nil), s.published...)
}
