// Package bridge connects the assignment event stream to live client
// connections.
//
// The Registry holds open connections, the Store holds the last assignment per
// identity, the Consumer applies stream events to both, and the Publisher relays
// client-originated events back to the stream. Only the Consumer writes to the
// Store; client events reach it by round-tripping through the stream.
package bridge

import (
	"context"
	"sync"

	"PPBridge/tools/safe"

	"go.uber.org/zap"
)

// Source delivers stream payloads to handle, one at a time and in stream
// order, until ctx is cancelled.
type Source interface {
	Run(ctx context.Context, handle func(ctx context.Context, key, value []byte) error) error
	Close() error
}

// Sink publishes payloads to the stream, keyed by identity.
type Sink interface {
	Publish(ctx context.Context, key string, value []byte) error
	Close() error
}

// Mirror keeps a copy of session records outside the process.
type Mirror interface {
	Save(ctx context.Context, identity, resource string) error
	Load(ctx context.Context, identity string) (string, bool, error)
}

// Bridge reconciles connection-open with assignment arrival. Whichever of the
// two happens second sends the session-start notification, exactly once.
type Bridge struct {
	// mu orders Attach against apply. Only in-memory map work and non-blocking
	// enqueues happen under it.
	mu       sync.Mutex
	closed   bool
	registry *Registry
	store    *Store
	mirror   Mirror
	log      *zap.Logger
}

type Option func(*Bridge)

// WithMirror sets the external mirror consulted by Current and fed by the
// consumer.
func WithMirror(m Mirror) Option {
	return func(b *Bridge) { b.mirror = m }
}

func New(log *zap.Logger, registry *Registry, store *Store, opts ...Option) *Bridge {
	safe.MustNotNil(registry, "registry")
	safe.MustNotNil(store, "store")
	if log == nil {
		log = zap.NewNop()
	}
	b := &Bridge{registry: registry, store: store, log: log}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bridge) Registry() *Registry { return b.registry }

// Attach registers conn under identity. If an assignment is already known, the
// session-start notification is queued for this connection only. After
// Shutdown, conn is closed instead and the zero Handle is returned.
func (b *Bridge) Attach(identity string, conn Conn) Handle {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		_ = conn.Close()
		b.log.Info("refusing connection during shutdown", zap.String("userId", identity), zap.String("connId", conn.ID()))
		return Handle{}
	}
	h := b.registry.Register(identity, conn)
	if resource, ok := b.store.Lookup(identity); ok {
		b.registry.sendOne(h, SessionStart(AssignmentEvent{Identity: identity, Resource: resource}).Encode())
	}
	return h
}

// Detach unregisters the connection behind h. Safe to call more than once.
func (b *Bridge) Detach(h Handle) {
	b.registry.Unregister(h)
}

// apply records ev and notifies the identity's live connections.
func (b *Bridge) apply(ev AssignmentEvent) DeliveryResult {
	msg := SessionStart(ev).Encode()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.store.recordAssignment(ev.Identity, ev.Resource)
	return b.registry.SendTo(ev.Identity, msg)
}

// Lookup reads the in-memory assignment for identity.
func (b *Bridge) Lookup(identity string) (string, bool) {
	return b.store.Lookup(identity)
}

// Current answers from memory first, then from the mirror if one is set.
func (b *Bridge) Current(ctx context.Context, identity string) (string, bool, error) {
	if r, ok := b.store.Lookup(identity); ok {
		return r, true, nil
	}
	if b.mirror == nil {
		return "", false, nil
	}
	return b.mirror.Load(ctx, identity)
}

// Shutdown closes every live connection and refuses later Attach calls.
func (b *Bridge) Shutdown() {
	b.mu.Lock()
	b.closed = true
	n := b.registry.CloseAll()
	b.mu.Unlock()
	b.log.Info("closed live connections", zap.Int("count", n))
}
