package bridge

import (
	"sync"

	"go.uber.org/zap"
)

// Conn is a live client channel as seen by the registry. ID must be unique per
// identity for the life of the registration. Enqueue must not block; an error
// means the message was not accepted and the connection is considered failed.
type Conn interface {
	ID() string
	Enqueue(msg []byte) error
	Close() error
}

// Handle identifies one registration. The zero Handle stands for a refused
// registration and is ignored by Unregister.
type Handle struct {
	identity string
	connID   string
}

func (h Handle) Identity() string { return h.identity }
func (h Handle) ConnID() string   { return h.connID }

// DeliveryResult summarises one SendTo call.
type DeliveryResult struct {
	Delivered int
	Failed    int
}

// NoRecipient reports that no live connection matched the identity.
func (r DeliveryResult) NoRecipient() bool { return r.Delivered == 0 && r.Failed == 0 }

// Registry tracks open connections by identity. Several connections may share
// an identity.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]Conn // identity -> conn_id -> conn
	log    *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		byUser: make(map[string]map[string]Conn),
		log:    log,
	}
}

// Register adds conn as a delivery target for identity. A conn whose ID is
// already registered under identity is closed and the zero Handle returned, so
// the earlier registration keeps receiving.
func (r *Registry) Register(identity string, conn Conn) Handle {
	id := conn.ID()
	r.mu.Lock()
	m := r.byUser[identity]
	if m == nil {
		m = make(map[string]Conn)
		r.byUser[identity] = m
	}
	if _, dup := m[id]; dup {
		r.mu.Unlock()
		r.log.Warn("duplicate connection id, closing newcomer", zap.String("userId", identity), zap.String("connId", id))
		_ = conn.Close()
		return Handle{}
	}
	m[id] = conn
	r.mu.Unlock()
	return Handle{identity: identity, connID: id}
}

// Unregister removes exactly the connection behind h. Repeated calls are no-ops.
func (r *Registry) Unregister(h Handle) {
	r.take(h)
}

func (r *Registry) take(h Handle) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.byUser[h.identity]
	c, ok := m[h.connID]
	if !ok {
		return nil, false
	}
	delete(m, h.connID)
	if len(m) == 0 {
		delete(r.byUser, h.identity)
	}
	return c, true
}

// SendTo offers msg to every connection registered under identity. A
// connection that rejects the message is unregistered and closed; the others
// still receive it.
func (r *Registry) SendTo(identity string, msg []byte) DeliveryResult {
	var res DeliveryResult
	for _, c := range r.list(identity) {
		if err := c.Enqueue(msg); err != nil {
			res.Failed++
			r.drop(Handle{identity: identity, connID: c.ID()}, err)
			continue
		}
		res.Delivered++
	}
	return res
}

// sendOne delivers to a single registration, with the same failure handling as
// SendTo.
func (r *Registry) sendOne(h Handle, msg []byte) bool {
	r.mu.RLock()
	c, ok := r.byUser[h.identity][h.connID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if err := c.Enqueue(msg); err != nil {
		r.drop(h, err)
		return false
	}
	return true
}

func (r *Registry) drop(h Handle, cause error) {
	c, ok := r.take(h)
	if !ok {
		return
	}
	r.log.Warn("dropping connection after failed delivery",
		zap.String("userId", h.identity),
		zap.String("connId", h.connID),
		zap.Error(cause),
	)
	_ = c.Close()
}

func (r *Registry) list(identity string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := r.byUser[identity]
	if len(m) == 0 {
		return nil
	}
	out := make([]Conn, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	return out
}

// Count returns the number of live connections for identity.
func (r *Registry) Count(identity string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[identity])
}

// Len returns the number of live connections across all identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, m := range r.byUser {
		n += len(m)
	}
	return n
}

// CloseAll unregisters and closes every connection. Used on shutdown.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	all := r.byUser
	r.byUser = make(map[string]map[string]Conn)
	r.mu.Unlock()

	n := 0
	for _, m := range all {
		for _, c := range m {
			_ = c.Close()
			n++
		}
	}
	return n
}
