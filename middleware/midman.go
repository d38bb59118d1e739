// Package middleware holds the gin middleware shared by every bridge route.
package middleware

import (
	"sync"

	"github.com/gin-gonic/gin"
)

// Manager collects middleware before the engine is built.
type Manager struct {
	mu   sync.RWMutex
	mids []gin.HandlerFunc
}

func NewManager(mids ...gin.HandlerFunc) *Manager {
	return &Manager{mids: mids}
}

// Add appends h; order of Add is order of execution.
func (m *Manager) Add(h gin.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mids = append(m.mids, h)
}

// Handlers returns a snapshot of the registered middleware.
func (m *Manager) Handlers() []gin.HandlerFunc {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]gin.HandlerFunc(nil), m.mids...)
}

// Apply installs the snapshot on r.
func (m *Manager) Apply(r gin.IRoutes) {
	r.Use(m.Handlers()...)
}
