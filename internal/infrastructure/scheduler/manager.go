// Package scheduler hosts the recurring background sweeps.
package scheduler

import (
	"context"
	"sync"

	"coinvoice/internal/shared/logger"
)

// Scheduler is a long-running background loop with graceful shutdown.
type Scheduler interface {
	Start(ctx context.Context)
	Stop()
	IsRunning() bool
}

// Manager owns every registered scheduler and starts/stops them together.
type Manager struct {
	schedulers []Scheduler
	logger     logger.Interface
	mu         sync.Mutex
}

func NewManager(logger logger.Interface) *Manager {
	return &Manager{logger: logger}
}

func (m *Manager) Register(s Scheduler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedulers = append(m.schedulers, s)
}

func (m *Manager) StartAll(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.schedulers {
		s.Start(ctx)
	}
	m.logger.Infow("schedulers started", "count", len(m.schedulers))
}

// StopAll stops schedulers in reverse registration order.
func (m *Manager) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := len(m.schedulers) - 1; i >= 0; i-- {
		m.schedulers[i].Stop()
	}
	m.logger.Infow("schedulers stopped")
}
