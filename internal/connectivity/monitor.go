package connectivity

import (
	"context"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/hearthly/hearth/internal/monitoring"
	"github.com/hearthly/hearth/pkg/logger"
)

// Prober checks whether the household server answers.
type Prober interface {
	Ping(ctx context.Context) error
}

// Monitor holds the process-wide online signal and notifies subscribers when
// connectivity is restored.
type Monitor struct {
	online atomic.Bool
	prober Prober
	log    *zap.Logger

	next     atomic.Uint64
	restored *xsync.MapOf[uint64, func()]
}

// NewMonitor constructs a monitor starting in the given state.
func NewMonitor(prober Prober, online bool) *Monitor {
	m := &Monitor{
		prober:   prober,
		log:      logger.WithModule("connectivity"),
		restored: xsync.NewMapOf[uint64, func()](),
	}
	m.online.Store(online)
	monitoring.SetConnectivity(online)
	return m
}

// Online reports the last known state.
func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Set records the state. An offline to online transition notifies OnRestored subscribers.
func (m *Monitor) Set(online bool) {
	previous := m.online.Swap(online)
	monitoring.SetConnectivity(online)
	if previous == online {
		return
	}

	if !online {
		m.log.Warn("household server unreachable, working offline")
		return
	}

	m.log.Info("connectivity restored")
	m.restored.Range(func(_ uint64, fn func()) bool {
		fn()
		return true
	})
}

// OnRestored registers fn for offline to online transitions.
func (m *Monitor) OnRestored(fn func()) func() {
	if fn == nil {
		return func() {}
	}
	id := m.next.Add(1)
	m.restored.Store(id, fn)
	return func() { m.restored.Delete(id) }
}

// Probe pings the server and updates the state accordingly.
func (m *Monitor) Probe(ctx context.Context) bool {
	if m.prober == nil {
		return m.Online()
	}
	err := m.prober.Ping(ctx)
	if err != nil {
		m.log.Debug("probe failed", zap.Error(err))
	}
	m.Set(err == nil)
	return err == nil
}
