package connectivity

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubProber struct{ err error }

func (s *stubProber) Ping(context.Context) error { return s.err }

func TestSetNotifiesOnlyOnRestore(t *testing.T) {
	m := NewMonitor(nil, false)

	var restored atomic.Int32
	unsubscribe := m.OnRestored(func() { restored.Add(1) })

	m.Set(false)
	m.Set(true)
	m.Set(true)
	require.Equal(t, int32(1), restored.Load())
	require.True(t, m.Online())

	m.Set(false)
	m.Set(true)
	require.Equal(t, int32(2), restored.Load())

	unsubscribe()
	m.Set(false)
	m.Set(true)
	require.Equal(t, int32(2), restored.Load())
}

func TestProbeUpdatesState(t *testing.T) {
	prober := &stubProber{err: errors.New("dial tcp: refused")}
	m := NewMonitor(prober, true)

	require.False(t, m.Probe(context.Background()))
	require.False(t, m.Online())

	var restored atomic.Int32
	m.OnRestored(func() { restored.Add(1) })

	prober.err = nil
	require.True(t, m.Probe(context.Background()))
	require.True(t, m.Online())
	require.Equal(t, int32(1), restored.Load())
}

func TestProbeWithoutProberKeepsState(t *testing.T) {
	m := NewMonitor(nil, false)
	require.False(t, m.Probe(context.Background()))
}
