package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestResourceMonitor_Sample(t *testing.T) {
	m := NewResourceMonitor(time.Hour, zaptest.NewLogger(t))

	require.True(t, m.Stats().CollectedAt.IsZero())

	m.sample()

	stats := m.Stats()
	require.False(t, stats.CollectedAt.IsZero())
	require.GreaterOrEqual(t, stats.CPUPercent, 0.0)
	require.Greater(t, stats.MemoryPercent, 0.0)
	require.LessOrEqual(t, stats.MemoryPercent, 100.0)
}

func TestResourceMonitor_StartStop(t *testing.T) {
	m := NewResourceMonitor(time.Hour, zaptest.NewLogger(t))

	m.Start(context.Background())
	m.Stop()
	m.Stop() // idempotent
}
