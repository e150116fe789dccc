package sysmon

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaocang/ghpr-view/internal/domain/model"
)

func TestMonitor_CurrentDefaultsToFalse(t *testing.T) {
	m := NewMonitor("probe-a", "probe-b", time.Minute)

	state := m.Current()
	assert.False(t, state.LowPower)
	assert.False(t, state.ExpensiveNetwork)
}

func TestMonitor_PollSamplesProbes(t *testing.T) {
	m := NewMonitor("low-power-probe", "expensive-probe", time.Minute)
	m.runProbe = func(_ context.Context, command string) bool {
		return command == "low-power-probe"
	}

	m.poll(context.Background())

	state := m.Current()
	assert.True(t, state.LowPower)
	assert.False(t, state.ExpensiveNetwork)
}

func TestMonitor_EmptyProbeNeverFires(t *testing.T) {
	m := NewMonitor("", "", time.Minute)
	m.runProbe = func(context.Context, string) bool {
		t.Fatal("probe run despite empty command")
		return true
	}

	m.poll(context.Background())

	state := m.Current()
	assert.False(t, state.LowPower)
	assert.False(t, state.ExpensiveNetwork)
}

func TestMonitor_SubscribersNotifiedOnChangeOnly(t *testing.T) {
	lowPower := false
	m := NewMonitor("low-power-probe", "", time.Minute)
	m.runProbe = func(context.Context, string) bool { return lowPower }

	var notifications []model.SystemState
	m.Subscribe(func(state model.SystemState) { notifications = append(notifications, state) })

	m.poll(context.Background())
	m.poll(context.Background())
	assert.Empty(t, notifications, "unchanged state stays quiet")

	lowPower = true
	m.poll(context.Background())
	m.poll(context.Background())
	require.Len(t, notifications, 1, "one notification per transition")
	assert.True(t, notifications[0].LowPower)

	lowPower = false
	m.poll(context.Background())
	require.Len(t, notifications, 2)
	assert.False(t, notifications[1].LowPower)
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	m := NewMonitor("", "", 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRunShellProbe(t *testing.T) {
	assert.True(t, runShellProbe(context.Background(), "exit 0"))
	assert.False(t, runShellProbe(context.Background(), "exit 3"))
}
