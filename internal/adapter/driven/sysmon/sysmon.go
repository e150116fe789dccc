// Package sysmon implements the SystemMonitor port by polling external
// probe commands for platform conditions the scheduler reacts to.
package sysmon

import (
	"context"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/xiaocang/ghpr-view/internal/domain/model"
	"github.com/xiaocang/ghpr-view/internal/domain/port/driven"
)

// probeTimeout bounds a single probe run so a hung command cannot stall
// the poll loop.
const probeTimeout = 10 * time.Second

// Compile-time interface satisfaction check.
var _ driven.SystemMonitor = (*Monitor)(nil)

// Monitor samples probe commands on an interval. A probe is a shell command
// whose zero exit status means the condition holds; an empty probe pins the
// condition to false, which is the right default on hosts without such
// signals.
type Monitor struct {
	lowPowerProbe  string
	expensiveProbe string
	interval       time.Duration
	runProbe       func(ctx context.Context, command string) bool

	mu    sync.RWMutex
	state model.SystemState
	subs  []func(model.SystemState)
}

// NewMonitor creates a monitor for the given probe commands.
func NewMonitor(lowPowerProbe, expensiveProbe string, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{
		lowPowerProbe:  lowPowerProbe,
		expensiveProbe: expensiveProbe,
		interval:       interval,
		runProbe:       runShellProbe,
	}
}

// Run samples the probes until ctx is canceled. The first sample happens
// immediately so subscribers see real values before the first tick.
func (m *Monitor) Run(ctx context.Context) {
	m.poll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

// Current returns the last sampled state.
func (m *Monitor) Current() model.SystemState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Subscribe registers fn to be called whenever the sampled state changes.
func (m *Monitor) Subscribe(fn func(model.SystemState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

func (m *Monitor) poll(ctx context.Context) {
	state := model.SystemState{
		LowPower:         m.probe(ctx, m.lowPowerProbe),
		ExpensiveNetwork: m.probe(ctx, m.expensiveProbe),
	}
	m.update(state)
}

func (m *Monitor) probe(ctx context.Context, command string) bool {
	if command == "" {
		return false
	}
	return m.runProbe(ctx, command)
}

func (m *Monitor) update(state model.SystemState) {
	m.mu.Lock()
	changed := state != m.state
	m.state = state
	subs := append(([]func(model.SystemState))(nil), m.subs...)
	m.mu.Unlock()

	if !changed {
		return
	}

	slog.Info("system state changed",
		"lowPower", state.LowPower, "expensiveNetwork", state.ExpensiveNetwork)
	for _, fn := range subs {
		fn(state)
	}
}

func runShellProbe(ctx context.Context, command string) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	return exec.CommandContext(ctx, "/bin/sh", "-c", command).Run() == nil
}
