// Package application contains use-case orchestration: the refresh engine,
// snapshot aggregation, and change detection.
package application

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xiaocang/ghpr-view/internal/config"
	"github.com/xiaocang/ghpr-view/internal/domain/model"
	"github.com/xiaocang/ghpr-view/internal/domain/port/driven"
)

const (
	// snapshotMaxAge is how old a cached snapshot may be and still serve as
	// cold-start data. Older caches are only read as a stale fallback after
	// a failed refresh.
	snapshotMaxAge = time.Hour

	// minTickInterval bounds API cost no matter what the settings file says.
	// Settings validation enforces the same floor; this one holds even if a
	// bad value slips through.
	minTickInterval = time.Minute
)

// SchedulerState names the polling scheduler's current mode.
type SchedulerState string

const (
	// StateIdle means polling is disabled, typically because no session is
	// authenticated. No timer is armed.
	StateIdle SchedulerState = "idle"
	// StateActive means the polling timer is armed.
	StateActive SchedulerState = "active"
	// StatePaused means a power or network condition suspended polling while
	// the session is still authenticated.
	StatePaused SchedulerState = "paused"
	// StateRefreshing means a fetch is in flight. Further triggers are
	// coalesced until it lands.
	StateRefreshing SchedulerState = "refreshing"
)

// SettingsSource yields the current settings and change notifications.
// *config.Store satisfies it.
type SettingsSource interface {
	Current() config.Settings
	Subscribe(fn func(config.Settings))
}

type cmdKind int

const (
	cmdRefresh cmdKind = iota
	cmdOpened
)

type engineCmd struct {
	kind cmdKind
}

// fetchOutcome carries one fetch's inputs and result back to the run loop.
// Settings and username are snapshotted at fetch start so the result is
// aggregated with the same configuration the query was built from.
type fetchOutcome struct {
	username string
	settings config.Settings
	res      *model.FetchResult
	err      error
}

// EngineStatus is a point-in-time view of the scheduler for the status API.
type EngineStatus struct {
	State       SchedulerState       `json:"state"`
	Auth        model.AuthState      `json:"auth"`
	RateLimit   *model.RateLimitInfo `json:"rateLimit,omitempty"`
	LastUpdated time.Time            `json:"lastUpdated,omitzero"`
}

// Engine owns the refresh lifecycle: it schedules polls, runs fetches,
// aggregates results into snapshots, detects changes, and publishes the
// outcome. A single run-loop goroutine serializes every mutation of the
// snapshot, the change-detection baseline, and the timer; fetches run in a
// spawned goroutine and their results are applied back on the loop.
type Engine struct {
	gh       driven.GitHubClient
	auth     driven.AuthProvider
	settings SettingsSource
	cache    driven.SnapshotCache
	notifier driven.Notifier
	journal  driven.NotificationStore
	avatars  driven.AvatarCache
	sysmon   driven.SystemMonitor

	holder   *SnapshotHolder
	detector *Detector

	mu    sync.RWMutex
	state SchedulerState

	// Run-loop state, touched only from Start.
	lastAuth       model.AuthState
	everRefreshed  bool
	ticker         *time.Ticker
	tickerInterval time.Duration

	wake    chan struct{}
	cmds    chan engineCmd
	results chan fetchOutcome
}

// NewEngine wires the engine to its collaborators and subscribes to auth,
// system, and settings transitions. Nothing runs until Start.
func NewEngine(
	gh driven.GitHubClient,
	auth driven.AuthProvider,
	settings SettingsSource,
	cache driven.SnapshotCache,
	notifier driven.Notifier,
	journal driven.NotificationStore,
	avatars driven.AvatarCache,
	sysmon driven.SystemMonitor,
) *Engine {
	e := &Engine{
		gh:       gh,
		auth:     auth,
		settings: settings,
		cache:    cache,
		notifier: notifier,
		journal:  journal,
		avatars:  avatars,
		sysmon:   sysmon,
		holder:   NewSnapshotHolder(),
		detector: NewDetector(),
		state:    StateIdle,
		wake:     make(chan struct{}, 1),
		cmds:     make(chan engineCmd),
		results:  make(chan fetchOutcome, 1),
	}

	// Subscribers run on the notifying goroutine, so they only nudge the
	// run loop; it re-reads the current state of every source when it wakes,
	// which makes a dropped duplicate nudge harmless.
	wake := func() {
		select {
		case e.wake <- struct{}{}:
		default:
		}
	}
	auth.Subscribe(func(model.AuthState) { wake() })
	sysmon.Subscribe(func(model.SystemState) { wake() })
	settings.Subscribe(func(config.Settings) { wake() })

	return e
}

// Start runs the engine until the context is canceled. It restores the
// cached snapshot for cold-start data, then serializes all scheduling and
// state mutation on this goroutine.
func (e *Engine) Start(ctx context.Context) {
	e.restoreSnapshot(ctx)
	e.reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			e.stopTicker()
			slog.Info("engine stopped")
			return
		case <-e.wake:
			e.reconcile(ctx)
		case <-e.tick():
			e.startRefresh(ctx, "timer")
		case cmd := <-e.cmds:
			e.handleCmd(ctx, cmd)
		case out := <-e.results:
			e.applyResult(ctx, out)
		}
	}
}

// Refresh asks the engine for an immediate refresh. The request is coalesced
// if a fetch is already in flight.
func (e *Engine) Refresh(ctx context.Context) error {
	return e.send(ctx, engineCmd{kind: cmdRefresh})
}

// SurfaceOpened signals that the user-facing surface was opened, triggering
// a refresh when the refresh-on-open option is enabled.
func (e *Engine) SurfaceOpened(ctx context.Context) error {
	return e.send(ctx, engineCmd{kind: cmdOpened})
}

// Snapshot returns the latest published snapshot.
func (e *Engine) Snapshot() model.Snapshot {
	return e.holder.Get()
}

// State returns the scheduler's current mode.
func (e *Engine) State() SchedulerState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Status reports the scheduler state together with auth and rate-limit info.
func (e *Engine) Status() EngineStatus {
	return EngineStatus{
		State:       e.State(),
		Auth:        e.auth.Current(),
		RateLimit:   e.gh.RateLimit(),
		LastUpdated: e.holder.Get().LastUpdated,
	}
}

func (e *Engine) send(ctx context.Context, cmd engineCmd) error {
	select {
	case e.cmds <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) setState(s SchedulerState) {
	e.mu.Lock()
	prev := e.state
	e.state = s
	e.mu.Unlock()
	if prev != s {
		slog.Debug("scheduler state changed", "from", prev, "to", s)
	}
}

// restoreSnapshot loads the cached snapshot so the UI has data before the
// first refresh lands. The change-detection baseline is deliberately not
// seeded from it: a restart must not notify about changes that happened
// while the process was down.
func (e *Engine) restoreSnapshot(ctx context.Context) {
	snap, err := e.cache.Load(ctx, snapshotMaxAge, false)
	if err != nil {
		slog.Warn("snapshot cache load failed", "error", err)
		return
	}
	if snap == nil {
		return
	}
	e.holder.Set(*snap)
	slog.Info("snapshot restored from cache",
		"open", len(snap.Open),
		"merged", len(snap.Merged),
		"age", time.Since(snap.LastUpdated).Round(time.Second),
	)
}

// reconcile re-reads auth, system, and settings state and moves the
// scheduler to where they point. It runs at startup, on every subscription
// nudge, and after each refresh lands.
func (e *Engine) reconcile(ctx context.Context) {
	auth := e.auth.Current()
	signedOut := e.lastAuth.Authenticated && !auth.Authenticated
	e.lastAuth = auth
	if signedOut {
		e.clearAll(ctx)
	}

	settings := e.settings.Current().Normalized()
	desired := e.desiredState(auth, settings)

	if e.State() == StateRefreshing {
		// The in-flight fetch is never interrupted. Tear the ticker down
		// when polling should stop so no further automatic fires queue up;
		// applyResult reconciles again once the fetch lands.
		if desired == StateActive {
			e.ensureTicker(settings.RefreshInterval())
		} else {
			e.stopTicker()
		}
		return
	}

	switch desired {
	case StateIdle, StatePaused:
		e.stopTicker()
		e.setState(desired)
	case StateActive:
		entering := e.State() != StateActive
		e.setState(StateActive)
		e.ensureTicker(settings.RefreshInterval())
		if entering && e.shouldRefreshOnEntry(settings) {
			e.startRefresh(ctx, "activate")
		}
	}
}

// desiredState maps the current auth and system conditions to a scheduler
// mode. The two pause conditions are evaluated independently: either alone
// suffices to pause, and both must clear before polling resumes.
func (e *Engine) desiredState(auth model.AuthState, settings config.Settings) SchedulerState {
	if !auth.Authenticated {
		return StateIdle
	}
	sys := e.sysmon.Current()
	if sys.LowPower && settings.PauseOnLowPower {
		return StatePaused
	}
	if sys.ExpensiveNetwork && settings.PauseOnExpensiveNetwork {
		return StatePaused
	}
	return StateActive
}

// shouldRefreshOnEntry decides whether entering Active triggers an
// immediate refresh: on the first-ever activation, when the user opted into
// refresh-on-open, or when the snapshot is older than the polling interval.
func (e *Engine) shouldRefreshOnEntry(settings config.Settings) bool {
	if !e.everRefreshed {
		return true
	}
	if settings.RefreshOnOpen {
		return true
	}
	snap := e.holder.Get()
	return snap.LastUpdated.IsZero() || time.Since(snap.LastUpdated) > settings.RefreshInterval()
}

// ensureTicker arms the polling ticker, enforcing the interval floor. An
// armed ticker with the same interval is left alone; an interval change
// stops it and arms a fresh one.
func (e *Engine) ensureTicker(interval time.Duration) {
	if interval < minTickInterval {
		interval = minTickInterval
	}
	if e.ticker != nil && e.tickerInterval == interval {
		return
	}
	e.stopTicker()
	e.ticker = time.NewTicker(interval)
	e.tickerInterval = interval
}

func (e *Engine) stopTicker() {
	if e.ticker == nil {
		return
	}
	e.ticker.Stop()
	e.ticker = nil
	e.tickerInterval = 0
}

// tick returns the ticker channel, or a nil channel that never fires when
// no ticker is armed.
func (e *Engine) tick() <-chan time.Time {
	if e.ticker == nil {
		return nil
	}
	return e.ticker.C
}

func (e *Engine) handleCmd(ctx context.Context, cmd engineCmd) {
	switch cmd.kind {
	case cmdRefresh:
		e.startRefresh(ctx, "manual")
	case cmdOpened:
		if e.settings.Current().RefreshOnOpen {
			e.startRefresh(ctx, "opened")
		}
	}
}

// startRefresh begins a fetch unless one is already in flight or no session
// is authenticated. Invalid settings short-circuit before any network call
// and surface as the snapshot's error.
func (e *Engine) startRefresh(ctx context.Context, trigger string) {
	if e.State() == StateRefreshing {
		slog.Debug("refresh coalesced, fetch already in flight", "trigger", trigger)
		return
	}
	auth := e.auth.Current()
	if !auth.Authenticated {
		slog.Debug("refresh skipped, signed out", "trigger", trigger)
		return
	}

	settings := e.settings.Current().Normalized()
	if err := settings.Validate(); err != nil {
		slog.Error("refresh blocked by invalid settings", "error", err)
		e.failRefresh(ctx, err)
		return
	}

	e.setState(StateRefreshing)
	e.everRefreshed = true

	snap := e.holder.Get()
	snap.IsLoading = true
	e.holder.Set(snap)

	slog.Info("refresh started", "trigger", trigger, "user", auth.Username)
	go e.fetch(ctx, auth.Username, settings)
}

// fetch runs off the run loop; the outcome is applied back on it.
func (e *Engine) fetch(ctx context.Context, username string, settings config.Settings) {
	res, err := e.gh.FetchInvolved(ctx, username, model.FetchOptions{
		MergedWindowDays: settings.MergedFetchWindowDays,
		CIExcludeFilter:  settings.CIStatusExcludeFilter,
	})
	select {
	case e.results <- fetchOutcome{username: username, settings: settings, res: res, err: err}:
	case <-ctx.Done():
	}
}

func (e *Engine) applyResult(ctx context.Context, out fetchOutcome) {
	e.setState(StateActive)
	if !e.auth.Current().Authenticated {
		slog.Debug("dropping refresh result, signed out during fetch")
		e.reconcile(ctx)
		return
	}
	if out.err != nil {
		e.failRefresh(ctx, out.err)
	} else {
		e.completeRefresh(ctx, out)
	}
	e.reconcile(ctx)
}

// completeRefresh aggregates the fetched buckets, runs change detection,
// publishes the snapshot, and persists it. Detection always runs so the
// baseline advances; the notifications-enabled setting only gates delivery.
func (e *Engine) completeRefresh(ctx context.Context, out fetchOutcome) {
	snap := BuildSnapshot(out.res, out.username, out.settings, time.Now())
	snap.RateLimit = out.res.RateLimit

	events := e.detector.Diff(snap.Open)
	if out.settings.NotificationsEnabled {
		for _, ev := range events {
			if err := e.notifier.Notify(ctx, ev); err != nil {
				slog.Warn("notification delivery failed", "repo", ev.Repo, "pr", ev.Number, "error", err)
			}
		}
	} else if len(events) > 0 {
		slog.Debug("notifications suppressed", "count", len(events))
	}

	e.holder.Set(snap)
	if err := e.cache.Save(ctx, snap); err != nil {
		slog.Warn("snapshot cache save failed", "error", err)
	}

	slog.Info("refresh complete",
		"open", len(snap.Open),
		"merged", len(snap.Merged),
		"notifications", len(events),
	)
}

// failRefresh attaches the error to the published snapshot. When no data is
// in memory it falls back to a stale cached snapshot, still carrying the
// error so the UI can mark the data as stale.
func (e *Engine) failRefresh(ctx context.Context, err error) {
	slog.Error("refresh failed", "kind", model.ErrorKind(err), "error", err)

	snap := e.holder.Get()
	snap.IsLoading = false
	snap.Err = err
	snap.RateLimit = e.gh.RateLimit()

	if snap.IsEmpty() {
		stale, cerr := e.cache.Load(ctx, snapshotMaxAge, true)
		if cerr != nil {
			slog.Warn("stale cache fallback failed", "error", cerr)
		} else if stale != nil {
			slog.Info("serving stale cached snapshot", "age", time.Since(stale.LastUpdated).Round(time.Second))
			stale.Err = err
			stale.RateLimit = snap.RateLimit
			e.holder.Set(*stale)
			return
		}
	}

	e.holder.Set(snap)
}

// clearAll wipes every per-user artifact after a sign-out: the published
// snapshot, the change-detection baseline, the disk cache, the notification
// journal, and downloaded avatars.
func (e *Engine) clearAll(ctx context.Context) {
	e.holder.Set(model.Snapshot{})
	e.detector.Reset()
	if err := e.cache.Clear(ctx); err != nil {
		slog.Warn("snapshot cache clear failed", "error", err)
	}
	if err := e.journal.Clear(ctx); err != nil {
		slog.Warn("notification journal clear failed", "error", err)
	}
	if err := e.avatars.Clear(ctx); err != nil {
		slog.Warn("avatar cache clear failed", "error", err)
	}
	slog.Info("cleared cached state after sign-out")
}
