package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Logger defines the logging interface used by the coordinator package.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// UpdateFunc fetches the latest payload for a data source.
//
// It is the sole seam between a coordinator and a concrete device or cloud
// protocol. Return NewUpdateFailed for expected transient failures and
// NewAuthFailed when credentials are rejected; any other error is treated
// as unexpected.
type UpdateFunc[T any] func(ctx context.Context) (T, error)

// Default debouncer tuning for RequestRefresh.
const (
	defaultRequestRefreshCooldown = 500 * time.Millisecond
)

// Config holds construction parameters for a Coordinator.
type Config[T any] struct {
	// Name is the diagnostic label for the data source.
	Name string

	// Interval is the periodic polling interval. 0 disables periodic
	// polling (push-only sources).
	Interval time.Duration

	// Update fetches the latest payload. Required.
	Update UpdateFunc[T]

	// Logger is used for refresh diagnostics. Optional.
	Logger Logger

	// FetchTimeout bounds timer-driven and debounced fetches.
	// 0 leaves them unbounded.
	FetchTimeout time.Duration

	// RequestRefreshCooldown tunes the RequestRefresh debouncer.
	// Default: 500ms.
	RequestRefreshCooldown time.Duration

	// RequestRefreshImmediate executes the first debounced refresh in a
	// quiet period immediately rather than after the cooldown.
	RequestRefreshImmediate bool

	// OnAuthFailed is invoked when a background refresh hits an
	// authentication failure, so the owner can start re-authentication
	// instead of retrying silently. Optional.
	OnAuthFailed func(err error)
}

// Snapshot is a point-in-time view of a coordinator's last refresh,
// consumed by history and metrics sinks without generic-type coupling.
type Snapshot struct {
	// Source is the coordinator name.
	Source string

	// Success reports whether the most recent fetch attempt succeeded.
	Success bool

	// Err is the error from the most recent failed attempt, or nil.
	Err error

	// Data is the last successfully fetched payload.
	Data any

	// FailureStreak counts consecutive failed fetches (0 after success).
	FailureStreak int

	// Timestamp is when the last refresh completed (UTC).
	Timestamp time.Time

	// Duration is how long the last fetch took.
	Duration time.Duration
}

// listenerEntry pairs a listener callback with its optional context value.
type listenerEntry struct {
	fn      func()
	context any
}

// Coordinator is the single owner of one logical data source's latest
// fetched state and the fan-out point for its subscribers.
//
// It schedules periodic fetches, serialises concurrent fetch attempts,
// tracks success/failure state, and notifies a dynamic set of listeners
// after every update. Entities read Data/LastUpdateSuccess instead of
// polling the source themselves.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - At most one fetch is in flight at any time.
//   - Data and LastUpdateSuccess are swapped atomically: a listener never
//     observes a successful flag paired with stale data.
type Coordinator[T any] struct {
	name         string
	interval     time.Duration
	update       UpdateFunc[T]
	logger       Logger
	fetchTimeout time.Duration
	onAuthFailed func(err error)

	// debouncer rate-limits RequestRefresh into the internal refresh.
	debouncer *Debouncer

	// fetchMu serialises fetch cycles; at most one update in flight.
	fetchMu sync.Mutex

	// mu guards all state below.
	mu            sync.Mutex
	data          T
	lastSuccess   bool
	lastErr       error
	failureStreak int
	lastAt        time.Time
	lastDuration  time.Duration
	listeners     map[int]listenerEntry
	nextListener  int
	timer         *time.Timer
	shutdown      bool
}

// New creates a coordinator for one logical data source.
//
// Returns:
//   - *Coordinator[T]: Ready for FirstRefresh / AddListener
//   - error: ErrNoUpdateFunc if no update function is supplied
func New[T any](cfg Config[T]) (*Coordinator[T], error) {
	if cfg.Update == nil {
		return nil, ErrNoUpdateFunc
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	cooldown := cfg.RequestRefreshCooldown
	if cooldown <= 0 {
		cooldown = defaultRequestRefreshCooldown
	}

	c := &Coordinator[T]{
		name:         cfg.Name,
		interval:     cfg.Interval,
		update:       cfg.Update,
		logger:       logger,
		fetchTimeout: cfg.FetchTimeout,
		onAuthFailed: cfg.OnAuthFailed,
		listeners:    make(map[int]listenerEntry),
	}

	c.debouncer = NewDebouncer(DebouncerConfig{
		Cooldown:  cooldown,
		Immediate: cfg.RequestRefreshImmediate,
		Function: func(ctx context.Context) error {
			// Background path: fetch failures become state, not errors.
			ctx, cancel := c.withFetchTimeout(ctx)
			defer cancel()
			c.refresh(ctx) //nolint:errcheck // absorbed into LastUpdateSuccess
			return nil
		},
		Logger: logger,
	})

	return c, nil
}

// Name returns the diagnostic label for the data source.
func (c *Coordinator[T]) Name() string {
	return c.name
}

// Data returns the last successfully fetched payload.
// Callers must treat the payload as read-only.
func (c *Coordinator[T]) Data() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

// LastUpdateSuccess reports whether the most recent fetch attempt succeeded.
func (c *Coordinator[T]) LastUpdateSuccess() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSuccess
}

// LastError returns the error from the most recent failed attempt, or nil.
func (c *Coordinator[T]) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Snapshot returns a point-in-time view of the last refresh outcome.
func (c *Coordinator[T]) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Source:        c.name,
		Success:       c.lastSuccess,
		Err:           c.lastErr,
		Data:          c.data,
		FailureStreak: c.failureStreak,
		Timestamp:     c.lastAt,
		Duration:      c.lastDuration,
	}
}

// FirstRefresh performs the initial fetch during setup.
//
// Unlike Refresh, failures PROPAGATE so the caller can decide not to
// complete setup. On success the periodic timer is armed.
func (c *Coordinator[T]) FirstRefresh(ctx context.Context) error {
	return c.refresh(ctx)
}

// Refresh performs exactly one fetch cycle right now, ignoring interval
// timing. Failures are absorbed into LastUpdateSuccess/LastError rather
// than raised; every registered listener is notified afterwards either way.
func (c *Coordinator[T]) Refresh(ctx context.Context) {
	c.refresh(ctx) //nolint:errcheck // absorbed into LastUpdateSuccess
}

// RequestRefresh is the debounced entry point entities call after a user
// action that should prompt a near-term refresh (e.g. confirming new state
// after a command). Bursts collapse into at most two actual fetch cycles.
//
// Fetch failures never surface here; they become coordinator state.
func (c *Coordinator[T]) RequestRefresh(ctx context.Context) error {
	return c.debouncer.Call(ctx)
}

// refresh runs one full fetch cycle: unschedule the timer, invoke the
// update function, swap state atomically, re-arm the timer and fan out.
func (c *Coordinator[T]) refresh(ctx context.Context) error {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return ErrShutDown
	}
	// Drop any armed timer so a manual refresh and a timer refresh cannot
	// stack redundant reschedules; it is re-armed after the fetch.
	c.unscheduleLocked()
	c.mu.Unlock()

	start := time.Now()
	data, err := c.update(ctx)
	elapsed := time.Since(start)

	c.mu.Lock()
	if c.shutdown {
		// Torn down mid-fetch: discard the result, schedule nothing.
		c.mu.Unlock()
		return ErrShutDown
	}

	c.lastAt = time.Now().UTC()
	c.lastDuration = elapsed

	var authErr *AuthFailedError
	var updateErr *UpdateFailedError

	switch {
	case err == nil:
		c.data = data
		c.lastSuccess = true
		c.lastErr = nil
		if c.failureStreak > 0 {
			c.logger.Info("fetching data recovered",
				"source", c.name,
				"failed_attempts", c.failureStreak,
			)
		}
		c.failureStreak = 0

	case errors.As(err, &authErr):
		c.lastSuccess = false
		c.lastErr = err
		c.failureStreak++
		c.logger.Error("authentication failed fetching data",
			"source", c.name,
			"error", err,
		)

	case errors.As(err, &updateErr):
		c.lastSuccess = false
		c.lastErr = err
		c.failureStreak++
		// Warn once when a healthy source starts failing, then demote to
		// debug so a flaky network cannot spam the log.
		if c.failureStreak == 1 {
			c.logger.Warn("error fetching data",
				"source", c.name,
				"error", err,
			)
		} else {
			c.logger.Debug("error fetching data",
				"source", c.name,
				"attempt", c.failureStreak,
				"error", err,
			)
		}

	default:
		c.lastSuccess = false
		c.lastErr = err
		c.failureStreak++
		c.logger.Error("unexpected error fetching data",
			"source", c.name,
			"error", err,
		)
	}

	c.scheduleLocked()
	c.mu.Unlock()

	c.notifyListeners()

	if authErr != nil && c.onAuthFailed != nil {
		c.onAuthFailed(err)
	}

	return err
}

// SetUpdatedData injects data from a push-based source (e.g. an MQTT
// notification) and fans out to listeners without invoking the update
// function. Resets failure bookkeeping and re-arms the interval timer.
func (c *Coordinator[T]) SetUpdatedData(data T) {
	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return
	}

	c.data = data
	c.lastSuccess = true
	c.lastErr = nil
	if c.failureStreak > 0 {
		c.logger.Info("fetching data recovered",
			"source", c.name,
			"failed_attempts", c.failureStreak,
		)
	}
	c.failureStreak = 0
	c.lastAt = time.Now().UTC()
	c.lastDuration = 0

	c.scheduleLocked()
	c.mu.Unlock()

	c.notifyListeners()
}

// AddListener registers a callback invoked with no arguments after every
// refresh, successful or not. The callback reads Data/LastUpdateSuccess
// itself and must not block. In particular it must never call Refresh,
// FirstRefresh or RequestRefresh synchronously: listeners run while the
// fetch lock is still held, so a re-entrant refresh deadlocks.
//
// The optional context value is exposed via Contexts for update functions
// that fetch only the subset of data current listeners need.
//
// Returns a remove handle that deregisters the listener; calling it more
// than once is a no-op.
func (c *Coordinator[T]) AddListener(fn func(), context any) (remove func()) {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = listenerEntry{fn: fn, context: context}
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Contexts returns the non-nil context values of all current listeners.
// Update functions may consult this to fetch selectively.
func (c *Coordinator[T]) Contexts() []any {
	c.mu.Lock()
	defer c.mu.Unlock()

	contexts := make([]any, 0, len(c.listeners))
	for _, l := range c.listeners {
		if l.context != nil {
			contexts = append(contexts, l.context)
		}
	}
	return contexts
}

// ListenerCount returns the number of registered listeners.
func (c *Coordinator[T]) ListenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

// Shutdown cancels the interval timer and the debouncer. No new work is
// scheduled afterwards; an in-flight fetch is allowed to complete but its
// result is discarded.
func (c *Coordinator[T]) Shutdown() {
	c.debouncer.Shutdown()

	c.mu.Lock()
	c.shutdown = true
	c.unscheduleLocked()
	c.mu.Unlock()
}

// notifyListeners invokes every registered listener callback, isolating
// per-listener panics so one broken subscriber cannot starve the rest.
func (c *Coordinator[T]) notifyListeners() {
	c.mu.Lock()
	callbacks := make([]func(), 0, len(c.listeners))
	for _, l := range c.listeners {
		callbacks = append(callbacks, l.fn)
	}
	c.mu.Unlock()

	for _, fn := range callbacks {
		c.invokeListener(fn)
	}
}

// invokeListener calls one listener with panic recovery.
func (c *Coordinator[T]) invokeListener(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("listener panicked during update fan-out",
				"source", c.name,
				"panic", r,
			)
		}
	}()
	fn()
}

// scheduleLocked arms the interval timer. Re-arming cancels any previous
// timer first so repeated calls never accumulate duplicates.
// Caller must hold mu.
func (c *Coordinator[T]) scheduleLocked() {
	if c.interval <= 0 || c.shutdown {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.interval, c.intervalElapsed)
}

// unscheduleLocked disarms the interval timer. Caller must hold mu.
func (c *Coordinator[T]) unscheduleLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// withFetchTimeout bounds ctx by the configured fetch timeout, if set.
// The returned cancel func is always safe to call.
func (c *Coordinator[T]) withFetchTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.fetchTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.fetchTimeout)
}

// intervalElapsed runs a timer-driven refresh with the configured bound.
func (c *Coordinator[T]) intervalElapsed() {
	ctx, cancel := c.withFetchTimeout(context.Background())
	defer cancel()
	c.Refresh(ctx)
}
