package coordinator

import (
	"context"
	"sync"
	"time"
)

// Debouncer collapses a burst of "please run this action" requests into a
// minimal number of actual executions, while guaranteeing the action still
// eventually runs if requested during a cooldown.
//
// A burst of N calls within one cooldown window results in at most two
// executions: the immediate one (when Immediate is set and the debouncer is
// idle) plus one trailing execution that captures the latest request.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - At most one execution of the wrapped function is in flight at a time.
type Debouncer struct {
	cooldown  time.Duration
	immediate bool
	fn        func(ctx context.Context) error
	logger    Logger

	// mu guards timer, pending and stopped.
	mu      sync.Mutex
	timer   *time.Timer
	pending bool
	stopped bool

	// execMu is held for the duration of a function execution.
	execMu sync.Mutex
}

// DebouncerConfig holds construction parameters for a Debouncer.
type DebouncerConfig struct {
	// Cooldown is the minimum duration between the end of one execution and
	// the start of the next triggered execution.
	Cooldown time.Duration

	// Immediate executes the first call in a quiet period synchronously
	// instead of waiting out a cooldown first.
	Immediate bool

	// Function is the zero-argument async action being rate-limited.
	Function func(ctx context.Context) error

	// Logger is used for trailing-execution failures. Optional.
	Logger Logger
}

// NewDebouncer creates a debouncer for the given function.
func NewDebouncer(cfg DebouncerConfig) *Debouncer {
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Debouncer{
		cooldown:  cfg.Cooldown,
		immediate: cfg.Immediate,
		fn:        cfg.Function,
		logger:    logger,
	}
}

// Call requests an execution of the wrapped function.
//
// Behaviour depends on the debouncer state:
//   - cooldown timer running: the call is folded into the trailing
//     execution and Call returns immediately.
//   - an execution already in flight: Call returns immediately; the
//     in-flight execution is treated as satisfying this request.
//   - idle, Immediate false: the call becomes the trailing execution after
//     the cooldown elapses.
//   - idle, Immediate true: the function executes before Call returns and
//     its error propagates to the caller.
//
// Errors from trailing executions are logged, never returned.
func (d *Debouncer) Call(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return ErrShutDown
	}

	if d.timer != nil {
		// Cooling down: fold into the trailing execution.
		d.pending = true
		d.mu.Unlock()
		return nil
	}

	if !d.execMu.TryLock() {
		// An execution is in flight; its result satisfies this request.
		d.mu.Unlock()
		return nil
	}

	if !d.immediate {
		d.execMu.Unlock()
		d.pending = true
		d.scheduleTimerLocked()
		d.mu.Unlock()
		return nil
	}

	d.mu.Unlock()

	err := d.fn(ctx)

	// Start the cooldown before releasing the execution lock so a racing
	// Call cannot begin a second immediate execution back to back.
	d.mu.Lock()
	d.scheduleTimerLocked()
	d.mu.Unlock()
	d.execMu.Unlock()

	return err
}

// timerElapsed runs when the cooldown timer fires.
func (d *Debouncer) timerElapsed() {
	d.mu.Lock()
	d.timer = nil
	if !d.pending {
		// Quiet cooldown: back to idle.
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.mu.Unlock()

	d.execMu.Lock()

	// A racing Call may have started a new cooldown while we waited for the
	// lock; its trailing execution will handle the work.
	d.mu.Lock()
	if d.timer != nil || d.stopped {
		d.mu.Unlock()
		d.execMu.Unlock()
		return
	}
	d.mu.Unlock()

	if err := d.fn(context.Background()); err != nil {
		d.logger.Error("debounced call failed", "error", err)
	}

	d.mu.Lock()
	d.scheduleTimerLocked()
	d.mu.Unlock()
	d.execMu.Unlock()
}

// scheduleTimerLocked arms the cooldown timer. Caller must hold mu.
func (d *Debouncer) scheduleTimerLocked() {
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.cooldown, d.timerElapsed)
}

// Cancel stops any pending timer and clears the trailing-call flag.
// The debouncer remains usable afterwards. Idempotent.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = false
}

// Shutdown cancels pending work and rejects further calls.
// Used on teardown. Idempotent.
func (d *Debouncer) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = false
}
