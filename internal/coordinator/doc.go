// Package coordinator provides the update-coordination core of HomePulse.
//
// A Coordinator is the single authority for "what is the latest known state
// of this data source". It polls a user-supplied fetch function on an
// interval, serialises concurrent fetch attempts, converts transport
// failures into a uniform success/failure signal, and fans each outcome out
// to a dynamic set of subscriber callbacks. A Debouncer collapses bursts of
// manual refresh requests into at most two actual fetch cycles.
//
// # Architecture
//
//	            RequestRefresh()            interval timer
//	                  │                           │
//	                  ▼                           ▼
//	            ┌───────────┐              ┌─────────────┐
//	            │ Debouncer │─────────────▶│   refresh   │
//	            └───────────┘              │  (serial)   │
//	                                       └──────┬──────┘
//	                                              │ UpdateFunc (the only
//	                                              ▼  suspension point)
//	                                    data / LastUpdateSuccess
//	                                              │
//	                            ┌─────────────────┼─────────────────┐
//	                            ▼                 ▼                 ▼
//	                        listener          listener          listener
//
// # Key guarantees
//
//   - At most one fetch is in flight per coordinator at any instant.
//   - Data and LastUpdateSuccess are swapped atomically; listeners never
//     observe a torn pair.
//   - Listener panics are isolated: one broken subscriber cannot starve the
//     rest or corrupt coordinator state.
//   - Rescheduling is idempotent: duplicate timers never accumulate.
//   - Background fetch failures become state, never escaped errors; only
//     FirstRefresh propagates so setup can be aborted.
//
// # Error taxonomy
//
//   - UpdateFailedError: expected/transient (device offline, timeout).
//     Logged at warning once per failure streak, then debug.
//   - AuthFailedError: credentials rejected; the OnAuthFailed hook fires so
//     the owner can re-authenticate instead of silently retrying.
//   - anything else: unexpected, logged at error level, still absorbed.
//
// # Known imprecision
//
// A Call on the Debouncer that arrives while an execution is already in
// flight is treated as satisfied by that execution, even though the
// in-flight fetch may have started before the condition the caller wants
// confirmed. This mirrors the long-standing behaviour of the runtime this
// design derives from; callers needing a guaranteed post-event fetch should
// call Refresh directly.
//
// # Usage
//
//	coord, err := coordinator.New(coordinator.Config[map[string]any]{
//	    Name:     "apc-ups",
//	    Interval: 30 * time.Second,
//	    Update: func(ctx context.Context) (map[string]any, error) {
//	        return client.Status(ctx)
//	    },
//	    Logger: log,
//	})
//	if err != nil {
//	    return err
//	}
//	if err := coord.FirstRefresh(ctx); err != nil {
//	    return err // setup failure propagates
//	}
//	remove := coord.AddListener(func() {
//	    if coord.LastUpdateSuccess() {
//	        render(coord.Data())
//	    }
//	}, nil)
//	defer remove()
//	defer coord.Shutdown()
package coordinator
