package history

import (
	"context"
	"time"

	"github.com/nwalden/homepulse-core/internal/coordinator"
)

// recordTimeout bounds one history insert so a stalled database cannot
// hold up the coordinator's listener fan-out.
const recordTimeout = 5 * time.Second

// Snapshotter provides the point-in-time refresh view the recorder
// persists. Satisfied by *coordinator.Coordinator[T] for any T.
type Snapshotter interface {
	Snapshot() coordinator.Snapshot
}

// Logger is the minimal logging interface the recorder needs.
type Logger interface {
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Error(string, ...any) {}

// Recorder persists each refresh outcome as a history entry.
//
// Register Record as a coordinator listener:
//
//	remove := coord.AddListener(recorder.Record, nil)
type Recorder struct {
	repo   Repository
	source Snapshotter
	logger Logger
}

// NewRecorder creates a recorder for one coordinator's refresh outcomes.
func NewRecorder(repo Repository, source Snapshotter, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{repo: repo, source: source, logger: logger}
}

// Record reads the current snapshot and persists it. Insert failures are
// logged, never raised; history is best-effort.
func (r *Recorder) Record() {
	snap := r.source.Snapshot()

	entry := Entry{
		Source:     snap.Source,
		Success:    snap.Success,
		DurationMS: snap.Duration.Milliseconds(),
		CreatedAt:  snap.Timestamp,
	}
	if snap.Err != nil {
		entry.Error = snap.Err.Error()
	}
	if snap.Success {
		entry.Data = payloadMap(snap.Data)
	}

	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()

	if err := r.repo.Create(ctx, &entry); err != nil {
		r.logger.Error("recording refresh history failed",
			"source", snap.Source,
			"error", err,
		)
	}
}

// payloadMap coerces a snapshot payload into a JSON-friendly map.
// Non-map payloads are wrapped under a "value" key.
func payloadMap(data any) map[string]any {
	if data == nil {
		return nil
	}
	if m, ok := data.(map[string]any); ok {
		return m
	}
	return map[string]any{"value": data}
}
