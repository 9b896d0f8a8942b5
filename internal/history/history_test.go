package history

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nwalden/homepulse-core/internal/coordinator"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("opening in-memory database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE refresh_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source TEXT NOT NULL,
		success INTEGER NOT NULL,
		error TEXT,
		data TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		t.Fatalf("creating refresh_history table: %v", err)
	}

	return db
}

func TestCreateAndList(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	entry := Entry{
		Source:     "weather-station",
		Success:    true,
		Data:       map[string]any{"temperature": 21.5},
		DurationMS: 120,
	}
	if err := repo.Create(ctx, &entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if entry.ID == 0 {
		t.Error("Create() did not assign entry ID")
	}
	if entry.CreatedAt.IsZero() {
		t.Error("Create() did not assign CreatedAt")
	}

	result, err := repo.List(ctx, Filter{Source: "weather-station"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("List() total = %d, want 1", result.Total)
	}

	got := result.Entries[0]
	if got.Source != "weather-station" || !got.Success {
		t.Errorf("List() entry = %+v, want successful weather-station entry", got)
	}
	if got.Data["temperature"] != 21.5 {
		t.Errorf("List() data = %v, want temperature 21.5", got.Data)
	}
	if got.DurationMS != 120 {
		t.Errorf("List() duration = %d, want 120", got.DurationMS)
	}
}

func TestCreateFailureEntry(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	entry := Entry{
		Source:  "doorbell",
		Success: false,
		Error:   "poll timed out",
	}
	if err := repo.Create(ctx, &entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	result, err := repo.List(ctx, Filter{Source: "doorbell"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	got := result.Entries[0]
	if got.Success {
		t.Error("List() entry success = true, want false")
	}
	if got.Error != "poll timed out" {
		t.Errorf("List() error text = %q, want %q", got.Error, "poll timed out")
	}
	if got.Data != nil {
		t.Errorf("List() data = %v, want nil for failed refresh", got.Data)
	}
}

func TestListNewestFirst(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		entry := Entry{
			Source:    "weather-station",
			Success:   true,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := repo.Create(ctx, &entry); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(result.Entries) != 3 {
		t.Fatalf("List() returned %d entries, want 3", len(result.Entries))
	}

	for i := 1; i < len(result.Entries); i++ {
		if result.Entries[i].CreatedAt.After(result.Entries[i-1].CreatedAt) {
			t.Errorf("List() entries not newest-first at index %d", i)
		}
	}
}

func TestListFilters(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	entries := []Entry{
		{Source: "weather-station", Success: true},
		{Source: "weather-station", Success: false, Error: "timeout"},
		{Source: "doorbell", Success: true},
	}
	for i := range entries {
		if err := repo.Create(ctx, &entries[i]); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	t.Run("by source", func(t *testing.T) {
		result, err := repo.List(ctx, Filter{Source: "weather-station"})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if result.Total != 2 {
			t.Errorf("List() total = %d, want 2", result.Total)
		}
	})

	t.Run("by outcome", func(t *testing.T) {
		failed := false
		result, err := repo.List(ctx, Filter{Success: &failed})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if result.Total != 1 {
			t.Errorf("List() total = %d, want 1", result.Total)
		}
	})

	t.Run("combined", func(t *testing.T) {
		ok := true
		result, err := repo.List(ctx, Filter{Source: "doorbell", Success: &ok})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if result.Total != 1 {
			t.Errorf("List() total = %d, want 1", result.Total)
		}
	})
}

func TestListClampsLimit(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	result, err := repo.List(ctx, Filter{Limit: 5000})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Limit != 200 {
		t.Errorf("List() limit = %d, want clamped to 200", result.Limit)
	}

	result, err = repo.List(ctx, Filter{Limit: -1, Offset: -3})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Limit != 50 {
		t.Errorf("List() limit = %d, want default 50", result.Limit)
	}
	if result.Offset != 0 {
		t.Errorf("List() offset = %d, want 0", result.Offset)
	}
}

func TestPrune(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))
	ctx := context.Background()

	old := Entry{Source: "weather-station", Success: true, CreatedAt: time.Now().UTC().Add(-48 * time.Hour)}
	fresh := Entry{Source: "weather-station", Success: true}
	if err := repo.Create(ctx, &old); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Create(ctx, &fresh); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	deleted, err := repo.Prune(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 1 {
		t.Errorf("Prune() deleted = %d, want 1", deleted)
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 {
		t.Errorf("List() total after prune = %d, want 1", result.Total)
	}
}

// fakeSnapshotter returns a fixed snapshot for recorder tests.
type fakeSnapshotter struct {
	snap coordinator.Snapshot
}

func (f fakeSnapshotter) Snapshot() coordinator.Snapshot { return f.snap }

func TestRecorderPersistsSuccess(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))

	source := fakeSnapshotter{snap: coordinator.Snapshot{
		Source:    "weather-station",
		Success:   true,
		Data:      map[string]any{"humidity": 55.0},
		Timestamp: time.Now().UTC(),
		Duration:  80 * time.Millisecond,
	}}

	recorder := NewRecorder(repo, source, nil)
	recorder.Record()

	result, err := repo.List(context.Background(), Filter{Source: "weather-station"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("List() total = %d, want 1", result.Total)
	}
	got := result.Entries[0]
	if got.Data["humidity"] != 55.0 {
		t.Errorf("recorded data = %v, want humidity 55", got.Data)
	}
	if got.DurationMS != 80 {
		t.Errorf("recorded duration = %d, want 80", got.DurationMS)
	}
}

func TestRecorderPersistsFailure(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))

	source := fakeSnapshotter{snap: coordinator.Snapshot{
		Source:        "doorbell",
		Success:       false,
		Err:           errors.New("bridge unreachable"),
		Data:          map[string]any{"stale": true},
		FailureStreak: 2,
		Timestamp:     time.Now().UTC(),
	}}

	recorder := NewRecorder(repo, source, nil)
	recorder.Record()

	result, err := repo.List(context.Background(), Filter{Source: "doorbell"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	got := result.Entries[0]
	if got.Success {
		t.Error("recorded entry success = true, want false")
	}
	if got.Error != "bridge unreachable" {
		t.Errorf("recorded error = %q, want %q", got.Error, "bridge unreachable")
	}
	if got.Data != nil {
		t.Error("recorded data should be omitted for failed refreshes")
	}
}

func TestRecorderWrapsScalarPayload(t *testing.T) {
	repo := NewSQLiteRepository(testDB(t))

	source := fakeSnapshotter{snap: coordinator.Snapshot{
		Source:    "meter",
		Success:   true,
		Data:      42.0,
		Timestamp: time.Now().UTC(),
	}}

	NewRecorder(repo, source, nil).Record()

	result, err := repo.List(context.Background(), Filter{Source: "meter"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Entries[0].Data["value"] != 42.0 {
		t.Errorf("recorded data = %v, want value 42", result.Entries[0].Data)
	}
}
