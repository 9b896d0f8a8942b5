package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SQLiteRepository stores refresh history in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new refresh history repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new history entry. CreatedAt is generated if zero;
// the row ID is written back to entry.ID.
func (r *SQLiteRepository) Create(ctx context.Context, entry *Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var dataJSON *string
	if entry.Data != nil {
		b, err := json.Marshal(entry.Data)
		if err != nil {
			return fmt.Errorf("marshalling history data: %w", err)
		}
		s := string(b)
		dataJSON = &s
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_history (source, success, error, data, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Source, boolToInt(entry.Success),
		nullableString(entry.Error), dataJSON,
		entry.DurationMS,
		entry.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting history entry: %w", err)
	}

	if id, err := res.LastInsertId(); err == nil {
		entry.ID = id
	}

	return nil
}

// List returns history entries matching the filter, newest first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	// Clamp limit.
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for history queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any

	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}
	if filter.Success != nil {
		conditions = append(conditions, "success = ?")
		args = append(args, boolToInt(*filter.Success))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM refresh_history %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting history entries: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, source, success, error, data, duration_ms, created_at FROM refresh_history %s ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var success int
		var errText, dataJSON sql.NullString
		var createdAt string

		if err := rows.Scan(&entry.ID, &entry.Source, &success,
			&errText, &dataJSON, &entry.DurationMS, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning history entry: %w", err)
		}

		entry.Success = success != 0
		if errText.Valid {
			entry.Error = errText.String
		}
		if dataJSON.Valid && dataJSON.String != "" {
			var data map[string]any
			if json.Unmarshal([]byte(dataJSON.String), &data) == nil {
				entry.Data = data
			}
		}

		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing history timestamp %q: %w", createdAt, err)
		}
		entry.CreatedAt = t

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history entries: %w", err)
	}

	if entries == nil {
		entries = []Entry{}
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// Prune deletes entries recorded before the cutoff and returns the count.
// Intended for periodic retention sweeps.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM refresh_history WHERE created_at < ?",
		before.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("pruning history entries: %w", err)
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting pruned entries: %w", err)
	}

	return deleted, nil
}

// nullableString returns nil for empty strings, or the string otherwise.
// Used for nullable TEXT columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
