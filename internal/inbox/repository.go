package inbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-discovery/internal/discovery"
)

// Repository stores discovery results and scan sessions.
type Repository interface {
	// Upsert inserts a result or refreshes an existing one with the same UID.
	Upsert(ctx context.Context, result discovery.Result) error

	// Get returns one result. Returns ErrResultNotFound if absent.
	Get(ctx context.Context, uid string) (*Entry, error)

	// List returns results ordered by last_seen, newest first.
	List(ctx context.Context, filter ListFilter) ([]Entry, error)

	// Delete removes a result. Returns ErrResultNotFound if absent.
	Delete(ctx context.Context, uid string) error

	// RecordSession stores a finished scan session.
	RecordSession(ctx context.Context, outcome discovery.ScanOutcome) error

	// ListSessions returns sessions ordered by start time, newest first.
	ListSessions(ctx context.Context, limit int) ([]Session, error)
}

const upsertResultSQL = `
	INSERT INTO discovery_results (
		uid, kind, device_id, label, endpoint, firmware_version, properties,
		representation_property, session_id, first_seen, last_seen, seen_count
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
	ON CONFLICT(uid) DO UPDATE SET
		kind = excluded.kind,
		device_id = excluded.device_id,
		label = excluded.label,
		endpoint = excluded.endpoint,
		firmware_version = excluded.firmware_version,
		properties = excluded.properties,
		representation_property = excluded.representation_property,
		session_id = excluded.session_id,
		last_seen = excluded.last_seen,
		seen_count = seen_count + 1
`

const upsertSessionSQL = `
	INSERT INTO discovery_sessions (id, kind, endpoint, started_at, ended_at, cause, error, discovered)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		endpoint = CASE WHEN excluded.endpoint != '' THEN excluded.endpoint ELSE endpoint END,
		ended_at = excluded.ended_at,
		cause = excluded.cause,
		error = excluded.error,
		discovered = excluded.discovered
`

const selectResultColumns = `
	SELECT uid, kind, device_id, label, endpoint, firmware_version, properties,
		representation_property, session_id, first_seen, last_seen, seen_count
	FROM discovery_results
`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository creates a repository on an open database. The
// discovery_inbox migration must have been applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Upsert implements Repository.
func (r *SQLiteRepository) Upsert(ctx context.Context, result discovery.Result) error {
	args, err := resultArgs(result)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, upsertResultSQL, args...); err != nil {
		return fmt.Errorf("upserting result %s: %w", result.UID, err)
	}
	return nil
}

// Get implements Repository.
func (r *SQLiteRepository) Get(ctx context.Context, uid string) (*Entry, error) {
	if uid == "" {
		return nil, ErrUIDRequired
	}

	row := r.db.QueryRowContext(ctx, selectResultColumns+" WHERE uid = ?", uid)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("querying result %s: %w", uid, err)
	}
	return entry, nil
}

// List implements Repository.
func (r *SQLiteRepository) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	limit := clampLimit(filter.Limit)

	query := selectResultColumns
	args := []any{}
	if filter.Kind != "" {
		query += " WHERE kind = ?"
		args = append(args, string(filter.Kind))
	}
	query += " ORDER BY last_seen DESC, uid LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying results: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning result: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	return entries, nil
}

// Delete implements Repository.
func (r *SQLiteRepository) Delete(ctx context.Context, uid string) error {
	if uid == "" {
		return ErrUIDRequired
	}

	res, err := r.db.ExecContext(ctx, "DELETE FROM discovery_results WHERE uid = ?", uid)
	if err != nil {
		return fmt.Errorf("deleting result %s: %w", uid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete of %s: %w", uid, err)
	}
	if n == 0 {
		return ErrResultNotFound
	}
	return nil
}

// RecordSession implements Repository.
func (r *SQLiteRepository) RecordSession(ctx context.Context, outcome discovery.ScanOutcome) error {
	if outcome.SessionID == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, upsertSessionSQL, outcomeArgs(outcome)...); err != nil {
		return fmt.Errorf("recording session %s: %w", outcome.SessionID, err)
	}
	return nil
}

// ListSessions implements Repository.
func (r *SQLiteRepository) ListSessions(ctx context.Context, limit int) ([]Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, endpoint, started_at, ended_at, cause, error, discovered
		FROM discovery_sessions
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]Session, 0)
	for rows.Next() {
		var s Session
		var kind, cause string
		var startedAt int64
		var endedAt sql.NullInt64
		if err := rows.Scan(&s.ID, &kind, &s.Endpoint, &startedAt, &endedAt, &cause, &s.Error, &s.Discovered); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		s.Kind = discovery.DeviceKind(kind)
		s.Cause = discovery.EndCause(cause)
		s.StartedAt = fromUnix(startedAt)
		if endedAt.Valid {
			t := fromUnix(endedAt.Int64)
			s.EndedAt = &t
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var e Entry
	var kind, props string
	var firstSeen, lastSeen int64
	if err := row.Scan(&e.UID, &kind, &e.DeviceID, &e.Label, &e.Endpoint, &e.FirmwareVersion,
		&props, &e.RepresentationProperty, &e.SessionID, &firstSeen, &lastSeen, &e.SeenCount); err != nil {
		return nil, err
	}
	e.Kind = discovery.DeviceKind(kind)
	e.FirstSeen = fromUnix(firstSeen)
	e.LastSeen = fromUnix(lastSeen)
	if err := json.Unmarshal([]byte(props), &e.Properties); err != nil {
		return nil, fmt.Errorf("unmarshalling properties of %s: %w", e.UID, err)
	}
	return &e, nil
}

// resultArgs returns the upsertResultSQL arguments for a result.
func resultArgs(r discovery.Result) ([]any, error) {
	if r.UID == "" {
		return nil, ErrUIDRequired
	}

	props := r.Properties
	if props == nil {
		props = map[string]any{}
	}
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("marshalling properties: %w", err)
	}

	seen := r.DiscoveredAt
	if seen.IsZero() {
		seen = time.Now()
	}

	return []any{
		r.UID,
		string(r.Kind),
		int64(r.Identity.ID),
		r.Label,
		r.Identity.Endpoint,
		r.Identity.FirmwareVersion,
		string(propsJSON),
		r.RepresentationProperty,
		r.SessionID,
		seen.Unix(),
		seen.Unix(),
	}, nil
}

// outcomeArgs returns the upsertSessionSQL arguments for a finished session.
func outcomeArgs(o discovery.ScanOutcome) []any {
	var errText string
	if o.Err != nil {
		errText = o.Err.Error()
	}
	ended := o.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}
	return []any{
		o.SessionID,
		string(o.Kind),
		o.Endpoint,
		o.StartedAt.Unix(),
		ended.Unix(),
		string(o.Cause),
		errText,
		o.Discovered,
	}
}

// startArgs returns the upsertSessionSQL arguments for a session that has
// just started.
func startArgs(info discovery.ScanInfo) []any {
	return []any{
		info.SessionID,
		string(info.Kind),
		info.Endpoint,
		info.StartedAt.Unix(),
		nil,
		"",
		"",
		0,
	}
}

func fromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}
