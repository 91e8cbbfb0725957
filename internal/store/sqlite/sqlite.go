package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/calldesk/internal/store"
)

// Schema creates every table the store needs. It is safe to apply twice.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	identity   TEXT PRIMARY KEY,
	balance    INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS calls (
	id               TEXT PRIMARY KEY,
	direction        TEXT NOT NULL,
	status           TEXT NOT NULL,
	source_e164      TEXT NOT NULL DEFAULT '',
	destination_e164 TEXT NOT NULL DEFAULT '',
	room_name        TEXT NOT NULL DEFAULT '',
	participant      TEXT NOT NULL DEFAULT '',
	phone_number_id  TEXT NOT NULL DEFAULT '',
	identity         TEXT NOT NULL DEFAULT '',
	started_at       DATETIME NOT NULL,
	ended_at         DATETIME,
	duration_seconds INTEGER NOT NULL DEFAULT 0,
	metadata         TEXT
);

CREATE INDEX IF NOT EXISTS idx_calls_started_at ON calls (started_at DESC);

CREATE TABLE IF NOT EXISTS transcript_segments (
	id                   TEXT PRIMARY KEY,
	call_id              TEXT NOT NULL REFERENCES calls (id),
	participant_identity TEXT NOT NULL DEFAULT '',
	start_time           REAL NOT NULL,
	text                 TEXT NOT NULL,
	created_at           DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_segments_call ON transcript_segments (call_id, start_time);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to apply schema without migrations.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with single connection; it also keeps ":memory:" to one database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Run setup function (e.g., apply schema)
	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate applies Schema.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== AccountStore implementation ====

// EnsureAccount returns the account for identity, creating it when missing.
func (s *SQLiteStore) EnsureAccount(ctx context.Context, identity string, initialBalance int64) (*store.Account, error) {
	query := `
		INSERT INTO accounts (identity, balance)
		VALUES (?, ?)
		ON CONFLICT (identity) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query, identity, initialBalance); err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	return s.GetAccount(ctx, identity)
}

// GetAccount retrieves an account by identity.
func (s *SQLiteStore) GetAccount(ctx context.Context, identity string) (*store.Account, error) {
	query := `
		SELECT identity, balance, created_at
		FROM accounts
		WHERE identity = ?
	`
	var acc store.Account
	err := s.db.QueryRowContext(ctx, query, identity).Scan(&acc.Identity, &acc.Balance, &acc.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("account %q: %w", identity, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query account: %w", err)
	}
	return &acc, nil
}

// ==== CallStore implementation ====

// CreateOutboundCall charges the caller's account and records the call.
func (s *SQLiteStore) CreateOutboundCall(ctx context.Context, call *store.Call, cost int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = balance - ?
		WHERE identity = ? AND balance >= ?
	`, cost, call.Identity, cost)
	if err != nil {
		return fmt.Errorf("charge account: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("charge account: %w", err)
	}
	if rows == 0 {
		return store.ErrInsufficientBalance
	}

	if err := insertCall(ctx, tx, call); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CreateCall records a call without charging.
func (s *SQLiteStore) CreateCall(ctx context.Context, call *store.Call) error {
	return insertCall(ctx, s.db, call)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertCall(ctx context.Context, db execer, call *store.Call) error {
	metadata, err := encodeMetadata(call.Metadata)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO calls (id, direction, status, source_e164, destination_e164, room_name,
			participant, phone_number_id, identity, started_at, ended_at, duration_seconds, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.ExecContext(ctx, query,
		call.ID,
		call.Direction,
		call.Status,
		call.SourceE164,
		call.DestinationE164,
		call.RoomName,
		call.Participant,
		call.PhoneNumberID,
		call.Identity,
		call.StartedAt.UTC(),
		nullTime(call.EndedAt),
		call.DurationSeconds,
		metadata,
	)
	if err != nil {
		return fmt.Errorf("insert call: %w", err)
	}
	return nil
}

// UpdateCall updates status, end time and duration of a call.
func (s *SQLiteStore) UpdateCall(ctx context.Context, call *store.Call) error {
	query := `
		UPDATE calls
		SET status = ?, ended_at = ?, duration_seconds = ?
		WHERE id = ?
	`
	result, err := s.db.ExecContext(ctx, query, call.Status, nullTime(call.EndedAt), call.DurationSeconds, call.ID)
	if err != nil {
		return fmt.Errorf("update call: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("call %q: %w", call.ID, store.ErrNotFound)
	}
	return nil
}

const callColumns = `id, direction, status, source_e164, destination_e164, room_name,
	participant, phone_number_id, identity, started_at, ended_at, duration_seconds, metadata`

// GetCall retrieves a call by ID.
func (s *SQLiteStore) GetCall(ctx context.Context, id string) (*store.Call, error) {
	query := `SELECT ` + callColumns + ` FROM calls WHERE id = ?`
	call, err := scanCall(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("call %q: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query call: %w", err)
	}
	return call, nil
}

// ListCalls lists calls newest first with offset pagination.
func (s *SQLiteStore) ListCalls(ctx context.Context, filter store.CallFilter) ([]*store.Call, error) {
	var (
		where []string
		args  []any
	)
	if filter.Direction != "" {
		where = append(where, "direction = ?")
		args = append(args, filter.Direction)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := `SELECT ` + callColumns + ` FROM calls`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY started_at DESC, id ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = -1 // no limit
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	var calls []*store.Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		calls = append(calls, call)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return calls, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (*store.Call, error) {
	var (
		call     store.Call
		endedAt  sql.NullTime
		metadata sql.NullString
	)
	err := row.Scan(
		&call.ID,
		&call.Direction,
		&call.Status,
		&call.SourceE164,
		&call.DestinationE164,
		&call.RoomName,
		&call.Participant,
		&call.PhoneNumberID,
		&call.Identity,
		&call.StartedAt,
		&endedAt,
		&call.DurationSeconds,
		&metadata,
	)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		call.EndedAt = &t
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &call.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return &call, nil
}

// ==== TranscriptStore implementation ====

// AddSegment appends a segment to a call transcript.
func (s *SQLiteStore) AddSegment(ctx context.Context, seg *store.TranscriptSegment) error {
	query := `
		INSERT INTO transcript_segments (id, call_id, participant_identity, start_time, text)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query, seg.ID, seg.CallID, seg.ParticipantIdentity, seg.StartTime, seg.Text)
	if err != nil {
		return fmt.Errorf("insert segment: %w", err)
	}
	return nil
}

// ListSegments returns a call's segments ordered by start time.
func (s *SQLiteStore) ListSegments(ctx context.Context, callID string) ([]*store.TranscriptSegment, error) {
	query := `
		SELECT id, call_id, participant_identity, start_time, text, created_at
		FROM transcript_segments
		WHERE call_id = ?
		ORDER BY start_time ASC, rowid ASC
	`
	rows, err := s.db.QueryContext(ctx, query, callID)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var segments []*store.TranscriptSegment
	for rows.Next() {
		var seg store.TranscriptSegment
		if err := rows.Scan(&seg.ID, &seg.CallID, &seg.ParticipantIdentity, &seg.StartTime, &seg.Text, &seg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segments = append(segments, &seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segments: %w", err)
	}
	return segments, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func encodeMetadata(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
