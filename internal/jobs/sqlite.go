package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/google/uuid"

	"github.com/agentcore/agentcore/pkg/models"
)

// SQLiteConfig holds connection pool tuning for the work-item store.
type SQLiteConfig struct {
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DefaultSQLiteConfig returns sane defaults for a single-file store shared
// by one supervisor process and its workers.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{MaxOpenConns: 1, ConnMaxLifetime: time.Hour}
}

// SQLiteStore implements Store on a modernc.org/sqlite (pure-Go, no cgo)
// database. Claim is the single UPDATE...RETURNING transaction named in
// spec §6, so double-claims by concurrent worker processes are serialized
// by SQLite itself rather than by an in-process lock.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens path (created if absent) and ensures the work_items
// table exists.
func NewSQLiteStore(path string, config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("jobs: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("jobs: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS work_items (
	id TEXT PRIMARY KEY,
	queue TEXT NOT NULL,
	payload TEXT NOT NULL,
	status TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	max_attempts INTEGER NOT NULL DEFAULT 3,
	owner TEXT,
	result TEXT,
	error TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_work_items_claim ON work_items(queue, status, created_at);
`

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Enqueue(ctx context.Context, queue, payload string, maxAttempts int) (models.WorkItem, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	now := time.Now().Unix()
	item := models.WorkItem{
		ID:          uuid.NewString(),
		Queue:       queue,
		Payload:     payload,
		Status:      models.WorkPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Unix(now, 0),
		UpdatedAt:   time.Unix(now, 0),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO work_items (id, queue, payload, status, attempts, max_attempts, owner, result, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, ?, NULL, NULL, NULL, ?, ?)
	`, item.ID, item.Queue, item.Payload, string(item.Status), item.MaxAttempts, now, now)
	if err != nil {
		return models.WorkItem{}, fmt.Errorf("jobs: enqueue: %w", err)
	}
	return item, nil
}

// Claim runs the exact atomic claim transaction named in spec §6: a single
// UPDATE...WHERE id=(SELECT...) RETURNING * statement, so the backing
// SQLite connection serializes concurrent claimants without an
// application-level lock.
func (s *SQLiteStore) Claim(ctx context.Context, queue, owner string) (*models.WorkItem, error) {
	now := time.Now().Unix()
	row := s.db.QueryRowContext(ctx, `
		UPDATE work_items
		SET status='running', owner=?, updated_at=?
		WHERE id=(
			SELECT id FROM work_items
			WHERE queue=? AND status='pending'
			ORDER BY created_at LIMIT 1
		)
		RETURNING id, queue, payload, status, attempts, max_attempts, owner, result, error, created_at, updated_at
	`, owner, now, queue)

	item, err := scanWorkItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("jobs: claim: %w", err)
	}
	return item, nil
}

func (s *SQLiteStore) Complete(ctx context.Context, itemID, result string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE work_items SET status='completed', result=?, updated_at=? WHERE id=?
	`, result, time.Now().Unix(), itemID)
	if err != nil {
		return fmt.Errorf("jobs: complete: %w", err)
	}
	return nil
}

// Fail increments attempts and either returns the item to Pending (clearing
// owner) for a future claim, or moves it to Failed once max_attempts is
// exhausted — a single statement per branch, chosen in Go rather than SQL
// since the decision depends on comparing two columns already in hand only
// after the increment.
func (s *SQLiteStore) Fail(ctx context.Context, itemID, errMsg string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("jobs: fail: begin: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	if err := tx.QueryRowContext(ctx, `SELECT attempts, max_attempts FROM work_items WHERE id=?`, itemID).
		Scan(&attempts, &maxAttempts); err != nil {
		if err == sql.ErrNoRows {
			return nil
		}
		return fmt.Errorf("jobs: fail: read: %w", err)
	}

	attempts++
	now := time.Now().Unix()
	if attempts < maxAttempts {
		_, err = tx.ExecContext(ctx, `
			UPDATE work_items SET status='pending', owner=NULL, attempts=?, updated_at=? WHERE id=?
		`, attempts, now, itemID)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE work_items SET status='failed', attempts=?, error=?, updated_at=? WHERE id=?
		`, attempts, errMsg, now, itemID)
	}
	if err != nil {
		return fmt.Errorf("jobs: fail: update: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context, itemID string) (models.WorkItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, queue, payload, status, attempts, max_attempts, owner, result, error, created_at, updated_at
		FROM work_items WHERE id=?
	`, itemID)
	item, err := scanWorkItem(row)
	if err == sql.ErrNoRows {
		return models.WorkItem{}, nil
	}
	if err != nil {
		return models.WorkItem{}, fmt.Errorf("jobs: get: %w", err)
	}
	return *item, nil
}

func (s *SQLiteStore) List(ctx context.Context, queue string) ([]models.WorkItem, error) {
	query := `
		SELECT id, queue, payload, status, attempts, max_attempts, owner, result, error, created_at, updated_at
		FROM work_items`
	var args []any
	if queue != "" {
		query += ` WHERE queue=?`
		args = append(args, queue)
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("jobs: list: %w", err)
	}
	defer rows.Close()

	var out []models.WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("jobs: list: scan: %w", err)
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkItem(scanner rowScanner) (*models.WorkItem, error) {
	var (
		item         models.WorkItem
		status       string
		owner        sql.NullString
		result       sql.NullString
		errMsg       sql.NullString
		createdAt    int64
		updatedAt    int64
	)
	if err := scanner.Scan(
		&item.ID, &item.Queue, &item.Payload, &status, &item.Attempts, &item.MaxAttempts,
		&owner, &result, &errMsg, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	item.Status = models.WorkStatus(status)
	item.Owner = owner.String
	item.Result = result.String
	item.Error = errMsg.String
	item.CreatedAt = time.Unix(createdAt, 0)
	item.UpdatedAt = time.Unix(updatedAt, 0)
	return &item, nil
}
