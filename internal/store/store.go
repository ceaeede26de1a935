package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/registrylabs/registry-cli/internal/engine"
)

// Store is the durable attempt journal backing retry short-circuiting and
// late-receipt application. One row per attempt; the JSON payload is the
// source of truth, the indexed columns exist for querying.
type Store struct {
	db   *sql.DB
	lock *flock.Flock
}

func Open(path, lockPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create attempt store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create attempt lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open attempt sqlite: %w", err)
	}

	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS attempts (
			attempt_id TEXT PRIMARY KEY,
			action_key TEXT NOT NULL,
			state TEXT NOT NULL,
			tx_hash TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_attempts_key_updated ON attempts(action_key, updated_at DESC);",
		"CREATE INDEX IF NOT EXISTS idx_attempts_state_updated ON attempts(state, updated_at DESC);",
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init attempt schema: %w", err)
		}
	}
	return &Store{db: db, lock: flock.New(lockPath)}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) SaveAttempt(attempt engine.SubmissionAttempt) error {
	if strings.TrimSpace(attempt.AttemptID) == "" {
		return fmt.Errorf("save attempt: missing attempt id")
	}
	locked, err := s.lock.TryLockContext(context.Background(), 5*time.Second)
	if err != nil {
		return fmt.Errorf("lock attempt store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock attempt store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()

	payload, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	createdUnix, _ := parseRFC3339Unix(attempt.CreatedAt)
	updatedUnix, _ := parseRFC3339Unix(attempt.UpdatedAt)
	if createdUnix == 0 {
		createdUnix = time.Now().UTC().Unix()
	}
	if updatedUnix == 0 {
		updatedUnix = time.Now().UTC().Unix()
	}

	_, err = s.db.Exec(`
		INSERT INTO attempts (attempt_id, action_key, state, tx_hash, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(attempt_id) DO UPDATE SET
			action_key=excluded.action_key,
			state=excluded.state,
			tx_hash=excluded.tx_hash,
			updated_at=excluded.updated_at,
			payload=excluded.payload
	`, attempt.AttemptID, attempt.ActionKey, string(attempt.State), attempt.TxHash, createdUnix, updatedUnix, payload)
	if err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}
	return nil
}

// LatestAttempt returns the most recently updated attempt for the action
// key, preferring the most recently created one on equal timestamps.
func (s *Store) LatestAttempt(actionKey string) (engine.SubmissionAttempt, bool, error) {
	var payload []byte
	err := s.db.QueryRow(`
		SELECT payload FROM attempts
		WHERE action_key = ?
		ORDER BY updated_at DESC, created_at DESC, attempt_id DESC
		LIMIT 1
	`, actionKey).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return engine.SubmissionAttempt{}, false, nil
		}
		return engine.SubmissionAttempt{}, false, fmt.Errorf("read latest attempt: %w", err)
	}
	attempt, err := decodeAttempt(payload)
	if err != nil {
		return engine.SubmissionAttempt{}, false, err
	}
	return attempt, true, nil
}

func (s *Store) Get(attemptID string) (engine.SubmissionAttempt, error) {
	var payload []byte
	err := s.db.QueryRow("SELECT payload FROM attempts WHERE attempt_id = ?", attemptID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return engine.SubmissionAttempt{}, fmt.Errorf("attempt not found: %s", attemptID)
		}
		return engine.SubmissionAttempt{}, fmt.Errorf("read attempt: %w", err)
	}
	return decodeAttempt(payload)
}

func (s *Store) List(state string, limit int) ([]engine.SubmissionAttempt, error) {
	if limit <= 0 {
		limit = 20
	}
	var (
		rows *sql.Rows
		err  error
	)
	if strings.TrimSpace(state) == "" {
		rows, err = s.db.Query("SELECT payload FROM attempts ORDER BY updated_at DESC LIMIT ?", limit)
	} else {
		rows, err = s.db.Query("SELECT payload FROM attempts WHERE state = ? ORDER BY updated_at DESC LIMIT ?", state, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	attempts := make([]engine.SubmissionAttempt, 0)
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan attempt row: %w", err)
		}
		attempt, err := decodeAttempt(payload)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt rows: %w", err)
	}
	return attempts, nil
}

func decodeAttempt(payload []byte) (engine.SubmissionAttempt, error) {
	var attempt engine.SubmissionAttempt
	if err := json.Unmarshal(payload, &attempt); err != nil {
		return engine.SubmissionAttempt{}, fmt.Errorf("decode attempt payload: %w", err)
	}
	return attempt, nil
}

func parseRFC3339Unix(v string) (int64, bool) {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return 0, false
	}
	return t.UTC().Unix(), true
}
