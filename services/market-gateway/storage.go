package main

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"rentchain/dispatch"
)

// ActionStore persists every dispatched action and an audit trail of the
// requests that triggered them. Actions survive restarts so clients can
// poll a submission they made before the gateway bounced.
type ActionStore struct {
	db *sql.DB
}

func NewActionStore(path string) (*ActionStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &ActionStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *ActionStore) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS actions (
            id TEXT PRIMARY KEY,
            kind TEXT NOT NULL,
            account TEXT NOT NULL,
            target_id INTEGER NOT NULL DEFAULT 0,
            tx_hash TEXT,
            status TEXT NOT NULL,
            error TEXT,
            created_at TIMESTAMP NOT NULL,
            updated_at TIMESTAMP NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS audit_log (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            occurred_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            subject TEXT,
            method TEXT NOT NULL,
            path TEXT NOT NULL,
            response_status INTEGER
        );`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *ActionStore) Close() error {
	return s.db.Close()
}

// SaveAction upserts the latest snapshot of an action.
func (s *ActionStore) SaveAction(ctx context.Context, action dispatch.PendingAction) error {
	const stmt = `INSERT INTO actions(id, kind, account, target_id, tx_hash, status, error, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            tx_hash = excluded.tx_hash,
            status = excluded.status,
            error = excluded.error,
            updated_at = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, stmt,
		action.ID,
		string(action.Kind),
		action.Account.Hex(),
		action.TargetID,
		action.TxHash.Hex(),
		string(action.Status),
		action.Error,
		action.CreatedAt,
		action.UpdatedAt,
	)
	return err
}

// StoredAction is an action row as persisted. The json tags mirror
// dispatch.PendingAction so the status endpoint serves the same shape
// before and after a restart.
type StoredAction struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Account   string    `json:"account"`
	TargetID  uint64    `json:"targetId,omitempty"`
	TxHash    string    `json:"txHash,omitempty"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LookupAction returns the persisted snapshot, or nil when unknown.
func (s *ActionStore) LookupAction(ctx context.Context, id string) (*StoredAction, error) {
	const query = `SELECT id, kind, account, target_id, tx_hash, status, error, created_at, updated_at
        FROM actions WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)
	var stored StoredAction
	var txHash, errMsg sql.NullString
	err := row.Scan(&stored.ID, &stored.Kind, &stored.Account, &stored.TargetID,
		&txHash, &stored.Status, &errMsg, &stored.CreatedAt, &stored.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	stored.TxHash = txHash.String
	stored.Error = errMsg.String
	return &stored, nil
}

// InsertAuditLog records one handled request.
func (s *ActionStore) InsertAuditLog(ctx context.Context, subject, method, path string, status int) error {
	const stmt = `INSERT INTO audit_log(occurred_at, subject, method, path, response_status) VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, stmt, time.Now().UTC(), subject, method, path, status)
	return err
}
