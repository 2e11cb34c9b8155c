// Package sqlite implements workflow's MessageStore, ConversationStore, and
// ExecutionStore over a single local SQLite file, the pure-Go driver and
// single-connection-pool pattern nevindra-oasis's own sqlite store uses to
// sidestep SQLITE_BUSY under concurrent writers.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chatforge/workflow/workflow"

	_ "modernc.org/sqlite"
)

// Store implements workflow.MessageStore, workflow.ConversationStore, and
// workflow.ExecutionStore backed by one SQLite file.
type Store struct {
	db *sql.DB
}

var (
	_ workflow.MessageStore      = (*Store)(nil)
	_ workflow.ConversationStore = (*Store)(nil)
	_ workflow.ExecutionStore    = (*Store)(nil)
)

// Open opens (creating if absent) the SQLite file at path. A single
// connection is kept open for the lifetime of the Store, serializing every
// access the way nevindra-oasis's sqlite store does, since SQLite's own
// file locking otherwise produces spurious SQLITE_BUSY errors under
// concurrent node executions sharing one Store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return &Store{db: db}, nil
}

// Init creates every table this Store depends on. Safe to call repeatedly.
func (s *Store) Init(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			message_count INTEGER NOT NULL DEFAULT 0,
			cumulative_tokens INTEGER NOT NULL DEFAULT 0,
			last_active_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			blueprint_ref TEXT,
			user_id TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			finished_at INTEGER,
			tokens INTEGER NOT NULL DEFAULT 0,
			cost REAL NOT NULL DEFAULT 0,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_executions_user ON executions(user_id)`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: init: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append inserts one message row for conversationID.
func (s *Store) Append(ctx context.Context, conversationID, role, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		conversationID, role, content, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite: append message: %w", err)
	}
	return nil
}

// UpdateAggregates folds delta into conversationID's running totals,
// creating the row on first use.
func (s *Store) UpdateAggregates(ctx context.Context, conversationID string, delta workflow.ConversationAggregateDelta) (workflow.ConversationSummary, error) {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, message_count, cumulative_tokens, last_active_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			message_count = message_count + excluded.message_count,
			cumulative_tokens = cumulative_tokens + excluded.cumulative_tokens,
			last_active_at = excluded.last_active_at
	`, conversationID, delta.MessageCount, delta.TokensUsed, now.Unix())
	if err != nil {
		return workflow.ConversationSummary{}, fmt.Errorf("sqlite: update conversation aggregates: %w", err)
	}

	var count, tokens int
	var lastActive int64
	row := s.db.QueryRowContext(ctx, `SELECT message_count, cumulative_tokens, last_active_at FROM conversations WHERE id = ?`, conversationID)
	if err := row.Scan(&count, &tokens, &lastActive); err != nil {
		return workflow.ConversationSummary{}, fmt.Errorf("sqlite: read conversation aggregates: %w", err)
	}

	return workflow.ConversationSummary{
		ID:            conversationID,
		MessageCount:  count,
		CumulativeUse: tokens,
		LastActiveAt:  time.Unix(lastActive, 0).UTC(),
	}, nil
}

// Create inserts a new WorkflowExecution row.
func (s *Store) Create(ctx context.Context, exec workflow.WorkflowExecution) error {
	errJSON, err := marshalExecError(exec.Error)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO executions (id, blueprint_ref, user_id, status, started_at, finished_at, tokens, cost, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, exec.ID, exec.BlueprintRef, exec.UserID, string(exec.Status), exec.StartedAt.Unix(),
		finishedAtUnix(exec.FinishedAt), exec.Tokens, exec.Cost, errJSON)
	if err != nil {
		return fmt.Errorf("sqlite: create execution: %w", err)
	}
	return nil
}

// Update overwrites an existing WorkflowExecution row by ID.
func (s *Store) Update(ctx context.Context, exec workflow.WorkflowExecution) error {
	errJSON, err := marshalExecError(exec.Error)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE executions SET blueprint_ref = ?, user_id = ?, status = ?, started_at = ?,
			finished_at = ?, tokens = ?, cost = ?, error = ?
		WHERE id = ?
	`, exec.BlueprintRef, exec.UserID, string(exec.Status), exec.StartedAt.Unix(),
		finishedAtUnix(exec.FinishedAt), exec.Tokens, exec.Cost, errJSON, exec.ID)
	if err != nil {
		return fmt.Errorf("sqlite: update execution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return workflow.NotFoundf("execution %s", exec.ID)
	}
	return nil
}

// Get fetches one WorkflowExecution by ID.
func (s *Store) Get(ctx context.Context, id string) (workflow.WorkflowExecution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, blueprint_ref, user_id, status, started_at, finished_at, tokens, cost, error
		FROM executions WHERE id = ?
	`, id)
	exec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return workflow.WorkflowExecution{}, workflow.NotFoundf("execution %s", id)
	}
	if err != nil {
		return workflow.WorkflowExecution{}, fmt.Errorf("sqlite: get execution: %w", err)
	}
	return exec, nil
}

// List returns executions matching filter, most recently started first.
func (s *Store) List(ctx context.Context, filter workflow.ExecutionFilter) ([]workflow.WorkflowExecution, error) {
	query := `SELECT id, blueprint_ref, user_id, status, started_at, finished_at, tokens, cost, error FROM executions WHERE 1=1`
	args := []interface{}{}
	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list executions: %w", err)
	}
	defer rows.Close()

	var out []workflow.WorkflowExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan execution: %w", err)
		}
		out = append(out, exec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanExecution(row scanner) (workflow.WorkflowExecution, error) {
	var exec workflow.WorkflowExecution
	var blueprintRef, status sql.NullString
	var startedAt int64
	var finishedAt sql.NullInt64
	var errJSON sql.NullString

	if err := row.Scan(&exec.ID, &blueprintRef, &exec.UserID, &status, &startedAt, &finishedAt, &exec.Tokens, &exec.Cost, &errJSON); err != nil {
		return workflow.WorkflowExecution{}, err
	}

	exec.BlueprintRef = blueprintRef.String
	exec.Status = workflow.ExecutionStatus(status.String)
	exec.StartedAt = time.Unix(startedAt, 0).UTC()
	if finishedAt.Valid {
		t := time.Unix(finishedAt.Int64, 0).UTC()
		exec.FinishedAt = &t
	}
	if errJSON.Valid && errJSON.String != "" {
		var execErr workflow.ExecutionError
		if err := json.Unmarshal([]byte(errJSON.String), &execErr); err != nil {
			return workflow.WorkflowExecution{}, fmt.Errorf("unmarshal execution error: %w", err)
		}
		exec.Error = &execErr
	}
	return exec, nil
}

func finishedAtUnix(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func marshalExecError(execErr *workflow.ExecutionError) (interface{}, error) {
	if execErr == nil {
		return nil, nil
	}
	data, err := json.Marshal(execErr)
	if err != nil {
		return nil, fmt.Errorf("marshal execution error: %w", err)
	}
	return string(data), nil
}
