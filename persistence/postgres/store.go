// Package postgres implements workflow's MessageStore, ConversationStore,
// and ExecutionStore over PostgreSQL via pgx, the externally-owned
// *pgxpool.Pool injection pattern nevindra-oasis's own postgres store uses.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chatforge/workflow/workflow"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store implements workflow.MessageStore, workflow.ConversationStore, and
// workflow.ExecutionStore backed by PostgreSQL.
//
// The caller creates and closes the pool; Store never does either.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ workflow.MessageStore      = (*Store)(nil)
	_ workflow.ConversationStore = (*Store)(nil)
	_ workflow.ExecutionStore    = (*Store)(nil)
)

// New wraps an existing pgxpool.Pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates every table this Store depends on. Safe to call repeatedly.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id BIGSERIAL PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages(conversation_id)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			message_count INTEGER NOT NULL DEFAULT 0,
			cumulative_tokens INTEGER NOT NULL DEFAULT 0,
			last_active_at BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS executions (
			id TEXT PRIMARY KEY,
			blueprint_ref TEXT NOT NULL DEFAULT '',
			user_id TEXT NOT NULL,
			status TEXT NOT NULL,
			started_at BIGINT NOT NULL,
			finished_at BIGINT,
			tokens INTEGER NOT NULL DEFAULT 0,
			cost DOUBLE PRECISION NOT NULL DEFAULT 0,
			error JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS executions_user_idx ON executions(user_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// Append inserts one message row for conversationID.
func (s *Store) Append(ctx context.Context, conversationID, role, content string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (conversation_id, role, content, created_at) VALUES ($1, $2, $3, $4)`,
		conversationID, role, content, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("postgres: append message: %w", err)
	}
	return nil
}

// UpdateAggregates folds delta into conversationID's running totals,
// creating the row on first use.
func (s *Store) UpdateAggregates(ctx context.Context, conversationID string, delta workflow.ConversationAggregateDelta) (workflow.ConversationSummary, error) {
	now := time.Now()
	var count, tokens int
	var lastActive int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (id, message_count, cumulative_tokens, last_active_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			message_count = conversations.message_count + excluded.message_count,
			cumulative_tokens = conversations.cumulative_tokens + excluded.cumulative_tokens,
			last_active_at = excluded.last_active_at
		RETURNING message_count, cumulative_tokens, last_active_at
	`, conversationID, delta.MessageCount, delta.TokensUsed, now.Unix()).Scan(&count, &tokens, &lastActive)
	if err != nil {
		return workflow.ConversationSummary{}, fmt.Errorf("postgres: update conversation aggregates: %w", err)
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
	_, err = s.pool.Exec(ctx, `
		INSERT INTO executions (id, blueprint_ref, user_id, status, started_at, finished_at, tokens, cost, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, exec.ID, exec.BlueprintRef, exec.UserID, string(exec.Status), exec.StartedAt.Unix(),
		finishedAtUnix(exec.FinishedAt), exec.Tokens, exec.Cost, errJSON)
	if err != nil {
		return fmt.Errorf("postgres: create execution: %w", err)
	}
	return nil
}

// Update overwrites an existing WorkflowExecution row by ID.
func (s *Store) Update(ctx context.Context, exec workflow.WorkflowExecution) error {
	errJSON, err := marshalExecError(exec.Error)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE executions SET blueprint_ref = $1, user_id = $2, status = $3, started_at = $4,
			finished_at = $5, tokens = $6, cost = $7, error = $8
		WHERE id = $9
	`, exec.BlueprintRef, exec.UserID, string(exec.Status), exec.StartedAt.Unix(),
		finishedAtUnix(exec.FinishedAt), exec.Tokens, exec.Cost, errJSON, exec.ID)
	if err != nil {
		return fmt.Errorf("postgres: update execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return workflow.NotFoundf("execution %s", exec.ID)
	}
	return nil
}

// Get fetches one WorkflowExecution by ID.
func (s *Store) Get(ctx context.Context, id string) (workflow.WorkflowExecution, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, blueprint_ref, user_id, status, started_at, finished_at, tokens, cost, error
		FROM executions WHERE id = $1
	`, id)
	exec, err := scanExecution(row)
	if err == pgx.ErrNoRows {
		return workflow.WorkflowExecution{}, workflow.NotFoundf("execution %s", id)
	}
	if err != nil {
		return workflow.WorkflowExecution{}, fmt.Errorf("postgres: get execution: %w", err)
	}
	return exec, nil
}

// List returns executions matching filter, most recently started first.
func (s *Store) List(ctx context.Context, filter workflow.ExecutionFilter) ([]workflow.WorkflowExecution, error) {
	query := `SELECT id, blueprint_ref, user_id, status, started_at, finished_at, tokens, cost, error FROM executions WHERE TRUE`
	args := []interface{}{}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY started_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	var out []workflow.WorkflowExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
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
	var blueprintRef, status string
	var startedAt int64
	var finishedAt *int64
	var errJSON []byte

	if err := row.Scan(&exec.ID, &blueprintRef, &exec.UserID, &status, &startedAt, &finishedAt, &exec.Tokens, &exec.Cost, &errJSON); err != nil {
		return workflow.WorkflowExecution{}, err
	}

	exec.BlueprintRef = blueprintRef
	exec.Status = workflow.ExecutionStatus(status)
	exec.StartedAt = time.Unix(startedAt, 0).UTC()
	if finishedAt != nil {
		t := time.Unix(*finishedAt, 0).UTC()
		exec.FinishedAt = &t
	}
	if len(errJSON) > 0 {
		var execErr workflow.ExecutionError
		if err := json.Unmarshal(errJSON, &execErr); err != nil {
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
	return data, nil
}
