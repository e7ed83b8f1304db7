package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"securecard/internal/platform/postgres"
	"securecard/internal/support/models"
	id "securecard/pkg/domain"
	"securecard/pkg/platform/sentinel"
	txcontext "securecard/pkg/platform/tx"
)

const queryColumns = `id, user_id, email, subject, message, status, reply, created_at, resolved_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, q *models.Query) error {
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO support_queries (`+queryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.UUID(q.ID), uuid.UUID(q.UserID), q.Email, q.Subject, q.Message,
		string(q.Status), q.Reply, q.CreatedAt, q.ResolvedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("query exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert query: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, queryID id.QueryID) (*models.Query, error) {
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+queryColumns+` FROM support_queries WHERE id = $1`, uuid.UUID(queryID))
	return scanQuery(row)
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.Status) ([]*models.Query, error) {
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx,
		`SELECT `+queryColumns+` FROM support_queries WHERE status = $1 ORDER BY created_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Query, 0)
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	return out, nil
}

// Execute locks the query row for the duration of fn, joining the ambient
// transaction when there is one.
func (s *PostgresStore) Execute(ctx context.Context, queryID id.QueryID, fn func(*models.Query) error) (*models.Query, error) {
	if tx, ok := txcontext.From(ctx); ok {
		return s.execute(ctx, tx, queryID, fn)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin query tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	q, err := s.execute(ctx, tx, queryID, fn)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit query tx: %w", err)
	}
	return q, nil
}

func (s *PostgresStore) execute(ctx context.Context, tx *sql.Tx, queryID id.QueryID, fn func(*models.Query) error) (*models.Query, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+queryColumns+` FROM support_queries WHERE id = $1 FOR UPDATE`, uuid.UUID(queryID))
	q, err := scanQuery(row)
	if err != nil {
		return nil, err
	}
	if err := fn(q); err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE support_queries SET status = $2, reply = $3, resolved_at = $4 WHERE id = $1`,
		uuid.UUID(q.ID), string(q.Status), q.Reply, q.ResolvedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update query: %w", err)
	}
	return q, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuery(row rowScanner) (*models.Query, error) {
	var (
		q              models.Query
		queryID, owner uuid.UUID
		status         string
		resolvedAt     sql.NullTime
	)
	err := row.Scan(&queryID, &owner, &q.Email, &q.Subject, &q.Message, &status, &q.Reply, &q.CreatedAt, &resolvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan query: %w", err)
	}
	q.ID = id.QueryID(queryID)
	q.UserID = id.UserID(owner)
	q.Status = models.Status(status)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		q.ResolvedAt = &t
	}
	return &q, nil
}
