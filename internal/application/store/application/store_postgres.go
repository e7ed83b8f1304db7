package application

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"securecard/internal/application/models"
	cardmodels "securecard/internal/card/models"
	"securecard/internal/platform/postgres"
	id "securecard/pkg/domain"
	"securecard/pkg/platform/sentinel"
	txcontext "securecard/pkg/platform/tx"
)

const applicationColumns = `id, applicant_id, category, tier, pan, employment, monthly_income, status, card_id, decided_by, decided_at, created_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, app *models.Application) error {
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO applications (`+applicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		uuid.UUID(app.ID), uuid.UUID(app.ApplicantID), string(app.Category), string(app.Tier),
		app.PAN, string(app.Employment), app.MonthlyIncome, string(app.Status),
		nullableUUID(uuid.UUID(app.CardID)), nullableUUID(uuid.UUID(app.DecidedBy)), app.DecidedAt, app.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("application exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1`, uuid.UUID(appID))
	return scanApplication(row)
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.Status) ([]*models.Application, error) {
	return s.list(ctx, `SELECT `+applicationColumns+` FROM applications WHERE status = $1 ORDER BY created_at`, string(status))
}

func (s *PostgresStore) ListByApplicant(ctx context.Context, applicantID id.UserID) ([]*models.Application, error) {
	return s.list(ctx, `SELECT `+applicationColumns+` FROM applications WHERE applicant_id = $1 ORDER BY created_at`, uuid.UUID(applicantID))
}

func (s *PostgresStore) list(ctx context.Context, query string, arg any) ([]*models.Application, error) {
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Application, 0)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return out, nil
}

// Execute locks the application row for the duration of fn. It joins the
// ambient transaction so card issuance commits with the decision.
func (s *PostgresStore) Execute(ctx context.Context, appID id.ApplicationID, fn func(*models.Application) error) (*models.Application, error) {
	if tx, ok := txcontext.From(ctx); ok {
		return s.execute(ctx, tx, appID, fn)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin application tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	app, err := s.execute(ctx, tx, appID, fn)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit application tx: %w", err)
	}
	return app, nil
}

func (s *PostgresStore) execute(ctx context.Context, tx *sql.Tx, appID id.ApplicationID, fn func(*models.Application) error) (*models.Application, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = $1 FOR UPDATE`, uuid.UUID(appID))
	app, err := scanApplication(row)
	if err != nil {
		return nil, err
	}
	if err := fn(app); err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE applications
		SET status = $2, card_id = $3, decided_by = $4, decided_at = $5
		WHERE id = $1`,
		uuid.UUID(app.ID), string(app.Status), nullableUUID(uuid.UUID(app.CardID)),
		nullableUUID(uuid.UUID(app.DecidedBy)), app.DecidedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update application: %w", err)
	}
	return app, nil
}

func nullableUUID(u uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: u, Valid: u != uuid.Nil}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var (
		a                                  models.Application
		appID, applicantID                 uuid.UUID
		cardID, decidedBy                  uuid.NullUUID
		category, tier, employment, status string
		decidedAt                          sql.NullTime
	)
	err := row.Scan(&appID, &applicantID, &category, &tier, &a.PAN, &employment, &a.MonthlyIncome,
		&status, &cardID, &decidedBy, &decidedAt, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan application: %w", err)
	}
	a.ID = id.ApplicationID(appID)
	a.ApplicantID = id.UserID(applicantID)
	a.Category = cardmodels.Category(category)
	a.Tier = cardmodels.Tier(tier)
	a.Employment = models.Employment(employment)
	a.Status = models.Status(status)
	if cardID.Valid {
		a.CardID = id.CardID(cardID.UUID)
	}
	if decidedBy.Valid {
		a.DecidedBy = id.UserID(decidedBy.UUID)
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		a.DecidedAt = &t
	}
	return &a, nil
}
