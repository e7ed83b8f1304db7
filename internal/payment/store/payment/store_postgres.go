package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"securecard/internal/payment/models"
	"securecard/internal/platform/postgres"
	id "securecard/pkg/domain"
	"securecard/pkg/platform/sentinel"
	txcontext "securecard/pkg/platform/tx"
)

const paymentColumns = `id, owner_id, order_id, amount, status, card_id, charged_amount, coupon_code, challenge_id, created_at, resolved_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, p *models.Payment) error {
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.UUID(p.ID), uuid.UUID(p.OwnerID), p.OrderID, p.Amount, string(p.Status),
		nullUUID(uuid.UUID(p.CardID)), nullAmount(p), p.CouponCode, nullUUID(uuid.UUID(p.ChallengeID)),
		p.CreatedAt, p.ResolvedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("payment exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, paymentID id.PaymentID) (*models.Payment, error) {
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, uuid.UUID(paymentID))
	return scanPayment(row)
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID id.UserID, statuses ...models.Status) ([]*models.Payment, error) {
	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, string(st))
	}
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, `
		SELECT `+paymentColumns+` FROM payments
		WHERE owner_id = $1 AND status = ANY($2)
		ORDER BY created_at`, uuid.UUID(ownerID), pq.Array(names))
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return out, nil
}

// Execute locks the payment row for fn. Card charges made by fn through the
// same context commit or roll back with the payment.
func (s *PostgresStore) Execute(ctx context.Context, paymentID id.PaymentID, fn func(*models.Payment) error) (*models.Payment, error) {
	if tx, ok := txcontext.From(ctx); ok {
		return s.execute(ctx, tx, paymentID, fn)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin payment tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	p, err := s.execute(txcontext.WithTx(ctx, tx), tx, paymentID, fn)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit payment tx: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) execute(ctx context.Context, tx *sql.Tx, paymentID id.PaymentID, fn func(*models.Payment) error) (*models.Payment, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, uuid.UUID(paymentID))
	p, err := scanPayment(row)
	if err != nil {
		return nil, err
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE payments
		SET status = $2, card_id = $3, charged_amount = $4, coupon_code = $5, challenge_id = $6, resolved_at = $7
		WHERE id = $1`,
		uuid.UUID(p.ID), string(p.Status), nullUUID(uuid.UUID(p.CardID)), nullAmount(p), p.CouponCode,
		nullUUID(uuid.UUID(p.ChallengeID)), p.ResolvedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update payment: %w", err)
	}
	return p, nil
}

func nullUUID(u uuid.UUID) uuid.NullUUID {
	return uuid.NullUUID{UUID: u, Valid: u != uuid.Nil}
}

// nullAmount stores a charged amount only once a card has been chosen.
func nullAmount(p *models.Payment) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: p.ChargedAmount, Valid: !p.CardID.IsNil()}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var (
		p                   models.Payment
		paymentID, ownerID  uuid.UUID
		cardID, challengeID uuid.NullUUID
		charged             decimal.NullDecimal
		status              string
		resolvedAt          sql.NullTime
	)
	err := row.Scan(&paymentID, &ownerID, &p.OrderID, &p.Amount, &status, &cardID, &charged,
		&p.CouponCode, &challengeID, &p.CreatedAt, &resolvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	p.ID = id.PaymentID(paymentID)
	p.OwnerID = id.UserID(ownerID)
	p.Status = models.Status(status)
	if cardID.Valid {
		p.CardID = id.CardID(cardID.UUID)
	}
	if charged.Valid {
		p.ChargedAmount = charged.Decimal
	}
	if challengeID.Valid {
		p.ChallengeID = id.ChallengeID(challengeID.UUID)
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		p.ResolvedAt = &t
	}
	return &p, nil
}
