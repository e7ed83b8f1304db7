package card

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"securecard/internal/card/models"
	id "securecard/pkg/domain"
	"securecard/pkg/platform/sentinel"
	txcontext "securecard/pkg/platform/tx"
)

const cardColumns = `id, owner_id, number, category, tier, balance, state, status, application_id, created_at, updated_at`

// PostgresStore persists cards and their transactions. Execute locks the row
// with SELECT ... FOR UPDATE inside the ambient transaction, or inside its own
// short transaction when none is present.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, card *models.Card) error {
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO cards (`+cardColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.UUID(card.ID), uuid.UUID(card.OwnerID), card.Number, string(card.Category), string(card.Tier),
		card.Balance, card.State.String(), string(card.Status), uuid.UUID(card.ApplicationID),
		card.CreatedAt, card.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			if pqErr.Constraint == "cards_application_id_key" {
				return fmt.Errorf("application already has a card: %w", sentinel.ErrAlreadyUsed)
			}
			return fmt.Errorf("card number taken: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert card: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, cardID id.CardID) (*models.Card, error) {
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE id = $1`, uuid.UUID(cardID))
	return scanCard(row)
}

func (s *PostgresStore) FindByApplication(ctx context.Context, applicationID id.ApplicationID) (*models.Card, error) {
	row := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE application_id = $1`, uuid.UUID(applicationID))
	return scanCard(row)
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID id.UserID) ([]*models.Card, error) {
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE owner_id = $1 ORDER BY created_at`, uuid.UUID(ownerID))
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Card, 0)
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Execute(ctx context.Context, cardID id.CardID, fn func(*models.Card) error) (*models.Card, error) {
	if tx, ok := txcontext.From(ctx); ok {
		return s.execute(ctx, tx, cardID, fn)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin card tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	card, err := s.execute(ctx, tx, cardID, fn)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit card tx: %w", err)
	}
	return card, nil
}

func (s *PostgresStore) execute(ctx context.Context, tx *sql.Tx, cardID id.CardID, fn func(*models.Card) error) (*models.Card, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+cardColumns+` FROM cards WHERE id = $1 FOR UPDATE`, uuid.UUID(cardID))
	card, err := scanCard(row)
	if err != nil {
		return nil, err
	}
	if err := fn(card); err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE cards
		SET tier = $2, balance = $3, state = $4, status = $5, updated_at = $6
		WHERE id = $1`,
		uuid.UUID(card.ID), string(card.Tier), card.Balance, card.State.String(), string(card.Status), card.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update card: %w", err)
	}
	return card, nil
}

func (s *PostgresStore) Delete(ctx context.Context, cardID id.CardID) error {
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `DELETE FROM cards WHERE id = $1`, uuid.UUID(cardID))
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteByOwner(ctx context.Context, ownerID id.UserID) (int, error) {
	res, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `DELETE FROM cards WHERE owner_id = $1`, uuid.UUID(ownerID))
	if err != nil {
		return 0, fmt.Errorf("delete owner cards: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete owner cards: %w", err)
	}
	return int(n), nil
}

func (s *PostgresStore) AppendTransaction(ctx context.Context, txn *models.Transaction) error {
	var paymentID any
	if !txn.PaymentID.IsNil() {
		paymentID = uuid.UUID(txn.PaymentID)
	}
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO card_transactions (id, card_id, payment_id, owner_id, kind, amount, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.UUID(txn.ID), uuid.UUID(txn.CardID), paymentID, uuid.UUID(txn.OwnerID),
		string(txn.Kind), txn.Amount, txn.BalanceAfter, txn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert card transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListTransactions(ctx context.Context, cardID id.CardID) ([]*models.Transaction, error) {
	rows, err := txcontext.ExecutorFrom(ctx, s.db).QueryContext(ctx, `
		SELECT id, card_id, payment_id, owner_id, kind, amount, balance_after, created_at
		FROM card_transactions WHERE card_id = $1 ORDER BY created_at DESC`, uuid.UUID(cardID))
	if err != nil {
		return nil, fmt.Errorf("list card transactions: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Transaction, 0)
	for rows.Next() {
		var (
			t                        models.Transaction
			txnID, cardUUID, ownerID uuid.UUID
			paymentID                uuid.NullUUID
			kind                     string
			amount, balanceAfter     decimal.Decimal
		)
		if err := rows.Scan(&txnID, &cardUUID, &paymentID, &ownerID, &kind, &amount, &balanceAfter, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan card transaction: %w", err)
		}
		t.ID = id.TransactionID(txnID)
		t.CardID = id.CardID(cardUUID)
		if paymentID.Valid {
			t.PaymentID = id.PaymentID(paymentID.UUID)
		}
		t.OwnerID = id.UserID(ownerID)
		t.Kind = models.TransactionKind(kind)
		t.Amount = amount
		t.BalanceAfter = balanceAfter
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list card transactions: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (*models.Card, error) {
	var (
		c                          models.Card
		cardID, ownerID, appID     uuid.UUID
		category, tier, st, status string
	)
	err := row.Scan(&cardID, &ownerID, &c.Number, &category, &tier, &c.Balance, &st, &status, &appID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan card: %w", err)
	}
	if err := c.State.UnmarshalText([]byte(st)); err != nil {
		return nil, fmt.Errorf("scan card: %w", err)
	}
	c.ID = id.CardID(cardID)
	c.OwnerID = id.UserID(ownerID)
	c.ApplicationID = id.ApplicationID(appID)
	c.Category = models.Category(category)
	c.Tier = models.Tier(tier)
	c.Status = models.Status(status)
	return &c, nil
}
