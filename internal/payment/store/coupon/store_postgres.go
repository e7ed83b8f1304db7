package coupon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"securecard/internal/payment/models"
	"securecard/pkg/platform/sentinel"
	txcontext "securecard/pkg/platform/tx"
)

// PostgresStore reads the coupons table seeded by the schema migration.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var c models.Coupon
	err := txcontext.ExecutorFrom(ctx, s.db).QueryRowContext(ctx,
		`SELECT code, percent_off, active FROM coupons WHERE code = $1`, models.NormalizeCouponCode(code),
	).Scan(&c.Code, &c.PercentOff, &c.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find coupon: %w", err)
	}
	return &c, nil
}

func (s *PostgresStore) Save(ctx context.Context, c models.Coupon) error {
	_, err := txcontext.ExecutorFrom(ctx, s.db).ExecContext(ctx, `
		INSERT INTO coupons (code, percent_off, active) VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET percent_off = EXCLUDED.percent_off, active = EXCLUDED.active`,
		c.Code, c.PercentOff, c.Active,
	)
	if err != nil {
		return fmt.Errorf("save coupon: %w", err)
	}
	return nil
}
