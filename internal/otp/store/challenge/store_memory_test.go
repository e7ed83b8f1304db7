package challenge

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securecard/internal/otp/models"
	id "securecard/pkg/domain"
	"securecard/pkg/platform/sentinel"
	"securecard/pkg/requestcontext"
)

func issueAt(t *testing.T, s *InMemory, at time.Time) *models.Challenge {
	t.Helper()
	ch, err := models.NewChallenge(id.NewChallengeID(), models.PurposePaymentConfirmation, "payer@example.com", "424242",
		models.ForPayment(models.PaymentPayload{
			PaymentID: id.NewPaymentID(),
			OwnerID:   id.NewUserID(),
			CardID:    id.NewCardID(),
			Amount:    decimal.RequireFromString("12000.00"),
			Action:    "paid",
		}), at, 5*time.Minute, 3)
	require.NoError(t, err)
	require.NoError(t, s.Create(requestcontext.WithTime(context.Background(), at), ch))
	return ch
}

func TestInMemoryCreateRejectsDuplicates(t *testing.T) {
	s := NewInMemory()
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ch := issueAt(t, s, at)

	err := s.Create(requestcontext.WithTime(context.Background(), at), ch)
	assert.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestInMemorySweepsAfterGrace(t *testing.T) {
	s := NewInMemory()
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	old := issueAt(t, s, start)
	recent := issueAt(t, s, start.Add(6*time.Minute))

	// still within expiry plus grace: a late verify reports Expired
	_, err := s.FindByID(context.Background(), old.ID)
	require.NoError(t, err)

	issueAt(t, s, start.Add(16*time.Minute))

	_, err = s.FindByID(context.Background(), old.ID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = s.FindByID(context.Background(), recent.ID)
	assert.NoError(t, err)
}
