//go:build integration

package postgres_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	pgplatform "securecard/internal/platform/postgres"
	id "securecard/pkg/domain"
	audit "securecard/pkg/platform/audit"
	auditpostgres "securecard/pkg/platform/audit/store/postgres"
	"securecard/pkg/testutil/containers"
)

type OutboxSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *auditpostgres.Store
	tx       *pgplatform.TxRunner
}

func TestOutboxSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(OutboxSuite))
}

func (s *OutboxSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = auditpostgres.New(s.postgres.DB)
	s.tx = pgplatform.NewTxRunner(s.postgres.DB)
}

func (s *OutboxSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_events", "outbox"))
}

func (s *OutboxSuite) event(userID id.UserID, action audit.AuditEvent) audit.Event {
	return audit.Event{
		UserID:    userID,
		Action:    string(action),
		Subject:   "card-1",
		Amount:    "250.00",
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func (s *OutboxSuite) TestRollbackDiscardsBothRows() {
	ctx := context.Background()
	owner := id.NewUserID()

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		s.Require().NoError(s.store.Append(txCtx, s.event(owner, audit.EventCardDeposit)))
		return errors.New("charge failed")
	})
	s.Require().Error(err)

	events, err := s.store.ListByUser(ctx, owner)
	s.Require().NoError(err)
	s.Empty(events)
	pending, err := s.store.FetchUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)
}

func (s *OutboxSuite) TestCommittedEventsRelayInOrder() {
	ctx := context.Background()
	owner := id.NewUserID()

	s.Require().NoError(s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Append(txCtx, s.event(owner, audit.EventPaymentCreated)); err != nil {
			return err
		}
		return s.store.Append(txCtx, s.event(owner, audit.EventPaymentPaid))
	}))
	s.Require().NoError(s.store.Append(ctx, s.event(id.UserID{}, audit.EventOTPThrottled)))

	events, err := s.store.ListByUser(ctx, owner)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(audit.CategoryCompliance, events[1].Category)

	pending, err := s.store.FetchUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 3)
	s.Equal(owner.String(), pending[0].AggregateID)
	s.Equal("payment_created", pending[0].EventType)

	var body map[string]any
	s.Require().NoError(json.Unmarshal(pending[1].Payload, &body))
	s.Equal("payment_paid", body["action"])
	s.Equal("250.00", body["amount"])

	// anonymous events are keyed by their own id
	_, err = uuid.Parse(pending[2].AggregateID)
	s.NoError(err)
	s.NotEqual(owner.String(), pending[2].AggregateID)

	s.Require().NoError(s.store.MarkPublished(ctx, []uuid.UUID{pending[0].ID, pending[1].ID}))
	pending, err = s.store.FetchUnpublished(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal("otp_throttled", pending[0].EventType)
}
