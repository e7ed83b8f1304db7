package challenge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"securecard/internal/otp/models"
	id "securecard/pkg/domain"
	"securecard/pkg/platform/sentinel"
)

const (
	challengeKeyPrefix = "otp:challenge:"

	// defaultGrace keeps a record past its expiry so late verifications
	// report Expired rather than NotFound.
	defaultGrace = 10 * time.Minute

	maxWatchRetries = 5
)

// RedisStore keeps each challenge as a JSON value whose key TTL is the
// expiry plus a grace period. Updates are optimistic WATCH/MULTI
// transactions.
type RedisStore struct {
	client *redis.Client
	grace  time.Duration
}

type RedisOption func(*RedisStore)

func WithGrace(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.grace = d
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, grace: defaultGrace}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func challengeKey(challengeID id.ChallengeID) string {
	return challengeKeyPrefix + challengeID.String()
}

func (s *RedisStore) Create(ctx context.Context, ch *models.Challenge) error {
	raw, err := json.Marshal(ch)
	if err != nil {
		return fmt.Errorf("encode challenge: %w", err)
	}
	ttl := time.Until(ch.ExpiresAt) + s.grace
	if ttl <= 0 {
		ttl = s.grace
	}
	ok, err := s.client.SetNX(ctx, challengeKey(ch.ID), raw, ttl).Result()
	if err != nil {
		return fmt.Errorf("store challenge: %w", err)
	}
	if !ok {
		return fmt.Errorf("challenge exists: %w", sentinel.ErrConflict)
	}
	return nil
}

func (s *RedisStore) FindByID(ctx context.Context, challengeID id.ChallengeID) (*models.Challenge, error) {
	return s.load(ctx, s.client, challengeKey(challengeID))
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStore) load(ctx context.Context, c getter, key string) (*models.Challenge, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load challenge: %w", err)
	}
	var ch models.Challenge
	if err := json.Unmarshal(raw, &ch); err != nil {
		return nil, fmt.Errorf("decode challenge: %w", err)
	}
	return &ch, nil
}

// Execute reads the challenge under WATCH, applies fn and writes it back in
// MULTI keeping the key TTL. A concurrent write aborts the transaction and
// the whole read-modify-write is retried, so fn sees the winner's state.
func (s *RedisStore) Execute(ctx context.Context, challengeID id.ChallengeID, fn func(*models.Challenge) error) (*models.Challenge, error) {
	key := challengeKey(challengeID)
	var result *models.Challenge

	txf := func(tx *redis.Tx) error {
		ch, err := s.load(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := fn(ch); err != nil {
			return err
		}
		raw, err := json.Marshal(ch)
		if err != nil {
			return fmt.Errorf("encode challenge: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return err
		}
		result = ch
		return nil
	}

	for range maxWatchRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return result, nil
	}
	return nil, fmt.Errorf("challenge update contended: %w", sentinel.ErrConflict)
}
