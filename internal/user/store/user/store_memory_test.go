package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securecard/internal/user/models"
	id "securecard/pkg/domain"
	"securecard/pkg/platform/sentinel"
)

func newUser(email, username string, createdAt time.Time) *models.User {
	return &models.User{
		ID:           id.NewUserID(),
		Name:         "Dev Patel",
		Username:     username,
		Email:        email,
		DateOfBirth:  time.Date(1988, 5, 4, 0, 0, 0, 0, time.UTC),
		Address:      "9 Ring Road, Surat",
		MobileNumber: "7012345678",
		PasswordHash: "$2a$hash",
		Role:         id.RoleUser,
		CreatedAt:    createdAt,
	}
}

func TestInMemoryUniqueness(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	now := time.Now()
	require.NoError(t, store.Create(ctx, newUser("dev@example.com", "devp", now)))

	err := store.Create(ctx, newUser("DEV@example.com", "other", now))
	assert.True(t, errors.Is(err, sentinel.ErrConflict))
	err = store.Create(ctx, newUser("new@example.com", "DEVP", now))
	assert.True(t, errors.Is(err, sentinel.ErrConflict))

	got, err := store.FindByEmail(ctx, "Dev@Example.com")
	require.NoError(t, err)
	assert.Equal(t, "devp", got.Username)
	got, err = store.FindByUsername(ctx, "DevP")
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", got.Email)
}

func TestInMemoryListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	second := newUser("b@example.com", "bbbb", base.Add(time.Minute))
	first := newUser("a@example.com", "aaaa", base)
	require.NoError(t, store.Create(ctx, second))
	require.NoError(t, store.Create(ctx, first))

	users, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, first.ID, users[0].ID)

	require.NoError(t, store.Delete(ctx, first.ID))
	_, err = store.FindByEmail(ctx, "a@example.com")
	assert.True(t, errors.Is(err, sentinel.ErrNotFound))
	assert.True(t, errors.Is(store.Delete(ctx, first.ID), sentinel.ErrNotFound))

	// the freed email can register again
	assert.NoError(t, store.Create(ctx, newUser("a@example.com", "aaaa", base)))
}
