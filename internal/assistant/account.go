package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chatify/internal/auth"
	"chatify/internal/models"

	"github.com/google/uuid"
)

const (
	AccountEmail  = "luna@chatify.ai"
	AccountName   = "Luna (AI)"
	AccountAvatar = "/avatar-bot.svg"
)

type AccountStore interface {
	CreateUser(ctx context.Context, credentials auth.Credentials) error
	FindUserByEmail(ctx context.Context, email string) (models.User, error)
}

// EnsureAccount returns the reserved assistant user, creating it on first start.
// The account has no password and can never log in.
func EnsureAccount(ctx context.Context, store AccountStore) (models.User, error) {
	user, err := store.FindUserByEmail(ctx, AccountEmail)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return models.User{}, fmt.Errorf("failed to find assistant account: %w", err)
	}

	now := time.Now().UTC()
	user = models.User{
		ID:         uuid.NewString(),
		Email:      AccountEmail,
		FullName:   AccountName,
		ProfilePic: AccountAvatar,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = store.CreateUser(ctx, auth.Credentials{User: user})
	if errors.Is(err, auth.ErrUserExists) {
		// another process won the race
		return store.FindUserByEmail(ctx, AccountEmail)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("failed to create assistant account: %w", err)
	}
	return user, nil
}
