package repo

import (
	"context"
	"errors"
	"time"

	"github.com/tastykitchen/server/internal/model"
)

var (
	// ErrDuplicate is returned when an email or phone is already used by another account
	ErrDuplicate = errors.New("account identifier already in use")
	// ErrUnaddressable is returned when an account has no email, phone or federated id
	ErrUnaddressable = errors.New("account has no identifier")
)

// Criteria selects an account by any of the non-empty fields (logical OR)
type Criteria struct {
	FederatedID string
	Email       string
	Phone       string
}

// Empty reports whether no criterion is set
func (c Criteria) Empty() bool {
	return c.FederatedID == "" && c.Email == "" && c.Phone == ""
}

// AccountRepo defines the interface for account persistence.
// Finders return (nil, nil) when no account matches.
type AccountRepo interface {
	FindByID(ctx context.Context, id string) (*model.Account, error)
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
	FindByPhone(ctx context.Context, phone string) (*model.Account, error)
	FindByFederatedID(ctx context.Context, federatedID string) (*model.Account, error)
	FindByAnyOf(ctx context.Context, c Criteria) (*model.Account, error)
	// Upsert inserts the account when ID is empty (assigning ID and CreatedAt) and replaces it otherwise.
	Upsert(ctx context.Context, account *model.Account) (*model.Account, error)
	// ConsumeOTP clears the pending code of the channel and marks the channel verified, but only if
	// the stored hash still equals hash and has not expired at now. It reports whether it did so.
	ConsumeOTP(ctx context.Context, id string, ch model.Channel, hash string, now time.Time) (bool, error)
	// DiscardOTP clears the pending code of the channel if its hash still equals hash
	DiscardOTP(ctx context.Context, id string, ch model.Channel, hash string) (bool, error)
	// Kind names the backend for health reporting
	Kind() string
}

func prepareUpsert(account *model.Account) error {
	if !account.Addressable() {
		return ErrUnaddressable
	}
	if account.Role == "" {
		account.Role = model.RoleUser
	}
	return nil
}
