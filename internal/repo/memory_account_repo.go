package repo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tastykitchen/server/internal/model"
)

// MemoryAccountRepo is a volatile AccountRepo. All state is lost on restart.
type MemoryAccountRepo struct {
	mu       sync.RWMutex
	accounts map[string]*model.Account
	order    []string
	now      func() time.Time
}

// NewMemoryAccountRepo creates an empty in-memory account store
func NewMemoryAccountRepo() *MemoryAccountRepo {
	return &MemoryAccountRepo{
		accounts: make(map[string]*model.Account),
		now:      time.Now,
	}
}

func (r *MemoryAccountRepo) Kind() string { return "memory" }

func (r *MemoryAccountRepo) FindByID(_ context.Context, id string) (*model.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.accounts[id].Clone(), nil
}

func (r *MemoryAccountRepo) FindByEmail(_ context.Context, email string) (*model.Account, error) {
	if email == "" {
		return nil, nil
	}
	return r.first(func(a *model.Account) bool { return a.Email == email }), nil
}

func (r *MemoryAccountRepo) FindByPhone(_ context.Context, phone string) (*model.Account, error) {
	if phone == "" {
		return nil, nil
	}
	return r.first(func(a *model.Account) bool { return a.Phone == phone }), nil
}

func (r *MemoryAccountRepo) FindByFederatedID(_ context.Context, federatedID string) (*model.Account, error) {
	if federatedID == "" {
		return nil, nil
	}
	return r.first(func(a *model.Account) bool { return a.FederatedID == federatedID }), nil
}

func (r *MemoryAccountRepo) FindByAnyOf(_ context.Context, c Criteria) (*model.Account, error) {
	if c.Empty() {
		return nil, nil
	}
	return r.first(func(a *model.Account) bool {
		return (c.FederatedID != "" && a.FederatedID == c.FederatedID) ||
			(c.Email != "" && a.Email == c.Email) ||
			(c.Phone != "" && a.Phone == c.Phone)
	}), nil
}

func (r *MemoryAccountRepo) Upsert(_ context.Context, account *model.Account) (*model.Account, error) {
	if err := prepareUpsert(account); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		other := r.accounts[id]
		if other.ID == account.ID {
			continue
		}
		if (account.Email != "" && other.Email == account.Email) ||
			(account.Phone != "" && other.Phone == account.Phone) {
			return nil, ErrDuplicate
		}
	}

	stored := account.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	if existing, ok := r.accounts[stored.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else {
		if stored.CreatedAt.IsZero() {
			stored.CreatedAt = r.now().UTC()
		}
		r.order = append(r.order, stored.ID)
	}
	r.accounts[stored.ID] = stored

	return stored.Clone(), nil
}

func (r *MemoryAccountRepo) ConsumeOTP(_ context.Context, id string, ch model.Channel, hash string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return false, nil
	}
	pending := account.PendingOTP(ch)
	if pending == nil || pending.Hash != hash || pending.Expired(now) {
		return false, nil
	}
	account.SetPendingOTP(ch, nil)
	account.MarkVerified(ch)
	return true, nil
}

func (r *MemoryAccountRepo) DiscardOTP(_ context.Context, id string, ch model.Channel, hash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[id]
	if !ok {
		return false, nil
	}
	pending := account.PendingOTP(ch)
	if pending == nil || pending.Hash != hash {
		return false, nil
	}
	account.SetPendingOTP(ch, nil)
	return true, nil
}

func (r *MemoryAccountRepo) first(match func(*model.Account) bool) *model.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if a := r.accounts[id]; match(a) {
			return a.Clone()
		}
	}
	return nil
}
