package auth

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/tastykitchen/server/internal/mailer"
	"github.com/tastykitchen/server/internal/model"
	"github.com/tastykitchen/server/internal/repo"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg mailer.Message) (*mailer.Delivery, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return &mailer.Delivery{MessageID: "m-1"}, nil
}

var sixDigits = regexp.MustCompile(`\b\d{6}\b`)

// lastCode returns the code from the most recent message sent to addr
func (m *recordingMailer) lastCode(addr string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == addr {
			return sixDigits.FindString(m.sent[i].Text)
		}
	}
	return ""
}

type recordingPhones struct {
	mu    sync.Mutex
	codes map[string]string
}

func (p *recordingPhones) SendCode(_ context.Context, phone, code string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.codes == nil {
		p.codes = make(map[string]string)
	}
	p.codes[phone] = code
	return nil
}

type fakeIdentity struct {
	identity *FederatedIdentity
	err      error
}

func (f *fakeIdentity) Verify(context.Context, string) (*FederatedIdentity, error) {
	return f.identity, f.err
}

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

// untouchedRepo fails the test on any store access
type untouchedRepo struct {
	t *testing.T
}

var errTouched = errors.New("store must not be touched")

func (r untouchedRepo) touched() error {
	r.t.Error(errTouched)
	return errTouched
}

func (r untouchedRepo) FindByID(context.Context, string) (*model.Account, error) {
	return nil, r.touched()
}

func (r untouchedRepo) FindByEmail(context.Context, string) (*model.Account, error) {
	return nil, r.touched()
}

func (r untouchedRepo) FindByPhone(context.Context, string) (*model.Account, error) {
	return nil, r.touched()
}

func (r untouchedRepo) FindByFederatedID(context.Context, string) (*model.Account, error) {
	return nil, r.touched()
}

func (r untouchedRepo) FindByAnyOf(context.Context, repo.Criteria) (*model.Account, error) {
	return nil, r.touched()
}

func (r untouchedRepo) Upsert(context.Context, *model.Account) (*model.Account, error) {
	return nil, r.touched()
}

func (r untouchedRepo) ConsumeOTP(context.Context, string, model.Channel, string, time.Time) (bool, error) {
	return false, r.touched()
}

func (r untouchedRepo) DiscardOTP(context.Context, string, model.Channel, string) (bool, error) {
	return false, r.touched()
}

func (r untouchedRepo) Kind() string { return "untouched" }

type testEnv struct {
	svc       *AuthService
	accounts  *repo.MemoryAccountRepo
	tokens    *JWTService
	mail      *recordingMailer
	phones    *recordingPhones
	identity  *fakeIdentity
	publisher *recordingPublisher
	clock     *fakeClock
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	passwords, err := NewPasswords(SchemeBcrypt)
	if err != nil {
		t.Fatal(err)
	}
	env := &testEnv{
		accounts:  repo.NewMemoryAccountRepo(),
		mail:      &recordingMailer{},
		phones:    &recordingPhones{},
		identity:  &fakeIdentity{err: ErrFederatedAuthUnavailable},
		publisher: &recordingPublisher{},
		clock:     &fakeClock{now: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)},
	}
	env.tokens = NewJWTService("test-secret").WithClock(env.clock.Now)
	base := []Option{
		WithMailer(env.mail),
		WithPhoneSender(env.phones),
		WithIdentityProvider(env.identity),
		WithPublisher(env.publisher),
		WithClock(env.clock.Now),
	}
	env.svc = NewAuthService(env.accounts, passwords, env.tokens, append(base, opts...)...)
	return env
}
