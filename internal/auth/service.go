package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tastykitchen/server/internal/events"
	"github.com/tastykitchen/server/internal/mailer"
	"github.com/tastykitchen/server/internal/model"
	"github.com/tastykitchen/server/internal/repo"
)

const placeholderName = "User"

// Session is an issued session token and the account it belongs to
type Session struct {
	Token   string
	Role    model.Role
	Account *model.Account
}

// AuthService orchestrates authentication operations
type AuthService struct {
	accounts   repo.AccountRepo
	passwords  *Passwords
	codes      PasswordHasher
	tokens     *JWTService
	mailer     mailer.Mailer
	phones     PhoneSender
	identity   IdentityProvider
	publisher  events.Publisher
	logger     *slog.Logger
	now        func() time.Time
	production bool
}

// Option configures an AuthService
type Option func(*AuthService)

func WithMailer(m mailer.Mailer) Option { return func(s *AuthService) { s.mailer = m } }

func WithPhoneSender(p PhoneSender) Option { return func(s *AuthService) { s.phones = p } }

func WithIdentityProvider(p IdentityProvider) Option { return func(s *AuthService) { s.identity = p } }

func WithPublisher(p events.Publisher) Option { return func(s *AuthService) { s.publisher = p } }

func WithLogger(l *slog.Logger) Option { return func(s *AuthService) { s.logger = l } }

// WithClock replaces the time source used for code expiry
func WithClock(now func() time.Time) Option { return func(s *AuthService) { s.now = now } }

// WithProduction hides plaintext codes and preview links from OTP responses
func WithProduction(production bool) Option {
	return func(s *AuthService) { s.production = production }
}

// NewAuthService creates a new auth service. Unset capabilities default to a
// dev mailer, a logging phone sender, an unavailable identity provider and no events.
func NewAuthService(accounts repo.AccountRepo, passwords *Passwords, tokens *JWTService, opts ...Option) *AuthService {
	s := &AuthService{
		accounts:  accounts,
		passwords: passwords,
		codes:     BcryptHasher{},
		tokens:    tokens,
		identity:  UnavailableIdentityProvider{},
		publisher: events.NopPublisher{},
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mailer == nil {
		s.mailer = mailer.NewDevMailer("", s.logger)
	}
	if s.phones == nil {
		s.phones = LogPhoneSender{Logger: s.logger}
	}
	return s
}

// RegisterInput is the input of Register
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// Register creates an unverified password account
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*model.Account, error) {
	name := strings.TrimSpace(in.Name)
	if err := validateName(name); err != nil {
		return nil, err
	}
	email := NormalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	existing, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if existing != nil {
		return nil, ErrAccountExists
	}

	secret, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account, err := s.accounts.Upsert(ctx, &model.Account{
		Name:     name,
		Email:    email,
		Password: secret,
		Role:     model.RoleUser,
	})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.publish(ctx, events.AccountRegistered, account.ID, model.ChannelEmail, "password")
	return account, nil
}

// LoginInput is the input of Login
type LoginInput struct {
	Email    string
	Password string
}

// Login checks an email and password against a verified account
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	email := NormalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if in.Password == "" {
		return nil, &ValidationError{Field: "password", Message: "password is required"}
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if account == nil {
		return nil, ErrInvalidCredentials
	}
	if !account.EmailVerified {
		return nil, ErrAccountNotVerified
	}
	if account.Password == nil {
		return nil, ErrNoPasswordSet
	}
	if len(in.Password) > maxPasswordBytes {
		return nil, ErrInvalidCredentials
	}

	ok, err := s.passwords.Compare(in.Password, account.Password)
	if err != nil {
		return nil, fmt.Errorf("compare password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	return s.session(account)
}

// Account returns the account with the given id
func (s *AuthService) Account(ctx context.Context, id string) (*model.Account, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

// FindAccount looks an account up by email or phone
func (s *AuthService) FindAccount(ctx context.Context, email, phone string) (*model.Account, error) {
	c := repo.Criteria{Email: NormalizeEmail(email), Phone: NormalizePhone(phone)}
	if c.Empty() {
		return nil, &ValidationError{Field: "email", Message: "email or phone is required"}
	}

	account, err := s.accounts.FindByAnyOf(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

func (s *AuthService) reload(ctx context.Context, id string) (*model.Account, error) {
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	return account, nil
}

func (s *AuthService) session(account *model.Account) (*Session, error) {
	token, err := s.tokens.Issue(account)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return &Session{Token: token, Role: account.Role, Account: account}, nil
}

// publish emits a lifecycle event. Failures are logged and never fail the request.
func (s *AuthService) publish(ctx context.Context, subject, accountID string, ch model.Channel, method string) {
	ev := events.AccountEvent{
		AccountID:  accountID,
		Channel:    string(ch),
		Method:     method,
		OccurredAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, subject, ev); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event", "subject", subject, "account_id", accountID, "error", err)
	}
}
