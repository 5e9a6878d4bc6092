package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/idtoken"

	"github.com/tastykitchen/server/internal/events"
	"github.com/tastykitchen/server/internal/model"
	"github.com/tastykitchen/server/internal/repo"
)

// FederatedIdentity is the verified subject of a third-party ID token
type FederatedIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// IdentityProvider verifies third-party ID tokens
type IdentityProvider interface {
	Verify(ctx context.Context, idToken string) (*FederatedIdentity, error)
}

// GoogleIdentityProvider validates Google ID tokens for a single OAuth client id
type GoogleIdentityProvider struct {
	audience string
	validate func(ctx context.Context, idToken, audience string) (*idtoken.Payload, error)
}

func NewGoogleIdentityProvider(clientID string) *GoogleIdentityProvider {
	return &GoogleIdentityProvider{audience: clientID, validate: idtoken.Validate}
}

func (g *GoogleIdentityProvider) Verify(ctx context.Context, token string) (*FederatedIdentity, error) {
	payload, err := g.validate(ctx, token, g.audience)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidFederatedToken, err)
	}
	if payload == nil || payload.Subject == "" {
		return nil, ErrInvalidFederatedToken
	}

	identity := &FederatedIdentity{Subject: payload.Subject}
	if email, ok := payload.Claims["email"].(string); ok {
		identity.Email = email
	}
	if name, ok := payload.Claims["name"].(string); ok {
		identity.Name = name
	}
	switch v := payload.Claims["email_verified"].(type) {
	case bool:
		identity.EmailVerified = v
	case string:
		identity.EmailVerified = v == "true"
	}
	return identity, nil
}

// UnavailableIdentityProvider is used when no client id is configured
type UnavailableIdentityProvider struct{}

func (UnavailableIdentityProvider) Verify(context.Context, string) (*FederatedIdentity, error) {
	return nil, ErrFederatedAuthUnavailable
}

// SignInWithGoogle verifies a Google ID token, finds or creates the matching
// account and returns a session. Accounts are matched by email only when Google
// reports the email as verified, and only then is the email marked verified.
func (s *AuthService) SignInWithGoogle(ctx context.Context, idToken string) (*Session, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return nil, &ValidationError{Field: "idToken", Message: "idToken is required"}
	}

	identity, err := s.identity.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}
	email := NormalizeEmail(identity.Email)

	criteria := repo.Criteria{FederatedID: identity.Subject}
	if identity.EmailVerified {
		criteria.Email = email
	}
	account, err := s.accounts.FindByAnyOf(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}

	created := account == nil
	if created && !identity.EmailVerified {
		return nil, fmt.Errorf("%w: email not verified by provider", ErrInvalidFederatedToken)
	}
	if created {
		name := identity.Name
		if name == "" {
			name = email
		}
		account = &model.Account{
			Name:        name,
			Email:       email,
			FederatedID: identity.Subject,
		}
	} else if account.FederatedID == "" {
		account.FederatedID = identity.Subject
	}
	if identity.EmailVerified && account.Email == email {
		account.EmailVerified = true
	}

	account, err = s.accounts.Upsert(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("save federated account: %w", err)
	}

	if created {
		s.publish(ctx, events.AccountRegistered, account.ID, model.ChannelEmail, "google")
	}
	return s.session(account)
}
