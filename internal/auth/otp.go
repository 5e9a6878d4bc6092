package auth

import (
	"context"
	"crypto/rand"
	"fmt"
	"html"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/tastykitchen/server/internal/events"
	"github.com/tastykitchen/server/internal/mailer"
	"github.com/tastykitchen/server/internal/model"
)

const (
	otpLength = 6
	otpExpiry = 10 * time.Minute

	otpSubject = "Your verification code"
)

var otpSpace = big.NewInt(1_000_000)

// IssuedCode is the result of an OTP request. Code and PreviewURL are only
// populated outside production.
type IssuedCode struct {
	Code       string
	PreviewURL string
}

// PhoneSender delivers a one-time code to a phone number
type PhoneSender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// LogPhoneSender does not deliver SMS; it records that a code was issued
type LogPhoneSender struct {
	Logger *slog.Logger
}

func (s LogPhoneSender) SendCode(ctx context.Context, phone, _ string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "phone otp issued (sms delivery not configured)", "phone", MaskPhone(phone))
	return nil
}

// generateOTPCode returns 6 uniformly random decimal digits, leading zeros allowed
func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func otpMessage(to, toName, code string) mailer.Message {
	return mailer.Message{
		To:      to,
		ToName:  toName,
		Subject: otpSubject,
		Text:    fmt.Sprintf("Your verification code is %s. It expires in 10 minutes.", code),
		HTML: fmt.Sprintf(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #2563eb;">Verify your email</h2>
  <p>Your verification code is:</p>
  <div style="background-color: #f3f4f6; padding: 20px; text-align: center; font-size: 24px; letter-spacing: 4px; font-weight: bold;">%s</div>
  <p>This code will expire in 10 minutes.</p>
  <p style="color: #6b7280; font-size: 14px;">If you didn't request this code, please ignore this email.</p>
</div>`, html.EscapeString(code)),
	}
}

// MaskPhone masks a phone number for logging (e.g., +49******89)
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return phone[:2] + strings.Repeat("*", len(phone)-4) + phone[len(phone)-2:]
}

// issueCode generates a code, stores its hash as the pending code of the channel and persists the account
func (s *AuthService) issueCode(ctx context.Context, account *model.Account, ch model.Channel) (*model.Account, string, error) {
	code, err := generateOTPCode()
	if err != nil {
		return nil, "", err
	}
	hash, err := s.codes.Hash(code)
	if err != nil {
		return nil, "", fmt.Errorf("hash otp: %w", err)
	}

	account.SetPendingOTP(ch, &model.PendingCode{Hash: hash, ExpiresAt: s.now().Add(otpExpiry)})
	saved, err := s.accounts.Upsert(ctx, account)
	if err != nil {
		return nil, "", fmt.Errorf("save pending otp: %w", err)
	}
	return saved, code, nil
}

// checkCode runs the verification order against the account's pending code and
// consumes it atomically on success.
func (s *AuthService) checkCode(ctx context.Context, account *model.Account, ch model.Channel, otp string) error {
	pending := account.PendingOTP(ch)
	if pending == nil || pending.Hash == "" {
		return ErrOtpNotRequested
	}

	now := s.now()
	if pending.Expired(now) {
		if _, err := s.accounts.DiscardOTP(ctx, account.ID, ch, pending.Hash); err != nil {
			s.logger.WarnContext(ctx, "failed to discard expired otp", "account_id", account.ID, "channel", ch, "error", err)
		}
		return ErrOtpExpired
	}

	ok, err := s.codes.Compare(otp, pending.Hash)
	if err != nil {
		return fmt.Errorf("compare otp: %w", err)
	}
	if !ok {
		return ErrOtpInvalid
	}

	consumed, err := s.accounts.ConsumeOTP(ctx, account.ID, ch, pending.Hash, now)
	if err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	if !consumed {
		// another request verified or replaced the code first
		return ErrOtpNotRequested
	}
	return nil
}

// RequestEmailOTP issues an email code, creating a placeholder account for unknown addresses
func (s *AuthService) RequestEmailOTP(ctx context.Context, email string) (*IssuedCode, error) {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if account == nil {
		account = &model.Account{Email: email, Name: email[:strings.Index(email, "@")]}
	}

	account, code, err := s.issueCode(ctx, account, model.ChannelEmail)
	if err != nil {
		return nil, err
	}

	delivery, err := s.mailer.Send(ctx, otpMessage(email, account.Name, code))
	if err != nil {
		return nil, fmt.Errorf("send otp email: %w", err)
	}
	s.logger.InfoContext(ctx, "email otp issued", "account_id", account.ID)

	issued := &IssuedCode{}
	if !s.production {
		issued.Code = code
		if delivery != nil {
			issued.PreviewURL = delivery.PreviewURL
		}
	}
	return issued, nil
}

// RequestPhoneOTP issues a phone code, creating a placeholder account for unknown numbers
func (s *AuthService) RequestPhoneOTP(ctx context.Context, phone string) (*IssuedCode, error) {
	phone = NormalizePhone(phone)
	if err := validatePhone(phone); err != nil {
		return nil, err
	}

	account, err := s.accounts.FindByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if account == nil {
		account = &model.Account{Phone: phone, Name: placeholderName}
	}

	_, code, err := s.issueCode(ctx, account, model.ChannelPhone)
	if err != nil {
		return nil, err
	}

	if err := s.phones.SendCode(ctx, phone, code); err != nil {
		return nil, fmt.Errorf("send otp sms: %w", err)
	}

	issued := &IssuedCode{}
	if !s.production {
		issued.Code = code
	}
	return issued, nil
}

// VerifyEmailInput is the input of VerifyEmailOTP. Password is optional.
type VerifyEmailInput struct {
	Email    string
	OTP      string
	Password string
}

// VerifyEmailOTP consumes the email code, marks the email verified, optionally
// sets a password and returns a session.
func (s *AuthService) VerifyEmailOTP(ctx context.Context, in VerifyEmailInput) (*Session, error) {
	email := NormalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	otp := strings.TrimSpace(in.OTP)
	if err := validateOTP(otp); err != nil {
		return nil, err
	}
	// hash before the code is consumed
	var secret *model.Secret
	if in.Password != "" {
		if err := validatePassword(in.Password); err != nil {
			return nil, err
		}
		var err error
		if secret, err = s.passwords.Hash(in.Password); err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	if err := s.checkCode(ctx, account, model.ChannelEmail, otp); err != nil {
		return nil, err
	}

	account, err = s.reload(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if secret != nil {
		account.Password = secret
		if account, err = s.accounts.Upsert(ctx, account); err != nil {
			return nil, fmt.Errorf("save password: %w", err)
		}
	}

	s.publish(ctx, events.AccountVerified, account.ID, model.ChannelEmail, "otp")
	return s.session(account)
}

// VerifyPhoneInput is the input of VerifyPhoneOTP
type VerifyPhoneInput struct {
	Phone string
	OTP   string
}

// VerifyPhoneOTP consumes the phone code, marks the phone verified and returns a session
func (s *AuthService) VerifyPhoneOTP(ctx context.Context, in VerifyPhoneInput) (*Session, error) {
	phone := NormalizePhone(in.Phone)
	if err := validatePhone(phone); err != nil {
		return nil, err
	}
	otp := strings.TrimSpace(in.OTP)
	if err := validateOTP(otp); err != nil {
		return nil, err
	}

	account, err := s.accounts.FindByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	if err := s.checkCode(ctx, account, model.ChannelPhone, otp); err != nil {
		return nil, err
	}

	account, err = s.reload(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.AccountVerified, account.ID, model.ChannelPhone, "otp")
	return s.session(account)
}
