package auth

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

const (
	minPasswordLength = 6
	// bcrypt rejects longer input
	maxPasswordBytes = 72
	minPhoneLength   = 6
)

// NormalizeEmail trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone trims a phone number
func NormalizePhone(phone string) string {
	return strings.TrimSpace(phone)
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return &ValidationError{Field: "email", Message: "email is required"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return &ValidationError{Field: "email", Message: "invalid email"}
	}
	return nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return &ValidationError{Field: "password", Message: "password must be at least 6 characters"}
	}
	if len(password) > maxPasswordBytes {
		return &ValidationError{Field: "password", Message: "password must be at most 72 bytes"}
	}
	return nil
}

func validatePhone(phone string) error {
	if utf8.RuneCountInString(phone) < minPhoneLength {
		return &ValidationError{Field: "phone", Message: "invalid phone"}
	}
	return nil
}

func validateOTP(otp string) error {
	if len(otp) != otpLength {
		return &ValidationError{Field: "otp", Message: "otp must be 6 digits"}
	}
	for _, c := range otp {
		if c < '0' || c > '9' {
			return &ValidationError{Field: "otp", Message: "otp must be 6 digits"}
		}
	}
	return nil
}
