package model

import (
	"time"
)

// Role is the authorization role carried by an account and its session tokens
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Channel identifies an out-of-band channel that can be verified with a one-time code
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

// Secret is a one-way digest together with the scheme that produced it.
// A Secret is only ever built by a hasher, so Digest is never plaintext.
type Secret struct {
	Digest string
	Scheme string
}

// PendingCode is an issued, not yet consumed one-time code
type PendingCode struct {
	Hash      string
	ExpiresAt time.Time
}

// Expired reports whether the code can no longer be used at now
func (p *PendingCode) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Account represents an addressable identity record
type Account struct {
	ID            string
	Name          string
	Email         string
	Phone         string
	Password      *Secret
	Role          Role
	FederatedID   string
	EmailVerified bool
	PhoneVerified bool
	EmailOTP      *PendingCode
	PhoneOTP      *PendingCode
	CreatedAt     time.Time
}

// Addressable reports whether the account can be looked up by at least one identifier
func (a *Account) Addressable() bool {
	return a.Email != "" || a.Phone != "" || a.FederatedID != ""
}

// PendingOTP returns the pending code for the channel, or nil
func (a *Account) PendingOTP(ch Channel) *PendingCode {
	if ch == ChannelPhone {
		return a.PhoneOTP
	}
	return a.EmailOTP
}

// SetPendingOTP replaces the pending code for the channel; nil clears it
func (a *Account) SetPendingOTP(ch Channel, code *PendingCode) {
	if ch == ChannelPhone {
		a.PhoneOTP = code
		return
	}
	a.EmailOTP = code
}

// MarkVerified sets the verified flag for the channel
func (a *Account) MarkVerified(ch Channel) {
	if ch == ChannelPhone {
		a.PhoneVerified = true
		return
	}
	a.EmailVerified = true
}

// Clone returns a deep copy so stored state cannot be mutated through a returned value
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.Password != nil {
		p := *a.Password
		c.Password = &p
	}
	if a.EmailOTP != nil {
		e := *a.EmailOTP
		c.EmailOTP = &e
	}
	if a.PhoneOTP != nil {
		p := *a.PhoneOTP
		c.PhoneOTP = &p
	}
	return &c
}
