// Package models holds the account domain types shared by repositories and
// services.
package models

import "time"

// DateLayout is the storage form of calendar dates such as OTP expiry.
const DateLayout = "2006-01-02"

// Profile carries the personal details captured at setup.
type Profile struct {
	FirstName     string `json:"first_name" validate:"required,max=64"`
	MiddleName    string `json:"middle_name,omitempty" validate:"max=64"`
	LastName      string `json:"last_name" validate:"required,max=64"`
	PreferredName string `json:"preferred_name,omitempty" validate:"max=64"`
}

// Invite is a pending, single-use registration grant. It has no expiry:
// a code stays redeemable until it is used or its placeholder is deleted.
type Invite struct {
	Code  string
	Roles RoleSet
}

// Account is one user record. An invite placeholder has an empty Username
// and a non-nil Invite.
type Account struct {
	ID       string
	Username string
	Email    string

	// Credential is the digest of the current password, or of the one-time
	// password while OTPActive is set.
	Credential   []byte
	OTPActive    bool
	OTPExpiresAt time.Time

	Roles         RoleSet
	Profile       *Profile
	SetupComplete bool
	Invite        *Invite
	CreatedAt     time.Time
}

// IsPlaceholder reports whether the account is an unredeemed invite.
func (a *Account) IsPlaceholder() bool {
	return a.Username == "" && a.Invite != nil
}

// CivilDate truncates t to midnight UTC of its own calendar day.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
