package models

import "time"

// CodePurpose scopes an email one-time code to the flow that issued it.
type CodePurpose string

const (
	PurposeLogin           CodePurpose = "login"
	PurposeRegistration    CodePurpose = "registration"
	PurposeSensitiveAction CodePurpose = "sensitive-action"
)

// Valid reports whether p is one of the known purposes.
func (p CodePurpose) Valid() bool {
	switch p {
	case PurposeLogin, PurposeRegistration, PurposeSensitiveAction:
		return true
	}
	return false
}

// TwoFactorCode is a single-use email code. At most one unconsumed and
// unexpired code exists per (user, purpose); issuing a new one invalidates
// the previous. Consumed flips once and never back.
type TwoFactorCode struct {
	ID        int64
	UserID    string
	Purpose   CodePurpose
	Code      string
	ExpiresAt time.Time
	Consumed  bool
}
