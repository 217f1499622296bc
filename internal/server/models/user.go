// Package models defines the persisted aggregates the engine works with.
package models

import "time"

// User is the vault owner. PasswordHash and Salt are never empty once the
// row exists. TOTPSecret holds a storage-encrypted token, empty until TOTP
// is enrolled.
type User struct {
	ID            string
	Username      string
	Email         string
	PasswordHash  []byte
	Salt          []byte
	EmailVerified bool
	TOTPSecret    string
	TOTPEnabled   bool
	CreatedAt     time.Time
}
