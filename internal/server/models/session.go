package models

import "time"

// Session is an append-only login record. Logout revokes, never deletes, so
// the audit trail survives. Revocation is monotonic.
type Session struct {
	ID         string
	UserID     string
	DeviceInfo string
	CreatedAt  time.Time
	Revoked    bool
}
