package models

import "time"

// DeviceTrust marks a device as allowed to skip MFA until TrustExpiry.
// Trust never implies a session; it only waives the second factor.
type DeviceTrust struct {
	UserID      string
	DeviceName  string
	TrustExpiry time.Time
}

// Trusted reports whether the record is still in its trust window.
func (d *DeviceTrust) Trusted(now time.Time) bool {
	return d.TrustExpiry.After(now)
}
