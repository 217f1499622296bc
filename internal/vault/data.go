// Package vault implements the portable encrypted export format: a
// passphrase-derived, authenticated envelope around the full credential set,
// plus .pgvault file I/O and import conflict resolution.
package vault

import "time"

// Item is a single exported credential record. Passwords travel in their
// storage-encrypted form; the vault passphrase protects the whole payload on
// top of that.
type Item struct {
	SiteName          string `json:"site_name"`
	SiteURL           string `json:"site_url,omitempty"`
	SiteIcon          string `json:"site_icon,omitempty"`
	Username          string `json:"username"`
	EncryptedPassword string `json:"encrypted_password"`
	Category          string `json:"category,omitempty"`
	Strength          string `json:"strength,omitempty"`
	Favorite          bool   `json:"favorite,omitempty"`
}

// Data is the plaintext vault payload.
type Data struct {
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Passwords  []Item    `json:"passwords"`
}
