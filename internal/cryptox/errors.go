package cryptox

import "errors"

var (
	// ErrMalformedToken means the token could not even be decoded.
	ErrMalformedToken = errors.New("malformed storage token")

	// ErrUnsupportedFormat means the format marker is unknown. Distinct from
	// ErrIntegrity so callers can tell "we never wrote this" apart from
	// "this was written and later corrupted".
	ErrUnsupportedFormat = errors.New("unsupported storage token format")

	// ErrIntegrity means the authentication tag or MAC did not verify.
	// No plaintext is ever returned alongside this error.
	ErrIntegrity = errors.New("storage token integrity check failed")

	// ErrKeySize is returned for keys that are not 32 bytes.
	ErrKeySize = errors.New("storage key must be 32 bytes")
)
