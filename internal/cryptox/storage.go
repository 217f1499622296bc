package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"github.com/avelancourt/passguard/internal/common"
)

// Storage token format markers. The marker is the first byte of the decoded
// token, not a string prefix, so new formats cannot collide with old ones.
const (
	// formatLegacy tokens are AES-256-CTR with an HMAC-SHA256 trailer
	// (encrypt-then-MAC). Written by old releases, read-only today.
	formatLegacy byte = 0x01

	// formatGCM tokens are AES-256-GCM. All new tokens use this format.
	formatGCM byte = 0x02
)

const (
	gcmNonceSize = 12
	ctrIVSize    = aes.BlockSize
	macSize      = sha256.Size
)

// Keychain holds the symmetric key used to protect single secret values
// (stored passwords, TOTP secrets) at rest. It is injected into services
// explicitly; there is no package-level key.
type Keychain struct {
	key []byte
}

// NewKeychain wraps a 32-byte AES-256 key.
func NewKeychain(key []byte) (*Keychain, error) {
	if len(key) != 32 {
		return nil, ErrKeySize
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &Keychain{key: k}, nil
}

// EncryptForStorage encrypts a single secret value and returns a
// self-describing token in the current format.
func (k *Keychain) EncryptForStorage(plain []byte) (string, error) {
	block, err := aes.NewCipher(k.key)
	if err != nil {
		return "", err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := common.GenerateRandByteArray(gcmNonceSize)
	sealed := aesgcm.Seal(nil, nonce, plain, nil)

	body := make([]byte, 0, 1+len(nonce)+len(sealed))
	body = append(body, formatGCM)
	body = append(body, nonce...)
	body = append(body, sealed...)
	return base64.RawURLEncoding.EncodeToString(body), nil
}

// DecryptAny decrypts a storage token in any supported format, dispatching
// on the format marker. Unknown markers yield ErrUnsupportedFormat; a tag or
// MAC mismatch yields ErrIntegrity and no plaintext.
func (k *Keychain) DecryptAny(token string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrMalformedToken
	}
	if len(raw) < 1 {
		return nil, ErrMalformedToken
	}

	switch raw[0] {
	case formatGCM:
		return k.decryptGCM(raw[1:])
	case formatLegacy:
		return k.decryptLegacy(raw[1:])
	default:
		return nil, ErrUnsupportedFormat
	}
}

func (k *Keychain) decryptGCM(body []byte) ([]byte, error) {
	if len(body) < gcmNonceSize {
		return nil, ErrMalformedToken
	}
	block, err := aes.NewCipher(k.key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	plain, err := aesgcm.Open(nil, body[:gcmNonceSize], body[gcmNonceSize:], nil)
	if err != nil {
		return nil, ErrIntegrity
	}
	return plain, nil
}

// decryptLegacy handles the pre-GCM token layout: iv || ciphertext || mac,
// where mac = HMAC-SHA256(key, iv || ciphertext).
func (k *Keychain) decryptLegacy(body []byte) ([]byte, error) {
	if len(body) < ctrIVSize+macSize {
		return nil, ErrMalformedToken
	}

	macStart := len(body) - macSize
	mac := hmac.New(sha256.New, k.key)
	mac.Write(body[:macStart])
	if !hmac.Equal(mac.Sum(nil), body[macStart:]) {
		return nil, ErrIntegrity
	}

	block, err := aes.NewCipher(k.key)
	if err != nil {
		return nil, err
	}
	iv := body[:ctrIVSize]
	ciphertext := body[ctrIVSize:macStart]
	plain := make([]byte, len(ciphertext))
	cipher.NewCTR(block, iv).XORKeyStream(plain, ciphertext)
	return plain, nil
}
