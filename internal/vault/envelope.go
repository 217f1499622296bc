package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/avelancourt/passguard/internal/common"
	"golang.org/x/crypto/argon2"
)

// EnvelopeVersion is the current envelope format version. Decrypt accepts
// anything up to and including this value so newer codecs keep reading old
// exports.
const EnvelopeVersion = 1

// Key-derivation parameters recorded in the envelope so future versions can
// re-derive the key even after defaults change.
const (
	kdfName      = "argon2id"
	saltSize     = 16
	nonceSize    = 12
	tagSize      = 16
	keySize      = 32
	kdfTime      = 3
	kdfMemoryKiB = 64 * 1024
	kdfThreads   = 4

	// Bounds for KDF parameters read back from an envelope. Memory is
	// capped at 1 GiB so a hostile file cannot force a huge allocation.
	minKDFMemoryKiB = 8 * 1024
	maxKDFMemoryKiB = 1024 * 1024
)

var (
	// ErrEmptyPassphrase rejects zero-length passphrases up front.
	ErrEmptyPassphrase = errors.New("passphrase must not be empty")

	// ErrWrongPassphrase covers every authentication failure: wrong
	// passphrase and corrupted envelope are indistinguishable by design.
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted file")

	// ErrUnsupportedVersion means the envelope was written by a newer codec.
	ErrUnsupportedVersion = errors.New("unsupported vault format version")
)

// Envelope is the self-contained encrypted export container. Decryption
// needs only the envelope and the passphrase.
type Envelope struct {
	Version    int    `json:"version"`
	KDF        string `json:"kdf"`
	KDFTime    uint32 `json:"kdf_time"`
	KDFMemory  uint32 `json:"kdf_memory_kib"`
	KDFThreads uint8  `json:"kdf_threads"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
	Tag        []byte `json:"tag"`
}

// Encrypt serializes the vault and seals it under a key derived from the
// passphrase. Salt and nonce are freshly generated on every call, so two
// encryptions of the same vault never produce the same ciphertext.
func Encrypt(data *Data, passphrase []byte) (*Envelope, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}

	plaintext, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("serializing vault: %w", err)
	}

	salt := common.GenerateRandByteArray(saltSize)
	nonce := common.GenerateRandByteArray(nonceSize)

	key := argon2.IDKey(passphrase, salt, kdfTime, kdfMemoryKiB, kdfThreads, keySize)
	defer common.WipeByteArray(key)

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := aesgcm.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - tagSize

	return &Envelope{
		Version:    EnvelopeVersion,
		KDF:        kdfName,
		KDFTime:    kdfTime,
		KDFMemory:  kdfMemoryKiB,
		KDFThreads: kdfThreads,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: sealed[:split],
		Tag:        sealed[split:],
	}, nil
}

// Decrypt re-derives the key from the embedded salt and the supplied
// passphrase and opens the envelope. The authentication tag is verified
// before any plaintext is returned; failures are always ErrWrongPassphrase.
func Decrypt(env *Envelope, passphrase []byte) (*Data, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}
	if env.Version > EnvelopeVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.Version)
	}
	if env.KDF != kdfName {
		return nil, fmt.Errorf("%w: unknown kdf %q", ErrUnsupportedVersion, env.KDF)
	}
	if len(env.Nonce) != nonceSize || len(env.Tag) != tagSize {
		return nil, ErrWrongPassphrase
	}
	// The KDF parameters come from an untrusted file; argon2 panics on
	// zero rounds/threads, and an oversized memory value would try to
	// allocate it. Reject anything outside sane bounds before deriving.
	if env.KDFTime < 1 || env.KDFThreads < 1 || env.KDFMemory < minKDFMemoryKiB ||
		env.KDFMemory > maxKDFMemoryKiB || len(env.Salt) != saltSize {
		return nil, ErrWrongPassphrase
	}

	key := argon2.IDKey(passphrase, env.Salt, env.KDFTime, env.KDFMemory, env.KDFThreads, keySize)
	defer common.WipeByteArray(key)

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := append(append([]byte{}, env.Ciphertext...), env.Tag...)
	plaintext, err := aesgcm.Open(nil, env.Nonce, sealed, nil)
	if err != nil {
		return nil, ErrWrongPassphrase
	}

	data := &Data{}
	if err := json.Unmarshal(plaintext, data); err != nil {
		return nil, ErrWrongPassphrase
	}
	return data, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
