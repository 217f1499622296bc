// Package cryptox implements the engine's cryptographic primitives: slow
// salted password hashing and authenticated encryption of single secret
// values for storage at rest.
package cryptox

import (
	"crypto/subtle"

	"github.com/avelancourt/passguard/internal/common"
	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for password hashing. Changing them invalidates
// stored hashes, so treat them as part of the on-disk format.
const (
	passwordSaltSize = 16
	passwordHashSize = 32
	argonTime        = 1
	argonMemoryKiB   = 64 * 1024
	argonThreads     = 4
)

// HashPassword derives an argon2id hash of plain under a fresh random salt.
// The hash is one-way; the only supported check is VerifyPassword.
func HashPassword(plain []byte) (hash, salt []byte, err error) {
	salt = common.GenerateRandByteArray(passwordSaltSize)
	hash = deriveHash(plain, salt)
	return hash, salt, nil
}

// VerifyPassword recomputes the hash of candidate under the stored salt and
// compares it to the stored hash in constant time. It never short-circuits
// on the first differing byte.
func VerifyPassword(hash, salt, candidate []byte) bool {
	if len(hash) == 0 || len(salt) == 0 {
		return false
	}
	recomputed := deriveHash(candidate, salt)
	defer common.WipeByteArray(recomputed)
	return subtle.ConstantTimeCompare(hash, recomputed) == 1
}

func deriveHash(plain, salt []byte) []byte {
	return argon2.IDKey(plain, salt, argonTime, argonMemoryKiB, argonThreads, passwordHashSize)
}
