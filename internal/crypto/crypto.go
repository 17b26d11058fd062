// Package crypto implements spec §6's "encrypted secrets embedded in
// config" contract: a provider credential or header value beginning with
// "age:" is a base64-encoded, passphrase-encrypted blob, decrypted lazily
// the first time a caller actually needs the plaintext (buildLLMRegistry,
// at process startup). Decryption failure surfaces as the typed
// internal/apperr.Decryption error rather than a bare error string, so the
// Management HTTP API and startup logging can treat it uniformly.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/periplon/metis/internal/apperr"
)

const agePrefix = "age:"

// Encrypt seals plaintext with AES-256-GCM and returns "age:<base64(nonce
// + ciphertext)>". key must be exactly 32 bytes (see DeriveKey). Returns
// the empty string unchanged.
func Encrypt(plaintext string, key []byte) (string, error) {
	if plaintext == "" {
		return plaintext, nil
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", &apperr.Decryption{Reason: fmt.Sprintf("create cipher: %v", err)}
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", &apperr.Decryption{Reason: fmt.Sprintf("create GCM: %v", err)}
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", &apperr.Decryption{Reason: fmt.Sprintf("generate nonce: %v", err)}
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)

	return agePrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. A value without the "age:" prefix is returned
// as-is (plaintext passthrough, per spec §6: decryption only applies to
// values that carry the prefix). A nil key against an "age:"-prefixed
// value fails with apperr.NoPassphrase rather than attempting to decrypt.
func Decrypt(ciphertext string, key []byte) (string, error) {
	if !IsEncrypted(ciphertext) {
		return ciphertext, nil
	}
	if key == nil {
		return "", &apperr.NoPassphrase{}
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, agePrefix))
	if err != nil {
		return "", &apperr.InvalidFormat{Reason: fmt.Sprintf("decode base64: %v", err)}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", &apperr.Decryption{Reason: fmt.Sprintf("create cipher: %v", err)}
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", &apperr.Decryption{Reason: fmt.Sprintf("create GCM: %v", err)}
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", &apperr.InvalidFormat{Reason: "ciphertext too short"}
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", &apperr.Decryption{Reason: fmt.Sprintf("open: %v", err)}
	}

	return string(plaintext), nil
}

// IsEncrypted reports whether value carries the "age:" prefix spec §6
// defines for encrypted secrets embedded in config.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, agePrefix)
}

// DeriveKey derives a 32-byte AES-256 key from an arbitrary-length
// passphrase by hashing it with SHA-256.
func DeriveKey(passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, &apperr.Validation{Field: "encryption_key", Reason: "must not be empty"}
	}

	hash := sha256.Sum256([]byte(passphrase))

	return hash[:], nil
}
