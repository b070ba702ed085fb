// Package cryptoutils provides the one-way digesting, constant-time
// comparison, and random-material primitives used by the device
// authentication protocol. Plaintext secrets never leave the call stack:
// nothing in this package logs or stores its inputs.
package cryptoutils

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// tokenBytes is the entropy of generated nonces and session secrets.
const tokenBytes = 32

// HashSecret returns the lowercase hex SHA-256 digest of a secret. Digests
// are the only form in which secrets are persisted, and the static-secret
// digest doubles as the HMAC key of the challenge-response exchange, so the
// encoding is part of the device-facing protocol and must not change.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// VerifySecret reports whether candidate digests to storedHash, comparing in
// constant time to avoid timing side channels. An empty stored hash never
// verifies.
func VerifySecret(storedHash, candidate string) bool {
	if storedHash == "" {
		return false
	}
	digest := HashSecret(candidate)
	return subtle.ConstantTimeCompare([]byte(storedHash), []byte(digest)) == 1
}

// GenerateToken returns a fresh URL-safe random token with 256 bits of
// entropy, used for challenge nonces and minted session secrets.
func GenerateToken() string {
	buf := make([]byte, tokenBytes)
	rand.Read(buf)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// ChallengeResponse computes the expected proof for a challenge nonce:
// hex(HMAC-SHA256(key = static secret digest, message = nonce)). The device
// derives the same value from its static key without ever transmitting it.
func ChallengeResponse(staticSecretHash, nonce string) string {
	mac := hmac.New(sha256.New, []byte(staticSecretHash))
	mac.Write([]byte(nonce))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyChallengeResponse compares a submitted proof against the expected
// value in constant time.
func VerifyChallengeResponse(staticSecretHash, nonce, response string) bool {
	if response == "" {
		return false
	}
	expected := ChallengeResponse(staticSecretHash, nonce)
	return hmac.Equal([]byte(expected), []byte(response))
}
