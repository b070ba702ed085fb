package cryptoutils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashSecret_KnownVector(t *testing.T) {
	// sha256("k1") pinned so the wire protocol cannot drift silently.
	assert.Equal(t, "6ab9f1eb8f7d3388f4f9d586f66e99fd54080df2c446f0e58668b09c08a16dd0", HashSecret("k1"))
	assert.Len(t, HashSecret(""), 64)
}

func TestVerifySecret(t *testing.T) {
	stored := HashSecret("correct horse battery staple")
	assert.True(t, VerifySecret(stored, "correct horse battery staple"))
	assert.False(t, VerifySecret(stored, "correct horse battery stapler"))
	assert.False(t, VerifySecret("", "anything"))
	assert.False(t, VerifySecret(stored, ""))
}

func TestGenerateToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		tok := GenerateToken()
		raw, err := base64.RawURLEncoding.DecodeString(tok)
		require.NoError(t, err)
		require.Len(t, raw, tokenBytes)
		require.False(t, seen[tok], "token repeated")
		seen[tok] = true
	}
}

func TestChallengeResponse_MatchesManualHMAC(t *testing.T) {
	staticHash := HashSecret("device-static-key")
	nonce := GenerateToken()

	mac := hmac.New(sha256.New, []byte(staticHash))
	mac.Write([]byte(nonce))
	expected := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, expected, ChallengeResponse(staticHash, nonce))
	assert.True(t, VerifyChallengeResponse(staticHash, nonce, expected))
	assert.False(t, VerifyChallengeResponse(staticHash, nonce, ""))
	assert.False(t, VerifyChallengeResponse(staticHash, nonce, expected[:len(expected)-1]+"0"))
	assert.False(t, VerifyChallengeResponse(HashSecret("other-key"), nonce, expected))
}

func FuzzVerifySecret(f *testing.F) {
	f.Add("k1", "k1")
	f.Add("k1", "k2")
	f.Add("", "")
	f.Add("secret", "secret ")
	f.Fuzz(func(t *testing.T, stored, candidate string) {
		ok := VerifySecret(HashSecret(stored), candidate)
		if stored == candidate {
			if !ok {
				t.Fatalf("digest of %q did not verify against itself", stored)
			}
		} else if ok {
			t.Fatalf("digest collision between %q and %q", stored, candidate)
		}
	})
}
