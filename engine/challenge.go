package engine

import (
	"time"

	"github.com/oneedge/gateway/cryptoutils"
	"github.com/oneedge/gateway/interfaces"
)

// ChallengeManager issues time-boxed authentication nonces. Verification is
// part of the register flow: expiry and nonce presence are checked lazily
// when a response arrives, never by a background sweep.
type ChallengeManager struct {
	// Window is how long an issued nonce stays valid.
	Window time.Duration
}

// Issue generates a fresh high-entropy nonce and stamps it onto the device,
// overwriting any outstanding challenge. Nonce and expiry are always written
// together. Issuing also counts as device contact, so last_seen_at advances.
func (m ChallengeManager) Issue(dev *interfaces.Device, now time.Time) (nonce string, expiresAt time.Time) {
	nonce = cryptoutils.GenerateToken()
	expiresAt = now.Add(m.Window)

	dev.ChallengeNonce = nonce
	dev.ChallengeExpiresAt = &expiresAt
	seen := now
	dev.LastSeenAt = &seen
	return nonce, expiresAt
}

// Clear drops any outstanding challenge. Both fields go together.
func (m ChallengeManager) Clear(dev *interfaces.Device) {
	dev.ChallengeNonce = ""
	dev.ChallengeExpiresAt = nil
}
