package engine

import (
	"github.com/oneedge/gateway/interfaces"
)

// QuarantineGuard tracks failed authentication attempts and latches the
// quarantine state once the configured maximum is reached. The latch is
// one-way: neither time nor further calls clear it, only an explicit
// authorize action.
type QuarantineGuard struct {
	// MaxAttempts is the failure count at which the device is quarantined.
	MaxAttempts uint
}

// RecordFailure increments the failure counter and reports whether this
// failure tripped the quarantine latch. Quarantine sets both the latch and
// the display status atomically with the failing call.
func (g QuarantineGuard) RecordFailure(dev *interfaces.Device) (quarantined bool) {
	dev.FailedAuthAttempts++
	if dev.FailedAuthAttempts >= g.MaxAttempts {
		dev.Quarantined = true
		dev.Status = interfaces.StatusQuarantined
		return true
	}
	return false
}

// Reset clears the failure counter after a successful authentication or an
// explicit authorize action. It never touches the quarantine latch.
func (g QuarantineGuard) Reset(dev *interfaces.Device) {
	dev.FailedAuthAttempts = 0
}
