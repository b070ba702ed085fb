package engine

import (
	"time"

	"github.com/oneedge/gateway/interfaces"
)

// RotationScheduler decides when a device's session secret must rotate.
// Cadence is configured per device; rotation itself happens inline during a
// successful authentication or a forced rotate call.
type RotationScheduler struct{}

// Due reports whether the session secret is overdue. A zero or unset
// interval disables rotation entirely; a device that has never rotated is
// immediately due.
func (RotationScheduler) Due(dev *interfaces.Device, now time.Time) bool {
	if dev.RotationIntervalHours == 0 {
		return false
	}
	if dev.LastRotatedAt == nil {
		return true
	}
	return now.Sub(*dev.LastRotatedAt) > time.Duration(dev.RotationIntervalHours)*time.Hour
}
