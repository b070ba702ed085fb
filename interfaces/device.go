package interfaces

import (
	"time"

	"gorm.io/datatypes"
)

// AuthMethod identifies how a device proves its identity to the gateway.
type AuthMethod string

const (
	// AuthMethodPreSharedKey authenticates with a static provisioning key and
	// a rotating session secret. This is the only method with a full protocol
	// flow; x509 devices are provisioned but authenticate elsewhere.
	AuthMethodPreSharedKey AuthMethod = "pre_shared_key"
	AuthMethodX509         AuthMethod = "x509"
)

// DeviceStatus is the display state of a device. It is derived from the
// authentication flow and kept consistent with the Quarantined latch.
type DeviceStatus string

const (
	StatusInactive    DeviceStatus = "inactive"
	StatusActive      DeviceStatus = "active"
	StatusQuarantined DeviceStatus = "quarantined"
)

// Device is the durable record for an enrolled edge device. One row per
// device; DeviceID is the unique key. Secret material is stored as one-way
// digests only, never plaintext, and digests are never serialized to JSON.
type Device struct {
	DeviceID   string `gorm:"primaryKey;column:device_id" json:"device_id"`
	Name       string `json:"name"`
	DeviceType string `json:"device_type,omitempty"`
	Location   string `json:"location,omitempty"`

	Status     DeviceStatus `gorm:"default:'inactive'" json:"status"`
	AuthMethod AuthMethod   `gorm:"default:'pre_shared_key'" json:"auth_method"`

	// AuthID is an external identity bound on first contact. Once set it is
	// an immutable anchor: a later mismatch is a hard authentication failure.
	AuthID string `json:"auth_id,omitempty"`

	AllowedEndpoints      datatypes.JSONSlice[string] `json:"allowed_endpoints"`
	RotationIntervalHours uint                        `json:"rotation_interval_hours,omitempty"`

	// Digests of the rotating session secret and the permanent provisioning
	// key. DeviceStaticSecretHash is set once and immutable thereafter.
	CurrentSecretHash      string `json:"-"`
	DeviceStaticSecretHash string `json:"-"`

	// HardwareFingerprintHash is bound on first contact, like AuthID.
	HardwareFingerprintHash string `json:"-"`

	// DevicePublicKey is descriptive staging material for x509 devices; the
	// pre-shared-key flow never reads it.
	DevicePublicKey string `json:"device_public_key,omitempty"`

	// PolicyDocument, when set by an operator, replaces the generated policy
	// verbatim.
	PolicyDocument datatypes.JSONMap `json:"policy_document,omitempty"`

	Quarantined bool `json:"quarantined"`

	ProvisionedAt time.Time  `json:"provisioned_at"`
	LastSeenAt    *time.Time `json:"last_seen_at,omitempty"`
	LastAuthAt    *time.Time `json:"last_auth_at,omitempty"`
	LastRotatedAt *time.Time `json:"last_rotated_at,omitempty"`

	// Outstanding challenge state. Nonce and expiry are set together and
	// cleared together, never one without the other.
	ChallengeNonce     string     `json:"-"`
	ChallengeExpiresAt *time.Time `json:"challenge_expires_at,omitempty"`

	FailedAuthAttempts uint `json:"failed_auth_attempts"`

	// Attributes is an open extension bag, shallow-merged on update.
	Attributes datatypes.JSONMap `json:"attributes,omitempty"`
}

// TableName pins the table name for the GORM store.
func (Device) TableName() string { return "devices" }

// Clone returns a deep copy of the device. Engine operations work on clones
// so that a rolled-back call never leaves partial mutations behind.
func (d *Device) Clone() *Device {
	c := *d
	if d.AllowedEndpoints != nil {
		c.AllowedEndpoints = append(datatypes.JSONSlice[string]{}, d.AllowedEndpoints...)
	}
	c.PolicyDocument = cloneJSONMap(d.PolicyDocument)
	c.Attributes = cloneJSONMap(d.Attributes)
	c.LastSeenAt = cloneTime(d.LastSeenAt)
	c.LastAuthAt = cloneTime(d.LastAuthAt)
	c.LastRotatedAt = cloneTime(d.LastRotatedAt)
	c.ChallengeExpiresAt = cloneTime(d.ChallengeExpiresAt)
	return &c
}

// ChallengePending reports whether the device has an outstanding challenge.
func (d *Device) ChallengePending() bool { return d.ChallengeNonce != "" }

// NeedsRotation reports whether the session secret is overdue for rotation.
// False when rotation is disabled; true when the device has never rotated.
func (d *Device) NeedsRotation(now time.Time) bool {
	if d.RotationIntervalHours == 0 {
		return false
	}
	if d.LastRotatedAt == nil {
		return true
	}
	return now.Sub(*d.LastRotatedAt) > time.Duration(d.RotationIntervalHours)*time.Hour
}

// Stale reports whether the device has not been seen for longer than twice
// its rotation interval, or 48 hours when rotation is disabled.
func (d *Device) Stale(now time.Time) bool {
	if d.LastSeenAt == nil {
		return false
	}
	threshold := 48 * time.Hour
	if d.RotationIntervalHours > 0 {
		threshold = 2 * time.Duration(d.RotationIntervalHours) * time.Hour
	}
	return now.Sub(*d.LastSeenAt) > threshold
}

func cloneJSONMap(m datatypes.JSONMap) datatypes.JSONMap {
	if m == nil {
		return nil
	}
	c := make(datatypes.JSONMap, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
