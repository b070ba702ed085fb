package engine

import (
	"log/slog"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/oneedge/gateway/cryptoutils"
	"github.com/oneedge/gateway/interfaces"
)

// Config carries the protocol parameters. It is constructed once at startup
// and passed explicitly; the engine holds no global state.
type Config struct {
	// MaxFailedAuthAttempts is the failure count that quarantines a device.
	MaxFailedAuthAttempts uint

	// ChallengeWindow is how long an issued challenge nonce stays valid.
	ChallengeWindow time.Duration

	// BaseTopic roots the topic tree in synthesized policy documents.
	BaseTopic string
}

// DefaultConfig matches the gateway's shipped defaults.
func DefaultConfig() Config {
	return Config{
		MaxFailedAuthAttempts: 5,
		ChallengeWindow:       5 * time.Minute,
		BaseTopic:             "oneEdge",
	}
}

// Engine orchestrates provisioning and the registration protocol against a
// single device record per call. Operations mutate the passed record to the
// state that should be committed and report through the outcome's Persist
// flag whether the store transaction should commit that state.
type Engine struct {
	challenges ChallengeManager
	guard      QuarantineGuard
	rotation   RotationScheduler
	policy     PolicyIssuer
	log        *slog.Logger
}

// New creates an engine with the given protocol parameters.
func New(cfg Config, log *slog.Logger) *Engine {
	return &Engine{
		challenges: ChallengeManager{Window: cfg.ChallengeWindow},
		guard:      QuarantineGuard{MaxAttempts: cfg.MaxFailedAuthAttempts},
		rotation:   RotationScheduler{},
		policy:     PolicyIssuer{BaseTopic: cfg.BaseTopic},
		log:        log,
	}
}

// RegisterRequest is the engine-level input of the dual-purpose register
// operation: challenge issuance when RequestChallenge is set or no response
// is supplied, verification otherwise.
type RegisterRequest struct {
	AuthID              string
	StaticSecret        string
	HardwareFingerprint string
	RequestChallenge    bool
	ChallengeResponse   string
	Attributes          map[string]any
}

// Register statuses.
const (
	StatusChallenge = "challenge"
	StatusOK        = "ok"
)

// RegisterOutcome is the result of a register call. Exactly one of the
// challenge fields or the authenticated fields is populated on success; Err
// carries the protocol failure otherwise. Persist tells the store whether
// the record carries state that must commit, which can be true even when Err
// is set (failure counter, quarantine latch).
type RegisterOutcome struct {
	Status    string
	Challenge string
	ExpiresAt time.Time

	Policy        map[string]any
	SessionSecret string

	Persist bool
	Err     *interfaces.AuthError
}

// Register runs the registration protocol for one device as a single
// read-modify-write step. The passed record is mutated to the commit state;
// binding and challenge mutations of a failing call are rolled back, while
// the failure counter and quarantine latch survive in the same commit.
func (e *Engine) Register(dev *interfaces.Device, found bool, req RegisterRequest, now time.Time) RegisterOutcome {
	if !found {
		return RegisterOutcome{Err: interfaces.ErrNotProvisioned}
	}

	// The quarantine latch rejects every attempt up front, independent of
	// credential correctness, until an operator authorizes the device.
	if dev.Quarantined {
		return RegisterOutcome{Err: interfaces.ErrQuarantined}
	}

	// Optimistic mutations go to a clone so a later failure discards them.
	work := dev.Clone()

	if dev.AuthID != "" && req.AuthID != "" && dev.AuthID != req.AuthID {
		return e.fail(dev, interfaces.ErrIdentityMismatch)
	}
	if work.AuthID == "" && req.AuthID != "" {
		work.AuthID = req.AuthID
	}

	if req.HardwareFingerprint != "" {
		fingerprintHash := cryptoutils.HashSecret(req.HardwareFingerprint)
		if dev.HardwareFingerprintHash != "" && dev.HardwareFingerprintHash != fingerprintHash {
			return e.fail(dev, interfaces.ErrFingerprintMismatch)
		}
		if work.HardwareFingerprintHash == "" {
			work.HardwareFingerprintHash = fingerprintHash
		}
	}

	if dev.DeviceStaticSecretHash == "" {
		if req.StaticSecret == "" {
			return RegisterOutcome{Err: interfaces.ErrStaticKeyRequired}
		}
		work.DeviceStaticSecretHash = cryptoutils.HashSecret(req.StaticSecret)
	} else if req.StaticSecret != "" && !cryptoutils.VerifySecret(dev.DeviceStaticSecretHash, req.StaticSecret) {
		return e.fail(dev, interfaces.ErrInvalidStaticKey)
	}

	// Initial session-key bootstrap: presenting the static key re-seeds the
	// session secret for pre-shared-key devices.
	if req.StaticSecret != "" && work.AuthMethod == interfaces.AuthMethodPreSharedKey {
		work.CurrentSecretHash = cryptoutils.HashSecret(req.StaticSecret)
		rotated := now
		work.LastRotatedAt = &rotated
	}

	if req.RequestChallenge || req.ChallengeResponse == "" {
		nonce, expiresAt := e.challenges.Issue(work, now)
		*dev = *work
		return RegisterOutcome{
			Status:    StatusChallenge,
			Challenge: nonce,
			ExpiresAt: expiresAt,
			Persist:   true,
		}
	}

	if dev.ChallengeNonce == "" || dev.ChallengeExpiresAt == nil {
		return e.fail(dev, interfaces.ErrChallengeNotRequested)
	}
	if now.After(*dev.ChallengeExpiresAt) {
		return e.fail(dev, interfaces.ErrChallengeExpired)
	}
	if !cryptoutils.VerifyChallengeResponse(dev.DeviceStaticSecretHash, dev.ChallengeNonce, req.ChallengeResponse) {
		return e.fail(dev, interfaces.ErrChallengeVerificationFailed)
	}

	e.challenges.Clear(work)
	e.guard.Reset(work)
	seen := now
	work.LastSeenAt = &seen
	work.LastAuthAt = &seen
	if work.Status != interfaces.StatusQuarantined {
		work.Status = interfaces.StatusActive
	}

	if len(req.Attributes) > 0 {
		if work.Attributes == nil {
			work.Attributes = datatypes.JSONMap{}
		}
		for k, v := range req.Attributes {
			work.Attributes[k] = v
		}
	}

	var sessionSecret string
	if work.AuthMethod == interfaces.AuthMethodPreSharedKey && e.rotation.Due(work, now) {
		sessionSecret = cryptoutils.GenerateToken()
		work.CurrentSecretHash = cryptoutils.HashSecret(sessionSecret)
		rotated := now
		work.LastRotatedAt = &rotated
		e.log.Info("Rotated device session secret", "deviceID", work.DeviceID)
	}

	*dev = *work
	return RegisterOutcome{
		Status:        StatusOK,
		Policy:        e.policy.Build(dev),
		SessionSecret: sessionSecret,
		Persist:       true,
	}
}

// fail applies the counting failure side effect to the original record,
// discarding any optimistic mutations the call made, and returns an outcome
// that commits only the counter and a possible quarantine latch.
func (e *Engine) fail(dev *interfaces.Device, authErr *interfaces.AuthError) RegisterOutcome {
	if e.guard.RecordFailure(dev) {
		e.log.Warn("Device quarantined after repeated authentication failures",
			"deviceID", dev.DeviceID, "failedAttempts", dev.FailedAuthAttempts)
	}
	return RegisterOutcome{Persist: true, Err: authErr}
}

// ProvisionRequest carries the operator-supplied fields of a provisioning
// upsert. Plaintext key material (DeviceStaticKey, InitialSecret,
// HardwareFingerprint) is digested before it touches the record.
type ProvisionRequest struct {
	Name                  string
	DeviceType            string
	Location              string
	Status                interfaces.DeviceStatus
	AuthMethod            interfaces.AuthMethod
	AuthID                string
	AllowedEndpoints      []string
	RotationIntervalHours uint
	PolicyTemplate        map[string]any
	DeviceStaticKey       string
	HardwareFingerprint   string
	DevicePublicKey       string
	Quarantined           *bool
	Metadata              map[string]any
	InitialSecret         string
}

// ProvisionOutcome reports the result of a provisioning upsert.
// BootstrapSecret is set only on the call that mints a fresh random session
// secret; it is returned exactly once and never again retrievable.
type ProvisionOutcome struct {
	BootstrapSecret string
	Created         bool
	Persist         bool
}

// Provision upserts a device record. On first establishment of a
// pre-shared-key device's session secret the bootstrap priority is: explicit
// initial secret, then a pre-existing static-key digest reused as the session
// digest, then a freshly generated random secret. An already-set session
// digest is never silently overwritten; only an explicit new initial secret
// replaces it.
func (e *Engine) Provision(dev *interfaces.Device, found bool, req ProvisionRequest, now time.Time) ProvisionOutcome {
	if !found {
		dev.Name = dev.DeviceID
		dev.Status = interfaces.StatusInactive
		dev.AuthMethod = interfaces.AuthMethodPreSharedKey
		dev.ProvisionedAt = now
	}

	if req.Name != "" {
		dev.Name = req.Name
	}
	dev.DeviceType = req.DeviceType
	dev.Location = req.Location
	if req.Status != "" {
		dev.Status = req.Status
	}
	if req.AuthMethod != "" {
		dev.AuthMethod = req.AuthMethod
	}
	if req.AuthID != "" {
		dev.AuthID = req.AuthID
	}
	if req.AllowedEndpoints != nil {
		dev.AllowedEndpoints = normalizeEndpoints(req.AllowedEndpoints)
	}
	if req.RotationIntervalHours > 0 {
		dev.RotationIntervalHours = req.RotationIntervalHours
	}
	if req.PolicyTemplate != nil {
		dev.PolicyDocument = datatypes.JSONMap(req.PolicyTemplate)
	}
	if req.DevicePublicKey != "" {
		dev.DevicePublicKey = req.DevicePublicKey
	}

	if req.DeviceStaticKey != "" {
		dev.DeviceStaticSecretHash = cryptoutils.HashSecret(req.DeviceStaticKey)
	}
	if req.HardwareFingerprint != "" {
		dev.HardwareFingerprintHash = cryptoutils.HashSecret(req.HardwareFingerprint)
	}

	if req.Quarantined != nil {
		dev.Quarantined = *req.Quarantined
		if dev.Quarantined {
			dev.Status = interfaces.StatusQuarantined
		}
	}

	if len(req.Metadata) > 0 {
		if dev.Attributes == nil {
			dev.Attributes = datatypes.JSONMap{}
		}
		for k, v := range req.Metadata {
			dev.Attributes[k] = v
		}
	}

	var bootstrapSecret string
	if dev.AuthMethod == interfaces.AuthMethodPreSharedKey {
		switch {
		case req.InitialSecret != "":
			dev.CurrentSecretHash = cryptoutils.HashSecret(req.InitialSecret)
			rotated := now
			dev.LastRotatedAt = &rotated
		case dev.CurrentSecretHash != "":
			// Established session digest stays as is.
		case dev.DeviceStaticSecretHash != "":
			dev.CurrentSecretHash = dev.DeviceStaticSecretHash
			rotated := now
			dev.LastRotatedAt = &rotated
		default:
			bootstrapSecret = cryptoutils.GenerateToken()
			dev.CurrentSecretHash = cryptoutils.HashSecret(bootstrapSecret)
			rotated := now
			dev.LastRotatedAt = &rotated
		}
	}

	return ProvisionOutcome{
		BootstrapSecret: bootstrapSecret,
		Created:         !found,
		Persist:         true,
	}
}

// RotateOutcome is the result of a forced rotation.
type RotateOutcome struct {
	SessionSecret string
	Persist       bool
	Err           *interfaces.AuthError
}

// Rotate forces a session-secret rotation regardless of cadence. Only
// pre-shared-key devices rotate through the gateway.
func (e *Engine) Rotate(dev *interfaces.Device, found bool, now time.Time) RotateOutcome {
	if !found {
		return RotateOutcome{Err: interfaces.ErrDeviceNotFound}
	}
	if dev.AuthMethod != interfaces.AuthMethodPreSharedKey {
		return RotateOutcome{Err: interfaces.ErrUnsupportedRotationMethod}
	}

	secret := cryptoutils.GenerateToken()
	dev.CurrentSecretHash = cryptoutils.HashSecret(secret)
	rotated := now
	dev.LastRotatedAt = &rotated
	return RotateOutcome{SessionSecret: secret, Persist: true}
}

// LifecycleOutcome is the result of a quarantine or authorize action.
type LifecycleOutcome struct {
	Persist bool
	Err     *interfaces.AuthError
}

// Quarantine latches the device out of the authentication flow. The reason,
// when given, is kept as a quarantine_reason attribute for the operator.
func (e *Engine) Quarantine(dev *interfaces.Device, found bool, reason string) LifecycleOutcome {
	if !found {
		return LifecycleOutcome{Err: interfaces.ErrDeviceNotFound}
	}

	dev.Quarantined = true
	dev.Status = interfaces.StatusQuarantined
	if reason != "" {
		if dev.Attributes == nil {
			dev.Attributes = datatypes.JSONMap{}
		}
		dev.Attributes["quarantine_reason"] = reason
	}
	e.log.Info("Device quarantined", "deviceID", dev.DeviceID, "reason", reason)
	return LifecycleOutcome{Persist: true}
}

// Authorize releases the quarantine latch: the failure counter resets, any
// outstanding challenge is cleared, and the device returns to inactive until
// it authenticates again. An optional note is recorded for the operator.
func (e *Engine) Authorize(dev *interfaces.Device, found bool, reason string) LifecycleOutcome {
	if !found {
		return LifecycleOutcome{Err: interfaces.ErrDeviceNotFound}
	}

	dev.Quarantined = false
	if dev.Attributes != nil {
		delete(dev.Attributes, "quarantine_reason")
	}
	if reason != "" {
		if dev.Attributes == nil {
			dev.Attributes = datatypes.JSONMap{}
		}
		dev.Attributes["authorization_note"] = reason
	}
	if dev.Status == "" || dev.Status == interfaces.StatusQuarantined {
		dev.Status = interfaces.StatusInactive
	}
	e.guard.Reset(dev)
	e.challenges.Clear(dev)
	e.log.Info("Device authorized", "deviceID", dev.DeviceID)
	return LifecycleOutcome{Persist: true}
}

func normalizeEndpoints(endpoints []string) datatypes.JSONSlice[string] {
	cleaned := make(datatypes.JSONSlice[string], 0, len(endpoints))
	for _, endpoint := range endpoints {
		trimmed := strings.TrimSpace(endpoint)
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}
