package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/oneedge/gateway/engine"
	"github.com/oneedge/gateway/interfaces"
)

// ProvisionRequest is the operator payload for the device upsert endpoint.
// Key material fields carry plaintext on the wire (the transport is expected
// to be TLS-terminated upstream) and are digested before persistence.
type ProvisionRequest struct {
	DeviceID              string         `json:"device_id"`
	Name                  string         `json:"name,omitempty"`
	DeviceType            string         `json:"device_type,omitempty"`
	Location              string         `json:"location,omitempty"`
	Status                string         `json:"status,omitempty"`
	AuthMethod            string         `json:"auth_method,omitempty"`
	AuthID                string         `json:"auth_id,omitempty"`
	AllowedEndpoints      []string       `json:"allowed_endpoints,omitempty"`
	RotationIntervalHours uint           `json:"rotation_interval_hours,omitempty"`
	PolicyTemplate        map[string]any `json:"policy_template,omitempty"`
	DeviceStaticKey       string         `json:"device_static_key,omitempty"`
	HardwareFingerprint   string         `json:"hardware_fingerprint,omitempty"`
	DevicePublicKey       string         `json:"device_public_key,omitempty"`
	Quarantined           *bool          `json:"quarantined,omitempty"`
	Metadata              map[string]any `json:"metadata,omitempty"`
	InitialSecret         string         `json:"initial_secret,omitempty"`
}

// Validate normalizes the request in place and rejects malformed payloads
// before they reach the engine.
func (r *ProvisionRequest) Validate() error {
	r.DeviceID = strings.TrimSpace(r.DeviceID)
	if r.DeviceID == "" {
		return errors.New("device_id must not be empty")
	}
	r.AuthMethod = strings.ToLower(strings.TrimSpace(r.AuthMethod))
	switch r.AuthMethod {
	case "", string(interfaces.AuthMethodPreSharedKey), string(interfaces.AuthMethodX509):
	default:
		return errors.New("auth_method must be pre_shared_key or x509")
	}
	switch r.Status {
	case "", string(interfaces.StatusInactive), string(interfaces.StatusActive), string(interfaces.StatusQuarantined):
	default:
		return errors.New("status must be inactive, active or quarantined")
	}
	return nil
}

// EngineRequest converts the validated payload into the engine's input.
func (r *ProvisionRequest) EngineRequest() engine.ProvisionRequest {
	return engine.ProvisionRequest{
		Name:                  r.Name,
		DeviceType:            r.DeviceType,
		Location:              r.Location,
		Status:                interfaces.DeviceStatus(r.Status),
		AuthMethod:            interfaces.AuthMethod(r.AuthMethod),
		AuthID:                r.AuthID,
		AllowedEndpoints:      r.AllowedEndpoints,
		RotationIntervalHours: r.RotationIntervalHours,
		PolicyTemplate:        r.PolicyTemplate,
		DeviceStaticKey:       r.DeviceStaticKey,
		HardwareFingerprint:   r.HardwareFingerprint,
		DevicePublicKey:       r.DevicePublicKey,
		Quarantined:           r.Quarantined,
		Metadata:              r.Metadata,
		InitialSecret:         r.InitialSecret,
	}
}

// ProvisionResponse returns the upserted device. BootstrapSecret appears
// exactly once, on the call that minted a fresh random session secret.
type ProvisionResponse struct {
	Status          string        `json:"status"`
	Device          DeviceSummary `json:"device"`
	BootstrapSecret string        `json:"bootstrap_secret,omitempty"`
}

// RegisterRequest is the device payload for the dual-purpose registration
// endpoint: challenge issuance when RequestChallenge is set or no response
// is supplied, challenge verification otherwise.
type RegisterRequest struct {
	DeviceID            string         `json:"device_id"`
	AuthID              string         `json:"auth_id,omitempty"`
	AuthSecret          string         `json:"auth_secret,omitempty"`
	HardwareFingerprint string         `json:"hardware_fingerprint,omitempty"`
	RequestChallenge    bool           `json:"request_challenge,omitempty"`
	ChallengeResponse   string         `json:"challenge_response,omitempty"`
	Attributes          map[string]any `json:"attributes,omitempty"`
}

// Validate rejects malformed registration payloads.
func (r *RegisterRequest) Validate() error {
	r.DeviceID = strings.TrimSpace(r.DeviceID)
	if r.DeviceID == "" {
		return errors.New("device_id must not be empty")
	}
	return nil
}

// EngineRequest converts the payload into the engine's input.
func (r *RegisterRequest) EngineRequest() engine.RegisterRequest {
	return engine.RegisterRequest{
		AuthID:              r.AuthID,
		StaticSecret:        r.AuthSecret,
		HardwareFingerprint: r.HardwareFingerprint,
		RequestChallenge:    r.RequestChallenge,
		ChallengeResponse:   r.ChallengeResponse,
		Attributes:          r.Attributes,
	}
}

// RegisterResponse carries either an issued challenge (status "challenge")
// or the authenticated result with the policy document (status "ok").
// SessionSecret appears once, when the engine rotated during the call.
type RegisterResponse struct {
	Status            string         `json:"status"`
	Challenge         string         `json:"challenge,omitempty"`
	ExpiresAt         *time.Time     `json:"expires_at,omitempty"`
	Device            DeviceSummary  `json:"device"`
	Policy            map[string]any `json:"policy,omitempty"`
	NextRotationHours uint           `json:"next_rotation_hours,omitempty"`
	SessionSecret     string         `json:"session_secret,omitempty"`
}

// RotateResponse returns the new session secret of a forced rotation.
type RotateResponse struct {
	Status        string        `json:"status"`
	Device        DeviceSummary `json:"device"`
	SessionSecret string        `json:"session_secret"`
}

// LifecycleRequest is the optional body of quarantine/authorize calls.
type LifecycleRequest struct {
	Reason string `json:"reason,omitempty"`
}

// LifecycleResponse returns the device after a lifecycle transition.
type LifecycleResponse struct {
	Status string        `json:"status"`
	Device DeviceSummary `json:"device"`
}

// StatusResponse is the body of endpoints with no payload, e.g. delete.
type StatusResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the JSON error body for all device API failures.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// DeviceSummary is the JSON view of a device record. It exposes derived
// operator signals and hides all secret digests and the outstanding nonce.
type DeviceSummary struct {
	DeviceID              string         `json:"device_id"`
	Name                  string         `json:"name"`
	DeviceType            string         `json:"device_type,omitempty"`
	Location              string         `json:"location,omitempty"`
	Status                string         `json:"status"`
	AuthMethod            string         `json:"auth_method"`
	AuthID                string         `json:"auth_id,omitempty"`
	AllowedEndpoints      []string       `json:"allowed_endpoints"`
	RotationIntervalHours uint           `json:"rotation_interval_hours"`
	Quarantined           bool           `json:"quarantined"`
	ProvisionedAt         time.Time      `json:"provisioned_at"`
	LastSeenAt            *time.Time     `json:"last_seen_at,omitempty"`
	LastAuthAt            *time.Time     `json:"last_auth_at,omitempty"`
	LastRotatedAt         *time.Time     `json:"last_rotated_at,omitempty"`
	Policy                map[string]any `json:"policy,omitempty"`
	Metadata              map[string]any `json:"metadata"`
	NeedsRotation         bool           `json:"needs_rotation"`
	Stale                 bool           `json:"stale"`
	AttentionRequired     bool           `json:"attention_required"`
	FailedAuthAttempts    uint           `json:"failed_auth_attempts"`
	ChallengePending      bool           `json:"challenge_pending"`
	ChallengeExpiresAt    *time.Time     `json:"challenge_expires_at,omitempty"`
}

// NewDeviceSummary builds the serialized view of a record, evaluating the
// derived rotation and staleness signals against now.
func NewDeviceSummary(dev *interfaces.Device, now time.Time) DeviceSummary {
	endpoints := []string(dev.AllowedEndpoints)
	if endpoints == nil {
		endpoints = []string{}
	}
	metadata := map[string]any(dev.Attributes)
	if metadata == nil {
		metadata = map[string]any{}
	}

	needsRotation := dev.NeedsRotation(now)
	stale := dev.Stale(now)
	return DeviceSummary{
		DeviceID:              dev.DeviceID,
		Name:                  dev.Name,
		DeviceType:            dev.DeviceType,
		Location:              dev.Location,
		Status:                string(dev.Status),
		AuthMethod:            string(dev.AuthMethod),
		AuthID:                dev.AuthID,
		AllowedEndpoints:      endpoints,
		RotationIntervalHours: dev.RotationIntervalHours,
		Quarantined:           dev.Quarantined,
		ProvisionedAt:         dev.ProvisionedAt,
		LastSeenAt:            dev.LastSeenAt,
		LastAuthAt:            dev.LastAuthAt,
		LastRotatedAt:         dev.LastRotatedAt,
		Policy:                dev.PolicyDocument,
		Metadata:              metadata,
		NeedsRotation:         needsRotation,
		Stale:                 stale,
		AttentionRequired:     dev.Quarantined || needsRotation || stale,
		FailedAuthAttempts:    dev.FailedAuthAttempts,
		ChallengePending:      dev.ChallengePending(),
		ChallengeExpiresAt:    dev.ChallengeExpiresAt,
	}
}

// HTTPStatusForAuthError maps a protocol failure kind to its HTTP status.
func HTTPStatusForAuthError(kind interfaces.AuthErrorKind) int {
	switch kind {
	case interfaces.KindNotProvisioned, interfaces.KindDeviceNotFound:
		return http.StatusNotFound
	case interfaces.KindQuarantined:
		return http.StatusLocked
	case interfaces.KindIdentityMismatch,
		interfaces.KindFingerprintMismatch,
		interfaces.KindInvalidStaticKey,
		interfaces.KindChallengeVerificationFailed:
		return http.StatusUnauthorized
	case interfaces.KindStaticKeyRequired,
		interfaces.KindChallengeNotRequested,
		interfaces.KindChallengeExpired,
		interfaces.KindUnsupportedRotationMethod:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
