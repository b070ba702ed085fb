package engine

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneedge/gateway/cryptoutils"
	"github.com/oneedge/gateway/interfaces"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	return New(DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func provisionedDevice(staticKey string) *interfaces.Device {
	dev := &interfaces.Device{
		DeviceID:   "press-01",
		Name:       "Press 01",
		Status:     interfaces.StatusInactive,
		AuthMethod: interfaces.AuthMethodPreSharedKey,
	}
	if staticKey != "" {
		dev.DeviceStaticSecretHash = cryptoutils.HashSecret(staticKey)
		dev.CurrentSecretHash = dev.DeviceStaticSecretHash
	}
	return dev
}

// issueChallenge walks the issuance half of the handshake.
func issueChallenge(t *testing.T, eng *Engine, dev *interfaces.Device, now time.Time) string {
	t.Helper()
	out := eng.Register(dev, true, RegisterRequest{RequestChallenge: true}, now)
	require.Nil(t, out.Err)
	require.Equal(t, StatusChallenge, out.Status)
	require.True(t, out.Persist)
	return out.Challenge
}

func TestRegister_NotProvisioned(t *testing.T) {
	eng := testEngine(t)
	dev := &interfaces.Device{DeviceID: "ghost"}

	out := eng.Register(dev, false, RegisterRequest{RequestChallenge: true}, time.Now())
	require.NotNil(t, out.Err)
	assert.Equal(t, interfaces.KindNotProvisioned, out.Err.Kind)
	assert.False(t, out.Persist)
}

func TestRegister_ChallengeStampsNonceAndExpiry(t *testing.T) {
	eng := testEngine(t)
	dev := provisionedDevice("k1")
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	out := eng.Register(dev, true, RegisterRequest{RequestChallenge: true}, now)
	require.Nil(t, out.Err)
	assert.Equal(t, out.Challenge, dev.ChallengeNonce)
	require.NotNil(t, dev.ChallengeExpiresAt)
	assert.Equal(t, now.Add(5*time.Minute), *dev.ChallengeExpiresAt)
	assert.Equal(t, now.Add(5*time.Minute), out.ExpiresAt)
	require.NotNil(t, dev.LastSeenAt)
	assert.Equal(t, now, *dev.LastSeenAt)
}

func TestRegister_ReissueOverwritesOutstandingChallenge(t *testing.T) {
	eng := testEngine(t)
	dev := provisionedDevice("k1")
	now := time.Now()

	first := issueChallenge(t, eng, dev, now)
	second := issueChallenge(t, eng, dev, now.Add(time.Minute))
	assert.NotEqual(t, first, second)
	assert.Equal(t, second, dev.ChallengeNonce)
}

func TestRegister_SuccessfulVerification(t *testing.T) {
	eng := testEngine(t)
	dev := provisionedDevice("k1")
	dev.FailedAuthAttempts = 3
	now := time.Now()

	nonce := issueChallenge(t, eng, dev, now)
	response := cryptoutils.ChallengeResponse(dev.DeviceStaticSecretHash, nonce)

	out := eng.Register(dev, true, RegisterRequest{ChallengeResponse: response}, now.Add(time.Minute))
	require.Nil(t, out.Err)
	assert.Equal(t, StatusOK, out.Status)
	assert.True(t, out.Persist)

	assert.Empty(t, dev.ChallengeNonce)
	assert.Nil(t, dev.ChallengeExpiresAt)
	assert.Zero(t, dev.FailedAuthAttempts)
	assert.Equal(t, interfaces.StatusActive, dev.Status)
	require.NotNil(t, dev.LastAuthAt)
	assert.Empty(t, out.SessionSecret, "rotation disabled, no new secret")
}

func TestRegister_FailureKindsAndSideEffects(t *testing.T) {
	now := time.Now()
	expired := now.Add(-time.Minute)
	valid := now.Add(5 * time.Minute)

	tests := []struct {
		name         string
		setup        func(dev *interfaces.Device)
		req          RegisterRequest
		wantKind     interfaces.AuthErrorKind
		wantAttempts uint
		wantPersist  bool
	}{
		{
			name:         "identity mismatch counts",
			setup:        func(dev *interfaces.Device) { dev.AuthID = "edge-1" },
			req:          RegisterRequest{AuthID: "edge-2", RequestChallenge: true},
			wantKind:     interfaces.KindIdentityMismatch,
			wantAttempts: 1,
			wantPersist:  true,
		},
		{
			name: "fingerprint mismatch counts",
			setup: func(dev *interfaces.Device) {
				dev.HardwareFingerprintHash = cryptoutils.HashSecret("fp-1")
			},
			req:          RegisterRequest{HardwareFingerprint: "fp-2", RequestChallenge: true},
			wantKind:     interfaces.KindFingerprintMismatch,
			wantAttempts: 1,
			wantPersist:  true,
		},
		{
			name: "missing static key on first contact does not count",
			setup: func(dev *interfaces.Device) {
				dev.DeviceStaticSecretHash = ""
			},
			req:          RegisterRequest{RequestChallenge: true},
			wantKind:     interfaces.KindStaticKeyRequired,
			wantAttempts: 0,
			wantPersist:  false,
		},
		{
			name:         "wrong static key counts",
			req:          RegisterRequest{StaticSecret: "wrong", RequestChallenge: true},
			wantKind:     interfaces.KindInvalidStaticKey,
			wantAttempts: 1,
			wantPersist:  true,
		},
		{
			name:         "response without outstanding challenge counts",
			req:          RegisterRequest{ChallengeResponse: "resp"},
			wantKind:     interfaces.KindChallengeNotRequested,
			wantAttempts: 1,
			wantPersist:  true,
		},
		{
			name: "expired challenge counts",
			setup: func(dev *interfaces.Device) {
				dev.ChallengeNonce = "nonce"
				dev.ChallengeExpiresAt = &expired
			},
			req:          RegisterRequest{ChallengeResponse: "resp"},
			wantKind:     interfaces.KindChallengeExpired,
			wantAttempts: 1,
			wantPersist:  true,
		},
		{
			name: "wrong response counts",
			setup: func(dev *interfaces.Device) {
				dev.ChallengeNonce = "nonce"
				dev.ChallengeExpiresAt = &valid
			},
			req:          RegisterRequest{ChallengeResponse: "not-the-hmac"},
			wantKind:     interfaces.KindChallengeVerificationFailed,
			wantAttempts: 1,
			wantPersist:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := testEngine(t)
			dev := provisionedDevice("k1")
			if tt.setup != nil {
				tt.setup(dev)
			}

			out := eng.Register(dev, true, tt.req, now)
			require.NotNil(t, out.Err)
			assert.Equal(t, tt.wantKind, out.Err.Kind)
			assert.Equal(t, tt.wantPersist, out.Persist)
			assert.Equal(t, tt.wantAttempts, dev.FailedAuthAttempts)
		})
	}
}

func TestRegister_FailureDiscardsOptimisticBindings(t *testing.T) {
	eng := testEngine(t)
	dev := provisionedDevice("k1")
	now := time.Now()

	// auth_id would bind, fingerprint would bind, but the wrong static key
	// fails the call: only the counter may survive.
	out := eng.Register(dev, true, RegisterRequest{
		AuthID:              "edge-1",
		HardwareFingerprint: "fp-1",
		StaticSecret:        "wrong",
		RequestChallenge:    true,
	}, now)
	require.NotNil(t, out.Err)
	assert.Equal(t, interfaces.KindInvalidStaticKey, out.Err.Kind)

	assert.Empty(t, dev.AuthID)
	assert.Empty(t, dev.HardwareFingerprintHash)
	assert.Equal(t, uint(1), dev.FailedAuthAttempts)
}

func TestRegister_QuarantineLatchIsOneWay(t *testing.T) {
	eng := testEngine(t)
	dev := provisionedDevice("k1")
	now := time.Now()
	nonce := issueChallenge(t, eng, dev, now)

	for i := 0; i < 5; i++ {
		out := eng.Register(dev, true, RegisterRequest{ChallengeResponse: "wrong"}, now)
		require.NotNil(t, out.Err)
	}
	assert.True(t, dev.Quarantined)
	assert.Equal(t, interfaces.StatusQuarantined, dev.Status)

	// Correct response is irrelevant while quarantined.
	response := cryptoutils.ChallengeResponse(dev.DeviceStaticSecretHash, nonce)
	out := eng.Register(dev, true, RegisterRequest{ChallengeResponse: response}, now)
	require.NotNil(t, out.Err)
	assert.Equal(t, interfaces.KindQuarantined, out.Err.Kind)
	assert.False(t, out.Persist)

	// The latch never clears through the protocol, only through Authorize.
	lifecycle := eng.Authorize(dev, true, "")
	require.Nil(t, lifecycle.Err)
	assert.False(t, dev.Quarantined)
	assert.Zero(t, dev.FailedAuthAttempts)
	assert.Empty(t, dev.ChallengeNonce)
}

func TestRegister_SameNonceStaysValidAfterFailedAttempt(t *testing.T) {
	eng := testEngine(t)
	dev := provisionedDevice("k1")
	now := time.Now()

	nonce := issueChallenge(t, eng, dev, now)
	out := eng.Register(dev, true, RegisterRequest{ChallengeResponse: "wrong"}, now)
	require.NotNil(t, out.Err)
	assert.Equal(t, nonce, dev.ChallengeNonce, "failed attempt must not invalidate the nonce")

	response := cryptoutils.ChallengeResponse(dev.DeviceStaticSecretHash, nonce)
	ok := eng.Register(dev, true, RegisterRequest{ChallengeResponse: response}, now)
	require.Nil(t, ok.Err)
	assert.Equal(t, StatusOK, ok.Status)
}

func TestRegister_StaticKeyBootstrapsSessionSecret(t *testing.T) {
	eng := testEngine(t)
	dev := provisionedDevice("")
	now := time.Now()

	out := eng.Register(dev, true, RegisterRequest{StaticSecret: "k1", RequestChallenge: true}, now)
	require.Nil(t, out.Err)
	assert.Equal(t, cryptoutils.HashSecret("k1"), dev.DeviceStaticSecretHash)
	assert.Equal(t, cryptoutils.HashSecret("k1"), dev.CurrentSecretHash)
	require.NotNil(t, dev.LastRotatedAt)
	assert.Equal(t, now, *dev.LastRotatedAt)
}

func TestProvision_Idempotent(t *testing.T) {
	eng := testEngine(t)
	now := time.Now()
	req := ProvisionRequest{
		Name:          "Press 01",
		AuthMethod:    interfaces.AuthMethodPreSharedKey,
		InitialSecret: "k1",
	}

	dev := &interfaces.Device{DeviceID: "press-01"}
	first := eng.Provision(dev, false, req, now)
	assert.True(t, first.Created)
	assert.Empty(t, first.BootstrapSecret, "explicit secret is not echoed")

	snapshot := dev.Clone()
	second := eng.Provision(dev, true, req, now)
	assert.False(t, second.Created)
	assert.Empty(t, second.BootstrapSecret)
	assert.Equal(t, snapshot.CurrentSecretHash, dev.CurrentSecretHash)
	assert.Equal(t, snapshot.Name, dev.Name)
	assert.Equal(t, snapshot.Status, dev.Status)
}

func TestProvision_BootstrapPriority(t *testing.T) {
	eng := testEngine(t)
	now := time.Now()

	// Explicit initial secret wins over the static key.
	dev := &interfaces.Device{DeviceID: "a"}
	out := eng.Provision(dev, false, ProvisionRequest{InitialSecret: "s1", DeviceStaticKey: "static"}, now)
	assert.Empty(t, out.BootstrapSecret)
	assert.Equal(t, cryptoutils.HashSecret("s1"), dev.CurrentSecretHash)

	// Static key digest is reused when no initial secret is given.
	dev = &interfaces.Device{DeviceID: "b"}
	out = eng.Provision(dev, false, ProvisionRequest{DeviceStaticKey: "static"}, now)
	assert.Empty(t, out.BootstrapSecret)
	assert.Equal(t, cryptoutils.HashSecret("static"), dev.CurrentSecretHash)

	// Nothing given: a random secret is minted and returned once.
	dev = &interfaces.Device{DeviceID: "c"}
	out = eng.Provision(dev, false, ProvisionRequest{}, now)
	require.NotEmpty(t, out.BootstrapSecret)
	assert.Equal(t, cryptoutils.HashSecret(out.BootstrapSecret), dev.CurrentSecretHash)
}

func TestProvision_NewInitialSecretReplacesSession(t *testing.T) {
	eng := testEngine(t)
	now := time.Now()

	dev := &interfaces.Device{DeviceID: "press-01"}
	eng.Provision(dev, false, ProvisionRequest{InitialSecret: "old"}, now)
	oldHash := dev.CurrentSecretHash

	eng.Provision(dev, true, ProvisionRequest{}, now)
	assert.Equal(t, oldHash, dev.CurrentSecretHash, "no silent overwrite")

	eng.Provision(dev, true, ProvisionRequest{InitialSecret: "new"}, now)
	assert.Equal(t, cryptoutils.HashSecret("new"), dev.CurrentSecretHash)
}

func TestProvision_NormalizesEndpoints(t *testing.T) {
	eng := testEngine(t)
	dev := &interfaces.Device{DeviceID: "press-01"}

	eng.Provision(dev, false, ProvisionRequest{
		AllowedEndpoints: []string{" mqtt://broker:1883 ", "", "https://api.local"},
	}, time.Now())
	assert.Equal(t, []string{"mqtt://broker:1883", "https://api.local"}, []string(dev.AllowedEndpoints))
}

func TestRotate(t *testing.T) {
	eng := testEngine(t)
	now := time.Now()

	dev := provisionedDevice("k1")
	out := eng.Rotate(dev, true, now)
	require.Nil(t, out.Err)
	require.NotEmpty(t, out.SessionSecret)
	assert.Equal(t, cryptoutils.HashSecret(out.SessionSecret), dev.CurrentSecretHash)
	require.NotNil(t, dev.LastRotatedAt)
	assert.Equal(t, now, *dev.LastRotatedAt)

	x509Dev := provisionedDevice("")
	x509Dev.AuthMethod = interfaces.AuthMethodX509
	out = eng.Rotate(x509Dev, true, now)
	require.NotNil(t, out.Err)
	assert.Equal(t, interfaces.KindUnsupportedRotationMethod, out.Err.Kind)

	out = eng.Rotate(&interfaces.Device{}, false, now)
	require.NotNil(t, out.Err)
	assert.Equal(t, interfaces.KindDeviceNotFound, out.Err.Kind)
}

func TestRotationScheduler_Due(t *testing.T) {
	scheduler := RotationScheduler{}
	now := time.Now()
	past := now.Add(-90 * time.Minute)

	dev := &interfaces.Device{}
	assert.False(t, scheduler.Due(dev, now), "no interval disables rotation")

	dev.RotationIntervalHours = 1
	assert.True(t, scheduler.Due(dev, now), "never rotated means due")

	dev.LastRotatedAt = &past
	assert.True(t, scheduler.Due(dev, now))

	exactly := now.Add(-time.Hour)
	dev.LastRotatedAt = &exactly
	assert.False(t, scheduler.Due(dev, now), "due strictly after the interval")

	recent := now.Add(-30 * time.Minute)
	dev.LastRotatedAt = &recent
	assert.False(t, scheduler.Due(dev, now))
}

func TestQuarantineGuard_Threshold(t *testing.T) {
	guard := QuarantineGuard{MaxAttempts: 3}
	dev := &interfaces.Device{Status: interfaces.StatusActive}

	assert.False(t, guard.RecordFailure(dev))
	assert.False(t, guard.RecordFailure(dev))
	assert.True(t, guard.RecordFailure(dev), "third failure trips the latch")
	assert.True(t, dev.Quarantined)
	assert.Equal(t, interfaces.StatusQuarantined, dev.Status)

	guard.Reset(dev)
	assert.Zero(t, dev.FailedAuthAttempts)
	assert.True(t, dev.Quarantined, "reset never clears the latch")
}

func TestPolicyIssuer_Synthesized(t *testing.T) {
	issuer := PolicyIssuer{BaseTopic: "oneEdge"}
	dev := &interfaces.Device{
		DeviceID:              "press-01",
		AllowedEndpoints:      []string{"mqtt://broker:1883"},
		RotationIntervalHours: 168,
	}

	policy := issuer.Build(dev)
	assert.Equal(t, "press-01", policy["device_id"])
	assert.Equal(t, []string{"mqtt://broker:1883"}, policy["allowed_endpoints"])
	assert.Equal(t, uint(168), policy["rotation_interval_hours"])
	topics := policy["topics"].(map[string]any)
	assert.Equal(t, "oneEdge/devices/press-01/telemetry", topics["telemetry"])
	assert.Equal(t, "oneEdge/devices/press-01/alerts", topics["alerts"])
}

func TestPolicyIssuer_OverrideWinsAndIsCopied(t *testing.T) {
	issuer := PolicyIssuer{BaseTopic: "oneEdge"}
	dev := &interfaces.Device{
		DeviceID:       "press-01",
		PolicyDocument: map[string]any{"pinned": true},
	}

	policy := issuer.Build(dev)
	assert.Equal(t, map[string]any{"pinned": true}, policy)

	policy["pinned"] = false
	assert.Equal(t, true, dev.PolicyDocument["pinned"], "issued copy must not alias the record")
}

func TestQuarantineAndAuthorize(t *testing.T) {
	eng := testEngine(t)
	dev := provisionedDevice("k1")
	dev.Status = interfaces.StatusActive

	out := eng.Quarantine(dev, true, "suspicious flashes")
	require.Nil(t, out.Err)
	assert.True(t, dev.Quarantined)
	assert.Equal(t, "suspicious flashes", dev.Attributes["quarantine_reason"])

	out = eng.Authorize(dev, true, "replaced firmware")
	require.Nil(t, out.Err)
	assert.False(t, dev.Quarantined)
	assert.Equal(t, interfaces.StatusInactive, dev.Status)
	assert.NotContains(t, dev.Attributes, "quarantine_reason")
	assert.Equal(t, "replaced firmware", dev.Attributes["authorization_note"])

	out = eng.Quarantine(&interfaces.Device{}, false, "")
	require.NotNil(t, out.Err)
	assert.Equal(t, interfaces.KindDeviceNotFound, out.Err.Kind)
}
