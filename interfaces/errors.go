package interfaces

// AuthErrorKind enumerates the protocol failure modes of the authentication
// engine. Kinds are transport-independent; the HTTP layer maps them to status
// codes.
type AuthErrorKind string

const (
	KindNotProvisioned              AuthErrorKind = "not_provisioned"
	KindQuarantined                 AuthErrorKind = "quarantined"
	KindIdentityMismatch            AuthErrorKind = "identity_mismatch"
	KindFingerprintMismatch         AuthErrorKind = "fingerprint_mismatch"
	KindStaticKeyRequired           AuthErrorKind = "static_key_required"
	KindInvalidStaticKey            AuthErrorKind = "invalid_static_key"
	KindChallengeNotRequested       AuthErrorKind = "challenge_not_requested"
	KindChallengeExpired            AuthErrorKind = "challenge_expired"
	KindChallengeVerificationFailed AuthErrorKind = "challenge_verification_failed"
	KindDeviceNotFound              AuthErrorKind = "device_not_found"
	KindUnsupportedRotationMethod   AuthErrorKind = "unsupported_rotation_method"
)

// AuthError is a typed protocol failure returned by the engine. Some kinds
// carry the side effect of incrementing the failure counter; the error is
// still returned to the caller in the same atomic commit.
type AuthError struct {
	Kind    AuthErrorKind
	Message string
}

func (e *AuthError) Error() string { return e.Message }

// Protocol failure sentinels. Compared by Kind, not identity, so callers may
// also construct their own instances with extra context.
var (
	ErrNotProvisioned              = &AuthError{KindNotProvisioned, "device not provisioned"}
	ErrQuarantined                 = &AuthError{KindQuarantined, "device is quarantined"}
	ErrIdentityMismatch            = &AuthError{KindIdentityMismatch, "authentication identifier mismatch"}
	ErrFingerprintMismatch         = &AuthError{KindFingerprintMismatch, "hardware fingerprint mismatch"}
	ErrStaticKeyRequired           = &AuthError{KindStaticKeyRequired, "device static key required for initial handshake"}
	ErrInvalidStaticKey            = &AuthError{KindInvalidStaticKey, "invalid device static key"}
	ErrChallengeNotRequested       = &AuthError{KindChallengeNotRequested, "challenge not requested"}
	ErrChallengeExpired            = &AuthError{KindChallengeExpired, "challenge expired"}
	ErrChallengeVerificationFailed = &AuthError{KindChallengeVerificationFailed, "challenge verification failed"}
	ErrDeviceNotFound              = &AuthError{KindDeviceNotFound, "device not found"}
	ErrUnsupportedRotationMethod   = &AuthError{KindUnsupportedRotationMethod, "rotation supported for pre_shared_key devices only"}
)
