package auth

import "errors"

// Error kinds returned by Service. Callers match them with errors.Is; several
// are deliberately coarse so responses never reveal whether a phone exists or
// why a token was rejected.
var (
	ErrInvalidPhone              = errors.New("invalid phone number format")
	ErrInvalidInput              = errors.New("invalid input")
	ErrVerificationSendFailed    = errors.New("failed to send verification code")
	ErrVerificationUnavailable   = errors.New("verification service unavailable")
	ErrInvalidCode               = errors.New("invalid verification code")
	ErrPhoneAlreadyRegistered    = errors.New("user with this phone number already exists")
	ErrRegistrationPersistFailed = errors.New("failed to create user")
	ErrInvalidCredentials        = errors.New("invalid phone number or password")
	ErrAccountDeactivated        = errors.New("account is deactivated")
	ErrInvalidToken              = errors.New("invalid token")
	ErrUnauthorized              = errors.New("unauthorized")
	ErrCorruptedCredentialRecord = errors.New("credential record is corrupted")
)
