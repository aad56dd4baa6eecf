// Package verification talks to the one-time-code provider that proves a
// caller owns a phone number.
package verification

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ChannelSMS is the default delivery channel.
const ChannelSMS = "sms"

// Status is the provider's view of a verification attempt.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
	StatusFailed   Status = "failed"
	// StatusNotFound means the provider had no open attempt to check against.
	StatusNotFound Status = "not_found"
	// StatusNoPending is reported by PendingStatus when nothing is outstanding.
	StatusNoPending Status = "no_pending_verification"
)

// ErrUnavailable marks provider or network faults, as opposed to a code that
// was simply wrong.
var ErrUnavailable = errors.New("verification unavailable")

// ProviderError carries the provider's own error details.
type ProviderError struct {
	HTTPStatus int
	Code       int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("verification provider error (http %d, code %d): %s", e.HTTPStatus, e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error { return ErrUnavailable }

// SendResult describes a created verification.
type SendResult struct {
	Accepted bool
	Status   Status
	ID       string
	To       string
	Channel  string
}

// CheckResult describes the outcome of submitting a code. A wrong code is
// Checked with Valid=false, not an error.
type CheckResult struct {
	Checked bool
	Valid   bool
	Status  Status
}

// Pending describes the latest verification for a number.
type Pending struct {
	Status    Status
	ID        string
	Channel   string
	CreatedAt time.Time
}

// Gateway is implemented by every verification provider.
type Gateway interface {
	SendCode(ctx context.Context, phone, channel string) (SendResult, error)
	CheckCode(ctx context.Context, phone, code string) (CheckResult, error)
	PendingStatus(ctx context.Context, phone string) (Pending, error)
}
