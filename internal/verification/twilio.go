package verification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/onlyfriends/onlyfriends/internal/logging"
	"github.com/onlyfriends/onlyfriends/internal/phone"
)

const (
	DefaultTwilioBaseURL = "https://verify.twilio.com/v2"
	defaultTwilioTimeout = 10 * time.Second
)

// TwilioConfig holds Twilio Verify credentials.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	ServiceSID string
	BaseURL    string
	Timeout    time.Duration
}

// TwilioGateway is a pass-through client for the Twilio Verify v2 REST API.
type TwilioGateway struct {
	cfg    TwilioConfig
	logger *slog.Logger
}

// NewTwilioGateway validates credentials and builds the adapter.
func NewTwilioGateway(cfg TwilioConfig, logger *slog.Logger) (*TwilioGateway, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.ServiceSID == "" {
		return nil, errors.New("twilio account sid, auth token and verify service sid are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultTwilioBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTwilioTimeout
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &TwilioGateway{cfg: cfg, logger: logger}, nil
}

type twilioVerification struct {
	SID         string    `json:"sid"`
	To          string    `json:"to"`
	Channel     string    `json:"channel"`
	Status      string    `json:"status"`
	Valid       bool      `json:"valid"`
	DateCreated time.Time `json:"date_created"`
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// SendCode starts a verification on the given channel.
func (g *TwilioGateway) SendCode(ctx context.Context, to, channel string) (SendResult, error) {
	if channel == "" {
		channel = ChannelSMS
	}
	form := map[string]string{"To": to, "Channel": channel}
	var v twilioVerification
	if _, err := g.do(ctx, fiber.MethodPost, g.servicePath("Verifications"), form, &v); err != nil {
		g.logger.Error("verification send failed", slog.String("phone", phone.Mask(to)), slog.Any("error", err))
		return SendResult{}, err
	}
	g.logger.Info("verification sent", slog.String("phone", phone.Mask(to)), slog.String("sid", v.SID), slog.String("status", v.Status))
	return SendResult{
		Accepted: true,
		Status:   Status(v.Status),
		ID:       v.SID,
		To:       v.To,
		Channel:  v.Channel,
	}, nil
}

// CheckCode submits a code. Twilio answers 404 once the attempt is approved,
// expired or exhausted; that is a negative outcome, not a fault.
func (g *TwilioGateway) CheckCode(ctx context.Context, to, code string) (CheckResult, error) {
	form := map[string]string{"To": to, "Code": code}
	var v twilioVerification
	status, err := g.do(ctx, fiber.MethodPost, g.servicePath("VerificationCheck"), form, &v)
	if err != nil {
		if status == http.StatusNotFound {
			g.logger.Info("verification check found no open attempt", slog.String("phone", phone.Mask(to)))
			return CheckResult{Checked: true, Valid: false, Status: StatusNotFound}, nil
		}
		g.logger.Error("verification check failed", slog.String("phone", phone.Mask(to)), slog.Any("error", err))
		return CheckResult{}, err
	}
	g.logger.Info("verification checked", slog.String("phone", phone.Mask(to)), slog.String("status", v.Status))
	return CheckResult{Checked: true, Valid: v.Valid, Status: Status(v.Status)}, nil
}

// PendingStatus fetches the latest verification for the number. Twilio accepts
// the destination in place of the verification SID.
func (g *TwilioGateway) PendingStatus(ctx context.Context, to string) (Pending, error) {
	var v twilioVerification
	status, err := g.do(ctx, fiber.MethodGet, g.servicePath("Verifications", url.PathEscape(to)), nil, &v)
	if err != nil {
		if status == http.StatusNotFound {
			return Pending{Status: StatusNoPending}, nil
		}
		g.logger.Error("verification status lookup failed", slog.String("phone", phone.Mask(to)), slog.Any("error", err))
		return Pending{}, err
	}
	return Pending{Status: Status(v.Status), ID: v.SID, Channel: v.Channel, CreatedAt: v.DateCreated}, nil
}

func (g *TwilioGateway) servicePath(parts ...string) string {
	return g.cfg.BaseURL + "/Services/" + url.PathEscape(g.cfg.ServiceSID) + "/" + strings.Join(parts, "/")
}

// do performs one round trip and decodes a 2xx body into out. The returned
// status is zero when the request never reached the provider.
func (g *TwilioGateway) do(ctx context.Context, method, endpoint string, form map[string]string, out any) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	timeout := g.cfg.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	var agent *fiber.Agent
	if method == fiber.MethodGet {
		agent = fiber.Get(endpoint)
	} else {
		agent = fiber.Post(endpoint)
	}
	agent.BasicAuth(g.cfg.AccountSID, g.cfg.AuthToken).Timeout(timeout)
	if form != nil {
		args := fiber.AcquireArgs()
		for k, v := range form {
			args.Set(k, v)
		}
		agent.Form(args)
		fiber.ReleaseArgs(args)
	}
	if err := agent.Parse(); err != nil {
		return 0, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, errors.Join(errs...))
	}
	if code < 200 || code > 299 {
		perr := &ProviderError{HTTPStatus: code}
		var te twilioError
		if json.Unmarshal(body, &te) == nil {
			perr.Code = te.Code
			perr.Message = te.Message
		}
		return code, perr
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return code, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
		}
	}
	return code, nil
}
