package verification

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/onlyfriends/onlyfriends/internal/logging"
	"github.com/onlyfriends/onlyfriends/internal/notification"
	"github.com/onlyfriends/onlyfriends/internal/phone"
)

const (
	devKeyPrefix       = "verify:dev:"
	defaultDevTTL      = 10 * time.Minute
	defaultMaxAttempts = 5
	codeDigits         = 6
)

var codeSpace = big.NewInt(1_000_000)

// DevGateway is a local stand-in for the SMS provider used in development. Codes
// live in Redis with a TTL and are delivered through a Notifier.
type DevGateway struct {
	cache       *redis.Client
	notifier    notification.Notifier
	ttl         time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// NewDevGateway builds the development provider. A zero ttl uses ten minutes.
func NewDevGateway(cache *redis.Client, notifier notification.Notifier, ttl time.Duration, logger *slog.Logger) (*DevGateway, error) {
	if cache == nil {
		return nil, errors.New("dev verification provider requires redis")
	}
	if notifier == nil {
		notifier = notification.Nop{}
	}
	if ttl <= 0 {
		ttl = defaultDevTTL
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &DevGateway{cache: cache, notifier: notifier, ttl: ttl, maxAttempts: defaultMaxAttempts, logger: logger}, nil
}

// SendCode replaces any outstanding code for the number with a fresh one.
func (g *DevGateway) SendCode(ctx context.Context, to, channel string) (SendResult, error) {
	if channel == "" {
		channel = ChannelSMS
	}
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return SendResult{}, fmt.Errorf("generate code: %w", err)
	}
	code := fmt.Sprintf("%0*d", codeDigits, n.Int64())
	sid := "VE" + uuid.NewString()

	key := devKeyPrefix + to
	_, err = g.cache.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, key)
		p.HSet(ctx, key,
			"sid", sid,
			"code_hash", hashCode(to, code),
			"channel", channel,
			"status", string(StatusPending),
			"attempts", 0,
			"created_at", time.Now().UTC().Format(time.RFC3339),
		)
		p.Expire(ctx, key, g.ttl)
		return nil
	})
	if err != nil {
		return SendResult{}, fmt.Errorf("%w: store code: %v", ErrUnavailable, err)
	}

	msg := notification.Message{
		Kind:        notification.KindVerificationCode,
		Destination: to,
		Body:        "Your Only Friends verification code is " + code,
	}
	if err := g.notifier.Send(ctx, msg); err != nil {
		g.cache.Del(ctx, key)
		return SendResult{}, fmt.Errorf("%w: deliver code: %v", ErrUnavailable, err)
	}

	g.logger.Info("dev verification created", slog.String("phone", phone.Mask(to)), slog.String("sid", sid))
	return SendResult{Accepted: true, Status: StatusPending, ID: sid, To: to, Channel: channel}, nil
}

// CheckCode approves and deletes the attempt on a match. After maxAttempts
// misses the attempt is canceled.
func (g *DevGateway) CheckCode(ctx context.Context, to, code string) (CheckResult, error) {
	key := devKeyPrefix + to
	fields, err := g.cache.HGetAll(ctx, key).Result()
	if err != nil {
		return CheckResult{}, fmt.Errorf("%w: load code: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 || fields["status"] != string(StatusPending) {
		return CheckResult{Checked: true, Valid: false, Status: StatusNotFound}, nil
	}

	want := []byte(fields["code_hash"])
	got := []byte(hashCode(to, code))
	if subtle.ConstantTimeCompare(want, got) == 1 {
		n, err := g.cache.Del(ctx, key).Result()
		if err != nil {
			return CheckResult{}, fmt.Errorf("%w: consume code: %v", ErrUnavailable, err)
		}
		if n == 0 {
			// A concurrent check consumed it first.
			return CheckResult{Checked: true, Valid: false, Status: StatusNotFound}, nil
		}
		return CheckResult{Checked: true, Valid: true, Status: StatusApproved}, nil
	}

	status, err := g.recordMiss(ctx, key)
	if err != nil {
		return CheckResult{}, fmt.Errorf("%w: count attempt: %v", ErrUnavailable, err)
	}
	return CheckResult{Checked: true, Valid: false, Status: status}, nil
}

// recordMiss bumps the attempt counter under WATCH so the write never lands on
// a key that expired after it was read. The write re-applies the remaining TTL.
func (g *DevGateway) recordMiss(ctx context.Context, key string) (Status, error) {
	const maxRetries = 4
	for i := 0; i < maxRetries; i++ {
		status := StatusPending
		err := g.cache.Watch(ctx, func(tx *redis.Tx) error {
			fields, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return err
			}
			ttl, err := tx.PTTL(ctx, key).Result()
			if err != nil {
				return err
			}
			if len(fields) == 0 || fields["status"] != string(StatusPending) || ttl <= 0 {
				status = StatusNotFound
				return nil
			}
			attempts, _ := strconv.Atoi(fields["attempts"])
			attempts++
			if attempts >= g.maxAttempts {
				status = StatusCanceled
			}
			_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
				p.HSet(ctx, key, "attempts", attempts, "status", string(status))
				p.PExpire(ctx, key, ttl)
				return nil
			})
			return err
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return "", err
		}
		return status, nil
	}
	return "", redis.TxFailedErr
}

// PendingStatus reports the stored attempt, if any.
func (g *DevGateway) PendingStatus(ctx context.Context, to string) (Pending, error) {
	fields, err := g.cache.HGetAll(ctx, devKeyPrefix+to).Result()
	if err != nil {
		return Pending{}, fmt.Errorf("%w: load code: %v", ErrUnavailable, err)
	}
	if len(fields) == 0 {
		return Pending{Status: StatusNoPending}, nil
	}
	created, _ := time.Parse(time.RFC3339, fields["created_at"])
	return Pending{
		Status:    Status(fields["status"]),
		ID:        fields["sid"],
		Channel:   fields["channel"],
		CreatedAt: created,
	}, nil
}

func hashCode(to, code string) string {
	sum := sha256.Sum256([]byte(to + ":" + code))
	return hex.EncodeToString(sum[:])
}

