package verification

import (
	"context"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/onlyfriends/onlyfriends/internal/notification"
)

type captureNotifier struct {
	sent []notification.Message
}

func (n *captureNotifier) Send(_ context.Context, msg notification.Message) error {
	n.sent = append(n.sent, msg)
	return nil
}

func (n *captureNotifier) lastCode(t *testing.T) string {
	t.Helper()
	if len(n.sent) == 0 {
		t.Fatalf("no notification sent")
	}
	body := n.sent[len(n.sent)-1].Body
	return body[strings.LastIndex(body, " ")+1:]
}

func setupDevGateway(t *testing.T) (*DevGateway, *captureNotifier, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})
	notifier := &captureNotifier{}
	g, err := NewDevGateway(cache, notifier, time.Minute, nil)
	if err != nil {
		t.Fatalf("new dev gateway: %v", err)
	}
	return g, notifier, mr
}

func TestDevGatewaySendAndApprove(t *testing.T) {
	g, notifier, _ := setupDevGateway(t)
	ctx := context.Background()

	res, err := g.SendCode(ctx, "+15551234567", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !res.Accepted || res.Status != StatusPending || res.Channel != ChannelSMS {
		t.Fatalf("unexpected send result %+v", res)
	}
	msg := notifier.sent[0]
	if msg.Kind != notification.KindVerificationCode || msg.Destination != "+15551234567" {
		t.Fatalf("unexpected notification %+v", msg)
	}
	code := notifier.lastCode(t)
	if len(code) != 6 {
		t.Fatalf("expected 6 digit code, got %q", code)
	}

	pending, err := g.PendingStatus(ctx, "+15551234567")
	if err != nil || pending.Status != StatusPending || pending.ID != res.ID {
		t.Fatalf("expected pending attempt, got %+v err=%v", pending, err)
	}

	check, err := g.CheckCode(ctx, "+15551234567", code)
	if err != nil || !check.Valid || check.Status != StatusApproved {
		t.Fatalf("expected approval, got %+v err=%v", check, err)
	}

	again, err := g.CheckCode(ctx, "+15551234567", code)
	if err != nil || again.Valid {
		t.Fatalf("code must be single use, got %+v err=%v", again, err)
	}

	after, _ := g.PendingStatus(ctx, "+15551234567")
	if after.Status != StatusNoPending {
		t.Fatalf("expected no pending verification, got %+v", after)
	}
}

func TestDevGatewayWrongCodeThenCancel(t *testing.T) {
	g, notifier, _ := setupDevGateway(t)
	ctx := context.Background()

	if _, err := g.SendCode(ctx, "+15551234567", ChannelSMS); err != nil {
		t.Fatalf("send: %v", err)
	}
	code := notifier.lastCode(t)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 1; i < defaultMaxAttempts; i++ {
		res, err := g.CheckCode(ctx, "+15551234567", wrong)
		if err != nil || res.Valid || res.Status != StatusPending {
			t.Fatalf("attempt %d: unexpected %+v err=%v", i, res, err)
		}
	}
	res, err := g.CheckCode(ctx, "+15551234567", wrong)
	if err != nil || res.Status != StatusCanceled {
		t.Fatalf("expected cancel after max attempts, got %+v err=%v", res, err)
	}

	res, err = g.CheckCode(ctx, "+15551234567", code)
	if err != nil || res.Valid {
		t.Fatalf("canceled attempt must not approve, got %+v err=%v", res, err)
	}
}

func TestDevGatewayExpiry(t *testing.T) {
	g, notifier, mr := setupDevGateway(t)
	ctx := context.Background()

	if _, err := g.SendCode(ctx, "+15551234567", ChannelSMS); err != nil {
		t.Fatalf("send: %v", err)
	}
	code := notifier.lastCode(t)
	mr.FastForward(2 * time.Minute)

	res, err := g.CheckCode(ctx, "+15551234567", code)
	if err != nil || res.Valid || res.Status != StatusNotFound {
		t.Fatalf("expected expired attempt, got %+v err=%v", res, err)
	}
}

func TestDevGatewayRedisDown(t *testing.T) {
	g, _, mr := setupDevGateway(t)
	mr.Close()

	if _, err := g.SendCode(context.Background(), "+15551234567", ChannelSMS); err == nil {
		t.Fatalf("expected error when redis is down")
	}
	if _, err := g.CheckCode(context.Background(), "+15551234567", "123456"); err == nil {
		t.Fatalf("expected error when redis is down")
	}
}

func TestDevGatewayMissKeepsExpiry(t *testing.T) {
	g, notifier, mr := setupDevGateway(t)
	ctx := context.Background()
	key := devKeyPrefix + "+15551234567"

	if _, err := g.SendCode(ctx, "+15551234567", ChannelSMS); err != nil {
		t.Fatalf("send: %v", err)
	}
	wrong := "000000"
	if notifier.lastCode(t) == wrong {
		wrong = "111111"
	}
	mr.FastForward(20 * time.Second)
	if _, err := g.CheckCode(ctx, "+15551234567", wrong); err != nil {
		t.Fatalf("check: %v", err)
	}
	if ttl := mr.TTL(key); ttl <= 0 || ttl > g.ttl-20*time.Second {
		t.Fatalf("miss should keep the remaining ttl, got %v", ttl)
	}
	if got := mr.HGet(key, "attempts"); got != "1" {
		t.Fatalf("attempts = %q, want 1", got)
	}
}

func TestDevGatewayMissDoesNotRecreateExpiredAttempt(t *testing.T) {
	g, _, mr := setupDevGateway(t)
	ctx := context.Background()
	key := devKeyPrefix + "+15551234567"

	if _, err := g.SendCode(ctx, "+15551234567", ChannelSMS); err != nil {
		t.Fatalf("send: %v", err)
	}
	// The attempt vanishes between the code comparison and the counter write.
	mr.Del(key)

	status, err := g.recordMiss(ctx, key)
	if err != nil || status != StatusNotFound {
		t.Fatalf("expected not_found, got %q err=%v", status, err)
	}
	if mr.Exists(key) {
		t.Fatalf("counter write recreated %s without a ttl", key)
	}
	p, err := g.PendingStatus(ctx, "+15551234567")
	if err != nil || p.Status != StatusNoPending {
		t.Fatalf("expected no pending attempt, got %+v err=%v", p, err)
	}
}
