package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onlyfriends/onlyfriends/internal/config"
	"github.com/onlyfriends/onlyfriends/internal/logging"
	"github.com/onlyfriends/onlyfriends/internal/notification"
)

type inbox struct {
	mu   sync.Mutex
	msgs []notification.Message
}

func (i *inbox) Send(_ context.Context, m notification.Message) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.msgs = append(i.msgs, m)
	return nil
}

func (i *inbox) lastCode(t *testing.T) string {
	t.Helper()
	i.mu.Lock()
	defer i.mu.Unlock()
	for j := len(i.msgs) - 1; j >= 0; j-- {
		if i.msgs[j].Kind == notification.KindVerificationCode {
			body := i.msgs[j].Body
			return body[len(body)-6:]
		}
	}
	t.Fatalf("no verification code delivered")
	return ""
}

func newTestApp(t *testing.T) (*fiber.App, *inbox) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	box := &inbox{}
	cfg := config.Config{
		AppName:            "OnlyFriends",
		AppEnv:             "development",
		JWTSecret:          "test-secret",
		BcryptCost:         4,
		IdempotencyTTL:     time.Minute,
		RateLimitPerMinute: 100,
		AllowedOrigins:     "*",
	}
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logging.Discard())})
	require.NoError(t, Setup(app, Deps{Cfg: cfg, Cache: cache, Logger: logging.Discard(), Notifier: box}))
	return app, box
}

func call(t *testing.T, app *fiber.App, method, path, bearer string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+bearer)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(payload) > 0 {
		require.NoError(t, json.Unmarshal(payload, &out), string(payload))
	}
	return resp.StatusCode, out
}

func TestOnboardingFlow(t *testing.T) {
	app, box := newTestApp(t)
	const raw = "(555) 123-4567"

	status, body := call(t, app, fiber.MethodPost, "/api/v1/auth/send-verification", "", fiber.Map{"phone_number": raw})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "+15551234567", body["phone_number"])

	code := box.lastCode(t)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	status, body = call(t, app, fiber.MethodPost, "/api/v1/auth/verify-phone", "", fiber.Map{"phone_number": raw, "code": wrong})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid verification code", body["detail"])

	status, body = call(t, app, fiber.MethodPost, "/api/v1/auth/verify-phone", "", fiber.Map{"phone_number": raw, "code": code})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, true, body["is_new_user"])
	assert.Equal(t, "complete_registration", body["next_step"])

	reg := fiber.Map{"phone_number": raw, "password": "password123", "first_name": "Ann", "last_name": "Lee"}
	status, body = call(t, app, fiber.MethodPost, "/api/v1/auth/register", "", reg)
	require.Equal(t, fiber.StatusCreated, status, body)
	assert.Equal(t, "bearer", body["token_type"])
	assert.Equal(t, float64(1800), body["expires_in"])
	access := body["access_token"].(string)
	refresh := body["refresh_token"].(string)

	status, body = call(t, app, fiber.MethodPost, "/api/v1/auth/register", "", reg)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "user with this phone number already exists", body["detail"])

	status, body = call(t, app, fiber.MethodGet, "/api/v1/auth/me", access, nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "+15551234567", body["phone_number"])
	assert.NotContains(t, body, "password_hash")

	status, _ = call(t, app, fiber.MethodGet, "/api/v1/users/me", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	status, _ = call(t, app, fiber.MethodGet, "/api/v1/users/me", refresh, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, body = call(t, app, fiber.MethodPut, "/api/v1/users/me", access, fiber.Map{"bio": "hello"})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "hello", body["bio"])

	status, body = call(t, app, fiber.MethodPost, "/api/v1/auth/login", "", fiber.Map{"phone_number": "+15551234567", "password": "password123"})
	require.Equal(t, fiber.StatusOK, status, body)

	_, wrongLogin := call(t, app, fiber.MethodPost, "/api/v1/auth/login", "", fiber.Map{"phone_number": "+15551234567", "password": "wrong-password"})
	_, unknown := call(t, app, fiber.MethodPost, "/api/v1/auth/login", "", fiber.Map{"phone_number": "+15559999999", "password": "password123"})
	assert.Equal(t, wrongLogin["detail"], unknown["detail"])

	status, body = call(t, app, fiber.MethodPost, "/api/v1/auth/refresh", "", fiber.Map{"refresh_token": refresh})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.NotEmpty(t, body["access_token"])

	status, _ = call(t, app, fiber.MethodPost, "/api/v1/auth/refresh", "", fiber.Map{"refresh_token": access})
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestDeactivateAndReactivate(t *testing.T) {
	app, box := newTestApp(t)
	const phone = "+15550001234"

	status, body := call(t, app, fiber.MethodPost, "/api/v1/auth/register", "", fiber.Map{
		"phone_number": phone, "password": "password123", "first_name": "Bo", "last_name": "Ng",
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	access := body["access_token"].(string)

	status, _ = call(t, app, fiber.MethodPost, "/api/v1/users/me/deactivate", access, nil)
	require.Equal(t, fiber.StatusOK, status)

	status, body = call(t, app, fiber.MethodPost, "/api/v1/auth/login", "", fiber.Map{"phone_number": phone, "password": "password123"})
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "account is deactivated", body["detail"])

	status, _ = call(t, app, fiber.MethodPost, "/api/v1/auth/send-verification", "", fiber.Map{"phone_number": phone})
	require.Equal(t, fiber.StatusOK, status)
	status, body = call(t, app, fiber.MethodPost, "/api/v1/auth/reactivate", "", fiber.Map{"phone_number": phone, "code": box.lastCode(t)})
	require.Equal(t, fiber.StatusOK, status, body)

	status, _ = call(t, app, fiber.MethodPost, "/api/v1/auth/login", "", fiber.Map{"phone_number": phone, "password": "password123"})
	assert.Equal(t, fiber.StatusOK, status)
}

func TestValidationAndHealth(t *testing.T) {
	app, _ := newTestApp(t)

	status, body := call(t, app, fiber.MethodPost, "/api/v1/auth/send-verification", "", fiber.Map{"phone_number": "12345"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "invalid phone number format", body["detail"])

	status, body = call(t, app, fiber.MethodPost, "/api/v1/auth/register", "", fiber.Map{"phone_number": "+15551234567"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.True(t, strings.Contains(body["detail"].(string), "Password"), body["detail"])

	status, body = call(t, app, fiber.MethodGet, "/api/v1/auth/verification-status?phone_number=5551234567", "", nil)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "no_pending_verification", body["status"])

	status, body = call(t, app, fiber.MethodGet, "/healthz", "", nil)
	assert.Equal(t, fiber.StatusOK, status, body)
}

func TestPasswordResetAndSearch(t *testing.T) {
	app, box := newTestApp(t)
	const annPhone, boPhone = "+15550002222", "+15550003333"

	status, body := call(t, app, fiber.MethodPost, "/api/v1/auth/register", "", fiber.Map{
		"phone_number": annPhone, "password": "password123", "first_name": "Ann", "last_name": "Lee",
	})
	require.Equal(t, fiber.StatusCreated, status, body)
	access := body["access_token"].(string)
	status, body = call(t, app, fiber.MethodPost, "/api/v1/auth/register", "", fiber.Map{
		"phone_number": boPhone, "password": "password123", "first_name": "Bo", "last_name": "Ng",
	})
	require.Equal(t, fiber.StatusCreated, status, body)

	status, _ = call(t, app, fiber.MethodPost, "/api/v1/auth/send-verification", "", fiber.Map{"phone_number": annPhone})
	require.Equal(t, fiber.StatusOK, status)
	status, body = call(t, app, fiber.MethodPost, "/api/v1/auth/reset-password", "", fiber.Map{
		"phone_number": annPhone, "code": box.lastCode(t), "new_password": "brand-new-pass",
	})
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, "Password updated", body["message"])

	status, _ = call(t, app, fiber.MethodPost, "/api/v1/auth/login", "", fiber.Map{"phone_number": annPhone, "password": "password123"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	status, _ = call(t, app, fiber.MethodPost, "/api/v1/auth/login", "", fiber.Map{"phone_number": annPhone, "password": "brand-new-pass"})
	assert.Equal(t, fiber.StatusOK, status)

	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/users/search/NG?limit=5", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+access)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var results []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&results))
	require.Len(t, results, 1)
	assert.Equal(t, "Bo", results[0]["first_name"])
	assert.NotContains(t, results[0], "phone_number")

	status, _ = call(t, app, fiber.MethodGet, "/api/v1/users/search/ng", "", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}
