package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/onlyfriends/onlyfriends/internal/auth"
	"github.com/onlyfriends/onlyfriends/internal/identity"
)

type stubAuthenticator map[string]auth.Principal

func (s stubAuthenticator) Authenticate(tok string) (auth.Principal, error) {
	p, ok := s[tok]
	if !ok {
		return auth.Principal{}, auth.ErrUnauthorized
	}
	return p, nil
}

func TestBearerAuth(t *testing.T) {
	app := fiber.New()
	app.Get("/me", BearerAuth(stubAuthenticator{"good": {UserID: "u1", Phone: "+15551234567"}}), func(c *fiber.Ctx) error {
		return c.SendString(c.Locals(LocalUserID).(string))
	})

	cases := []struct {
		header string
		want   int
	}{
		{"", fiber.StatusUnauthorized},
		{"Basic good", fiber.StatusUnauthorized},
		{"Bearer bad", fiber.StatusUnauthorized},
		{"Bearer good", fiber.StatusOK},
		{"bearer good", fiber.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
		if tc.header != "" {
			req.Header.Set(fiber.HeaderAuthorization, tc.header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != tc.want {
			t.Fatalf("header %q: expected %d got %d", tc.header, tc.want, resp.StatusCode)
		}
	}
}

func TestBearerAuthSubjectVisibleToProfileHandlers(t *testing.T) {
	app := fiber.New()
	app.Get("/me", BearerAuth(stubAuthenticator{"good": {UserID: "u1"}}), func(c *fiber.Ctx) error {
		id, _ := c.Locals(identity.LocalUserID).(string)
		if id == "" {
			return fiber.ErrUnauthorized
		}
		return c.SendString(id)
	})
	req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer good")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected profile handler to see the subject, got %d", resp.StatusCode)
	}
}

func TestRequestIDReplacesUnusableValues(t *testing.T) {
	if usableRequestID("") || usableRequestID("has space") {
		t.Fatalf("expected rejection")
	}
	if !usableRequestID("abc-123") {
		t.Fatalf("expected acceptance")
	}
}
