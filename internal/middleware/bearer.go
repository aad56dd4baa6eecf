package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/onlyfriends/onlyfriends/internal/auth"
	"github.com/onlyfriends/onlyfriends/internal/identity"
)

const (
	// LocalUserID holds the authenticated subject.
	LocalUserID = identity.LocalUserID
	// LocalPhone holds the authenticated subject's canonical phone.
	LocalPhone = "phone_number"
)

// Authenticator resolves an access token to a principal.
type Authenticator interface {
	Authenticate(accessToken string) (auth.Principal, error)
}

// BearerAuth rejects requests without a valid access token and stores the
// subject in Locals for downstream handlers.
func BearerAuth(authn Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		principal, err := authn.Authenticate(strings.TrimSpace(authz[len("bearer "):]))
		if err != nil {
			c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
			return fiber.NewError(http.StatusUnauthorized, "could not validate credentials")
		}

		c.Locals(LocalUserID, principal.UserID)
		c.Locals(LocalPhone, principal.Phone)
		return c.Next()
	}
}
