package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/onlyfriends/onlyfriends/internal/auth"
	"github.com/onlyfriends/onlyfriends/internal/identity"
)

// RegisterAuthRoutes wires the onboarding and session endpoints. Every
// endpoint that accepts a phone number is rate limited per number.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, ids *identity.Handler, limit func(scope string) fiber.Handler, requireAuth, idempotent fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/send-verification", limit("send_verification"), h.SendVerification)
	group.Post("/verify-phone", limit("verify_phone"), h.VerifyPhone)
	group.Get("/verification-status", h.VerificationStatus)
	group.Post("/register", idempotent, h.Register)
	group.Post("/login", limit("login"), h.Login)
	group.Post("/refresh", h.Refresh)
	group.Post("/reactivate", limit("reactivate"), h.Reactivate)
	group.Post("/reset-password", limit("reset_password"), h.ResetPassword)
	group.Get("/me", requireAuth, ids.Me)
}
