package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/onlyfriends/onlyfriends/internal/identity"
)

// RegisterUserRoutes wires profile endpoints. r must already require auth.
func RegisterUserRoutes(r fiber.Router, h *identity.Handler) {
	r.Get("/me", h.Me)
	r.Put("/me", h.UpdateMe)
	r.Post("/me/deactivate", h.Deactivate)
	r.Get("/username-available", h.UsernameAvailable)
	r.Get("/search/:query", h.Search)
	r.Get("/:id", h.Profile)
}
