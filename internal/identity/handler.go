package identity

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// LocalUserID is the fiber Locals key the bearer middleware stores the
// authenticated subject under.
const LocalUserID = "user_id"

var validate = validator.New()

// Handler exposes profile endpoints for authenticated members.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type userResponse struct {
	ID         string    `json:"id"`
	Phone      string    `json:"phone_number"`
	Email      *string   `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Username   string    `json:"username"`
	Bio        *string   `json:"bio"`
	AvatarURL  *string   `json:"avatar_url"`
	IsPrivate  bool      `json:"is_private"`
	Location   *string   `json:"location"`
	IsVerified bool      `json:"is_verified"`
	IsActive   bool      `json:"is_active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toResponse(u User) userResponse {
	return userResponse{
		ID:         u.ID,
		Phone:      u.Phone,
		Email:      u.Email,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Username:   u.Username,
		Bio:        u.Bio,
		AvatarURL:  u.AvatarURL,
		IsPrivate:  u.IsPrivate,
		Location:   u.Location,
		IsVerified: u.IsVerified,
		IsActive:   u.IsActive,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

type updateRequest struct {
	Email     *string `json:"email" validate:"omitempty,email"`
	FirstName *string `json:"first_name" validate:"omitempty,min=1,max=50"`
	LastName  *string `json:"last_name" validate:"omitempty,min=1,max=50"`
	Username  *string `json:"username" validate:"omitempty,min=3,max=30"`
	Bio       *string `json:"bio" validate:"omitempty,max=500"`
	AvatarURL *string `json:"avatar_url" validate:"omitempty,url"`
	IsPrivate *bool   `json:"is_private"`
	Location  *string `json:"location" validate:"omitempty,max=100"`
}

// Me returns the authenticated member's record.
func (h *Handler) Me(c *fiber.Ctx) error {
	user, err := h.service.Me(c.UserContext(), subject(c))
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(user))
}

// UpdateMe applies a partial profile update.
func (h *Handler) UpdateMe(c *fiber.Ctx) error {
	var req updateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, err := h.service.UpdateProfile(c.UserContext(), subject(c), ProfileUpdate{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		Bio:       req.Bio,
		AvatarURL: req.AvatarURL,
		IsPrivate: req.IsPrivate,
		Location:  req.Location,
	})
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(user))
}

// Deactivate switches the authenticated member's account off.
func (h *Handler) Deactivate(c *fiber.Ctx) error {
	if err := h.service.Deactivate(c.UserContext(), subject(c)); err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "deactivated"})
}

// UsernameAvailable answers whether ?username= is free for the caller.
func (h *Handler) UsernameAvailable(c *fiber.Ctx) error {
	username := c.Query("username")
	if err := validate.Var(username, "required,min=3,max=30"); err != nil {
		return fiber.NewError(http.StatusBadRequest, "username must be 3 to 30 characters")
	}
	ok, err := h.service.UsernameAvailable(c.UserContext(), username, subject(c))
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"username": username, "available": ok})
}

// Profile returns another member's public profile.
func (h *Handler) Profile(c *fiber.Ctx) error {
	p, err := h.service.Profile(c.UserContext(), subject(c), c.Params("id"))
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusOK).JSON(p)
}

// Search lists other members matching :query. ?limit= caps the result count.
func (h *Handler) Search(c *fiber.Ctx) error {
	query, err := url.PathUnescape(c.Params("query"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid search query")
	}
	if err := validate.Var(query, "max=100"); err != nil {
		return fiber.NewError(http.StatusBadRequest, "search query must be at most 100 characters")
	}
	results, err := h.service.Search(c.UserContext(), subject(c), query, c.QueryInt("limit", DefaultSearchLimit))
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusOK).JSON(results)
}

func subject(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}

func toFiberError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "user not found")
	case errors.Is(err, ErrUsernameTaken):
		return fiber.NewError(http.StatusConflict, "username already taken")
	case errors.Is(err, ErrNoChanges), errors.Is(err, ErrEmptyQuery), errors.Is(err, ErrInvalidUsername):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
}
