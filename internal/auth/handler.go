package auth

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// StatusFor maps a Service error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidPhone), errors.Is(err, ErrInvalidCode), errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrPhoneAlreadyRegistered):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidToken), errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAccountDeactivated):
		return http.StatusForbidden
	case errors.Is(err, ErrVerificationSendFailed):
		return http.StatusBadGateway
	case errors.Is(err, ErrVerificationUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// toFiberError renders only the kind's message; wrapped provider or store
// detail stays in the logs.
func toFiberError(err error) error {
	status := StatusFor(err)
	for _, kind := range []error{
		ErrInvalidPhone, ErrInvalidCode, ErrInvalidInput, ErrPhoneAlreadyRegistered,
		ErrInvalidCredentials, ErrInvalidToken, ErrUnauthorized, ErrAccountDeactivated,
		ErrVerificationSendFailed, ErrVerificationUnavailable, ErrRegistrationPersistFailed,
	} {
		if errors.Is(err, kind) {
			return fiber.NewError(status, kind.Error())
		}
	}
	return fiber.NewError(http.StatusInternalServerError, "internal server error")
}

// Handler exposes the onboarding and session endpoints.
type Handler struct {
	svc *Service
}

// NewHandler constructs an auth HTTP handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

type phoneRequest struct {
	Phone string `json:"phone_number" validate:"required"`
}

type verifyRequest struct {
	Phone string `json:"phone_number" validate:"required"`
	Code  string `json:"code" validate:"required,min=4,max=10"`
}

type registerRequest struct {
	Phone     string `json:"phone_number" validate:"required"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"required,max=50"`
	LastName  string `json:"last_name" validate:"required,max=50"`
	Username  string `json:"username" validate:"omitempty,min=3,max=30"`
	Email     string `json:"email" validate:"omitempty,email"`
}

type loginRequest struct {
	Phone    string `json:"phone_number" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type resetPasswordRequest struct {
	Phone       string `json:"phone_number" validate:"required"`
	Code        string `json:"code" validate:"required,min=4,max=10"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	UserID       string `json:"user_id"`
	Phone        string `json:"phone_number"`
	IsVerified   bool   `json:"is_verified"`
}

func toTokenResponse(s Session) tokenResponse {
	return tokenResponse{
		AccessToken:  s.Tokens.AccessToken,
		RefreshToken: s.Tokens.RefreshToken,
		TokenType:    s.Tokens.TokenType,
		ExpiresIn:    s.Tokens.ExpiresIn,
		UserID:       s.UserID,
		Phone:        s.Phone,
		IsVerified:   s.IsVerified,
	}
}

func parse(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(out); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// SendVerification texts a one-time code to the phone.
func (h *Handler) SendVerification(c *fiber.Ctx) error {
	var req phoneRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	sent, err := h.svc.InitiateVerification(c.UserContext(), req.Phone)
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message":      "Verification code sent",
		"phone_number": sent.Phone,
		"status":       sent.Status,
	})
}

// VerifyPhone checks a code and either signs the member in or asks for registration.
func (h *Handler) VerifyPhone(c *fiber.Ctx) error {
	var req verifyRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	out, err := h.svc.CheckVerification(c.UserContext(), req.Phone, req.Code)
	if err != nil {
		return toFiberError(err)
	}
	if out.IsNewUser {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"message":      "Phone verified",
			"phone_number": out.Phone,
			"is_new_user":  true,
			"next_step":    out.NextStep,
		})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message":     "Phone verified",
		"is_new_user": false,
		"tokens":      toTokenResponse(*out.Session),
	})
}

// VerificationStatus reports the latest verification attempt for ?phone_number=.
func (h *Handler) VerificationStatus(c *fiber.Ctx) error {
	raw := c.Query("phone_number")
	if raw == "" {
		return fiber.NewError(http.StatusBadRequest, "phone_number is required")
	}
	st, err := h.svc.VerificationStatus(c.UserContext(), raw)
	if err != nil {
		return toFiberError(err)
	}
	resp := fiber.Map{"phone_number": st.Phone, "status": st.Status}
	if st.ID != "" {
		resp["verification_id"] = st.ID
		resp["channel"] = st.Channel
	}
	if !st.CreatedAt.IsZero() {
		resp["created_at"] = st.CreatedAt
	}
	return c.Status(http.StatusOK).JSON(resp)
}

// Register completes onboarding for a verified phone.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	session, err := h.svc.Register(c.UserContext(), RegisterInput{
		Phone:     req.Phone,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Username:  req.Username,
		Email:     req.Email,
	})
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusCreated).JSON(toTokenResponse(session))
}

// Login validates credentials and returns a token pair.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	session, err := h.svc.Login(c.UserContext(), req.Phone, req.Password)
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusOK).JSON(toTokenResponse(session))
}

// Refresh rotates a refresh token into a new pair.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	session, err := h.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusOK).JSON(toTokenResponse(session))
}

// Reactivate restores a deactivated account with a fresh code.
func (h *Handler) Reactivate(c *fiber.Ctx) error {
	var req verifyRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	session, err := h.svc.Reactivate(c.UserContext(), req.Phone, req.Code)
	if err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusOK).JSON(toTokenResponse(session))
}

// ResetPassword sets a new password after the phone is proven with a code
// obtained from SendVerification.
func (h *Handler) ResetPassword(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	if err := h.svc.ResetPassword(c.UserContext(), req.Phone, req.Code, req.NewPassword); err != nil {
		return toFiberError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"message": "Password updated"})
}
