package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/onlyfriends/onlyfriends/internal/identity"
	"github.com/onlyfriends/onlyfriends/internal/logging"
	"github.com/onlyfriends/onlyfriends/internal/notification"
	"github.com/onlyfriends/onlyfriends/internal/phone"
	"github.com/onlyfriends/onlyfriends/internal/token"
	"github.com/onlyfriends/onlyfriends/internal/verification"
)

// NextStepCompleteRegistration tells a client whose phone was verified but
// has no account to call Register next.
const NextStepCompleteRegistration = "complete_registration"

const (
	minPasswordLength = 8
	maxNameLength     = 50
)

// Hasher hashes and checks passwords.
type Hasher interface {
	Hash(pw string) ([]byte, error)
	Verify(pw string, hash []byte) (bool, error)
}

// Deps wires the collaborators of Service.
type Deps struct {
	Users    identity.Repository
	Hasher   Hasher
	Tokens   *token.Codec
	Gateway  verification.Gateway
	Notifier notification.Notifier
	Logger   *slog.Logger
}

// Service runs the phone-first onboarding and session flows.
type Service struct {
	users    identity.Repository
	hasher   Hasher
	tokens   *token.Codec
	gateway  verification.Gateway
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time

	// dummyHash keeps unknown-phone logins as slow as wrong-password ones.
	dummyHash []byte
}

// NewService validates deps and builds a Service.
func NewService(d Deps) (*Service, error) {
	if d.Users == nil || d.Hasher == nil || d.Tokens == nil || d.Gateway == nil {
		return nil, errors.New("auth: users, hasher, tokens and gateway are required")
	}
	if d.Notifier == nil {
		d.Notifier = notification.Nop{}
	}
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	dummy, err := d.Hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("auth: prepare dummy hash: %w", err)
	}
	return &Service{
		users:     d.Users,
		hasher:    d.Hasher,
		tokens:    d.Tokens,
		gateway:   d.Gateway,
		notifier:  d.Notifier,
		logger:    d.Logger,
		now:       time.Now,
		dummyHash: dummy,
	}, nil
}

// VerificationSent reports a code that was handed to the provider.
type VerificationSent struct {
	Phone   string
	Status  verification.Status
	ID      string
	Channel string
}

// VerificationOutcome is the result of a correct code. Known phones get a
// session; unknown phones are told to finish registration.
type VerificationOutcome struct {
	Phone     string
	IsNewUser bool
	NextStep  string
	Session   *Session
}

// Session is issued after register, login, refresh and code sign-in.
type Session struct {
	UserID     string
	Phone      string
	IsVerified bool
	Tokens     token.Pair
}

// Principal is the authenticated caller resolved from an access token.
type Principal struct {
	UserID    string
	Phone     string
	ExpiresAt time.Time
}

// RegisterInput carries the registration form. Username is optional.
type RegisterInput struct {
	Phone     string
	Password  string
	FirstName string
	LastName  string
	Username  string
	Email     string
}

// VerificationState is the provider's view of the latest attempt for a phone.
type VerificationState struct {
	Phone string
	verification.Pending
}

// InitiateVerification asks the provider to text a one-time code.
func (s *Service) InitiateVerification(ctx context.Context, rawPhone string) (VerificationSent, error) {
	p, err := s.canonical("send_verification", rawPhone)
	if err != nil {
		return VerificationSent{}, err
	}
	res, err := s.gateway.SendCode(ctx, p, verification.ChannelSMS)
	if err != nil {
		s.logger.Warn("auth.send_verification failed", slog.String("phone", phone.Mask(p)), slog.String("error", err.Error()))
		return VerificationSent{}, fmt.Errorf("%w: %v", ErrVerificationSendFailed, err)
	}
	s.logger.Info("auth.verification sent", slog.String("phone", phone.Mask(p)), slog.String("status", string(res.Status)))
	return VerificationSent{Phone: p, Status: res.Status, ID: res.ID, Channel: res.Channel}, nil
}

// CheckVerification submits a code. Existing active members are signed in.
func (s *Service) CheckVerification(ctx context.Context, rawPhone, code string) (VerificationOutcome, error) {
	p, err := s.canonical("verify_phone", rawPhone)
	if err != nil {
		return VerificationOutcome{}, err
	}
	if err := s.checkCode(ctx, "verify_phone", p, code); err != nil {
		return VerificationOutcome{}, err
	}

	user, err := s.users.FindByPhone(ctx, p)
	if errors.Is(err, identity.ErrNotFound) {
		return VerificationOutcome{Phone: p, IsNewUser: true, NextStep: NextStepCompleteRegistration}, nil
	}
	if err != nil {
		return VerificationOutcome{}, fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive {
		return VerificationOutcome{}, s.reject("verify_phone", ErrAccountDeactivated, "inactive account", p)
	}
	session, err := s.session(user)
	if err != nil {
		return VerificationOutcome{}, err
	}
	return VerificationOutcome{Phone: p, Session: &session}, nil
}

// VerificationStatus reports the latest attempt for a phone.
func (s *Service) VerificationStatus(ctx context.Context, rawPhone string) (VerificationState, error) {
	p, err := s.canonical("verification_status", rawPhone)
	if err != nil {
		return VerificationState{}, err
	}
	pending, err := s.gateway.PendingStatus(ctx, p)
	if err != nil {
		s.logger.Warn("auth.verification_status failed", slog.String("phone", phone.Mask(p)), slog.String("error", err.Error()))
		return VerificationState{}, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
	return VerificationState{Phone: p, Pending: pending}, nil
}

// Register creates a verified, active member and signs them in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	p, err := s.canonical("register", in.Phone)
	if err != nil {
		return Session{}, err
	}
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if !validName(in.FirstName) || !validName(in.LastName) || len(in.Password) < minPasswordLength {
		return Session{}, ErrInvalidInput
	}

	_, err = s.users.FindByPhone(ctx, p)
	switch {
	case err == nil:
		return Session{}, s.reject("register", ErrPhoneAlreadyRegistered, "phone exists", p)
	case !errors.Is(err, identity.ErrNotFound):
		s.logger.Error("auth.register lookup failed", slog.String("phone", phone.Mask(p)), slog.String("error", err.Error()))
		return Session{}, fmt.Errorf("%w: %v", ErrRegistrationPersistFailed, err)
	}

	username := identity.NormalizeUsername(in.Username)
	if username == "" {
		username = generateUsername(in.FirstName, in.LastName)
	} else if !identity.ValidUsernameLength(username) {
		return Session{}, ErrInvalidInput
	}
	if username, err = s.freeUsername(ctx, username); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrRegistrationPersistFailed, err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Session{}, fmt.Errorf("%w: hash password: %v", ErrRegistrationPersistFailed, err)
	}

	now := s.now().UTC()
	user := identity.User{
		ID:           uuid.NewString(),
		Phone:        p,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Username:     username,
		PasswordHash: hash,
		IsVerified:   true,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if email := strings.TrimSpace(in.Email); email != "" {
		user.Email = &email
	}

	err = s.users.Create(ctx, user)
	if errors.Is(err, identity.ErrUsernameTaken) {
		// Lost a race for the handle between the check and the insert.
		user.Username = disambiguate(username)
		err = s.users.Create(ctx, user)
	}
	switch {
	case errors.Is(err, identity.ErrPhoneTaken):
		return Session{}, s.reject("register", ErrPhoneAlreadyRegistered, "phone constraint", p)
	case err != nil:
		s.logger.Error("auth.register insert failed", slog.String("phone", phone.Mask(p)), slog.String("error", err.Error()))
		return Session{}, fmt.Errorf("%w: %v", ErrRegistrationPersistFailed, err)
	}

	session, err := s.session(user)
	if err != nil {
		return Session{}, err
	}
	s.logger.Info("auth.registered", slog.String("user_id", user.ID), slog.String("phone", phone.Mask(p)))
	welcome := notification.Message{
		Kind:        notification.KindWelcome,
		Destination: p,
		Body:        fmt.Sprintf("Welcome to Only Friends, %s! Your username is @%s.", user.FirstName, user.Username),
	}
	if err := s.notifier.Send(ctx, welcome); err != nil {
		s.logger.Warn("auth.welcome not sent", slog.String("user_id", user.ID), slog.String("error", err.Error()))
	}
	return session, nil
}

// Login checks a phone and password. Unknown phones and wrong passwords are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, rawPhone, password string) (Session, error) {
	p, err := s.canonical("login", rawPhone)
	if err != nil {
		return Session{}, err
	}
	user, err := s.users.FindByPhone(ctx, p)
	if errors.Is(err, identity.ErrNotFound) {
		_, _ = s.hasher.Verify(password, s.dummyHash)
		return Session{}, s.reject("login", ErrInvalidCredentials, "unknown phone", p)
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		s.logger.Error("auth.login corrupted credential", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		return Session{}, ErrCorruptedCredentialRecord
	}
	if !ok {
		return Session{}, s.reject("login", ErrInvalidCredentials, "wrong password", p)
	}
	if !user.IsActive {
		return Session{}, s.reject("login", ErrAccountDeactivated, "inactive account", p)
	}

	session, err := s.session(user)
	if err != nil {
		return Session{}, err
	}
	s.logger.Info("auth.login", slog.String("user_id", user.ID))
	return session, nil
}

// Refresh trades a refresh token for a new pair. The member must still exist
// and be active.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	claims, err := s.tokens.Verify(refreshToken, token.Refresh)
	if err != nil {
		reason, _ := token.ReasonOf(err)
		s.logger.Info("auth.refresh rejected", slog.String("reason", string(reason)))
		return Session{}, ErrInvalidToken
	}
	user, err := s.users.FindByID(ctx, claims.Subject)
	if errors.Is(err, identity.ErrNotFound) {
		s.logger.Info("auth.refresh rejected", slog.String("reason", "unknown subject"))
		return Session{}, ErrInvalidToken
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive {
		s.logger.Info("auth.refresh rejected", slog.String("reason", "inactive account"), slog.String("user_id", user.ID))
		return Session{}, ErrInvalidToken
	}
	return s.session(user)
}

// Authenticate resolves an access token to its subject.
func (s *Service) Authenticate(accessToken string) (Principal, error) {
	claims, err := s.tokens.Verify(accessToken, token.Access)
	if err != nil {
		reason, _ := token.ReasonOf(err)
		s.logger.Debug("auth.authenticate rejected", slog.String("reason", string(reason)))
		return Principal{}, ErrUnauthorized
	}
	p := Principal{UserID: claims.Subject, Phone: claims.Phone}
	if claims.ExpiresAt != nil {
		p.ExpiresAt = claims.ExpiresAt.Time
	}
	return p, nil
}

// Reactivate restores a deactivated account after the owner proves the phone
// again with a fresh code.
func (s *Service) Reactivate(ctx context.Context, rawPhone, code string) (Session, error) {
	p, err := s.canonical("reactivate", rawPhone)
	if err != nil {
		return Session{}, err
	}
	if err := s.checkCode(ctx, "reactivate", p, code); err != nil {
		return Session{}, err
	}
	user, err := s.users.FindByPhone(ctx, p)
	if errors.Is(err, identity.ErrNotFound) {
		return Session{}, s.reject("reactivate", ErrInvalidCode, "unknown phone", p)
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive {
		if err := s.users.SetActive(ctx, user.ID, true, s.now().UTC()); err != nil {
			return Session{}, fmt.Errorf("reactivate user: %w", err)
		}
		user.IsActive = true
		s.logger.Info("auth.reactivated", slog.String("user_id", user.ID))
	}
	return s.session(user)
}

// ResetPassword replaces the password of the account that owns the phone once
// a fresh code for it checks out. The account's active state is untouched.
func (s *Service) ResetPassword(ctx context.Context, rawPhone, code, newPassword string) error {
	p, err := s.canonical("reset_password", rawPhone)
	if err != nil {
		return err
	}
	if len(newPassword) < minPasswordLength {
		return ErrInvalidInput
	}
	if err := s.checkCode(ctx, "reset_password", p, code); err != nil {
		return err
	}
	user, err := s.users.FindByPhone(ctx, p)
	if errors.Is(err, identity.ErrNotFound) {
		return s.reject("reset_password", ErrInvalidCode, "unknown phone", p)
	}
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.SetPassword(ctx, user.ID, hash, s.now().UTC()); err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	s.logger.Info("auth.password reset", slog.String("user_id", user.ID))
	return nil
}

func validName(s string) bool {
	return s != "" && utf8.RuneCountInString(s) <= maxNameLength
}

func (s *Service) canonical(op, raw string) (string, error) {
	p, err := phone.Canonical(raw)
	if err != nil {
		s.logger.Info("auth."+op+" rejected", slog.String("cause", "invalid phone"))
		return "", ErrInvalidPhone
	}
	return p, nil
}

func (s *Service) checkCode(ctx context.Context, op, p, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return s.reject(op, ErrInvalidCode, "empty code", p)
	}
	res, err := s.gateway.CheckCode(ctx, p, code)
	if err != nil {
		s.logger.Warn("auth."+op+" provider failed", slog.String("phone", phone.Mask(p)), slog.String("error", err.Error()))
		return fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
	if !res.Valid {
		return s.reject(op, ErrInvalidCode, "code status "+string(res.Status), p)
	}
	return nil
}

// freeUsername returns username, or a disambiguated form if it is taken.
func (s *Service) freeUsername(ctx context.Context, username string) (string, error) {
	taken, err := s.users.UsernameExists(ctx, username, "")
	if err != nil {
		return "", err
	}
	if taken {
		return disambiguate(username), nil
	}
	return username, nil
}

func (s *Service) session(user identity.User) (Session, error) {
	pair, err := s.tokens.IssuePair(user.ID, user.Phone)
	if err != nil {
		return Session{}, fmt.Errorf("issue tokens: %w", err)
	}
	return Session{UserID: user.ID, Phone: user.Phone, IsVerified: user.IsVerified, Tokens: pair}, nil
}

// reject logs the internal cause and returns only the caller-facing kind.
func (s *Service) reject(op string, kind error, cause, p string) error {
	s.logger.Info("auth."+op+" rejected", slog.String("cause", cause), slog.String("phone", phone.Mask(p)))
	return kind
}
