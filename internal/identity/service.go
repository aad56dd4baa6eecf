package identity

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/onlyfriends/onlyfriends/internal/logging"
)

var (
	// ErrNoChanges is returned when an update carries no fields.
	ErrNoChanges = errors.New("no fields to update")
	// ErrInvalidUsername is returned when a username is too short or too long
	// once trimmed.
	ErrInvalidUsername = errors.New("username must be 3 to 30 characters")
	// ErrEmptyQuery is returned by Search for a blank query.
	ErrEmptyQuery = errors.New("search query is required")
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 30

	DefaultSearchLimit = 20
	MaxSearchLimit     = 50
)

// Service manages profile reads and updates for registered identities.
type Service struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new identity service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Me returns the caller's own record with the password hash cleared.
func (s *Service) Me(ctx context.Context, id string) (User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	user.PasswordHash = nil
	return user, nil
}

// UpdateProfile applies a partial update. A new username must not belong to
// anyone else.
func (s *Service) UpdateProfile(ctx context.Context, id string, patch ProfileUpdate) (User, error) {
	if patch.Empty() {
		return User{}, ErrNoChanges
	}
	if patch.Username != nil {
		name := NormalizeUsername(*patch.Username)
		if !ValidUsernameLength(name) {
			return User{}, ErrInvalidUsername
		}
		patch.Username = &name
		taken, err := s.repo.UsernameExists(ctx, name, id)
		if err != nil {
			return User{}, err
		}
		if taken {
			return User{}, ErrUsernameTaken
		}
	}

	user, err := s.repo.Update(ctx, id, patch, s.now())
	if err != nil {
		return User{}, err
	}
	s.logger.Info("identity.profile updated", slog.String("user_id", id))
	user.PasswordHash = nil
	return user, nil
}

// Profile returns the public view of id as seen by viewerID. Private profiles
// are limited for everyone except their owner.
func (s *Service) Profile(ctx context.Context, viewerID, id string) (Profile, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	if !user.IsActive && viewerID != id {
		return Profile{}, ErrNotFound
	}
	p := Profile{
		ID:        user.ID,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Username:  user.Username,
		AvatarURL: user.AvatarURL,
		IsPrivate: user.IsPrivate,
	}
	if user.IsPrivate && viewerID != id {
		p.Limited = true
		return p, nil
	}
	p.Bio = user.Bio
	p.Location = user.Location
	return p, nil
}

// UsernameAvailable reports whether username is free, ignoring excludeID.
func (s *Service) UsernameAvailable(ctx context.Context, username, excludeID string) (bool, error) {
	taken, err := s.repo.UsernameExists(ctx, NormalizeUsername(username), excludeID)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

// Deactivate marks the identity inactive. Its tokens stop refreshing and login
// reports the account as deactivated.
func (s *Service) Deactivate(ctx context.Context, id string) error {
	if err := s.repo.SetActive(ctx, id, false, s.now()); err != nil {
		return err
	}
	s.logger.Info("identity.deactivated", slog.String("user_id", id))
	return nil
}

// Search finds other active members by name or username. limit is clamped to
// [1, MaxSearchLimit]; zero means DefaultSearchLimit.
func (s *Service) Search(ctx context.Context, viewerID, query string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	switch {
	case limit <= 0:
		limit = DefaultSearchLimit
	case limit > MaxSearchLimit:
		limit = MaxSearchLimit
	}
	users, err := s.repo.Search(ctx, query, viewerID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]SearchResult, 0, len(users))
	for _, u := range users {
		out = append(out, SearchResult{
			ID:        u.ID,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Username:  u.Username,
			AvatarURL: u.AvatarURL,
			IsPrivate: u.IsPrivate,
		})
	}
	return out, nil
}

// NormalizeUsername trims and lowercases a requested username.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidUsernameLength reports whether a normalized username has an accepted length.
func ValidUsernameLength(s string) bool {
	n := utf8.RuneCountInString(s)
	return n >= MinUsernameLength && n <= MaxUsernameLength
}
