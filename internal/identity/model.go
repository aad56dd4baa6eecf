package identity

import "time"

// User is a registered identity keyed by its canonical phone number.
type User struct {
	ID           string
	Phone        string
	Email        *string
	FirstName    string
	LastName     string
	Username     string
	Bio          *string
	AvatarURL    *string
	IsPrivate    bool
	Location     *string
	PasswordHash []byte
	IsVerified   bool
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProfileUpdate is a partial update; nil fields are left untouched.
type ProfileUpdate struct {
	Email     *string
	FirstName *string
	LastName  *string
	Username  *string
	Bio       *string
	AvatarURL *string
	IsPrivate *bool
	Location  *string
}

// Empty reports whether the update changes nothing.
func (u ProfileUpdate) Empty() bool {
	return u.Email == nil && u.FirstName == nil && u.LastName == nil && u.Username == nil &&
		u.Bio == nil && u.AvatarURL == nil && u.IsPrivate == nil && u.Location == nil
}

func (u ProfileUpdate) apply(user *User) {
	if u.Email != nil {
		user.Email = u.Email
	}
	if u.FirstName != nil {
		user.FirstName = *u.FirstName
	}
	if u.LastName != nil {
		user.LastName = *u.LastName
	}
	if u.Username != nil {
		user.Username = *u.Username
	}
	if u.Bio != nil {
		user.Bio = u.Bio
	}
	if u.AvatarURL != nil {
		user.AvatarURL = u.AvatarURL
	}
	if u.IsPrivate != nil {
		user.IsPrivate = *u.IsPrivate
	}
	if u.Location != nil {
		user.Location = u.Location
	}
}

// Profile is what other members see.
type Profile struct {
	ID        string  `json:"id"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Username  string  `json:"username"`
	AvatarURL *string `json:"avatar_url"`
	Bio       *string `json:"bio"`
	IsPrivate bool    `json:"is_private"`
	Location  *string `json:"location,omitempty"`
	Limited   bool    `json:"limited"`
}

// SearchResult is one row of a member search.
type SearchResult struct {
	ID        string  `json:"id"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Username  string  `json:"username"`
	AvatarURL *string `json:"avatar_url"`
	IsPrivate bool    `json:"is_private"`
}
