package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no identity matches a lookup.
	ErrNotFound = errors.New("user not found")
	// ErrPhoneTaken is returned when the phone uniqueness constraint rejects a write.
	ErrPhoneTaken = errors.New("phone number already registered")
	// ErrUsernameTaken is returned when the username uniqueness constraint rejects a write.
	ErrUsernameTaken = errors.New("username already taken")
)

const uniqueViolation = "23505"

// Repository persists identities. Create must enforce uniqueness of phone and
// username and report violations as ErrPhoneTaken / ErrUsernameTaken.
type Repository interface {
	Create(ctx context.Context, user User) error
	FindByPhone(ctx context.Context, phone string) (User, error)
	FindByID(ctx context.Context, id string) (User, error)
	UsernameExists(ctx context.Context, username, excludeID string) (bool, error)
	Update(ctx context.Context, id string, patch ProfileUpdate, at time.Time) (User, error)
	SetActive(ctx context.Context, id string, active bool, at time.Time) error
	SetPassword(ctx context.Context, id string, hash []byte, at time.Time) error
	// Search returns active identities whose first name, last name or
	// username contains query, case-insensitively, ordered by username.
	Search(ctx context.Context, query, excludeID string, limit int) ([]User, error)
}

// PostgresRepository implements Repository using PostgreSQL. It expects the
// users table to carry unique constraints users_phone_number_key and
// users_username_key.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed identity repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, phone_number, email, first_name, last_name, username, bio, avatar_url,
        is_private, location, password_hash, is_verified, is_active, created_at, updated_at`

// Create inserts a new user.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (`+userColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		userID, user.Phone, user.Email, user.FirstName, user.LastName, user.Username, user.Bio, user.AvatarURL,
		user.IsPrivate, user.Location, user.PasswordHash, user.IsVerified, user.IsActive,
		user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	return translateWriteErr(err)
}

// FindByPhone fetches a user by canonical phone number.
func (r *PostgresRepository) FindByPhone(ctx context.Context, phone string) (User, error) {
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone_number = $1`, phone)
	return scanUser(row)
}

// FindByID fetches a user by identifier.
func (r *PostgresRepository) FindByID(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID)
	return scanUser(row)
}

// UsernameExists reports whether another user already holds username.
func (r *PostgresRepository) UsernameExists(ctx context.Context, username, excludeID string) (bool, error) {
	var exists bool
	var err error
	if excludeID == "" {
		err = r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	} else {
		excl, perr := uuid.Parse(excludeID)
		if perr != nil {
			return false, perr
		}
		err = r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1 AND id <> $2)`, username, excl).Scan(&exists)
	}
	return exists, err
}

// Update applies a partial profile update and returns the stored row.
func (r *PostgresRepository) Update(ctx context.Context, id string, patch ProfileUpdate, at time.Time) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrNotFound
	}

	sets := []string{}
	args := []any{}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.Email != nil {
		add("email", *patch.Email)
	}
	if patch.FirstName != nil {
		add("first_name", *patch.FirstName)
	}
	if patch.LastName != nil {
		add("last_name", *patch.LastName)
	}
	if patch.Username != nil {
		add("username", *patch.Username)
	}
	if patch.Bio != nil {
		add("bio", *patch.Bio)
	}
	if patch.AvatarURL != nil {
		add("avatar_url", *patch.AvatarURL)
	}
	if patch.IsPrivate != nil {
		add("is_private", *patch.IsPrivate)
	}
	if patch.Location != nil {
		add("location", *patch.Location)
	}
	add("updated_at", at.UTC())
	args = append(args, userID)

	query := fmt.Sprintf(`UPDATE users SET %s WHERE id = $%d RETURNING `+userColumns, strings.Join(sets, ", "), len(args))
	user, err := scanUser(r.db.QueryRow(ctx, query, args...))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return User{}, translateWriteErr(err)
	}
	return user, err
}

// SetActive toggles the active flag.
func (r *PostgresRepository) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE users SET is_active = $1, updated_at = $2 WHERE id = $3`, active, at.UTC(), userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Search matches query as a literal substring; LIKE wildcards in it are escaped.
func (r *PostgresRepository) Search(ctx context.Context, query, excludeID string, limit int) ([]User, error) {
	pattern := "%" + likeEscaper.Replace(query) + "%"
	sql := `SELECT ` + userColumns + ` FROM users
        WHERE is_active AND (first_name ILIKE $1 ESCAPE '\' OR last_name ILIKE $1 ESCAPE '\' OR username ILIKE $1 ESCAPE '\')`
	args := []any{pattern}
	if excl, err := uuid.Parse(excludeID); err == nil {
		sql += ` AND id <> $2`
		args = append(args, excl)
	}
	sql += fmt.Sprintf(` ORDER BY username LIMIT %d`, limit)

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SetPassword replaces the stored password hash.
func (r *PostgresRepository) SetPassword(ctx context.Context, id string, hash []byte, at time.Time) error {
	userID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`, hash, at.UTC(), userID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		id        uuid.UUID
		createdAt time.Time
		updatedAt time.Time
		user      User
	)
	err := row.Scan(&id, &user.Phone, &user.Email, &user.FirstName, &user.LastName, &user.Username,
		&user.Bio, &user.AvatarURL, &user.IsPrivate, &user.Location, &user.PasswordHash,
		&user.IsVerified, &user.IsActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	user.ID = id.String()
	user.CreatedAt = createdAt.UTC()
	user.UpdatedAt = updatedAt.UTC()
	return user, nil
}

func translateWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch {
		case strings.Contains(pgErr.ConstraintName, "phone"):
			return fmt.Errorf("%w: %s", ErrPhoneTaken, pgErr.ConstraintName)
		case strings.Contains(pgErr.ConstraintName, "username"):
			return fmt.Errorf("%w: %s", ErrUsernameTaken, pgErr.ConstraintName)
		}
	}
	return err
}
