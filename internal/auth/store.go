package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrStoreUnavailable = errors.New("auth: store unavailable")

var ErrNotFound = errors.New("auth: not found")

// UserRecord is the stored user row including the password hash.
type UserRecord struct {
	ID           uuid.UUID
	Name         string
	Email        string
	PasswordHash string
	Roles        []string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session is one refresh-token session. RefreshToken holds the SHA-256 hash,
// never the raw token.
type Session struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	RefreshToken string
	UserAgent    string
	IP           string
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// PasswordReset is one outstanding reset token.
type PasswordReset struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Token     string
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// Store persists users, sessions and password resets.
type Store interface {
	CreateUser(ctx context.Context, name, email, passwordHash string, roles []string) (UserRecord, error)
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (UserRecord, error)
	ListUsers(ctx context.Context) ([]UserRecord, error)
	UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdateUserRoles(ctx context.Context, id uuid.UUID, roles []string) (UserRecord, error)
	UpdateUserActive(ctx context.Context, id uuid.UUID, active bool) (UserRecord, error)

	CreateSession(ctx context.Context, s Session) (Session, error)
	GetSessionByToken(ctx context.Context, tokenHash string) (Session, error)
	RotateSessionToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error
	DeleteSessionByToken(ctx context.Context, tokenHash string) error
	DeleteSessionsByUser(ctx context.Context, userID uuid.UUID) error

	CreatePasswordReset(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error
	GetPasswordResetByToken(ctx context.Context, token string) (PasswordReset, error)
	UsePasswordReset(ctx context.Context, token string) error
	DeletePasswordResetsByUser(ctx context.Context, userID uuid.UUID) error
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const userColumns = `id, name, email, password_hash, roles, active, created_at, updated_at`

func (s *pgStore) CreateUser(ctx context.Context, name, email, passwordHash string, roles []string) (UserRecord, error) {
	if s == nil || s.pool == nil {
		return UserRecord{}, ErrStoreUnavailable
	}
	if len(roles) == 0 {
		roles = []string{"staff"}
	}
	row := s.pool.QueryRow(ctx, `INSERT INTO users (name, email, password_hash, roles)
VALUES ($1, $2, $3, $4)
RETURNING `+userColumns, name, email, passwordHash, roles)
	return scanUser(row)
}

func (s *pgStore) GetUserByEmail(ctx context.Context, email string) (UserRecord, error) {
	if s == nil || s.pool == nil {
		return UserRecord{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRecord{}, ErrNotFound
	}
	return u, err
}

func (s *pgStore) GetUserByID(ctx context.Context, id uuid.UUID) (UserRecord, error) {
	if s == nil || s.pool == nil {
		return UserRecord{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRecord{}, ErrNotFound
	}
	return u, err
}

func (s *pgStore) ListUsers(ctx context.Context) ([]UserRecord, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserRecord
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *pgStore) UpdateUserPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, passwordHash)
	return err
}

func (s *pgStore) UpdateUserRoles(ctx context.Context, id uuid.UUID, roles []string) (UserRecord, error) {
	if s == nil || s.pool == nil {
		return UserRecord{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `UPDATE users SET roles = $2, updated_at = now() WHERE id = $1
RETURNING `+userColumns, id, roles)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRecord{}, ErrNotFound
	}
	return u, err
}

func (s *pgStore) UpdateUserActive(ctx context.Context, id uuid.UUID, active bool) (UserRecord, error) {
	if s == nil || s.pool == nil {
		return UserRecord{}, ErrStoreUnavailable
	}
	row := s.pool.QueryRow(ctx, `UPDATE users SET active = $2, updated_at = now() WHERE id = $1
RETURNING `+userColumns, id, active)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserRecord{}, ErrNotFound
	}
	return u, err
}

func (s *pgStore) CreateSession(ctx context.Context, sess Session) (Session, error) {
	if s == nil || s.pool == nil {
		return Session{}, ErrStoreUnavailable
	}
	err := s.pool.QueryRow(ctx, `INSERT INTO sessions (user_id, refresh_token, user_agent, ip, expires_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at`, sess.UserID, sess.RefreshToken, sess.UserAgent, sess.IP, sess.ExpiresAt).
		Scan(&sess.ID, &sess.CreatedAt)
	return sess, err
}

func (s *pgStore) GetSessionByToken(ctx context.Context, tokenHash string) (Session, error) {
	if s == nil || s.pool == nil {
		return Session{}, ErrStoreUnavailable
	}
	var sess Session
	err := s.pool.QueryRow(ctx, `SELECT id, user_id, refresh_token, coalesce(user_agent, ''), coalesce(ip, ''), expires_at, created_at
FROM sessions WHERE refresh_token = $1`, tokenHash).
		Scan(&sess.ID, &sess.UserID, &sess.RefreshToken, &sess.UserAgent, &sess.IP, &sess.ExpiresAt, &sess.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	return sess, err
}

func (s *pgStore) RotateSessionToken(ctx context.Context, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx, `UPDATE sessions SET refresh_token = $2, expires_at = $3 WHERE id = $1`, id, tokenHash, expiresAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *pgStore) DeleteSessionByToken(ctx context.Context, tokenHash string) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE refresh_token = $1`, tokenHash)
	return err
}

func (s *pgStore) DeleteSessionsByUser(ctx context.Context, userID uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return err
}

func (s *pgStore) CreatePasswordReset(ctx context.Context, userID uuid.UUID, token string, expiresAt time.Time) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO password_resets (user_id, token, expires_at) VALUES ($1, $2, $3)`,
		userID, token, expiresAt)
	return err
}

func (s *pgStore) GetPasswordResetByToken(ctx context.Context, token string) (PasswordReset, error) {
	if s == nil || s.pool == nil {
		return PasswordReset{}, ErrStoreUnavailable
	}
	var reset PasswordReset
	err := s.pool.QueryRow(ctx, `SELECT id, user_id, token, expires_at, used_at FROM password_resets WHERE token = $1`, token).
		Scan(&reset.ID, &reset.UserID, &reset.Token, &reset.ExpiresAt, &reset.UsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PasswordReset{}, ErrNotFound
	}
	return reset, err
}

func (s *pgStore) UsePasswordReset(ctx context.Context, token string) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `UPDATE password_resets SET used_at = now() WHERE token = $1`, token)
	return err
}

func (s *pgStore) DeletePasswordResetsByUser(ctx context.Context, userID uuid.UUID) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM password_resets WHERE user_id = $1`, userID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (UserRecord, error) {
	var u UserRecord
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Roles, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}
