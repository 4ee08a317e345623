package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/rs/zerolog"

	"github.com/lexpraxis/backend-lexis/internal/common"
)

const (
	tokenIssuer   = "lexpraxis"
	tokenAudience = "lexpraxis-api"

	refreshTokenBytes = 48
	resetTokenBytes   = 32
	resetTokenTTL     = 30 * time.Minute
)

var signingAlg = jwa.HS256

// User is the safe, public view of a user record.
type User struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// TokenPair carries a short-lived access token and the raw refresh token.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// RegisterInput creates a new account. Roles default to staff when empty.
type RegisterInput struct {
	Name     string   `json:"name" validate:"required,min=2,max=120"`
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required,min=8,max=128"`
	Roles    []string `json:"roles" validate:"omitempty,dive,oneof=admin advogado staff"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ForgotInput struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetInput struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

// Service implements registration, login and session management on top of
// argon2id password hashes and HS256 access tokens.
type Service struct {
	Store      Store
	Email      common.EmailSender
	From       string
	ResetURL   string
	Secret     []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Log        zerolog.Logger
	Now        func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Register creates a user. Email uniqueness is enforced by the store.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	if err := common.ValidateStruct(in); err != nil {
		return User{}, err
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if _, err := s.Store.GetUserByEmail(ctx, in.Email); err == nil {
		return User{}, common.NewAppError("EMAIL_TAKEN", "email already registered", http.StatusConflict, nil)
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}

	hash, err := argon2id.CreateHash(in.Password, argon2id.DefaultParams)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	rec, err := s.Store.CreateUser(ctx, in.Name, in.Email, hash, in.Roles)
	if err != nil {
		return User{}, err
	}
	return publicUser(rec), nil
}

// Login verifies credentials and opens a new session.
func (s *Service) Login(ctx context.Context, in LoginInput, userAgent, ip string) (User, TokenPair, error) {
	if err := common.ValidateStruct(in); err != nil {
		return User{}, TokenPair{}, err
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	rec, err := s.Store.GetUserByEmail(ctx, in.Email)
	if errors.Is(err, ErrNotFound) {
		return User{}, TokenPair{}, errInvalidCredentials()
	}
	if err != nil {
		return User{}, TokenPair{}, err
	}
	match, err := argon2id.ComparePasswordAndHash(in.Password, rec.PasswordHash)
	if err != nil {
		return User{}, TokenPair{}, fmt.Errorf("compare password: %w", err)
	}
	if !match {
		return User{}, TokenPair{}, errInvalidCredentials()
	}
	if !rec.Active {
		return User{}, TokenPair{}, errUserDisabled()
	}

	pair, err := s.openSession(ctx, rec, userAgent, ip)
	if err != nil {
		return User{}, TokenPair{}, err
	}
	return publicUser(rec), pair, nil
}

// Refresh rotates the refresh token and issues a fresh access token. The old
// refresh token stops working immediately.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	sess, err := s.Store.GetSessionByToken(ctx, hashToken(refreshToken))
	if errors.Is(err, ErrNotFound) {
		return TokenPair{}, errInvalidSession()
	}
	if err != nil {
		return TokenPair{}, err
	}
	now := s.now()
	if now.After(sess.ExpiresAt) {
		_ = s.Store.DeleteSessionByToken(ctx, sess.RefreshToken)
		return TokenPair{}, errInvalidSession()
	}

	rec, err := s.Store.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return TokenPair{}, err
	}
	if !rec.Active {
		_ = s.Store.DeleteSessionsByUser(ctx, rec.ID)
		return TokenPair{}, errInvalidSession()
	}

	raw, err := newOpaqueToken(refreshTokenBytes)
	if err != nil {
		return TokenPair{}, err
	}
	if err := s.Store.RotateSessionToken(ctx, sess.ID, hashToken(raw), now.Add(s.RefreshTTL)); err != nil {
		return TokenPair{}, err
	}
	access, exp, err := s.signAccessToken(rec, now)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: raw, ExpiresAt: exp}, nil
}

// Logout deletes the session for the given refresh token. Unknown tokens are
// treated as already logged out.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	return s.Store.DeleteSessionByToken(ctx, hashToken(refreshToken))
}

// Me returns the public profile for a user id.
func (s *Service) Me(ctx context.Context, id uuid.UUID) (User, error) {
	rec, err := s.Store.GetUserByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return User{}, common.NewAppError("NOT_FOUND", "user not found", http.StatusNotFound, nil)
	}
	if err != nil {
		return User{}, err
	}
	return publicUser(rec), nil
}

// Users lists every account, for the admin user management screen.
func (s *Service) Users(ctx context.Context) ([]User, error) {
	recs, err := s.Store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]User, 0, len(recs))
	for _, rec := range recs {
		out = append(out, publicUser(rec))
	}
	return out, nil
}

// ChangeRoles replaces a user's role set and revokes their sessions so the
// next login picks up the new claims.
func (s *Service) ChangeRoles(ctx context.Context, id uuid.UUID, roles []string) (User, error) {
	in := struct {
		Roles []string `json:"roles" validate:"required,min=1,dive,oneof=admin advogado staff"`
	}{Roles: roles}
	if err := common.ValidateStruct(in); err != nil {
		return User{}, err
	}
	rec, err := s.Store.UpdateUserRoles(ctx, id, roles)
	if errors.Is(err, ErrNotFound) {
		return User{}, common.NewAppError("NOT_FOUND", "user not found", http.StatusNotFound, nil)
	}
	if err != nil {
		return User{}, err
	}
	if err := s.Store.DeleteSessionsByUser(ctx, id); err != nil {
		return User{}, err
	}
	return publicUser(rec), nil
}

// SetActive flips the account flag. Deactivation revokes every session so the
// user is locked out as soon as the access token expires.
func (s *Service) SetActive(ctx context.Context, id uuid.UUID, active bool) (User, error) {
	rec, err := s.Store.UpdateUserActive(ctx, id, active)
	if errors.Is(err, ErrNotFound) {
		return User{}, common.NewAppError("NOT_FOUND", "user not found", http.StatusNotFound, nil)
	}
	if err != nil {
		return User{}, err
	}
	if !active {
		if err := s.Store.DeleteSessionsByUser(ctx, id); err != nil {
			return User{}, err
		}
	}
	return publicUser(rec), nil
}

// Forgot issues a password reset token and mails the reset link. Unknown
// emails return success so the endpoint does not leak account existence.
func (s *Service) Forgot(ctx context.Context, in ForgotInput) error {
	if err := common.ValidateStruct(in); err != nil {
		return err
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	rec, err := s.Store.GetUserByEmail(ctx, in.Email)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	token, err := newOpaqueToken(resetTokenBytes)
	if err != nil {
		return err
	}
	if err := s.Store.CreatePasswordReset(ctx, rec.ID, hashToken(token), s.now().Add(resetTokenTTL)); err != nil {
		return err
	}

	if s.Email == nil {
		return nil
	}
	msg := common.EmailMessage{
		From:     s.From,
		To:       []string{rec.Email},
		Subject:  "Redefinicao de senha",
		HTMLBody: renderResetEmail(rec.Name, s.ResetURL, token),
	}
	if err := s.Email.Send(msg); err != nil {
		s.Log.Error().Err(err).Str("email", rec.Email).Msg("send reset email")
	}
	return nil
}

// Reset consumes a reset token, updates the password and revokes every open
// session for the user.
func (s *Service) Reset(ctx context.Context, in ResetInput) error {
	if err := common.ValidateStruct(in); err != nil {
		return err
	}
	reset, err := s.Store.GetPasswordResetByToken(ctx, hashToken(in.Token))
	if errors.Is(err, ErrNotFound) {
		return errInvalidResetToken()
	}
	if err != nil {
		return err
	}
	if reset.UsedAt != nil || s.now().After(reset.ExpiresAt) {
		return errInvalidResetToken()
	}

	hash, err := argon2id.CreateHash(in.Password, argon2id.DefaultParams)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.Store.UpdateUserPassword(ctx, reset.UserID, hash); err != nil {
		return err
	}
	if err := s.Store.UsePasswordReset(ctx, reset.Token); err != nil {
		return err
	}
	return s.Store.DeleteSessionsByUser(ctx, reset.UserID)
}

// ParseAccessToken verifies signature and registered claims and returns the
// subject and roles.
func (s *Service) ParseAccessToken(tokenString string) (uuid.UUID, []string, error) {
	alg, err := extractAlg(tokenString)
	if err != nil {
		return uuid.Nil, nil, errInvalidToken()
	}
	if alg != signingAlg {
		return uuid.Nil, nil, errInvalidToken()
	}
	tok, err := jwt.ParseString(tokenString,
		jwt.WithKey(signingAlg, s.Secret),
		jwt.WithValidate(true),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithClock(jwt.ClockFunc(s.now)),
		jwt.WithAcceptableSkew(30*time.Second),
	)
	if err != nil {
		return uuid.Nil, nil, errInvalidToken()
	}
	id, err := uuid.Parse(tok.Subject())
	if err != nil {
		return uuid.Nil, nil, errInvalidToken()
	}
	var roles []string
	if raw, ok := tok.Get("roles"); ok {
		switch v := raw.(type) {
		case []string:
			roles = v
		case []any:
			for _, item := range v {
				if str, ok := item.(string); ok {
					roles = append(roles, str)
				}
			}
		}
	}
	return id, roles, nil
}

func (s *Service) openSession(ctx context.Context, rec UserRecord, userAgent, ip string) (TokenPair, error) {
	now := s.now()
	raw, err := newOpaqueToken(refreshTokenBytes)
	if err != nil {
		return TokenPair{}, err
	}
	_, err = s.Store.CreateSession(ctx, Session{
		UserID:       rec.ID,
		RefreshToken: hashToken(raw),
		UserAgent:    userAgent,
		IP:           ip,
		ExpiresAt:    now.Add(s.RefreshTTL),
	})
	if err != nil {
		return TokenPair{}, err
	}
	access, exp, err := s.signAccessToken(rec, now)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: raw, ExpiresAt: exp}, nil
}

func (s *Service) signAccessToken(rec UserRecord, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.AccessTTL)
	tok, err := jwt.NewBuilder().
		Subject(rec.ID.String()).
		Issuer(tokenIssuer).
		Audience([]string{tokenAudience}).
		IssuedAt(now).
		NotBefore(now).
		Expiration(exp).
		Claim("roles", rec.Roles).
		Build()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("build token: %w", err)
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(signingAlg, s.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return string(signed), exp, nil
}

// extractAlg reads the alg header without verifying. Tokens with no signature
// or mixed algorithms across signatures are rejected.
func extractAlg(tokenString string) (jwa.SignatureAlgorithm, error) {
	msg, err := jws.ParseString(tokenString)
	if err != nil {
		return "", err
	}
	sigs := msg.Signatures()
	if len(sigs) == 0 {
		return "", errors.New("no signatures")
	}
	alg := sigs[0].ProtectedHeaders().Algorithm()
	if alg == jwa.NoSignature || alg == "" {
		return "", errors.New("unsigned token")
	}
	for _, sig := range sigs[1:] {
		if sig.ProtectedHeaders().Algorithm() != alg {
			return "", errors.New("mixed signature algorithms")
		}
	}
	return alg, nil
}

func newOpaqueToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// HasRole reports whether roles contains want, in constant time per entry.
func HasRole(roles []string, want string) bool {
	for _, r := range roles {
		if subtle.ConstantTimeCompare([]byte(r), []byte(want)) == 1 {
			return true
		}
	}
	return false
}

func publicUser(rec UserRecord) User {
	return User{ID: rec.ID, Name: rec.Name, Email: rec.Email, Roles: rec.Roles, Active: rec.Active, CreatedAt: rec.CreatedAt}
}

func errInvalidCredentials() error {
	return common.NewAppError("INVALID_CREDENTIALS", "invalid email or password", http.StatusUnauthorized, nil)
}

func errUserDisabled() error {
	return common.NewAppError("USER_DISABLED", "account is deactivated", http.StatusForbidden, nil)
}

func errInvalidSession() error {
	return common.NewAppError("INVALID_SESSION", "session expired or revoked", http.StatusUnauthorized, nil)
}

func errInvalidToken() error {
	return common.NewAppError("INVALID_TOKEN", "invalid access token", http.StatusUnauthorized, nil)
}

func errInvalidResetToken() error {
	return common.NewAppError("INVALID_RESET_TOKEN", "reset token invalid or expired", http.StatusBadRequest, nil)
}

func renderResetEmail(name, baseURL, token string) string {
	link := strings.TrimRight(baseURL, "/") + "/reset-password?token=" + token
	var b strings.Builder
	b.WriteString("<p>Ola " + name + ",</p>")
	b.WriteString("<p>Recebemos um pedido para redefinir a sua senha. O link abaixo vale por 30 minutos.</p>")
	b.WriteString(`<p><a href="` + link + `">Redefinir senha</a></p>`)
	b.WriteString("<p>Se nao foi voce, ignore este email.</p>")
	return b.String()
}
