package auth_test

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/lexpraxis/backend-lexis/internal/auth"
	"github.com/lexpraxis/backend-lexis/internal/common"
)

type memStore struct {
	users   map[uuid.UUID]auth.UserRecord
	session map[string]auth.Session
	resets  map[string]auth.PasswordReset
}

func newMemStore() *memStore {
	return &memStore{
		users:   map[uuid.UUID]auth.UserRecord{},
		session: map[string]auth.Session{},
		resets:  map[string]auth.PasswordReset{},
	}
}

func (m *memStore) CreateUser(_ context.Context, name, email, hash string, roles []string) (auth.UserRecord, error) {
	if len(roles) == 0 {
		roles = []string{"staff"}
	}
	rec := auth.UserRecord{ID: uuid.New(), Name: name, Email: email, PasswordHash: hash, Roles: roles, Active: true, CreatedAt: time.Now()}
	m.users[rec.ID] = rec
	return rec, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (auth.UserRecord, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return auth.UserRecord{}, auth.ErrNotFound
}

func (m *memStore) GetUserByID(_ context.Context, id uuid.UUID) (auth.UserRecord, error) {
	u, ok := m.users[id]
	if !ok {
		return auth.UserRecord{}, auth.ErrNotFound
	}
	return u, nil
}

func (m *memStore) ListUsers(context.Context) ([]auth.UserRecord, error) {
	var out []auth.UserRecord
	for _, u := range m.users {
		out = append(out, u)
	}
	return out, nil
}

func (m *memStore) UpdateUserPassword(_ context.Context, id uuid.UUID, hash string) error {
	u, ok := m.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = hash
	m.users[id] = u
	return nil
}

func (m *memStore) UpdateUserRoles(_ context.Context, id uuid.UUID, roles []string) (auth.UserRecord, error) {
	u, ok := m.users[id]
	if !ok {
		return auth.UserRecord{}, auth.ErrNotFound
	}
	u.Roles = roles
	m.users[id] = u
	return u, nil
}

func (m *memStore) UpdateUserActive(_ context.Context, id uuid.UUID, active bool) (auth.UserRecord, error) {
	u, ok := m.users[id]
	if !ok {
		return auth.UserRecord{}, auth.ErrNotFound
	}
	u.Active = active
	m.users[id] = u
	return u, nil
}

func (m *memStore) CreateSession(_ context.Context, s auth.Session) (auth.Session, error) {
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	m.session[s.RefreshToken] = s
	return s, nil
}

func (m *memStore) GetSessionByToken(_ context.Context, hash string) (auth.Session, error) {
	s, ok := m.session[hash]
	if !ok {
		return auth.Session{}, auth.ErrNotFound
	}
	return s, nil
}

func (m *memStore) RotateSessionToken(_ context.Context, id uuid.UUID, hash string, exp time.Time) error {
	for key, s := range m.session {
		if s.ID == id {
			delete(m.session, key)
			s.RefreshToken = hash
			s.ExpiresAt = exp
			m.session[hash] = s
			return nil
		}
	}
	return auth.ErrNotFound
}

func (m *memStore) DeleteSessionByToken(_ context.Context, hash string) error {
	delete(m.session, hash)
	return nil
}

func (m *memStore) DeleteSessionsByUser(_ context.Context, userID uuid.UUID) error {
	for key, s := range m.session {
		if s.UserID == userID {
			delete(m.session, key)
		}
	}
	return nil
}

func (m *memStore) CreatePasswordReset(_ context.Context, userID uuid.UUID, token string, exp time.Time) error {
	m.resets[token] = auth.PasswordReset{ID: uuid.New(), UserID: userID, Token: token, ExpiresAt: exp}
	return nil
}

func (m *memStore) GetPasswordResetByToken(_ context.Context, token string) (auth.PasswordReset, error) {
	r, ok := m.resets[token]
	if !ok {
		return auth.PasswordReset{}, auth.ErrNotFound
	}
	return r, nil
}

func (m *memStore) UsePasswordReset(_ context.Context, token string) error {
	r, ok := m.resets[token]
	if !ok {
		return auth.ErrNotFound
	}
	now := time.Now()
	r.UsedAt = &now
	m.resets[token] = r
	return nil
}

func (m *memStore) DeletePasswordResetsByUser(_ context.Context, userID uuid.UUID) error {
	for key, r := range m.resets {
		if r.UserID == userID {
			delete(m.resets, key)
		}
	}
	return nil
}

func newService(store auth.Store, email common.EmailSender) *auth.Service {
	return &auth.Service{
		Store:      store,
		Email:      email,
		ResetURL:   "https://app.lexpraxis.test",
		Secret:     []byte("test-secret-test-secret-test-sec"),
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 720 * time.Hour,
	}
}

func registerUser(t *testing.T, svc *auth.Service, email string) auth.User {
	t.Helper()
	user, err := svc.Register(context.Background(), auth.RegisterInput{
		Name:     "Ana Souza",
		Email:    email,
		Password: "correct horse",
		Roles:    []string{"advogado"},
	})
	require.NoError(t, err)
	return user
}

func TestLoginIssuesValidAccessToken(t *testing.T) {
	svc := newService(newMemStore(), nil)
	registerUser(t, svc, "ana@lexpraxis.test")

	user, pair, err := svc.Login(context.Background(), auth.LoginInput{
		Email:    "Ana@lexpraxis.test",
		Password: "correct horse",
	}, "go-test", "127.0.0.1")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	id, roles, err := svc.ParseAccessToken(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, id)
	require.Equal(t, []string{"advogado"}, roles)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	svc := newService(newMemStore(), nil)
	registerUser(t, svc, "ana@lexpraxis.test")

	_, _, err := svc.Login(context.Background(), auth.LoginInput{
		Email:    "ana@lexpraxis.test",
		Password: "wrong",
	}, "", "")

	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusUnauthorized, appErr.HTTPStatus)
	require.Equal(t, "INVALID_CREDENTIALS", appErr.Code)
}

func TestDeactivatedUserCannotLogin(t *testing.T) {
	store := newMemStore()
	svc := newService(store, nil)
	user := registerUser(t, svc, "ana@lexpraxis.test")
	require.True(t, user.Active)

	_, pair, err := svc.Login(context.Background(), auth.LoginInput{
		Email:    "ana@lexpraxis.test",
		Password: "correct horse",
	}, "", "")
	require.NoError(t, err)

	disabled, err := svc.SetActive(context.Background(), user.ID, false)
	require.NoError(t, err)
	require.False(t, disabled.Active)

	_, _, err = svc.Login(context.Background(), auth.LoginInput{
		Email:    "ana@lexpraxis.test",
		Password: "correct horse",
	}, "", "")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "USER_DISABLED", appErr.Code)
	require.Equal(t, http.StatusForbidden, appErr.HTTPStatus)

	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	require.Error(t, err, "deactivation revokes existing sessions")

	reactivated, err := svc.SetActive(context.Background(), user.ID, true)
	require.NoError(t, err)
	require.True(t, reactivated.Active)
	_, _, err = svc.Login(context.Background(), auth.LoginInput{
		Email:    "ana@lexpraxis.test",
		Password: "correct horse",
	}, "", "")
	require.NoError(t, err)
}

func TestSetActiveUnknownUser(t *testing.T) {
	svc := newService(newMemStore(), nil)
	_, err := svc.SetActive(context.Background(), uuid.New(), false)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc := newService(newMemStore(), nil)
	registerUser(t, svc, "ana@lexpraxis.test")

	_, err := svc.Register(context.Background(), auth.RegisterInput{
		Name:     "Outro",
		Email:    "ana@lexpraxis.test",
		Password: "another pass",
	})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "EMAIL_TAKEN", appErr.Code)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc := newService(newMemStore(), nil)
	registerUser(t, svc, "ana@lexpraxis.test")

	_, pair, err := svc.Login(context.Background(), auth.LoginInput{
		Email:    "ana@lexpraxis.test",
		Password: "correct horse",
	}, "", "")
	require.NoError(t, err)

	rotated, err := svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	require.Error(t, err, "old refresh token must stop working")

	_, err = svc.Refresh(context.Background(), rotated.RefreshToken)
	require.NoError(t, err)
}

func TestLogoutRevokesSession(t *testing.T) {
	svc := newService(newMemStore(), nil)
	registerUser(t, svc, "ana@lexpraxis.test")

	_, pair, err := svc.Login(context.Background(), auth.LoginInput{
		Email:    "ana@lexpraxis.test",
		Password: "correct horse",
	}, "", "")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), pair.RefreshToken))
	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	require.Error(t, err)
}

func TestForgotAndResetFlow(t *testing.T) {
	store := newMemStore()
	outbox := &common.InMemoryEmail{}
	svc := newService(store, outbox)
	user := registerUser(t, svc, "ana@lexpraxis.test")

	_, pair, err := svc.Login(context.Background(), auth.LoginInput{
		Email:    "ana@lexpraxis.test",
		Password: "correct horse",
	}, "", "")
	require.NoError(t, err)

	require.NoError(t, svc.Forgot(context.Background(), auth.ForgotInput{Email: "ana@lexpraxis.test"}))
	require.Len(t, outbox.Outbox, 1)
	require.Equal(t, []string{"ana@lexpraxis.test"}, outbox.Outbox[0].To)

	token := extractResetToken(t, outbox.Outbox[0].HTMLBody)
	require.NoError(t, svc.Reset(context.Background(), auth.ResetInput{Token: token, Password: "brand new pass"}))

	// Sessions opened before the reset are revoked.
	_, err = svc.Refresh(context.Background(), pair.RefreshToken)
	require.Error(t, err)

	// The token is single use.
	err = svc.Reset(context.Background(), auth.ResetInput{Token: token, Password: "yet another pass"})
	require.Error(t, err)

	_, _, err = svc.Login(context.Background(), auth.LoginInput{
		Email:    user.Email,
		Password: "brand new pass",
	}, "", "")
	require.NoError(t, err)
}

func TestForgotUnknownEmailIsSilent(t *testing.T) {
	outbox := &common.InMemoryEmail{}
	svc := newService(newMemStore(), outbox)

	require.NoError(t, svc.Forgot(context.Background(), auth.ForgotInput{Email: "nobody@lexpraxis.test"}))
	require.Empty(t, outbox.Outbox)
}

func TestParseAccessTokenRejectsTampering(t *testing.T) {
	svc := newService(newMemStore(), nil)
	registerUser(t, svc, "ana@lexpraxis.test")

	_, pair, err := svc.Login(context.Background(), auth.LoginInput{
		Email:    "ana@lexpraxis.test",
		Password: "correct horse",
	}, "", "")
	require.NoError(t, err)

	other := newService(newMemStore(), nil)
	other.Secret = []byte("a-completely-different-secret!!!")
	_, _, err = other.ParseAccessToken(pair.AccessToken)
	require.Error(t, err)

	_, _, err = svc.ParseAccessToken(pair.AccessToken + "x")
	require.Error(t, err)
}

func TestParseAccessTokenRejectsExpired(t *testing.T) {
	svc := newService(newMemStore(), nil)
	registerUser(t, svc, "ana@lexpraxis.test")

	_, pair, err := svc.Login(context.Background(), auth.LoginInput{
		Email:    "ana@lexpraxis.test",
		Password: "correct horse",
	}, "", "")
	require.NoError(t, err)

	svc.Now = func() time.Time { return time.Now().Add(16 * time.Minute) }
	_, _, err = svc.ParseAccessToken(pair.AccessToken)
	require.Error(t, err)
}

func extractResetToken(t *testing.T, body string) string {
	t.Helper()
	const marker = "token="
	i := strings.Index(body, marker)
	require.GreaterOrEqual(t, i, 0)
	rest := body[i+len(marker):]
	end := strings.Index(rest, `"`)
	require.GreaterOrEqual(t, end, 0)
	return rest[:end]
}
