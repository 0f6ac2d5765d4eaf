package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/smiict/course-api/internal/models"
	"github.com/smiict/course-api/internal/notify"
	appErrors "github.com/smiict/course-api/pkg/errors"
)

type mockAuthRepo struct {
	usersByEmail map[string]*models.User
	usersByID    map[string]*models.User
	usersByReset map[string]*models.User

	refreshTokens  map[string]*models.RefreshToken
	created        *models.User
	revokedAll     []string
	revokedTokens  []string
	passwordUpdate map[string]string
	resetTokenSet  string
	resetCleared   bool
	auditLogs      []*models.AuditLog
}

func newMockAuthRepo() *mockAuthRepo {
	return &mockAuthRepo{
		usersByEmail:   make(map[string]*models.User),
		usersByID:      make(map[string]*models.User),
		usersByReset:   make(map[string]*models.User),
		refreshTokens:  make(map[string]*models.RefreshToken),
		passwordUpdate: make(map[string]string),
	}
}

func (m *mockAuthRepo) addUser(u *models.User) {
	m.usersByEmail[u.Email] = u
	m.usersByID[u.ID] = u
}

func (m *mockAuthRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if u, ok := m.usersByEmail[email]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	if u, ok := m.usersByID[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) FindByResetToken(_ context.Context, token string) (*models.User, error) {
	if u, ok := m.usersByReset[token]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) Create(_ context.Context, user *models.User) error {
	user.ID = "user-new"
	m.created = user
	m.addUser(user)
	return nil
}

func (m *mockAuthRepo) UpdateLastLogin(_ context.Context, _ string, _ time.Time) error { return nil }

func (m *mockAuthRepo) UpdatePassword(_ context.Context, id, hash string, _ time.Time) error {
	m.passwordUpdate[id] = hash
	return nil
}

func (m *mockAuthRepo) SetResetToken(_ context.Context, id, token string, expires time.Time) error {
	m.resetTokenSet = token
	u := m.usersByID[id]
	u.ResetToken = &token
	u.ResetTokenExpires = &expires
	m.usersByReset[token] = u
	return nil
}

func (m *mockAuthRepo) ClearResetToken(_ context.Context, _ string) error {
	m.resetCleared = true
	return nil
}

func (m *mockAuthRepo) RevokeUserRefreshTokens(_ context.Context, userID string) error {
	m.revokedAll = append(m.revokedAll, userID)
	return nil
}

func (m *mockAuthRepo) CreateRefreshToken(_ context.Context, token *models.RefreshToken) error {
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthRepo) FindRefreshToken(_ context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := m.refreshTokens[token]; ok {
		return t, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthRepo) RevokeRefreshToken(_ context.Context, id string, _ time.Time) error {
	m.revokedTokens = append(m.revokedTokens, id)
	for _, t := range m.refreshTokens {
		if t.ID == id {
			t.Revoked = true
		}
	}
	return nil
}

func (m *mockAuthRepo) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

type mockResetNotifier struct {
	resets []notify.PasswordReset
}

func (m *mockResetNotifier) SendPasswordReset(n notify.PasswordReset) {
	m.resets = append(m.resets, n)
}

func testAuthConfig() AuthConfig {
	return AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "course-api-test",
	}
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func activeStudent(t *testing.T) *models.User {
	return &models.User{
		ID:            "user-1",
		Email:         "ada@example.com",
		PasswordHash:  hashOf(t, "secret123"),
		FullName:      "Ada Obi",
		Role:          models.RoleStudent,
		AdminApproved: true,
		Active:        true,
	}
}

func TestAuthLogin(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(activeStudent(t))
	svc := NewAuthService(repo, nil, nil, nil, testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "secret123"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.Equal(t, "user-1", resp.User.ID)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, models.RoleStudent, claims.Role)
}

func TestAuthLoginWrongPassword(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(activeStudent(t))
	svc := NewAuthService(repo, nil, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "wrong"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthLoginInactiveAccount(t *testing.T) {
	repo := newMockAuthRepo()
	user := activeStudent(t)
	user.Active = false
	repo.addUser(user)
	svc := NewAuthService(repo, nil, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "secret123"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthLoginUnapprovedAdmin(t *testing.T) {
	repo := newMockAuthRepo()
	user := activeStudent(t)
	user.Role = models.RoleAdmin
	user.AdminApproved = false
	repo.addUser(user)
	svc := NewAuthService(repo, nil, nil, nil, testAuthConfig())

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "secret123"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrPendingApproval.Code, appErrors.FromError(err).Code)
}

func TestAuthRegisterAdminNeedsApproval(t *testing.T) {
	repo := newMockAuthRepo()
	svc := NewAuthService(repo, nil, nil, nil, testAuthConfig())

	info, err := svc.Register(context.Background(), models.RegisterRequest{
		FullName: "New Admin",
		Email:    "Admin@Example.com",
		Password: "secret123",
		Role:     "ADMIN",
	})
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, info.Role)
	require.False(t, repo.created.AdminApproved)
	require.Equal(t, "admin@example.com", repo.created.Email)
}

func TestAuthRegisterDuplicateEmail(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(activeStudent(t))
	svc := NewAuthService(repo, nil, nil, nil, testAuthConfig())

	_, err := svc.Register(context.Background(), models.RegisterRequest{
		FullName: "Duplicate",
		Email:    "ada@example.com",
		Password: "secret123",
	})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestAuthRefreshTokenRotation(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(activeStudent(t))
	svc := NewAuthService(repo, nil, nil, nil, testAuthConfig())

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ada@example.com", Password: "secret123"})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: resp.RefreshToken})
	require.NoError(t, err)
	require.NotEqual(t, resp.RefreshToken, refreshed.RefreshToken)

	// The used token is revoked and cannot be replayed.
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: resp.RefreshToken})
	require.Error(t, err)
}

func TestAuthForgotPasswordUnknownEmailIsSilent(t *testing.T) {
	repo := newMockAuthRepo()
	notifier := &mockResetNotifier{}
	svc := NewAuthService(repo, notifier, nil, nil, testAuthConfig())

	err := svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "nobody@example.com"})
	require.NoError(t, err)
	require.Empty(t, notifier.resets)
}

func TestAuthResetPasswordFlow(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(activeStudent(t))
	notifier := &mockResetNotifier{}
	svc := NewAuthService(repo, notifier, nil, nil, testAuthConfig())

	require.NoError(t, svc.ForgotPassword(context.Background(), models.ForgotPasswordRequest{Email: "ada@example.com"}))
	require.Len(t, notifier.resets, 1)
	token := notifier.resets[0].Token
	require.NotEmpty(t, token)

	err := svc.ResetPassword(context.Background(), models.ResetPasswordRequest{Token: token, NewPassword: "newsecret1"})
	require.NoError(t, err)
	require.True(t, repo.resetCleared)
	require.NotEmpty(t, repo.passwordUpdate["user-1"])
	require.Contains(t, repo.revokedAll, "user-1")
}

func TestAuthResetPasswordExpiredToken(t *testing.T) {
	repo := newMockAuthRepo()
	user := activeStudent(t)
	token := "stale-token"
	expired := time.Now().UTC().Add(-time.Hour)
	user.ResetToken = &token
	user.ResetTokenExpires = &expired
	repo.addUser(user)
	repo.usersByReset[token] = user
	svc := NewAuthService(repo, nil, nil, nil, testAuthConfig())

	err := svc.ResetPassword(context.Background(), models.ResetPasswordRequest{Token: token, NewPassword: "newsecret1"})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthChangePasswordRevokesSessions(t *testing.T) {
	repo := newMockAuthRepo()
	repo.addUser(activeStudent(t))
	svc := NewAuthService(repo, nil, nil, nil, testAuthConfig())

	err := svc.ChangePassword(context.Background(), "user-1", models.ChangePasswordRequest{
		OldPassword: "secret123",
		NewPassword: "newsecret1",
	})
	require.NoError(t, err)
	require.Contains(t, repo.revokedAll, "user-1")
}
