package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/unireg-ph/prereg-api/internal/models"
	"github.com/unireg-ph/prereg-api/pkg/config"
	appErrors "github.com/unireg-ph/prereg-api/pkg/errors"
)

type mockAuthUsers struct {
	byLogin map[string]*models.User
}

func (m *mockAuthUsers) FindByLogin(ctx context.Context, login string) (*models.User, error) {
	if user, ok := m.byLogin[login]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	for _, user := range m.byLogin {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, sql.ErrNoRows
}

func newAuthFixture(t *testing.T) (*AuthService, *mockAuthUsers) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	users := &mockAuthUsers{byLogin: map[string]*models.User{
		"registrar1": {
			ID:           "usr-1",
			Username:     "registrar1",
			Email:        "reg@example.com",
			PasswordHash: string(hash),
			Role:         models.RoleRegistrar,
			Approved:     true,
		},
	}}
	cfg := config.JWTConfig{Secret: "test-secret", Issuer: "prereg-api", Expiration: time.Hour}
	return NewAuthService(users, cfg, nil, nil), users
}

func TestLoginIssuesToken(t *testing.T) {
	svc, _ := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Username: "registrar1", Password: "s3cret"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, "usr-1", resp.User.ID)
	assert.Equal(t, models.RoleRegistrar, resp.User.Role)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "usr-1", claims.UserID)
	assert.Equal(t, models.RoleRegistrar, claims.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "registrar1", Password: "nope"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginUnknownUser(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "ghost", Password: "s3cret"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginArchivedAccountLooksLikeBadCredentials(t *testing.T) {
	svc, users := newAuthFixture(t)
	users.byLogin["registrar1"].Archived = true

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "registrar1", Password: "s3cret"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginPendingApproval(t *testing.T) {
	svc, users := newAuthFixture(t)
	users.byLogin["registrar1"].Approved = false

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "registrar1", Password: "s3cret"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenRejectsForeignSignature(t *testing.T) {
	svc, users := newAuthFixture(t)
	other := NewAuthService(users, config.JWTConfig{Secret: "other-secret", Issuer: "prereg-api", Expiration: time.Hour}, nil, nil)

	resp, err := other.Login(context.Background(), models.LoginRequest{Username: "registrar1", Password: "s3cret"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(resp.AccessToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	_, err = svc.ValidateToken("not.a.token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestProfileNotFound(t *testing.T) {
	svc, _ := newAuthFixture(t)

	_, err := svc.Profile(context.Background(), "usr-missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
