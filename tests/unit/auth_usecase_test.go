package unit

import (
	"app/internal/config"
	"app/internal/domain/model"
	"app/internal/usecase"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"
)

// =====================
// Mocks
// =====================

type AuthUserRepoMock struct{ mock.Mock }

func (m *AuthUserRepoMock) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *AuthUserRepoMock) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *AuthUserRepoMock) FindByID(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *AuthUserRepoMock) Update(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *AuthUserRepoMock) IncrementTokenVersion(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type AuthRefreshRepoMock struct{ mock.Mock }

func (m *AuthRefreshRepoMock) Create(ctx context.Context, token *model.RefreshToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *AuthRefreshRepoMock) FindByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error) {
	args := m.Called(ctx, tokenHash)
	rt, _ := args.Get(0).(*model.RefreshToken)
	return rt, args.Error(1)
}

func (m *AuthRefreshRepoMock) MarkUsed(ctx context.Context, tokenID string) error {
	args := m.Called(ctx, tokenID)
	return args.Error(0)
}

func (m *AuthRefreshRepoMock) Revoke(ctx context.Context, tokenID string) error {
	args := m.Called(ctx, tokenID)
	return args.Error(0)
}

func (m *AuthRefreshRepoMock) DeleteAllByUserID(ctx context.Context, userID int64) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func (m *AuthRefreshRepoMock) DeleteByID(ctx context.Context, tokenID string) error {
	args := m.Called(ctx, tokenID)
	return args.Error(0)
}

// 全部通すvalidator
type passAuthValidator struct{}

func (v *passAuthValidator) ValidateRegister(ctx context.Context, email string, password string) error {
	return nil
}
func (v *passAuthValidator) ValidateLogin(ctx context.Context, email string, password string) error {
	return nil
}
func (v *passAuthValidator) ValidateRefresh(ctx context.Context, refreshToken string, userAgent string) error {
	return nil
}
func (v *passAuthValidator) ValidateForceLogout(ctx context.Context, targetUserID int64) error {
	return nil
}

func testConfig() config.Config {
	return config.Config{JWTSecret: "unit-test-secret"}
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}
	return string(h)
}

// =====================
// Register
// =====================

func TestAuthUsecase_Register_Success(t *testing.T) {
	users := new(AuthUserRepoMock)
	rt := new(AuthRefreshRepoMock)
	uc := usecase.NewAuthUsecase(testConfig(), users, rt, &passAuthValidator{})

	users.On("Create", mock.Anything, mock.MatchedBy(func(u *model.User) bool {
		//平文パスワードが保存されていないこと
		return u.Email == "u@example.com" && u.PasswordHash != "password123" && u.Role == model.RoleUser
	})).Return(nil)

	out, err := uc.Register(context.Background(), usecase.AuthRegisterRequest{
		Email:    "u@example.com",
		Password: "password123",
	})
	assert.NoError(t, err)
	assert.Equal(t, "u@example.com", out.User.Email)

	users.AssertExpectations(t)
}

func TestAuthUsecase_Register_DuplicateEmail(t *testing.T) {
	users := new(AuthUserRepoMock)
	rt := new(AuthRefreshRepoMock)
	uc := usecase.NewAuthUsecase(testConfig(), users, rt, &passAuthValidator{})

	users.On("Create", mock.Anything, mock.Anything).Return(assert.AnError)

	_, err := uc.Register(context.Background(), usecase.AuthRegisterRequest{
		Email:    "dup@example.com",
		Password: "password123",
	})
	assertErrContains(t, err, "conflict")
}

// =====================
// Login
// =====================

func TestAuthUsecase_Login_WrongPassword(t *testing.T) {
	users := new(AuthUserRepoMock)
	rt := new(AuthRefreshRepoMock)
	uc := usecase.NewAuthUsecase(testConfig(), users, rt, &passAuthValidator{})

	users.On("FindByEmail", mock.Anything, "u@example.com").Return(&model.User{
		ID:           1,
		Email:        "u@example.com",
		PasswordHash: mustHash(t, "correct-password"),
		Role:         model.RoleUser,
		IsActive:     true,
	}, nil)

	_, err := uc.Login(context.Background(), usecase.AuthLoginRequest{
		Email:    "u@example.com",
		Password: "wrong-password",
	}, "ua")
	assertErrContains(t, err, "unauthorized")

	//refresh tokenは作られない
	rt.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAuthUsecase_Login_InactiveUser(t *testing.T) {
	users := new(AuthUserRepoMock)
	rt := new(AuthRefreshRepoMock)
	uc := usecase.NewAuthUsecase(testConfig(), users, rt, &passAuthValidator{})

	users.On("FindByEmail", mock.Anything, "u@example.com").Return(&model.User{
		ID:           1,
		PasswordHash: mustHash(t, "password123"),
		IsActive:     false,
	}, nil)

	_, err := uc.Login(context.Background(), usecase.AuthLoginRequest{
		Email:    "u@example.com",
		Password: "password123",
	}, "ua")
	assertErrContains(t, err, "forbidden")
}

func TestAuthUsecase_Login_Success(t *testing.T) {
	users := new(AuthUserRepoMock)
	rt := new(AuthRefreshRepoMock)
	uc := usecase.NewAuthUsecase(testConfig(), users, rt, &passAuthValidator{})

	users.On("FindByEmail", mock.Anything, "u@example.com").Return(&model.User{
		ID:           1,
		Email:        "u@example.com",
		PasswordHash: mustHash(t, "password123"),
		Role:         model.RoleUser,
		TokenVersion: 3,
		IsActive:     true,
	}, nil)
	users.On("Update", mock.Anything, mock.Anything).Return(nil)
	rt.On("Create", mock.Anything, mock.MatchedBy(func(tok *model.RefreshToken) bool {
		//DBに入るのはhashで、平文とは別物
		return tok.UserID == 1 && tok.TokenHash != "" && tok.ExpiresAt.After(time.Now())
	})).Return(nil)

	res, err := uc.Login(context.Background(), usecase.AuthLoginRequest{
		Email:    "u@example.com",
		Password: "password123",
	}, "ua")
	assert.NoError(t, err)
	assert.NotEmpty(t, res.Body.Token.AccessToken)
	assert.Equal(t, 3, res.Body.Token.TokenVersion)
	assert.NotEmpty(t, res.RefreshTokenPlain)

	rt.AssertExpectations(t)
}

// =====================
// Refresh
// =====================

func TestAuthUsecase_Refresh_UsedToken_TriggersGlobalLogout(t *testing.T) {
	users := new(AuthUserRepoMock)
	rt := new(AuthRefreshRepoMock)
	uc := usecase.NewAuthUsecase(testConfig(), users, rt, &passAuthValidator{})

	used := time.Now().Add(-time.Minute)
	rt.On("FindByTokenHash", mock.Anything, mock.Anything).Return(&model.RefreshToken{
		ID:        "t1",
		UserID:    1,
		ExpiresAt: time.Now().Add(time.Hour),
		UsedAt:    &used,
	}, nil)
	//replay検知で全refreshを失効させる
	rt.On("DeleteAllByUserID", mock.Anything, int64(1)).Return(nil)

	_, err := uc.Refresh(context.Background(), "stolen-token", "ua")
	assertErrContains(t, err, "unauthorized")

	rt.AssertExpectations(t)
}

func TestAuthUsecase_Refresh_Expired(t *testing.T) {
	users := new(AuthUserRepoMock)
	rt := new(AuthRefreshRepoMock)
	uc := usecase.NewAuthUsecase(testConfig(), users, rt, &passAuthValidator{})

	rt.On("FindByTokenHash", mock.Anything, mock.Anything).Return(&model.RefreshToken{
		ID:        "t1",
		UserID:    1,
		ExpiresAt: time.Now().Add(-time.Hour),
	}, nil)
	rt.On("DeleteByID", mock.Anything, "t1").Return(nil)

	_, err := uc.Refresh(context.Background(), "old-token", "ua")
	assertErrContains(t, err, "unauthorized")
}

func TestAuthUsecase_Refresh_Success_Rotates(t *testing.T) {
	users := new(AuthUserRepoMock)
	rt := new(AuthRefreshRepoMock)
	uc := usecase.NewAuthUsecase(testConfig(), users, rt, &passAuthValidator{})

	rt.On("FindByTokenHash", mock.Anything, mock.Anything).Return(&model.RefreshToken{
		ID:        "t1",
		UserID:    1,
		UserAgent: "ua",
		ExpiresAt: time.Now().Add(time.Hour),
	}, nil)
	users.On("FindByID", mock.Anything, int64(1)).Return(&model.User{
		ID: 1, Role: model.RoleUser, TokenVersion: 0, IsActive: true,
	}, nil)
	rt.On("MarkUsed", mock.Anything, "t1").Return(nil)
	rt.On("Create", mock.Anything, mock.Anything).Return(nil)

	res, err := uc.Refresh(context.Background(), "valid-token", "ua")
	assert.NoError(t, err)
	assert.NotEmpty(t, res.Body.AccessToken)
	assert.NotEmpty(t, res.RefreshTokenPlain)

	rt.AssertExpectations(t)
}

// =====================
// ForceLogout
// =====================

func TestAuthUsecase_ForceLogout(t *testing.T) {
	users := new(AuthUserRepoMock)
	rt := new(AuthRefreshRepoMock)
	uc := usecase.NewAuthUsecase(testConfig(), users, rt, &passAuthValidator{})

	users.On("FindByID", mock.Anything, int64(5)).Return(&model.User{ID: 5, TokenVersion: 1}, nil)
	users.On("IncrementTokenVersion", mock.Anything, int64(5)).Return(nil)
	rt.On("DeleteAllByUserID", mock.Anything, int64(5)).Return(nil)

	res, err := uc.ForceLogout(context.Background(), 5)
	assert.NoError(t, err)
	assert.Equal(t, int64(5), res.UserID)
	assert.Equal(t, 2, res.NewTokenVersion)

	users.AssertExpectations(t)
	rt.AssertExpectations(t)
}
