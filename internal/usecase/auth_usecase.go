package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"time"

	"app/internal/config"
	"app/internal/domain/model"
	repo "app/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// accesstokenの有効期限
const accessTokenTTL = 15 * time.Minute

// refreshtokenの有効期限
const refreshTokenTTL = 30 * 24 * time.Hour

// usecaseがValidatorInterfaceに依存する約束
type AuthValidator interface {
	ValidateRegister(ctx context.Context, email string, password string) error
	ValidateLogin(ctx context.Context, email string, password string) error
	ValidateRefresh(ctx context.Context, refreshToken string, userAgent string) error
	ValidateForceLogout(ctx context.Context, targetUserID int64) error
}

type UserDTO struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	TokenVersion int    `json:"token_version"`
	IsActive     bool   `json:"is_active"`
}

type JwtAccessTokenDTO struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenVersion int    `json:"token_version"`
}

type AuthRegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthRegisterResponse struct {
	User UserDTO `json:"user"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginResponse struct {
	User  UserDTO           `json:"user"`
	Token JwtAccessTokenDTO `json:"token"`
}

type SuccessResponse struct {
	Message string `json:"message"`
}

type ForceLogoutResponse struct {
	UserID          int64 `json:"user_id"`
	NewTokenVersion int   `json:"new_token_version"`
}

type LoginResult struct {
	Body              AuthLoginResponse
	RefreshTokenPlain string
}

type RefreshResult struct {
	Body              JwtAccessTokenDTO
	RefreshTokenPlain string
}

type AuthUsecase struct {
	cfg       config.Config
	users     repo.UserRepository
	rtRepo    repo.RefreshTokenRepository
	validator AuthValidator
}

func NewAuthUsecase(
	cfg config.Config,
	users repo.UserRepository,
	rtRepo repo.RefreshTokenRepository,
	validator AuthValidator,
) *AuthUsecase {
	return &AuthUsecase{
		cfg:       cfg,
		users:     users,
		rtRepo:    rtRepo,
		validator: validator,
	}
}

func (u *AuthUsecase) Register(ctx context.Context, req AuthRegisterRequest) (*AuthRegisterResponse, error) {
	//入力検証（validatorに寄せる）
	if err := u.validator.ValidateRegister(ctx, req.Email, req.Password); err != nil {
		return nil, err
	}

	//パスワードは必ずハッシュ化して保存（平文保存しない）
	pwHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	user := &model.User{
		Email:        req.Email,
		PasswordHash: string(pwHash),
		Role:         model.RoleUser,
		TokenVersion: 0,
		IsActive:     true,
	}

	//保存（email重複はunique制約で弾かれる）
	if err := u.users.Create(ctx, user); err != nil {
		return nil, NewHTTPError(http.StatusConflict, "conflict")
	}

	return &AuthRegisterResponse{
		User: toUserDTO(user),
	}, nil
}

func (u *AuthUsecase) Login(ctx context.Context, req AuthLoginRequest, userAgent string) (*LoginResult, error) {
	if err := u.validator.ValidateLogin(ctx, req.Email, req.Password); err != nil {
		return nil, err
	}

	//ユーザー取得
	user, err := u.users.FindByEmail(ctx, req.Email)
	if err != nil || user == nil {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	//停止ユーザーはログイン不可
	if !user.IsActive {
		return nil, NewHTTPError(http.StatusForbidden, "forbidden")
	}

	//パスワード照合（bcrypt）
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	//last_login更新
	now := time.Now()
	user.LastLoginAt = &now
	_ = u.users.Update(ctx, user)

	//access token発行
	accessToken, expiresIn, err := u.issueAccessToken(user)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	//refresh token発行（DBにはhashだけ保存）
	refreshPlain, refreshHash, err := newRandomTokenAndHash()
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	rt := &model.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: refreshHash,
		UserAgent: userAgent,
		ExpiresAt: time.Now().Add(refreshTokenTTL),
	}

	if err := u.rtRepo.Create(ctx, rt); err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return &LoginResult{
		Body: AuthLoginResponse{
			User: toUserDTO(user),
			Token: JwtAccessTokenDTO{
				AccessToken:  accessToken,
				ExpiresIn:    expiresIn,
				TokenVersion: user.TokenVersion,
			},
		},
		RefreshTokenPlain: refreshPlain,
	}, nil
}

func (u *AuthUsecase) Me(ctx context.Context, userID int64) (*UserDTO, error) {
	if userID <= 0 {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	user, err := u.users.FindByID(ctx, userID)
	if err != nil || user == nil {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	if !user.IsActive {
		return nil, NewHTTPError(http.StatusForbidden, "forbidden")
	}

	dto := toUserDTO(user)
	return &dto, nil
}

func (u *AuthUsecase) Refresh(ctx context.Context, refreshTokenPlain string, userAgent string) (*RefreshResult, error) {
	if err := u.validator.ValidateRefresh(ctx, refreshTokenPlain, userAgent); err != nil {
		return nil, err
	}

	//DB照合はhashで行う
	tokenHash := hashToken(refreshTokenPlain)

	rt, err := u.rtRepo.FindByTokenHash(ctx, tokenHash)
	if err != nil || rt == nil {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	//期限切れ
	if rt.ExpiresAt.Before(time.Now()) {
		_ = u.rtRepo.DeleteByID(ctx, rt.ID)
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	//revoked
	if rt.RevokedAt != nil {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	//used済みが来たらreplay→そのユーザーの全tokenを失効
	if rt.UsedAt != nil {
		_ = u.rtRepo.DeleteAllByUserID(ctx, rt.UserID)
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	//user_agent違いは再認証扱い（全削除）
	if userAgent != "" && rt.UserAgent != "" && userAgent != rt.UserAgent {
		_ = u.rtRepo.DeleteAllByUserID(ctx, rt.UserID)
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	user, err := u.users.FindByID(ctx, rt.UserID)
	if err != nil || user == nil {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if !user.IsActive {
		return nil, NewHTTPError(http.StatusForbidden, "forbidden")
	}

	//旧tokenをusedにする（ローテーション）
	if err := u.rtRepo.MarkUsed(ctx, rt.ID); err != nil {
		_ = u.rtRepo.DeleteAllByUserID(ctx, rt.UserID)
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	//新tokenを作って保存
	newPlain, newHash, err := newRandomTokenAndHash()
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	newRT := &model.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: newHash,
		UserAgent: userAgent,
		ExpiresAt: time.Now().Add(refreshTokenTTL),
	}

	if err := u.rtRepo.Create(ctx, newRT); err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	//access再発行
	accessToken, expiresIn, err := u.issueAccessToken(user)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return &RefreshResult{
		Body: JwtAccessTokenDTO{
			AccessToken:  accessToken,
			ExpiresIn:    expiresIn,
			TokenVersion: user.TokenVersion,
		},
		RefreshTokenPlain: newPlain,
	}, nil
}

func (u *AuthUsecase) Logout(ctx context.Context, refreshTokenPlain string) (*SuccessResponse, error) {
	if refreshTokenPlain == "" {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	tokenHash := hashToken(refreshTokenPlain)

	rt, err := u.rtRepo.FindByTokenHash(ctx, tokenHash)
	if err != nil || rt == nil {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	//refreshを削除（失効）
	if err := u.rtRepo.DeleteByID(ctx, rt.ID); err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	return &SuccessResponse{Message: "logout success"}, nil
}

// token_versionを+1して既発行のaccess tokenを全部無効にする
func (u *AuthUsecase) ForceLogout(ctx context.Context, targetUserID int64) (*ForceLogoutResponse, error) {
	if err := u.validator.ValidateForceLogout(ctx, targetUserID); err != nil {
		return nil, err
	}

	user, err := u.users.FindByID(ctx, targetUserID)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if user == nil {
		return nil, NewHTTPError(http.StatusNotFound, "not found")
	}

	if err := u.users.IncrementTokenVersion(ctx, targetUserID); err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	//refreshも全削除
	_ = u.rtRepo.DeleteAllByUserID(ctx, targetUserID)

	return &ForceLogoutResponse{
		UserID:          targetUserID,
		NewTokenVersion: user.TokenVersion + 1,
	}, nil
}

// HS256でaccess tokenを作る。subはユーザーID、tvはtoken_version
func (u *AuthUsecase) issueAccessToken(user *model.User) (string, int, error) {
	now := time.Now()
	expiresAt := now.Add(accessTokenTTL)

	claims := jwt.MapClaims{
		"sub":  user.ID,
		"role": string(user.Role),
		"tv":   user.TokenVersion,
		"iat":  now.Unix(),
		"exp":  expiresAt.Unix(),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(u.cfg.JWTSecret))
	if err != nil {
		return "", 0, err
	}

	return signed, int(accessTokenTTL.Seconds()), nil
}

func toUserDTO(u *model.User) UserDTO {
	return UserDTO{
		ID:           u.ID,
		Email:        u.Email,
		Role:         string(u.Role),
		TokenVersion: u.TokenVersion,
		IsActive:     u.IsActive,
	}
}

// ランダムトークンの平文とsha256ハッシュを返す
func newRandomTokenAndHash() (string, string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", err
	}
	plain := base64.RawURLEncoding.EncodeToString(buf)
	return plain, hashToken(plain), nil
}

func hashToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
