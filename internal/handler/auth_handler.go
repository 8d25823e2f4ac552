package handler

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"os"
	"time"

	"app/internal/config"
	"app/internal/middleware"
	"app/internal/repository"
	"app/internal/usecase"

	"github.com/labstack/echo/v4"
)

const (
	refreshCookieName = "refresh"
	csrfCookieName    = "csrf_token"
)

type AuthHandler struct {
	cfg          config.Config
	uc           *usecase.AuthUsecase
	userRepo     repository.UserRepository
	refreshTTL   time.Duration // refresh/csrf cookie の有効期限
	cookieSecure bool
}

// DIコンストラクタ
func NewAuthHandler(
	cfg config.Config,
	uc *usecase.AuthUsecase,
	userRepo repository.UserRepository,
	refreshTTL time.Duration,
) *AuthHandler {
	return &AuthHandler{
		cfg:          cfg,
		uc:           uc,
		userRepo:     userRepo,
		refreshTTL:   refreshTTL,
		cookieSecure: envBool("COOKIE_SECURE", true),
	}
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True":
		return true
	case "0", "false", "FALSE", "False":
		return false
	default:
		return def
	}
}

func (h *AuthHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/auth")

	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	g.POST("/refresh", h.Refresh)
	g.POST("/logout", h.Logout)

	//meだけJWT必須
	me := e.Group("/auth", middleware.AuthJWT(h.cfg), middleware.TokenVersionGuard(h.userRepo))
	me.GET("/me", h.Me)
}

// RegisterはPOST /auth/registerのハンドラ
func (h *AuthHandler) Register(c echo.Context) error {
	var req usecase.AuthRegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.Register(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

// LoginはPOST /auth/login のハンドラ。
func (h *AuthHandler) Login(c echo.Context) error {
	var req usecase.AuthLoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	// User-Agentを取得（refreshtokenに紐付ける）
	userAgent := c.Request().Header.Get("User-Agent")

	res, err := h.uc.Login(c.Request().Context(), req, userAgent)
	if err != nil {
		return writeError(c, err)
	}

	// refresh cookie
	h.setRefreshCookie(c, res.RefreshTokenPlain)

	//csrf cookie
	csrfToken, genErr := generateSecureToken(32)
	if genErr != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
	h.setCsrfCookie(c, csrfToken)

	//JSONレスポンス（user + token）
	return c.JSON(http.StatusOK, res.Body)
}

// MeはGET /auth/me のハンドラ。
func (h *AuthHandler) Me(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.uc.Me(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, out)
}

// RefreshはPOST /auth/refresh のハンドラ。
// refresh tokenはCookieで受け取り、ローテーションして新しいCookieを返す
func (h *AuthHandler) Refresh(c echo.Context) error {
	cookie, err := c.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	userAgent := c.Request().Header.Get("User-Agent")

	res, uerr := h.uc.Refresh(c.Request().Context(), cookie.Value, userAgent)
	if uerr != nil {
		//失効したrefresh cookieは消す
		h.clearAuthCookies(c)
		return writeError(c, uerr)
	}

	h.setRefreshCookie(c, res.RefreshTokenPlain)

	csrfToken, genErr := generateSecureToken(32)
	if genErr != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
	h.setCsrfCookie(c, csrfToken)

	return c.JSON(http.StatusOK, res.Body)
}

// LogoutはPOST /auth/logout のハンドラ。
func (h *AuthHandler) Logout(c echo.Context) error {
	cookie, err := c.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, uerr := h.uc.Logout(c.Request().Context(), cookie.Value)
	if uerr != nil {
		return writeError(c, uerr)
	}

	h.clearAuthCookies(c)

	return c.JSON(http.StatusOK, out)
}

// refreshtoken をCookieにセット。
func (h *AuthHandler) setRefreshCookie(c echo.Context, plainRefresh string) {
	exp := time.Now().Add(h.refreshTTL)

	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    plainRefresh,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  exp,
	})
}

// csrftokenをCookieにセット
func (h *AuthHandler) setCsrfCookie(c echo.Context, csrfToken string) {
	exp := time.Now().Add(h.refreshTTL)

	c.SetCookie(&http.Cookie{
		Name:     csrfCookieName,
		Value:    csrfToken,
		Path:     "/",
		HttpOnly: false,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  exp,
	})
}

// ランダム文字列を作る。
func generateSecureToken(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		bytesLen = 32
	}

	b := make([]byte, bytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

func (h *AuthHandler) clearAuthCookies(c echo.Context) {
	past := time.Now().Add(-time.Hour)
	c.SetCookie(&http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  past,
	})
	c.SetCookie(&http.Cookie{
		Name:     csrfCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: false,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
		Expires:  past,
	})
}
