package server

import (
	"net/http"

	"app/internal/config"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// New はechoインスタンスを作って共通ミドルウェアを入れる。
func New(cfg config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	//CORSはフロントのオリジンだけ許可（cookieを使うのでcredentialsあり）
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{cfg.FEURL},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, "X-Idempotency-Key", "X-CSRF-Token"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return e
}

// Start はサーバーを起動する。
func Start(e *echo.Echo, port string) error {
	addr := port
	if addr == "" {
		addr = "8080"
	}
	if addr[0] != ':' {
		addr = ":" + addr
	}
	return e.Start(addr)
}
