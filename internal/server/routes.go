package server

import (
	"app/internal/config"
	"app/internal/handler"
	"app/internal/repository"

	"github.com/labstack/echo/v4"
)

// Handlers はルート登録に必要なハンドラ一式。
type Handlers struct {
	Auth         *handler.AuthHandler
	Product      *handler.ProductHandler
	Cart         *handler.CartHandler
	Order        *handler.OrderHandler
	Address      *handler.AddressHandler
	AdminProduct *handler.AdminProductHandler
	AdminOrder   *handler.AdminOrderHandler
	AdminUser    *handler.AdminUserHandler
}

// RegisterRoutes は全ルートを登録する。
func RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository, h Handlers) {
	h.Auth.RegisterRoutes(e)
	h.Product.RegisterRoutes(e)
	h.Cart.RegisterRoutes(e, cfg, userRepo)
	h.Order.RegisterRoutes(e, cfg, userRepo)
	h.Address.RegisterRoutes(e, cfg, userRepo)
	h.AdminProduct.RegisterRoutes(e, cfg, userRepo)
	h.AdminOrder.RegisterRoutes(e, cfg, userRepo)
	h.AdminUser.RegisterRoutes(e)
}
