package handler

import (
	"errors"
	"net/http"

	"app/internal/usecase"
	"app/internal/validator"

	"github.com/labstack/echo/v4"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse は成功時の { message: string } レスポンス。
type SuccessResponse struct {
	Message string `json:"message"`
}

// 在庫不足レスポンス。どの商品が足りなかったかを返す
type StockConflictResponse struct {
	Error     string `json:"error"`
	ProductID int64  `json:"product_id"`
	Requested int64  `json:"requested"`
	Available int64  `json:"available"`
}

// usecase層のエラーをHTTPレスポンスへ変換する
func writeError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	if he, ok := usecase.AsHTTPError(err); ok {
		return c.JSON(he.Status, ErrorResponse{Error: he.Message})
	}

	//注文確定の業務エラー
	if errors.Is(err, usecase.ErrEmptyCart) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cart is empty"})
	}
	if errors.Is(err, usecase.ErrNoValidItems) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "no valid items in cart"})
	}

	var addrErr *usecase.InvalidShippingAddressError
	if errors.As(err, &addrErr) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "shipping address: " + addrErr.Field + " required"})
	}

	var stockErr *usecase.InsufficientStockError
	if errors.As(err, &stockErr) {
		return c.JSON(http.StatusConflict, StockConflictResponse{
			Error:     "insufficient stock",
			ProductID: stockErr.ProductID,
			Requested: stockErr.Requested,
			Available: stockErr.Available,
		})
	}

	//validatorのエラー
	switch {
	case errors.Is(err, validator.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation error"})
	case errors.Is(err, validator.ErrEmailAlreadyUsed):
		return c.JSON(http.StatusConflict, ErrorResponse{Error: "email already used"})
	case errors.Is(err, validator.ErrInvalidRefresh):
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	//500
	return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
}

//middleware.AuthJWT が c.Set("user_id", int64) した値を取り出す

func getUserIDFromContext(c echo.Context) (int64, bool) {
	v := c.Get("user_id")
	if v == nil {
		return 0, false
	}

	id, ok := v.(int64)
	if !ok {
		return 0, false
	}

	return id, true
}
