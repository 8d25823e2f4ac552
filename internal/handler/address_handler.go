package handler

import (
	"net/http"
	"strconv"

	"app/internal/config"
	"app/internal/middleware"
	"app/internal/repository"
	"app/internal/usecase"

	"github.com/labstack/echo/v4"
)

type AddressHandler struct {
	uc *usecase.AddressUsecase
}

func NewAddressHandler(uc *usecase.AddressUsecase) *AddressHandler {
	return &AddressHandler{uc: uc}
}

func (h *AddressHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	g := e.Group("/addresses")
	g.Use(middleware.AuthJWT(cfg))
	g.Use(middleware.TokenVersionGuard(userRepo))

	g.GET("", h.List)
	g.POST("", h.Create)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/default", h.SetDefault)
}

func (h *AddressHandler) List(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	list, err := h.uc.List(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, list)
}

func (h *AddressHandler) Create(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req usecase.AddressInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	created, err := h.uc.Create(c.Request().Context(), userID, req)
	if err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, created)
}

func (h *AddressHandler) Update(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	var req usecase.AddressInput
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	updated, uerr := h.uc.Update(c.Request().Context(), userID, id, req)
	if uerr != nil {
		return writeError(c, uerr)
	}

	return c.JSON(http.StatusOK, updated)
}

func (h *AddressHandler) Delete(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	if err := h.uc.Delete(c.Request().Context(), userID, id); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

func (h *AddressHandler) SetDefault(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	if err := h.uc.SetDefault(c.Request().Context(), userID, id); err != nil {
		return writeError(c, err)
	}

	return c.JSON(http.StatusOK, SuccessResponse{Message: "default set"})
}
