package usecase

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"app/internal/domain/model"
	repo "app/internal/repository"

	"github.com/shopspring/decimal"
)

type ProductUsecase struct {
	productRepo   repo.ProductRepository
	inventoryRepo repo.InventoryRepository
	auditRepo     repo.AuditLogRepository
}

// DI
func NewProductUsecase(
	productRepo repo.ProductRepository,
	inventoryRepo repo.InventoryRepository,
	auditRepo repo.AuditLogRepository,
) *ProductUsecase {
	return &ProductUsecase{
		productRepo:   productRepo,
		inventoryRepo: inventoryRepo,
		auditRepo:     auditRepo,
	}
}

// GET /productsの入力DTO
type ListProductsInput struct {
	Page     int
	Limit    int
	Q        string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	Sort     string
}

type ProductListOutput struct {
	Items []model.Product `json:"items"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

func (u *ProductUsecase) ListPublicProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	if in.Page < 1 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid page")
	}
	if in.Limit < 1 || in.Limit > 100 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid limit")
	}
	if len(in.Q) > 100 {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "q too long")
	}
	if in.MinPrice != nil && in.MinPrice.IsNegative() {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "min_price must be >= 0")
	}
	if in.MaxPrice != nil && in.MaxPrice.IsNegative() {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "max_price must be >= 0")
	}
	if in.MinPrice != nil && in.MaxPrice != nil && in.MinPrice.GreaterThan(*in.MaxPrice) {
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "min_price must be <= max_price")
	}
	switch in.Sort {
	case "", "new", "price_asc", "price_desc":
	default:
		return ProductListOutput{}, NewHTTPError(http.StatusBadRequest, "invalid sort")
	}

	items, total, err := u.productRepo.ListPublic(ctx, repo.ProductListQuery{
		Page:     in.Page,
		Limit:    in.Limit,
		Q:        strings.TrimSpace(in.Q),
		MinPrice: in.MinPrice,
		MaxPrice: in.MaxPrice,
		Sort:     in.Sort,
	})
	if err != nil {
		return ProductListOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return ProductListOutput{
		Items: items,
		Total: total,
		Page:  in.Page,
		Limit: in.Limit,
	}, nil
}

func (u *ProductUsecase) GetProductDetail(ctx context.Context, productID int64) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if err == repo.ErrNotFound {
		return model.Product{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return model.Product{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	//非公開商品は「存在しない扱い」
	if !p.IsActive {
		return model.Product{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	return p, nil
}

type AdminCreateProductInput struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int64
	IsActive    bool
}

func (u *ProductUsecase) AdminCreateProduct(ctx context.Context, adminUserID int64, in AdminCreateProductInput) (int64, error) {
	if adminUserID <= 0 {
		return 0, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if strings.TrimSpace(in.Name) == "" {
		return 0, NewHTTPError(http.StatusBadRequest, "name required")
	}
	if in.Price.IsNegative() {
		return 0, NewHTTPError(http.StatusBadRequest, "price must be >= 0")
	}
	if in.Stock < 0 {
		return 0, NewHTTPError(http.StatusBadRequest, "stock must be >= 0")
	}

	now := time.Now()
	p, err := u.productRepo.Create(ctx, model.Product{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		IsActive:    in.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return 0, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return p.ID, nil
}

func (u *ProductUsecase) AdminUpdateProduct(ctx context.Context, adminUserID int64, productID int64, in AdminCreateProductInput) error {
	if adminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	if strings.TrimSpace(in.Name) == "" {
		return NewHTTPError(http.StatusBadRequest, "name required")
	}
	if in.Price.IsNegative() {
		return NewHTTPError(http.StatusBadRequest, "price must be >= 0")
	}
	if in.Stock < 0 {
		return NewHTTPError(http.StatusBadRequest, "stock must be >= 0")
	}

	err := u.productRepo.Update(ctx, model.Product{
		ID:          productID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Price:       in.Price,
		Stock:       in.Stock,
		IsActive:    in.IsActive,
		UpdatedAt:   time.Now(),
	})
	if err == repo.ErrNotFound {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

func (u *ProductUsecase) AdminDeleteProduct(ctx context.Context, adminUserID int64, productID int64) error {
	if adminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	err := u.productRepo.SoftDelete(ctx, productID)
	if err == repo.ErrNotFound {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

// 在庫を「現在値」に更新して、調整履歴と監査ログを残す
func (u *ProductUsecase) AdminUpdateInventory(ctx context.Context, adminUserID int64, productID int64, newStock int64, reason string) error {
	if adminUserID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	if newStock < 0 {
		return NewHTTPError(http.StatusBadRequest, "stock must be >= 0")
	}
	if strings.TrimSpace(reason) == "" {
		return NewHTTPError(http.StatusBadRequest, "reason required")
	}

	//変更前の在庫（before）
	p, err := u.productRepo.FindByID(ctx, productID)
	if err == repo.ErrNotFound {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if err := u.inventoryRepo.SetStock(ctx, productID, newStock); err != nil {
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	//調整履歴
	if err := u.inventoryRepo.CreateAdjustment(ctx, model.InventoryAdjustment{
		ProductID:   productID,
		AdminUserID: adminUserID,
		Delta:       newStock - p.Stock,
		Reason:      strings.TrimSpace(reason),
	}); err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	//監査ログ（UPDATE_STOCK）
	beforeJSON, _ := json.Marshal(map[string]int64{"stock": p.Stock})
	afterJSON, _ := json.Marshal(map[string]int64{"stock": newStock})
	if err := u.auditRepo.Create(ctx, model.AuditLog{
		ActorUserID:  adminUserID,
		Action:       model.AuditActionUpdateStock,
		ResourceType: model.AuditResourceProduct,
		ResourceID:   productID,
		BeforeJSON:   string(beforeJSON),
		AfterJSON:    string(afterJSON),
		CreatedAt:    time.Now(),
	}); err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return nil
}
