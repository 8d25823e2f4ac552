package usecase

import (
	"context"
	"net/http"

	repo "app/internal/repository"

	"github.com/shopspring/decimal"
)

// CartUsecase は /cart の業務ロジック。
// 表示価格は常にその時点の商品価格（カートに価格は保存しない）
type CartUsecase struct {
	cartRepo     repo.CartRepository
	cartItemRepo repo.CartItemRepository
	productRepo  repo.ProductRepository
}

func NewCartUsecase(
	cartRepo repo.CartRepository,
	cartItemRepo repo.CartItemRepository,
	productRepo repo.ProductRepository,
) *CartUsecase {
	return &CartUsecase{
		cartRepo:     cartRepo,
		cartItemRepo: cartItemRepo,
		productRepo:  productRepo,
	}
}

type CartItemResponse struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
}

type CartResponse struct {
	Items []CartItemResponse `json:"items"`
	Total decimal.Decimal    `json:"total"`
}

type AddCartInput struct {
	ProductID int64
	Quantity  int64
}

type UpdateCartItemInput struct {
	Quantity int64
}

// GetCart はカート取得（無ければACTIVEを作って空を返す）。
func (u *CartUsecase) GetCart(ctx context.Context, userID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	cart, err := u.cartRepo.GetOrCreateActiveByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return u.buildCartResponse(ctx, cart.ID)
}

// AddToCart はカートに追加（同一商品は数量加算）。
func (u *CartUsecase) AddToCart(ctx context.Context, userID int64, in AddCartInput) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.ProductID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	if in.Quantity < 1 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}

	// ACTIVEカート取得（無ければ作成）
	cart, err := u.cartRepo.GetOrCreateActiveByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	// 商品チェック（公開のみ）
	p, err := u.productRepo.FindByID(ctx, in.ProductID)
	if err == repo.ErrNotFound {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid")
	}
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !p.IsActive {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid")
	}

	// 既存数量をListByCartIDで調べる
	items, err := u.cartItemRepo.ListByCartID(ctx, cart.ID)
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	var existingQty int64 = 0
	for _, it := range items {
		if it.ProductID == in.ProductID {
			existingQty = it.Quantity
			break
		}
	}

	//在庫を超える数量は入れさせない（目安。確定時にも再チェックされる）
	newQty := existingQty + in.Quantity
	if newQty > p.Stock {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "stock exceeded")
	}

	// Upsert（同一商品は加算）
	if err := u.cartItemRepo.UpsertByCartAndProduct(ctx, cart.ID, in.ProductID, in.Quantity); err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return u.buildCartResponse(ctx, cart.ID)
}

// UpdateCartItem は明細の数量を変更する。
func (u *CartUsecase) UpdateCartItem(ctx context.Context, userID int64, cartItemID int64, in UpdateCartItemInput) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if cartItemID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if in.Quantity < 1 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}

	//所有チェック（他人の明細は404扱い）
	owned, err := u.cartItemRepo.IsOwnedByUser(ctx, cartItemID, userID)
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !owned {
		return CartResponse{}, NewHTTPError(http.StatusNotFound, "not found")
	}

	item, err := u.cartItemRepo.FindByID(ctx, cartItemID)
	if err == repo.ErrNotFound {
		return CartResponse{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	//在庫超過チェック
	p, err := u.productRepo.FindByID(ctx, item.ProductID)
	if err == repo.ErrNotFound {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid")
	}
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if in.Quantity > p.Stock {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "stock exceeded")
	}

	if err := u.cartItemRepo.UpdateQuantity(ctx, cartItemID, in.Quantity); err != nil {
		if err == repo.ErrNotFound {
			return CartResponse{}, NewHTTPError(http.StatusNotFound, "not found")
		}
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return u.buildCartResponse(ctx, item.CartID)
}

// DeleteCartItem は明細を削除する。
func (u *CartUsecase) DeleteCartItem(ctx context.Context, userID int64, cartItemID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if cartItemID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	owned, err := u.cartItemRepo.IsOwnedByUser(ctx, cartItemID, userID)
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !owned {
		return CartResponse{}, NewHTTPError(http.StatusNotFound, "not found")
	}

	item, err := u.cartItemRepo.FindByID(ctx, cartItemID)
	if err == repo.ErrNotFound {
		return CartResponse{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	if err := u.cartItemRepo.DeleteByID(ctx, cartItemID); err != nil {
		if err == repo.ErrNotFound {
			return CartResponse{}, NewHTTPError(http.StatusNotFound, "not found")
		}
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return u.buildCartResponse(ctx, item.CartID)
}

// カートの現在状態をレスポンスに組み立てる。価格はその時点の商品価格
func (u *CartUsecase) buildCartResponse(ctx context.Context, cartID int64) (CartResponse, error) {
	items, err := u.cartItemRepo.ListByCartID(ctx, cartID)
	if err != nil {
		return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	outItems := make([]CartItemResponse, 0, len(items))
	total := decimal.Zero

	for _, it := range items {
		p, err := u.productRepo.FindByID(ctx, it.ProductID)
		if err == repo.ErrNotFound {
			//商品が消えた明細は表示しない
			continue
		}
		if err != nil {
			return CartResponse{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}

		lineTotal := p.Price.Mul(decimal.NewFromInt(it.Quantity))
		total = total.Add(lineTotal)

		outItems = append(outItems, CartItemResponse{
			ID:        it.ID,
			ProductID: it.ProductID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  it.Quantity,
		})
	}

	return CartResponse{Items: outItems, Total: total}, nil
}
