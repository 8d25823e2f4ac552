package usecase

import (
	"context"
	"net/http"
	"strings"
	"time"

	"app/internal/domain/model"
	repo "app/internal/repository"

	"github.com/shopspring/decimal"
)

// 一時障害（serialization conflictなど）の再試行回数。
// 毎回カートを読み直すので、在庫が変わっていても正しい結果になる
const maxCheckoutAttempts = 3

type OrderUsecase struct {
	tx repo.TransactionManager
}

func NewOrderUsecase(tx repo.TransactionManager) *OrderUsecase {
	return &OrderUsecase{tx: tx}
}

type PlaceOrderInput struct {
	ShippingAddress ShippingAddressInput
	//決済参照。中身は検証せずそのまま保存する
	PaymentRef string
	//二重送信防止キー（任意）
	IdempotencyKey string
}

type OrderItemOutput struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
}

type OrderOutput struct {
	ID         int64                 `json:"id"`
	UserID     int64                 `json:"user_id"`
	Status     string                `json:"status"`
	TotalPrice decimal.Decimal       `json:"total_price"`
	Shipping   model.ShippingAddress `json:"shipping_address"`
	CreatedAt  time.Time             `json:"created_at"`
	Items      []OrderItemOutput     `json:"items"`
}

// PlaceOrder はカートを注文に確定する。
// スナップショット読み取り→検証・値付け→1トランザクションで適用、の流れで、
// 途中で失敗したら何も残らない（注文・明細・在庫減算・カートクリアは全or無）
func (u *OrderUsecase) PlaceOrder(ctx context.Context, userID int64, in PlaceOrderInput) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	key := strings.TrimSpace(in.IdempotencyKey)
	if len(key) > 255 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid idempotency_key")
	}

	var out OrderOutput
	var err error

	for attempt := 0; attempt < maxCheckoutAttempts; attempt++ {
		out, err = u.placeOrderOnce(ctx, userID, in, key)
		if err == nil {
			return out, nil
		}
		//業務エラーはそのまま返す。再試行するのは一時的なDB障害だけ
		if !isTransientDBError(err) {
			return OrderOutput{}, err
		}
	}

	return OrderOutput{}, NewHTTPError(http.StatusServiceUnavailable, "temporary failure, please retry")
}

// 1回分の確定処理。全部1トランザクションの中で行う
func (u *OrderUsecase) placeOrderOnce(ctx context.Context, userID int64, in PlaceOrderInput, key string) (OrderOutput, error) {
	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		// 同じキーなら既存の注文を返す（二重送信防止）
		if key != "" {
			existing, found, err := r.Orders().FindByIdempotencyKey(ctx, userID, key)
			if err != nil {
				return err
			}
			if found {
				items, err := r.OrderItems().ListByOrderID(ctx, existing.ID)
				if err != nil {
					return err
				}
				out = toOrderOutput(existing, items)
				return nil
			}
		}

		//スナップショット読み取り
		cartID, lines, err := loadCartSnapshot(ctx, r, userID)
		if err != nil {
			return err
		}

		//検証・値付け（純粋な計算）
		now := time.Now()
		ws, err := assembleCheckout(cartID, lines, userID, in.ShippingAddress, in.PaymentRef, now)
		if err != nil {
			return err
		}

		//在庫の本チェック＝条件付き減算。
		//事前チェック後に他の注文が在庫を取っていても、ここで必ず弾ける
		for _, d := range ws.Decrements {
			ok, err := r.Inventory().DecreaseStockIfEnough(ctx, d.ProductID, d.Qty)
			if err != nil {
				return err
			}
			if !ok {
				//残数を読み直してエラーに載せる（ロールバックされるので減算は残らない）
				available := int64(0)
				if p, perr := r.Products().FindByID(ctx, d.ProductID); perr == nil {
					available = p.Stock
				}
				return &InsufficientStockError{
					ProductID: d.ProductID,
					Requested: d.Qty,
					Available: available,
				}
			}
		}

		//注文ヘッダ作成
		order := ws.Order
		if key != "" {
			order.IdempotencyKey = &key
		}
		orderID, err := r.Orders().Create(ctx, order)
		if err != nil {
			//同時に同じキーが入った場合はもう一度検索して同じ結果を返す
			if key != "" {
				ex, found, err2 := r.Orders().FindByIdempotencyKey(ctx, userID, key)
				if err2 == nil && found {
					items, err3 := r.OrderItems().ListByOrderID(ctx, ex.ID)
					if err3 != nil {
						return err3
					}
					out = toOrderOutput(ex, items)
					return nil
				}
			}
			return err
		}

		//注文明細一括作成
		if err := r.OrderItems().CreateBulk(ctx, orderID, ws.Items); err != nil {
			return err
		}

		//カートをCHECKED_OUTにして明細をクリア（再注文防止）
		if err := r.Carts().UpdateStatus(ctx, ws.CartID, model.CartStatusCheckedOut); err != nil {
			return err
		}
		if err := r.Carts().Clear(ctx, ws.CartID); err != nil {
			return err
		}

		created := order
		created.ID = orderID
		out = toOrderOutput(created, ws.Items)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64) ([]OrderOutput, error) {
	if userID <= 0 {
		return []OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	//ページングはまず固定で取る
	var outs []OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, _, err := r.Orders().ListByUserID(ctx, userID, 1, 50)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		outs = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			outs = append(outs, toOrderOutput(o, items))
		}
		return nil
	})

	if err != nil {
		return []OrderOutput{}, err
	}
	return outs, nil
}

func (u *OrderUsecase) GetMyOrderDetail(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if o.UserID != userID {
			//他人の注文は「存在しない扱い」にする
			return NewHTTPError(http.StatusNotFound, "not found")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		out = toOrderOutput(o, items)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID: it.ProductID,
			Name:      it.ProductNameSnapshot,
			Price:     it.UnitPriceSnapshot,
			Quantity:  it.Quantity,
		})
	}

	return OrderOutput{
		ID:         o.ID,
		UserID:     o.UserID,
		Status:     string(o.Status),
		TotalPrice: o.TotalPrice,
		Shipping:   o.Shipping,
		CreatedAt:  o.CreatedAt,
		Items:      outItems,
	}
}
