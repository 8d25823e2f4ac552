package usecase

import (
	"context"

	"app/internal/domain/model"
	repo "app/internal/repository"
)

// カート明細と、読み取った時点の商品状態のペア。
// 価格・在庫・公開フラグはこのスナップショットで検証・値付けする
type cartSnapshotLine struct {
	Item    model.CartItem
	Product model.Product
}

// loadCartSnapshot はユーザーのACTIVEカートの明細を、商品と結合して返す。
// 読み取り専用。カートが無い/空なら空スライスを返す（エラーにしない）
func loadCartSnapshot(ctx context.Context, r repo.TxRepos, userID int64) (int64, []cartSnapshotLine, error) {
	cart, err := r.Carts().FindActiveByUserID(ctx, userID)
	if err == repo.ErrNotFound {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}

	items, err := r.CartItems().ListByCartID(ctx, cart.ID)
	if err != nil {
		return 0, nil, err
	}

	lines := make([]cartSnapshotLine, 0, len(items))
	for _, it := range items {
		p, err := r.Products().FindByID(ctx, it.ProductID)
		if err == repo.ErrNotFound {
			//削除済み商品は「無効な明細」として残す（Assemblerが弾く）
			lines = append(lines, cartSnapshotLine{Item: it})
			continue
		}
		if err != nil {
			return 0, nil, err
		}
		lines = append(lines, cartSnapshotLine{Item: it, Product: p})
	}

	return cart.ID, lines, nil
}
