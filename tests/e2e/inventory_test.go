package e2e

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

type InventoryUpdateRequest struct {
	Stock  int64  `json:"stock"`
	Reason string `json:"reason"`
}

func putInventory(t *testing.T, c *TestClient, ctx context.Context, access string, productID int64, stock int64, reason string) (*http.Response, []byte) {
	t.Helper()

	req, err := json.Marshal(InventoryUpdateRequest{Stock: stock, Reason: reason})
	if err != nil {
		t.Fatalf("json.Marshal(InventoryUpdateRequest) failed: %v", err)
	}
	return c.doJSON(ctx, t, http.MethodPut, "/admin/inventory/"+toStr(productID), access, req)
}

func TestInventory_UpdateSuccess(t *testing.T) {
	c := NewTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	admin := adminLogin(t, c, ctx)
	productID := createPublicProduct(t, c, ctx, admin, uniqueProductName("restock"), "400.00", 5)

	resp, body := putInventory(t, c, ctx, admin, productID, 12, "restock")
	requireStatus(t, resp, http.StatusOK, body)

	//商品詳細に反映される
	resp, body = c.doJSON(ctx, t, http.MethodGet, "/products/"+toStr(productID), "", nil)
	requireStatus(t, resp, http.StatusOK, body)

	p := mustDecodeProduct(t, body)
	if p.Stock != 12 {
		t.Fatalf("stock=%d want=12", p.Stock)
	}
}

func TestInventory_NegativeStock(t *testing.T) {
	c := NewTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	admin := adminLogin(t, c, ctx)
	productID := createPublicProduct(t, c, ctx, admin, uniqueProductName("negstock"), "400.00", 5)

	resp, body := putInventory(t, c, ctx, admin, productID, -1, "bad")
	requireStatus(t, resp, http.StatusBadRequest, body)
}

func TestInventory_ReasonRequired(t *testing.T) {
	c := NewTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	admin := adminLogin(t, c, ctx)
	productID := createPublicProduct(t, c, ctx, admin, uniqueProductName("noreason"), "400.00", 5)

	resp, body := putInventory(t, c, ctx, admin, productID, 10, "  ")
	requireStatus(t, resp, http.StatusBadRequest, body)
}

func TestInventory_AdminOnly(t *testing.T) {
	c := NewTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	admin := adminLogin(t, c, ctx)
	productID := createPublicProduct(t, c, ctx, admin, uniqueProductName("invguard"), "400.00", 5)

	userClient := NewTestClient(t)
	userAccess, _ := registerAndLogin(t, userClient, ctx, "invguard")

	resp, body := putInventory(t, userClient, ctx, userAccess, productID, 10, "nope")
	requireStatus(t, resp, http.StatusForbidden, body)
}
