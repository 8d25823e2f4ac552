package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"
)

// 価格はnumericなのでJSONでは文字列で返る
type Product struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Stock       int64  `json:"stock"`
	IsActive    bool   `json:"is_active"`
}

type ProductListResponse struct {
	Items []Product `json:"items"`
	Total int64     `json:"total"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
}

type ProductCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
	Stock       int64  `json:"stock"`
	IsActive    bool   `json:"is_active"`
}

func mustDecodeProductList(t *testing.T, body []byte) ProductListResponse {
	t.Helper()
	var v ProductListResponse
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("json.Unmarshal(ProductListResponse) failed: %v body=%s", err, string(body))
	}
	return v
}

func mustDecodeProduct(t *testing.T, body []byte) Product {
	t.Helper()
	var v Product
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("json.Unmarshal(Product) failed: %v body=%s", err, string(body))
	}
	return v
}

// 公開商品を作成してIDを返す（adminで作り、公開一覧から拾う）
func createPublicProduct(t *testing.T, c *TestClient, ctx context.Context, access string, name string, price string, stock int64) int64 {
	t.Helper()

	create := ProductCreateRequest{
		Name:        name,
		Description: "e2e test product",
		Price:       price,
		Stock:       stock,
		IsActive:    true,
	}
	createJSON, err := json.Marshal(create)
	if err != nil {
		t.Fatalf("json.Marshal(ProductCreateRequest) failed: %v", err)
	}

	resp, body := c.doJSON(ctx, t, http.MethodPost, "/admin/products", access, createJSON)
	requireStatus(t, resp, http.StatusOK, body)
	_ = mustDecodeSuccess(t, body)

	resp, body = c.doJSON(ctx, t, http.MethodGet, "/products?page=1&limit=20&q="+name+"&sort=new", "", nil)
	requireStatus(t, resp, http.StatusOK, body)

	list := mustDecodeProductList(t, body)
	if len(list.Items) == 0 {
		t.Fatalf("created product not found in list: body=%s", string(body))
	}

	return list.Items[0].ID
}

func uniqueProductName(prefix string) string {
	return fmt.Sprintf("%s%d", prefix, time.Now().UnixNano())
}

func TestProducts_CreateAndList(t *testing.T) {
	c := NewTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	admin := adminLogin(t, c, ctx)

	name := uniqueProductName("listable")
	id := createPublicProduct(t, c, ctx, admin, name, "1280.00", 5)

	//詳細も取れる
	resp, body := c.doJSON(ctx, t, http.MethodGet, "/products/"+toStr(id), "", nil)
	requireStatus(t, resp, http.StatusOK, body)

	p := mustDecodeProduct(t, body)
	if p.Name != name {
		t.Fatalf("name=%q want=%q", p.Name, name)
	}
	if p.Price != "1280" && p.Price != "1280.00" {
		t.Fatalf("price=%q want 1280.00", p.Price)
	}
}

func TestProducts_InactiveIsHidden(t *testing.T) {
	c := NewTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	admin := adminLogin(t, c, ctx)

	name := uniqueProductName("hidden")
	create := ProductCreateRequest{
		Name:     name,
		Price:    "500.00",
		Stock:    5,
		IsActive: false,
	}
	createJSON, err := json.Marshal(create)
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}

	resp, body := c.doJSON(ctx, t, http.MethodPost, "/admin/products", admin, createJSON)
	requireStatus(t, resp, http.StatusOK, body)

	//公開一覧には出ない
	resp, body = c.doJSON(ctx, t, http.MethodGet, "/products?page=1&limit=20&q="+name, "", nil)
	requireStatus(t, resp, http.StatusOK, body)

	list := mustDecodeProductList(t, body)
	if len(list.Items) != 0 {
		t.Fatalf("inactive product should be hidden: body=%s", string(body))
	}
}

func TestProducts_InvalidQuery(t *testing.T) {
	c := NewTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, body := c.doJSON(ctx, t, http.MethodGet, "/products?page=0&limit=20", "", nil)
	requireStatus(t, resp, http.StatusBadRequest, body)

	resp, body = c.doJSON(ctx, t, http.MethodGet, "/products?page=1&limit=20&min_price=abc", "", nil)
	requireStatus(t, resp, http.StatusBadRequest, body)

	resp, body = c.doJSON(ctx, t, http.MethodGet, "/products?page=1&limit=20&min_price=100&max_price=50", "", nil)
	requireStatus(t, resp, http.StatusBadRequest, body)
}

func TestProducts_AdminOnlyCreate(t *testing.T) {
	c := NewTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	userAccess, _ := registerAndLogin(t, c, ctx, "notadmin")

	createJSON, err := json.Marshal(ProductCreateRequest{Name: "x", Price: "1.00", Stock: 1, IsActive: true})
	if err != nil {
		t.Fatalf("json.Marshal failed: %v", err)
	}

	resp, body := c.doJSON(ctx, t, http.MethodPost, "/admin/products", userAccess, createJSON)
	requireStatus(t, resp, http.StatusForbidden, body)
}
