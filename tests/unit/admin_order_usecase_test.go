package unit

import (
	"app/internal/domain/model"
	repo "app/internal/repository"
	"app/internal/usecase"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// =====================
// Mocks
// =====================

type AdmOrderRepoMock struct{ mock.Mock }

func (m *AdmOrderRepoMock) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *AdmOrderRepoMock) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	panic("not used in AdminOrderUsecase tests")
}

func (m *AdmOrderRepoMock) Create(ctx context.Context, order model.Order) (int64, error) {
	panic("not used in AdminOrderUsecase tests")
}

func (m *AdmOrderRepoMock) UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	args := m.Called(ctx, orderID, status)
	return args.Error(0)
}

func (m *AdmOrderRepoMock) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error) {
	panic("not used in AdminOrderUsecase tests")
}

func (m *AdmOrderRepoMock) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	args := m.Called(ctx, f)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Get(1).(int64), args.Error(2)
}

type AdmOrderItemRepoMock struct{ mock.Mock }

func (m *AdmOrderItemRepoMock) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	panic("not used in AdminOrderUsecase tests")
}

func (m *AdmOrderItemRepoMock) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	args := m.Called(ctx, orderID)
	items, _ := args.Get(0).([]model.OrderItem)
	return items, args.Error(1)
}

type AdmInventoryRepoMock struct{ mock.Mock }

func (m *AdmInventoryRepoMock) SetStock(ctx context.Context, productID int64, newStock int64) error {
	panic("not used in AdminOrderUsecase tests")
}

func (m *AdmInventoryRepoMock) DecreaseStockIfEnough(ctx context.Context, productID int64, qty int64) (bool, error) {
	panic("not used in AdminOrderUsecase tests")
}

func (m *AdmInventoryRepoMock) IncreaseStock(ctx context.Context, productID int64, qty int64) error {
	args := m.Called(ctx, productID, qty)
	return args.Error(0)
}

func (m *AdmInventoryRepoMock) CreateAdjustment(ctx context.Context, adj model.InventoryAdjustment) error {
	panic("not used in AdminOrderUsecase tests")
}

type AdmAuditRepoMock struct{ mock.Mock }

func (m *AdmAuditRepoMock) Create(ctx context.Context, log model.AuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *AdmAuditRepoMock) List(ctx context.Context, filter repo.AuditLogFilter) ([]model.AuditLog, error) {
	panic("not used in AdminOrderUsecase tests")
}

// =====================
// 透過TxManager（モックをそのまま渡す）
// =====================

type stubTxRepos struct {
	orders *AdmOrderRepoMock
	items  *AdmOrderItemRepoMock
	inv    *AdmInventoryRepoMock
	audit  *AdmAuditRepoMock
}

func (s stubTxRepos) Orders() repo.OrderRepository         { return s.orders }
func (s stubTxRepos) OrderItems() repo.OrderItemRepository { return s.items }
func (s stubTxRepos) Inventory() repo.InventoryRepository  { return s.inv }
func (s stubTxRepos) AuditLogs() repo.AuditLogRepository   { return s.audit }
func (s stubTxRepos) Carts() repo.CartRepository           { panic("not used") }
func (s stubTxRepos) CartItems() repo.CartItemRepository   { panic("not used") }
func (s stubTxRepos) Products() repo.ProductRepository     { panic("not used") }

type passTxManager struct {
	r stubTxRepos
}

func (m *passTxManager) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return fn(m.r)
}

func newAdminOrderFixture() (*usecase.AdminOrderUsecase, *AdmOrderRepoMock, *AdmOrderItemRepoMock, *AdmInventoryRepoMock, *AdmAuditRepoMock) {
	orders := new(AdmOrderRepoMock)
	items := new(AdmOrderItemRepoMock)
	inv := new(AdmInventoryRepoMock)
	audit := new(AdmAuditRepoMock)

	tx := &passTxManager{r: stubTxRepos{orders: orders, items: items, inv: inv, audit: audit}}
	uc := usecase.NewAdminOrderUsecase(tx)
	return uc, orders, items, inv, audit
}

// errに文字列が含まれることを確認する
func assertErrContains(t *testing.T, err error, wantSubstr string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", wantSubstr)
	}
	if !strings.Contains(err.Error(), wantSubstr) {
		t.Fatalf("expected error containing %q, got %q", wantSubstr, err.Error())
	}
}

// =====================
// tests
// =====================

func TestAdminOrderUsecase_UpdateStatus_InvalidStatus(t *testing.T) {
	uc, _, _, _, _ := newAdminOrderFixture()

	err := uc.UpdateStatus(context.Background(), 1, 10, usecase.AdminUpdateOrderStatusInput{Status: "UNKNOWN"})
	assertErrContains(t, err, "invalid status")
}

func TestAdminOrderUsecase_UpdateStatus_NotFound(t *testing.T) {
	uc, orders, _, _, _ := newAdminOrderFixture()

	orders.On("FindByID", mock.Anything, int64(10)).Return(model.Order{}, repo.ErrNotFound)

	err := uc.UpdateStatus(context.Background(), 1, 10, usecase.AdminUpdateOrderStatusInput{Status: "PAID"})
	assertErrContains(t, err, "not found")
}

func TestAdminOrderUsecase_UpdateStatus_SameStatusIsNoop(t *testing.T) {
	uc, orders, _, _, _ := newAdminOrderFixture()

	orders.On("FindByID", mock.Anything, int64(10)).Return(model.Order{ID: 10, Status: model.OrderStatusPaid}, nil)

	err := uc.UpdateStatus(context.Background(), 1, 10, usecase.AdminUpdateOrderStatusInput{Status: "PAID"})
	assert.NoError(t, err)

	orders.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestAdminOrderUsecase_UpdateStatus_CanceledIsTerminal(t *testing.T) {
	uc, orders, _, _, _ := newAdminOrderFixture()

	orders.On("FindByID", mock.Anything, int64(10)).Return(model.Order{ID: 10, Status: model.OrderStatusCanceled}, nil)

	err := uc.UpdateStatus(context.Background(), 1, 10, usecase.AdminUpdateOrderStatusInput{Status: "PAID"})
	assertErrContains(t, err, "cannot change canceled order")
}

func TestAdminOrderUsecase_UpdateStatus_ShippedIsTerminal(t *testing.T) {
	uc, orders, _, _, _ := newAdminOrderFixture()

	orders.On("FindByID", mock.Anything, int64(10)).Return(model.Order{ID: 10, Status: model.OrderStatusShipped}, nil)

	err := uc.UpdateStatus(context.Background(), 1, 10, usecase.AdminUpdateOrderStatusInput{Status: "CANCELED"})
	assertErrContains(t, err, "cannot change shipped order")
}

func TestAdminOrderUsecase_UpdateStatus_PaidSuccess_WithAudit(t *testing.T) {
	uc, orders, _, _, audit := newAdminOrderFixture()

	orders.On("FindByID", mock.Anything, int64(10)).Return(model.Order{ID: 10, Status: model.OrderStatusPending}, nil)
	orders.On("UpdateStatus", mock.Anything, int64(10), model.OrderStatusPaid).Return(nil)
	audit.On("Create", mock.Anything, mock.MatchedBy(func(l model.AuditLog) bool {
		return l.Action == model.AuditActionUpdateOrderStatus && l.ResourceID == 10 && l.ActorUserID == 99
	})).Return(nil)

	err := uc.UpdateStatus(context.Background(), 99, 10, usecase.AdminUpdateOrderStatusInput{Status: "PAID"})
	assert.NoError(t, err)

	orders.AssertExpectations(t)
	audit.AssertExpectations(t)
}

// 監査ログはステータス更新と同じトランザクション。書けなければ全体が失敗する
func TestAdminOrderUsecase_UpdateStatus_AuditFailureFailsTx(t *testing.T) {
	uc, orders, _, _, audit := newAdminOrderFixture()

	orders.On("FindByID", mock.Anything, int64(10)).Return(model.Order{ID: 10, Status: model.OrderStatusPending}, nil)
	orders.On("UpdateStatus", mock.Anything, int64(10), model.OrderStatusPaid).Return(nil)
	audit.On("Create", mock.Anything, mock.Anything).Return(errors.New("insert audit_logs failed"))

	err := uc.UpdateStatus(context.Background(), 99, 10, usecase.AdminUpdateOrderStatusInput{Status: "PAID"})
	assertErrContains(t, err, "db error")
}

// CANCELEDにしたら明細の数量ぶん在庫を戻す
func TestAdminOrderUsecase_UpdateStatus_CancelRestoresStock(t *testing.T) {
	uc, orders, items, inv, audit := newAdminOrderFixture()

	orders.On("FindByID", mock.Anything, int64(10)).Return(model.Order{ID: 10, Status: model.OrderStatusPaid}, nil)
	items.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.OrderItem{
		{OrderID: 10, ProductID: 1, Quantity: 2},
		{OrderID: 10, ProductID: 2, Quantity: 1},
	}, nil)
	inv.On("IncreaseStock", mock.Anything, int64(1), int64(2)).Return(nil)
	inv.On("IncreaseStock", mock.Anything, int64(2), int64(1)).Return(nil)
	orders.On("UpdateStatus", mock.Anything, int64(10), model.OrderStatusCanceled).Return(nil)
	audit.On("Create", mock.Anything, mock.Anything).Return(nil)

	err := uc.UpdateStatus(context.Background(), 99, 10, usecase.AdminUpdateOrderStatusInput{Status: "CANCELED"})
	assert.NoError(t, err)

	inv.AssertExpectations(t)
	orders.AssertExpectations(t)
}

func TestAdminOrderUsecase_List_InvalidPage(t *testing.T) {
	uc, _, _, _, _ := newAdminOrderFixture()

	_, err := uc.List(context.Background(), repo.AdminOrderListFilter{Page: 0, Limit: 20})
	assertErrContains(t, err, "invalid page")
}

func TestAdminOrderUsecase_List_Success(t *testing.T) {
	uc, orders, items, _, _ := newAdminOrderFixture()

	f := repo.AdminOrderListFilter{Page: 1, Limit: 20}
	orders.On("ListAdmin", mock.Anything, f).Return([]model.Order{{ID: 1, UserID: 5}}, int64(1), nil)
	items.On("ListByOrderID", mock.Anything, int64(1)).Return([]model.OrderItem{}, nil)

	out, err := uc.List(context.Background(), f)
	assert.NoError(t, err)
	assert.Len(t, out, 1)

	orders.AssertExpectations(t)
}
