package orders

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agrawalpuran/uds-refresh-sub018/internal/platform/httpx"
	"github.com/agrawalpuran/uds-refresh-sub018/internal/workflow"
)

type memoryOrderRepo struct {
	orders    map[string]Order
	suborders map[string]Suborder
	vendors   map[string]string
	nextID    int
}

type memoryOrderTx struct {
	repo *memoryOrderRepo
}

func newMemoryOrderRepo() *memoryOrderRepo {
	return &memoryOrderRepo{
		orders:    make(map[string]Order),
		suborders: make(map[string]Suborder),
		vendors:   make(map[string]string),
	}
}

func (r *memoryOrderRepo) id(prefix string) string {
	r.nextID++
	return fmt.Sprintf("%s-%d", prefix, r.nextID)
}

func (r *memoryOrderRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryOrderTx{repo: r})
}

func (r *memoryOrderRepo) GetOrder(ctx context.Context, id string) (Order, error) {
	o, ok := r.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("orders: order %s: %w", id, httpx.ErrNotFound)
	}
	return o, nil
}

func (r *memoryOrderRepo) ListOrders(ctx context.Context, limit, offset int, filters ListFilters) ([]Order, int, error) {
	items := make([]Order, 0, len(r.orders))
	for _, o := range r.orders {
		items = append(items, o)
	}
	return items, len(items), nil
}

func (r *memoryOrderRepo) GetSuborder(ctx context.Context, id string) (Suborder, error) {
	s, ok := r.suborders[id]
	if !ok {
		return Suborder{}, fmt.Errorf("orders: suborder %s: %w", id, httpx.ErrNotFound)
	}
	return s, nil
}

func (r *memoryOrderRepo) ListSubordersByOrder(ctx context.Context, orderID string) ([]Suborder, error) {
	var items []Suborder
	for _, s := range r.suborders {
		if s.OrderID == orderID {
			items = append(items, s)
		}
	}
	return items, nil
}

func (r *memoryOrderRepo) ResolveVendors(ctx context.Context, productIDs []string) (map[string]string, error) {
	result := make(map[string]string)
	for _, id := range productIDs {
		if v, ok := r.vendors[id]; ok {
			result[id] = v
		}
	}
	return result, nil
}

func (tx *memoryOrderTx) CreateOrder(ctx context.Context, order Order) (string, error) {
	id := tx.repo.id("ord")
	order.ID = id
	for i := range order.Items {
		order.Items[i].ID = tx.repo.id("item")
		order.Items[i].OrderID = id
	}
	tx.repo.orders[id] = order
	return id, nil
}

func (tx *memoryOrderTx) CreateSuborder(ctx context.Context, sub Suborder) (string, error) {
	for _, existing := range tx.repo.suborders {
		if existing.OrderID == sub.OrderID && existing.VendorID == sub.VendorID {
			return "", fmt.Errorf("orders: suborder exists: %w", httpx.ErrDuplicate)
		}
	}
	id := tx.repo.id("sub")
	sub.ID = id
	tx.repo.suborders[id] = sub
	return id, nil
}

func (tx *memoryOrderTx) UpdateOrderWorkflowStatus(ctx context.Context, orderID, expectedUnified string, legacy, unified map[string]any) error {
	o, ok := tx.repo.orders[orderID]
	if !ok {
		return fmt.Errorf("orders: order %s: %w", orderID, httpx.ErrNotFound)
	}
	if o.UnifiedStatus != expectedUnified {
		return fmt.Errorf("orders: order %s changed concurrently: %w", orderID, httpx.ErrInvalidState)
	}
	if v, ok := legacy["status"]; ok {
		o.LegacyStatus = v.(string)
	}
	if v, ok := unified["unified_status"]; ok {
		o.UnifiedStatus = v.(string)
	}
	tx.repo.orders[orderID] = o
	return nil
}

func (tx *memoryOrderTx) UpdateOrderPRStatus(ctx context.Context, orderID, expectedUnified string, legacy, unified map[string]any) error {
	o, ok := tx.repo.orders[orderID]
	if !ok {
		return fmt.Errorf("orders: order %s: %w", orderID, httpx.ErrNotFound)
	}
	if o.UnifiedPRStatus != expectedUnified {
		return fmt.Errorf("orders: order %s changed concurrently: %w", orderID, httpx.ErrInvalidState)
	}
	if v, ok := legacy["pr_status"]; ok {
		o.LegacyPRStatus = v.(string)
	}
	if v, ok := unified["unified_pr_status"]; ok {
		o.UnifiedPRStatus = v.(string)
	}
	tx.repo.orders[orderID] = o
	return nil
}

func (tx *memoryOrderTx) SetPRNumber(ctx context.Context, orderID, prNumber string, prDate time.Time) error {
	o, ok := tx.repo.orders[orderID]
	if !ok {
		return fmt.Errorf("orders: order %s: %w", orderID, httpx.ErrNotFound)
	}
	if o.PRNumber == "" {
		o.PRNumber = prNumber
		o.PRDate = &prDate
		tx.repo.orders[orderID] = o
	}
	return nil
}

func (tx *memoryOrderTx) UpdateSuborderShipping(ctx context.Context, suborderID, expectedShipment string, sub Suborder) error {
	existing, ok := tx.repo.suborders[suborderID]
	if !ok {
		return fmt.Errorf("orders: suborder %s: %w", suborderID, httpx.ErrNotFound)
	}
	if existing.ShipmentStatus != expectedShipment {
		return fmt.Errorf("orders: suborder %s changed concurrently: %w", suborderID, httpx.ErrInvalidState)
	}
	sub.ID = suborderID
	tx.repo.suborders[suborderID] = sub
	return nil
}

type captureAudit struct {
	entries []workflow.AuditEntry
}

func (c *captureAudit) Record(ctx context.Context, entry workflow.AuditEntry) error {
	c.entries = append(c.entries, entry)
	return nil
}

func newTestService(repo *memoryOrderRepo) (*Service, *captureAudit) {
	audit := &captureAudit{}
	svc := NewService(repo, workflow.NewProjector(), audit, nil, nil, nil)
	return svc, audit
}

func createApprovedOrder(t *testing.T, svc *Service, repo *memoryOrderRepo) Order {
	t.Helper()
	repo.vendors["prod-shirt"] = "vendor-a"
	repo.vendors["prod-trouser"] = "vendor-b"
	order, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		EmployeeID: "emp-1",
		CompanyID:  "co-1",
		SiteID:     "site-1",
		Items: []CreateOrderLineRequest{
			{ProductID: "prod-shirt", Size: "L", Quantity: 2, UnitPrice: 450},
			{ProductID: "prod-trouser", Size: "34", Quantity: 1, UnitPrice: 900},
		},
	})
	require.NoError(t, err)
	_, err = svc.ApproveBySite(context.Background(), order.ID, "site-admin")
	require.NoError(t, err)
	order, err = svc.ApproveByCompany(context.Background(), order.ID, "company-admin")
	require.NoError(t, err)
	return order
}

func shipToDelivered(t *testing.T, svc *Service, suborderID string) {
	t.Helper()
	ctx := context.Background()
	for _, status := range []string{workflow.ShipmentShipped, workflow.ShipmentInTransit, workflow.ShipmentDelivered} {
		_, err := svc.UpdateSuborderShipping(ctx, suborderID, UpdateShippingRequest{
			ShipmentStatus: status,
			UpdatedBy:      "courier-sync",
		})
		require.NoError(t, err)
	}
}

func TestApprovalOrdering(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _ := newTestService(repo)
	repo.vendors["prod-shirt"] = "vendor-a"

	order, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		EmployeeID: "emp-1", CompanyID: "co-1", SiteID: "site-1",
		Items: []CreateOrderLineRequest{{ProductID: "prod-shirt", Size: "M", Quantity: 1, UnitPrice: 300}},
	})
	require.NoError(t, err)
	require.Equal(t, workflow.OrderPendingApproval, order.UnifiedStatus)
	require.Equal(t, workflow.PRPendingSiteApproval, order.UnifiedPRStatus)

	// Company approval before site approval is rejected.
	_, err = svc.ApproveByCompany(context.Background(), order.ID, "company-admin")
	require.Error(t, err)
	require.True(t, errors.Is(err, httpx.ErrInvalidState))

	approved, err := svc.ApproveBySite(context.Background(), order.ID, "site-admin")
	require.NoError(t, err)
	require.Equal(t, workflow.PRSiteApproved, approved.UnifiedPRStatus)
	require.NotEmpty(t, approved.PRNumber)

	approved, err = svc.ApproveByCompany(context.Background(), order.ID, "company-admin")
	require.NoError(t, err)
	require.Equal(t, workflow.PRCompanyApproved, approved.UnifiedPRStatus)
	require.Equal(t, workflow.OrderApproved, approved.UnifiedStatus)
	require.Equal(t, "Awaiting fulfilment", approved.LegacyStatus)
}

func TestSplitOrderSharesPRNumber(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _ := newTestService(repo)
	repo.vendors["prod-shirt"] = "vendor-a"

	parent, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		EmployeeID: "emp-1", CompanyID: "co-1", SiteID: "site-1",
		Items: []CreateOrderLineRequest{{ProductID: "prod-shirt", Size: "M", Quantity: 1, UnitPrice: 300}},
	})
	require.NoError(t, err)
	parent, err = svc.ApproveBySite(context.Background(), parent.ID, "site-admin")
	require.NoError(t, err)

	child, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		EmployeeID: "emp-1", CompanyID: "co-1", SiteID: "site-1", ParentOrderID: parent.ID,
		Items: []CreateOrderLineRequest{{ProductID: "prod-shirt", Size: "S", Quantity: 1, UnitPrice: 300}},
	})
	require.NoError(t, err)
	require.True(t, child.IsSplitOrder)

	child, err = svc.ApproveBySite(context.Background(), child.ID, "site-admin")
	require.NoError(t, err)
	require.Equal(t, parent.PRNumber, child.PRNumber)
}

func TestCreateSubordersFanOut(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _ := newTestService(repo)
	order := createApprovedOrder(t, svc, repo)

	subs, err := svc.ListSuborders(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	vendors := map[string]bool{}
	for _, sub := range subs {
		vendors[sub.VendorID] = true
		require.Equal(t, workflow.SuborderCreated, sub.SuborderStatus)
		require.Equal(t, workflow.ShipmentNotShipped, sub.ShipmentStatus)
	}
	require.True(t, vendors["vendor-a"])
	require.True(t, vendors["vendor-b"])

	// Repeating the fan-out must not duplicate suborders.
	again, err := svc.CreateSubordersForOrder(context.Background(), order.ID)
	require.NoError(t, err)
	require.Len(t, again, 2)
}

func TestCreateSubordersRequiresApproval(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _ := newTestService(repo)
	repo.vendors["prod-shirt"] = "vendor-a"

	order, err := svc.CreateOrder(context.Background(), CreateOrderRequest{
		EmployeeID: "emp-1", CompanyID: "co-1", SiteID: "site-1",
		Items: []CreateOrderLineRequest{{ProductID: "prod-shirt", Size: "M", Quantity: 1, UnitPrice: 300}},
	})
	require.NoError(t, err)

	_, err = svc.CreateSubordersForOrder(context.Background(), order.ID)
	require.True(t, errors.Is(err, httpx.ErrInvalidState))
}

func suborderByVendor(t *testing.T, repo *memoryOrderRepo, orderID, vendorID string) Suborder {
	t.Helper()
	for _, s := range repo.suborders {
		if s.OrderID == orderID && s.VendorID == vendorID {
			return s
		}
	}
	t.Fatalf("no suborder for order %s vendor %s", orderID, vendorID)
	return Suborder{}
}

func TestDeriveMasterStatusPrecedence(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _ := newTestService(repo)
	order := createApprovedOrder(t, svc, repo)
	ctx := context.Background()

	label, err := svc.DeriveMasterOrderStatus(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, MasterAwaitingFulfilment, label)

	// One delivered, one in transit: partial progress dominates.
	subA := suborderByVendor(t, repo, order.ID, "vendor-a")
	subB := suborderByVendor(t, repo, order.ID, "vendor-b")
	shipToDelivered(t, svc, subA.ID)
	for _, status := range []string{workflow.ShipmentShipped, workflow.ShipmentInTransit} {
		_, err := svc.UpdateSuborderShipping(ctx, subB.ID, UpdateShippingRequest{ShipmentStatus: status, UpdatedBy: "courier-sync"})
		require.NoError(t, err)
	}

	label, err = svc.DeriveMasterOrderStatus(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, MasterDispatched, label)
}

func TestDeriveMasterStatusShippedBeatsFailed(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _ := newTestService(repo)
	order := createApprovedOrder(t, svc, repo)
	ctx := context.Background()

	subA := suborderByVendor(t, repo, order.ID, "vendor-a")
	subB := suborderByVendor(t, repo, order.ID, "vendor-b")
	_, err := svc.UpdateSuborderShipping(ctx, subA.ID, UpdateShippingRequest{ShipmentStatus: workflow.ShipmentShipped, UpdatedBy: "courier-sync"})
	require.NoError(t, err)
	_, err = svc.UpdateSuborderShipping(ctx, subB.ID, UpdateShippingRequest{ShipmentStatus: workflow.ShipmentFailed, UpdatedBy: "courier-sync"})
	require.NoError(t, err)

	label, err := svc.DeriveMasterOrderStatus(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, MasterDispatched, label)
}

func TestDeriveMasterStatusAllFailed(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _ := newTestService(repo)
	order := createApprovedOrder(t, svc, repo)
	ctx := context.Background()

	for _, vendor := range []string{"vendor-a", "vendor-b"} {
		sub := suborderByVendor(t, repo, order.ID, vendor)
		_, err := svc.UpdateSuborderShipping(ctx, sub.ID, UpdateShippingRequest{ShipmentStatus: workflow.ShipmentFailed, UpdatedBy: "courier-sync"})
		require.NoError(t, err)
	}

	// Failed slices map back to awaiting fulfilment; there is no dedicated
	// attention status.
	label, err := svc.DeriveMasterOrderStatus(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, MasterAwaitingFulfilment, label)
}

func TestDeriveMasterStatusNoSuborders(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _ := newTestService(repo)
	ctx := context.Background()

	// Indent-linked order without suborders is still awaiting fulfilment.
	repo.orders["ord-indent"] = Order{ID: "ord-indent", IndentID: "ind-1", LegacyStatus: "Pending approval"}
	label, err := svc.DeriveMasterOrderStatus(ctx, "ord-indent")
	require.NoError(t, err)
	require.Equal(t, MasterAwaitingFulfilment, label)

	// Legacy order without indent falls back to its own status.
	repo.orders["ord-legacy"] = Order{ID: "ord-legacy", LegacyStatus: "Dispatched"}
	label, err = svc.DeriveMasterOrderStatus(ctx, "ord-legacy")
	require.NoError(t, err)
	require.Equal(t, "Dispatched", label)
}

func TestEndToEndTwoVendorDelivery(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _ := newTestService(repo)
	order := createApprovedOrder(t, svc, repo)
	ctx := context.Background()

	subs, err := svc.ListSuborders(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, subs, 2)

	subA := suborderByVendor(t, repo, order.ID, "vendor-a")
	shipToDelivered(t, svc, subA.ID)

	got, err := repo.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.OrderDispatched, got.UnifiedStatus)
	require.Equal(t, "Dispatched", got.LegacyStatus)

	subB := suborderByVendor(t, repo, order.ID, "vendor-b")
	shipToDelivered(t, svc, subB.ID)

	got, err = repo.GetOrder(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.OrderDelivered, got.UnifiedStatus)
	require.Equal(t, "Delivered", got.LegacyStatus)
}

func TestUpdateSuborderShippingRejectsSkip(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _ := newTestService(repo)
	order := createApprovedOrder(t, svc, repo)
	sub := suborderByVendor(t, repo, order.ID, "vendor-a")

	_, err := svc.UpdateSuborderShipping(context.Background(), sub.ID, UpdateShippingRequest{
		ShipmentStatus: workflow.ShipmentDelivered,
		UpdatedBy:      "courier-sync",
	})
	require.True(t, errors.Is(err, httpx.ErrInvalidState))
}

func TestUpdateMasterOrderStatusMissingOrderIsNoop(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, _ := newTestService(repo)

	require.NoError(t, svc.UpdateMasterOrderStatus(context.Background(), "ord-missing"))
}

func TestTransitionsAreAudited(t *testing.T) {
	repo := newMemoryOrderRepo()
	svc, audit := newTestService(repo)
	order := createApprovedOrder(t, svc, repo)

	// Two PR approvals plus the order-track approval.
	require.GreaterOrEqual(t, len(audit.entries), 3)
	last := audit.entries[len(audit.entries)-1]
	require.Equal(t, order.ID, last.EntityID)
}
