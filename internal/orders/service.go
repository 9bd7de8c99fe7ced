package orders

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agrawalpuran/uds-refresh-sub018/internal/platform/cache"
	"github.com/agrawalpuran/uds-refresh-sub018/internal/platform/httpx"
	"github.com/agrawalpuran/uds-refresh-sub018/internal/shared"
	"github.com/agrawalpuran/uds-refresh-sub018/internal/workflow"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id string) (Order, error)
	ListOrders(ctx context.Context, limit, offset int, filters ListFilters) ([]Order, int, error)
	GetSuborder(ctx context.Context, id string) (Suborder, error)
	ListSubordersByOrder(ctx context.Context, orderID string) ([]Suborder, error)
	ResolveVendors(ctx context.Context, productIDs []string) (map[string]string, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	CreateOrder(ctx context.Context, order Order) (string, error)
	CreateSuborder(ctx context.Context, sub Suborder) (string, error)
	UpdateOrderWorkflowStatus(ctx context.Context, orderID, expectedUnified string, legacy, unified map[string]any) error
	UpdateOrderPRStatus(ctx context.Context, orderID, expectedUnified string, legacy, unified map[string]any) error
	SetPRNumber(ctx context.Context, orderID, prNumber string, prDate time.Time) error
	UpdateSuborderShipping(ctx context.Context, suborderID, expectedShipment string, sub Suborder) error
}

// TransitionObserver counts attempted transitions for metrics.
type TransitionObserver interface {
	ObserveTransition(entity string, valid bool)
}

// Service implements the suborder fan-out/fan-in engine and the two-stage PR
// approval on top of the workflow core.
type Service struct {
	repo      RepositoryPort
	projector *workflow.Projector
	audit     shared.AuditWriter
	cache     *cache.StatusCache
	metrics   TransitionObserver
	logger    *slog.Logger
}

// NewService constructs the orders service. Audit, cache, and metrics are
// optional.
func NewService(repo RepositoryPort, projector *workflow.Projector, audit shared.AuditWriter, statusCache *cache.StatusCache, metrics TransitionObserver, logger *slog.Logger) *Service {
	if projector == nil {
		projector = workflow.NewProjector()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, projector: projector, audit: audit, cache: statusCache, metrics: metrics, logger: logger}
}

// CreateOrder persists a new requisition in its initial state on both status
// tracks. Split children inherit the parent's PR number once the parent is
// site approved.
func (s *Service) CreateOrder(ctx context.Context, input CreateOrderRequest) (Order, error) {
	if len(input.Items) == 0 {
		return Order{}, fmt.Errorf("orders: minimal 1 line item: %w", httpx.ErrValidation)
	}
	orderInitial, _ := workflow.InitialStatus(workflow.EntityOrder)
	prInitial, _ := workflow.InitialStatus(workflow.EntityPurchaseRequisition)
	orderLegacy, _ := workflow.LegacyLabel(workflow.EntityOrder, orderInitial)
	prLegacy, _ := workflow.LegacyLabel(workflow.EntityPurchaseRequisition, prInitial)

	order := Order{
		EmployeeID:      input.EmployeeID,
		CompanyID:       input.CompanyID,
		SiteID:          input.SiteID,
		IndentID:        input.IndentID,
		LegacyStatus:    orderLegacy,
		LegacyPRStatus:  prLegacy,
		UnifiedStatus:   orderInitial,
		UnifiedPRStatus: prInitial,
		IsSplitOrder:    input.ParentOrderID != "",
		ParentOrderID:   input.ParentOrderID,
	}
	for _, line := range input.Items {
		order.Items = append(order.Items, LineItem{
			ProductID: line.ProductID,
			Size:      line.Size,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	return order, nil
}

// GetOrder loads one order with its line items.
func (s *Service) GetOrder(ctx context.Context, id string) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders returns a page of orders.
func (s *Service) ListOrders(ctx context.Context, limit, offset int, filters ListFilters) ([]Order, int, error) {
	return s.repo.ListOrders(ctx, limit, offset, filters)
}

// ListSuborders returns the fan-out set for an order.
func (s *Service) ListSuborders(ctx context.Context, orderID string) ([]Suborder, error) {
	return s.repo.ListSubordersByOrder(ctx, orderID)
}

// ApproveBySite records the site-admin approval on the PR track and assigns
// the PR number. Split children share the parent's PR number so the logical
// requisition keeps exactly one.
func (s *Service) ApproveBySite(ctx context.Context, orderID, actor string) (Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	res := s.projectPR(order, workflow.PRSiteApproved, workflow.TransitionContext{
		UpdatedBy: actor,
		Reason:    "site admin approval",
		Source:    "api",
	})
	if !res.Validation.Valid {
		return Order{}, fmt.Errorf("orders: %s: %w", res.Validation.Reason, httpx.ErrInvalidState)
	}

	prNumber := order.PRNumber
	prDate := time.Now()
	if prNumber == "" {
		if order.IsSplitOrder && order.ParentOrderID != "" {
			parent, err := s.repo.GetOrder(ctx, order.ParentOrderID)
			if err != nil {
				return Order{}, fmt.Errorf("orders: load parent for PR number: %w", err)
			}
			prNumber = parent.PRNumber
			if parent.PRDate != nil {
				prDate = *parent.PRDate
			}
		}
		if prNumber == "" {
			prNumber = generateNumber("PR")
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateOrderPRStatus(ctx, orderID, order.UnifiedPRStatus, res.LegacyUpdate, res.UnifiedUpdate); err != nil {
			return err
		}
		return tx.SetPRNumber(ctx, orderID, prNumber, prDate)
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, res.AuditLog)

	order.UnifiedPRStatus = workflow.PRSiteApproved
	order.LegacyPRStatus = res.LegacyUpdate["pr_status"].(string)
	order.PRNumber = prNumber
	order.PRDate = &prDate
	return order, nil
}

// ApproveByCompany records the company-admin approval, moves the order track
// to APPROVED, and fans the order out into per-vendor suborders. Company
// approval is only legal after site approval; the validator enforces the
// ordering.
func (s *Service) ApproveByCompany(ctx context.Context, orderID, actor string) (Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	tc := workflow.TransitionContext{UpdatedBy: actor, Reason: "company admin approval", Source: "api"}
	prRes := s.projectPR(order, workflow.PRCompanyApproved, tc)
	if !prRes.Validation.Valid {
		return Order{}, fmt.Errorf("orders: %s: %w", prRes.Validation.Reason, httpx.ErrInvalidState)
	}
	orderRes := s.projectOrder(order, workflow.OrderApproved, tc)
	if !orderRes.Validation.Valid {
		return Order{}, fmt.Errorf("orders: %s: %w", orderRes.Validation.Reason, httpx.ErrInvalidState)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateOrderPRStatus(ctx, orderID, order.UnifiedPRStatus, prRes.LegacyUpdate, prRes.UnifiedUpdate); err != nil {
			return err
		}
		return tx.UpdateOrderWorkflowStatus(ctx, orderID, order.UnifiedStatus, orderRes.LegacyUpdate, orderRes.UnifiedUpdate)
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, prRes.AuditLog)
	s.recordAudit(ctx, orderRes.AuditLog)

	order.UnifiedPRStatus = workflow.PRCompanyApproved
	order.LegacyPRStatus = prRes.LegacyUpdate["pr_status"].(string)
	order.UnifiedStatus = workflow.OrderApproved
	order.LegacyStatus = orderRes.LegacyUpdate["status"].(string)

	if _, err := s.CreateSubordersForOrder(ctx, orderID); err != nil {
		return Order{}, fmt.Errorf("orders: fan out suborders: %w", err)
	}
	return order, nil
}

// Reject marks both tracks rejected. Rejection is a side terminal, reachable
// from any non-terminal state.
func (s *Service) Reject(ctx context.Context, orderID string, input RejectionRequest) (Order, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	tc := workflow.TransitionContext{UpdatedBy: input.RejectedBy, Reason: input.Reason, Source: "api"}
	prRes := s.projectPR(order, workflow.PRRejected, tc)
	if !prRes.Validation.Valid {
		return Order{}, fmt.Errorf("orders: %s: %w", prRes.Validation.Reason, httpx.ErrInvalidState)
	}
	orderRes := s.projectOrder(order, workflow.OrderRejected, tc)
	if !orderRes.Validation.Valid {
		return Order{}, fmt.Errorf("orders: %s: %w", orderRes.Validation.Reason, httpx.ErrInvalidState)
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateOrderPRStatus(ctx, orderID, order.UnifiedPRStatus, prRes.LegacyUpdate, prRes.UnifiedUpdate); err != nil {
			return err
		}
		return tx.UpdateOrderWorkflowStatus(ctx, orderID, order.UnifiedStatus, orderRes.LegacyUpdate, orderRes.UnifiedUpdate)
	})
	if err != nil {
		return Order{}, err
	}
	s.recordAudit(ctx, prRes.AuditLog)
	s.recordAudit(ctx, orderRes.AuditLog)

	order.UnifiedPRStatus = workflow.PRRejected
	order.LegacyPRStatus = prRes.LegacyUpdate["pr_status"].(string)
	order.UnifiedStatus = workflow.OrderRejected
	order.LegacyStatus = orderRes.LegacyUpdate["status"].(string)
	return order, nil
}

// CreateSubordersForOrder splits an approved order into one suborder per
// vendor resolved from its line items. Vendors that already have a suborder
// are skipped, so the call is safe to repeat.
func (s *Service) CreateSubordersForOrder(ctx context.Context, orderID string) ([]Suborder, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UnifiedStatus == workflow.OrderPendingApproval {
		return nil, fmt.Errorf("orders: order %s not yet approved: %w", orderID, httpx.ErrInvalidState)
	}
	if len(order.Items) == 0 {
		return nil, fmt.Errorf("orders: order %s has no line items: %w", orderID, httpx.ErrValidation)
	}

	productIDs := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	vendorByProduct, err := s.repo.ResolveVendors(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("orders: resolve vendors: %w", err)
	}

	vendors := make([]string, 0, len(order.Items))
	seen := make(map[string]bool)
	for _, item := range order.Items {
		vendorID, ok := vendorByProduct[item.ProductID]
		if !ok || vendorID == "" {
			return nil, fmt.Errorf("orders: no vendor for product %s: %w", item.ProductID, httpx.ErrValidation)
		}
		if !seen[vendorID] {
			seen[vendorID] = true
			vendors = append(vendors, vendorID)
		}
	}

	existing, err := s.repo.ListSubordersByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	existingVendor := make(map[string]bool, len(existing))
	for _, sub := range existing {
		existingVendor[sub.VendorID] = true
	}

	created := append([]Suborder(nil), existing...)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, vendorID := range vendors {
			if existingVendor[vendorID] {
				continue
			}
			sub := Suborder{
				OrderID:        orderID,
				VendorID:       vendorID,
				SuborderStatus: workflow.SuborderCreated,
				ShipmentStatus: workflow.ShipmentNotShipped,
			}
			id, err := tx.CreateSuborder(ctx, sub)
			if err != nil {
				return err
			}
			sub.ID = id
			created = append(created, sub)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// suborderStatusForShipment derives the suborder status from the shipment
// status, so the two can never disagree.
func suborderStatusForShipment(shipment string) string {
	switch shipment {
	case workflow.ShipmentNotShipped:
		return workflow.SuborderCreated
	case workflow.ShipmentShipped, workflow.ShipmentInTransit:
		return workflow.SuborderShipped
	case workflow.ShipmentDelivered:
		return workflow.SuborderDelivered
	case workflow.ShipmentFailed:
		return workflow.SuborderFailed
	case workflow.ShipmentReturned:
		return workflow.SuborderReturned
	default:
		return workflow.SuborderCreated
	}
}

// UpdateSuborderShipping applies a shipment-tracking update to one suborder,
// derives the matching suborder status, and fans the change back into the
// master order status.
func (s *Service) UpdateSuborderShipping(ctx context.Context, suborderID string, input UpdateShippingRequest) (Suborder, error) {
	sub, err := s.repo.GetSuborder(ctx, suborderID)
	if err != nil {
		return Suborder{}, err
	}

	res := s.projector.SafeDualWriteStatus(workflow.EntityShipment, suborderID, input.ShipmentStatus, "", sub.ShipmentStatus, workflow.TransitionContext{
		UpdatedBy: input.UpdatedBy,
		Reason:    "shipment tracking update",
		Source:    "api",
		Metadata:  map[string]any{"order_id": sub.OrderID, "vendor_id": sub.VendorID},
	})
	s.observe(workflow.EntityShipment, res.Validation.Valid)
	if !res.Validation.Valid {
		return Suborder{}, fmt.Errorf("orders: %s: %w", res.Validation.Reason, httpx.ErrInvalidState)
	}

	expected := sub.ShipmentStatus
	sub.ShipmentStatus = input.ShipmentStatus
	sub.SuborderStatus = suborderStatusForShipment(input.ShipmentStatus)
	if input.ShipperName != "" {
		sub.ShipperName = input.ShipperName
	}
	if input.ConsignmentNumber != "" {
		sub.ConsignmentNumber = input.ConsignmentNumber
	}
	if input.ShippedAt != nil {
		sub.ShippedAt = input.ShippedAt
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateSuborderShipping(ctx, suborderID, expected, sub)
	})
	if err != nil {
		return Suborder{}, err
	}
	s.recordAudit(ctx, res.AuditLog)

	if err := s.UpdateMasterOrderStatus(ctx, sub.OrderID); err != nil {
		return Suborder{}, fmt.Errorf("orders: fan in master status: %w", err)
	}
	return sub, nil
}

// DeriveMasterOrderStatus computes the order's aggregate legacy label purely
// from its suborder set. Precedence, in order:
//
//  1. no suborders: awaiting fulfilment when a parent indent exists,
//     otherwise the order's own legacy status (pre-suborder records)
//  2. all suborders still pending -> awaiting fulfilment
//  3. all delivered -> delivered
//  4. any shipped, in transit, or delivered -> dispatched
//  5. any failed or returned (nothing shipped) -> awaiting fulfilment; kept
//     for compatibility, a dedicated attention status was never introduced
//  6. default -> awaiting fulfilment
//
// Rule 4 beats rule 5: partial progress dominates over failed slices until
// everything is delivered.
func (s *Service) DeriveMasterOrderStatus(ctx context.Context, orderID string) (string, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	suborders, err := s.repo.ListSubordersByOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	if len(suborders) == 0 {
		if order.IndentID != "" {
			return MasterAwaitingFulfilment, nil
		}
		return order.LegacyStatus, nil
	}

	allPending := true
	allDelivered := true
	anyProgress := false
	anyAttention := false
	for _, sub := range suborders {
		switch sub.EffectiveStatus() {
		case workflow.SuborderCreated, workflow.ShipmentNotShipped:
			allDelivered = false
		case workflow.SuborderDelivered:
			allPending = false
			anyProgress = true
		case workflow.SuborderShipped, workflow.ShipmentInTransit:
			allPending = false
			allDelivered = false
			anyProgress = true
		case workflow.SuborderFailed, workflow.SuborderReturned:
			allPending = false
			allDelivered = false
			anyAttention = true
		default:
			allPending = false
			allDelivered = false
		}
	}

	switch {
	case allPending:
		return MasterAwaitingFulfilment, nil
	case allDelivered:
		return MasterDelivered, nil
	case anyProgress:
		return MasterDispatched, nil
	case anyAttention:
		return MasterAwaitingFulfilment, nil
	default:
		return MasterAwaitingFulfilment, nil
	}
}

// UpdateMasterOrderStatus recomputes the aggregate status and persists it
// through the dual-write projector. The order's own status is never written
// directly once suborders exist; this is the single fan-in point. A missing
// order is logged and ignored so a later resync can repair it.
func (s *Service) UpdateMasterOrderStatus(ctx context.Context, orderID string) error {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		s.logger.Warn("master status update skipped, order not found",
			slog.String("order_id", orderID), slog.Any("error", err))
		return nil
	}
	label, err := s.DeriveMasterOrderStatus(ctx, orderID)
	if err != nil {
		return err
	}
	target, ok := workflow.UnifiedFromLegacy(workflow.EntityOrder, label)
	if !ok {
		return fmt.Errorf("orders: derived label %q has no unified status", label)
	}
	if target == order.UnifiedStatus {
		return s.refreshCache(ctx, orderID, label)
	}

	// Apply one validated transition per chain step so a resync that lands
	// several steps ahead still honours the no-skip rule.
	path := workflow.PathBetween(workflow.EntityOrder, order.UnifiedStatus, target)
	if len(path) == 0 {
		s.logger.Warn("master status derivation would move backwards, keeping current",
			slog.String("order_id", orderID),
			slog.String("current", order.UnifiedStatus),
			slog.String("derived", target))
		return nil
	}
	current := order
	for _, step := range path {
		res := s.projectOrder(current, step, workflow.TransitionContext{
			UpdatedBy: "system",
			Reason:    "derived from suborder statuses",
			Source:    "fan-in",
		})
		if !res.Validation.Valid {
			return fmt.Errorf("orders: fan-in transition to %s: %s: %w", step, res.Validation.Reason, httpx.ErrInvalidState)
		}
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			return tx.UpdateOrderWorkflowStatus(ctx, orderID, current.UnifiedStatus, res.LegacyUpdate, res.UnifiedUpdate)
		})
		if err != nil {
			return err
		}
		s.recordAudit(ctx, res.AuditLog)
		current.UnifiedStatus = step
		current.LegacyStatus = res.LegacyUpdate["status"].(string)
	}
	return s.refreshCache(ctx, orderID, label)
}

// MasterOrderStatus returns the derived status, preferring the cache.
func (s *Service) MasterOrderStatus(ctx context.Context, orderID string) (string, error) {
	if cached, err := s.cache.GetMasterStatus(ctx, orderID); err == nil && cached != "" {
		return cached, nil
	}
	label, err := s.DeriveMasterOrderStatus(ctx, orderID)
	if err != nil {
		return "", err
	}
	if err := s.cache.SetMasterStatus(ctx, orderID, label); err != nil {
		s.logger.Warn("cache master status", slog.Any("error", err))
	}
	return label, nil
}

func (s *Service) refreshCache(ctx context.Context, orderID, label string) error {
	if err := s.cache.SetMasterStatus(ctx, orderID, label); err != nil {
		s.logger.Warn("cache master status", slog.Any("error", err))
	}
	return nil
}

func (s *Service) projectOrder(order Order, target string, tc workflow.TransitionContext) workflow.DualWriteResult {
	res := s.projector.SafeDualWriteStatus(workflow.EntityOrder, order.ID, target, order.LegacyStatus, order.UnifiedStatus, tc)
	s.observe(workflow.EntityOrder, res.Validation.Valid)
	return res
}

func (s *Service) projectPR(order Order, target string, tc workflow.TransitionContext) workflow.DualWriteResult {
	res := s.projector.SafeDualWriteStatus(workflow.EntityPurchaseRequisition, order.ID, target, order.LegacyPRStatus, order.UnifiedPRStatus, tc)
	s.observe(workflow.EntityPurchaseRequisition, res.Validation.Valid)
	return res
}

func (s *Service) observe(entity workflow.EntityType, valid bool) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(string(entity), valid)
	}
}

func (s *Service) recordAudit(ctx context.Context, entry workflow.AuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("record audit", slog.Any("error", err))
	}
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
