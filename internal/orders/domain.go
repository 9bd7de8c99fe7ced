// Package orders holds the purchase requisition (order) entity, its
// per-vendor suborders, and the fan-out/fan-in engine that derives the master
// order status from the suborder set.
package orders

import (
	"time"
)

// LineItem is one requested product on an order.
type LineItem struct {
	ID        string  `json:"id"`
	OrderID   string  `json:"order_id"`
	ProductID string  `json:"product_id"`
	Size      string  `json:"size"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Order is one employee's uniform requisition. It carries two status tracks
// during the vocabulary migration: the legacy free-text labels and the
// unified statuses, kept in lockstep by the dual-write projector. The order
// track follows fulfilment; the PR track follows the two-stage approval.
type Order struct {
	ID              string     `json:"id"`
	EmployeeID      string     `json:"employee_id"`
	CompanyID       string     `json:"company_id"`
	SiteID          string     `json:"site_id"`
	IndentID        string     `json:"indent_id,omitempty"`
	LegacyStatus    string     `json:"status"`
	LegacyPRStatus  string     `json:"pr_status"`
	UnifiedStatus   string     `json:"unified_status"`
	UnifiedPRStatus string     `json:"unified_pr_status"`
	PRNumber        string     `json:"pr_number,omitempty"`
	PRDate          *time.Time `json:"pr_date,omitempty"`
	IsSplitOrder    bool       `json:"is_split_order"`
	ParentOrderID   string     `json:"parent_order_id,omitempty"`
	Items           []LineItem `json:"items,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Suborder is the per-vendor fulfilment slice of an order. Its suborder
// status is always derived from the shipment status, never set on its own.
type Suborder struct {
	ID                string     `json:"id"`
	OrderID           string     `json:"order_id"`
	VendorID          string     `json:"vendor_id"`
	VendorIndentID    string     `json:"vendor_indent_id,omitempty"`
	SuborderStatus    string     `json:"suborder_status"`
	ShipmentStatus    string     `json:"shipment_status"`
	ShipperName       string     `json:"shipper_name,omitempty"`
	ConsignmentNumber string     `json:"consignment_number,omitempty"`
	ShippedAt         *time.Time `json:"shipped_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// EffectiveStatus prefers the suborder status and falls back to the shipment
// status for rows migrated before suborder_status existed.
func (s Suborder) EffectiveStatus() string {
	if s.SuborderStatus != "" {
		return s.SuborderStatus
	}
	return s.ShipmentStatus
}

// Master order legacy labels produced by the fan-in derivation.
const (
	MasterAwaitingFulfilment = "Awaiting fulfilment"
	MasterDispatched         = "Dispatched"
	MasterDelivered          = "Delivered"
)

// CreateOrderRequest is the payload for creating an order.
type CreateOrderRequest struct {
	EmployeeID    string                   `json:"employee_id" validate:"required"`
	CompanyID     string                   `json:"company_id" validate:"required"`
	SiteID        string                   `json:"site_id" validate:"required"`
	IndentID      string                   `json:"indent_id,omitempty"`
	ParentOrderID string                   `json:"parent_order_id,omitempty"`
	Items         []CreateOrderLineRequest `json:"items" validate:"required,min=1,dive"`
}

// CreateOrderLineRequest is one line of a create request.
type CreateOrderLineRequest struct {
	ProductID string  `json:"product_id" validate:"required"`
	Size      string  `json:"size" validate:"required"`
	Quantity  int     `json:"quantity" validate:"required,gt=0"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

// ApprovalRequest identifies the approving admin.
type ApprovalRequest struct {
	ApprovedBy string `json:"approved_by" validate:"required"`
}

// RejectionRequest identifies the rejecting admin and the reason.
type RejectionRequest struct {
	RejectedBy string `json:"rejected_by" validate:"required"`
	Reason     string `json:"reason" validate:"required,min=5,max=500"`
}

// UpdateShippingRequest carries a shipment-tracking update for one suborder.
type UpdateShippingRequest struct {
	ShipmentStatus    string     `json:"shipment_status" validate:"required"`
	ShipperName       string     `json:"shipper_name,omitempty" validate:"omitempty,max=200"`
	ConsignmentNumber string     `json:"consignment_number,omitempty" validate:"omitempty,max=100"`
	ShippedAt         *time.Time `json:"shipped_at,omitempty"`
	UpdatedBy         string     `json:"updated_by" validate:"required"`
}

// ListFilters narrows order listings.
type ListFilters struct {
	EmployeeID string
	CompanyID  string
	SiteID     string
	Status     string
	Search     string
}
