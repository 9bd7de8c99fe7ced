// Package indent implements the vendor settlement chain: indent headers fan
// out into per-vendor indents, each settled through GRN, invoice, and
// payment, and the indent closes only when every slice is paid and delivered.
package indent

import (
	"errors"
	"time"
)

// IndentHeader is a company-level requisition container grouping the orders
// raised against one client reference number.
type IndentHeader struct {
	ID                 string    `json:"id"`
	ClientIndentNumber string    `json:"client_indent_number"`
	CompanyID          string    `json:"company_id"`
	SiteID             string    `json:"site_id"`
	LegacyStatus       string    `json:"status"`
	UnifiedStatus      string    `json:"unified_status"`
	CreatedBy          string    `json:"created_by"`
	CreatorRole        string    `json:"creator_role"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// VendorIndent is the per-vendor slice of an indent.
type VendorIndent struct {
	ID            string    `json:"id"`
	IndentID      string    `json:"indent_id"`
	VendorID      string    `json:"vendor_id"`
	TotalItems    int       `json:"total_items"`
	TotalQuantity int       `json:"total_quantity"`
	TotalAmount   float64   `json:"total_amount"`
	LegacyStatus  string    `json:"status"`
	UnifiedStatus string    `json:"unified_status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GoodsReceiptNote is the vendor-raised receipt confirmation.
type GoodsReceiptNote struct {
	ID             string    `json:"id"`
	VendorIndentID string    `json:"vendor_indent_id"`
	VendorID       string    `json:"vendor_id"`
	GRNNumber      string    `json:"grn_number"`
	GRNDate        time.Time `json:"grn_date"`
	LegacyStatus   string    `json:"status"`
	UnifiedStatus  string    `json:"unified_status"`
	Remarks        string    `json:"remarks,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// InvoiceLine is one billed line, priced from the originating items.
type InvoiceLine struct {
	ID        string  `json:"id"`
	InvoiceID string  `json:"invoice_id"`
	ProductID string  `json:"product_id"`
	Size      string  `json:"size,omitempty"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total"`
}

// VendorInvoice bills one GRN. Exactly one invoice exists per GRN.
type VendorInvoice struct {
	ID             string        `json:"id"`
	GRNID          string        `json:"grn_id"`
	VendorIndentID string        `json:"vendor_indent_id"`
	VendorID       string        `json:"vendor_id"`
	InvoiceNumber  string        `json:"invoice_number"`
	InvoiceDate    time.Time     `json:"invoice_date"`
	LegacyStatus   string        `json:"status"`
	UnifiedStatus  string        `json:"unified_status"`
	TotalAmount    float64       `json:"total_amount"`
	Remarks        string        `json:"remarks,omitempty"`
	Lines          []InvoiceLine `json:"lines,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Payment settles one invoice.
type Payment struct {
	ID               string    `json:"id"`
	InvoiceID        string    `json:"invoice_id"`
	VendorID         string    `json:"vendor_id"`
	PaymentReference string    `json:"payment_reference"`
	PaymentDate      time.Time `json:"payment_date"`
	AmountPaid       float64   `json:"amount_paid"`
	LegacyStatus     string    `json:"status"`
	UnifiedStatus    string    `json:"unified_status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// SuborderStatus is the slim projection of a suborder used by the closure
// gate; only the two status columns matter here.
type SuborderStatus struct {
	SuborderStatus string
	ShipmentStatus string
}

// Effective prefers the suborder status and falls back to the shipment
// status, mirroring the fan-in derivation.
func (s SuborderStatus) Effective() string {
	if s.SuborderStatus != "" {
		return s.SuborderStatus
	}
	return s.ShipmentStatus
}

// ErrInconsistentChain marks a payment cascade that stopped partway: some
// chain entities were updated and later ones were not. Retrying the cascade
// is safe; every step accepts its own re-application.
var ErrInconsistentChain = errors.New("indent: payment cascade left chain partially updated")

// CreateIndentRequest creates an indent header.
type CreateIndentRequest struct {
	ClientIndentNumber string `json:"client_indent_number" validate:"required,max=100"`
	CompanyID          string `json:"company_id" validate:"required"`
	SiteID             string `json:"site_id" validate:"required"`
	CreatedBy          string `json:"created_by" validate:"required"`
	CreatorRole        string `json:"creator_role" validate:"required,oneof=SITE_ADMIN COMPANY_ADMIN SUPER_ADMIN"`
}

// CreateVendorIndentRequest adds a vendor slice to an indent.
type CreateVendorIndentRequest struct {
	VendorID      string  `json:"vendor_id" validate:"required"`
	TotalItems    int     `json:"total_items" validate:"required,gt=0"`
	TotalQuantity int     `json:"total_quantity" validate:"required,gt=0"`
	TotalAmount   float64 `json:"total_amount" validate:"required,gt=0"`
}

// CreateGRNRequest creates a draft GRN against a vendor indent.
type CreateGRNRequest struct {
	VendorIndentID string    `json:"vendor_indent_id" validate:"required"`
	GRNNumber      string    `json:"grn_number,omitempty" validate:"omitempty,max=100"`
	GRNDate        time.Time `json:"grn_date,omitempty"`
	Remarks        string    `json:"remarks,omitempty" validate:"omitempty,max=500"`
}

// ActorRequest identifies the acting user for a bare transition endpoint.
type ActorRequest struct {
	Actor string `json:"actor" validate:"required"`
}

// RaiseInvoiceRequest creates the invoice for an approved GRN.
type RaiseInvoiceRequest struct {
	InvoiceNumber string             `json:"invoice_number,omitempty" validate:"omitempty,max=100"`
	InvoiceDate   time.Time          `json:"invoice_date,omitempty"`
	Remarks       string             `json:"remarks,omitempty" validate:"omitempty,max=500"`
	Actor         string             `json:"actor" validate:"required"`
	Lines         []InvoiceLineInput `json:"lines" validate:"required,min=1,dive"`
}

// InvoiceLineInput is one billed line in a raise-invoice request.
type InvoiceLineInput struct {
	ProductID string  `json:"product_id" validate:"required"`
	Size      string  `json:"size,omitempty"`
	Quantity  int     `json:"quantity" validate:"required,gt=0"`
	UnitPrice float64 `json:"unit_price" validate:"gte=0"`
}

// CreatePaymentRequest registers a pending payment for an invoice.
type CreatePaymentRequest struct {
	PaymentReference string    `json:"payment_reference" validate:"required,max=100"`
	PaymentDate      time.Time `json:"payment_date,omitempty"`
	AmountPaid       float64   `json:"amount_paid" validate:"required,gt=0"`
	Actor            string    `json:"actor" validate:"required"`
}
