// Package workflow implements the procurement status engine: the status
// taxonomy shared by every entity in the indent-to-payment chain, the
// transition validator, and the dual-write projector that bridges the legacy
// and unified status vocabularies during the migration window.
package workflow

import (
	"fmt"
)

// EntityType tags the entity whose status chain a transition belongs to.
type EntityType string

const (
	EntityOrder               EntityType = "ORDER"
	EntityPurchaseRequisition EntityType = "PURCHASE_REQUISITION"
	EntityPurchaseOrder       EntityType = "PURCHASE_ORDER"
	EntityShipment            EntityType = "SHIPMENT"
	EntitySuborder            EntityType = "SUBORDER"
	EntityGRN                 EntityType = "GRN"
	EntityInvoice             EntityType = "INVOICE"
	EntityPayment             EntityType = "PAYMENT"
	EntityVendorIndent        EntityType = "VENDOR_INDENT"
	EntityIndent              EntityType = "INDENT"
)

// Unified order statuses.
const (
	OrderPendingApproval = "PENDING_APPROVAL"
	OrderApproved        = "APPROVED"
	OrderDispatched      = "DISPATCHED"
	OrderDelivered       = "DELIVERED"
	OrderRejected        = "REJECTED"
	OrderCancelled       = "CANCELLED"
)

// Unified purchase requisition approval statuses. The PR track runs next to
// the order track on the same document: site admin first, company admin second.
const (
	PRPendingSiteApproval = "PENDING_SITE_APPROVAL"
	PRSiteApproved        = "SITE_APPROVED"
	PRCompanyApproved     = "COMPANY_APPROVED"
	PRRejected            = "REJECTED"
)

// Unified purchase order statuses.
const (
	POCreated   = "CREATED"
	POIssued    = "ISSUED"
	POFulfilled = "FULFILLED"
	POClosed    = "CLOSED"
	POCancelled = "CANCELLED"
)

// Unified shipment statuses.
const (
	ShipmentNotShipped = "NOT_SHIPPED"
	ShipmentShipped    = "SHIPPED"
	ShipmentInTransit  = "IN_TRANSIT"
	ShipmentDelivered  = "DELIVERED"
	ShipmentFailed     = "FAILED"
	ShipmentReturned   = "RETURNED"
)

// Unified suborder statuses, always derived from the shipment status.
const (
	SuborderCreated   = "CREATED"
	SuborderShipped   = "SHIPPED"
	SuborderDelivered = "DELIVERED"
	SuborderFailed    = "FAILED"
	SuborderReturned  = "RETURNED"
)

// Unified GRN statuses.
const (
	GRNDraft     = "DRAFT"
	GRNSubmitted = "SUBMITTED"
	GRNApproved  = "APPROVED"
	GRNRejected  = "REJECTED"
)

// Unified invoice statuses.
const (
	InvoiceDraft     = "DRAFT"
	InvoiceRaised    = "RAISED"
	InvoiceApproved  = "APPROVED"
	InvoicePaid      = "PAID"
	InvoiceDisputed  = "DISPUTED"
	InvoiceCancelled = "CANCELLED"
)

// Unified payment statuses.
const (
	PaymentPending   = "PENDING"
	PaymentCompleted = "COMPLETED"
	PaymentFailed    = "FAILED"
)

// Unified vendor indent statuses.
const (
	VendorIndentCreated      = "CREATED"
	VendorIndentGRNSubmitted = "GRN_SUBMITTED"
	VendorIndentPaid         = "PAID"
	VendorIndentCancelled    = "CANCELLED"
)

// Unified indent statuses.
const (
	IndentCreated    = "CREATED"
	IndentInProgress = "IN_PROGRESS"
	IndentClosed     = "CLOSED"
	IndentCancelled  = "CANCELLED"
)

// chain describes one entity type's status machine.
type chain struct {
	// ordered is the canonical forward sequence; index in this slice is the
	// ordering index used by the validator. ordered[0] is the initial state.
	ordered []string
	// terminals are the side terminal states reachable from any
	// non-terminal state (rejection, cancellation, failure paths).
	terminals []string
	// legacy maps every unified state (ordered + terminals) to its legacy
	// free-text label. Must be total; verified at package init.
	legacy map[string]string
	// legacyField and unifiedField are the persisted column names the
	// projector writes for this entity type.
	legacyField  string
	unifiedField string
}

var chains = map[EntityType]chain{
	EntityOrder: {
		ordered:   []string{OrderPendingApproval, OrderApproved, OrderDispatched, OrderDelivered},
		terminals: []string{OrderRejected, OrderCancelled},
		legacy: map[string]string{
			OrderPendingApproval: "Pending approval",
			OrderApproved:        "Awaiting fulfilment",
			OrderDispatched:      "Dispatched",
			OrderDelivered:       "Delivered",
			OrderRejected:        "Rejected",
			OrderCancelled:       "Cancelled",
		},
		legacyField:  "status",
		unifiedField: "unified_status",
	},
	EntityPurchaseRequisition: {
		ordered:   []string{PRPendingSiteApproval, PRSiteApproved, PRCompanyApproved},
		terminals: []string{PRRejected},
		legacy: map[string]string{
			PRPendingSiteApproval: "Pending site approval",
			PRSiteApproved:        "Approved by site admin",
			PRCompanyApproved:     "Approved by company admin",
			PRRejected:            "Rejected",
		},
		legacyField:  "pr_status",
		unifiedField: "unified_pr_status",
	},
	EntityPurchaseOrder: {
		ordered:   []string{POCreated, POIssued, POFulfilled, POClosed},
		terminals: []string{POCancelled},
		legacy: map[string]string{
			POCreated:   "PO created",
			POIssued:    "PO issued",
			POFulfilled: "PO fulfilled",
			POClosed:    "PO closed",
			POCancelled: "PO cancelled",
		},
		legacyField:  "status",
		unifiedField: "unified_status",
	},
	EntityShipment: {
		ordered:   []string{ShipmentNotShipped, ShipmentShipped, ShipmentInTransit, ShipmentDelivered},
		terminals: []string{ShipmentFailed, ShipmentReturned},
		legacy: map[string]string{
			ShipmentNotShipped: "Not shipped",
			ShipmentShipped:    "Shipped",
			ShipmentInTransit:  "In transit",
			ShipmentDelivered:  "Delivered",
			ShipmentFailed:     "Delivery failed",
			ShipmentReturned:   "Returned",
		},
		legacyField:  "status",
		unifiedField: "unified_status",
	},
	EntitySuborder: {
		ordered:   []string{SuborderCreated, SuborderShipped, SuborderDelivered},
		terminals: []string{SuborderFailed, SuborderReturned},
		legacy: map[string]string{
			SuborderCreated:   "Awaiting fulfilment",
			SuborderShipped:   "Dispatched",
			SuborderDelivered: "Delivered",
			SuborderFailed:    "Delivery failed",
			SuborderReturned:  "Returned",
		},
		legacyField:  "status",
		unifiedField: "unified_status",
	},
	EntityGRN: {
		ordered:   []string{GRNDraft, GRNSubmitted, GRNApproved},
		terminals: []string{GRNRejected},
		legacy: map[string]string{
			GRNDraft:     "Draft",
			GRNSubmitted: "Submitted",
			GRNApproved:  "Approved",
			GRNRejected:  "Rejected",
		},
		legacyField:  "status",
		unifiedField: "unified_status",
	},
	EntityInvoice: {
		ordered:   []string{InvoiceDraft, InvoiceRaised, InvoiceApproved, InvoicePaid},
		terminals: []string{InvoiceDisputed, InvoiceCancelled},
		legacy: map[string]string{
			InvoiceDraft:     "Draft",
			InvoiceRaised:    "Raised",
			InvoiceApproved:  "Approved",
			InvoicePaid:      "Paid",
			InvoiceDisputed:  "Disputed",
			InvoiceCancelled: "Cancelled",
		},
		legacyField:  "status",
		unifiedField: "unified_status",
	},
	EntityPayment: {
		ordered:   []string{PaymentPending, PaymentCompleted},
		terminals: []string{PaymentFailed},
		legacy: map[string]string{
			PaymentPending:   "Pending",
			PaymentCompleted: "Completed",
			PaymentFailed:    "Failed",
		},
		legacyField:  "status",
		unifiedField: "unified_status",
	},
	EntityVendorIndent: {
		ordered:   []string{VendorIndentCreated, VendorIndentGRNSubmitted, VendorIndentPaid},
		terminals: []string{VendorIndentCancelled},
		legacy: map[string]string{
			VendorIndentCreated:      "Created",
			VendorIndentGRNSubmitted: "GRN submitted",
			VendorIndentPaid:         "Paid",
			VendorIndentCancelled:    "Cancelled",
		},
		legacyField:  "status",
		unifiedField: "unified_status",
	},
	EntityIndent: {
		ordered:   []string{IndentCreated, IndentInProgress, IndentClosed},
		terminals: []string{IndentCancelled},
		legacy: map[string]string{
			IndentCreated:    "Created",
			IndentInProgress: "In progress",
			IndentClosed:     "Closed",
			IndentCancelled:  "Cancelled",
		},
		legacyField:  "status",
		unifiedField: "unified_status",
	},
}

func init() {
	if err := checkTaxonomy(); err != nil {
		panic(err)
	}
}

// checkTaxonomy verifies every chain is internally consistent: each unified
// state has exactly one legacy label and no state appears twice. A gap here
// is a programming error, so the package refuses to load rather than fall
// back to a silent default at runtime.
func checkTaxonomy() error {
	for entity, c := range chains {
		if len(c.ordered) == 0 {
			return fmt.Errorf("workflow: %s has no ordered states", entity)
		}
		if c.legacyField == "" || c.unifiedField == "" {
			return fmt.Errorf("workflow: %s missing persisted field names", entity)
		}
		seen := make(map[string]bool)
		for _, s := range append(append([]string(nil), c.ordered...), c.terminals...) {
			if seen[s] {
				return fmt.Errorf("workflow: %s state %s defined twice", entity, s)
			}
			seen[s] = true
			if _, ok := c.legacy[s]; !ok {
				return fmt.Errorf("workflow: %s state %s has no legacy label", entity, s)
			}
		}
		if len(c.legacy) != len(seen) {
			return fmt.Errorf("workflow: %s legacy mapping lists unknown states", entity)
		}
	}
	return nil
}

// KnownEntity reports whether the taxonomy defines the entity type.
func KnownEntity(entity EntityType) bool {
	_, ok := chains[entity]
	return ok
}

// InitialStatus returns the entity's initial unified status.
func InitialStatus(entity EntityType) (string, bool) {
	c, ok := chains[entity]
	if !ok {
		return "", false
	}
	return c.ordered[0], true
}

// LegacyLabel resolves the legacy free-text label for a unified status.
func LegacyLabel(entity EntityType, unified string) (string, bool) {
	c, ok := chains[entity]
	if !ok {
		return "", false
	}
	label, ok := c.legacy[unified]
	return label, ok
}

// UnifiedFromLegacy resolves a legacy label back to its unified status. Where
// two unified states share a label the earliest in chain order wins, matching
// how legacy records were migrated.
func UnifiedFromLegacy(entity EntityType, label string) (string, bool) {
	c, ok := chains[entity]
	if !ok {
		return "", false
	}
	for _, s := range c.ordered {
		if c.legacy[s] == label {
			return s, true
		}
	}
	for _, s := range c.terminals {
		if c.legacy[s] == label {
			return s, true
		}
	}
	return "", false
}

// Statuses returns the full unified vocabulary for an entity type, chain
// states first in canonical order, side terminals after.
func Statuses(entity EntityType) []string {
	c, ok := chains[entity]
	if !ok {
		return nil
	}
	return append(append([]string(nil), c.ordered...), c.terminals...)
}

// PathBetween returns the forward chain states strictly after from up to and
// including to, so callers that derived a target several steps ahead can
// apply one validated transition per step. It returns nil when the pair is
// not a strictly forward chain move.
func PathBetween(entity EntityType, from, to string) []string {
	c, ok := chains[entity]
	if !ok {
		return nil
	}
	fromIdx := c.orderIndex(from)
	toIdx := c.orderIndex(to)
	if fromIdx < 0 || toIdx <= fromIdx {
		return nil
	}
	return append([]string(nil), c.ordered[fromIdx+1:toIdx+1]...)
}

// orderIndex returns the canonical index of a chain state, or -1 when the
// state is a side terminal or unknown.
func (c chain) orderIndex(status string) int {
	for i, s := range c.ordered {
		if s == status {
			return i
		}
	}
	return -1
}

func (c chain) isTerminal(status string) bool {
	if len(c.ordered) > 0 && status == c.ordered[len(c.ordered)-1] {
		return true
	}
	for _, s := range c.terminals {
		if s == status {
			return true
		}
	}
	return false
}

func (c chain) isSideTerminal(status string) bool {
	for _, s := range c.terminals {
		if s == status {
			return true
		}
	}
	return false
}

func (c chain) knows(status string) bool {
	return c.orderIndex(status) >= 0 || c.isSideTerminal(status)
}
