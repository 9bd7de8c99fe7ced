package indent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/agrawalpuran/uds-refresh-sub018/internal/platform/httpx"
	"github.com/agrawalpuran/uds-refresh-sub018/internal/shared"
	"github.com/agrawalpuran/uds-refresh-sub018/internal/workflow"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetIndent(ctx context.Context, id string) (IndentHeader, error)
	ListIndents(ctx context.Context, limit, offset int) ([]IndentHeader, int, error)
	GetVendorIndent(ctx context.Context, id string) (VendorIndent, error)
	ListVendorIndentsByIndent(ctx context.Context, indentID string) ([]VendorIndent, error)
	GetGRN(ctx context.Context, id string) (GoodsReceiptNote, error)
	GetInvoice(ctx context.Context, id string) (VendorInvoice, error)
	GetInvoiceByGRN(ctx context.Context, grnID string) (VendorInvoice, error)
	GetPayment(ctx context.Context, id string) (Payment, error)
	ListSuborderStatuses(ctx context.Context, vendorIndentIDs []string) ([]SuborderStatus, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	CreateIndent(ctx context.Context, header IndentHeader) (string, error)
	CreateVendorIndent(ctx context.Context, vi VendorIndent) (string, error)
	CreateGRN(ctx context.Context, grn GoodsReceiptNote) (string, error)
	CreateInvoice(ctx context.Context, inv VendorInvoice) (string, error)
	CreatePayment(ctx context.Context, p Payment) (string, error)
	UpdateIndentStatus(ctx context.Context, id, expectedUnified string, legacy, unified map[string]any) error
	UpdateVendorIndentStatus(ctx context.Context, id, expectedUnified string, legacy, unified map[string]any) error
	UpdateGRNStatus(ctx context.Context, id, expectedUnified string, legacy, unified map[string]any) error
	UpdateInvoiceStatus(ctx context.Context, id, expectedUnified string, legacy, unified map[string]any) error
	UpdatePaymentStatus(ctx context.Context, id, expectedUnified string, legacy, unified map[string]any) error
}

// CascadeMarker persists the payment-cascade progress marker.
type CascadeMarker interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// TransitionObserver counts attempted transitions for metrics.
type TransitionObserver interface {
	ObserveTransition(entity string, valid bool)
}

// Service orchestrates the indent-to-payment chain.
type Service struct {
	repo      RepositoryPort
	projector *workflow.Projector
	audit     shared.AuditWriter
	cascade   CascadeMarker
	metrics   TransitionObserver
	logger    *slog.Logger
}

// NewService constructs the indent service. Audit, cascade marker, and
// metrics are optional.
func NewService(repo RepositoryPort, projector *workflow.Projector, audit shared.AuditWriter, cascade CascadeMarker, metrics TransitionObserver, logger *slog.Logger) *Service {
	if projector == nil {
		projector = workflow.NewProjector()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, projector: projector, audit: audit, cascade: cascade, metrics: metrics, logger: logger}
}

// CreateIndent persists a new indent header in its initial state.
func (s *Service) CreateIndent(ctx context.Context, input CreateIndentRequest) (IndentHeader, error) {
	initial, _ := workflow.InitialStatus(workflow.EntityIndent)
	label, _ := workflow.LegacyLabel(workflow.EntityIndent, initial)
	header := IndentHeader{
		ClientIndentNumber: input.ClientIndentNumber,
		CompanyID:          input.CompanyID,
		SiteID:             input.SiteID,
		LegacyStatus:       label,
		UnifiedStatus:      initial,
		CreatedBy:          input.CreatedBy,
		CreatorRole:        input.CreatorRole,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateIndent(ctx, header)
		if err != nil {
			return err
		}
		header.ID = id
		return nil
	})
	if err != nil {
		return IndentHeader{}, err
	}
	return header, nil
}

// GetIndent loads one indent header.
func (s *Service) GetIndent(ctx context.Context, id string) (IndentHeader, error) {
	return s.repo.GetIndent(ctx, id)
}

// ListIndents returns a page of indent headers.
func (s *Service) ListIndents(ctx context.Context, limit, offset int) ([]IndentHeader, int, error) {
	return s.repo.ListIndents(ctx, limit, offset)
}

// ListVendorIndents returns the vendor slices of an indent.
func (s *Service) ListVendorIndents(ctx context.Context, indentID string) ([]VendorIndent, error) {
	if _, err := s.repo.GetIndent(ctx, indentID); err != nil {
		return nil, err
	}
	return s.repo.ListVendorIndentsByIndent(ctx, indentID)
}

// AddVendorIndent adds a vendor slice to an existing indent.
func (s *Service) AddVendorIndent(ctx context.Context, indentID string, input CreateVendorIndentRequest) (VendorIndent, error) {
	header, err := s.repo.GetIndent(ctx, indentID)
	if err != nil {
		return VendorIndent{}, err
	}
	if header.UnifiedStatus == workflow.IndentClosed || header.UnifiedStatus == workflow.IndentCancelled {
		return VendorIndent{}, fmt.Errorf("indent: indent %s is %s: %w", indentID, header.UnifiedStatus, httpx.ErrInvalidState)
	}
	initial, _ := workflow.InitialStatus(workflow.EntityVendorIndent)
	label, _ := workflow.LegacyLabel(workflow.EntityVendorIndent, initial)
	vi := VendorIndent{
		IndentID:      indentID,
		VendorID:      input.VendorID,
		TotalItems:    input.TotalItems,
		TotalQuantity: input.TotalQuantity,
		TotalAmount:   input.TotalAmount,
		LegacyStatus:  label,
		UnifiedStatus: initial,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateVendorIndent(ctx, vi)
		if err != nil {
			return err
		}
		vi.ID = id
		return nil
	})
	if err != nil {
		return VendorIndent{}, err
	}
	return vi, nil
}

// GetGRN loads one goods receipt note.
func (s *Service) GetGRN(ctx context.Context, id string) (GoodsReceiptNote, error) {
	return s.repo.GetGRN(ctx, id)
}

// GetInvoice loads one invoice with its lines.
func (s *Service) GetInvoice(ctx context.Context, id string) (VendorInvoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// CreateGRN creates a draft goods receipt note against a vendor indent.
func (s *Service) CreateGRN(ctx context.Context, input CreateGRNRequest) (GoodsReceiptNote, error) {
	vi, err := s.repo.GetVendorIndent(ctx, input.VendorIndentID)
	if err != nil {
		return GoodsReceiptNote{}, err
	}
	initial, _ := workflow.InitialStatus(workflow.EntityGRN)
	label, _ := workflow.LegacyLabel(workflow.EntityGRN, initial)
	grn := GoodsReceiptNote{
		VendorIndentID: vi.ID,
		VendorID:       vi.VendorID,
		GRNNumber:      input.GRNNumber,
		GRNDate:        input.GRNDate,
		LegacyStatus:   label,
		UnifiedStatus:  initial,
		Remarks:        input.Remarks,
	}
	if grn.GRNNumber == "" {
		grn.GRNNumber = generateNumber("GRN")
	}
	if grn.GRNDate.IsZero() {
		grn.GRNDate = time.Now()
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateGRN(ctx, grn)
		if err != nil {
			return err
		}
		grn.ID = id
		return nil
	})
	if err != nil {
		return GoodsReceiptNote{}, err
	}
	return grn, nil
}

// SubmitGRN moves the GRN to SUBMITTED and advances the vendor indent and
// the indent header in step.
func (s *Service) SubmitGRN(ctx context.Context, grnID, actor string) (GoodsReceiptNote, error) {
	grn, err := s.repo.GetGRN(ctx, grnID)
	if err != nil {
		return GoodsReceiptNote{}, err
	}
	tc := workflow.TransitionContext{UpdatedBy: actor, Reason: "GRN submitted", Source: "api", Metadata: map[string]any{"grn_number": grn.GRNNumber}}

	newLabel, err := s.applyTransition(ctx, workflow.EntityGRN, grn.ID, grn.LegacyStatus, grn.UnifiedStatus, workflow.GRNSubmitted, tc, txGRNWriter)
	if err != nil {
		return GoodsReceiptNote{}, err
	}
	grn.LegacyStatus = newLabel
	grn.UnifiedStatus = workflow.GRNSubmitted

	vi, err := s.repo.GetVendorIndent(ctx, grn.VendorIndentID)
	if err != nil {
		return GoodsReceiptNote{}, err
	}
	if err := s.ensureVendorIndentStatus(ctx, vi, workflow.VendorIndentGRNSubmitted, tc); err != nil {
		return GoodsReceiptNote{}, err
	}

	header, err := s.repo.GetIndent(ctx, vi.IndentID)
	if err != nil {
		return GoodsReceiptNote{}, err
	}
	if err := s.ensureIndentStatus(ctx, header, workflow.IndentInProgress, tc); err != nil {
		return GoodsReceiptNote{}, err
	}
	return grn, nil
}

// ApproveGRN records the company-admin approval of a submitted GRN.
func (s *Service) ApproveGRN(ctx context.Context, grnID, actor string) (GoodsReceiptNote, error) {
	return s.transitionGRN(ctx, grnID, workflow.GRNApproved, workflow.TransitionContext{UpdatedBy: actor, Reason: "GRN approved", Source: "api"})
}

// RejectGRN marks a GRN rejected.
func (s *Service) RejectGRN(ctx context.Context, grnID, actor string) (GoodsReceiptNote, error) {
	return s.transitionGRN(ctx, grnID, workflow.GRNRejected, workflow.TransitionContext{UpdatedBy: actor, Reason: "GRN rejected", Source: "api"})
}

func (s *Service) transitionGRN(ctx context.Context, grnID, target string, tc workflow.TransitionContext) (GoodsReceiptNote, error) {
	grn, err := s.repo.GetGRN(ctx, grnID)
	if err != nil {
		return GoodsReceiptNote{}, err
	}
	newLabel, err := s.applyTransition(ctx, workflow.EntityGRN, grn.ID, grn.LegacyStatus, grn.UnifiedStatus, target, tc, txGRNWriter)
	if err != nil {
		return GoodsReceiptNote{}, err
	}
	grn.LegacyStatus = newLabel
	grn.UnifiedStatus = target
	return grn, nil
}

// RaiseInvoiceFromGRN creates and raises the one invoice for an approved
// GRN. A second invoice for the same GRN is rejected.
func (s *Service) RaiseInvoiceFromGRN(ctx context.Context, grnID string, input RaiseInvoiceRequest) (VendorInvoice, error) {
	grn, err := s.repo.GetGRN(ctx, grnID)
	if err != nil {
		return VendorInvoice{}, err
	}
	if grn.UnifiedStatus != workflow.GRNApproved {
		return VendorInvoice{}, fmt.Errorf("indent: GRN %s is %s, not approved: %w", grnID, grn.UnifiedStatus, httpx.ErrInvalidState)
	}
	if _, err := s.repo.GetInvoiceByGRN(ctx, grnID); err == nil {
		return VendorInvoice{}, fmt.Errorf("indent: GRN %s already invoiced: %w", grnID, httpx.ErrDuplicate)
	} else if !errors.Is(err, httpx.ErrNotFound) {
		return VendorInvoice{}, err
	}

	initial, _ := workflow.InitialStatus(workflow.EntityInvoice)
	label, _ := workflow.LegacyLabel(workflow.EntityInvoice, initial)
	inv := VendorInvoice{
		GRNID:          grnID,
		VendorIndentID: grn.VendorIndentID,
		VendorID:       grn.VendorID,
		InvoiceNumber:  input.InvoiceNumber,
		InvoiceDate:    input.InvoiceDate,
		LegacyStatus:   label,
		UnifiedStatus:  initial,
		Remarks:        input.Remarks,
	}
	if inv.InvoiceNumber == "" {
		inv.InvoiceNumber = generateNumber("INV")
	}
	if inv.InvoiceDate.IsZero() {
		inv.InvoiceDate = time.Now()
	}
	for _, line := range input.Lines {
		total := float64(line.Quantity) * line.UnitPrice
		inv.Lines = append(inv.Lines, InvoiceLine{
			ProductID: line.ProductID,
			Size:      line.Size,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: total,
		})
		inv.TotalAmount += total
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreateInvoice(ctx, inv)
		if err != nil {
			return err
		}
		inv.ID = id
		return nil
	})
	if err != nil {
		return VendorInvoice{}, err
	}

	tc := workflow.TransitionContext{UpdatedBy: input.Actor, Reason: "invoice raised from GRN", Source: "api", Metadata: map[string]any{"grn_id": grnID}}
	newLabel, err := s.applyTransition(ctx, workflow.EntityInvoice, inv.ID, inv.LegacyStatus, inv.UnifiedStatus, workflow.InvoiceRaised, tc, txInvoiceWriter)
	if err != nil {
		return VendorInvoice{}, err
	}
	inv.LegacyStatus = newLabel
	inv.UnifiedStatus = workflow.InvoiceRaised
	return inv, nil
}

// ApproveInvoice records the company-admin approval of a raised invoice.
func (s *Service) ApproveInvoice(ctx context.Context, invoiceID, actor string) (VendorInvoice, error) {
	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return VendorInvoice{}, err
	}
	tc := workflow.TransitionContext{UpdatedBy: actor, Reason: "invoice approved", Source: "api"}
	newLabel, err := s.applyTransition(ctx, workflow.EntityInvoice, inv.ID, inv.LegacyStatus, inv.UnifiedStatus, workflow.InvoiceApproved, tc, txInvoiceWriter)
	if err != nil {
		return VendorInvoice{}, err
	}
	inv.LegacyStatus = newLabel
	inv.UnifiedStatus = workflow.InvoiceApproved
	return inv, nil
}

// CreatePayment registers a pending payment against an approved invoice.
func (s *Service) CreatePayment(ctx context.Context, invoiceID string, input CreatePaymentRequest) (Payment, error) {
	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return Payment{}, err
	}
	if inv.UnifiedStatus != workflow.InvoiceApproved {
		return Payment{}, fmt.Errorf("indent: invoice %s is %s, not approved: %w", invoiceID, inv.UnifiedStatus, httpx.ErrInvalidState)
	}
	initial, _ := workflow.InitialStatus(workflow.EntityPayment)
	label, _ := workflow.LegacyLabel(workflow.EntityPayment, initial)
	payment := Payment{
		InvoiceID:        invoiceID,
		VendorID:         inv.VendorID,
		PaymentReference: input.PaymentReference,
		PaymentDate:      input.PaymentDate,
		AmountPaid:       input.AmountPaid,
		LegacyStatus:     label,
		UnifiedStatus:    initial,
	}
	if payment.PaymentDate.IsZero() {
		payment.PaymentDate = time.Now()
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.CreatePayment(ctx, payment)
		if err != nil {
			return err
		}
		payment.ID = id
		return nil
	})
	if err != nil {
		return Payment{}, err
	}
	return payment, nil
}

// CompletePayment runs the settlement cascade: payment COMPLETED, invoice
// PAID, vendor indent PAID, then the indent closure gate. Each step is a
// separate write; a failure partway surfaces ErrInconsistentChain so the
// caller knows the chain needs a retry, and every step tolerates
// re-application.
func (s *Service) CompletePayment(ctx context.Context, paymentID, actor string) error {
	payment, err := s.repo.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	inv, err := s.repo.GetInvoice(ctx, payment.InvoiceID)
	if err != nil {
		return err
	}
	vi, err := s.repo.GetVendorIndent(ctx, inv.VendorIndentID)
	if err != nil {
		return err
	}

	cascadeKey := fmt.Sprintf("PAYMENT:%s:complete", paymentID)
	marked := false
	if s.cascade != nil {
		if err := s.cascade.CheckAndInsert(ctx, cascadeKey, "indent.payment"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return nil
			}
			return err
		}
		marked = true
	}
	release := func(cause error) error {
		if marked {
			if delErr := s.cascade.Delete(ctx, cascadeKey); delErr != nil {
				s.logger.Warn("release cascade marker", slog.Any("error", delErr))
			}
		}
		return cause
	}

	tc := workflow.TransitionContext{UpdatedBy: actor, Reason: "payment completed", Source: "api", Metadata: map[string]any{"payment_reference": payment.PaymentReference}}

	applied := 0
	step := func(cause error) error {
		if applied == 0 {
			return release(cause)
		}
		return release(fmt.Errorf("%w: %w", ErrInconsistentChain, cause))
	}

	if payment.UnifiedStatus != workflow.PaymentCompleted {
		if _, err := s.applyTransition(ctx, workflow.EntityPayment, payment.ID, payment.LegacyStatus, payment.UnifiedStatus, workflow.PaymentCompleted, tc, txPaymentWriter); err != nil {
			return step(err)
		}
		applied++
	}
	if inv.UnifiedStatus != workflow.InvoicePaid {
		if _, err := s.applyTransition(ctx, workflow.EntityInvoice, inv.ID, inv.LegacyStatus, inv.UnifiedStatus, workflow.InvoicePaid, tc, txInvoiceWriter); err != nil {
			return step(err)
		}
		applied++
	}
	if vi.UnifiedStatus != workflow.VendorIndentPaid {
		if err := s.ensureVendorIndentStatus(ctx, vi, workflow.VendorIndentPaid, tc); err != nil {
			return step(err)
		}
		applied++
	}

	if _, err := s.CheckAndCloseIndent(ctx, vi.ID); err != nil {
		return step(err)
	}
	return nil
}

// CheckAndCloseIndent closes the parent indent when every vendor indent is
// paid and every linked suborder is delivered. Both gates must hold at the
// same time; the check-then-set is idempotent and safe to call repeatedly.
func (s *Service) CheckAndCloseIndent(ctx context.Context, vendorIndentID string) (bool, error) {
	vi, err := s.repo.GetVendorIndent(ctx, vendorIndentID)
	if err != nil {
		return false, err
	}
	siblings, err := s.repo.ListVendorIndentsByIndent(ctx, vi.IndentID)
	if err != nil {
		return false, err
	}
	ids := make([]string, 0, len(siblings))
	for _, sibling := range siblings {
		if sibling.UnifiedStatus != workflow.VendorIndentPaid {
			return false, nil
		}
		ids = append(ids, sibling.ID)
	}

	suborders, err := s.repo.ListSuborderStatuses(ctx, ids)
	if err != nil {
		return false, err
	}
	for _, sub := range suborders {
		if sub.Effective() != workflow.SuborderDelivered {
			return false, nil
		}
	}

	header, err := s.repo.GetIndent(ctx, vi.IndentID)
	if err != nil {
		return false, err
	}
	if header.UnifiedStatus == workflow.IndentClosed {
		return true, nil
	}
	tc := workflow.TransitionContext{UpdatedBy: "system", Reason: "all vendor indents paid and suborders delivered", Source: "closure-gate"}
	if err := s.ensureIndentStatus(ctx, header, workflow.IndentClosed, tc); err != nil {
		return false, err
	}
	return true, nil
}

// statusWriter is the per-entity conditional-update hook used by
// applyTransition.
type statusWriter func(ctx context.Context, tx TxRepository, id, expectedUnified string, legacy, unified map[string]any) error

func txGRNWriter(ctx context.Context, tx TxRepository, id, expected string, legacy, unified map[string]any) error {
	return tx.UpdateGRNStatus(ctx, id, expected, legacy, unified)
}

func txInvoiceWriter(ctx context.Context, tx TxRepository, id, expected string, legacy, unified map[string]any) error {
	return tx.UpdateInvoiceStatus(ctx, id, expected, legacy, unified)
}

func txPaymentWriter(ctx context.Context, tx TxRepository, id, expected string, legacy, unified map[string]any) error {
	return tx.UpdatePaymentStatus(ctx, id, expected, legacy, unified)
}

func txVendorIndentWriter(ctx context.Context, tx TxRepository, id, expected string, legacy, unified map[string]any) error {
	return tx.UpdateVendorIndentStatus(ctx, id, expected, legacy, unified)
}

func txIndentWriter(ctx context.Context, tx TxRepository, id, expected string, legacy, unified map[string]any) error {
	return tx.UpdateIndentStatus(ctx, id, expected, legacy, unified)
}

// applyTransition projects one transition, persists both field sets, and
// records the audit entry. It returns the new legacy label.
func (s *Service) applyTransition(ctx context.Context, entity workflow.EntityType, id, curLegacy, curUnified, target string, tc workflow.TransitionContext, write statusWriter) (string, error) {
	res := s.projector.SafeDualWriteStatus(entity, id, target, curLegacy, curUnified, tc)
	if s.metrics != nil {
		s.metrics.ObserveTransition(string(entity), res.Validation.Valid)
	}
	if !res.Validation.Valid {
		return "", fmt.Errorf("indent: %s: %w", res.Validation.Reason, httpx.ErrInvalidState)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return write(ctx, tx, id, curUnified, res.LegacyUpdate, res.UnifiedUpdate)
	})
	if err != nil {
		return "", err
	}
	s.recordAudit(ctx, res.AuditLog)
	label, _ := workflow.LegacyLabel(entity, target)
	return label, nil
}

// ensureVendorIndentStatus advances a vendor indent along its chain until it
// reaches the target, skipping when it is already there or past it.
func (s *Service) ensureVendorIndentStatus(ctx context.Context, vi VendorIndent, target string, tc workflow.TransitionContext) error {
	return s.ensureChainStatus(ctx, workflow.EntityVendorIndent, vi.ID, vi.LegacyStatus, vi.UnifiedStatus, target, tc, txVendorIndentWriter)
}

// ensureIndentStatus is the indent-header counterpart.
func (s *Service) ensureIndentStatus(ctx context.Context, header IndentHeader, target string, tc workflow.TransitionContext) error {
	return s.ensureChainStatus(ctx, workflow.EntityIndent, header.ID, header.LegacyStatus, header.UnifiedStatus, target, tc, txIndentWriter)
}

func (s *Service) ensureChainStatus(ctx context.Context, entity workflow.EntityType, id, curLegacy, curUnified, target string, tc workflow.TransitionContext, write statusWriter) error {
	if curUnified == target {
		return nil
	}
	path := workflow.PathBetween(entity, curUnified, target)
	if len(path) == 0 {
		// Already past the target or on a side branch; nothing to do.
		return nil
	}
	legacy := curLegacy
	unified := curUnified
	for _, stepStatus := range path {
		newLabel, err := s.applyTransition(ctx, entity, id, legacy, unified, stepStatus, tc, write)
		if err != nil {
			return err
		}
		legacy = newLabel
		unified = stepStatus
	}
	return nil
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
