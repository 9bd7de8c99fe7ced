package indent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/agrawalpuran/uds-refresh-sub018/internal/platform/httpx"
	"github.com/agrawalpuran/uds-refresh-sub018/internal/shared"
	"github.com/agrawalpuran/uds-refresh-sub018/internal/workflow"
)

type memoryChainRepo struct {
	indents       map[string]IndentHeader
	vendorIndents map[string]VendorIndent
	grns          map[string]GoodsReceiptNote
	invoices      map[string]VendorInvoice
	payments      map[string]Payment
	suborders     map[string][]SuborderStatus

	failInvoiceUpdate bool
	nextID            int
}

type memoryChainTx struct {
	repo *memoryChainRepo
}

func newMemoryChainRepo() *memoryChainRepo {
	return &memoryChainRepo{
		indents:       make(map[string]IndentHeader),
		vendorIndents: make(map[string]VendorIndent),
		grns:          make(map[string]GoodsReceiptNote),
		invoices:      make(map[string]VendorInvoice),
		payments:      make(map[string]Payment),
		suborders:     make(map[string][]SuborderStatus),
	}
}

func (r *memoryChainRepo) id(prefix string) string {
	r.nextID++
	return fmt.Sprintf("%s-%d", prefix, r.nextID)
}

func (r *memoryChainRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryChainTx{repo: r})
}

func (r *memoryChainRepo) GetIndent(ctx context.Context, id string) (IndentHeader, error) {
	h, ok := r.indents[id]
	if !ok {
		return IndentHeader{}, fmt.Errorf("indent: indent %s: %w", id, httpx.ErrNotFound)
	}
	return h, nil
}

func (r *memoryChainRepo) ListIndents(ctx context.Context, limit, offset int) ([]IndentHeader, int, error) {
	items := make([]IndentHeader, 0, len(r.indents))
	for _, h := range r.indents {
		items = append(items, h)
	}
	return items, len(items), nil
}

func (r *memoryChainRepo) GetVendorIndent(ctx context.Context, id string) (VendorIndent, error) {
	v, ok := r.vendorIndents[id]
	if !ok {
		return VendorIndent{}, fmt.Errorf("indent: vendor indent %s: %w", id, httpx.ErrNotFound)
	}
	return v, nil
}

func (r *memoryChainRepo) ListVendorIndentsByIndent(ctx context.Context, indentID string) ([]VendorIndent, error) {
	var items []VendorIndent
	for _, v := range r.vendorIndents {
		if v.IndentID == indentID {
			items = append(items, v)
		}
	}
	return items, nil
}

func (r *memoryChainRepo) GetGRN(ctx context.Context, id string) (GoodsReceiptNote, error) {
	g, ok := r.grns[id]
	if !ok {
		return GoodsReceiptNote{}, fmt.Errorf("indent: GRN %s: %w", id, httpx.ErrNotFound)
	}
	return g, nil
}

func (r *memoryChainRepo) GetInvoice(ctx context.Context, id string) (VendorInvoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return VendorInvoice{}, fmt.Errorf("indent: invoice %s: %w", id, httpx.ErrNotFound)
	}
	return inv, nil
}

func (r *memoryChainRepo) GetInvoiceByGRN(ctx context.Context, grnID string) (VendorInvoice, error) {
	for _, inv := range r.invoices {
		if inv.GRNID == grnID {
			return inv, nil
		}
	}
	return VendorInvoice{}, fmt.Errorf("indent: invoice by grn_id %s: %w", grnID, httpx.ErrNotFound)
}

func (r *memoryChainRepo) GetPayment(ctx context.Context, id string) (Payment, error) {
	p, ok := r.payments[id]
	if !ok {
		return Payment{}, fmt.Errorf("indent: payment %s: %w", id, httpx.ErrNotFound)
	}
	return p, nil
}

func (r *memoryChainRepo) ListSuborderStatuses(ctx context.Context, vendorIndentIDs []string) ([]SuborderStatus, error) {
	var items []SuborderStatus
	for _, id := range vendorIndentIDs {
		items = append(items, r.suborders[id]...)
	}
	return items, nil
}

func (tx *memoryChainTx) CreateIndent(ctx context.Context, header IndentHeader) (string, error) {
	id := tx.repo.id("ind")
	header.ID = id
	tx.repo.indents[id] = header
	return id, nil
}

func (tx *memoryChainTx) CreateVendorIndent(ctx context.Context, vi VendorIndent) (string, error) {
	for _, existing := range tx.repo.vendorIndents {
		if existing.IndentID == vi.IndentID && existing.VendorID == vi.VendorID {
			return "", fmt.Errorf("indent: vendor indent exists: %w", httpx.ErrDuplicate)
		}
	}
	id := tx.repo.id("vi")
	vi.ID = id
	tx.repo.vendorIndents[id] = vi
	return id, nil
}

func (tx *memoryChainTx) CreateGRN(ctx context.Context, grn GoodsReceiptNote) (string, error) {
	id := tx.repo.id("grn")
	grn.ID = id
	tx.repo.grns[id] = grn
	return id, nil
}

func (tx *memoryChainTx) CreateInvoice(ctx context.Context, inv VendorInvoice) (string, error) {
	for _, existing := range tx.repo.invoices {
		if existing.GRNID == inv.GRNID {
			return "", fmt.Errorf("indent: GRN %s already invoiced: %w", inv.GRNID, httpx.ErrDuplicate)
		}
	}
	id := tx.repo.id("inv")
	inv.ID = id
	tx.repo.invoices[id] = inv
	return id, nil
}

func (tx *memoryChainTx) CreatePayment(ctx context.Context, p Payment) (string, error) {
	id := tx.repo.id("pay")
	p.ID = id
	tx.repo.payments[id] = p
	return id, nil
}

func applyFields(legacyStatus, unifiedStatus *string, legacy, unified map[string]any) {
	if v, ok := legacy["status"]; ok {
		*legacyStatus = v.(string)
	}
	if v, ok := unified["unified_status"]; ok {
		*unifiedStatus = v.(string)
	}
}

func (tx *memoryChainTx) UpdateIndentStatus(ctx context.Context, id, expected string, legacy, unified map[string]any) error {
	h, ok := tx.repo.indents[id]
	if !ok {
		return fmt.Errorf("indent: indent %s: %w", id, httpx.ErrNotFound)
	}
	if h.UnifiedStatus != expected {
		return fmt.Errorf("indent: indents row %s changed concurrently: %w", id, httpx.ErrInvalidState)
	}
	applyFields(&h.LegacyStatus, &h.UnifiedStatus, legacy, unified)
	tx.repo.indents[id] = h
	return nil
}

func (tx *memoryChainTx) UpdateVendorIndentStatus(ctx context.Context, id, expected string, legacy, unified map[string]any) error {
	v, ok := tx.repo.vendorIndents[id]
	if !ok {
		return fmt.Errorf("indent: vendor indent %s: %w", id, httpx.ErrNotFound)
	}
	if v.UnifiedStatus != expected {
		return fmt.Errorf("indent: vendor_indents row %s changed concurrently: %w", id, httpx.ErrInvalidState)
	}
	applyFields(&v.LegacyStatus, &v.UnifiedStatus, legacy, unified)
	tx.repo.vendorIndents[id] = v
	return nil
}

func (tx *memoryChainTx) UpdateGRNStatus(ctx context.Context, id, expected string, legacy, unified map[string]any) error {
	g, ok := tx.repo.grns[id]
	if !ok {
		return fmt.Errorf("indent: GRN %s: %w", id, httpx.ErrNotFound)
	}
	if g.UnifiedStatus != expected {
		return fmt.Errorf("indent: goods_receipt_notes row %s changed concurrently: %w", id, httpx.ErrInvalidState)
	}
	applyFields(&g.LegacyStatus, &g.UnifiedStatus, legacy, unified)
	tx.repo.grns[id] = g
	return nil
}

func (tx *memoryChainTx) UpdateInvoiceStatus(ctx context.Context, id, expected string, legacy, unified map[string]any) error {
	if tx.repo.failInvoiceUpdate {
		return errors.New("indent: storage unavailable")
	}
	inv, ok := tx.repo.invoices[id]
	if !ok {
		return fmt.Errorf("indent: invoice %s: %w", id, httpx.ErrNotFound)
	}
	if inv.UnifiedStatus != expected {
		return fmt.Errorf("indent: vendor_invoices row %s changed concurrently: %w", id, httpx.ErrInvalidState)
	}
	applyFields(&inv.LegacyStatus, &inv.UnifiedStatus, legacy, unified)
	tx.repo.invoices[id] = inv
	return nil
}

func (tx *memoryChainTx) UpdatePaymentStatus(ctx context.Context, id, expected string, legacy, unified map[string]any) error {
	p, ok := tx.repo.payments[id]
	if !ok {
		return fmt.Errorf("indent: payment %s: %w", id, httpx.ErrNotFound)
	}
	if p.UnifiedStatus != expected {
		return fmt.Errorf("indent: vendor_payments row %s changed concurrently: %w", id, httpx.ErrInvalidState)
	}
	applyFields(&p.LegacyStatus, &p.UnifiedStatus, legacy, unified)
	tx.repo.payments[id] = p
	return nil
}

type memoryMarker struct {
	keys map[string]bool
}

func newMemoryMarker() *memoryMarker {
	return &memoryMarker{keys: make(map[string]bool)}
}

func (m *memoryMarker) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryMarker) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

type captureAudit struct {
	entries []workflow.AuditEntry
}

func (c *captureAudit) Record(ctx context.Context, entry workflow.AuditEntry) error {
	c.entries = append(c.entries, entry)
	return nil
}

func newChainService(t *testing.T, repo *memoryChainRepo, marker CascadeMarker) (*Service, *captureAudit) {
	t.Helper()
	audit := &captureAudit{}
	projector := workflow.NewProjectorAt(func() time.Time {
		return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	})
	return NewService(repo, projector, audit, marker, nil, nil), audit
}

// settledVendorIndent drives one vendor slice through GRN, invoice, and
// payment creation, returning the pending payment id.
func settledVendorIndent(t *testing.T, svc *Service, viID string) string {
	t.Helper()
	ctx := context.Background()

	grn, err := svc.CreateGRN(ctx, CreateGRNRequest{VendorIndentID: viID})
	require.NoError(t, err)
	_, err = svc.SubmitGRN(ctx, grn.ID, "vendor-user")
	require.NoError(t, err)
	_, err = svc.ApproveGRN(ctx, grn.ID, "company-admin")
	require.NoError(t, err)

	inv, err := svc.RaiseInvoiceFromGRN(ctx, grn.ID, RaiseInvoiceRequest{
		Actor: "vendor-user",
		Lines: []InvoiceLineInput{{ProductID: "prod-shirt", Quantity: 10, UnitPrice: 250}},
	})
	require.NoError(t, err)
	_, err = svc.ApproveInvoice(ctx, inv.ID, "company-admin")
	require.NoError(t, err)

	payment, err := svc.CreatePayment(ctx, inv.ID, CreatePaymentRequest{
		PaymentReference: "UTR-" + viID,
		AmountPaid:       2500,
		Actor:            "company-admin",
	})
	require.NoError(t, err)
	return payment.ID
}

func seedIndent(t *testing.T, svc *Service, repo *memoryChainRepo, vendorCount int) (IndentHeader, []VendorIndent) {
	t.Helper()
	ctx := context.Background()
	header, err := svc.CreateIndent(ctx, CreateIndentRequest{
		ClientIndentNumber: "CIN-2026-001",
		CompanyID:          "company-1",
		SiteID:             "site-1",
		CreatedBy:          "site-admin",
		CreatorRole:        "SITE_ADMIN",
	})
	require.NoError(t, err)

	var slices []VendorIndent
	for i := 0; i < vendorCount; i++ {
		vi, err := svc.AddVendorIndent(ctx, header.ID, CreateVendorIndentRequest{
			VendorID:      fmt.Sprintf("vendor-%d", i+1),
			TotalItems:    1,
			TotalQuantity: 10,
			TotalAmount:   2500,
		})
		require.NoError(t, err)
		slices = append(slices, vi)
	}
	return header, slices
}

func TestSubmitGRNAdvancesChain(t *testing.T) {
	repo := newMemoryChainRepo()
	svc, _ := newChainService(t, repo, nil)
	ctx := context.Background()

	_, slices := seedIndent(t, svc, repo, 1)
	grn, err := svc.CreateGRN(ctx, CreateGRNRequest{VendorIndentID: slices[0].ID})
	require.NoError(t, err)
	require.Equal(t, workflow.GRNDraft, grn.UnifiedStatus)

	grn, err = svc.SubmitGRN(ctx, grn.ID, "vendor-user")
	require.NoError(t, err)
	require.Equal(t, workflow.GRNSubmitted, grn.UnifiedStatus)

	vi, err := repo.GetVendorIndent(ctx, slices[0].ID)
	require.NoError(t, err)
	require.Equal(t, workflow.VendorIndentGRNSubmitted, vi.UnifiedStatus)

	header, err := repo.GetIndent(ctx, vi.IndentID)
	require.NoError(t, err)
	require.Equal(t, workflow.IndentInProgress, header.UnifiedStatus)
}

func TestApproveGRNRequiresSubmission(t *testing.T) {
	repo := newMemoryChainRepo()
	svc, _ := newChainService(t, repo, nil)
	ctx := context.Background()

	_, slices := seedIndent(t, svc, repo, 1)
	grn, err := svc.CreateGRN(ctx, CreateGRNRequest{VendorIndentID: slices[0].ID})
	require.NoError(t, err)

	_, err = svc.ApproveGRN(ctx, grn.ID, "company-admin")
	require.ErrorIs(t, err, httpx.ErrInvalidState)
}

func TestRaiseInvoiceRequiresApprovedGRN(t *testing.T) {
	repo := newMemoryChainRepo()
	svc, _ := newChainService(t, repo, nil)
	ctx := context.Background()

	_, slices := seedIndent(t, svc, repo, 1)
	grn, err := svc.CreateGRN(ctx, CreateGRNRequest{VendorIndentID: slices[0].ID})
	require.NoError(t, err)
	_, err = svc.SubmitGRN(ctx, grn.ID, "vendor-user")
	require.NoError(t, err)

	_, err = svc.RaiseInvoiceFromGRN(ctx, grn.ID, RaiseInvoiceRequest{
		Actor: "vendor-user",
		Lines: []InvoiceLineInput{{ProductID: "prod-shirt", Quantity: 1, UnitPrice: 100}},
	})
	require.ErrorIs(t, err, httpx.ErrInvalidState)
}

func TestRaiseInvoiceComputesLineTotals(t *testing.T) {
	repo := newMemoryChainRepo()
	svc, _ := newChainService(t, repo, nil)
	ctx := context.Background()

	_, slices := seedIndent(t, svc, repo, 1)
	grn, err := svc.CreateGRN(ctx, CreateGRNRequest{VendorIndentID: slices[0].ID})
	require.NoError(t, err)
	_, err = svc.SubmitGRN(ctx, grn.ID, "vendor-user")
	require.NoError(t, err)
	_, err = svc.ApproveGRN(ctx, grn.ID, "company-admin")
	require.NoError(t, err)

	inv, err := svc.RaiseInvoiceFromGRN(ctx, grn.ID, RaiseInvoiceRequest{
		Actor: "vendor-user",
		Lines: []InvoiceLineInput{
			{ProductID: "prod-shirt", Quantity: 10, UnitPrice: 250},
			{ProductID: "prod-trouser", Quantity: 4, UnitPrice: 600},
		},
	})
	require.NoError(t, err)
	require.Equal(t, workflow.InvoiceRaised, inv.UnifiedStatus)
	require.Equal(t, 2500.0, inv.Lines[0].LineTotal)
	require.Equal(t, 2400.0, inv.Lines[1].LineTotal)
	require.Equal(t, 4900.0, inv.TotalAmount)
}

func TestOneInvoicePerGRN(t *testing.T) {
	repo := newMemoryChainRepo()
	svc, _ := newChainService(t, repo, nil)
	ctx := context.Background()

	_, slices := seedIndent(t, svc, repo, 1)
	grn, err := svc.CreateGRN(ctx, CreateGRNRequest{VendorIndentID: slices[0].ID})
	require.NoError(t, err)
	_, err = svc.SubmitGRN(ctx, grn.ID, "vendor-user")
	require.NoError(t, err)
	_, err = svc.ApproveGRN(ctx, grn.ID, "company-admin")
	require.NoError(t, err)

	lines := []InvoiceLineInput{{ProductID: "prod-shirt", Quantity: 1, UnitPrice: 100}}
	_, err = svc.RaiseInvoiceFromGRN(ctx, grn.ID, RaiseInvoiceRequest{Actor: "vendor-user", Lines: lines})
	require.NoError(t, err)

	_, err = svc.RaiseInvoiceFromGRN(ctx, grn.ID, RaiseInvoiceRequest{Actor: "vendor-user", Lines: lines})
	require.ErrorIs(t, err, httpx.ErrDuplicate)
}

func TestCreatePaymentRequiresApprovedInvoice(t *testing.T) {
	repo := newMemoryChainRepo()
	svc, _ := newChainService(t, repo, nil)
	ctx := context.Background()

	_, slices := seedIndent(t, svc, repo, 1)
	grn, err := svc.CreateGRN(ctx, CreateGRNRequest{VendorIndentID: slices[0].ID})
	require.NoError(t, err)
	_, err = svc.SubmitGRN(ctx, grn.ID, "vendor-user")
	require.NoError(t, err)
	_, err = svc.ApproveGRN(ctx, grn.ID, "company-admin")
	require.NoError(t, err)
	inv, err := svc.RaiseInvoiceFromGRN(ctx, grn.ID, RaiseInvoiceRequest{
		Actor: "vendor-user",
		Lines: []InvoiceLineInput{{ProductID: "prod-shirt", Quantity: 1, UnitPrice: 100}},
	})
	require.NoError(t, err)

	_, err = svc.CreatePayment(ctx, inv.ID, CreatePaymentRequest{
		PaymentReference: "UTR-1", AmountPaid: 100, Actor: "company-admin",
	})
	require.ErrorIs(t, err, httpx.ErrInvalidState)
}

func TestCompletePaymentCascades(t *testing.T) {
	repo := newMemoryChainRepo()
	svc, audit := newChainService(t, repo, nil)
	ctx := context.Background()

	_, slices := seedIndent(t, svc, repo, 1)
	paymentID := settledVendorIndent(t, svc, slices[0].ID)

	require.NoError(t, svc.CompletePayment(ctx, paymentID, "company-admin"))

	payment, err := repo.GetPayment(ctx, paymentID)
	require.NoError(t, err)
	require.Equal(t, workflow.PaymentCompleted, payment.UnifiedStatus)

	inv, err := repo.GetInvoice(ctx, payment.InvoiceID)
	require.NoError(t, err)
	require.Equal(t, workflow.InvoicePaid, inv.UnifiedStatus)

	vi, err := repo.GetVendorIndent(ctx, slices[0].ID)
	require.NoError(t, err)
	require.Equal(t, workflow.VendorIndentPaid, vi.UnifiedStatus)

	require.NotEmpty(t, audit.entries)
}

func TestClosureGateRequiresAllVendorIndentsPaid(t *testing.T) {
	repo := newMemoryChainRepo()
	svc, _ := newChainService(t, repo, nil)
	ctx := context.Background()

	_, slices := seedIndent(t, svc, repo, 2)
	repo.suborders[slices[0].ID] = []SuborderStatus{{SuborderStatus: workflow.SuborderDelivered}}
	repo.suborders[slices[1].ID] = []SuborderStatus{{SuborderStatus: workflow.SuborderDelivered}}

	firstPayment := settledVendorIndent(t, svc, slices[0].ID)
	require.NoError(t, svc.CompletePayment(ctx, firstPayment, "company-admin"))

	header, err := repo.GetIndent(ctx, slices[0].IndentID)
	require.NoError(t, err)
	require.Equal(t, workflow.IndentInProgress, header.UnifiedStatus)

	secondPayment := settledVendorIndent(t, svc, slices[1].ID)
	require.NoError(t, svc.CompletePayment(ctx, secondPayment, "company-admin"))

	header, err = repo.GetIndent(ctx, slices[0].IndentID)
	require.NoError(t, err)
	require.Equal(t, workflow.IndentClosed, header.UnifiedStatus)
}

func TestClosureGateRequiresDeliveredSuborders(t *testing.T) {
	repo := newMemoryChainRepo()
	svc, _ := newChainService(t, repo, nil)
	ctx := context.Background()

	_, slices := seedIndent(t, svc, repo, 1)
	repo.suborders[slices[0].ID] = []SuborderStatus{{SuborderStatus: workflow.SuborderShipped}}

	paymentID := settledVendorIndent(t, svc, slices[0].ID)
	require.NoError(t, svc.CompletePayment(ctx, paymentID, "company-admin"))

	header, err := repo.GetIndent(ctx, slices[0].IndentID)
	require.NoError(t, err)
	require.Equal(t, workflow.IndentInProgress, header.UnifiedStatus)

	// Delivery lands after payment; the sweep re-checks the gate.
	repo.suborders[slices[0].ID] = []SuborderStatus{{SuborderStatus: workflow.SuborderDelivered}}
	closed, err := svc.CheckAndCloseIndent(ctx, slices[0].ID)
	require.NoError(t, err)
	require.True(t, closed)

	header, err = repo.GetIndent(ctx, slices[0].IndentID)
	require.NoError(t, err)
	require.Equal(t, workflow.IndentClosed, header.UnifiedStatus)
}

func TestCheckAndCloseIndentIsIdempotent(t *testing.T) {
	repo := newMemoryChainRepo()
	svc, _ := newChainService(t, repo, nil)
	ctx := context.Background()

	_, slices := seedIndent(t, svc, repo, 1)
	paymentID := settledVendorIndent(t, svc, slices[0].ID)
	require.NoError(t, svc.CompletePayment(ctx, paymentID, "company-admin"))

	closed, err := svc.CheckAndCloseIndent(ctx, slices[0].ID)
	require.NoError(t, err)
	require.True(t, closed)

	closed, err = svc.CheckAndCloseIndent(ctx, slices[0].ID)
	require.NoError(t, err)
	require.True(t, closed)
}

func TestCompletePaymentIsIdempotentWithMarker(t *testing.T) {
	repo := newMemoryChainRepo()
	marker := newMemoryMarker()
	svc, audit := newChainService(t, repo, marker)
	ctx := context.Background()

	_, slices := seedIndent(t, svc, repo, 1)
	paymentID := settledVendorIndent(t, svc, slices[0].ID)

	require.NoError(t, svc.CompletePayment(ctx, paymentID, "company-admin"))
	recorded := len(audit.entries)

	require.NoError(t, svc.CompletePayment(ctx, paymentID, "company-admin"))
	require.Len(t, audit.entries, recorded)
}

func TestCompletePaymentPartialFailureSurfacesInconsistentChain(t *testing.T) {
	repo := newMemoryChainRepo()
	marker := newMemoryMarker()
	svc, _ := newChainService(t, repo, marker)
	ctx := context.Background()

	_, slices := seedIndent(t, svc, repo, 1)
	paymentID := settledVendorIndent(t, svc, slices[0].ID)

	repo.failInvoiceUpdate = true
	err := svc.CompletePayment(ctx, paymentID, "company-admin")
	require.ErrorIs(t, err, ErrInconsistentChain)

	payment, getErr := repo.GetPayment(ctx, paymentID)
	require.NoError(t, getErr)
	require.Equal(t, workflow.PaymentCompleted, payment.UnifiedStatus)
	inv, getErr := repo.GetInvoice(ctx, payment.InvoiceID)
	require.NoError(t, getErr)
	require.Equal(t, workflow.InvoiceApproved, inv.UnifiedStatus)

	// The marker was released; a retry repairs the chain.
	repo.failInvoiceUpdate = false
	require.NoError(t, svc.CompletePayment(ctx, paymentID, "company-admin"))

	inv, getErr = repo.GetInvoice(ctx, payment.InvoiceID)
	require.NoError(t, getErr)
	require.Equal(t, workflow.InvoicePaid, inv.UnifiedStatus)
	vi, getErr := repo.GetVendorIndent(ctx, slices[0].ID)
	require.NoError(t, getErr)
	require.Equal(t, workflow.VendorIndentPaid, vi.UnifiedStatus)
}

func TestAddVendorIndentRejectsClosedIndent(t *testing.T) {
	repo := newMemoryChainRepo()
	svc, _ := newChainService(t, repo, nil)
	ctx := context.Background()

	_, slices := seedIndent(t, svc, repo, 1)
	paymentID := settledVendorIndent(t, svc, slices[0].ID)
	require.NoError(t, svc.CompletePayment(ctx, paymentID, "company-admin"))

	_, err := svc.AddVendorIndent(ctx, slices[0].IndentID, CreateVendorIndentRequest{
		VendorID: "vendor-late", TotalItems: 1, TotalQuantity: 1, TotalAmount: 100,
	})
	require.ErrorIs(t, err, httpx.ErrInvalidState)
}
