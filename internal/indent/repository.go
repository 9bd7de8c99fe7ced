package indent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agrawalpuran/uds-refresh-sub018/internal/platform/db"
	"github.com/agrawalpuran/uds-refresh-sub018/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence for the settlement chain.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps the callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetIndent returns one indent header.
func (r *Repository) GetIndent(ctx context.Context, id string) (IndentHeader, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, client_indent_number, company_id, site_id,
status, unified_status, created_by, creator_role, created_at, updated_at
FROM indents WHERE id = $1`, id)
	var h IndentHeader
	if err := row.Scan(&h.ID, &h.ClientIndentNumber, &h.CompanyID, &h.SiteID,
		&h.LegacyStatus, &h.UnifiedStatus, &h.CreatedBy, &h.CreatorRole,
		&h.CreatedAt, &h.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return IndentHeader{}, fmt.Errorf("indent: indent %s: %w", id, httpx.ErrNotFound)
		}
		return IndentHeader{}, fmt.Errorf("indent: get indent: %w", err)
	}
	return h, nil
}

// ListIndents returns a page plus the total count.
func (r *Repository) ListIndents(ctx context.Context, limit, offset int) ([]IndentHeader, int, error) {
	if limit <= 0 {
		limit = 20
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM indents`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("indent: count indents: %w", err)
	}
	rows, err := r.pool.Query(ctx, `SELECT id, client_indent_number, company_id, site_id,
status, unified_status, created_by, creator_role, created_at, updated_at
FROM indents ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("indent: list indents: %w", err)
	}
	defer rows.Close()

	var items []IndentHeader
	for rows.Next() {
		var h IndentHeader
		if err := rows.Scan(&h.ID, &h.ClientIndentNumber, &h.CompanyID, &h.SiteID,
			&h.LegacyStatus, &h.UnifiedStatus, &h.CreatedBy, &h.CreatorRole,
			&h.CreatedAt, &h.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("indent: scan indent: %w", err)
		}
		items = append(items, h)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("indent: iterate indents: %w", err)
	}
	return items, total, nil
}

// GetVendorIndent returns one vendor indent.
func (r *Repository) GetVendorIndent(ctx context.Context, id string) (VendorIndent, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, indent_id, vendor_id, total_items, total_quantity, total_amount,
status, unified_status, created_at, updated_at
FROM vendor_indents WHERE id = $1`, id)
	var v VendorIndent
	if err := row.Scan(&v.ID, &v.IndentID, &v.VendorID, &v.TotalItems, &v.TotalQuantity, &v.TotalAmount,
		&v.LegacyStatus, &v.UnifiedStatus, &v.CreatedAt, &v.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VendorIndent{}, fmt.Errorf("indent: vendor indent %s: %w", id, httpx.ErrNotFound)
		}
		return VendorIndent{}, fmt.Errorf("indent: get vendor indent: %w", err)
	}
	return v, nil
}

// ListVendorIndentsByIndent returns all vendor slices of an indent.
func (r *Repository) ListVendorIndentsByIndent(ctx context.Context, indentID string) ([]VendorIndent, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, indent_id, vendor_id, total_items, total_quantity, total_amount,
status, unified_status, created_at, updated_at
FROM vendor_indents WHERE indent_id = $1 ORDER BY created_at`, indentID)
	if err != nil {
		return nil, fmt.Errorf("indent: list vendor indents: %w", err)
	}
	defer rows.Close()

	var items []VendorIndent
	for rows.Next() {
		var v VendorIndent
		if err := rows.Scan(&v.ID, &v.IndentID, &v.VendorID, &v.TotalItems, &v.TotalQuantity, &v.TotalAmount,
			&v.LegacyStatus, &v.UnifiedStatus, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, fmt.Errorf("indent: scan vendor indent: %w", err)
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("indent: iterate vendor indents: %w", err)
	}
	return items, nil
}

// GetGRN returns one goods receipt note.
func (r *Repository) GetGRN(ctx context.Context, id string) (GoodsReceiptNote, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, vendor_indent_id, vendor_id, grn_number, grn_date,
status, unified_status, COALESCE(remarks, ''), created_at, updated_at
FROM goods_receipt_notes WHERE id = $1`, id)
	var g GoodsReceiptNote
	if err := row.Scan(&g.ID, &g.VendorIndentID, &g.VendorID, &g.GRNNumber, &g.GRNDate,
		&g.LegacyStatus, &g.UnifiedStatus, &g.Remarks, &g.CreatedAt, &g.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GoodsReceiptNote{}, fmt.Errorf("indent: GRN %s: %w", id, httpx.ErrNotFound)
		}
		return GoodsReceiptNote{}, fmt.Errorf("indent: get GRN: %w", err)
	}
	return g, nil
}

// GetInvoice returns one invoice with lines.
func (r *Repository) GetInvoice(ctx context.Context, id string) (VendorInvoice, error) {
	return r.getInvoiceBy(ctx, "id", id)
}

// GetInvoiceByGRN returns the invoice billing a GRN, or ErrNotFound.
func (r *Repository) GetInvoiceByGRN(ctx context.Context, grnID string) (VendorInvoice, error) {
	return r.getInvoiceBy(ctx, "grn_id", grnID)
}

func (r *Repository) getInvoiceBy(ctx context.Context, column, value string) (VendorInvoice, error) {
	row := r.pool.QueryRow(ctx, fmt.Sprintf(`SELECT id, grn_id, vendor_indent_id, vendor_id,
invoice_number, invoice_date, status, unified_status, total_amount, COALESCE(remarks, ''),
created_at, updated_at
FROM vendor_invoices WHERE %s = $1`, column), value)
	var inv VendorInvoice
	if err := row.Scan(&inv.ID, &inv.GRNID, &inv.VendorIndentID, &inv.VendorID,
		&inv.InvoiceNumber, &inv.InvoiceDate, &inv.LegacyStatus, &inv.UnifiedStatus,
		&inv.TotalAmount, &inv.Remarks, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return VendorInvoice{}, fmt.Errorf("indent: invoice by %s %s: %w", column, value, httpx.ErrNotFound)
		}
		return VendorInvoice{}, fmt.Errorf("indent: get invoice: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, product_id, COALESCE(size, ''), quantity, unit_price, line_total
FROM vendor_invoice_lines WHERE invoice_id = $1 ORDER BY id`, inv.ID)
	if err != nil {
		return VendorInvoice{}, fmt.Errorf("indent: get invoice lines: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var line InvoiceLine
		if err := rows.Scan(&line.ID, &line.InvoiceID, &line.ProductID, &line.Size, &line.Quantity, &line.UnitPrice, &line.LineTotal); err != nil {
			return VendorInvoice{}, fmt.Errorf("indent: scan invoice line: %w", err)
		}
		inv.Lines = append(inv.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return VendorInvoice{}, fmt.Errorf("indent: iterate invoice lines: %w", err)
	}
	return inv, nil
}

// GetPayment returns one payment.
func (r *Repository) GetPayment(ctx context.Context, id string) (Payment, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, invoice_id, vendor_id, payment_reference, payment_date,
amount_paid, status, unified_status, created_at, updated_at
FROM vendor_payments WHERE id = $1`, id)
	var p Payment
	if err := row.Scan(&p.ID, &p.InvoiceID, &p.VendorID, &p.PaymentReference, &p.PaymentDate,
		&p.AmountPaid, &p.LegacyStatus, &p.UnifiedStatus, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, fmt.Errorf("indent: payment %s: %w", id, httpx.ErrNotFound)
		}
		return Payment{}, fmt.Errorf("indent: get payment: %w", err)
	}
	return p, nil
}

// ListSuborderStatuses returns the status columns of every suborder linked to
// the given vendor indents.
func (r *Repository) ListSuborderStatuses(ctx context.Context, vendorIndentIDs []string) ([]SuborderStatus, error) {
	if len(vendorIndentIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT suborder_status, shipment_status
FROM order_suborders WHERE vendor_indent_id = ANY($1)`, vendorIndentIDs)
	if err != nil {
		return nil, fmt.Errorf("indent: list suborder statuses: %w", err)
	}
	defer rows.Close()

	var items []SuborderStatus
	for rows.Next() {
		var s SuborderStatus
		if err := rows.Scan(&s.SuborderStatus, &s.ShipmentStatus); err != nil {
			return nil, fmt.Errorf("indent: scan suborder status: %w", err)
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("indent: iterate suborder statuses: %w", err)
	}
	return items, nil
}

// CreateIndent inserts the indent header.
func (t *txRepo) CreateIndent(ctx context.Context, header IndentHeader) (string, error) {
	id := uuid.NewString()
	_, err := t.tx.Exec(ctx, `INSERT INTO indents
(id, client_indent_number, company_id, site_id, status, unified_status, created_by, creator_role, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())`,
		id, header.ClientIndentNumber, header.CompanyID, header.SiteID,
		header.LegacyStatus, header.UnifiedStatus, header.CreatedBy, header.CreatorRole)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("indent: client indent number %s exists: %w", header.ClientIndentNumber, httpx.ErrDuplicate)
		}
		return "", fmt.Errorf("indent: insert indent: %w", err)
	}
	return id, nil
}

// CreateVendorIndent inserts one vendor slice; the (indent, vendor) pair is
// unique.
func (t *txRepo) CreateVendorIndent(ctx context.Context, vi VendorIndent) (string, error) {
	id := uuid.NewString()
	_, err := t.tx.Exec(ctx, `INSERT INTO vendor_indents
(id, indent_id, vendor_id, total_items, total_quantity, total_amount, status, unified_status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())`,
		id, vi.IndentID, vi.VendorID, vi.TotalItems, vi.TotalQuantity, vi.TotalAmount,
		vi.LegacyStatus, vi.UnifiedStatus)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("indent: vendor indent for indent %s vendor %s exists: %w", vi.IndentID, vi.VendorID, httpx.ErrDuplicate)
		}
		return "", fmt.Errorf("indent: insert vendor indent: %w", err)
	}
	return id, nil
}

// CreateGRN inserts one goods receipt note.
func (t *txRepo) CreateGRN(ctx context.Context, grn GoodsReceiptNote) (string, error) {
	id := uuid.NewString()
	_, err := t.tx.Exec(ctx, `INSERT INTO goods_receipt_notes
(id, vendor_indent_id, vendor_id, grn_number, grn_date, status, unified_status, remarks, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NOW(), NOW())`,
		id, grn.VendorIndentID, grn.VendorID, grn.GRNNumber, grn.GRNDate,
		grn.LegacyStatus, grn.UnifiedStatus, grn.Remarks)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("indent: GRN number %s exists: %w", grn.GRNNumber, httpx.ErrDuplicate)
		}
		return "", fmt.Errorf("indent: insert GRN: %w", err)
	}
	return id, nil
}

// CreateInvoice inserts the invoice and its lines. The grn_id column carries a
// unique constraint so a second invoice for the same GRN fails.
func (t *txRepo) CreateInvoice(ctx context.Context, inv VendorInvoice) (string, error) {
	id := uuid.NewString()
	_, err := t.tx.Exec(ctx, `INSERT INTO vendor_invoices
(id, grn_id, vendor_indent_id, vendor_id, invoice_number, invoice_date, status, unified_status, total_amount, remarks, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), NOW(), NOW())`,
		id, inv.GRNID, inv.VendorIndentID, inv.VendorID, inv.InvoiceNumber, inv.InvoiceDate,
		inv.LegacyStatus, inv.UnifiedStatus, inv.TotalAmount, inv.Remarks)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("indent: GRN %s already invoiced: %w", inv.GRNID, httpx.ErrDuplicate)
		}
		return "", fmt.Errorf("indent: insert invoice: %w", err)
	}
	for _, line := range inv.Lines {
		_, err := t.tx.Exec(ctx, `INSERT INTO vendor_invoice_lines
(id, invoice_id, product_id, size, quantity, unit_price, line_total)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)`,
			uuid.NewString(), id, line.ProductID, line.Size, line.Quantity, line.UnitPrice, line.LineTotal)
		if err != nil {
			return "", fmt.Errorf("indent: insert invoice line: %w", err)
		}
	}
	return id, nil
}

// CreatePayment inserts one payment.
func (t *txRepo) CreatePayment(ctx context.Context, p Payment) (string, error) {
	id := uuid.NewString()
	_, err := t.tx.Exec(ctx, `INSERT INTO vendor_payments
(id, invoice_id, vendor_id, payment_reference, payment_date, amount_paid, status, unified_status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())`,
		id, p.InvoiceID, p.VendorID, p.PaymentReference, p.PaymentDate, p.AmountPaid,
		p.LegacyStatus, p.UnifiedStatus)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("indent: payment reference %s exists: %w", p.PaymentReference, httpx.ErrDuplicate)
		}
		return "", fmt.Errorf("indent: insert payment: %w", err)
	}
	return id, nil
}

// UpdateIndentStatus applies the projected dual-write field sets conditionally
// on the expected previous unified value.
func (t *txRepo) UpdateIndentStatus(ctx context.Context, id, expectedUnified string, legacy, unified map[string]any) error {
	return t.applyStatusUpdate(ctx, "indents", id, expectedUnified, legacy, unified)
}

// UpdateVendorIndentStatus is the vendor-indent counterpart.
func (t *txRepo) UpdateVendorIndentStatus(ctx context.Context, id, expectedUnified string, legacy, unified map[string]any) error {
	return t.applyStatusUpdate(ctx, "vendor_indents", id, expectedUnified, legacy, unified)
}

// UpdateGRNStatus is the GRN counterpart.
func (t *txRepo) UpdateGRNStatus(ctx context.Context, id, expectedUnified string, legacy, unified map[string]any) error {
	return t.applyStatusUpdate(ctx, "goods_receipt_notes", id, expectedUnified, legacy, unified)
}

// UpdateInvoiceStatus is the invoice counterpart.
func (t *txRepo) UpdateInvoiceStatus(ctx context.Context, id, expectedUnified string, legacy, unified map[string]any) error {
	return t.applyStatusUpdate(ctx, "vendor_invoices", id, expectedUnified, legacy, unified)
}

// UpdatePaymentStatus is the payment counterpart.
func (t *txRepo) UpdatePaymentStatus(ctx context.Context, id, expectedUnified string, legacy, unified map[string]any) error {
	return t.applyStatusUpdate(ctx, "vendor_payments", id, expectedUnified, legacy, unified)
}

func (t *txRepo) applyStatusUpdate(ctx context.Context, table, id, expected string, fieldSets ...map[string]any) error {
	set := []string{"updated_at = NOW()"}
	args := []any{id, expected}
	for _, fields := range fieldSets {
		for col, val := range fields {
			args = append(args, val)
			set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	query := fmt.Sprintf(`UPDATE %s SET %s WHERE id = $1 AND (unified_status = $2 OR unified_status IS NULL)`,
		table, strings.Join(set, ", "))
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("indent: update %s status: %w", table, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("indent: %s row %s changed concurrently: %w", table, id, httpx.ErrInvalidState)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
