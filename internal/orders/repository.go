package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agrawalpuran/uds-refresh-sub018/internal/platform/db"
	"github.com/agrawalpuran/uds-refresh-sub018/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence for orders and suborders.
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

// GetOrder returns one order with line items.
func (r *Repository) GetOrder(ctx context.Context, id string) (Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, employee_id, company_id, site_id, COALESCE(indent_id, ''),
status, pr_status, unified_status, unified_pr_status,
COALESCE(pr_number, ''), pr_date, is_split_order, COALESCE(parent_order_id, ''),
created_at, updated_at
FROM orders WHERE id = $1`, id)
	var o Order
	if err := row.Scan(&o.ID, &o.EmployeeID, &o.CompanyID, &o.SiteID, &o.IndentID,
		&o.LegacyStatus, &o.LegacyPRStatus, &o.UnifiedStatus, &o.UnifiedPRStatus,
		&o.PRNumber, &o.PRDate, &o.IsSplitOrder, &o.ParentOrderID,
		&o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, fmt.Errorf("orders: order %s: %w", id, httpx.ErrNotFound)
		}
		return Order{}, fmt.Errorf("orders: get order: %w", err)
	}

	rows, err := r.pool.Query(ctx, `SELECT id, order_id, product_id, size, quantity, unit_price
FROM order_items WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return Order{}, fmt.Errorf("orders: get order items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var item LineItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Size, &item.Quantity, &item.UnitPrice); err != nil {
			return Order{}, fmt.Errorf("orders: scan order item: %w", err)
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return Order{}, fmt.Errorf("orders: iterate order items: %w", err)
	}
	return o, nil
}

// ListOrders returns a filtered page plus the total count.
func (r *Repository) ListOrders(ctx context.Context, limit, offset int, filters ListFilters) ([]Order, int, error) {
	if limit <= 0 {
		limit = 20
	}
	where := []string{"1=1"}
	args := []any{}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filters.EmployeeID != "" {
		where = append(where, "employee_id = "+arg(filters.EmployeeID))
	}
	if filters.CompanyID != "" {
		where = append(where, "company_id = "+arg(filters.CompanyID))
	}
	if filters.SiteID != "" {
		where = append(where, "site_id = "+arg(filters.SiteID))
	}
	if filters.Status != "" {
		where = append(where, "(unified_status = "+arg(filters.Status)+" OR status = "+arg(filters.Status)+")")
	}
	if filters.Search != "" {
		where = append(where, "(pr_number ILIKE "+arg("%"+filters.Search+"%")+" OR id::text ILIKE "+arg("%"+filters.Search+"%")+")")
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM orders WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("orders: count orders: %w", err)
	}

	query := "SELECT id, employee_id, company_id, site_id, COALESCE(indent_id, ''), status, pr_status, unified_status, unified_pr_status, COALESCE(pr_number, ''), pr_date, is_split_order, COALESCE(parent_order_id, ''), created_at, updated_at FROM orders WHERE " + cond +
		" ORDER BY created_at DESC LIMIT " + arg(limit) + " OFFSET " + arg(offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("orders: list orders: %w", err)
	}
	defer rows.Close()

	var items []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.EmployeeID, &o.CompanyID, &o.SiteID, &o.IndentID,
			&o.LegacyStatus, &o.LegacyPRStatus, &o.UnifiedStatus, &o.UnifiedPRStatus,
			&o.PRNumber, &o.PRDate, &o.IsSplitOrder, &o.ParentOrderID,
			&o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("orders: scan order: %w", err)
		}
		items = append(items, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("orders: iterate orders: %w", err)
	}
	return items, total, nil
}

// GetSuborder returns one suborder.
func (r *Repository) GetSuborder(ctx context.Context, id string) (Suborder, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, order_id, vendor_id, COALESCE(vendor_indent_id, ''),
suborder_status, shipment_status, COALESCE(shipper_name, ''), COALESCE(consignment_number, ''),
shipped_at, created_at, updated_at
FROM order_suborders WHERE id = $1`, id)
	var s Suborder
	if err := row.Scan(&s.ID, &s.OrderID, &s.VendorID, &s.VendorIndentID,
		&s.SuborderStatus, &s.ShipmentStatus, &s.ShipperName, &s.ConsignmentNumber,
		&s.ShippedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Suborder{}, fmt.Errorf("orders: suborder %s: %w", id, httpx.ErrNotFound)
		}
		return Suborder{}, fmt.Errorf("orders: get suborder: %w", err)
	}
	return s, nil
}

// ListSubordersByOrder returns all suborders for an order.
func (r *Repository) ListSubordersByOrder(ctx context.Context, orderID string) ([]Suborder, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, order_id, vendor_id, COALESCE(vendor_indent_id, ''),
suborder_status, shipment_status, COALESCE(shipper_name, ''), COALESCE(consignment_number, ''),
shipped_at, created_at, updated_at
FROM order_suborders WHERE order_id = $1 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("orders: list suborders: %w", err)
	}
	defer rows.Close()

	var items []Suborder
	for rows.Next() {
		var s Suborder
		if err := rows.Scan(&s.ID, &s.OrderID, &s.VendorID, &s.VendorIndentID,
			&s.SuborderStatus, &s.ShipmentStatus, &s.ShipperName, &s.ConsignmentNumber,
			&s.ShippedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("orders: scan suborder: %w", err)
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orders: iterate suborders: %w", err)
	}
	return items, nil
}

// ResolveVendors maps product ids to their supplying vendor.
func (r *Repository) ResolveVendors(ctx context.Context, productIDs []string) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT product_id, vendor_id FROM product_vendors WHERE product_id = ANY($1)`, productIDs)
	if err != nil {
		return nil, fmt.Errorf("orders: resolve vendors: %w", err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var productID, vendorID string
		if err := rows.Scan(&productID, &vendorID); err != nil {
			return nil, fmt.Errorf("orders: scan vendor mapping: %w", err)
		}
		result[productID] = vendorID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("orders: iterate vendor mappings: %w", err)
	}
	return result, nil
}

// CreateOrder inserts the order header and line items.
func (t *txRepo) CreateOrder(ctx context.Context, order Order) (string, error) {
	id := uuid.NewString()
	_, err := t.tx.Exec(ctx, `INSERT INTO orders
(id, employee_id, company_id, site_id, indent_id, status, pr_status, unified_status, unified_pr_status,
pr_number, pr_date, is_split_order, parent_order_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, NULLIF($10, ''), $11, $12, NULLIF($13, ''), NOW(), NOW())`,
		id, order.EmployeeID, order.CompanyID, order.SiteID, order.IndentID,
		order.LegacyStatus, order.LegacyPRStatus, order.UnifiedStatus, order.UnifiedPRStatus,
		order.PRNumber, order.PRDate, order.IsSplitOrder, order.ParentOrderID)
	if err != nil {
		return "", fmt.Errorf("orders: insert order: %w", err)
	}
	for _, item := range order.Items {
		_, err := t.tx.Exec(ctx, `INSERT INTO order_items (id, order_id, product_id, size, quantity, unit_price)
VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.NewString(), id, item.ProductID, item.Size, item.Quantity, item.UnitPrice)
		if err != nil {
			return "", fmt.Errorf("orders: insert order item: %w", err)
		}
	}
	return id, nil
}

// CreateSuborder inserts one suborder; the (order, vendor) pair is unique.
func (t *txRepo) CreateSuborder(ctx context.Context, sub Suborder) (string, error) {
	id := uuid.NewString()
	_, err := t.tx.Exec(ctx, `INSERT INTO order_suborders
(id, order_id, vendor_id, vendor_indent_id, suborder_status, shipment_status, created_at, updated_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NOW(), NOW())`,
		id, sub.OrderID, sub.VendorID, sub.VendorIndentID, sub.SuborderStatus, sub.ShipmentStatus)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("orders: suborder for order %s vendor %s exists: %w", sub.OrderID, sub.VendorID, httpx.ErrDuplicate)
		}
		return "", fmt.Errorf("orders: insert suborder: %w", err)
	}
	return id, nil
}

// UpdateOrderWorkflowStatus applies the projected dual-write field sets in a
// single statement, conditionally on the expected previous unified value.
func (t *txRepo) UpdateOrderWorkflowStatus(ctx context.Context, orderID, expectedUnified string, legacy, unified map[string]any) error {
	return t.applyOrderUpdate(ctx, orderID, "unified_status", expectedUnified, legacy, unified)
}

// UpdateOrderPRStatus is the PR-track counterpart of UpdateOrderWorkflowStatus.
func (t *txRepo) UpdateOrderPRStatus(ctx context.Context, orderID, expectedUnified string, legacy, unified map[string]any) error {
	return t.applyOrderUpdate(ctx, orderID, "unified_pr_status", expectedUnified, legacy, unified)
}

func (t *txRepo) applyOrderUpdate(ctx context.Context, orderID, casColumn, expected string, fieldSets ...map[string]any) error {
	set := []string{"updated_at = NOW()"}
	args := []any{orderID, expected}
	for _, fields := range fieldSets {
		for col, val := range fields {
			args = append(args, val)
			set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
		}
	}
	query := fmt.Sprintf(`UPDATE orders SET %s WHERE id = $1 AND (%s = $2 OR %s IS NULL)`,
		strings.Join(set, ", "), casColumn, casColumn)
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("orders: update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("orders: order %s changed concurrently: %w", orderID, httpx.ErrInvalidState)
	}
	return nil
}

// SetPRNumber assigns the PR number and date once.
func (t *txRepo) SetPRNumber(ctx context.Context, orderID, prNumber string, prDate time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE orders SET pr_number = $2, pr_date = $3, updated_at = NOW()
WHERE id = $1 AND pr_number IS NULL`, orderID, prNumber, prDate)
	if err != nil {
		return fmt.Errorf("orders: set pr number: %w", err)
	}
	return nil
}

// UpdateSuborderShipping persists the shipment update conditionally on the
// expected previous shipment status.
func (t *txRepo) UpdateSuborderShipping(ctx context.Context, suborderID, expectedShipment string, sub Suborder) error {
	tag, err := t.tx.Exec(ctx, `UPDATE order_suborders SET
suborder_status = $3, shipment_status = $4,
shipper_name = NULLIF($5, ''), consignment_number = NULLIF($6, ''), shipped_at = $7,
updated_at = NOW()
WHERE id = $1 AND shipment_status = $2`,
		suborderID, expectedShipment,
		sub.SuborderStatus, sub.ShipmentStatus,
		sub.ShipperName, sub.ConsignmentNumber, sub.ShippedAt)
	if err != nil {
		return fmt.Errorf("orders: update suborder shipping: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("orders: suborder %s changed concurrently: %w", suborderID, httpx.ErrInvalidState)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
