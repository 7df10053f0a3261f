package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const productColumns = `id, created_at, last_updated_at, product_id, product_name, product_sku,
	supplier_id, supplier_name, quantity_on_hand, quantity_reserved, quantity_available,
	minimum_stock_level, reorder_point, optimal_stock_level, reorder_quantity,
	average_daily_usage, unit_cost, total_value, warehouse_location, shelf_location,
	stock_status, is_active, notes`

// SearchByName returns products whose name contains term, case-insensitively,
// ordered by name ascending. A non-positive limit means no limit.
func (s *Store) SearchByName(ctx context.Context, term string, limit int, activeOnly bool) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM product_stocks
		WHERE product_name_folded LIKE ? ESCAPE '\'`
	args := []any{"%" + escapeLike(strings.ToLower(term)) + "%"}
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY product_name ASC, id ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// ListProducts returns a page of products ordered by name.
func (s *Store) ListProducts(ctx context.Context, limit, offset int, activeOnly bool) ([]Product, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + productColumns + ` FROM product_stocks`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY product_name ASC, id ASC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// GetProduct retrieves a single product by its row ID.
func (s *Store) GetProduct(ctx context.Context, id string) (Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM product_stocks WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	if err != nil {
		return Product{}, fmt.Errorf("getting product %s: %w", id, err)
	}
	return p, nil
}

// LowStockProducts returns active products at or below their reorder point,
// lowest available quantity first.
func (s *Store) LowStockProducts(ctx context.Context, limit int) ([]Product, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM product_stocks
		WHERE is_active = 1 AND quantity_available <= reorder_point
		ORDER BY quantity_available ASC, product_name ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing low stock products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// CountProducts returns the number of stored products.
func (s *Store) CountProducts(ctx context.Context, activeOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM product_stocks`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting products: %w", err)
	}
	return n, nil
}

// UpsertProduct inserts p, or replaces the row with the same ID. An empty ID
// is assigned a new UUID. The stored product is returned.
func (s *Store) UpsertProduct(ctx context.Context, p Product) (Product, error) {
	if strings.TrimSpace(p.ProductName) == "" {
		return Product{}, errors.New("product name is required")
	}
	now := time.Now().UTC().Truncate(time.Second)
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.LastUpdatedAt = now
	if p.WarehouseLocation == "" {
		p.WarehouseLocation = "MAIN"
	}
	if p.TotalValue == 0 {
		p.TotalValue = float64(p.QuantityOnHand) * p.UnitCost
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO product_stocks (
			id, created_at, last_updated_at, product_id, product_name, product_name_folded, product_sku,
			supplier_id, supplier_name, quantity_on_hand, quantity_reserved, quantity_available,
			minimum_stock_level, reorder_point, optimal_stock_level, reorder_quantity,
			average_daily_usage, unit_cost, total_value, warehouse_location, shelf_location,
			stock_status, is_active, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_updated_at = excluded.last_updated_at,
			product_id = excluded.product_id,
			product_name = excluded.product_name,
			product_name_folded = excluded.product_name_folded,
			product_sku = excluded.product_sku,
			supplier_id = excluded.supplier_id,
			supplier_name = excluded.supplier_name,
			quantity_on_hand = excluded.quantity_on_hand,
			quantity_reserved = excluded.quantity_reserved,
			quantity_available = excluded.quantity_available,
			minimum_stock_level = excluded.minimum_stock_level,
			reorder_point = excluded.reorder_point,
			optimal_stock_level = excluded.optimal_stock_level,
			reorder_quantity = excluded.reorder_quantity,
			average_daily_usage = excluded.average_daily_usage,
			unit_cost = excluded.unit_cost,
			total_value = excluded.total_value,
			warehouse_location = excluded.warehouse_location,
			shelf_location = excluded.shelf_location,
			stock_status = excluded.stock_status,
			is_active = excluded.is_active,
			notes = excluded.notes`,
		p.ID, p.CreatedAt.UTC().Format(time.RFC3339), p.LastUpdatedAt.Format(time.RFC3339), p.ProductID, p.ProductName, strings.ToLower(p.ProductName),
		nullString(p.SKU), p.SupplierID, p.SupplierName, p.QuantityOnHand, p.QuantityReserved,
		p.QuantityAvailable, p.MinimumStockLevel, p.ReorderPoint, p.OptimalStockLevel,
		p.ReorderQuantity, p.AverageDailyUsage, p.UnitCost, p.TotalValue, p.WarehouseLocation,
		nullString(p.ShelfLocation), int(p.StockStatus), p.IsActive, nullString(p.Notes),
	)
	if err != nil {
		return Product{}, fmt.Errorf("upserting product %q: %w", p.ProductName, err)
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (Product, error) {
	var (
		p                    Product
		createdAt, updatedAt string
		sku, shelf, notes    sql.NullString
		status, active       int
	)
	err := row.Scan(
		&p.ID, &createdAt, &updatedAt, &p.ProductID, &p.ProductName, &sku,
		&p.SupplierID, &p.SupplierName, &p.QuantityOnHand, &p.QuantityReserved, &p.QuantityAvailable,
		&p.MinimumStockLevel, &p.ReorderPoint, &p.OptimalStockLevel, &p.ReorderQuantity,
		&p.AverageDailyUsage, &p.UnitCost, &p.TotalValue, &p.WarehouseLocation, &shelf,
		&status, &active, &notes,
	)
	if err != nil {
		return Product{}, err
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Product{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if p.LastUpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Product{}, fmt.Errorf("parsing last_updated_at: %w", err)
	}
	p.SKU = sku.String
	p.ShelfLocation = shelf.String
	p.Notes = notes.String
	p.StockStatus = StockStatus(status)
	p.IsActive = active != 0
	return p, nil
}

func scanProducts(rows *sql.Rows) ([]Product, error) {
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
