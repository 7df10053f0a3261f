package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// StockStatus is the inventory state code stored on every product row.
type StockStatus int

const (
	StockOutOfStock StockStatus = 0
	StockInStock    StockStatus = 1
	StockLow        StockStatus = 2
	StockOverstock  StockStatus = 3
)

// Label returns the human-readable name of the status code.
// Codes outside the known range map to "Unknown".
func (s StockStatus) Label() string {
	switch s {
	case StockOutOfStock:
		return "Out of Stock"
	case StockInStock:
		return "In Stock"
	case StockLow:
		return "Low Stock"
	case StockOverstock:
		return "Overstock"
	default:
		return "Unknown"
	}
}

// Product is one row of the product_stocks table.
type Product struct {
	ID                string
	CreatedAt         time.Time
	LastUpdatedAt     time.Time
	ProductID         string
	ProductName       string
	SKU               string // empty when the product has no SKU
	SupplierID        string
	SupplierName      string
	QuantityOnHand    int
	QuantityReserved  int
	QuantityAvailable int
	MinimumStockLevel int
	ReorderPoint      int
	OptimalStockLevel int
	ReorderQuantity   int
	AverageDailyUsage float64
	UnitCost          float64
	TotalValue        float64
	WarehouseLocation string
	ShelfLocation     string
	StockStatus       StockStatus
	IsActive          bool
	Notes             string
}
