package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/stockwise/internal/storage"
)

type seedProduct struct {
	ID                string  `yaml:"id"`
	ProductID         string  `yaml:"product_id"`
	ProductName       string  `yaml:"product_name"`
	SKU               string  `yaml:"product_sku"`
	SupplierID        string  `yaml:"supplier_id"`
	SupplierName      string  `yaml:"supplier_name"`
	QuantityOnHand    int     `yaml:"quantity_on_hand"`
	QuantityReserved  int     `yaml:"quantity_reserved"`
	QuantityAvailable *int    `yaml:"quantity_available"`
	MinimumStockLevel int     `yaml:"minimum_stock_level"`
	ReorderPoint      int     `yaml:"reorder_point"`
	OptimalStockLevel int     `yaml:"optimal_stock_level"`
	ReorderQuantity   int     `yaml:"reorder_quantity"`
	AverageDailyUsage float64 `yaml:"average_daily_usage"`
	UnitCost          float64 `yaml:"unit_cost"`
	WarehouseLocation string  `yaml:"warehouse_location"`
	ShelfLocation     string  `yaml:"shelf_location"`
	StockStatus       int     `yaml:"stock_status"`
	IsActive          *bool   `yaml:"is_active"`
	Notes             string  `yaml:"notes"`
}

type seedData struct {
	Products []seedProduct `yaml:"products"`
}

// parseSeed decodes a seed file. Missing quantity_available is derived as
// on hand minus reserved; missing is_active defaults to true.
func parseSeed(data []byte) ([]storage.Product, error) {
	var sd seedData
	if err := yaml.Unmarshal(data, &sd); err != nil {
		return nil, fmt.Errorf("parsing seed file: %w", err)
	}

	out := make([]storage.Product, 0, len(sd.Products))
	for i, sp := range sd.Products {
		if sp.ProductName == "" {
			return nil, fmt.Errorf("seed entry %d: product_name is required", i)
		}
		available := sp.QuantityOnHand - sp.QuantityReserved
		if sp.QuantityAvailable != nil {
			available = *sp.QuantityAvailable
		}
		active := true
		if sp.IsActive != nil {
			active = *sp.IsActive
		}
		out = append(out, storage.Product{
			ID:                sp.ID,
			ProductID:         sp.ProductID,
			ProductName:       sp.ProductName,
			SKU:               sp.SKU,
			SupplierID:        sp.SupplierID,
			SupplierName:      sp.SupplierName,
			QuantityOnHand:    sp.QuantityOnHand,
			QuantityReserved:  sp.QuantityReserved,
			QuantityAvailable: available,
			MinimumStockLevel: sp.MinimumStockLevel,
			ReorderPoint:      sp.ReorderPoint,
			OptimalStockLevel: sp.OptimalStockLevel,
			ReorderQuantity:   sp.ReorderQuantity,
			AverageDailyUsage: sp.AverageDailyUsage,
			UnitCost:          sp.UnitCost,
			WarehouseLocation: sp.WarehouseLocation,
			ShelfLocation:     sp.ShelfLocation,
			StockStatus:       storage.StockStatus(sp.StockStatus),
			IsActive:          active,
			Notes:             sp.Notes,
		})
	}
	return out, nil
}

// seedStore upserts products and returns how many were written.
func seedStore(ctx context.Context, store *storage.Store, products []storage.Product) (int, error) {
	for i, p := range products {
		if _, err := store.UpsertProduct(ctx, p); err != nil {
			return i, fmt.Errorf("seeding %q: %w", p.ProductName, err)
		}
	}
	return len(products), nil
}

func seedFile(ctx context.Context, dataDir, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading seed file: %w", err)
	}
	products, err := parseSeed(data)
	if err != nil {
		return 0, err
	}

	store, err := storage.Open(dataDir)
	if err != nil {
		return 0, fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	return seedStore(ctx, store, products)
}
