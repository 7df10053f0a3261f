package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/kalambet/stockwise/internal/storage"
)

// ProductSearchName is the tool name advertised to the model.
const ProductSearchName = "product_search"

const defaultSearchLimit = 10

// ProductSearcher is the store capability product_search needs.
type ProductSearcher interface {
	SearchByName(ctx context.Context, term string, limit int, activeOnly bool) ([]storage.Product, error)
}

// ProductSearch looks products up by name in the inventory.
type ProductSearch struct {
	store ProductSearcher
	limit int
}

// NewProductSearch creates the tool. A non-positive limit uses 10.
func NewProductSearch(store ProductSearcher, limit int) *ProductSearch {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return &ProductSearch{store: store, limit: limit}
}

func (t *ProductSearch) Name() string { return ProductSearchName }

func (t *ProductSearch) Description() string {
	return "Searches for products in the inventory database by name. " +
		"Use this tool when the user asks about product availability, " +
		"stock levels, or wants to find a specific product. " +
		"Returns product information including name, quantity available, " +
		"stock status, price, and supplier."
}

func (t *ProductSearch) Parameters() jsonschema.Definition {
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"search_term": {
				Type:        jsonschema.String,
				Description: "The product name or keyword to search for in the database",
			},
		},
		Required: []string{"search_term"},
	}
}

type productSearchArgs struct {
	SearchTerm string `json:"search_term"`
}

// Invoke parses {"search_term": ...} and runs the search.
func (t *ProductSearch) Invoke(ctx context.Context, args json.RawMessage) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	var a productSearchArgs
	if err := decodeArgs(args, &a); err != nil {
		return Result{Text: fmt.Sprintf("Error: invalid arguments: %v", err)}, nil
	}
	return t.Search(ctx, a.SearchTerm)
}

// Search runs the lookup for term and renders the model-facing text.
func (t *ProductSearch) Search(ctx context.Context, term string) (Result, error) {
	if t.store == nil {
		return Result{Text: "Error: Product service not configured"}, nil
	}
	products, err := t.store.SearchByName(ctx, term, t.limit, true)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result{}, ctxErr
		}
		return Result{Text: fmt.Sprintf("Error searching products: %v", err)}, nil
	}
	return Result{Text: FormatProducts(term, products), Products: products}, nil
}

// FormatProducts renders products the way the model expects to read them.
func FormatProducts(term string, products []storage.Product) string {
	if len(products) == 0 {
		return fmt.Sprintf("No products found matching '%s'", term)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d products:", len(products))
	for _, p := range products {
		sku := p.SKU
		if sku == "" {
			sku = "N/A"
		}
		fmt.Fprintf(&b, "\n- %s (SKU: %s): %d units available, Status: %s, Price: $%.2f, Supplier: %s, Location: %s",
			p.ProductName, sku, p.QuantityAvailable, p.StockStatus.Label(), p.UnitCost, p.SupplierName, p.WarehouseLocation)
	}
	return b.String()
}
