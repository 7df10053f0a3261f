package main

import (
	"fmt"
	"os"

	"github.com/kalambet/stockwise/internal/api"
	"github.com/kalambet/stockwise/internal/inference"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

// statusColor maps a stock status code to its display color.
func statusColor(status int) string {
	switch status {
	case 0:
		return colorRed
	case 2:
		return colorYellow
	case 3:
		return colorCyan
	default:
		return colorGreen
	}
}

func formatProduct(p api.ProductSummary) string {
	sku := "N/A"
	if p.ProductSKU != nil {
		sku = *p.ProductSKU
	}
	return fmt.Sprintf("%s  %-32s %-12s %5d  %s  $%.2f  %s",
		colorize(colorCyan, shortID(p.ID)),
		p.ProductName,
		sku,
		p.QuantityAvailable,
		colorize(statusColor(p.StockStatus), p.StockStatusLabel),
		p.UnitCost,
		p.WarehouseLocation,
	)
}

func printProducts(products []api.ProductSummary) {
	for _, p := range products {
		fmt.Println(formatProduct(p))
	}
}

func printModel(m inference.ModelInfo) {
	state := colorize(colorYellow, "registered")
	if m.Loaded {
		state = colorize(colorGreen, "loaded")
	}
	fmt.Printf("%s  %s  v%s  %s\n", colorize(colorBold, m.Name), m.Stage, m.Version, state)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
