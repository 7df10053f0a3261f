package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/stockwise/internal/storage"
)

// DefaultStopWords are stripped from a query before the fallback lookup.
// Removal is by substring, so "hay" is also removed from inside words.
var DefaultStopWords = []string{"tienen", "hay", "existe", "buscar", "quiero", "stock", "?", "¿"}

const (
	defaultResultLimit = 10
	fallbackListed     = 5
)

// ExtractTerm lowercases query, removes every stop word occurrence and trims
// the result.
func ExtractTerm(query string, stopWords []string) string {
	term := strings.ToLower(strings.TrimSpace(query))
	for _, w := range stopWords {
		if w == "" {
			continue
		}
		term = strings.ReplaceAll(term, strings.ToLower(w), "")
	}
	return strings.TrimSpace(term)
}

// fallback answers without a language model by searching the store for the
// query stripped of stop words.
func (o *Orchestrator) fallback(ctx context.Context, query string) SearchResult {
	res := SearchResult{Query: query, ProductsFound: []storage.Product{}}

	term := ExtractTerm(query, o.stopWords)
	if term == "" {
		res.Answer = "Por favor, especifica el producto que buscas."
		return res
	}

	var products []storage.Product
	if o.store != nil {
		sctx, cancel := o.withTimeout(ctx, o.toolTimeout)
		defer cancel()
		var err error
		products, err = o.store.SearchByName(sctx, term, o.resultLimit, true)
		if err != nil {
			slog.Error("fallback search failed", "term", term, "error", err)
			products = nil
		}
	}

	if len(products) == 0 {
		res.Answer = fmt.Sprintf("No encontré productos que coincidan con '%s'.", term)
		return res
	}

	listed := products
	if len(listed) > fallbackListed {
		listed = listed[:fallbackListed]
	}
	parts := make([]string, len(listed))
	for i, p := range listed {
		parts[i] = fmt.Sprintf("%s (%d disponibles)", p.ProductName, p.QuantityAvailable)
	}
	res.Answer = fmt.Sprintf("Encontré %d producto(s): %s", len(products), strings.Join(parts, ", "))
	res.ProductsFound = products
	return res
}
