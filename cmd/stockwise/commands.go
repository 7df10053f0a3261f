package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/stockwise/internal/api"
	"github.com/kalambet/stockwise/internal/config"
	"github.com/kalambet/stockwise/internal/inference"
)

// --- search ---

var searchCmd = &cobra.Command{
	Use:   "search <question>",
	Short: "Ask a natural-language question about inventory",
	Long: `Ask a natural-language question about inventory.

Examples:
  stockwise search "¿Hay leche?"
  stockwise search do we have coffee in stock --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.post(cmd.Context(), "/v1/search", api.SearchRequest{Query: query})
		if err != nil {
			return err
		}

		var result api.SearchResponse
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		if asJSON {
			return printJSON(result)
		}

		fmt.Println(result.Answer)
		if len(result.ProductsFound) > 0 {
			fmt.Println()
			printProducts(result.ProductsFound)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().Bool("json", false, "print the raw JSON response")
}

// --- products ---

var productsCmd = &cobra.Command{
	Use:   "products",
	Short: "Browse the product catalog",
}

var productsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List products",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		all, _ := cmd.Flags().GetBool("all")

		q := url.Values{}
		q.Set("limit", fmt.Sprint(limit))
		q.Set("offset", fmt.Sprint(offset))
		if all {
			q.Set("include_inactive", "true")
		}
		return listProducts(cmd, "/v1/products?"+q.Encode())
	},
}

var productsSearchCmd = &cobra.Command{
	Use:   "search <name>",
	Short: "Search products by name",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		q := url.Values{}
		q.Set("name", strings.Join(args, " "))
		q.Set("limit", fmt.Sprint(limit))
		return listProducts(cmd, "/v1/products/search?"+q.Encode())
	},
}

var productsLowStockCmd = &cobra.Command{
	Use:   "low-stock",
	Short: "List products at or below their reorder point",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return listProducts(cmd, fmt.Sprintf("/v1/products/low-stock?limit=%d", limit))
	},
}

var productsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single product",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.get(cmd.Context(), "/v1/products/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}

		var product api.ProductDetail
		if err := decodeJSON(resp, &product); err != nil {
			return err
		}
		return printJSON(product)
	},
}

func listProducts(cmd *cobra.Command, path string) error {
	client, err := newAPIClient()
	if err != nil {
		return err
	}

	resp, err := client.get(cmd.Context(), path)
	if err != nil {
		return err
	}

	var products []api.ProductSummary
	if err := decodeJSON(resp, &products); err != nil {
		return err
	}

	if len(products) == 0 {
		fmt.Println("No products found.")
		return nil
	}
	printProducts(products)
	return nil
}

func init() {
	productsListCmd.Flags().Int("limit", 100, "maximum number of products")
	productsListCmd.Flags().Int("offset", 0, "number of products to skip")
	productsListCmd.Flags().Bool("all", false, "include inactive products")
	productsSearchCmd.Flags().Int("limit", 10, "maximum number of results")
	productsLowStockCmd.Flags().Int("limit", 50, "maximum number of products")

	productsCmd.AddCommand(productsListCmd)
	productsCmd.AddCommand(productsSearchCmd)
	productsCmd.AddCommand(productsLowStockCmd)
	productsCmd.AddCommand(productsShowCmd)
}

// --- models ---

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect and manage registered models",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered models",
	RunE: func(cmd *cobra.Command, args []string) error {
		stage, _ := cmd.Flags().GetString("stage")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		path := "/v1/models"
		if stage != "" {
			path += "?stage=" + url.QueryEscape(stage)
		}
		resp, err := client.get(cmd.Context(), path)
		if err != nil {
			return err
		}

		var models []inference.ModelInfo
		if err := decodeJSON(resp, &models); err != nil {
			return err
		}

		if len(models) == 0 {
			fmt.Println("No models registered.")
			return nil
		}
		for _, m := range models {
			printModel(m)
		}
		return nil
	},
}

// modelActionCmd builds the load/unload/reload subcommands.
func modelActionCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <name>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}

			resp, err := client.post(cmd.Context(), "/v1/models/"+url.PathEscape(args[0])+"/"+action, nil)
			if err != nil {
				return err
			}

			var info inference.ModelInfo
			if err := decodeJSON(resp, &info); err != nil {
				return err
			}
			printSuccess("%s: %s", action, info.Name)
			printModel(info)
			return nil
		},
	}
}

func init() {
	modelsListCmd.Flags().String("stage", "", "only list models in this stage")

	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelActionCmd("load", "Load a model into memory"))
	modelsCmd.AddCommand(modelActionCmd("unload", "Evict a loaded model"))
	modelsCmd.AddCommand(modelActionCmd("reload", "Reload a model from its artifact"))
}

// --- detect ---

var detectCmd = &cobra.Command{
	Use:   "detect <image>",
	Short: "Identify the product in an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}

		resp, err := client.upload(cmd.Context(), "/v1/detect", args[0])
		if err != nil {
			return err
		}

		var result api.DetectResponse
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}

		printStatus("Product", "%v", result.Prediction)
		if result.Confidence != nil {
			printStatus("Confidence", "%.2f%%", *result.Confidence*100)
		} else {
			printStatus("Confidence", "N/A")
		}
		return nil
	},
}

// --- seed ---

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Load products from a YAML file into the local store",
	Long: `Load products from a YAML file into the local store.

The file holds a "products" list; entries with an id update the existing
row, entries without one are inserted.

Example:
  products:
    - product_name: Leche Entera 1L
      product_sku: LEC-001
      quantity_available: 40
      reorder_point: 10
      stock_status: 1
      unit_cost: 1.25`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		n, err := seedFile(cmd.Context(), cfg.Storage.DataDir, args[0])
		if err != nil {
			return err
		}
		printSuccess("Seeded %d products into %s", n, cfg.Storage.DataDir)
		return nil
	},
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		for _, k := range config.ShowAll(cfg) {
			fmt.Printf("  %s = %s  %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorCyan, "("+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value.\n\nValid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
