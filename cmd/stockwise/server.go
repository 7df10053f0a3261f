package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/stockwise/internal/api"
	"github.com/kalambet/stockwise/internal/classifier"
	"github.com/kalambet/stockwise/internal/config"
	"github.com/kalambet/stockwise/internal/inference"
	"github.com/kalambet/stockwise/internal/llm"
	"github.com/kalambet/stockwise/internal/registry"
	"github.com/kalambet/stockwise/internal/search"
	"github.com/kalambet/stockwise/internal/storage"
	"github.com/kalambet/stockwise/internal/tools"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the stockwise server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running stockwise server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show stockwise service status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "stockwise.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func setupLogging(cfg config.Config, w io.Writer) {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	var h slog.Handler
	if strings.EqualFold(cfg.Log.Format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

// clientAddr is the address local commands use to reach the server.
func clientAddr(cfg config.Config) string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Server.Port)
}

// bootstrapModels registers the models named in the manifest, if any, and
// always makes a product classifier available.
func bootstrapModels(reg *registry.Registry, cfg config.Config) error {
	var manifest registry.Manifest
	if cfg.Models.Manifest != "" {
		m, err := registry.LoadManifest(cfg.Models.Manifest)
		if err != nil {
			return err
		}
		factories := map[string]registry.Factory{classifier.Kind: classifier.Factory}
		if err := registry.ApplyManifest(reg, m, factories); err != nil {
			return err
		}
		manifest = m
	}
	if !manifest.Has(tools.ClassifierModel) {
		location := filepath.Join(cfg.Storage.DataDir, "models", tools.ClassifierModel)
		if err := reg.Register(tools.ClassifierModel, classifier.Factory, location,
			registry.WithStage(registry.StageProduction),
			registry.WithMetadata(map[string]any{"framework": "keyword", "kind": classifier.Kind}),
		); err != nil {
			return err
		}
	}
	return nil
}

// newProvider returns the configured language model, or nil when the LLM
// path is disabled. Startup never fails on the model: the fallback serves.
func newProvider(ctx context.Context, cfg config.Config, w io.Writer) llm.Provider {
	if !cfg.LLMEnabled() {
		slog.Info("language model disabled, answering with fallback search")
		return nil
	}
	p, err := llm.NewOpenAI(llm.Config{
		BaseURL:   cfg.LLM.BaseURL,
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout,
	})
	if err != nil {
		slog.Warn("language model unavailable", "error", err)
		return nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := llm.CheckReady(checkCtx, p, cfg.LLM.Model, w); err != nil {
		slog.Warn("language model not reachable at startup", "base_url", cfg.LLM.BaseURL, "error", err)
	}
	return p
}

type app struct {
	store     *storage.Store
	inference *inference.Service
	search    *search.Orchestrator
}

func buildApp(ctx context.Context, cfg config.Config, store *storage.Store, logOut io.Writer) (*app, error) {
	reg := registry.New()
	if err := bootstrapModels(reg, cfg); err != nil {
		return nil, fmt.Errorf("registering models: %w", err)
	}
	n := reg.Preload(ctx, registry.StageProduction)
	slog.Info("models preloaded", "count", n)

	svc := inference.NewService(reg, inference.NewImagePreprocessor(inference.DefaultImageConfig()))
	provider := newProvider(ctx, cfg, logOut)
	orch := search.New(provider, store, svc, search.Config{
		LLMTimeout:  cfg.LLM.Timeout,
		ToolTimeout: cfg.Search.ToolTimeout,
		ResultLimit: cfg.Search.ResultLimit,
		StopWords:   cfg.Search.StopWords,
	})
	return &app{store: store, inference: svc, search: orch}, nil
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "stockwise version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg, os.Stderr)

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(clientAddr(cfg) + "/health"); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("stockwise is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("stockwise is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	a, err := buildApp(ctx, cfg, store, os.Stderr)
	if err != nil {
		return err
	}

	if cfg.API.Token == "" {
		slog.Warn("API token not set, /v1 endpoints are unauthenticated")
	}
	handler := api.NewHandler(api.Deps{
		Store:     store,
		Search:    a.search,
		Inference: a.inference,
		Token:     cfg.API.Token,
		Version:   version,
	})

	addr := cfg.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:     store,
			Search:    a.search,
			Inference: a.inference,
			Version:   version,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "stockwise listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("stockwise is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop stockwise (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to stockwise (PID %d)", pid)
	return nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &apiClient{
		baseURL:    clientAddr(cfg),
		token:      cfg.API.Token,
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}

	running := false
	if resp, err := client.get(ctx, "/health"); err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on %s", cfg.Addr())
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	if cfg.LLMEnabled() {
		printStatus("LLM", "%s at %s", cfg.LLM.Model, cfg.LLM.BaseURL)
	} else {
		printStatus("LLM", "disabled (fallback search only)")
	}

	if running {
		var count struct {
			Count int `json:"count"`
		}
		if resp, err := client.get(ctx, "/v1/products/count"); err == nil && decodeJSON(resp, &count) == nil {
			printStatus("Products", "%d active", count.Count)
		}
		var models []inference.ModelInfo
		if resp, err := client.get(ctx, "/v1/models"); err == nil && decodeJSON(resp, &models) == nil {
			loaded := 0
			for _, m := range models {
				if m.Loaded {
					loaded++
				}
			}
			printStatus("Models", "%d registered, %d loaded", len(models), loaded)
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	printStatus("Config", "%s", config.FilePath())
	return nil
}
