package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/stockwise/internal/api"
	"github.com/kalambet/stockwise/internal/config"
	"github.com/kalambet/stockwise/internal/registry"
	"github.com/kalambet/stockwise/internal/storage"
	"github.com/kalambet/stockwise/internal/tools"
)

type recordedRequest struct {
	Method      string
	Path        string
	Body        string
	Auth        string
	ContentType string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.RequestURI(),
			Body:        body.String(),
			Auth:        r.Header.Get("Authorization"),
			ContentType: r.Header.Get("Content-Type"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

// useClient points newAPIClient at ts for the duration of the test.
func (ts *testServer) useClient(t *testing.T) {
	t.Helper()
	orig := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() { newAPIClient = orig })
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()
	w.Close()
	out, _ := io.ReadAll(r)
	return string(out)
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	defer rootCmd.SetArgs(nil)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

var ctx = context.Background()

func TestSearchCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/search": `{"answer":"Encontré 1 producto(s): Leche Entera 1L (40 disponibles)","products_found":[{"id":"p-1","product_name":"Leche Entera 1L","quantity_available":40,"stock_status":1,"stock_status_label":"In Stock"}],"query":"hay leche"}`,
	})
	ts.useClient(t)
	noColor = true

	var err error
	out := captureStdout(t, func() { err = execute(t, "search", "hay", "leche") })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "Encontré 1 producto(s)") || !strings.Contains(out, "Leche Entera 1L") {
		t.Errorf("output = %q", out)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q", r.Auth)
	}
	var body api.SearchRequest
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body.Query != "hay leche" {
		t.Errorf("query = %q, want %q", body.Query, "hay leche")
	}
}

func TestSearchCommand_MissingArgs(t *testing.T) {
	err := execute(t, "search")
	if err == nil {
		t.Fatal("expected error for missing args")
	}
}

func TestProductsSearch_URLEncoding(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /v1/products/search": `[]`,
	})
	ts.useClient(t)

	var err error
	out := captureStdout(t, func() { err = execute(t, "products", "search", "café", "&", "leche") })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "No products found.") {
		t.Errorf("output = %q", out)
	}

	reqPath := ts.requests[0].Path
	if !strings.Contains(reqPath, "name=caf%C3%A9+%26+leche") {
		t.Errorf("query not URL-encoded: %q", reqPath)
	}
}

func TestProductsLowStock(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /v1/products/low-stock": `[{"id":"0123456789ab","product_name":"Azúcar","product_sku":"AZ-1","quantity_available":1,"stock_status":2,"stock_status_label":"Low Stock","unit_cost":0.9,"warehouse_location":"MAIN"}]`,
	})
	ts.useClient(t)
	noColor = true

	var err error
	out := captureStdout(t, func() { err = execute(t, "products", "low-stock", "--limit", "5") })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"01234567", "Azúcar", "AZ-1", "Low Stock", "$0.90", "MAIN"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
	if ts.requests[0].Path != "/v1/products/low-stock?limit=5" {
		t.Errorf("path = %q", ts.requests[0].Path)
	}
}

func TestModelsReload(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/models/product_classifier/reload": `{"name":"product_classifier","stage":"production","version":"1.0.0","loaded":true}`,
	})
	ts.useClient(t)
	noColor = true

	var err error
	out := captureStdout(t, func() { err = execute(t, "models", "reload", "product_classifier") })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "product_classifier  production  v1.0.0  loaded") {
		t.Errorf("output = %q", out)
	}
}

func TestModelsLoad_UnknownModel(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.useClient(t)

	err := execute(t, "models", "load", "nope")
	if err == nil {
		t.Fatal("expected error for unknown model")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestUploadSendsMultipart(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/detect": `{"status":"success","filename":"milk.png","prediction":"Leche Entera 1L","confidence":0.98}`,
	})

	path := filepath.Join(t.TempDir(), "milk.png")
	if err := os.WriteFile(path, []byte("image-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	resp, err := ts.client().upload(ctx, "/v1/detect", path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var result api.DetectResponse
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result.Prediction != "Leche Entera 1L" {
		t.Errorf("prediction = %v", result.Prediction)
	}

	r := ts.requests[0]
	if !strings.HasPrefix(r.ContentType, "multipart/form-data") {
		t.Fatalf("content type = %q", r.ContentType)
	}
	_, params, _ := strings.Cut(r.ContentType, "boundary=")
	mr := multipart.NewReader(strings.NewReader(r.Body), params)
	part, err := mr.NextPart()
	if err != nil {
		t.Fatalf("reading part: %v", err)
	}
	if part.FormName() != "file" || part.FileName() != "milk.png" {
		t.Errorf("part = %q / %q", part.FormName(), part.FileName())
	}
	data, _ := io.ReadAll(part)
	if string(data) != "image-bytes" {
		t.Errorf("part body = %q", data)
	}
}

func TestUpload_MissingFile(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	_, err := ts.client().upload(ctx, "/v1/detect", filepath.Join(t.TempDir(), "missing.png"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if len(ts.requests) != 0 {
		t.Errorf("expected no request, got %d", len(ts.requests))
	}
}

func TestAPIClient_NoTokenNoHeader(t *testing.T) {
	ts := newTestServer(t, map[string]string{"GET /health": `{"status":"ok"}`})
	c := ts.client()
	c.token = ""

	resp, err := c.get(ctx, "/health")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if ts.requests[0].Auth != "" {
		t.Errorf("auth = %q, want empty", ts.requests[0].Auth)
	}
}

func TestAPIClient_Unreachable(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	_, err := ts.client().get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := newTestServer(t, map[string]string{})

	resp, err := ts.client().get(ctx, "/v1/products/missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if err.Error() != "server returned 404: not found" {
		t.Errorf("error = %q", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestClientAddr(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"127.0.0.1", "http://127.0.0.1:9000"},
		{"0.0.0.0", "http://127.0.0.1:9000"},
		{"", "http://127.0.0.1:9000"},
		{"inventory.local", "http://inventory.local:9000"},
	}
	for _, tt := range tests {
		cfg := config.Config{Server: config.ServerConfig{Host: tt.host, Port: 9000}}
		if got := clientAddr(cfg); got != tt.want {
			t.Errorf("clientAddr(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestParseSeed(t *testing.T) {
	products, err := parseSeed([]byte(`
products:
  - product_name: Leche Entera 1L
    product_sku: LEC-001
    quantity_on_hand: 50
    quantity_reserved: 10
    stock_status: 1
  - product_name: Café Molido Premium
    quantity_available: 3
    is_active: false
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("products = %d, want 2", len(products))
	}
	if products[0].QuantityAvailable != 40 || !products[0].IsActive || products[0].StockStatus != storage.StockInStock {
		t.Errorf("first = %+v", products[0])
	}
	if products[1].QuantityAvailable != 3 || products[1].IsActive {
		t.Errorf("second = %+v", products[1])
	}
}

func TestParseSeed_RequiresName(t *testing.T) {
	_, err := parseSeed([]byte("products:\n  - product_sku: X\n"))
	if err == nil || !strings.Contains(err.Error(), "product_name is required") {
		t.Errorf("err = %v", err)
	}
}

func TestSeedStore(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer store.Close()

	products, err := parseSeed([]byte("products:\n  - product_name: Arroz\n  - product_name: Frijol\n"))
	if err != nil {
		t.Fatal(err)
	}
	n, err := seedStore(ctx, store, products)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Errorf("seeded = %d, want 2", n)
	}
	count, err := store.CountProducts(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestSeedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seed.yaml")
	if err := os.WriteFile(path, []byte("products:\n  - product_name: Sal\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	n, err := seedFile(ctx, filepath.Join(dir, "data"), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1 {
		t.Errorf("seeded = %d, want 1", n)
	}
}

func TestBootstrapModels_Default(t *testing.T) {
	reg := registry.New()
	cfg := config.Config{Storage: config.StorageConfig{DataDir: t.TempDir()}}

	if err := bootstrapModels(reg, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d, ok := reg.Info(tools.ClassifierModel)
	if !ok {
		t.Fatal("product classifier not registered")
	}
	if d.Stage != registry.StageProduction {
		t.Errorf("stage = %q, want production", d.Stage)
	}
	if n := reg.Preload(ctx, registry.StageProduction); n != 1 {
		t.Errorf("preloaded = %d, want 1", n)
	}
}

func TestBootstrapModels_Manifest(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "models.yaml")
	content := `
models:
  - name: product_classifier
    kind: image_classifier
    stage: staging
    version: 2.0.0
  - name: shelf_classifier
    kind: image_classifier
`
	if err := os.WriteFile(manifest, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	reg := registry.New()
	cfg := config.Config{
		Storage: config.StorageConfig{DataDir: dir},
		Models:  config.ModelsConfig{Manifest: manifest},
	}
	if err := bootstrapModels(reg, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	d, ok := reg.Info(tools.ClassifierModel)
	if !ok || d.Stage != registry.StageStaging || d.Version != "2.0.0" {
		t.Errorf("manifest entry not honored: %+v", d)
	}
	if len(reg.List(nil)) != 2 {
		t.Errorf("registered = %d, want 2", len(reg.List(nil)))
	}
}

func TestBootstrapModels_BadManifest(t *testing.T) {
	cfg := config.Config{Models: config.ModelsConfig{Manifest: filepath.Join(t.TempDir(), "missing.yaml")}}
	if err := bootstrapModels(registry.New(), cfg); err == nil {
		t.Fatal("expected error for missing manifest")
	}
}

func TestBuildApp_WithoutLLM(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	cfg := config.Config{Storage: config.StorageConfig{DataDir: t.TempDir()}}
	a, err := buildApp(ctx, cfg, store, io.Discard)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.inference.Registry().IsLoaded(tools.ClassifierModel) {
		t.Error("classifier should be preloaded")
	}

	_, out := a.search.Search(ctx, "hay leche")
	if !out.FallbackUsed() {
		t.Errorf("outcome = %+v, want fallback", out)
	}
}
