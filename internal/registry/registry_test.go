package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// --- mock model ---

type mockModel struct {
	loadFn    func(ctx context.Context, location string) error
	predictFn func(ctx context.Context, input any) (Output, error)
	unloaded  atomic.Bool
}

func (m *mockModel) Load(ctx context.Context, location string) error {
	if m.loadFn != nil {
		return m.loadFn(ctx, location)
	}
	return nil
}

func (m *mockModel) Predict(ctx context.Context, input any) (Output, error) {
	if m.predictFn != nil {
		return m.predictFn(ctx, input)
	}
	return Output{Prediction: input, Confidence: Confidence(1)}, nil
}

func (m *mockModel) Unload() error {
	m.unloaded.Store(true)
	return nil
}

type batchModel struct {
	mockModel
	batchCalls int
}

func (m *batchModel) PredictBatch(ctx context.Context, inputs []any) ([]Output, error) {
	m.batchCalls++
	out := make([]Output, len(inputs))
	for i, in := range inputs {
		out[i] = Output{Prediction: in}
	}
	return out, nil
}

func mockFactory() Factory {
	return func() Model { return &mockModel{} }
}

// --- tests ---

func TestRegister_Defaults(t *testing.T) {
	r := New()
	if err := r.Register("m", mockFactory(), "/models/m"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	d, ok := r.Info("m")
	if !ok {
		t.Fatal("Info returned false after Register")
	}
	if d.Stage != StageDevelopment || d.Version != "1.0.0" || d.ArtifactLocation != "/models/m" {
		t.Errorf("unexpected defaults: %+v", d)
	}
	if d.Metadata == nil || len(d.Metadata) != 0 {
		t.Errorf("expected empty metadata map, got %v", d.Metadata)
	}
	if r.IsLoaded("m") {
		t.Error("Register must not load the model")
	}
}

func TestRegister_Validation(t *testing.T) {
	r := New()
	if err := r.Register("", mockFactory(), ""); err == nil {
		t.Error("expected error for empty name")
	}
	if err := r.Register("m", nil, ""); err == nil {
		t.Error("expected error for nil factory")
	}
}

func TestLoadUnloadLifecycle(t *testing.T) {
	r := New()
	r.Register("m", mockFactory(), "")
	ctx := context.Background()

	m1, err := r.Load(ctx, "m")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !r.IsLoaded("m") {
		t.Fatal("expected IsLoaded after Load")
	}

	m2, err := r.Load(ctx, "m")
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if m1 != m2 {
		t.Error("expected cached handle on second Load")
	}

	r.Unload("m")
	if r.IsLoaded("m") {
		t.Error("expected not loaded after Unload")
	}
	if _, ok := r.Info("m"); !ok {
		t.Error("descriptor must survive Unload")
	}
	if !m1.(*mockModel).unloaded.Load() {
		t.Error("expected Unloader to be called on eviction")
	}
}

func TestLoad_NotRegistered(t *testing.T) {
	r := New()
	_, err := r.Load(context.Background(), "ghost_model")
	if !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
	if r.IsLoaded("ghost_model") {
		t.Error("failed Load must not cache a handle")
	}
	if len(r.List(nil)) != 0 {
		t.Error("failed Load must not create a descriptor")
	}
	if len(r.locks) != 0 {
		t.Error("failed Load must not create per-name state")
	}
}

func TestLoad_FailureNotCached(t *testing.T) {
	r := New()
	var attempts atomic.Int32
	cause := errors.New("corrupt artifact")
	r.Register("bad", func() Model {
		return &mockModel{loadFn: func(ctx context.Context, location string) error {
			attempts.Add(1)
			return cause
		}}
	}, "/bad")

	_, err := r.Load(context.Background(), "bad")
	if !errors.Is(err, ErrLoadFailed) {
		t.Fatalf("expected ErrLoadFailed, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected cause to be wrapped, got %v", err)
	}
	if r.IsLoaded("bad") {
		t.Error("failed load must leave no cached handle")
	}

	r.Load(context.Background(), "bad")
	if attempts.Load() != 2 {
		t.Errorf("expected retry on next Load, got %d attempts", attempts.Load())
	}
}

// TestLoad_ConcurrentSingleLoad verifies that concurrent first callers share
// exactly one underlying load.
func TestLoad_ConcurrentSingleLoad(t *testing.T) {
	r := New()
	var loads atomic.Int32
	release := make(chan struct{})
	r.Register("slow", func() Model {
		return &mockModel{loadFn: func(ctx context.Context, location string) error {
			loads.Add(1)
			<-release
			return nil
		}}
	}, "")

	const callers = 16
	var wg sync.WaitGroup
	handles := make([]Model, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = r.Load(context.Background(), "slow")
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if n := loads.Load(); n != 1 {
		t.Fatalf("expected exactly 1 load, got %d", n)
	}
	for i := range handles {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if handles[i] != handles[0] {
			t.Fatalf("caller %d received a different handle", i)
		}
	}
}

// TestLoad_DifferentNamesIndependent verifies a slow load does not block
// loading another name.
func TestLoad_DifferentNamesIndependent(t *testing.T) {
	r := New()
	release := make(chan struct{})
	defer close(release)
	r.Register("slow", func() Model {
		return &mockModel{loadFn: func(ctx context.Context, location string) error {
			<-release
			return nil
		}}
	}, "")
	r.Register("fast", mockFactory(), "")

	go r.Load(context.Background(), "slow")
	time.Sleep(20 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := r.Load(context.Background(), "fast")
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Load(fast): %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loading fast model blocked behind slow model")
	}
}

func TestLoad_CallerContextCancelled(t *testing.T) {
	r := New()
	release := make(chan struct{})
	r.Register("slow", func() Model {
		return &mockModel{loadFn: func(ctx context.Context, location string) error {
			<-release
			return nil
		}}
	}, "")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Load(ctx, "slow")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}

	close(release)
	if _, err := r.Load(context.Background(), "slow"); err != nil {
		t.Fatalf("Load after cancelled caller: %v", err)
	}
	if !r.IsLoaded("slow") {
		t.Error("expected model to be loaded")
	}
}

func TestRegister_DoesNotAffectLoadedHandle(t *testing.T) {
	r := New()
	r.Register("m", mockFactory(), "/v1")
	m1, _ := r.Load(context.Background(), "m")

	r.Register("m", mockFactory(), "/v2")
	if !r.IsLoaded("m") {
		t.Fatal("re-register must not evict the loaded handle")
	}
	m2, _ := r.Load(context.Background(), "m")
	if m1 != m2 {
		t.Error("expected same handle after re-register")
	}

	m3, err := r.Reload(context.Background(), "m")
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if m3 == m1 {
		t.Error("Reload must produce a fresh handle")
	}
}

func TestUnregister(t *testing.T) {
	r := New()
	r.Register("m", mockFactory(), "")
	m, _ := r.Load(context.Background(), "m")

	r.Unregister("m")
	if _, ok := r.Info("m"); ok {
		t.Error("descriptor should be removed")
	}
	if r.IsLoaded("m") {
		t.Error("handle should be evicted")
	}
	if !m.(*mockModel).unloaded.Load() {
		t.Error("expected Unloader to be called")
	}

	r.Unregister("never-registered")
}

func TestList_FilterByStage(t *testing.T) {
	r := New()
	r.Register("b", mockFactory(), "", WithStage(StageProduction))
	r.Register("a", mockFactory(), "", WithStage(StageProduction))
	r.Register("c", mockFactory(), "")

	all := r.List(nil)
	if len(all) != 3 || all[0].Name != "a" {
		t.Fatalf("List(nil) = %+v", all)
	}

	prod := StageProduction
	got := r.List(&prod)
	if len(got) != 2 || got[0].Name != "a" || got[1].Name != "b" {
		t.Errorf("List(production) = %+v", got)
	}
	for _, d := range got {
		if r.IsLoaded(d.Name) {
			t.Error("List must not load models")
		}
	}
}

func TestInfo_ReturnsCopy(t *testing.T) {
	r := New()
	r.Register("m", mockFactory(), "", WithMetadata(map[string]any{"k": "v"}))
	d, _ := r.Info("m")
	d.Metadata["k"] = "changed"

	d2, _ := r.Info("m")
	if d2.Metadata["k"] != "v" {
		t.Error("Info must return an independent copy of metadata")
	}
}

func TestPreload(t *testing.T) {
	r := New()
	r.Register("p1", mockFactory(), "", WithStage(StageProduction))
	r.Register("p2", func() Model {
		return &mockModel{loadFn: func(ctx context.Context, location string) error {
			return errors.New("boom")
		}}
	}, "", WithStage(StageProduction))
	r.Register("dev", mockFactory(), "")

	n := r.Preload(context.Background(), StageProduction)
	if n != 1 {
		t.Errorf("Preload loaded %d models, want 1", n)
	}
	if !r.IsLoaded("p1") || r.IsLoaded("dev") {
		t.Error("unexpected loaded set after Preload")
	}
}

func TestPredictBatch_NativeAndSequential(t *testing.T) {
	ctx := context.Background()
	bm := &batchModel{}
	out, err := PredictBatch(ctx, bm, []any{"a", "b"})
	if err != nil {
		t.Fatalf("PredictBatch: %v", err)
	}
	if bm.batchCalls != 1 || len(out) != 2 {
		t.Errorf("expected native batch path, calls=%d len=%d", bm.batchCalls, len(out))
	}

	var calls int
	sm := &mockModel{predictFn: func(ctx context.Context, input any) (Output, error) {
		calls++
		return Output{Prediction: input}, nil
	}}
	out, err = PredictBatch(ctx, sm, []any{"x", "y", "z"})
	if err != nil {
		t.Fatalf("PredictBatch: %v", err)
	}
	if calls != 3 || out[2].Prediction != "z" {
		t.Errorf("sequential fallback: calls=%d out=%+v", calls, out)
	}
}

func TestPredictSequential_StopsOnError(t *testing.T) {
	var calls int
	m := &mockModel{predictFn: func(ctx context.Context, input any) (Output, error) {
		calls++
		if input == "bad" {
			return Output{}, errors.New("bad input")
		}
		return Output{}, nil
	}}
	_, err := PredictSequential(context.Background(), m, []any{"ok", "bad", "never"})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 2 {
		t.Errorf("expected 2 calls before abort, got %d", calls)
	}
}

func TestParseStage(t *testing.T) {
	tests := []struct {
		in      string
		want    Stage
		wantErr bool
	}{
		{"", StageDevelopment, false},
		{"Production", StageProduction, false},
		{"staging", StageStaging, false},
		{"archived", StageArchived, false},
		{"retired", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStage(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseStage(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestApplyManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models.yaml")
	content := `models:
  - name: product_classifier
    kind: image_classifier
    path: /models/classifier
    stage: production
    version: "2.1.0"
    metadata:
      owner: vision
  - name: shelf_detector
    kind: image_classifier
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if !m.Has("product_classifier") || m.Has("missing") {
		t.Error("Has returned unexpected result")
	}

	r := New()
	if err := ApplyManifest(r, m, map[string]Factory{"image_classifier": mockFactory()}); err != nil {
		t.Fatalf("ApplyManifest: %v", err)
	}

	d, ok := r.Info("product_classifier")
	if !ok {
		t.Fatal("product_classifier not registered")
	}
	if d.Stage != StageProduction || d.Version != "2.1.0" || d.ArtifactLocation != "/models/classifier" {
		t.Errorf("unexpected descriptor: %+v", d)
	}
	if d.Metadata["owner"] != "vision" {
		t.Errorf("metadata not applied: %v", d.Metadata)
	}

	d2, _ := r.Info("shelf_detector")
	if d2.Stage != StageDevelopment || d2.Version != "1.0.0" {
		t.Errorf("expected defaults for shelf_detector: %+v", d2)
	}
}

func TestApplyManifest_UnknownKind(t *testing.T) {
	m := Manifest{Models: []ManifestEntry{{Name: "x", Kind: "transformer"}}}
	if err := ApplyManifest(New(), m, map[string]Factory{}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestLoadManifest_Missing(t *testing.T) {
	if _, err := LoadManifest(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
