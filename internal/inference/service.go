package inference

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kalambet/stockwise/internal/metrics"
	"github.com/kalambet/stockwise/internal/registry"
)

var tracer = otel.Tracer("stockwise/inference")

// Preprocessor converts raw input into the form a model expects.
type Preprocessor interface {
	Process(ctx context.Context, input any) (any, error)
}

// BatchPreprocessor is implemented by preprocessors with a native batch path.
type BatchPreprocessor interface {
	ProcessBatch(ctx context.Context, inputs []any) ([]any, error)
}

// PredictionRecord is the normalized result of one inference.
type PredictionRecord struct {
	ModelName  string         `json:"model_name"`
	Prediction any            `json:"prediction"`
	Confidence *float64       `json:"confidence,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ModelInfo is the public view of a registered model.
type ModelInfo struct {
	Name     string         `json:"name"`
	Stage    string         `json:"stage"`
	Version  string         `json:"version"`
	Loaded   bool           `json:"loaded"`
	Metadata map[string]any `json:"metadata"`
}

// Health reports whether a model is ready to serve.
type Health struct {
	Model      string `json:"model"`
	Status     string `json:"status"`
	Registered bool   `json:"registered"`
	Loaded     bool   `json:"loaded"`
}

// Service runs inference against models held by a Registry.
type Service struct {
	registry     *registry.Registry
	preprocessor Preprocessor
}

// NewService creates a Service. preprocessor may be nil.
func NewService(reg *registry.Registry, preprocessor Preprocessor) *Service {
	return &Service{registry: reg, preprocessor: preprocessor}
}

// Registry returns the registry backing this service.
func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// Predict resolves modelName, optionally preprocesses input and runs one
// prediction. Registry errors are wrapped sentinels; model errors are
// returned as-is.
func (s *Service) Predict(ctx context.Context, modelName string, input any, preprocess bool) (PredictionRecord, error) {
	ctx, span := tracer.Start(ctx, "inference.Predict", trace.WithAttributes(
		attribute.String("model", modelName),
		attribute.Bool("preprocess", preprocess),
	))
	defer span.End()

	m, err := s.registry.Load(ctx, modelName)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return PredictionRecord{}, err
	}

	if preprocess && s.preprocessor != nil {
		input, err = s.preprocessor.Process(ctx, input)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return PredictionRecord{}, err
		}
	}

	start := time.Now()
	out, err := m.Predict(ctx, input)
	metrics.RecordPrediction(modelName, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return PredictionRecord{}, err
	}
	return toRecord(modelName, out), nil
}

// PredictBatch runs inference over inputs, preserving order.
func (s *Service) PredictBatch(ctx context.Context, modelName string, inputs []any, preprocess bool) ([]PredictionRecord, error) {
	ctx, span := tracer.Start(ctx, "inference.PredictBatch", trace.WithAttributes(
		attribute.String("model", modelName),
		attribute.Int("batch_size", len(inputs)),
	))
	defer span.End()

	m, err := s.registry.Load(ctx, modelName)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if preprocess && s.preprocessor != nil {
		inputs, err = s.preprocessBatch(ctx, inputs)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
	}

	start := time.Now()
	outs, err := registry.PredictBatch(ctx, m, inputs)
	metrics.RecordPrediction(modelName, time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	records := make([]PredictionRecord, len(outs))
	for i, o := range outs {
		records[i] = toRecord(modelName, o)
	}
	return records, nil
}

func (s *Service) preprocessBatch(ctx context.Context, inputs []any) ([]any, error) {
	if bp, ok := s.preprocessor.(BatchPreprocessor); ok {
		return bp.ProcessBatch(ctx, inputs)
	}
	out := make([]any, len(inputs))
	for i, in := range inputs {
		p, err := s.preprocessor.Process(ctx, in)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// ListAvailableModels returns the names of all registered models.
func (s *Service) ListAvailableModels() []string {
	ds := s.registry.List(nil)
	names := make([]string, len(ds))
	for i, d := range ds {
		names[i] = d.Name
	}
	return names
}

// ListModels returns info for every registered model, filtered to stage when
// non-nil.
func (s *Service) ListModels(stage *registry.Stage) []ModelInfo {
	ds := s.registry.List(stage)
	out := make([]ModelInfo, len(ds))
	for i, d := range ds {
		out[i] = s.toInfo(d)
	}
	return out
}

// ModelInfo returns metadata for modelName without loading it.
func (s *Service) ModelInfo(modelName string) (ModelInfo, bool) {
	d, ok := s.registry.Info(modelName)
	if !ok {
		return ModelInfo{}, false
	}
	return s.toInfo(d), true
}

// HealthCheck reports registration and load state for modelName.
func (s *Service) HealthCheck(modelName string) Health {
	_, registered := s.registry.Info(modelName)
	loaded := s.registry.IsLoaded(modelName)
	status := "registered"
	if loaded {
		status = "ready"
	}
	return Health{Model: modelName, Status: status, Registered: registered, Loaded: loaded}
}

func (s *Service) toInfo(d registry.ModelDescriptor) ModelInfo {
	return ModelInfo{
		Name:     d.Name,
		Stage:    string(d.Stage),
		Version:  d.Version,
		Loaded:   s.registry.IsLoaded(d.Name),
		Metadata: d.Metadata,
	}
}

func toRecord(modelName string, o registry.Output) PredictionRecord {
	return PredictionRecord{
		ModelName:  modelName,
		Prediction: o.Prediction,
		Confidence: o.Confidence,
		Metadata:   o.Metadata,
	}
}
