package classifier

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/kalambet/stockwise/internal/registry"
)

// Kind is the manifest kind served by this package.
const Kind = "image_classifier"

const (
	modelVersion      = "1.0.0"
	unknownProduct    = "unknown_product"
	unknownConfidence = 0.85
	labelsFile        = "labels.yaml"
)

// ErrNotLoaded is returned by Predict before a successful Load.
var ErrNotLoaded = errors.New("model not loaded")

// Label maps a set of filename keywords to a detected product.
type Label struct {
	Keywords   []string `yaml:"keywords"`
	Product    string   `yaml:"product"`
	Confidence float64  `yaml:"confidence"`
}

type labelFile struct {
	Labels []Label `yaml:"labels"`
}

// DefaultLabels is the built-in keyword table used when the artifact
// location carries no labels.yaml.
var DefaultLabels = []Label{
	{Keywords: []string{"milk", "leche"}, Product: "Leche Entera 1L", Confidence: 0.98},
	{Keywords: []string{"coffee", "cafe"}, Product: "Café Molido Premium", Confidence: 0.95},
	{Keywords: []string{"cereal"}, Product: "Cereal Avena", Confidence: 0.92},
}

// ImageClassifier is the demo product classifier. It identifies products by
// keywords found in the image path; non-path inputs are reported as unknown.
type ImageClassifier struct {
	mu       sync.RWMutex
	loaded   bool
	location string
	labels   []Label
}

// New returns an unloaded classifier.
func New() *ImageClassifier {
	return &ImageClassifier{}
}

// Factory adapts New to registry.Factory.
func Factory() registry.Model {
	return New()
}

// Load records the artifact location and reads labels.yaml from it when
// present. location may be a directory or the label file itself.
func (c *ImageClassifier) Load(ctx context.Context, location string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	labels, err := readLabels(location)
	if err != nil {
		return err
	}
	if len(labels) == 0 {
		labels = DefaultLabels
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.location = location
	c.labels = labels
	c.loaded = true
	return nil
}

// Unload releases the label table.
func (c *ImageClassifier) Unload() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
	c.labels = nil
	return nil
}

// Predict classifies one input.
func (c *ImageClassifier) Predict(ctx context.Context, input any) (registry.Output, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return registry.Output{}, ErrNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return registry.Output{}, err
	}

	product, confidence, classID := unknownProduct, unknownConfidence, 0
	if path, ok := input.(string); ok {
		lower := strings.ToLower(path)
	match:
		for i, l := range c.labels {
			for _, kw := range l.Keywords {
				if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
					product, confidence, classID = l.Product, l.Confidence, i+1
					break match
				}
			}
		}
	}

	return registry.Output{
		Prediction: product,
		Confidence: registry.Confidence(confidence),
		Metadata: map[string]any{
			"model_version": modelVersion,
			"class_id":      classID,
		},
	}, nil
}

// Labels returns the active label table.
func (c *ImageClassifier) Labels() []Label {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Label, len(c.labels))
	copy(out, c.labels)
	return out
}

func readLabels(location string) ([]Label, error) {
	if location == "" {
		return nil, nil
	}
	path := location
	if ext := strings.ToLower(filepath.Ext(location)); ext != ".yaml" && ext != ".yml" {
		path = filepath.Join(location, labelsFile)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading labels: %w", err)
	}

	var lf labelFile
	if err := yaml.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parsing labels %s: %w", path, err)
	}
	for i, l := range lf.Labels {
		if l.Product == "" {
			return nil, fmt.Errorf("label %d in %s: product is required", i, path)
		}
		if l.Confidence < 0 || l.Confidence > 1 {
			return nil, fmt.Errorf("label %q in %s: confidence must be in [0,1]", l.Product, path)
		}
	}
	return lf.Labels, nil
}
