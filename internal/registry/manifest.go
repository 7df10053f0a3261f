package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ManifestEntry describes one model in a manifest file.
type ManifestEntry struct {
	Name     string         `yaml:"name"`
	Kind     string         `yaml:"kind"`
	Path     string         `yaml:"path"`
	Stage    string         `yaml:"stage"`
	Version  string         `yaml:"version"`
	Metadata map[string]any `yaml:"metadata"`
}

// Manifest is the on-disk list of models to register at startup.
type Manifest struct {
	Models []ManifestEntry `yaml:"models"`
}

// LoadManifest reads and parses a YAML manifest.
func LoadManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("reading model manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parsing model manifest %s: %w", path, err)
	}
	return m, nil
}

// Has reports whether the manifest declares a model called name.
func (m Manifest) Has(name string) bool {
	for _, e := range m.Models {
		if e.Name == name {
			return true
		}
	}
	return false
}

// ApplyManifest registers every manifest entry, resolving each kind through
// factories. It stops at the first invalid entry.
func ApplyManifest(r *Registry, m Manifest, factories map[string]Factory) error {
	for i, e := range m.Models {
		if e.Name == "" {
			return fmt.Errorf("manifest entry %d: name is required", i)
		}
		factory, ok := factories[e.Kind]
		if !ok {
			return fmt.Errorf("manifest entry %q: unknown kind %q", e.Name, e.Kind)
		}
		stage, err := ParseStage(e.Stage)
		if err != nil {
			return fmt.Errorf("manifest entry %q: %w", e.Name, err)
		}
		opts := []Option{WithStage(stage), WithMetadata(e.Metadata)}
		if e.Version != "" {
			opts = append(opts, WithVersion(e.Version))
		}
		if err := r.Register(e.Name, factory, e.Path, opts...); err != nil {
			return err
		}
	}
	return nil
}
