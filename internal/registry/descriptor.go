package registry

import (
	"fmt"
	"strings"
)

// Stage is the lifecycle stage of a registered model.
type Stage string

const (
	StageDevelopment Stage = "development"
	StageStaging     Stage = "staging"
	StageProduction  Stage = "production"
	StageArchived    Stage = "archived"
)

// ParseStage converts s to a Stage. An empty string yields StageDevelopment.
func ParseStage(s string) (Stage, error) {
	switch st := Stage(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StageDevelopment, nil
	case StageDevelopment, StageStaging, StageProduction, StageArchived:
		return st, nil
	default:
		return "", fmt.Errorf("unknown model stage %q", s)
	}
}

const defaultVersion = "1.0.0"

// ModelDescriptor is the registration record for a named model.
type ModelDescriptor struct {
	Name             string
	Factory          Factory
	ArtifactLocation string
	Stage            Stage
	Version          string
	Metadata         map[string]any
}

// Option customizes a descriptor at registration time.
type Option func(*ModelDescriptor)

func WithStage(s Stage) Option {
	return func(d *ModelDescriptor) { d.Stage = s }
}

func WithVersion(v string) Option {
	return func(d *ModelDescriptor) { d.Version = v }
}

// WithMetadata copies md into the descriptor.
func WithMetadata(md map[string]any) Option {
	return func(d *ModelDescriptor) {
		for k, v := range md {
			d.Metadata[k] = v
		}
	}
}

func cloneDescriptor(d ModelDescriptor) ModelDescriptor {
	md := make(map[string]any, len(d.Metadata))
	for k, v := range d.Metadata {
		md[k] = v
	}
	d.Metadata = md
	return d
}
