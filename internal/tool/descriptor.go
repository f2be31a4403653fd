package tool

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Feaskye/SkyeAI-sub001/internal/model"
)

//go:embed defaults.yaml
var defaultCatalogue []byte

// Descriptor declares an external tool exposed as a skill.
type Descriptor struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description,omitempty" json:"description,omitempty"`
	Type        string         `yaml:"type,omitempty" json:"type,omitempty"`
	Endpoint    string         `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Enabled     *bool          `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Version     string         `yaml:"version,omitempty" json:"version,omitempty"`
	Parameters  map[string]any `yaml:"parameters,omitempty" json:"parameters,omitempty"`
}

// IsEnabled reports whether the tool should be registered. Tools are
// enabled unless explicitly disabled.
func (d Descriptor) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

// VersionOrDefault returns the declared version or model.DefaultVersion.
func (d Descriptor) VersionOrDefault() string {
	if d.Version == "" {
		return model.DefaultVersion
	}
	return d.Version
}

// Validate checks the fields required for registration.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.New("tool name cannot be empty")
	}
	return nil
}

// ErrInvalidDescriptor is returned for tool catalogues that fail to parse.
var ErrInvalidDescriptor = errors.New("invalid tool descriptor")

// ParseDescriptors decodes a YAML list of tool descriptors and validates
// each entry.
func ParseDescriptors(data []byte) ([]Descriptor, error) {
	var out []Descriptor
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	for i, d := range out {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("%w: tool %d: %v", ErrInvalidDescriptor, i, err)
		}
	}
	return out, nil
}

// DefaultDescriptors returns the built-in tool catalogue.
func DefaultDescriptors() []Descriptor {
	ds, err := ParseDescriptors(defaultCatalogue)
	if err != nil {
		panic(fmt.Sprintf("embedded tool catalogue is invalid: %v", err))
	}
	return ds
}
