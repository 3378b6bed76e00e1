package policy

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed controls.yaml
var defaultDefinitions []byte

// ValueType is the type a control value is coerced to before comparison.
type ValueType string

const (
	TypeString  ValueType = "String"
	TypeInteger ValueType = "Integer"
)

// SourceComparison binds a control to the transaction field it is compared
// against.
type SourceComparison struct {
	VariableName string `json:"variable_name" yaml:"variable_name"`
	Operator     string `json:"operator" yaml:"operator"`
}

// InputValidation holds the rules a value must satisfy to be stored.
type InputValidation struct {
	Choices           []string `json:"choices,omitempty" yaml:"choices,omitempty"`
	MinValue          *int64   `json:"min_value,omitempty" yaml:"min_value,omitempty"`
	MaxValue          *int64   `json:"max_value,omitempty" yaml:"max_value,omitempty"`
	CanMultipleExists bool     `json:"can_multiple_exists,omitempty" yaml:"can_multiple_exists,omitempty"`
}

// Definition describes one control.
type Definition struct {
	Type            ValueType        `json:"type" yaml:"type"`
	SrcComparison   SourceComparison `json:"src_comparison" yaml:"src_comparison"`
	InputValidation *InputValidation `json:"input_validation,omitempty" yaml:"input_validation,omitempty"`
}

// AllowsMultiple reports whether a card may hold several values for the
// control.
func (d Definition) AllowsMultiple() bool {
	return d.InputValidation != nil && d.InputValidation.CanMultipleExists
}

// Config is the on-disk shape of a control definition file.
type Config struct {
	Controls  map[string]Definition `json:"controls" yaml:"controls"`
	Mandatory MandatorySpec         `json:"mandatory" yaml:"mandatory"`
}

type compiledControl struct {
	def       Definition
	processor Processor
}

// Registry is the immutable set of control definitions known to the process.
type Registry struct {
	controls  map[string]compiledControl
	names     []string
	mandatory MandatorySpec
}

// NewRegistry validates cfg and compiles a processor for every definition.
func NewRegistry(cfg Config) (*Registry, error) {
	if len(cfg.Controls) == 0 {
		return nil, fmt.Errorf("%w: no controls defined", ErrInvalidDefinition)
	}

	r := &Registry{
		controls: make(map[string]compiledControl, len(cfg.Controls)),
	}
	for name, def := range cfg.Controls {
		key := strings.ToUpper(strings.TrimSpace(name))
		if key == "" {
			return nil, fmt.Errorf("%w: empty control name", ErrInvalidDefinition)
		}
		if _, dup := r.controls[key]; dup {
			return nil, fmt.Errorf("%w: duplicate control %q", ErrInvalidDefinition, key)
		}
		proc, err := newProcessor(def)
		if err != nil {
			return nil, fmt.Errorf("control %s: %w", key, err)
		}
		r.controls[key] = compiledControl{def: def, processor: proc}
		r.names = append(r.names, key)
	}
	slices.Sort(r.names)

	for _, entry := range cfg.Mandatory {
		for _, name := range entry.Names {
			if _, ok := r.controls[name]; !ok {
				return nil, fmt.Errorf("%w: references undefined control %q", ErrMalformedMandatorySpec, name)
			}
		}
	}
	r.mandatory = cfg.Mandatory

	return r, nil
}

// ParseConfig decodes a definition file. JSON is used for the .json
// extension, YAML for everything else.
func ParseConfig(data []byte, ext string) (Config, error) {
	var cfg Config
	if strings.EqualFold(ext, ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("failed to decode control definitions: %w", err)
		}
		return cfg, nil
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode control definitions: %w", err)
	}
	return cfg, nil
}

// LoadRegistry reads a definition file from disk. An empty path loads the
// built-in definitions.
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read control definitions: %w", err)
	}
	cfg, err := ParseConfig(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	return NewRegistry(cfg)
}

// DefaultRegistry builds the registry from the embedded controls.yaml.
func DefaultRegistry() (*Registry, error) {
	cfg, err := ParseConfig(defaultDefinitions, ".yaml")
	if err != nil {
		return nil, err
	}
	return NewRegistry(cfg)
}

// Lookup returns the definition for an upper-cased control name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	c, ok := r.controls[name]
	return c.def, ok
}

// Processor returns the compiled processor for name.
func (r *Registry) Processor(name string) (Processor, error) {
	c, ok := r.controls[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownControl, name)
	}
	return c.processor, nil
}

// Validate reports whether value may be stored for the named control.
func (r *Registry) Validate(name, value string) (bool, error) {
	p, err := r.Processor(name)
	if err != nil {
		return false, err
	}
	return p.Validate(value), nil
}

// Names returns the defined control names in ascending order.
func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

// Mandatory returns the mandatory control spec.
func (r *Registry) Mandatory() MandatorySpec {
	return r.mandatory
}
