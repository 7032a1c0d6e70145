// Package config reads, validates and writes the project configuration file
// (config.yaml) that declares a project's parameters and events.
package config

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// CurrentVersion is written by init and accepted by Validate.
	CurrentVersion = "1.0"
	// DefaultDir is the directory holding the project config.
	DefaultDir = ".traffical"
	// DefaultFileName is the project config file name.
	DefaultFileName = "config.yaml"
	// SchemaFileName is the JSON Schema written next to the config.
	SchemaFileName = "config.schema.json"
)

// ErrNotFound is returned by Load when the config file does not exist.
var ErrNotFound = errors.New("config file not found")

// DefaultPath returns the project-relative default config location.
func DefaultPath() string {
	return filepath.Join(DefaultDir, DefaultFileName)
}

// Config is the parsed contents of config.yaml.
type Config struct {
	Version    string               `yaml:"version" json:"version" jsonschema:"required,description=Config file format version"`
	Project    Project              `yaml:"project" json:"project" jsonschema:"required"`
	Parameters map[string]Parameter `yaml:"parameters,omitempty" json:"parameters,omitempty" jsonschema:"description=Parameters keyed by dot-notation key"`
	Events     map[string]Event     `yaml:"events,omitempty" json:"events,omitempty" jsonschema:"description=Events keyed by snake_case name"`
}

// Project identifies the platform project the file belongs to.
type Project struct {
	ID    string `yaml:"id" json:"id" jsonschema:"required"`
	OrgID string `yaml:"orgId,omitempty" json:"orgId,omitempty"`
}

// Parameter declares a typed, defaulted configuration value.
type Parameter struct {
	Type        ParameterType `yaml:"type" json:"type" jsonschema:"required,enum=string,enum=number,enum=boolean,enum=json"`
	Default     any           `yaml:"default" json:"default" jsonschema:"required"`
	Description string        `yaml:"description,omitempty" json:"description,omitempty"`
	Namespace   string        `yaml:"namespace,omitempty" json:"namespace,omitempty"`
}

// Event declares a trackable conversion event.
type Event struct {
	ValueType   ValueType `yaml:"valueType" json:"valueType" jsonschema:"required,enum=currency,enum=count,enum=rate,enum=boolean"`
	Unit        string    `yaml:"unit,omitempty" json:"unit,omitempty"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
}

// New returns an empty config for the given project.
func New(projectID, orgID string) *Config {
	return &Config{
		Version:    CurrentVersion,
		Project:    Project{ID: projectID, OrgID: orgID},
		Parameters: map[string]Parameter{},
		Events:     map[string]Event{},
	}
}

// Load reads and parses the config file at path. It does not validate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrNotFound, "%s", path)
		}
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", path)
	}
	return cfg, nil
}

// Parse decodes config YAML. Unknown keys are rejected so typos surface.
func Parse(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	cfg := &Config{}
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("config file is empty")
		}
		return nil, err
	}

	if cfg.Parameters == nil {
		cfg.Parameters = map[string]Parameter{}
	}
	if cfg.Events == nil {
		cfg.Events = map[string]Event{}
	}
	for key, p := range cfg.Parameters {
		p.Default = normalizeValue(p.Default)
		cfg.Parameters[key] = p
	}
	return cfg, nil
}

// Marshal renders the config as YAML with two-space indentation.
func (c *Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, errors.Wrap(err, "failed to encode config")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to encode config")
	}
	return buf.Bytes(), nil
}

// Save writes the config to path, creating parent directories.
func (c *Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write config file %s", path)
	}
	return nil
}

// Clone returns a deep copy so callers can mutate without affecting c.
func (c *Config) Clone() *Config {
	out := &Config{
		Version:    c.Version,
		Project:    c.Project,
		Parameters: make(map[string]Parameter, len(c.Parameters)),
		Events:     make(map[string]Event, len(c.Events)),
	}
	for k, p := range c.Parameters {
		p.Default = cloneValue(p.Default)
		out.Parameters[k] = p
	}
	for k, e := range c.Events {
		out.Events[k] = e
	}
	return out
}

// SortedParameterKeys returns parameter keys in lexical order.
func (c *Config) SortedParameterKeys() []string {
	keys := make([]string, 0, len(c.Parameters))
	for k := range c.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SortedEventNames returns event names in lexical order.
func (c *Config) SortedEventNames() []string {
	names := make([]string, 0, len(c.Events))
	for k := range c.Events {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// normalizeValue converts yaml.v3 decode output into JSON-compatible shapes
// (map[string]any instead of map[any]any) so defaults compare and marshal
// the same way remote values do.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeValue(item)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if ks, ok := k.(string); ok {
				out[ks] = normalizeValue(item)
			}
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}

func cloneValue(v any) any {
	return normalizeValue(v)
}
