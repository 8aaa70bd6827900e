// Package config provides the configuration of the extractor.
//
// The component configuration follows the Keboola layout: a JSON (or YAML)
// document with a "parameters" object, read from <data-dir>/config.json.
// Runtime settings that do not belong to a particular extraction (data
// directory, logging, tracing, metrics push) come from flags and AZT_*
// environment variables, see Settings.
//
// Example:
//
//	{
//	  "parameters": {
//	    "db": {"#connectionString": "DefaultEndpointsProtocol=https;AccountName=...;AccountKey=..."},
//	    "table": "people",
//	    "output": "people",
//	    "mode": "raw",
//	    "incrementalFetchingKey": "Timestamp"
//	  }
//	}
package config

import (
	"bytes"
	"fmt"
	"strings"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/aztable-extractor/pkg/compression"
	"github.com/ajitpratap0/aztable-extractor/pkg/entity"
	"github.com/ajitpratap0/aztable-extractor/pkg/errors"
	"github.com/ajitpratap0/aztable-extractor/pkg/query"
)

const (
	// ModeRaw writes every row as JSON into a single table
	ModeRaw = "raw"
	// ModeMapping flattens rows into tables following a mapping
	ModeMapping = "mapping"

	// ActionRun performs the extraction
	ActionRun = "run"
	// ActionTestConnection only probes the connection
	ActionTestConnection = "testConnection"

	// DefaultMaxTries is the default number of attempts of a page read
	DefaultMaxTries = 5
)

// Config is the component configuration
type Config struct {
	Action     string     `json:"action"`
	Parameters Parameters `json:"parameters"`
}

// Parameters are the extraction settings
type Parameters struct {
	DB     DB     `json:"db"`
	Table  string `json:"table"`
	Output string `json:"output"`

	MaxTries *int   `json:"maxTries"`
	Mode     string `json:"mode"`
	// Mapping is kept raw so the key order of the mapping survives
	Mapping gojson.RawMessage `json:"mapping"`

	Incremental            bool    `json:"incremental"`
	IncrementalFetchingKey *string `json:"incrementalFetchingKey"`
	Filter                 *string `json:"filter"`
	Select                 *string `json:"select"`
	Limit                  *int    `json:"limit"`

	Compression string   `json:"compression"`
	Publish     *Publish `json:"publish"`
}

// DB holds the connection secret
type DB struct {
	ConnectionString string `json:"#connectionString"`
}

// Publish configures mirroring of the output files to object storage
type Publish struct {
	Type   string `json:"type"`
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix"`
	Region string `json:"region"`
}

// Decode parses a JSON configuration, applies defaults and validates it
func Decode(data []byte) (*Config, error) {
	return decode(data, "")
}

// decode validates the configuration for action when set, otherwise for
// the action of the document
func decode(data []byte, action string) (*Config, error) {
	var cfg Config
	if err := gojson.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "Invalid configuration file")
	}
	if action != "" {
		cfg.Action = action
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills the optional values
func (c *Config) ApplyDefaults() {
	if c.Action == "" {
		c.Action = ActionRun
	}
	p := &c.Parameters
	if p.MaxTries == nil {
		n := DefaultMaxTries
		p.MaxTries = &n
	}
	if p.Mode == "" {
		p.Mode = ModeMapping
	}
	if p.Compression == "" {
		p.Compression = string(compression.None)
	}
}

// Validate checks the rules a runnable configuration must satisfy
func (c *Config) Validate() error {
	p := &c.Parameters

	if strings.TrimSpace(p.DB.ConnectionString) == "" {
		return invalid(`The child node "#connectionString" at path "root.parameters.db" must be configured.`)
	}

	switch c.Action {
	case ActionTestConnection:
		// Only the connection is used
		return nil
	case ActionRun:
	default:
		return invalid(fmt.Sprintf(`Unknown action "%s".`, c.Action))
	}

	switch {
	case p.Table == "":
		return invalid(`The child node "table" at path "root.parameters" must be configured.`)
	case p.Output == "":
		return invalid(`The child node "output" at path "root.parameters" must be configured.`)
	}

	if p.MaxTries != nil && *p.MaxTries < 1 {
		return invalid(fmt.Sprintf(
			`The value %d is too small for path "root.parameters.maxTries". Should be greater than or equal to 1`, *p.MaxTries))
	}
	if p.Limit != nil && *p.Limit < 1 {
		return invalid(fmt.Sprintf(
			`The value %d is too small for path "root.parameters.limit". Should be greater than or equal to 1`, *p.Limit))
	}

	switch p.Mode {
	case ModeMapping:
		if !p.HasMapping() {
			return invalid(`Invalid configuration, missing "mapping" key, mode is set to "mapping".`)
		}
		if _, err := p.MappingObject(); err != nil {
			return err
		}
	case ModeRaw:
		if p.HasMapping() {
			return invalid(`Invalid configuration, "mapping" is configured, but mode is set to "raw".`)
		}
	default:
		return invalid(fmt.Sprintf(
			`The value "%s" is not allowed for path "root.parameters.mode". Permissible values: "raw", "mapping"`, p.Mode))
	}

	if p.HasIncrementalFetchingKey() {
		for _, other := range []struct {
			name string
			set  bool
		}{
			{"limit", p.Limit != nil},
			{"select", p.Select != nil},
			{"filter", p.Filter != nil},
		} {
			if other.set {
				return invalid(fmt.Sprintf(
					`Invalid configuration, "incrementalFetchingKey" cannot be configured together with "%s".`, other.name))
			}
		}
	}

	if _, err := compression.ParseAlgorithm(p.Compression); err != nil {
		return invalid(fmt.Sprintf(
			`The value "%s" is not allowed for path "root.parameters.compression". `+
				`Permissible values: "none", "gzip", "snappy", "lz4", "zstd", "s2"`, p.Compression))
	}

	if p.Publish != nil {
		if p.Publish.Type != "s3" && p.Publish.Type != "gcs" {
			return invalid(fmt.Sprintf(
				`The value "%s" is not allowed for path "root.parameters.publish.type". Permissible values: "s3", "gcs"`,
				p.Publish.Type))
		}
		if p.Publish.Bucket == "" {
			return invalid(`The child node "bucket" at path "root.parameters.publish" must be configured.`)
		}
	}

	return nil
}

func invalid(msg string) error {
	return errors.New(errors.ErrorTypeConfig, msg)
}

// HasMapping reports whether a mapping is configured
func (p *Parameters) HasMapping() bool {
	trimmed := bytes.TrimSpace(p.Mapping)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// MappingObject decodes the mapping keeping key order
func (p *Parameters) MappingObject() (*entity.Object, error) {
	if !p.HasMapping() {
		return nil, nil
	}
	obj := entity.NewObject()
	if err := obj.UnmarshalJSON(p.Mapping); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, `Invalid configuration, "mapping" must be an object`)
	}
	return obj, nil
}

// HasIncrementalFetchingKey reports whether incremental fetching is enabled
func (p *Parameters) HasIncrementalFetchingKey() bool {
	return p.IncrementalFetchingKey != nil && *p.IncrementalFetchingKey != ""
}

// IncrementalKey returns the incremental fetching key, empty when disabled
func (p *Parameters) IncrementalKey() string {
	if !p.HasIncrementalFetchingKey() {
		return ""
	}
	return *p.IncrementalFetchingKey
}

// SelectFields returns the trimmed field selection
func (p *Parameters) SelectFields() []string {
	if p.Select == nil {
		return nil
	}
	return query.ParseSelect(*p.Select)
}

// FilterExpr returns the static filter, empty when not configured
func (p *Parameters) FilterExpr() string {
	if p.Filter == nil {
		return ""
	}
	return *p.Filter
}

// LimitValue returns the row cap, zero when not configured
func (p *Parameters) LimitValue() int {
	if p.Limit == nil {
		return 0
	}
	return *p.Limit
}

// Attempts returns the configured maximum number of attempts
func (p *Parameters) Attempts() int {
	if p.MaxTries == nil {
		return DefaultMaxTries
	}
	return *p.MaxTries
}

// CompressionAlgorithm returns the output compression
func (p *Parameters) CompressionAlgorithm() compression.Algorithm {
	a, err := compression.ParseAlgorithm(p.Compression)
	if err != nil {
		return compression.None
	}
	return a
}
