package incremental

import (
	"bytes"
	"os"
	"path/filepath"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/aztable-extractor/pkg/errors"
)

// State is the watermark persisted between runs
type State struct {
	Key   string      `json:"maxIncrementalKey"`
	Value interface{} `json:"maxIncrementalValue"`
	Type  string      `json:"maxIncrementalValueType"`
}

// LoadState reads a state file. A missing or empty file is an empty state.
func LoadState(path string) (State, error) {
	var st State

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return st, nil
	}
	if err != nil {
		return st, errors.Wrap(err, errors.ErrorTypeFile, "failed to read state file").
			WithDetail("path", path)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return st, nil
	}

	dec := gojson.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&st); err != nil {
		return st, errors.Wrap(err, errors.ErrorTypeConfig, "invalid state file").
			WithDetail("path", path)
	}
	return st, nil
}

// SaveState writes a state file, creating its directory
func SaveState(path string, st State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create state directory")
	}

	data, err := gojson.Marshal(st)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode state")
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write state file").
			WithDetail("path", path)
	}
	return nil
}
