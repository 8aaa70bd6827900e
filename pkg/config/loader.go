package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gojson "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/aztable-extractor/pkg/entity"
	"github.com/ajitpratap0/aztable-extractor/pkg/errors"
)

// FileNames are looked up in the data directory, in order
var FileNames = []string{"config.json", "config.yaml", "config.yml"}

// Find returns the configuration file of a data directory
func Find(dataDir string) (string, error) {
	for _, name := range FileNames {
		path := filepath.Join(dataDir, name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", errors.Newf(errors.ErrorTypeConfig,
		"Configuration file not found in \"%s\", expected one of: %s.", dataDir, strings.Join(FileNames, ", "))
}

// Load reads a JSON or YAML configuration file. ${VAR} references are
// replaced with environment variables before parsing.
func Load(filePath string) (*Config, error) {
	return LoadFor(filePath, "")
}

// LoadFor is Load with the action of the file overridden by action, unless
// action is empty
func LoadFor(filePath, action string) (*Config, error) {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the data directory
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file").
			WithDetail("path", filePath)
	}

	content := []byte(substituteEnvVars(string(data)))

	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		content, err = yamlToJSON(content)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "Invalid configuration file")
		}
	}

	return decode(content, action)
}

// yamlToJSON converts a YAML document to JSON keeping mapping key order
func yamlToJSON(data []byte) ([]byte, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(doc.Content) == 0 {
		return []byte("{}"), nil
	}

	v, err := convertNode(doc.Content[0])
	if err != nil {
		return nil, err
	}
	return gojson.Marshal(v)
}

func convertNode(n *yaml.Node) (interface{}, error) {
	switch n.Kind {
	case yaml.MappingNode:
		obj := entity.NewObject()
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			v, err := convertNode(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			obj.Set(key, v)
		}
		return obj, nil
	case yaml.SequenceNode:
		arr := make([]interface{}, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := convertNode(c)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		return arr, nil
	case yaml.AliasNode:
		return convertNode(n.Alias)
	case yaml.ScalarNode:
		var v interface{}
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported YAML node at line %d", n.Line)
	}
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	var b strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		b.WriteString(content[:start])
		b.WriteString(os.Getenv(content[start+2 : end]))
		content = content[end+1:]
	}
	b.WriteString(content)
	return b.String()
}
