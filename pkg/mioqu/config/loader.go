package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format names a supported document encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// FormatOf maps a file path to its Format by extension (.yaml, .yml, .json).
func FormatOf(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported config file extension: %q", ext)
	}
}

// FromFile loads configuration from a file, picking the decoder by extension.
func FromFile(path string) (Config, error) {
	format, err := FormatOf(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data, format)
}

// Parse decodes data in the given format into a Config.
// An empty document yields an empty Config.
func Parse(data []byte, format Format) (Config, error) {
	var m map[string]any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &m); err != nil {
			return Config{}, fmt.Errorf("parse yaml: %w", err)
		}
	case FormatJSON:
		if len(strings.TrimSpace(string(data))) == 0 {
			return New(nil), nil
		}
		if err := json.Unmarshal(data, &m); err != nil {
			return Config{}, fmt.Errorf("parse json: %w", err)
		}
	default:
		return Config{}, fmt.Errorf("unsupported config format: %q", format)
	}
	return New(m), nil
}

// FromYAML parses YAML data into a Config.
func FromYAML(data []byte) (Config, error) {
	return Parse(data, FormatYAML)
}

// FromJSON parses JSON data into a Config.
func FromJSON(data []byte) (Config, error) {
	return Parse(data, FormatJSON)
}
