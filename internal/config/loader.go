package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"
)

// LoadAndValidate loads and validates the configuration. The format is picked
// from the file extension: .toml is TOML, anything else is YAML.
func LoadAndValidate(path, schemaPath string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config: %w", err)
	}

	unmarshal := yaml.Unmarshal
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		unmarshal = toml.Unmarshal
	}

	var raw any
	if err := unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: invalid %s: %w", formatName(path), err)
	}

	doc, err := normalize(raw)
	if err != nil {
		return nil, err
	}

	schema, err := jsonschema.Compile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("config: failed to compile schema: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	var config Config
	if err := unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal into Config struct: %w", err)
	}

	ApplyDefaults(&config)

	return &config, nil
}

// normalize round-trips a decoded document through JSON so the schema
// validator only sees JSON types.
func normalize(raw any) (any, error) {
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("config: document is not JSON compatible: %w", err)
	}

	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("config: document is not JSON compatible: %w", err)
	}
	return doc, nil
}

func formatName(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return "TOML"
	}
	return "YAML"
}
