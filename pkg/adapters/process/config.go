package process

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// InterpreterConfig describes one allow-listed interpreter. The sandbox only
// ever executes a command registered here; plan content cannot name a binary.
type InterpreterConfig struct {
	Name        string            `yaml:"name" json:"name"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Ext         string            `yaml:"ext" json:"ext"`
	Env         map[string]string `yaml:"env" json:"env"`
	Description string            `yaml:"description" json:"description"`
}

type configFile struct {
	Interpreters []InterpreterConfig `yaml:"interpreters" json:"interpreters"`
}

// LoadInterpreters reads an interpreters file (YAML, or JSON by extension)
// into a name-keyed registry. A missing file is an empty registry, not an
// error.
func LoadInterpreters(path string) (map[string]InterpreterConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]InterpreterConfig{}, nil
		}
		return nil, fmt.Errorf("process: read interpreters config: %w", err)
	}

	var cfg configFile
	if strings.ToLower(filepath.Ext(path)) == ".json" {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("process: parse %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("process: parse %s: %w", path, err)
		}
	}

	out := make(map[string]InterpreterConfig, len(cfg.Interpreters))
	for _, ic := range cfg.Interpreters {
		if ic.Name == "" || ic.Command == "" {
			continue
		}
		out[ic.Name] = ic
	}
	return out, nil
}
