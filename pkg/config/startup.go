package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// startupFile is the YAML shape of a startup-snippets file:
//
//	startup:
//	  - options(digits = 10)
//	  - library(stats)
type startupFile struct {
	Startup []string `yaml:"startup"`
}

// LoadStartup reads the startup-snippets file at path. Each entry is
// one engine statement, evaluated in order right after launch. A
// missing file yields no snippets and no error; an empty path is
// always empty.
func LoadStartup(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the user's own config
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read startup file %s: %w", path, err)
	}

	var f startupFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse startup file %s: %w", path, err)
	}
	return f.Startup, nil
}
