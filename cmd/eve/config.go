package main

import (
	"errors"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// workspaceConfig is the optional eve.yaml sitting next to a project's
// documents. A missing file is not an error; a malformed one is.
type workspaceConfig struct {
	Docs    []string `yaml:"docs"`
	History string   `yaml:"history"`
}

func loadConfig(path string) (*workspaceConfig, error) {
	cfg := &workspaceConfig{}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
