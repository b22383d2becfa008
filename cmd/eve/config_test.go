package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Config_Missing_File_Is_Empty(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Docs)
}

func Test_Config_Parses_Docs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eve.yaml")
	require.NoError(t, os.WriteFile(path, []byte("docs:\n  - a.eve\n  - b.eve\nhistory: .hist\n"), 0o644))
	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.eve", "b.eve"}, cfg.Docs)
	assert.Equal(t, ".hist", cfg.History)
}

func Test_Config_Rejects_Malformed_Yaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eve.yaml")
	require.NoError(t, os.WriteFile(path, []byte(":\t:"), 0o644))
	_, err := loadConfig(path)
	assert.Error(t, err)
}
