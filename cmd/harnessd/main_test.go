package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandsRegistered(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["status"])
	assert.True(t, names["version"])
}

func TestRunRequiresSession(t *testing.T) {
	require.Error(t, runCmd.ValidateRequiredFlags())
}

func TestLoadFeatures(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "features.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"id": "f1", "description": "login works", "steps": ["run the login test"]},
		{"id": "f2", "description": "logout works", "steps": ["run the logout test"]}
	]`), 0600))

	features, err := loadFeatures(path)
	require.NoError(t, err)
	require.Len(t, features, 2)
	assert.Equal(t, "f1", features[0].ID)
	assert.Equal(t, []string{"run the login test"}, features[0].Steps)
	assert.False(t, features[0].Passes)
}

func TestLoadFeaturesErrors(t *testing.T) {
	_, err := loadFeatures(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0600))
	_, err = loadFeatures(path)
	require.Error(t, err)
}
