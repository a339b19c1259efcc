package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	t.Setenv("DOCKER_HOST", "unix:///nonexistent/docker.sock")

	tests := []struct {
		name         string
		recipe       string
		args         func(dir string) []string
		expectedExit int
	}{
		{
			name:         "version",
			args:         func(string) []string { return []string{"version"} },
			expectedExit: 0,
		},
		{
			name:   "entrypoint with recipe",
			recipe: "entrypoint:\n  module: bot\n",
			args: func(dir string) []string {
				return []string{"-C", dir, "entrypoint", "--args", "--shard 1"}
			},
			expectedExit: 0,
		},
		{
			name: "missing recipe",
			args: func(dir string) []string {
				return []string{"-c", filepath.Join(dir, "missing.yaml"), "entrypoint"}
			},
			expectedExit: 1,
		},
		{
			name:         "unknown command",
			args:         func(string) []string { return []string{"deploy"} },
			expectedExit: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.recipe != "" {
				require.NoError(t, os.WriteFile(filepath.Join(dir, "kiln.yaml"), []byte(tt.recipe), 0o600))
			}

			assert.Equal(t, tt.expectedExit, run(tt.args(dir)))
		})
	}
}
