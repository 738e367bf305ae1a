package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_ValidatesWorkdirTraversal(t *testing.T) {
	defer os.Unsetenv("PIPELINE_WORKDIR")

	invalidPaths := []string{
		"../../../etc/passwd",
		"/data/../../../etc/passwd",
	}

	for _, path := range invalidPaths {
		t.Run(path, func(t *testing.T) {
			os.Setenv("PIPELINE_WORKDIR", path)
			cfg := Load()
			assert.Error(t, cfg.Validate(), "expected validation error for path traversal: %s", path)
		})
	}
}

func TestLoad_ValidatesModelCacheDirTraversal(t *testing.T) {
	defer os.Unsetenv("PIPELINE_MODEL_CACHE_DIR")

	os.Setenv("PIPELINE_MODEL_CACHE_DIR", "/models/../../../etc/passwd")
	cfg := Load()
	assert.Error(t, cfg.Validate())
}

func TestLoad_AllowsValidConfig(t *testing.T) {
	defer os.Unsetenv("PIPELINE_WORKDIR")
	defer os.Unsetenv("PIPELINE_LEARNING_MODE")

	os.Setenv("PIPELINE_WORKDIR", ".pipeline")
	os.Setenv("PIPELINE_LEARNING_MODE", "recommend")

	cfg := Load()
	assert.NoError(t, cfg.Validate())
}
