package config_test

import (
	"testing"

	"github.com/codeready-toolchain/agentverse/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LLM_URL", "http://llm.local:8000")
	t.Setenv("WORKER_URLS", "http://worker-a:9000, http://worker-b:9000")
	for _, k := range []string{"MAX_WORKERS", "MAX_ROUNDS", "MAX_VERTICAL_ITERS", "QUALITY_THRESHOLD"} {
		t.Setenv(k, "")
	}

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "http://llm.local:8000", cfg.LLMURL)
	assert.Equal(t, []string{"http://worker-a:9000", "http://worker-b:9000"}, cfg.WorkerURLs)
	assert.Equal(t, 5, cfg.MaxWorkers)
	assert.Equal(t, 3, cfg.MaxRounds)
	assert.Equal(t, 80, cfg.QualityThreshold)
	assert.True(t, cfg.ApplyChatTemplate)
}

func TestLoad_MissingLLMURL(t *testing.T) {
	t.Setenv("LLM_URL", "")
	t.Setenv("WORKER_URLS", "http://worker-a:9000")

	_, err := config.Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingRequiredField)
}

func TestLoad_MissingWorkerURLs(t *testing.T) {
	t.Setenv("LLM_URL", "http://llm.local:8000")
	t.Setenv("WORKER_URLS", "")

	_, err := config.Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrMissingRequiredField)
}

func TestLoad_InvalidQualityThreshold(t *testing.T) {
	t.Setenv("LLM_URL", "http://llm.local:8000")
	t.Setenv("WORKER_URLS", "http://worker-a:9000")
	t.Setenv("QUALITY_THRESHOLD", "150")

	_, err := config.Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrInvalidValue)
}
