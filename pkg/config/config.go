// Package config loads the immutable runtime configuration for the
// orchestrator from environment variables. The settings surface is a flat
// set of scalar knobs, so there is no config file format to parse.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Config is the fully resolved, immutable runtime configuration. Load it
// once at process start and pass it down; nothing in this package mutates a
// Config after construction.
type Config struct {
	// LLMURL is the base URL of the inference backend's HTTP endpoint.
	LLMURL string

	// WorkerURLs are the endpoints experts are bound to round-robin, in
	// the order recruited. Must be non-empty.
	WorkerURLs []string

	// MaxWorkers bounds how many experts the recruiter may materialize
	// regardless of how many the recruitment prompt proposes.
	MaxWorkers int

	// MaxRounds bounds horizontal discussion rounds per deliberation.
	MaxRounds int

	// MaxVerticalIters bounds solver/reviewer iterations per deliberation.
	MaxVerticalIters int

	// MaxWorkflowIterations bounds the outer recruit-deliberate-execute-
	// evaluate loop before the workflow force-concludes.
	MaxWorkflowIterations int

	// QualityThreshold is the evaluation score (0-100) at or above which
	// the workflow concludes early.
	QualityThreshold int

	// LLMTimeout bounds a single LLM client call.
	LLMTimeout int // seconds

	// WorkerTimeout bounds a single worker transport call.
	WorkerTimeout int // seconds

	// DefaultSystemPrompt is the system prompt the in-process inference
	// engine (-local-inference) puts into its chat template when a request
	// carries none. It is not sent to the backend at LLMURL.
	DefaultSystemPrompt string

	// ApplyChatTemplate controls whether the inference backend wraps
	// prompts in a chat template before generation.
	ApplyChatTemplate bool
}

const (
	defaultMaxWorkers            = 5
	defaultMaxRounds             = 3
	defaultMaxVerticalIters      = 3
	defaultMaxWorkflowIterations = 5
	defaultQualityThreshold      = 80
	defaultLLMTimeoutSeconds     = 120
	defaultWorkerTimeoutSeconds  = 120
	defaultSystemPrompt          = "You are a helpful, precise collaborator in a multi-agent workflow."
)

// Load reads Config from the process environment. It never reads a file.
func Load() (*Config, error) {
	cfg := &Config{
		LLMURL:                strings.TrimSpace(os.Getenv("LLM_URL")),
		MaxWorkers:            envInt("MAX_WORKERS", defaultMaxWorkers),
		MaxRounds:             envInt("MAX_ROUNDS", defaultMaxRounds),
		MaxVerticalIters:      envInt("MAX_VERTICAL_ITERS", defaultMaxVerticalIters),
		MaxWorkflowIterations: envInt("MAX_WORKFLOW_ITERATIONS", defaultMaxWorkflowIterations),
		QualityThreshold:      envInt("QUALITY_THRESHOLD", defaultQualityThreshold),
		LLMTimeout:            envInt("LLM_TIMEOUT_SECONDS", defaultLLMTimeoutSeconds),
		WorkerTimeout:         envInt("WORKER_TIMEOUT_SECONDS", defaultWorkerTimeoutSeconds),
		DefaultSystemPrompt:   envString("DEFAULT_SYSTEM_PROMPT", defaultSystemPrompt),
		ApplyChatTemplate:     envBool("APPLY_CHAT_TEMPLATE", true),
	}

	rawWorkers := strings.TrimSpace(os.Getenv("WORKER_URLS"))
	if rawWorkers != "" {
		for _, u := range strings.Split(rawWorkers, ",") {
			u = strings.TrimSpace(u)
			if u != "" {
				cfg.WorkerURLs = append(cfg.WorkerURLs, u)
			}
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.LLMURL == "" {
		return newValidationError("LLM_URL", ErrMissingRequiredField)
	}
	if len(c.WorkerURLs) == 0 {
		return newValidationError("WORKER_URLS", ErrMissingRequiredField)
	}
	if c.MaxWorkers < 1 {
		return newValidationError("MAX_WORKERS", ErrInvalidValue)
	}
	if c.MaxRounds < 1 {
		return newValidationError("MAX_ROUNDS", ErrInvalidValue)
	}
	if c.MaxVerticalIters < 1 {
		return newValidationError("MAX_VERTICAL_ITERS", ErrInvalidValue)
	}
	if c.QualityThreshold < 0 || c.QualityThreshold > 100 {
		return newValidationError("QUALITY_THRESHOLD", ErrInvalidValue)
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
