// Package config loads the single JSON configuration document spec.md §6
// mandates (vllm, workspace, security, memory, audit, agent, debug
// sections) and overlays process environment variables on top of it.
// Grounded on the teacher's config.go (flag/env precedence pattern),
// generalized from its one-off envOr/envIntOr helpers to a struct-tag
// based loader.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
)

// VLLM holds the OpenAI-compatible endpoint configuration.
type VLLM struct {
	Provider              string  `json:"provider" envconfig:"VLLM_PROVIDER"`
	BaseURL               string  `json:"base_url" envconfig:"VLLM_BASE_URL"`
	Model                 string  `json:"model" envconfig:"VLLM_MODEL"`
	APIKey                string  `json:"api_key" envconfig:"VLLM_API_KEY"`
	Temperature           float64 `json:"temperature" envconfig:"VLLM_TEMPERATURE"`
	MaxTokens             int     `json:"max_tokens" envconfig:"VLLM_MAX_TOKENS"`
	EnableFunctionCalling bool    `json:"enable_function_calling" envconfig:"VLLM_ENABLE_FUNCTION_CALLING"`
}

// Workspace holds the sandboxed root directory.
type Workspace struct {
	Dir string `json:"dir" envconfig:"WORKSPACE_DIR"`
}

// Security holds the constraints.Constraints configuration.
type Security struct {
	AllowedCommands []string `json:"allowed_commands" envconfig:"SECURITY_ALLOWED_COMMANDS"`
	TimeoutSec      int      `json:"timeout_sec" envconfig:"SECURITY_TIMEOUT_SEC"`
	MaxOutputSize   int      `json:"max_output_size" envconfig:"SECURITY_MAX_OUTPUT_SIZE"`
	ExecEnabled     bool     `json:"exec_enabled" envconfig:"SECURITY_EXEC_ENABLED"`
}

// Memory holds the persistent memory file location.
type Memory struct {
	Path string `json:"path" envconfig:"MEMORY_PATH"`
}

// Audit holds the append-only audit log file location.
type Audit struct {
	LogPath string `json:"log_path" envconfig:"AUDIT_LOG_PATH"`
}

// Agent holds Loop Controller tuning.
type Agent struct {
	MaxLoops    int     `json:"max_loops" envconfig:"AGENT_MAX_LOOPS"`
	LoopWaitSec float64 `json:"loop_wait_sec" envconfig:"AGENT_LOOP_WAIT_SEC"`
}

// Debug holds verbosity toggles, read by the zerolog setup in cmd/toolagentd.
type Debug struct {
	Enabled       bool            `json:"enabled" envconfig:"DEBUG_ENABLED"`
	Level         string          `json:"level" envconfig:"DEBUG_LEVEL"` // "basic" | "verbose"
	PerComponent  map[string]bool `json:"per_component,omitempty"`
}

// Config is the full document spec.md §6 describes.
type Config struct {
	VLLM      VLLM      `json:"vllm"`
	Workspace Workspace `json:"workspace"`
	Security  Security  `json:"security"`
	Memory    Memory    `json:"memory"`
	Audit     Audit     `json:"audit"`
	Agent     Agent     `json:"agent"`
	Debug     Debug     `json:"debug"`
}

// Default returns a Config with the teacher's historical defaults
// (0.0.0.0:8000-era local workspace, 30s timeout, 5 loops) applied before
// the file and environment overlays run.
func Default() *Config {
	return &Config{
		VLLM: VLLM{
			Provider:    "vllm",
			Temperature: 0.7,
			MaxTokens:   2048,
		},
		Workspace: Workspace{Dir: "./workspace"},
		Security: Security{
			TimeoutSec:    30,
			MaxOutputSize: 200_000,
		},
		Memory: Memory{Path: "./data/memory.json"},
		Audit:  Audit{LogPath: "./data/audit.jsonl"},
		Agent:  Agent{MaxLoops: 5, LoopWaitSec: 0.5},
		Debug:  Debug{Level: "basic"},
	}
}

// Load reads path as the JSON configuration document, then overlays
// TOOLAGENT_-prefixed environment variables via envconfig. A missing file
// is not an error: Default() alone, plus any environment overrides, is a
// valid configuration (useful for `toolagent shell` and tests).
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := envconfig.Process("toolagent", cfg); err != nil {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}

	return cfg, nil
}
