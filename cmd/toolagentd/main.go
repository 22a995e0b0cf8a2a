// Command toolagentd runs the optional HTTP/WebSocket control surface
// (SPEC_FULL.md's ADDITIONAL EXTERNAL INTERFACE section) around the same
// agent.Controller the toolagent CLI drives directly.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"toolagent/agent"
	"toolagent/audit"
	"toolagent/config"
	"toolagent/constraints"
	"toolagent/llm"
	"toolagent/memory"
	"toolagent/planner"
	"toolagent/responder"
	"toolagent/server"
	"toolagent/toolrunner"
)

func main() {
	configPath := "toolagent.json"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if !cfg.Debug.Enabled {
		logger = logger.Level(zerolog.InfoLevel)
	} else if cfg.Debug.Level == "verbose" {
		logger = logger.Level(zerolog.DebugLevel)
	}

	cons, err := constraints.New(cfg.Workspace.Dir, cfg.Security.AllowedCommands, cfg.Security.TimeoutSec, cfg.Security.MaxOutputSize)
	if err != nil {
		logger.Fatal().Err(err).Msg("build constraints")
	}
	auditLog, err := audit.Open(cfg.Audit.LogPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("open audit log")
	}
	defer auditLog.Close()

	mem, err := memory.Load(cfg.Memory.Path)
	if err != nil {
		logger.Fatal().Err(err).Msg("load memory")
	}

	client, model, err := llm.Resolve(map[string]any{
		"provider": cfg.VLLM.Provider,
		"model":    cfg.VLLM.Model,
		"base_url": cfg.VLLM.BaseURL,
		"api_key":  cfg.VLLM.APIKey,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("resolve llm client")
	}
	retrying := llm.WithRetry(client)

	p := planner.New(retrying, model, cfg.VLLM.EnableFunctionCalling, auditLog)
	runner := toolrunner.New(cons, auditLog)
	resp := responder.New(retrying, model, auditLog)
	ctrl := agent.New(p, runner, resp, mem, auditLog, cfg.Agent.MaxLoops, cfg.Agent.LoopWaitSec)

	var authCfg server.AuthConfig
	if hash := os.Getenv("TOOLAGENTD_ADMIN_PASSWORD_HASH"); hash != "" {
		authCfg.AdminPasswordHash = hash
		authCfg.JWTSecret = []byte(os.Getenv("TOOLAGENTD_JWT_SECRET"))
	}

	srv := server.New(ctrl, auditLog, server.WithAuth(authCfg), server.WithLogger(logger))

	addr := "0.0.0.0:8000"
	logger.Info().Str("addr", addr).Msg("toolagentd listening")
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}
