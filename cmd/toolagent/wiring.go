package main

import (
	"fmt"

	"toolagent/agent"
	"toolagent/audit"
	"toolagent/config"
	"toolagent/constraints"
	"toolagent/llm"
	"toolagent/memory"
	"toolagent/planner"
	"toolagent/responder"
	"toolagent/toolrunner"
)

// built bundles everything a Run or shell session needs, so cobra command
// handlers don't each repeat the wiring.
type built struct {
	cfg   *config.Config
	ctrl  *agent.Controller
	mem   *memory.Memory
	audit *audit.Log
	cons  *constraints.Constraints
}

func buildFromConfig(cfg *config.Config) (*built, error) {
	cons, err := constraints.New(cfg.Workspace.Dir, cfg.Security.AllowedCommands, cfg.Security.TimeoutSec, cfg.Security.MaxOutputSize)
	if err != nil {
		return nil, fmt.Errorf("build constraints: %w", err)
	}

	auditLog, err := audit.Open(cfg.Audit.LogPath)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	mem, err := memory.Load(cfg.Memory.Path)
	if err != nil {
		return nil, fmt.Errorf("load memory: %w", err)
	}

	var modelSpec any = map[string]any{
		"provider": cfg.VLLM.Provider,
		"model":    cfg.VLLM.Model,
		"base_url": cfg.VLLM.BaseURL,
		"api_key":  cfg.VLLM.APIKey,
	}
	client, model, err := llm.Resolve(modelSpec)
	if err != nil {
		return nil, fmt.Errorf("resolve llm client: %w", err)
	}
	retrying := llm.WithRetry(client)

	p := planner.New(retrying, model, cfg.VLLM.EnableFunctionCalling, auditLog)
	runner := toolrunner.New(cons, auditLog)
	resp := responder.New(retrying, model, auditLog)

	ctrl := agent.New(p, runner, resp, mem, auditLog, cfg.Agent.MaxLoops, cfg.Agent.LoopWaitSec)

	return &built{cfg: cfg, ctrl: ctrl, mem: mem, audit: auditLog, cons: cons}, nil
}
