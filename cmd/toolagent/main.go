// Command toolagent is the CLI entrypoint for the local tool-using
// assistant: drives one run(request) through the Loop Controller, plus a
// handful of operator subcommands (shell, memory show, audit export).
// Replaces the teacher's manual os.Args[1] switch in cmd/wickfs/main.go
// with github.com/spf13/cobra.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"toolagent/audit"
	"toolagent/config"
	"toolagent/state"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "toolagent",
		Short: "Local tool-using assistant driven by an agentic control loop",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "toolagent.json", "path to the configuration document")

	root.AddCommand(runCmd(), shellCmd(), memoryCmd(), auditCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [request]",
		Short: "Run one request through the Planner/Tool Runner/Responder loop",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			request := args[0]
			for _, a := range args[1:] {
				request += " " + a
			}
			return runLoop(request)
		},
	}
}

func runLoop(request string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	b, err := buildFromConfig(cfg)
	if err != nil {
		return err
	}
	defer b.audit.Close()

	st := state.New(cfg.Agent.MaxLoops)
	result, err := b.ctrl.Run(context.Background(), request, st)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	color.Cyan("--- response (%s) ---", result.Stopped)
	fmt.Println(result.Response)
	return nil
}

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Open an interactive pty-backed debug shell inside the workspace",
		Long: `Opens a raw shell scoped to workspace.dir for manual inspection.
This is an operator affordance, not part of the agent loop: commands typed
here do not pass through the command allowlist or timeout the Tool Runner
otherwise enforces.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return runShell(cfg.Workspace.Dir)
		},
	}
}

func runShell(workdir string) error {
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	c := exec.Command(shell)
	c.Dir = workdir

	ptmx, err := pty.Start(c)
	if err != nil {
		return fmt.Errorf("start pty: %w", err)
	}
	defer ptmx.Close()

	color.Yellow("debug shell scoped to %s (exit to leave)", workdir)

	go io.Copy(ptmx, os.Stdin)
	_, err = io.Copy(os.Stdout, ptmx)
	return err
}

func memoryCmd() *cobra.Command {
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the current contents of the persistent memory file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(cfg.Memory.Path)
			if err != nil {
				if os.IsNotExist(err) {
					fmt.Println("(no memory file yet)")
					return nil
				}
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}
	parent := &cobra.Command{Use: "memory", Short: "Inspect persistent memory"}
	parent.AddCommand(showCmd)
	return parent
}

func auditCmd() *cobra.Command {
	var format string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export a human-readable summary of the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			entries, err := audit.ReadAll(cfg.Audit.LogPath)
			if err != nil {
				return err
			}
			switch format {
			case "yaml", "":
				out, err := audit.ExportYAML(entries)
				if err != nil {
					return err
				}
				fmt.Print(out)
			default:
				return fmt.Errorf("unsupported format %q (only yaml is implemented)", format)
			}
			return nil
		},
	}
	exportCmd.Flags().StringVar(&format, "format", "yaml", "export format (yaml)")

	parent := &cobra.Command{Use: "audit", Short: "Inspect the audit log"}
	parent.AddCommand(exportCmd)
	return parent
}

