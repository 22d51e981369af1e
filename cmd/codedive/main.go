package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rezkam/codedive/internal/agent"
	"github.com/rezkam/codedive/internal/bus"
	"github.com/rezkam/codedive/internal/channel"
	"github.com/rezkam/codedive/internal/config"
	"github.com/rezkam/codedive/internal/memory"
	"github.com/rezkam/codedive/internal/provider"
	"github.com/rezkam/codedive/internal/safety"
	"github.com/rezkam/codedive/internal/status"
	"github.com/rezkam/codedive/internal/tool"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "codedive",
		Short: "codedive: autonomous coding agent for your terminal",
		Long:  "codedive is a coding agent that edits files and runs commands in a workspace, with a safety classifier screening every shell command before it executes.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.codedive/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(checkCmd())
	root.AddCommand(configCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config and workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				logger.Info("config already exists", "path", cfgPath)
				return nil
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.General.Workspace, 0o755); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath, "workspace", cfg.General.Workspace)
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive agent session",
		RunE:  runChat,
	}
	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}
	logger = newLogger(cfg)

	if err := os.MkdirAll(cfg.General.Workspace, 0o755); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)
	defer messageBus.Close()

	memStore, err := memory.NewSQLiteStore(cfg.Memory.DBPath, logger)
	if err != nil {
		return fmt.Errorf("memory store: %w", err)
	}
	defer memStore.Close()

	if cfg.Memory.RetentionDays > 0 {
		if err := memStore.PruneOlderThan(ctx, cfg.Memory.RetentionDays); err != nil {
			logger.Warn("history prune failed", "err", err)
		}
	}

	gate, err := safety.NewGate(cfg.Safety, memStore, logger)
	if err != nil {
		return fmt.Errorf("safety gate: %w", err)
	}

	provFactory := provider.NewFactory(cfg, logger)
	prov, err := provFactory.DefaultProvider()
	if err != nil || prov == nil {
		logger.Warn("no default provider, falling back to ollama")
		prov = provider.NewOllama(provider.OllamaConfig{Logger: logger})
	}
	if err := prov.Healthy(ctx); err != nil {
		logger.Warn("provider unhealthy at startup", "provider", prov.Name(), "err", err)
		if alt := provFactory.HealthyProvider(ctx); alt != nil {
			logger.Info("switched to a healthy provider", "provider", alt.Name())
			prov = alt
		}
	}

	sessions := agent.NewSessionManager(memStore, logger)
	promptBuilder := agent.NewPromptBuilder(agent.PromptConfig{
		Workspace: cfg.General.Workspace,
	}, logger)

	agentLoop := agent.NewLoop(agent.LoopConfig{
		Provider:      prov,
		Providers:     provFactory,
		Sessions:      sessions,
		Prompt:        promptBuilder,
		Tools:         registerTools(cfg, gate),
		Gate:          gate,
		Bus:           messageBus,
		Logger:        logger,
		MaxIterations: cfg.General.MaxIterations,
	})

	go agentLoop.Run(ctx)

	if cfg.Status.Enabled {
		statusSrv, err := status.NewServer(status.ServerConfig{
			Status:   cfg.Status,
			Version:  version,
			Provider: prov.Name(),
			Store:    memStore,
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		go func() {
			if err := statusSrv.Start(ctx); err != nil {
				logger.Warn("status server stopped", "err", err)
			}
		}()
	}

	cliCh := channel.NewCLI(channel.CLIConfig{
		Logger: logger,
		OnClear: func() {
			sessions.ClearSession(ctx, "cli:direct")
		},
	})
	return cliCh.Start(ctx, messageBus)
}

// registerTools creates the tool registry with all workspace tools.
func registerTools(cfg *config.Config, gate *safety.Gate) *tool.Registry {
	reg := tool.NewRegistry(logger)
	reg.Register(tool.NewShellTool(tool.ShellConfig{
		WorkingDir:     cfg.General.Workspace,
		TimeoutSeconds: cfg.Tools.Shell.Timeout,
		MaxOutputBytes: cfg.Tools.Shell.MaxOutputBytes,
		Gate:           gate,
	}))
	reg.Register(tool.NewReadFileTool(cfg.General.Workspace))
	reg.Register(tool.NewWriteFileTool(cfg.General.Workspace))
	reg.Register(tool.NewEditFileTool(cfg.General.Workspace))
	reg.Register(tool.NewListDirTool(cfg.General.Workspace))
	return reg
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	out := os.Stderr
	if cfg.General.LogFile != "" {
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			out = f
		}
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [command...]",
		Short: "Classify shell commands without executing them",
		Long:  "Classifies each argument as a shell command and prints the verdict. With no arguments, reads one command per line from stdin. Exits 1 if any command is blocked.",
		RunE: func(cmd *cobra.Command, args []string) error {
			commands := args
			if len(commands) == 0 {
				scanner := bufio.NewScanner(os.Stdin)
				for scanner.Scan() {
					if line := strings.TrimSpace(scanner.Text()); line != "" {
						commands = append(commands, line)
					}
				}
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			}

			blocked := false
			for _, c := range commands {
				v := safety.Classify(c)
				if v.Blocked {
					blocked = true
					fmt.Printf("blocked  %q: %s\n", c, v.Reason)
				} else {
					fmt.Printf("allowed  %q\n", c)
				}
			}
			if blocked {
				os.Exit(1)
			}
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("codedive " + version)
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. general.defaultProvider)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. general.defaultProvider ollama)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values (API keys masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
