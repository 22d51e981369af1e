package tool

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rezkam/codedive/internal/safety"
)

const (
	defaultShellTimeout   = 120
	defaultMaxOutputBytes = 65536
)

// ShellTool executes shell commands in the workspace. Every command is screened
// by the safety gate before it reaches the shell; blocked commands are refused
// with the gate's reason instead of executed.
type ShellTool struct {
	workingDir     string
	timeoutSeconds int
	maxOutputBytes int
	gate           *safety.Gate
}

type ShellConfig struct {
	WorkingDir     string
	TimeoutSeconds int
	MaxOutputBytes int
	Gate           *safety.Gate
}

func NewShellTool(cfg ShellConfig) *ShellTool {
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = defaultShellTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = defaultMaxOutputBytes
	}
	return &ShellTool{
		workingDir:     cfg.WorkingDir,
		timeoutSeconds: cfg.TimeoutSeconds,
		maxOutputBytes: cfg.MaxOutputBytes,
		gate:           cfg.Gate,
	}
}

func (s *ShellTool) Name() string { return "shell" }

func (s *ShellTool) Description() string {
	return "Execute a shell command in the workspace. Returns stdout and stderr. Commands that write files or mutate repository state are refused."
}

func (s *ShellTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"command": {Type: "string", Description: "The shell command to execute (e.g. 'ls -la', 'git status')"},
		},
		[]string{"command"},
	)
}

func (s *ShellTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	command := ArgsString(args, "command")
	command = strings.TrimSpace(command)
	if command == "" {
		return "", fmt.Errorf("missing argument: command")
	}

	if s.gate != nil {
		if reason := s.gate.CheckCommand(ctx, s.Name(), command); reason != "" {
			return fmt.Sprintf("Command refused: %s", reason), nil
		}
	}

	dir := s.workingDir
	if dir == "" {
		dir = "."
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		absDir = dir
	}

	timeout := time.Duration(s.timeoutSeconds) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Always use sh -c for reliable handling of pipes, quotes, etc.
	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = absDir

	output, err := cmd.CombinedOutput()
	if err != nil {
		if runCtx.Err() != nil {
			return "", fmt.Errorf("command timed out or cancelled")
		}
		return string(output), fmt.Errorf("exit: %w", err)
	}

	result := string(output)
	if s.maxOutputBytes > 0 && len(result) > s.maxOutputBytes {
		result = result[:s.maxOutputBytes] + "\n... (output truncated)"
	}
	return result, nil
}
