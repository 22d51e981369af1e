package safety

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/rezkam/codedive/internal/config"
	"github.com/rezkam/codedive/internal/domain"
)

// AuditLogger is the interface for writing audit entries.
type AuditLogger interface {
	LogAudit(ctx context.Context, entry domain.AuditEntry) error
}

// Gate is the safety gate the tool-execution harness consults before any
// proposed command reaches a shell. It layers operator-supplied deny
// patterns (from config and policy packs) on top of the static classifier.
// Patterns can only add blocks: nothing configured here can allow a command
// the classifier rejects.
type Gate struct {
	audit    AuditLogger
	logger   *slog.Logger
	auditLog bool
	deny     []denyPattern
}

type denyPattern struct {
	re     *regexp.Regexp
	source string // "config" or the policy pack name
	desc   string
}

// NewGate builds a gate from config. Extra deny patterns are compiled once
// here; the gate is immutable and safe for concurrent use afterwards.
func NewGate(cfg config.SafetyConfig, audit AuditLogger, logger *slog.Logger) (*Gate, error) {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Gate{
		audit:    audit,
		logger:   logger,
		auditLog: cfg.AuditLog,
	}

	for _, p := range cfg.DenyPatterns {
		re, err := compilePattern(p)
		if err != nil {
			return nil, fmt.Errorf("invalid deny pattern %q: %w", p, err)
		}
		g.deny = append(g.deny, denyPattern{re: re, source: "config", desc: p})
	}

	if cfg.PolicyDir != "" {
		packs, err := LoadPolicyDir(cfg.PolicyDir, logger)
		if err != nil {
			return nil, fmt.Errorf("load policy packs: %w", err)
		}
		for _, pack := range packs {
			for _, d := range pack.Deny {
				re, err := compilePattern(d.Pattern)
				if err != nil {
					return nil, fmt.Errorf("policy pack %s: invalid pattern %q: %w", pack.Name, d.Pattern, err)
				}
				desc := d.Description
				if desc == "" {
					desc = d.Pattern
				}
				g.deny = append(g.deny, denyPattern{re: re, source: pack.Name, desc: desc})
			}
		}
	}

	return g, nil
}

// CheckCommand evaluates a command on behalf of toolName and returns "" when
// execution may proceed, or a non-empty reason the harness must surface
// instead of executing. Every decision is audited when auditing is enabled.
func (g *Gate) CheckCommand(ctx context.Context, toolName, command string) string {
	cmd := strings.TrimSpace(command)

	if reason := CheckCommandSafety(cmd); reason != "" {
		g.logger.Warn("command blocked",
			"tool", toolName,
			"command", cmd,
			"reason", reason,
		)
		g.logAction(ctx, "command_blocked", toolName, cmd, "blocked", reason)
		return reason
	}

	for _, d := range g.deny {
		if d.re.MatchString(cmd) {
			reason := "blocked by policy: " + d.desc
			g.logger.Warn("command blocked",
				"tool", toolName,
				"command", cmd,
				"source", d.source,
				"pattern", d.re.String(),
			)
			g.logAction(ctx, "command_blocked", toolName, cmd, "blocked", reason)
			return reason
		}
	}

	g.logAction(ctx, "tool_exec", toolName, cmd, "allowed", "")
	return ""
}

func (g *Gate) logAction(ctx context.Context, action, toolName, command, result, details string) {
	if !g.auditLog || g.audit == nil {
		return
	}
	if err := g.audit.LogAudit(ctx, domain.AuditEntry{
		Action:   action,
		ToolName: toolName,
		Command:  command,
		Result:   result,
		Details:  details,
	}); err != nil {
		g.logger.Warn("audit write failed", "err", err)
	}
}

// compilePattern compiles an operator pattern. Simple strings are converted
// to case-insensitive substring matches; strings containing regex
// metacharacters are compiled directly.
func compilePattern(p string) (*regexp.Regexp, error) {
	if isRegex(p) {
		return regexp.Compile(p)
	}
	return regexp.Compile(`(?i)` + regexp.QuoteMeta(p))
}

func isRegex(s string) bool {
	for _, c := range s {
		switch c {
		case '(', ')', '[', ']', '{', '}', '|', '^', '$', '.', '*', '+', '?', '\\':
			return true
		}
	}
	return false
}
