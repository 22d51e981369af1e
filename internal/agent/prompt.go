package agent

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/rezkam/codedive/internal/domain"
)

// Built prompts are cached briefly so a burst of messages in one chat does
// not rebuild the same text. The timestamp in the prompt keeps the TTL short.
const promptCacheTTL = 60 * time.Second

type cachedPrompt struct {
	content   string
	expiresAt time.Time
}

// PromptBuilder assembles the system prompt and the message list for an
// LLM call.
type PromptBuilder struct {
	workspace         string
	logger            *slog.Logger
	systemPromptExtra string

	promptCache sync.Map // channel:chatID -> *cachedPrompt
}

// PromptConfig holds configuration for the prompt builder.
type PromptConfig struct {
	Workspace         string
	SystemPromptExtra string
}

func NewPromptBuilder(cfg PromptConfig, logger *slog.Logger) *PromptBuilder {
	pb := &PromptBuilder{
		workspace:         cfg.Workspace,
		logger:            logger,
		systemPromptExtra: cfg.SystemPromptExtra,
	}
	go pb.evictExpired()
	return pb
}

// evictExpired drops stale cache entries so the cache stays bounded by the
// number of active chats.
func (p *PromptBuilder) evictExpired() {
	ticker := time.NewTicker(2 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		p.promptCache.Range(func(key, value any) bool {
			cp, ok := value.(*cachedPrompt)
			if ok && now.After(cp.expiresAt) {
				p.promptCache.Delete(key)
			}
			return true
		})
	}
}

func (p *PromptBuilder) BuildSystemPrompt(ctx context.Context, convID string, channel, chatID string) (string, error) {
	cacheKey := channel + ":" + chatID
	if cached, ok := p.promptCache.Load(cacheKey); ok {
		if cp, ok := cached.(*cachedPrompt); ok && time.Now().Before(cp.expiresAt) {
			return cp.content, nil
		}
	}

	now := time.Now().Format("2006-01-02 15:04 (Monday)")
	workspacePath, err := filepath.Abs(p.workspace)
	if err != nil {
		workspacePath = p.workspace
	}
	osArch := fmt.Sprintf("%s %s", runtime.GOOS, runtime.GOARCH)

	identity := fmt.Sprintf(`# codedive

You are codedive, an autonomous coding assistant working in a local repository.
You can read, write, and edit files in the workspace and run shell commands.

## Current Time
%s

## Runtime
%s, Go %s

## Workspace
%s

## RULES
1. Work inside the workspace. Use the shell tool to inspect the repository,
   run tests, and gather context before making changes.
2. Commands that write to disk or mutate repository state are screened and may
   be refused. When a command is refused, read the reason and choose a
   read-only alternative instead of retrying the same command.
3. Prefer small, verifiable steps: read the relevant files first, then edit.
4. Do NOT output raw JSON in your response. Use the tool calling mechanism.
5. After tool execution, present results clearly. Do not mention tool names
   to the user.
6. Be accurate and concise.`,
		now, osArch, runtime.Version(), workspacePath)

	if p.systemPromptExtra != "" {
		identity += "\n\n## Custom Instructions\n" + p.systemPromptExtra
	}

	p.promptCache.Store(cacheKey, &cachedPrompt{
		content:   identity,
		expiresAt: time.Now().Add(promptCacheTTL),
	})

	return identity, nil
}

// BuildMessages assembles the full message list for an LLM call: system
// prompt, stored history, then the user's current message. Tool-call linkage
// fields are carried through so providers can replay prior tool rounds.
func (p *PromptBuilder) BuildMessages(ctx context.Context, convID string, history []domain.Message, currentMessage string, channel, chatID string) ([]domain.Message, error) {
	systemPrompt, err := p.BuildSystemPrompt(ctx, convID, channel, chatID)
	if err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(history)+2)
	messages = append(messages, domain.Message{Role: "system", Content: systemPrompt})

	for _, m := range history {
		messages = append(messages, domain.Message{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			ToolName:   m.ToolName,
			ToolCalls:  m.ToolCalls,
		})
	}

	messages = append(messages, domain.Message{Role: "user", Content: currentMessage})
	return messages, nil
}
