package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rezkam/codedive/internal/domain"
	"github.com/rezkam/codedive/internal/safety"
	"github.com/rezkam/codedive/internal/tool"
)

const (
	defaultMaxIterations    = 40
	defaultHistoryLimit     = 50
	defaultLLMMaxTokens     = 4096
	defaultTemperature      = 0.7
	defaultConcurrency      = 3
	defaultMaxParallelTools = 5
	defaultRateBurst        = 5
	defaultRatePerMinute    = 30.0
)

// Loop is the core agent engine: receive message → call LLM → execute tools → respond.
type Loop struct {
	provider      domain.Provider
	sessions      *SessionManager
	prompt        *PromptBuilder
	tools         *tool.Registry
	gate          *safety.Gate
	filter        *ToolFilter
	bus           domain.MessageBus
	logger        *slog.Logger
	maxIterations int
	concurrency   int
	pacer         *callPacer

	// providers is the provider factory for per-message provider switching
	providers ProviderResolver
}

// ProviderResolver resolves a provider by name.
type ProviderResolver interface {
	Get(name string) (domain.Provider, error)
}

// LoopConfig holds all dependencies and tuning parameters for the agent loop.
type LoopConfig struct {
	Provider      domain.Provider
	Providers     ProviderResolver // optional: for per-message provider switching
	Sessions      *SessionManager
	Prompt        *PromptBuilder
	Tools         *tool.Registry
	Gate          *safety.Gate
	Filter        *ToolFilter
	Bus           domain.MessageBus
	Logger        *slog.Logger
	MaxIterations int
	Concurrency   int // max parallel messages (default 3)
}

// NewLoop creates a new agent loop with the given configuration.
func NewLoop(cfg LoopConfig) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaultMaxIterations
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		provider:      cfg.Provider,
		providers:     cfg.Providers,
		sessions:      cfg.Sessions,
		prompt:        cfg.Prompt,
		tools:         cfg.Tools,
		gate:          cfg.Gate,
		filter:        cfg.Filter,
		bus:           cfg.Bus,
		logger:        cfg.Logger,
		maxIterations: cfg.MaxIterations,
		concurrency:   cfg.Concurrency,
		pacer:         newCallPacer(defaultRateBurst, defaultRatePerMinute),
	}
}

// Run consumes inbound messages and processes them with bounded concurrency.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("agent loop started", "concurrency", l.concurrency)

	sem := make(chan struct{}, l.concurrency)
	inbound := l.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("agent loop stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				l.logger.Info("inbound channel closed, agent loop stopping")
				return
			}
			sem <- struct{}{}
			go func(m domain.InboundMessage) {
				defer func() { <-sem }()
				l.processMessage(ctx, m)
			}(msg)
		}
	}
}

// ProcessDirect processes a message synchronously and returns the response.
// Used by CLI and other direct callers that need a blocking reply.
func (l *Loop) ProcessDirect(ctx context.Context, content, channel, chatID string) (string, error) {
	return l.handleMessage(ctx, domain.InboundMessage{
		Channel:   channel,
		ChatID:    chatID,
		SenderID:  "user",
		Content:   content,
		Timestamp: time.Now(),
	})
}

// processMessage handles a single inbound message and sends the response
// back through the message bus.
func (l *Loop) processMessage(ctx context.Context, msg domain.InboundMessage) {
	l.logger.Info("processing message",
		"channel", msg.Channel,
		"sender", msg.SenderID,
		"content_len", len(msg.Content),
	)

	response, err := l.handleMessage(ctx, msg)
	if err != nil {
		l.logger.Error("message processing failed", "error", err)
		response = fmt.Sprintf("Sorry, I encountered an error: %s", err.Error())
	}

	l.bus.SendOutbound(domain.OutboundMessage{
		Channel: msg.Channel,
		ChatID:  msg.ChatID,
		Content: response,
		Format:  "markdown",
	})
}

// resolveProvider returns the provider for this message, supporting per-message switching.
func (l *Loop) resolveProvider(msg domain.InboundMessage) domain.Provider {
	if msg.Provider != "" && l.providers != nil {
		if p, err := l.providers.Get(msg.Provider); err == nil {
			return p
		}
		l.logger.Warn("requested provider not available, using default", "requested", msg.Provider)
	}
	return l.provider
}

// handleMessage is the main agent logic: build prompt → call LLM → loop on tool calls → return text.
func (l *Loop) handleMessage(ctx context.Context, msg domain.InboundMessage) (string, error) {
	sessionKey := fmt.Sprintf("%s:%s", msg.Channel, msg.ChatID)
	provider := l.resolveProvider(msg)

	convID, err := l.sessions.GetOrCreateConversation(ctx, sessionKey, provider.Name(), "")
	if err != nil {
		return "", fmt.Errorf("session error: %w", err)
	}

	history, err := l.sessions.GetHistory(ctx, convID, defaultHistoryLimit)
	if err != nil {
		l.logger.Warn("failed to load history, continuing without it", "error", err)
		history = nil
	}

	messages, err := l.prompt.BuildMessages(ctx, convID, history, msg.Content, msg.Channel, msg.ChatID)
	if err != nil {
		return "", fmt.Errorf("build messages: %w", err)
	}

	var toolDefs []domain.ToolDefinition
	if l.tools != nil {
		toolDefs = l.filter.FilterDefinitions(l.tools.GetDefinitions())
	}

	// Reusable semaphore for parallel tool execution.
	toolSem := make(chan struct{}, defaultMaxParallelTools)

	// Main agent loop: call LLM, execute tools if requested, repeat.
	var finalContent string
	for iteration := 0; iteration < l.maxIterations; iteration++ {
		l.logger.Debug("agent iteration", "iteration", iteration+1, "messages", len(messages))

		if err := l.pacer.Acquire(ctx); err != nil {
			return "", fmt.Errorf("rate limit: %w", err)
		}

		resp, chatErr := provider.Chat(ctx, domain.ChatRequest{
			Messages:    messages,
			Tools:       toolDefs,
			MaxTokens:   defaultLLMMaxTokens,
			Temperature: defaultTemperature,
		})
		if chatErr != nil {
			return "", fmt.Errorf("LLM error: %w", chatErr)
		}

		l.sessions.AddTokenUsage(convID, resp.Usage.TotalTokens)

		// Fallback: some smaller models embed tool calls as JSON in the content field.
		if !resp.HasToolCalls() && resp.Content != "" {
			if extracted := extractToolCallsFromContent(resp.Content); len(extracted) > 0 {
				resp.ToolCalls = extracted
				resp.Content = ""
				l.logger.Info("extracted tool calls from content text", "count", len(extracted))
			}
		}

		// No tool calls means we have our final answer.
		if !resp.HasToolCalls() {
			finalContent = stripRolePrefix(resp.Content)
			break
		}

		// Append assistant message with tool calls to the conversation.
		messages = append(messages, domain.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		// Execute tool calls in parallel with bounded concurrency.
		results := make([]string, len(resp.ToolCalls))
		var wg sync.WaitGroup

		for i, tc := range resp.ToolCalls {
			wg.Add(1)
			go func(idx int, tc domain.ToolCall) {
				defer wg.Done()
				toolSem <- struct{}{}
				defer func() { <-toolSem }()

				result, toolErr := l.executeTool(ctx, tc)
				if toolErr != nil {
					result = fmt.Sprintf("Error executing tool %s: %s", tc.Name, toolErr.Error())
				}
				results[idx] = result
			}(i, tc)
		}
		wg.Wait()

		// Append results in order
		for i, tc := range resp.ToolCalls {
			messages = append(messages, domain.Message{
				Role:       "tool",
				Content:    results[i],
				ToolCallID: tc.ID,
				ToolName:   tc.Name,
			})
		}
	}

	if finalContent == "" {
		finalContent = "I've completed processing but have no additional response."
	}

	// Persist conversation history.
	if err := l.sessions.SaveMessage(ctx, convID, domain.Message{Role: "user", Content: msg.Content}); err != nil {
		l.logger.Warn("failed to save user message", "error", err, "convID", convID)
	}
	if err := l.sessions.SaveMessage(ctx, convID, domain.Message{Role: "assistant", Content: finalContent}); err != nil {
		l.logger.Warn("failed to save assistant message", "error", err, "convID", convID)
	}

	// Auto-generate title from the first user message.
	if len(history) == 0 {
		l.sessions.UpdateTitle(ctx, convID, msg.Content)
	}

	l.logger.Debug("session usage", "conversation", convID,
		"tokens", l.sessions.GetTokenUsage(convID))

	return finalContent, nil
}

// executeTool runs a single tool call with the safety gate in front.
func (l *Loop) executeTool(ctx context.Context, tc domain.ToolCall) (string, error) {
	l.logger.Info("executing tool", "tool", tc.Name)

	if !l.filter.IsAllowed(tc.Name) {
		return fmt.Sprintf("Tool %s is not available.", tc.Name), nil
	}

	// File-writing tools are screened here; the shell tool screens its own
	// commands so each command produces exactly one gate decision.
	if command := extractGateCommand(tc); command != "" && l.gate != nil {
		if reason := l.gate.CheckCommand(ctx, tc.Name, command); reason != "" {
			return fmt.Sprintf("Command blocked: %s", reason), nil
		}
	}

	if l.tools == nil {
		return "", fmt.Errorf("tool registry not initialized")
	}

	if l.logger.Enabled(ctx, slog.LevelDebug) {
		if argsJSON, err := json.Marshal(tc.Arguments); err == nil {
			l.logger.Debug("tool arguments", "tool", tc.Name, "args", string(argsJSON))
		}
	}

	result, err := l.tools.Execute(ctx, tc.Name, tc.Arguments)
	if err != nil {
		return "", err
	}

	l.logger.Debug("tool completed", "tool", tc.Name, "result_len", len(result))
	return result, nil
}

// extractGateCommand builds the synthetic command string the gate evaluates
// for a file-writing tool call, so operator deny patterns can cover file
// writes by path. Shell commands are not handled here: the shell tool itself
// consults the gate before executing.
func extractGateCommand(tc domain.ToolCall) string {
	switch tc.Name {
	case "write_file", "edit_file":
		if v, ok := tc.Arguments["path"]; ok {
			if path := fmt.Sprintf("%v", v); path != "" {
				return "write " + path
			}
		}
	}
	return ""
}
