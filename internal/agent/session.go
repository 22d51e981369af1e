package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/rezkam/codedive/internal/domain"
)

const defaultTitle = "New conversation"

// SessionManager maps channel sessions onto stored conversations and tracks
// per-conversation token spend. Conversation rows and messages live in the
// store; token counters are in-memory only and reset with the process.
type SessionManager struct {
	store  domain.MemoryStore
	logger *slog.Logger

	createMu sync.Mutex // serializes conversation creation per process

	usageMu sync.RWMutex
	usage   map[string]int64 // conversation ID -> tokens spent this run
}

func NewSessionManager(store domain.MemoryStore, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		store:  store,
		logger: logger,
		usage:  make(map[string]int64),
	}
}

// GetOrCreateConversation returns the conversation ID for a session key,
// creating the conversation row on first contact. The session key doubles as
// the conversation ID so reconnects land in the same history.
func (sm *SessionManager) GetOrCreateConversation(ctx context.Context, sessionKey, provider, model string) (string, error) {
	conv, err := sm.store.GetConversation(ctx, sessionKey)
	if err != nil {
		return "", err
	}
	if conv != nil {
		return conv.ID, nil
	}

	sm.createMu.Lock()
	defer sm.createMu.Unlock()

	// Another goroutine may have created it while we waited for the lock.
	conv, err = sm.store.GetConversation(ctx, sessionKey)
	if err != nil {
		return "", err
	}
	if conv != nil {
		return conv.ID, nil
	}

	if err := sm.store.CreateConversation(ctx, domain.Conversation{
		ID:       sessionKey,
		Title:    defaultTitle,
		Provider: provider,
		Model:    model,
	}); err != nil {
		return "", err
	}
	sm.logger.Info("conversation started", "session", sessionKey, "provider", provider)
	return sessionKey, nil
}

// GetHistory loads the most recent messages of a conversation in
// chronological order, rehydrating serialized tool calls.
func (sm *SessionManager) GetHistory(ctx context.Context, convID string, limit int) ([]domain.Message, error) {
	records, err := sm.store.GetMessages(ctx, convID, limit)
	if err != nil {
		return nil, err
	}

	msgs := make([]domain.Message, 0, len(records))
	for _, r := range records {
		m := domain.Message{
			Role:       r.Role,
			Content:    r.Content,
			ToolCallID: r.ToolCallID,
			ToolName:   r.ToolName,
		}
		if r.ToolCalls != "" {
			var calls []domain.ToolCall
			if err := json.Unmarshal([]byte(r.ToolCalls), &calls); err == nil {
				m.ToolCalls = calls
			}
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// SaveMessage persists one message, serializing tool calls as JSON.
func (sm *SessionManager) SaveMessage(ctx context.Context, convID string, msg domain.Message) error {
	rec := domain.MessageRecord{
		ConversationID: convID,
		Role:           msg.Role,
		Content:        msg.Content,
		ToolCallID:     msg.ToolCallID,
		ToolName:       msg.ToolName,
	}
	if len(msg.ToolCalls) > 0 {
		if data, err := json.Marshal(msg.ToolCalls); err == nil {
			rec.ToolCalls = string(data)
		}
	}
	return sm.store.AddMessage(ctx, convID, rec)
}

// UpdateTitle sets the conversation title from the first user message, once.
func (sm *SessionManager) UpdateTitle(ctx context.Context, convID string, firstUserMsg string) {
	conv, err := sm.store.GetConversation(ctx, convID)
	if err != nil || conv == nil {
		return
	}
	if conv.Title != "" && conv.Title != defaultTitle {
		return
	}
	conv.Title = generateTitle(firstUserMsg)
	if err := sm.store.UpdateConversation(ctx, *conv); err != nil {
		sm.logger.Warn("title update failed", "conversation", convID, "err", err)
	}
}

// ClearSession deletes a conversation and its messages so the next message
// starts a fresh history.
func (sm *SessionManager) ClearSession(ctx context.Context, sessionKey string) {
	if err := sm.store.DeleteConversation(ctx, sessionKey); err != nil {
		sm.logger.Warn("session clear failed", "session", sessionKey, "err", err)
		return
	}
	sm.usageMu.Lock()
	delete(sm.usage, sessionKey)
	sm.usageMu.Unlock()
	sm.logger.Info("session cleared", "session", sessionKey)
}

// AddTokenUsage credits tokens spent on a completion to the conversation.
func (sm *SessionManager) AddTokenUsage(convID string, tokens int) {
	if tokens <= 0 {
		return
	}
	sm.usageMu.Lock()
	sm.usage[convID] += int64(tokens)
	sm.usageMu.Unlock()
}

// GetTokenUsage returns the tokens spent on a conversation this run.
func (sm *SessionManager) GetTokenUsage(convID string) int64 {
	sm.usageMu.RLock()
	defer sm.usageMu.RUnlock()
	return sm.usage[convID]
}

// generateTitle derives a short title from the first line of a message,
// cutting at a word boundary near 60 characters.
func generateTitle(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return defaultTitle
	}
	if idx := strings.IndexAny(msg, "\n\r"); idx > 0 {
		msg = msg[:idx]
	}
	if len(msg) <= 60 {
		return msg
	}
	cut := strings.LastIndex(msg[:60], " ")
	if cut < 20 {
		cut = 60
	}
	return msg[:cut] + "..."
}
