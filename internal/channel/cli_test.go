package channel

import (
	"context"
	"strings"
	"testing"

	"github.com/rezkam/codedive/internal/domain"
)

// stubBus captures published messages for assertions.
type stubBus struct {
	published []domain.InboundMessage
	handlers  map[string]func(domain.OutboundMessage)
}

func newStubBus() *stubBus {
	return &stubBus{handlers: make(map[string]func(domain.OutboundMessage))}
}

func (s *stubBus) Publish(msg domain.InboundMessage)        { s.published = append(s.published, msg) }
func (s *stubBus) Subscribe() <-chan domain.InboundMessage  { return nil }
func (s *stubBus) SendOutbound(msg domain.OutboundMessage)  { s.handlers[msg.Channel](msg) }
func (s *stubBus) OnOutbound(name string, h func(domain.OutboundMessage)) {
	s.handlers[name] = h
}
func (s *stubBus) Close() {}

func TestCLI_PublishesInputLines(t *testing.T) {
	bus := newStubBus()
	var out strings.Builder
	cli := NewCLI(CLIConfig{
		In:  strings.NewReader("run the tests\n/quit\n"),
		Out: &out,
	})

	if err := cli.Start(context.Background(), bus); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if len(bus.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(bus.published))
	}
	msg := bus.published[0]
	if msg.Channel != "cli" || msg.ChatID != "direct" {
		t.Errorf("message routed to %s:%s, want cli:direct", msg.Channel, msg.ChatID)
	}
	if msg.Content != "run the tests" {
		t.Errorf("content = %q", msg.Content)
	}
}

func TestCLI_SkipsBlankLines(t *testing.T) {
	bus := newStubBus()
	cli := NewCLI(CLIConfig{
		In:  strings.NewReader("\n   \n/quit\n"),
		Out: &strings.Builder{},
	})

	if err := cli.Start(context.Background(), bus); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if len(bus.published) != 0 {
		t.Errorf("published %d messages for blank input, want 0", len(bus.published))
	}
}

func TestCLI_ClearInvokesCallback(t *testing.T) {
	bus := newStubBus()
	cleared := false
	var out strings.Builder
	cli := NewCLI(CLIConfig{
		In:      strings.NewReader("/clear\n/quit\n"),
		Out:     &out,
		OnClear: func() { cleared = true },
	})

	if err := cli.Start(context.Background(), bus); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !cleared {
		t.Error("/clear did not invoke the clear callback")
	}
	if len(bus.published) != 0 {
		t.Errorf("/clear went to the agent: %d messages published", len(bus.published))
	}
	if !strings.Contains(out.String(), "Session cleared.") {
		t.Error("no confirmation printed for /clear")
	}
}

func TestCLI_ReplyPrintedThroughHandler(t *testing.T) {
	bus := newStubBus()
	var out strings.Builder
	cli := NewCLI(CLIConfig{
		In:  strings.NewReader("/quit\n"),
		Out: &out,
	})

	if err := cli.Start(context.Background(), bus); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	bus.SendOutbound(domain.OutboundMessage{Channel: "cli", Content: "done, two files changed"})
	if !strings.Contains(out.String(), "done, two files changed") {
		t.Error("reply not written to output")
	}
}
