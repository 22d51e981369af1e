// Package channel holds the surfaces a user talks to the agent through.
// The terminal REPL is the only conversational channel; the status endpoint
// lives in its own package.
package channel

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rezkam/codedive/internal/domain"
)

const (
	cliChannelName = "cli"
	cliChatID      = "direct"
)

// CLI is the interactive terminal REPL. Input lines become inbound bus
// messages; agent replies arrive through the outbound handler and are
// printed between rule lines. A spinner runs while the agent works.
type CLI struct {
	logger  *slog.Logger
	in      io.Reader
	out     io.Writer
	onClear func() // invoked on /clear to reset the session history

	spinMu   sync.Mutex
	spinStop chan struct{}
}

type CLIConfig struct {
	Logger  *slog.Logger
	In      io.Reader
	Out     io.Writer
	OnClear func()
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CLI{
		logger:  cfg.Logger,
		in:      cfg.In,
		out:     cfg.Out,
		onClear: cfg.OnClear,
	}
}

func (c *CLI) Name() string { return cliChannelName }

// Start runs the REPL until the context is cancelled, the input stream ends,
// or the user quits.
func (c *CLI) Start(ctx context.Context, bus domain.MessageBus) error {
	bus.OnOutbound(cliChannelName, func(msg domain.OutboundMessage) {
		c.stopSpinner()
		c.printReply(msg.Content)
		c.prompt()
	})

	fmt.Fprintln(c.out, "codedive ready. /clear resets the session, /quit exits.")
	c.prompt()

	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			c.prompt()
			continue
		case line == "/quit" || line == "/exit" || line == "/q":
			c.logger.Info("user requested quit")
			return nil
		case line == "/clear":
			if c.onClear != nil {
				c.onClear()
			}
			fmt.Fprintln(c.out, "Session cleared.")
			c.prompt()
			continue
		}

		c.startSpinner()
		bus.Publish(domain.InboundMessage{
			Channel:   cliChannelName,
			ChatID:    cliChatID,
			SenderID:  "user",
			Content:   line,
			Timestamp: time.Now(),
		})
	}
	return scanner.Err()
}

// Stop is a no-op; the REPL exits when Start returns.
func (c *CLI) Stop() error { return nil }

func (c *CLI) prompt() {
	fmt.Fprint(c.out, "You> ")
}

func (c *CLI) printReply(content string) {
	fmt.Fprint(c.out, "\r\033[K") // erase the spinner line
	fmt.Fprintln(c.out, "--- codedive ---")
	fmt.Fprintln(c.out, content)
	fmt.Fprintln(c.out, "----------------")
}

func (c *CLI) startSpinner() {
	c.spinMu.Lock()
	defer c.spinMu.Unlock()
	if c.spinStop != nil {
		return
	}
	stop := make(chan struct{})
	c.spinStop = stop

	go func() {
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fmt.Fprintf(c.out, "\r%s working...", frames[i%len(frames)])
			}
		}
	}()
}

func (c *CLI) stopSpinner() {
	c.spinMu.Lock()
	defer c.spinMu.Unlock()
	if c.spinStop == nil {
		return
	}
	close(c.spinStop)
	c.spinStop = nil
}
