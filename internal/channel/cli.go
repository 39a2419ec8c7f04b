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

	"github.com/masganem/PuffleBot/internal/domain"
)

const cliChannelName = "cli"

// CLIConfig configures the terminal channel.
type CLIConfig struct {
	Logger   *slog.Logger
	In       io.Reader // default: os.Stdin
	Out      io.Writer // default: os.Stdout
	UserName string    // display name used for {name} in replies
}

// CLI is a local chat channel for trying reply rules without Twitter.
type CLI struct {
	bus      domain.MessageBus
	logger   *slog.Logger
	in       io.Reader
	userName string

	outMu sync.Mutex
	out   io.Writer
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
		logger:   cfg.Logger,
		in:       cfg.In,
		out:      cfg.Out,
		userName: cfg.UserName,
	}
}

func (c *CLI) Name() string { return cliChannelName }

// Start runs the REPL. It returns on EOF, /quit, or when ctx is done.
func (c *CLI) Start(ctx context.Context, bus domain.MessageBus) error {
	c.bus = bus
	bus.OnOutbound(cliChannelName, func(msg domain.OutboundMessage) {
		if err := c.Send(ctx, msg); err != nil {
			c.logger.Warn("cli write failed", "err", err)
		}
	})

	c.printf("PuffleBot chat. Type a message and press Enter. Type /quit to exit.\nYou> ")

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return err
		case line := <-lines:
			line = strings.TrimSpace(line)
			switch line {
			case "":
				c.printf("You> ")
				continue
			case "/quit", "/exit", "/q":
				c.logger.Info("user requested quit")
				return nil
			}
			c.bus.Publish(domain.InboundMessage{
				Channel:    cliChannelName,
				ChatID:     "local",
				SenderID:   "local",
				SenderName: c.userName,
				Content:    line,
				Timestamp:  time.Now(),
			})
		}
	}
}

func (c *CLI) Stop() error { return nil }

// Send prints a reply, with its media URL on its own line.
func (c *CLI) Send(ctx context.Context, msg domain.OutboundMessage) error {
	var sb strings.Builder
	sb.WriteString("\nPuffleBot> ")
	sb.WriteString(msg.Content)
	sb.WriteByte('\n')
	if msg.MediaURL != "" {
		sb.WriteString("  [media] ")
		sb.WriteString(msg.MediaURL)
		sb.WriteByte('\n')
	}
	sb.WriteString("You> ")
	return c.printf("%s", sb.String())
}

func (c *CLI) printf(format string, args ...any) error {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, err := fmt.Fprintf(c.out, format, args...)
	return err
}
