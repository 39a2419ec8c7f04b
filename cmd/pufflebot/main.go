package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/masganem/PuffleBot/internal/bus"
	"github.com/masganem/PuffleBot/internal/channel"
	"github.com/masganem/PuffleBot/internal/config"
	"github.com/masganem/PuffleBot/internal/reply"

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
		Use:   "pufflebot",
		Short: "PuffleBot: a virtual pet you talk to over Twitter Direct Messages",
		Long:  "PuffleBot answers Twitter Direct Messages through the account activity webhook, with text and images.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv()
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.pufflebot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(gatewayCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(sendCmd())
	root.AddCommand(crcCmd())
	root.AddCommand(deliveriesCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())

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

// loadConfig reads the config file, or builds one from the environment when
// the file does not exist. It also replaces the global logger.
func loadConfig() (*config.Config, error) {
	cfgPath := config.ExpandPath(resolveConfigPath())

	var (
		cfg *config.Config
		err error
	)
	if _, statErr := os.Stat(cfgPath); errors.Is(statErr, os.ErrNotExist) {
		cfg, err = config.FromEnv()
		if err == nil {
			logger.Debug("config file not found, using environment", "path", cfgPath)
		}
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, err
	}

	l, err := newLogger(cfg.General, os.Stderr)
	if err != nil {
		return nil, err
	}
	logger = l
	return cfg, nil
}

// newLogger builds the process logger from the general section.
func newLogger(gc config.GeneralConfig, stderr io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(gc.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	out := stderr
	if gc.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(gc.LogFile), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(gc.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(stderr, f)
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(gc.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(out, opts)), nil
	}
	return slog.New(slog.NewTextHandler(out, opts)), nil
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(config.ExpandPath(cfgPath)); err == nil && !force {
				return fmt.Errorf("config already exists at %s (use --force to overwrite)", cfgPath)
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			fmt.Println("Fill in the twitter section, or export TWITTER_CONSUMER_KEY and friends, then run 'pufflebot doctor'.")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config")
	return cmd
}

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Start the webhook server and reply loop",
		Long:  "Serves the Twitter account activity webhook, answers Direct Messages, and replies with text and images. Press Ctrl+C to stop.",
		RunE:  runGateway,
	}
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	journal, closeJournal, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer closeJournal()

	dispatcher, err := newDispatcher(cfg, journal)
	if err != nil {
		return err
	}

	// Message bus (closed during graceful shutdown below)
	messageBus := bus.New(bus.Config{Logger: logger})

	registry, err := newRegistry(cfg)
	if err != nil {
		return err
	}

	replyLoop := reply.NewLoop(reply.LoopConfig{
		Responder:     registry,
		Bus:           messageBus,
		Logger:        logger.With("component", "replies"),
		Concurrency:   cfg.Replies.Concurrency,
		RateBurst:     cfg.Replies.RateBurst,
		RatePerMinute: cfg.Replies.RatePerMinute,
	})
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		replyLoop.Run(ctx)
	}()

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Endpoint
	}
	twitterCh := channel.NewTwitter(channel.TwitterConfig{
		Sender:         dispatcher,
		ConsumerSecret: cfg.Twitter.ConsumerSecret,
		BotUserID:      cfg.Twitter.BotUserID,
		WebhookPath:    cfg.Server.WebhookPath,
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		MetricsPath:    metricsPath,
		Logger:         logger.With("component", "webhook"),
	})
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- twitterCh.Start(ctx, messageBus)
	}()

	logger.Info("gateway started. Press Ctrl+C to stop.", "version", version)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		stop()
	}
	logger.Info("shutting down gateway...")

	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := twitterCh.Stop(); err != nil {
			logger.Warn("webhook server shutdown", "err", err)
		}
		messageBus.Close()
		<-loopDone
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		if runErr == nil {
			runErr = fmt.Errorf("shutdown timed out")
		}
	}
	return runErr
}

func chatCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the reply rules in the terminal",
		Long:  "Starts a local REPL against the configured reply rules. Nothing is sent to Twitter.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			messageBus := bus.New(bus.Config{Logger: logger})
			defer messageBus.Close()

			registry, err := newRegistry(cfg)
			if err != nil {
				return err
			}
			replyLoop := reply.NewLoop(reply.LoopConfig{
				Responder:     registry,
				Bus:           messageBus,
				Logger:        logger,
				Concurrency:   1,
				RateBurst:     cfg.Replies.RateBurst,
				RatePerMinute: cfg.Replies.RatePerMinute,
			})
			go replyLoop.Run(ctx)

			cliCh := channel.NewCLI(channel.CLIConfig{Logger: logger, UserName: name})
			return cliCh.Start(ctx, messageBus)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name used in replies")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. server.port)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
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
		Short: "Set a config value (e.g. twitter.botUserId 123456)",
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
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	var pathsOnly bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sanitized := config.Sanitize(cfg)
			if pathsOnly {
				values := config.ListPaths(sanitized)
				for _, p := range config.Paths(sanitized) {
					fmt.Printf("%s = %v\n", p, values[p])
				}
				return nil
			}
			data, _ := json.MarshalIndent(sanitized, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	}
	listCmd.Flags().BoolVar(&pathsOnly, "paths", false, "print one settable path per line")
	cmd.AddCommand(listCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}
