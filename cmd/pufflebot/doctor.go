package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/masganem/PuffleBot/internal/config"
	"github.com/masganem/PuffleBot/internal/reply"
	"github.com/masganem/PuffleBot/internal/store"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your PuffleBot installation",
		Long: `Verifies that PuffleBot's configuration, Twitter credentials, journal
database, reply rules, and webhook port are set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(resolveConfigPath())
			fmt.Printf("PuffleBot Doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			if _, err := os.Stat(cfgPath); err != nil {
				printWarn("Config file", fmt.Sprintf("not found at %s, using environment", cfgPath))
				warned++
			} else {
				printPass("Config file", cfgPath)
				passed++
			}

			cfg, err := loadConfig()
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d warnings, %d failed\n", passed, warned, failed)
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass("Config validation", "valid")
			passed++

			if missing := cfg.MissingCredentials(); len(missing) > 0 {
				printFail("Credentials", fmt.Sprintf("missing %v", missing))
				failed++
			} else {
				printPass("Credentials", "consumer key and access token set")
				passed++
			}

			if cfg.Twitter.BotUserID == "" {
				printWarn("Bot user id", "not set, falling back to for_user_id from each event")
				warned++
			} else {
				printPass("Bot user id", cfg.Twitter.BotUserID)
				passed++
			}

			if cfg.Store.Enabled {
				if n, err := checkJournal(cfg.Store.DBPath); err != nil {
					printFail("Journal", err.Error())
					failed++
				} else {
					printPass("Journal", fmt.Sprintf("%s (%d deliveries)", cfg.Store.DBPath, n))
					passed++
				}
			} else {
				printWarn("Journal", "disabled, deliveries are only logged")
				warned++
			}

			if cfg.Replies.RulesPath != "" {
				rules, err := reply.Load(cfg.Replies.RulesPath, logger)
				switch {
				case err != nil:
					printFail("Reply rules", err.Error())
					failed++
				case len(rules) == 0:
					printWarn("Reply rules", "no rules found at "+cfg.Replies.RulesPath)
					warned++
				default:
					printPass("Reply rules", fmt.Sprintf("%d rule(s)", len(rules)))
					passed++
				}
			} else if !cfg.Replies.Builtins {
				printWarn("Reply rules", "built-ins disabled and no rules path, only the fallback will answer")
				warned++
			}

			if err := checkPort(cfg.Server.Host, cfg.Server.Port); err != nil {
				printWarn("Webhook port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
				warned++
			} else {
				printPass("Webhook port", fmt.Sprintf(":%d available, path %s", cfg.Server.Port, cfg.Server.WebhookPath))
				passed++
			}

			if cfg.General.LogFile != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.General.LogFile), 0o755); err != nil {
					printWarn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
					warned++
				} else {
					printPass("Log file", cfg.General.LogFile)
					passed++
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running PuffleBot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nPuffleBot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! PuffleBot is ready to run.\n")
			}
			return nil
		},
	}
}

// checkJournal opens the journal, which also applies pending migrations,
// and returns the number of recorded deliveries.
func checkJournal(dbPath string) (int, error) {
	j, err := store.Open(dbPath, logger)
	if err != nil {
		return 0, err
	}
	defer j.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := j.Ping(ctx); err != nil {
		return 0, fmt.Errorf("cannot ping: %w", err)
	}
	counts, err := j.CountDeliveries(ctx)
	if err != nil {
		return 0, fmt.Errorf("cannot read deliveries: %w", err)
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}

func checkPort(host string, port int) error {
	if port == 0 {
		return errors.New("no port configured")
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return ln.Close()
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
