package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/masganem/PuffleBot/internal/config"
	"github.com/masganem/PuffleBot/internal/domain"
	"github.com/masganem/PuffleBot/internal/store"
	"github.com/masganem/PuffleBot/internal/twitter"
)

func init() {
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewLogger_JSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger(config.GeneralConfig{LogLevel: "warn", LogFormat: "json"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	l.Info("hidden")
	l.Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) {
		t.Errorf("expected JSON output, got %q", out)
	}
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pufflebot.log")
	l, err := newLogger(config.GeneralConfig{LogLevel: "info", LogFile: path}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	l.Info("to file")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file missing entry: %q", data)
	}
}

func TestNewDispatcher_MissingCredentials(t *testing.T) {
	cfg := config.Defaults()
	cfg.Twitter.ConsumerKey = "ck"
	_, err := newDispatcher(cfg, nil)
	var ce *twitter.ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestNewRegistry_BuiltinsAndFile(t *testing.T) {
	dir := t.TempDir()
	rules := "name: greeting\nkeywords: [hello]\nreplies:\n  - text: \"Howdy {name}\"\n"
	if err := os.WriteFile(filepath.Join(dir, "greeting.yaml"), []byte(rules), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Defaults()
	cfg.Replies.RulesPath = dir
	registry, err := newRegistry(cfg)
	if err != nil {
		t.Fatal(err)
	}

	got := registry.Respond(context.Background(), domain.InboundMessage{Content: "hello", SenderName: "Ana"})
	if len(got) != 1 || got[0].Text != "Howdy Ana" {
		t.Errorf("file rule should replace the built-in greeting, got %+v", got)
	}
	if registry.Match("adopt a puffle") == nil {
		t.Error("built-in rules should still be registered")
	}
}

func TestOpenJournal_Disabled(t *testing.T) {
	cfg := config.Defaults()
	cfg.Store.Enabled = false
	j, closeFn, err := openJournal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if j != nil {
		t.Error("disabled store should give a nil journal")
	}
}

func TestOpenJournal_Enabled(t *testing.T) {
	cfg := config.Defaults()
	cfg.Store.DBPath = filepath.Join(t.TempDir(), "journal.db")
	j, closeFn, err := openJournal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if j == nil {
		t.Fatal("expected a journal")
	}
}

func TestPrintUpload(t *testing.T) {
	j, err := store.Open(filepath.Join(t.TempDir(), "journal.db"), logger)
	if err != nil {
		t.Fatal(err)
	}
	defer j.Close()
	ctx := context.Background()
	if err := j.RecordUpload(ctx, domain.UploadRecord{ID: "u1", Source: "https://img/p.png", MediaID: "m1", State: domain.UploadAborted}); err != nil {
		t.Fatal(err)
	}

	if err := printUpload(ctx, j, "missing"); err == nil {
		t.Error("unknown upload id should fail")
	}

	stdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w
	err = printUpload(ctx, j, "u1")
	w.Close()
	os.Stdout = stdout
	if err != nil {
		t.Fatal(err)
	}
	out, _ := io.ReadAll(r)
	if !strings.Contains(string(out), `"media_id": "m1"`) || !strings.Contains(string(out), `"state": "aborted"`) {
		t.Errorf("unexpected output %s", out)
	}
}
