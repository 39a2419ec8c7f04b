package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Port = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative port")
	}

	cfg.Server.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	cfg := Defaults()
	cfg.General.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestValidate_SegmentSizeBounds(t *testing.T) {
	cfg := Defaults()

	cfg.Twitter.SegmentSize = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for segmentSize=0")
	}

	cfg.Twitter.SegmentSize = 5<<20 + 1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for segmentSize above 5 MiB")
	}

	cfg.Twitter.SegmentSize = 5 << 20
	if err := Validate(cfg); err != nil {
		t.Fatalf("segmentSize=5MiB should be valid: %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Twitter.APIURL = "ftp://api"
	cfg.Server.WebhookPath = "webhook"
	cfg.Replies.Concurrency = 0

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"twitter.apiUrl", "server.webhookPath", "replies.concurrency"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s: %v", want, err)
		}
	}
}

func TestValidate_StoreRequiresPath(t *testing.T) {
	cfg := Defaults()
	cfg.Store.DBPath = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("enabled store without a path should fail")
	}
	cfg.Store.Enabled = false
	if err := Validate(cfg); err != nil {
		t.Fatalf("disabled store needs no path: %v", err)
	}
}

func TestMissingCredentials(t *testing.T) {
	cfg := Defaults()
	if got := cfg.MissingCredentials(); len(got) != 4 {
		t.Fatalf("expected 4 missing credentials, got %v", got)
	}
	cfg.Twitter.ConsumerKey = "ck"
	cfg.Twitter.ConsumerSecret = "cs"
	cfg.Twitter.AccessToken = "tok"
	got := cfg.MissingCredentials()
	if len(got) != 1 || got[0] != "twitter.accessTokenSecret" {
		t.Fatalf("unexpected missing list %v", got)
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	for _, name := range []string{"config.json", "config.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			original := Defaults()
			original.Twitter.BotUserID = "3001"
			original.Replies.Concurrency = 8

			if err := Save(path, original); err != nil {
				t.Fatalf("save: %v", err)
			}

			loaded, err := Load(path)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if loaded.Twitter.BotUserID != "3001" || loaded.Replies.Concurrency != 8 {
				t.Fatalf("round trip lost values: %+v", loaded)
			}
		})
	}
}

func TestSave_RestrictsPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	if err := Save(path, Defaults()); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600, got %v", info.Mode().Perm())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_PartialYAMLKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := "server:\n  port: 8080\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PORT", "")
	t.Setenv("PUFFLEBOT_PORT", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Server.WebhookPath != "/webhook/twitter" || cfg.Twitter.TimeoutMs != 2000 {
		t.Errorf("defaults should survive a partial file: %+v", cfg)
	}
}

func TestLoad_ValidatesConfig(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.json")
	content := `{"twitter": {"timeoutMs": 0}}`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(cfgFile)
	if err == nil {
		t.Fatal("expected validation error for timeoutMs=0")
	}
}

// --- Environment ---

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("TWITTER_CONSUMER_KEY", "ck")
	t.Setenv("TWITTER_CONSUMER_SECRET", "cs")
	t.Setenv("TWITTER_BOT_ACCESS_TOKEN", "tok")
	t.Setenv("TWITTER_BOT_ACCESS_TOKEN_SECRET", "ts")
	t.Setenv("TWITTER_BOT_USER_ID", "3001")
	t.Setenv("PORT", "4000")
	t.Setenv("PUFFLEBOT_LOG_LEVEL", "debug")
	t.Setenv("PUFFLEBOT_STORE_ENABLED", "false")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Twitter.ConsumerKey != "ck" || cfg.Twitter.AccessTokenSecret != "ts" || cfg.Twitter.BotUserID != "3001" {
		t.Errorf("credentials not applied: %+v", cfg.Twitter)
	}
	if cfg.Server.Port != 4000 || cfg.General.LogLevel != "debug" || cfg.Store.Enabled {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if len(cfg.MissingCredentials()) != 0 {
		t.Errorf("no credentials should be missing")
	}
}

func TestApplyEnvOverrides_IgnoresMalformed(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	t.Setenv("PUFFLEBOT_PORT", "")
	t.Setenv("PUFFLEBOT_METRICS_ENABLED", "maybe")
	cfg := Defaults()
	applyEnvOverrides(cfg)
	if cfg.Server.Port != 3000 || cfg.Metrics.Enabled {
		t.Errorf("malformed values should be ignored: %+v", cfg)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PUFFLEBOT_DOTENV_PROBE=from-file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PUFFLEBOT_DOTENV_PROBE", "")
	os.Unsetenv("PUFFLEBOT_DOTENV_PROBE")

	if err := LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("PUFFLEBOT_DOTENV_PROBE"); got != "from-file" {
		t.Fatalf("expected value from .env, got %q", got)
	}
}

// --- Accessor ---

func TestGetByPath_ValidPaths(t *testing.T) {
	cfg := Defaults()

	val, err := GetByPath(cfg, "server.webhookPath")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "/webhook/twitter" {
		t.Fatalf("expected '/webhook/twitter', got %v", val)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	cfg := Defaults()
	_, err := GetByPath(cfg, "nonexistent.path")
	if err == nil {
		t.Fatal("expected error for nonexistent path")
	}
}

func TestSetByPath_NumericStringStaysString(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "twitter.botUserId", "1234567890"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if cfg.Twitter.BotUserID != "1234567890" {
		t.Fatalf("expected '1234567890', got %q", cfg.Twitter.BotUserID)
	}
}

func TestSetByPath_BoolConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "store.enabled", "false"); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	if cfg.Store.Enabled {
		t.Fatal("expected store.enabled=false")
	}
}

func TestSetByPath_IntConversion(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "server.port", "8080"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected 8080, got %d", cfg.Server.Port)
	}
}

func TestSetByPath_FloatField(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "replies.ratePerMinute", "30.5"); err != nil {
		t.Fatalf("set float: %v", err)
	}
	if cfg.Replies.RatePerMinute != 30.5 {
		t.Fatalf("expected 30.5, got %v", cfg.Replies.RatePerMinute)
	}
}

func TestSetByPath_OnlyTouchesOneField(t *testing.T) {
	cfg := Defaults()
	cfg.Twitter.ConsumerKey = "ck"
	if err := SetByPath(cfg, "twitter.timeoutMs", "5000"); err != nil {
		t.Fatal(err)
	}
	if cfg.Twitter.TimeoutMs != 5000 || cfg.Twitter.ConsumerKey != "ck" || cfg.Twitter.SegmentSize != 4<<20 {
		t.Fatalf("unexpected twitter section %+v", cfg.Twitter)
	}
}

func TestSetByPath_Rejects(t *testing.T) {
	tests := []struct {
		path, value string
	}{
		{"server.port", "eighty"},
		{"server.port", "80.5"},
		{"store.enabled", "maybe"},
		{"server.nope", "1"},
		{"nosuch.key", "1"},
		{"server", "1"},
		{"twitter.botUserId.extra", "1"},
	}
	for _, tt := range tests {
		cfg := Defaults()
		if err := SetByPath(cfg, tt.path, tt.value); err == nil {
			t.Errorf("SetByPath(%q, %q) should fail", tt.path, tt.value)
		}
	}
}

func TestSetByPath_OmittedOptionalKey(t *testing.T) {
	cfg := Defaults()
	if v, err := GetByPath(cfg, "general.logFile"); err != nil || v != "" {
		t.Fatalf("empty optional key should read as \"\", got %v %v", v, err)
	}
	if err := SetByPath(cfg, "replies.rulesPath", "/etc/pufflebot/rules"); err != nil {
		t.Fatal(err)
	}
	if cfg.Replies.RulesPath != "/etc/pufflebot/rules" {
		t.Fatalf("rulesPath = %q", cfg.Replies.RulesPath)
	}
}

// --- Sanitize ---

func TestSanitize_MasksSecrets(t *testing.T) {
	cfg := Defaults()
	cfg.Twitter.ConsumerSecret = "consumer-secret-123456789"
	cfg.Twitter.AccessTokenSecret = "token-secret-123456789"

	sanitized := Sanitize(cfg)

	if sanitized.Twitter.ConsumerSecret != "cons****6789" {
		t.Fatalf("consumer secret should be masked, got %q", sanitized.Twitter.ConsumerSecret)
	}
	if sanitized.Twitter.AccessTokenSecret == cfg.Twitter.AccessTokenSecret {
		t.Fatal("token secret should be masked")
	}
	if cfg.Twitter.ConsumerSecret != "consumer-secret-123456789" {
		t.Fatal("original config should not be modified")
	}
}

func TestSanitize_ShortSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Twitter.ConsumerSecret = "short"
	sanitized := Sanitize(cfg)
	if sanitized.Twitter.ConsumerSecret != "***" {
		t.Fatalf("short secret should be '***', got %q", sanitized.Twitter.ConsumerSecret)
	}
	if sanitized.Twitter.AccessToken != "" {
		t.Fatal("empty values stay empty")
	}
}

// --- ListPaths ---

func TestListPaths_ReturnsAllLeaves(t *testing.T) {
	paths := ListPaths(Defaults())
	for _, expected := range []string{"general.logLevel", "general.logFile", "twitter.consumerKey", "server.port", "store.dbPath", "metrics.endpoint"} {
		if _, ok := paths[expected]; !ok {
			t.Errorf("missing expected path: %s", expected)
		}
	}
	if paths["server.webhookPath"] != "/webhook/twitter" {
		t.Errorf("unexpected value %v", paths["server.webhookPath"])
	}
}

func TestPaths_SortedAndSettable(t *testing.T) {
	cfg := Defaults()
	paths := Paths(cfg)
	for i := 1; i < len(paths); i++ {
		if paths[i-1] >= paths[i] {
			t.Fatalf("paths not sorted at %d: %s >= %s", i, paths[i-1], paths[i])
		}
	}
	for _, p := range paths {
		if _, err := GetByPath(cfg, p); err != nil {
			t.Errorf("listed path %s is not readable: %v", p, err)
		}
	}
}

// --- ExpandEnvVars ---

func TestExpandEnvVars_SimpleSubstitution(t *testing.T) {
	t.Setenv("TEST_CONSUMER_KEY", "ck-abc123")
	result := ExpandEnvVars(`{"consumerKey": "${TEST_CONSUMER_KEY}"}`)
	expected := `{"consumerKey": "ck-abc123"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_DefaultValue(t *testing.T) {
	os.Unsetenv("NONEXISTENT_VAR_12345")
	result := ExpandEnvVars(`{"port": "${NONEXISTENT_VAR_12345:-8080}"}`)
	expected := `{"port": "8080"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_SetVarOverridesDefault(t *testing.T) {
	t.Setenv("MY_PORT", "9090")
	result := ExpandEnvVars(`{"port": "${MY_PORT:-8080}"}`)
	expected := `{"port": "9090"}`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_UnsetVarNoDefault_KeepsOriginal(t *testing.T) {
	os.Unsetenv("TOTALLY_UNSET_VAR_XYZ")
	result := ExpandEnvVars(`"${TOTALLY_UNSET_VAR_XYZ}"`)
	expected := `"${TOTALLY_UNSET_VAR_XYZ}"`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_EmptyVarUsesDefault(t *testing.T) {
	t.Setenv("EMPTY_VAR", "")
	result := ExpandEnvVars(`"${EMPTY_VAR:-fallback}"`)
	expected := `"fallback"`
	if result != expected {
		t.Fatalf("expected %q, got %q", expected, result)
	}
}

func TestExpandEnvVars_DollarSignWithoutBraces(t *testing.T) {
	input := `"$HOME is not substituted"`
	result := ExpandEnvVars(input)
	if result != input {
		t.Fatalf("expected no change for bare $VAR, got %q", result)
	}
}

func TestLoad_WithEnvVarSubstitution(t *testing.T) {
	t.Setenv("TEST_PUFFLEBOT_BOT_ID", "777")

	cfgFile := filepath.Join(t.TempDir(), "config.json")
	content := `{"twitter": {"botUserId": "${TEST_PUFFLEBOT_BOT_ID}"}}`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TWITTER_BOT_USER_ID", "")

	cfg, err := Load(cfgFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Twitter.BotUserID != "777" {
		t.Fatalf("expected bot id '777', got %q", cfg.Twitter.BotUserID)
	}
}
