package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
admin:
  jwt_secret: admin-secret
telegram:
  token: tg-token
  watch_chat_id: -100123
  watch_senders: ["alice", "Bob Smith"]
ai:
  api_key: coze-key
  bot_id: "7391"
storage:
  app_id: cli_a
  app_secret: secret
  bitable_app_token: app-token
  table_id: tbl
`

// clearEnv blanks every override so the host environment cannot leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"TELEGRAM_TOKEN", "COZE_API_KEY", "COZE_BOT_ID", "FEISHU_APP_ID", "FEISHU_APP_SECRET",
		"FEISHU_ALERT_WEBHOOK", "DATABASE_URL", "REDIS_URL", "TOKEN_CACHE_KEY", "ADMIN_JWT_SECRET", "WATCH_CHAT_ID", "WATCH_SENDERS",
	} {
		t.Setenv(k, "")
	}
}

func TestParse_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Parse([]byte(minimalYAML), false)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if cfg.AI.BaseURL != "https://api.coze.cn" || cfg.AI.PollInterval != 8*time.Second || cfg.AI.MaxPolls != 75 {
		t.Fatalf("ai defaults unexpected: %+v", cfg.AI)
	}
	if cfg.AI.Timeout != 120*time.Second || cfg.AI.ConcurrentLimit != 1 {
		t.Fatalf("ai call defaults unexpected: %+v", cfg.AI)
	}
	if cfg.Storage.BaseURL != "https://open.feishu.cn" || cfg.Storage.OnUploadFailure != UploadFailureDrop {
		t.Fatalf("storage defaults unexpected: %+v", cfg.Storage)
	}
	if cfg.Batch.IdleTimeout != time.Minute || cfg.Batch.Workers != 1 || cfg.Batch.ImageDir != "images" || cfg.Batch.ImageRetention != 7*24*time.Hour {
		t.Fatalf("batch defaults unexpected: %+v", cfg.Batch)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" || cfg.Admin.Port != 8080 {
		t.Fatalf("log/admin defaults unexpected: %+v %+v", cfg.Log, cfg.Admin)
	}
	if !reflect.DeepEqual(cfg.Telegram.WatchSenders, []string{"alice", "Bob Smith"}) {
		t.Fatalf("senders unexpected: %#v", cfg.Telegram.WatchSenders)
	}
}

func TestParse_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("COZE_API_KEY", "from-env")
	t.Setenv("FEISHU_APP_SECRET", "env-secret")
	t.Setenv("WATCH_CHAT_ID", "-42")
	t.Setenv("WATCH_SENDERS", " carol , , dave ")

	cfg, err := Parse([]byte(minimalYAML), false)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if cfg.AI.APIKey != "from-env" || cfg.Storage.AppSecret != "env-secret" {
		t.Fatalf("secrets not overridden: %+v %+v", cfg.AI, cfg.Storage)
	}
	if cfg.Telegram.WatchChatID != -42 {
		t.Fatalf("watch chat id = %d; want -42", cfg.Telegram.WatchChatID)
	}
	if !reflect.DeepEqual(cfg.Telegram.WatchSenders, []string{"carol", "dave"}) {
		t.Fatalf("senders unexpected: %#v", cfg.Telegram.WatchSenders)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(string) string
		dev     bool
		wantErr string
	}{
		{
			name:    "missing telegram token",
			mutate:  func(s string) string { return strings.Replace(s, "token: tg-token", "token: \"\"", 1) },
			wantErr: "telegram.token",
		},
		{
			name:    "missing coze key",
			mutate:  func(s string) string { return strings.Replace(s, "api_key: coze-key", "api_key: \"\"", 1) },
			wantErr: "ai.api_key",
		},
		{
			name:    "missing table",
			mutate:  func(s string) string { return strings.Replace(s, "table_id: tbl", "table_id: \"\"", 1) },
			wantErr: "storage.bitable_app_token",
		},
		{
			name:    "missing admin secret",
			mutate:  func(s string) string { return strings.Replace(s, "jwt_secret: admin-secret", "jwt_secret: \"\"", 1) },
			wantErr: "admin.jwt_secret",
		},
		{
			name: "bad upload failure policy",
			mutate: func(s string) string {
				return s + "  on_upload_failure: retry\n"
			},
			wantErr: "on_upload_failure",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Parse([]byte(tc.mutate(minimalYAML)), tc.dev)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("want error containing %q, got %v", tc.wantErr, err)
			}
		})
	}

	t.Run("dev mode does not need coze credentials or an admin secret", func(t *testing.T) {
		clearEnv(t)
		raw := strings.Replace(minimalYAML, "api_key: coze-key", "api_key: \"\"", 1)
		raw = strings.Replace(raw, "jwt_secret: admin-secret", "jwt_secret: \"\"", 1)
		cfg, err := Parse([]byte(raw), true)
		if err != nil {
			t.Fatalf("Parse() error: %v", err)
		}
		if !cfg.Runtime.Dev {
			t.Fatal("expected Runtime.Dev to be set")
		}
	})
}

func TestLoadConfig_ReadsFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path, false)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Telegram.Token != "tg-token" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml"), false); err == nil {
		t.Fatal("expected error for missing file")
	}
}
