package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gamezone/internal/pricing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaultsAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("POS_BACKEND_URL", "http://backend:5000/api")
	t.Setenv("POS_BOT_TOKEN", "123:abc")

	path := writeConfig(t, `
backend:
  base_url: ${POS_BACKEND_URL}
telegram:
  bot_token: ${POS_BOT_TOKEN}
  chat_ids: [1, 2]
pricing:
  policy: lenient
database:
  path: `+filepath.Join(dir, "db", "pos.db")+`
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://backend:5000/api", cfg.Backend.BaseURL)
	assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
	assert.Equal(t, []int64{1, 2}, cfg.Telegram.ChatIDs)
	assert.Equal(t, pricing.Lenient, cfg.PricingPolicy())
	assert.Equal(t, 10*time.Second, cfg.BackendTimeout())
	assert.Equal(t, 30*time.Second, cfg.RefreshInterval())
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "Stops", cfg.Google.Sheet)
	assert.DirExists(t, filepath.Join(dir, "db"))
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing backend", "pricing:\n  policy: strict\n"},
		{"bad policy", "backend:\n  base_url: http://x\npricing:\n  policy: generous\n"},
		{"google without sheet", "backend:\n  base_url: http://x\ngoogle:\n  enabled: true\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
