package shared

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validConfig = `
server:
  addr: ":9000"
wework:
  corp_id: "ww6a112864f8022910"
  token: "QDG6eK"
  encoding_aes_key: "4Ma3YBrSBbX2aez8MJpXGBne5LSDwgGqHbhM9WPYIws"
`

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig([]byte(validConfig))
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "/callback", cfg.Server.CallbackPath)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, DefaultAPIBaseURL, cfg.WeWork.APIBaseURL)
	assert.Equal(t, TokenCacheMemory, cfg.TokenCache.Driver)
	assert.Equal(t, ReplyModePassive, cfg.Assistant.ReplyMode)
	assert.Equal(t, 30*time.Second, cfg.AI.Timeout)
	assert.Empty(t, cfg.AI.BaseURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestParseConfig_Full(t *testing.T) {
	data := validConfig + `
  agent_id: 1000002
  corp_secret: "secret"
  api_base_url: "http://127.0.0.1:8081/cgi-bin/"
token_cache:
  driver: redis
  redis_addr: "127.0.0.1:6379"
  redis_db: 2
ai:
  base_url: "http://127.0.0.1:8000"
  timeout: 5s
assistant:
  reply_mode: active
  welcome_text: "欢迎"
log:
  level: debug
  format: json
  file: "/var/log/wecom/gateway.log"
metrics:
  enabled: true
`
	cfg, err := ParseConfig([]byte(data))
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8081/cgi-bin", cfg.WeWork.APIBaseURL)
	assert.Equal(t, int64(1000002), cfg.WeWork.AgentID)
	assert.Equal(t, 2, cfg.TokenCache.RedisDB)
	assert.Equal(t, 5*time.Second, cfg.AI.Timeout)
	assert.Equal(t, ReplyModeActive, cfg.Assistant.ReplyMode)
	assert.Equal(t, "欢迎", cfg.Assistant.WelcomeText)
	assert.Equal(t, 100, cfg.Log.MaxSizeMB)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestParseConfig_Invalid(t *testing.T) {
	replace := func(old, repl string) string { return strings.Replace(validConfig, old, repl, 1) }
	appendYAML := func(extra string) string { return validConfig + extra }

	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"bad addr", replace(`":9000"`, `"9000"`), "server.addr"},
		{"missing corp id", replace(`"ww6a112864f8022910"`, `""`), "wework.corp_id"},
		{"token not alphanumeric", replace(`"QDG6eK"`, `"QDG-6eK"`), "wework.token"},
		{"short aes key", replace(`Iws"`, `"`), "wework.encoding_aes_key"},
		{"relative callback path", replace("server:\n", "server:\n  callback_path: callback\n"), "server.callback_path"},
		{"unknown cache driver", appendYAML("token_cache:\n  driver: memcached\n"), "token_cache.driver"},
		{"redis without addr", appendYAML("token_cache:\n  driver: redis\n"), "token_cache.redis_addr"},
		{"bad ai url", appendYAML("ai:\n  base_url: \"localhost\"\n"), "ai.base_url"},
		{"unknown reply mode", appendYAML("assistant:\n  reply_mode: push\n"), "assistant.reply_mode"},
		{"active without secret", appendYAML("assistant:\n  reply_mode: active\n"), "wework.corp_secret"},
		{"bad log format", appendYAML("log:\n  format: xml\n"), "log.format"},
		{"metrics on callback path", appendYAML("metrics:\n  enabled: true\n  path: /callback\n"), "metrics.path"},
		{"not yaml", "server: [", "parse config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig_ExpandsEnv(t *testing.T) {
	t.Setenv("WECOM_TEST_TOKEN", "envToken1")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := strings.Replace(validConfig, `"QDG6eK"`, `"${WECOM_TEST_TOKEN}"`, 1)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "envToken1", cfg.WeWork.Token)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config file")
}
