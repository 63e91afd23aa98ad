package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const minimal = `
telegram:
  token: "123:abc"
`

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	require.NoError(t, err)

	require.Equal(t, "longpoll", cfg.Telegram.RunMode)
	require.Equal(t, StorageMemory, cfg.Storage.Backend)
	require.Equal(t, 10000, cfg.Storage.MemorySize)
	require.Equal(t, "th", cfg.Booking.Locale)
	require.Equal(t, "Asia/Bangkok", cfg.Booking.Location().String())
	require.Equal(t, 15*time.Second, cfg.Booking.TurnTimeout())
	require.Equal(t, KBNone, cfg.KB.Backend)
	require.Equal(t, 1, cfg.RateLimit.Burst)
	require.Same(t, &cfg.Config, cfg.CoreConfig())
}

func TestParseFullFile(t *testing.T) {
	data := `
telegram:
  token: "123:abc"
  admin_id: 42
logging:
  level: debug
rate_limit:
  interval_ms: 500
  burst: 3
  exclude_updates: [" Callback "]
storage:
  backend: Postgres
  ttl_hours: 24
database:
  host: db
  name: roombot
booking:
  locale: en
  timezone: UTC
kb:
  backend: static
  static_file: kb.yaml
metrics:
  listen: ":9090"
sender:
  workers: 2
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, int64(42), cfg.Telegram.AdminID)
	require.Equal(t, StoragePostgres, cfg.Storage.Backend)
	require.Equal(t, 24*time.Hour, cfg.Storage.TTL())
	require.Equal(t, "5432", cfg.Database.Port)
	require.Equal(t, "disable", cfg.Database.SSLMode)
	require.Equal(t, []string{"callback"}, cfg.RateLimit.ExcludeUpdates)
	require.Equal(t, 3, cfg.RateLimit.Burst)
	require.Equal(t, KBStatic, cfg.KB.Backend)
	require.Equal(t, ":9090", cfg.Metrics.Listen)
	require.Equal(t, 2, cfg.Sender.Workers)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BOT_TOKEN", "env:token")
	t.Setenv("STORAGE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Parse([]byte("telegram: {}\n"))
	require.NoError(t, err)
	require.Equal(t, "env:token", cfg.Telegram.Token)
	require.Equal(t, StorageRedis, cfg.Storage.Backend)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestNormalizeRejects(t *testing.T) {
	cases := map[string]string{
		"no token":          "telegram: {}\n",
		"bad backend":       minimal + "storage: {backend: etcd}\n",
		"postgres no host":  minimal + "storage: {backend: postgres}\n",
		"redis no addr":     minimal + "storage: {backend: redis}\n",
		"bad timezone":      minimal + "booking: {timezone: Mars/Olympus}\n",
		"qnamaker no key":   minimal + "kb: {backend: qnamaker, endpoint: https://x}\n",
		"static no file":    minimal + "kb: {backend: static}\n",
		"bad kb":            minimal + "kb: {backend: luis}\n",
		"negative ttl":      minimal + "storage: {ttl_hours: -1}\n",
		"negative burst":    minimal + "rate_limit: {burst: -1}\n",
		"bad exclude":       minimal + "rate_limit: {exclude_updates: [poll]}\n",
		"negative retries":  minimal + "sender: {max_retries: -1}\n",
		"webhook no listen": "telegram: {token: x, run_mode: webhook}\nwebhook: {url: https://x}\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			require.Error(t, err)
		})
	}

	require.Error(t, Normalize(nil))
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
