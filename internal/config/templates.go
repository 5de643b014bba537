package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# NSE Stock Monitor Configuration

[store]
# Threshold persistence backend: "json" or "sqlite"
backend = "json"
# JSON state file (relative paths are resolved against this directory)
path = "stock_config.json"
sqlite_path = "monitor.db"

[fetcher]
base_url = "https://www.nseindia.com"
quote_path = "/api/quote-equity"
prime_timeout = "5s"
request_timeout = "10s"
# Attempts per quote before giving up for this cycle
max_attempts = 3
# Delay before retry n is 2^n * backoff_base plus up to backoff_jitter
backoff_base = "500ms"
backoff_jitter = "500ms"
throttle_min = "300ms"
throttle_max = "1s"

[monitor]
# Tick period for 'serve'
interval = "1m"
# Tick period for 'monitor'
cli_interval = "5m"
timezone = "Asia/Kolkata"
open = "09:15"
close = "15:30"
# Exchange holidays, YYYY-MM-DD
holidays = []
ignore_market_hours = false

[alerts]
log_file = "stock_alerts.log"
tail_lines = 20

[server]
listen = ":5000"
allowed_origins = ["*"]

[notifications.webhook]
enabled = false
url = ""

[notifications.telegram]
enabled = false
bot_token = ""
chat_id = ""

[redis]
enabled = false
addr = "localhost:6379"
key_prefix = "stock:"
channel_prefix = "prices."

[logging]
level = "info"
file = true
file_path = "logs/monitor.log"
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	return os.WriteFile(configPath, []byte(configTemplate), 0600)
}
