// internal/infra/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultRPCURL        = "https://api.devnet.solana.com"
	defaultProgramID     = "cndy3Z4yapfJBmL3ShUp5exZKqR3z33thTzeNMm2gRZ"
	defaultConfirmWait   = 30 * time.Second
	defaultPollInterval  = 2 * time.Second
	defaultBroadcastWait = 10 * time.Second
)

var ErrInvalidConfig = errors.New("config: invalid")

// Config はアプリケーション全体の環境変数設定を保持します。
type Config struct {
	Port string

	// Solana
	RPCURL          string
	WSURL           string
	CandyMachineID  string
	ProgramID       string
	Commitment      string
	ConfirmTimeout  time.Duration
	PollInterval    time.Duration
	BroadcastWait   time.Duration
	RefreshInterval time.Duration

	// ★ Identity Gate（Civic）
	// GatekeeperNetwork が指定されていれば、Candy Machine 側の network と一致することを起動時に確認する
	GatekeeperNetwork string
	GatekeeperURL     string

	// ★ 署名ウォレット（いずれか 1 つ以上）
	WalletKeypairPath string
	WalletPrivateKey  string
	// "projects/<PROJECT_ID>/secrets/<SECRET_ID>/versions/latest"
	WalletKeySecret string
	GCPCreds        string

	// 空ならプロセス内ガード
	RedisURL string

	LogLevel  string
	LogFormat string

	CORSAllowedOrigins []string
}

// Load は環境変数を読み込み Config を返します。
// カレントディレクトリに .env があれば先に読み込む（既存の環境変数は上書きしない）。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port: getenvDefault("PORT", "8080"),

		RPCURL:            getenvDefault("SOLANA_RPC_URL", defaultRPCURL),
		CandyMachineID:    strings.TrimSpace(os.Getenv("CANDY_MACHINE_ID")),
		ProgramID:         getenvDefault("CANDY_MACHINE_PROGRAM_ID", defaultProgramID),
		Commitment:        getenvDefault("SOLANA_COMMITMENT", "confirmed"),
		GatekeeperNetwork: strings.TrimSpace(os.Getenv("GATEKEEPER_NETWORK")),
		GatekeeperURL:     strings.TrimSpace(os.Getenv("GATEKEEPER_URL")),

		WalletKeypairPath: strings.TrimSpace(os.Getenv("WALLET_KEYPAIR_PATH")),
		WalletPrivateKey:  strings.TrimSpace(os.Getenv("WALLET_PRIVATE_KEY")),
		WalletKeySecret:   strings.TrimSpace(os.Getenv("WALLET_KEY_SECRET")),
		GCPCreds:          os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),

		RedisURL: strings.TrimSpace(os.Getenv("REDIS_URL")),

		LogLevel:  getenvDefault("LOG_LEVEL", "info"),
		LogFormat: getenvDefault("LOG_FORMAT", "json"),

		CORSAllowedOrigins: splitCSV(getenvDefault("CORS_ALLOWED_ORIGINS", "*")),
	}

	// ★ SOLANA_WS_URL は未指定なら RPC URL から導出、明示的に "-" なら購読を無効化
	if v, ok := os.LookupEnv("SOLANA_WS_URL"); ok {
		cfg.WSURL = strings.TrimSpace(v)
		if cfg.WSURL == "-" {
			cfg.WSURL = ""
		}
	} else {
		cfg.WSURL = DeriveWSURL(cfg.RPCURL)
	}

	var err error
	if cfg.ConfirmTimeout, err = getenvDuration("CONFIRM_TIMEOUT", defaultConfirmWait); err != nil {
		return nil, err
	}
	if cfg.PollInterval, err = getenvDuration("CONFIRM_POLL_INTERVAL", defaultPollInterval); err != nil {
		return nil, err
	}
	if cfg.BroadcastWait, err = getenvDuration("BROADCAST_TIMEOUT", defaultBroadcastWait); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = getenvDuration("STATE_REFRESH_INTERVAL", 0); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate は起動に必要な値が揃っているかを確認します。
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	if c.CandyMachineID == "" {
		return fmt.Errorf("%w: CANDY_MACHINE_ID is required", ErrInvalidConfig)
	}
	if c.RPCURL == "" {
		return fmt.Errorf("%w: SOLANA_RPC_URL is empty", ErrInvalidConfig)
	}
	switch c.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("%w: SOLANA_COMMITMENT must be processed|confirmed|finalized, got %q", ErrInvalidConfig, c.Commitment)
	}
	if c.ConfirmTimeout <= 0 {
		return fmt.Errorf("%w: CONFIRM_TIMEOUT must be positive", ErrInvalidConfig)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: CONFIRM_POLL_INTERVAL must be positive", ErrInvalidConfig)
	}
	if c.BroadcastWait <= 0 {
		return fmt.Errorf("%w: BROADCAST_TIMEOUT must be positive", ErrInvalidConfig)
	}
	if c.RefreshInterval < 0 {
		return fmt.Errorf("%w: STATE_REFRESH_INTERVAL must not be negative", ErrInvalidConfig)
	}
	return nil
}

// HasWalletSource は署名ウォレットの取得元が 1 つ以上設定されているかを返します。
func (c *Config) HasWalletSource() bool {
	return c.WalletKeypairPath != "" || c.WalletPrivateKey != "" || c.WalletKeySecret != ""
}

// DeriveWSURL は RPC の http(s) URL から websocket URL を導出します。
func DeriveWSURL(rpcURL string) string {
	u := strings.TrimSpace(rpcURL)
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	default:
		return ""
	}
}

func getenvDefault(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, key, v, err)
	}
	return d, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
