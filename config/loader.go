package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the startup configuration. Everything here is loaded once at
// process start; the runtime-mutable trade settings (margin, leverage, offsets)
// are seeded from it and updated elsewhere.
type Config struct {
	BinanceAPIKey    string
	BinanceAPISecret string
	UseTestnet       bool

	Symbol     string
	Leverage   int
	MarginUSDT float64
	TPOffset   float64
	SLOffset   float64

	ListenAddr string

	// Entry fill policy. When WaitForFill is set the submitter polls the entry
	// order until it fills before placing the protection legs, matching the
	// original terminal behavior. Off by default: TP/SL are close-position
	// mark-price orders and are valid before the entry fills.
	WaitForFill      bool
	FillPollInterval time.Duration
	EntryWaitTimeout time.Duration

	TelegramToken  string
	TelegramChatID int64
}

// Load reads variables from .env and the process environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, relying on OS environment variables")
	}

	apiKey := os.Getenv("BINANCE_API_KEY")
	apiSecret := os.Getenv("BINANCE_API_SECRET")
	if apiSecret == "" {
		apiSecret = os.Getenv("BINANCE_SECRET_KEY")
	}
	if apiKey == "" || apiSecret == "" {
		log.Println("⚠️  Binance credentials missing, exchange calls will be rejected")
	}

	chatID, _ := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64)

	return &Config{
		BinanceAPIKey:    apiKey,
		BinanceAPISecret: apiSecret,
		UseTestnet:       envBool("USE_TESTNET", false),
		Symbol:           envString("SYMBOL", "BTCUSDT"),
		Leverage:         envInt("LEVERAGE", 10),
		MarginUSDT:       envFloat("MARGIN_USDT", 2000),
		TPOffset:         envFloat("TP_OFFSET", 1000),
		SLOffset:         envFloat("SL_OFFSET", 400),
		ListenAddr:       envString("LISTEN_ADDR", ":8080"),
		WaitForFill:      envBool("WAIT_FOR_FILL", false),
		FillPollInterval: envDuration("FILL_POLL_INTERVAL", 10*time.Second),
		EntryWaitTimeout: envDuration("ENTRY_WAIT_TIMEOUT", 5*time.Minute),
		TelegramToken:    os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   chatID,
	}
}

// Validate checks the numeric trading parameters before anything is wired up.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return errors.New("SYMBOL must not be empty")
	}
	if c.Leverage <= 0 {
		return errors.New("LEVERAGE must be positive")
	}
	if c.MarginUSDT <= 0 {
		return errors.New("MARGIN_USDT must be positive")
	}
	if c.TPOffset <= 0 || c.SLOffset <= 0 {
		return errors.New("TP_OFFSET and SL_OFFSET must be positive")
	}
	if c.FillPollInterval <= 0 {
		return errors.New("FILL_POLL_INTERVAL must be positive")
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
