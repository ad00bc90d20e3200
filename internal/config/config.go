package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Quote sources for the relay's expected-output check.
const (
	QuoteVenue     = "venue"
	QuoteRouter    = "router"
	QuoteCoinGecko = "coingecko"
)

type Config struct {
	// Secrets (from .env)
	PrivateKey          string
	EthereumAPIEndpoint string
	WebhookURL          string
	BotName             string
	APIKey              string
	CORSAllowOrigin     string

	// Process
	APIPort     int
	MetricsAddr string
	LogLevel    string
	GenesisFile string

	// Database
	DBEnabled  bool
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string

	// Blockchain
	ChainID              int
	WETHAddress          string
	UniswapRouterAddress string
	GasMultiplier        float64
	GasLimit             int

	// Execution
	PaperTradingEnabled bool
	QuoteSource         string

	// Audit stream
	KafkaBrokers []string
	KafkaTopic   string

	Genesis *Genesis
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		// Secrets
		PrivateKey:          envStr("PRIVATE_KEY", ""),
		EthereumAPIEndpoint: envStr("ETHEREUM_API_ENDPOINT", ""),
		WebhookURL:          envStr("WEBHOOK_URL", ""),
		BotName:             envStr("BOT_NAME", "TrahnTreasury"),
		APIKey:              envStr("API_KEY", ""),
		CORSAllowOrigin:     envStr("CORS_ALLOW_ORIGIN", "*"),

		// Process
		APIPort:     envInt("API_PORT", 3001),
		MetricsAddr: envStr("METRICS_ADDR", ":9090"),
		LogLevel:    envStr("LOG_LEVEL", "info"),
		GenesisFile: envStr("GENESIS_FILE", "genesis.yaml"),

		// Database
		DBEnabled:  envBool("DB_ENABLED", false),
		DBHost:     envStr("DB_HOST", "localhost"),
		DBPort:     envInt("DB_PORT", 5432),
		DBName:     envStr("DB_NAME", "trahn_treasury"),
		DBUser:     envStr("DB_USER", ""),
		DBPassword: envStr("DB_PASSWORD", ""),

		// Blockchain
		ChainID:              envInt("CHAIN_ID", 1),
		WETHAddress:          envStr("WETH_ADDRESS", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		UniswapRouterAddress: envStr("UNISWAP_ROUTER_ADDRESS", "0x7a250d5630B4cF539739dF2C5dAcb4c659F2488D"),
		GasMultiplier:        envFloat("GAS_MULTIPLIER", 1.2),
		GasLimit:             envInt("GAS_LIMIT", 250000),

		// Execution
		PaperTradingEnabled: envBool("PAPER_TRADING_ENABLED", true),
		QuoteSource:         strings.ToLower(envStr("QUOTE_SOURCE", "")),

		// Audit stream
		KafkaBrokers: envList("KAFKA_BROKERS"),
		KafkaTopic:   envStr("KAFKA_TOPIC", "treasury-audit"),
	}
	if cfg.QuoteSource == "" {
		cfg.QuoteSource = QuoteVenue
		if !cfg.PaperTradingEnabled {
			cfg.QuoteSource = QuoteRouter
		}
	}

	g, err := LoadGenesis(cfg.GenesisFile)
	if err != nil {
		return nil, err
	}
	cfg.Genesis = g

	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string

	if !c.PaperTradingEnabled {
		if c.PrivateKey == "" {
			errs = append(errs, "PRIVATE_KEY is required for live trading")
		}
		if c.EthereumAPIEndpoint == "" {
			errs = append(errs, "ETHEREUM_API_ENDPOINT is required for live trading")
		}
	}
	switch c.QuoteSource {
	case QuoteVenue:
		if !c.PaperTradingEnabled {
			errs = append(errs, "QUOTE_SOURCE=venue needs PAPER_TRADING_ENABLED")
		}
	case QuoteRouter:
		if c.PaperTradingEnabled {
			errs = append(errs, "QUOTE_SOURCE=router needs live trading")
		}
	case QuoteCoinGecko:
	default:
		errs = append(errs, fmt.Sprintf("unknown QUOTE_SOURCE %q", c.QuoteSource))
	}
	if c.DBEnabled && c.DBUser == "" {
		errs = append(errs, "DB_USER is required when DB_ENABLED")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, "KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if c.Genesis == nil {
		errs = append(errs, "genesis file not loaded")
	} else if err := c.Genesis.Validate(c.PaperTradingEnabled); err != nil {
		errs = append(errs, err.Error())
	}
	if c.APIKey == "" {
		fmt.Println("[WARN] API_KEY not set, REST API has no authentication")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}
	return nil
}

func (c *Config) Print() {
	fmt.Println("=== TRAHN Treasury Configuration ===")

	if c.PaperTradingEnabled {
		fmt.Println("════════════════════════════════════════")
		fmt.Println("  PAPER TRADING MODE ENABLED")
		fmt.Println("  Swaps settle against the in-memory venue")
		fmt.Println("════════════════════════════════════════")
	} else {
		fmt.Println("  LIVE TRADING MODE")
	}

	fmt.Println("--------------------------------------")
	fmt.Printf("Chain ID: %d\n", c.ChainID)
	fmt.Printf("Router: %s...\n", truncAddr(c.UniswapRouterAddress))
	fmt.Printf("Quote source: %s\n", c.QuoteSource)
	if g := c.Genesis; g != nil {
		fmt.Println("--------------------------------------")
		fmt.Println("Genesis:")
		fmt.Printf("  Treasury: %s...\n", truncAddr(g.Treasury))
		fmt.Printf("  Relay: %s...\n", truncAddr(g.Relay))
		fmt.Printf("  Governance asset: %s\n", g.GovernanceAsset)
		fmt.Printf("  Assets: %d, Pairs: %d, Traders: %d\n", len(g.Assets), len(g.Pairs), len(g.Traders))
		fmt.Printf("  Params: maxTrade=%dbps maxSlippage=%dbps cooldown=%ds\n",
			g.Params.MaxTradeBps, g.Params.MaxSlippageBps, g.Params.CooldownSeconds)
	}
	fmt.Println("--------------------------------------")
	fmt.Printf("Database: %s\n", boolLabel(c.DBEnabled, fmt.Sprintf("%s:%d/%s", c.DBHost, c.DBPort, c.DBName), "disabled"))
	fmt.Printf("Kafka audit: %s\n", boolLabel(len(c.KafkaBrokers) > 0, c.KafkaTopic, "disabled"))
	fmt.Printf("Webhook: %s\n", boolLabel(c.WebhookURL != "", "configured", "not set"))
	fmt.Printf("Metrics: %s\n", boolLabel(c.MetricsAddr != "", c.MetricsAddr, "disabled"))
	fmt.Println("======================================")
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// --- helpers ---

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "true" || v == "1" || v == "yes"
	}
	return fallback
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func truncAddr(addr string) string {
	if len(addr) > 10 {
		return addr[:10]
	}
	return addr
}

func boolLabel(cond bool, ifTrue, ifFalse string) string {
	if cond {
		return ifTrue
	}
	return ifFalse
}
