// Package config loads the pipeline's environment configuration
// (spec.md §6), following the teacher's fallback-chain pattern: an
// optional .env file, then os.Getenv, then a typed default.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

func init() {
	// Best-effort; a missing .env in production is normal.
	_ = godotenv.Load()
}

// Credentials holds exchange API secrets. Names match spec.md §6 exactly.
type Credentials struct {
	BybitAPIKey    string
	BybitAPISecret string
	BybitTestnet   bool
}

// LoadCredentials reads BYBIT_API_KEY / BYBIT_API_SECRET / BYBIT_TESTNET.
func LoadCredentials() Credentials {
	return Credentials{
		BybitAPIKey:    getString("BYBIT_API_KEY", ""),
		BybitAPISecret: getString("BYBIT_API_SECRET", ""),
		BybitTestnet:   getBool("BYBIT_TESTNET", true),
	}
}

// Broker holds RabbitMQ connection settings.
type Broker struct {
	Host     string
	Port     int
	User     string
	Pass     string
	Queue    string
	UseTLS   bool
	Heartbeat       time.Duration
	BlockedTimeout  time.Duration
}

func LoadBroker() Broker {
	return Broker{
		Host:           getString("RABBITMQ_HOST", "localhost"),
		Port:           getInt("RABBITMQ_PORT", 5672),
		User:           getString("RABBITMQ_USER", "guest"),
		Pass:           getString("RABBITMQ_PASS", "guest"),
		Queue:          getString("RABBITMQ_QUEUE", "backtest-tasks"),
		UseTLS:         getBool("RABBITMQ_TLS", false),
		Heartbeat:      600 * time.Second,
		BlockedTimeout: 300 * time.Second,
	}
}

// KV holds Redis connection settings.
type KV struct {
	Host string
	Port int
}

func LoadKV() KV {
	return KV{
		Host: getString("REDIS_HOST", "localhost"),
		Port: getInt("REDIS_PORT", 6379),
	}
}

// Addr returns the host:port form the Redis client expects.
func (k KV) Addr() string {
	return k.Host + ":" + strconv.Itoa(k.Port)
}

// Persistence holds the sqlite-backed table locations (region/table
// names in the spec's abstract persistence model map to file paths).
type Persistence struct {
	Region          string
	ResultsTable    string
	ScanHistoryTable string
	PositionsTable  string
	DSN             string
}

func LoadPersistence() Persistence {
	return Persistence{
		Region:           getString("AWS_REGION", "local"),
		ResultsTable:     getString("RESULTS_TABLE", "results"),
		ScanHistoryTable: getString("SCAN_HISTORY_TABLE", "scan_history"),
		PositionsTable:   getString("POSITIONS_TABLE", "positions"),
		DSN:              getString("STORAGE_DSN", "file:pipeline.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"),
	}
}

// Trading holds the knobs shared across the entry engine, selector,
// and executor (spec.md §4.1-4.6, §6).
type Trading struct {
	PositionSize     float64
	Leverage         int
	ScanInterval     time.Duration
	DiscoveryInterval time.Duration
	MinVolume24h     float64
	MinVolatilityPct float64
	MinWinRate       float64
	MinPnL           float64
	MinTrades        int
	MinConfidence    int
	StopLossPct      float64
	TakeProfitPct    float64
	TakerFee         float64
	MinProfitTarget  float64
	PriceTolerance   float64
}

func LoadTrading() Trading {
	return Trading{
		PositionSize:      getFloat("POSITION_SIZE", 100),
		Leverage:          getInt("LEVERAGE", 10),
		ScanInterval:      time.Duration(getInt("SCAN_INTERVAL", 5)) * time.Second,
		DiscoveryInterval: time.Duration(getInt("DISCOVERY_INTERVAL", 24)) * time.Hour,
		MinVolume24h:      getFloat("MIN_VOLUME_24H", 1_000_000),
		MinVolatilityPct:  getFloat("MIN_VOLATILITY_PCT", 2.0),
		MinWinRate:        getFloat("MIN_WIN_RATE", 45),
		MinPnL:            getFloat("MIN_PNL", 100),
		MinTrades:         getInt("MIN_TRADES", 20),
		MinConfidence:     getInt("MIN_CONFIDENCE", 60),
		StopLossPct:       getFloat("STOP_LOSS_PCT", 0.01),
		TakeProfitPct:     getFloat("TAKE_PROFIT_PCT", 0.02),
		TakerFee:          getFloat("TAKER_FEE", 0.0006),
		MinProfitTarget:   getFloat("MIN_PROFIT_TARGET", 7),
		PriceTolerance:    getFloat("PRICE_TOLERANCE", 0.005),
	}
}

// Relay holds the optional live-scanner WebSocket settings (spec.md
// §5 Scanner v2, §6's entry-signal/opportunity-queue path). Timeouts
// follow spec.md §5's explicit defaults.
type Relay struct {
	URL               string
	ReadTimeout       time.Duration
	PingInterval      time.Duration
	ReconnectDelay    time.Duration
	HeartbeatInterval time.Duration
}

func LoadRelay() Relay {
	return Relay{
		URL:               getString("RELAY_WS_URL", "wss://stream.bybit.com/v5/public/linear"),
		ReadTimeout:       time.Duration(getInt("RELAY_READ_TIMEOUT_SECONDS", 60)) * time.Second,
		PingInterval:      time.Duration(getInt("RELAY_PING_INTERVAL_SECONDS", 20)) * time.Second,
		ReconnectDelay:    time.Duration(getInt("RELAY_RECONNECT_DELAY_SECONDS", 5)) * time.Second,
		HeartbeatInterval: time.Duration(getInt("RELAY_HEARTBEAT_INTERVAL_SECONDS", 30)) * time.Second,
	}
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getBool(key string, def bool) bool {
	v := strings.ToLower(os.Getenv(key))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}
