package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"SignalDesk/pkg/util"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		RateLimit       struct {
			Burst float64 `yaml:"burst" default:"20"`
			RPS   float64 `yaml:"rps" default:"5"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Log struct {
		Level      string `yaml:"level" default:"info"`
		Format     string `yaml:"format" default:"console"`
		Output     string `yaml:"output" default:"stdout"`
		TimeFormat string `yaml:"time_format"`
		MaxSizeMB  int    `yaml:"max_size_mb" default:"100"`
		MaxAgeDays int    `yaml:"max_age_days" default:"14"`
	} `yaml:"log"`
	Monitor struct {
		Enabled           bool          `yaml:"enabled" default:"true"`
		Interval          time.Duration `yaml:"interval" default:"60s"`
		InstrumentTimeout time.Duration `yaml:"instrument_timeout" default:"20s"`
		MaxConcurrency    int           `yaml:"max_concurrency" default:"4"`
		CandleLimit       int           `yaml:"candle_limit" default:"200"`
	} `yaml:"monitor"`
	Instruments []Instrument              `yaml:"instruments"`
	Profiles    map[string]ProfileConfig `yaml:"profiles"`
	Indicators  Indicators                `yaml:"indicators"`
	MarketData  struct {
		Binance struct {
			BaseURL string        `yaml:"base_url" default:"https://api.binance.com"`
			Timeout time.Duration `yaml:"timeout" default:"10s"`
		} `yaml:"binance"`
		Yahoo struct {
			BaseURL string        `yaml:"base_url" default:"https://query1.finance.yahoo.com"`
			Timeout time.Duration `yaml:"timeout" default:"10s"`
		} `yaml:"yahoo"`
		Retries    int           `yaml:"retries" default:"2"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"500ms"`
	} `yaml:"market_data"`
	Cache struct {
		Backend    string        `yaml:"backend" default:"memory"` // memory, redis, layered
		CandlesTTL time.Duration `yaml:"candles_ttl" default:"30s"`
		LatestTTL  time.Duration `yaml:"latest_ttl" default:"24h"`
		MaxItems   int           `yaml:"max_items" default:"1000"`
	} `yaml:"cache"`
	Redis struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"signaldesk"`
	} `yaml:"redis"`
	Alerts struct {
		Cooldown time.Duration `yaml:"cooldown"`
	} `yaml:"alerts"`
	Notifiers struct {
		Console struct {
			Enabled bool `yaml:"enabled" default:"true"`
		} `yaml:"console"`
		Desktop struct {
			Enabled bool          `yaml:"enabled"`
			Timeout time.Duration `yaml:"timeout" default:"10s"`
		} `yaml:"desktop"`
		Email     Email `yaml:"email"`
		Kafka     struct {
			Enabled bool `yaml:"enabled"`
		} `yaml:"kafka"`
		WebSocket struct {
			Enabled bool `yaml:"enabled" default:"true"`
		} `yaml:"websocket"`
	} `yaml:"notifiers"`
	History struct {
		Backend    string `yaml:"backend" default:"jsonfile"` // jsonfile, clickhouse, none
		Path       string `yaml:"path" default:"alert_history.json"`
		MaxRecords int    `yaml:"max_records" default:"100"`
		AlertsOnly bool   `yaml:"alerts_only" default:"true"`
	} `yaml:"history"`
	Kafka struct {
		Enabled        bool     `yaml:"enabled"`
		Brokers        []string `yaml:"brokers"`
		AlertsTopic    string   `yaml:"alerts_topic" default:"signaldesk.alerts"`
		ErrorsTopic    string   `yaml:"errors_topic"`
		SnapshotsTopic string   `yaml:"snapshots_topic"`
		RequiredAcks   int      `yaml:"required_acks" default:"-1"`
		Compression    string   `yaml:"compression" default:"gzip"`
		Producer       struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID     string        `yaml:"group_id" default:"signaldesk"`
			OffsetReset string        `yaml:"auto_offset_reset" default:"latest"`
			Workers     int           `yaml:"workers" default:"2"`
			BufferSize  int           `yaml:"buffer_size" default:"64"`
			RetryMax    int           `yaml:"retry_max" default:"3"`
			BackoffMin  time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax  time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic    string        `yaml:"dlq_topic"`
			MinBytes    int           `yaml:"min_bytes" default:"1"`
			MaxBytes    int           `yaml:"max_bytes" default:"10000000"`
			MinInterval time.Duration `yaml:"min_interval" default:"1s"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"signaldesk"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Queue struct {
		Workers    int           `yaml:"workers" default:"1"`
		RetryLimit int           `yaml:"retry_limit" default:"5"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
		JobTimeout time.Duration `yaml:"job_timeout" default:"2m"`
	} `yaml:"queue"`
}

// Instrument is one monitored symbol.
type Instrument struct {
	Symbol   string `yaml:"symbol"`
	Market   string `yaml:"market"`            // CRYPTO, GOLD, EQUITY
	Source   string `yaml:"source"`            // binance, yahoo
	Interval string `yaml:"interval" default:"5m"`
	Name     string `yaml:"name"`
}

// ProfileConfig overrides the threshold profile of one market class.
type ProfileConfig struct {
	Oversold          float64 `yaml:"oversold"`
	Overbought        float64 `yaml:"overbought"`
	StopLossATRMult   float64 `yaml:"stop_loss_atr_mult"`
	TakeProfitATRMult float64 `yaml:"take_profit_atr_mult"`
}

// Indicators holds the lookback periods used to build snapshots.
type Indicators struct {
	SMAShort        int     `yaml:"sma_short" default:"20"`
	SMALong         int     `yaml:"sma_long" default:"50"`
	EMAShort        int     `yaml:"ema_short" default:"12"`
	EMALong         int     `yaml:"ema_long" default:"26"`
	RSI             int     `yaml:"rsi" default:"14"`
	MACDFast        int     `yaml:"macd_fast" default:"12"`
	MACDSlow        int     `yaml:"macd_slow" default:"26"`
	MACDSignal      int     `yaml:"macd_signal" default:"9"`
	BollingerPeriod int     `yaml:"bollinger_period" default:"20"`
	BollingerStdDev float64 `yaml:"bollinger_stddev" default:"2"`
	ATR             int     `yaml:"atr" default:"14"`
}

type Email struct {
	Enabled  bool          `yaml:"enabled"`
	Queued   bool          `yaml:"queued"`
	Host     string        `yaml:"host" default:"smtp.gmail.com"`
	Port     int           `yaml:"port" default:"587"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	From     string        `yaml:"from"`
	To       []string      `yaml:"to"`
	Timeout  time.Duration `yaml:"timeout" default:"15s"`
}

// Default returns a config with every default tag applied and the stock
// instrument list, used when no file is given.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	c.Instruments = DefaultInstruments()
	return &c, nil
}

// DefaultInstruments mirrors the stock watch list: two crypto pairs, gold
// futures and one Vietnamese equity.
func DefaultInstruments() []Instrument {
	return []Instrument{
		{Symbol: "BTCUSDT", Market: "CRYPTO", Source: "binance", Interval: "5m", Name: "Bitcoin"},
		{Symbol: "ETHUSDT", Market: "CRYPTO", Source: "binance", Interval: "5m", Name: "Ethereum"},
		{Symbol: "GC=F", Market: "GOLD", Source: "yahoo", Interval: "1h", Name: "Gold futures"},
		{Symbol: "VNM.VN", Market: "EQUITY", Source: "yahoo", Interval: "1d", Name: "Vinamilk"},
	}
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse applies defaults, decodes b over them and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(c.Instruments) == 0 {
		c.Instruments = DefaultInstruments()
	}
	for i := range c.Instruments {
		if err := defaults.Set(&c.Instruments[i]); err != nil {
			return nil, fmt.Errorf("apply instrument defaults: %w", err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A .env file in the working directory is read first, when present; real
// environment variables win over it. An empty path starts from Default().
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var (
		c   *Config
		err error
	)
	if path == "" {
		c, err = Default()
	} else {
		c, err = Load(path)
	}
	if err != nil {
		return nil, err
	}

	c.applyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("SIGNALDESK_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("SIGNALDESK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("SIGNALDESK_PORT"); v != "" {
		c.Server.Port = util.ParseIntDefault(v, c.Server.Port)
	}
	if v := getenv("SIGNALDESK_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Monitor.Interval = d
		}
	}
	if v := getenv("SIGNALDESK_REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := getenv("SIGNALDESK_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getenv("SIGNALDESK_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitCSV(v)
	}
	if v := getenv("SIGNALDESK_CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("SIGNALDESK_CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("SIGNALDESK_SMTP_USERNAME"); v != "" {
		c.Notifiers.Email.Username = v
	}
	if v := getenv("SIGNALDESK_SMTP_PASSWORD"); v != "" {
		c.Notifiers.Email.Password = v
	}
	if v := getenv("SIGNALDESK_EMAIL_TO"); v != "" {
		c.Notifiers.Email.To = util.SplitCSV(v)
	}
	if v := getenv("SIGNALDESK_EMAIL_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Notifiers.Email.Enabled = b
		}
	}
}

// RedisRequired reports whether any enabled component needs Redis.
func (c *Config) RedisRequired() bool {
	return c.Cache.Backend == "redis" || c.Cache.Backend == "layered" ||
		(c.Notifiers.Email.Enabled && c.Notifiers.Email.Queued)
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("monitor.interval must be positive")
	}
	if c.Monitor.MaxConcurrency <= 0 {
		return fmt.Errorf("monitor.max_concurrency must be positive")
	}
	if len(c.Instruments) == 0 {
		return fmt.Errorf("instruments cannot be empty")
	}

	seen := make(map[string]struct{}, len(c.Instruments))
	for i, in := range c.Instruments {
		if in.Symbol == "" {
			return fmt.Errorf("instruments[%d].symbol is required", i)
		}
		if _, dup := seen[in.Symbol]; dup {
			return fmt.Errorf("instruments[%d]: duplicate symbol %s", i, in.Symbol)
		}
		seen[in.Symbol] = struct{}{}
		switch strings.ToUpper(in.Market) {
		case "CRYPTO", "GOLD", "EQUITY":
		default:
			return fmt.Errorf("instruments[%d].market must be CRYPTO, GOLD or EQUITY, got '%s'", i, in.Market)
		}
		if in.Source != "binance" && in.Source != "yahoo" {
			return fmt.Errorf("instruments[%d].source must be 'binance' or 'yahoo', got '%s'", i, in.Source)
		}
		if !util.IsValidInterval(in.Interval) {
			return fmt.Errorf("instruments[%d].interval '%s' is not supported", i, in.Interval)
		}
	}

	for market, p := range c.Profiles {
		switch strings.ToUpper(market) {
		case "CRYPTO", "GOLD", "EQUITY":
		default:
			return fmt.Errorf("profiles: unknown market '%s'", market)
		}
		if p.Oversold <= 0 || p.Overbought >= 100 || p.Oversold >= p.Overbought {
			return fmt.Errorf("profiles.%s: need 0 < oversold < overbought < 100", market)
		}
		if p.StopLossATRMult <= 0 || p.TakeProfitATRMult <= 0 {
			return fmt.Errorf("profiles.%s: atr multipliers must be positive", market)
		}
	}

	ind := c.Indicators
	if ind.SMAShort <= 0 || ind.SMALong <= 0 || ind.SMAShort > ind.SMALong {
		return fmt.Errorf("indicators: need 0 < sma_short <= sma_long")
	}
	if ind.EMAShort <= 0 || ind.EMALong <= 0 || ind.EMAShort > ind.EMALong {
		return fmt.Errorf("indicators: need 0 < ema_short <= ema_long")
	}
	if ind.RSI <= 1 || ind.ATR <= 0 || ind.BollingerPeriod <= 1 || ind.BollingerStdDev <= 0 {
		return fmt.Errorf("indicators: rsi, atr and bollinger periods must be positive")
	}
	if ind.MACDFast <= 0 || ind.MACDSlow <= ind.MACDFast || ind.MACDSignal <= 0 {
		return fmt.Errorf("indicators: need 0 < macd_fast < macd_slow and macd_signal > 0")
	}

	switch c.Cache.Backend {
	case "memory", "redis", "layered":
	default:
		return fmt.Errorf("cache.backend must be 'memory', 'redis' or 'layered', got '%s'", c.Cache.Backend)
	}

	switch c.History.Backend {
	case "jsonfile", "none":
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required when history.backend is clickhouse")
		}
	default:
		return fmt.Errorf("history.backend must be 'jsonfile', 'clickhouse' or 'none', got '%s'", c.History.Backend)
	}
	if c.History.MaxRecords <= 0 {
		return fmt.Errorf("history.max_records must be positive")
	}

	kafkaNeeded := c.Notifiers.Kafka.Enabled || c.Kafka.SnapshotsTopic != "" || c.Kafka.ErrorsTopic != ""
	if kafkaNeeded && !c.Kafka.Enabled {
		return fmt.Errorf("kafka.enabled must be true when kafka notifier, snapshots_topic or errors_topic is set")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}

	if e := c.Notifiers.Email; e.Enabled {
		if e.Host == "" || e.Port <= 0 {
			return fmt.Errorf("notifiers.email: host and port are required")
		}
		if len(e.To) == 0 {
			return fmt.Errorf("notifiers.email.to cannot be empty")
		}
	}
	return nil
}
