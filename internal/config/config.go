package config

import (
	"errors"
	"os"
	"time"
)

// ConfigFileEnv names the variable consulted when no --config flag is given.
const ConfigFileEnv = "CONFIG_FILE"

var ErrNoConfigFile = errors.New("config file is required: use --config or " + ConfigFileEnv)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Broker         BrokerConfig
	Logging        LoggingConfig
	Verification   VerificationConfig
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Workers        WorkersConfig
	Supervisor     SupervisorConfig
	Auth           AuthConfig
	Gateway        GatewayConfig
	Tracing        TracingConfig
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig
	Redis         RedisConfig
	MongoDB       MongoDBConfig
	RunMigrations bool `mapstructure:"run_migrations"`
	// ResultStore selects the outcome backend: "postgres" or "mongodb".
	ResultStore string `mapstructure:"result_store"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BrokerConfig struct {
	Type   string       `mapstructure:"type"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	Lmstfy LmstfyConfig `mapstructure:"lmstfy"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
	// Redelivery paces re-handling of a requeued message. The message stays
	// uncommitted until it is acknowledged.
	Redelivery RetryConfig `mapstructure:"redelivery"`
}

type LmstfyConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	Namespace          string `mapstructure:"namespace"`
	Token              string `mapstructure:"token"`
	TTRSeconds         uint32 `mapstructure:"ttr_seconds"`
	PollTimeoutSeconds uint32 `mapstructure:"poll_timeout_seconds"`
	TTLSeconds         uint32 `mapstructure:"ttl_seconds"`
	Tries              uint16 `mapstructure:"tries"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type VerificationConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retry   RetryConfig   `mapstructure:"retry"`

	Affiliation EndpointConfig `mapstructure:"affiliation"`
	Document    EndpointConfig `mapstructure:"document"`
	Eligibility EndpointConfig `mapstructure:"eligibility"`

	OperatorName   string `mapstructure:"operator_name"`
	DefaultAddress string `mapstructure:"default_address"`
}

// EndpointConfig describes one centralizer operation. ApproveWhen is a CEL
// expression over operation, status_code, body and headers evaluated on 2xx
// responses.
type EndpointConfig struct {
	Path              string `mapstructure:"path"`
	Method            string `mapstructure:"method"`
	ApproveWhen       string `mapstructure:"approve_when"`
	RejectStatusCodes []int  `mapstructure:"reject_status_codes"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type WorkersConfig struct {
	Affiliation    WorkerConfig  `mapstructure:"affiliation"`
	Document       WorkerConfig  `mapstructure:"document"`
	DrainTimeout   time.Duration `mapstructure:"drain_timeout"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

type WorkerConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Queue        string `mapstructure:"queue"`
	OutcomeTopic string `mapstructure:"outcome_topic"`
}

type SupervisorConfig struct {
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	JWTAlgorithm  string        `mapstructure:"jwt_algorithm"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
	LookupTimeout time.Duration `mapstructure:"lookup_timeout"`
}

type GatewayConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}

// ResolvePath returns flagValue, falling back to $CONFIG_FILE.
func ResolvePath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv(ConfigFileEnv); env != "" {
		return env, nil
	}
	return "", ErrNoConfigFile
}
