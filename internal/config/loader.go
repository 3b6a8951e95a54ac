package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"connectivity/internal/constants"
)

func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	viper.SetConfigFile(configFile)

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout_seconds", "15s")
	viper.SetDefault("server.write_timeout_seconds", "15s")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("broker.type", constants.BrokerKafka)
	viper.SetDefault("broker.kafka.redelivery.max_attempts", 0)
	viper.SetDefault("broker.kafka.redelivery.initial_interval", "1s")
	viper.SetDefault("broker.kafka.redelivery.max_interval", "30s")
	viper.SetDefault("broker.kafka.redelivery.multiplier", 2.0)
	viper.SetDefault("broker.lmstfy.ttr_seconds", 120)
	viper.SetDefault("broker.lmstfy.poll_timeout_seconds", 5)
	viper.SetDefault("broker.lmstfy.ttl_seconds", 0)
	viper.SetDefault("broker.lmstfy.tries", 10)

	viper.SetDefault("database.result_store", constants.ResultStorePostgres)
	viper.SetDefault("database.postgres.sslmode", "disable")

	viper.SetDefault("verification.timeout", constants.DefaultVerificationTimeout)
	viper.SetDefault("verification.retry.max_attempts", constants.DefaultVerificationRetries)
	viper.SetDefault("verification.retry.initial_interval", "1s")
	viper.SetDefault("verification.retry.max_interval", "10s")
	viper.SetDefault("verification.retry.multiplier", 2.0)
	viper.SetDefault("verification.affiliation.path", constants.DefaultAffiliationPath)
	viper.SetDefault("verification.affiliation.method", "POST")
	viper.SetDefault("verification.affiliation.approve_when", constants.DefaultAffiliationRule)
	viper.SetDefault("verification.document.path", constants.DefaultDocumentPath)
	viper.SetDefault("verification.document.method", "PUT")
	viper.SetDefault("verification.document.approve_when", constants.DefaultDocumentRule)
	viper.SetDefault("verification.eligibility.path", constants.DefaultEligibilityPath)
	viper.SetDefault("verification.eligibility.method", "GET")
	viper.SetDefault("verification.eligibility.approve_when", constants.DefaultEligibilityRule)
	viper.SetDefault("verification.operator_name", constants.DefaultOperatorName)
	viper.SetDefault("verification.default_address", constants.DefaultCitizenAddress)

	viper.SetDefault("workers.affiliation.enabled", true)
	viper.SetDefault("workers.affiliation.queue", constants.DefaultAffiliationQueue)
	viper.SetDefault("workers.affiliation.outcome_topic", constants.DefaultAffiliationOutcomeTopic)
	viper.SetDefault("workers.document.enabled", true)
	viper.SetDefault("workers.document.queue", constants.DefaultDocumentQueue)
	viper.SetDefault("workers.document.outcome_topic", constants.DefaultDocumentOutcomeTopic)
	viper.SetDefault("workers.drain_timeout", constants.DefaultDrainTimeout)
	viper.SetDefault("workers.publish_timeout", constants.DefaultPublishTimeout)
	viper.SetDefault("supervisor.shutdown_grace", constants.DefaultShutdownGrace)

	viper.SetDefault("auth.jwt_algorithm", constants.DefaultJWTAlgorithm)
	viper.SetDefault("auth.token_ttl", constants.DefaultTokenTTL)
	viper.SetDefault("auth.lookup_timeout", constants.DefaultLookupTimeout)
}

func bindEnvVariables() {
	viper.BindEnv("broker.type", "BROKER_TYPE")
	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	viper.BindEnv("broker.lmstfy.host", "BROKER_LMSTFY_HOST")
	viper.BindEnv("broker.lmstfy.port", "BROKER_LMSTFY_PORT")
	viper.BindEnv("broker.lmstfy.namespace", "BROKER_LMSTFY_NAMESPACE")
	viper.BindEnv("broker.lmstfy.token", "BROKER_LMSTFY_TOKEN")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	viper.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")
	viper.BindEnv("database.result_store", "DATABASE_RESULT_STORE")

	viper.BindEnv("verification.base_url", "VERIFICATION_BASE_URL")
	viper.BindEnv("verification.api_key", "VERIFICATION_API_KEY")
	viper.BindEnv("verification.timeout", "VERIFICATION_TIMEOUT")

	viper.BindEnv("auth.jwt_secret", "AUTH_JWT_SECRET")

	viper.BindEnv("server.port", "SERVER_PORT")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyEnvOverrides(cfg *Config) error {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}

	if otlpEndpoint := viper.GetString("TRACING_OTLP_ENDPOINT"); otlpEndpoint != "" {
		cfg.Tracing.OTLP.Endpoint = otlpEndpoint
	}

	if cfg.Verification.BaseURL != "" {
		cfg.Verification.BaseURL = strings.TrimRight(cfg.Verification.BaseURL, "/") + "/"
	}

	return nil
}
