package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"connectivity/internal/constants"
	"connectivity/pkg/cel"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidateStatic checks cfg without touching the network. Every failing
// section is reported, joined into one error.
func ValidateStatic(cfg *Config) error {
	checks := []func() error{
		func() error { return validateServer(cfg.Server) },
		func() error { return validateBroker(cfg.Broker) },
		func() error { return validateDatabase(cfg.Database) },
		func() error { return validateVerification(cfg.Verification) },
		func() error { return validateWorkers(cfg.Workers) },
		func() error { return validateSupervisor(cfg.Supervisor, cfg.Workers) },
		func() error { return validateAuth(cfg.Auth) },
	}

	var errs []error
	for _, check := range checks {
		if err := check(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout_seconds",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeoutSeconds <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout_seconds",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	switch cfg.Type {
	case constants.BrokerKafka:
		return validateKafka(cfg.Kafka)
	case constants.BrokerLmstfy:
		return validateLmstfy(cfg.Lmstfy)
	case "":
		return &ValidationError{
			Field:   "broker.type",
			Message: "broker type is required",
		}
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka, lmstfy)", cfg.Type),
		}
	}
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	return validateRetry("broker.kafka.redelivery", cfg.Redelivery)
}

func validateLmstfy(cfg LmstfyConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "broker.lmstfy.host",
			Message: "lmstfy host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "broker.lmstfy.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.Namespace == "" {
		return &ValidationError{
			Field:   "broker.lmstfy.namespace",
			Message: "lmstfy namespace is required",
		}
	}

	if cfg.TTRSeconds == 0 {
		return &ValidationError{
			Field:   "broker.lmstfy.ttr_seconds",
			Message: "ttr must be positive so unacknowledged jobs are redelivered",
		}
	}

	return nil
}

func validateRetry(prefix string, cfg RetryConfig) error {
	if cfg.MaxAttempts < 0 {
		return &ValidationError{
			Field:   prefix + ".max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.InitialInterval < 0 {
		return &ValidationError{
			Field:   prefix + ".initial_interval",
			Message: "initial_interval must be non-negative",
		}
	}

	if cfg.MaxInterval < 0 {
		return &ValidationError{
			Field:   prefix + ".max_interval",
			Message: "max_interval must be non-negative",
		}
	}

	if cfg.MaxInterval > 0 && cfg.InitialInterval > 0 && cfg.MaxInterval < cfg.InitialInterval {
		return &ValidationError{
			Field:   prefix + ".max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Multiplier <= 0 {
		return &ValidationError{
			Field:   prefix + ".multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	switch cfg.ResultStore {
	case constants.ResultStorePostgres:
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	case constants.ResultStoreMongoDB:
		if err := validateMongoDB(cfg.MongoDB); err != nil {
			return err
		}
	default:
		return &ValidationError{
			Field:   "database.result_store",
			Message: fmt.Sprintf("unknown result store: %s (supported: postgres, mongodb)", cfg.ResultStore),
		}
	}

	if cfg.Redis.Host != "" || cfg.Redis.Port > 0 {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateMongoDB(cfg MongoDBConfig) error {
	if cfg.URI == "" {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI is required",
		}
	}

	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
		}
	}

	if cfg.Database == "" {
		return &ValidationError{
			Field:   "database.mongodb.database",
			Message: "MongoDB database name is required",
		}
	}

	return nil
}

func validateVerification(cfg VerificationConfig) error {
	u, err := url.Parse(cfg.BaseURL)
	if cfg.BaseURL == "" || err != nil || u.Scheme == "" || u.Host == "" {
		return &ValidationError{
			Field:   "verification.base_url",
			Message: "an absolute base URL is required",
		}
	}

	if cfg.Timeout <= 0 {
		return &ValidationError{
			Field:   "verification.timeout",
			Message: "per-call timeout must be positive",
		}
	}

	if cfg.Retry.MaxAttempts < 1 {
		return &ValidationError{
			Field:   "verification.retry.max_attempts",
			Message: "at least one attempt is required",
		}
	}

	if err := validateRetry("verification.retry", cfg.Retry); err != nil {
		return err
	}

	endpoints := map[string]EndpointConfig{
		"verification.affiliation": cfg.Affiliation,
		"verification.document":    cfg.Document,
		"verification.eligibility": cfg.Eligibility,
	}
	for field, ep := range endpoints {
		if ep.Path == "" {
			return &ValidationError{Field: field + ".path", Message: "path is required"}
		}
		if ep.ApproveWhen == "" {
			return &ValidationError{Field: field + ".approve_when", Message: "approval rule is required"}
		}
		if err := cel.Check(ep.ApproveWhen); err != nil {
			return &ValidationError{Field: field + ".approve_when", Message: err.Error()}
		}
		for _, code := range ep.RejectStatusCodes {
			if code < 100 || code > 599 {
				return &ValidationError{
					Field:   field + ".reject_status_codes",
					Message: fmt.Sprintf("invalid HTTP status code: %d", code),
				}
			}
		}
	}

	return nil
}

func validateWorkers(cfg WorkersConfig) error {
	workers := map[string]WorkerConfig{
		"workers.affiliation": cfg.Affiliation,
		"workers.document":    cfg.Document,
	}
	for field, w := range workers {
		if !w.Enabled {
			continue
		}
		if w.Queue == "" {
			return &ValidationError{Field: field + ".queue", Message: "queue is required"}
		}
		if w.OutcomeTopic == "" {
			return &ValidationError{Field: field + ".outcome_topic", Message: "outcome topic is required"}
		}
	}

	if cfg.DrainTimeout <= 0 {
		return &ValidationError{
			Field:   "workers.drain_timeout",
			Message: "drain timeout must be positive",
		}
	}

	if cfg.PublishTimeout <= 0 {
		return &ValidationError{
			Field:   "workers.publish_timeout",
			Message: "publish timeout must be positive",
		}
	}

	return nil
}

// validateSupervisor requires the shutdown grace to cover a worker's drain
// window, otherwise shutdown reports a timeout while work is still draining.
func validateSupervisor(cfg SupervisorConfig, workers WorkersConfig) error {
	if cfg.ShutdownGrace <= 0 {
		return &ValidationError{
			Field:   "supervisor.shutdown_grace",
			Message: "shutdown grace must be positive",
		}
	}

	if workers.DrainTimeout >= cfg.ShutdownGrace {
		return &ValidationError{
			Field: "workers.drain_timeout",
			Message: fmt.Sprintf("drain timeout (%s) must be shorter than supervisor.shutdown_grace (%s)",
				workers.DrainTimeout, cfg.ShutdownGrace),
		}
	}

	return nil
}

func validateAuth(cfg AuthConfig) error {
	if cfg.JWTAlgorithm != "" && cfg.JWTAlgorithm != constants.DefaultJWTAlgorithm {
		return &ValidationError{
			Field:   "auth.jwt_algorithm",
			Message: fmt.Sprintf("unsupported algorithm: %s (supported: HS256)", cfg.JWTAlgorithm),
		}
	}

	if cfg.LookupTimeout <= 0 {
		return &ValidationError{
			Field:   "auth.lookup_timeout",
			Message: "revocation lookup timeout must be positive",
		}
	}

	return nil
}
