package broker

import (
	"errors"
	"fmt"
	"sort"

	"connectivity/internal/config"
	"connectivity/internal/constants"
	"connectivity/internal/logger"
)

var ErrUnknownBroker = errors.New("unknown broker type")

type backend struct {
	producer func(config.BrokerConfig, logger.Logger) Producer
	consumer func(config.BrokerConfig, logger.Logger) Consumer
}

var backends = map[string]backend{
	constants.BrokerKafka: {
		producer: func(cfg config.BrokerConfig, log logger.Logger) Producer { return NewKafkaProducer(cfg.Kafka, log) },
		consumer: func(cfg config.BrokerConfig, log logger.Logger) Consumer { return NewKafkaConsumer(cfg.Kafka, log) },
	},
	constants.BrokerLmstfy: {
		producer: func(cfg config.BrokerConfig, log logger.Logger) Producer { return NewLmstfyProducer(cfg.Lmstfy, log) },
		consumer: func(cfg config.BrokerConfig, log logger.Logger) Consumer { return NewLmstfyConsumer(cfg.Lmstfy, log) },
	},
}

// Types lists the broker types NewProducer and NewConsumer accept.
func Types() []string {
	types := make([]string, 0, len(backends))
	for t := range backends {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func lookup(cfg config.BrokerConfig) (backend, error) {
	b, ok := backends[cfg.Type]
	if !ok {
		return backend{}, fmt.Errorf("%w %q", ErrUnknownBroker, cfg.Type)
	}
	return b, nil
}

func NewProducer(cfg config.BrokerConfig, log logger.Logger) (Producer, error) {
	b, err := lookup(cfg)
	if err != nil {
		return nil, err
	}
	return b.producer(cfg, log.Named("producer")), nil
}

// NewConsumer returns a consumer that has not connected yet; the
// connection is made by Consume.
func NewConsumer(cfg config.BrokerConfig, log logger.Logger) (Consumer, error) {
	b, err := lookup(cfg)
	if err != nil {
		return nil, err
	}
	return b.consumer(cfg, log.Named("consumer")), nil
}
