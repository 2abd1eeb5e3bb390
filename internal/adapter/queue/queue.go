package queue

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/pkg/config"
)

// MessageQueue fans domain events (boots, transaction lifecycle) out to
// other systems. Backends are interchangeable.
type MessageQueue interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, handler func(data []byte) error) error
	Close() error
}

// New builds the configured backend; backend "none" returns (nil, nil)
// and callers skip publishing.
func New(cfg config.QueueConfig, log *zap.Logger) (MessageQueue, error) {
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "nats":
		return NewNATSQueue(cfg.NATS, log)
	case "rabbitmq":
		return NewRabbitMQQueue(cfg.RabbitMQ.URL, log)
	default:
		return nil, fmt.Errorf("queue: unknown backend %q", cfg.Backend)
	}
}
