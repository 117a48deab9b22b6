package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/leadflow/pkg/channels/gochannel"
	"github.com/dukex/leadflow/pkg/channels/kafka"
	"github.com/dukex/leadflow/pkg/eventbus"
)

// Event bus providers accepted by --event-bus.
const (
	EventBusKafka     = "kafka"
	EventBusGoChannel = "gochannel"
)

// NewEventBus builds the execution event bus for provider. brokers is the comma separated
// Kafka broker list and is ignored by the in-process provider.
func NewEventBus(provider, brokers, serviceName string, logger *slog.Logger) (*eventbus.WatermillEventBus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case EventBusKafka:
		pub, sub, err := kafka.CreateChannel(wmLogger, kafka.ParseBrokers(brokers), serviceName)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	case EventBusGoChannel, "":
		pub, sub := gochannel.CreateChannel(wmLogger)

		return eventbus.NewWatermillEventBus(pub, sub, logger), nil
	default:
		return nil, fmt.Errorf("unsupported event bus provider %q", provider)
	}
}
