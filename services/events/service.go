package events

import (
	"github.com/pkg/errors"

	"github.com/customeros/mercure/internal/logger"
)

// EventsService pairs a publisher and a subscriber on separate
// connections, so a slow consumer does not block publishing.
type EventsService struct {
	Publisher  *RabbitMQPublisher
	Subscriber *RabbitMQSubscriber
}

func NewEventsService(rabbitmqURL string, log logger.Logger, config *Config) (*EventsService, error) {
	publisher, err := NewRabbitMQPublisher(rabbitmqURL, log, config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to start publisher")
	}
	subscriber, err := NewRabbitMQSubscriber(rabbitmqURL, log, config)
	if err != nil {
		_ = publisher.Close()
		return nil, errors.Wrap(err, "failed to start subscriber")
	}
	return &EventsService{Publisher: publisher, Subscriber: subscriber}, nil
}

// Close stops consuming before the publisher goes away.
func (s *EventsService) Close() error {
	var subscriberErr, publisherErr error
	if s.Subscriber != nil {
		subscriberErr = s.Subscriber.Close()
	}
	if s.Publisher != nil {
		publisherErr = s.Publisher.Close()
	}
	if subscriberErr != nil {
		return errors.Wrap(subscriberErr, "failed to close subscriber")
	}
	return errors.Wrap(publisherErr, "failed to close publisher")
}
