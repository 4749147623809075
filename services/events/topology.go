package events

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"
)

const (
	AppSource = "mercure"

	ExchangeMercureDirect = "mercure-direct"
	ExchangeDeadLetter    = "dead-letter"

	QueueLaunchCampaign      = "launch-campaign"
	QueueLaunchCampaignDelay = "launch-campaign-delay"
	DLQLaunchCampaign        = QueueLaunchCampaign + "-dlq"

	RoutingKeyDeadLetter     = "dead-letter"
	RoutingKeyLaunchCampaign = "mercure-launch-campaign"
)

type queueDecl struct {
	name       string
	exchange   string
	routingKey string
	args       amqp091.Table
}

// topology lists the queues in declaration order. The delay queue has no
// consumer: messages expire per message and dead-letter into the launch
// queue. Launches never consumed within messageTTL move to the DLQ.
func topology(messageTTL time.Duration) []queueDecl {
	return []queueDecl{
		{
			name:       DLQLaunchCampaign,
			exchange:   ExchangeDeadLetter,
			routingKey: RoutingKeyDeadLetter,
		},
		{
			name:       QueueLaunchCampaign,
			exchange:   ExchangeMercureDirect,
			routingKey: RoutingKeyLaunchCampaign,
			args: amqp091.Table{
				"x-dead-letter-exchange":    ExchangeDeadLetter,
				"x-dead-letter-routing-key": RoutingKeyDeadLetter,
				"x-message-ttl":             messageTTL.Milliseconds(),
			},
		},
		{
			name: QueueLaunchCampaignDelay,
			args: amqp091.Table{
				"x-dead-letter-exchange":    ExchangeMercureDirect,
				"x-dead-letter-routing-key": RoutingKeyLaunchCampaign,
			},
		},
	}
}

func declareTopology(channel *amqp091.Channel, messageTTL time.Duration) error {
	for _, exchange := range []string{ExchangeDeadLetter, ExchangeMercureDirect} {
		if err := channel.ExchangeDeclare(exchange, amqp091.ExchangeDirect, true, false, false, false, nil); err != nil {
			return errors.Wrapf(err, "Failed to declare exchange %s", exchange)
		}
	}
	for _, queue := range topology(messageTTL) {
		if _, err := channel.QueueDeclare(queue.name, true, false, false, false, queue.args); err != nil {
			return errors.Wrapf(err, "Failed to declare queue %s", queue.name)
		}
		if queue.exchange == "" {
			continue
		}
		if err := channel.QueueBind(queue.name, queue.routingKey, queue.exchange, false, nil); err != nil {
			return errors.Wrapf(err, "Failed to bind queue %s to exchange %s", queue.name, queue.exchange)
		}
	}
	return nil
}
