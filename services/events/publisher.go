package events

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/customeros/mercure/dto"
	"github.com/customeros/mercure/internal/logger"
	"github.com/customeros/mercure/internal/tracing"
	"github.com/customeros/mercure/internal/utils"
)

// RabbitMQPublisher publishes with confirms on a single channel.
// Publishing is serialized so every confirmation matches its message.
type RabbitMQPublisher struct {
	conn   *connection
	log    logger.Logger
	config Config

	mu       sync.Mutex
	channel  *amqp091.Channel
	confirms chan amqp091.Confirmation
}

func NewRabbitMQPublisher(rabbitmqURL string, log logger.Logger, config *Config) (*RabbitMQPublisher, error) {
	if config == nil {
		config = DefaultConfig()
	}
	conn, err := dial(rabbitmqURL, log, *config)
	if err != nil {
		return nil, err
	}
	return &RabbitMQPublisher{conn: conn, log: log, config: *config}, nil
}

// PublishLaunchCampaign routes the message straight to the launch queue when
// delay is not positive. Otherwise it parks the message in the delay queue
// until it expires.
func (p *RabbitMQPublisher) PublishLaunchCampaign(ctx context.Context, message dto.LaunchCampaign, delay time.Duration) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RabbitMQPublisher.PublishLaunchCampaign")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, message.CampaignID)
	span.LogKV("delay", delay.String())

	event, err := newEvent(span, message.CampaignID, message)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if delay <= 0 {
		err = p.publish(ctx, event, ExchangeMercureDirect, RoutingKeyLaunchCampaign, "")
	} else {
		// the default exchange routes by queue name
		err = p.publish(ctx, event, "", QueueLaunchCampaignDelay, expiration(delay))
	}
	if err != nil {
		tracing.TraceErr(span, err)
	}
	return err
}

func newEvent(span opentracing.Span, campaignId string, message any) (dto.Event, error) {
	data, err := json.Marshal(message)
	if err != nil {
		return dto.Event{}, errors.Wrap(err, "Failed to marshal event data")
	}
	return dto.Event{
		Id:         utils.GenerateNanoIDWithPrefix("event", 21),
		Type:       typeName(message),
		CampaignId: campaignId,
		Data:       data,
		Metadata: dto.EventMetadata{
			UberTraceId: tracing.UberTraceId(span.Context()),
			AppSource:   AppSource,
			PublishedAt: utils.Now(),
		},
	}, nil
}

// expiration is the per-message TTL in milliseconds, at least 1.
func expiration(delay time.Duration) string {
	ms := delay.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return strconv.FormatInt(ms, 10)
}

func (p *RabbitMQPublisher) publish(ctx context.Context, event dto.Event, exchange, routingKey, expiration string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RabbitMQPublisher.publish")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.LogObjectAsJson(span, "event", event)

	body, err := json.Marshal(event)
	if err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "Failed to marshal message")
	}

	for attempt := 1; attempt <= p.config.MaxRetries; attempt++ {
		err = p.publishWithConfirm(ctx, body, exchange, routingKey, expiration)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		p.log.Warnf("Publish attempt %d of event %s failed: %v", attempt, event.Id, err)
		time.Sleep(100 * time.Millisecond * time.Duration(attempt))
	}

	tracing.TraceErr(span, err)
	return errors.Wrap(err, "Failed to publish message after all retries")
}

func (p *RabbitMQPublisher) publishWithConfirm(ctx context.Context, body []byte, exchange, routingKey, expiration string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	channel, err := p.channelLocked()
	if err != nil {
		return err
	}

	err = channel.PublishWithContext(ctx, exchange, routingKey, true, false, amqp091.Publishing{
		DeliveryMode: amqp091.Persistent,
		ContentType:  "application/json",
		Body:         body,
		Timestamp:    utils.Now(),
		Expiration:   expiration,
	})
	if err != nil {
		return errors.Wrap(err, "Failed to publish message")
	}

	select {
	case confirm, ok := <-p.confirms:
		if !ok {
			return errors.New("Publish channel closed before confirmation")
		}
		if !confirm.Ack {
			return errors.New("Message was not confirmed by server")
		}
		return nil
	case <-time.After(p.config.PublishTimeout):
		// a late confirmation would be read by the next publish
		p.resetChannelLocked()
		return errors.New("Publish confirmation timeout")
	case <-ctx.Done():
		p.resetChannelLocked()
		return ctx.Err()
	}
}

// channelLocked returns the confirm mode channel, reopening it after a
// broker side close or a reconnect.
func (p *RabbitMQPublisher) channelLocked() (*amqp091.Channel, error) {
	if p.channel != nil && !p.channel.IsClosed() {
		return p.channel, nil
	}
	channel, err := p.conn.channel()
	if err != nil {
		return nil, err
	}
	if err = channel.Confirm(false); err != nil {
		_ = channel.Close()
		return nil, errors.Wrap(err, "Failed to enable publisher confirms")
	}
	p.confirms = channel.NotifyPublish(make(chan amqp091.Confirmation, 1))
	p.channel = channel
	return channel, nil
}

func (p *RabbitMQPublisher) resetChannelLocked() {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	p.channel = nil
}

func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	p.resetChannelLocked()
	p.mu.Unlock()
	return p.conn.Close()
}
