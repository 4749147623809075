package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/customeros/mercure/dto"
	"github.com/customeros/mercure/interfaces"
	"github.com/customeros/mercure/internal/logger"
	"github.com/customeros/mercure/internal/tracing"
	"github.com/customeros/mercure/internal/utils"
)

const ackAttempts = 5

// RabbitMQSubscriber dispatches consumed events to the listener registered
// for their type. Failed events are rejected without requeue and end up in
// the queue's DLQ.
type RabbitMQSubscriber struct {
	conn   *connection
	log    logger.Logger
	config Config

	mu        sync.RWMutex
	listeners map[string]interfaces.EventListener
}

func NewRabbitMQSubscriber(rabbitmqURL string, log logger.Logger, config *Config) (*RabbitMQSubscriber, error) {
	if config == nil {
		config = DefaultConfig()
	}
	conn, err := dial(rabbitmqURL, log, *config)
	if err != nil {
		return nil, err
	}
	return newSubscriber(conn, log, *config), nil
}

func newSubscriber(conn *connection, log logger.Logger, config Config) *RabbitMQSubscriber {
	return &RabbitMQSubscriber{
		conn:      conn,
		log:       log,
		config:    config,
		listeners: make(map[string]interfaces.EventListener),
	}
}

func (r *RabbitMQSubscriber) RegisterListener(listener interfaces.EventListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[listener.GetEventType()] = listener
	r.log.Infof("Registered listener for event type: %s on queue: %s", listener.GetEventType(), listener.GetQueueName())
}

// ListenQueue consumes queueName in the background until Close. The
// consumer is re-registered whenever its channel goes away.
func (r *RabbitMQSubscriber) ListenQueue(queueName string) error {
	go func() {
		backoff := r.config.ReconnectBackoff
		for !r.conn.isClosed() {
			if err := r.consume(queueName); err != nil {
				if errors.Is(err, errConnectionClosed) {
					return
				}
				r.log.Errorf("Consumer on queue %s stopped: %v. Retrying in %v", queueName, err, backoff)
				time.Sleep(backoff)
				backoff = nextBackoff(backoff, r.config.MaxReconnectBackoff)
				continue
			}
			backoff = r.config.ReconnectBackoff
		}
	}()
	return nil
}

func (r *RabbitMQSubscriber) consume(queueName string) error {
	channel, err := r.conn.channel()
	if err != nil {
		return err
	}
	defer channel.Close()

	// campaign sends are long, one at a time per consumer
	if err = channel.Qos(1, 0, false); err != nil {
		return errors.Wrap(err, "Failed to set prefetch")
	}
	deliveries, err := channel.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return errors.Wrapf(err, "Failed to register consumer on queue %s", queueName)
	}

	r.log.Infof("Listening for messages on queue %s", queueName)
	for d := range deliveries {
		r.handleDelivery(d, queueName)
	}
	r.log.Warnf("Deliveries for queue %s closed", queueName)
	return nil
}

func (r *RabbitMQSubscriber) handleDelivery(d amqp091.Delivery, queueName string) {
	defer tracing.RecoverAndLogToJaeger(r.log)

	err := r.dispatch(context.Background(), d.Body, queueName)
	if err != nil {
		r.log.Errorf("Failed to process message on queue %s: %v", queueName, err)
	}
	settle(d, err == nil, r.log)
}

// dispatch decodes body and hands it to its listener. Events without a
// listener on this queue are acknowledged and dropped.
func (r *RabbitMQSubscriber) dispatch(ctx context.Context, body []byte, queueName string) error {
	var event dto.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return errors.Wrap(err, "failed to unmarshal message")
	}

	ctx = utils.WithCustomContext(ctx, &utils.CustomContext{
		AppSource:  event.Metadata.AppSource,
		CampaignId: event.CampaignId,
	})
	ctx, span := tracing.StartRabbitMQMessageTracerSpanWithHeader(ctx, "RabbitMQSubscriber.dispatch", event.Metadata.UberTraceId)
	defer span.Finish()
	tracing.SetDefaultListenerSpanTags(ctx, span)
	span.LogKV("event_type", event.Type, "queue_name", queueName)

	r.mu.RLock()
	listener, ok := r.listeners[event.Type]
	r.mu.RUnlock()

	switch {
	case !ok:
		r.log.Infof("No listener found for event type: %s on queue: %s", event.Type, queueName)
		return nil
	case listener.GetQueueName() != queueName:
		r.log.Warnf("Event type %s received on wrong queue. Expected %s, got %s", event.Type, listener.GetQueueName(), queueName)
		return nil
	}

	if err := listener.Handle(ctx, event); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrapf(err, "trace %s", tracing.GetTraceId(span))
	}
	return nil
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func settle(d acknowledger, ack bool, log logger.Logger) {
	var err error
	for attempt := 0; attempt < ackAttempts; attempt++ {
		if ack {
			err = d.Ack(false)
		} else {
			err = d.Nack(false, false)
		}
		if err == nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	log.Errorf("Failed to settle message (ack=%t) after %d attempts: %v", ack, ackAttempts, err)
}

func (r *RabbitMQSubscriber) Close() error {
	return r.conn.Close()
}
