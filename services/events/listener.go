package events

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mercure/dto"
	"github.com/customeros/mercure/internal/logger"
	"github.com/customeros/mercure/internal/tracing"
)

// BaseEventListener is embedded by listeners. It carries the event type and
// queue a listener is registered for.
type BaseEventListener struct {
	logger    logger.Logger
	eventType string
	queueName string
}

func NewBaseEventListener(logger logger.Logger, eventType, queueName string) BaseEventListener {
	return BaseEventListener{
		logger:    logger,
		eventType: eventType,
		queueName: queueName,
	}
}

func (b BaseEventListener) GetEventType() string {
	return b.eventType
}

func (b BaseEventListener) GetQueueName() string {
	return b.queueName
}

func (b BaseEventListener) Logger() logger.Logger {
	return b.logger
}

func (b BaseEventListener) ValidateBaseEvent(ctx context.Context, input any) (*dto.Event, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Events.ValidateEvent")
	defer span.Finish()
	tracing.SetDefaultListenerSpanTags(ctx, span)

	var event dto.Event
	switch e := input.(type) {
	case dto.Event:
		event = e
	case *dto.Event:
		if e == nil {
			return nil, b.reject(span, "event is nil")
		}
		event = *e
	default:
		return nil, b.reject(span, "unable to cast to event type")
	}

	switch {
	case len(event.Data) == 0 || string(event.Data) == "null":
		return nil, b.reject(span, "message data is nil")
	case event.CampaignId == "":
		return nil, b.reject(span, "campaign id is empty")
	case event.Type != b.eventType:
		return nil, b.reject(span, "unexpected event type "+event.Type)
	}
	return &event, nil
}

func (b BaseEventListener) reject(span opentracing.Span, reason string) error {
	err := errors.New(reason)
	tracing.TraceErr(span, err)
	return err
}

func DecodeEventData[T any](ctx context.Context, event *dto.Event) (T, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "Events.DecodeEventData")
	defer span.Finish()
	tracing.SetDefaultListenerSpanTags(ctx, span)

	var decoded T
	if err := json.Unmarshal(event.Data, &decoded); err != nil {
		tracing.TraceErr(span, err)
		return decoded, errors.Wrapf(err, "failed to decode %s data", event.Type)
	}
	return decoded, nil
}

// GetEventType names events by their Go type, without the package.
func GetEventType[T any]() string {
	var t T
	return typeName(t)
}

func typeName(v any) string {
	t := reflect.TypeOf(v)
	if t == nil {
		return ""
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
