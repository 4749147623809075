package listeners

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mercure/dto"
	"github.com/customeros/mercure/interfaces"
	"github.com/customeros/mercure/internal/logger"
	"github.com/customeros/mercure/internal/tracing"
	"github.com/customeros/mercure/services/events"
)

type LaunchCampaignListener struct {
	events.BaseEventListener
	delivery interfaces.DeliveryService
}

func NewLaunchCampaignListener(logger logger.Logger, delivery interfaces.DeliveryService) interfaces.EventListener {
	return &LaunchCampaignListener{
		BaseEventListener: events.NewBaseEventListener(
			logger,
			events.GetEventType[dto.LaunchCampaign](),
			events.QueueLaunchCampaign,
		),
		delivery: delivery,
	}
}

// Handle sends the campaign. A campaign that is not due yet, for instance
// because its send time moved, is acknowledged and left to the sweep.
func (l *LaunchCampaignListener) Handle(ctx context.Context, baseEvent any) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "LaunchCampaignListener.Handle")
	defer span.Finish()
	tracing.SetDefaultListenerSpanTags(ctx, span)
	tracing.LogObjectAsJson(span, "event", baseEvent)

	validatedEvent, err := l.ValidateBaseEvent(ctx, baseEvent)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}

	launch, err := events.DecodeEventData[dto.LaunchCampaign](ctx, validatedEvent)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	tracing.TagEntity(span, launch.CampaignID)
	span.LogKV("correlationId", launch.CorrelationID)

	sent, err := l.delivery.SendCampaign(ctx, launch.CampaignID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if !sent {
		l.Logger().Warnf("campaign %s launch did not complete cleanly", launch.CampaignID)
	}
	return nil
}
