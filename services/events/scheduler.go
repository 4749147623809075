package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mercure/dto"
	"github.com/customeros/mercure/internal/logger"
	"github.com/customeros/mercure/internal/tracing"
	"github.com/customeros/mercure/internal/utils"
)

type LaunchPublisher interface {
	PublishLaunchCampaign(ctx context.Context, message dto.LaunchCampaign, delay time.Duration) error
}

// RabbitMQScheduler delays campaign launches with per-message expiration on
// the delay queue.
type RabbitMQScheduler struct {
	publisher LaunchPublisher
	now       func() time.Time
}

func NewRabbitMQScheduler(publisher LaunchPublisher) *RabbitMQScheduler {
	return &RabbitMQScheduler{publisher: publisher, now: utils.Now}
}

func (s *RabbitMQScheduler) ScheduleAt(ctx context.Context, at time.Time, campaignID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "RabbitMQScheduler.ScheduleAt")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, campaignID)

	message := dto.LaunchCampaign{
		CampaignID:    campaignID,
		SendAt:        at,
		CorrelationID: uuid.NewString(),
	}
	if err := s.publisher.PublishLaunchCampaign(ctx, message, at.Sub(s.now())); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// SweepScheduler is used without a broker. Launches are left to the
// periodic due campaign sweep.
type SweepScheduler struct {
	log logger.Logger
}

func NewSweepScheduler(log logger.Logger) *SweepScheduler {
	return &SweepScheduler{log: log}
}

func (s *SweepScheduler) ScheduleAt(_ context.Context, at time.Time, campaignID string) error {
	s.log.Infof("campaign %s will be picked up by the due campaign sweep after %s", campaignID, at.Format(time.RFC3339))
	return nil
}
