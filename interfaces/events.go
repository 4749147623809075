package interfaces

import (
	"context"
	"time"
)

// EventListener interface defines what all listeners must implement
type EventListener interface {
	Handle(ctx context.Context, baseEvent any) error
	GetEventType() string
	GetQueueName() string
}

// CampaignScheduler runs a campaign launch at (or shortly after) a given time.
type CampaignScheduler interface {
	ScheduleAt(ctx context.Context, at time.Time, campaignID string) error
}
