package interfaces

import (
	"context"

	"github.com/customeros/mercure/internal/enum"
	"github.com/customeros/mercure/internal/models"
)

type TrackerRepository interface {
	Create(ctx context.Context, tracker *models.Tracker) error
	// CreateIfAbsent inserts the tracker unless one already exists for the
	// same campaign, target email, key and slot. It reports whether the row
	// was inserted.
	CreateIfAbsent(ctx context.Context, tracker *models.Tracker) (bool, error)
	GetByID(ctx context.Context, id string) (*models.Tracker, error)
	FindBySlot(ctx context.Context, campaignID, targetEmail string, key enum.TrackerKey, slot string) (*models.Tracker, error)
	ListTargetEmailsWithKey(ctx context.Context, campaignID string, key enum.TrackerKey) ([]string, error)
	ListByCampaign(ctx context.Context, campaignID string) ([]*models.Tracker, error)
	CountByCampaign(ctx context.Context, campaignID string) (int64, error)
	SetStatus(ctx context.Context, id, value, detail string) error
	// IncrementVisits atomically bumps the visit counter, sets the value and
	// returns the new count.
	IncrementVisits(ctx context.Context, id, value string) (int, error)
}

type TrackerInfosRepository interface {
	Create(ctx context.Context, infos *models.TrackerInfos) error
	SetRaw(ctx context.Context, id, raw string) error
	// LatestWithoutRaw returns the newest visit row with an empty raw field.
	LatestWithoutRaw(ctx context.Context, trackerID string) (*models.TrackerInfos, error)
	CountByCampaign(ctx context.Context, campaignID string) (int64, error)
}
