package repository

import (
	"context"
	"errors"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"

	"github.com/customeros/mercure/interfaces"
	mercure_errors "github.com/customeros/mercure/internal/errors"
	"github.com/customeros/mercure/internal/models"
	"github.com/customeros/mercure/internal/tracing"
)

type trackerInfosRepository struct {
	db *gorm.DB
}

func NewTrackerInfosRepository(db *gorm.DB) interfaces.TrackerInfosRepository {
	return &trackerInfosRepository{db: db}
}

func (r *trackerInfosRepository) Create(ctx context.Context, infos *models.TrackerInfos) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "trackerInfosRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, infos.TrackerID)

	err := r.db.WithContext(ctx).Create(infos).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *trackerInfosRepository) SetRaw(ctx context.Context, id, raw string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "trackerInfosRepository.SetRaw")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	result := r.db.WithContext(ctx).Model(&models.TrackerInfos{}).Where("id = ?", id).Update("raw", raw)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return mercure_errors.ErrTrackerInfosNotFound
	}
	return nil
}

// LatestWithoutRaw returns nil without error when every visit row already
// carries a raw payload.
func (r *trackerInfosRepository) LatestWithoutRaw(ctx context.Context, trackerID string) (*models.TrackerInfos, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "trackerInfosRepository.LatestWithoutRaw")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, trackerID)

	var infos models.TrackerInfos
	err := r.db.WithContext(ctx).
		Where("tracker_id = ? AND (raw IS NULL OR raw = '')", trackerID).
		Order("created_at DESC").
		First(&infos).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &infos, nil
}

func (r *trackerInfosRepository) CountByCampaign(ctx context.Context, campaignID string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "trackerInfosRepository.CountByCampaign")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.TrackerInfos{}).
		Joins("JOIN trackers ON trackers.id = tracker_infos.tracker_id").
		Where("trackers.campaign_id = ?", campaignID).
		Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	return count, nil
}
