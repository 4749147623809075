package repository

import (
	"context"
	"errors"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mercure/interfaces"
	"github.com/customeros/mercure/internal/enum"
	mercure_errors "github.com/customeros/mercure/internal/errors"
	"github.com/customeros/mercure/internal/models"
	"github.com/customeros/mercure/internal/tracing"
	"github.com/customeros/mercure/internal/utils"
)

type trackerRepository struct {
	db *gorm.DB
}

func NewTrackerRepository(db *gorm.DB) interfaces.TrackerRepository {
	return &trackerRepository{db: db}
}

func (r *trackerRepository) Create(ctx context.Context, tracker *models.Tracker) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "trackerRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.LogKV("key", tracker.Key.String())

	err := r.db.WithContext(ctx).Omit("Target", "Infos").Create(tracker).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// CreateIfAbsent relies on the uq_tracker_slot unique index, so two writers
// racing for the same slot never both insert.
func (r *trackerRepository) CreateIfAbsent(ctx context.Context, tracker *models.Tracker) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "trackerRepository.CreateIfAbsent")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.LogKV("key", tracker.Key.String(), "targetEmail", tracker.TargetEmail)

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Omit("Target", "Infos").
		Create(tracker)
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return false, result.Error
	}

	created := result.RowsAffected == 1
	span.LogKV("result.created", created)
	return created, nil
}

func (r *trackerRepository) GetByID(ctx context.Context, id string) (*models.Tracker, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "trackerRepository.GetByID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	var tracker models.Tracker
	err := r.db.WithContext(ctx).Preload("Target").Where("id = ?", id).First(&tracker).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mercure_errors.ErrTrackerNotFound
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &tracker, nil
}

// FindBySlot returns nil without error when no tracker exists.
func (r *trackerRepository) FindBySlot(ctx context.Context, campaignID, targetEmail string, key enum.TrackerKey, slot string) (*models.Tracker, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "trackerRepository.FindBySlot")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var tracker models.Tracker
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND target_email = ? AND key = ? AND slot = ?", campaignID, targetEmail, key, slot).
		First(&tracker).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &tracker, nil
}

func (r *trackerRepository) ListTargetEmailsWithKey(ctx context.Context, campaignID string, key enum.TrackerKey) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "trackerRepository.ListTargetEmailsWithKey")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var emails []string
	err := r.db.WithContext(ctx).
		Model(&models.Tracker{}).
		Where("campaign_id = ? AND key = ?", campaignID, key).
		Distinct().
		Pluck("target_email", &emails).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return emails, nil
}

// ListByCampaign returns trackers most recently updated first.
func (r *trackerRepository) ListByCampaign(ctx context.Context, campaignID string) ([]*models.Tracker, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "trackerRepository.ListByCampaign")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var trackers []*models.Tracker
	err := r.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("updated_at DESC").
		Find(&trackers).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return trackers, nil
}

func (r *trackerRepository) CountByCampaign(ctx context.Context, campaignID string) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "trackerRepository.CountByCampaign")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var count int64
	err := r.db.WithContext(ctx).Model(&models.Tracker{}).Where("campaign_id = ?", campaignID).Count(&count).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}
	return count, nil
}

func (r *trackerRepository) SetStatus(ctx context.Context, id, value, detail string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "trackerRepository.SetStatus")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)
	span.LogKV("value", value)

	result := r.db.WithContext(ctx).
		Model(&models.Tracker{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"value":      value,
			"detail":     detail,
			"updated_at": utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return mercure_errors.ErrTrackerNotFound
	}
	return nil
}

func (r *trackerRepository) IncrementVisits(ctx context.Context, id, value string) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "trackerRepository.IncrementVisits")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	var tracker models.Tracker
	result := r.db.WithContext(ctx).
		Model(&tracker).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "count"}}}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"count":      gorm.Expr("count + 1"),
			"value":      value,
			"updated_at": utils.Now(),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, mercure_errors.ErrTrackerNotFound
	}

	span.LogKV("result.count", tracker.Count)
	return tracker.Count, nil
}
