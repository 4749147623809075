package repository

import (
	"context"
	"errors"
	"time"

	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/customeros/mercure/interfaces"
	mercure_errors "github.com/customeros/mercure/internal/errors"
	"github.com/customeros/mercure/internal/models"
	"github.com/customeros/mercure/internal/tracing"
)

type campaignRepository struct {
	db *gorm.DB
}

func NewCampaignRepository(db *gorm.DB) interfaces.CampaignRepository {
	return &campaignRepository{db: db}
}

func (r *campaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "campaignRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	if campaign == nil {
		return mercure_errors.ErrInvalidInput
	}

	err := r.db.WithContext(ctx).Omit("TargetGroups", "Trackers", "EmailTemplate").Create(campaign).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *campaignRepository) GetByID(ctx context.Context, id string) (*models.Campaign, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "campaignRepository.GetByID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	var campaign models.Campaign
	err := r.db.WithContext(ctx).
		Preload("EmailTemplate.LandingPage").
		Preload("EmailTemplate.LandingPage.Attachments").
		Preload("EmailTemplate.Attachments").
		Preload("TargetGroups", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC")
		}).
		Preload("TargetGroups.TargetGroup.Targets", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		Where("id = ?", id).
		First(&campaign).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mercure_errors.ErrCampaignNotFound
		}
		tracing.TraceErr(span, err)
		return nil, err
	}

	return &campaign, nil
}

func (r *campaignRepository) ListDue(ctx context.Context, now time.Time) ([]*models.Campaign, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "campaignRepository.ListDue")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	var campaigns []*models.Campaign
	err := r.db.WithContext(ctx).
		Where("send_at <= ?", now).
		Where("EXISTS (SELECT 1 FROM campaign_target_groups ctg WHERE ctg.campaign_id = campaigns.id AND ctg.sent_at IS NULL)").
		Order("send_at ASC").
		Find(&campaigns).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	span.LogKV("result.count", len(campaigns))
	return campaigns, nil
}

func (r *campaignRepository) AddTargetGroup(ctx context.Context, campaignID, targetGroupID string) (*models.CampaignTargetGroup, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "campaignRepository.AddTargetGroup")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	span.LogKV("campaignId", campaignID, "targetGroupId", targetGroupID)

	link := &models.CampaignTargetGroup{
		CampaignID:    campaignID,
		TargetGroupID: targetGroupID,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Omit("TargetGroup").
		Create(link).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	var stored models.CampaignTargetGroup
	err = r.db.WithContext(ctx).
		Where("campaign_id = ? AND target_group_id = ?", campaignID, targetGroupID).
		First(&stored).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &stored, nil
}

func (r *campaignRepository) MarkTargetGroupSent(ctx context.Context, linkID string, sentAt time.Time) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "campaignRepository.MarkTargetGroupSent")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, linkID)

	err := r.db.WithContext(ctx).
		Model(&models.CampaignTargetGroup{}).
		Where("id = ? AND sent_at IS NULL", linkID).
		Update("sent_at", sentAt).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
