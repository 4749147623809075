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

type targetGroupRepository struct {
	db *gorm.DB
}

func NewTargetGroupRepository(db *gorm.DB) interfaces.TargetGroupRepository {
	return &targetGroupRepository{db: db}
}

// Create stores the group together with its targets.
func (r *targetGroupRepository) Create(ctx context.Context, group *models.TargetGroup) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "targetGroupRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	err := r.db.WithContext(ctx).Create(group).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *targetGroupRepository) GetByID(ctx context.Context, id string) (*models.TargetGroup, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "targetGroupRepository.GetByID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	var group models.TargetGroup
	err := r.db.WithContext(ctx).Preload("Targets").Where("id = ?", id).First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mercure_errors.ErrTargetGroupNotFound
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &group, nil
}

type emailTemplateRepository struct {
	db *gorm.DB
}

func NewEmailTemplateRepository(db *gorm.DB) interfaces.EmailTemplateRepository {
	return &emailTemplateRepository{db: db}
}

func (r *emailTemplateRepository) Create(ctx context.Context, template *models.EmailTemplate) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailTemplateRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	err := r.db.WithContext(ctx).Omit("LandingPage").Create(template).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *emailTemplateRepository) GetByID(ctx context.Context, id string) (*models.EmailTemplate, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "emailTemplateRepository.GetByID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	var template models.EmailTemplate
	err := r.db.WithContext(ctx).
		Preload("LandingPage").
		Preload("Attachments").
		Where("id = ?", id).
		First(&template).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mercure_errors.ErrEmailTemplateNotFound
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &template, nil
}

type landingPageRepository struct {
	db *gorm.DB
}

func NewLandingPageRepository(db *gorm.DB) interfaces.LandingPageRepository {
	return &landingPageRepository{db: db}
}

func (r *landingPageRepository) Create(ctx context.Context, page *models.LandingPage) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "landingPageRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	err := r.db.WithContext(ctx).Create(page).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *landingPageRepository) Update(ctx context.Context, page *models.LandingPage) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "landingPageRepository.Update")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, page.ID)

	result := r.db.WithContext(ctx).
		Model(&models.LandingPage{}).
		Where("id = ?", page.ID).
		Updates(map[string]interface{}{
			"name":       page.Name,
			"domain":     page.Domain,
			"html":       page.HTML,
			"updated_at": gorm.Expr("now()"),
		})
	if result.Error != nil {
		tracing.TraceErr(span, result.Error)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return mercure_errors.ErrLandingPageNotFound
	}
	if page.Attachments != nil {
		err := r.db.WithContext(ctx).Model(page).Association("Attachments").Replace(page.Attachments)
		if err != nil {
			tracing.TraceErr(span, err)
			return err
		}
	}
	return nil
}

func (r *landingPageRepository) GetByID(ctx context.Context, id string) (*models.LandingPage, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "landingPageRepository.GetByID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	var page models.LandingPage
	err := r.db.WithContext(ctx).Preload("Attachments").Where("id = ?", id).First(&page).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mercure_errors.ErrLandingPageNotFound
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &page, nil
}

type attachmentRepository struct {
	db *gorm.DB
}

func NewAttachmentRepository(db *gorm.DB) interfaces.AttachmentRepository {
	return &attachmentRepository{db: db}
}

func (r *attachmentRepository) Create(ctx context.Context, attachment *models.Attachment) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "attachmentRepository.Create")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)

	err := r.db.WithContext(ctx).Create(attachment).Error
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (r *attachmentRepository) GetByID(ctx context.Context, id string) (*models.Attachment, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "attachmentRepository.GetByID")
	defer span.Finish()
	tracing.SetDefaultPostgresRepositorySpanTags(ctx, span)
	tracing.TagEntity(span, id)

	var attachment models.Attachment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&attachment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mercure_errors.ErrAttachmentNotFound
		}
		tracing.TraceErr(span, err)
		return nil, err
	}
	return &attachment, nil
}
