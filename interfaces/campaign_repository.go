package interfaces

import (
	"context"
	"time"

	"github.com/customeros/mercure/internal/models"
)

type CampaignRepository interface {
	Create(ctx context.Context, campaign *models.Campaign) error
	// GetByID loads the campaign with its template, landing page, attachments
	// and target groups with their targets.
	GetByID(ctx context.Context, id string) (*models.Campaign, error)
	// ListDue returns campaigns whose send time has passed and that still
	// have at least one target group without a sent-at stamp.
	ListDue(ctx context.Context, now time.Time) ([]*models.Campaign, error)
	AddTargetGroup(ctx context.Context, campaignID, targetGroupID string) (*models.CampaignTargetGroup, error)
	// MarkTargetGroupSent stamps sent-at only if it has never been set.
	MarkTargetGroupSent(ctx context.Context, linkID string, sentAt time.Time) error
}

type TargetGroupRepository interface {
	Create(ctx context.Context, group *models.TargetGroup) error
	GetByID(ctx context.Context, id string) (*models.TargetGroup, error)
}

type EmailTemplateRepository interface {
	Create(ctx context.Context, template *models.EmailTemplate) error
	GetByID(ctx context.Context, id string) (*models.EmailTemplate, error)
}

type LandingPageRepository interface {
	Create(ctx context.Context, page *models.LandingPage) error
	Update(ctx context.Context, page *models.LandingPage) error
	GetByID(ctx context.Context, id string) (*models.LandingPage, error)
}

type AttachmentRepository interface {
	Create(ctx context.Context, attachment *models.Attachment) error
	GetByID(ctx context.Context, id string) (*models.Attachment, error)
}
