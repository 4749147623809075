package interfaces

import (
	"context"
	"net/url"

	"github.com/customeros/mercure/dto"
	"github.com/customeros/mercure/internal/enum"
	"github.com/customeros/mercure/internal/models"
)

type PageCloner interface {
	Clone(ctx context.Context, rawURL string) (string, error)
}

type FormInterceptor interface {
	Intercept(html, redirectURL string) (string, error)
}

type URLShortener interface {
	Shorten(ctx context.Context, longURL string) (string, error)
}

type MailTransport interface {
	Send(ctx context.Context, message *dto.OutboundMessage, conn *dto.SMTPConnection) error
}

type TemplateVarsService interface {
	Resolve(ctx context.Context, campaign *models.Campaign, target *models.Target, template *models.EmailTemplate) ([]dto.TemplateVar, error)
	Replace(ctx context.Context, content string, campaign *models.Campaign, target *models.Target, template *models.EmailTemplate) (string, error)
	ReplaceBare(ctx context.Context, content string, campaign *models.Campaign, target *models.Target, template *models.EmailTemplate) (string, error)
}

type TrackerService interface {
	Create(ctx context.Context, campaign *models.Campaign, target *models.Target, key enum.TrackerKey, value string) (*models.Tracker, error)
	Ensure(ctx context.Context, campaign *models.Campaign, target *models.Target, key enum.TrackerKey, slot, value string) (*models.Tracker, error)
	Claim(ctx context.Context, campaign *models.Campaign, target *models.Target) (*models.Tracker, bool, error)
	SetStatus(ctx context.Context, trackerID, value, detail string) error
	RecordVisit(ctx context.Context, trackerID string, visit dto.Visit, value string) (*models.Tracker, *models.TrackerInfos, error)
	SetBrowserInfos(ctx context.Context, trackerID, infos string) error
	SetVisitRaw(ctx context.Context, infosID, raw string) error
}

type AttachmentService interface {
	Create(ctx context.Context, attachment *models.Attachment, content []byte) error
	Build(ctx context.Context, attachment *models.Attachment, tracker *models.Tracker, target *models.Target) ([]byte, error)
	Download(ctx context.Context, attachmentID, trackerID string, visit dto.Visit) (*models.Attachment, []byte, error)
}

type DeliveryService interface {
	SendCampaign(ctx context.Context, campaignID string) (bool, error)
	SendDueCampaigns(ctx context.Context) (int, error)
	ScheduleCampaign(ctx context.Context, campaignID string) error
}

type LandingPageService interface {
	Clone(ctx context.Context, rawURL string) (string, error)
	Create(ctx context.Context, page *models.LandingPage) error
	Update(ctx context.Context, page *models.LandingPage) error
	View(ctx context.Context, trackerID string, visit dto.Visit) (*dto.LandingPageResult, error)
	Post(ctx context.Context, trackerID string, form url.Values, visit dto.Visit) (string, error)
}

type ReportService interface {
	Build(ctx context.Context, campaignID string) (*dto.CampaignReport, error)
}

// ObjectStorage holds attachment contents by key. Download of an unknown
// key fails with ErrObjectNotFound.
type ObjectStorage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
