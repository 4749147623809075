package delivery

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/jaytaylor/html2text"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mercure/config"
	"github.com/customeros/mercure/dto"
	"github.com/customeros/mercure/interfaces"
	"github.com/customeros/mercure/internal/enum"
	"github.com/customeros/mercure/internal/logger"
	"github.com/customeros/mercure/internal/metrics"
	"github.com/customeros/mercure/internal/models"
	"github.com/customeros/mercure/internal/repository"
	"github.com/customeros/mercure/internal/routes"
	"github.com/customeros/mercure/internal/tracing"
	"github.com/customeros/mercure/internal/utils"
	"github.com/customeros/mercure/services/hooks"
	"github.com/customeros/mercure/services/smtp"
	"github.com/customeros/mercure/services/templatevars"
)

var ErrNoScheduler = errors.New("no campaign scheduler configured")

type Service struct {
	cfg          *config.AppConfig
	log          logger.Logger
	repositories *repository.Repositories
	trackers     interfaces.TrackerService
	templateVars interfaces.TemplateVarsService
	attachments  interfaces.AttachmentService
	transport    interfaces.MailTransport
	connection   *dto.SMTPConnection
	scheduler    interfaces.CampaignScheduler
	hooks        *hooks.Bus
	now          func() time.Time
}

type Options struct {
	Trackers     interfaces.TrackerService
	TemplateVars interfaces.TemplateVarsService
	Attachments  interfaces.AttachmentService
	Transport    interfaces.MailTransport
	// Connection is the process default, used when a campaign has no
	// SMTP override.
	Connection *dto.SMTPConnection
	Scheduler  interfaces.CampaignScheduler
	Hooks      *hooks.Bus
}

func NewService(cfg *config.AppConfig, log logger.Logger, repos *repository.Repositories, opts Options) *Service {
	return &Service{
		cfg:          cfg,
		log:          log,
		repositories: repos,
		trackers:     opts.Trackers,
		templateVars: opts.TemplateVars,
		attachments:  opts.Attachments,
		transport:    opts.Transport,
		connection:   opts.Connection,
		scheduler:    opts.Scheduler,
		hooks:        opts.Hooks,
		now:          utils.Now,
	}
}

// SetScheduler is used at startup, the scheduler's consumer needs the
// delivery service itself.
func (s *Service) SetScheduler(scheduler interfaces.CampaignScheduler) {
	s.scheduler = scheduler
}

// SendCampaign walks every target group of a due campaign. It is false when
// the campaign is not due, has no groups, or any group reported a failure.
// Errors are reserved for lookups and storage failures.
func (s *Service) SendCampaign(ctx context.Context, campaignID string) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DeliveryService.SendCampaign")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, campaignID)

	campaign, err := s.repositories.CampaignRepository.GetByID(ctx, campaignID)
	if err != nil {
		tracing.TraceErr(span, err)
		return false, err
	}
	if !campaign.IsDue(s.now()) {
		s.log.Infof("campaign %s is scheduled for %s, not sending", campaign.ID, campaign.SendAt.Format(time.RFC3339))
		return false, nil
	}
	if len(campaign.TargetGroups) == 0 {
		return false, nil
	}

	ok := true
	for i := range campaign.TargetGroups {
		sent, err := s.SendLink(ctx, campaign, &campaign.TargetGroups[i])
		if err != nil {
			tracing.TraceErr(span, err)
			return false, err
		}
		ok = ok && sent
	}
	span.LogKV("result", ok)
	return ok, nil
}

// SendLink mails every target of one group that has not been mailed for the
// campaign yet, then stamps the link as sent.
func (s *Service) SendLink(ctx context.Context, campaign *models.Campaign, link *models.CampaignTargetGroup) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DeliveryService.SendLink")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, link.ID)

	group := link.TargetGroup
	if group == nil {
		var err error
		group, err = s.repositories.TargetGroupRepository.GetByID(ctx, link.TargetGroupID)
		if err != nil {
			tracing.TraceErr(span, err)
			return false, err
		}
	}
	if len(group.Targets) == 0 {
		return false, nil
	}

	emailed, err := s.repositories.TrackerRepository.ListTargetEmailsWithKey(ctx, campaign.ID, enum.TrackerEmailSend)
	if err != nil {
		tracing.TraceErr(span, err)
		return false, errors.Wrap(err, "failed to list mailed targets")
	}
	seen := make(map[string]struct{}, len(emailed)+len(group.Targets))
	for _, email := range emailed {
		seen[email] = struct{}{}
	}

	conn := smtp.ConnectionFor(campaign, s.connection)
	ok := true
	for i := range group.Targets {
		target := &group.Targets[i]
		email := utils.NormalizeEmail(target.Email)
		if _, done := seen[email]; done {
			continue
		}
		seen[email] = struct{}{}

		sendTracker, claimed, err := s.trackers.Claim(ctx, campaign, target)
		if err != nil {
			tracing.TraceErr(span, err)
			return false, err
		}
		if !claimed {
			// another sender holds this target
			continue
		}

		if err := s.sendTarget(ctx, campaign, target, sendTracker, conn); err != nil {
			ok = false
			s.log.Warnf("campaign %s: failed to send to %s: %v", campaign.ID, target.Email, err)
			metrics.RecordEmailSent(false)
			if err := s.trackers.SetStatus(ctx, sendTracker.ID, enum.TrackerValueFail, err.Error()); err != nil {
				tracing.TraceErr(span, err)
				return false, err
			}
			continue
		}
		metrics.RecordEmailSent(true)
		if err := s.trackers.SetStatus(ctx, sendTracker.ID, enum.TrackerValueSuccess, ""); err != nil {
			tracing.TraceErr(span, err)
			return false, err
		}
	}

	if err := s.repositories.CampaignRepository.MarkTargetGroupSent(ctx, link.ID, s.now()); err != nil {
		tracing.TraceErr(span, err)
		return false, err
	}
	return ok, nil
}

// sendTarget builds a fresh message for target and hands it to the
// transport. Any error is a failure of this target only.
func (s *Service) sendTarget(ctx context.Context, campaign *models.Campaign, target *models.Target, sendTracker *models.Tracker, conn *dto.SMTPConnection) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DeliveryService.sendTarget")
	defer span.Finish()
	tracing.TagEntity(span, target.ID)

	template := campaign.EmailTemplate
	if template == nil {
		return errors.New("campaign has no email template")
	}

	message := &dto.OutboundMessage{
		MessageID: utils.GenerateMessageID(utils.ExtractDomainFromEmail(template.FromEmail), sendTracker.ID),
		From:      template.FromEmail,
		To:        target.Email,
		Subject:   template.Subject,
		Text:      template.TextContent,
		HTML:      template.HTMLContent,
	}

	for i := range template.Attachments {
		attachment := &template.Attachments[i]
		var tracker *models.Tracker
		if attachment.Buildable {
			var err error
			tracker, err = s.trackers.Ensure(ctx, campaign, target, enum.TrackerAttachmentExecuted, attachment.ID, enum.TrackerValueNotExecuted)
			if err != nil {
				return err
			}
		}
		content, err := s.attachments.Build(ctx, attachment, tracker, target)
		if err != nil {
			return err
		}
		message.Attachments = append(message.Attachments, dto.MessageAttachment{
			Filename:    attachment.Filename(),
			ContentType: attachment.MimeType(),
			Content:     content,
		})
	}

	connCopy := *conn
	err := s.hooks.BeforeSend(ctx, &hooks.BeforeSendContext{
		Campaign:   campaign,
		Target:     target,
		Message:    message,
		Connection: &connCopy,
	})
	if err != nil {
		return errors.Wrap(err, "before send hook")
	}

	if template.HasOpenTracker {
		if isBlankHTML(message.HTML) {
			message.HTML = textToHTML(message.Text)
		}
		openTracker, err := s.trackers.Ensure(ctx, campaign, target, enum.TrackerEmailOpen, "", enum.TrackerValueNotOpened)
		if err != nil {
			return err
		}
		message.HTML = injectPixel(message.HTML, s.cfg.PublicHost()+routes.TrackerImagePath(openTracker.ID))
	}

	if page := template.LandingPage; page != nil {
		if _, err := s.trackers.Ensure(ctx, campaign, target, enum.TrackerLandingPageOpen, "", enum.TrackerValueNotOpened); err != nil {
			return err
		}
		if s.cfg.PostTrackerID != "" && strings.Contains(page.HTML, s.cfg.PostTrackerID) {
			if _, err := s.trackers.Ensure(ctx, campaign, target, enum.TrackerLandingPagePost, "", enum.TrackerValueNo); err != nil {
				return err
			}
		}
	}

	vars, err := s.templateVars.Resolve(ctx, campaign, target, template)
	if err != nil {
		return err
	}
	message.Subject = templatevars.ReplaceVars(message.Subject, vars)
	message.Text = templatevars.ReplaceVars(message.Text, vars)
	message.HTML = templatevars.ReplaceVars(message.HTML, vars)

	if strings.TrimSpace(message.Text) == "" && message.HTML != "" {
		text, err := html2text.FromString(message.HTML, html2text.Options{OmitLinks: false})
		if err != nil {
			s.log.Warnf("could not derive text body for %s: %v", target.Email, err)
		} else {
			message.Text = text
		}
	}

	return s.transport.Send(ctx, message, &connCopy)
}

// SendDueCampaigns sends every due campaign that still has an unsent group.
// A failing campaign is logged and does not stop the sweep.
func (s *Service) SendDueCampaigns(ctx context.Context) (int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DeliveryService.SendDueCampaigns")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	campaigns, err := s.repositories.CampaignRepository.ListDue(ctx, s.now())
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, err
	}

	sent := 0
	for _, campaign := range campaigns {
		if _, err := s.SendCampaign(ctx, campaign.ID); err != nil {
			s.log.Errorf("failed to send due campaign %s: %v", campaign.ID, err)
			continue
		}
		sent++
	}
	span.LogKV("campaigns", sent)
	return sent, nil
}

// ScheduleCampaign asks the scheduler to launch the campaign at its send time.
func (s *Service) ScheduleCampaign(ctx context.Context, campaignID string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "DeliveryService.ScheduleCampaign")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, campaignID)

	if s.scheduler == nil {
		tracing.TraceErr(span, ErrNoScheduler)
		return ErrNoScheduler
	}
	campaign, err := s.repositories.CampaignRepository.GetByID(ctx, campaignID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if err := s.scheduler.ScheduleAt(ctx, campaign.SendAt, campaign.ID); err != nil {
		tracing.TraceErr(span, err)
		return errors.Wrap(err, "failed to schedule campaign")
	}
	return nil
}

var structuralTokens = []string{"html", "head", "title", "body", "&nbsp;", "<", "/", ">"}

func isBlankHTML(body string) bool {
	for _, token := range structuralTokens {
		body = strings.ReplaceAll(body, token, "")
	}
	return strings.TrimSpace(body) == ""
}

func textToHTML(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = html.EscapeString(line)
	}
	return "<html><body>" + strings.Join(lines, "<br>") + "</body></html>"
}

func injectPixel(body, src string) string {
	pixel := fmt.Sprintf(`<img src="%s" width="1" height="1" alt="" />`, src)
	idx := strings.LastIndex(strings.ToLower(body), "</body>")
	if idx < 0 {
		return body + pixel
	}
	return body[:idx] + pixel + body[idx:]
}
