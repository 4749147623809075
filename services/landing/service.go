package landing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mercure/config"
	"github.com/customeros/mercure/dto"
	"github.com/customeros/mercure/interfaces"
	"github.com/customeros/mercure/internal/enum"
	mercure_errors "github.com/customeros/mercure/internal/errors"
	"github.com/customeros/mercure/internal/logger"
	"github.com/customeros/mercure/internal/metrics"
	"github.com/customeros/mercure/internal/models"
	"github.com/customeros/mercure/internal/repository"
	"github.com/customeros/mercure/internal/routes"
	"github.com/customeros/mercure/internal/tracing"
	"github.com/customeros/mercure/services/hooks"
	"github.com/customeros/mercure/services/interceptor"
)

type Service struct {
	cfg          *config.AppConfig
	log          logger.Logger
	repositories *repository.Repositories
	trackers     interfaces.TrackerService
	templateVars interfaces.TemplateVarsService
	cloner       interfaces.PageCloner
	interceptor  interfaces.FormInterceptor
	hooks        *hooks.Bus
}

func NewService(cfg *config.AppConfig, log logger.Logger, repos *repository.Repositories, trackers interfaces.TrackerService,
	templateVars interfaces.TemplateVarsService, cloner interfaces.PageCloner, formInterceptor interfaces.FormInterceptor, bus *hooks.Bus) *Service {
	return &Service{
		cfg:          cfg,
		log:          log,
		repositories: repos,
		trackers:     trackers,
		templateVars: templateVars,
		cloner:       cloner,
		interceptor:  formInterceptor,
		hooks:        bus,
	}
}

// Clone fetches a live page and prepares its forms for capture, redirecting
// to the cloned url after submission.
func (s *Service) Clone(ctx context.Context, rawURL string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "LandingPageService.Clone")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("url", rawURL)

	page, err := s.cloner.Clone(ctx, rawURL)
	if err != nil {
		metrics.RecordPageCloned(false)
		tracing.TraceErr(span, err)
		return "", err
	}
	page, err = s.interceptor.Intercept(page, rawURL)
	if err != nil {
		metrics.RecordPageCloned(false)
		tracing.TraceErr(span, err)
		return "", errors.Wrap(err, "failed to intercept cloned page")
	}
	metrics.RecordPageCloned(true)
	return page, nil
}

func (s *Service) Create(ctx context.Context, page *models.LandingPage) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "LandingPageService.Create")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if err := s.intercept(page); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if err := s.repositories.LandingPageRepository.Create(ctx, page); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (s *Service) Update(ctx context.Context, page *models.LandingPage) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "LandingPageService.Update")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, page.ID)

	if err := s.intercept(page); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if err := s.repositories.LandingPageRepository.Update(ctx, page); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// stored html is always intercepted; forms without a known origin fall
// back to the neutral redirect
func (s *Service) intercept(page *models.LandingPage) error {
	if page.Name == "" {
		return mercure_errors.ErrInvalidInput
	}
	intercepted, err := s.interceptor.Intercept(page.HTML, s.cfg.NeutralRedirectURL)
	if err != nil {
		return errors.Wrap(err, "failed to intercept landing page")
	}
	page.HTML = intercepted
	return nil
}

// View records the visit and renders the landing page for the tracker's
// target. Rendering failures are stored on the visit row and turn into a
// redirect to the neutral url.
func (s *Service) View(ctx context.Context, trackerID string, visit dto.Visit) (*dto.LandingPageResult, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "LandingPageService.View")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, trackerID)

	tracker, infos, err := s.trackers.RecordVisit(ctx, trackerID, visit, enum.TrackerValueOpened)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	page, err := s.render(ctx, tracker, infos, visit)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Warnf("landing page of tracker %s failed to render: %v", tracker.ID, err)
		raw := fmt.Sprintf("%T: %s", errors.Cause(err), err.Error())
		if rawErr := s.trackers.SetVisitRaw(ctx, infos.ID, raw); rawErr != nil {
			s.log.Errorf("failed to store render error of tracker %s: %v", tracker.ID, rawErr)
		}
		return &dto.LandingPageResult{RedirectURL: s.cfg.NeutralRedirectURL}, nil
	}
	return &dto.LandingPageResult{HTML: page}, nil
}

func (s *Service) render(ctx context.Context, tracker *models.Tracker, infos *models.TrackerInfos, visit dto.Visit) (page string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("panic: %v", r)
		}
	}()

	campaign, err := s.repositories.CampaignRepository.GetByID(ctx, tracker.CampaignID)
	if err != nil {
		return "", err
	}
	template := campaign.EmailTemplate
	if template == nil || template.LandingPage == nil {
		return "", mercure_errors.ErrLandingPageMissing
	}
	landingPage := template.LandingPage
	target := tracker.Target
	if target == nil {
		target = &models.Target{ID: tracker.TargetID, Email: tracker.TargetEmail}
	}

	page, err = s.templateVars.ReplaceBare(ctx, landingPage.HTML, campaign, target, template)
	if err != nil {
		return "", err
	}

	page, err = s.linkAttachments(ctx, page, campaign, target, landingPage.Attachments)
	if err != nil {
		return "", err
	}

	// absolute, cloned pages carry a <base> pointing at the source site
	page = insertBeforeBody(page, navigatorInfos(s.cfg.PublicHost()+routes.TrackerInfosPath(tracker.ID)))

	if s.cfg.PostTrackerID != "" && strings.Contains(page, s.cfg.PostTrackerID) {
		postTracker, err := s.repositories.TrackerRepository.FindBySlot(ctx, campaign.ID, tracker.TargetEmail, enum.TrackerLandingPagePost, "")
		if err != nil {
			return "", err
		}
		value := "unknown"
		if postTracker != nil {
			value = postTracker.ID
		} else if err := s.trackers.SetVisitRaw(ctx, infos.ID, fmt.Sprintf("tracker_post_id of %s in unknown", tracker.ID)); err != nil {
			return "", err
		}
		page = strings.ReplaceAll(page, s.cfg.PostTrackerID, value)
	}

	if s.cfg.PostDomain != "" && strings.Contains(page, s.cfg.PostDomain) {
		page = strings.ReplaceAll(page, s.cfg.PostDomain, s.postHost(visit))
	}

	hookCtx := &hooks.LandingPageContext{
		Tracker:     tracker,
		Campaign:    campaign,
		LandingPage: landingPage,
		Visit:       visit,
		HTML:        page,
	}
	if err = s.hooks.RenderLandingPage(ctx, hookCtx); err != nil {
		return "", err
	}
	return hookCtx.HTML, nil
}

// linkAttachments replaces {{ attachment_N }} (1-based, in page order) with a
// download link bound to a per-target tracker.
func (s *Service) linkAttachments(ctx context.Context, page string, campaign *models.Campaign, target *models.Target, attachments []models.Attachment) (string, error) {
	for i := range attachments {
		attachment := &attachments[i]
		tracker, err := s.trackers.Ensure(ctx, campaign, target, enum.TrackerAttachmentLPExecuted, attachment.ID, enum.TrackerValueNotExecuted)
		if err != nil {
			return "", err
		}
		link := s.cfg.PublicHost() + routes.AttachmentPath(attachment.ID, tracker.ID)
		name := "attachment_" + strconv.Itoa(i+1)
		page = strings.ReplaceAll(page, "{{"+name+"}}", link)
		page = strings.ReplaceAll(page, "{{ "+name+" }}", link)
	}
	return page, nil
}

func (s *Service) postHost(visit dto.Visit) string {
	if visit.Host != "" {
		return visit.Host
	}
	host := s.cfg.Hostname
	if idx := strings.Index(host, "//"); idx >= 0 {
		host = host[idx+2:]
	}
	if idx := strings.Index(host, "/"); idx >= 0 {
		host = host[:idx]
	}
	return host
}

// Post stores the submitted form on a new visit row and returns a page
// that resubmits it to the real action of the cloned form.
func (s *Service) Post(ctx context.Context, trackerID string, form url.Values, visit dto.Visit) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "LandingPageService.Post")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, trackerID)

	raw, err := json.MarshalIndent(flatten(form), "", "    ")
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	visit.Raw = string(raw)

	if _, _, err = s.trackers.RecordVisit(ctx, trackerID, visit, enum.TrackerValueYes); err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}

	replay := replayPage{
		RedirectURL: form.Get(interceptor.RedirectURLField),
		Action:      form.Get(interceptor.RealActionField),
	}
	if replay.RedirectURL == "" {
		replay.RedirectURL = s.cfg.NeutralRedirectURL
	}
	if replay.Action == "" {
		replay.Action = replay.RedirectURL
	}

	names := make([]string, 0, len(form))
	for name := range form {
		if name == interceptor.RealActionField || name == interceptor.RedirectURLField {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, value := range form[name] {
			replay.Fields = append(replay.Fields, replayField{Name: name, Value: value})
		}
	}

	var buf bytes.Buffer
	if err = replayTemplate.Execute(&buf, replay); err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	return buf.String(), nil
}

func flatten(form url.Values) map[string]interface{} {
	out := make(map[string]interface{}, len(form))
	for name, values := range form {
		if len(values) == 1 {
			out[name] = values[0]
		} else {
			out[name] = values
		}
	}
	return out
}
