package templatevars

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mercure/config"
	"github.com/customeros/mercure/dto"
	"github.com/customeros/mercure/interfaces"
	"github.com/customeros/mercure/internal/enum"
	"github.com/customeros/mercure/internal/logger"
	"github.com/customeros/mercure/internal/models"
	"github.com/customeros/mercure/internal/repository"
	"github.com/customeros/mercure/internal/routes"
	"github.com/customeros/mercure/internal/tracing"
	"github.com/customeros/mercure/internal/utils"
	"github.com/customeros/mercure/services/hooks"
)

const (
	VarEmail          = "email"
	VarFirstName      = "first_name"
	VarLastName       = "last_name"
	VarEmailSubject   = "email_subject"
	VarFromEmail      = "from_email"
	VarDate           = "date"
	VarTime           = "time"
	VarLandingPageURL = "landing_page_url"
)

type Service struct {
	cfg          *config.AppConfig
	log          logger.Logger
	repositories *repository.Repositories
	shortener    interfaces.URLShortener
	hooks        *hooks.Bus
	now          func() time.Time
}

func NewService(cfg *config.AppConfig, log logger.Logger, repos *repository.Repositories, shortener interfaces.URLShortener, bus *hooks.Bus) *Service {
	return &Service{
		cfg:          cfg,
		log:          log,
		repositories: repos,
		shortener:    shortener,
		hooks:        bus,
		now:          utils.Now,
	}
}

// Resolve builds the built-in variables in a fixed order, then lets hook
// listeners add, edit or remove entries.
func (s *Service) Resolve(ctx context.Context, campaign *models.Campaign, target *models.Target, template *models.EmailTemplate) ([]dto.TemplateVar, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "templatevars.Resolve")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	landingPageURL, err := s.landingPageURL(ctx, campaign, target, template)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	now := s.now()
	vars := []dto.TemplateVar{
		{Name: VarEmail, Description: "Target email"},
		{Name: VarFirstName, Description: "Target first name"},
		{Name: VarLastName, Description: "Target last name"},
		{Name: VarEmailSubject, Description: "Current email subject"},
		{Name: VarFromEmail, Description: "Current from email"},
		{Name: VarDate, Description: "Current date in format DD/MM/YYYY", Value: now.Format("02/01/2006")},
		{Name: VarTime, Description: "Current time in format HH:MM", Value: now.Format("15:04")},
		{Name: VarLandingPageURL, Description: "Url of landing page", Value: landingPageURL},
	}
	if target != nil {
		vars[0].Value = target.Email
		vars[1].Value = target.FirstName
		vars[2].Value = target.LastName
	}
	if template != nil {
		vars[3].Value = template.Subject
		vars[4].Value = template.FromEmail
	}

	hookCtx := &hooks.TemplateVarsContext{
		Campaign: campaign,
		Target:   target,
		Template: template,
		Vars:     vars,
	}
	if err = s.hooks.BuildTemplateVars(ctx, hookCtx); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return hookCtx.Vars, nil
}

func (s *Service) landingPageURL(ctx context.Context, campaign *models.Campaign, target *models.Target, template *models.EmailTemplate) (string, error) {
	if campaign == nil || target == nil || template == nil || template.LandingPage == nil {
		return "", nil
	}

	tracker, err := s.repositories.TrackerRepository.FindBySlot(ctx, campaign.ID, utils.NormalizeEmail(target.Email), enum.TrackerLandingPageOpen, "")
	if err != nil {
		return "", err
	}
	if tracker == nil {
		return "", nil
	}

	host := template.LandingPage.Domain
	if host == "" {
		host = s.cfg.Hostname
	}
	link := strings.TrimRight(host, "/") + routes.LandingPageViewPath(tracker.ID)

	if campaign.MinimizeURL && s.shortener != nil {
		short, err := s.shortener.Shorten(ctx, link)
		if err != nil {
			s.log.Warnf("could not shorten landing page url for campaign %s: %v", campaign.ID, err)
			return link, nil
		}
		return short, nil
	}
	return link, nil
}

// Replace substitutes {{name}} and {{ name }}. Unknown names stay verbatim.
func (s *Service) Replace(ctx context.Context, content string, campaign *models.Campaign, target *models.Target, template *models.EmailTemplate) (string, error) {
	vars, err := s.Resolve(ctx, campaign, target, template)
	if err != nil {
		return "", err
	}
	return ReplaceVars(content, vars), nil
}

// ReplaceBare also substitutes plain names, as landing pages are written
// without braces. Substitution is a single pass over content, so values
// (such as a landing page url containing "date") are never rewritten.
func (s *Service) ReplaceBare(ctx context.Context, content string, campaign *models.Campaign, target *models.Target, template *models.EmailTemplate) (string, error) {
	vars, err := s.Resolve(ctx, campaign, target, template)
	if err != nil {
		return "", err
	}
	return newReplacer(vars, true).Replace(content), nil
}

func ReplaceVars(content string, vars []dto.TemplateVar) string {
	return newReplacer(vars, false).Replace(content)
}

// newReplacer tries braced forms before bare names and longer bare names
// before shorter ones, so "email" does not eat into "email_subject". For
// a name listed twice the first entry wins.
func newReplacer(vars []dto.TemplateVar, bare bool) *strings.Replacer {
	var pairs []string
	for _, v := range vars {
		if v.Name == "" {
			continue
		}
		pairs = append(pairs, "{{"+v.Name+"}}", v.Value, "{{ "+v.Name+" }}", v.Value)
	}
	if bare {
		ordered := append([]dto.TemplateVar(nil), vars...)
		sort.SliceStable(ordered, func(i, j int) bool { return len(ordered[i].Name) > len(ordered[j].Name) })
		for _, v := range ordered {
			if v.Name != "" {
				pairs = append(pairs, v.Name, v.Value)
			}
		}
	}
	return strings.NewReplacer(pairs...)
}
