package report

import (
	"context"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mercure/dto"
	"github.com/customeros/mercure/internal/logger"
	"github.com/customeros/mercure/internal/repository"
	"github.com/customeros/mercure/internal/tracing"
	"github.com/customeros/mercure/internal/utils"
	"github.com/customeros/mercure/services/hooks"
)

// RecentLimit caps the trackers listed in a report.
const RecentLimit = 20

type Service struct {
	log          logger.Logger
	repositories *repository.Repositories
	hooks        *hooks.Bus
}

func NewService(log logger.Logger, repos *repository.Repositories, bus *hooks.Bus) *Service {
	return &Service{
		log:          log,
		repositories: repos,
		hooks:        bus,
	}
}

func (s *Service) Build(ctx context.Context, campaignID string) (*dto.CampaignReport, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "ReportService.Build")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, campaignID)

	campaign, err := s.repositories.CampaignRepository.GetByID(ctx, campaignID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	trackers, err := s.repositories.TrackerRepository.ListByCampaign(ctx, campaignID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	visitRows, err := s.repositories.TrackerInfosRepository.CountByCampaign(ctx, campaignID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	report := &dto.CampaignReport{
		CampaignID: campaign.ID,
		Name:       campaign.Name,
		Launched:   len(trackers) > 0,
		SendAt:     campaign.SendAt,
		Trackers:   map[string]map[string]int{},
		Visits:     map[string]int{},
		VisitRows:  visitRows,
		Extra:      map[string]interface{}{},
	}

	targets := map[string]struct{}{}
	for _, link := range campaign.TargetGroups {
		if link.TargetGroup == nil {
			continue
		}
		for _, target := range link.TargetGroup.Targets {
			targets[utils.NormalizeEmail(target.Email)] = struct{}{}
		}
	}
	report.Targets = len(targets)

	// trackers come most recently updated first
	for _, tracker := range trackers {
		key := tracker.Key.String()
		if report.Trackers[key] == nil {
			report.Trackers[key] = map[string]int{}
		}
		report.Trackers[key][tracker.Value]++
		report.Visits[key] += tracker.Count
		if len(report.Recent) < RecentLimit {
			report.Recent = append(report.Recent, dto.ReportTracker{
				ID:          tracker.ID,
				Key:         key,
				TargetEmail: tracker.TargetEmail,
				Value:       tracker.Value,
				Count:       tracker.Count,
				UpdatedAt:   tracker.UpdatedAt,
			})
		}
	}

	if err = s.hooks.BuildReport(ctx, &hooks.ReportContext{Campaign: campaign, Report: report}); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return report, nil
}
