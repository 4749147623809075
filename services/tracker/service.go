package tracker

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"

	"github.com/customeros/mercure/dto"
	"github.com/customeros/mercure/internal/enum"
	mercure_errors "github.com/customeros/mercure/internal/errors"
	"github.com/customeros/mercure/internal/logger"
	"github.com/customeros/mercure/internal/metrics"
	"github.com/customeros/mercure/internal/models"
	"github.com/customeros/mercure/internal/repository"
	"github.com/customeros/mercure/internal/tracing"
	"github.com/customeros/mercure/internal/utils"
)

type Service struct {
	log          logger.Logger
	repositories *repository.Repositories
}

func NewService(log logger.Logger, repos *repository.Repositories) *Service {
	return &Service{
		log:          log,
		repositories: repos,
	}
}

func newTracker(campaign *models.Campaign, target *models.Target, key enum.TrackerKey, slot, value string) *models.Tracker {
	return &models.Tracker{
		CampaignID:  campaign.ID,
		TargetID:    target.ID,
		TargetEmail: utils.NormalizeEmail(target.Email),
		Key:         key,
		Slot:        slot,
		Value:       value,
	}
}

func (s *Service) Create(ctx context.Context, campaign *models.Campaign, target *models.Target, key enum.TrackerKey, value string) (*models.Tracker, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TrackerService.Create")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("key", key.String())

	tracker := newTracker(campaign, target, key, "", value)
	if err := s.repositories.TrackerRepository.Create(ctx, tracker); err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "failed to create %s tracker", key)
	}
	metrics.RecordTrackerCreated(key.String())
	return tracker, nil
}

// Ensure returns the tracker of the given slot, creating it with value when
// absent. An existing row is returned untouched.
func (s *Service) Ensure(ctx context.Context, campaign *models.Campaign, target *models.Target, key enum.TrackerKey, slot, value string) (*models.Tracker, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TrackerService.Ensure")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("key", key.String())

	tracker := newTracker(campaign, target, key, slot, value)
	inserted, err := s.repositories.TrackerRepository.CreateIfAbsent(ctx, tracker)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, errors.Wrapf(err, "failed to create %s tracker", key)
	}
	if inserted {
		metrics.RecordTrackerCreated(key.String())
		return tracker, nil
	}

	existing, err := s.repositories.TrackerRepository.FindBySlot(ctx, tracker.CampaignID, tracker.TargetEmail, key, slot)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if existing == nil {
		// deleted between the insert attempt and the lookup
		return nil, mercure_errors.ErrTrackerNotFound
	}
	return existing, nil
}

// Claim takes the send lock of a target: the email_send row in pending
// state. It reports false when another sender already holds it.
func (s *Service) Claim(ctx context.Context, campaign *models.Campaign, target *models.Target) (*models.Tracker, bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TrackerService.Claim")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	tracker := newTracker(campaign, target, enum.TrackerEmailSend, "", enum.TrackerValuePending)
	inserted, err := s.repositories.TrackerRepository.CreateIfAbsent(ctx, tracker)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, false, errors.Wrap(err, "failed to claim target")
	}
	span.SetTag("claimed", inserted)
	if !inserted {
		return nil, false, nil
	}
	metrics.RecordTrackerCreated(enum.TrackerEmailSend.String())
	return tracker, true, nil
}

func (s *Service) SetStatus(ctx context.Context, trackerID, value, detail string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TrackerService.SetStatus")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, trackerID)

	err := s.repositories.TrackerRepository.SetStatus(ctx, trackerID, value, detail)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

// RecordVisit appends a detail row for the hit, then bumps the visit
// counter and sets the value in one atomic update.
func (s *Service) RecordVisit(ctx context.Context, trackerID string, visit dto.Visit, value string) (*models.Tracker, *models.TrackerInfos, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TrackerService.RecordVisit")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, trackerID)

	tracker, err := s.repositories.TrackerRepository.GetByID(ctx, trackerID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, nil, err
	}

	infos := &models.TrackerInfos{
		TrackerID:    tracker.ID,
		ForwardedFor: visit.ForwardedFor,
		UserAgent:    visit.UserAgent,
		Referer:      visit.Referer,
		Raw:          visit.Raw,
	}
	if visit.IP != "" {
		infos.IP = utils.ToPtr(visit.IP)
	}
	if err = s.repositories.TrackerInfosRepository.Create(ctx, infos); err != nil {
		tracing.TraceErr(span, err)
		return nil, nil, errors.Wrap(err, "failed to record visit")
	}

	count, err := s.repositories.TrackerRepository.IncrementVisits(ctx, tracker.ID, value)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, nil, errors.Wrap(err, "failed to count visit")
	}
	tracker.Count = count
	tracker.Value = value
	metrics.RecordTrackerVisit(tracker.Key.String())

	return tracker, infos, nil
}

// SetBrowserInfos stores the navigator data posted by the landing page
// script on the newest visit row that has no raw payload yet.
func (s *Service) SetBrowserInfos(ctx context.Context, trackerID, infos string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TrackerService.SetBrowserInfos")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, trackerID)

	latest, err := s.repositories.TrackerInfosRepository.LatestWithoutRaw(ctx, trackerID)
	if err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	if latest == nil {
		return mercure_errors.ErrTrackerInfosNotFound
	}
	return s.SetVisitRaw(ctx, latest.ID, infos)
}

func (s *Service) SetVisitRaw(ctx context.Context, infosID, raw string) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "TrackerService.SetVisitRaw")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	if err := s.repositories.TrackerInfosRepository.SetRaw(ctx, infosID, raw); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}
