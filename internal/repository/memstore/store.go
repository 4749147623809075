// Package memstore is an in-memory implementation of the repository
// contracts, used by service tests. It enforces the same uniqueness rules as
// the postgres schema.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/customeros/mercure/interfaces"
	"github.com/customeros/mercure/internal/enum"
	mercure_errors "github.com/customeros/mercure/internal/errors"
	"github.com/customeros/mercure/internal/models"
	"github.com/customeros/mercure/internal/repository"
	"github.com/customeros/mercure/internal/utils"
)

type Store struct {
	mu          sync.Mutex
	tick        time.Duration
	campaigns   map[string]*models.Campaign
	links       map[string]*models.CampaignTargetGroup
	groups      map[string]*models.TargetGroup
	templates   map[string]*models.EmailTemplate
	pages       map[string]*models.LandingPage
	attachments map[string]*models.Attachment
	trackers    map[string]*models.Tracker
	infos       map[string]*models.TrackerInfos
}

func New() *Store {
	return &Store{
		campaigns:   map[string]*models.Campaign{},
		links:       map[string]*models.CampaignTargetGroup{},
		groups:      map[string]*models.TargetGroup{},
		templates:   map[string]*models.EmailTemplate{},
		pages:       map[string]*models.LandingPage{},
		attachments: map[string]*models.Attachment{},
		trackers:    map[string]*models.Tracker{},
		infos:       map[string]*models.TrackerInfos{},
	}
}

func (s *Store) Repositories() *repository.Repositories {
	return &repository.Repositories{
		AttachmentRepository:    &attachmentRepository{s},
		CampaignRepository:      &campaignRepository{s},
		EmailTemplateRepository: &emailTemplateRepository{s},
		LandingPageRepository:   &landingPageRepository{s},
		TargetGroupRepository:   &targetGroupRepository{s},
		TrackerRepository:       &trackerRepository{s},
		TrackerInfosRepository:  &trackerInfosRepository{s},
	}
}

// now is strictly increasing so that ordering by timestamp is stable.
func (s *Store) now() time.Time {
	s.tick += time.Microsecond
	return utils.Now().Add(s.tick)
}

// Trackers returns a snapshot of every tracker, in no particular order.
func (s *Store) Trackers() []models.Tracker {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Tracker, 0, len(s.trackers))
	for _, t := range s.trackers {
		out = append(out, *t)
	}
	return out
}

// TrackerInfos returns a snapshot of the visit rows of one tracker, oldest first.
func (s *Store) TrackerInfos(trackerID string) []models.TrackerInfos {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.TrackerInfos
	for _, i := range s.infos {
		if i.TrackerID == trackerID {
			out = append(out, *i)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out
}

type campaignRepository struct{ s *Store }

func (r *campaignRepository) Create(_ context.Context, campaign *models.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_ = campaign.BeforeCreate(nil)
	stored := *campaign
	stored.TargetGroups = nil
	stored.EmailTemplate = nil
	stored.CreatedAt = r.s.now()
	r.s.campaigns[stored.ID] = &stored
	return nil
}

func (r *campaignRepository) GetByID(_ context.Context, id string) (*models.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.campaigns[id]
	if !ok {
		return nil, mercure_errors.ErrCampaignNotFound
	}
	campaign := *stored
	if tpl, ok := r.s.templates[campaign.EmailTemplateID]; ok {
		campaign.EmailTemplate = r.s.templateGraph(tpl)
	}

	var links []models.CampaignTargetGroup
	for _, l := range r.s.links {
		if l.CampaignID != id {
			continue
		}
		link := *l
		if group, ok := r.s.groups[link.TargetGroupID]; ok {
			g := *group
			g.Targets = append([]models.Target(nil), group.Targets...)
			link.TargetGroup = &g
		}
		links = append(links, link)
	}
	sort.Slice(links, func(a, b int) bool { return links[a].CreatedAt.Before(links[b].CreatedAt) })
	campaign.TargetGroups = links
	return &campaign, nil
}

func (r *campaignRepository) ListDue(_ context.Context, now time.Time) ([]*models.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var due []*models.Campaign
	for _, c := range r.s.campaigns {
		if c.SendAt.After(now) {
			continue
		}
		for _, l := range r.s.links {
			if l.CampaignID == c.ID && l.SentAt == nil {
				campaign := *c
				due = append(due, &campaign)
				break
			}
		}
	}
	sort.Slice(due, func(a, b int) bool { return due[a].SendAt.Before(due[b].SendAt) })
	return due, nil
}

func (r *campaignRepository) AddTargetGroup(_ context.Context, campaignID, targetGroupID string) (*models.CampaignTargetGroup, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.links {
		if l.CampaignID == campaignID && l.TargetGroupID == targetGroupID {
			link := *l
			return &link, nil
		}
	}
	link := &models.CampaignTargetGroup{CampaignID: campaignID, TargetGroupID: targetGroupID, CreatedAt: r.s.now()}
	_ = link.BeforeCreate(nil)
	r.s.links[link.ID] = link
	out := *link
	return &out, nil
}

func (r *campaignRepository) MarkTargetGroupSent(_ context.Context, linkID string, sentAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if l, ok := r.s.links[linkID]; ok && l.SentAt == nil {
		at := sentAt
		l.SentAt = &at
	}
	return nil
}

// SentAt exposes the stored stamp of a campaign/group link.
func (s *Store) SentAt(campaignID, targetGroupID string) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.links {
		if l.CampaignID == campaignID && l.TargetGroupID == targetGroupID {
			return l.SentAt
		}
	}
	return nil
}

func (s *Store) pageGraph(page *models.LandingPage) *models.LandingPage {
	p := *page
	p.Attachments = nil
	for _, a := range page.Attachments {
		if stored, ok := s.attachments[a.ID]; ok {
			p.Attachments = append(p.Attachments, *stored)
		}
	}
	return &p
}

func (s *Store) templateGraph(tpl *models.EmailTemplate) *models.EmailTemplate {
	t := *tpl
	t.Attachments = nil
	for _, a := range tpl.Attachments {
		if stored, ok := s.attachments[a.ID]; ok {
			t.Attachments = append(t.Attachments, *stored)
		}
	}
	t.LandingPage = nil
	if tpl.LandingPageID != nil {
		if page, ok := s.pages[*tpl.LandingPageID]; ok {
			t.LandingPage = s.pageGraph(page)
		}
	}
	return &t
}

type targetGroupRepository struct{ s *Store }

func (r *targetGroupRepository) Create(_ context.Context, group *models.TargetGroup) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_ = group.BeforeCreate(nil)
	for i := range group.Targets {
		group.Targets[i].GroupID = group.ID
		_ = group.Targets[i].BeforeCreate(nil)
	}
	stored := *group
	stored.Targets = append([]models.Target(nil), group.Targets...)
	r.s.groups[stored.ID] = &stored
	return nil
}

func (r *targetGroupRepository) GetByID(_ context.Context, id string) (*models.TargetGroup, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	group, ok := r.s.groups[id]
	if !ok {
		return nil, mercure_errors.ErrTargetGroupNotFound
	}
	g := *group
	g.Targets = append([]models.Target(nil), group.Targets...)
	return &g, nil
}

type emailTemplateRepository struct{ s *Store }

func (r *emailTemplateRepository) Create(_ context.Context, template *models.EmailTemplate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_ = template.BeforeCreate(nil)
	r.s.storeAttachments(template.Attachments)
	if template.LandingPage != nil {
		_ = template.LandingPage.BeforeCreate(nil)
		r.s.storeAttachments(template.LandingPage.Attachments)
		page := *template.LandingPage
		page.Attachments = append([]models.Attachment(nil), template.LandingPage.Attachments...)
		r.s.pages[page.ID] = &page
		template.LandingPageID = &page.ID
	}
	stored := *template
	stored.LandingPage = nil
	stored.Attachments = append([]models.Attachment(nil), template.Attachments...)
	r.s.templates[stored.ID] = &stored
	return nil
}

func (r *emailTemplateRepository) GetByID(_ context.Context, id string) (*models.EmailTemplate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tpl, ok := r.s.templates[id]
	if !ok {
		return nil, mercure_errors.ErrEmailTemplateNotFound
	}
	return r.s.templateGraph(tpl), nil
}

type landingPageRepository struct{ s *Store }

func (r *landingPageRepository) Create(_ context.Context, page *models.LandingPage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_ = page.BeforeCreate(nil)
	r.s.storeAttachments(page.Attachments)
	stored := *page
	stored.Attachments = append([]models.Attachment(nil), page.Attachments...)
	r.s.pages[stored.ID] = &stored
	return nil
}

func (s *Store) storeAttachments(attachments []models.Attachment) {
	for i := range attachments {
		a := &attachments[i]
		_ = a.BeforeCreate(nil)
		if _, ok := s.attachments[a.ID]; !ok {
			stored := *a
			s.attachments[a.ID] = &stored
		}
	}
}

func (r *landingPageRepository) Update(_ context.Context, page *models.LandingPage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.pages[page.ID]
	if !ok {
		return mercure_errors.ErrLandingPageNotFound
	}
	stored := *page
	if page.Attachments == nil {
		stored.Attachments = existing.Attachments
	} else {
		r.s.storeAttachments(page.Attachments)
		stored.Attachments = append([]models.Attachment(nil), page.Attachments...)
	}
	r.s.pages[stored.ID] = &stored
	return nil
}

func (r *landingPageRepository) GetByID(_ context.Context, id string) (*models.LandingPage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	page, ok := r.s.pages[id]
	if !ok {
		return nil, mercure_errors.ErrLandingPageNotFound
	}
	return r.s.pageGraph(page), nil
}

type attachmentRepository struct{ s *Store }

func (r *attachmentRepository) Create(_ context.Context, attachment *models.Attachment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	_ = attachment.BeforeCreate(nil)
	stored := *attachment
	r.s.attachments[stored.ID] = &stored
	return nil
}

func (r *attachmentRepository) GetByID(_ context.Context, id string) (*models.Attachment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.attachments[id]
	if !ok {
		return nil, mercure_errors.ErrAttachmentNotFound
	}
	out := *a
	return &out, nil
}

type trackerRepository struct{ s *Store }

func (r *trackerRepository) insert(tracker *models.Tracker) {
	_ = tracker.BeforeCreate(nil)
	now := r.s.now()
	tracker.CreatedAt, tracker.UpdatedAt = now, now
	stored := *tracker
	stored.Target = nil
	r.s.trackers[stored.ID] = &stored
}

func (r *trackerRepository) exists(t *models.Tracker) bool {
	for _, existing := range r.s.trackers {
		if existing.CampaignID == t.CampaignID && existing.TargetEmail == t.TargetEmail &&
			existing.Key == t.Key && existing.Slot == t.Slot {
			return true
		}
	}
	return false
}

func (r *trackerRepository) Create(_ context.Context, tracker *models.Tracker) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.exists(tracker) {
		return mercure_errors.ErrInvalidInput
	}
	r.insert(tracker)
	return nil
}

func (r *trackerRepository) CreateIfAbsent(_ context.Context, tracker *models.Tracker) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.exists(tracker) {
		return false, nil
	}
	r.insert(tracker)
	return true, nil
}

func (r *trackerRepository) GetByID(_ context.Context, id string) (*models.Tracker, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.trackers[id]
	if !ok {
		return nil, mercure_errors.ErrTrackerNotFound
	}
	out := *t
	out.Target = r.s.findTarget(t.TargetID)
	return &out, nil
}

func (s *Store) findTarget(id string) *models.Target {
	for _, g := range s.groups {
		for _, target := range g.Targets {
			if target.ID == id {
				t := target
				return &t
			}
		}
	}
	return nil
}

func (r *trackerRepository) FindBySlot(_ context.Context, campaignID, targetEmail string, key enum.TrackerKey, slot string) (*models.Tracker, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.trackers {
		if t.CampaignID == campaignID && t.TargetEmail == targetEmail && t.Key == key && t.Slot == slot {
			out := *t
			return &out, nil
		}
	}
	return nil, nil
}

func (r *trackerRepository) ListTargetEmailsWithKey(_ context.Context, campaignID string, key enum.TrackerKey) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := map[string]struct{}{}
	var emails []string
	for _, t := range r.s.trackers {
		if t.CampaignID != campaignID || t.Key != key {
			continue
		}
		if _, ok := seen[t.TargetEmail]; !ok {
			seen[t.TargetEmail] = struct{}{}
			emails = append(emails, t.TargetEmail)
		}
	}
	sort.Strings(emails)
	return emails, nil
}

func (r *trackerRepository) ListByCampaign(_ context.Context, campaignID string) ([]*models.Tracker, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Tracker
	for _, t := range r.s.trackers {
		if t.CampaignID == campaignID {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].UpdatedAt.After(out[b].UpdatedAt) })
	return out, nil
}

func (r *trackerRepository) CountByCampaign(_ context.Context, campaignID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var count int64
	for _, t := range r.s.trackers {
		if t.CampaignID == campaignID {
			count++
		}
	}
	return count, nil
}

func (r *trackerRepository) SetStatus(_ context.Context, id, value, detail string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.trackers[id]
	if !ok {
		return mercure_errors.ErrTrackerNotFound
	}
	t.Value, t.Detail, t.UpdatedAt = value, detail, r.s.now()
	return nil
}

func (r *trackerRepository) IncrementVisits(_ context.Context, id, value string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.trackers[id]
	if !ok {
		return 0, mercure_errors.ErrTrackerNotFound
	}
	t.Count++
	t.Value, t.UpdatedAt = value, r.s.now()
	return t.Count, nil
}

type trackerInfosRepository struct{ s *Store }

func (r *trackerInfosRepository) Create(_ context.Context, infos *models.TrackerInfos) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.trackers[infos.TrackerID]; !ok {
		return mercure_errors.ErrTrackerNotFound
	}
	_ = infos.BeforeCreate(nil)
	infos.CreatedAt = r.s.now()
	stored := *infos
	r.s.infos[stored.ID] = &stored
	return nil
}

func (r *trackerInfosRepository) SetRaw(_ context.Context, id, raw string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	i, ok := r.s.infos[id]
	if !ok {
		return mercure_errors.ErrTrackerInfosNotFound
	}
	i.Raw = raw
	return nil
}

func (r *trackerInfosRepository) LatestWithoutRaw(_ context.Context, trackerID string) (*models.TrackerInfos, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest *models.TrackerInfos
	for _, i := range r.s.infos {
		if i.TrackerID != trackerID || strings.TrimSpace(i.Raw) != "" {
			continue
		}
		if latest == nil || i.CreatedAt.After(latest.CreatedAt) {
			latest = i
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}

func (r *trackerInfosRepository) CountByCampaign(_ context.Context, campaignID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var count int64
	for _, i := range r.s.infos {
		if t, ok := r.s.trackers[i.TrackerID]; ok && t.CampaignID == campaignID {
			count++
		}
	}
	return count, nil
}

var (
	_ interfaces.CampaignRepository      = (*campaignRepository)(nil)
	_ interfaces.TrackerRepository       = (*trackerRepository)(nil)
	_ interfaces.TrackerInfosRepository  = (*trackerInfosRepository)(nil)
	_ interfaces.LandingPageRepository   = (*landingPageRepository)(nil)
	_ interfaces.EmailTemplateRepository = (*emailTemplateRepository)(nil)
	_ interfaces.TargetGroupRepository   = (*targetGroupRepository)(nil)
	_ interfaces.AttachmentRepository    = (*attachmentRepository)(nil)
)
