package delivery

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mercure/config"
	"github.com/customeros/mercure/dto"
	"github.com/customeros/mercure/internal/enum"
	"github.com/customeros/mercure/internal/logger"
	"github.com/customeros/mercure/internal/models"
	"github.com/customeros/mercure/internal/repository"
	"github.com/customeros/mercure/internal/repository/memstore"
	"github.com/customeros/mercure/services/attachment"
	"github.com/customeros/mercure/services/hooks"
	"github.com/customeros/mercure/services/storage"
	"github.com/customeros/mercure/services/templatevars"
	"github.com/customeros/mercure/services/tracker"
)

type fakeTransport struct {
	mu     sync.Mutex
	sent   []*dto.OutboundMessage
	failTo map[string]error
}

func (f *fakeTransport) Send(_ context.Context, message *dto.OutboundMessage, _ *dto.SMTPConnection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failTo[message.To]; ok {
		return err
	}
	f.sent = append(f.sent, message)
	return nil
}

type fakeScheduler struct {
	at         time.Time
	campaignID string
}

func (f *fakeScheduler) ScheduleAt(_ context.Context, at time.Time, campaignID string) error {
	f.at = at
	f.campaignID = campaignID
	return nil
}

type fixture struct {
	store     *memstore.Store
	repos     *repository.Repositories
	files     *storage.MemoryStorage
	transport *fakeTransport
	service   *Service
}

func setup(t *testing.T, listeners ...hooks.Listener) *fixture {
	t.Helper()
	store := memstore.New()
	repos := store.Repositories()
	log := logger.NewNopLogger()
	appCfg := &config.AppConfig{
		Hostname:      "https://phish.example.com/",
		PostDomain:    "MERCURE_POST_DOMAIN",
		PostTrackerID: "MERCURE_POST_TRACKER_ID",
	}
	bus := hooks.NewBus(listeners...)
	trackers := tracker.NewService(log, repos)
	files := storage.NewMemoryStorage()
	transport := &fakeTransport{failTo: map[string]error{}}

	s := NewService(appCfg, log, repos, Options{
		Trackers:     trackers,
		TemplateVars: templatevars.NewService(appCfg, log, repos, nil, bus),
		Attachments:  attachment.NewService(appCfg, &config.AttachmentConfig{BuildTimeout: 10 * time.Second, Shell: "sh"}, log, repos, files, trackers),
		Transport:    transport,
		Connection:   &dto.SMTPConnection{Host: "relay.local", Port: 25},
		Hooks:        bus,
	})
	return &fixture{store: store, repos: repos, files: files, transport: transport, service: s}
}

func phishingTemplate() *models.EmailTemplate {
	return &models.EmailTemplate{
		Name:           "password-reset",
		Subject:        "Reset for {{ first_name }}",
		FromEmail:      "it@corp.example.com",
		TextContent:    "Hello {{ first_name }}, go to {{ landing_page_url }}",
		HTMLContent:    `<html><body><a href="{{ landing_page_url }}">reset</a></body></html>`,
		HasOpenTracker: true,
		LandingPage: &models.LandingPage{
			Name: "login",
			HTML: `<form action="http://MERCURE_POST_DOMAIN/landing-page/post/MERCURE_POST_TRACKER_ID"></form>`,
		},
	}
}

func (f *fixture) campaign(t *testing.T, tpl *models.EmailTemplate, sendAt time.Time, groups ...[]models.Target) *models.Campaign {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.repos.EmailTemplateRepository.Create(ctx, tpl))
	campaign := &models.Campaign{Name: "q3-awareness", EmailTemplateID: tpl.ID, SendAt: sendAt}
	require.NoError(t, f.repos.CampaignRepository.Create(ctx, campaign))
	for _, targets := range groups {
		group := &models.TargetGroup{Name: "group", Targets: targets}
		require.NoError(t, f.repos.TargetGroupRepository.Create(ctx, group))
		_, err := f.repos.CampaignRepository.AddTargetGroup(ctx, campaign.ID, group.ID)
		require.NoError(t, err)
	}
	return campaign
}

func (f *fixture) trackersOf(campaignID string, key enum.TrackerKey) []models.Tracker {
	var out []models.Tracker
	for _, tr := range f.store.Trackers() {
		if tr.CampaignID == campaignID && tr.Key == key {
			out = append(out, tr)
		}
	}
	return out
}

func past() time.Time { return time.Now().Add(-time.Hour) }

func TestSendCampaign_NotDue(t *testing.T) {
	f := setup(t)
	campaign := f.campaign(t, phishingTemplate(), time.Now().Add(time.Hour), []models.Target{{Email: "a@x.com"}})

	ok, err := f.service.SendCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, f.store.Trackers())
	assert.Empty(t, f.transport.sent)
}

func TestSendCampaign_NoTargetGroups(t *testing.T) {
	f := setup(t)
	campaign := f.campaign(t, phishingTemplate(), past())

	ok, err := f.service.SendCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSendCampaign_EmptyGroupIsNotStamped(t *testing.T) {
	f := setup(t)
	campaign := f.campaign(t, phishingTemplate(), past(), []models.Target{})

	ok, err := f.service.SendCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	groupID := f.mustCampaign(t, campaign.ID).TargetGroups[0].TargetGroupID
	assert.Nil(t, f.store.SentAt(campaign.ID, groupID))
}

func (f *fixture) mustCampaign(t *testing.T, id string) *models.Campaign {
	t.Helper()
	c, err := f.repos.CampaignRepository.GetByID(context.Background(), id)
	require.NoError(t, err)
	return c
}

func TestSendCampaign_FourTrackersPerTarget(t *testing.T) {
	f := setup(t)
	campaign := f.campaign(t, phishingTemplate(), past(), []models.Target{
		{Email: "alice@x.com", FirstName: "Alice"},
		{Email: "bob@x.com", FirstName: "Bob"},
	})

	ok, err := f.service.SendCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Len(t, f.store.Trackers(), 8)
	for _, key := range []enum.TrackerKey{enum.TrackerEmailSend, enum.TrackerEmailOpen, enum.TrackerLandingPageOpen, enum.TrackerLandingPagePost} {
		assert.Len(t, f.trackersOf(campaign.ID, key), 2, key)
	}
	for _, tr := range f.trackersOf(campaign.ID, enum.TrackerEmailSend) {
		assert.Equal(t, enum.TrackerValueSuccess, tr.Value)
	}
	for _, tr := range f.trackersOf(campaign.ID, enum.TrackerLandingPagePost) {
		assert.Equal(t, enum.TrackerValueNo, tr.Value)
	}

	require.Len(t, f.transport.sent, 2)
	msg := f.transport.sent[0]
	assert.Equal(t, "alice@x.com", msg.To)
	assert.Equal(t, "Reset for Alice", msg.Subject)
	assert.Contains(t, msg.HTML, `https://phish.example.com/lp/view/`)
	assert.Contains(t, msg.Text, `https://phish.example.com/lp/view/`)
	assert.NotContains(t, msg.Text, "{{")
	assert.Regexp(t, `<img src="https://phish.example.com/tracker/[^"]+\.png" width="1" height="1" alt="" /></body></html>$`, msg.HTML)

	// each target carries its own pixel
	assert.NotContains(t, f.transport.sent[1].HTML, pixelSrc(msg.HTML))

	groupID := f.mustCampaign(t, campaign.ID).TargetGroups[0].TargetGroupID
	assert.NotNil(t, f.store.SentAt(campaign.ID, groupID))
}

func pixelSrc(html string) string {
	start := strings.Index(html, "/tracker/")
	end := strings.Index(html[start:], ".png")
	return html[start : start+end]
}

func TestSendCampaign_CrossGroupDedup(t *testing.T) {
	f := setup(t)
	campaign := f.campaign(t, phishingTemplate(), past(),
		[]models.Target{{Email: "shared@x.com"}, {Email: "only-a@x.com"}},
		[]models.Target{{Email: "Shared@X.com "}, {Email: "only-b@x.com"}},
	)

	ok, err := f.service.SendCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, f.transport.sent, 3)
	assert.Len(t, f.trackersOf(campaign.ID, enum.TrackerEmailSend), 3)

	// repeating the send mails nobody again
	ok, err = f.service.SendCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, f.transport.sent, 3)
	assert.Len(t, f.store.Trackers(), 12)
}

func TestSendCampaign_FailureIsolation(t *testing.T) {
	f := setup(t)
	f.transport.failTo["alice@x.com"] = errors.New("550 mailbox unavailable")
	campaign := f.campaign(t, phishingTemplate(), past(), []models.Target{
		{Email: "alice@x.com"},
		{Email: "bob@x.com"},
	})

	ok, err := f.service.SendCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	require.Len(t, f.transport.sent, 1)
	assert.Equal(t, "bob@x.com", f.transport.sent[0].To)

	values := map[string]models.Tracker{}
	for _, tr := range f.trackersOf(campaign.ID, enum.TrackerEmailSend) {
		values[tr.TargetEmail] = tr
	}
	assert.Equal(t, enum.TrackerValueFail, values["alice@x.com"].Value)
	assert.Contains(t, values["alice@x.com"].Detail, "550 mailbox unavailable")
	assert.Equal(t, enum.TrackerValueSuccess, values["bob@x.com"].Value)

	groupID := f.mustCampaign(t, campaign.ID).TargetGroups[0].TargetGroupID
	assert.NotNil(t, f.store.SentAt(campaign.ID, groupID))
}

func TestSendCampaign_BrokenAttachmentFailsTargetOnly(t *testing.T) {
	f := setup(t)
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	_, err := w.Create("README")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.files.Upload(context.Background(), "attachments/broken.zip", buf.Bytes(), "application/zip"))

	tpl := phishingTemplate()
	tpl.LandingPage = nil
	tpl.Attachments = []models.Attachment{{Name: "invoice", AttachmentName: "invoice.docm", StorageKey: "attachments/broken.zip", Buildable: true}}
	campaign := f.campaign(t, tpl, past(), []models.Target{{Email: "alice@x.com"}, {Email: "bob@x.com"}})

	ok, err := f.service.SendCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, f.transport.sent)

	executed := f.trackersOf(campaign.ID, enum.TrackerAttachmentExecuted)
	require.Len(t, executed, 2)
	assert.Equal(t, enum.TrackerValueNotExecuted, executed[0].Value)
	for _, tr := range f.trackersOf(campaign.ID, enum.TrackerEmailSend) {
		assert.Equal(t, enum.TrackerValueFail, tr.Value)
		assert.Contains(t, tr.Detail, "generator.sh")
	}
}

func TestSendCampaign_StaticAttachment(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.files.Upload(context.Background(), "attachments/policy.pdf", []byte("%PDF"), "application/pdf"))
	tpl := phishingTemplate()
	tpl.Attachments = []models.Attachment{{Name: "policy", AttachmentName: "policy.pdf", ContentType: "application/pdf", StorageKey: "attachments/policy.pdf"}}
	campaign := f.campaign(t, tpl, past(), []models.Target{{Email: "alice@x.com"}})

	ok, err := f.service.SendCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, f.transport.sent, 1)
	require.Len(t, f.transport.sent[0].Attachments, 1)
	assert.Equal(t, "policy.pdf", f.transport.sent[0].Attachments[0].Filename)
	assert.Equal(t, []byte("%PDF"), f.transport.sent[0].Attachments[0].Content)
	assert.Empty(t, f.trackersOf(campaign.ID, enum.TrackerAttachmentExecuted))
}

type subjectRewriter struct{ hooks.NopListener }

func (subjectRewriter) OnBeforeSend(_ context.Context, c *hooks.BeforeSendContext) error {
	c.Message.Subject = "[external] " + c.Message.Subject
	return nil
}

func TestSendCampaign_BeforeSendHook(t *testing.T) {
	f := setup(t, subjectRewriter{})
	campaign := f.campaign(t, phishingTemplate(), past(), []models.Target{{Email: "alice@x.com", FirstName: "Alice"}})

	_, err := f.service.SendCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)
	require.Len(t, f.transport.sent, 1)
	assert.Equal(t, "[external] Reset for Alice", f.transport.sent[0].Subject)
}

func TestSendCampaign_TextOnlyTemplate(t *testing.T) {
	f := setup(t)
	tpl := phishingTemplate()
	tpl.HTMLContent = "<html><body>&nbsp;</body></html>"
	tpl.TextContent = "Line one\nLine <two>"
	tpl.LandingPage = nil
	campaign := f.campaign(t, tpl, past(), []models.Target{{Email: "alice@x.com"}})

	_, err := f.service.SendCampaign(context.Background(), campaign.ID)
	require.NoError(t, err)
	require.Len(t, f.transport.sent, 1)
	assert.Contains(t, f.transport.sent[0].HTML, "Line one<br>Line &lt;two&gt;")
	assert.Contains(t, f.transport.sent[0].HTML, "/tracker/")
}

func TestSendCampaign_UnknownCampaign(t *testing.T) {
	f := setup(t)
	_, err := f.service.SendCampaign(context.Background(), "cmp_missing")
	assert.Error(t, err)
}

func TestSendDueCampaigns(t *testing.T) {
	f := setup(t)
	due := f.campaign(t, phishingTemplate(), past(), []models.Target{{Email: "a@x.com"}})
	tpl := phishingTemplate()
	tpl.Name = "later"
	tpl.LandingPage.Name = "later-login"
	f.campaign(t, tpl, time.Now().Add(time.Hour), []models.Target{{Email: "b@x.com"}})

	count, err := f.service.SendDueCampaigns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	require.Len(t, f.transport.sent, 1)
	assert.Len(t, f.trackersOf(due.ID, enum.TrackerEmailSend), 1)

	count, err = f.service.SendDueCampaigns(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestScheduleCampaign(t *testing.T) {
	f := setup(t)
	sendAt := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	campaign := f.campaign(t, phishingTemplate(), sendAt)

	assert.ErrorIs(t, f.service.ScheduleCampaign(context.Background(), campaign.ID), ErrNoScheduler)

	scheduler := &fakeScheduler{}
	f.service.SetScheduler(scheduler)
	require.NoError(t, f.service.ScheduleCampaign(context.Background(), campaign.ID))
	assert.Equal(t, campaign.ID, scheduler.campaignID)
	assert.True(t, sendAt.Equal(scheduler.at))
}

func TestIsBlankHTML(t *testing.T) {
	assert.True(t, isBlankHTML(""))
	assert.True(t, isBlankHTML("<html><head><title></title></head><body>&nbsp; </body></html>"))
	assert.False(t, isBlankHTML("<html><body>hi</body></html>"))
}

func TestInjectPixel(t *testing.T) {
	assert.Equal(t, `<p>x</p><img src="u" width="1" height="1" alt="" />`, injectPixel("<p>x</p>", "u"))
	assert.Equal(t, `<BODY>x<img src="u" width="1" height="1" alt="" /></BODY>`, injectPixel("<BODY>x</BODY>", "u"))
}
