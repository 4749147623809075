package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mercure/config"
	"github.com/customeros/mercure/internal/enum"
	"github.com/customeros/mercure/internal/logger"
	"github.com/customeros/mercure/internal/models"
	"github.com/customeros/mercure/internal/repository/memstore"
	"github.com/customeros/mercure/services"
)

const apiKey = "secret"

type fixture struct {
	router *gin.Engine
	store  *memstore.Store
}

func setup(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		AppConfig: &config.AppConfig{
			APIKey:             apiKey,
			Hostname:           "https://phish.example.com/",
			PostDomain:         "MERCURE_POST_DOMAIN",
			PostTrackerID:      "MERCURE_POST_TRACKER_ID",
			NeutralRedirectURL: "https://www.google.com/",
		},
		// nothing listens on port 1, every send fails fast
		SMTPConfig:       &config.SMTPConfig{Host: "127.0.0.1", Port: 1, Security: enum.EmailSecurityNone, Timeout: time.Second},
		StorageConfig:    &config.StorageConfig{},
		CloneConfig:      &config.CloneConfig{Timeout: time.Second, MaxBytes: 1 << 20},
		AttachmentConfig: &config.AttachmentConfig{BuildTimeout: time.Second, Shell: "sh"},
	}
	log := logger.NewNopLogger()
	store := memstore.New()
	repos := store.Repositories()

	svcs, err := services.InitServices(cfg, log, repos)
	require.NoError(t, err)

	router := gin.New()
	RegisterRoutes(context.Background(), router, cfg.AppConfig, log, svcs, repos)
	return &fixture{router: router, store: store}
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *fixture) admin(t *testing.T, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(APIKeyHeader, apiKey)
	w := f.do(req)
	if out != nil && w.Code < 300 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
	return w.Code
}

func (f *fixture) tracker(t *testing.T, key enum.TrackerKey) models.Tracker {
	t.Helper()
	for _, tr := range f.store.Trackers() {
		if tr.Key == key {
			return tr
		}
	}
	t.Fatalf("no %s tracker", key)
	return models.Tracker{}
}

// launch creates a campaign with one target through the admin api and sends it.
func (f *fixture) launch(t *testing.T) string {
	t.Helper()
	var page models.LandingPage
	require.Equal(t, http.StatusCreated, f.admin(t, http.MethodPost, "/v1/landing-pages", gin.H{
		"name": "login",
		"html": `<html><body><form action="/login" method="post"><input name="user"/></form></body></html>`,
	}, &page))

	var group models.TargetGroup
	require.Equal(t, http.StatusCreated, f.admin(t, http.MethodPost, "/v1/target-groups", gin.H{
		"name":    "staff",
		"targets": []gin.H{{"email": " Alice@Example.com ", "firstName": "Alice"}},
	}, &group))
	require.Len(t, group.Targets, 1)
	assert.Equal(t, "alice@example.com", group.Targets[0].Email)

	var template models.EmailTemplate
	require.Equal(t, http.StatusCreated, f.admin(t, http.MethodPost, "/v1/email-templates", gin.H{
		"name":          "reset",
		"subject":       "Password reset",
		"fromEmail":     "it@corp.example",
		"htmlContent":   "<html><body>Hi {{first_name}}</body></html>",
		"landingPageId": page.ID,
	}, &template))

	var campaign models.Campaign
	require.Equal(t, http.StatusCreated, f.admin(t, http.MethodPost, "/v1/campaigns", gin.H{
		"name":            "q3",
		"emailTemplateId": template.ID,
	}, &campaign))
	require.Equal(t, http.StatusCreated, f.admin(t, http.MethodPost, "/v1/campaigns/"+campaign.ID+"/target-groups", gin.H{
		"targetGroupId": group.ID,
	}, nil))

	var sent struct {
		Sent bool `json:"sent"`
	}
	require.Equal(t, http.StatusOK, f.admin(t, http.MethodPost, "/v1/campaigns/"+campaign.ID+"/send", nil, &sent))
	assert.False(t, sent.Sent, "relay is unreachable")
	return campaign.ID
}

func TestHealth(t *testing.T) {
	f := setup(t)
	w := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","scheduler":"sweep"}`, w.Body.String())
}

func TestAdmin_RequiresAPIKey(t *testing.T) {
	f := setup(t)

	w := f.do(httptest.NewRequest(http.MethodGet, "/v1/campaigns/x/report", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/campaigns/x/report", nil)
	req.Header.Set(APIKeyHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, f.do(req).Code)
}

func TestAdmin_UnknownCampaign(t *testing.T) {
	f := setup(t)
	assert.Equal(t, http.StatusNotFound, f.admin(t, http.MethodGet, "/v1/campaigns/nope/report", nil, nil))
	assert.Equal(t, http.StatusNotFound, f.admin(t, http.MethodPost, "/v1/campaigns/nope/send", nil, nil))
}

func TestAdmin_CampaignValidation(t *testing.T) {
	f := setup(t)
	assert.Equal(t, http.StatusBadRequest, f.admin(t, http.MethodPost, "/v1/campaigns", gin.H{
		"name":            "",
		"emailTemplateId": "missing",
	}, nil))
	assert.Equal(t, http.StatusBadRequest, f.admin(t, http.MethodPost, "/v1/target-groups", gin.H{
		"name":    "g",
		"targets": []gin.H{{"email": "not-an-email"}},
	}, nil))
}

func TestTracking_Pixel(t *testing.T) {
	f := setup(t)
	f.launch(t)
	open := f.tracker(t, enum.TrackerEmailOpen)

	w := f.do(httptest.NewRequest(http.MethodGet, "/tracker/"+open.ID+".png?src=mail", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Body.Bytes())

	stored := f.tracker(t, enum.TrackerEmailOpen)
	assert.Equal(t, enum.TrackerValueOpened, stored.Value)
	assert.Equal(t, 1, stored.Count)
	rows := f.store.TrackerInfos(open.ID)
	require.Len(t, rows, 1)
	assert.Contains(t, rows[0].Raw, "mail")

	assert.Equal(t, http.StatusNotFound, f.do(httptest.NewRequest(http.MethodGet, "/tracker/"+open.ID, nil)).Code)
	assert.Equal(t, http.StatusNotFound, f.do(httptest.NewRequest(http.MethodGet, "/tracker/unknown.png", nil)).Code)
}

func TestTracking_PixelPostMergesBody(t *testing.T) {
	f := setup(t)
	f.launch(t)
	open := f.tracker(t, enum.TrackerEmailOpen)

	req := httptest.NewRequest(http.MethodPost, "/tracker/"+open.ID+".png?src=mail", strings.NewReader(url.Values{"client": {"outlook"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := f.do(req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	rows := f.store.TrackerInfos(open.ID)
	require.Len(t, rows, 1)
	var raw map[string][]string
	require.NoError(t, json.Unmarshal([]byte(rows[0].Raw), &raw))
	assert.Equal(t, []string{"mail"}, raw["src"])
	assert.Equal(t, []string{"outlook"}, raw["client"])
	assert.Equal(t, enum.TrackerValueOpened, f.tracker(t, enum.TrackerEmailOpen).Value)
}

func TestTracking_LandingPagePostUnknownTracker(t *testing.T) {
	f := setup(t)
	req := httptest.NewRequest(http.MethodPost, "/landing-page/post/doesnotexist", strings.NewReader(url.Values{"user": {"alice"}}.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := f.do(req)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Header().Get("Location"))
}

func TestTracking_LandingPageFlow(t *testing.T) {
	f := setup(t)
	f.launch(t)
	lp := f.tracker(t, enum.TrackerLandingPageOpen)
	post := f.tracker(t, enum.TrackerLandingPagePost)

	w := f.do(httptest.NewRequest(http.MethodGet, "/lp/view/"+lp.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/landing-page/post/"+post.ID)
	assert.NotContains(t, w.Body.String(), "MERCURE_POST_TRACKER_ID")

	infos := httptest.NewRequest(http.MethodPost, "/tracker/"+lp.ID, strings.NewReader(url.Values{"infos": {`{"platform":"Linux"}`}}.Encode()))
	infos.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusOK, f.do(infos).Code)

	missing := httptest.NewRequest(http.MethodPost, "/tracker/"+lp.ID, nil)
	assert.Equal(t, http.StatusBadRequest, f.do(missing).Code)

	form := url.Values{"user": {"alice"}, "mercure_redirect_url": {"https://intranet.example.com/"}}
	submit := httptest.NewRequest(http.MethodPost, "/landing-page/post/"+post.ID, strings.NewReader(form.Encode()))
	submit.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = f.do(submit)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `name="user"`)
	assert.Contains(t, w.Body.String(), "https://intranet.example.com/")
	assert.Equal(t, enum.TrackerValueYes, f.tracker(t, enum.TrackerLandingPagePost).Value)

	assert.Equal(t, http.StatusNotFound, f.do(httptest.NewRequest(http.MethodGet, "/lp/view/unknown", nil)).Code)
}

func TestAdmin_Report(t *testing.T) {
	f := setup(t)
	campaignID := f.launch(t)

	var report struct {
		Launched bool                      `json:"launched"`
		Targets  int                       `json:"targets"`
		Trackers map[string]map[string]int `json:"trackers"`
	}
	require.Equal(t, http.StatusOK, f.admin(t, http.MethodGet, "/v1/campaigns/"+campaignID+"/report", nil, &report))
	assert.True(t, report.Launched)
	assert.Equal(t, 1, report.Targets)
	assert.Equal(t, 1, report.Trackers[enum.TrackerEmailSend.String()][enum.TrackerValueFail])
	assert.Equal(t, 1, report.Trackers[enum.TrackerEmailOpen.String()][enum.TrackerValueNotOpened])
}
