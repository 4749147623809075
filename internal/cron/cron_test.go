package cron

import (
	"context"
	"errors"
	"testing"

	cronv3 "github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes"

	"github.com/customeros/mercure/config"
	cron_config "github.com/customeros/mercure/internal/cron/config"
	"github.com/customeros/mercure/internal/logger"
)

type mockKubernetesInterface struct {
	kubernetes.Interface
	mock.Mock
}

type mockDeliveryService struct {
	mock.Mock
}

func (m *mockDeliveryService) SendCampaign(ctx context.Context, campaignID string) (bool, error) {
	args := m.Called(ctx, campaignID)
	return args.Bool(0), args.Error(1)
}

func (m *mockDeliveryService) SendDueCampaigns(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockDeliveryService) ScheduleCampaign(ctx context.Context, campaignID string) error {
	args := m.Called(ctx, campaignID)
	return args.Error(0)
}

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func testConfig() *config.Config {
	return &config.Config{
		Logger: &logger.Config{LogLevel: "info"},
		CronConfig: &cron_config.Config{
			CronScheduleHeartbeat:        "0 * * * * *",
			CronScheduleSendDueCampaigns: "*/30 * * * * *",
		},
	}
}

func TestNewCronManager(t *testing.T) {
	cfg := testConfig()
	log := getLogger()
	k8s := &mockKubernetesInterface{}

	cm := NewCronManager(cfg, log, k8s, nil)

	assert.NotNil(t, cm)
	assert.Equal(t, cfg, cm.cfg)
	assert.Equal(t, log, cm.log)
	assert.Equal(t, k8s, cm.k8s)
	assert.NotNil(t, cm.jobIDs)
}

func TestCronManager_RegisterJobs(t *testing.T) {
	cm := NewCronManager(testConfig(), getLogger(), nil, new(mockDeliveryService))

	require.NoError(t, cm.registerJobs(cronv3.New(cronv3.WithSeconds())))
	assert.Len(t, cm.jobIDs, 2)
	assert.Contains(t, cm.jobIDs, JobHeartbeat)
	assert.Contains(t, cm.jobIDs, JobSendDueCampaigns)
}

func TestCronManager_RegisterJobs_WithoutDelivery(t *testing.T) {
	cm := NewCronManager(testConfig(), getLogger(), nil, nil)

	require.NoError(t, cm.registerJobs(cronv3.New(cronv3.WithSeconds())))
	assert.Len(t, cm.jobIDs, 1)
}

func TestCronManager_RegisterJobs_BadSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.CronConfig.CronScheduleSendDueCampaigns = "every minute"
	cm := NewCronManager(cfg, getLogger(), nil, new(mockDeliveryService))

	assert.Error(t, cm.registerJobs(cronv3.New(cronv3.WithSeconds())))
}

func TestCronManager_SendDueCampaigns(t *testing.T) {
	delivery := new(mockDeliveryService)
	delivery.On("SendDueCampaigns", mock.Anything).Return(2, nil).Once()
	cm := NewCronManager(testConfig(), getLogger(), nil, delivery)

	require.NoError(t, cm.sendDueCampaigns(context.Background()))
	delivery.AssertExpectations(t)
}

func TestCronManager_WrapSerialisesDeliveryGroup(t *testing.T) {
	delivery := new(mockDeliveryService)
	delivery.On("SendDueCampaigns", mock.Anything).Return(0, errors.New("db down")).Once()

	cm := NewCronManager(testConfig(), getLogger(), nil, delivery)
	var sendJob job
	for _, j := range cm.jobs() {
		if j.name == JobSendDueCampaigns {
			sendJob = j
		}
	}
	require.Equal(t, GroupDelivery, sendJob.group)

	// a failing run is logged and the lock released
	cm.wrap(sendJob)()
	assert.True(t, groupLocks[GroupDelivery].TryLock())
	groupLocks[GroupDelivery].Unlock()
	delivery.AssertExpectations(t)
}

func TestCronManager_StartLocal(t *testing.T) {
	cm := NewCronManager(testConfig(), getLogger(), nil, nil)
	require.NoError(t, cm.Start("pod", "default"))
	first := cm.cron
	require.NotNil(t, first)

	require.NoError(t, cm.StartCron())
	assert.Same(t, first, cm.cron)

	cm.Stop()
	assert.Nil(t, cm.cron)
}

func TestCronManager_Stop(t *testing.T) {
	cm := NewCronManager(testConfig(), getLogger(), &mockKubernetesInterface{}, nil)

	mockCron := cronv3.New()
	mockCron.Start()
	cm.cron = mockCron

	cm.Stop()
	// a second stop, as after losing leadership, must not panic
	cm.Stop()

	select {
	case <-cm.stopCh:
	default:
		t.Error("Stop channel was not closed")
	}
}
