package listeners

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/customeros/mercure/dto"
	"github.com/customeros/mercure/internal/logger"
	"github.com/customeros/mercure/services/events"
)

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

func launchEvent(campaignID string) dto.Event {
	return dto.Event{
		Id:         "event_1",
		Type:       events.GetEventType[dto.LaunchCampaign](),
		CampaignId: campaignID,
		Data:       json.RawMessage(`{"campaignId":"` + campaignID + `","correlationId":"c-1"}`),
	}
}

func TestLaunchCampaignListener_Handle(t *testing.T) {
	delivery := new(mockDeliveryService)
	delivery.On("SendCampaign", mock.Anything, "cmp_1").Return(false, nil)

	l := NewLaunchCampaignListener(logger.NewNopLogger(), delivery)
	assert.Equal(t, events.QueueLaunchCampaign, l.GetQueueName())
	assert.Equal(t, "LaunchCampaign", l.GetEventType())

	assert.NoError(t, l.Handle(context.Background(), launchEvent("cmp_1")))
	delivery.AssertExpectations(t)
}

func TestLaunchCampaignListener_PropagatesDeliveryError(t *testing.T) {
	delivery := new(mockDeliveryService)
	delivery.On("SendCampaign", mock.Anything, "cmp_2").Return(false, errors.New("db down"))

	l := NewLaunchCampaignListener(logger.NewNopLogger(), delivery)
	assert.Error(t, l.Handle(context.Background(), launchEvent("cmp_2")))
}

func TestLaunchCampaignListener_RejectsForeignEvent(t *testing.T) {
	delivery := new(mockDeliveryService)
	l := NewLaunchCampaignListener(logger.NewNopLogger(), delivery)

	event := launchEvent("cmp_3")
	event.Type = "SendEmail"
	assert.Error(t, l.Handle(context.Background(), event))
	delivery.AssertNotCalled(t, "SendCampaign", mock.Anything, mock.Anything)
}
