package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mercure/dto"
	"github.com/customeros/mercure/internal/logger"
)

type mockLaunchPublisher struct {
	mock.Mock
}

func (m *mockLaunchPublisher) PublishLaunchCampaign(ctx context.Context, message dto.LaunchCampaign, delay time.Duration) error {
	args := m.Called(ctx, message, delay)
	return args.Error(0)
}

func TestRabbitMQScheduler_ScheduleAt(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	at := now.Add(90 * time.Minute)

	publisher := new(mockLaunchPublisher)
	publisher.On("PublishLaunchCampaign", mock.Anything, mock.MatchedBy(func(m dto.LaunchCampaign) bool {
		return m.CampaignID == "cmp_1" && m.SendAt.Equal(at) && m.CorrelationID != ""
	}), 90*time.Minute).Return(nil)

	s := NewRabbitMQScheduler(publisher)
	s.now = func() time.Time { return now }

	require.NoError(t, s.ScheduleAt(context.Background(), at, "cmp_1"))
	publisher.AssertExpectations(t)
}

func TestSweepScheduler(t *testing.T) {
	assert.NoError(t, NewSweepScheduler(logger.NewNopLogger()).ScheduleAt(context.Background(), time.Now(), "cmp_1"))
}

func TestExpiration(t *testing.T) {
	assert.Equal(t, "1500", expiration(1500*time.Millisecond))
	assert.Equal(t, "1", expiration(time.Microsecond))
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, nextBackoff(time.Second, 30*time.Second))
	assert.Equal(t, 30*time.Second, nextBackoff(20*time.Second, 30*time.Second))
}

func TestTopology_DelayQueueFeedsLaunchQueue(t *testing.T) {
	queues := map[string]queueDecl{}
	for _, q := range topology(time.Hour) {
		queues[q.name] = q
	}
	require.Len(t, queues, 3)

	delay := queues[QueueLaunchCampaignDelay]
	assert.Empty(t, delay.exchange)
	assert.Equal(t, ExchangeMercureDirect, delay.args["x-dead-letter-exchange"])
	assert.Equal(t, RoutingKeyLaunchCampaign, delay.args["x-dead-letter-routing-key"])

	launch := queues[QueueLaunchCampaign]
	assert.Equal(t, ExchangeMercureDirect, launch.exchange)
	assert.Equal(t, RoutingKeyLaunchCampaign, launch.routingKey)
	assert.Equal(t, ExchangeDeadLetter, launch.args["x-dead-letter-exchange"])
	assert.Equal(t, int64(3600000), launch.args["x-message-ttl"])

	assert.Equal(t, ExchangeDeadLetter, queues[DLQLaunchCampaign].exchange)
}

func TestNewEvent(t *testing.T) {
	span := opentracing.NoopTracer{}.StartSpan("test")
	event, err := newEvent(span, "cmp_1", &dto.LaunchCampaign{CampaignID: "cmp_1"})
	require.NoError(t, err)

	assert.Equal(t, "LaunchCampaign", event.Type)
	assert.Equal(t, "cmp_1", event.CampaignId)
	assert.Equal(t, AppSource, event.Metadata.AppSource)
	assert.False(t, event.Metadata.PublishedAt.IsZero())
	assert.True(t, strings.HasPrefix(event.Id, "event_"))
	assert.JSONEq(t, `{"campaignId":"cmp_1","sendAt":"0001-01-01T00:00:00Z","correlationId":""}`, string(event.Data))
}

func TestValidateAndDecodeAfterBrokerRoundTrip(t *testing.T) {
	base := NewBaseEventListener(logger.NewNopLogger(), GetEventType[dto.LaunchCampaign](), QueueLaunchCampaign)
	span := opentracing.NoopTracer{}.StartSpan("test")
	sendAt := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	published, err := newEvent(span, "cmp_1", dto.LaunchCampaign{CampaignID: "cmp_1", SendAt: sendAt})
	require.NoError(t, err)

	body, err := json.Marshal(published)
	require.NoError(t, err)
	var received dto.Event
	require.NoError(t, json.Unmarshal(body, &received))

	validated, err := base.ValidateBaseEvent(context.Background(), &received)
	require.NoError(t, err)

	launch, err := DecodeEventData[dto.LaunchCampaign](context.Background(), validated)
	require.NoError(t, err)
	assert.Equal(t, "cmp_1", launch.CampaignID)
	assert.True(t, sendAt.Equal(launch.SendAt))
}

func TestValidateBaseEvent_Rejects(t *testing.T) {
	base := NewBaseEventListener(logger.NewNopLogger(), "LaunchCampaign", QueueLaunchCampaign)

	_, err := base.ValidateBaseEvent(context.Background(), "not an event")
	assert.Error(t, err)

	_, err = base.ValidateBaseEvent(context.Background(), dto.Event{CampaignId: "x", Type: "LaunchCampaign"})
	assert.ErrorContains(t, err, "data is nil")

	_, err = base.ValidateBaseEvent(context.Background(), dto.Event{Type: "LaunchCampaign", Data: json.RawMessage(`{}`)})
	assert.ErrorContains(t, err, "campaign id is empty")

	_, err = base.ValidateBaseEvent(context.Background(), dto.Event{CampaignId: "x", Type: "Other", Data: json.RawMessage(`{}`)})
	assert.ErrorContains(t, err, "unexpected event type")
}

type recordingListener struct {
	BaseEventListener
	handled []dto.Event
	err     error
}

func (l *recordingListener) Handle(_ context.Context, baseEvent any) error {
	l.handled = append(l.handled, baseEvent.(dto.Event))
	return l.err
}

func TestSubscriberDispatch(t *testing.T) {
	log := logger.NewNopLogger()
	listener := &recordingListener{BaseEventListener: NewBaseEventListener(log, "LaunchCampaign", QueueLaunchCampaign)}
	subscriber := newSubscriber(nil, log, *DefaultConfig())
	subscriber.RegisterListener(listener)

	body := []byte(`{"id":"event_1","type":"LaunchCampaign","campaignId":"cmp_1","data":{"campaignId":"cmp_1"},"metadata":{"appSource":"mercure"}}`)

	require.NoError(t, subscriber.dispatch(context.Background(), body, QueueLaunchCampaign))
	require.Len(t, listener.handled, 1)
	assert.Equal(t, "cmp_1", listener.handled[0].CampaignId)

	// other queue, acknowledged without handling
	require.NoError(t, subscriber.dispatch(context.Background(), body, QueueLaunchCampaignDelay))
	assert.Len(t, listener.handled, 1)

	// unknown type
	require.NoError(t, subscriber.dispatch(context.Background(), []byte(`{"type":"Unknown"}`), QueueLaunchCampaign))

	assert.Error(t, subscriber.dispatch(context.Background(), []byte(`not json`), QueueLaunchCampaign))

	listener.err = errors.New("send failed")
	assert.ErrorContains(t, subscriber.dispatch(context.Background(), body, QueueLaunchCampaign), "send failed")
}

type fakeAcknowledger struct {
	failures int
	acks     int
	nacks    int
}

func (f *fakeAcknowledger) Ack(bool) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("channel busy")
	}
	f.acks++
	return nil
}

func (f *fakeAcknowledger) Nack(bool, bool) error {
	f.nacks++
	return nil
}

func TestSettle(t *testing.T) {
	d := &fakeAcknowledger{failures: 2}
	settle(d, true, logger.NewNopLogger())
	assert.Equal(t, 1, d.acks)

	settle(d, false, logger.NewNopLogger())
	assert.Equal(t, 1, d.nacks)
}
