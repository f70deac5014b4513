package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type resultProcessorMock struct {
	mock.Mock
}

func (m *resultProcessorMock) ProcessNarrativeResult(ctx context.Context, payload NarrativeResultPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

// ackJournal записывает порядок подтверждений брокеру.
type ackJournal struct {
	events  *[]string
	requeue []bool
}

func (a *ackJournal) Ack(tag uint64, multiple bool) error {
	*a.events = append(*a.events, "ack")
	return nil
}

func (a *ackJournal) Nack(tag uint64, multiple bool, requeue bool) error {
	*a.events = append(*a.events, "nack")
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *ackJournal) Reject(tag uint64, requeue bool) error {
	*a.events = append(*a.events, "reject")
	return nil
}

func resultDelivery(t *testing.T, journal *ackJournal, payload NarrativeResultPayload) amqp.Delivery {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: journal, Body: body, DeliveryTag: 1}
}

func TestResultConsumerHandleDelivery(t *testing.T) {
	payload := NarrativeResultPayload{
		TaskID:           "task-1",
		SessionID:        "11111111-2222-3333-4444-555555555555",
		Status:           ResultStatusSuccess,
		GeneratedContent: `{"n":"..."}`,
	}

	t.Run("Ack follows processing", func(t *testing.T) {
		var events []string
		processor := new(resultProcessorMock)
		processor.On("ProcessNarrativeResult", mock.Anything, payload).
			Run(func(mock.Arguments) { events = append(events, "process") }).
			Return(nil).Once()

		consumer, err := NewResultConsumer(nil, processor, "internal_updates")
		require.NoError(t, err)

		consumer.handleDelivery(resultDelivery(t, &ackJournal{events: &events}, payload))

		// Подтверждение строго после обработки: падение между ними
		// ведет к повторной доставке, а не к потерянному результату.
		assert.Equal(t, []string{"process", "ack"}, events)
		processor.AssertExpectations(t)
	})

	t.Run("Processing error still acks without requeue", func(t *testing.T) {
		var events []string
		processor := new(resultProcessorMock)
		processor.On("ProcessNarrativeResult", mock.Anything, payload).
			Run(func(mock.Arguments) { events = append(events, "process") }).
			Return(errors.New("сцена не сохранилась")).Once()

		consumer, err := NewResultConsumer(nil, processor, "internal_updates")
		require.NoError(t, err)

		consumer.handleDelivery(resultDelivery(t, &ackJournal{events: &events}, payload))

		assert.Equal(t, []string{"process", "ack"}, events)
		processor.AssertExpectations(t)
	})

	t.Run("Malformed payload nacks without requeue and skips processing", func(t *testing.T) {
		var events []string
		journal := &ackJournal{events: &events}
		processor := new(resultProcessorMock)

		consumer, err := NewResultConsumer(nil, processor, "internal_updates")
		require.NoError(t, err)

		consumer.handleDelivery(amqp.Delivery{Acknowledger: journal, Body: []byte("{не json"), DeliveryTag: 1})

		assert.Equal(t, []string{"nack"}, events)
		require.Len(t, journal.requeue, 1)
		assert.False(t, journal.requeue[0])
		processor.AssertNotCalled(t, "ProcessNarrativeResult", mock.Anything, mock.Anything)
	})
}
