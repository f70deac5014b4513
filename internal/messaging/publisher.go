package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"tta-server/internal/models"
)

// TaskPublisher defines the interface for publishing tasks to the generation queue.
type TaskPublisher interface {
	PublishNarrativeTask(ctx context.Context, payload NarrativeTaskPayload) error
}

// ResultPublisher defines the interface for publishing generation results (used by the worker).
type ResultPublisher interface {
	PublishNarrativeResult(ctx context.Context, payload NarrativeResultPayload) error
}

// ClientUpdatePublisher defines the interface for publishing updates to the client.
type ClientUpdatePublisher interface {
	PublishClientUpdate(ctx context.Context, payload models.ClientSessionUpdate) error
}

// rabbitMQPublisher implements the publisher interfaces for RabbitMQ.
type rabbitMQPublisher struct {
	channel   *amqp.Channel
	queueName string
	appID     string
}

// NewRabbitMQTaskPublisher creates a new instance of TaskPublisher.
// Паблишер объявляет очередь задач сам, чтобы система была устойчива
// к порядку запуска сервисов. Параметры очереди (включая DLX) должны
// совпадать с параметрами консьюмера в воркере.
func NewRabbitMQTaskPublisher(conn *amqp.Connection, queueName string) (TaskPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("task publisher: не удалось открыть канал: %w", err)
	}
	args := amqp.Table{
		"x-queue-mode":              "lazy",
		"x-dead-letter-exchange":    NarrativeTaskDLX,
		"x-dead-letter-routing-key": NarrativeTaskDLQRouting,
	}
	_, err = ch.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		args,
	)
	if err != nil {
		log.Printf("TaskPublisher ERROR: Не удалось объявить очередь '%s': %v", queueName, err)
		ch.Close()
		return nil, fmt.Errorf("task publisher: не удалось объявить очередь '%s': %w", queueName, err)
	}
	log.Printf("TaskPublisher: Очередь '%s' успешно объявлена/найдена.", queueName)
	return &rabbitMQPublisher{channel: ch, queueName: queueName, appID: "gameplay-loop"}, nil
}

// NewRabbitMQResultPublisher creates a new instance of ResultPublisher for the worker.
func NewRabbitMQResultPublisher(conn *amqp.Connection, queueName string) (ResultPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("result publisher: не удалось открыть канал: %w", err)
	}
	_, err = ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("result publisher: не удалось объявить очередь '%s': %w", queueName, err)
	}
	return &rabbitMQPublisher{channel: ch, queueName: queueName, appID: "narrative-worker"}, nil
}

// NewRabbitMQClientUpdatePublisher creates a new instance of ClientUpdatePublisher.
func NewRabbitMQClientUpdatePublisher(conn *amqp.Connection, queueName string) (ClientUpdatePublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("client update publisher: не удалось открыть канал: %w", err)
	}
	_, err = ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("client update publisher: не удалось объявить очередь '%s': %w", queueName, err)
	}
	return &rabbitMQPublisher{channel: ch, queueName: queueName, appID: "gameplay-loop"}, nil
}

// PublishNarrativeTask publishes a scene generation task.
func (p *rabbitMQPublisher) PublishNarrativeTask(ctx context.Context, payload NarrativeTaskPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[TaskID: %s][SessionID: %s] Ошибка сериализации NarrativeTaskPayload: %v", payload.TaskID, payload.SessionID, err)
		return fmt.Errorf("ошибка сериализации задачи генерации для TaskID %s: %w", payload.TaskID, err)
	}

	if err := p.publishMessage(ctx, body); err != nil {
		log.Printf("[TaskID: %s][SessionID: %s] Ошибка публикации NarrativeTask: %v", payload.TaskID, payload.SessionID, err)
		return fmt.Errorf("ошибка публикации задачи генерации для TaskID %s: %w", payload.TaskID, err)
	}
	return nil
}

// PublishNarrativeResult publishes a generation result back to the gameplay service.
func (p *rabbitMQPublisher) PublishNarrativeResult(ctx context.Context, payload NarrativeResultPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[TaskID: %s] Ошибка сериализации NarrativeResultPayload: %v", payload.TaskID, err)
		return fmt.Errorf("ошибка сериализации результата генерации для TaskID %s: %w", payload.TaskID, err)
	}

	if err := p.publishMessage(ctx, body); err != nil {
		log.Printf("[TaskID: %s] Ошибка публикации NarrativeResult: %v", payload.TaskID, err)
		return fmt.Errorf("ошибка публикации результата генерации для TaskID %s: %w", payload.TaskID, err)
	}
	return nil
}

// PublishClientUpdate publishes an update to the client.
func (p *rabbitMQPublisher) PublishClientUpdate(ctx context.Context, payload models.ClientSessionUpdate) error {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Publisher: Ошибка маршалинга ClientSessionUpdate: %v", err)
		return fmt.Errorf("ошибка сериализации обновления клиента: %w", err)
	}

	if err := p.publishMessage(ctx, body); err != nil {
		log.Printf("Publisher: Ошибка публикации ClientSessionUpdate для SessionID %s: %v", payload.SessionID, err)
		return fmt.Errorf("ошибка публикации обновления клиента: %w", err)
	}
	return nil
}

// publishMessage публикует сообщение в очередь с retry.
func (p *rabbitMQPublisher) publishMessage(ctx context.Context, body []byte) error {
	if p.channel == nil {
		log.Println("Ошибка публикации: канал RabbitMQ не инициализирован (nil)")
		return errors.New("канал RabbitMQ не инициализирован")
	}
	// Устанавливаем таймаут на публикацию
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var err error
	// Попытка публикации с retry до 3 раз
	for attempt := 1; attempt <= 3; attempt++ {
		err = p.channel.PublishWithContext(ctx,
			"",          // exchange (используем default)
			p.queueName, // routing key (имя очереди)
			false,       // mandatory
			false,       // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Body:         body,
				Timestamp:    time.Now(),
				AppId:        p.appID,
			},
		)
		if err == nil {
			break
		}
		log.Printf("Ошибка публикации (attempt %d) в очередь '%s': %v", attempt, p.queueName, err)
		time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("ошибка публикации в очередь %s после retries: %w", p.queueName, err)
	}
	return nil
}
