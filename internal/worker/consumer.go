package worker

import (
	"encoding/json"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"tta-server/internal/messaging"
)

// TaskConsumer отвечает за получение задач генерации из RabbitMQ.
type TaskConsumer struct {
	conn        *amqp.Connection
	handler     *TaskHandler
	queueName   string
	stopChannel chan struct{}
}

// NewTaskConsumer создает нового консьюмера задач генерации.
func NewTaskConsumer(conn *amqp.Connection, handler *TaskHandler, queueName string) (*TaskConsumer, error) {
	if handler == nil {
		return nil, fmt.Errorf("task consumer: handler не может быть nil")
	}
	return &TaskConsumer{
		conn:        conn,
		handler:     handler,
		queueName:   queueName,
		stopChannel: make(chan struct{}),
	}, nil
}

// StartConsuming начинает прослушивание очереди задач. Блокирует до Stop
// или закрытия канала сообщений.
func (c *TaskConsumer) StartConsuming() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("task consumer: не удалось открыть канал RabbitMQ: %w", err)
	}
	defer ch.Close()

	if err := c.declareTopology(ch); err != nil {
		return err
	}

	// Генерация долгая, берем строго по одной задаче.
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("task consumer: не удалось установить QoS: %w", err)
	}

	msgs, err := ch.Consume(
		c.queueName,
		"narrative-task-consumer", // consumer tag
		false,                     // auto-ack = false
		false,                     // exclusive
		false,                     // no-local
		false,                     // no-wait
		nil,                       // args
	)
	if err != nil {
		return fmt.Errorf("task consumer: не удалось зарегистрировать консьюмера: %w", err)
	}
	log.Printf("TaskConsumer: запущен, ожидание задач из очереди '%s'...", c.queueName)

	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				log.Println("TaskConsumer: канал сообщений RabbitMQ закрыт")
				return nil
			}

			var payload messaging.NarrativeTaskPayload
			if err := json.Unmarshal(d.Body, &payload); err != nil {
				log.Printf("TaskConsumer: не удалось распарсить NarrativeTaskPayload (DeliveryTag: %d): %v. Nack без requeue.", d.DeliveryTag, err)
				MetricsIncrementTaskFailed("invalid_payload")
				_ = d.Nack(false, false)
				continue
			}

			// Handle сам публикует error-результат при неудаче генерации.
			// Ошибка здесь значит, что результат не опубликован, - Nack в DLQ,
			// requeue не делаем: повторная обработка упрется в ту же проблему.
			if err := c.handler.Handle(payload); err != nil {
				log.Printf("TaskConsumer: задача TaskID %s не обработана: %v. Nack в DLQ.", payload.TaskID, err)
				_ = d.Nack(false, false)
				continue
			}

			_ = d.Ack(false)

		case <-c.stopChannel:
			log.Println("TaskConsumer: получен сигнал остановки")
			return nil
		}
	}
}

// declareTopology объявляет очередь задач и ее DLX. Параметры очереди
// должны совпадать с паблишером в gameplay-сервисе.
func (c *TaskConsumer) declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(
		messaging.NarrativeTaskDLX,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("task consumer: не удалось объявить DLX '%s': %w", messaging.NarrativeTaskDLX, err)
	}

	dlqName := c.queueName + "_dlq"
	if _, err := ch.QueueDeclare(dlqName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("task consumer: не удалось объявить DLQ '%s': %w", dlqName, err)
	}
	if err := ch.QueueBind(dlqName, messaging.NarrativeTaskDLQRouting, messaging.NarrativeTaskDLX, false, nil); err != nil {
		return fmt.Errorf("task consumer: не удалось привязать DLQ '%s': %w", dlqName, err)
	}

	args := amqp.Table{
		"x-queue-mode":              "lazy",
		"x-dead-letter-exchange":    messaging.NarrativeTaskDLX,
		"x-dead-letter-routing-key": messaging.NarrativeTaskDLQRouting,
	}
	if _, err := ch.QueueDeclare(
		c.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		args,
	); err != nil {
		return fmt.Errorf("task consumer: не удалось объявить очередь '%s': %w", c.queueName, err)
	}

	return nil
}

// Stop останавливает консьюмер.
func (c *TaskConsumer) Stop() {
	log.Println("TaskConsumer: остановка...")
	close(c.stopChannel)
}
