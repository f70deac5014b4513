package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ResultProcessor обрабатывает результат генерации сцены.
// Реализуется сервисным слоем (GameplayLoopService).
type ResultProcessor interface {
	ProcessNarrativeResult(ctx context.Context, payload NarrativeResultPayload) error
}

// ResultConsumer отвечает за получение результатов генерации из RabbitMQ.
type ResultConsumer struct {
	conn        *amqp.Connection
	processor   ResultProcessor
	queueName   string
	stopChannel chan struct{}
}

// NewResultConsumer создает нового консьюмера результатов генерации.
func NewResultConsumer(conn *amqp.Connection, processor ResultProcessor, queueName string) (*ResultConsumer, error) {
	if processor == nil {
		return nil, fmt.Errorf("result consumer: processor не может быть nil")
	}
	return &ResultConsumer{
		conn:        conn,
		processor:   processor,
		queueName:   queueName,
		stopChannel: make(chan struct{}),
	}, nil
}

// StartConsuming начинает прослушивание очереди результатов.
func (c *ResultConsumer) StartConsuming() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("result consumer: не удалось открыть канал RabbitMQ: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		c.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("result consumer: не удалось объявить очередь '%s': %w", c.queueName, err)
	}

	err = ch.Qos(1, 0, false) // Обрабатываем по одному сообщению
	if err != nil {
		return fmt.Errorf("result consumer: не удалось установить QoS: %w", err)
	}

	msgs, err := ch.Consume(
		q.Name,
		"gameplay-result-consumer", // consumer tag
		false,                      // auto-ack = false
		false,                      // exclusive
		false,                      // no-local
		false,                      // no-wait
		nil,                        // args
	)
	if err != nil {
		return fmt.Errorf("result consumer: не удалось зарегистрировать консьюмера: %w", err)
	}
	log.Printf("ResultConsumer: запущен, ожидание результатов из очереди '%s'...", q.Name)

	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				log.Println("ResultConsumer: канал сообщений RabbitMQ закрыт")
				return nil
			}

			c.handleDelivery(d)

		case <-c.stopChannel:
			log.Println("ResultConsumer: получен сигнал остановки")
			return nil
		}
	}
}

// handleDelivery обрабатывает результат ДО подтверждения: если сервис
// упадет между обработкой и Ack, брокер доставит сообщение повторно,
// а повторную обработку отсечет статус сессии (at-least-once).
func (c *ResultConsumer) handleDelivery(d amqp.Delivery) {
	var payload NarrativeResultPayload
	if err := json.Unmarshal(d.Body, &payload); err != nil {
		log.Printf("ResultConsumer: не удалось распарсить NarrativeResultPayload (DeliveryTag: %d): %v. Nack без requeue.", d.DeliveryTag, err)
		_ = d.Nack(false, false)
		return
	}

	if err := c.processor.ProcessNarrativeResult(context.Background(), payload); err != nil {
		// Без requeue: сессия уже переведена в error, игрок доберет
		// сцену через retry. Повторная доставка упрется в ту же ошибку.
		log.Printf("ResultConsumer: ошибка обработки результата TaskID %s (SessionID %s): %v", payload.TaskID, payload.SessionID, err)
	}

	_ = d.Ack(false)
}

// Stop останавливает консьюмер.
func (c *ResultConsumer) Stop() {
	log.Println("ResultConsumer: остановка...")
	close(c.stopChannel)
}
