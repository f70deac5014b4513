package messaging

import (
	"encoding/json"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"tta-server/internal/models"
)

// UpdateForwarder доставляет обновление подключенному клиенту.
// Реализуется менеджером WebSocket соединений.
type UpdateForwarder interface {
	SendToUser(userID string, message []byte) bool
}

// ClientUpdateConsumer читает очередь client_updates и пересылает
// сообщения в открытые WebSocket соединения.
type ClientUpdateConsumer struct {
	conn        *amqp.Connection
	forwarder   UpdateForwarder
	queueName   string
	stopChannel chan struct{}
}

// NewClientUpdateConsumer создает консьюмера обновлений клиента.
func NewClientUpdateConsumer(conn *amqp.Connection, forwarder UpdateForwarder, queueName string) (*ClientUpdateConsumer, error) {
	if forwarder == nil {
		return nil, fmt.Errorf("client update consumer: forwarder не может быть nil")
	}
	return &ClientUpdateConsumer{
		conn:        conn,
		forwarder:   forwarder,
		queueName:   queueName,
		stopChannel: make(chan struct{}),
	}, nil
}

// StartConsuming начинает прослушивание очереди обновлений клиента.
func (c *ClientUpdateConsumer) StartConsuming() error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("client update consumer: не удалось открыть канал RabbitMQ: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(c.queueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("client update consumer: не удалось объявить очередь '%s': %w", c.queueName, err)
	}

	msgs, err := ch.Consume(
		q.Name,
		"client-update-consumer", // consumer tag
		true,                     // auto-ack: доставка обновлений best-effort
		false,                    // exclusive
		false,                    // no-local
		false,                    // no-wait
		nil,                      // args
	)
	if err != nil {
		return fmt.Errorf("client update consumer: не удалось зарегистрировать консьюмера: %w", err)
	}
	log.Printf("ClientUpdateConsumer: запущен, ожидание обновлений из очереди '%s'...", q.Name)

	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				log.Println("ClientUpdateConsumer: канал сообщений RabbitMQ закрыт")
				return nil
			}

			var update models.ClientSessionUpdate
			if err := json.Unmarshal(d.Body, &update); err != nil {
				log.Printf("ClientUpdateConsumer: не удалось распарсить ClientSessionUpdate: %v", err)
				continue
			}

			// Если клиент не подключен, обновление теряется: клиент
			// получит актуальное состояние при следующем GET сцены.
			if delivered := c.forwarder.SendToUser(update.PlayerID.String(), d.Body); !delivered {
				log.Printf("ClientUpdateConsumer: клиент %s не подключен, обновление %s пропущено", update.PlayerID, update.Type)
			}

		case <-c.stopChannel:
			log.Println("ClientUpdateConsumer: получен сигнал остановки")
			return nil
		}
	}
}

// Stop останавливает консьюмер.
func (c *ClientUpdateConsumer) Stop() {
	log.Println("ClientUpdateConsumer: остановка...")
	close(c.stopChannel)
}
