package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"

	"tta-server/internal/config"
	"tta-server/internal/generation"
	"tta-server/internal/messaging"
	"tta-server/internal/worker"
)

func main() {
	_ = godotenv.Load()
	log.Println("Запуск Narrative Generation Worker...")

	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// Метрики: Pushgateway опционален, без него воркер работает
	if cfg.PushgatewayURL != "" {
		if err := worker.InitMetricsPusher(cfg.PushgatewayURL); err != nil {
			log.Printf("[WARN] Не удалось инициализировать Pushgateway: %v. Метрики не будут пушиться.", err)
		} else {
			worker.StartMetricsPusher(cfg.MetricsPushInterval)
			defer worker.CleanupMetrics()
		}
	}

	log.Println("Инициализация AI клиента...")
	aiClient, err := generation.NewAIClient(cfg)
	if err != nil {
		log.Fatalf("Ошибка инициализации AI клиента: %v", err)
	}

	conn, err := connectRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Не удалось подключиться к RabbitMQ: %v", err)
	}
	defer conn.Close()
	log.Println("Успешное подключение к RabbitMQ")

	resultPublisher, err := messaging.NewRabbitMQResultPublisher(conn, cfg.InternalUpdatesQueueName)
	if err != nil {
		log.Fatalf("Не удалось создать ResultPublisher: %v", err)
	}

	promptBuilder := generation.NewPromptBuilder(cfg.MaxPromptTokens)
	taskHandler := worker.NewTaskHandler(cfg, aiClient, promptBuilder, resultPublisher)

	consumer, err := worker.NewTaskConsumer(conn, taskHandler, cfg.NarrativeTaskQueue)
	if err != nil {
		log.Fatalf("Не удалось создать консьюмер задач: %v", err)
	}

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.StartConsuming(); err != nil {
			log.Printf("Консьюмер задач завершился с ошибкой: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Получен сигнал завершения, остановка воркера...")

	consumer.Stop()

	// Даем текущей задаче шанс довершиться
	select {
	case <-consumerDone:
	case <-time.After(30 * time.Second):
		log.Println("[WARN] Консьюмер не остановился за 30s, выходим принудительно")
	}

	log.Println("Narrative Generation Worker успешно остановлен")
}

// connectRabbitMQ пытается подключиться к RabbitMQ с несколькими попытками
func connectRabbitMQ(url string) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	maxRetries := 5
	retryDelay := 5 * time.Second
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		log.Printf("Не удалось подключиться к RabbitMQ (попытка %d/%d): %v. Повтор через %v...",
			i+1, maxRetries, err, retryDelay)
		time.Sleep(retryDelay)
	}
	return nil, err
}
