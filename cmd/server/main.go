package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"tta-server/internal/authutils"
	"tta-server/internal/config"
	"tta-server/internal/handler"
	"tta-server/internal/logger"
	"tta-server/internal/messaging"
	"tta-server/internal/middleware"
	"tta-server/internal/repository"
	"tta-server/internal/service"
)

func main() {
	_ = godotenv.Load()
	log.Println("Запуск Gameplay Loop Service...")

	// Конфиг грузим ДО инициализации логгера
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level: cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("Не удалось инициализировать логгер: %v", err)
	}
	defer zapLogger.Sync()
	zapLogger.Info("Logger initialized", zap.String("logLevel", cfg.LogLevel))

	// Подключение к Neo4j
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	driver, err := repository.NewNeo4jDriver(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	cancel()
	if err != nil {
		zapLogger.Fatal("Не удалось подключиться к Neo4j", zap.Error(err))
	}
	defer driver.Close(context.Background())
	zapLogger.Info("Успешное подключение к Neo4j")

	// Констрейнты и индексы графа
	ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
	err = repository.EnsureSchema(ctx, driver, zapLogger)
	cancel()
	if err != nil {
		zapLogger.Fatal("Не удалось создать схему Neo4j", zap.Error(err))
	}

	// Подключение к Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	err = redisClient.Ping(ctx).Err()
	cancel()
	if err != nil {
		zapLogger.Fatal("Не удалось подключиться к Redis", zap.Error(err))
	}
	defer redisClient.Close()
	zapLogger.Info("Успешное подключение к Redis")

	// Подключение к RabbitMQ
	rabbitConn, err := connectRabbitMQ(cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("Не удалось подключиться к RabbitMQ", zap.Error(err))
	}
	defer rabbitConn.Close()
	zapLogger.Info("Успешное подключение к RabbitMQ")

	// Репозитории и кэш
	sessionRepo := repository.NewNeo4jSessionRepository(driver, zapLogger)
	sceneRepo := repository.NewNeo4jSceneRepository(driver, zapLogger)
	consequenceRepo := repository.NewNeo4jConsequenceRepository(driver, zapLogger)
	sessionCache := repository.NewRedisSessionCache(redisClient, cfg.SessionCacheTTL, zapLogger)

	// Паблишеры
	taskPublisher, err := messaging.NewRabbitMQTaskPublisher(rabbitConn, cfg.NarrativeTaskQueue)
	if err != nil {
		zapLogger.Fatal("Не удалось создать TaskPublisher", zap.Error(err))
	}
	clientUpdatePublisher, err := messaging.NewRabbitMQClientUpdatePublisher(rabbitConn, cfg.ClientUpdatesQueueName)
	if err != nil {
		zapLogger.Fatal("Не удалось создать ClientUpdatePublisher", zap.Error(err))
	}

	// Подсистемы игрового цикла
	narrative := service.NewNarrativeEngine(zapLogger)
	choices := service.NewChoiceArchitectureManager(zapLogger)
	consequences := service.NewConsequenceSystem(zapLogger)
	difficulty := service.NewAdaptiveDifficultyEngine(zapLogger)
	safety := service.NewEmotionalSafetySystem(sessionCache, zapLogger)

	gameplayService := service.NewGameplayLoopService(
		sessionRepo,
		sceneRepo,
		consequenceRepo,
		sessionCache,
		taskPublisher,
		clientUpdatePublisher,
		narrative,
		choices,
		consequences,
		difficulty,
		safety,
		cfg,
		zapLogger,
	)
	gameplayHandler := handler.NewGameplayHandler(gameplayService, zapLogger, cfg.JWTSecret)

	// Консьюмер результатов генерации
	resultConsumer, err := messaging.NewResultConsumer(rabbitConn, gameplayService, cfg.InternalUpdatesQueueName)
	if err != nil {
		zapLogger.Fatal("Не удалось создать консьюмер результатов генерации", zap.Error(err))
	}
	go func() {
		zapLogger.Info("Запуск горутины консьюмера результатов генерации...")
		if err := resultConsumer.StartConsuming(); err != nil {
			zapLogger.Error("Консьюмер результатов завершился с ошибкой", zap.Error(err))
		}
		zapLogger.Info("Горутина консьюмера результатов завершена.")
	}()

	// WebSocket и консьюмер клиентских обновлений
	connManager := handler.NewConnectionManager(zapLogger)
	wsVerifier, err := authutils.NewJWTVerifier(cfg.JWTSecret, zapLogger)
	if err != nil {
		zapLogger.Fatal("Не удалось создать JWT верификатор для WebSocket", zap.Error(err))
	}
	wsHandler := handler.NewWebSocketHandler(connManager, wsVerifier, zapLogger)

	clientUpdateConsumer, err := messaging.NewClientUpdateConsumer(rabbitConn, connManager, cfg.ClientUpdatesQueueName)
	if err != nil {
		zapLogger.Fatal("Не удалось создать консьюмер клиентских обновлений", zap.Error(err))
	}
	go func() {
		zapLogger.Info("Запуск горутины консьюмера клиентских обновлений...")
		if err := clientUpdateConsumer.StartConsuming(); err != nil {
			zapLogger.Error("Консьюмер клиентских обновлений завершился с ошибкой", zap.Error(err))
		}
		zapLogger.Info("Горутина консьюмера клиентских обновлений завершена.")
	}()

	// Настройка Echo
	e := echo.New()
	e.Use(middleware.EchoZapLogger(zapLogger))
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.CORSWithConfig(echoMiddleware.CORSConfig{ // TODO: Настроить CORS
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	gameplayHandler.RegisterRoutes(e, wsHandler)

	log.Printf("Gameplay Loop сервер слушает на порту %s", cfg.Port)

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			e.Logger.Fatal("Ошибка запуска HTTP сервера: ", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Получен сигнал завершения, начинаем graceful shutdown...")

	resultConsumer.Stop()
	clientUpdateConsumer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		e.Logger.Fatal("Ошибка при graceful shutdown Echo: ", err)
	}

	log.Println("Gameplay Loop Service успешно остановлен")
}

// connectRabbitMQ пытается подключиться к RabbitMQ с несколькими попытками
func connectRabbitMQ(url string, logger *zap.Logger) (*amqp.Connection, error) {
	var conn *amqp.Connection
	var err error
	maxRetries := 5
	retryDelay := 5 * time.Second
	for i := 0; i < maxRetries; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		logger.Warn("Не удалось подключиться к RabbitMQ",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_delay", retryDelay),
			zap.Error(err),
		)
		time.Sleep(retryDelay)
	}
	return nil, err
}
