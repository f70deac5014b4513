package config

import (
	"fmt"
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"

	"tta-server/internal/utils"
)

// Config содержит конфигурацию для Gameplay Loop Service
type Config struct {
	// Настройки сервера
	Port     string `envconfig:"GAMEPLAY_SERVER_PORT" default:"8084"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Настройки Neo4j
	Neo4jURI  string `envconfig:"NEO4J_URI" required:"true"`
	Neo4jUser string `envconfig:"NEO4J_USER" default:"neo4j"`
	// Секретное поле БЕЗ envconfig тега
	Neo4jPassword string

	// Настройки Redis
	RedisAddr       string        `envconfig:"REDIS_ADDR" required:"true"`
	RedisDB         int           `envconfig:"REDIS_DB" default:"0"`
	SessionCacheTTL time.Duration `envconfig:"SESSION_CACHE_TTL" default:"24h"`
	TurnLockTTL     time.Duration `envconfig:"TURN_LOCK_TTL" default:"5s"`

	// Настройки RabbitMQ
	RabbitMQURL              string `envconfig:"RABBITMQ_URL" required:"true"`
	NarrativeTaskQueue       string `envconfig:"NARRATIVE_TASK_QUEUE" default:"narrative_generation_tasks"`
	InternalUpdatesQueueName string `envconfig:"INTERNAL_UPDATES_QUEUE_NAME" default:"internal_updates"`
	ClientUpdatesQueueName   string `envconfig:"CLIENT_UPDATES_QUEUE_NAME" default:"client_updates"`

	// Лимиты игрового цикла
	MaxActiveSessions int `envconfig:"MAX_ACTIVE_SESSIONS" default:"3"`

	// Настройки JWT (для проверки токена пользователя в middleware)
	// Секретное поле БЕЗ envconfig тега
	JWTSecret string
}

// LoadConfig загружает конфигурацию из переменных окружения и секретов
func LoadConfig() (*Config, error) {
	var cfg Config
	// Загружаем НЕсекретные переменные
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации gameplay-loop: %w", err)
	}

	// Загружаем ОБЯЗАТЕЛЬНЫЕ секреты
	var loadErr error
	cfg.Neo4jPassword, loadErr = utils.ReadSecret("neo4j_password")
	if loadErr != nil {
		return nil, loadErr
	}

	cfg.JWTSecret, loadErr = utils.ReadSecret("jwt_secret")
	if loadErr != nil {
		return nil, loadErr
	}

	log.Printf("Конфигурация Gameplay Loop Service загружена (секреты из файлов):")
	log.Printf("  Port: %s", cfg.Port)
	log.Printf("  LogLevel: %s", cfg.LogLevel)
	log.Printf("  Neo4j URI: %s (user: %s)", cfg.Neo4jURI, cfg.Neo4jUser)
	log.Printf("  Redis Addr: %s (db: %d)", cfg.RedisAddr, cfg.RedisDB)
	log.Printf("  Session Cache TTL: %v", cfg.SessionCacheTTL)
	log.Printf("  RabbitMQ URL: %s", cfg.RabbitMQURL)
	log.Printf("  Narrative Task Queue: %s", cfg.NarrativeTaskQueue)
	log.Printf("  Internal Updates Queue Name: %s", cfg.InternalUpdatesQueueName)
	log.Printf("  Client Updates Queue Name: %s", cfg.ClientUpdatesQueueName)
	log.Printf("  Max Active Sessions: %d", cfg.MaxActiveSessions)
	log.Println("  JWT Secret: [ЗАГРУЖЕН]")

	return &cfg, nil
}
