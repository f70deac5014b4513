package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"tta-server/internal/utils"
)

// Поддерживаемые AI провайдеры.
const (
	AIProviderOpenAI = "openai"
	AIProviderOllama = "ollama"
)

// WorkerConfig содержит конфигурацию для Narrative Generator Worker
type WorkerConfig struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Настройки RabbitMQ
	RabbitMQURL              string `envconfig:"RABBITMQ_URL" required:"true"`
	NarrativeTaskQueue       string `envconfig:"NARRATIVE_TASK_QUEUE" default:"narrative_generation_tasks"`
	InternalUpdatesQueueName string `envconfig:"INTERNAL_UPDATES_QUEUE_NAME" default:"internal_updates"`

	// Настройки AI провайдера
	AIProvider       string        `envconfig:"AI_PROVIDER" default:"openai"` // openai | ollama
	AIBaseURL        string        `envconfig:"AI_BASE_URL" default:""`       // Для OpenAI-совместимых API и Ollama
	AIModel          string        `envconfig:"AI_MODEL" required:"true"`
	AIMaxAttempts    int           `envconfig:"AI_MAX_ATTEMPTS" default:"3"`
	AIBaseRetryDelay time.Duration `envconfig:"AI_BASE_RETRY_DELAY" default:"2s"`
	AITimeout        time.Duration `envconfig:"AI_TIMEOUT" default:"90s"`
	MaxPromptTokens  int           `envconfig:"MAX_PROMPT_TOKENS" default:"6000"`
	// Секретное поле БЕЗ envconfig тега (не требуется для ollama)
	AIAPIKey string

	// Настройки метрик
	PushgatewayURL      string        `envconfig:"PUSHGATEWAY_URL" default:""`
	MetricsPushInterval time.Duration `envconfig:"METRICS_PUSH_INTERVAL" default:"15s"`
}

// LoadWorkerConfig загружает конфигурацию воркера из переменных окружения и секретов
func LoadWorkerConfig() (*WorkerConfig, error) {
	var cfg WorkerConfig
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации narrative-worker: %w", err)
	}

	cfg.AIProvider = strings.ToLower(cfg.AIProvider)
	if cfg.AIProvider != AIProviderOpenAI && cfg.AIProvider != AIProviderOllama {
		return nil, fmt.Errorf("неизвестный AI провайдер: %q", cfg.AIProvider)
	}

	// API ключ обязателен только для OpenAI-совместимых провайдеров.
	if cfg.AIProvider == AIProviderOpenAI {
		var loadErr error
		cfg.AIAPIKey, loadErr = utils.ReadSecret("ai_api_key")
		if loadErr != nil {
			return nil, loadErr
		}
	}

	log.Printf("Конфигурация Narrative Worker загружена:")
	log.Printf("  LogLevel: %s", cfg.LogLevel)
	log.Printf("  RabbitMQ URL: %s", cfg.RabbitMQURL)
	log.Printf("  Narrative Task Queue: %s", cfg.NarrativeTaskQueue)
	log.Printf("  Internal Updates Queue Name: %s", cfg.InternalUpdatesQueueName)
	log.Printf("  AI Provider: %s (model: %s)", cfg.AIProvider, cfg.AIModel)
	if cfg.AIBaseURL != "" {
		log.Printf("  AI Base URL: %s", cfg.AIBaseURL)
	}
	log.Printf("  AI Max Attempts: %d (base retry delay: %v), Timeout: %v", cfg.AIMaxAttempts, cfg.AIBaseRetryDelay, cfg.AITimeout)
	log.Printf("  Max Prompt Tokens: %d", cfg.MaxPromptTokens)
	if cfg.PushgatewayURL != "" {
		log.Printf("  Pushgateway URL: %s (interval: %v)", cfg.PushgatewayURL, cfg.MetricsPushInterval)
	}
	if cfg.AIProvider == AIProviderOpenAI {
		log.Println("  AI API Key: [ЗАГРУЖЕН]")
	}

	return &cfg, nil
}
