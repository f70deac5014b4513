package worker

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"tta-server/internal/config"
	"tta-server/internal/generation"
	"tta-server/internal/messaging"
)

// TaskHandler обрабатывает задачи генерации сцен.
type TaskHandler struct {
	cfg      *config.WorkerConfig
	aiClient generation.AIClient
	prompts  *generation.PromptBuilder
	results  messaging.ResultPublisher
}

// NewTaskHandler создает новый обработчик задач.
func NewTaskHandler(
	cfg *config.WorkerConfig,
	aiClient generation.AIClient,
	prompts *generation.PromptBuilder,
	results messaging.ResultPublisher,
) *TaskHandler {
	if cfg == nil {
		panic("TaskHandler: config не может быть nil")
	}
	return &TaskHandler{
		cfg:      cfg,
		aiClient: aiClient,
		prompts:  prompts,
		results:  results,
	}
}

// Handle обрабатывает одну задачу генерации: строит промт, вызывает AI
// с ретраями, валидирует ответ и публикует результат. Ошибка возвращается
// только если результат не удалось опубликовать - тогда сообщение уходит в DLQ.
func (h *TaskHandler) Handle(payload messaging.NarrativeTaskPayload) error {
	taskStartTime := time.Now()
	MetricsIncrementTasksReceived()
	log.Printf("[TaskID: %s][SessionID: %s] Получена задача генерации (тип: %s)",
		payload.TaskID, payload.SessionID, payload.PromptType)

	defer func() {
		MetricsObserveTaskDuration(time.Since(taskStartTime))
		PushMetricsNow()
	}()

	sessionID, err := uuid.Parse(payload.SessionID)
	if err != nil {
		log.Printf("[TaskID: %s] Невалидный SessionID %q: %v", payload.TaskID, payload.SessionID, err)
		MetricsIncrementTaskFailed("invalid_payload")
		return h.publishError(payload, fmt.Sprintf("невалидный session_id: %v", err))
	}

	systemPrompt, err := h.prompts.BuildSystemPrompt(&payload)
	if err != nil {
		log.Printf("[TaskID: %s] Ошибка построения системного промта: %v", payload.TaskID, err)
		MetricsIncrementTaskFailed("prompt_error")
		return h.publishError(payload, fmt.Sprintf("ошибка построения промта: %v", err))
	}

	userInput, err := h.prompts.BuildUserInput(&payload, systemPrompt)
	if err != nil {
		log.Printf("[TaskID: %s] Ошибка построения пользовательского ввода: %v", payload.TaskID, err)
		MetricsIncrementTaskFailed("prompt_error")
		return h.publishError(payload, fmt.Sprintf("ошибка построения промта: %v", err))
	}

	content, genErr := h.generateScene(payload.TaskID, sessionID, systemPrompt, userInput)
	if genErr != nil {
		return h.publishError(payload, genErr.Error())
	}

	result := messaging.NarrativeResultPayload{
		TaskID:           payload.TaskID,
		SessionID:        payload.SessionID,
		PlayerID:         payload.PlayerID,
		PromptType:       payload.PromptType,
		Status:           messaging.ResultStatusSuccess,
		GeneratedContent: content,
	}
	if err := h.publishResult(result); err != nil {
		return err
	}

	MetricsIncrementTaskSucceeded()
	log.Printf("[TaskID: %s] Задача успешно обработана за %v", payload.TaskID, time.Since(taskStartTime))
	return nil
}

// generateScene вызывает AI с экспоненциальным backoff и джиттером.
// Ответ считается успешным только если он проходит валидацию схемы сцены:
// невалидный JSON уходит на следующую попытку наравне с сетевой ошибкой.
func (h *TaskHandler) generateScene(taskID string, sessionID uuid.UUID, systemPrompt, userInput string) (string, error) {
	baseDelay := h.cfg.AIBaseRetryDelay
	var lastErr error

	for attempt := 1; attempt <= h.cfg.AIMaxAttempts; attempt++ {
		log.Printf("[TaskID: %s] Вызов AI API (Попытка %d/%d)...", taskID, attempt, h.cfg.AIMaxAttempts)
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.AITimeout)
		response, usage, err := h.aiClient.GenerateText(ctx, systemPrompt, userInput, generation.GenerationParams{
			Temperature: float64Ptr(0.7),
		})
		cancel()

		if usage.TotalTokens > 0 {
			MetricsAddTokensUsed(float64(usage.TotalTokens))
		}

		if err == nil {
			if _, parseErr := generation.ParseSceneContent(response, sessionID); parseErr != nil {
				log.Printf("[TaskID: %s] Ответ модели не прошел валидацию (Попытка %d/%d): %v",
					taskID, attempt, h.cfg.AIMaxAttempts, parseErr)
				lastErr = fmt.Errorf("невалидный ответ модели: %w", parseErr)
				MetricsIncrementTaskFailed("invalid_content")
			} else {
				log.Printf("[TaskID: %s] AI API успешно ответил (Попытка %d). Tokens: P=%d, C=%d",
					taskID, attempt, usage.PromptTokens, usage.CompletionTokens)
				return response, nil
			}
		} else {
			log.Printf("[TaskID: %s] Ошибка вызова AI API (Попытка %d/%d): %v",
				taskID, attempt, h.cfg.AIMaxAttempts, err)
			lastErr = err
			MetricsIncrementTaskFailed("ai_error")
		}

		if attempt == h.cfg.AIMaxAttempts {
			log.Printf("[TaskID: %s] Достигнуто максимальное количество попыток (%d).", taskID, h.cfg.AIMaxAttempts)
			break
		}

		delay := float64(baseDelay) * math.Pow(2, float64(attempt-1))
		jitter := delay * 0.1
		delay += jitter * (rand.Float64()*2 - 1)
		waitDuration := time.Duration(delay)
		if waitDuration < baseDelay {
			waitDuration = baseDelay
		}
		log.Printf("[TaskID: %s] Ожидание %v перед следующей попыткой...", taskID, waitDuration)
		time.Sleep(waitDuration)
	}

	return "", fmt.Errorf("генерация сцены не удалась после %d попыток: %w", h.cfg.AIMaxAttempts, lastErr)
}

// publishError публикует результат с ошибкой. Потеря такого результата
// оставит сессию в generating_scene навсегда, поэтому ошибка публикации
// возвращается наверх для Nack в DLQ.
func (h *TaskHandler) publishError(payload messaging.NarrativeTaskPayload, details string) error {
	return h.publishResult(messaging.NarrativeResultPayload{
		TaskID:       payload.TaskID,
		SessionID:    payload.SessionID,
		PlayerID:     payload.PlayerID,
		PromptType:   payload.PromptType,
		Status:       messaging.ResultStatusError,
		ErrorDetails: details,
	})
}

func (h *TaskHandler) publishResult(result messaging.NarrativeResultPayload) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := h.results.PublishNarrativeResult(ctx, result); err != nil {
		log.Printf("[TaskID: %s] Критическая ошибка публикации результата: %v", result.TaskID, err)
		MetricsIncrementTaskFailed("publish_error")
		return fmt.Errorf("ошибка публикации результата для TaskID %s: %w", result.TaskID, err)
	}
	return nil
}

func float64Ptr(v float64) *float64 { return &v }
