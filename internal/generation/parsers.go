package generation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tta-server/internal/models"
	"tta-server/internal/utils"
)

// Границы количества выборов в сцене.
const (
	MinChoicesPerScene = 2
	MaxChoicesPerScene = 4
)

// Границы дельты одного атрибута в выборе.
const (
	minAttributeDelta = -5
	maxAttributeDelta = 5
)

// parsedChoice - компактная схема выбора в ответе модели.
type parsedChoice struct {
	T  string         `json:"t"`            // Текст выбора
	Cp string         `json:"cp,omitempty"` // Намек на последствие
	A  string         `json:"a"`            // Терапевтический подход
	Dr int            `json:"dr"`           // Оценка сложности 1..6
	Ad map[string]int `json:"ad,omitempty"` // Дельты атрибутов
}

// parsedScene - компактная схема сцены в ответе модели.
type parsedScene struct {
	N  string         `json:"n"`            // Нарратив
	Ei int            `json:"ei"`           // Эмоциональная интенсивность 0..10
	Tf []string       `json:"tf,omitempty"` // Терапевтический фокус
	Ns string         `json:"ns,omitempty"` // Обновленная сводка сюжета
	Ch []parsedChoice `json:"ch"`           // Выборы
}

// ParsedSceneResult - результат разбора ответа модели: готовая сцена
// плюс обновленная сводка сюжета для состояния сессии.
type ParsedSceneResult struct {
	Scene            *models.Scene
	NarrativeSummary string
}

// ParseSceneContent разбирает сырой ответ модели в валидную сцену.
// Невалидная структура или нарушение границ - ошибка, по которой
// воркер уходит на повторную попытку.
func ParseSceneContent(raw string, sessionID uuid.UUID) (*ParsedSceneResult, error) {
	jsonStr, err := utils.ExtractJSONObject(raw)
	if err != nil {
		return nil, fmt.Errorf("в ответе модели не найден JSON: %w", err)
	}

	var parsed parsedScene
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return nil, fmt.Errorf("ошибка разбора JSON сцены: %w", err)
	}

	if parsed.N == "" {
		return nil, fmt.Errorf("сцена без нарратива")
	}
	if len(parsed.Ch) < MinChoicesPerScene || len(parsed.Ch) > MaxChoicesPerScene {
		return nil, fmt.Errorf("недопустимое число выборов: %d (ожидается %d..%d)",
			len(parsed.Ch), MinChoicesPerScene, MaxChoicesPerScene)
	}
	if parsed.Ei < 0 || parsed.Ei > 10 {
		return nil, fmt.Errorf("эмоциональная интенсивность вне диапазона 0..10: %d", parsed.Ei)
	}

	scene := &models.Scene{
		ID:                 uuid.New(),
		SessionID:          sessionID,
		Narrative:          parsed.N,
		EmotionalIntensity: parsed.Ei,
		TherapeuticFocus:   parsed.Tf,
		CreatedAt:          time.Now().UTC(),
	}

	for i, pc := range parsed.Ch {
		if pc.T == "" {
			return nil, fmt.Errorf("выбор %d без текста", i)
		}

		approach := models.TherapeuticApproach(pc.A)
		if !models.IsValidApproach(approach) {
			// Невалидный подход не валит всю сцену: считаем выбор нарративным.
			approach = models.ApproachNarrative
		}

		rating := pc.Dr
		if rating < 1 {
			rating = 1
		}
		if rating > 6 {
			rating = 6
		}

		for attr, delta := range pc.Ad {
			if delta < minAttributeDelta || delta > maxAttributeDelta {
				return nil, fmt.Errorf("выбор %d: дельта атрибута %s вне диапазона %d..%d: %d",
					i, attr, minAttributeDelta, maxAttributeDelta, delta)
			}
		}

		scene.Choices = append(scene.Choices, models.Choice{
			ID:                 uuid.New(),
			Text:               pc.T,
			ConsequencePreview: pc.Cp,
			Approach:           approach,
			DifficultyRating:   rating,
			AttributeDeltas:    pc.Ad,
		})
	}

	scene.ContentHash = scene.ComputeContentHash()

	return &ParsedSceneResult{
		Scene:            scene,
		NarrativeSummary: parsed.Ns,
	}, nil
}
