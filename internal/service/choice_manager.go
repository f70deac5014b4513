package service

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tta-server/internal/models"
)

// ChoiceArchitectureManager валидирует поданный выбор против показанной сцены.
type ChoiceArchitectureManager interface {
	// ResolveChoice проверяет целостность сцены и возвращает выбранный вариант.
	// Ошибки: ErrSceneIntegrity (хеш не сошелся), ErrInvalidChoice (нет такого
	// выбора), ErrChoiceAlreadyMade (выбор уже потреблен в этой сессии).
	ResolveChoice(scene *models.Scene, choiceID uuid.UUID, history []uuid.UUID) (*models.Choice, error)
	// EnsureChoices дополняет сцену безопасными выборами по умолчанию,
	// если генератор не дал ни одного.
	EnsureChoices(scene *models.Scene)
}

type choiceArchitectureManagerImpl struct {
	logger *zap.Logger
}

// NewChoiceArchitectureManager creates a new ChoiceArchitectureManager.
func NewChoiceArchitectureManager(logger *zap.Logger) ChoiceArchitectureManager {
	return &choiceArchitectureManagerImpl{
		logger: logger.Named("ChoiceArchitectureManager"),
	}
}

func (m *choiceArchitectureManagerImpl) ResolveChoice(scene *models.Scene, choiceID uuid.UUID, history []uuid.UUID) (*models.Choice, error) {
	// Сцена неизменяема после показа: расхождение хеша означает,
	// что игроку показывали не тот контент, который хранится.
	if scene.ContentHash != "" && scene.ComputeContentHash() != scene.ContentHash {
		m.logger.Error("Scene content hash mismatch",
			zap.Stringer("sceneID", scene.ID),
			zap.String("storedHash", scene.ContentHash))
		return nil, models.ErrSceneIntegrity
	}

	choice, ok := scene.FindChoice(choiceID)
	if !ok {
		m.logger.Warn("Choice does not belong to scene",
			zap.Stringer("sceneID", scene.ID),
			zap.Stringer("choiceID", choiceID))
		return nil, fmt.Errorf("%w: выбор %s не принадлежит текущей сцене", models.ErrInvalidChoice, choiceID)
	}

	// Выбор потребляется не более одного раза.
	for _, made := range history {
		if made == choiceID {
			m.logger.Warn("Choice already consumed", zap.Stringer("choiceID", choiceID))
			return nil, models.ErrChoiceAlreadyMade
		}
	}

	return choice, nil
}

// EnsureChoices гарантирует, что у сцены есть хотя бы минимальный набор
// выборов. Срабатывает для fallback-сцен и дефектных ответов генератора.
func (m *choiceArchitectureManagerImpl) EnsureChoices(scene *models.Scene) {
	if len(scene.Choices) > 0 {
		return
	}

	m.logger.Warn("Scene has no choices, injecting default safe choices", zap.Stringer("sceneID", scene.ID))

	scene.Choices = []models.Choice{
		{
			ID:                 uuid.New(),
			Text:               "Сделать паузу и осмотреться",
			ConsequencePreview: "Спокойный взгляд на происходящее",
			Approach:           models.ApproachMindfulness,
			DifficultyRating:   1,
			AttributeDeltas:    map[string]int{models.AttrCalm: 1},
		},
		{
			ID:                 uuid.New(),
			Text:               "Обдумать, что привело сюда",
			ConsequencePreview: "Мысли становятся яснее",
			Approach:           models.ApproachCBT,
			DifficultyRating:   1,
			AttributeDeltas:    map[string]int{models.AttrInsight: 1},
		},
	}
	scene.ContentHash = scene.ComputeContentHash()
}
