package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tta-server/internal/messaging"
	"tta-server/internal/models"
)

// NarrativeEngine собирает задачи генерации сцен и поставляет
// шаблонные сцены, когда генерация недоступна.
type NarrativeEngine interface {
	// BuildInitialTask строит задачу генерации первой сцены сессии.
	BuildInitialTask(state *models.SessionState, difficultyDirective, safetyDirective string) messaging.NarrativeTaskPayload
	// BuildNextTask строит задачу генерации следующей сцены после выбора.
	BuildNextTask(state *models.SessionState, choice *models.Choice, cs *models.ConsequenceSet, difficultyDirective, safetyDirective string) messaging.NarrativeTaskPayload
	// FallbackScene возвращает шаблонную сцену. Сессия никогда не
	// остается мертвой из-за отказа генерации.
	FallbackScene(sessionID uuid.UUID) *models.Scene
}

type narrativeEngineImpl struct {
	logger *zap.Logger
}

// NewNarrativeEngine creates a new NarrativeEngine.
func NewNarrativeEngine(logger *zap.Logger) NarrativeEngine {
	return &narrativeEngineImpl{
		logger: logger.Named("NarrativeEngine"),
	}
}

func (e *narrativeEngineImpl) BuildInitialTask(state *models.SessionState, difficultyDirective, safetyDirective string) messaging.NarrativeTaskPayload {
	return messaging.NarrativeTaskPayload{
		TaskID:     uuid.New().String(),
		SessionID:  state.ID.String(),
		PlayerID:   state.PlayerID.String(),
		PromptType: messaging.PromptTypeInitialScene,
		SceneContext: messaging.SceneContextPayload{
			CharacterAttributes: state.Character.Attributes,
			FocusConcepts:       state.FocusConcepts,
			TurnNumber:          0,
		},
		DifficultyDirective: difficultyDirective,
		SafetyDirective:     safetyDirective,
	}
}

func (e *narrativeEngineImpl) BuildNextTask(state *models.SessionState, choice *models.Choice, cs *models.ConsequenceSet, difficultyDirective, safetyDirective string) messaging.NarrativeTaskPayload {
	ctx := messaging.SceneContextPayload{
		NarrativeSummary:    state.NarrativeSummary,
		LastChoiceText:      choice.Text,
		CharacterAttributes: state.Character.Attributes,
		CopingSkills:        state.Character.CopingSkills,
		FocusConcepts:       state.FocusConcepts,
		TurnNumber:          len(state.ChoiceHistory),
	}
	if cs != nil && len(cs.Immediate) > 0 {
		ctx.LastConsequenceText = cs.Immediate[0].Text
	}

	return messaging.NarrativeTaskPayload{
		TaskID:              uuid.New().String(),
		SessionID:           state.ID.String(),
		PlayerID:            state.PlayerID.String(),
		PromptType:          messaging.PromptTypeNextScene,
		SceneContext:        ctx,
		DifficultyDirective: difficultyDirective,
		SafetyDirective:     safetyDirective,
	}
}

// Шаблонные нарративы fallback-сцен. Нейтральные передышки,
// не продвигающие сюжет и не требующие контекста.
var fallbackNarratives = []string{
	"Ты оказываешься на тихой поляне. Ветер шевелит траву, и на мгновение все замирает. Это место будто создано для короткой передышки - история подождет, пока ты будешь готов идти дальше.",
	"Тропа выводит тебя к небольшому ручью. Вода течет неторопливо, и ее звук успокаивает. Можно задержаться здесь и собраться с мыслями.",
	"Впереди - старая скамейка под раскидистым деревом. Кажется, она стоит здесь именно для таких моментов: когда нужно остановиться и перевести дух.",
}

func (e *narrativeEngineImpl) FallbackScene(sessionID uuid.UUID) *models.Scene {
	// Детерминированный выбор шаблона по ID сессии.
	idx := int(sessionID[0]) % len(fallbackNarratives)

	scene := &models.Scene{
		ID:                 uuid.New(),
		SessionID:          sessionID,
		Narrative:          fallbackNarratives[idx],
		EmotionalIntensity: 1,
		TherapeuticFocus:   []string{string(models.ApproachMindfulness)},
		IsFallback:         true,
		CreatedAt:          time.Now().UTC(),
		Choices: []models.Choice{
			{
				ID:                 uuid.New(),
				Text:               "Немного отдохнуть и продолжить путь",
				ConsequencePreview: "Силы восстанавливаются",
				Approach:           models.ApproachMindfulness,
				DifficultyRating:   1,
				AttributeDeltas:    map[string]int{models.AttrCalm: 1},
			},
			{
				ID:                 uuid.New(),
				Text:               "Вспомнить, что уже пройдено",
				ConsequencePreview: "Пройденный путь придает уверенности",
				Approach:           models.ApproachNarrative,
				DifficultyRating:   1,
				AttributeDeltas:    map[string]int{models.AttrConnection: 1},
			},
		},
	}
	scene.ContentHash = scene.ComputeContentHash()

	e.logger.Info("Fallback scene created",
		zap.Stringer("sessionID", sessionID),
		zap.Stringer("sceneID", scene.ID))
	return scene
}

// SafetyDirectiveFor переводит оценку безопасности в директиву генератору.
func SafetyDirectiveFor(level models.DistressLevel) string {
	switch {
	case level >= models.DistressHigh:
		return "Только поддерживающий, успокаивающий контент. Эмоциональная интенсивность не выше 2. Никаких тяжелых тем."
	case level >= models.DistressElevated:
		return "Сниженная эмоциональная интенсивность (не выше 4). Избегать тем утраты и угрозы."
	case level >= models.DistressModerate:
		return fmt.Sprintf("Умеренная эмоциональная интенсивность (не выше 6). Текущий уровень дистресса: %s.", level)
	default:
		return ""
	}
}
