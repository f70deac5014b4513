package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tta-server/internal/interfaces"
	"tta-server/internal/models"
)

// EmotionalSafetySystem оценивает дистресс игрока перед обработкой хода.
// Вызывается контроллером ПЕРВОЙ, до валидации выбора и последствий.
type EmotionalSafetySystem interface {
	// Assess классифицирует дистресс по свободному тексту игрока и
	// интенсивности текущей сцены. Никогда не возвращает ошибку:
	// внутренний сбой дает осторожную оценку ELEVATED с приостановкой.
	Assess(ctx context.Context, sessionID uuid.UUID, playerText string, sceneIntensity int) models.SafetyAssessment

	// AssessmentFor собирает лестницу эскалации (предупреждения,
	// варианты поддержки, кризисные ресурсы) для уже известного уровня
	// дистресса, без новой классификации. Для чтения статуса.
	AssessmentFor(level models.DistressLevel, score float64) models.SafetyAssessment
}

// Размер скользящего окна оценок дистресса.
const distressWindowSize = 5

// Границы score -> DistressLevel. Band N начинается с distressBands[N].
var distressBands = [...]float64{0, 0, 2, 4, 6, 9}

// Фразы, означающие кризис. Любое совпадение - сразу CRITICAL,
// независимо от остального контекста.
var crisisPhrases = []string{
	"hurt myself",
	"kill myself",
	"end my life",
	"want to die",
	"no reason to live",
	"suicide",
	"self harm",
	"self-harm",
}

// Лексикон дистресса: слово -> вклад в оценку.
var distressLexicon = map[string]float64{
	"hopeless":    3.0,
	"worthless":   3.0,
	"unbearable":  2.5,
	"panic":       2.5,
	"terrified":   2.0,
	"desperate":   2.0,
	"trapped":     2.0,
	"overwhelmed": 1.5,
	"scared":      1.5,
	"anxious":     1.0,
	"afraid":      1.0,
	"alone":       1.0,
	"angry":       0.5,
	"sad":         0.5,
	"tired":       0.5,
}

// Штатные кризисные ресурсы. Показываются на HIGH и CRITICAL.
var defaultCrisisResources = []models.CrisisResource{
	{Name: "988 Suicide & Crisis Lifeline", Contact: "call or text 988", Availability: "24/7"},
	{Name: "Crisis Text Line", Contact: "text HOME to 741741", Availability: "24/7"},
}

type emotionalSafetySystemImpl struct {
	cache  interfaces.SessionCache
	logger *zap.Logger
}

// NewEmotionalSafetySystem creates a new EmotionalSafetySystem.
func NewEmotionalSafetySystem(cache interfaces.SessionCache, logger *zap.Logger) EmotionalSafetySystem {
	return &emotionalSafetySystemImpl{
		cache:  cache,
		logger: logger.Named("EmotionalSafetySystem"),
	}
}

func (s *emotionalSafetySystemImpl) Assess(ctx context.Context, sessionID uuid.UUID, playerText string, sceneIntensity int) models.SafetyAssessment {
	log := s.logger.With(zap.Stringer("sessionID", sessionID))

	normalized := strings.ToLower(playerText)

	// Кризисные фразы обходят всю остальную логику.
	for _, phrase := range crisisPhrases {
		if strings.Contains(normalized, phrase) {
			log.Warn("Crisis phrase detected, escalating to critical")
			return s.buildAssessment(models.DistressCritical, distressBands[models.DistressCritical], false)
		}
	}

	score := s.scoreText(normalized)

	// Интенсивная сцена усиливает сигнал: длительное пребывание на
	// тяжелом контенте само по себе фактор риска.
	if sceneIntensity >= 8 {
		score += 1.0
	}

	// Сглаживаем по скользящему окну: уровень определяет среднее,
	// а не единичный всплеск.
	window, err := s.cache.PushDistressScore(ctx, sessionID, score, distressWindowSize)
	if err != nil {
		// Сбой классификатора: осторожная оценка вместо тихого продолжения.
		log.Error("Distress window update failed, assessing as elevated", zap.Error(err))
		return s.buildAssessment(models.DistressElevated, score, true)
	}

	avg := score
	if len(window) > 0 {
		var sum float64
		for _, v := range window {
			sum += v
		}
		avg = sum / float64(len(window))
	}

	// Текущий всплеск не может быть занижен окном.
	effective := avg
	if score > effective {
		effective = score
	}

	level := levelForScore(effective)
	log.Debug("Distress assessed",
		zap.Float64("score", score),
		zap.Float64("windowAvg", avg),
		zap.String("level", level.String()))

	return s.buildAssessment(level, effective, false)
}

func (s *emotionalSafetySystemImpl) AssessmentFor(level models.DistressLevel, score float64) models.SafetyAssessment {
	return s.buildAssessment(level, score, false)
}

func (s *emotionalSafetySystemImpl) scoreText(normalized string) float64 {
	if normalized == "" {
		return 0
	}
	var score float64
	words := strings.FieldsFunc(normalized, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '-'
	})
	for _, w := range words {
		if v, ok := distressLexicon[w]; ok {
			score += v
		}
	}
	return score
}

func levelForScore(score float64) models.DistressLevel {
	switch {
	case score >= distressBands[models.DistressCritical]:
		return models.DistressCritical
	case score >= distressBands[models.DistressHigh]:
		return models.DistressHigh
	case score >= distressBands[models.DistressElevated]:
		return models.DistressElevated
	case score >= distressBands[models.DistressModerate]:
		return models.DistressModerate
	case score > 0:
		return models.DistressMinimal
	default:
		return models.DistressNone
	}
}

// buildAssessment собирает лестницу эскалации:
// MODERATE - предупреждения о контенте, ELEVATED - варианты поддержки,
// HIGH - плюс кризисные ресурсы, CRITICAL - приостановка сессии.
func (s *emotionalSafetySystemImpl) buildAssessment(level models.DistressLevel, score float64, degraded bool) models.SafetyAssessment {
	assessment := models.SafetyAssessment{
		Level:    level,
		Score:    score,
		Degraded: degraded,
	}

	if level >= models.DistressModerate {
		assessment.ContentWarnings = []string{
			"Следующие сцены могут затрагивать эмоционально сложные темы.",
		}
	}
	if level >= models.DistressElevated {
		assessment.SupportOptions = []string{
			"Сделать паузу и вернуться позже - прогресс сохранится.",
			"Снизить эмоциональную интенсивность истории.",
			"Перейти к более спокойной ветке сюжета.",
		}
	}
	if level >= models.DistressHigh {
		assessment.CrisisResources = defaultCrisisResources
	}
	if level >= models.DistressCritical || degraded {
		assessment.SuspendSession = true
	}
	if level >= models.DistressCritical {
		assessment.CrisisResources = defaultCrisisResources
	}

	return assessment
}
