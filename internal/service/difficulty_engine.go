package service

import (
	"go.uber.org/zap"

	"tta-server/internal/models"
)

// AdaptiveDifficultyEngine калибрует сложность по скользящему окну ходов.
type AdaptiveDifficultyEngine interface {
	// Calibrate возвращает новый уровень сложности и внутринарративное
	// объяснение изменения. Объяснение пустое, если уровень не изменился.
	Calibrate(current models.DifficultyLevel, turns []models.TurnOutcome) (models.DifficultyLevel, string)
	// Directive возвращает текстовую директиву сложности для генератора сцен.
	Directive(level models.DifficultyLevel) string
}

// Веса составляющих оценки сложности.
const (
	weightSuccessRate = 0.5
	weightStability   = 0.3
	weightEngagement  = 0.2

	// Мертвая зона гистерезиса вокруг границы текущего уровня.
	difficultyDeadBand = 0.05

	// Минимум ходов в окне для калибровки.
	minTurnsForCalibration = 3

	// Ходы с задержкой ответа меньше этого порога считаются вовлеченными.
	engagedResponseDelaySeconds = 120
)

// Объяснения подаются игроку внутри нарратива, без сырых чисел.
var difficultyRaiseExplanations = map[models.DifficultyLevel]string{
	models.DifficultyEasy:        "История чувствует твою уверенность и открывает новые тропы.",
	models.DifficultyMedium:      "Мир вокруг становится насыщеннее: твои решения обретают больший вес.",
	models.DifficultyChallenging: "Ты справляешься, и история предлагает испытания посерьезнее.",
	models.DifficultyHard:        "Сюжет выводит тебя к самым непростым перекресткам.",
	models.DifficultyVeryHard:    "История доверяет тебе свои самые глубокие и сложные главы.",
}

var difficultyLowerExplanations = map[models.DifficultyLevel]string{
	models.DifficultyVeryEasy:    "История замедляется, давая тебе пространство перевести дух.",
	models.DifficultyEasy:        "Тропа становится мягче: впереди более спокойные сцены.",
	models.DifficultyMedium:      "Сюжет отступает на шаг, позволяя собраться с силами.",
	models.DifficultyChallenging: "История смягчает напор, сохраняя твой путь.",
	models.DifficultyHard:        "Мир чуть сбавляет темп, подстраиваясь под тебя.",
}

type adaptiveDifficultyEngineImpl struct {
	logger *zap.Logger
}

// NewAdaptiveDifficultyEngine creates a new AdaptiveDifficultyEngine.
func NewAdaptiveDifficultyEngine(logger *zap.Logger) AdaptiveDifficultyEngine {
	return &adaptiveDifficultyEngineImpl{
		logger: logger.Named("AdaptiveDifficultyEngine"),
	}
}

func (e *adaptiveDifficultyEngineImpl) Calibrate(current models.DifficultyLevel, turns []models.TurnOutcome) (models.DifficultyLevel, string) {
	if len(turns) < minTurnsForCalibration {
		return current, ""
	}

	score := e.compositeScore(turns)

	// score в [0,1] проецируется на шесть уровней: [0, 1/6) -> VERY_EASY и т.д.
	target := models.DifficultyLevel(int(score * 6))
	target = target.Clamp()

	if target == current {
		return current, ""
	}

	// Гистерезис: не реагируем на колебания у границы текущего уровня.
	lowerBound := float64(current) / 6.0
	upperBound := float64(current+1) / 6.0
	if score >= lowerBound-difficultyDeadBand && score < upperBound+difficultyDeadBand {
		return current, ""
	}

	// Не больше одного шага за калибровку.
	next := current
	if target > current {
		next = (current + 1).Clamp()
	} else {
		next = (current - 1).Clamp()
	}
	if next == current {
		return current, ""
	}

	e.logger.Debug("Difficulty recalibrated",
		zap.Float64("score", score),
		zap.String("from", current.String()),
		zap.String("to", next.String()))

	explanation := ""
	if next > current {
		explanation = difficultyRaiseExplanations[next]
	} else {
		explanation = difficultyLowerExplanations[next]
	}
	return next, explanation
}

// compositeScore считает 0.5*успешность + 0.3*эмоциональная стабильность + 0.2*вовлеченность.
func (e *adaptiveDifficultyEngineImpl) compositeScore(turns []models.TurnOutcome) float64 {
	var successes, stable, engaged int
	for _, t := range turns {
		if t.Success {
			successes++
		}
		if t.Distress <= models.DistressMinimal {
			stable++
		}
		if t.ResponseDelay.Seconds() > 0 && t.ResponseDelay.Seconds() <= engagedResponseDelaySeconds {
			engaged++
		}
	}
	n := float64(len(turns))
	successRate := float64(successes) / n
	stability := float64(stable) / n
	engagement := float64(engaged) / n

	return weightSuccessRate*successRate + weightStability*stability + weightEngagement*engagement
}

func (e *adaptiveDifficultyEngineImpl) Directive(level models.DifficultyLevel) string {
	switch level {
	case models.DifficultyVeryEasy:
		return "Сцена максимально мягкая: низкая эмоциональная интенсивность, выборы с очевидно безопасными исходами."
	case models.DifficultyEasy:
		return "Спокойная сцена с простыми выборами и поддерживающим тоном."
	case models.DifficultyMedium:
		return "Умеренная сложность: выборы с ощутимыми, но не тяжелыми компромиссами."
	case models.DifficultyChallenging:
		return "Заметная сложность: выборы требуют применения освоенных навыков совладания."
	case models.DifficultyHard:
		return "Высокая сложность: неоднозначные выборы с отложенными последствиями."
	case models.DifficultyVeryHard:
		return "Максимальная сложность: глубокие темы и выборы без очевидно верного ответа."
	default:
		return "Умеренная сложность."
	}
}
