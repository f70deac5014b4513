package service_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"tta-server/internal/models"
	"tta-server/internal/service"
)

// makeTurns строит окно ходов с заданными характеристиками.
func makeTurns(n int, success bool, distress models.DistressLevel, delay time.Duration) []models.TurnOutcome {
	turns := make([]models.TurnOutcome, n)
	for i := range turns {
		turns[i] = models.TurnOutcome{
			ChoiceID:      uuid.New(),
			Success:       success,
			Distress:      distress,
			ResponseDelay: delay,
			CompletedAt:   time.Now().UTC(),
		}
	}
	return turns
}

func TestDifficultyCalibrate(t *testing.T) {
	engine := service.NewAdaptiveDifficultyEngine(zap.NewNop())

	t.Run("Too few turns keeps current level", func(t *testing.T) {
		turns := makeTurns(2, true, models.DistressNone, 10*time.Second)

		level, explanation := engine.Calibrate(models.DifficultyMedium, turns)

		assert.Equal(t, models.DifficultyMedium, level)
		assert.Empty(t, explanation)
	})

	t.Run("Strong performance raises by one step", func(t *testing.T) {
		// Все составляющие максимальны: score = 1.0, цель VERY_HARD,
		// но шаг ограничен одним уровнем.
		turns := makeTurns(5, true, models.DistressNone, 15*time.Second)

		level, explanation := engine.Calibrate(models.DifficultyMedium, turns)

		assert.Equal(t, models.DifficultyChallenging, level)
		assert.NotEmpty(t, explanation)
		// Объяснение внутринарративное, без сырых чисел.
		assert.NotContains(t, explanation, "0.")
	})

	t.Run("Struggling player gets one step easier", func(t *testing.T) {
		turns := makeTurns(5, false, models.DistressElevated, 10*time.Minute)

		level, explanation := engine.Calibrate(models.DifficultyHard, turns)

		assert.Equal(t, models.DifficultyChallenging, level)
		assert.NotEmpty(t, explanation)
	})

	t.Run("Level never exceeds the scale", func(t *testing.T) {
		turns := makeTurns(5, true, models.DistressNone, 15*time.Second)

		level, _ := engine.Calibrate(models.DifficultyVeryHard, turns)

		assert.Equal(t, models.DifficultyVeryHard, level)
	})

	t.Run("Level never drops below the scale", func(t *testing.T) {
		turns := makeTurns(5, false, models.DistressHigh, 10*time.Minute)

		level, _ := engine.Calibrate(models.DifficultyVeryEasy, turns)

		assert.Equal(t, models.DifficultyVeryEasy, level)
	})

	t.Run("Dead band absorbs boundary jitter", func(t *testing.T) {
		// 2 успеха из 5, все стабильные и вовлеченные:
		// score = 0.5*0.4 + 0.3 + 0.2 = 0.7, ровно на границе
		// HARD (0.666..) при текущем CHALLENGING (верх 0.666..+0.05).
		turns := makeTurns(5, false, models.DistressNone, 15*time.Second)
		turns[0].Success = true
		turns[1].Success = true

		level, explanation := engine.Calibrate(models.DifficultyChallenging, turns)

		assert.Equal(t, models.DifficultyChallenging, level)
		assert.Empty(t, explanation)
	})
}

func TestDifficultyDirective(t *testing.T) {
	engine := service.NewAdaptiveDifficultyEngine(zap.NewNop())

	for level := models.DifficultyVeryEasy; level <= models.DifficultyVeryHard; level++ {
		assert.NotEmpty(t, engine.Directive(level), "директива для уровня %s", level)
	}
}
