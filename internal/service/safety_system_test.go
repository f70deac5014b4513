package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	interfaceMocks "tta-server/internal/interfaces/mocks"
	"tta-server/internal/models"
	"tta-server/internal/service"
)

func newSafetySystem(cache *interfaceMocks.SessionCache) service.EmotionalSafetySystem {
	return service.NewEmotionalSafetySystem(cache, zap.NewNop())
}

func TestSafetyAssess(t *testing.T) {
	ctx := context.Background()
	sessionID := uuid.New()

	t.Run("Neutral text yields no distress", func(t *testing.T) {
		cache := new(interfaceMocks.SessionCache)
		cache.On("PushDistressScore", mock.Anything, sessionID, 0.0, 5).Return([]float64{0}, nil).Once()

		assessment := newSafetySystem(cache).Assess(ctx, sessionID, "I pick the left path", 3)

		assert.Equal(t, models.DistressNone, assessment.Level)
		assert.False(t, assessment.SuspendSession)
		assert.Empty(t, assessment.CrisisResources)
		cache.AssertExpectations(t)
	})

	t.Run("Crisis phrase escalates to critical immediately", func(t *testing.T) {
		cache := new(interfaceMocks.SessionCache)

		assessment := newSafetySystem(cache).Assess(ctx, sessionID, "Sometimes I think about how to HURT MYSELF", 1)

		assert.Equal(t, models.DistressCritical, assessment.Level)
		assert.True(t, assessment.SuspendSession)
		assert.NotEmpty(t, assessment.CrisisResources)
		// Окно дистресса не трогаем: кризис не сглаживается средним.
		cache.AssertNotCalled(t, "PushDistressScore", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Distress lexicon accumulates into elevated", func(t *testing.T) {
		cache := new(interfaceMocks.SessionCache)
		// hopeless (3.0) + overwhelmed (1.5) = 4.5
		cache.On("PushDistressScore", mock.Anything, sessionID, 4.5, 5).Return([]float64{4.5}, nil).Once()

		assessment := newSafetySystem(cache).Assess(ctx, sessionID, "I feel hopeless and overwhelmed", 3)

		assert.Equal(t, models.DistressElevated, assessment.Level)
		assert.NotEmpty(t, assessment.SupportOptions)
		assert.NotEmpty(t, assessment.ContentWarnings)
		assert.False(t, assessment.SuspendSession)
	})

	t.Run("High intensity scene amplifies the signal", func(t *testing.T) {
		cache := new(interfaceMocks.SessionCache)
		// scared (1.5) + бонус интенсивной сцены (1.0) = 2.5
		cache.On("PushDistressScore", mock.Anything, sessionID, 2.5, 5).Return([]float64{2.5}, nil).Once()

		assessment := newSafetySystem(cache).Assess(ctx, sessionID, "this is scared territory", 9)

		assert.Equal(t, models.DistressModerate, assessment.Level)
	})

	t.Run("Window average smooths a single calm turn", func(t *testing.T) {
		cache := new(interfaceMocks.SessionCache)
		// Текущий ход спокойный, но окно хранит тяжелую историю.
		cache.On("PushDistressScore", mock.Anything, sessionID, 0.0, 5).
			Return([]float64{0, 6.5, 7.0, 6.0}, nil).Once()

		assessment := newSafetySystem(cache).Assess(ctx, sessionID, "okay", 2)

		// Среднее 4.875 -> ELEVATED, несмотря на нейтральный текст.
		assert.Equal(t, models.DistressElevated, assessment.Level)
	})

	t.Run("Current spike is never diluted by the window", func(t *testing.T) {
		cache := new(interfaceMocks.SessionCache)
		// hopeless + worthless + desperate = 8.0, окно почти пустое.
		cache.On("PushDistressScore", mock.Anything, sessionID, 8.0, 5).
			Return([]float64{8.0, 0, 0, 0, 0}, nil).Once()

		assessment := newSafetySystem(cache).Assess(ctx, sessionID, "hopeless worthless desperate", 1)

		assert.Equal(t, models.DistressHigh, assessment.Level)
		assert.NotEmpty(t, assessment.CrisisResources)
	})

	t.Run("Classifier failure fails closed", func(t *testing.T) {
		cache := new(interfaceMocks.SessionCache)
		cache.On("PushDistressScore", mock.Anything, sessionID, mock.Anything, 5).
			Return(nil, errors.New("redis down")).Once()

		assessment := newSafetySystem(cache).Assess(ctx, sessionID, "fine", 1)

		assert.Equal(t, models.DistressElevated, assessment.Level)
		assert.True(t, assessment.Degraded)
		assert.True(t, assessment.SuspendSession)
	})
}

func TestSafetyAssessmentFor(t *testing.T) {
	safety := newSafetySystem(new(interfaceMocks.SessionCache))

	t.Run("Elevated level carries warnings and support options", func(t *testing.T) {
		assessment := safety.AssessmentFor(models.DistressElevated, 4.5)

		assert.Equal(t, models.DistressElevated, assessment.Level)
		assert.NotEmpty(t, assessment.ContentWarnings)
		assert.NotEmpty(t, assessment.SupportOptions)
		assert.Empty(t, assessment.CrisisResources)
		assert.False(t, assessment.SuspendSession)
	})

	t.Run("Critical level suspends with crisis resources", func(t *testing.T) {
		assessment := safety.AssessmentFor(models.DistressCritical, 9.0)

		assert.NotEmpty(t, assessment.CrisisResources)
		assert.True(t, assessment.SuspendSession)
	})
}
