package service_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tta-server/internal/models"
	"tta-server/internal/service"
)

func TestResolveChoice(t *testing.T) {
	manager := service.NewChoiceArchitectureManager(zap.NewNop())

	t.Run("Valid choice resolves", func(t *testing.T) {
		scene := testScene(uuid.New())

		choice, err := manager.ResolveChoice(scene, scene.Choices[0].ID, nil)

		require.NoError(t, err)
		assert.Equal(t, scene.Choices[0].ID, choice.ID)
	})

	t.Run("Tampered scene fails integrity check", func(t *testing.T) {
		scene := testScene(uuid.New())
		scene.Narrative = "подмененный текст"

		_, err := manager.ResolveChoice(scene, scene.Choices[0].ID, nil)

		assert.ErrorIs(t, err, models.ErrSceneIntegrity)
	})

	t.Run("Foreign choice is rejected", func(t *testing.T) {
		scene := testScene(uuid.New())

		_, err := manager.ResolveChoice(scene, uuid.New(), nil)

		assert.ErrorIs(t, err, models.ErrInvalidChoice)
	})

	t.Run("Consumed choice is rejected", func(t *testing.T) {
		scene := testScene(uuid.New())
		history := []uuid.UUID{scene.Choices[1].ID}

		_, err := manager.ResolveChoice(scene, scene.Choices[1].ID, history)

		assert.ErrorIs(t, err, models.ErrChoiceAlreadyMade)
	})
}

func TestEnsureChoices(t *testing.T) {
	manager := service.NewChoiceArchitectureManager(zap.NewNop())

	t.Run("Empty scene gets default safe choices", func(t *testing.T) {
		scene := &models.Scene{
			ID:        uuid.New(),
			SessionID: uuid.New(),
			Narrative: "Тихая комната.",
		}

		manager.EnsureChoices(scene)

		require.Len(t, scene.Choices, 2)
		assert.Equal(t, scene.ComputeContentHash(), scene.ContentHash)
		for _, ch := range scene.Choices {
			assert.NotEmpty(t, ch.Text)
			assert.True(t, models.IsValidApproach(ch.Approach))
		}
	})

	t.Run("Existing choices are left untouched", func(t *testing.T) {
		scene := testScene(uuid.New())
		originalHash := scene.ContentHash

		manager.EnsureChoices(scene)

		assert.Len(t, scene.Choices, 2)
		assert.Equal(t, originalHash, scene.ContentHash)
	})
}
