package generation

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tta-server/internal/models"
)

const validSceneJSON = `{
	"n": "Ты стоишь на пороге старого дома. Внутри тихо.",
	"ei": 3,
	"tf": ["mindfulness"],
	"ns": "Герой прибыл к старому дому.",
	"ch": [
		{"t": "Сделать глубокий вдох и войти", "cp": "Спокойствие поможет осмотреться", "a": "mindfulness", "dr": 2, "ad": {"calm": 2}},
		{"t": "Записать свои мысли перед входом", "cp": "Мысли станут яснее", "a": "cbt", "dr": 3, "ad": {"insight": 3}}
	]
}`

func TestParseSceneContent_Valid(t *testing.T) {
	sessionID := uuid.New()

	result, err := ParseSceneContent(validSceneJSON, sessionID)
	require.NoError(t, err)
	require.NotNil(t, result.Scene)

	scene := result.Scene
	assert.Equal(t, sessionID, scene.SessionID)
	assert.NotEqual(t, uuid.Nil, scene.ID)
	assert.Equal(t, "Ты стоишь на пороге старого дома. Внутри тихо.", scene.Narrative)
	assert.Equal(t, 3, scene.EmotionalIntensity)
	assert.Equal(t, []string{"mindfulness"}, scene.TherapeuticFocus)
	assert.Equal(t, "Герой прибыл к старому дому.", result.NarrativeSummary)

	require.Len(t, scene.Choices, 2)
	assert.Equal(t, models.ApproachMindfulness, scene.Choices[0].Approach)
	assert.Equal(t, models.ApproachCBT, scene.Choices[1].Approach)
	assert.Equal(t, map[string]int{"calm": 2}, scene.Choices[0].AttributeDeltas)

	// Хеш содержимого должен быть рассчитан и воспроизводим.
	assert.NotEmpty(t, scene.ContentHash)
	assert.Equal(t, scene.ComputeContentHash(), scene.ContentHash)
}

func TestParseSceneContent_MarkdownFence(t *testing.T) {
	raw := "Вот сцена:\n```json\n" + validSceneJSON + "\n```\nНадеюсь, подходит!"

	result, err := ParseSceneContent(raw, uuid.New())
	require.NoError(t, err)
	assert.Len(t, result.Scene.Choices, 2)
}

func TestParseSceneContent_InvalidApproachFallsBack(t *testing.T) {
	raw := `{
		"n": "Сцена",
		"ei": 1,
		"ch": [
			{"t": "Выбор один", "a": "hypnosis", "dr": 2},
			{"t": "Выбор два", "a": "cbt", "dr": 2}
		]
	}`

	result, err := ParseSceneContent(raw, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, models.ApproachNarrative, result.Scene.Choices[0].Approach)
}

func TestParseSceneContent_Errors(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
	}{
		{
			name: "not json",
			raw:  "просто текст без объекта",
		},
		{
			name: "empty narrative",
			raw:  `{"n": "", "ei": 1, "ch": [{"t": "a", "a": "cbt", "dr": 1}, {"t": "b", "a": "dbt", "dr": 1}]}`,
		},
		{
			name: "too few choices",
			raw:  `{"n": "Сцена", "ei": 1, "ch": [{"t": "a", "a": "cbt", "dr": 1}]}`,
		},
		{
			name: "too many choices",
			raw: `{"n": "Сцена", "ei": 1, "ch": [
				{"t": "a", "a": "cbt", "dr": 1}, {"t": "b", "a": "cbt", "dr": 1},
				{"t": "c", "a": "cbt", "dr": 1}, {"t": "d", "a": "cbt", "dr": 1},
				{"t": "e", "a": "cbt", "dr": 1}]}`,
		},
		{
			name: "intensity out of range",
			raw:  `{"n": "Сцена", "ei": 11, "ch": [{"t": "a", "a": "cbt", "dr": 1}, {"t": "b", "a": "dbt", "dr": 1}]}`,
		},
		{
			name: "delta out of range",
			raw:  `{"n": "Сцена", "ei": 1, "ch": [{"t": "a", "a": "cbt", "dr": 1, "ad": {"calm": 20}}, {"t": "b", "a": "dbt", "dr": 1}]}`,
		},
		{
			name: "choice without text",
			raw:  `{"n": "Сцена", "ei": 1, "ch": [{"t": "", "a": "cbt", "dr": 1}, {"t": "b", "a": "dbt", "dr": 1}]}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseSceneContent(tc.raw, uuid.New())
			assert.Error(t, err)
		})
	}
}

func TestParseSceneContent_DifficultyRatingClamped(t *testing.T) {
	raw := `{
		"n": "Сцена",
		"ei": 1,
		"ch": [
			{"t": "Выбор один", "a": "cbt", "dr": 0},
			{"t": "Выбор два", "a": "dbt", "dr": 99}
		]
	}`

	result, err := ParseSceneContent(raw, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scene.Choices[0].DifficultyRating)
	assert.Equal(t, 6, result.Scene.Choices[1].DifficultyRating)
}
