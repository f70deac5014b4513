package messaging

// PromptType определяет тип запроса к AI генератору
type PromptType string

// Константы для типов промптов
const (
	PromptTypeInitialScene PromptType = "initial_scene" // Генерация первой сцены сессии
	PromptTypeNextScene    PromptType = "next_scene"    // Генерация следующей сцены после выбора
)

// IsValidPromptType проверяет, является ли строка допустимым PromptType.
func IsValidPromptType(pt PromptType) bool {
	switch pt {
	case PromptTypeInitialScene, PromptTypeNextScene:
		return true
	default:
		return false
	}
}

// SceneContextPayload - контекст сессии, необходимый воркеру для генерации сцены.
// Контроллер собирает его из SessionState; воркер не ходит в хранилища.
type SceneContextPayload struct {
	NarrativeSummary    string         `json:"narrative_summary,omitempty"` // Сводка сюжета на текущий момент
	LastChoiceText      string         `json:"last_choice_text,omitempty"`  // Текст последнего выбора игрока
	LastConsequenceText string         `json:"last_consequence_text,omitempty"`
	CharacterAttributes map[string]int `json:"character_attributes,omitempty"`
	CopingSkills        []string       `json:"coping_skills,omitempty"`
	FocusConcepts       []string       `json:"focus_concepts,omitempty"` // Терапевтические концепты сессии
	TurnNumber          int            `json:"turn_number"`
}

// NarrativeTaskPayload - структура сообщения для задачи генерации сцены
type NarrativeTaskPayload struct {
	TaskID              string              `json:"task_id"`
	SessionID           string              `json:"session_id"`
	PlayerID            string              `json:"player_id"`
	PromptType          PromptType          `json:"prompt_type"`
	SceneContext        SceneContextPayload `json:"scene_context"`
	DifficultyDirective string              `json:"difficulty_directive,omitempty"` // Внутринарративное указание по сложности
	SafetyDirective     string              `json:"safety_directive,omitempty"`     // Указание по эмоциональной интенсивности/предупреждениям
}

// NarrativeResultPayload - структура сообщения с результатом генерации
type NarrativeResultPayload struct {
	TaskID           string       `json:"task_id"`
	SessionID        string       `json:"session_id"`
	PlayerID         string       `json:"player_id"`
	PromptType       PromptType   `json:"prompt_type"`
	Status           ResultStatus `json:"status"`
	GeneratedContent string       `json:"generated_content,omitempty"` // Сырой JSON сцены от модели
	ErrorDetails     string       `json:"error_details,omitempty"`
}
