package handler

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"tta-server/internal/models"
)

// CustomValidator оборачивает go-playground/validator для echo.
type CustomValidator struct {
	validator *validator.Validate
}

// NewCustomValidator создает валидатор запросов.
func NewCustomValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

// Validate реализует echo.Validator.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// --- Запросы ---

// startSessionRequest - тело POST /sessions.
type startSessionRequest struct {
	// Терапевтические концепты, на которых фокусируется сессия.
	FocusConcepts []string `json:"focus_concepts" validate:"omitempty,max=4,dive,oneof=cbt dbt mindfulness narrative"`
}

// makeChoiceRequest - тело POST /sessions/:id/choice.
type makeChoiceRequest struct {
	ChoiceID string `json:"choice_id" validate:"required,uuid"`
	// Свободный текст игрока (рефлексия). Оценивается системой безопасности.
	ReflectionText string `json:"reflection_text" validate:"omitempty,max=2000"`
}

// --- Ответы ---

// SessionResponseDTO - представление сессии для клиента.
type SessionResponseDTO struct {
	ID             uuid.UUID      `json:"id"`
	Status         string         `json:"status"`
	CurrentSceneID *uuid.UUID     `json:"current_scene_id,omitempty"`
	Difficulty     string         `json:"difficulty"`
	Attributes     map[string]int `json:"attributes"`
	CopingSkills   []string       `json:"coping_skills,omitempty"`
	InsightCount   int            `json:"insight_count"`
	FocusConcepts  []string       `json:"focus_concepts,omitempty"`
	TurnsTaken     int            `json:"turns_taken"`
	StartedAt      time.Time      `json:"started_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
}

// ChoiceDTO - вариант выбора для клиента. Сырые дельты атрибутов
// клиенту не отдаются, только нарративный намек на последствие.
type ChoiceDTO struct {
	ID                 uuid.UUID `json:"id"`
	Text               string    `json:"text"`
	ConsequencePreview string    `json:"consequence_preview,omitempty"`
	Approach           string    `json:"approach"`
}

// SceneResponseDTO - текущая сцена для клиента.
type SceneResponseDTO struct {
	ID                 uuid.UUID   `json:"id"`
	SessionID          uuid.UUID   `json:"session_id"`
	Narrative          string      `json:"narrative"`
	Choices            []ChoiceDTO `json:"choices"`
	EmotionalIntensity int         `json:"emotional_intensity"`
	TherapeuticFocus   []string    `json:"therapeutic_focus,omitempty"`
	IsFallback         bool        `json:"is_fallback,omitempty"`
}

// TurnResultResponseDTO - синхронный ответ на подачу выбора.
type TurnResultResponseDTO struct {
	SessionStatus         string                   `json:"session_status"`
	Immediate             []string                 `json:"immediate,omitempty"`
	Insights              []string                 `json:"insights,omitempty"`
	DifficultyExplanation string                   `json:"difficulty_explanation,omitempty"`
	Safety                *models.SafetyAssessment `json:"safety,omitempty"`
	Intervention          bool                     `json:"intervention"`
}

func toSessionResponse(state *models.SessionState) SessionResponseDTO {
	return SessionResponseDTO{
		ID:             state.ID,
		Status:         string(state.Status),
		CurrentSceneID: state.CurrentSceneID,
		Difficulty:     state.Difficulty.String(),
		Attributes:     state.Character.Attributes,
		CopingSkills:   state.Character.CopingSkills,
		InsightCount:   state.Progress.InsightCount,
		FocusConcepts:  state.FocusConcepts,
		TurnsTaken:     len(state.ChoiceHistory),
		StartedAt:      state.StartedAt,
		LastActivityAt: state.LastActivityAt,
	}
}

func toSceneResponse(scene *models.Scene) SceneResponseDTO {
	dto := SceneResponseDTO{
		ID:                 scene.ID,
		SessionID:          scene.SessionID,
		Narrative:          scene.Narrative,
		EmotionalIntensity: scene.EmotionalIntensity,
		TherapeuticFocus:   scene.TherapeuticFocus,
		IsFallback:         scene.IsFallback,
	}
	for _, ch := range scene.Choices {
		dto.Choices = append(dto.Choices, ChoiceDTO{
			ID:                 ch.ID,
			Text:               ch.Text,
			ConsequencePreview: ch.ConsequencePreview,
			Approach:           string(ch.Approach),
		})
	}
	return dto
}

func toTurnResultResponse(result *models.TurnResult) TurnResultResponseDTO {
	dto := TurnResultResponseDTO{
		SessionStatus:         string(result.SessionStatus),
		DifficultyExplanation: result.DifficultyExplanation,
		Safety:                &result.Safety,
		Intervention:          result.Intervention,
	}
	if result.Consequences != nil {
		for _, c := range result.Consequences.Immediate {
			dto.Immediate = append(dto.Immediate, c.Text)
		}
		for _, ins := range result.Consequences.Insights {
			dto.Insights = append(dto.Insights, ins.Text)
		}
	}
	return dto
}
