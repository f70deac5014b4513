package models

// TurnResult - синхронный результат обработки выбора.
// Следующая сцена приходит асинхронно (через WebSocket или повторный GET),
// здесь только немедленная обратная связь хода.
type TurnResult struct {
	SessionStatus         SessionStatus    `json:"session_status"`
	Consequences          *ConsequenceSet  `json:"consequences,omitempty"`
	DifficultyExplanation string           `json:"difficulty_explanation,omitempty"` // Внутринарративное объяснение, без сырых чисел.
	Safety                SafetyAssessment `json:"safety"`
	Intervention          bool             `json:"intervention"` // true => ход не обработан, сработала защита.
}
