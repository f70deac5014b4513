package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus определяет возможные статусы игровой сессии.
// Совпадает со значением свойства status у узла (:Session) в графе.
type SessionStatus string

const (
	SessionStatusActive          SessionStatus = "active"           // Игрок находится на сцене и может делать выбор.
	SessionStatusGeneratingScene SessionStatus = "generating_scene" // Идет генерация следующей сцены.
	SessionStatusSuspended       SessionStatus = "suspended"        // Сессия приостановлена системой эмоциональной безопасности.
	SessionStatusCompleted       SessionStatus = "completed"        // Прохождение завершено игроком.
	SessionStatusArchived        SessionStatus = "archived"         // Сессия заархивирована (никогда не удаляется).
	SessionStatusError           SessionStatus = "error"            // Ошибка генерации, требуется retry.
)

// SessionState представляет состояние одного прохождения игрока.
// Владелец состояния - GameplayLoopService; подсистемы получают
// значения и дельты, но никогда не пишут в структуру напрямую.
type SessionState struct {
	ID               uuid.UUID           `json:"id"`
	PlayerID         uuid.UUID           `json:"player_id"`
	Status           SessionStatus       `json:"status"`
	CurrentSceneID   *uuid.UUID          `json:"current_scene_id,omitempty"` // Инвариант: не более одной текущей сцены.
	ChoiceHistory    []uuid.UUID         `json:"choice_history"`             // Упорядоченная история сделанных выборов.
	Character        CharacterState      `json:"character"`
	Progress         TherapeuticProgress `json:"progress"`
	Emotional        EmotionalSnapshot   `json:"emotional"`
	Difficulty       DifficultyLevel     `json:"difficulty"`
	RecentTurns      []TurnOutcome       `json:"recent_turns"`                // Скользящее окно для AdaptiveDifficultyEngine.
	NarrativeSummary string              `json:"narrative_summary,omitempty"` // Сводка сюжета для генерации следующих сцен.
	FocusConcepts    []string            `json:"focus_concepts,omitempty"`    // Терапевтические концепты сессии (FOCUSES_ON).
	ErrorDetails     *string             `json:"error_details,omitempty"`
	StartedAt        time.Time           `json:"started_at"`
	LastActivityAt   time.Time           `json:"last_activity_at"`
	ArchivedAt       *time.Time          `json:"archived_at,omitempty"`
}

// IsTerminal сообщает, завершена ли сессия окончательно.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusArchived
}

// TurnOutcome фиксирует результат одного хода для калибровки сложности.
type TurnOutcome struct {
	ChoiceID      uuid.UUID     `json:"choice_id"`
	Success       bool          `json:"success"`        // Эвристика: суммарная дельта атрибутов неотрицательна.
	Distress      DistressLevel `json:"distress"`       // Уровень дистресса на момент хода.
	ResponseDelay time.Duration `json:"response_delay"` // Сколько игрок думал над выбором.
	CompletedAt   time.Time     `json:"completed_at"`
}

// MaxRecentTurns ограничивает окно истории ходов в состоянии сессии.
const MaxRecentTurns = 10

// AppendTurn добавляет результат хода, поддерживая размер окна.
func (s *SessionState) AppendTurn(outcome TurnOutcome) {
	s.RecentTurns = append(s.RecentTurns, outcome)
	if len(s.RecentTurns) > MaxRecentTurns {
		s.RecentTurns = s.RecentTurns[len(s.RecentTurns)-MaxRecentTurns:]
	}
}
