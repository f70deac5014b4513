package models

import (
	"time"

	"github.com/google/uuid"
)

// ConsequenceKind различает немедленные и отложенные последствия.
type ConsequenceKind string

const (
	ConsequenceImmediate ConsequenceKind = "immediate"
	ConsequenceDelayed   ConsequenceKind = "delayed"
)

// Consequence - одно нарративное последствие выбора.
type Consequence struct {
	Kind ConsequenceKind `json:"kind"`
	Text string          `json:"text"`
}

// TherapeuticInsight - терапевтический вывод, порожденный выбором.
type TherapeuticInsight struct {
	Concept string `json:"concept"`         // cbt, dbt, mindfulness, narrative
	Text    string `json:"text"`            // Формулировка инсайта для игрока.
	Skill   string `json:"skill,omitempty"` // Навык совладания, если выбор его дает.
}

// ConsequenceSet - полный набор эффектов одного выбора.
// Применение идемпотентно: повторное применение для того же ChoiceID
// не должно удваивать дельты (контроль через маркер в Redis и
// MERGE связи RESULTS_IN в графе).
type ConsequenceSet struct {
	ID              uuid.UUID            `json:"id"`
	ChoiceID        uuid.UUID            `json:"choice_id"`
	SessionID       uuid.UUID            `json:"session_id"`
	Immediate       []Consequence        `json:"immediate,omitempty"`
	Delayed         []Consequence        `json:"delayed,omitempty"`
	Insights        []TherapeuticInsight `json:"insights,omitempty"`
	AttributeDeltas map[string]int       `json:"attribute_deltas,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

// NetDelta возвращает суммарную дельту атрибутов.
// Используется как эвристика успешности хода.
func (cs *ConsequenceSet) NetDelta() int {
	total := 0
	for _, d := range cs.AttributeDeltas {
		total += d
	}
	return total
}
