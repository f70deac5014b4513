package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TherapeuticApproach обозначает технику, заложенную в выбор.
type TherapeuticApproach string

const (
	ApproachCBT         TherapeuticApproach = "cbt"
	ApproachDBT         TherapeuticApproach = "dbt"
	ApproachMindfulness TherapeuticApproach = "mindfulness"
	ApproachNarrative   TherapeuticApproach = "narrative"
)

// IsValidApproach проверяет, является ли строка допустимым подходом.
func IsValidApproach(a TherapeuticApproach) bool {
	switch a {
	case ApproachCBT, ApproachDBT, ApproachMindfulness, ApproachNarrative:
		return true
	default:
		return false
	}
}

// Scene - неизменяемая нарративная единица. После того как сцена
// показана игроку, ни текст, ни выборы не мутируются (контроль через ContentHash).
type Scene struct {
	ID                 uuid.UUID `json:"id"`
	SessionID          uuid.UUID `json:"session_id"`
	Narrative          string    `json:"narrative"`
	Choices            []Choice  `json:"choices"`
	EmotionalIntensity int       `json:"emotional_intensity"` // 0..10
	TherapeuticFocus   []string  `json:"therapeutic_focus,omitempty"`
	ContentHash        string    `json:"content_hash"`
	IsFallback         bool      `json:"is_fallback,omitempty"` // Сцена из шаблона (fallback генерации).
	CreatedAt          time.Time `json:"created_at"`
}

// Choice - один вариант выбора в сцене. Неизменяем после показа,
// потребляется не более одного раза за ход.
type Choice struct {
	ID                 uuid.UUID           `json:"id"`
	Text               string              `json:"text"`
	ConsequencePreview string              `json:"consequence_preview,omitempty"`
	Approach           TherapeuticApproach `json:"approach"`
	DifficultyRating   int                 `json:"difficulty_rating"` // 1..6, соотносится с DifficultyLevel.
	AttributeDeltas    map[string]int      `json:"attribute_deltas,omitempty"`
}

// FindChoice ищет выбор по ID среди выборов сцены.
func (s *Scene) FindChoice(choiceID uuid.UUID) (*Choice, bool) {
	for i := range s.Choices {
		if s.Choices[i].ID == choiceID {
			return &s.Choices[i], true
		}
	}
	return nil, false
}

// ComputeContentHash считает детерминированный хеш содержимого сцены.
// Хеш фиксируется при создании и сверяется при приеме выбора,
// чтобы гарантировать неизменность показанного контента.
func (s *Scene) ComputeContentHash() string {
	var b strings.Builder
	b.WriteString(s.Narrative)
	b.WriteString("|")
	b.WriteString(fmt.Sprintf("%d", s.EmotionalIntensity))
	for _, ch := range s.Choices {
		b.WriteString("|")
		b.WriteString(ch.ID.String())
		b.WriteString(":")
		b.WriteString(ch.Text)
		b.WriteString(":")
		b.WriteString(string(ch.Approach))
		b.WriteString(fmt.Sprintf(":%d", ch.DifficultyRating))
		// Дельты сортируем по ключу для детерминизма.
		keys := make([]string, 0, len(ch.AttributeDeltas))
		for k := range ch.AttributeDeltas {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(fmt.Sprintf(":%s=%d", k, ch.AttributeDeltas[k]))
		}
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
