package models

// CharacterState хранит атрибуты персонажа игрока.
// Атрибуты мутируются ТОЛЬКО через применение ConsequenceSet.
type CharacterState struct {
	Attributes   map[string]int `json:"attributes"`              // Например: resilience, insight, calm, connection.
	CopingSkills []string       `json:"coping_skills,omitempty"` // Навыки, полученные из терапевтических инсайтов.
}

// Имена базовых атрибутов персонажа.
const (
	AttrResilience = "resilience"
	AttrInsight    = "insight"
	AttrCalm       = "calm"
	AttrConnection = "connection"
)

// Границы значений атрибутов.
const (
	AttrMinValue = 0
	AttrMaxValue = 100
)

// NewCharacterState возвращает стартовое состояние персонажа.
func NewCharacterState() CharacterState {
	return CharacterState{
		Attributes: map[string]int{
			AttrResilience: 50,
			AttrInsight:    50,
			AttrCalm:       50,
			AttrConnection: 50,
		},
	}
}

// HasCopingSkill проверяет, освоен ли навык.
func (c *CharacterState) HasCopingSkill(skill string) bool {
	for _, s := range c.CopingSkills {
		if s == skill {
			return true
		}
	}
	return false
}

// TherapeuticProgress - снапшот терапевтического прогресса сессии.
type TherapeuticProgress struct {
	InsightCount  int            `json:"insight_count"`            // Сколько инсайтов получено.
	ConceptCounts map[string]int `json:"concept_counts,omitempty"` // Сколько раз затрагивался каждый концепт (cbt, dbt, mindfulness...).
	SkillsLearned int            `json:"skills_learned"`
}

// RecordInsight учитывает один полученный инсайт.
func (p *TherapeuticProgress) RecordInsight(concept string, newSkill bool) {
	p.InsightCount++
	if concept != "" {
		if p.ConceptCounts == nil {
			p.ConceptCounts = make(map[string]int)
		}
		p.ConceptCounts[concept]++
	}
	if newSkill {
		p.SkillsLearned++
	}
}
