package service

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tta-server/internal/models"
)

// ConsequenceSystem порождает и применяет последствия выбора.
// Применение мутирует только переданные фрагменты состояния;
// контроллер решает, когда и что передать.
type ConsequenceSystem interface {
	// Derive строит детерминированный набор последствий для выбора.
	Derive(sessionID uuid.UUID, choice *models.Choice) *models.ConsequenceSet
	// Apply применяет набор к персонажу и терапевтическому прогрессу.
	// Идемпотентность обеспечивает вызывающий (маркер + MERGE в графе);
	// сам Apply выполняется ровно один раз на набор.
	Apply(character *models.CharacterState, progress *models.TherapeuticProgress, cs *models.ConsequenceSet)
}

// Дельты по умолчанию, когда генератор не назначил выбору собственных.
var approachDefaultDeltas = map[models.TherapeuticApproach]map[string]int{
	models.ApproachCBT:         {models.AttrInsight: 2},
	models.ApproachDBT:         {models.AttrResilience: 2},
	models.ApproachMindfulness: {models.AttrCalm: 2},
	models.ApproachNarrative:   {models.AttrConnection: 2},
}

// Навык совладания, закрепляемый за каждым подходом.
var approachSkills = map[models.TherapeuticApproach]string{
	models.ApproachCBT:         "рефрейминг мыслей",
	models.ApproachDBT:         "переживание дистресса",
	models.ApproachMindfulness: "заземление",
	models.ApproachNarrative:   "пересказ своей истории",
}

var approachInsightTexts = map[models.TherapeuticApproach]string{
	models.ApproachCBT:         "Ты заметил мысль и взглянул на нее со стороны - это меняет ее силу.",
	models.ApproachDBT:         "Ты выдержал сложный момент, не убегая от него.",
	models.ApproachMindfulness: "Ты вернулся к настоящему моменту и нашел в нем опору.",
	models.ApproachNarrative:   "Ты рассказал часть своей истории по-новому - и она зазвучала иначе.",
}

type consequenceSystemImpl struct {
	logger *zap.Logger
}

// NewConsequenceSystem creates a new ConsequenceSystem.
func NewConsequenceSystem(logger *zap.Logger) ConsequenceSystem {
	return &consequenceSystemImpl{
		logger: logger.Named("ConsequenceSystem"),
	}
}

func (c *consequenceSystemImpl) Derive(sessionID uuid.UUID, choice *models.Choice) *models.ConsequenceSet {
	deltas := choice.AttributeDeltas
	if len(deltas) == 0 {
		deltas = approachDefaultDeltas[choice.Approach]
	}
	// Копируем: набор не должен делить карту с выбором.
	deltasCopy := make(map[string]int, len(deltas))
	for k, v := range deltas {
		deltasCopy[k] = v
	}

	cs := &models.ConsequenceSet{
		ID:              uuid.New(),
		ChoiceID:        choice.ID,
		SessionID:       sessionID,
		AttributeDeltas: deltasCopy,
		CreatedAt:       time.Now().UTC(),
	}

	if choice.ConsequencePreview != "" {
		cs.Immediate = append(cs.Immediate, models.Consequence{
			Kind: models.ConsequenceImmediate,
			Text: choice.ConsequencePreview,
		})
	}

	// Сложные выборы оставляют отложенный след в истории.
	if choice.DifficultyRating >= 4 {
		cs.Delayed = append(cs.Delayed, models.Consequence{
			Kind: models.ConsequenceDelayed,
			Text: "Этот выбор еще отзовется в дальнейших событиях.",
		})
	}

	if text, ok := approachInsightTexts[choice.Approach]; ok {
		cs.Insights = append(cs.Insights, models.TherapeuticInsight{
			Concept: string(choice.Approach),
			Text:    text,
			Skill:   approachSkills[choice.Approach],
		})
	}

	return cs
}

func (c *consequenceSystemImpl) Apply(character *models.CharacterState, progress *models.TherapeuticProgress, cs *models.ConsequenceSet) {
	if character.Attributes == nil {
		character.Attributes = make(map[string]int)
	}

	for attr, delta := range cs.AttributeDeltas {
		v := character.Attributes[attr] + delta
		if v < models.AttrMinValue {
			v = models.AttrMinValue
		}
		if v > models.AttrMaxValue {
			v = models.AttrMaxValue
		}
		character.Attributes[attr] = v
	}

	for _, insight := range cs.Insights {
		newSkill := false
		if insight.Skill != "" && !character.HasCopingSkill(insight.Skill) {
			character.CopingSkills = append(character.CopingSkills, insight.Skill)
			newSkill = true
		}
		progress.RecordInsight(insight.Concept, newSkill)
	}

	c.logger.Debug("Consequence set applied",
		zap.Stringer("choiceID", cs.ChoiceID),
		zap.Int("netDelta", cs.NetDelta()),
		zap.Int("insights", len(cs.Insights)))
}
