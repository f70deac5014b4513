package generation

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"tta-server/internal/messaging"
)

// Кодировка для подсчета токенов. cl100k_base покрывает модели GPT-3.5/4
// и достаточно близка для оценки бюджета на других моделях.
const tokenEncoding = "cl100k_base"

// Компактные ключи JSON ответа модели экономят токены ответа:
// n - narrative, ei - emotional_intensity, tf - therapeutic_focus,
// ns - narrative_summary, ch - choices (t - text, cp - consequence_preview,
// a - approach, dr - difficulty_rating, ad - attribute_deltas).
const initialScenePrompt = `Ты - рассказчик терапевтической текстовой игры. Игрок проживает интерактивную историю, в которой выборы отражают техники работы с эмоциями (cbt, dbt, mindfulness, narrative).

Создай ПЕРВУЮ сцену новой истории. Сцена должна мягко ввести игрока в мир, без тяжелых тем в начале.

Требования:
- Нарратив 2-4 абзаца, второе лицо, настоящее время.
- От 2 до 4 вариантов выбора, каждый отражает один терапевтический подход.
- Каждый выбор имеет короткий намек на последствие (не спойлер).
- Дельты атрибутов из набора: resilience, insight, calm, connection. Значения от -5 до +5.
- emotional_intensity от 0 до 10.

Ответ СТРОГО одним JSON объектом без пояснений:
{"n":"текст сцены","ei":3,"tf":["mindfulness"],"ns":"краткая сводка сюжета","ch":[{"t":"текст выбора","cp":"намек на последствие","a":"cbt","dr":2,"ad":{"insight":2}}]}`

const nextScenePrompt = `Ты - рассказчик терапевтической текстовой игры. Игрок проживает интерактивную историю, в которой выборы отражают техники работы с эмоциями (cbt, dbt, mindfulness, narrative).

Создай СЛЕДУЮЩУЮ сцену, продолжающую историю после выбора игрока. Сцена должна отразить последствия выбора и органично развить сюжет.

Требования:
- Нарратив 2-4 абзаца, второе лицо, настоящее время.
- Начни с отражения последствий сделанного выбора.
- От 2 до 4 вариантов выбора, каждый отражает один терапевтический подход.
- Каждый выбор имеет короткий намек на последствие (не спойлер).
- Дельты атрибутов из набора: resilience, insight, calm, connection. Значения от -5 до +5.
- emotional_intensity от 0 до 10.
- Обнови сводку сюжета (ns) с учетом новой сцены.

Ответ СТРОГО одним JSON объектом без пояснений:
{"n":"текст сцены","ei":3,"tf":["mindfulness"],"ns":"краткая сводка сюжета","ch":[{"t":"текст выбора","cp":"намек на последствие","a":"cbt","dr":2,"ad":{"insight":2}}]}`

// PromptBuilder собирает системный промт и пользовательский ввод
// для задачи генерации, удерживая их в бюджете токенов.
type PromptBuilder struct {
	maxPromptTokens int
}

// NewPromptBuilder creates a new PromptBuilder.
func NewPromptBuilder(maxPromptTokens int) *PromptBuilder {
	return &PromptBuilder{maxPromptTokens: maxPromptTokens}
}

// BuildSystemPrompt возвращает системный промт для типа задачи,
// дополненный директивами сложности и безопасности.
func (b *PromptBuilder) BuildSystemPrompt(task *messaging.NarrativeTaskPayload) (string, error) {
	var base string
	switch task.PromptType {
	case messaging.PromptTypeInitialScene:
		base = initialScenePrompt
	case messaging.PromptTypeNextScene:
		base = nextScenePrompt
	default:
		return "", fmt.Errorf("неизвестный тип промта: %q", task.PromptType)
	}

	var sb strings.Builder
	sb.WriteString(base)
	if task.DifficultyDirective != "" {
		sb.WriteString("\n\nСложность: ")
		sb.WriteString(task.DifficultyDirective)
	}
	if task.SafetyDirective != "" {
		sb.WriteString("\n\nБезопасность: ")
		sb.WriteString(task.SafetyDirective)
	}
	return sb.String(), nil
}

// BuildUserInput сериализует контекст сессии в компактный текстовый блок.
// Если суммарный промт не влезает в бюджет, сводка сюжета усекается.
func (b *PromptBuilder) BuildUserInput(task *messaging.NarrativeTaskPayload, systemPrompt string) (string, error) {
	ctx := task.SceneContext

	input := b.renderContext(ctx)

	tke, err := tiktoken.GetEncoding(tokenEncoding)
	if err != nil {
		// Без токенизатора бюджет не контролируем, но генерацию не блокируем.
		log.Printf("[WARN] Не удалось получить токенизатор %s: %v. Бюджет промта не проверяется.", tokenEncoding, err)
		return input, nil
	}

	systemTokens := len(tke.Encode(systemPrompt, nil, nil))
	inputTokens := len(tke.Encode(input, nil, nil))

	if systemTokens+inputTokens <= b.maxPromptTokens {
		return input, nil
	}

	// Усекаем сводку: это единственное неограниченно растущее поле контекста.
	overBudget := systemTokens + inputTokens - b.maxPromptTokens
	summaryTokens := tke.Encode(ctx.NarrativeSummary, nil, nil)
	if len(summaryTokens) <= overBudget {
		return "", fmt.Errorf("промт превышает бюджет %d токенов даже без сводки сюжета", b.maxPromptTokens)
	}

	truncated := tke.Decode(summaryTokens[overBudget:])
	log.Printf("[WARN] Сводка сюжета усечена на %d токенов для соблюдения бюджета (session_id: %s)", overBudget, task.SessionID)

	ctx.NarrativeSummary = "..." + truncated
	return b.renderContext(ctx), nil
}

func (b *PromptBuilder) renderContext(ctx messaging.SceneContextPayload) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Ход: %d\n", ctx.TurnNumber)

	if ctx.NarrativeSummary != "" {
		sb.WriteString("Сводка сюжета: ")
		sb.WriteString(ctx.NarrativeSummary)
		sb.WriteString("\n")
	}
	if ctx.LastChoiceText != "" {
		sb.WriteString("Последний выбор игрока: ")
		sb.WriteString(ctx.LastChoiceText)
		sb.WriteString("\n")
	}
	if ctx.LastConsequenceText != "" {
		sb.WriteString("Последствие выбора: ")
		sb.WriteString(ctx.LastConsequenceText)
		sb.WriteString("\n")
	}
	if len(ctx.CharacterAttributes) > 0 {
		// Сортируем ключи для детерминированного промта.
		keys := make([]string, 0, len(ctx.CharacterAttributes))
		for k := range ctx.CharacterAttributes {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("Атрибуты персонажа:")
		for _, k := range keys {
			fmt.Fprintf(&sb, " %s=%d", k, ctx.CharacterAttributes[k])
		}
		sb.WriteString("\n")
	}
	if len(ctx.CopingSkills) > 0 {
		sb.WriteString("Освоенные навыки: ")
		sb.WriteString(strings.Join(ctx.CopingSkills, ", "))
		sb.WriteString("\n")
	}
	if len(ctx.FocusConcepts) > 0 {
		sb.WriteString("Фокус сессии: ")
		sb.WriteString(strings.Join(ctx.FocusConcepts, ", "))
		sb.WriteString("\n")
	}

	return sb.String()
}
