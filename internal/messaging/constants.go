package messaging

// Имена очередей по умолчанию (переопределяются конфигом).
const (
	DefaultNarrativeTaskQueue   = "narrative_generation_tasks"
	DefaultInternalUpdatesQueue = "internal_updates"
	DefaultClientUpdatesQueue   = "client_updates"
)

// DLX для очереди задач генерации. Должен совпадать у паблишера и консьюмера.
const (
	NarrativeTaskDLX        = "narrative_generation_tasks_dlx"
	NarrativeTaskDLQRouting = "dlq"
)

// ResultStatus определяет статус результата генерации.
type ResultStatus string

const (
	ResultStatusSuccess ResultStatus = "success"
	ResultStatusError   ResultStatus = "error"
)
