package models

import "github.com/google/uuid"

// ClientUpdateType - тип push-обновления для клиента.
type ClientUpdateType string

const (
	ClientUpdateSceneReady       ClientUpdateType = "scene_ready"       // Новая сцена готова к показу.
	ClientUpdateGenerationFailed ClientUpdateType = "generation_failed" // Генерация не удалась, показана fallback-сцена или требуется retry.
	ClientUpdateSafetyAlert      ClientUpdateType = "safety_alert"      // Сработала система эмоциональной безопасности.
	ClientUpdateSessionSuspended ClientUpdateType = "session_suspended" // Сессия приостановлена.
)

// ClientSessionUpdate - сообщение, доставляемое игроку через WebSocket.
type ClientSessionUpdate struct {
	Type      ClientUpdateType `json:"type"`
	PlayerID  uuid.UUID        `json:"player_id"`
	SessionID uuid.UUID        `json:"session_id"`
	SceneID   *uuid.UUID       `json:"scene_id,omitempty"`
	Message   string           `json:"message,omitempty"`
	// Для safety_alert / session_suspended.
	Safety *SafetyAssessment `json:"safety,omitempty"`
}
