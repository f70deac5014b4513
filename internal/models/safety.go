package models

import "time"

// DistressLevel - дискретный уровень дистресса игрока.
// Шесть уровней, NONE -> CRITICAL.
type DistressLevel int

const (
	DistressNone DistressLevel = iota
	DistressMinimal
	DistressModerate
	DistressElevated
	DistressHigh
	DistressCritical
)

var distressNames = [...]string{"none", "minimal", "moderate", "elevated", "high", "critical"}

func (d DistressLevel) String() string {
	if d < DistressNone || d > DistressCritical {
		return "unknown"
	}
	return distressNames[d]
}

// EmotionalSnapshot - снимок эмоционального состояния в SessionState.
type EmotionalSnapshot struct {
	Level      DistressLevel `json:"level"`
	Score      float64       `json:"score"` // Сырая оценка классификатора.
	ObservedAt time.Time     `json:"observed_at"`
}

// CrisisResource - внешний ресурс кризисной поддержки.
type CrisisResource struct {
	Name         string `json:"name"`
	Contact      string `json:"contact"`
	Availability string `json:"availability"`
}

// SafetyAssessment - результат проверки EmotionalSafetySystem для одного хода.
// Система безопасности никогда не возвращает ошибку наружу: внутренний сбой
// классификатора превращается в осторожную оценку с приостановкой сессии.
type SafetyAssessment struct {
	Level           DistressLevel    `json:"level"`
	Score           float64          `json:"score"`
	ContentWarnings []string         `json:"content_warnings,omitempty"`
	SupportOptions  []string         `json:"support_options,omitempty"`
	CrisisResources []CrisisResource `json:"crisis_resources,omitempty"`
	SuspendSession  bool             `json:"suspend_session"` // true => немедленная приостановка.
	Degraded        bool             `json:"degraded"`        // true => классификатор отработал в аварийном режиме.
}
