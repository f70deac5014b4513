package models

// DifficultyLevel - шестиуровневая шкала сложности (VERY_EASY..VERY_HARD).
type DifficultyLevel int

const (
	DifficultyVeryEasy DifficultyLevel = iota
	DifficultyEasy
	DifficultyMedium
	DifficultyChallenging
	DifficultyHard
	DifficultyVeryHard
)

var difficultyNames = [...]string{"very_easy", "easy", "medium", "challenging", "hard", "very_hard"}

func (d DifficultyLevel) String() string {
	if d < DifficultyVeryEasy || d > DifficultyVeryHard {
		return "unknown"
	}
	return difficultyNames[d]
}

// ParseDifficultyLevel восстанавливает уровень из строкового представления.
func ParseDifficultyLevel(s string) (DifficultyLevel, bool) {
	for i, name := range difficultyNames {
		if name == s {
			return DifficultyLevel(i), true
		}
	}
	return DifficultyVeryEasy, false
}

// Clamp ограничивает уровень допустимым диапазоном.
func (d DifficultyLevel) Clamp() DifficultyLevel {
	if d < DifficultyVeryEasy {
		return DifficultyVeryEasy
	}
	if d > DifficultyVeryHard {
		return DifficultyVeryHard
	}
	return d
}
