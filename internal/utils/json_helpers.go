package utils

import (
	"errors"
	"strings"
)

// ErrNoJSONObject возвращается, когда в тексте не найден JSON объект.
var ErrNoJSONObject = errors.New("no JSON object found in text")

// ExtractJSONObject вырезает первый JSON объект из ответа модели.
// Модели регулярно оборачивают JSON в markdown-ограждения или
// добавляют пояснительный текст до/после объекта.
func ExtractJSONObject(raw string) (string, error) {
	s := strings.TrimSpace(raw)

	// Убираем markdown code fence, если он есть.
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	start := strings.Index(s, "{")
	if start < 0 {
		return "", ErrNoJSONObject
	}

	// Ищем закрывающую скобку с учетом вложенности и строк.
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", ErrNoJSONObject
}
