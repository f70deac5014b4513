package models

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse - стандартная структура для ответа об ошибке в формате JSON.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SendJSONError отправляет стандартизированный ответ об ошибке в формате JSON.
// Используется в middleware, работающем на уровне http.Handler.
func SendJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
