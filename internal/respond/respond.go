// Package respond пишет JSON-ответы API в едином формате
// {ok: true, ...} / {ok: false, error, hint?}.
package respond

import (
	"encoding/json"
	"net/http"

	"github.com/leoygitty/GSR-App/internal/apperr"
	"github.com/sirupsen/logrus"
)

// ErrorBody - тело ответа с ошибкой.
type ErrorBody struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

// internalErrorBody отдается, если ответ не удалось сериализовать.
var internalErrorBody = []byte(`{"ok":false,"error":"Internal server error"}` + "\n")

var encodeLog logrus.FieldLogger = logrus.StandardLogger()

// SetLogger задает логгер для ошибок сериализации ответов.
func SetLogger(log logrus.FieldLogger) {
	if log != nil {
		encodeLog = log
	}
}

// JSON сериализует v со статусом status. Ответы API не кэшируются.
// Тело собирается до записи заголовков: при ошибке сериализации клиент
// получает 500, а не обрезанный ответ.
func JSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		encodeLog.WithError(err).WithField("status", status).Error("[API] Ошибка сериализации ответа")
		status = http.StatusInternalServerError
		body = internalErrorBody
	} else {
		body = append(body, '\n')
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error отображает ошибку на HTTP-статус и пишет тело ошибки.
// Ошибки хранилища и внутренние ошибки логируются, клиенту уходит общее сообщение.
func Error(w http.ResponseWriter, log logrus.FieldLogger, err error) {
	status := apperr.HTTPStatus(err)
	msg, hint := apperr.PublicMessage(err)
	if status >= http.StatusInternalServerError && log != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"status": status,
			"kind":   apperr.KindOf(err).String(),
		}).Error("[API] Ошибка обработки запроса")
	}
	JSON(w, status, ErrorBody{OK: false, Error: msg, Hint: hint})
}

// Message пишет ошибку с явным статусом и текстом.
func Message(w http.ResponseWriter, status int, msg, hint string) {
	JSON(w, status, ErrorBody{OK: false, Error: msg, Hint: hint})
}
