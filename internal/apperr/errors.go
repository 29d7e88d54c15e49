// Package apperr описывает классы ошибок API и их отображение на HTTP-статусы.
package apperr

import (
	"errors"
	"net/http"
)

// Kind - класс ошибки.
type Kind int

const (
	// KindInternal - непредвиденная ошибка (по умолчанию для любых "чужих" ошибок).
	KindInternal Kind = iota
	// KindValidation - неверные входные данные.
	KindValidation
	// KindAuth - отсутствующие или невалидные учетные данные.
	KindAuth
	// KindNotFound - данных еще нет или ресурс не найден.
	KindNotFound
	// KindUpstream - внешний источник котировок недоступен или вернул мусор.
	KindUpstream
	// KindStorage - ошибка базы данных.
	KindStorage
)

// String возвращает имя класса для логов.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindUpstream:
		return "upstream"
	case KindStorage:
		return "storage"
	default:
		return "internal"
	}
}

// Error - ошибка с классом, сообщением для клиента и необязательной подсказкой.
type Error struct {
	Kind    Kind
	Message string
	Hint    string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation создает ошибку валидации.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Auth создает ошибку аутентификации.
func Auth(msg string, err error) *Error {
	return &Error{Kind: KindAuth, Message: msg, Err: err}
}

// NotFound создает ошибку "не найдено" с подсказкой.
func NotFound(msg, hint string) *Error {
	return &Error{Kind: KindNotFound, Message: msg, Hint: hint}
}

// Upstream оборачивает ошибку внешнего источника котировок.
func Upstream(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Message: msg, Err: err}
}

// Storage оборачивает ошибку хранилища.
func Storage(msg string, err error) *Error {
	return &Error{Kind: KindStorage, Message: msg, Err: err}
}

// KindOf возвращает класс ошибки; для обычных ошибок - KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus отображает класс ошибки на HTTP-статус.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage возвращает текст для клиента и подсказку.
// Внутренние ошибки и ошибки хранилища не раскрывают деталей.
func PublicMessage(err error) (string, string) {
	var e *Error
	if !errors.As(err, &e) {
		return "Internal server error", ""
	}
	switch e.Kind {
	case KindStorage, KindInternal:
		return "Internal server error", ""
	case KindUpstream:
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error(), e.Hint
		}
		return e.Message, e.Hint
	default:
		return e.Message, e.Hint
	}
}
