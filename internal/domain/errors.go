package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Application errors
var (
	// ErrNotFound запись не найдена
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput неверные входные данные
	ErrInvalidInput = errors.New("invalid input data")

	// ErrUnauthenticated пользователь не аутентифицирован
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidPlan план подписки не найден
	ErrInvalidPlan = errors.New("subscription plan not found")

	// ErrTrialExists у пользователя уже есть активный триал
	ErrTrialExists = errors.New("active trial already exists")

	// ErrSubscriptionExists у пользователя уже есть неотмененная подписка
	ErrSubscriptionExists = errors.New("subscription already exists")

	// ErrTrialNotFound триал не найден
	ErrTrialNotFound = &NotFoundError{Entity: "trial"}

	// ErrSubscriptionNotFound подписка не найдена
	ErrSubscriptionNotFound = &NotFoundError{Entity: "subscription"}

	// ErrWebhookValidationFailed не удалось разобрать или проверить событие вебхука
	ErrWebhookValidationFailed = errors.New("webhook validation failed")
)

// NotFoundError - отсутствие сущности. Для вызывающего кода это нормальный
// отрицательный результат, errors.Is(err, ErrNotFound) == true.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error реализует интерфейс error
func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.Entity + " not found"
	}
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// Is делает NotFoundError совместимой с ErrNotFound
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// ValidationError представляет ошибку валидации
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors представляет набор ошибок валидации
type ValidationErrors []ValidationError

// Error реализует интерфейс error
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}

	if len(e) == 1 {
		return fmt.Sprintf("validation failed: %s - %s", e[0].Field, e[0].Message)
	}

	return fmt.Sprintf("validation failed: %d errors", len(e))
}

// Is делает ValidationErrors совместимой с ErrInvalidInput
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidInput
}

// Add добавляет ошибку валидации
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// HasErrors проверяет наличие ошибок
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// NewValidationError - короткий путь для одного поля.
func NewValidationError(field, message string) ValidationErrors {
	return ValidationErrors{{Field: field, Message: message}}
}

// UpstreamKind классифицирует сбой внешнего сервиса.
type UpstreamKind int

const (
	// UpstreamResponse внешний сервис ответил ошибкой
	UpstreamResponse UpstreamKind = iota
	// UpstreamTimeout истекло время ожидания ответа
	UpstreamTimeout
	// UpstreamUnavailable не удалось установить соединение
	UpstreamUnavailable
)

// ExternalServiceError представляет ошибку внешнего сервиса (Stripe, CGM)
type ExternalServiceError struct {
	Service     string
	Kind        UpstreamKind
	Code        string
	Message     string
	StatusCode  int    // HTTP статус ответа внешнего сервиса, если он был
	Body        []byte // Тело ответа, безопасное для передачи клиенту
	OriginalErr error
}

// Error реализует интерфейс error
func (e *ExternalServiceError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("%s service error [%s]: %s: %v", e.Service, e.Code, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("%s service error [%s]: %s", e.Service, e.Code, e.Message)
}

// Unwrap возвращает оригинальную ошибку
func (e *ExternalServiceError) Unwrap() error {
	return e.OriginalErr
}

// HTTPStatus - статус, которым шлюз отвечает клиенту на этот сбой.
func (e *ExternalServiceError) HTTPStatus() int {
	switch e.Kind {
	case UpstreamTimeout:
		return http.StatusGatewayTimeout
	case UpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// NewExternalServiceError создает новую ошибку внешнего сервиса
func NewExternalServiceError(service string, kind UpstreamKind, code, message string, statusCode int, err error) *ExternalServiceError {
	return &ExternalServiceError{
		Service:     service,
		Kind:        kind,
		Code:        code,
		Message:     message,
		StatusCode:  statusCode,
		OriginalErr: err,
	}
}

// PersistenceError - сбой чтения или записи в хранилище.
// Текст не отдается клиенту вне development окружения.
type PersistenceError struct {
	Op  string
	Err error
}

// Error реализует интерфейс error
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error during %s: %v", e.Op, e.Err)
}

// Unwrap возвращает оригинальную ошибку
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// NewPersistenceError оборачивает ошибку хранилища
func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}
