package errs

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError ошибка валидации входных данных с перечислением нарушений
type ValidationError struct {
	Message string
	Details []string
}

func (e *ValidationError) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Message, strings.Join(e.Details, "; "))
}

// NewValidation создает ValidationError без деталей
func NewValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NewValidationDetails создает ValidationError с перечнем нарушений по элементам
func NewValidationDetails(message string, details []string) *ValidationError {
	return &ValidationError{Message: message, Details: details}
}

// NotFoundError ошибка отсутствия сущности по указанному идентификатору
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s не найден: %s", e.Entity, e.Key)
}

// NewNotFound создает NotFoundError для сущности и ключа
func NewNotFound(entity string, key interface{}) *NotFoundError {
	return &NotFoundError{Entity: entity, Key: fmt.Sprintf("%v", key)}
}

// ConflictError ошибка нарушения состояния (статус-машины или уникальности)
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// NewConflict создает ConflictError
func NewConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// SyncError внутренняя ошибка синхронизации с внешней системой.
// Никогда не поднимается до вызывающего основную операцию: фиксируется
// в журнале синхронизации и обрабатывается отдельно.
type SyncError struct {
	Operation    string
	SerialNumber string
	ExternalID   string
	Message      string
	Err          error
}

func (e *SyncError) Error() string {
	msg := fmt.Sprintf("ошибка синхронизации [%s]", e.Operation)
	if e.SerialNumber != "" {
		msg += fmt.Sprintf(", s/n %s", e.SerialNumber)
	}
	if e.ExternalID != "" {
		msg += fmt.Sprintf(", внешний ID %s", e.ExternalID)
	}
	msg += ": " + e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// IsValidation проверяет, является ли ошибка ошибкой валидации
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsNotFound проверяет, является ли ошибка ошибкой отсутствия сущности
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict проверяет, является ли ошибка конфликтом состояния
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsSync проверяет, является ли ошибка ошибкой синхронизации
func IsSync(err error) bool {
	var se *SyncError
	return errors.As(err, &se)
}
