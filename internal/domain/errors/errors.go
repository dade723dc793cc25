package errors

import (
	stderrors "errors"
	"sort"
	"strings"
)

var (
	Is  = stderrors.Is
	As  = stderrors.As
	New = stderrors.New
)

var (
	ErrInvalidInput    = New("некорректные входные данные")
	ErrUnauthenticated = New("учетные данные не предоставлены")
	ErrForbidden       = New("доступ запрещён")
	ErrNotFound        = New("ресурс не найден")
	ErrConflict        = New("конфликт ресурса")
	ErrRateLimited     = New("слишком много запросов")
	ErrInternalServer  = New("внутренняя ошибка сервера")
	ErrBadRequest      = New("неверный запрос")
	ErrValidation      = New("ошибка валидации")

	ErrUserNotFound     = kindOf(ErrNotFound, "пользователь не найден")
	ErrCategoryNotFound = kindOf(ErrNotFound, "категория не найдена")
	ErrGenreNotFound    = kindOf(ErrNotFound, "жанр не найден")
	ErrTitleNotFound    = kindOf(ErrNotFound, "произведение не найдено")
	ErrReviewNotFound   = kindOf(ErrNotFound, "отзыв не найден")
	ErrCommentNotFound  = kindOf(ErrNotFound, "комментарий не найден")

	ErrUserAlreadyExists = kindOf(ErrConflict, "пользователь уже существует")
	ErrSlugTaken         = kindOf(ErrConflict, "слаг уже занят")
	ErrDuplicateReview   = kindOf(ErrConflict, "вы уже писали отзыв на данное произведение")

	ErrInvalidConfirmationCode = kindOf(ErrInvalidInput, "неверный код подтверждения")
	ErrInvalidToken            = kindOf(ErrUnauthenticated, "недействительный токен")
	ErrSelfDelete              = kindOf(ErrForbidden, "нельзя удалить самого себя")

	ErrInvalidGzipRequest    = New("некорректный gzip в теле запроса")
	ErrGzipCompressionFailed = New("ошибка сжатия ответа")

	ErrConfigFileReadFailed = New("не удалось прочитать файл конфигурации")
	ErrConfigParseFailed    = New("не удалось разобрать файл конфигурации")
	ErrConfigInvalidFormat  = New("некорректный формат значения конфигурации")
)

// kinded carries a specific message while matching its taxonomy sentinel via errors.Is.
type kinded struct {
	kind error
	msg  string
}

func (e *kinded) Error() string { return e.msg }

func (e *kinded) Unwrap() error { return e.kind }

func kindOf(kind error, msg string) error {
	return &kinded{kind: kind, msg: msg}
}

// ValidationError is a field-keyed failure. Kind is ErrInvalidInput unless
// the failure is a uniqueness collision, in which case it is ErrConflict.
type ValidationError struct {
	Kind   error
	Fields map[string]string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Kind: ErrInvalidInput, Fields: map[string]string{field: message}}
}

func NewConflictError(field, message string) *ValidationError {
	return &ValidationError{Kind: ErrConflict, Fields: map[string]string{field: message}}
}

func (e *ValidationError) Add(field, message string) *ValidationError {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = message
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	if e.Kind == nil {
		return ErrInvalidInput
	}
	return e.Kind
}
