// Package validation holds the field validators shared by request binding,
// the registration flow and the storage-facing handlers.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"yamdb/internal/domain/errors"

	"github.com/go-playground/validator/v10"
)

const (
	UsernameMaxLength = 150
	EmailMaxLength    = 254
	MinScore          = 1
	MaxScore          = 10
	forbiddenUsername = "me"
)

var (
	usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)
	usernameInvalid = regexp.MustCompile(`[^\w.@+-]`)
	slugPattern     = regexp.MustCompile(`^[-a-zA-Z0-9_]+$`)

	// now is swapped in tests to pin the current year.
	now = time.Now
)

func ValidateUsername(s string) error {
	switch {
	case s == "":
		return errors.NewValidationError("username", "Обязательное поле.")
	case strings.ToLower(s) == forbiddenUsername:
		return errors.NewValidationError("username", `Имя "me" запрещено.`)
	case utf8.RuneCountInString(s) > UsernameMaxLength:
		return errors.NewValidationError("username",
			fmt.Sprintf("Убедитесь, что значение не длиннее %d символов.", UsernameMaxLength))
	case !usernamePattern.MatchString(s):
		invalid := strings.Join(uniqueStrings(usernameInvalid.FindAllString(s, -1)), "")
		return errors.NewValidationError("username",
			fmt.Sprintf("Имя пользователя содержит недопустимые символы %s.", invalid))
	}
	return nil
}

func ValidateEmail(s string) error {
	if utf8.RuneCountInString(s) > EmailMaxLength {
		return errors.NewValidationError("email",
			fmt.Sprintf("Убедитесь, что значение не длиннее %d символов.", EmailMaxLength))
	}
	if !strings.Contains(s, "@") {
		return errors.NewValidationError("email", "Введите правильный адрес электронной почты.")
	}
	return nil
}

func ValidateYear(year int) error {
	current := now().Year()
	if year > current {
		return errors.NewValidationError("year", fmt.Sprintf("Год %d не может быть больше %d.", year, current))
	}
	return nil
}

func ValidateScore(score int) error {
	if score < MinScore || score > MaxScore {
		return errors.NewValidationError("score",
			fmt.Sprintf("Оценка должна быть от %d до %d.", MinScore, MaxScore))
	}
	return nil
}

func ValidateSlug(s string) error {
	if !slugPattern.MatchString(s) {
		return errors.NewValidationError("slug", slugMessage)
	}
	return nil
}

const slugMessage = "Допустимы только латинские буквы, цифры, дефис и подчёркивание."

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return ValidateUsername(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("notfuture", func(fl validator.FieldLevel) bool {
		return ValidateYear(int(fl.Field().Int())) == nil
	})
	_ = v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
	return v
}

// Struct validates a request DTO and reports failures keyed by JSON field name.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)
	}

	result := &errors.ValidationError{Kind: errors.ErrInvalidInput}
	for _, fe := range verrs {
		if _, seen := result.Fields[fe.Field()]; seen {
			continue
		}
		result.Add(fe.Field(), message(fe))
	}
	return result
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "Обязательное поле."
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("Убедитесь, что значение не длиннее %s символов.", fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("Не более %s элементов.", fe.Param())
		}
		return fmt.Sprintf("Убедитесь, что значение меньше либо равно %s.", fe.Param())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("Убедитесь, что значение не короче %s символов.", fe.Param())
		}
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("Укажите не менее %s элементов.", fe.Param())
		}
		return fmt.Sprintf("Убедитесь, что значение больше либо равно %s.", fe.Param())
	case "email":
		return "Введите правильный адрес электронной почты."
	case "oneof":
		return fmt.Sprintf("Значение должно быть одним из: %s.", fe.Param())
	case "slug":
		return slugMessage
	case "username":
		var verr *errors.ValidationError
		if errors.As(ValidateUsername(fmt.Sprint(fe.Value())), &verr) {
			return verr.Fields["username"]
		}
	case "notfuture":
		var verr *errors.ValidationError
		if year, ok := fe.Value().(int); ok && errors.As(ValidateYear(year), &verr) {
			return verr.Fields["year"]
		}
	}
	return "Некорректное значение."
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
