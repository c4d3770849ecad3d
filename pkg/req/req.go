package req

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/Dhoini/glucose-gateway/internal/domain"
	"github.com/go-playground/validator/v10"
)

// validate потокобезопасен и кеширует метаданные структур, поэтому создается один раз.
var validate = newValidator()

// newValidator называет поля в ошибках по json-тегу, как их видит клиент.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Decode декодирует JSON из io.ReadCloser в структуру типа T.
func Decode[T any](body io.ReadCloser) (T, error) {
	var payload T
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		return payload, err
	}
	return payload, nil
}

// IsValid валидирует структуру типа T.
// Ошибки валидатора переводятся в domain.ValidationErrors.
func IsValid[T any](payload T) error {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	out := make(domain.ValidationErrors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out.Add(fe.Field(), describe(fe))
	}
	return out
}

// HandleBody декодирует и валидирует тело запроса.
// Пустое тело допустимо, если структура не содержит обязательных полей.
func HandleBody[T any](body io.ReadCloser) (*T, error) {
	payload, err := Decode[T](body)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, domain.NewValidationError("body", "malformed JSON")
	}

	if err := IsValid(payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	case "len":
		return "must have length " + fe.Param()
	default:
		return "failed on " + fe.Tag()
	}
}
