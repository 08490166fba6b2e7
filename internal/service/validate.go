package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate — общий экземпляр валидатора (кэширует разбор тегов).
// В сообщениях используются имена полей из тегов json.
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
	return v
}

// validateStruct проверяет структуру по тегам validate и возвращает
// ErrValidation с перечнем нарушенных полей.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("поле '%s' обязательно", fe.Field())
	case "max":
		return fmt.Sprintf("поле '%s' длиннее %s символов", fe.Field(), fe.Param())
	case "excludesall":
		return fmt.Sprintf("поле '%s' содержит недопустимые символы", fe.Field())
	default:
		return fmt.Sprintf("поле '%s' не прошло проверку %s", fe.Field(), fe.Tag())
	}
}
