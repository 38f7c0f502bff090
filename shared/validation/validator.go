// Package validation wraps go-playground/validator and turns its failures
// into a stable, per-field error list that can be serialised to clients.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	entranslations "github.com/go-playground/validator/v10/translations/en"
)

// FieldError describes a single invalid field. Code is the name of the
// failed validation rule (e.g. "required", "email", "min", "eqfield").
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Errors is returned by Validator.Struct when one or more fields are invalid.
type Errors []FieldError

func (e Errors) Error() string {
	messages := make([]string, 0, len(e))
	for _, fe := range e {
		messages = append(messages, fe.Message)
	}
	return "validation failed: " + strings.Join(messages, "; ")
}

// Validator validates request payloads.
type Validator struct {
	validate *validator.Validate
	trans    ut.Translator
}

// New creates a Validator with English messages. Field names in messages
// and in FieldError.Field are taken from the json tag. It panics when the
// messages cannot be registered, which only a programming error can cause.
func New() *Validator {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, found := uni.GetTranslator("en")
	if !found {
		panic("validation: english translator not found")
	}

	if err := registerTranslations(validate, trans); err != nil {
		panic(fmt.Sprintf("validation: %v", err))
	}

	return &Validator{
		validate: validate,
		trans:    trans,
	}
}

func registerTranslations(validate *validator.Validate, trans ut.Translator) error {
	if err := entranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		return fmt.Errorf("failed to register default translations: %w", err)
	}

	err := validate.RegisterTranslation("eqfield", trans,
		func(t ut.Translator) error {
			return t.Add("eqfield", "Passwords do not match", true)
		},
		func(t ut.Translator, _ validator.FieldError) string {
			msg, _ := t.T("eqfield")
			return msg
		},
	)
	if err != nil {
		return fmt.Errorf("failed to register eqfield translation: %w", err)
	}

	return nil
}

// Struct validates s. It returns nil, an Errors value, or the underlying
// error when s cannot be validated at all.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	out := make(Errors, 0, len(validationErrs))
	for _, fe := range validationErrs {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Code:    fe.Tag(),
			Message: fe.Translate(v.trans),
		})
	}

	return out
}
