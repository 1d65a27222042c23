package services

import (
	"errors"
	"reflect"
	"strings"

	"github.com/dimitrije/reclama-api/internal/models"
	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground validator with the report and account rules
// and turns failures into ValidationError with user-facing messages.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", validateNotBlank)
	_ = v.RegisterValidation("category", validateCategory)
	return &Validator{validate: v}
}

func validateNotBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func validateCategory(fl validator.FieldLevel) bool {
	_, ok := models.LookupCategory(fl.Field().String())
	return ok
}

// messages maps "<field>.<tag>" to the text shown to the user. Unlisted
// combinations fall back to "<field>.*" and then to a generic message.
var messages = map[string]string{
	"category.*":        "Por favor, selecione uma categoria para o problema.",
	"title.*":           "Por favor, forneça um título para o problema.",
	"title.max":         "O título deve ter no máximo 255 caracteres.",
	"location.*":        "Por favor, marque a localização do problema no mapa.",
	"latitude.*":        "Latitude inválida.",
	"longitude.*":       "Longitude inválida.",
	"description.max":   "A descrição deve ter no máximo 5000 caracteres.",
	"email.*":           "Informe um email válido.",
	"password.*":        "A senha deve ter pelo menos 6 caracteres.",
	"name.*":            "Informe seu nome.",
	"name.max":          "O nome deve ter no máximo 255 caracteres.",
	"owner_id.required": "Usuário não autenticado.",
}

func messageFor(field, tag string) string {
	if m, ok := messages[field+"."+tag]; ok {
		return m
	}
	if m, ok := messages[field+".*"]; ok {
		return m
	}
	return "Valor inválido."
}

// Struct validates s. Fields are reported by their json name.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := fe.Field()
		if _, seen := fields[name]; !seen {
			fields[name] = messageFor(name, fe.Tag())
		}
	}
	return &ValidationError{Fields: fields}
}
