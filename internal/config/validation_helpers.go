package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	pkgerrors "github.com/alexisbeaulieu97/portly/pkg/errors"
)

// convertValidationError normalizes validator errors into portly validation errors.
func convertValidationError(err error) error {
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if errors.As(err, &ves) && len(ves) > 0 {
		ve := ves[0]
		field := yamlishFieldName(ve)
		msg := fmt.Sprintf("%s failed validation for tag '%s'", field, ve.Tag())
		if ve.Tag() == "duration" {
			msg = fmt.Sprintf("%s must be a positive duration such as 30s or 5m, got %q", field, ve.Value())
		}
		return pkgerrors.NewValidationError(field, msg, err)
	}

	return pkgerrors.NewValidationError("config", err.Error(), err)
}

// yamlishFieldName maps Config.GracePeriod to grace_period style names.
func yamlishFieldName(fe validator.FieldError) string {
	parts := strings.Split(fe.StructNamespace(), ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	lowered := make([]string, 0, len(parts))
	for _, part := range parts {
		lowered = append(lowered, snakeCase(part))
	}
	return strings.Join(lowered, ".")
}

func snakeCase(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && name[i-1] != '[' {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
