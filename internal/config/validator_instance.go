package config

import (
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate
)

// validatorInstance configures and returns the shared validator instance used across the config package.
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
			d, err := time.ParseDuration(fl.Field().String())
			return err == nil && d > 0
		})

		_ = v.RegisterValidation("executable", func(fl validator.FieldLevel) bool {
			return isExecutableName(fl.Field().String())
		})

		validateInst = v
	})

	return validateInst
}

// GetValidator returns a configured validator instance for use outside the config package.
func GetValidator() *validator.Validate {
	return validatorInstance()
}

// isExecutableName accepts a bare command name or a path without whitespace.
func isExecutableName(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	if strings.Contains(name, "\x00") {
		return false
	}
	return !strings.ContainsFunc(name, unicode.IsSpace)
}
