package config

import (
	"fmt"

	pkgerrors "github.com/alexisbeaulieu97/portly/pkg/errors"
)

// ValidateConfig performs structural and cross-field validation on an entire configuration.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return pkgerrors.NewValidationError("config", "configuration is nil", nil)
	}

	v := validatorInstance()
	if err := v.Struct(cfg); err != nil {
		return convertValidationError(err)
	}

	if len(cfg.Elevation.Args) > 0 && cfg.Elevation.Helper == "" {
		return pkgerrors.NewValidationError("elevation.args", "elevation.args requires elevation.helper", nil)
	}

	if timeout, grace := cfg.TimeoutDuration(), cfg.GracePeriodDuration(); timeout > 0 && grace >= timeout {
		return pkgerrors.NewValidationError("grace_period", fmt.Sprintf("grace_period %s must be shorter than timeout %s", grace, timeout), nil)
	}

	return nil
}
