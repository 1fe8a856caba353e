package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrBusy is returned when a task or sequence is submitted while another one is active.
	ErrBusy = errors.New("another operation is already in progress")
	// ErrCancelled marks work stopped on user request.
	ErrCancelled = errors.New("operation cancelled")
	// ErrEmptyCommand is returned for a command without an executable.
	ErrEmptyCommand = errors.New("command is empty")
)

// LaunchError reports an executable that could not be found or started.
type LaunchError struct {
	Executable string
	Err        error
}

// NewLaunchError constructs a LaunchError.
func NewLaunchError(executable string, err error) error {
	return &LaunchError{Executable: executable, Err: err}
}

func (e *LaunchError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("command '%s' not found: is it installed and in PATH?", e.Executable)
}

// Unwrap exposes the underlying error.
func (e *LaunchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// PrivilegeToolMissingError reports a missing elevation helper.
type PrivilegeToolMissingError struct {
	Helper string
	Err    error
}

// NewPrivilegeToolMissingError constructs a PrivilegeToolMissingError.
func NewPrivilegeToolMissingError(helper string, err error) error {
	return &PrivilegeToolMissingError{Helper: helper, Err: err}
}

func (e *PrivilegeToolMissingError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("'%s' command not found: is PolicyKit installed?", e.Helper)
}

// Unwrap exposes the underlying error.
func (e *PrivilegeToolMissingError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ProcessError represents a command that exited with a non-zero status.
type ProcessError struct {
	Command  []string
	ExitCode int
	Stderr   string
}

// NewProcessError constructs a ProcessError.
func NewProcessError(command []string, exitCode int, stderr string) error {
	return &ProcessError{Command: command, ExitCode: exitCode, Stderr: stderr}
}

func (e *ProcessError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Command failed with exit code %d.\n", e.ExitCode)
	fmt.Fprintf(&b, "Command: %s\n", strings.Join(e.Command, " "))
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		fmt.Fprintf(&b, "Stderr:\n%s", stderr)
	} else {
		b.WriteString("No stderr output captured.")
	}
	return b.String()
}

// ParseError represents command output that could not be turned into a payload.
// Sample holds the leading raw lines for diagnosis.
type ParseError struct {
	Command []string
	Sample  []string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(command []string, sample []string, err error) error {
	return &ParseError{Command: command, Sample: sample, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}
	msg := "<nil>"
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("Error parsing command output: %s\nOutput:\n%s...", msg, strings.Join(e.Sample, "\n"))
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// TimeoutError reports a process that was killed after exceeding its time
// budget. Elapsed is the wall-clock time from launch until it was reaped.
type TimeoutError struct {
	Command []string
	Timeout time.Duration
	Elapsed time.Duration
}

// NewTimeoutError constructs a TimeoutError.
func NewTimeoutError(command []string, timeout, elapsed time.Duration) error {
	return &TimeoutError{Command: command, Timeout: timeout, Elapsed: elapsed}
}

func (e *TimeoutError) Error() string {
	if e == nil {
		return ""
	}
	if e.Elapsed <= 0 {
		return fmt.Sprintf("Command timed out after %s.\nCommand: %s", e.Timeout, strings.Join(e.Command, " "))
	}
	return fmt.Sprintf("Command timed out after %s and was killed after running %s.\nCommand: %s",
		e.Timeout, e.Elapsed.Round(time.Millisecond), strings.Join(e.Command, " "))
}

// ValidationError captures configuration validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ConfigError represents a configuration file that could not be read or decoded.
type ConfigError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewConfigError constructs a ConfigError.
func NewConfigError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ConfigError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ConfigError) Error() string {
	if e == nil {
		return ""
	}
	if e.Line > 0 {
		return fmt.Sprintf("config error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("config error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsToolMissing reports whether err means a required external tool is absent.
func IsToolMissing(err error) bool {
	var launchErr *LaunchError
	if errors.As(err, &launchErr) {
		return true
	}
	var helperErr *PrivilegeToolMissingError
	return errors.As(err, &helperErr)
}
