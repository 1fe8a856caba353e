package task

import (
	stdErrors "errors"
	"strings"

	pkgerrors "github.com/alexisbeaulieu97/portly/pkg/errors"
)

// Token is an opaque continuation value carried unchanged from a Request to its Result.
type Token any

// Kind tags which variant of a Result is populated.
type Kind uint8

const (
	KindSuccess Kind = iota
	KindFailure
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindFailure:
		return "failure"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Reason classifies a Failure.
type Reason string

const (
	ReasonProcess              Reason = "process"
	ReasonLaunch               Reason = "launch"
	ReasonPrivilegeToolMissing Reason = "privilege-tool-missing"
	ReasonParse                Reason = "parse"
	ReasonTimeout              Reason = "timeout"
	ReasonBusy                 Reason = "busy"
	ReasonInvalid              Reason = "invalid"
	ReasonInternal             Reason = "internal"
)

// Failure carries the diagnostic of an unsuccessful task.
type Failure struct {
	Reason     Reason
	Diagnostic string
	// ExitCode is set only when the process ran and exited non-zero.
	ExitCode *int
	Err      error
	// Attention marks failures that must be shown to the user rather than
	// logged and skipped.
	Attention bool
}

// Headline returns the first non-blank diagnostic line, for short status notices.
func (f *Failure) Headline() string {
	if f == nil {
		return ""
	}
	for _, line := range strings.Split(f.Diagnostic, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	return string(f.Reason)
}

// Fatal reports whether the failure means a required tool is missing, so no
// later step can succeed either.
func (f *Failure) Fatal() bool {
	if f == nil {
		return false
	}
	return f.Reason == ReasonLaunch || f.Reason == ReasonPrivilegeToolMissing
}

// FailureFromError maps an error from the taxonomy in pkg/errors to a Failure.
func FailureFromError(err error) *Failure {
	if err == nil {
		return nil
	}
	f := &Failure{Diagnostic: err.Error(), Err: err}

	var (
		processErr *pkgerrors.ProcessError
		launchErr  *pkgerrors.LaunchError
		helperErr  *pkgerrors.PrivilegeToolMissingError
		parseErr   *pkgerrors.ParseError
		timeoutErr *pkgerrors.TimeoutError
	)
	switch {
	case stdErrors.As(err, &processErr):
		f.Reason = ReasonProcess
		code := processErr.ExitCode
		f.ExitCode = &code
	case stdErrors.As(err, &helperErr):
		f.Reason = ReasonPrivilegeToolMissing
		f.Attention = true
	case stdErrors.As(err, &launchErr):
		f.Reason = ReasonLaunch
		f.Attention = true
	case stdErrors.As(err, &parseErr):
		f.Reason = ReasonParse
	case stdErrors.As(err, &timeoutErr):
		f.Reason = ReasonTimeout
	case stdErrors.Is(err, pkgerrors.ErrBusy):
		f.Reason = ReasonBusy
	case stdErrors.Is(err, pkgerrors.ErrEmptyCommand):
		f.Reason = ReasonInvalid
	default:
		f.Reason = ReasonInternal
	}
	return f
}

// Result is the single terminal outcome of a Request. Exactly one of Payload
// (KindSuccess) or Failure (KindFailure) is meaningful; KindCancelled has neither.
type Result struct {
	Kind    Kind
	Payload any
	Failure *Failure
	Token   Token
}

// NewSuccess builds a successful Result.
func NewSuccess(payload any, token Token) Result {
	return Result{Kind: KindSuccess, Payload: payload, Token: token}
}

// NewFailure builds a failed Result.
func NewFailure(failure *Failure, token Token) Result {
	if failure == nil {
		failure = &Failure{Reason: ReasonInternal, Diagnostic: "unknown failure"}
	}
	return Result{Kind: KindFailure, Failure: failure, Token: token}
}

// NewCancelled builds a cancelled Result.
func NewCancelled(token Token) Result {
	return Result{Kind: KindCancelled, Token: token}
}

// Succeeded reports whether the result is a success.
func (r Result) Succeeded() bool { return r.Kind == KindSuccess }

// Cancelled reports whether the result is a cancellation.
func (r Result) Cancelled() bool { return r.Kind == KindCancelled }
