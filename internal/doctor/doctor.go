// Package doctor checks that the host can run the Portage pipelines.
package doctor

import (
	"context"
	"fmt"
	"strings"

	pkgerrors "github.com/alexisbeaulieu97/portly/pkg/errors"
)

// Kind selects the check function.
type Kind string

const (
	KindCommand  Kind = "command_exists"
	KindFile     Kind = "file_exists"
	KindWritable Kind = "dir_writable"
)

// Severity decides whether a failed check blocks the pipelines.
type Severity uint8

const (
	Required Severity = iota
	Advisory
)

func (s Severity) String() string {
	if s == Required {
		return "required"
	}
	return "advisory"
}

// DefaultReposDir is where the Gentoo repository lives after a sync.
const DefaultReposDir = "/var/db/repos/gentoo"

// Check is one host requirement.
type Check struct {
	Name     string
	Kind     Kind
	Target   string
	Severity Severity
	// Hint tells the user how to fix a failure.
	Hint string
}

// Result captures the outcome of executing a single check.
type Result struct {
	Check   Check
	Passed  bool
	Message string
	Error   error
}

// Options describes the host being checked.
type Options struct {
	Emerge          string
	Eix             string
	Equery          string
	ElevationHelper string
	CachePath       string
	ReposDir        string
}

// Checks lists the requirements for opts. The Portage tools are required;
// the rest only degrade the experience.
func Checks(opts Options) []Check {
	if opts.ReposDir == "" {
		opts.ReposDir = DefaultReposDir
	}
	checks := []Check{
		{Name: "emerge", Kind: KindCommand, Target: opts.Emerge, Severity: Required, Hint: "emerge ships with sys-apps/portage"},
		{Name: "eix", Kind: KindCommand, Target: opts.Eix, Severity: Required, Hint: "install app-portage/eix"},
		{Name: "equery", Kind: KindCommand, Target: opts.Equery, Severity: Required, Hint: "install app-portage/gentoolkit"},
	}
	if opts.ElevationHelper != "" {
		checks = append(checks, Check{
			Name: "elevation helper", Kind: KindCommand, Target: opts.ElevationHelper, Severity: Advisory,
			Hint: "sync, install, uninstall and update need it; install sys-auth/polkit or configure elevation.helper",
		})
	}
	if opts.CachePath != "" {
		checks = append(checks, Check{
			Name: "snapshot cache", Kind: KindWritable, Target: opts.CachePath, Severity: Advisory,
			Hint: "lists will not persist between sessions; set cache.path",
		})
	}
	return append(checks, Check{
		Name: "repository", Kind: KindFile, Target: opts.ReposDir, Severity: Advisory,
		Hint: "run `portly sync` to fetch the repository",
	})
}

// Run executes checks in order and returns every result. The error lists
// the failed required checks.
func Run(ctx context.Context, checks []Check) ([]Result, error) {
	results := make([]Result, 0, len(checks))
	var failedMessages []string

	for _, check := range checks {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result := Result{Check: check}

		var err error
		switch check.Kind {
		case KindCommand:
			err = CheckCommandExists(check.Target)
		case KindFile:
			err = CheckFileExists(check.Target)
		case KindWritable:
			err = CheckDirWritable(check.Target)
		default:
			err = pkgerrors.NewValidationError("check.kind", fmt.Sprintf("unknown check kind %q", check.Kind), nil)
		}

		if err != nil {
			result.Passed = false
			result.Message = err.Error()
			result.Error = err
			if check.Severity == Required {
				failedMessages = append(failedMessages, err.Error())
			}
		} else {
			result.Passed = true
			result.Message = "passed"
		}

		results = append(results, result)
	}

	if len(failedMessages) > 0 {
		combined := strings.Join(failedMessages, "; ")
		return results, fmt.Errorf("required checks failed: %s", combined)
	}

	return results, nil
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
