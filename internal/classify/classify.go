// Package classify rewrites process failures whose diagnostics describe a
// valid empty result, and flags failures that need the user's attention.
package classify

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/alexisbeaulieu97/portly/internal/task"
)

// Verdict is the outcome a rule assigns to a matching failure.
type Verdict uint8

const (
	// Benign failures become a success carrying the empty payload.
	Benign Verdict = iota + 1
	// Denied failures stay failures and are marked for user attention.
	Denied
)

func (v Verdict) String() string {
	switch v {
	case Benign:
		return "benign"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// Rule matches a diagnostic by substring, or by regular expression when Regexp is set.
type Rule struct {
	Name    string
	Pattern string
	Regexp  bool
	Verdict Verdict

	re *regexp.Regexp
}

func (r Rule) matches(diagnostic string) bool {
	if r.re != nil {
		return r.re.MatchString(diagnostic)
	}
	return strings.Contains(diagnostic, r.Pattern)
}

// DeniedPhrases mean the tool was not allowed to look, which must not be
// mistaken for having nothing to report.
var DeniedPhrases = []string{
	"Permission denied",
	"are you root?",
}

// BenignPhrases are what emerge prints, with a non-zero exit, when there is
// nothing to update.
var BenignPhrases = []string{
	"There are no packages to update",
	"Nothing to merge",
	"emerge: there are no ebuilds to satisfy",
}

// DefaultRules lists denied rules before benign ones.
func DefaultRules() []Rule {
	return Rules(DeniedPhrases, BenignPhrases)
}

// Rules builds an ordered table from plain phrases, denied first.
func Rules(denied, benign []string) []Rule {
	rules := make([]Rule, 0, len(denied)+len(benign))
	for _, phrase := range denied {
		rules = append(rules, Rule{Name: "denied: " + phrase, Pattern: phrase, Verdict: Denied})
	}
	for _, phrase := range benign {
		rules = append(rules, Rule{Name: "benign: " + phrase, Pattern: phrase, Verdict: Benign})
	}
	return rules
}

// Classifier applies an ordered rule table; the first matching rule wins.
type Classifier struct {
	rules []Rule
	empty any
}

// New compiles rules. empty is the payload a benign failure is rewritten to.
func New(rules []Rule, empty any) (*Classifier, error) {
	compiled := make([]Rule, 0, len(rules))
	for i, rule := range rules {
		if rule.Pattern == "" {
			return nil, fmt.Errorf("rule %d (%s): empty pattern", i, rule.Name)
		}
		if rule.Verdict != Benign && rule.Verdict != Denied {
			return nil, fmt.Errorf("rule %d (%s): unknown verdict %d", i, rule.Name, rule.Verdict)
		}
		if rule.Regexp {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return nil, fmt.Errorf("rule %d (%s): %w", i, rule.Name, err)
			}
			rule.re = re
		}
		compiled = append(compiled, rule)
	}
	return &Classifier{rules: compiled, empty: empty}, nil
}

// Default returns a Classifier over DefaultRules.
func Default(empty any) *Classifier {
	c, err := New(DefaultRules(), empty)
	if err != nil {
		panic(err)
	}
	return c
}

// WithEmpty returns a copy of c that rewrites benign failures to empty.
func (c *Classifier) WithEmpty(empty any) *Classifier {
	return &Classifier{rules: c.rules, empty: empty}
}

// Match returns the first rule matching diagnostic.
func (c *Classifier) Match(diagnostic string) (Rule, bool) {
	for _, rule := range c.rules {
		if rule.matches(diagnostic) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Classify rewrites process failures. Successes, cancellations and
// non-process failures pass through unchanged. A process failure becomes a
// success with the empty payload on a benign match, a failure needing
// attention on a denied match, and stays as it was otherwise.
func (c *Classifier) Classify(result task.Result) task.Result {
	if result.Kind != task.KindFailure || result.Failure == nil || result.Failure.Reason != task.ReasonProcess {
		return result
	}

	rule, ok := c.Match(result.Failure.Diagnostic)
	if !ok {
		return result
	}
	switch rule.Verdict {
	case Benign:
		return task.NewSuccess(c.empty, result.Token)
	default:
		failure := *result.Failure
		failure.Attention = true
		return task.NewFailure(&failure, result.Token)
	}
}
