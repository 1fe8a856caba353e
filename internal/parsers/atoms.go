// Package parsers turns the output of the Portage tools into package lists.
package parsers

import (
	"errors"
	"regexp"
	"slices"
	"strings"
)

// ErrUnrecognisedOutput is returned when a tool printed lines but none of
// them looked like package atoms.
var ErrUnrecognisedOutput = errors.New("output contains no package atoms")

var (
	atomPrefix = regexp.MustCompile(`^([\w.+-]+/[\w.+-]+)`)
	ansiEscape = regexp.MustCompile(`\x1B(?:[@-Z\\-_]|\[[0-?]*[ -/]*[@-~])`)
)

// ParseAvailable parses `eix -c --only-names` output: every line holding a
// slash is an atom. The result is deduplicated and sorted.
func ParseAvailable(lines []string) (any, error) {
	return parseAvailable(lines)
}

func parseAvailable(lines []string) ([]string, error) {
	set := make(map[string]struct{}, len(lines))
	meaningful := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		meaningful++
		if strings.Contains(line, "/") {
			set[line] = struct{}{}
		}
	}
	if meaningful > 0 && len(set) == 0 {
		return nil, ErrUnrecognisedOutput
	}

	atoms := make([]string, 0, len(set))
	for atom := range set {
		atoms = append(atoms, atom)
	}
	slices.Sort(atoms)
	return atoms, nil
}

// ParseInstalled parses `equery list --installed` output. Status lines
// starting with '[' are skipped; the remaining entries are sorted.
func ParseInstalled(lines []string) (any, error) {
	return parseInstalled(lines)
}

func parseInstalled(lines []string) ([]string, error) {
	installed := make([]string, 0, len(lines))
	meaningful := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "[") {
			continue
		}
		meaningful++
		if strings.Contains(line, "/") {
			installed = append(installed, line)
		}
	}
	if meaningful > 0 && len(installed) == 0 {
		return nil, ErrUnrecognisedOutput
	}
	slices.Sort(installed)
	return installed, nil
}

// SelectAtoms extracts category/name atoms from list entries such as
// "app-misc/foo (1.0 -> 1.1) [Update]". Entries without a leading atom are
// kept verbatim when they contain a slash and no space, and reported as
// skipped otherwise. The atoms are deduplicated and sorted.
func SelectAtoms(items []string) (atoms, skipped []string) {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		text := strings.TrimSpace(item)
		if m := atomPrefix.FindStringSubmatch(text); m != nil {
			set[m[1]] = struct{}{}
			continue
		}
		if strings.Contains(text, "/") && !strings.Contains(text, " ") {
			set[text] = struct{}{}
			continue
		}
		skipped = append(skipped, item)
	}

	atoms = make([]string, 0, len(set))
	for atom := range set {
		atoms = append(atoms, atom)
	}
	slices.Sort(atoms)
	return atoms, skipped
}

// Filter returns the items containing query, case-insensitively. An empty
// query returns every item.
func Filter(items []string, query string) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return items
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if strings.Contains(strings.ToLower(item), query) {
			out = append(out, item)
		}
	}
	return out
}

// StripANSI removes terminal escape sequences from a console line.
func StripANSI(line string) string {
	return ansiEscape.ReplaceAllString(line, "")
}
