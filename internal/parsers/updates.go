package parsers

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// Flag is the primary change kind emerge reports for a package.
type Flag string

const (
	FlagUpdate    Flag = "Update"
	FlagNew       Flag = "New"
	FlagRebuild   Flag = "Rebuild"
	FlagDowngrade Flag = "Downgrade"
	FlagOther     Flag = " "
)

var updateLine = regexp.MustCompile(`(?i)\[ebuild\s+` +
	`([NURD ]{1,2})` +
	`[^\]]*?\]\s+` +
	`([\w.+-]+/[\w.+-]+)` +
	`-([\d.].*?)` +
	`(?:\s+USE=.*?)?` +
	`(?:\s+CFLAGS=.*?)?` +
	`(?:\s+LDFLAGS=.*?)?` +
	`(?:\s+REPO=.*?)?` +
	`(?:\s+SLOT=.*?)?` +
	`(?:\s*->\s*([\w.+-/]+-[\d.]+.*?))?` +
	`\s*$`)

// Update is one package emerge would merge.
type Update struct {
	Atom    string `json:"atom"`
	Version string `json:"version"`
	// Target is the version transition text after "->", if any.
	Target string `json:"target,omitempty"`
	Flag   Flag   `json:"flag"`
}

// Display renders the update the way the update list shows it.
func (u Update) Display() string {
	version := u.Version
	if u.Target != "" {
		version += " -> " + u.Target
	}
	return fmt.Sprintf("%s (%s) [%s]", u.Atom, version, u.Flag)
}

// Updates is the parsed result of `emerge -upvND @world`. Atoms and
// Display are index aligned and sorted by atom.
type Updates struct {
	Atoms   []string `json:"atoms"`
	Display []string `json:"display"`
	Records []Update `json:"records"`
}

// Len returns the number of pending updates.
func (u Updates) Len() int {
	return len(u.Atoms)
}

// ParseUpdates parses emerge pretend output. Each atom appears once; a later
// line for the same atom replaces an earlier one.
func ParseUpdates(lines []string) (any, error) {
	return parseUpdates(lines)
}

func parseUpdates(lines []string) (Updates, error) {
	byAtom := make(map[string]Update)
	ebuildLines := 0
	for _, line := range lines {
		line = StripANSI(strings.TrimSpace(line))
		if !strings.HasPrefix(line, "[ebuild") {
			continue
		}
		ebuildLines++
		m := updateLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		update := Update{
			Atom:    m[2],
			Version: strings.TrimSpace(m[3]),
			Target:  strings.TrimSpace(m[4]),
			Flag:    primaryFlag(m[1]),
		}
		byAtom[update.Atom] = update
	}
	if ebuildLines > 0 && len(byAtom) == 0 {
		return Updates{}, fmt.Errorf("none of %d ebuild lines could be parsed", ebuildLines)
	}

	out := Updates{
		Atoms:   make([]string, 0, len(byAtom)),
		Display: make([]string, 0, len(byAtom)),
		Records: make([]Update, 0, len(byAtom)),
	}
	for atom := range byAtom {
		out.Atoms = append(out.Atoms, atom)
	}
	slices.Sort(out.Atoms)
	for _, atom := range out.Atoms {
		update := byAtom[atom]
		out.Records = append(out.Records, update)
		out.Display = append(out.Display, update.Display())
	}
	return out, nil
}

// primaryFlag picks the most significant flag, U over N over R over D.
func primaryFlag(flags string) Flag {
	flags = strings.ToUpper(flags)
	switch {
	case strings.Contains(flags, "U"):
		return FlagUpdate
	case strings.Contains(flags, "N"):
		return FlagNew
	case strings.Contains(flags, "R"):
		return FlagRebuild
	case strings.Contains(flags, "D"):
		return FlagDowngrade
	default:
		return FlagOther
	}
}
