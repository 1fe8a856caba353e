// Package snapshot holds the package lists from the last refresh and
// persists them between sessions.
package snapshot

import (
	"time"

	"github.com/alexisbeaulieu97/portly/internal/parsers"
)

// List names one of the package lists.
type List string

const (
	Installed List = "installed"
	Available List = "available"
	Updates   List = "updates"
)

// Lists is the display order of the package lists.
var Lists = []List{Installed, Available, Updates}

// Snapshot is the set of package lists known at a point in time. A list
// that was never loaded has no entry in RefreshedAt.
type Snapshot struct {
	Installed   []string           `json:"installed"`
	Available   []string           `json:"available"`
	Updates     parsers.Updates    `json:"updates"`
	RefreshedAt map[List]time.Time `json:"refreshed_at"`
}

// With returns a copy of s with list replaced by payload. Payloads of the
// wrong type leave the copy unchanged.
func (s Snapshot) With(list List, payload any, at time.Time) Snapshot {
	out := s.clone()
	switch list {
	case Installed:
		atoms, ok := payload.([]string)
		if !ok {
			return out
		}
		out.Installed = atoms
	case Available:
		atoms, ok := payload.([]string)
		if !ok {
			return out
		}
		out.Available = atoms
	case Updates:
		updates, ok := payload.(parsers.Updates)
		if !ok {
			return out
		}
		out.Updates = updates
	default:
		return out
	}
	out.RefreshedAt[list] = at
	return out
}

// Items returns the display entries of list.
func (s Snapshot) Items(list List) []string {
	switch list {
	case Installed:
		return s.Installed
	case Available:
		return s.Available
	case Updates:
		return s.Updates.Display
	default:
		return nil
	}
}

// Loaded reports whether list has been populated at least once.
func (s Snapshot) Loaded(list List) bool {
	_, ok := s.RefreshedAt[list]
	return ok
}

// Empty reports whether no list has ever been loaded.
func (s Snapshot) Empty() bool {
	return len(s.RefreshedAt) == 0
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.RefreshedAt = make(map[List]time.Time, len(s.RefreshedAt)+1)
	for k, v := range s.RefreshedAt {
		out.RefreshedAt[k] = v
	}
	return out
}

// From extracts a Snapshot from a continuation token, returning the zero
// Snapshot for anything else.
func From(token any) Snapshot {
	switch v := token.(type) {
	case Snapshot:
		return v
	case *Snapshot:
		if v != nil {
			return *v
		}
	}
	return Snapshot{}
}
