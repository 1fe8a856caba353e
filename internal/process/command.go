package process

import (
	"strings"

	pkgerrors "github.com/alexisbeaulieu97/portly/pkg/errors"
)

// Command is an argv vector; the first element is the executable.
type Command []string

// Validate rejects empty commands and blank executables.
func (c Command) Validate() error {
	if len(c) == 0 || strings.TrimSpace(c[0]) == "" {
		return pkgerrors.ErrEmptyCommand
	}
	return nil
}

// Executable returns the program name, or "" for an empty command.
func (c Command) Executable() string {
	if len(c) == 0 {
		return ""
	}
	return c[0]
}

// String renders the command the way it would be typed in a shell.
func (c Command) String() string {
	return strings.Join(c, " ")
}

// Clone returns a copy that does not share backing storage with c.
func (c Command) Clone() Command {
	if c == nil {
		return nil
	}
	return append(Command(nil), c...)
}
