package doctor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
)

// CheckCommandExists verifies a command is available on PATH, or is an
// executable file when given as a path.
func CheckCommandExists(command string) error {
	if command == "" {
		return fmt.Errorf("command name is required")
	}

	if _, err := exec.LookPath(command); err != nil {
		return fmt.Errorf("%s not found: %w", command, err)
	}
	return nil
}

// CheckFileExists verifies a file or directory exists at the given path.
func CheckFileExists(path string) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("path %s does not exist", path)
		}
		return err
	}

	return nil
}

// CheckDirWritable verifies that files can be created in the directory that
// holds path, creating the directory when needed.
func CheckDirWritable(path string) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".portly-doctor-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	name := tmp.Name()
	_ = tmp.Close()
	return os.Remove(name)
}
