package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	pkgerrors "github.com/alexisbeaulieu97/portly/pkg/errors"
)

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// ParseConfig loads a configuration file from disk over the defaults,
// validates it, and returns the result. Unknown keys are rejected.
func ParseConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.NewConfigError(path, 0, err)
	}
	return parse(path, data)
}

// Load behaves like ParseConfig but returns the defaults when the file does
// not exist.
func Load(path string) (*Config, error) {
	cfg, err := ParseConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Defaults(), nil
	}
	return cfg, err
}

func parse(path string, data []byte) (*Config, error) {
	cfg := Defaults()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, pkgerrors.NewConfigError(path, extractLine(err), err)
	}

	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func extractLine(err error) int {
	if err == nil {
		return 0
	}

	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}

	var line int
	_, scanErr := fmt.Sscanf(matches[1], "%d", &line)
	if scanErr != nil {
		return 0
	}

	return line
}
