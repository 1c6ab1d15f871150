package config

import (
	"os"
	"strings"
)

// DefaultEnvVar is the environment variable consulted by EnvSource.
const DefaultEnvVar = "HEAPTRACE_OPTIONS"

// Source supplies the raw options string. The second result is false
// when no configuration exists at all, which Build reports as
// ErrNoConfiguration.
type Source interface {
	Options() (string, bool)
}

// StringSource is a fixed options string, mainly for tests and for
// callers that already hold the value.
type StringSource string

// Options returns the string itself; an explicit source always counts
// as present, even when empty.
func (s StringSource) Options() (string, bool) {
	return string(s), true
}

// EnvSource reads the options string from an environment variable.
type EnvSource string

// Options looks the variable up. An unset variable means debugging was
// never requested; an empty one is a present, empty configuration.
func (s EnvSource) Options() (string, bool) {
	return os.LookupEnv(string(s))
}

// FileSource reads the options string from a file. A missing file means
// debugging was never requested.
type FileSource string

func (s FileSource) Options() (string, bool) {
	data, err := os.ReadFile(string(s))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}
