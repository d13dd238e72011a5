package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/mevdschee/tqloader/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // One or more keys failed to resolve
	ExitCommandError = 2 // Command error (bad config, database unreachable, etc.)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Resolution pairs a facility with the outcome of resolving its organization
type Resolution struct {
	Facility     store.Facility      `json:"facility" yaml:"facility"`
	Organization *store.Organization `json:"organization,omitempty" yaml:"organization,omitempty"`
	Error        string              `json:"error,omitempty" yaml:"error,omitempty"`
}

// writeResolutions renders resolutions in the given format
func writeResolutions(w io.Writer, format string, resolutions []Resolution) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resolutions)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(resolutions); err != nil {
			return err
		}
		return enc.Close()
	default:
		for _, r := range resolutions {
			var err error
			switch {
			case r.Error != "":
				_, err = fmt.Fprintf(w, "%s -> error: %s\n", r.Facility.Name, r.Error)
			case r.Organization == nil:
				_, err = fmt.Fprintf(w, "%s -> not found (organization %d)\n", r.Facility.Name, r.Facility.OrganizationID)
			default:
				_, err = fmt.Fprintf(w, "%s -> %s (%s)\n", r.Facility.Name, r.Organization.Name, r.Organization.Address)
			}
			if err != nil {
				return err
			}
		}
		return nil
	}
}
