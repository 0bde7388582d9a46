package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/lifelog/internal/config"
	"github.com/roach88/lifelog/internal/contacts"
	"github.com/roach88/lifelog/internal/driver"
	"github.com/roach88/lifelog/internal/events"
	"github.com/roach88/lifelog/internal/ingest"
	"github.com/roach88/lifelog/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Import or lookup failure (driver failed, contact not found, etc.)
	ExitCommandError = 2 // Command error (bad flags, unreadable config, database not found, etc.)
)

// Error codes reported in CLIError.Code.
const (
	CodeInternal = "E000" // anything not classified below
	CodeConfig   = "E001" // config file unreadable or invalid
	CodeDriver   = "E002" // unknown driver, bad manifest, driver failure
	CodeRecord   = "E003" // malformed driver output or event
	CodeContact  = "E004" // invalid contact data or snapshot
	CodeNotFound = "E005" // run or contact not found
	CodeUsage    = "E006" // invalid flag value
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// errUsage marks invalid flag values.
var errUsage = errors.New("invalid usage")

// errNotFound marks lookups that matched nothing.
var errNotFound = errors.New("not found")

// ErrorCode classifies err for CLIError.Code.
func ErrorCode(err error) string {
	var srcErr *ingest.SourceError
	switch {
	case errors.Is(err, errUsage):
		return CodeUsage
	case errors.Is(err, config.ErrInvalidConfig):
		return CodeConfig
	case errors.Is(err, driver.ErrUnknownDriver),
		errors.Is(err, driver.ErrInvalidManifest),
		errors.Is(err, driver.ErrMemberNotFound):
		return CodeDriver
	case errors.Is(err, driver.ErrInvalidRecord),
		errors.Is(err, events.ErrInvalidEvent):
		return CodeRecord
	case errors.As(err, &srcErr):
		return CodeDriver
	case contacts.IsValidationError(err):
		return CodeContact
	case errors.Is(err, store.ErrUnknownRun), errors.Is(err, errNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
	RunID  string    `json:"run_id,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	// Human-readable text output
	fmt.Fprintln(f.Writer, data)
	return nil
}

// JSON outputs an indented success envelope, for payloads meant to be
// read by people as well as tools.
func (f *OutputFormatter) JSON(data any, runID string) error {
	encoder := json.NewEncoder(f.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(CLIResponse{Status: "ok", Data: data, RunID: runID})
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	// Human-readable error
	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
