package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/roach88/reefsync/internal/queue"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Work left undone (entries still queued, scenarios failed)
	ExitCommandError = 2 // Command error (bad config, storage unavailable, etc.)
)

// Error codes reported in the JSON envelope when no queue error applies.
const (
	CodeCommand    = "E_COMMAND"
	CodeIncomplete = "E_INCOMPLETE"
	CodeTestFailed = "E_TEST_FAILED"
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code    int
	Message string
	Err     error

	// reported is set once the error has been written to the output,
	// so the root command does not print it twice.
	reported bool
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

// NewExitError creates an ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps err with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from err. Errors that are not
// ExitErrors map to ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ErrorCode names err for machine-readable output. Queue errors keep their
// own code ("E_STORAGE_UNAVAILABLE").
func ErrorCode(err error) string {
	var qe *queue.Error
	if errors.As(err, &qe) {
		return "E_" + string(qe.Code)
	}
	if GetExitCode(err) == ExitFailure {
		return CodeIncomplete
	}
	return CodeCommand
}

// IsReported reports whether err was already written as a JSON envelope.
func IsReported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.reported
}

// OutputFormatter writes command results as JSON envelopes or plain text.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // diagnostics; falls back to Writer
	Verbose   bool
}

// CLIResponse is the JSON envelope for every command.
type CLIResponse struct {
	Status string      `json:"status"` // "ok" or "error"
	Data   interface{} `json:"data,omitempty"`
	Error  *CLIError   `json:"error,omitempty"`
}

// CLIError describes a failed command.
type CLIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// IsJSON reports whether output is machine-readable.
func (f *OutputFormatter) IsJSON() bool {
	return f.Format == "json"
}

// Success writes data. In text mode data is printed with fmt.Println.
func (f *OutputFormatter) Success(data interface{}) error {
	if f.IsJSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes an error envelope (JSON) or an "Error [code]" line (text).
func (f *OutputFormatter) Error(code, message string, details interface{}) error {
	if f.IsJSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err in JSON mode and returns it marked as reported. Text
// mode leaves printing to the caller of Execute.
func (f *OutputFormatter) Fail(err error) error {
	if err == nil || !f.IsJSON() || IsReported(err) {
		return err
	}
	if werr := f.Error(ErrorCode(err), err.Error(), nil); werr != nil {
		return errors.Join(err, werr)
	}
	return markReported(err)
}

func markReported(err error) error {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		exitErr.reported = true
		return err
	}
	return &ExitError{Code: ExitFailure, Message: "command failed", Err: err, reported: true}
}

// VerboseLog writes to ErrWriter when verbose, keeping JSON on Writer intact.
func (f *OutputFormatter) VerboseLog(format string, args ...interface{}) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

var printer = message.NewPrinter(language.English)

// formatCount renders n with a singular or plural noun ("1,024 requests").
func formatCount(n int, singular, plural string) string {
	noun := plural
	if n == 1 {
		noun = singular
	}
	return printer.Sprintf("%d %s", n, noun)
}
