package core

import (
	"errors"
	"fmt"
	"strings"
)

// Category classifies a failure so callers know the correct remedy without
// parsing messages. The CLI maps categories to exit codes; the core never
// formats terminal output itself.
type Category string

const (
	// CategoryUsage marks malformed or contradictory operation inputs.
	// Never retried.
	CategoryUsage Category = "usage"
	// CategoryValidation marks violated document or structural invariants.
	CategoryValidation Category = "validation"
	// CategoryIO marks file read/stat/write failures.
	CategoryIO Category = "io"
	// CategoryGit marks git subprocess failures, including hook rejections.
	CategoryGit Category = "git"
	// CategoryConcurrency marks store staleness after the single retry.
	// A plain re-run of the command is the correct remedy.
	CategoryConcurrency Category = "concurrency"
)

// Error is a category-tagged error. The innermost category propagates to the
// boundary unchanged; only the message may be summarized.
type Error struct {
	Category Category
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Usagef builds a usage-category error.
func Usagef(format string, args ...any) error {
	return &Error{Category: CategoryUsage, Message: fmt.Sprintf(format, args...)}
}

// Validationf builds a validation-category error.
func Validationf(format string, args ...any) error {
	return &Error{Category: CategoryValidation, Message: fmt.Sprintf(format, args...)}
}

// IOErr wraps an underlying I/O failure, keeping the path in the message.
func IOErr(msg string, err error) error {
	return &Error{Category: CategoryIO, Message: msg, Err: err}
}

// Concurrencyf builds a concurrency-category error.
func Concurrencyf(format string, args ...any) error {
	return &Error{Category: CategoryConcurrency, Message: fmt.Sprintf(format, args...)}
}

// Gitf builds a git-category error without an underlying subprocess
// failure, for repository-state violations detected by inspection.
func Gitf(format string, args ...any) error {
	return &Error{Category: CategoryGit, Message: fmt.Sprintf(format, args...)}
}

// GitErr wraps a git subprocess failure with the failing command and a
// truncated excerpt of its combined output.
func GitErr(command string, err error, output string) error {
	msg := "git " + command + " failed"
	if excerpt := TruncateOutput(output); excerpt != "" {
		msg += ": " + excerpt
	}
	return &Error{Category: CategoryGit, Message: msg, Err: err}
}

// CategoryOf returns the category of the innermost tagged error, or "" if
// the chain carries no category.
func CategoryOf(err error) Category {
	var tagged *Error
	if errors.As(err, &tagged) {
		return tagged.Category
	}
	return ""
}

// IsCategory reports whether err carries the given category.
func IsCategory(err error, cat Category) bool {
	return CategoryOf(err) == cat
}

// maxOutputLines bounds error payloads from git subprocesses. Longer output
// is excerpted head+tail around an elision marker.
const maxOutputLines = 12

// TruncateOutput keeps error payloads bounded: output longer than
// maxOutputLines lines is reduced to its head and tail halves.
func TruncateOutput(output string) string {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return ""
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) <= maxOutputLines {
		return trimmed
	}
	head := lines[:maxOutputLines/2]
	tail := lines[len(lines)-maxOutputLines/2:]
	elided := len(lines) - len(head) - len(tail)
	out := append([]string{}, head...)
	out = append(out, fmt.Sprintf("... (%d lines elided) ...", elided))
	out = append(out, tail...)
	return strings.Join(out, "\n")
}
