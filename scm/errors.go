package scm

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorKind classifies a failure so callers can branch on it without string
// matching. Conflict in particular must be distinguishable: it is the one
// outcome the caller may resolve by re-reading state and trying again.
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindConflict          ErrorKind = "conflict"
	KindMalformedDocument ErrorKind = "malformed_document"
	KindInvalidRequest    ErrorKind = "invalid_request"
	KindRemoteUnavailable ErrorKind = "remote_unavailable"
	KindPartialFailure    ErrorKind = "partial_failure"
)

// Error is the structured failure returned across the workflow boundary:
// a kind, the operation that failed, a human-readable detail, and the
// identifying parameters (repository, branch, path, ...).
type Error struct {
	Kind   ErrorKind
	Op     string
	Detail string
	Params map[string]string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if len(e.Params) > 0 {
		keys := make([]string, 0, len(e.Params))
		for k := range e.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%q", k, e.Params[k]))
		}
		b.WriteString(" (")
		b.WriteString(strings.Join(parts, " "))
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// E builds an Error. Params come as alternating key/value strings.
func E(kind ErrorKind, op, detail string, kv ...string) *Error {
	e := &Error{Kind: kind, Op: op, Detail: detail}
	if len(kv) > 0 {
		e.Params = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			e.Params[kv[i]] = kv[i+1]
		}
	}
	return e
}

// Wrap attaches an underlying cause to an Error built with E.
func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// KindOf extracts the ErrorKind from err, or "" if err carries none.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
