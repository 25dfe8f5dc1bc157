package models

import "errors"

var (
	ErrAlreadyActive    = errors.New("already active")
	ErrNotActive        = errors.New("not active")
	ErrElementNotFound  = errors.New("element not found")
	ErrAgentUnreachable = errors.New("agent unreachable")
	ErrMalformedScript  = errors.New("malformed script")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrNotFound         = errors.New("not found")
)

// ErrorKind is the wire name of an error class.
type ErrorKind string

const (
	KindAlreadyActive    ErrorKind = "AlreadyActive"
	KindNotActive        ErrorKind = "NotActive"
	KindElementNotFound  ErrorKind = "ElementNotFound"
	KindAgentUnreachable ErrorKind = "AgentUnreachable"
	KindMalformedScript  ErrorKind = "MalformedScript"
	KindInvalidRequest   ErrorKind = "InvalidRequest"
	KindNotFound         ErrorKind = "NotFound"
	KindInternal         ErrorKind = "Internal"
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrAlreadyActive, KindAlreadyActive},
	{ErrNotActive, KindNotActive},
	{ErrElementNotFound, KindElementNotFound},
	{ErrAgentUnreachable, KindAgentUnreachable},
	{ErrMalformedScript, KindMalformedScript},
	{ErrInvalidRequest, KindInvalidRequest},
	{ErrNotFound, KindNotFound},
}

// KindOf classifies err. Nil maps to the empty kind.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
