// Package nperr defines the error taxonomy shared by every nipart
// component: the daemon, the commander, the plugin workers and the CLI.
//
// It is modeled directly on the categorized-error pattern used throughout
// the rest of this codebase's ancestry: a small concrete Kind tags an
// underlying error so that callers across a process boundary (the IPC
// transport in pkg/ipc) can recover it without parsing message text.
package nperr

import (
	"errors"
	"fmt"
)

// Kind categorizes an error. It is not a type name; several
// distinct failure causes can carry the same Kind.
type Kind int

const (
	// OK is returned by GetKind for a nil error.
	OK Kind = iota
	InvalidArgument
	InvalidSchemaVersion
	PermissionDeny
	Timeout
	NoSupport
	PluginFailure
	DaemonFailure
	VerificationError
	IpcClosed
	IpcFailure
	IpcMessageTooLarge
	Bug
)

func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case InvalidArgument:
		return "invalid_argument"
	case InvalidSchemaVersion:
		return "invalid_schema_version"
	case PermissionDeny:
		return "permission_deny"
	case Timeout:
		return "timeout"
	case NoSupport:
		return "no_support"
	case PluginFailure:
		return "plugin_failure"
	case DaemonFailure:
		return "daemon_failure"
	case VerificationError:
		return "verification_error"
	case IpcClosed:
		return "ipc_closed"
	case IpcFailure:
		return "ipc_failure"
	case IpcMessageTooLarge:
		return "ipc_message_too_large"
	case Bug:
		return "bug"
	default:
		return "unknown"
	}
}

// KindFromString recovers a Kind from its String() form, used when an
// ErrorReply crosses the IPC boundary. Unrecognized strings map to
// DaemonFailure since the far end did report a failure, just one this
// build doesn't know the name of.
func KindFromString(s string) Kind {
	for k := InvalidArgument; k <= Bug; k++ {
		if k.String() == s {
			return k
		}
	}
	return DaemonFailure
}

type categorized struct {
	error
	kind Kind
}

// New wraps untypedErr (an error or a string) with the given Kind.
func (k Kind) New(untypedErr interface{}) error {
	var err error
	switch v := untypedErr.(type) {
	case nil:
		return nil
	case error:
		err = v
	case string:
		err = errors.New(v)
	default:
		err = fmt.Errorf("%v", v)
	}
	return &categorized{error: err, kind: k}
}

// Newf builds a Kind-tagged error from a format string; %w works as usual.
func (k Kind) Newf(format string, a ...interface{}) error {
	return &categorized{error: fmt.Errorf(format, a...), kind: k}
}

func (ce *categorized) Unwrap() error { return ce.error }

// GetKind recovers the Kind tagged onto err by New/Newf, walking the
// Unwrap() chain. Returns OK for nil and Bug for an error with no tagged
// ancestor.
func GetKind(err error) Kind {
	if err == nil {
		return OK
	}
	for {
		if ce, ok := err.(*categorized); ok {
			return ce.kind
		}
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return Bug
		}
		err = unwrapped
	}
}

// VerificationFailure is the structured payload carried by a
// VerificationError: a JSON pointer into the document plus the two values
// that disagreed.
type VerificationFailure struct {
	Pointer string      `json:"pointer"`
	Desired interface{} `json:"desired"`
	Actual  interface{} `json:"actual"`
}

func (v *VerificationFailure) Error() string {
	return fmt.Sprintf("verification failed at %s: desired %v, actual %v", v.Pointer, v.Desired, v.Actual)
}

// NewVerificationError builds a VerificationError-kind error carrying the
// mismatch details.
func NewVerificationError(pointer string, desired, actual interface{}) error {
	return VerificationError.New(&VerificationFailure{Pointer: pointer, Desired: desired, Actual: actual})
}

// ErrorReply is the wire shape an error crosses the IPC transport as
//: every
// daemon-to-client reply and every plugin-to-daemon reply that failed
// carries one of these instead of its normal payload.
type ErrorReply struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
