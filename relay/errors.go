package relay

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a RelayError for programmatic handling, per the
// propagation policy each kind carries.
type ErrorCode int

const (
	// ErrConfiguration covers bad device indices, too few devices, or a
	// missing replay log file. Aborts before the session starts.
	ErrConfiguration ErrorCode = iota + 1
	// ErrDriverOpen covers a failed device open. Aborts before the
	// session starts.
	ErrDriverOpen
	// ErrSelection covers no targets found or a second select retry
	// failing. Aborts the state machine before it runs.
	ErrSelection
	// ErrTransmission covers any negative driver result observed during
	// the relay loop. Terminates the loop cleanly; the frame log is
	// still persisted.
	ErrTransmission
	// ErrProtocol covers a malformed PCB during chained reassembly,
	// e.g. a zero-length chained frame. Terminates the loop cleanly.
	ErrProtocol
	// ErrHook covers a data hook panic. Treated like
	// a radio-frontend assertion: logged, loop terminated, not
	// propagated to the caller.
	ErrHook
)

func (c ErrorCode) String() string {
	switch c {
	case ErrConfiguration:
		return "ConfigurationError"
	case ErrDriverOpen:
		return "DriverOpenError"
	case ErrSelection:
		return "SelectionError"
	case ErrTransmission:
		return "TransmissionError"
	case ErrProtocol:
		return "ProtocolError"
	case ErrHook:
		return "HookError"
	default:
		return "UnknownError"
	}
}

// RelayError is the structured error type the relay package returns.
type RelayError struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *RelayError) Error() string {
	msg := e.Code.String()
	if e.Op != "" {
		msg += " (" + e.Op + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *RelayError) Unwrap() error {
	return e.Cause
}

func (e *RelayError) Is(target error) bool {
	t, ok := target.(*RelayError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newError(code ErrorCode, op, message string, cause error) *RelayError {
	return &RelayError{Code: code, Op: op, Message: message, Cause: cause}
}

func errorf(code ErrorCode, op, format string, args ...interface{}) *RelayError {
	return &RelayError{Code: code, Op: op, Message: fmt.Sprintf(format, args...)}
}

// IsConfigurationError reports whether err is, or wraps, a ConfigurationError.
func IsConfigurationError(err error) bool { return hasCode(err, ErrConfiguration) }

// IsDriverOpenError reports whether err is, or wraps, a DriverOpenError.
func IsDriverOpenError(err error) bool { return hasCode(err, ErrDriverOpen) }

// IsSelectionError reports whether err is, or wraps, a SelectionError.
func IsSelectionError(err error) bool { return hasCode(err, ErrSelection) }

// IsTransmissionError reports whether err is, or wraps, a TransmissionError.
func IsTransmissionError(err error) bool { return hasCode(err, ErrTransmission) }

// IsProtocolError reports whether err is, or wraps, a ProtocolError.
func IsProtocolError(err error) bool { return hasCode(err, ErrProtocol) }

// IsHookError reports whether err is, or wraps, a HookError.
func IsHookError(err error) bool { return hasCode(err, ErrHook) }

func hasCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	var relayErr *RelayError
	if errors.As(err, &relayErr) {
		return relayErr.Code == code
	}
	return false
}

// GetErrorCode extracts the ErrorCode from err if it is a *RelayError.
// Returns 0 (no code) otherwise.
func GetErrorCode(err error) ErrorCode {
	var relayErr *RelayError
	if errors.As(err, &relayErr) {
		return relayErr.Code
	}
	return 0
}
