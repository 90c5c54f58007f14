package terneo

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned while the device generation has not been
	// classified yet; no command or snapshot is available in this state.
	ErrNotReady = errors.New("terneo: generation not detected yet")

	// ErrDetectionFailed means the probe could not classify the device.
	ErrDetectionFailed = errors.New("terneo: unable to classify device generation")

	// ErrLocalControlDisabled means the device rejects LAN control because
	// its lock parameter is enabled. Not retryable; the lock must be lifted
	// on the device itself.
	ErrLocalControlDisabled = errors.New("terneo: local control disabled on device")

	// ErrDeviceTimeout means the device did not acknowledge in time. For a
	// write the actual device state is unknown until the next poll.
	ErrDeviceTimeout = errors.New("terneo: device did not respond in time")

	// ErrUnwritableParameter rejects intents targeting read-only parameters.
	ErrUnwritableParameter = errors.New("parameter is not writable")

	// ErrParameterNotApplicable rejects intents targeting parameters the
	// detected generation does not carry.
	ErrParameterNotApplicable = errors.New("parameter not applicable to this generation")

	// ErrValueOutOfRange rejects values outside the declared legal range.
	ErrValueOutOfRange = errors.New("value out of range")
)

// ValidationError rejects a command before any network call is made.
type ValidationError struct {
	Param string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("invalid command: %s", e.Err)
	}
	return fmt.Sprintf("invalid command: %s: %s", e.Param, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TransportError wraps a network-level failure. Polls absorb these into the
// degraded state; writes surface them to the caller.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %s", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError marks a malformed or unexpected telegram. The poll that hit
// it is treated as failed and the previous snapshot is retained.
type DecodeError struct {
	What string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("decode %s", e.What)
	}
	return fmt.Sprintf("decode %s: %s", e.What, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
