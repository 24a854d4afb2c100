package protocol

import (
	"errors"
	"fmt"
)

// Stage identifies the frame boundary at which an exchange failed.
type Stage int

const (
	StageCommand Stage = iota
	StageAddress
	StageArgument
	StageFinal
)

func (s Stage) String() string {
	switch s {
	case StageCommand:
		return "command"
	case StageAddress:
		return "address"
	case StageArgument:
		return "argument"
	case StageFinal:
		return "final"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// ProtocolError reports a status other than ACK at a frame boundary.
type ProtocolError struct {
	Stage   Stage
	Command Command
	Status  Status
}

func (e *ProtocolError) Error() string {
	switch e.Stage {
	case StageCommand:
		return fmt.Sprintf("command %s rejected: %s", e.Command, e.Status)
	case StageAddress:
		return fmt.Sprintf("command %s: bad address: %s", e.Command, e.Status)
	case StageArgument:
		return fmt.Sprintf("command %s: bad argument: %s", e.Command, e.Status)
	default:
		return fmt.Sprintf("command %s failed: %s", e.Command, e.Status)
	}
}

// IsProtocolError returns true if err is or wraps a *ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// PreconditionError is returned before any bus traffic when the caller
// passes an out-of-range length or a misaligned address.
type PreconditionError struct {
	Op     string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Reason)
}

// IsPreconditionError returns true if err is or wraps a *PreconditionError.
func IsPreconditionError(err error) bool {
	var pe *PreconditionError
	return errors.As(err, &pe)
}
