package backend

import (
	"fmt"
	"time"
)

// ErrorKind classifies why an invocation produced no output.
type ErrorKind int

const (
	KindSpawn ErrorKind = iota
	KindIO
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindSpawn:
		return "spawn"
	case KindIO:
		return "io"
	case KindTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by an Agent when the process could not be started,
// its streams failed, or it ran past its deadline.
type Error struct {
	Kind    ErrorKind
	Timeout time.Duration // set for KindTimeout
	Err     error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case KindSpawn:
		msg = "Failed to spawn Claude Code process"
	case KindTimeout:
		return fmt.Sprintf("Claude Code process timed out after %d seconds", int(e.Timeout/time.Second))
	default:
		msg = "Error reading Claude Code output"
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }
