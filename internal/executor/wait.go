package executor

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Kind classifies one wait4 result.
type Kind int

const (
	// StillAlive means children exist but none changed state.
	StillAlive Kind = iota
	// NoChildren means there is nothing left to wait for.
	NoChildren
	Exited
	Signaled
	Stopped
	Continued
)

func (k Kind) String() string {
	switch k {
	case StillAlive:
		return "still-alive"
	case NoChildren:
		return "no-children"
	case Exited:
		return "exited"
	case Signaled:
		return "signaled"
	case Stopped:
		return "stopped"
	case Continued:
		return "continued"
	default:
		return "unknown"
	}
}

// Status is a decoded child state change.
type Status struct {
	Kind Kind
	Pid  int
	// Code is the exit status for Exited.
	Code int
	// Signal is the terminating signal for Signaled and the stop
	// signal for Stopped.
	Signal unix.Signal
	Core   bool
}

const waitFlags = unix.WNOHANG | unix.WUNTRACED | unix.WCONTINUED

// WaitAny collects one pending state change from any child without
// blocking.
func WaitAny() (Status, error) {
	var ws unix.WaitStatus
	pid, err := Retry(func() (int, error) {
		return unix.Wait4(-1, &ws, waitFlags, nil)
	})
	switch {
	case errors.Is(err, unix.ECHILD):
		return Status{Kind: NoChildren}, nil
	case err != nil:
		return Status{}, fmt.Errorf("wait4: %w", err)
	case pid == 0:
		return Status{Kind: StillAlive}, nil
	}
	return decode(pid, ws), nil
}

func decode(pid int, ws unix.WaitStatus) Status {
	switch {
	case ws.Exited():
		return Status{Kind: Exited, Pid: pid, Code: ws.ExitStatus()}
	case ws.Signaled():
		return Status{Kind: Signaled, Pid: pid, Signal: ws.Signal(), Core: ws.CoreDump()}
	case ws.Stopped():
		return Status{Kind: Stopped, Pid: pid, Signal: ws.StopSignal()}
	case ws.Continued():
		return Status{Kind: Continued, Pid: pid}
	default:
		return Status{Kind: StillAlive, Pid: pid}
	}
}
