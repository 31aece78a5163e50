package executor

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// System is the OS side of job control: starting processes, pipes,
// wait status, terminal ownership and group signals.
type System struct {
	*Launcher
	*Terminal
}

// NewSystem builds a System whose children inherit the given stdio
// and whose terminal handoffs go through stdin.
func NewSystem(stdin, stdout, stderr *os.File) *System {
	return &System{
		Launcher: NewLauncher(stdin, stdout, stderr),
		Terminal: NewTerminal(stdin),
	}
}

// Pipe returns a close-on-exec pipe.
func (s *System) Pipe() (r, w *os.File, err error) {
	return os.Pipe()
}

func (s *System) Wait() (Status, error) {
	return WaitAny()
}

// SignalGroup sends sig to every process in pgid.
func (s *System) SignalGroup(pgid int, sig unix.Signal) error {
	if pgid <= 0 {
		return fmt.Errorf("invalid process group %d", pgid)
	}
	return RetryErr(func() error { return unix.Kill(-pgid, sig) })
}

// ShellGroup returns the calling process's group id.
func ShellGroup() int {
	return unix.Getpgrp()
}
