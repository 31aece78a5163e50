package executor

import (
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Terminal hands the controlling terminal between process groups.
// When the shell is not attached to a tty every handoff is a no-op.
type Terminal struct {
	fd  int
	tty bool
}

func NewTerminal(f *os.File) *Terminal {
	fd := int(f.Fd())
	return &Terminal{fd: fd, tty: term.IsTerminal(fd)}
}

// IsTTY reports whether handoffs reach a real terminal.
func (t *Terminal) IsTTY() bool {
	return t.tty
}

// SetForeground makes pgid the terminal's foreground group.
// The caller must be ignoring SIGTTOU when it is not itself in the
// foreground.
func (t *Terminal) SetForeground(pgid int) error {
	if !t.tty {
		return nil
	}
	return RetryErr(func() error {
		return unix.IoctlSetPointerInt(t.fd, unix.TIOCSPGRP, pgid)
	})
}

// Foreground returns the terminal's current foreground group.
func (t *Terminal) Foreground() (int, error) {
	if !t.tty {
		return unix.Getpgrp(), nil
	}
	return Retry(func() (int, error) {
		return unix.IoctlGetInt(t.fd, unix.TIOCGPGRP)
	})
}
