package executor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"jcsh/internal/log"
)

var ErrCommandNotFound = errors.New("command not found")

// Proc describes one process to start.
type Proc struct {
	// Pgid is the process group to join. 0 makes the child the leader
	// of a new group.
	Pgid int
	Path string
	Args []string

	// Stdin and Stdout replace the launcher's defaults when set.
	Stdin  *os.File
	Stdout *os.File

	// Foreground makes the child's group the terminal's foreground group
	// before it execs. Ignored when the launcher has no terminal.
	Foreground bool
}

// Launcher forks and execs single commands without waiting for them.
type Launcher struct {
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File

	// Env is passed to children. nil means the shell's environment at
	// launch time.
	Env []string

	// tty is the controlling terminal's fd in the shell, -1 for none.
	tty int
}

func NewLauncher(stdin, stdout, stderr *os.File) *Launcher {
	tty := -1
	if fd := int(stdin.Fd()); term.IsTerminal(fd) {
		tty = fd
	}
	return &Launcher{Stdin: stdin, Stdout: stdout, Stderr: stderr, tty: tty}
}

// Launch starts p and returns its pid.
//
// Only fds 0-2 are handed to the child. Pipes from os.Pipe are
// close-on-exec, so the end belonging to the other stage never reaches
// it. A failed exec is reported here as an error; the child never runs
// shell code.
func (l *Launcher) Launch(p Proc) (int, error) {
	if len(p.Args) == 0 {
		p.Args = []string{p.Path}
	}

	path, err := exec.LookPath(p.Path)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", p.Path, ErrCommandNotFound)
	}

	stdin, stdout := l.Stdin, l.Stdout
	if p.Stdin != nil {
		stdin = p.Stdin
	}
	if p.Stdout != nil {
		stdout = p.Stdout
	}

	env := l.Env
	if env == nil {
		env = os.Environ()
	}

	attr := &syscall.ProcAttr{
		Env:   env,
		Files: []uintptr{stdin.Fd(), stdout.Fd(), l.Stderr.Fd()},
		Sys:   l.sysAttr(p),
	}

	pid, err := Retry(func() (int, error) {
		return syscall.ForkExec(path, p.Args, attr)
	})
	runtime.KeepAlive(stdin)
	runtime.KeepAlive(stdout)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", p.Path, err)
	}

	// The child sets its own group too; whichever runs first wins.
	// EACCES means the child already exec'd, which is fine.
	group := p.Pgid
	if group == 0 {
		group = pid
	}
	err = RetryErr(func() error { return unix.Setpgid(pid, group) })
	if err != nil && !errors.Is(err, unix.EACCES) {
		log.Warn(log.CatLaunch, "setpgid from parent failed", "pid", pid, "pgid", group, "error", err)
	}

	log.Debug(log.CatLaunch, "started", "pid", pid, "pgid", group, "path", path)
	return pid, nil
}

// sysAttr places the child in its group. A foreground leader takes the
// terminal itself between fork and exec, so it never runs in the
// background long enough to be stopped by SIGTTIN.
func (l *Launcher) sysAttr(p Proc) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Setpgid: true,
		Pgid:    p.Pgid,
	}
	if p.Foreground && l.tty >= 0 {
		attr.Foreground = true
		attr.Ctty = l.tty
	}
	return attr
}
