package builtins

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ExitRefused is the status left behind when exit is refused
// because jobs are still registered.
const ExitRefused = -1

var (
	ErrUsage     = errors.New("usage")
	ErrNoSuchJob = errors.New("no such job")
)

// Action tells the caller how to answer the front end.
type Action int

const (
	// Continue lets the front end read the next line.
	Continue Action = iota
	// Quit ends the shell.
	Quit
	// Wait keeps the front end blocked until the resumed job changes state.
	Wait
)

type Result struct {
	Action Action
	Code   int
}

// Job is the view of a registered job the built-ins need.
type Job struct {
	ID      int
	Command string
	Stopped bool
}

// Env is the shell state the built-ins act on.
type Env interface {
	Jobs() []Job
	Job(id int) (Job, bool)
	LastStatus() int
	// Resume makes job id the foreground job and sends it SIGCONT.
	Resume(id int) error
	Stdout() io.Writer
	Stderr() io.Writer
}

// IsBuiltin reports whether name is handled in-process.
func IsBuiltin(name string) bool {
	switch name {
	case "cd", "exit", "jobs", "fg":
		return true
	}
	return false
}

// Handle runs a built-in. args includes the command name. The bool is
// false when args does not name a built-in.
func Handle(env Env, args []string) (Result, bool) {
	if len(args) == 0 {
		return Result{}, false
	}

	switch args[0] {
	case "cd":
		return cd(env, args), true
	case "exit":
		return exit(env, args), true
	case "jobs":
		return jobs(env), true
	case "fg":
		return fg(env, args), true
	default:
		return Result{}, false
	}
}

// cd changes to args[1], or home when omitted. Further args are ignored.
func cd(env Env, args []string) Result {
	var path string
	if len(args) < 2 {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "/"
		}
		path = home
	} else {
		path = args[1]
	}

	if err := os.Chdir(path); err != nil {
		fmt.Fprintf(env.Stderr(), "jcsh: cd: %v\n", err)
		return Result{Action: Continue, Code: 1}
	}
	return Result{Action: Continue, Code: 0}
}

func exit(env Env, args []string) Result {
	if len(env.Jobs()) != 0 {
		fmt.Fprintln(env.Stderr(), "jcsh: there are unfinished jobs")
		return Result{Action: Continue, Code: ExitRefused}
	}

	code := env.LastStatus()
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil {
			fmt.Fprintf(env.Stderr(), "jcsh: exit: %s: numeric argument required\n", args[1])
			return Result{Action: Continue, Code: 1}
		}
		code = n
	}
	return Result{Action: Quit, Code: code}
}

func jobs(env Env) Result {
	for _, job := range env.Jobs() {
		state := "running"
		if job.Stopped {
			state = "stopped"
		}
		fmt.Fprintf(env.Stdout(), "[%d] %s\t%s\n", job.ID, state, job.Command)
	}
	return Result{Action: Continue, Code: 0}
}

func fg(env Env, args []string) Result {
	if len(args) != 2 {
		fmt.Fprintf(env.Stderr(), "jcsh: fg: %v: fg <job-id>\n", ErrUsage)
		return Result{Action: Continue, Code: 1}
	}

	id, err := strconv.Atoi(args[1])
	if err != nil || id < 0 {
		fmt.Fprintf(env.Stderr(), "jcsh: fg: %s: %v\n", args[1], ErrNoSuchJob)
		return Result{Action: Continue, Code: 1}
	}

	job, ok := env.Job(id)
	if !ok {
		fmt.Fprintf(env.Stderr(), "jcsh: fg: %d: %v\n", id, ErrNoSuchJob)
		return Result{Action: Continue, Code: 1}
	}

	if err := env.Resume(id); err != nil {
		fmt.Fprintf(env.Stderr(), "jcsh: fg: %v\n", err)
		return Result{Action: Continue, Code: 1}
	}
	fmt.Fprintf(env.Stderr(), "[%d] resumed\t%s\n", job.ID, job.Command)
	return Result{Action: Wait, Code: env.LastStatus()}
}
