// Package jobs is the job-control engine. A single Worker owns the
// process table and the terminal; commands from the front end and
// signals from the relay reach it only as messages, so nothing here
// needs a lock.
package jobs

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"

	"jcsh/internal/builtins"
	"jcsh/internal/executor"
	"jcsh/internal/log"
	"jcsh/internal/parser"
)

// DefaultMaxJobs bounds job ids when Options.MaxJobs is unset.
const DefaultMaxJobs = 1024

var ErrNoFreeJobID = errors.New("maximum number of jobs reached")

// Message is anything the Worker consumes.
type Message interface {
	isMessage()
}

// Cmd is a line submitted by the front end.
type Cmd struct {
	Line string
}

// Signal is a signal forwarded by the relay.
type Signal struct {
	Sig unix.Signal
}

func (Cmd) isMessage()    {}
func (Signal) isMessage() {}

// Reply tells the blocked front end what to do next.
type Reply struct {
	Quit bool
	Code int
}

// System is the OS surface the Worker drives.
type System interface {
	Launch(p executor.Proc) (int, error)
	Pipe() (r, w *os.File, err error)
	Wait() (executor.Status, error)
	SetForeground(pgid int) error
	SignalGroup(pgid int, sig unix.Signal) error
}

type Options struct {
	// ShellPgid is the group that owns the terminal when no job does.
	ShellPgid int
	MaxJobs   int
	Stdout    io.Writer
	Stderr    io.Writer
}

type Worker struct {
	sys     System
	table   *Table
	reply   chan<- Reply
	fg      int // 0: the shell owns the terminal
	shell   int
	exitVal int
	maxJobs int
	stdout  io.Writer
	stderr  io.Writer
}

func NewWorker(sys System, reply chan<- Reply, opts Options) *Worker {
	if opts.MaxJobs <= 0 {
		opts.MaxJobs = DefaultMaxJobs
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Worker{
		sys:     sys,
		table:   NewTable(),
		reply:   reply,
		shell:   opts.ShellPgid,
		maxJobs: opts.MaxJobs,
		stdout:  opts.Stdout,
		stderr:  opts.Stderr,
	}
}

// Run handles messages until inbox is closed. It returns early only
// when child state can no longer be collected.
func (w *Worker) Run(inbox <-chan Message) error {
	for msg := range inbox {
		if err := w.Handle(msg); err != nil {
			return err
		}
	}
	return nil
}

// Handle processes one message to completion.
func (w *Worker) Handle(msg Message) error {
	switch m := msg.(type) {
	case Cmd:
		w.command(m.Line)
	case Signal:
		if m.Sig == unix.SIGCHLD {
			return w.waitChildren()
		}
		log.Debug(log.CatWorker, "ignoring signal", "signal", m.Sig)
	}
	return nil
}

// Foreground returns the group holding the terminal, 0 for the shell.
func (w *Worker) Foreground() int {
	return w.fg
}

func (w *Worker) command(line string) {
	cmd, err := parser.Parse(line)
	if err != nil {
		fmt.Fprintf(w.stderr, "jcsh: %v\n", err)
		w.send(false)
		return
	}

	if cmd.IsSingle() && builtins.IsBuiltin(cmd[0].Program) {
		res, _ := builtins.Handle(env{w}, cmd[0].Args)
		w.exitVal = res.Code
		switch res.Action {
		case builtins.Continue:
			w.send(false)
		case builtins.Quit:
			w.send(true)
		}
		return
	}

	if err := w.spawn(line, cmd); err != nil {
		fmt.Fprintf(w.stderr, "jcsh: %v\n", err)
		w.send(false)
	}
}

// spawn launches an external pipeline and makes it the foreground job.
// The front end is answered later, when the job exits or stops.
func (w *Worker) spawn(line string, cmd parser.Pipeline) error {
	if len(cmd) > parser.MaxStages {
		return parser.ErrTooManyStages
	}
	id, ok := w.table.NextID(w.maxJobs)
	if !ok {
		return ErrNoFreeJobID
	}

	var input, output *os.File
	if len(cmd) == 2 {
		r, wr, err := w.sys.Pipe()
		if err != nil {
			return fmt.Errorf("pipe: %w", err)
		}
		defer r.Close()
		defer wr.Close()
		input, output = r, wr
	}

	// The leader takes the terminal before it execs.
	first := executor.Proc{
		Path:       cmd[0].Program,
		Args:       cmd[0].Args,
		Stdout:     output,
		Foreground: true,
	}
	pgid, err := w.sys.Launch(first)
	if err != nil {
		return err
	}
	pids := []int{pgid}

	if len(cmd) == 2 {
		second := executor.Proc{
			Pgid:  pgid,
			Path:  cmd[1].Program,
			Args:  cmd[1].Args,
			Stdin: input,
		}
		pid, err := w.sys.Launch(second)
		if err != nil {
			// The first stage keeps running untracked.
			log.Warn(log.CatWorker, "second stage failed, first stage left untracked", "pid", pgid)
			w.handoff(w.shell)
			return err
		}
		pids = append(pids, pid)
	}

	if err := w.table.Insert(id, pgid, pids, line); err != nil {
		w.handoff(w.shell)
		return err
	}
	log.Debug(log.CatWorker, "job registered", "job", id, "pgid", pgid, "pids", pids)

	w.fg = pgid
	w.handoff(pgid)
	return nil
}

// waitChildren drains every pending child state change.
func (w *Worker) waitChildren() error {
	for {
		st, err := w.sys.Wait()
		if err != nil {
			return err
		}
		log.Debug(log.CatWorker, "wait", "kind", st.Kind, "pid", st.Pid)

		switch st.Kind {
		case executor.Exited:
			w.exitVal = st.Code
			w.processTerm(st.Pid)
		case executor.Signaled:
			core := ""
			if st.Core {
				core = " (core dumped)"
			}
			fmt.Fprintf(w.stderr, "\njcsh: child terminated by signal%s: pid = %d, signal = %v\n", core, st.Pid, st.Signal)
			w.exitVal = 128 + int(st.Signal)
			w.processTerm(st.Pid)
		case executor.Stopped:
			w.processStop(st.Pid)
		case executor.Continued:
			w.table.SetState(st.Pid, Running)
		default:
			return nil
		}
	}
}

func (w *Worker) processTerm(pid int) {
	jobID, pgid, ok := w.table.RemoveProcess(pid)
	if !ok {
		return
	}
	w.manageJob(jobID, pgid)
}

func (w *Worker) processStop(pid int) {
	if _, ok := w.table.SetState(pid, Stopped); !ok {
		return
	}
	p, _ := w.table.Process(pid)
	jobID, ok := w.table.GroupJob(p.Pgid)
	if !ok {
		return
	}
	w.manageJob(jobID, p.Pgid)
}

// manageJob reacts to a change in one group: an empty group is
// deregistered, and a foreground group that is gone or wholly stopped
// gives the terminal back to the shell.
func (w *Worker) manageJob(jobID, pgid int) {
	job, ok := w.table.Job(jobID)
	if !ok {
		return
	}
	isFg := w.fg == pgid

	switch {
	case w.table.GroupEmpty(pgid):
		w.table.RemoveJob(jobID)
		log.Debug(log.CatWorker, "job finished", "job", jobID, "foreground", isFg)
		if isFg {
			fmt.Fprintf(w.stderr, "[%d] finished\t%s\n", jobID, job.Command)
			w.shellForeground()
		}
	case isFg && w.table.GroupStopped(pgid):
		fmt.Fprintf(w.stderr, "\n[%d] stopped\t%s\n", jobID, job.Command)
		w.shellForeground()
	}
}

// shellForeground takes the terminal back and unblocks the front end.
func (w *Worker) shellForeground() {
	w.fg = 0
	w.handoff(w.shell)
	w.send(false)
}

func (w *Worker) handoff(pgid int) {
	if err := w.sys.SetForeground(pgid); err != nil {
		log.ErrorErr(log.CatWorker, "terminal handoff failed", err, "pgid", pgid)
	}
}

func (w *Worker) send(quit bool) {
	w.reply <- Reply{Quit: quit, Code: w.exitVal}
}

// resume brings job id to the foreground and continues it.
func (w *Worker) resume(id int) error {
	job, ok := w.table.Job(id)
	if !ok {
		return fmt.Errorf("%d: %w", id, builtins.ErrNoSuchJob)
	}

	w.fg = job.Pgid
	w.handoff(job.Pgid)
	if err := w.sys.SignalGroup(job.Pgid, unix.SIGCONT); err != nil {
		w.fg = 0
		w.handoff(w.shell)
		return fmt.Errorf("continue job %d: %w", id, err)
	}
	// Members may exit before their Continued status is collected.
	w.table.SetGroupState(job.Pgid, Running)
	return nil
}

// env exposes the Worker to the built-ins.
type env struct {
	w *Worker
}

func (e env) Jobs() []builtins.Job {
	jobs := e.w.table.Jobs()
	out := make([]builtins.Job, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, e.view(j))
	}
	return out
}

func (e env) Job(id int) (builtins.Job, bool) {
	j, ok := e.w.table.Job(id)
	if !ok {
		return builtins.Job{}, false
	}
	return e.view(j), true
}

func (e env) view(j Job) builtins.Job {
	return builtins.Job{ID: j.ID, Command: j.Command, Stopped: e.w.table.GroupStopped(j.Pgid)}
}

func (e env) LastStatus() int     { return e.w.exitVal }
func (e env) Resume(id int) error { return e.w.resume(id) }
func (e env) Stdout() io.Writer   { return e.w.stdout }
func (e env) Stderr() io.Writer   { return e.w.stderr }
