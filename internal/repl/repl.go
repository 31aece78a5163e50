// Package repl is the interactive front end: it reads lines, hands them
// to the job Worker and blocks until the Worker says to continue.
package repl

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/abiosoft/readline"
	"github.com/muesli/termenv"

	"jcsh/internal/builtins"
	"jcsh/internal/history"
	"jcsh/internal/jobs"
	"jcsh/internal/log"
)

const interruptHint = `jcsh: type "exit" or press Ctrl-D to leave`

// LineReader is the subset of *readline.Instance the shell uses.
type LineReader interface {
	Readline() (string, error)
	SaveHistory(line string) error
	SetPrompt(prompt string)
	Close() error
}

type Options struct {
	Prompt string
	// Interactive shows the prompt; when false lines are read silently.
	Interactive bool
	// History is loaded before the first prompt and saved on return.
	// Nil disables persistence.
	History *history.Store
	Output  *termenv.Output
	Stderr  io.Writer
}

type Shell struct {
	rl      LineReader
	inbox   chan<- jobs.Message
	replies <-chan jobs.Reply
	opts    Options
	last    int
}

func New(rl LineReader, inbox chan<- jobs.Message, replies <-chan jobs.Reply, opts Options) *Shell {
	if opts.Output == nil {
		opts.Output = termenv.NewOutput(os.Stdout)
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Shell{rl: rl, inbox: inbox, replies: replies, opts: opts}
}

// NewReadline builds the line editor. Ctrl-Z is swallowed at the prompt
// so the shell itself is never asked to suspend.
func NewReadline(prompt string, historyLimit int) (*readline.Instance, error) {
	return readline.NewEx(&readline.Config{
		Prompt:                 prompt,
		HistoryLimit:           historyLimit,
		DisableAutoSaveHistory: true,
		FuncFilterInputRune:    filterInput,
	})
}

func filterInput(r rune) (rune, bool) {
	if r == readline.CharCtrlZ {
		return r, false
	}
	return r, true
}

// Run drives the read/submit loop and returns the shell's exit code.
func (s *Shell) Run() int {
	s.loadHistory()
	defer s.saveHistory()

	eofs := 0
	for {
		s.rl.SetPrompt(s.prompt())
		line, err := s.rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			eofs = 0
			fmt.Fprintln(s.opts.Stderr, interruptHint)
			continue
		case errors.Is(err, io.EOF):
			// A second Ctrl-D in a row leaves even if jobs remain.
			eofs++
			if eofs > 1 {
				return s.last
			}
			line = "exit"
		case err != nil:
			log.ErrorErr(log.CatRepl, "readline failed", err)
			fmt.Fprintf(s.opts.Stderr, "jcsh: %v\n", err)
			return 1
		default:
			eofs = 0
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			s.remember(line)
		}

		reply, ok := s.submit(line)
		if !ok {
			log.Error(log.CatRepl, "worker stopped replying")
			return 1
		}
		if reply.Quit {
			return reply.Code
		}
		if reply.Code != builtins.ExitRefused {
			s.last = reply.Code
		}
	}
}

func (s *Shell) submit(line string) (jobs.Reply, bool) {
	log.Debug(log.CatRepl, "submit", "line", line)
	select {
	case s.inbox <- jobs.Cmd{Line: line}:
	case <-s.replies:
		// Closed: the Worker is gone and nothing will drain the inbox.
		return jobs.Reply{}, false
	}
	reply, ok := <-s.replies
	return reply, ok
}

func (s *Shell) prompt() string {
	if !s.opts.Interactive {
		return ""
	}
	color := "2"
	if s.last != 0 {
		color = "1"
	}
	out := s.opts.Output
	return out.String(s.opts.Prompt).Foreground(out.Color(color)).String()
}

func (s *Shell) remember(line string) {
	if err := s.rl.SaveHistory(line); err != nil {
		log.ErrorErr(log.CatRepl, "readline history", err)
	}
	if s.opts.History != nil {
		s.opts.History.Add(line)
	}
}

func (s *Shell) loadHistory() {
	h := s.opts.History
	if h == nil {
		return
	}
	if err := h.Load(); err != nil {
		fmt.Fprintf(s.opts.Stderr, "jcsh: history: %v\n", err)
		return
	}
	for _, line := range h.Lines() {
		_ = s.rl.SaveHistory(line)
	}
}

func (s *Shell) saveHistory() {
	if s.opts.History == nil {
		return
	}
	if err := s.opts.History.Save(); err != nil {
		fmt.Fprintf(s.opts.Stderr, "jcsh: history: %v\n", err)
	}
}
