// Package signals turns asynchronous signal delivery into Worker messages.
package signals

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"

	"jcsh/internal/jobs"
	"jcsh/internal/log"
)

// Watched are the signals forwarded to the Worker.
var Watched = []os.Signal{unix.SIGINT, unix.SIGTSTP, unix.SIGCHLD}

// Setup makes the shell immune to SIGTTOU so it can reclaim the terminal
// from a background position.
func Setup() {
	signal.Ignore(unix.SIGTTOU)
}

// Relay starts forwarding Watched signals into inbox. Forwarding runs
// until the process exits.
func Relay(inbox chan<- jobs.Message) {
	ch := make(chan os.Signal, 32)
	signal.Notify(ch, Watched...)
	go forward(ch, inbox)
}

func forward(in <-chan os.Signal, out chan<- jobs.Message) {
	for s := range in {
		sig, ok := s.(unix.Signal)
		if !ok {
			continue
		}
		log.Debug(log.CatSignal, "relaying", "signal", sig)
		out <- jobs.Signal{Sig: sig}
	}
}
