package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

func renderStatus(w io.Writer, s *statusSnapshot) {
	colorize := isTerminalWriter(w)

	fmt.Fprintln(w, headline(s, colorize))
	if s.Heartbeat != nil {
		fmt.Fprintf(w, "  run %s, pid %d, wake %s, last active %s ago, %d processed this run\n",
			s.Heartbeat.RunID, s.Heartbeat.PID, s.Heartbeat.Mode, s.HeartbeatAge, s.Heartbeat.EventsProcessed)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, partitionTable(s.Queue))

	fmt.Fprintf(w, "\nLifetime: %d enqueued, %d processed, %d retried, %d failed, %d direct\n",
		s.Stats.Enqueued, s.Stats.Processed, s.Stats.Retried, s.Stats.Failed, s.Stats.Direct)
	fmt.Fprintf(w, "Queue:     %s\n", s.QueueDir)
	fmt.Fprintf(w, "Datastore: %s\n", s.DatastorePath)
}

func headline(s *statusSnapshot, colorize bool) string {
	var line, color string
	switch {
	case s.WorkerRunning:
		line = fmt.Sprintf("Worker running (pid %d)", s.WorkerPID)
		color = ansiGreen
	case s.Queue.Pending > 0:
		line = fmt.Sprintf("Worker not running; %d entries waiting", s.Queue.Pending)
		color = ansiYellow
	default:
		line = "Worker not running"
		color = ansiRed
	}
	if colorize {
		return color + line + ansiReset
	}
	return line
}

func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
