package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/alexjbarnes/chatsync/internal/codec"
	"github.com/alexjbarnes/chatsync/internal/remote"
	"github.com/alexjbarnes/chatsync/internal/syncer"
)

// terminalPolicy asks the user on a terminal. Anything other than an
// explicit yes is a no; unreadable input cancels.
type terminalPolicy struct {
	in  *bufio.Reader
	out io.Writer
}

func newTerminalPolicy(in io.Reader, out io.Writer) *terminalPolicy {
	return &terminalPolicy{in: bufio.NewReader(in), out: out}
}

func (p *terminalPolicy) ResolveConflict(_ context.Context, c syncer.Conflict) bool {
	fmt.Fprintln(p.out, c.Message())

	if c.RemoteSyncID != "" {
		fmt.Fprintf(p.out, "  remote snapshot: %s", c.RemoteSyncID)
		if !c.PublishedAt.IsZero() {
			fmt.Fprintf(p.out, " (published %s)", c.PublishedAt.Local().Format("2006-01-02 15:04"))
		}
		fmt.Fprintln(p.out)
	}

	switch p.ask("Continue? [y/N] ") {
	case "y", "yes":
		return true
	}

	return false
}

func (p *terminalPolicy) ResolveLock(_ context.Context, m remote.LockMarker) syncer.LockChoice {
	fmt.Fprintf(p.out, "The remote store holds an unrecognized lock marker: %q\n", m.Raw)
	fmt.Fprintln(p.out, "  pull:   replace local data with the remote copy")
	fmt.Fprintln(p.out, "  push:   overwrite the remote copy with local data")
	fmt.Fprintln(p.out, "  cancel: remove the marker and change nothing")

	switch p.ask("Choice [pull/push/cancel] (cancel): ") {
	case "pull":
		return syncer.LockForcePull
	case "push":
		return syncer.LockForcePush
	}

	return syncer.LockCancel
}

func (p *terminalPolicy) ask(prompt string) string {
	fmt.Fprint(p.out, prompt)

	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return ""
	}

	return strings.ToLower(strings.TrimSpace(line))
}

// terminalReporter prints progress for interactive commands.
type terminalReporter struct {
	out io.Writer
}

func newTerminalReporter(out io.Writer) *terminalReporter {
	return &terminalReporter{out: out}
}

func (r *terminalReporter) Progress(message string) {
	fmt.Fprintf(r.out, "... %s\n", message)
}

func (r *terminalReporter) MissingAssets(report codec.MissingReport) {
	ids := report.AssetIDs()
	fmt.Fprintf(r.out, "Import stopped: %d assets are unavailable locally and remotely.\n", len(ids))

	for _, label := range report.Entities() {
		fmt.Fprintf(r.out, "  %s: %s\n", label, strings.Join(report[label], ", "))
	}
}

// logReporter sends daemon progress to the log.
type logReporter struct {
	logger *slog.Logger
}

func newLogReporter(logger *slog.Logger) *logReporter {
	return &logReporter{logger: logger}
}

func (r *logReporter) Progress(message string) {
	r.logger.Debug("sync progress", slog.String("phase", message))
}

func (r *logReporter) MissingAssets(report codec.MissingReport) {
	r.logger.Warn("import stopped, assets missing",
		slog.Int("assets", len(report.AssetIDs())),
		slog.Any("entities", report.Entities()),
	)
}
