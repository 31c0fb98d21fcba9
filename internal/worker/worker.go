// Package worker drives a single controller: connect, identify it, run the
// command set and write the transcript.
package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"runcommand/internal/command"
	rcerrors "runcommand/internal/errors"
	"runcommand/internal/logging"
	"runcommand/internal/output"
	"runcommand/internal/ssh"
	"runcommand/internal/target"
	"runcommand/internal/template"
)

const (
	EncryptDisableCommand = "encrypt disable"
	HostnameCommand       = "show hostname"
	DefaultPagingCommand  = "no paging"
	UnknownHostname       = "unknown"
)

// Config is shared by every worker in a run.
type Config struct {
	Commands      command.Set
	Decrypt       bool   // send "encrypt disable" before anything else
	PagingCommand string // sent after decrypt; empty disables it
	Prefix        string
	OutputDir     string
}

// Result is the outcome of one worker.
type Result struct {
	ID       int
	Target   target.Target
	Hostname string
	Path     string
	Bytes    int64
	Duration time.Duration
	Error    error
}

// Success reports whether the transcript was written.
func (r *Result) Success() bool {
	return r.Error == nil
}

// Worker runs the configured command set against one target at a time.
// It holds no per-target state and is safe for concurrent use.
type Worker struct {
	dialer    ssh.Dialer
	templates *template.TemplateEngine
	config    Config
	logger    *logging.Logger
	now       func() time.Time
}

// New creates a worker. Command templates are parsed here so mistakes are
// reported before any controller is contacted.
func New(dialer ssh.Dialer, config Config, logger *logging.Logger) (*Worker, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	templates, err := template.NewTemplateEngine(config.Commands.Commands())
	if err != nil {
		return nil, rcerrors.NewValidationError("invalid command set", err)
	}
	return &Worker{
		dialer:    dialer,
		templates: templates,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Run processes one target. Errors are returned in the result, already
// classified.
func (w *Worker) Run(ctx context.Context, id int, t target.Target) *Result {
	start := time.Now()
	w.logger.LogWorkerStart(id, t)

	result := &Result{ID: id, Target: t}
	result.Error = w.run(ctx, id, t, result, w.logger.With("worker", id, "host", t.Host))
	result.Duration = time.Since(start)

	w.logger.LogWorkerFinish(id, t, result.Duration)
	return result
}

func (w *Worker) run(ctx context.Context, id int, t target.Target, result *Result, log *logging.Logger) error {
	sess, err := w.dialer.Dial(ctx, t)
	if err != nil {
		return err
	}
	defer sess.Close()

	if w.config.Decrypt {
		if _, err := sess.SendCommand(ctx, EncryptDisableCommand); err != nil {
			return err
		}
	}
	if w.config.PagingCommand != "" {
		if _, err := sess.SendCommand(ctx, w.config.PagingCommand); err != nil {
			return err
		}
	}

	reply, err := sess.SendCommand(ctx, HostnameCommand)
	if err != nil {
		return err
	}
	hostname, ok := ParseHostname(reply)
	if !ok {
		log.Warn("could not determine hostname", "reply", reply)
	}
	result.Hostname = hostname

	tctx := template.NewContext(t, hostname)
	transcript := &output.Transcript{Hostname: hostname, Host: t.Host}
	for _, raw := range w.config.Commands.Commands() {
		cmd, err := w.templates.Render(raw, tctx)
		if err != nil {
			return rcerrors.NewValidationError(fmt.Sprintf("rendering %q for %s", raw, t.Host), err)
		}
		out, err := sess.SendCommand(ctx, cmd)
		if err != nil {
			return err
		}
		transcript.Add(cmd, out)
	}

	parts := output.NameParts{
		Prefix:   w.config.Prefix,
		Hostname: hostname,
		Host:     t.Host,
		Time:     w.now(),
	}
	if w.config.Commands.Single() {
		parts.Command = transcript.Entries[0].Command
	}

	path, n, err := output.Write(w.config.OutputDir, output.FileName(parts), transcript)
	if err != nil {
		return rcerrors.NewOutputError(fmt.Sprintf("writing transcript for %s", t.Host), err)
	}
	result.Path = path
	result.Bytes = n
	w.logger.LogTranscriptWritten(id, hostname, path, int(n))
	return nil
}

// ParseHostname extracts the name from a "Hostname is <name>" reply. It
// returns UnknownHostname and false when the reply is too short.
func ParseHostname(reply string) (string, bool) {
	for _, line := range strings.Split(reply, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 3 {
			return fields[2], true
		}
	}
	return UnknownHostname, false
}
