package ssh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	rcerrors "runcommand/internal/errors"
	"runcommand/internal/logging"
	"runcommand/internal/target"
)

var (
	ansiEscape = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)

	// ArubaOS prompts look like "(wlc01) #", "(wlc01) [mynode] #" or "(wlc01) >".
	firstPrompt = regexp.MustCompile(`^\(.+\).*[#>]$`)
)

// Shell is a PTY-backed controller CLI. Commands are written to stdin and
// their output is read until the controller prints its prompt again.
type Shell struct {
	client  *Client
	session *ssh.Session
	stdin   io.WriteCloser
	target  target.Target
	opts    Options
	logger  *logging.Logger

	chunks  chan []byte
	readErr error
	done    chan struct{}
	once    sync.Once

	pending strings.Builder // raw output, cleaned as a whole
	prompt  string // prompt without its trailing '#' or '>', e.g. "(wlc01)"
}

// Shell starts an interactive session and waits for the first prompt.
func (c *Client) Shell(ctx context.Context) (*Shell, error) {
	session, err := c.conn.NewSession()
	if err != nil {
		return nil, rcerrors.NewConnectionError("failed to create session", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("vt100", 200, 512, modes); err != nil {
		session.Close()
		return nil, rcerrors.NewConnectionError("failed to request pty", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, rcerrors.NewConnectionError("failed to open stdin", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, rcerrors.NewConnectionError("failed to open stdout", err)
	}
	if err := session.Shell(); err != nil {
		session.Close()
		return nil, rcerrors.NewConnectionError("failed to start shell", err)
	}

	s := &Shell{
		client:  c,
		session: session,
		stdin:   stdin,
		target:  c.target,
		opts:    c.opts,
		logger:  c.logger,
		chunks:  make(chan []byte, 64),
		done:    make(chan struct{}),
	}
	go s.readLoop(stdout)

	waitCtx, cancel := context.WithTimeout(ctx, c.opts.ConnTimeout)
	defer cancel()

	banner, err := s.readUntil(waitCtx, isFirstPrompt)
	if err != nil {
		s.Close()
		return nil, s.wrapReadError("waiting for prompt", err)
	}
	s.prompt = basePrompt(lastLine(banner))
	s.logger.Debug("Controller prompt detected", "host", c.target.Host, "prompt", s.prompt)

	return s, nil
}

func (s *Shell) readLoop(r io.Reader) {
	defer close(s.chunks)
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case s.chunks <- chunk:
			case <-s.done:
				return
			}
		}
		if err != nil {
			s.readErr = err
			return
		}
	}
}

// SendCommand runs one command and returns what the controller printed for
// it, without the echoed command line or the trailing prompt.
func (s *Shell) SendCommand(ctx context.Context, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.CmdTimeout)
	defer cancel()

	start := time.Now()
	if _, err := io.WriteString(s.stdin, command+"\n"); err != nil {
		err = rcerrors.NewConnectionError(fmt.Sprintf("failed to send %q", command), err)
		s.logger.LogCommandError(s.target, command, err)
		return "", err
	}

	raw, err := s.readUntil(ctx, s.matchesPrompt)
	if err != nil {
		err = s.wrapReadError(fmt.Sprintf("running %q", command), err)
		s.logger.LogCommandError(s.target, command, err)
		return "", err
	}

	out := stripEchoAndPrompt(raw, command)
	s.logger.LogCommand(s.target, command, len(out), time.Since(start))
	return out, nil
}

// Close ends the shell and the underlying connection.
func (s *Shell) Close() error {
	s.once.Do(func() {
		_, _ = io.WriteString(s.stdin, "exit\n")
		close(s.done)
		s.session.Close()
		s.client.Close()
	})
	return nil
}

// readUntil accumulates output until match accepts its last cleaned line.
// The consumed text is returned and the buffer is reset.
func (s *Shell) readUntil(ctx context.Context, match func(last string) bool) (string, error) {
	for {
		raw := s.pending.String()
		if last := clean(lastLine(raw)); last != "" && match(last) {
			s.pending.Reset()
			return clean(raw), nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case chunk, ok := <-s.chunks:
			if !ok {
				if s.readErr != nil && !errors.Is(s.readErr, io.EOF) {
					return "", s.readErr
				}
				return "", io.ErrUnexpectedEOF
			}
			s.pending.Write(chunk)
		}
	}
}

func (s *Shell) matchesPrompt(last string) bool {
	return isPrompt(last) && strings.HasPrefix(strings.TrimSpace(last), s.prompt)
}

func (s *Shell) wrapReadError(action string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return rcerrors.NewTimeoutError(fmt.Sprintf("timed out %s on %s", action, s.target.Host), err)
	}
	return rcerrors.NewConnectionError(fmt.Sprintf("connection lost %s on %s", action, s.target.Host), err)
}

func clean(s string) string {
	s = ansiEscape.ReplaceAllString(s, "")
	return strings.ReplaceAll(s, "\r", "")
}

func lastLine(s string) string {
	if idx := strings.LastIndex(s, "\n"); idx != -1 {
		return s[idx+1:]
	}
	return s
}

// isPrompt reports whether an unterminated line looks like a CLI prompt.
func isPrompt(line string) bool {
	line = strings.TrimSpace(line)
	return line != "" && (strings.HasSuffix(line, "#") || strings.HasSuffix(line, ">"))
}

// isFirstPrompt reports whether line is a full controller prompt. Banner
// lines ending in '#' do not qualify.
func isFirstPrompt(line string) bool {
	return firstPrompt.MatchString(strings.TrimSpace(line))
}

func basePrompt(line string) string {
	line = strings.TrimSpace(line)
	return strings.TrimSpace(line[:len(line)-1])
}

func stripEchoAndPrompt(raw, command string) string {
	lines := strings.Split(raw, "\n")
	// The prompt is always the final, unterminated line.
	lines = lines[:len(lines)-1]
	if len(lines) > 0 && strings.TrimSpace(lines[0]) == strings.TrimSpace(command) {
		lines = lines[1:]
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}
