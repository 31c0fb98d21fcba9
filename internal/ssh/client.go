package ssh

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	rcerrors "runcommand/internal/errors"
	"runcommand/internal/logging"
	"runcommand/internal/target"
)

const (
	DefaultConnTimeout = 30 * time.Second
	DefaultCmdTimeout  = 60 * time.Second
)

// Credentials are shared read-only by every worker.
type Credentials struct {
	Username string
	Password string
}

// Options control how controllers are dialed and driven.
type Options struct {
	ConnTimeout   time.Duration
	CmdTimeout    time.Duration
	StrictHostKey bool   // verify against KnownHosts and fail closed
	KnownHosts    string // known_hosts path used when StrictHostKey is set
}

func (o Options) withDefaults() Options {
	if o.ConnTimeout <= 0 {
		o.ConnTimeout = DefaultConnTimeout
	}
	if o.CmdTimeout <= 0 {
		o.CmdTimeout = DefaultCmdTimeout
	}
	return o
}

// Dialer opens controller sessions. Worker code depends on this interface so
// tests can substitute a fake.
type Dialer interface {
	Dial(ctx context.Context, t target.Target) (Session, error)
}

// Session is an interactive controller CLI.
type Session interface {
	SendCommand(ctx context.Context, command string) (string, error)
	Close() error
}

// SSHDialer implements Dialer with golang.org/x/crypto/ssh.
type SSHDialer struct {
	creds  Credentials
	opts   Options
	logger *logging.Logger
}

// NewDialer creates a dialer that authenticates every controller with creds.
func NewDialer(creds Credentials, opts Options, logger *logging.Logger) *SSHDialer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &SSHDialer{creds: creds, opts: opts.withDefaults(), logger: logger}
}

// Dial connects, authenticates and waits for the controller prompt.
func (d *SSHDialer) Dial(ctx context.Context, t target.Target) (Session, error) {
	client, err := Connect(ctx, t, d.creds, d.opts, d.logger)
	if err != nil {
		return nil, err
	}
	sh, err := client.Shell(ctx)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return sh, nil
}

// Client is an authenticated connection to one controller.
type Client struct {
	conn   *ssh.Client
	target target.Target
	opts   Options
	logger *logging.Logger
}

// Connect establishes an authenticated SSH connection to the controller.
func Connect(ctx context.Context, t target.Target, creds Credentials, opts Options, logger *logging.Logger) (*Client, error) {
	opts = opts.withDefaults()
	if logger == nil {
		logger = logging.Discard()
	}
	c := &Client{target: t, opts: opts, logger: logger}
	startTime := time.Now()

	config, err := c.buildSSHConfig(creds)
	if err != nil {
		return nil, rcerrors.NewValidationError("failed to build SSH config", err)
	}

	address := t.Address()
	dialer := &net.Dialer{Timeout: opts.ConnTimeout}

	netConn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		err = classifyDialError(fmt.Sprintf("failed to connect to %s", address), err)
		logger.LogConnectionError(t, creds.Username, err)
		return nil, err
	}

	// The handshake itself does not take a context; bound it with a deadline.
	_ = netConn.SetDeadline(time.Now().Add(opts.ConnTimeout))
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, address, config)
	if err != nil {
		netConn.Close()
		err = classifyDialError(fmt.Sprintf("SSH handshake with %s failed", address), err)
		logger.LogConnectionError(t, creds.Username, err)
		return nil, err
	}
	_ = netConn.SetDeadline(time.Time{})

	c.conn = ssh.NewClient(sshConn, chans, reqs)
	logger.LogConnection(t, creds.Username, time.Since(startTime))

	return c, nil
}

// Close terminates the SSH connection
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if err != nil {
		c.logger.Debug("SSH connection close error", "error", err, "host", c.target.Host)
	}
	return nil
}

func (c *Client) buildSSHConfig(creds Credentials) (*ssh.ClientConfig, error) {
	if creds.Username == "" {
		return nil, fmt.Errorf("missing username")
	}

	hostKeyCallback, err := c.getHostKeyCallback()
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User: creds.Username,
		Auth: []ssh.AuthMethod{
			ssh.Password(creds.Password),
			// Controllers commonly ask for the password over keyboard-interactive.
			ssh.KeyboardInteractive(interactiveAnswers(creds)),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.opts.ConnTimeout,
	}, nil
}

// interactiveAnswers answers username questions with the username and
// everything else with the password.
func interactiveAnswers(creds Credentials) ssh.KeyboardInteractiveChallenge {
	return func(_, _ string, questions []string, _ []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i, q := range questions {
			q = strings.ToLower(q)
			if (strings.Contains(q, "user") || strings.Contains(q, "login")) && !strings.Contains(q, "password") {
				answers[i] = creds.Username
			} else {
				answers[i] = creds.Password
			}
		}
		return answers, nil
	}
}

// getHostKeyCallback verifies against known_hosts in strict mode and
// otherwise accepts any key with a warning, which is what the controllers'
// self-signed, frequently rotated keys require in practice.
func (c *Client) getHostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.opts.StrictHostKey {
		if _, err := os.Stat(c.opts.KnownHosts); err != nil {
			return nil, fmt.Errorf("known_hosts file %q not usable and strict host key checking is enabled: %w", c.opts.KnownHosts, err)
		}
		cb, err := knownhosts.New(c.opts.KnownHosts)
		if err != nil {
			return nil, fmt.Errorf("known_hosts: %w", err)
		}
		return cb, nil
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		c.logger.LogConnectionWarning(hostname, "host key verification disabled, accepting "+ssh.FingerprintSHA256(key))
		return nil
	}, nil
}

func classifyDialError(message string, err error) error {
	switch rcerrors.TypeOf(err) {
	case rcerrors.AuthenticationErrorType:
		return rcerrors.NewAuthenticationError(message, err)
	case rcerrors.TimeoutErrorType:
		return rcerrors.NewTimeoutError(message, err)
	default:
		return rcerrors.NewConnectionError(message, err)
	}
}
