// Package sshtest runs an in-process SSH server that behaves like a
// controller CLI, for use in tests.
package sshtest

import (
	"bufio"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Controller is a fake controller listening on 127.0.0.1.
type Controller struct {
	Hostname string
	Username string
	Password string

	// Responses maps a command line to its output. Unknown commands print
	// an ArubaOS style parse error.
	Responses map[string]string
	// Delay is applied before every response.
	Delay time.Duration
	// Silent controllers accept the login but never print a prompt.
	Silent bool

	listener net.Listener
	hostKey  ssh.Signer

	mu       sync.Mutex
	commands []string
	logins   int
	wg       sync.WaitGroup
}

// NewController returns an unstarted controller with the given hostname
// accepting admin/secret.
func NewController(hostname string) *Controller {
	return &Controller{
		Hostname:  hostname,
		Username:  "admin",
		Password:  "secret",
		Responses: map[string]string{},
	}
}

// Start listens on a random local port and serves connections until Close.
func (c *Controller) Start() error {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate host key: %w", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return fmt.Errorf("failed to create signer: %w", err)
	}
	c.hostKey = signer

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	c.listener = ln

	c.wg.Add(1)
	go c.acceptLoop()
	return nil
}

// Port is the TCP port the controller listens on.
func (c *Controller) Port() int {
	return c.listener.Addr().(*net.TCPAddr).Port
}

// HostKey is the controller's public host key.
func (c *Controller) HostKey() ssh.PublicKey {
	return c.hostKey.PublicKey()
}

// Commands returns every command line received, in order.
func (c *Controller) Commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commands...)
}

// Logins returns the number of successful authentications.
func (c *Controller) Logins() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.logins
}

// Close stops accepting connections.
func (c *Controller) Close() error {
	err := c.listener.Close()
	c.wg.Wait()
	return err
}

func (c *Controller) serverConfig() *ssh.ServerConfig {
	config := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if meta.User() == c.Username && string(pass) == c.Password {
				return nil, nil
			}
			return nil, fmt.Errorf("password rejected for %s", meta.User())
		},
	}
	config.AddHostKey(c.hostKey)
	return config
}

func (c *Controller) acceptLoop() {
	defer c.wg.Done()
	config := c.serverConfig()
	for {
		conn, err := c.listener.Accept()
		if err != nil {
			return
		}
		go c.handleConn(conn, config)
	}
}

func (c *Controller) handleConn(conn net.Conn, config *ssh.ServerConfig) {
	sshConn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		conn.Close()
		return
	}
	defer sshConn.Close()

	c.mu.Lock()
	c.logins++
	c.mu.Unlock()

	go ssh.DiscardRequests(reqs)
	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			_ = newChan.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go c.handleSession(ch, requests)
	}
}

func (c *Controller) handleSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	for req := range requests {
		switch req.Type {
		case "pty-req", "env", "window-change":
			reply(req, true)
		case "shell":
			reply(req, true)
			go func() {
				c.runCLI(ch)
				sendExitStatus(ch, 0)
				ch.Close()
			}()
		default:
			reply(req, false)
		}
	}
}

func (c *Controller) prompt() string {
	return "(" + c.Hostname + ") #"
}

func (c *Controller) runCLI(rw io.ReadWriter) {
	if c.Silent {
		_, _ = io.Copy(io.Discard, rw)
		return
	}

	fmt.Fprintf(rw, "\r\n\x1b[0mAuthorized use only\r\n\r\n%s", c.prompt())

	reader := bufio.NewReader(rw)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")

		c.mu.Lock()
		c.commands = append(c.commands, cmd)
		c.mu.Unlock()

		if c.Delay > 0 {
			time.Sleep(c.Delay)
		}

		fmt.Fprintf(rw, "%s\r\n", cmd)
		if cmd == "exit" {
			return
		}
		for _, out := range c.respond(cmd) {
			fmt.Fprintf(rw, "%s\r\n", out)
		}
		fmt.Fprintf(rw, "\r\n%s", c.prompt())
	}
}

func (c *Controller) respond(cmd string) []string {
	if out, ok := c.Responses[cmd]; ok {
		if out == "" {
			return nil
		}
		return strings.Split(out, "\n")
	}
	switch cmd {
	case "show hostname":
		return []string{"Hostname is " + c.Hostname}
	case "no paging", "encrypt disable", "":
		return nil
	}
	return []string{"% Parse error: " + cmd}
}

func reply(req *ssh.Request, ok bool) {
	if req.WantReply {
		_ = req.Reply(ok, nil)
	}
}

func sendExitStatus(ch ssh.Channel, code uint32) {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, code)
	_, _ = ch.SendRequest("exit-status", false, payload)
}
