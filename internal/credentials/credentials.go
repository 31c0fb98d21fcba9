// Package credentials collects the controller login once per run.
package credentials

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"runcommand/internal/ssh"
)

// ErrNoUsername is returned when the operator enters an empty username.
var ErrNoUsername = errors.New("username is required")

// Prompt asks for whatever preset leaves empty. The password is read without
// echo when in is a terminal and as a plain line otherwise.
func Prompt(in io.Reader, out io.Writer, preset ssh.Credentials) (ssh.Credentials, error) {
	creds := preset
	reader := bufio.NewReader(in)

	if creds.Username == "" {
		fmt.Fprint(out, "username: ")
		line, err := readLine(reader)
		if err != nil {
			return ssh.Credentials{}, fmt.Errorf("failed to read username: %w", err)
		}
		creds.Username = strings.TrimSpace(line)
		if creds.Username == "" {
			return ssh.Credentials{}, ErrNoUsername
		}
	}

	if creds.Password == "" {
		fmt.Fprint(out, "password: ")
		password, err := readPassword(in, reader)
		fmt.Fprintln(out)
		if err != nil {
			return ssh.Credentials{}, fmt.Errorf("failed to read password: %w", err)
		}
		creds.Password = password
	}

	return creds, nil
}

func readPassword(in io.Reader, reader *bufio.Reader) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := readLine(reader)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r"), nil
}

// readLine returns the next line without its newline. A final line without
// a newline is accepted.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSuffix(line, "\n"), nil
}
