// Package command loads and validates the commands sent to every controller.
package command

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrInvalidCommand marks a command rejected by Validate.
var ErrInvalidCommand = errors.New("invalid command")

// Validate accepts a command iff it is non-empty after trimming and has more
// than one token.
func Validate(cmd string) error {
	trimmed := strings.TrimSpace(cmd)
	if trimmed == "" {
		return fmt.Errorf("%w: empty", ErrInvalidCommand)
	}
	if !strings.Contains(trimmed, " ") {
		return fmt.Errorf("%w %q: needs more than a single token", ErrInvalidCommand, cmd)
	}
	return nil
}

// Set is the ordered list of commands for a run.
type Set struct {
	commands []string
	single   bool
}

// NewSet builds the command set. When file is empty the single positional
// command is used; otherwise the file's lines are. Every command is validated.
func NewSet(single, file string) (Set, error) {
	if file == "" {
		if err := Validate(single); err != nil {
			return Set{}, err
		}
		return Set{commands: []string{strings.TrimSpace(single)}, single: true}, nil
	}

	commands, err := LoadFile(file)
	if err != nil {
		return Set{}, err
	}
	if len(commands) == 0 {
		return Set{}, fmt.Errorf("%w: %s contains no commands", ErrInvalidCommand, file)
	}
	for i, c := range commands {
		if err := Validate(c); err != nil {
			return Set{}, fmt.Errorf("%s command %d: %w", file, i+1, err)
		}
	}
	return Set{commands: commands}, nil
}

// Commands returns a copy of the commands in order.
func (s Set) Commands() []string {
	return append([]string(nil), s.commands...)
}

// Single reports whether the set came from the positional command.
func (s Set) Single() bool { return s.single }

// Len returns the number of commands.
func (s Set) Len() int { return len(s.commands) }

// LoadFile reads one command per line. Blank lines and '#' comments are
// skipped.
func LoadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open command file '%s': %w", path, err)
	}
	defer f.Close()

	return parse(f)
}

func parse(r io.Reader) ([]string, error) {
	var commands []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		commands = append(commands, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading commands: %w", err)
	}
	return commands, nil
}
