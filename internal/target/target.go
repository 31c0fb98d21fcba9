package target

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"strconv"
	"strings"
)

// DefaultPort is the SSH port used when none is configured.
const DefaultPort = 22

// ErrNoTargets is returned when an address source yields no usable controller.
var ErrNoTargets = errors.New("no controllers, or valid IPv4 addresses provided")

// Target is a controller to connect to.
type Target struct {
	Host     string // IPv4 literal
	Port     int    // SSH port number
	Original string // Original line or inventory name
	Line     int    // Source line number, 0 when not from a file
}

// Address returns host:port suitable for dialing.
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Skipped records an input line that was not a valid IPv4 address.
type Skipped struct {
	Line  int
	Value string
}

// IsIPv4 reports whether s is an IPv4 literal.
func IsIPv4(s string) bool {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return false
	}
	return addr.Is4()
}

// New builds a target from an address, rejecting anything that is not IPv4.
func New(address string, port int) (Target, error) {
	address = strings.TrimSpace(address)
	if !IsIPv4(address) {
		return Target{}, fmt.Errorf("invalid IPv4 address %q", address)
	}
	if port == 0 {
		port = DefaultPort
	}
	if port < 1 || port > 65535 {
		return Target{}, fmt.Errorf("port number %d out of valid range (1-65535)", port)
	}
	return Target{Host: address, Port: port, Original: address}, nil
}

// Parser reads address lists, one IPv4 address per line.
type Parser struct {
	Port int // applied to every parsed target; 0 means DefaultPort
}

// NewParser creates a Parser using port for every target
func NewParser(port int) *Parser {
	return &Parser{Port: port}
}

// ParseHostFile reads addresses from a file. Invalid lines are returned as
// skipped rather than failing the whole list.
func (p *Parser) ParseHostFile(filename string) ([]Target, []Skipped, error) {
	if filename == "" {
		return nil, nil, fmt.Errorf("filename cannot be empty")
	}

	file, err := os.Open(filename)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open address file '%s': %w", filename, err)
	}
	defer file.Close()

	return p.Parse(file)
}

// Parse reads addresses from any io.Reader. Blank lines and '#' comments are
// ignored; duplicates keep their first occurrence.
func (p *Parser) Parse(reader io.Reader) ([]Target, []Skipped, error) {
	scanner := bufio.NewScanner(reader)
	var (
		targets []Target
		skipped []Skipped
		seen    = make(map[string]bool)
		lineNum int
	)

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		t, err := New(line, p.Port)
		if err != nil {
			skipped = append(skipped, Skipped{Line: lineNum, Value: line})
			continue
		}
		if seen[t.Host] {
			continue
		}
		seen[t.Host] = true

		t.Line = lineNum
		targets = append(targets, t)
	}

	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("error reading input: %w", err)
	}

	if len(targets) == 0 {
		return nil, skipped, ErrNoTargets
	}

	return targets, skipped, nil
}
