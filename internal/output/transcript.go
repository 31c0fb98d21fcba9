package output

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultPrefix names command-file transcripts.
const DefaultPrefix = "runcommand"

// TimestampLayout truncates the run time to the minute, e.g. 20240131t0942.
const TimestampLayout = "20060102t1504"

// Entry is one command and the text the controller printed for it.
type Entry struct {
	Command string
	Output  string
}

// Transcript is everything captured from one controller.
type Transcript struct {
	Hostname string
	Host     string
	Entries  []Entry
}

// Add appends a command result.
func (t *Transcript) Add(command, output string) {
	t.Entries = append(t.Entries, Entry{Command: command, Output: output})
}

// Lines flattens the transcript into the lines written to disk. Each command
// gets a markdown heading followed by its fenced output.
func (t *Transcript) Lines() []string {
	var lines []string
	for _, e := range t.Entries {
		lines = append(lines, "", "# command: "+e.Command, "")
		lines = append(lines, "```")
		if out := strings.TrimSpace(e.Output); out != "" {
			lines = append(lines, strings.Split(normalizeNewlines(out), "\n")...)
		}
		lines = append(lines, "```")
	}
	return lines
}

// WriteTo writes the transcript, one line per Lines entry.
func (t *Transcript) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var n int64
	for _, line := range t.Lines() {
		written, err := bw.WriteString(line + "\n")
		n += int64(written)
		if err != nil {
			return n, fmt.Errorf("failed to write transcript: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("failed to flush transcript: %w", err)
	}
	return n, nil
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// NameParts are the inputs to FileName.
type NameParts struct {
	Prefix   string // optional operator prefix
	Hostname string
	Host     string
	Command  string // set in single-command mode only
	Time     time.Time
}

// FileName builds the transcript file name.
//
//	single command: [<prefix>-]<hostname>-<ip>-<command>-<timestamp>.txt
//	command file:   <prefix|runcommand>-<hostname>-<ip>-<timestamp>.md
func FileName(p NameParts) string {
	ts := p.Time.Format(TimestampLayout)
	hostname := Sanitize(p.Hostname)

	if p.Command != "" {
		parts := []string{hostname, p.Host, Sanitize(strings.Join(strings.Fields(p.Command), "")), ts}
		if p.Prefix != "" {
			parts = append([]string{Sanitize(p.Prefix)}, parts...)
		}
		return strings.Join(parts, "-") + ".txt"
	}

	prefix := DefaultPrefix
	if p.Prefix != "" {
		prefix = Sanitize(p.Prefix)
	}
	return strings.Join([]string{prefix, hostname, p.Host, ts}, "-") + ".md"
}

// Sanitize replaces anything outside [A-Za-z0-9._-] with '_' so device
// supplied text cannot escape the output directory.
func Sanitize(s string) string {
	if s == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if strings.Trim(out, ".") == "" {
		return strings.Repeat("_", len(out))
	}
	return out
}

// Write creates dir/name (truncating any existing file from the same minute)
// and writes the transcript. It returns the path and bytes written.
func Write(dir, name string, t *Transcript) (string, int64, error) {
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return path, 0, fmt.Errorf("failed to create output file: %w", err)
	}

	n, err := t.WriteTo(f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close output file: %w", cerr)
	}
	return path, n, err
}
