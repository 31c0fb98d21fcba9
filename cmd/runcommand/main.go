package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// Build-time variables (set via -ldflags)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"

	// exitFunc is swapped out by tests.
	exitFunc = os.Exit
)

func main() {
	exitFunc(execute(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// execute runs the CLI and returns the process exit code.
func execute(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdin, stdout, stderr)
	cmd.SetArgs(args)

	err := cmd.Execute()
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
	}
	return getExitCode(err)
}

// cli holds the flags that are not configuration keys plus the process
// streams.
type cli struct {
	configFile string
	cmdList    string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdin: stdin, stdout: stdout, stderr: stderr}

	cmd := &cobra.Command{
		Use:   "runcommand [flags] <cmd> <iplist>\n  runcommand [flags] --cmdlist FILE <iplist>",
		Short: "Run CLI commands on wireless LAN controllers over SSH",
		Long: `runcommand logs into every controller in an address list over SSH, runs
one command or a file of commands in the controller CLI and writes one
transcript file per controller.

The address list holds one IPv4 address per line; lines that are not IPv4
addresses are skipped. A .yml, .yaml or .json file is read as an Ansible
style inventory instead, optionally narrowed with --group.

Commands may use Go template syntax, e.g. "show ap database | include {{.Host}}".

Examples:
  # Run one command against every controller in the list
  runcommand "show ap active" controllers.txt

  # Run a command file, one controller at a time, with decryption off
  runcommand --syn --decrypt --cmdlist commands.txt controllers.txt

  # Inventory group, output into a directory
  runcommand --group campus --output-dir out "show version" inventory.yml`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args: func(cmd *cobra.Command, args []string) error {
			want := 2
			if c.cmdList != "" {
				want = 1
			}
			if len(args) != want {
				return &SetupError{Message: fmt.Sprintf("expected %d positional argument(s), got %d: see --help", want, len(args))}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd, args)
		},
	}
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetVersionTemplate(fmt.Sprintf("runcommand {{.Version}} (commit %s, built %s)\n", commit, buildTime))

	flags := cmd.Flags()
	flags.BoolP("version", "V", false, "Print the version and exit")
	flags.StringVar(&c.configFile, "config", "", "Config file (default: runcommand.{yaml,json,toml} in ., ~/.config/runcommand, /etc/runcommand)")
	flags.StringVar(&c.cmdList, "cmdlist", "", "File with one command per line")

	flags.Bool("syn", false, "Run controllers one at a time instead of all at once")
	flags.Bool("decrypt", false, "Send 'encrypt disable' before anything else")
	flags.Bool("fail-fast", false, "Abort the run on the first authentication or timeout failure")
	flags.Bool("dry-run", false, "Print the execution plan without connecting")
	flags.String("logging", "", "Log level: debug or warning (default info)")
	flags.String("log-format", "text", "Log format (json, text)")
	flags.Int("port", 22, "SSH port")
	flags.Duration("conn-timeout", 30*time.Second, "Timeout for connecting and reaching the first prompt")
	flags.Duration("cmd-timeout", 60*time.Second, "Timeout for each command")
	flags.Bool("strict-host-key", false, "Verify host keys against --known-hosts")
	flags.String("known-hosts", "", "known_hosts file (default ~/.ssh/known_hosts)")
	flags.String("paging-command", "no paging", "Command that disables paging; empty to skip")
	flags.String("prefix", "", "Prefix for transcript file names")
	flags.String("output-dir", ".", "Directory transcripts are written to")
	flags.String("group", "", "Inventory group to run against")

	return cmd
}

// ExecutionError represents one or more failed controllers
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string {
	return e.Message
}

// SetupError represents invalid arguments, configuration or input files
type SetupError struct {
	Message string
}

func (e *SetupError) Error() string {
	return e.Message
}

// getExitCode maps an error to the process exit code. Setup errors, failed
// controllers and anything unexpected all exit with -1 (255 on POSIX).
func getExitCode(err error) int {
	if err == nil {
		return 0
	}
	return -1
}
