package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"runcommand/internal/command"
	"runcommand/internal/config"
	"runcommand/internal/credentials"
	rcerrors "runcommand/internal/errors"
	"runcommand/internal/executor"
	"runcommand/internal/inventory"
	"runcommand/internal/logging"
	"runcommand/internal/output"
	"runcommand/internal/ssh"
	"runcommand/internal/stats"
	"runcommand/internal/target"
	"runcommand/internal/template"
	"runcommand/internal/worker"
)

func (c *cli) run(cmd *cobra.Command, args []string) error {
	manager := config.NewManager(c.configFile)
	if err := manager.BindFlags(cmd.Flags()); err != nil {
		return &SetupError{Message: fmt.Sprintf("failed to bind flags: %v", err)}
	}
	cfg, err := manager.Load()
	if err != nil {
		return &SetupError{Message: fmt.Sprintf("failed to load configuration: %v", err)}
	}

	logger, err := logging.NewLoggerFromConfig(cfg.Logging, cfg.LogFormat, c.stderr)
	if err != nil {
		return &SetupError{Message: err.Error()}
	}
	if used := manager.ConfigFileUsed(); used != "" {
		logger.LogConfigLoad(used)
	}

	// Commands are validated before anything touches the network.
	single, iplist := "", args[len(args)-1]
	if c.cmdList == "" {
		single = args[0]
	}
	set, err := command.NewSet(single, c.cmdList)
	if err != nil {
		return &SetupError{Message: err.Error()}
	}
	if _, err := template.NewTemplateEngine(set.Commands()); err != nil {
		return &SetupError{Message: err.Error()}
	}

	targets, err := loadTargets(cfg, iplist, logger)
	if err != nil {
		return err
	}

	if cfg.DryRun {
		printPlan(c, cfg, set, targets)
		return nil
	}

	creds, err := credentials.Prompt(c.stdin, c.stderr, ssh.Credentials{Username: cfg.Username, Password: cfg.Password})
	if err != nil {
		return &SetupError{Message: err.Error()}
	}

	dialer := ssh.NewDialer(creds, ssh.Options{
		ConnTimeout:   cfg.ConnTimeout,
		CmdTimeout:    cfg.CmdTimeout,
		StrictHostKey: cfg.StrictHostKey,
		KnownHosts:    cfg.KnownHosts,
	}, logger)

	w, err := worker.New(dialer, worker.Config{
		Commands:      set,
		Decrypt:       cfg.Decrypt,
		PagingCommand: cfg.PagingCommand,
		Prefix:        cfg.Prefix,
		OutputDir:     cfg.OutputDir,
	}, logger)
	if err != nil {
		return &SetupError{Message: err.Error()}
	}

	exec := executor.NewExecutor(w, logger)
	exec.SetConfig(executor.ExecutorConfig{
		Sequential: cfg.Syn,
		FailFast:   cfg.FailFast,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return c.collect(ctx, exec, targets, logger)
}

func (c *cli) collect(ctx context.Context, exec executor.Executor, targets []target.Target, logger *logging.Logger) error {
	tracker := stats.NewStatsTracker(len(targets))
	errorCollector := rcerrors.NewErrorCollector()

	for result := range exec.Execute(ctx, targets) {
		tracker.Record(result.Success(), result.Bytes)
		if result.Error == nil {
			continue
		}
		errorCollector.Add(result.Error)
		logger.Error("controller failed",
			"worker", result.ID,
			"host", result.Target.Host,
			"error_type", rcerrors.TypeOf(result.Error).String(),
			"error", result.Error.Error(),
		)
	}

	tracker.Log(logger)

	if errorCollector.HasErrors() {
		return &ExecutionError{
			Message: fmt.Sprintf("%d/%d controllers failed - %s",
				errorCollector.Count(), len(targets), errorCollector.Summary()),
		}
	}
	return nil
}

// loadTargets reads the address list, or the inventory when iplist has an
// inventory extension.
func loadTargets(cfg *config.Config, iplist string, logger *logging.Logger) ([]target.Target, error) {
	var (
		targets []target.Target
		skipped []target.Skipped
		err     error
	)

	source := iplist
	if inventory.IsInventoryFile(iplist) {
		inv, invErr := inventory.LoadInventoryFromFile(iplist, cfg.Port)
		if invErr != nil {
			logger.LogTargetParsingError(source, invErr)
			return nil, &SetupError{Message: fmt.Sprintf("failed to load inventory: %v", invErr)}
		}
		if cfg.Group != "" {
			source = fmt.Sprintf("%s (group %s)", iplist, cfg.Group)
			targets, skipped, err = inv.GetTargetsByGroup(cfg.Group)
		} else {
			targets, skipped, err = inv.LoadTargets()
		}
	} else {
		if cfg.Group != "" {
			return nil, &SetupError{Message: "--group requires an inventory file (.yml, .yaml or .json)"}
		}
		targets, skipped, err = target.NewParser(cfg.Port).ParseHostFile(iplist)
	}

	for _, s := range skipped {
		logger.LogTargetSkipped(source, s.Line, s.Value)
	}
	if err != nil {
		logger.LogTargetParsingError(source, err)
		return nil, &SetupError{Message: err.Error()}
	}

	logger.LogTargetParsing(source, len(targets), len(skipped))
	return targets, nil
}

func printPlan(c *cli, cfg *config.Config, set command.Set, targets []target.Target) {
	w := c.stdout
	mode := "concurrent"
	if cfg.Syn {
		mode = "sequential"
	}

	fmt.Fprintln(w, "runcommand dry run - execution plan")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Mode: %s, fail-fast: %t, decrypt: %t\n", mode, cfg.FailFast, cfg.Decrypt)
	fmt.Fprintf(w, "Timeouts: connect %v, command %v\n", cfg.ConnTimeout, cfg.CmdTimeout)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Commands (%d):\n", set.Len())
	for _, cmd := range set.Commands() {
		fmt.Fprintf(w, "  %s\n", cmd)
	}
	fmt.Fprintln(w)

	now := time.Now()
	fmt.Fprintf(w, "Controllers (%d):\n", len(targets))
	for i, t := range targets {
		parts := output.NameParts{Prefix: cfg.Prefix, Hostname: "HOSTNAME", Host: t.Host, Time: now}
		if set.Single() {
			parts.Command = set.Commands()[0]
		}
		fmt.Fprintf(w, "  %d. %s -> %s\n", i+1, t.Address(), filepath.Join(cfg.OutputDir, output.FileName(parts)))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "No SSH connections were made.")
}
