package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/rflorenc/pan-deduper/internal/config"
	"github.com/rflorenc/pan-deduper/internal/deduper"
	"github.com/rflorenc/pan-deduper/internal/logging"
	"github.com/rflorenc/pan-deduper/internal/platform"
	"github.com/rflorenc/pan-deduper/internal/report"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func newParser(opts *Options) *flags.Parser {
	p := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)
	p.SubcommandsOptional = true
	return p
}

// run parses args and executes the selected command, returning the process
// exit code.
func run(args []string, con *console) int {
	opts := &Options{}
	parser := newParser(opts)
	if _, err := parser.ParseArgs(args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Fprintln(con.out, err)
			return exitOK
		}
		fmt.Fprintln(con.errOut, err)
		return exitUsage
	}
	if opts.Version {
		fmt.Fprintf(con.out, "pan-deduper %s (commit: %s, built: %s)\n", version, commit, date)
		return exitOK
	}
	if parser.Active == nil {
		parser.WriteHelp(con.errOut)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if parser.Active.Name == "init-config" {
		created, err := config.Bootstrap(ctx, opts.Config)
		if err != nil {
			return con.fail(err)
		}
		if !created {
			fmt.Fprintf(con.out, "%s already exists, leaving it untouched\n", opts.Config)
			return exitOK
		}
		fmt.Fprintf(con.out, "Wrote default settings to %s\n", opts.Config)
		return exitOK
	}

	created, err := config.Bootstrap(ctx, opts.Config)
	if err != nil {
		return con.fail(err)
	}
	if created {
		fmt.Fprintf(con.out, "No settings found, created %s with defaults. Review it and run again.\n", opts.Config)
		return exitOK
	}
	cfg, err := config.Load(ctx, opts.Config)
	if err != nil {
		return con.fail(err)
	}
	cfg.Verbose = opts.Verbose

	switch parser.Active.Name {
	case "xml":
		opts.XML.RunFlags.apply(cfg)
		cfg.XMLFile = opts.XML.Args.File
		return runDedupe(ctx, cfg, con)
	case "panorama":
		opts.Panorama.RunFlags.apply(cfg)
		opts.Panorama.PanoramaFlags.apply(cfg)
		return runDedupe(ctx, cfg, con)
	case "rules":
		opts.Rules.apply(cfg)
		return runRules(ctx, cfg, con)
	case "serve":
		opts.Serve.apply(cfg)
		return runServe(ctx, cfg, con)
	}
	return exitUsage
}

func (c RulesCmd) apply(cfg *config.Config) {
	c.PanoramaFlags.apply(cfg)
	cfg.XMLFile = c.File
	if len(c.Include) > 0 {
		cfg.UnitAllowlist = c.Include
	}
	if len(c.Exclude) > 0 {
		cfg.UnitDenylist = c.Exclude
	}
	if c.Output != "" {
		cfg.OutputDir = c.Output
	}
	cfg.Normalize()
}

func (c ServeCmd) apply(cfg *config.Config) {
	c.PanoramaFlags.apply(cfg)
	cfg.XMLFile = c.File
	if c.Listen != "" {
		cfg.Listen = c.Listen
	}
	cfg.Normalize()
}

// openSource builds the logger, asks for missing credentials, optionally
// validates the settings and connects.
// Callers close the returned runContext to flush the logger.
func openSource(ctx context.Context, cfg *config.Config, con *console, validate bool) (platform.Source, *runContext, error) {
	log, closeLog, err := logging.New(logging.Options{File: cfg.LogFile, Verbose: cfg.Verbose, Console: con.errOut})
	if err != nil {
		return nil, nil, err
	}
	rc := &runContext{log: log, close: closeLog}
	if err := con.credentials(cfg); err != nil {
		rc.close()
		return nil, nil, err
	}
	if validate {
		if err := cfg.Validate(); err != nil {
			rc.close()
			return nil, nil, err
		}
	}
	src, err := deduper.Connect(ctx, cfg, log)
	if err != nil {
		rc.close()
		return nil, nil, err
	}
	return src, rc, nil
}

func runDedupe(ctx context.Context, cfg *config.Config, con *console) int {
	src, rc, err := openSource(ctx, cfg, con, true)
	if err != nil {
		return con.fail(err)
	}
	defer rc.close()

	runner := &deduper.Runner{
		Config:   cfg,
		Source:   src,
		Writer:   report.NewWriter(cfg.OutputDir),
		Log:      rc.log,
		Progress: con.println,
		Confirm:  con.ask,
	}
	if p, ok := src.(platform.Pusher); ok {
		runner.Pusher = p
	}
	res, err := runner.Run(ctx)
	switch {
	case errors.Is(err, deduper.ErrDeclined):
		con.println("Exiting...")
		return exitOK
	case err != nil:
		return con.fail(err)
	}
	if res.Report != nil && len(res.Report.Failed()) > 0 {
		return exitError
	}
	return exitOK
}

func runRules(ctx context.Context, cfg *config.Config, con *console) int {
	src, rc, err := openSource(ctx, cfg, con, false)
	if err != nil {
		return con.fail(err)
	}
	defer rc.close()

	rs, ok := src.(platform.RuleSource)
	if !ok {
		return con.fail(errors.New("the object source cannot read security rules"))
	}
	runner := &deduper.Runner{
		Config:   cfg,
		Source:   src,
		Writer:   report.NewWriter(cfg.OutputDir),
		Log:      rc.log,
		Progress: con.println,
	}
	if _, err := runner.RunRules(ctx, rs); err != nil {
		return con.fail(err)
	}
	return exitOK
}

type runContext struct {
	log   *zap.Logger
	close func()
}

// fail reports err on stderr and returns the error exit code.
func (c *console) fail(err error) int {
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(c.errOut, "Cancelled")
		return exitError
	}
	fmt.Fprintf(c.errOut, "Error: %v\n", err)
	return exitError
}
