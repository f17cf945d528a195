package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mitchellh/cli"

	"github.com/ipshipyard/sitecheck/cidr"
	"github.com/ipshipyard/sitecheck/compat"
	"github.com/ipshipyard/sitecheck/config"
	"github.com/ipshipyard/sitecheck/server"
	"github.com/ipshipyard/sitecheck/version"
)

func commands(ui cli.Ui) map[string]cli.CommandFactory {
	return map[string]cli.CommandFactory{
		"range": func() (cli.Command, error) {
			return &rangeCommand{ui: ui}, nil
		},
		"hostname": func() (cli.Command, error) {
			return &hostnameCommand{ui: ui, load: config.Load}, nil
		},
		"report": func() (cli.Command, error) {
			return &reportCommand{ui: ui, load: config.Load}, nil
		},
		"serve": func() (cli.Command, error) {
			return &serveCommand{ui: ui, load: config.Load}, nil
		},
		"version": func() (cli.Command, error) {
			return &versionCommand{ui: ui}, nil
		},
	}
}

type rangeCommand struct {
	ui cli.Ui
}

func (c *rangeCommand) Synopsis() string { return "Test whether an IPv4 address is inside a subnet" }

func (c *rangeCommand) Help() string {
	return strings.TrimSpace(`
Usage: sitecheck range <ip> <subnet> <mask>

  Prints true when <ip> is inside <subnet>/<mask>, false otherwise.
  Exits 0 when inside, 1 when outside and 2 on invalid input.

  Example:
      $ sitecheck range 10.1.2.3 10.0.0.0 8
`)
}

func (c *rangeCommand) Run(args []string) int {
	if len(args) != 3 {
		c.ui.Error(c.Help())
		return exitUsage
	}
	mask, err := strconv.Atoi(args[2])
	if err != nil {
		c.ui.Error(fmt.Sprintf("invalid mask %q: must be an integer", args[2]))
		return exitUsage
	}
	in, err := cidr.InRange(args[0], args[1], mask)
	if err != nil {
		c.ui.Error(err.Error())
		return exitUsage
	}
	c.ui.Output(strconv.FormatBool(in))
	if !in {
		return exitIncompatible
	}
	return exitOK
}

type hostnameCommand struct {
	ui   cli.Ui
	load func(...string) (*config.Config, error)
}

func (c *hostnameCommand) Synopsis() string { return "Run the hostname gate on a hostname and port" }

func (c *hostnameCommand) Help() string {
	return strings.TrimSpace(`
Usage: sitecheck hostname <hostname> [port]

  Checks whether a site served at <hostname> without an explicit port is
  publicly reachable. Operator lists from SITECHECK_LISTS apply.
  Exits 0 when compatible, 1 when not and 2 on usage errors.
`)
}

func (c *hostnameCommand) Run(args []string) int {
	if len(args) < 1 || len(args) > 2 {
		c.ui.Error(c.Help())
		return exitUsage
	}
	var port string
	if len(args) == 2 {
		port = args[1]
	}

	cfg, err := c.load()
	if err != nil {
		c.ui.Error(fmt.Sprintf("loading config: %s", err))
		return exitUsage
	}
	lists, err := cfg.OpenLists()
	if err != nil {
		c.ui.Error(fmt.Sprintf("loading lists: %s", err))
		return exitUsage
	}
	defer lists.Close()

	gate := compat.NewHostnameGate(compat.WithLists(lists))
	if err := gate.Check(args[0], port); err != nil {
		c.ui.Output(err.Error())
		return exitIncompatible
	}
	c.ui.Output("compatible")
	return exitOK
}

type reportCommand struct {
	ui   cli.Ui
	load func(...string) (*config.Config, error)
}

func (c *reportCommand) Synopsis() string {
	return "Run every compatibility check against the configured site"
}

func (c *reportCommand) Help() string {
	return strings.TrimSpace(`
Usage: sitecheck report [-json]

  Runs the compatibility checks against SITECHECK_HOME_URL in order and
  stops at the first failure. Exits 0 when compatible, 1 when not and 2 on
  configuration errors.

Options:

  -json    Print the report as JSON.
`)
}

func (c *reportCommand) Run(args []string) int {
	flags := flag.NewFlagSet("report", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	asJSON := flags.Bool("json", false, "")
	if err := flags.Parse(args); err != nil || flags.NArg() != 0 {
		c.ui.Error(c.Help())
		return exitUsage
	}

	cfg, err := c.load()
	if err != nil {
		c.ui.Error(fmt.Sprintf("loading config: %s", err))
		return exitUsage
	}
	lists, err := cfg.OpenLists()
	if err != nil {
		c.ui.Error(fmt.Sprintf("loading lists: %s", err))
		return exitUsage
	}
	defer lists.Close()

	runner, err := cfg.Runner(lists)
	if err != nil {
		c.ui.Error(err.Error())
		return exitUsage
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	report := runner.Run(ctx)

	if *asJSON {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			c.ui.Error(err.Error())
			return exitUsage
		}
		c.ui.Output(string(out))
	} else {
		c.ui.Output(formatReport(report))
	}

	if !report.Compatible() {
		return exitIncompatible
	}
	return exitOK
}

func formatReport(r compat.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "site: %s\n", r.Site)
	for _, res := range r.Results {
		status := "pass"
		if !res.Passed {
			status = "FAIL " + string(res.Code)
		}
		fmt.Fprintf(&b, "  %-14s %s (%s)\n", res.Name, status, res.Duration.Round(time.Millisecond))
	}
	if r.Compatible() {
		b.WriteString("compatible")
	} else {
		fmt.Fprintf(&b, "incompatible: %s", r.Reason)
	}
	return b.String()
}

type serveCommand struct {
	ui   cli.Ui
	load func(...string) (*config.Config, error)
}

func (c *serveCommand) Synopsis() string { return "Serve the HTTP API" }

func (c *serveCommand) Help() string {
	return strings.TrimSpace(`
Usage: sitecheck serve [-listen <addr>]

  Serves /v1/range, /v1/hostname, /v1/lists and /metrics. When
  SITECHECK_HOME_URL is set /v1/report runs the full check pipeline with
  results cached per SITECHECK_CACHE.

Options:

  -listen  Address to listen on. Defaults to SITECHECK_LISTEN_ADDR.
`)
}

func (c *serveCommand) Run(args []string) int {
	flags := flag.NewFlagSet("serve", flag.ContinueOnError)
	flags.SetOutput(io.Discard)
	listen := flags.String("listen", "", "")
	if err := flags.Parse(args); err != nil || flags.NArg() != 0 {
		c.ui.Error(c.Help())
		return exitUsage
	}

	cfg, err := c.load()
	if err != nil {
		c.ui.Error(fmt.Sprintf("loading config: %s", err))
		return exitUsage
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}

	lists, err := cfg.OpenLists()
	if err != nil {
		c.ui.Error(fmt.Sprintf("loading lists: %s", err))
		return exitUsage
	}
	defer lists.Close()

	clients, err := cfg.OpenClientLists()
	if err != nil {
		c.ui.Error(fmt.Sprintf("loading client lists: %s", err))
		return exitUsage
	}
	defer clients.Close()

	opts := []server.Option{server.WithLists(lists), server.WithClientLists(clients)}
	if cfg.HomeURL != "" {
		runner, err := cfg.Runner(lists)
		if err != nil {
			c.ui.Error(err.Error())
			return exitUsage
		}
		reports, err := cfg.OpenCache()
		if err != nil {
			c.ui.Error(fmt.Sprintf("opening cache: %s", err))
			return exitUsage
		}
		defer reports.Close()
		opts = append(opts, server.WithRunner(runner), server.WithCache(reports))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	c.ui.Info(fmt.Sprintf("%s %s listening on %s", version.Name, version.Version(), cfg.ListenAddr))
	if err := server.New(opts...).ListenAndServe(ctx, cfg.ListenAddr); err != nil {
		c.ui.Error(err.Error())
		return exitIncompatible
	}
	return exitOK
}

type versionCommand struct {
	ui cli.Ui
}

func (c *versionCommand) Synopsis() string { return "Print the sitecheck version" }

func (c *versionCommand) Help() string { return "Usage: sitecheck version" }

func (c *versionCommand) Run(_ []string) int {
	c.ui.Output(fmt.Sprintf("%s %s", version.Name, version.Version()))
	return exitOK
}
