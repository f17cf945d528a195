package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mitchellh/cli"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ipshipyard/sitecheck/version"
)

// Exit codes shared by all commands.
const (
	exitOK           = 0
	exitIncompatible = 1
	exitUsage        = 2
)

func main() {
	registerVersionMetric()
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ui := &cli.BasicUi{
		Reader:      os.Stdin,
		Writer:      stdout,
		ErrorWriter: stderr,
	}

	c := &cli.CLI{
		Name:       version.Name,
		Version:    version.Version(),
		Args:       args,
		Commands:   commands(ui),
		HelpFunc:   cli.BasicHelpFunc(version.Name),
		HelpWriter: stderr,
	}

	exitCode, err := c.Run()
	if err != nil {
		fmt.Fprintf(stderr, "Error executing CLI: %s\n", err.Error())
		return exitUsage
	}
	// unknown command
	if exitCode == 127 {
		return exitUsage
	}
	return exitCode
}

func registerVersionMetric() {
	m := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "sitecheck",
		Name:        "info",
		Help:        "Information about the sitecheck instance.",
		ConstLabels: prometheus.Labels{"version": version.Version()},
	})
	prometheus.MustRegister(m)
	m.Set(1)
}
