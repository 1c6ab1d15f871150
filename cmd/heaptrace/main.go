// Package main provides the heaptrace CLI. It validates options
// strings against the same parser the allocation shims use, prints the
// option reference, and reports version information.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	semver "github.com/Masterminds/semver/v3"

	"github.com/heaptrace/heaptrace/internal/cli"
	"github.com/heaptrace/heaptrace/internal/config"
	"github.com/heaptrace/heaptrace/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	sub := os.Args[1]
	args := os.Args[2:]

	switch sub {
	case "help", "-h", "--help":
		usage()
	case "version", "-v", "--version":
		version(args)
	case "check":
		check(args)
	case "usage":
		fmt.Print(config.Usage())
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand: %s\n", sub)
		usage()
		os.Exit(2)
	}
}

// check parses an options string and prints the resulting
// configuration, or the parse diagnostics on failure.
func check(args []string) {
	var raw string
	switch {
	case len(args) > 0:
		raw = strings.Join(args, " ")
	default:
		// Fall back to the environment, the same place the shims look.
		if env, ok := config.EnvSource(config.DefaultEnvVar).Options(); ok {
			raw = env
		} else {
			cli.ExitWithError("no options given and %s is unset", config.DefaultEnvVar)
		}
	}

	log := logging.New(logging.Config{Level: logging.LevelError, Output: os.Stderr})

	cfg, err := config.Build(config.StringSource(raw),
		config.WithLogger(log),
		config.WithProgname("heaptrace"),
	)
	if err != nil {
		if errors.Is(err, config.ErrNoConfiguration) {
			fmt.Println("no configuration requested")
			return
		}
		os.Exit(1)
	}

	fmt.Print(cfg.String())
}

// version prints version information; --at-least gates the exit status
// on a semver constraint so scripts can require a minimum tool version.
func version(args []string) {
	fs := flag.NewFlagSet("version", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "output version in JSON format")
	atLeast := fs.String("at-least", "", "exit non-zero unless the tool version satisfies this constraint")
	_ = fs.Parse(args)

	cli.PrintVersion("heaptrace", *jsonOutput)

	if *atLeast == "" {
		return
	}

	c, err := semver.NewConstraint(">= " + *atLeast)
	if err != nil {
		cli.ExitWithError("bad version constraint %q: %v", *atLeast, err)
	}

	v, err := semver.NewVersion(cli.Version)
	if err != nil {
		cli.ExitWithError("bad tool version %q: %v", cli.Version, err)
	}

	if !c.Check(v) {
		cli.ExitWithError("heaptrace %s does not satisfy >= %s", cli.Version, *atLeast)
	}
}

func usage() {
	cli.PrintUsage("heaptrace", []cli.CommandInfo{
		{Name: "check", Description: "Validate an options string and print the resulting configuration"},
		{Name: "usage", Description: "Print the option reference"},
		{Name: "version", Description: "Print version information"},
	})
}
