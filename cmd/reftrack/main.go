// Command reftrack inspects and drives the tracked entities of a document.
//
// Usage:
//
//	reftrack [global flags] <command> [flags] [args]
//
// Commands:
//
//	list                              list tracked entities
//	create -type T [-parent E] [-id N] create an entity
//	status <entity>                   print the derived status
//	info <entity>                     print an entity snapshot
//	perform [-file ID] <entity> <action>
//	restricted <entity> <action>      report whether action is restricted
//	remove <entity>                   delete content, children and entity
//	suggestions [-entity E]           elements that should be tracked
//	options -element ID <entity>      content items offered for an element
//	save <path>                       write the local content as a scene file
//	mark -file ID                     record what the document represents
//	registry-sync                     copy the manifest into the postgres registry
//	watch                             print change events until interrupted
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run parses args and executes one command. It returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("reftrack", flag.ContinueOnError)
	fs.SetOutput(stderr)
	opts := options{}
	fs.StringVar(&opts.configPath, "config", "", "Path to config file (optional, uses env vars by default)")
	fs.StringVar(&opts.document, "document", "", "Path to the document (overrides config)")
	fs.StringVar(&opts.manifest, "manifest", "", "Path to the project manifest (overrides config)")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level (overrides config)")
	fs.BoolVar(&opts.json, "json", false, "Print results as JSON")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: reftrack [global flags] <command> [flags] [args]")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	name, cmdArgs := fs.Arg(0), fs.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "reftrack: unknown command %q\n", name)
		fs.Usage()
		return 2
	}

	a, err := newApp(opts, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "reftrack: %v\n", err)
		return 1
	}
	defer a.Close()

	if err := cmd(ctx, a, cmdArgs); err != nil {
		var usage usageError
		if errors.As(err, &usage) {
			fmt.Fprintf(stderr, "reftrack %s: %v\n", name, err)
			return 2
		}
		a.log.Error().Err(err).Str("command", name).Msg("command failed")
		fmt.Fprintf(stderr, "reftrack %s: %v\n", name, err)
		return 1
	}
	return 0
}

// usageError marks an error in the command line itself.
type usageError struct {
	msg string
}

func (e usageError) Error() string {
	return e.msg
}

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}
