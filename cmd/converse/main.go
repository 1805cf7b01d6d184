// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/converse/lib/config"
	"github.com/bureau-foundation/converse/lib/llm"
	"github.com/bureau-foundation/converse/lib/process"
	"github.com/bureau-foundation/converse/lib/version"
)

// streams is the process's I/O, injected so tests can run a whole
// invocation in memory.
type streams struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	stdinTerminal  bool
	stdoutTerminal bool
	stderrTerminal bool

	getenv func(string) string
}

func main() {
	if err := run(context.Background(), os.Args[1:], streams{
		stdin:          os.Stdin,
		stdout:         os.Stdout,
		stderr:         os.Stderr,
		stdinTerminal:  term.IsTerminal(int(os.Stdin.Fd())),
		stdoutTerminal: term.IsTerminal(int(os.Stdout.Fd())),
		stderrTerminal: term.IsTerminal(int(os.Stderr.Fd())),
		getenv:         os.Getenv,
	}); err != nil {
		process.Fatal(err)
	}
}

type options struct {
	configPath  string
	provider    string
	model       string
	session     string
	temperature float64
	maxTokens   int
	health      bool
	list        bool
	verbose     bool
	version     bool
}

func run(ctx context.Context, args []string, std streams) error {
	var opts options
	flagSet := pflag.NewFlagSet("converse", pflag.ContinueOnError)
	flagSet.SetOutput(std.stderr)
	flagSet.StringVar(&opts.configPath, "config", "", "configuration file (default: $CONVERSE_CONFIG, then $XDG_CONFIG_HOME/converse/config.yaml)")
	flagSet.StringVarP(&opts.provider, "provider", "p", "", "provider name (default: the configured default)")
	flagSet.StringVarP(&opts.model, "model", "m", "", "model identifier (default: the provider's configured model)")
	flagSet.StringVarP(&opts.session, "session", "s", "default", "session name")
	flagSet.Float64VarP(&opts.temperature, "temperature", "t", 0.7, "sampling temperature")
	flagSet.IntVar(&opts.maxTokens, "max-tokens", 0, "cap on generated tokens (default: the provider's configured cap)")
	flagSet.BoolVar(&opts.health, "health", false, "check every provider's reachability and exit")
	flagSet.BoolVar(&opts.list, "list", false, "list configured providers and exit")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log debug detail to stderr")
	flagSet.BoolVar(&opts.version, "version", false, "print version information and exit")
	flagSet.Usage = func() { printHelp(std.stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return process.Usage(err)
	}
	if opts.version {
		fmt.Fprintf(std.stdout, "converse %s\n", version.Full())
		return nil
	}
	if opts.maxTokens < 0 {
		return process.Usage(errors.New("--max-tokens must not be negative"))
	}

	logger := newLogger(std.stderr, std.stderrTerminal, opts.verbose)

	configPath := config.ResolvePath(opts.configPath, std.getenv)
	configuration, err := config.LoadFile(configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return &hintedError{
			Err:  fmt.Errorf("no configuration file at %s", configPath),
			Hint: "Create it with at least one provider, or pass --config.",
		}
	}
	if err != nil {
		return err
	}
	if err := configuration.Validate(); err != nil {
		return fmt.Errorf("invalid configuration in %s:\n%w", configPath, err)
	}

	registry, err := llm.NewRegistry(configuration.ProviderConfigs(), configuration.DefaultProvider,
		llm.Options{Logger: logger})
	if err != nil {
		return withHint(err, configuration, configPath)
	}

	switch {
	case opts.list:
		printProviders(std.stdout, registry, configuration)
		return nil
	case opts.health:
		return checkHealth(ctx, std.stdout, registry, configuration, configPath)
	}

	provider := registry.Default()
	if opts.provider != "" {
		provider, err = registry.Lookup(opts.provider)
		if err != nil {
			return withHint(err, configuration, configPath)
		}
	}

	session := newChat(configuration, provider, chatSettings{
		sessionID:   opts.session,
		model:       opts.model,
		temperature: opts.temperature,
		maxTokens:   opts.maxTokens,
	}, std.stdout, newNotices(std.stdout, std.stdoutTerminal, std.getenv), logger)

	prompt := strings.TrimSpace(strings.Join(flagSet.Args(), " "))
	if prompt == "" && !std.stdinTerminal {
		data, err := readAll(std.stdin)
		if err != nil {
			return fmt.Errorf("reading prompt from stdin: %w", err)
		}
		prompt = strings.TrimSpace(data)
	}
	if prompt != "" {
		return withHint(interruptible(ctx, session.turn, prompt), configuration, configPath)
	}
	if !std.stdinTerminal {
		return process.Usage(errors.New("empty prompt"))
	}
	return interactive(ctx, std, session, configuration, configPath, logger)
}

// interruptible runs one turn with Ctrl-C bound to cancelling it.
// Outside a turn, Ctrl-C keeps its default meaning.
func interruptible(ctx context.Context, turn func(context.Context, string) error, prompt string) error {
	turnContext, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	return turn(turnContext, prompt)
}

// interactive reads one prompt per line until end of input. Failed
// and interrupted turns are reported and the loop continues.
func interactive(ctx context.Context, std streams, session *chat, configuration *config.Config,
	configPath string, logger *slog.Logger) error {
	scanner := bufio.NewScanner(std.stdin)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for {
		fmt.Fprint(std.stdout, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(std.stdout)
			return scanner.Err()
		}
		prompt := strings.TrimSpace(scanner.Text())
		if prompt == "" {
			continue
		}
		err := interruptible(ctx, session.turn, prompt)
		switch {
		case err == nil, errors.Is(err, errInterrupted):
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			logger.Debug("turn failed", "error", err)
			fmt.Fprintf(std.stderr, "error: %v\n", withHint(err, configuration, configPath))
		}
	}
}

func readAll(reader io.Reader) (string, error) {
	var builder strings.Builder
	_, err := io.Copy(&builder, reader)
	return builder.String(), err
}

func printProviders(output io.Writer, registry *llm.Registry, configuration *config.Config) {
	for _, name := range registry.Names() {
		marker := " "
		if name == registry.DefaultName() {
			marker = "*"
		}
		provider, _ := configuration.Provider(name)
		fmt.Fprintf(output, "%s %-16s %-10s %s\n", marker, name, provider.Protocol, provider.Model)
	}
	for _, skipped := range registry.Skipped() {
		fmt.Fprintf(output, "  %-16s skipped: %v\n", skipped.Name, skipped.Err)
	}
}

// checkHealth reports each provider's reachability. The run fails,
// without a further message, when any provider is unhealthy.
func checkHealth(ctx context.Context, output io.Writer, registry *llm.Registry,
	configuration *config.Config, configPath string) error {
	healthy := true
	for _, result := range registry.HealthCheckAll(ctx) {
		if result.Err == nil {
			fmt.Fprintf(output, "%-16s ok\n", result.Name)
			continue
		}
		healthy = false
		fmt.Fprintf(output, "%-16s %v\n", result.Name, withHint(result.Err, configuration, configPath))
	}
	if !healthy {
		return &process.ExitError{Code: process.ExitFailure}
	}
	return nil
}

func printHelp(output io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprint(output, `converse: chat with a language model from the shell.

Usage:
  converse [flags] [prompt...]
  echo "prompt" | converse [flags]
  converse [flags]                 (one prompt per line)

Examples:
  # Ask the default provider
  converse "what does EADDRINUSE mean?"

  # Continue a named session with a specific provider
  converse --session deploy --provider local "and on port 8443?"

Flags:
`)
	flagSet.SetOutput(output)
	flagSet.PrintDefaults()
}
