// Package app provides the cobra-based scaffolding shared by updrive
// binaries: flag registration, config file loading with live reload, and
// option validation before the run callback fires.
package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/updrive-io/updrive/pkg/log"
)

// CliOptions is the aggregate configuration contract for an application.
type CliOptions interface {
	// AddFlags registers all flags on the command's flag set.
	AddFlags(fs *pflag.FlagSet)

	// Validate checks the final option values.
	Validate() []error
}

// CompletableOptions can fill in derived defaults after flags and config
// file have been applied.
type CompletableOptions interface {
	Complete() error
}

// WatchableOptions react to a configuration file reload. The options object
// has already been re-unmarshaled when OnReload is invoked.
type WatchableOptions interface {
	OnReload()
}

// RunFunc is the application's run callback.
type RunFunc func() error

// App is the main application structure.
type App struct {
	name        string
	shortDesc   string
	description string
	options     CliOptions
	runFunc     RunFunc
	noConfig    bool
	args        cobra.PositionalArgs

	cmd *cobra.Command
}

// Option configures an App during construction.
type Option func(*App)

// WithOptions attaches the application's configuration object.
func WithOptions(opts CliOptions) Option {
	return func(a *App) { a.options = opts }
}

// WithRunFunc sets the application's run callback.
func WithRunFunc(run RunFunc) Option {
	return func(a *App) { a.runFunc = run }
}

// WithDescription sets the long description shown in help output.
func WithDescription(desc string) Option {
	return func(a *App) { a.description = desc }
}

// WithNoConfig disables the --config flag and config file handling.
func WithNoConfig() Option {
	return func(a *App) { a.noConfig = true }
}

// WithDefaultValidArgs rejects any positional arguments.
func WithDefaultValidArgs() Option {
	return func(a *App) { a.args = cobra.NoArgs }
}

// NewApp builds an application with the given name and options.
func NewApp(name, shortDesc string, opts ...Option) *App {
	a := &App{
		name:      name,
		shortDesc: shortDesc,
	}
	for _, o := range opts {
		o(a)
	}
	a.buildCommand()
	return a
}

func (a *App) buildCommand() {
	cmd := &cobra.Command{
		Use:           a.name,
		Short:         a.shortDesc,
		Long:          a.description,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          a.args,
		RunE:          a.runCommand,
	}
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	fs := cmd.Flags()
	fs.SortFlags = true
	if a.options != nil {
		a.options.AddFlags(fs)
	}
	if !a.noConfig {
		addConfigFlag(fs)
	}

	a.cmd = cmd
}

// Command exposes the underlying cobra command so callers can attach
// subcommands.
func (a *App) Command() *cobra.Command { return a.cmd }

func (a *App) runCommand(cmd *cobra.Command, args []string) error {
	if !a.noConfig {
		if err := bindConfig(a.name, cmd.Flags(), a.options); err != nil {
			return err
		}
	}

	if co, ok := a.options.(CompletableOptions); ok {
		if err := co.Complete(); err != nil {
			return err
		}
	}
	if a.options != nil {
		if errs := a.options.Validate(); len(errs) > 0 {
			return aggregateErrors(errs)
		}
	}

	log.Info("Starting application", "name", a.name)
	if a.runFunc != nil {
		return a.runFunc()
	}
	return nil
}

// Run executes the application and exits the process on error.
func (a *App) Run() {
	if err := a.cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func aggregateErrors(errs []error) error {
	if len(errs) == 1 {
		return errs[0]
	}
	msg := "invalid configuration:"
	for _, err := range errs {
		msg += "\n  - " + err.Error()
	}
	return fmt.Errorf("%s", msg)
}
