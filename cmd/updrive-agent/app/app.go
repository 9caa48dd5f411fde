package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/updrive-io/updrive/cmd/updrive-agent/app/options"
	"github.com/updrive-io/updrive/pkg/app"
)

const (
	commandName = "updrive-agent"
	commandDesc = `The UpDrive agent runs on the device and keeps the OS image current: it
negotiates with the update server, downloads and installs new images onto the
inactive partitions, and marks them bootable for the next restart.`
)

func NewApp() *app.App {
	opts := options.NewAgentOptions()
	application := app.NewApp(
		commandName,
		"Launch the UpDrive update agent",
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithDefaultValidArgs(),
		app.WithRunFunc(run(opts)),
	)
	application.Command().AddCommand(newStatusCommand())
	return application
}

func run(opts *options.AgentOptions) app.RunFunc {
	return func() error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := opts.Config()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		agent, err := cfg.NewAgent()
		if err != nil {
			return fmt.Errorf("failed to create agent: %w", err)
		}

		return agent.Run(ctx)
	}
}
