// Package agent runs the on-device update agent: the orchestrator with its
// periodic check driver, the local HTTP status surface, and MQTT telemetry
// toward the fleet backend.
package agent

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/updrive-io/updrive/internal/updater"
	"github.com/updrive-io/updrive/pkg/log"
	"github.com/updrive-io/updrive/pkg/options"
)

// Agent owns the agent's long-running parts and their shutdown order.
type Agent struct {
	attempter *updater.Attempter
	telemetry *telemetry
	httpOpts  *options.HTTPOptions

	appID         string
	serverURL     string
	checkInterval time.Duration

	// runCtx outlives individual HTTP requests; update cycles triggered
	// over the API are bound to it, not to the request.
	runCtx context.Context
}

// Run blocks until the context is cancelled or a component fails.
func (a *Agent) Run(ctx context.Context) error {
	a.runCtx = ctx

	g, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:         a.httpOpts.Addr,
		Handler:      a.newRouter(),
		ReadTimeout:  a.httpOpts.ReadTimeout,
		WriteTimeout: a.httpOpts.WriteTimeout,
	}
	g.Go(func() error {
		log.Info("Starting status server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if a.telemetry != nil {
		g.Go(func() error { return a.telemetry.run(ctx) })
	}

	if a.checkInterval > 0 {
		g.Go(func() error { return a.checkLoop(ctx) })
	} else {
		log.Info("Periodic update checks disabled, waiting for external triggers")
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// checkLoop fires self-initiated update checks at the configured cadence.
// A cycle already in flight makes the trigger a no-op.
func (a *Agent) checkLoop(ctx context.Context) error {
	log.Info("Starting periodic update checks", "interval", a.checkInterval)
	ticker := time.NewTicker(a.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := a.attempter.Update(ctx, a.appID, a.serverURL); err != nil {
				log.Error(err, "Scheduled update check failed to start")
			}
		}
	}
}
