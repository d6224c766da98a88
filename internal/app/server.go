package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sitegate/gatekeeper/internal/util"
)

// Run serves until ctx is cancelled or the listener fails, then drains
// in-flight requests and releases the pipeline.
func (a *Application) Run(ctx context.Context) error {
	listener, err := util.Listen(a.server.Addr)
	if err != nil {
		return errors.Join(err, a.Stop(context.Background()))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("Gatekeeper started, waiting for requests...", "bind", listener.Addr().String())
		if err := a.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.Stop(context.Background())
	})

	return g.Wait()
}

// Stop shuts the server down within the configured timeout and then
// closes the gateway, the counter store and the log files. Safe to call
// more than once.
func (a *Application) Stop(ctx context.Context) error {
	timeout := a.getConfig().Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var errs []error
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	a.stopOnce.Do(func() {
		if err := a.gateway.Close(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		for _, cleanup := range a.cleanup {
			cleanup()
		}
	})

	return errors.Join(errs...)
}
