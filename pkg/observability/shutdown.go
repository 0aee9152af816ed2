package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Serve runs every server until ctx is cancelled or one of them fails, then
// shuts all of them down within timeout.
func Serve(ctx context.Context, logger *Logger, timeout time.Duration, servers ...*http.Server) error {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, srv := range servers {
		g.Go(func() error {
			logger.WithField("addr", srv.Addr).Info("HTTP server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Starting graceful shutdown")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).WithField("addr", srv.Addr).Error("HTTP server shutdown error")
				errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
			}
		}
		if len(errs) == 0 {
			logger.Info("Graceful shutdown complete")
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
