package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/yllada/vpn-registry/common"
)

const shutdownTimeout = 5 * time.Second

func newWatchCmd(o *rootOptions) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep both stores in sync and print registry events",
		Long: `Watch observes the local and remote stores until interrupted, importing
remote changes as they arrive and printing every registry event.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withApp(cmd, StartOptions{Watch: true}, func(ctx context.Context, app *App) error {
				return runWatch(ctx, cmd, app, metricsAddr)
			})
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9464")
	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, app *App, metricsAddr string) error {
	logger := common.Component("watch")
	out := newPrinter(cmd.OutOrStdout())

	// Subscribed after Start: the initial load is summarized below instead
	// of replayed.
	sub := app.Registry.Subscribe()
	defer sub.Close()

	out.printf("Watching %d profiles", len(app.Registry.Profiles()))
	if app.Registry.IsRemoteImportingEnabled() {
		out.printf(" (remote: %s)", app.Config.Remote.Kind)
	}
	out.println()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		for {
			select {
			case ev, ok := <-sub.Events():
				if !ok {
					return nil
				}
				out.println(formatEvent(ev))
			case <-gctx.Done():
				return nil
			}
		}
	})

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		g.Go(func() error {
			logger.Info("serving metrics", "addr", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	logger.Info("watch stopped")
	return err
}
