// Command pickyca wires configuration, logging, metrics, and storage
// together and runs the bootstrap controller, following boulder's cmd/*
// convention of a thin entrypoint over library packages that do the real
// work.
package main

import (
	"context"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/stdr"
	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/pickyca/pickyca/bootstrap"
	"github.com/pickyca/pickyca/certstore"
	"github.com/pickyca/pickyca/pickyconfig"
	"github.com/pickyca/pickyca/pickylog"
	"github.com/pickyca/pickyca/pickymetrics"
)

var configPath string
var opts cacheOptions

func main() {
	root := &cobra.Command{
		Use:   "pickyca",
		Short: "pickyca is a small certificate authority core",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "pickyca.yaml", "path to the YAML configuration file")
	root.PersistentFlags().Int64Var(&opts.certCacheBytes, "cert-cache-bytes", 0, "enable the in-process groupcache certificate cache, sized in bytes (0 disables it)")
	root.PersistentFlags().StringVar(&opts.redisAddr, "redis-addr", "", "enable the Redis secondary-index cache at this address (empty disables it)")

	root.AddCommand(bootstrapCmd(), serveCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func bootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "load config, construct storage, and run the bootstrap controller once",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := runBootstrap(cmd.Context())
			return err
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "bootstrap, then block until signaled, with the storage handle ready for an external collaborator",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := runBootstrap(cmd.Context())
			if err != nil {
				return err
			}

			metricsServer := &http.Server{Addr: ":9090", Handler: promhttp.HandlerFor(env.registry, promhttp.HandlerOpts{})}
			go func() {
				if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					env.log.AuditErrf("metrics server stopped: %v", err)
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
			env.log.Infof("pickyca ready, waiting for shutdown or reload signal")
			for sig := range sigCh {
				if sig == syscall.SIGHUP {
					env.reload(cmd.Context())
					continue
				}
				break
			}
			env.log.Infof("shutting down")
			return metricsServer.Close()
		},
	}
}

// servingEnv holds everything bootstrap wires up that serve needs to keep
// around: the logger, metrics registry, config handle, and storage handle.
type servingEnv struct {
	log      pickylog.Logger
	registry *prometheus.Registry
	metrics  *pickymetrics.Metrics
	handle   *pickyconfig.Handle
	store    certstore.Backend
	clk      clock.Clock
}

// reload re-reads the config file and runs bootstrap.Reload against the
// existing storage handle (spec.md §4.6 "Reload semantics").
func (e *servingEnv) reload(ctx context.Context) {
	next, err := pickyconfig.Load(configPath)
	if err != nil {
		e.log.AuditErrf("reload: failed to load config: %v", err)
		return
	}
	if err := bootstrap.Reload(ctx, e.store, e.handle, next, e.clk, e.log, e.metrics); err != nil {
		e.log.AuditErrf("reload: bootstrap failed: %v", err)
	}
}

// runBootstrap loads config, wires the ambient stack, runs the bootstrap
// controller, and returns the environment serve needs to keep running.
func runBootstrap(ctx context.Context) (*servingEnv, error) {
	cfg, err := pickyconfig.Load(configPath)
	if err != nil {
		return nil, err
	}

	log := pickylog.NewStderr(cfg.LogLevel)
	otel.SetLogger(stdr.New(stdlog.New(os.Stderr, "", stdlog.LstdFlags)))

	registry := prometheus.NewRegistry()
	metrics := pickymetrics.New(registry)

	clk := clock.New()

	store, err := buildBackend(ctx, cfg, clk, opts)
	if err != nil {
		log.AuditErrf("constructing storage backend: %v", err)
		return nil, err
	}
	if err := store.Health(ctx); err != nil {
		log.AuditErrf("storage backend failed health check: %v", err)
		return nil, err
	}

	if err := bootstrap.Run(ctx, store, cfg, clk, log, metrics); err != nil {
		log.AuditErrf("bootstrap failed: %v", err)
		return nil, err
	}
	log.Infof("bootstrap complete for realm %q on backend %q", cfg.Realm, cfg.Backend)

	return &servingEnv{
		log:      log,
		registry: registry,
		metrics:  metrics,
		handle:   pickyconfig.NewHandle(cfg),
		store:    store,
		clk:      clk,
	}, nil
}
