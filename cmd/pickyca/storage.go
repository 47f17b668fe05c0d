package main

import (
	"context"

	"github.com/jmhodges/clock"
	"github.com/redis/go-redis/v9"

	"github.com/pickyca/pickyca/caerrors"
	"github.com/pickyca/pickyca/certstore"
	"github.com/pickyca/pickyca/pickyconfig"
)

// cacheOptions carries the two optional read-path decorators (spec.md §4.2),
// each off by default. They are CLI-only knobs, not part of the
// configuration surface spec.md §6 enumerates.
type cacheOptions struct {
	certCacheBytes int64
	redisAddr      string
}

// buildBackend constructs the concrete certstore.Backend cfg names, layering
// on opts' optional decorators. It is called once at startup; the resulting
// handle is immutable thereafter (spec.md §5 "Shared state") even across a
// later config reload that changes an immutable field.
func buildBackend(ctx context.Context, cfg *pickyconfig.Config, clk clock.Clock, opts cacheOptions) (certstore.Backend, error) {
	var backend certstore.Backend
	var err error

	switch cfg.Backend {
	case "memory":
		backend = certstore.NewMemory(clk)
	case "file":
		backend, err = certstore.NewFile(cfg.DatabaseURL, clk)
	case "mysql":
		backend, err = certstore.NewMySQL(cfg.DatabaseURL, clk)
	case "sqlite":
		backend, err = certstore.NewSQLite(cfg.DatabaseURL, clk)
	case "mongodb":
		backend, err = certstore.NewMongo(ctx, cfg.DatabaseURL, "pickyca", clk)
	default:
		return nil, caerrors.Errorf(caerrors.ConfigMismatch, "unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if opts.redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: opts.redisAddr})
		backend = certstore.NewCachedIndexes(backend, rdb, "pickyca:")
	}
	if opts.certCacheBytes > 0 {
		backend = certstore.NewCachedCerts(backend, "pickyca-certs", opts.certCacheBytes)
	}

	return backend, nil
}
