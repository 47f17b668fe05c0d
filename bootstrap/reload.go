package bootstrap

import (
	"context"

	"github.com/jmhodges/clock"

	"github.com/pickyca/pickyca/certstore"
	"github.com/pickyca/pickyca/pickyconfig"
	"github.com/pickyca/pickyca/pickylog"
	"github.com/pickyca/pickyca/pickymetrics"
)

// Reload installs next as the active configuration behind handle, then
// re-runs the bootstrap state machine against the existing store (spec.md
// §4.6 "Reload semantics"). store is never rebuilt here: database URL, file
// backend path, and backend kind are declared immutable at runtime, so a
// change to any of them only produces a warning, not a new storage handle.
func Reload(ctx context.Context, store certstore.Backend, handle *pickyconfig.Handle, next *pickyconfig.Config, clk clock.Clock, log pickylog.Logger, metrics *pickymetrics.Metrics) error {
	previous, immutableChanged := handle.Reload(next)
	if immutableChanged {
		log.Warningf("config reload attempted to change an immutable field (backend %q->%q, database_url %q->%q); retaining the current storage handle",
			previous.Backend, next.Backend, previous.DatabaseURL, next.DatabaseURL)
	}
	return Run(ctx, store, handle.Snapshot(), clk, log, metrics)
}
