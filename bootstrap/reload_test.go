package bootstrap

import (
	"context"
	"strings"
	"testing"

	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pickyca/pickyca/certstore"
	"github.com/pickyca/pickyca/pickyconfig"
	"github.com/pickyca/pickyca/pickylog"
	"github.com/pickyca/pickyca/pickymetrics"
)

func TestReloadWithBackendChangeWarnsAndKeepsStore(t *testing.T) {
	clk := clock.NewFake()
	store := certstore.NewMemory(clk)
	metrics := pickymetrics.New(prometheus.NewRegistry())
	log := pickylog.NewMock()

	initial := testConfig("memory")
	handle := pickyconfig.NewHandle(initial)
	if err := Run(context.Background(), store, initial, clk, log, metrics); err != nil {
		t.Fatalf("initial Run: %v", err)
	}
	rootAddrBefore, err := store.AddressByName(context.Background(), "Picky Root CA")
	if err != nil {
		t.Fatalf("AddressByName before reload: %v", err)
	}

	next := testConfig("sqlite")
	if err := Reload(context.Background(), store, handle, next, clk, log, metrics); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	rootAddrAfter, err := store.AddressByName(context.Background(), "Picky Root CA")
	if err != nil {
		t.Fatalf("AddressByName after reload: %v", err)
	}
	if rootAddrBefore != rootAddrAfter {
		t.Fatalf("expected the same memory-backed store to still serve the root after an immutable-field reload")
	}

	foundWarning := false
	for _, line := range log.GetAll() {
		if strings.Contains(line, "WARNING") && strings.Contains(line, "immutable") {
			foundWarning = true
		}
	}
	if !foundWarning {
		t.Fatalf("expected a warning to be logged for the backend change")
	}

	if handle.Snapshot().Backend != "sqlite" {
		t.Fatalf("expected the config snapshot itself to reflect the reloaded backend field")
	}
}
