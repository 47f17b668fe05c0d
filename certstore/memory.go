package certstore

import (
	"bytes"
	"context"
	"sync"

	"github.com/jmhodges/clock"

	"github.com/pickyca/pickyca/caerrors"
)

// Memory is an in-memory Backend, a map-of-maps guarded by a single
// RWMutex. Used by tests and by ephemeral deployments. Grounded on the
// RAMStorage shape (one mutex, map keyed by primary identity, secondary
// lookups scanning or indexing into the same map).
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record   // canonical address -> record
	byName  map[string]string   // name -> canonical address
	bySKI   map[string]string   // ski hex -> canonical address
	byAlt   map[string]string   // alternate address -> canonical address
	clk     clock.Clock
}

// NewMemory returns an empty Memory backend.
func NewMemory(clk clock.Clock) *Memory {
	return &Memory{
		records: make(map[string]Record),
		byName:  make(map[string]string),
		bySKI:   make(map[string]string),
		byAlt:   make(map[string]string),
		clk:     clk,
	}
}

func (m *Memory) Health(ctx context.Context) error {
	return nil
}

func (m *Memory) Store(ctx context.Context, r Record) error {
	canonical, err := r.CanonicalAddress()
	if err != nil {
		return err
	}
	alternates, err := computeIndexes(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.records[canonical]; ok {
		if bytes.Equal(existing.CertDER, r.CertDER) {
			return nil
		}
	}

	if existingAddr, ok := m.byName[r.Name]; ok && existingAddr != canonical {
		return caerrors.Errorf(caerrors.Conflict, "name %q already maps to a different certificate", r.Name)
	}

	r.CreatedAt = m.clk.Now()
	m.records[canonical] = r
	m.byName[r.Name] = canonical
	m.bySKI[r.KeyIdentifier] = canonical
	for _, alt := range alternates {
		m.byAlt[alt] = canonical
	}
	return nil
}

func (m *Memory) GetCertByAddress(ctx context.Context, canonical string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[canonical]
	if !ok {
		return nil, caerrors.Errorf(caerrors.NotFound, "no record at address %q", canonical)
	}
	return r.CertDER, nil
}

func (m *Memory) GetKeyByAddress(ctx context.Context, canonical string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[canonical]
	if !ok {
		return nil, caerrors.Errorf(caerrors.NotFound, "no record at address %q", canonical)
	}
	if r.KeyDER == nil {
		return nil, caerrors.Errorf(caerrors.NoKey, "record at address %q has no private key", canonical)
	}
	return r.KeyDER, nil
}

func (m *Memory) AddressByName(ctx context.Context, name string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	addr, ok := m.byName[name]
	if !ok {
		return "", caerrors.Errorf(caerrors.NotFound, "no record named %q", name)
	}
	return addr, nil
}

func (m *Memory) AddressByKeyID(ctx context.Context, skiHex string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	addr, ok := m.bySKI[skiHex]
	if !ok {
		return "", caerrors.Errorf(caerrors.NotFound, "no record with key identifier %q", skiHex)
	}
	return addr, nil
}

func (m *Memory) LookupAlternate(ctx context.Context, alternate string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	addr, ok := m.byAlt[alternate]
	if !ok {
		return "", caerrors.Errorf(caerrors.NotFound, "no record at alternate address %q", alternate)
	}
	return addr, nil
}
