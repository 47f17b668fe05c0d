package certstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmhodges/clock"

	"github.com/pickyca/pickyca/caerrors"
)

// fileSnapshot is the on-disk shape of a File backend: the full contents of
// a Memory-equivalent store, serialized as one JSON document.
type fileSnapshot struct {
	Records map[string]Record
	ByName  map[string]string
	BySKI   map[string]string
	ByAlt   map[string]string
}

// File is a Backend that keeps its working set in memory, exactly like
// Memory, and persists a full snapshot to a single JSON file after every
// Store, writing to a temporary path and renaming over the target so a
// concurrent reader never observes a partial file. Grounded on DiskStorage's
// save-whole-map-as-JSON approach and on the stage-then-rename commit
// pattern in AndreaCadonna's InitCA/SignCSR.
type File struct {
	mu   sync.RWMutex
	path string
	mem  *Memory
}

// NewFile opens (or creates) a File backend rooted at dir, loading any
// existing snapshot.
func NewFile(dir string, clk clock.Clock) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, caerrors.Wrap(caerrors.StorageUnavailable, "creating store directory", err)
	}
	f := &File{
		path: filepath.Join(dir, "certstore.json"),
		mem:  NewMemory(clk),
	}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) load() error {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return caerrors.Wrap(caerrors.StorageUnavailable, "reading store file", err)
	}
	if len(data) == 0 {
		return nil
	}

	var snap fileSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return caerrors.Wrap(caerrors.StorageUnavailable, "parsing store file", err)
	}

	f.mem.mu.Lock()
	defer f.mem.mu.Unlock()
	if snap.Records != nil {
		f.mem.records = snap.Records
	}
	if snap.ByName != nil {
		f.mem.byName = snap.ByName
	}
	if snap.BySKI != nil {
		f.mem.bySKI = snap.BySKI
	}
	if snap.ByAlt != nil {
		f.mem.byAlt = snap.ByAlt
	}
	return nil
}

// save must be called with f.mu held for writing.
func (f *File) save() error {
	f.mem.mu.RLock()
	snap := fileSnapshot{
		Records: f.mem.records,
		ByName:  f.mem.byName,
		BySKI:   f.mem.bySKI,
		ByAlt:   f.mem.byAlt,
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	f.mem.mu.RUnlock()
	if err != nil {
		return caerrors.Wrap(caerrors.StorageUnavailable, "marshaling store snapshot", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return caerrors.Wrap(caerrors.StorageUnavailable, "staging store snapshot", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return caerrors.Wrap(caerrors.StorageUnavailable, "committing store snapshot", err)
	}
	return nil
}

func (f *File) Health(ctx context.Context) error {
	if _, err := os.Stat(filepath.Dir(f.path)); err != nil {
		return caerrors.Wrap(caerrors.StorageUnavailable, "store directory unreachable", err)
	}
	return nil
}

func (f *File) Store(ctx context.Context, r Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.mem.Store(ctx, r); err != nil {
		return err
	}
	if err := f.save(); err != nil {
		return fmt.Errorf("persisting after store: %w", err)
	}
	return nil
}

func (f *File) GetCertByAddress(ctx context.Context, canonical string) ([]byte, error) {
	return f.mem.GetCertByAddress(ctx, canonical)
}

func (f *File) GetKeyByAddress(ctx context.Context, canonical string) ([]byte, error) {
	return f.mem.GetKeyByAddress(ctx, canonical)
}

func (f *File) AddressByName(ctx context.Context, name string) (string, error) {
	return f.mem.AddressByName(ctx, name)
}

func (f *File) AddressByKeyID(ctx context.Context, skiHex string) (string, error) {
	return f.mem.AddressByKeyID(ctx, skiHex)
}

func (f *File) LookupAlternate(ctx context.Context, alternate string) (string, error) {
	return f.mem.LookupAlternate(ctx, alternate)
}
