package certstore

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"testing"

	"github.com/jmhodges/clock"

	"github.com/pickyca/pickyca/addressing"
	"github.com/pickyca/pickyca/caerrors"
)

func testRecord(t *testing.T, name string, certBytes []byte) Record {
	t.Helper()
	ski := sha1.Sum(certBytes)
	return Record{
		Name:          name,
		CertDER:       certBytes,
		KeyIdentifier: hex.EncodeToString(ski[:]),
	}
}

func TestMemoryStoreLookupLaws(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(clock.NewFake())
	r := testRecord(t, "Picky Root CA", []byte("root certificate bytes"))

	if err := m.Store(ctx, r); err != nil {
		t.Fatal(err)
	}

	canonical, err := r.CanonicalAddress()
	if err != nil {
		t.Fatal(err)
	}

	gotCert, err := m.GetCertByAddress(ctx, canonical)
	if err != nil {
		t.Fatal(err)
	}
	if string(gotCert) != string(r.CertDER) {
		t.Fatalf("cert bytes mismatch")
	}

	gotAddr, err := m.AddressByName(ctx, r.Name)
	if err != nil {
		t.Fatal(err)
	}
	if gotAddr != canonical {
		t.Fatalf("AddressByName mismatch: got %q want %q", gotAddr, canonical)
	}

	gotAddr, err = m.AddressByKeyID(ctx, r.KeyIdentifier)
	if err != nil {
		t.Fatal(err)
	}
	if gotAddr != canonical {
		t.Fatalf("AddressByKeyID mismatch")
	}

	alts, err := addressing.Alternates(r.CertDER)
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range alts {
		gotAddr, err = m.LookupAlternate(ctx, a)
		if err != nil {
			t.Fatal(err)
		}
		if gotAddr != canonical {
			t.Fatalf("LookupAlternate(%q) mismatch", a)
		}
	}
}

func TestMemoryStoreIsIdempotentForIdenticalRecord(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(clock.NewFake())
	r := testRecord(t, "Picky Authority", []byte("intermediate bytes"))

	if err := m.Store(ctx, r); err != nil {
		t.Fatal(err)
	}
	if err := m.Store(ctx, r); err != nil {
		t.Fatalf("re-storing an identical record should succeed, got %v", err)
	}
}

func TestMemoryStoreRejectsNameCollisionWithDifferentRecord(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(clock.NewFake())
	a := testRecord(t, "Picky Authority", []byte("first intermediate"))
	b := testRecord(t, "Picky Authority", []byte("second intermediate"))

	if err := m.Store(ctx, a); err != nil {
		t.Fatal(err)
	}
	err := m.Store(ctx, b)
	if !caerrors.Is(err, caerrors.Conflict) {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestMemoryLookupsFailNotFound(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(clock.NewFake())

	if _, err := m.GetCertByAddress(ctx, "nonexistent"); !caerrors.Is(err, caerrors.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if _, err := m.AddressByName(ctx, "nonexistent"); !caerrors.Is(err, caerrors.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if _, err := m.AddressByKeyID(ctx, "nonexistent"); !caerrors.Is(err, caerrors.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if _, err := m.LookupAlternate(ctx, "nonexistent"); !caerrors.Is(err, caerrors.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestMemoryGetKeyByAddressDistinguishesNoKeyFromNotFound(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(clock.NewFake())
	r := testRecord(t, "leaf", []byte("leaf bytes"))
	if err := m.Store(ctx, r); err != nil {
		t.Fatal(err)
	}
	canonical, _ := r.CanonicalAddress()

	if _, err := m.GetKeyByAddress(ctx, canonical); !caerrors.Is(err, caerrors.NoKey) {
		t.Fatalf("expected NoKey, got %v", err)
	}
	if _, err := m.GetKeyByAddress(ctx, "missing"); !caerrors.Is(err, caerrors.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
