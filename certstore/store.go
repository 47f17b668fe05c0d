// Package certstore defines the certificate-record storage abstraction (C2)
// and its concrete backends. A Backend is the only thing the rest of the
// core depends on; every backend indexes by name, by Subject Key
// Identifier, and by every configured alternate address, as spec.md §4.2
// requires.
package certstore

import (
	"context"
	"time"

	"github.com/pickyca/pickyca/addressing"
	"github.com/pickyca/pickyca/caerrors"
)

// Record is the single persisted entity: a certificate, optionally paired
// with its private key.
type Record struct {
	// Name is the human-readable subject-identifier string, e.g.
	// "Picky Root CA" or a leaf's Common Name.
	Name string
	// CertDER is the DER-encoded X.509 certificate. Authoritative.
	CertDER []byte
	// KeyIdentifier is the hex-lowercase Subject Key Identifier.
	KeyIdentifier string
	// KeyDER is the optional DER-encoded PKCS#8 private key. Present only
	// for CAs held by this service.
	KeyDER []byte
	// CreatedAt is sourced from the injected clock.Clock at store time, for
	// observability only; it plays no role in any invariant.
	CreatedAt time.Time
}

// CanonicalAddress returns the canonical content address of r's certificate.
func (r Record) CanonicalAddress() (string, error) {
	return addressing.Canonical(r.CertDER)
}

// Backend is the storage capability set every concrete implementation
// satisfies: health, store, and five lookups. Implementations must make a
// stored record's primary bytes and all of its secondary index entries
// visible to a subsequent reader no later than the record itself (spec.md
// §5 "Ordering guarantees").
type Backend interface {
	// Health reports StorageUnavailable if the backend cannot currently
	// serve requests.
	Health(ctx context.Context) error

	// Store inserts r at its canonical address and updates the name, SKI,
	// and alternate-address indexes. Re-storing an identical record (same
	// canonical address, identical bytes) is a no-op success. Storing a
	// different record under an already-used name fails Conflict (see
	// DESIGN.md Open Question OQ-2).
	Store(ctx context.Context, r Record) error

	// GetCertByAddress returns the DER certificate at canonical, or
	// NotFound.
	GetCertByAddress(ctx context.Context, canonical string) ([]byte, error)

	// GetKeyByAddress returns the DER private key at canonical. Fails
	// NotFound if no record exists there, NoKey if the record has no key.
	GetKeyByAddress(ctx context.Context, canonical string) ([]byte, error)

	// AddressByName resolves name to its canonical address, or NotFound.
	AddressByName(ctx context.Context, name string) (string, error)

	// AddressByKeyID resolves a hex-lowercase SKI to its canonical address,
	// or NotFound.
	AddressByKeyID(ctx context.Context, skiHex string) (string, error)

	// LookupAlternate resolves an alternate-digest address to the canonical
	// address of the record it was computed from, or NotFound.
	LookupAlternate(ctx context.Context, alternate string) (string, error)
}

// computeIndexes derives the secondary-index keys for r: its SKI hex string
// (already carried on Record) and its alternate addresses. Shared by every
// backend so they agree on exactly what "the indexes" means.
func computeIndexes(r Record) (alternates []string, err error) {
	alternates, err = addressing.Alternates(r.CertDER)
	if err != nil {
		return nil, caerrors.Wrap(caerrors.AddressInvalid, "computing alternate addresses", err)
	}
	return alternates, nil
}
