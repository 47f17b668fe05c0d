package chain

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/jmhodges/clock"

	"github.com/pickyca/pickyca/caerrors"
	"github.com/pickyca/pickyca/certstore"
	"github.com/pickyca/pickyca/issuance"
)

func buildTestChain(t *testing.T, realm string) (certstore.Backend, string) {
	t.Helper()
	clk := clock.NewFake()
	store := certstore.NewMemory(clk)
	ctx := context.Background()

	rootKey, err := issuance.GenerateKey(issuance.ECDSA_SHA256, 0)
	if err != nil {
		t.Fatalf("GenerateKey root: %v", err)
	}
	rootDER, err := issuance.BuildRoot(realm, issuance.ECDSA_SHA256, rootKey, clk)
	if err != nil {
		t.Fatalf("BuildRoot: %v", err)
	}
	rootCert, err := issuance.ParseCertificate(rootDER)
	if err != nil {
		t.Fatalf("ParseCertificate root: %v", err)
	}
	if err := store.Store(ctx, certstore.Record{
		Name:          rootCert.Subject.CommonName,
		CertDER:       rootDER,
		KeyIdentifier: hex.EncodeToString(rootCert.SubjectKeyId),
	}); err != nil {
		t.Fatalf("storing root: %v", err)
	}

	interKey, err := issuance.GenerateKey(issuance.ECDSA_SHA256, 0)
	if err != nil {
		t.Fatalf("GenerateKey intermediate: %v", err)
	}
	interDER, err := issuance.BuildIntermediate(realm, issuance.ECDSA_SHA256, interKey, rootCert, rootKey, clk)
	if err != nil {
		t.Fatalf("BuildIntermediate: %v", err)
	}
	interCert, err := issuance.ParseCertificate(interDER)
	if err != nil {
		t.Fatalf("ParseCertificate intermediate: %v", err)
	}
	if err := store.Store(ctx, certstore.Record{
		Name:          interCert.Subject.CommonName,
		CertDER:       interDER,
		KeyIdentifier: hex.EncodeToString(interCert.SubjectKeyId),
	}); err != nil {
		t.Fatalf("storing intermediate: %v", err)
	}

	addr, err := interDERAddress(interDER)
	if err != nil {
		t.Fatalf("computing intermediate address: %v", err)
	}
	return store, addr
}

func interDERAddress(der []byte) (string, error) {
	r := certstore.Record{CertDER: der}
	return r.CanonicalAddress()
}

func TestWalkFromIntermediateReachesRoot(t *testing.T) {
	store, interAddr := buildTestChain(t, "Picky")

	certs, err := Walk(context.Background(), store, interAddr, nil)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(certs) != 2 {
		t.Fatalf("expected 2 certificates in chain, got %d", len(certs))
	}

	root, err := issuance.ParseCertificate(certs[1])
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	if root.Subject.CommonName != "Picky Root CA" {
		t.Fatalf("expected last cert to be the root, got %q", root.Subject.CommonName)
	}
}

func TestWalkFailsOnUnknownStartAddress(t *testing.T) {
	clk := clock.NewFake()
	store := certstore.NewMemory(clk)

	_, err := Walk(context.Background(), store, "nonexistent-address", nil)
	if !caerrors.Is(err, caerrors.ChainBroken) {
		t.Fatalf("expected ChainBroken, got %v", err)
	}
}
