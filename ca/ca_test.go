package ca

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"encoding/pem"
	"testing"

	"github.com/jmhodges/clock"

	"github.com/pickyca/pickyca/caerrors"
	"github.com/pickyca/pickyca/certstore"
	"github.com/pickyca/pickyca/issuance"
	"github.com/pickyca/pickyca/pickylog"
	"github.com/pickyca/pickyca/pickymetrics"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestCA(t *testing.T, realm string) (*CertificateAuthority, certstore.Backend, clock.Clock) {
	t.Helper()
	clk := clock.NewFake()
	store := certstore.NewMemory(clk)

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
	interKeyDER, err := issuance.MarshalKey(interKey)
	if err != nil {
		t.Fatalf("MarshalKey: %v", err)
	}

	ctx := context.Background()
	if err := store.Store(ctx, certstore.Record{
		Name:          interCert.Subject.CommonName,
		CertDER:       interDER,
		KeyIdentifier: hex.EncodeToString(interCert.SubjectKeyId),
		KeyDER:        interKeyDER,
	}); err != nil {
		t.Fatalf("storing intermediate: %v", err)
	}

	metrics := pickymetrics.New(prometheus.NewRegistry())
	authority := New(store, realm, issuance.ECDSA_SHA256, true, clk, pickylog.NewMock(), metrics)
	return authority, store, clk
}

func csrPEM(t *testing.T, cn string) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("ecdsa.GenerateKey: %v", err)
	}
	template := &x509.CertificateRequest{Subject: pkix.Name{CommonName: cn}}
	der, err := x509.CreateCertificateRequest(rand.Reader, template, key)
	if err != nil {
		t.Fatalf("CreateCertificateRequest: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE REQUEST", Bytes: der})
}

func TestSignIssuesAndStoresLeaf(t *testing.T) {
	authority, store, _ := newTestCA(t, "Picky")
	ctx := context.Background()

	leafDER, err := authority.Sign(ctx, csrPEM(t, "client-1"), "", Authorization{})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	leaf, err := issuance.ParseCertificate(leafDER)
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}
	if leaf.Subject.CommonName != "client-1" {
		t.Fatalf("unexpected leaf subject %q", leaf.Subject.CommonName)
	}

	addr, err := store.AddressByName(ctx, "client-1")
	if err != nil {
		t.Fatalf("expected leaf to be stored, AddressByName failed: %v", err)
	}
	if addr == "" {
		t.Fatalf("expected non-empty stored address")
	}
}

func TestSignRejectsLockedNameMismatch(t *testing.T) {
	authority, _, _ := newTestCA(t, "Picky")
	ctx := context.Background()

	_, err := authority.Sign(ctx, csrPEM(t, "client-1"), "", Authorization{LockedName: "client-2"})
	if !caerrors.Is(err, caerrors.Unauthorized) {
		t.Fatalf("expected Unauthorized, got %v", err)
	}
}

func TestSignFailsWhenIntermediateMissing(t *testing.T) {
	clk := clock.NewFake()
	store := certstore.NewMemory(clk)
	metrics := pickymetrics.New(prometheus.NewRegistry())
	authority := New(store, "Picky", issuance.ECDSA_SHA256, true, clk, pickylog.NewMock(), metrics)

	_, err := authority.Sign(context.Background(), csrPEM(t, "client-1"), "", Authorization{})
	if !caerrors.Is(err, caerrors.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
