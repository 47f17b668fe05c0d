package issuance

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"testing"

	"github.com/jmhodges/clock"

	"github.com/pickyca/pickyca/caerrors"
)

func newCSR(t *testing.T, subject pkix.Name, key crypto.Signer, sigAlg x509.SignatureAlgorithm) *x509.CertificateRequest {
	t.Helper()
	template := &x509.CertificateRequest{
		Subject:            subject,
		SignatureAlgorithm: sigAlg,
	}
	der, err := x509.CreateCertificateRequest(rand.Reader, template, key)
	if err != nil {
		t.Fatalf("creating CSR: %v", err)
	}
	csr, err := x509.ParseCertificateRequest(der)
	if err != nil {
		t.Fatalf("parsing CSR: %v", err)
	}
	return csr
}

func TestBuildRootSelfIssuedAndSelfSigned(t *testing.T) {
	clk := clock.NewFake()
	key, err := GenerateKey(RSA_SHA256, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := BuildRoot("Picky", RSA_SHA256, key, clk)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	if cert.Subject.CommonName != "Picky Root CA" {
		t.Fatalf("got CN %q", cert.Subject.CommonName)
	}
	if cert.Issuer.CommonName != cert.Subject.CommonName {
		t.Fatalf("root is not self-issued")
	}
	if string(cert.AuthorityKeyId) != string(cert.SubjectKeyId) {
		t.Fatalf("root AKI != SKI")
	}
	if !cert.IsCA {
		t.Fatalf("root missing IsCA")
	}
	if err := cert.CheckSignatureFrom(cert); err != nil {
		t.Fatalf("root does not verify against itself: %v", err)
	}
}

func TestBuildIntermediateChainsToRoot(t *testing.T) {
	clk := clock.NewFake()
	rootKey, err := GenerateKey(RSA_SHA256, 2048)
	if err != nil {
		t.Fatal(err)
	}
	rootDER, err := BuildRoot("Picky", RSA_SHA256, rootKey, clk)
	if err != nil {
		t.Fatal(err)
	}
	rootCert, err := ParseCertificate(rootDER)
	if err != nil {
		t.Fatal(err)
	}

	interKey, err := GenerateKey(RSA_SHA256, 2048)
	if err != nil {
		t.Fatal(err)
	}
	interDER, err := BuildIntermediate("Picky", RSA_SHA256, interKey, rootCert, rootKey, clk)
	if err != nil {
		t.Fatal(err)
	}
	interCert, err := ParseCertificate(interDER)
	if err != nil {
		t.Fatal(err)
	}

	if interCert.Subject.CommonName != "Picky Authority" {
		t.Fatalf("got CN %q", interCert.Subject.CommonName)
	}
	if string(interCert.AuthorityKeyId) != string(rootCert.SubjectKeyId) {
		t.Fatalf("intermediate AKI does not reference root SKI")
	}
	if err := interCert.CheckSignatureFrom(rootCert); err != nil {
		t.Fatalf("intermediate does not verify against root: %v", err)
	}
}

func TestBuildLeafRequiresNameOrDNSName(t *testing.T) {
	clk := clock.NewFake()
	caKey, err := GenerateKey(RSA_SHA256, 2048)
	if err != nil {
		t.Fatal(err)
	}
	rootDER, err := BuildRoot("Picky", RSA_SHA256, caKey, clk)
	if err != nil {
		t.Fatal(err)
	}
	rootCert, err := ParseCertificate(rootDER)
	if err != nil {
		t.Fatal(err)
	}

	leafKey, err := GenerateKey(RSA_SHA256, 2048)
	if err != nil {
		t.Fatal(err)
	}
	csr := newCSR(t, pkix.Name{}, leafKey, x509.SHA256WithRSA)

	_, err = BuildLeaf(csr, "", RSA_SHA256, rootCert, caKey, clk)
	if !caerrors.Is(err, caerrors.BadRequest) {
		t.Fatalf("expected BadRequest, got %v", err)
	}
}

func TestBuildLeafSignsAndLinksToIssuer(t *testing.T) {
	clk := clock.NewFake()
	caKey, err := GenerateKey(RSA_SHA256, 2048)
	if err != nil {
		t.Fatal(err)
	}
	rootDER, err := BuildRoot("Picky", RSA_SHA256, caKey, clk)
	if err != nil {
		t.Fatal(err)
	}
	rootCert, err := ParseCertificate(rootDER)
	if err != nil {
		t.Fatal(err)
	}

	leafKey, err := GenerateKey(RSA_SHA384, 2048)
	if err != nil {
		t.Fatal(err)
	}
	csr := newCSR(t, pkix.Name{CommonName: "Mister Bushido"}, leafKey, x509.SHA384WithRSA)

	leafDER, err := BuildLeaf(csr, "", RSA_SHA384, rootCert, caKey, clk)
	if err != nil {
		t.Fatal(err)
	}
	leaf, err := ParseCertificate(leafDER)
	if err != nil {
		t.Fatal(err)
	}
	if leaf.Subject.CommonName != "Mister Bushido" {
		t.Fatalf("got CN %q", leaf.Subject.CommonName)
	}
	if string(leaf.AuthorityKeyId) != string(rootCert.SubjectKeyId) {
		t.Fatalf("leaf AKI does not reference issuer SKI")
	}
	if leaf.IsCA {
		t.Fatalf("leaf must not be a CA")
	}
	if len(leaf.DNSNames) != 1 || leaf.DNSNames[0] != "mister bushido" {
		t.Fatalf("got DNSNames %v", leaf.DNSNames)
	}
	if err := leaf.CheckSignatureFrom(rootCert); err != nil {
		t.Fatalf("leaf does not verify against issuer: %v", err)
	}
}

func TestBuildLeafRejectsBadCSRSignature(t *testing.T) {
	clk := clock.NewFake()
	caKey, err := GenerateKey(RSA_SHA256, 2048)
	if err != nil {
		t.Fatal(err)
	}
	rootDER, err := BuildRoot("Picky", RSA_SHA256, caKey, clk)
	if err != nil {
		t.Fatal(err)
	}
	rootCert, err := ParseCertificate(rootDER)
	if err != nil {
		t.Fatal(err)
	}

	leafKey, err := GenerateKey(RSA_SHA256, 2048)
	if err != nil {
		t.Fatal(err)
	}
	csr := newCSR(t, pkix.Name{CommonName: "Alice"}, leafKey, x509.SHA256WithRSA)
	csr.Signature[len(csr.Signature)-1] ^= 0xFF

	_, err = BuildLeaf(csr, "", RSA_SHA256, rootCert, caKey, clk)
	if !caerrors.Is(err, caerrors.CsrInvalid) {
		t.Fatalf("expected CsrInvalid, got %v", err)
	}
}
