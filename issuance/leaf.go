package issuance

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"time"

	"github.com/jmhodges/clock"

	"github.com/pickyca/pickyca/caerrors"
	"github.com/pickyca/pickyca/identifier"
)

// LeafSkew mirrors RootSkew for a leaf's NotBefore.
const LeafSkew = -5 * time.Minute

// LeafValidity is how long an issued leaf is valid for.
const LeafValidity = 365 * 24 * time.Hour

// BuildLeaf verifies csr's self-signature and issues a leaf certificate from
// it, signed by caKey under algorithm. dnsName is added alongside the CSR's
// own DNS SANs and Common Name (spec §4.3's "dns_name" input) without
// replacing them; it may be empty if the CSR already carries a usable name.
func BuildLeaf(csr *x509.CertificateRequest, dnsName string, algorithm Algorithm, caCert *x509.Certificate, caKey crypto.Signer, clk clock.Clock) ([]byte, error) {
	if err := csr.CheckSignature(); err != nil {
		return nil, caerrors.Wrap(caerrors.CsrInvalid, "CSR self-signature verification failed", err)
	}

	if csr.Subject.CommonName == "" && dnsName == "" {
		return nil, caerrors.New(caerrors.BadRequest, "CSR has no Common Name and no dns_name was supplied", nil)
	}

	sigAlg, err := algorithm.x509Algorithm()
	if err != nil {
		return nil, caerrors.Wrap(caerrors.SigningFailed, "selecting signature algorithm", err)
	}

	ski, err := subjectKeyID(csr.PublicKey)
	if err != nil {
		return nil, err
	}

	serial, err := serialNumber()
	if err != nil {
		return nil, err
	}

	now := clk.Now()

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               csr.Subject,
		Issuer:                caCert.Subject,
		NotBefore:             now.Add(LeafSkew),
		NotAfter:              now.Add(LeafValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  false,
		DNSNames:              identifier.SANsFromCSR(csr, dnsName),
		SubjectKeyId:          ski,
		AuthorityKeyId:        caCert.SubjectKeyId,
		SignatureAlgorithm:    sigAlg,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, caCert, csr.PublicKey, caKey)
	if err != nil {
		return nil, caerrors.Wrap(caerrors.SigningFailed, "creating leaf certificate", err)
	}
	return der, nil
}
