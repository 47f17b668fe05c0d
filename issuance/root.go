package issuance

import (
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"time"

	"github.com/jmhodges/clock"

	"github.com/pickyca/pickyca/caerrors"
)

// RootSkew is how far before "now" a generated root's NotBefore is backdated,
// to tolerate modest clock drift between this service and a relying party.
const RootSkew = -5 * time.Minute

// RootValidity is how long a generated root is valid for.
const RootValidity = 10 * 365 * 24 * time.Hour

// BuildRoot constructs a self-issued, self-signed root certificate for
// realm, signed by key under algorithm.
func BuildRoot(realm string, algorithm Algorithm, key crypto.Signer, clk clock.Clock) ([]byte, error) {
	sigAlg, err := algorithm.x509Algorithm()
	if err != nil {
		return nil, caerrors.Wrap(caerrors.SigningFailed, "selecting signature algorithm", err)
	}

	ski, err := subjectKeyID(key.Public())
	if err != nil {
		return nil, err
	}

	serial, err := serialNumber()
	if err != nil {
		return nil, err
	}

	subject := pkix.Name{CommonName: RootSubjectName(realm)}
	now := clk.Now()

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               subject,
		Issuer:                subject,
		NotBefore:             now.Add(RootSkew),
		NotAfter:              now.Add(RootValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		SubjectKeyId:          ski,
		AuthorityKeyId:        ski,
		SignatureAlgorithm:    sigAlg,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	if err != nil {
		return nil, caerrors.Wrap(caerrors.SigningFailed, "creating root certificate", err)
	}
	return der, nil
}
