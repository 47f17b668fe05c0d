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

// IntermediateSkew mirrors RootSkew for the intermediate's NotBefore.
const IntermediateSkew = -5 * time.Minute

// IntermediateValidity is how long a generated intermediate is valid for.
const IntermediateValidity = 5 * 365 * 24 * time.Hour

// BuildIntermediate constructs an intermediate certificate for realm, issued
// by rootCert/rootKey and signed by interKey under algorithm.
func BuildIntermediate(realm string, algorithm Algorithm, interKey crypto.Signer, rootCert *x509.Certificate, rootKey crypto.Signer, clk clock.Clock) ([]byte, error) {
	sigAlg, err := algorithm.x509Algorithm()
	if err != nil {
		return nil, caerrors.Wrap(caerrors.SigningFailed, "selecting signature algorithm", err)
	}

	ski, err := subjectKeyID(interKey.Public())
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
		Subject:               pkix.Name{CommonName: IntermediateSubjectName(realm)},
		Issuer:                rootCert.Subject,
		NotBefore:             now.Add(IntermediateSkew),
		NotAfter:              now.Add(IntermediateValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            0,
		MaxPathLenZero:        true,
		SubjectKeyId:          ski,
		AuthorityKeyId:        rootCert.SubjectKeyId,
		SignatureAlgorithm:    sigAlg,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, rootCert, interKey.Public(), rootKey)
	if err != nil {
		return nil, caerrors.Wrap(caerrors.SigningFailed, "creating intermediate certificate", err)
	}
	return der, nil
}
