// Package issuance builds root, intermediate, and leaf X.509 certificates.
// It mirrors boulder's ca package in spirit (SKID derivation, random serial
// generation, one function per certificate shape) but issues directly with
// crypto/x509 rather than through boulder's linting/profile machinery, and
// computes key identifiers the way RFC 5280 §4.2.1.2 method 1 describes
// rather than boulder's RFC 7093 method.
package issuance

import (
	"crypto"
	"crypto/rand"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"

	"github.com/pickyca/pickyca/caerrors"
)

// RootSubjectName returns the Subject Common Name of realm's root CA.
func RootSubjectName(realm string) string {
	return realm + " Root CA"
}

// IntermediateSubjectName returns the Subject Common Name of realm's
// intermediate CA.
func IntermediateSubjectName(realm string) string {
	return realm + " Authority"
}

// subjectKeyID computes the Subject Key Identifier of pub as the SHA-1
// digest of the DER-encoded public-key BIT STRING content, excluding its
// tag, length, and unused-bits count (RFC 5280 §4.2.1.2 method 1).
func subjectKeyID(pub crypto.PublicKey) ([]byte, error) {
	pkixBytes, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, caerrors.Wrap(caerrors.SigningFailed, "marshaling public key", err)
	}

	var spki struct {
		Algorithm pkix.AlgorithmIdentifier
		PublicKey asn1.BitString
	}
	if _, err := asn1.Unmarshal(pkixBytes, &spki); err != nil {
		return nil, caerrors.Wrap(caerrors.SigningFailed, "parsing SubjectPublicKeyInfo", err)
	}

	ski := sha1.Sum(spki.PublicKey.Bytes)
	return ski[:], nil
}

// serialNumber returns a fresh positive serial number with at least 64 bits
// of entropy, high bit cleared so its two's-complement encoding never needs
// a padding byte.
func serialNumber() (*big.Int, error) {
	buf := make([]byte, 9)
	if _, err := rand.Read(buf); err != nil {
		return nil, caerrors.Wrap(caerrors.SigningFailed, "generating serial number", err)
	}
	buf[0] &= 0x7f
	return new(big.Int).SetBytes(buf), nil
}

// ParseCertificate parses a DER-encoded certificate, wrapping failures as
// caerrors.CaUnavailable since it is always called on material this service
// is supposed to already trust.
func ParseCertificate(der []byte) (*x509.Certificate, error) {
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, caerrors.Wrap(caerrors.CaUnavailable, "parsing CA certificate", err)
	}
	return cert, nil
}

// ParseSigner parses a PKCS#8-encoded private key and asserts it implements
// crypto.Signer.
func ParseSigner(der []byte) (crypto.Signer, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, caerrors.Wrap(caerrors.CaUnavailable, "parsing CA key", err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, caerrors.Errorf(caerrors.CaUnavailable, "CA key of type %T is not a signer", key)
	}
	return signer, nil
}

// MarshalKey encodes key as a PKCS#8 private key, the form certstore.Record
// stores CA private keys in.
func MarshalKey(key crypto.Signer) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, caerrors.Wrap(caerrors.SigningFailed, "marshaling private key", err)
	}
	return der, nil
}

