// Package identifier extracts and normalizes the subject names a CSR or
// certificate carries: the Subject Common Name and any DNS-type Subject
// Alternative Names. It exists as a separate package so that issuance, the
// CA orchestrator, and the bootstrap controller can agree on one definition
// of "the name of this certificate" without importing each other.
package identifier

import (
	"crypto/x509"
	"slices"

	"golang.org/x/text/cases"
)

var foldCase = cases.Fold()

// FromCSR returns the Subject Common Name of csr, or the empty string if the
// CSR's Subject has none.
func FromCSR(csr *x509.CertificateRequest) string {
	return csr.Subject.CommonName
}

// SANsFromCSR returns the set of DNS names a leaf built from csr should
// carry: dnsName (if supplied) and the CSR's own DNSNames, plus the CSR's
// Subject Common Name if it isn't already among them. The result is
// case-folded and deduplicated.
func SANsFromCSR(csr *x509.CertificateRequest, dnsName string) []string {
	var names []string
	if dnsName != "" {
		names = append(names, dnsName)
	}
	names = append(names, csr.DNSNames...)
	if csr.Subject.CommonName != "" {
		names = append(names, csr.Subject.CommonName)
	}
	return Normalize(names)
}

// Normalize case-folds every name, sorts them, and removes duplicates.
func Normalize(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = foldCase.String(n)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Matches reports whether a CSR's Subject Common Name equals lockedName
// under Unicode case folding. Used by the issuance orchestrator to enforce
// a caller-supplied subject constraint (spec §4.4 step 2).
func Matches(csr *x509.CertificateRequest, lockedName string) bool {
	return foldCase.String(csr.Subject.CommonName) == foldCase.String(lockedName)
}
