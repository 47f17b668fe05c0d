// Package addressing implements the canonical and alternate content
// addressing scheme used to key stored certificates: a multihash of the
// DER bytes, multibase-encoded under a single fixed base.
//
// This is a direct port of the scheme in the original picky-server's
// addressing.rs (SHA2-256 canonical digest, SHA-1 alternate digest,
// base64url-unpadded multibase), implemented against the real upstream Go
// multiformats libraries rather than the Rust crates the original used.
package addressing

import (
	"fmt"

	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"

	"github.com/pickyca/pickyca/caerrors"
)

// CanonicalBase is the multibase encoding used for every address this
// package produces, regardless of digest algorithm.
const CanonicalBase = multibase.Base64url

// CanonicalCode is the multihash function code used for the primary,
// storage-key address of a record.
const CanonicalCode = multihash.SHA2_256

// AlternateCodes is the fixed set of additional digests every record is
// indexed under, for backward compatibility with addresses computed by an
// older canonical algorithm. Adding to this set requires an offline backfill
// (spec §9 "Alternate-address backfill") — it is not something this package,
// or any running instance of the core, does automatically.
var AlternateCodes = []uint64{multihash.SHA1}

// supportedCodes is AlternateCodes plus CanonicalCode, used to validate
// algorithms decoded from caller-supplied addresses.
var supportedCodes = func() map[uint64]bool {
	m := map[uint64]bool{CanonicalCode: true}
	for _, c := range AlternateCodes {
		m[c] = true
	}
	return m
}()

// Canonical computes the canonical address of data: a SHA2-256 multihash,
// multibase-encoded under CanonicalBase.
func Canonical(data []byte) (string, error) {
	return encode(data, CanonicalCode)
}

// Alternates computes one address per entry in AlternateCodes, in the same
// order, all under CanonicalBase.
func Alternates(data []byte) ([]string, error) {
	out := make([]string, 0, len(AlternateCodes))
	for _, code := range AlternateCodes {
		addr, err := encode(data, code)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func encode(data []byte, code uint64) (string, error) {
	mh, err := multihash.Sum(data, code, -1)
	if err != nil {
		return "", caerrors.Wrap(caerrors.AddressInvalid, fmt.Sprintf("hashing with code 0x%x", code), err)
	}
	addr, err := multibase.Encode(CanonicalBase, mh)
	if err != nil {
		return "", caerrors.Wrap(caerrors.AddressInvalid, "multibase encode", err)
	}
	return addr, nil
}

// Normalize decodes a multibase-encoded multihash address in any supported
// base, validates its digest algorithm is one of ours, and re-encodes it
// under CanonicalBase. It returns the re-encoded string and the multihash
// code that was detected, so the caller can tell a canonical address from
// one that needs translation via the alternate-address index.
func Normalize(addr string) (string, uint64, error) {
	_, raw, err := multibase.Decode(addr)
	if err != nil {
		return "", 0, caerrors.Wrap(caerrors.AddressInvalid, "multibase decode", err)
	}

	decoded, err := multihash.Decode(raw)
	if err != nil {
		return "", 0, caerrors.Wrap(caerrors.AddressInvalid, "multihash decode", err)
	}

	if !supportedCodes[decoded.Code] {
		return "", 0, caerrors.Errorf(caerrors.AddressInvalid, "unsupported digest algorithm 0x%x", decoded.Code)
	}

	canonical, err := multibase.Encode(CanonicalBase, raw)
	if err != nil {
		return "", 0, caerrors.Wrap(caerrors.AddressInvalid, "multibase re-encode", err)
	}

	return canonical, decoded.Code, nil
}

// IsCanonical reports whether code is the canonical digest algorithm.
func IsCanonical(code uint64) bool {
	return code == CanonicalCode
}
