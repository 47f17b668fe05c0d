// Package chain implements the issuance-chain walker (C5): given a
// certificate's canonical address, it follows AuthorityKeyIdentifier links
// back to the self-issued root, the way spec.md §4.5 describes.
package chain

import (
	"context"
	"encoding/hex"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/pickyca/pickyca/caerrors"
	"github.com/pickyca/pickyca/certstore"
	"github.com/pickyca/pickyca/issuance"
	"github.com/pickyca/pickyca/pickymetrics"
)

var tracer = otel.Tracer("github.com/pickyca/pickyca/chain")

// MaxHops bounds a single walk, guarding against a cycle that evades the
// seen-SKI check (spec.md §4.5).
const MaxHops = 16

// Walk returns the ordered chain from the certificate at startAddress up to
// and including the root: the starting certificate first, the root last.
// metrics may be nil.
func Walk(ctx context.Context, store certstore.Backend, startAddress string, metrics *pickymetrics.Metrics) ([][]byte, error) {
	ctx, span := tracer.Start(ctx, "walking chain")
	defer span.End()

	var out [][]byte
	seen := make(map[string]bool)

	addr := startAddress
	for hop := 0; hop < MaxHops; hop++ {
		certDER, err := store.GetCertByAddress(ctx, addr)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, caerrors.Wrap(caerrors.ChainBroken, "resolving chain certificate", err)
		}
		cert, err := issuance.ParseCertificate(certDER)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, caerrors.Wrap(caerrors.ChainBroken, "parsing chain certificate", err)
		}

		ski := hex.EncodeToString(cert.SubjectKeyId)
		if seen[ski] {
			err := caerrors.Errorf(caerrors.ChainBroken, "cycle detected at key identifier %q", ski)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		seen[ski] = true

		out = append(out, certDER)

		if len(cert.AuthorityKeyId) == 0 {
			err := caerrors.New(caerrors.ChainBroken, "certificate has no AuthorityKeyIdentifier", nil)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		aki := hex.EncodeToString(cert.AuthorityKeyId)
		if aki == ski {
			// Self-issued: root reached.
			if metrics != nil {
				metrics.ObserveChainWalkLength(len(out))
			}
			return out, nil
		}

		addr, err = store.AddressByKeyID(ctx, aki)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, caerrors.Wrap(caerrors.ChainBroken, "resolving issuer by key identifier", err)
		}
	}

	err := caerrors.Errorf(caerrors.ChainBroken, "chain exceeded %d hops without reaching a root", MaxHops)
	span.SetStatus(codes.Error, err.Error())
	return nil, err
}
