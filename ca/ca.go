// Package ca is the issuance orchestrator (C4): it decodes a submitted CSR,
// authorizes it against an optional locked name, resolves the realm's
// intermediate CA material, invokes the issuance builder, and optionally
// persists the result. It keeps boulder's certificateAuthorityImpl shape
// (metrics, audit logging, tracing around a single Sign entrypoint) with the
// gRPC request/response types generalized to plain Go values, since this
// core has no RPC surface (spec.md §1).
package ca

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"strings"

	"github.com/jmhodges/clock"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/pickyca/pickyca/caerrors"
	"github.com/pickyca/pickyca/certstore"
	"github.com/pickyca/pickyca/identifier"
	"github.com/pickyca/pickyca/issuance"
	"github.com/pickyca/pickyca/pickylog"
	"github.com/pickyca/pickyca/pickymetrics"
)

var tracer = otel.Tracer("github.com/pickyca/pickyca/ca")

// jsonCSR is the envelope accepted when a CSR arrives JSON-wrapped, one of
// the input forms spec.md §4.4 lists.
type jsonCSR struct {
	CSR string `json:"csr"`
}

// Authorization constrains who a CSR may be signed for. An empty LockedName
// means "any name allowed" (spec.md §4.4).
type Authorization struct {
	LockedName string
}

func (a Authorization) locked() bool {
	return a.LockedName != ""
}

// CertificateAuthority is the issuance orchestrator. It is safe for
// concurrent use.
type CertificateAuthority struct {
	store     certstore.Backend
	realm     string
	algorithm issuance.Algorithm
	saveLeaf  bool
	clk       clock.Clock
	log       pickylog.Logger
	metrics   *pickymetrics.Metrics

	group singleflight.Group
}

// New returns a CertificateAuthority that issues leaves under realm's
// intermediate, persisted in store.
func New(store certstore.Backend, realm string, algorithm issuance.Algorithm, saveLeaf bool, clk clock.Clock, log pickylog.Logger, metrics *pickymetrics.Metrics) *CertificateAuthority {
	return &CertificateAuthority{
		store:     store,
		realm:     realm,
		algorithm: algorithm,
		saveLeaf:  saveLeaf,
		clk:       clk,
		log:       log,
		metrics:   metrics,
	}
}

// intermediateName is the Subject CN the bootstrap controller stores the
// realm's intermediate under.
func (ca *CertificateAuthority) intermediateName() string {
	return issuance.IntermediateSubjectName(ca.realm)
}

// Sign decodes raw (in any of the forms spec.md §4.4 lists), authorizes it
// against auth, and returns the signed leaf DER. Concurrent identical
// submissions (same raw bytes, dns_name, and locked name) are coalesced onto
// a single signing attempt with golang.org/x/sync/singleflight.
func (ca *CertificateAuthority) Sign(ctx context.Context, raw []byte, dnsName string, auth Authorization) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "signing cert")
	defer span.End()

	event := pickylog.NewOperationEvent("sign")
	event.Realm = ca.realm
	begin := ca.clk.Now()
	defer event.Finish(ca.log, begin)

	digest := sha256.Sum256(raw)
	groupKey := hex.EncodeToString(digest[:]) + "|" + dnsName + "|" + auth.LockedName

	v, err, _ := ca.group.Do(groupKey, func() (interface{}, error) {
		return ca.sign(ctx, raw, dnsName, auth, event)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		event.Error = err.Error()
		ca.metrics.NoteSignError(errType(err))
		return nil, err
	}
	return v.([]byte), nil
}

func (ca *CertificateAuthority) sign(ctx context.Context, raw []byte, dnsName string, auth Authorization, event *pickylog.OperationEvent) ([]byte, error) {
	csr, err := decodeCSR(raw)
	if err != nil {
		event.AddError(err.Error())
		return nil, err
	}

	if auth.locked() && !identifier.Matches(csr, auth.LockedName) {
		err := caerrors.Errorf(caerrors.Unauthorized, "CSR Common Name does not match the authorized name %q", auth.LockedName)
		event.AddError(err.Error())
		return nil, err
	}

	caAddr, err := ca.store.AddressByName(ctx, ca.intermediateName())
	if err != nil {
		event.AddError(err.Error())
		return nil, err
	}
	caCertDER, err := ca.store.GetCertByAddress(ctx, caAddr)
	ca.metrics.NoteStorageOp("get_cert_by_address", err)
	if err != nil {
		event.AddError(err.Error())
		return nil, err
	}
	caKeyDER, err := ca.store.GetKeyByAddress(ctx, caAddr)
	ca.metrics.NoteStorageOp("get_key_by_address", err)
	if err != nil {
		event.AddError(err.Error())
		return nil, err
	}

	caCert, err := issuance.ParseCertificate(caCertDER)
	if err != nil {
		event.AddError(err.Error())
		return nil, err
	}
	caKey, err := issuance.ParseSigner(caKeyDER)
	if err != nil {
		event.AddError(err.Error())
		return nil, err
	}

	leafDER, err := issuance.BuildLeaf(csr, dnsName, ca.algorithm, caCert, caKey, ca.clk)
	if err != nil {
		ca.metrics.NoteSignError(errType(err))
		event.AddError(err.Error())
		return nil, err
	}
	ca.metrics.NoteSignature("leaf")

	leaf, err := issuance.ParseCertificate(leafDER)
	if err != nil {
		event.AddError(err.Error())
		return nil, err
	}
	event.Name = leaf.Subject.CommonName
	event.Serial = leaf.SerialNumber.String()

	if ca.saveLeaf {
		record := certstore.Record{
			Name:          leaf.Subject.CommonName,
			CertDER:       leafDER,
			KeyIdentifier: hex.EncodeToString(leaf.SubjectKeyId),
		}
		err = ca.store.Store(ctx, record)
		ca.metrics.NoteStorageOp("store", err)
		if err != nil {
			event.AddError(err.Error())
			return nil, err
		}
	}

	ca.metrics.NoteCertificateIssued("leaf")
	return leafDER, nil
}

func errType(err error) string {
	switch {
	case caerrors.Is(err, caerrors.CsrInvalid):
		return string(caerrors.CsrInvalid)
	case caerrors.Is(err, caerrors.Unauthorized):
		return string(caerrors.Unauthorized)
	case caerrors.Is(err, caerrors.BadRequest):
		return string(caerrors.BadRequest)
	case caerrors.Is(err, caerrors.NotFound):
		return string(caerrors.NotFound)
	default:
		return "other"
	}
}

// decodeCSR accepts raw input in any of PEM, JSON-wrapped PEM, raw DER, or
// base64-encoded DER, and returns the parsed request (spec.md §4.4).
func decodeCSR(raw []byte) (*x509.CertificateRequest, error) {
	trimmed := strings.TrimSpace(string(raw))

	if strings.HasPrefix(trimmed, "{") {
		var wrapped jsonCSR
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, caerrors.Wrap(caerrors.CsrInvalid, "parsing JSON-wrapped CSR", err)
		}
		return decodeCSR([]byte(wrapped.CSR))
	}

	if block, _ := pem.Decode(raw); block != nil {
		return parseCSRDER(block.Bytes)
	}

	if csr, err := parseCSRDER(raw); err == nil {
		return csr, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return nil, caerrors.Wrap(caerrors.CsrInvalid, "decoding CSR: not PEM, DER, JSON, or base64", err)
	}
	return parseCSRDER(decoded)
}

func parseCSRDER(der []byte) (*x509.CertificateRequest, error) {
	csr, err := x509.ParseCertificateRequest(der)
	if err != nil {
		return nil, caerrors.Wrap(caerrors.CsrInvalid, "parsing CSR DER", err)
	}
	return csr, nil
}
