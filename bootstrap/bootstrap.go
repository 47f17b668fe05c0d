// Package bootstrap implements the controller (C6) that brings a storage
// backend into a "root present, intermediate present" state on startup and
// on every configuration reload, generating or injecting CA material as the
// per-slot state machine in spec.md §4.6 describes.
package bootstrap

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"

	"github.com/jmhodges/clock"

	"github.com/pickyca/pickyca/caerrors"
	"github.com/pickyca/pickyca/certstore"
	"github.com/pickyca/pickyca/issuance"
	"github.com/pickyca/pickyca/pickyconfig"
	"github.com/pickyca/pickyca/pickylog"
	"github.com/pickyca/pickyca/pickymetrics"
)

// rootBits and intermediateBits are the RSA key sizes spec.md §4.6 names for
// the generate path when the configured algorithm is RSA-based.
const (
	rootBits         = 4096
	intermediateBits = 2048
)

// Run realizes "root exists, intermediate exists, intermediate issued by
// root" against store, per cfg. It is idempotent: a slot already present
// (its name already indexed) is a no-op.
func Run(ctx context.Context, store certstore.Backend, cfg *pickyconfig.Config, clk clock.Clock, log pickylog.Logger, metrics *pickymetrics.Metrics) error {
	begin := clk.Now()
	event := pickylog.NewOperationEvent("bootstrap")
	event.Realm = cfg.Realm
	defer event.Finish(log, begin)

	algorithm := cfg.Algorithm()

	rootCert, rootKey, err := ensureRoot(ctx, store, cfg, algorithm, clk)
	if err != nil {
		event.AddError(err.Error())
		if metrics != nil {
			metrics.ObserveBootstrapDuration("error", clk.Now().Sub(begin).Seconds())
		}
		return err
	}

	if err := ensureIntermediate(ctx, store, cfg, algorithm, rootCert, rootKey, clk); err != nil {
		event.AddError(err.Error())
		if metrics != nil {
			metrics.ObserveBootstrapDuration("error", clk.Now().Sub(begin).Seconds())
		}
		return err
	}

	if metrics != nil {
		metrics.ObserveBootstrapDuration("success", clk.Now().Sub(begin).Seconds())
	}
	return nil
}

func ensureRoot(ctx context.Context, store certstore.Backend, cfg *pickyconfig.Config, algorithm issuance.Algorithm, clk clock.Clock) (*x509.Certificate, crypto.Signer, error) {
	name := issuance.RootSubjectName(cfg.Realm)

	if addr, err := store.AddressByName(ctx, name); err == nil {
		certDER, err := store.GetCertByAddress(ctx, addr)
		if err != nil {
			return nil, nil, err
		}
		keyDER, err := store.GetKeyByAddress(ctx, addr)
		if err != nil {
			return nil, nil, err
		}
		cert, err := issuance.ParseCertificate(certDER)
		if err != nil {
			return nil, nil, err
		}
		key, err := issuance.ParseSigner(keyDER)
		if err != nil {
			return nil, nil, err
		}
		return cert, key, nil
	} else if !caerrors.Is(err, caerrors.NotFound) {
		return nil, nil, err
	}

	if !cfg.Root.Empty() {
		cert, key, certDER, keyDER, err := loadInjected(cfg.Root, name)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Store(ctx, certstore.Record{
			Name:          name,
			CertDER:       certDER,
			KeyIdentifier: hex.EncodeToString(cert.SubjectKeyId),
			KeyDER:        keyDER,
		}); err != nil {
			return nil, nil, err
		}
		return cert, key, nil
	}

	bits := rootBits
	key, err := issuance.GenerateKey(algorithm, bits)
	if err != nil {
		return nil, nil, err
	}
	certDER, err := issuance.BuildRoot(cfg.Realm, algorithm, key, clk)
	if err != nil {
		return nil, nil, err
	}
	cert, err := issuance.ParseCertificate(certDER)
	if err != nil {
		return nil, nil, err
	}
	keyDER, err := issuance.MarshalKey(key)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Store(ctx, certstore.Record{
		Name:          name,
		CertDER:       certDER,
		KeyIdentifier: hex.EncodeToString(cert.SubjectKeyId),
		KeyDER:        keyDER,
	}); err != nil {
		return nil, nil, err
	}
	return cert, key, nil
}

func ensureIntermediate(ctx context.Context, store certstore.Backend, cfg *pickyconfig.Config, algorithm issuance.Algorithm, rootCert *x509.Certificate, rootKey crypto.Signer, clk clock.Clock) error {
	name := issuance.IntermediateSubjectName(cfg.Realm)

	if _, err := store.AddressByName(ctx, name); err == nil {
		return nil
	} else if !caerrors.Is(err, caerrors.NotFound) {
		return err
	}

	if !cfg.Intermediate.Empty() {
		cert, _, certDER, keyDER, err := loadInjected(cfg.Intermediate, name)
		if err != nil {
			return err
		}
		return store.Store(ctx, certstore.Record{
			Name:          name,
			CertDER:       certDER,
			KeyIdentifier: hex.EncodeToString(cert.SubjectKeyId),
			KeyDER:        keyDER,
		})
	}

	key, err := issuance.GenerateKey(algorithm, intermediateBits)
	if err != nil {
		return err
	}
	certDER, err := issuance.BuildIntermediate(cfg.Realm, algorithm, key, rootCert, rootKey, clk)
	if err != nil {
		return err
	}
	cert, err := issuance.ParseCertificate(certDER)
	if err != nil {
		return err
	}
	keyDER, err := issuance.MarshalKey(key)
	if err != nil {
		return err
	}
	return store.Store(ctx, certstore.Record{
		Name:          name,
		CertDER:       certDER,
		KeyIdentifier: hex.EncodeToString(cert.SubjectKeyId),
		KeyDER:        keyDER,
	})
}

// loadInjected parses an operator-supplied {cert, key} pair for a slot
// expected to carry Subject CN == expectedName, failing ConfigMismatch on
// any parse error or CN mismatch.
func loadInjected(pair *pickyconfig.CertKeyPair, expectedName string) (cert *x509.Certificate, key crypto.Signer, certDER, keyDER []byte, err error) {
	certPEM, err := pair.CertPEMBytes()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	keyPEM, err := pair.KeyPEMBytes()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return nil, nil, nil, nil, caerrors.New(caerrors.ConfigMismatch, "injected certificate is not valid PEM", nil)
	}
	cert, err = x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, nil, nil, nil, caerrors.Wrap(caerrors.ConfigMismatch, "parsing injected certificate", err)
	}
	if cert.Subject.CommonName != expectedName {
		return nil, nil, nil, nil, caerrors.Errorf(caerrors.ConfigMismatch, "injected certificate Subject CN %q does not match expected %q", cert.Subject.CommonName, expectedName)
	}

	key, err = parsePrivateKeyPEM(keyPEM)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	keyDER, err = issuance.MarshalKey(key)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return cert, key, certBlock.Bytes, keyDER, nil
}

// parsePrivateKeyPEM accepts PKCS#8, PKCS#1 (RSA), or SEC1 (EC) PEM-encoded
// keys, the formats an operator is likely to hand this service.
func parsePrivateKeyPEM(keyPEM []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, caerrors.New(caerrors.ConfigMismatch, "injected key is not valid PEM", nil)
	}

	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, caerrors.Errorf(caerrors.ConfigMismatch, "injected key of type %T is not a signer", key)
		}
		return signer, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	return nil, caerrors.New(caerrors.ConfigMismatch, "injected key is not PKCS#8, PKCS#1, or SEC1", nil)
}

