// Package pickyconfig loads and validates the core's configuration, and
// hands out read-only snapshots of it behind a single reader-writer
// discipline (spec.md §5 "Shared state").
package pickyconfig

import (
	"os"

	validator "github.com/letsencrypt/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pickyca/pickyca/caerrors"
	"github.com/pickyca/pickyca/issuance"
)

// CertKeyPair names a {cert, key} slot, each given either as an inline PEM
// blob or a filesystem path to one.
type CertKeyPair struct {
	CertPEM  string `yaml:"cert_pem,omitempty"`
	CertPath string `yaml:"cert_path,omitempty"`
	KeyPEM   string `yaml:"key_pem,omitempty"`
	KeyPath  string `yaml:"key_path,omitempty"`
}

// Empty reports whether no material was supplied for this slot, i.e. the
// slot's bootstrap state is Absent.
func (p *CertKeyPair) Empty() bool {
	return p == nil || (p.CertPEM == "" && p.CertPath == "" && p.KeyPEM == "" && p.KeyPath == "")
}

// CertPEMBytes returns the configured certificate PEM, reading CertPath if
// CertPEM was not given inline.
func (p *CertKeyPair) CertPEMBytes() ([]byte, error) {
	return resolveMaterial(p.CertPEM, p.CertPath)
}

// KeyPEMBytes returns the configured key PEM, reading KeyPath if KeyPEM was
// not given inline.
func (p *CertKeyPair) KeyPEMBytes() ([]byte, error) {
	return resolveMaterial(p.KeyPEM, p.KeyPath)
}

func resolveMaterial(inline, path string) ([]byte, error) {
	if inline != "" {
		return []byte(inline), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, caerrors.Wrap(caerrors.ConfigMismatch, "reading configured material from "+path, err)
	}
	return b, nil
}

// Config is the configuration surface, exactly the fields of spec.md §6 plus
// the ambient log_level and save_certificate defaults picky-rs's
// configuration.rs also carries.
type Config struct {
	Realm             string       `yaml:"realm" validate:"required"`
	Backend           string       `yaml:"backend" validate:"required,oneof=memory file mongodb mysql sqlite"`
	DatabaseURL       string       `yaml:"database_url"`
	SigningAlgorithm  string       `yaml:"signing_algorithm" validate:"required"`
	SaveCertificate   bool         `yaml:"save_certificate"`
	LogLevel          string       `yaml:"log_level" validate:"required,oneof=debug info warn error"`
	Root              *CertKeyPair `yaml:"root,omitempty"`
	Intermediate      *CertKeyPair `yaml:"intermediate,omitempty"`
}

// Algorithm returns the parsed signing algorithm, falling back to
// issuance.DefaultAlgorithm when unset.
func (c *Config) Algorithm() issuance.Algorithm {
	if c.SigningAlgorithm == "" {
		return issuance.DefaultAlgorithm
	}
	return issuance.Algorithm(c.SigningAlgorithm)
}

func defaults() Config {
	return Config{
		Realm:            "Picky",
		Backend:          "mongodb",
		SigningAlgorithm: string(issuance.DefaultAlgorithm),
		SaveCertificate:  false,
		LogLevel:         "info",
	}
}

var validate = validator.New()

// Load reads and validates the YAML configuration at path, applying field
// defaults before unmarshaling.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, caerrors.Wrap(caerrors.ConfigMismatch, "reading config file", err)
	}
	return Parse(raw)
}

// Parse validates and returns the configuration encoded in raw YAML.
func Parse(raw []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, caerrors.Wrap(caerrors.ConfigMismatch, "parsing config YAML", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, caerrors.Wrap(caerrors.ConfigMismatch, "validating config", err)
	}
	return &cfg, nil
}

// ImmutableFieldsChanged reports whether any of the three runtime-immutable
// fields (database URL, file backend path, backend kind) differ between old
// and next, per spec.md §4.6's reload semantics.
func ImmutableFieldsChanged(oldCfg, nextCfg *Config) bool {
	if oldCfg.Backend != nextCfg.Backend {
		return true
	}
	if oldCfg.DatabaseURL != nextCfg.DatabaseURL {
		return true
	}
	return false
}
