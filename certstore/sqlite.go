package certstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jmhodges/clock"

	"github.com/pickyca/pickyca/caerrors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS certstore_records (
	canonical_address TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	key_identifier TEXT NOT NULL,
	cert_der BLOB NOT NULL,
	key_der BLOB,
	alternates_json TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS certstore_records_name ON certstore_records(name);
CREATE INDEX IF NOT EXISTS certstore_records_ski ON certstore_records(key_identifier);
`

// SQLite is a Backend backed by a single sqlite3 database file, driven with
// github.com/mattn/go-sqlite3 over database/sql. Unlike MySQL, an empty
// sqlite file genuinely has no schema yet, so this backend creates its table
// on open rather than assuming an operator migration ran first.
type SQLite struct {
	db  *sql.DB
	clk clock.Clock
}

// NewSQLite opens path (a filesystem path, per spec.md's database_url
// meaning for this backend) and ensures its table exists.
func NewSQLite(path string, clk clock.Clock) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, caerrors.Wrap(caerrors.StorageUnavailable, "opening sqlite database", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, caerrors.Wrap(caerrors.StorageUnavailable, "creating sqlite schema", err)
	}
	return &SQLite{db: db, clk: clk}, nil
}

func (s *SQLite) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return caerrors.Wrap(caerrors.StorageUnavailable, "pinging sqlite", err)
	}
	return nil
}

func (s *SQLite) Store(ctx context.Context, r Record) error {
	canonical, err := r.CanonicalAddress()
	if err != nil {
		return err
	}
	alternates, err := computeIndexes(r)
	if err != nil {
		return err
	}
	altJSON, err := json.Marshal(alternates)
	if err != nil {
		return caerrors.Wrap(caerrors.StorageUnavailable, "marshaling alternate addresses", err)
	}

	var existingCanonical string
	err = s.db.QueryRowContext(ctx,
		`SELECT canonical_address FROM certstore_records WHERE canonical_address = ?`, canonical,
	).Scan(&existingCanonical)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return caerrors.Wrap(caerrors.StorageUnavailable, "checking for existing record", err)
	}

	var nameOwner string
	err = s.db.QueryRowContext(ctx,
		`SELECT canonical_address FROM certstore_records WHERE name = ?`, r.Name,
	).Scan(&nameOwner)
	if err == nil && nameOwner != canonical {
		return caerrors.Errorf(caerrors.Conflict, "name %q already maps to a different certificate", r.Name)
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return caerrors.Wrap(caerrors.StorageUnavailable, "checking for name collision", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO certstore_records
		 (canonical_address, name, key_identifier, cert_der, key_der, alternates_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		canonical, r.Name, r.KeyIdentifier, r.CertDER, r.KeyDER, string(altJSON), s.clk.Now().Unix(),
	)
	if err != nil {
		return caerrors.Wrap(caerrors.StorageUnavailable, "inserting record", err)
	}
	return nil
}

func (s *SQLite) GetCertByAddress(ctx context.Context, canonical string) ([]byte, error) {
	var certDER []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT cert_der FROM certstore_records WHERE canonical_address = ?`, canonical,
	).Scan(&certDER)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, caerrors.Errorf(caerrors.NotFound, "no record at address %q", canonical)
	}
	if err != nil {
		return nil, caerrors.Wrap(caerrors.StorageUnavailable, "querying certificate", err)
	}
	return certDER, nil
}

func (s *SQLite) GetKeyByAddress(ctx context.Context, canonical string) ([]byte, error) {
	var keyDER []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT key_der FROM certstore_records WHERE canonical_address = ?`, canonical,
	).Scan(&keyDER)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, caerrors.Errorf(caerrors.NotFound, "no record at address %q", canonical)
	}
	if err != nil {
		return nil, caerrors.Wrap(caerrors.StorageUnavailable, "querying key", err)
	}
	if keyDER == nil {
		return nil, caerrors.Errorf(caerrors.NoKey, "record at address %q has no private key", canonical)
	}
	return keyDER, nil
}

func (s *SQLite) AddressByName(ctx context.Context, name string) (string, error) {
	var addr string
	err := s.db.QueryRowContext(ctx,
		`SELECT canonical_address FROM certstore_records WHERE name = ?`, name,
	).Scan(&addr)
	if errors.Is(err, sql.ErrNoRows) {
		return "", caerrors.Errorf(caerrors.NotFound, "no record named %q", name)
	}
	if err != nil {
		return "", caerrors.Wrap(caerrors.StorageUnavailable, "querying name index", err)
	}
	return addr, nil
}

func (s *SQLite) AddressByKeyID(ctx context.Context, skiHex string) (string, error) {
	var addr string
	err := s.db.QueryRowContext(ctx,
		`SELECT canonical_address FROM certstore_records WHERE key_identifier = ?`, skiHex,
	).Scan(&addr)
	if errors.Is(err, sql.ErrNoRows) {
		return "", caerrors.Errorf(caerrors.NotFound, "no record with key identifier %q", skiHex)
	}
	if err != nil {
		return "", caerrors.Wrap(caerrors.StorageUnavailable, "querying SKI index", err)
	}
	return addr, nil
}

func (s *SQLite) LookupAlternate(ctx context.Context, alternate string) (string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT canonical_address, alternates_json FROM certstore_records`)
	if err != nil {
		return "", caerrors.Wrap(caerrors.StorageUnavailable, "scanning for alternate address", err)
	}
	defer rows.Close()

	for rows.Next() {
		var canonical, altJSON string
		if err := rows.Scan(&canonical, &altJSON); err != nil {
			return "", caerrors.Wrap(caerrors.StorageUnavailable, "reading alternate index row", err)
		}
		var alts []string
		if err := json.Unmarshal([]byte(altJSON), &alts); err != nil {
			continue
		}
		for _, a := range alts {
			if a == alternate {
				return canonical, nil
			}
		}
	}
	return "", caerrors.Errorf(caerrors.NotFound, "no record at alternate address %q", alternate)
}
