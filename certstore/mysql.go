package certstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmhodges/clock"
	"github.com/letsencrypt/borp"

	"github.com/pickyca/pickyca/caerrors"
)

// mysqlRow is the row shape borp maps the certstore_records table to.
// Secondary indexes are plain columns with unique/non-unique keys rather
// than separate tables: at this scale a single table with three indexed
// columns satisfies spec.md §4.2's "three secondary indexes" requirement
// without the join overhead of a normalized schema.
type mysqlRow struct {
	CanonicalAddress string `db:"canonical_address"`
	Name             string `db:"name"`
	KeyIdentifier    string `db:"key_identifier"`
	CertDER          []byte `db:"cert_der"`
	KeyDER           []byte `db:"key_der"`
	AlternatesJSON   string `db:"alternates_json"`
	CreatedAt        int64  `db:"created_at"`
}

// MySQL is a Backend backed by a MySQL table, mapped with borp (boulder's
// maintained fork of gorp) over the database/sql driver
// github.com/go-sql-driver/mysql.
type MySQL struct {
	dbMap *borp.DbMap
	clk   clock.Clock
}

// NewMySQL opens dsn and returns a MySQL backend. The schema
// (certstore_records) is assumed to already exist; this backend performs no
// DDL, matching spec.md §6's "MUST NOT require schema initialisation beyond
// what their driver performs".
func NewMySQL(dsn string, clk clock.Clock) (*MySQL, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, caerrors.Wrap(caerrors.StorageUnavailable, "opening mysql connection", err)
	}

	dbMap := &borp.DbMap{Db: db, Dialect: borp.MySQLDialect{Engine: "InnoDB", Encoding: "UTF8"}}
	dbMap.AddTableWithName(mysqlRow{}, "certstore_records").SetKeys(false, "CanonicalAddress")

	return &MySQL{dbMap: dbMap, clk: clk}, nil
}

func (s *MySQL) Health(ctx context.Context) error {
	if err := s.dbMap.Db.PingContext(ctx); err != nil {
		return caerrors.Wrap(caerrors.StorageUnavailable, "pinging mysql", err)
	}
	return nil
}

func (s *MySQL) Store(ctx context.Context, r Record) error {
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

	var existing mysqlRow
	err = s.dbMap.WithContext(ctx).SelectOne(&existing,
		"SELECT * FROM certstore_records WHERE canonical_address = ?", canonical)
	if err == nil {
		return nil // identical record already stored; no-op success.
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return caerrors.Wrap(caerrors.StorageUnavailable, "checking for existing record", err)
	}

	var nameCollision mysqlRow
	err = s.dbMap.WithContext(ctx).SelectOne(&nameCollision,
		"SELECT * FROM certstore_records WHERE name = ?", r.Name)
	if err == nil && nameCollision.CanonicalAddress != canonical {
		return caerrors.Errorf(caerrors.Conflict, "name %q already maps to a different certificate", r.Name)
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return caerrors.Wrap(caerrors.StorageUnavailable, "checking for name collision", err)
	}

	row := &mysqlRow{
		CanonicalAddress: canonical,
		Name:             r.Name,
		KeyIdentifier:    r.KeyIdentifier,
		CertDER:          r.CertDER,
		KeyDER:           r.KeyDER,
		AlternatesJSON:   string(altJSON),
		CreatedAt:        s.clk.Now().Unix(),
	}
	if err := s.dbMap.WithContext(ctx).Insert(row); err != nil {
		return caerrors.Wrap(caerrors.StorageUnavailable, "inserting record", err)
	}
	return nil
}

func (s *MySQL) rowByColumn(ctx context.Context, column, value string) (*mysqlRow, error) {
	var row mysqlRow
	err := s.dbMap.WithContext(ctx).SelectOne(&row,
		"SELECT * FROM certstore_records WHERE "+column+" = ?", value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, caerrors.Errorf(caerrors.NotFound, "no record with %s = %q", column, value)
	}
	if err != nil {
		return nil, caerrors.Wrap(caerrors.StorageUnavailable, "querying "+column, err)
	}
	return &row, nil
}

func (s *MySQL) GetCertByAddress(ctx context.Context, canonical string) ([]byte, error) {
	row, err := s.rowByColumn(ctx, "canonical_address", canonical)
	if err != nil {
		return nil, err
	}
	return row.CertDER, nil
}

func (s *MySQL) GetKeyByAddress(ctx context.Context, canonical string) ([]byte, error) {
	row, err := s.rowByColumn(ctx, "canonical_address", canonical)
	if err != nil {
		return nil, err
	}
	if row.KeyDER == nil {
		return nil, caerrors.Errorf(caerrors.NoKey, "record at address %q has no private key", canonical)
	}
	return row.KeyDER, nil
}

func (s *MySQL) AddressByName(ctx context.Context, name string) (string, error) {
	row, err := s.rowByColumn(ctx, "name", name)
	if err != nil {
		return "", err
	}
	return row.CanonicalAddress, nil
}

func (s *MySQL) AddressByKeyID(ctx context.Context, skiHex string) (string, error) {
	row, err := s.rowByColumn(ctx, "key_identifier", skiHex)
	if err != nil {
		return "", err
	}
	return row.CanonicalAddress, nil
}

func (s *MySQL) LookupAlternate(ctx context.Context, alternate string) (string, error) {
	rows, err := s.dbMap.WithContext(ctx).Select(new(mysqlRow), "SELECT * FROM certstore_records")
	if err != nil {
		return "", caerrors.Wrap(caerrors.StorageUnavailable, "scanning for alternate address", err)
	}
	for _, raw := range rows {
		row := raw.(*mysqlRow)
		var alts []string
		if err := json.Unmarshal([]byte(row.AlternatesJSON), &alts); err != nil {
			continue
		}
		for _, a := range alts {
			if a == alternate {
				return row.CanonicalAddress, nil
			}
		}
	}
	return "", caerrors.Errorf(caerrors.NotFound, "no record at alternate address %q", alternate)
}
