package certstore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jmhodges/clock"

	"github.com/pickyca/pickyca/caerrors"
)

// mongoDoc is the document shape stored in the certstore_records
// collection, keyed by _id = canonical address.
type mongoDoc struct {
	ID            string   `bson:"_id"`
	Name          string   `bson:"name"`
	KeyIdentifier string   `bson:"key_identifier"`
	CertDER       []byte   `bson:"cert_der"`
	KeyDER        []byte   `bson:"key_der,omitempty"`
	Alternates    []string `bson:"alternates"`
	CreatedAt     int64    `bson:"created_at"`
}

// Mongo is a Backend backed by a single MongoDB collection, driven with
// go.mongodb.org/mongo-driver, matching spec.md §6's "backend: mongodb"
// default and this package's default-backend parity with it.
type Mongo struct {
	coll *mongo.Collection
	clk  clock.Clock
}

// NewMongo connects to uri and returns a Mongo backend writing into
// database.certstore_records. It also ensures a unique index on
// key_identifier, a non-unique index on name (name collisions are caught by
// Store's pre-check instead), and a non-unique multikey index on
// alternates, so the
// three secondary indexes spec.md §4.2 requires are backed by real indexes
// rather than collection scans.
func NewMongo(ctx context.Context, uri, database string, clk clock.Clock) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, caerrors.Wrap(caerrors.StorageUnavailable, "connecting to mongodb", err)
	}
	coll := client.Database(database).Collection("certstore_records")

	_, err = coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}}},
		{Keys: bson.D{{Key: "key_identifier", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "alternates", Value: 1}}},
	})
	if err != nil {
		return nil, caerrors.Wrap(caerrors.StorageUnavailable, "creating mongodb indexes", err)
	}

	return &Mongo{coll: coll, clk: clk}, nil
}

func (m *Mongo) Health(ctx context.Context) error {
	if err := m.coll.Database().Client().Ping(ctx, nil); err != nil {
		return caerrors.Wrap(caerrors.StorageUnavailable, "pinging mongodb", err)
	}
	return nil
}

func (m *Mongo) Store(ctx context.Context, r Record) error {
	canonical, err := r.CanonicalAddress()
	if err != nil {
		return err
	}
	alternates, err := computeIndexes(r)
	if err != nil {
		return err
	}

	var existing mongoDoc
	err = m.coll.FindOne(ctx, bson.M{"_id": canonical}).Decode(&existing)
	if err == nil {
		return nil
	}
	if err != mongo.ErrNoDocuments {
		return caerrors.Wrap(caerrors.StorageUnavailable, "checking for existing document", err)
	}

	var nameOwner mongoDoc
	err = m.coll.FindOne(ctx, bson.M{"name": r.Name}).Decode(&nameOwner)
	if err == nil && nameOwner.ID != canonical {
		return caerrors.Errorf(caerrors.Conflict, "name %q already maps to a different certificate", r.Name)
	}
	if err != nil && err != mongo.ErrNoDocuments {
		return caerrors.Wrap(caerrors.StorageUnavailable, "checking for name collision", err)
	}

	doc := mongoDoc{
		ID:            canonical,
		Name:          r.Name,
		KeyIdentifier: r.KeyIdentifier,
		CertDER:       r.CertDER,
		KeyDER:        r.KeyDER,
		Alternates:    alternates,
		CreatedAt:     m.clk.Now().Unix(),
	}
	if _, err := m.coll.InsertOne(ctx, doc); err != nil {
		return caerrors.Wrap(caerrors.StorageUnavailable, "inserting document", err)
	}
	return nil
}

func (m *Mongo) findOne(ctx context.Context, filter bson.M, notFoundMsg string) (*mongoDoc, error) {
	var doc mongoDoc
	err := m.coll.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, caerrors.New(caerrors.NotFound, notFoundMsg, nil)
	}
	if err != nil {
		return nil, caerrors.Wrap(caerrors.StorageUnavailable, "querying mongodb", err)
	}
	return &doc, nil
}

func (m *Mongo) GetCertByAddress(ctx context.Context, canonical string) ([]byte, error) {
	doc, err := m.findOne(ctx, bson.M{"_id": canonical}, "no record at address "+canonical)
	if err != nil {
		return nil, err
	}
	return doc.CertDER, nil
}

func (m *Mongo) GetKeyByAddress(ctx context.Context, canonical string) ([]byte, error) {
	doc, err := m.findOne(ctx, bson.M{"_id": canonical}, "no record at address "+canonical)
	if err != nil {
		return nil, err
	}
	if doc.KeyDER == nil {
		return nil, caerrors.Errorf(caerrors.NoKey, "record at address %q has no private key", canonical)
	}
	return doc.KeyDER, nil
}

func (m *Mongo) AddressByName(ctx context.Context, name string) (string, error) {
	doc, err := m.findOne(ctx, bson.M{"name": name}, "no record named "+name)
	if err != nil {
		return "", err
	}
	return doc.ID, nil
}

func (m *Mongo) AddressByKeyID(ctx context.Context, skiHex string) (string, error) {
	doc, err := m.findOne(ctx, bson.M{"key_identifier": skiHex}, "no record with key identifier "+skiHex)
	if err != nil {
		return "", err
	}
	return doc.ID, nil
}

func (m *Mongo) LookupAlternate(ctx context.Context, alternate string) (string, error) {
	doc, err := m.findOne(ctx, bson.M{"alternates": alternate}, "no record at alternate address "+alternate)
	if err != nil {
		return "", err
	}
	return doc.ID, nil
}
