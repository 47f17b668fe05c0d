package certstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/pickyca/pickyca/caerrors"
)

// CachedIndexes wraps a Backend's three secondary-index lookups
// (AddressByName, AddressByKeyID, LookupAlternate) in a Redis write-through
// cache. Unlike CachedCerts, index entries can in principle move (a backend
// could in theory replace the address a name resolves to, spec.md §9
// "Conflict policy" notwithstanding), so this cache writes on every
// successful Store rather than relying purely on read-through population.
type CachedIndexes struct {
	Backend
	rdb    *redis.Client
	prefix string
}

// NewCachedIndexes wraps backend's index lookups in a Redis cache using
// keys under prefix.
func NewCachedIndexes(backend Backend, rdb *redis.Client, prefix string) *CachedIndexes {
	return &CachedIndexes{Backend: backend, rdb: rdb, prefix: prefix}
}

func (c *CachedIndexes) Store(ctx context.Context, r Record) error {
	if err := c.Backend.Store(ctx, r); err != nil {
		return err
	}

	canonical, err := r.CanonicalAddress()
	if err != nil {
		return err
	}
	alternates, err := computeIndexes(r)
	if err != nil {
		return err
	}

	pipe := c.rdb.Pipeline()
	pipe.Set(ctx, c.nameKey(r.Name), canonical, 0)
	pipe.Set(ctx, c.skiKey(r.KeyIdentifier), canonical, 0)
	for _, alt := range alternates {
		pipe.Set(ctx, c.altKey(alt), canonical, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return caerrors.Wrap(caerrors.StorageUnavailable, "writing through to redis", err)
	}
	return nil
}

func (c *CachedIndexes) nameKey(name string) string      { return c.prefix + "name:" + name }
func (c *CachedIndexes) skiKey(ski string) string         { return c.prefix + "ski:" + ski }
func (c *CachedIndexes) altKey(alternate string) string   { return c.prefix + "alt:" + alternate }

func (c *CachedIndexes) AddressByName(ctx context.Context, name string) (string, error) {
	addr, err := c.rdb.Get(ctx, c.nameKey(name)).Result()
	if err == nil {
		return addr, nil
	}
	if !errors.Is(err, redis.Nil) {
		return "", caerrors.Wrap(caerrors.StorageUnavailable, "reading redis", err)
	}

	addr, err = c.Backend.AddressByName(ctx, name)
	if err != nil {
		return "", err
	}
	c.rdb.Set(ctx, c.nameKey(name), addr, 0)
	return addr, nil
}

func (c *CachedIndexes) AddressByKeyID(ctx context.Context, skiHex string) (string, error) {
	addr, err := c.rdb.Get(ctx, c.skiKey(skiHex)).Result()
	if err == nil {
		return addr, nil
	}
	if !errors.Is(err, redis.Nil) {
		return "", caerrors.Wrap(caerrors.StorageUnavailable, "reading redis", err)
	}

	addr, err = c.Backend.AddressByKeyID(ctx, skiHex)
	if err != nil {
		return "", err
	}
	c.rdb.Set(ctx, c.skiKey(skiHex), addr, 0)
	return addr, nil
}

func (c *CachedIndexes) LookupAlternate(ctx context.Context, alternate string) (string, error) {
	addr, err := c.rdb.Get(ctx, c.altKey(alternate)).Result()
	if err == nil {
		return addr, nil
	}
	if !errors.Is(err, redis.Nil) {
		return "", caerrors.Wrap(caerrors.StorageUnavailable, "reading redis", err)
	}

	addr, err = c.Backend.LookupAlternate(ctx, alternate)
	if err != nil {
		return "", err
	}
	c.rdb.Set(ctx, c.altKey(alternate), addr, 0)
	return addr, nil
}
