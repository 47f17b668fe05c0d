package certstore

import (
	"context"
	"fmt"

	"github.com/golang/groupcache"

	"github.com/pickyca/pickyca/caerrors"
)

// CachedCerts wraps a Backend's certificate-DER lookup in a groupcache
// group. Safe because records are immutable after insertion (spec.md §3
// Lifecycle): a content-addressed, write-once record is exactly the shape
// groupcache is built for. It never caches KeyDER (spec.md §5 "no
// in-process key cache"), so GetKeyByAddress always goes straight to the
// backend.
type CachedCerts struct {
	Backend
	group *groupcache.Group
}

// NewCachedCerts wraps backend's cert-DER reads in a groupcache group named
// name, sized to sizeBytes.
func NewCachedCerts(backend Backend, name string, sizeBytes int64) *CachedCerts {
	c := &CachedCerts{Backend: backend}
	c.group = groupcache.NewGroup(name, sizeBytes, groupcache.GetterFunc(
		func(ctx context.Context, key string, dest groupcache.Sink) error {
			der, err := backend.GetCertByAddress(ctx, key)
			if err != nil {
				return err
			}
			return dest.SetBytes(der)
		},
	))
	return c
}

func (c *CachedCerts) GetCertByAddress(ctx context.Context, canonical string) ([]byte, error) {
	var der []byte
	if err := c.group.Get(ctx, canonical, groupcache.AllocatingByteSliceSink(&der)); err != nil {
		if caerrors.Is(err, caerrors.NotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("groupcache lookup: %w", err)
	}
	return der, nil
}
