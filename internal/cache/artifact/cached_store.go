package artifact

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	artifactrepo "variantforge/internal/repository/artifact"
)

type Store = artifactrepo.Store

type CacheConfig struct {
	BlobTTL        time.Duration
	BlobMaxEntries int
	URLTTL         time.Duration
	URLMaxEntries  int
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		BlobTTL:        5 * time.Minute,
		BlobMaxEntries: 1024,
		URLTTL:         5 * time.Minute,
		URLMaxEntries:  1024,
	}
}

type MetricsSnapshot struct {
	BlobHits     uint64
	BlobMisses   uint64
	URLHits      uint64
	URLMisses    uint64
	OriginWrites uint64
}

// CachedStore is a read-through decorator over an artifact origin. Writes go
// to the origin first; the cache is only updated after the origin accepted
// the blob, so a failed Put never leaves a phantom cached artifact.
type CachedStore struct {
	origin Store

	blobCache *expirable.LRU[string, []byte]
	urlCache  *expirable.LRU[string, string]

	blobHits     atomic.Uint64
	blobMisses   atomic.Uint64
	urlHits      atomic.Uint64
	urlMisses    atomic.Uint64
	originWrites atomic.Uint64
}

func NewCachedStore(origin Store, cfg CacheConfig) *CachedStore {
	def := DefaultCacheConfig()
	if cfg.BlobTTL <= 0 {
		cfg.BlobTTL = def.BlobTTL
	}
	if cfg.BlobMaxEntries <= 0 {
		cfg.BlobMaxEntries = def.BlobMaxEntries
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = def.URLTTL
	}
	if cfg.URLMaxEntries <= 0 {
		cfg.URLMaxEntries = def.URLMaxEntries
	}
	return &CachedStore{
		origin:    origin,
		blobCache: expirable.NewLRU[string, []byte](cfg.BlobMaxEntries, nil, cfg.BlobTTL),
		urlCache:  expirable.NewLRU[string, string](cfg.URLMaxEntries, nil, cfg.URLTTL),
	}
}

func (c *CachedStore) Put(ctx context.Context, path string, content []byte) (string, error) {
	url, err := c.origin.Put(ctx, path, content)
	if err != nil {
		return "", err
	}
	c.originWrites.Add(1)
	c.blobCache.Add(path, append([]byte(nil), content...))
	c.urlCache.Add(path, url)
	return url, nil
}

func (c *CachedStore) Get(ctx context.Context, path string) ([]byte, error) {
	if blob, ok := c.blobCache.Get(path); ok {
		c.blobHits.Add(1)
		return append([]byte(nil), blob...), nil
	}
	c.blobMisses.Add(1)
	blob, err := c.origin.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	c.blobCache.Add(path, append([]byte(nil), blob...))
	return blob, nil
}

func (c *CachedStore) GetURL(ctx context.Context, path string) (string, error) {
	if url, ok := c.urlCache.Get(path); ok {
		c.urlHits.Add(1)
		return url, nil
	}
	c.urlMisses.Add(1)
	url, err := c.origin.GetURL(ctx, path)
	if err != nil {
		return "", err
	}
	c.urlCache.Add(path, url)
	return url, nil
}

func (c *CachedStore) Metrics() MetricsSnapshot {
	return MetricsSnapshot{
		BlobHits:     c.blobHits.Load(),
		BlobMisses:   c.blobMisses.Load(),
		URLHits:      c.urlHits.Load(),
		URLMisses:    c.urlMisses.Load(),
		OriginWrites: c.originWrites.Load(),
	}
}
