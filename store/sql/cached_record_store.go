package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-adconnect/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const connectionRecordCacheKeyPrefix = "adconnect::connection_record::v1"

// CachedRecordStore serves reads through a go-repository-cache service. Every
// compare-and-swap invalidates the tenant key, including a lost race, so the
// retry that follows a conflict always reads the database.
type CachedRecordStore struct {
	base  core.ConnectionRecordStore
	cache repositorycache.CacheService
}

// NewRecordCacheService builds the cache behind CachedRecordStore. Invalidation
// only reaches the local process, so another replica's write is seen once the
// entry ages out; ttl must therefore not exceed verificationTTL.
func NewRecordCacheService(ttl time.Duration, verificationTTL time.Duration) (repositorycache.CacheService, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("sqlstore: record cache ttl must be positive")
	}
	if verificationTTL > 0 && ttl > verificationTTL {
		return nil, fmt.Errorf("sqlstore: record cache ttl %s exceeds verification ttl %s", ttl, verificationTTL)
	}
	config := repositorycache.DefaultConfig()
	config.TTL = ttl
	return repositorycache.NewCacheService(config)
}

func NewCachedRecordStore(
	base core.ConnectionRecordStore,
	cacheService repositorycache.CacheService,
) (*CachedRecordStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base record store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: record cache service is required")
	}
	return &CachedRecordStore{base: base, cache: cacheService}, nil
}

// ConnectionRecordCacheKey returns adconnect::connection_record::v1::<tenant>
// with the tenant segment URL-path escaped.
func ConnectionRecordCacheKey(tenantID string) (string, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return "", fmt.Errorf("sqlstore: tenant id is required")
	}
	return connectionRecordCacheKeyPrefix + "::" + url.PathEscape(tenantID), nil
}

func (s *CachedRecordStore) Read(ctx context.Context, tenantID string) (core.ConnectionRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.ConnectionRecord{}, fmt.Errorf("sqlstore: cached record store is not configured")
	}
	cacheKey, err := ConnectionRecordCacheKey(tenantID)
	if err != nil {
		return core.ConnectionRecord{}, err
	}
	tenantID = strings.TrimSpace(tenantID)
	record, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.ConnectionRecord, error) {
		fetched, fetchErr := s.base.Read(ctx, tenantID)
		if fetchErr != nil {
			return core.ConnectionRecord{}, fetchErr
		}
		return fetched.Clone(), nil
	})
	if errors.Is(err, core.ErrCredentialUnreadable) {
		// never cached; the caller still gets the record beside the error
		return s.base.Read(ctx, tenantID)
	}
	if err != nil {
		return core.ConnectionRecord{}, err
	}
	return record.Clone(), nil
}

func (s *CachedRecordStore) CompareAndSwap(
	ctx context.Context,
	tenantID string,
	expectedVersion int64,
	next core.ConnectionRecord,
) (core.ConnectionRecord, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.ConnectionRecord{}, fmt.Errorf("sqlstore: cached record store is not configured")
	}
	cacheKey, err := ConnectionRecordCacheKey(tenantID)
	if err != nil {
		return core.ConnectionRecord{}, err
	}
	stored, casErr := s.base.CompareAndSwap(ctx, tenantID, expectedVersion, next)
	if casErr != nil && !errors.Is(casErr, core.ErrVersionConflict) {
		return core.ConnectionRecord{}, casErr
	}
	if deleteErr := s.cache.Delete(ctx, cacheKey); deleteErr != nil {
		return core.ConnectionRecord{}, errors.Join(casErr, deleteErr)
	}
	if casErr != nil {
		return core.ConnectionRecord{}, casErr
	}
	return stored, nil
}

// ListStale bypasses the cache; the sweep needs the database view.
func (s *CachedRecordStore) ListStale(ctx context.Context, filter core.StaleRecordFilter) ([]core.ConnectionRecord, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached record store is not configured")
	}
	lister, ok := s.base.(core.RecordLister)
	if !ok {
		return nil, fmt.Errorf("sqlstore: base record store does not support listing")
	}
	return lister.ListStale(ctx, filter)
}

var (
	_ core.ConnectionRecordStore = (*CachedRecordStore)(nil)
	_ core.RecordLister          = (*CachedRecordStore)(nil)
)
