package sqlstore

import (
	"fmt"

	"github.com/goliatone/go-adconnect/core"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/uptrace/bun"
)

type RepositoryFactory struct {
	db    *bun.DB
	cache repositorycache.CacheService

	recordStore *RecordStore
	cachedStore *CachedRecordStore
}

type FactoryOption func(*RepositoryFactory)

// WithRecordCache serves tenant reads through cacheService. Build it with
// NewRecordCacheService so entries expire within the verification TTL.
func WithRecordCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cache = cacheService
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(
	client *persistence.Client,
	secrets core.SecretProvider,
	opts ...FactoryOption,
) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client, secrets); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, secrets core.SecretProvider, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db, secrets); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any, secrets core.SecretProvider) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.recordStore != nil {
		return f, nil
	}
	recordStore, err := NewRecordStore(f.db, secrets)
	if err != nil {
		return nil, err
	}
	f.recordStore = recordStore
	if f.cache != nil {
		cachedStore, err := NewCachedRecordStore(recordStore, f.cache)
		if err != nil {
			return nil, err
		}
		f.cachedStore = cachedStore
	}
	return f, nil
}

// RecordStore returns the cached store when a cache service is configured.
func (f *RepositoryFactory) RecordStore() core.ConnectionRecordStore {
	if f == nil {
		return nil
	}
	if f.cachedStore != nil {
		return f.cachedStore
	}
	if f.recordStore == nil {
		return nil
	}
	return f.recordStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
