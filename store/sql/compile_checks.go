package sqlstore

import "github.com/goliatone/go-adconnect/core"

var (
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
