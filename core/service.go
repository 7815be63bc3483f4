package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

// maxWriteAttempts bounds compare-and-swap attempts per operation: the first
// write plus one retry against a freshly read record.
const maxWriteAttempts = 2

type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	errorFactory      ErrorFactory
	errorMapper       ErrorMapper
	secretProvider    SecretProvider
	persistenceClient any
	repositoryFactory any
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	recordStore       ConnectionRecordStore
	verifier          Verifier
	hooks             *LifecycleHookCoordinator
	clock             Clock
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	ErrorFactory      ErrorFactory
	ErrorMapper       ErrorMapper
	SecretProvider    SecretProvider
	PersistenceClient any
	RepositoryFactory any
	ConfigProvider    ConfigProvider
	OptionsResolver   OptionsResolver
	RecordStore       ConnectionRecordStore
	Verifier          Verifier
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("adconnect", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("adconnect"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.clock == nil {
		builder.clock = systemClock
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if builder.recordStore == nil && builder.repositoryFactory != nil {
		if storeFactory, ok := builder.repositoryFactory.(RepositoryStoreFactory); ok {
			stores, buildErr := storeFactory.BuildStores(builder.persistenceClient, builder.secretProvider)
			if buildErr != nil {
				return nil, mapBuildError(builder.errorMapper, buildErr)
			}
			if stores != nil {
				builder.recordStore = stores.RecordStore()
			}
		} else if stores, ok := builder.repositoryFactory.(StoreProvider); ok {
			builder.recordStore = stores.RecordStore()
		}
	}
	if builder.recordStore == nil {
		builder.recordStore = NewMemoryRecordStore()
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		errorFactory:      builder.errorFactory,
		errorMapper:       builder.errorMapper,
		secretProvider:    builder.secretProvider,
		persistenceClient: builder.persistenceClient,
		repositoryFactory: builder.repositoryFactory,
		configProvider:    builder.configProvider,
		optionsResolver:   builder.optionsResolver,
		recordStore:       builder.recordStore,
		verifier:          builder.verifier,
		hooks:             NewLifecycleHookCoordinator(builder.hooks...),
		clock:             builder.clock,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		SecretProvider:    s.secretProvider,
		PersistenceClient: s.persistenceClient,
		RepositoryFactory: s.repositoryFactory,
		ConfigProvider:    s.configProvider,
		OptionsResolver:   s.optionsResolver,
		RecordStore:       s.recordStore,
		Verifier:          s.verifier,
	}
}

// GetConnectionStatus returns the stored connection state without contacting
// the provider.
func (s *Service) GetConnectionStatus(ctx context.Context, tenantID string) (view ConnectionStatusView, err error) {
	startedAt := time.Now().UTC()
	tenantID = strings.TrimSpace(tenantID)
	fields := map[string]any{"tenant_id": tenantID}
	defer func() {
		s.observeOperation(ctx, startedAt, "get_connection_status", err, fields)
	}()

	if err := s.ready(); err != nil {
		return ConnectionStatusView{}, s.mapError(err)
	}
	if tenantID == "" {
		return ConnectionStatusView{}, s.mapError(s.badInput("core: tenant id is required"))
	}
	record, err := s.recordStore.Read(ctx, tenantID)
	if err != nil {
		return ConnectionStatusView{}, s.mapError(s.unreadableOr(ctx, tenantID, err))
	}
	fields["record_status"] = string(record.Status)
	return statusViewFrom(record, s.now(), s.config.VerificationTTL()), nil
}

func (s *Service) ready() error {
	if s == nil {
		return fmt.Errorf("core: service is nil")
	}
	if s.recordStore == nil {
		return fmt.Errorf("core: record store is not configured")
	}
	return nil
}

func (s *Service) now() time.Time {
	if s == nil || s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func (s *Service) badInput(message string, args ...any) error {
	factory := goerrors.New
	if s != nil && s.errorFactory != nil {
		factory = s.errorFactory
	}
	return factory(fmt.Sprintf(message, args...), goerrors.CategoryBadInput).
		WithTextCode(ServiceErrorBadInput)
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
