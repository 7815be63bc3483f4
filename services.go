package adconnect

import "github.com/goliatone/go-adconnect/core"

type Config = core.Config
type GateConfig = core.GateConfig
type SweepConfig = core.SweepConfig

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies

type ConnectionGate = core.ConnectionGate
type ConnectionRecord = core.ConnectionRecord
type ConnectionRecordStore = core.ConnectionRecordStore
type ConnectionStatus = core.ConnectionStatus
type ConnectionStatusView = core.ConnectionStatusView
type ValidatedCredential = core.ValidatedCredential
type Verifier = core.Verifier
type VerificationOutcome = core.VerificationOutcome
type SecretProvider = core.SecretProvider
type LifecycleHooks = core.LifecycleHooks
type StatusChange = core.StatusChange
type GateError = core.GateError

type ConnectRequest = core.ConnectRequest
type SweepOptions = core.SweepOptions
type SweepResult = core.SweepResult

const (
	ConnectionStatusDisconnected = core.ConnectionStatusDisconnected
	ConnectionStatusConnected    = core.ConnectionStatusConnected
	ConnectionStatusExpired      = core.ConnectionStatusExpired
	ConnectionStatusInvalid      = core.ConnectionStatusInvalid
)

var (
	ErrNotConnected    = core.ErrNotConnected
	ErrExpired         = core.ErrExpired
	ErrInvalid         = core.ErrInvalid
	ErrUnreachable     = core.ErrUnreachable
	ErrVersionConflict = core.ErrVersionConflict
)

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithSecretProvider    = core.WithSecretProvider
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithRecordStore       = core.WithRecordStore
	WithVerifier          = core.WithVerifier
	WithLifecycleHooks    = core.WithLifecycleHooks
	WithClock             = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
