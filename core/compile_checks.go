package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ ConnectionGate = (*Service)(nil)
	_ LifecycleHooks = (*LifecycleHookCoordinator)(nil)
	_ LifecycleHooks = LifecycleHookFunc(nil)
	_ Verifier       = VerifierFunc(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
