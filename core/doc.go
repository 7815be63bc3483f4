// Package core holds the tenant connection domain: the connection record and
// its state machine, the connection gate that advertising operations call
// before touching the provider, and the contracts storage and verifier
// adapters implement. Core must not depend on provider-specific or
// storage-specific adapters.
package core
