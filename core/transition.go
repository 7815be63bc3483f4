package core

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

type TransitionKind string

const (
	// TransitionCredentialSupplied installs a freshly verified credential.
	TransitionCredentialSupplied TransitionKind = "credential_supplied"
	// TransitionLocalExpiry marks a connected record expired without a remote call.
	TransitionLocalExpiry TransitionKind = "local_expiry"
	// TransitionVerified applies a Verifier outcome to an existing credential.
	TransitionVerified TransitionKind = "verified"
	// TransitionDisconnect erases the credential.
	TransitionDisconnect TransitionKind = "disconnect"
)

type TransitionEvent struct {
	Kind        TransitionKind
	Outcome     VerificationOutcome
	AccessToken string
	ExpiresAt   *time.Time
	Reason      string
}

// Transition computes the next record for event at now. It never mutates its
// input and never touches Version; the store assigns versions on write. An
// Unreachable outcome returns the record unchanged.
func Transition(record ConnectionRecord, now time.Time, event TransitionEvent) (ConnectionRecord, error) {
	now = now.UTC()
	next := record.Clone()

	switch event.Kind {
	case TransitionCredentialSupplied:
		if strings.TrimSpace(event.AccessToken) == "" {
			return record, fmt.Errorf("%w: credential supplied without access token", ErrInvalidConnectionStatusTransition)
		}
		if event.Outcome.Result != VerificationValid {
			return record, fmt.Errorf(
				"%w: credential supplied with %s verification",
				ErrInvalidConnectionStatusTransition,
				event.Outcome.Result,
			)
		}
		next.AccessToken = strings.TrimSpace(event.AccessToken)
		next.ExpiresAt = cloneTime(event.ExpiresAt)
		if event.Outcome.ExpiresAt != nil {
			next.ExpiresAt = cloneTime(event.Outcome.ExpiresAt)
		}
		applyValidOutcome(&next, now, event.Outcome)
		return finishTransition(record, next, ConnectionStatusConnected, "", now)

	case TransitionLocalExpiry:
		if record.Status == ConnectionStatusExpired {
			return next, nil
		}
		if !record.PastExpiry(now) {
			return record, fmt.Errorf("%w: credential has not reached its expiry", ErrInvalidConnectionStatusTransition)
		}
		return finishTransition(record, next, ConnectionStatusExpired, firstNonEmpty(event.Reason, "credential expired"), now)

	case TransitionVerified:
		if record.Status != ConnectionStatusConnected && record.Status != ConnectionStatusExpired {
			return record, fmt.Errorf(
				"%w: cannot apply verification to %s record",
				ErrInvalidConnectionStatusTransition,
				record.Status,
			)
		}
		switch event.Outcome.Result {
		case VerificationValid:
			if event.Outcome.ExpiresAt != nil {
				next.ExpiresAt = cloneTime(event.Outcome.ExpiresAt)
			}
			applyValidOutcome(&next, now, event.Outcome)
			return finishTransition(record, next, ConnectionStatusConnected, "", now)
		case VerificationInvalid:
			return finishTransition(record, next, ConnectionStatusInvalid, firstNonEmpty(event.Outcome.Reason, "credential rejected by provider"), now)
		case VerificationUnreachable:
			return next, nil
		default:
			return record, fmt.Errorf("%w: unknown verification result %q", ErrInvalidConnectionStatusTransition, event.Outcome.Result)
		}

	case TransitionDisconnect:
		if record.Status == ConnectionStatusDisconnected {
			return next, nil
		}
		next.AccessToken = ""
		next.ExpiresAt = nil
		next.LinkedAccounts = []string{}
		next.PrimaryAccountID = ""
		next.LastVerifiedAt = nil
		return finishTransition(record, next, ConnectionStatusDisconnected, firstNonEmpty(event.Reason, "disconnected"), now)
	}

	return record, fmt.Errorf("%w: unknown transition %q", ErrInvalidConnectionStatusTransition, event.Kind)
}

func finishTransition(
	previous ConnectionRecord,
	next ConnectionRecord,
	status ConnectionStatus,
	reason string,
	now time.Time,
) (ConnectionRecord, error) {
	if !connectionTransitionAllowed(previous.Status, status) {
		return previous, fmt.Errorf("%w: %s -> %s", ErrInvalidConnectionStatusTransition, previous.Status, status)
	}
	next.Status = status
	next.StatusReason = strings.TrimSpace(reason)
	next.UpdatedAt = now
	if err := next.Validate(); err != nil {
		return previous, err
	}
	return next, nil
}

func applyValidOutcome(next *ConnectionRecord, now time.Time, outcome VerificationOutcome) {
	verifiedAt := now
	next.LastVerifiedAt = &verifiedAt
	next.LinkedAccounts = normalizeAccounts(outcome.LinkedAccounts)
	next.PrimaryAccountID = resolvePrimaryAccount(next.PrimaryAccountID, outcome.PrimaryAccountID, next.LinkedAccounts)
}

// resolvePrimaryAccount keeps a tenant's selection while it stays linked,
// then falls back to the provider suggestion.
func resolvePrimaryAccount(current string, suggested string, linked []string) string {
	current = strings.TrimSpace(current)
	if current != "" && slices.Contains(linked, current) {
		return current
	}
	suggested = strings.TrimSpace(suggested)
	if suggested != "" && slices.Contains(linked, suggested) {
		return suggested
	}
	return ""
}

func connectionTransitionAllowed(current, next ConnectionStatus) bool {
	allowed := map[ConnectionStatus]map[ConnectionStatus]struct{}{
		ConnectionStatusDisconnected: {
			ConnectionStatusConnected: {},
		},
		ConnectionStatusConnected: {
			ConnectionStatusConnected:    {},
			ConnectionStatusExpired:      {},
			ConnectionStatusInvalid:      {},
			ConnectionStatusDisconnected: {},
		},
		ConnectionStatusExpired: {
			ConnectionStatusConnected:    {},
			ConnectionStatusInvalid:      {},
			ConnectionStatusDisconnected: {},
		},
		ConnectionStatusInvalid: {
			ConnectionStatusConnected:    {},
			ConnectionStatusDisconnected: {},
		},
	}
	targets, ok := allowed[current]
	if !ok {
		return false
	}
	_, ok = targets[next]
	return ok
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
