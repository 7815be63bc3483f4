package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"
)

type ensureOptions struct {
	// bypassCache forces a remote verification even when the record is
	// within the verification TTL. Used by the background sweep.
	bypassCache bool
}

// EnsureConnected returns a validated credential for tenantID or a GateError
// explaining why advertising operations must not proceed.
func (s *Service) EnsureConnected(ctx context.Context, tenantID string) (credential ValidatedCredential, err error) {
	startedAt := time.Now().UTC()
	tenantID = strings.TrimSpace(tenantID)
	fields := map[string]any{"tenant_id": tenantID}
	defer func() {
		s.observeOperation(ctx, startedAt, "ensure_connected", err, fields)
	}()

	credential, err = s.ensureConnected(ctx, tenantID, ensureOptions{}, fields)
	if err != nil {
		return ValidatedCredential{}, s.mapError(err)
	}
	return credential, nil
}

func (s *Service) ensureConnected(
	ctx context.Context,
	tenantID string,
	options ensureOptions,
	fields map[string]any,
) (ValidatedCredential, error) {
	if err := s.ready(); err != nil {
		return ValidatedCredential{}, err
	}
	if tenantID == "" {
		return ValidatedCredential{}, s.badInput("core: tenant id is required")
	}

	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		fields["attempts"] = attempt
		credential, err := s.ensureConnectedOnce(ctx, tenantID, options, fields)
		if errors.Is(err, ErrVersionConflict) {
			fields["conflicts"] = attempt
			continue
		}
		return credential, err
	}
	return ValidatedCredential{}, newGateError(
		GateUnreachable,
		tenantID,
		"connection record changed concurrently",
		ErrVersionConflict,
	)
}

func (s *Service) ensureConnectedOnce(
	ctx context.Context,
	tenantID string,
	options ensureOptions,
	fields map[string]any,
) (ValidatedCredential, error) {
	record, err := s.recordStore.Read(ctx, tenantID)
	if err != nil {
		return ValidatedCredential{}, s.unreadableOr(ctx, tenantID, err)
	}
	fields["record_status"] = string(record.Status)
	fields["version"] = record.Version

	if validationErr := record.Validate(); validationErr != nil {
		return ValidatedCredential{}, s.healRecord(ctx, tenantID, record, validationErr)
	}

	now := s.now()
	if !options.bypassCache && record.Fresh(now, s.config.VerificationTTL()) && !record.PastExpiry(now) {
		fields["cache_hit"] = true
		return validatedCredentialFrom(record, true), nil
	}
	fields["cache_hit"] = false

	switch record.Status {
	case ConnectionStatusDisconnected:
		return ValidatedCredential{}, newGateError(GateNotConnected, tenantID, record.StatusReason, nil)
	case ConnectionStatusInvalid:
		return ValidatedCredential{}, newGateError(GateInvalid, tenantID, record.StatusReason, nil)
	}
	if !record.HasAccessToken() {
		return ValidatedCredential{}, newGateError(GateNotConnected, tenantID, "no credential on record", nil)
	}

	if record.PastExpiry(now) {
		if record.Status == ConnectionStatusConnected {
			next, transitionErr := Transition(record, now, TransitionEvent{Kind: TransitionLocalExpiry})
			if transitionErr != nil {
				return ValidatedCredential{}, transitionErr
			}
			if _, persistErr := s.persist(ctx, record, next); persistErr != nil {
				return ValidatedCredential{}, persistErr
			}
		}
		return ValidatedCredential{}, newGateError(GateExpired, tenantID, "credential expired", nil)
	}

	outcome, err := s.verify(ctx, record.AccessToken)
	if err != nil {
		return ValidatedCredential{}, err
	}
	fields["outcome"] = string(outcome.Result)

	switch outcome.Result {
	case VerificationValid, VerificationInvalid:
	default:
		return ValidatedCredential{}, newGateError(GateUnreachable, tenantID, outcome.Reason, nil)
	}

	next, err := Transition(record, now, TransitionEvent{Kind: TransitionVerified, Outcome: outcome})
	if err != nil {
		return ValidatedCredential{}, err
	}
	stored, err := s.persist(ctx, record, next)
	if err != nil {
		return ValidatedCredential{}, err
	}
	fields["version"] = stored.Version
	if stored.Status == ConnectionStatusInvalid {
		return ValidatedCredential{}, newGateError(GateInvalid, tenantID, stored.StatusReason, nil)
	}
	return validatedCredentialFrom(stored, false), nil
}

// Connect installs a freshly obtained credential after one remote
// verification. A rejected or unverifiable credential leaves the stored record
// untouched.
func (s *Service) Connect(ctx context.Context, req ConnectRequest) (credential ValidatedCredential, err error) {
	startedAt := time.Now().UTC()
	tenantID := strings.TrimSpace(req.TenantID)
	fields := map[string]any{"tenant_id": tenantID}
	defer func() {
		s.observeOperation(ctx, startedAt, "connect", err, fields)
	}()

	if err := s.ready(); err != nil {
		return ValidatedCredential{}, s.mapError(err)
	}
	if tenantID == "" {
		return ValidatedCredential{}, s.mapError(s.badInput("core: tenant id is required"))
	}
	accessToken := strings.TrimSpace(req.AccessToken)
	if accessToken == "" {
		return ValidatedCredential{}, s.mapError(s.badInput("core: access token is required"))
	}
	if req.ExpiresAt != nil && s.now().After(req.ExpiresAt.UTC()) {
		return ValidatedCredential{}, s.mapError(newGateError(GateExpired, tenantID, "supplied credential already expired", nil))
	}

	outcome, err := s.verify(ctx, accessToken)
	if err != nil {
		return ValidatedCredential{}, s.mapError(err)
	}
	fields["outcome"] = string(outcome.Result)
	switch outcome.Result {
	case VerificationValid:
	case VerificationInvalid:
		return ValidatedCredential{}, s.mapError(newGateError(GateInvalid, tenantID, outcome.Reason, nil))
	default:
		return ValidatedCredential{}, s.mapError(newGateError(GateUnreachable, tenantID, outcome.Reason, nil))
	}

	event := TransitionEvent{
		Kind:        TransitionCredentialSupplied,
		Outcome:     outcome,
		AccessToken: accessToken,
		ExpiresAt:   req.ExpiresAt,
	}
	stored, err := s.writeWithRetry(ctx, tenantID, fields, true, func(record ConnectionRecord) (ConnectionRecord, bool, error) {
		next, transitionErr := Transition(record, s.now(), event)
		return next, true, transitionErr
	})
	if err != nil {
		return ValidatedCredential{}, s.mapError(err)
	}
	return validatedCredentialFrom(stored, false), nil
}

// Disconnect erases the tenant credential. Disconnecting a tenant that is
// already disconnected succeeds without a write.
func (s *Service) Disconnect(ctx context.Context, tenantID string, reason string) (err error) {
	startedAt := time.Now().UTC()
	tenantID = strings.TrimSpace(tenantID)
	fields := map[string]any{"tenant_id": tenantID, "reason": strings.TrimSpace(reason)}
	defer func() {
		s.observeOperation(ctx, startedAt, "disconnect", err, fields)
	}()

	if err := s.ready(); err != nil {
		return s.mapError(err)
	}
	if tenantID == "" {
		return s.mapError(s.badInput("core: tenant id is required"))
	}

	_, err = s.writeWithRetry(ctx, tenantID, fields, true, func(record ConnectionRecord) (ConnectionRecord, bool, error) {
		if record.Status == ConnectionStatusDisconnected && !record.HasAccessToken() {
			return record, false, nil
		}
		next, transitionErr := Transition(record, s.now(), TransitionEvent{
			Kind:   TransitionDisconnect,
			Reason: firstNonEmpty(reason, "disconnect requested"),
		})
		return next, true, transitionErr
	})
	return s.mapError(err)
}

// SelectPrimaryAccount picks the provider account advertising operations act
// on. The account must be linked to a connected tenant.
func (s *Service) SelectPrimaryAccount(ctx context.Context, tenantID string, accountID string) (view ConnectionStatusView, err error) {
	startedAt := time.Now().UTC()
	tenantID = strings.TrimSpace(tenantID)
	accountID = strings.TrimSpace(accountID)
	fields := map[string]any{"tenant_id": tenantID, "account_id": accountID}
	defer func() {
		s.observeOperation(ctx, startedAt, "select_primary_account", err, fields)
	}()

	if err := s.ready(); err != nil {
		return ConnectionStatusView{}, s.mapError(err)
	}
	if tenantID == "" {
		return ConnectionStatusView{}, s.mapError(s.badInput("core: tenant id is required"))
	}
	if accountID == "" {
		return ConnectionStatusView{}, s.mapError(s.badInput("core: account id is required"))
	}

	stored, err := s.writeWithRetry(ctx, tenantID, fields, false, func(record ConnectionRecord) (ConnectionRecord, bool, error) {
		if record.Status != ConnectionStatusConnected {
			return record, false, gateErrorForStatus(record)
		}
		if !slices.Contains(record.LinkedAccounts, accountID) {
			return record, false, s.badInput("core: account %q is not linked to tenant %q", accountID, tenantID)
		}
		if record.PrimaryAccountID == accountID {
			return record, false, nil
		}
		next := record.Clone()
		next.PrimaryAccountID = accountID
		next.UpdatedAt = s.now()
		return next, true, next.Validate()
	})
	if err != nil {
		return ConnectionStatusView{}, s.mapError(err)
	}
	return statusViewFrom(stored, s.now(), s.config.VerificationTTL()), nil
}

// writeWithRetry reads the record, lets mutate compute the next state and
// persists it by compare-and-swap, retrying once on a version conflict.
// Structurally broken records are replaced by a clean disconnected record
// before mutate sees them.
func (s *Service) writeWithRetry(
	ctx context.Context,
	tenantID string,
	fields map[string]any,
	replacesCredential bool,
	mutate func(record ConnectionRecord) (next ConnectionRecord, write bool, err error),
) (ConnectionRecord, error) {
	for attempt := 1; attempt <= maxWriteAttempts; attempt++ {
		fields["attempts"] = attempt
		record, err := s.recordStore.Read(ctx, tenantID)
		unreadable := false
		if err != nil {
			if !replacesCredential || !errors.Is(err, ErrCredentialUnreadable) {
				return ConnectionRecord{}, s.unreadableOr(ctx, tenantID, err)
			}
			// the stored token is about to be replaced or erased
			s.logWarn(ctx, "overwriting unreadable credential", map[string]any{
				"tenant_id": tenantID,
				"error":     err.Error(),
			})
			unreadable = true
		}
		original := record
		healed := false
		if unreadable {
			fields["credential_unreadable"] = true
		} else if validationErr := record.Validate(); validationErr != nil {
			s.logWarn(ctx, "replacing malformed connection record", map[string]any{
				"tenant_id": tenantID,
				"error":     validationErr.Error(),
			})
			record = healedRecord(tenantID, record)
			healed = true
		}
		fields["record_status"] = string(record.Status)

		next, write, err := mutate(record)
		if err != nil {
			return ConnectionRecord{}, err
		}
		if !write {
			if !healed {
				return record, nil
			}
			next = record
		}
		stored, err := s.persist(ctx, original, next)
		if errors.Is(err, ErrVersionConflict) {
			fields["conflicts"] = attempt
			continue
		}
		if err != nil {
			return ConnectionRecord{}, err
		}
		fields["version"] = stored.Version
		return stored, nil
	}
	return ConnectionRecord{}, newGateError(GateUnreachable, tenantID, "connection record changed concurrently", ErrVersionConflict)
}

// unreadableOr reports a token that could not be decrypted as Unreachable.
// The record is left intact: the usual cause is a key misconfiguration, and
// wiping would force every affected tenant to authenticate again.
func (s *Service) unreadableOr(ctx context.Context, tenantID string, err error) error {
	if !errors.Is(err, ErrCredentialUnreadable) {
		return err
	}
	s.logError(ctx, "stored credential could not be decrypted", map[string]any{
		"tenant_id": tenantID,
		"error":     err.Error(),
	})
	return newGateError(GateUnreachable, tenantID, "stored credential could not be decrypted", err)
}

// healRecord resets a record that violates structural invariants and reports
// the tenant as not connected.
func (s *Service) healRecord(ctx context.Context, tenantID string, record ConnectionRecord, cause error) error {
	s.logWarn(ctx, "resetting malformed connection record", map[string]any{
		"tenant_id": tenantID,
		"version":   record.Version,
		"error":     cause.Error(),
	})
	if _, err := s.persist(ctx, record, healedRecord(tenantID, record)); err != nil {
		return err
	}
	return newGateError(GateNotConnected, tenantID, "stored connection record was reset", nil)
}

func healedRecord(tenantID string, record ConnectionRecord) ConnectionRecord {
	healed := NewDisconnectedRecord(tenantID)
	healed.Version = record.Version
	healed.StatusReason = "malformed record reset"
	return healed
}

func (s *Service) persist(ctx context.Context, previous ConnectionRecord, next ConnectionRecord) (ConnectionRecord, error) {
	next.TenantID = previous.TenantID
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = s.now()
	}
	stored, err := s.recordStore.CompareAndSwap(ctx, previous.TenantID, previous.Version, next)
	if err != nil {
		return ConnectionRecord{}, err
	}
	if stored.Status != previous.Status {
		s.notifyStatusChanged(ctx, StatusChange{
			TenantID: stored.TenantID,
			From:     previous.Status,
			To:       stored.Status,
			Reason:   stored.StatusReason,
			Version:  stored.Version,
			At:       stored.UpdatedAt,
		})
	}
	return stored, nil
}

func (s *Service) verify(ctx context.Context, accessToken string) (VerificationOutcome, error) {
	if s.verifier == nil {
		return VerificationOutcome{}, fmt.Errorf("core: verifier is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	verifyCtx, cancel := context.WithTimeout(ctx, s.config.VerifyTimeout())
	defer cancel()

	// the verifier may ignore ctx; the gate stops waiting at the deadline and
	// the late result is dropped into the buffered channel
	results := make(chan VerificationOutcome, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				results <- UnreachableOutcome(fmt.Sprintf("verifier panicked: %v", recovered))
			}
		}()
		results <- s.verifier.Verify(verifyCtx, accessToken)
	}()

	select {
	case outcome := <-results:
		if outcome.Result == VerificationValid && verifyCtx.Err() != nil {
			return UnreachableOutcome("verification timed out"), nil
		}
		return outcome, nil
	case <-verifyCtx.Done():
		return UnreachableOutcome("verification timed out"), nil
	}
}

func gateErrorForStatus(record ConnectionRecord) error {
	switch record.Status {
	case ConnectionStatusExpired:
		return newGateError(GateExpired, record.TenantID, record.StatusReason, nil)
	case ConnectionStatusInvalid:
		return newGateError(GateInvalid, record.TenantID, record.StatusReason, nil)
	default:
		return newGateError(GateNotConnected, record.TenantID, record.StatusReason, nil)
	}
}
