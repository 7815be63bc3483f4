package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ReverifyStale re-verifies connected records whose last verification will
// fall outside the verification TTL within opts.Lead, so request-path gates
// keep hitting the cache. Each record goes through the same gate path as
// EnsureConnected with the cache bypassed. Per-tenant failures are counted,
// not returned.
func (s *Service) ReverifyStale(ctx context.Context, opts SweepOptions) (result SweepResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		fields["scanned"] = result.Scanned
		fields["connected"] = result.Connected
		fields["expired"] = result.Expired
		fields["invalid"] = result.Invalid
		fields["unreachable"] = result.Unreachable
		fields["failed"] = result.Failed
		s.observeOperation(ctx, startedAt, "reverify_stale", err, fields)
	}()

	if err := s.ready(); err != nil {
		return SweepResult{}, s.mapError(err)
	}
	lister, ok := s.recordStore.(RecordLister)
	if !ok {
		return SweepResult{}, s.mapError(fmt.Errorf("core: record store does not support listing stale records"))
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = s.config.Sweep.BatchSize
	}
	lead := opts.Lead
	if lead <= 0 {
		lead = s.config.SweepLead()
	}
	ttl := s.config.VerificationTTL()
	if lead >= ttl {
		lead = 0
	}
	verifiedBefore := s.now().Add(-(ttl - lead))
	fields["limit"] = limit
	fields["verified_before"] = verifiedBefore

	records, err := lister.ListStale(ctx, StaleRecordFilter{
		Status:         ConnectionStatusConnected,
		VerifiedBefore: verifiedBefore,
		Limit:          limit,
	})
	if err != nil {
		return SweepResult{}, s.mapError(err)
	}

	for _, record := range records {
		if ctx != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, s.mapError(ctxErr)
			}
		}
		result.Scanned++
		tenantFields := map[string]any{"tenant_id": record.TenantID}
		_, verifyErr := s.ensureConnected(ctx, record.TenantID, ensureOptions{bypassCache: true}, tenantFields)
		switch {
		case verifyErr == nil:
			result.Connected++
		case errors.Is(verifyErr, ErrExpired):
			result.Expired++
		case errors.Is(verifyErr, ErrInvalid):
			result.Invalid++
		case errors.Is(verifyErr, ErrUnreachable):
			result.Unreachable++
		case errors.Is(verifyErr, ErrNotConnected):
			// Disconnected between listing and verification.
		default:
			result.Failed++
			tenantFields["error"] = verifyErr.Error()
			s.logWarn(ctx, "stale record re-verification failed", tenantFields)
		}
	}
	return result, nil
}
