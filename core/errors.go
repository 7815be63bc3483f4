package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorBadInput            = "ADCONNECT_BAD_INPUT"
	ServiceErrorNotConnected        = "ADCONNECT_NOT_CONNECTED"
	ServiceErrorCredentialExpired   = "ADCONNECT_CREDENTIAL_EXPIRED"
	ServiceErrorCredentialInvalid   = "ADCONNECT_CREDENTIAL_INVALID"
	ServiceErrorProviderUnreachable = "ADCONNECT_PROVIDER_UNREACHABLE"
	ServiceErrorUnauthorized        = "ADCONNECT_UNAUTHORIZED"
	ServiceErrorForbidden           = "ADCONNECT_FORBIDDEN"
	ServiceErrorNotFound            = "ADCONNECT_NOT_FOUND"
	ServiceErrorConflict            = "ADCONNECT_CONFLICT"
	ServiceErrorRateLimited         = "ADCONNECT_RATE_LIMITED"
	ServiceErrorOperationFailed     = "ADCONNECT_OPERATION_FAILED"
	ServiceErrorExternalFailure     = "ADCONNECT_EXTERNAL_FAILURE"
	ServiceErrorInternal            = "ADCONNECT_INTERNAL_ERROR"
)

var (
	ErrNotConnected = errors.New("core: advertising account is not connected")
	ErrExpired      = errors.New("core: advertising credential expired")
	ErrInvalid      = errors.New("core: advertising credential rejected by provider")
	ErrUnreachable  = errors.New("core: advertising provider unreachable")
)

type GateErrorKind string

const (
	GateNotConnected GateErrorKind = "not_connected"
	GateExpired      GateErrorKind = "expired"
	GateInvalid      GateErrorKind = "invalid"
	GateUnreachable  GateErrorKind = "unreachable"
)

// GateError is the typed failure returned when a tenant connection cannot be
// used. Only GateUnreachable is retryable; every other kind needs the tenant
// to authenticate again.
type GateError struct {
	Kind     GateErrorKind
	TenantID string
	Reason   string
	Cause    error
}

func (e *GateError) Error() string {
	if e == nil {
		return ""
	}
	message := e.sentinel().Error()
	if reason := strings.TrimSpace(e.Reason); reason != "" {
		message += ": " + reason
	}
	if e.Cause != nil {
		message += ": " + e.Cause.Error()
	}
	return message
}

func (e *GateError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (e *GateError) Is(target error) bool {
	if e == nil {
		return false
	}
	return target == e.sentinel()
}

func (e *GateError) Retryable() bool {
	return e != nil && e.Kind == GateUnreachable
}

func (e *GateError) ReauthRequired() bool {
	return e != nil && e.Kind != GateUnreachable
}

func (e *GateError) sentinel() error {
	switch e.Kind {
	case GateExpired:
		return ErrExpired
	case GateInvalid:
		return ErrInvalid
	case GateUnreachable:
		return ErrUnreachable
	default:
		return ErrNotConnected
	}
}

func newGateError(kind GateErrorKind, tenantID string, reason string, cause error) *GateError {
	return &GateError{
		Kind:     kind,
		TenantID: strings.TrimSpace(tenantID),
		Reason:   strings.TrimSpace(reason),
		Cause:    cause,
	}
}

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var gateErr *GateError
	if errors.As(err, &gateErr) {
		return gateServiceError(gateErr)
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrVersionConflict):
		return ensureServiceErrorEnvelope(
			goerrors.Wrap(err, goerrors.CategoryConflict, err.Error()).WithTextCode(ServiceErrorConflict),
		)
	case errors.Is(err, ErrInvalidConnectionStatusTransition):
		return ensureServiceErrorEnvelope(
			goerrors.Wrap(err, goerrors.CategoryConflict, err.Error()).WithTextCode(ServiceErrorConflict),
		)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newServiceError(err.Error(), goerrors.CategoryRateLimit, ServiceErrorRateLimited)
	case strings.Contains(msg, "required"), strings.Contains(msg, "not linked"), strings.Contains(msg, "must be"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func gateServiceError(gateErr *GateError) *goerrors.Error {
	category := goerrors.CategoryAuth
	code := http.StatusUnauthorized
	textCode := ServiceErrorNotConnected
	switch gateErr.Kind {
	case GateExpired:
		textCode = ServiceErrorCredentialExpired
	case GateInvalid:
		textCode = ServiceErrorCredentialInvalid
	case GateUnreachable:
		category = goerrors.CategoryExternal
		code = http.StatusServiceUnavailable
		textCode = ServiceErrorProviderUnreachable
	}
	mapped := goerrors.Wrap(gateErr, category, gateErr.Error()).
		WithCode(code).
		WithTextCode(textCode)
	mapped.WithMetadata(map[string]any{
		"tenant_id":       gateErr.TenantID,
		"gate_error":      string(gateErr.Kind),
		"reauth_required": gateErr.ReauthRequired(),
		"retryable":       gateErr.Retryable(),
	})
	return mapped
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ServiceErrorBadInput
	case goerrors.CategoryNotFound:
		return ServiceErrorNotFound
	case goerrors.CategoryAuth:
		return ServiceErrorUnauthorized
	case goerrors.CategoryAuthz:
		return ServiceErrorForbidden
	case goerrors.CategoryConflict:
		return ServiceErrorConflict
	case goerrors.CategoryRateLimit:
		return ServiceErrorRateLimited
	case goerrors.CategoryOperation:
		return ServiceErrorOperationFailed
	case goerrors.CategoryExternal:
		return ServiceErrorExternalFailure
	default:
		return ServiceErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
