package transport

import (
	"maps"
	"net/http"

	"github.com/goliatone/go-adconnect/core"
	goerrors "github.com/goliatone/go-errors"
)

// failure classifies where a Graph exchange broke down. The verifier treats
// every failure as an unreachable provider; the class only shapes the
// envelope callers log.
type failure int

const (
	// failureMisconfigured means the adapter itself is unusable.
	failureMisconfigured failure = iota
	// failureBadRequest means the request could not be built.
	failureBadRequest
	// failureExchange means the provider could not be reached or answered
	// with something unusable.
	failureExchange
)

func (f failure) category() goerrors.Category {
	switch f {
	case failureBadRequest:
		return goerrors.CategoryBadInput
	case failureExchange:
		return goerrors.CategoryExternal
	default:
		return goerrors.CategoryInternal
	}
}

func (f failure) status() int {
	switch f {
	case failureBadRequest:
		return http.StatusBadRequest
	case failureExchange:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (f failure) textCode() string {
	switch f {
	case failureBadRequest:
		return core.ServiceErrorBadInput
	case failureExchange:
		return core.ServiceErrorExternalFailure
	default:
		return core.ServiceErrorInternal
	}
}

// newFailure builds the go-errors envelope for f, wrapping source when set.
// Metadata always names the adapter kind.
func newFailure(f failure, source error, message string, metadata map[string]any) error {
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, f.category())
	} else {
		err = goerrors.Wrap(source, f.category(), message)
	}
	meta := map[string]any{"adapter": KindREST}
	maps.Copy(meta, metadata)
	return err.WithCode(f.status()).WithTextCode(f.textCode()).WithMetadata(meta)
}
