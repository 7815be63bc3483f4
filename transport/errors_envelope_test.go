package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/goliatone/go-adconnect/core"
	goerrors "github.com/goliatone/go-errors"
)

func TestRESTAdapter_ResponseLimitReturnsRichError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("12345"))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	adapter.MaxResponseBodyBytes = 4

	_, err := adapter.Do(context.Background(), core.TransportRequest{Method: http.MethodGet, URL: server.URL})
	if err == nil {
		t.Fatalf("expected response body limit error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryExternal {
		t.Fatalf("expected external category, got %q", rich.Category)
	}
	if rich.TextCode != core.ServiceErrorExternalFailure {
		t.Fatalf("expected %q text code, got %q", core.ServiceErrorExternalFailure, rich.TextCode)
	}
	if rich.Code != http.StatusBadGateway {
		t.Fatalf("expected %d code, got %d", http.StatusBadGateway, rich.Code)
	}
}

func TestRESTAdapter_NilReturnsRichError(t *testing.T) {
	var adapter *RESTAdapter
	_, err := adapter.Do(context.Background(), core.TransportRequest{})
	if err == nil {
		t.Fatalf("expected rest adapter nil error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
	if rich.TextCode != core.ServiceErrorInternal {
		t.Fatalf("expected %q text code, got %q", core.ServiceErrorInternal, rich.TextCode)
	}
	if rich.Code != http.StatusInternalServerError {
		t.Fatalf("expected %d code, got %d", http.StatusInternalServerError, rich.Code)
	}
}

func TestRESTAdapter_MissingURLIsBadInput(t *testing.T) {
	_, err := NewRESTAdapter(nil).Do(context.Background(), core.TransportRequest{URL: "  "})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryBadInput || rich.TextCode != core.ServiceErrorBadInput {
		t.Fatalf("expected bad input error, got %q/%q", rich.Category, rich.TextCode)
	}
}

type failingDoer struct{}

func (failingDoer) Do(req *http.Request) (*http.Response, error) {
	return nil, &url.Error{Op: "Get", URL: req.URL.String(), Err: errors.New("connection refused")}
}

func TestRESTAdapter_TransportFailureRedactsCredentials(t *testing.T) {
	adapter := NewRESTAdapter(failingDoer{})
	_, err := adapter.Do(context.Background(), core.TransportRequest{
		URL:   "https://graph.example.test/v23.0/me/adaccounts",
		Query: map[string]string{"access_token": "EAAB-secret-token", "fields": "id"},
	})
	if err == nil {
		t.Fatalf("expected transport failure")
	}
	if strings.Contains(err.Error(), "EAAB-secret-token") {
		t.Fatalf("expected access token to be scrubbed from error text, got %q", err.Error())
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryExternal {
		t.Fatalf("expected external category, got %q", rich.Category)
	}
	recorded, _ := rich.Metadata["url"].(string)
	if strings.Contains(recorded, "EAAB-secret-token") || !strings.Contains(recorded, "fields=id") {
		t.Fatalf("expected redacted url metadata, got %q", recorded)
	}
}

func TestRESTAdapter_MergesQueryAndHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fields") != "account_id,id" || r.URL.Query().Get("existing") != "1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if r.Header.Get("Accept") != "application/json" || r.Header.Get("X-Trace") != "trace_1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	res, err := NewRESTAdapter(server.Client()).Do(context.Background(), core.TransportRequest{
		URL:     server.URL + "/me/adaccounts?existing=1",
		Query:   map[string]string{"fields": "account_id,id"},
		Headers: map[string]string{"X-Trace": "trace_1"},
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.StatusCode)
	}
	if res.Headers["Content-Type"] != "application/json" {
		t.Fatalf("expected flattened headers, got %#v", res.Headers)
	}
}

func TestRedactURL(t *testing.T) {
	parsed, err := url.Parse("https://graph.example.test/me?access_token=secret&fields=id")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	redacted := RedactURL(parsed)
	if strings.Contains(redacted, "secret") {
		t.Fatalf("expected token to be redacted, got %q", redacted)
	}
	if parsed.Query().Get("access_token") != "secret" {
		t.Fatalf("expected input url to be untouched")
	}
}

func TestNewFailure_EnvelopeByClass(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	tests := []struct {
		name     string
		class    failure
		category goerrors.Category
		code     int
		textCode string
	}{
		{name: "misconfigured", class: failureMisconfigured, category: goerrors.CategoryInternal, code: http.StatusInternalServerError, textCode: core.ServiceErrorInternal},
		{name: "bad request", class: failureBadRequest, category: goerrors.CategoryBadInput, code: http.StatusBadRequest, textCode: core.ServiceErrorBadInput},
		{name: "exchange", class: failureExchange, category: goerrors.CategoryExternal, code: http.StatusBadGateway, textCode: core.ServiceErrorExternalFailure},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := newFailure(tc.class, cause, "transport: "+tc.name, map[string]any{"method": http.MethodGet})
			var rich *goerrors.Error
			if !goerrors.As(err, &rich) {
				t.Fatalf("expected go-errors envelope, got %T", err)
			}
			if rich.Category != tc.category || rich.Code != tc.code || rich.TextCode != tc.textCode {
				t.Fatalf("unexpected envelope %q/%d/%q", rich.Category, rich.Code, rich.TextCode)
			}
			if rich.Metadata["adapter"] != KindREST || rich.Metadata["method"] != http.MethodGet {
				t.Fatalf("expected adapter and caller metadata, got %#v", rich.Metadata)
			}
			if !errors.Is(err, cause) {
				t.Fatalf("expected cause to stay reachable")
			}
		})
	}
}
