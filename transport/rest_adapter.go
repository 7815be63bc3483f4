package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-adconnect/core"
)

const KindREST = "rest"

const (
	defaultRESTClientTimeout             = 30 * time.Second
	defaultRESTResponseBodyLimit   int64 = 1 << 20 // 1 MiB
	redactedQueryValue                   = "[REDACTED]"
)

// credentialQueryKeys never appear unredacted in error metadata.
var credentialQueryKeys = []string{"access_token", "appsecret_proof", "input_token", "client_secret"}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RESTAdapter performs a single HTTP exchange. It never retries; callers
// decide what a failed exchange means.
type RESTAdapter struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

func NewRESTAdapter(client HTTPDoer) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultRESTClientTimeout}
	}
	return &RESTAdapter{
		Client:               client,
		DefaultHeaders:       map[string]string{"Accept": "application/json"},
		MaxResponseBodyBytes: defaultRESTResponseBodyLimit,
	}
}

func (*RESTAdapter) Kind() string {
	return KindREST
}

func (a *RESTAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.Client == nil {
		return core.TransportResponse{}, newFailure(failureMisconfigured, nil, "transport: rest adapter requires an http client", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		return core.TransportResponse{}, newFailure(failureBadRequest, nil, "transport: request url is required", nil)
	}
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return core.TransportResponse{}, newFailure(failureBadRequest, err, "transport: invalid request url", nil)
	}

	query := parsedURL.Query()
	for key, value := range req.Query {
		if strings.TrimSpace(key) == "" {
			continue
		}
		query.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	parsedURL.RawQuery = query.Encode()
	safeURL := RedactURL(parsedURL)

	requestCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	httpReq, err := http.NewRequestWithContext(requestCtx, method, parsedURL.String(), bytes.NewReader(req.Body))
	if err != nil {
		return core.TransportResponse{}, newFailure(failureBadRequest, err, "transport: create http request", map[string]any{
			"method": method,
			"url":    safeURL,
		})
	}
	for key, value := range a.DefaultHeaders {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	for key, value := range req.Headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		httpReq.Header.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}

	startedAt := time.Now().UTC()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return core.TransportResponse{}, newFailure(failureExchange, scrubURLError(err), "transport: execute http request", map[string]any{
			"method": method,
			"url":    safeURL,
		})
	}
	defer httpRes.Body.Close()

	maxBodyBytes := resolveResponseBodyLimit(req.MaxResponseBodyBytes, a.MaxResponseBodyBytes)
	body, err := io.ReadAll(io.LimitReader(httpRes.Body, maxBodyBytes+1))
	if err != nil {
		return core.TransportResponse{}, newFailure(failureExchange, err, "transport: read response body", map[string]any{
			"status_code": httpRes.StatusCode,
		})
	}
	if int64(len(body)) > maxBodyBytes {
		return core.TransportResponse{}, newFailure(failureExchange, nil, fmt.Sprintf("transport: response body exceeds limit of %d bytes", maxBodyBytes), map[string]any{
			"status_code":      httpRes.StatusCode,
			"response_limit_b": maxBodyBytes,
		})
	}

	return core.TransportResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       body,
		Metadata: map[string]any{
			"duration_ms": time.Since(startedAt).Milliseconds(),
			"kind":        KindREST,
		},
	}, nil
}

// RedactURL renders target with credential query parameters masked.
func RedactURL(target *url.URL) string {
	if target == nil {
		return ""
	}
	copied := *target
	query := copied.Query()
	for _, key := range credentialQueryKeys {
		if query.Has(key) {
			query.Set(key, redactedQueryValue)
		}
	}
	copied.RawQuery = query.Encode()
	return copied.String()
}

// scrubURLError drops the request URL from *url.Error so the access token
// carried in the query string cannot reach logs through the error text.
func scrubURLError(err error) error {
	urlErr, ok := err.(*url.Error)
	if !ok {
		return err
	}
	parsed, parseErr := url.Parse(urlErr.URL)
	if parseErr != nil {
		return &url.Error{Op: urlErr.Op, URL: "", Err: urlErr.Err}
	}
	return &url.Error{Op: urlErr.Op, URL: RedactURL(parsed), Err: urlErr.Err}
}

func flattenHeaders(headers http.Header) map[string]string {
	if len(headers) == 0 {
		return map[string]string{}
	}
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		if len(values) == 0 {
			flat[key] = ""
			continue
		}
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

func resolveResponseBodyLimit(requestLimit int64, adapterLimit int64) int64 {
	if requestLimit > 0 {
		return requestLimit
	}
	if adapterLimit > 0 {
		return adapterLimit
	}
	return defaultRESTResponseBodyLimit
}

var _ core.TransportAdapter = (*RESTAdapter)(nil)
