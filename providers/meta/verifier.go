// Package meta verifies advertising credentials against the Meta Graph API.
//
// A verification is one GET of /me/adaccounts with the access token. The
// response is classified as Valid (with the ad accounts the token can act
// on), Invalid (the Graph API rejected the token) or Unreachable (anything
// transient). The verifier never retries.
package meta

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/goliatone/go-adconnect/core"
	"github.com/goliatone/go-adconnect/transport"
	"golang.org/x/time/rate"
)

// transientErrorCodes are Graph API error codes for throttling and
// temporary service trouble.
var transientErrorCodes = map[int]struct{}{
	1:   {},
	2:   {},
	4:   {},
	17:  {},
	32:  {},
	341: {},
	613: {},
}

type Option func(*Verifier)

// WithTransport replaces the default REST adapter.
func WithTransport(adapter core.TransportAdapter) Option {
	return func(v *Verifier) {
		if adapter != nil {
			v.transport = adapter
		}
	}
}

// WithHTTPClient sends requests through client using the REST adapter.
func WithHTTPClient(client transport.HTTPDoer) Option {
	return func(v *Verifier) {
		if client != nil {
			v.transport = transport.NewRESTAdapter(client)
		}
	}
}

// WithLimiter shares an outbound limiter across verifiers.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(v *Verifier) {
		if limiter != nil {
			v.limiter = limiter
		}
	}
}

type Verifier struct {
	config    Config
	transport core.TransportAdapter
	limiter   *rate.Limiter
}

func New(cfg Config, opts ...Option) (*Verifier, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	verifier := &Verifier{
		config:    cfg,
		transport: transport.NewRESTAdapter(nil),
	}
	if cfg.RequestsPerSecond > 0 {
		verifier.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(verifier)
		}
	}
	return verifier, nil
}

func (v *Verifier) Config() Config {
	if v == nil {
		return Config{}
	}
	return v.config
}

// Verify performs a single Graph API call and classifies the result.
func (v *Verifier) Verify(ctx context.Context, accessToken string) core.VerificationOutcome {
	if v == nil || v.transport == nil {
		return core.UnreachableOutcome("meta verifier is not configured")
	}
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return core.InvalidOutcome("access token is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if v.limiter != nil {
		if err := v.limiter.Wait(ctx); err != nil {
			return core.UnreachableOutcome("outbound rate limit: " + err.Error())
		}
	}

	query := map[string]string{
		"fields":       "account_id,id",
		"limit":        strconv.Itoa(v.config.AccountLimit),
		"access_token": accessToken,
	}
	if v.config.AppSecret != "" {
		query["appsecret_proof"] = appSecretProof(v.config.AppSecret, accessToken)
	}

	res, err := v.transport.Do(ctx, core.TransportRequest{
		Method:  http.MethodGet,
		URL:     v.config.adAccountsURL(),
		Query:   query,
		Timeout: v.config.RequestTimeout,
	})
	if err != nil {
		return core.UnreachableOutcome("graph api request failed: " + err.Error())
	}
	return classifyResponse(res)
}

type graphError struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode"`
	IsTransient  bool   `json:"is_transient"`
	FBTraceID    string `json:"fbtrace_id"`
}

type adAccount struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
}

type adAccountsResponse struct {
	Data  []adAccount `json:"data"`
	Error *graphError `json:"error"`
}

func classifyResponse(res core.TransportResponse) core.VerificationOutcome {
	status := res.StatusCode
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
		return core.UnreachableOutcome(fmt.Sprintf("graph api returned status %d", status))
	}

	body := strings.TrimSpace(string(res.Body))
	if body == "" {
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return core.InvalidOutcome(fmt.Sprintf("graph api returned status %d", status))
		}
		return core.UnreachableOutcome(fmt.Sprintf("graph api returned an empty body with status %d", status))
	}

	parsed := adAccountsResponse{}
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return core.InvalidOutcome(fmt.Sprintf("graph api returned status %d", status))
		}
		return core.UnreachableOutcome("graph api returned malformed json")
	}

	if parsed.Error != nil {
		return classifyGraphError(*parsed.Error)
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return core.InvalidOutcome(fmt.Sprintf("graph api returned status %d", status))
	}
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return core.UnreachableOutcome(fmt.Sprintf("graph api returned status %d", status))
	}
	if parsed.Data == nil {
		return core.UnreachableOutcome("graph api response has no data field")
	}

	accounts := make([]string, 0, len(parsed.Data))
	for _, account := range parsed.Data {
		if id := accountID(account); id != "" {
			accounts = append(accounts, id)
		}
	}
	primary := ""
	if len(accounts) > 0 {
		primary = accounts[0]
	}
	return core.ValidOutcome(accounts, primary)
}

func classifyGraphError(graphErr graphError) core.VerificationOutcome {
	reason := describeGraphError(graphErr)
	if graphErr.IsTransient {
		return core.UnreachableOutcome(reason)
	}
	if _, transient := transientErrorCodes[graphErr.Code]; transient {
		return core.UnreachableOutcome(reason)
	}
	return core.InvalidOutcome(reason)
}

func describeGraphError(graphErr graphError) string {
	parts := []string{}
	if graphErr.Type != "" {
		parts = append(parts, graphErr.Type)
	}
	if graphErr.Code != 0 {
		code := "code " + strconv.Itoa(graphErr.Code)
		if graphErr.ErrorSubcode != 0 {
			code += "/" + strconv.Itoa(graphErr.ErrorSubcode)
		}
		parts = append(parts, code)
	}
	message := strings.TrimSpace(graphErr.Message)
	if message == "" {
		message = "graph api error"
	}
	if len(parts) == 0 {
		return message
	}
	return message + " (" + strings.Join(parts, ", ") + ")"
}

// accountID prefers the act_ prefixed id the marketing endpoints expect.
func accountID(account adAccount) string {
	if id := strings.TrimSpace(account.ID); id != "" {
		return id
	}
	if id := strings.TrimSpace(account.AccountID); id != "" {
		return "act_" + id
	}
	return ""
}

func appSecretProof(appSecret string, accessToken string) string {
	mac := hmac.New(sha256.New, []byte(appSecret))
	_, _ = mac.Write([]byte(accessToken))
	return hex.EncodeToString(mac.Sum(nil))
}

var _ core.Verifier = (*Verifier)(nil)
