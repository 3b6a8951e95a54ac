package verification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"connectivity/internal/config"
	"connectivity/internal/constants"
	"connectivity/internal/logger"
	"connectivity/pkg/cel"
	"connectivity/pkg/circuitbreaker"
	"connectivity/pkg/metrics"
	"connectivity/pkg/models"
	"connectivity/pkg/retry"
	"connectivity/pkg/tracing"
)

type Operation string

const (
	OpRegisterCitizen      Operation = "register_citizen"
	OpAuthenticateDocument Operation = "authenticate_document"
	OpValidateCitizen      Operation = "validate_citizen"
)

type RegisterCitizenRequest struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Address      string `json:"address"`
	Email        string `json:"email"`
	OperatorName string `json:"operatorName"`
}

type AuthenticateDocumentRequest struct {
	IDCitizen     int64  `json:"idCitizen"`
	URLDocument   string `json:"UrlDocument"`
	DocumentTitle string `json:"documentTitle"`
}

// Response is an approved centralizer answer.
type Response struct {
	Operation  Operation
	StatusCode int
	Body       json.RawMessage
	Attempts   int
}

type endpoint struct {
	path        string
	method      string
	approve     *cel.Rule
	rejectCodes map[int]struct{}
}

type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	policy     retry.Policy
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
	endpoints  map[Operation]*endpoint
	logger     logger.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithCircuitBreaker(breaker *circuitbreaker.Breaker) Option {
	return func(c *Client) {
		c.breaker = breaker
	}
}

// NewClient compiles the configured approval rules up front so a bad rule
// fails at startup rather than on the first message.
func NewClient(cfg config.VerificationConfig, log logger.Logger, opts ...Option) (*Client, error) {
	rules, err := cel.NewEnv()
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultVerificationTimeout
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/") + "/",
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		policy:     retry.PolicyFromConfig(cfg.Retry),
		httpClient: &http.Client{Transport: tracing.HTTPTransport(http.DefaultTransport)},
		endpoints:  make(map[Operation]*endpoint, 3),
		logger:     log.Named("verification-client"),
	}

	for op, epCfg := range map[Operation]config.EndpointConfig{
		OpRegisterCitizen:      cfg.Affiliation,
		OpAuthenticateDocument: cfg.Document,
		OpValidateCitizen:      cfg.Eligibility,
	} {
		ep, err := newEndpoint(rules, epCfg)
		if err != nil {
			return nil, fmt.Errorf("endpoint %s: %w", op, err)
		}
		c.endpoints[op] = ep
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func newEndpoint(rules *cel.Env, cfg config.EndpointConfig) (*endpoint, error) {
	rule, err := rules.Compile(cfg.ApproveWhen)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
	}

	rejectCodes := make(map[int]struct{}, len(cfg.RejectStatusCodes))
	for _, code := range cfg.RejectStatusCodes {
		rejectCodes[code] = struct{}{}
	}

	return &endpoint{
		path:        strings.TrimLeft(cfg.Path, "/"),
		method:      method,
		approve:     rule,
		rejectCodes: rejectCodes,
	}, nil
}

// NewBreaker builds the breaker the client runs each attempt through, or
// nil when cfg is disabled. Rejected and InvalidRequest answers mean the
// centralizer is healthy.
func NewBreaker(cfg config.CircuitBreakerConfig) *circuitbreaker.Breaker {
	return circuitbreaker.New("verification-api", cfg, func(err error) bool {
		if errors.Is(err, context.Canceled) {
			return true
		}
		var verr *Error
		return errors.As(err, &verr) && verr.IsBusinessOutcome()
	})
}

func (c *Client) RegisterCitizen(ctx context.Context, req RegisterCitizenRequest) (*Response, error) {
	return c.call(ctx, OpRegisterCitizen, nil, req)
}

func (c *Client) AuthenticateDocument(ctx context.Context, req AuthenticateDocumentRequest) (*Response, error) {
	return c.call(ctx, OpAuthenticateDocument, nil, req)
}

// ValidateCitizen asks whether the citizen may be affiliated. The default
// rule approves 204 (unknown to the centralizer) and rejects 200.
func (c *Client) ValidateCitizen(ctx context.Context, citizenID int64) (*Response, error) {
	return c.call(ctx, OpValidateCitizen, map[string]string{
		"citizen_id": strconv.FormatInt(citizenID, 10),
	}, nil)
}

func (c *Client) call(ctx context.Context, op Operation, params map[string]string, payload interface{}) (*Response, error) {
	ep, ok := c.endpoints[op]
	if !ok {
		return nil, invalidRequest(op, "operation not configured", nil)
	}

	var body []byte
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, invalidRequest(op, "failed to encode request", err)
		}
		body = raw
	}

	path := ep.path
	for k, v := range params {
		path = strings.ReplaceAll(path, "{"+k+"}", v)
	}
	url := c.baseURL + path

	start := time.Now()
	var resp *Response
	state, err := retry.Do(ctx, c.policy, func(ctx context.Context, attempt int) error {
		r, err := c.attemptWithBreaker(ctx, op, ep, url, body)
		if err != nil {
			return err
		}
		resp = r
		return nil
	}, func(attempt int, err error, delay time.Duration) {
		c.logger.WarnwCtx(ctx, "Centralizer call failed, retrying",
			"operation", op,
			"attempt", attempt,
			"next_delay", delay,
			"error", err,
		)
	})

	result := "success"
	if err != nil {
		var verr *Error
		if errors.As(err, &verr) {
			verr.Attempts = state.Attempt
			result = string(verr.Class)
		} else {
			result = "aborted"
		}
	}
	metrics.ObserveVerification(string(op), result, state.Attempt, time.Since(start))

	if err != nil {
		return nil, err
	}
	resp.Attempts = state.Attempt
	return resp, nil
}

func (c *Client) attemptWithBreaker(ctx context.Context, op Operation, ep *endpoint, url string, body []byte) (*Response, error) {
	resp, err := circuitbreaker.Execute(ctx, c.breaker, func(ctx context.Context) (*Response, error) {
		return c.attempt(ctx, op, ep, url, body)
	})
	switch {
	case err == nil:
		return resp, nil
	case errors.Is(err, circuitbreaker.ErrOpen):
		return nil, newError(ClassUnavailable, op, 0, "circuit breaker open", err)
	case ctx.Err() != nil && !isVerificationError(err):
		return nil, fmt.Errorf("%s aborted: %w", op, ctx.Err())
	}
	return nil, err
}

func (c *Client) attempt(ctx context.Context, op Operation, ep *endpoint, url string, body []byte) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(attemptCtx, ep.method, url, reader)
	if err != nil {
		return nil, invalidRequest(op, "failed to create request", err)
	}
	req.Header.Set("Accept", constants.ContentTypeJSON)
	if body != nil {
		req.Header.Set("Content-Type", constants.ContentTypeJSON)
	}
	if c.apiKey != "" {
		req.Header.Set(constants.APIKeyHeader, c.apiKey)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(ctx, attemptCtx, op, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, constants.MaxResponseBodyBytes))
	if err != nil {
		return nil, c.transportError(ctx, attemptCtx, op, err)
	}

	return c.classify(attemptCtx, op, ep, httpResp, raw)
}

// transportError distinguishes shutdown of the caller from a slow or
// unreachable centralizer.
func (c *Client) transportError(ctx, attemptCtx context.Context, op Operation, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s aborted: %w", op, ctxErr)
	}
	if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return newError(ClassTimeout, op, 0, fmt.Sprintf("no response within %s", c.timeout), err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(ClassTimeout, op, 0, "network timeout", err)
	}
	return newError(ClassUnavailable, op, 0, "request failed", err)
}

func (c *Client) classify(ctx context.Context, op Operation, ep *endpoint, httpResp *http.Response, raw []byte) (*Response, error) {
	status := httpResp.StatusCode

	if _, ok := ep.rejectCodes[status]; ok {
		return nil, c.statusError(ClassRejected, op, status, raw, "rejected by centralizer")
	}

	switch {
	case status >= constants.HTTPStatusOKMin && status < constants.HTTPStatusOKMax:
		approved, err := ep.approve.Approves(ctx, cel.Response{
			Operation:  string(op),
			StatusCode: status,
			Body:       decodeBody(raw),
			Headers:    flattenHeaders(httpResp.Header),
		})
		if err != nil {
			return nil, invalidRequest(op, "approval rule failed", err)
		}
		if !approved {
			return nil, c.statusError(ClassRejected, op, status, raw, "approval rule not satisfied")
		}
		return &Response{
			Operation:  op,
			StatusCode: status,
			Body:       ResponseDocument(raw),
		}, nil
	case status == http.StatusRequestTimeout:
		return nil, c.statusError(ClassTimeout, op, status, raw, "centralizer timed out")
	case status == http.StatusTooManyRequests,
		status == http.StatusUnauthorized,
		status == http.StatusForbidden,
		status >= http.StatusInternalServerError:
		return nil, c.statusError(ClassUnavailable, op, status, raw, "centralizer unavailable")
	case status >= http.StatusBadRequest:
		return nil, c.statusError(ClassInvalidRequest, op, status, raw, "request refused")
	default:
		c.logger.WarnwCtx(ctx, "Undocumented centralizer status treated as invalid request",
			"operation", op,
			"status_code", status,
		)
		return nil, c.statusError(ClassInvalidRequest, op, status, raw, "undocumented status")
	}
}

func (c *Client) statusError(class Class, op Operation, status int, raw []byte, message string) *Error {
	err := newError(class, op, status, message, nil)
	err.Body = ResponseDocument(raw)
	return err
}

func isVerificationError(err error) bool {
	var verr *Error
	return errors.As(err, &verr)
}

func decodeBody(raw []byte) interface{} {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

var escapedNUL = []byte(`\u0000`)

// ResponseDocument returns raw as JSON with NUL characters removed. Non-JSON
// bodies are kept as a truncated JSON string.
func ResponseDocument(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	if json.Valid(trimmed) {
		if !bytes.Contains(trimmed, escapedNUL) {
			out := make([]byte, len(trimmed))
			copy(out, trimmed)
			return out
		}
		if out, err := withoutNUL(trimmed); err == nil {
			return out
		}
	}
	snippet := models.StripNUL(string(trimmed))
	if len(snippet) > constants.ResponseSnippetMaxLength {
		snippet = snippet[:constants.ResponseSnippetMaxLength]
	}
	out, _ := json.Marshal(snippet)
	return out
}

func withoutNUL(raw []byte) (json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(stripNUL(v))
}

func stripNUL(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return models.StripNUL(t)
	case []interface{}:
		for i := range t {
			t[i] = stripNUL(t[i])
		}
		return t
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[models.StripNUL(k)] = stripNUL(val)
		}
		return out
	}
	return v
}

func flattenHeaders(h http.Header) map[string]string {
	headers := make(map[string]string, len(h))
	for k := range h {
		headers[strings.ToLower(k)] = h.Get(k)
	}
	return headers
}
