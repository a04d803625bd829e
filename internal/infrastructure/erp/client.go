package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/erp"
	"github.com/storefront/backend/internal/infrastructure/config"
)

// resource paths per record kind
var resourcePaths = map[erp.RecordKind]string{
	erp.KindItem:    "items",
	erp.KindContact: "contacts",
	erp.KindInvoice: "invoices",
}

// CallRecorder receives one success/failure tally per outbound API call
type CallRecorder interface {
	Record(success bool)
}

// Client is the HTTP implementation of erp.Gateway. It performs no retries
// beyond a single token refresh on a 401; retry policy belongs to the
// reconciler and the job queue.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     *TokenCache
	attrs      erp.AttributeTable
	calls      CallRecorder
	logger     *zap.Logger
}

// NewClient creates a gateway client from the ERP configuration
func NewClient(cfg config.ERPConfig, logger *zap.Logger) *Client {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	c := &Client{
		httpClient: httpClient,
		baseURL:    cfg.BaseURL,
		attrs:      erp.DefaultAttributeTable(),
		logger:     logger,
	}
	creds := Credentials{ClientID: cfg.ClientID, ClientSecret: cfg.ClientSecret}
	c.tokens = NewTokenCache(creds, c.refreshToken, nil)
	return c
}

// WithCallRecorder tallies every outbound API call on the given recorder
func (c *Client) WithCallRecorder(calls CallRecorder) *Client {
	c.calls = calls
	return c
}

// NewClientWithTokenCache creates a client with an injected token cache,
// for tests that need a fake clock or scripted refreshes.
func NewClientWithTokenCache(baseURL string, tokens *TokenCache, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		tokens:     tokens,
		attrs:      erp.DefaultAttributeTable(),
		logger:     logger,
	}
}

// refreshToken exchanges the client credentials for an access token
func (c *Client) refreshToken(ctx context.Context, creds Credentials) (string, time.Time, error) {
	body, _ := json.Marshal(map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     creds.ClientID,
		"client_secret": creds.ClientSecret,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/oauth/token", bytes.NewReader(body))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("token endpoint returned HTTP %d", resp.StatusCode)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", time.Time{}, fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("token endpoint returned empty token")
	}
	return tok.AccessToken, time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second), nil
}

// FetchPage reads one page of records of the given kind
func (c *Client) FetchPage(ctx context.Context, kind erp.RecordKind, req erp.PageRequest) (erp.Page, error) {
	path, ok := resourcePaths[kind]
	if !ok {
		return erp.Page{}, fmt.Errorf("%w: unknown record kind %q", erp.ErrValidation, kind)
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(req.Page))
	query.Set("page_size", strconv.Itoa(req.PageSize))
	if req.Since != nil {
		query.Set("modified_since", req.Since.UTC().Format(time.RFC3339))
	}

	body, err := c.do(ctx, http.MethodGet, "/api/v1/"+path+"?"+query.Encode(), nil, "")
	if err != nil {
		return erp.Page{}, err
	}

	var envelope pageEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return erp.Page{}, fmt.Errorf("%w: decode page: %v", erp.ErrValidation, err)
	}

	page := erp.Page{
		Records: make([]erp.ExternalRecord, 0, len(envelope.Records)),
		HasMore: envelope.HasMore,
	}
	for _, raw := range envelope.Records {
		record, decodeErr := decodeRecord(kind, raw, c.attrs)
		if decodeErr != nil {
			// A record that cannot be decoded still reaches the caller so
			// the run can tally it as a record-level error.
			c.logger.Warn("undecodable record in page",
				zap.String("kind", kind.String()),
				zap.Error(decodeErr))
			record = erp.ExternalRecord{Kind: kind}
		}
		page.Records = append(page.Records, record)
	}
	return page, nil
}

// PushRecord creates a record upstream, carrying the idempotency key as a
// dedup token. Returns the remote identifier.
func (c *Client) PushRecord(ctx context.Context, kind erp.RecordKind, payload any, idempotencyKey string) (string, error) {
	path, ok := resourcePaths[kind]
	if !ok {
		return "", fmt.Errorf("%w: unknown record kind %q", erp.ErrValidation, kind)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: marshal payload: %v", erp.ErrValidation, err)
	}

	respBody, err := c.do(ctx, http.MethodPost, "/api/v1/"+path, body, idempotencyKey)
	if err != nil {
		return "", err
	}

	var pushed pushResponse
	if err := json.Unmarshal(respBody, &pushed); err != nil {
		return "", fmt.Errorf("%w: decode push response: %v", erp.ErrValidation, err)
	}
	if pushed.ID == "" {
		return "", fmt.Errorf("%w: push response without id", erp.ErrValidation)
	}
	return pushed.ID, nil
}

// TestConnection verifies credentials and reachability
func (c *Client) TestConnection(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/api/v1/ping", nil, "")
	return err
}

// do performs one authenticated request with a single token-refresh retry on
// a 401, tallying the call on the recorder when one is wired.
func (c *Client) do(ctx context.Context, method, path string, body []byte, idempotencyKey string) ([]byte, error) {
	respBody, err := c.exec(ctx, method, path, body, idempotencyKey)
	if c.calls != nil {
		c.calls.Record(err == nil)
	}
	return respBody, err
}

// exec runs the request; the cached token may have been revoked upstream, so
// a 401 gets exactly one refresh-and-retry.
func (c *Client) exec(ctx context.Context, method, path string, body []byte, idempotencyKey string) ([]byte, error) {
	respBody, status, retryAfter, err := c.doOnce(ctx, method, path, body, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		c.tokens.Invalidate()
		respBody, status, retryAfter, err = c.doOnce(ctx, method, path, body, idempotencyKey)
		if err != nil {
			return nil, err
		}
	}
	if classified := erp.ClassifyStatus(status, retryAfter); classified != nil {
		return nil, classified
	}
	return respBody, nil
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte, idempotencyKey string) ([]byte, int, time.Duration, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, 0, 0, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: build request: %v", erp.ErrPermanent, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and connection failures are transient by classification
		return nil, 0, 0, fmt.Errorf("%w: %v", erp.ErrTransient, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: read response: %v", erp.ErrTransient, err)
	}
	return respBody, resp.StatusCode, parseRetryAfter(resp.Header.Get("Retry-After")), nil
}

// parseRetryAfter handles both delta-seconds and HTTP-date forms
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
