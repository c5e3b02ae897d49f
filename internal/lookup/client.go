// Package lookup queries the Hunter domain-search API for the email
// addresses published under a company domain.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/prospector/internal/metrics"
	"github.com/JakeFAU/prospector/internal/prospect"
	"github.com/JakeFAU/prospector/internal/ranking"
)

// DefaultBaseURL is the public Hunter v2 endpoint.
const DefaultBaseURL = "https://api.hunter.io/v2"

// ErrMissingAPIKey is returned before any request when no key is configured.
var ErrMissingAPIKey = fmt.Errorf("lookup api key is not configured: %w", prospect.ErrPrecondition)

// Error describes a failed domain search.
type Error struct {
	Domain     string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := "lookup " + e.Domain
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(": status %d", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Waiter throttles outbound requests.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls the client.
type Config struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// Client performs domain searches.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter Waiter
	logger  *zap.Logger
}

// Result is the parsed domain-search payload.
type Result struct {
	Domain       string
	Organization string
	Records      []ranking.Record
}

// New builds a Client. httpClient and limiter may be nil.
func New(cfg Config, httpClient *http.Client, limiter Waiter, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, http: httpClient, limiter: limiter, logger: logger.Named("lookup")}
}

type searchResponse struct {
	Data struct {
		Domain       string        `json:"domain"`
		Organization string        `json:"organization"`
		Emails       []emailRecord `json:"emails"`
	} `json:"data"`
	Errors []struct {
		ID      string `json:"id"`
		Code    int    `json:"code"`
		Details string `json:"details"`
	} `json:"errors"`
}

type emailRecord struct {
	Value      string `json:"value"`
	Type       string `json:"type"`
	Confidence *int   `json:"confidence"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Position   string `json:"position"`
	Department string `json:"department"`
}

// DomainSearch returns the contacts published for domain. A response with no
// emails is a valid, empty result.
func (c *Client) DomainSearch(ctx context.Context, domain string) (Result, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return Result{}, ErrMissingAPIKey
	}
	endpoint, err := c.endpoint(domain)
	if err != nil {
		return Result{}, &Error{Domain: domain, Err: err}
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, endpoint); err != nil {
			return Result{}, &Error{Domain: domain, Err: err}
		}
	}

	start := time.Now()
	res, err := c.do(ctx, domain, endpoint)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.ObserveLookup(outcome, time.Since(start))
	return res, err
}

func (c *Client) endpoint(domain string) (string, error) {
	u, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + "/domain-search")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	q.Set("domain", domain)
	q.Set("api_key", c.cfg.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) do(ctx context.Context, domain, endpoint string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, &Error{Domain: domain, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, &Error{Domain: domain, Err: fmt.Errorf("send request: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return Result{}, &Error{Domain: domain, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	var payload searchResponse
	decodeErr := json.Unmarshal(body, &payload)
	if resp.StatusCode != http.StatusOK {
		lookupErr := &Error{Domain: domain, StatusCode: resp.StatusCode}
		if decodeErr == nil && len(payload.Errors) > 0 {
			lookupErr.Message = payload.Errors[0].Details
		}
		return Result{}, lookupErr
	}
	if decodeErr != nil {
		return Result{}, &Error{Domain: domain, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", decodeErr)}
	}

	result := Result{
		Domain:       domain,
		Organization: payload.Data.Organization,
		Records:      make([]ranking.Record, 0, len(payload.Data.Emails)),
	}
	for _, e := range payload.Data.Emails {
		result.Records = append(result.Records, ranking.Record{
			Email:      e.Value,
			FirstName:  e.FirstName,
			LastName:   e.LastName,
			Position:   e.Position,
			Department: e.Department,
			Type:       e.Type,
			Confidence: e.Confidence,
		})
	}
	c.logger.Debug("domain search complete",
		zap.String("domain", domain),
		zap.String("organization", result.Organization),
		zap.Int("emails", len(result.Records)),
	)
	return result, nil
}

// IsPrecondition reports whether err means no lookups can succeed this run.
func IsPrecondition(err error) bool {
	if errors.Is(err, prospect.ErrPrecondition) {
		return true
	}
	var lookupErr *Error
	return errors.As(err, &lookupErr) && lookupErr.StatusCode == http.StatusUnauthorized
}
