package imagehost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/galleryfs/galleryfs/pkg/errors"
	"github.com/galleryfs/galleryfs/pkg/retry"
)

const component = "imagehost"

// Config represents image-host adapter configuration.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.example.com/3".
	BaseURL string `yaml:"base_url"`

	// ClientID is the anonymous application credential.
	ClientID string `yaml:"client_id"`

	// AccessToken is the account bearer token; empty means anonymous-only.
	AccessToken string `yaml:"access_token"`

	// RefreshToken exchanges for a new access token on demand.
	RefreshToken string `yaml:"refresh_token"`

	// ClientSecret accompanies refresh-token exchanges.
	ClientSecret string `yaml:"client_secret"`

	// TokenURL is the OAuth token endpoint; empty disables refresh.
	TokenURL string `yaml:"token_url"`

	// RequestTimeout bounds a single HTTP attempt.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// apiEnvelope is the host's uniform response wrapper.
type apiEnvelope struct {
	Data    json.RawMessage `json:"data"`
	Success bool            `json:"success"`
	Status  int             `json:"status"`
}

// apiError is the error payload found in a failed envelope's data field.
type apiError struct {
	Error   string `json:"error"`
	Request string `json:"request"`
	Method  string `json:"method"`
}

// client is the authenticated REST transport shared by the adapter's
// operations.
type client struct {
	baseURL      string
	clientID     string
	clientSecret string
	tokenURL     string
	httpClient   *http.Client
	retryer      *retry.Retryer
	logger       *slog.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

func newClient(cfg *Config, logger *slog.Logger) *client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &client{
		baseURL:      cfg.BaseURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		tokenURL:     cfg.TokenURL,
		httpClient:   &http.Client{Timeout: timeout},
		retryer:      retry.New(retry.DefaultConfig()),
		logger:       logger,
		accessToken:  cfg.AccessToken,
		refreshToken: cfg.RefreshToken,
	}
}

func (c *client) token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

func (c *client) setTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = access
	if refresh != "" {
		c.refreshToken = refresh
	}
}

// invalidateSession drops the access token after a definitive 401 so later
// requests fail fast instead of replaying a dead credential.
func (c *client) invalidateSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
}

// do performs one API request with credential classification and the retry
// protocol, decoding the successful envelope's data field into out when out
// is non-nil.
func (c *client) do(ctx context.Context, method, resource string, body any, out any) error {
	cred, err := classifyRequest(method, resource)
	if err != nil {
		return err
	}
	if cred == credentialUser && c.token() == "" {
		return errors.NewError(errors.ErrCodeAuthRequired,
			fmt.Sprintf("%s %s requires an authenticated session", method, resource)).
			WithComponent(component).WithOperation(method + " " + resource)
	}

	var payload []byte
	if body != nil {
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}

	return c.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		return c.attempt(ctx, method, resource, cred, payload, out)
	})
}

func (c *client) attempt(ctx context.Context, method, resource string, cred credential, payload []byte, out any) error {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+resource, reader)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch cred {
	case credentialUser:
		req.Header.Set("Authorization", "Bearer "+c.token())
	default:
		req.Header.Set("Authorization", "Client-ID "+c.clientID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrCodeNetworkError,
			fmt.Sprintf("%s %s failed", method, resource), err).
			WithComponent(component)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(errors.ErrCodeNetworkError, "response read failed", err).
			WithComponent(component)
	}

	if resp.StatusCode >= 400 {
		return c.statusError(method, resource, resp, data)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return errors.Wrap(errors.ErrCodeServerError, "malformed response envelope", err).
			WithComponent(component)
	}
	if !envelope.Success {
		return errors.NewError(errors.ErrCodeServerError,
			fmt.Sprintf("%s %s reported failure status %d", method, resource, envelope.Status)).
			WithComponent(component)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return errors.Wrap(errors.ErrCodeServerError, "malformed response data", err).
				WithComponent(component)
		}
	}
	return nil
}

func (c *client) statusError(method, resource string, resp *http.Response, data []byte) error {
	detail := ""
	var envelope apiEnvelope
	if json.Unmarshal(data, &envelope) == nil && envelope.Data != nil {
		var apiErr apiError
		if json.Unmarshal(envelope.Data, &apiErr) == nil {
			detail = apiErr.Error
		}
	}
	if detail == "" {
		detail = http.StatusText(resp.StatusCode)
	}
	msg := fmt.Sprintf("%s %s: %s", method, resource, detail)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.invalidateSession()
		return errors.NewError(errors.ErrCodeTokenExpired, msg).
			WithComponent(component).WithContext("status", strconv.Itoa(resp.StatusCode))
	case resp.StatusCode == http.StatusForbidden:
		return errors.NewError(errors.ErrCodeAccessDenied, msg).
			WithComponent(component).WithContext("status", strconv.Itoa(resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return errors.NewError(errors.ErrCodeObjectNotFound, msg).
			WithComponent(component).WithContext("status", strconv.Itoa(resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests:
		gerr := errors.NewError(errors.ErrCodeRateLimited, msg).
			WithComponent(component).WithContext("status", strconv.Itoa(resp.StatusCode))
		if after := parseRetryAfter(resp); after > 0 {
			gerr = gerr.WithRetryAfter(after)
		}
		return gerr
	case resp.StatusCode >= 500:
		return errors.NewError(errors.ErrCodeServerError, msg).
			WithComponent(component).WithContext("status", strconv.Itoa(resp.StatusCode))
	default:
		return errors.NewError(errors.ErrCodeOperationFailed, msg).
			WithComponent(component).WithContext("status", strconv.Itoa(resp.StatusCode))
	}
}

// refresh exchanges the refresh token for a fresh access token. It talks to
// the token endpoint directly, outside the resource classifier, since the
// exchange is what establishes the credential classification depends on.
func (c *client) refresh(ctx context.Context) error {
	c.mu.Lock()
	refreshToken := c.refreshToken
	c.mu.Unlock()

	if c.tokenURL == "" || refreshToken == "" {
		return errors.NewError(errors.ErrCodeCredentialsMissing,
			"no refresh token or token endpoint configured").
			WithComponent(component)
	}

	body, err := json.Marshal(map[string]string{
		"refresh_token": refreshToken,
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"grant_type":    "refresh_token",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(errors.ErrCodeNetworkError, "token refresh failed", err).
			WithComponent(component)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.invalidateSession()
		return errors.NewError(errors.ErrCodeAuthenticationFailed,
			fmt.Sprintf("token refresh rejected with status %d", resp.StatusCode)).
			WithComponent(component)
	}

	var tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return errors.Wrap(errors.ErrCodeAuthenticationFailed, "malformed token response", err).
			WithComponent(component)
	}
	if tokens.AccessToken == "" {
		return errors.NewError(errors.ErrCodeAuthenticationFailed, "token response missing access token").
			WithComponent(component)
	}

	c.setTokens(tokens.AccessToken, tokens.RefreshToken)
	c.logger.Info("access token refreshed")
	return nil
}

// parseRetryAfter reads the server's advertised backoff from either the
// standard Retry-After header or the host's rate-limit reset header.
func parseRetryAfter(resp *http.Response) time.Duration {
	for _, header := range []string{"Retry-After", "X-RateLimit-UserReset"} {
		value := resp.Header.Get(header)
		if value == "" {
			continue
		}
		if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
