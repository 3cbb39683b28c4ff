package powerwall

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	ownerAPIBaseURL = "https://owner-api.teslamotors.com"
	tokenURL        = "https://auth.tesla.com/oauth2/v3/token"
	userAgent       = "TeslaApp/4.10.0"

	// refresh this long before the access token actually expires
	tokenRefreshBuffer = 5 * time.Minute

	requestTimeout = 30 * time.Second
)

// AuthError means the stored credentials are unusable and a manual
// re-authorization is required. Not retryable.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "powerwall auth: " + e.Reason
}

// StatusError is a non-2xx Owner API response.
type StatusError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("powerwall api: %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

type tokenSet struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"`
	TokenType    string `json:"token_type"`
}

func (t *tokenSet) expired(now time.Time) bool {
	return time.Unix(t.ExpiresAt, 0).Before(now.Add(tokenRefreshBuffer))
}

// OwnerAPIClient implements GatewayClient against the hosted Owner
// API. Tokens live in a JSON file produced by an interactive OAuth
// flow; the client refreshes the access token on its own and writes
// the rotated tokens back to the file.
type OwnerAPIClient struct {
	baseURL   string
	tokenURL  string
	tokenFile string
	http      *http.Client
	logger    *zap.Logger

	mu     sync.Mutex
	tokens *tokenSet
	siteID int64
}

type ClientOption func(*OwnerAPIClient)

// WithBaseURLs overrides the API and auth endpoints, for tests.
func WithBaseURLs(api string, auth string) ClientOption {
	return func(c *OwnerAPIClient) {
		c.baseURL = api
		c.tokenURL = auth
	}
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *OwnerAPIClient) {
		c.http = hc
	}
}

func NewOwnerAPIClient(tokenFile string, logger *zap.Logger, opts ...ClientOption) *OwnerAPIClient {
	c := &OwnerAPIClient{
		baseURL:   ownerAPIBaseURL,
		tokenURL:  tokenURL,
		tokenFile: tokenFile,
		http:      &http.Client{Timeout: requestTimeout},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *OwnerAPIClient) loadTokens() (*tokenSet, error) {
	data, err := os.ReadFile(c.tokenFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &AuthError{Reason: "token file not found: " + c.tokenFile}
		}
		return nil, err
	}
	var t tokenSet
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, &AuthError{Reason: "invalid token file: " + err.Error()}
	}
	if t.AccessToken == "" || t.RefreshToken == "" {
		return nil, &AuthError{Reason: "token file is missing tokens"}
	}
	return &t, nil
}

func (c *OwnerAPIClient) saveTokens(t *tokenSet) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(c.tokenFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(c.tokenFile, data, 0o600)
}

// refreshTokens exchanges the refresh token for a new access token.
// Caller must hold c.mu.
func (c *OwnerAPIClient) refreshTokens(ctx context.Context) error {
	tokens, err := c.loadTokens()
	if err != nil {
		return err
	}

	c.logger.Info("refreshing access token")

	body, _ := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     "ownerapi",
		"refresh_token": tokens.RefreshToken,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("token refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		return &AuthError{Reason: "refresh token rejected, re-run the authorization flow"}
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Endpoint: "oauth2/v3/token", Body: string(msg)}
	}

	var fresh struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
		TokenType    string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&fresh); err != nil {
		return fmt.Errorf("token refresh: decode: %w", err)
	}

	tokens.AccessToken = fresh.AccessToken
	if fresh.RefreshToken != "" {
		tokens.RefreshToken = fresh.RefreshToken
	}
	tokens.ExpiresAt = time.Now().Unix() + fresh.ExpiresIn
	tokens.TokenType = fresh.TokenType

	if err := c.saveTokens(tokens); err != nil {
		c.logger.Warn("could not persist refreshed tokens", zap.Error(err))
	}
	c.tokens = tokens
	return nil
}

func (c *OwnerAPIClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tokens == nil {
		t, err := c.loadTokens()
		if err != nil {
			return "", err
		}
		c.tokens = t
	}
	if c.tokens.expired(time.Now()) {
		if err := c.refreshTokens(ctx); err != nil {
			return "", err
		}
	}
	return c.tokens.AccessToken, nil
}

func (c *OwnerAPIClient) invalidateToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokens != nil {
		c.tokens.ExpiresAt = 0
	}
}

// request performs an authenticated call and decodes the Owner API
// "response" envelope into out. A 401 triggers one token refresh and
// retry before giving up.
func (c *OwnerAPIClient) request(ctx context.Context, method string, endpoint string, payload any, out any) error {
	retried := false
	for {
		token, err := c.accessToken(ctx)
		if err != nil {
			return err
		}

		var body io.Reader
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				return err
			}
			body = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+endpoint, body)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, endpoint, err)
		}

		if resp.StatusCode == http.StatusUnauthorized && !retried {
			resp.Body.Close()
			c.logger.Warn("got 401, refreshing token and retrying", zap.String("endpoint", endpoint))
			c.invalidateToken()
			retried = true
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			if resp.StatusCode == http.StatusUnauthorized {
				return &AuthError{Reason: "authentication failed, re-run the authorization flow"}
			}
			return &StatusError{StatusCode: resp.StatusCode, Endpoint: endpoint, Body: string(msg)}
		}

		envelope := struct {
			Response json.RawMessage `json:"response"`
		}{}
		err = json.NewDecoder(resp.Body).Decode(&envelope)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("%s %s: decode: %w", method, endpoint, err)
		}
		if out != nil {
			if err := json.Unmarshal(envelope.Response, out); err != nil {
				return fmt.Errorf("%s %s: decode response: %w", method, endpoint, err)
			}
		}
		return nil
	}
}

func (c *OwnerAPIClient) FindBatterySite(ctx context.Context) (*SiteInfo, error) {
	var products []SiteInfo
	if err := c.request(ctx, http.MethodGet, "api/1/products", nil, &products); err != nil {
		return nil, err
	}
	for i := range products {
		if products[i].ResourceType == resourceTypeBattery {
			c.mu.Lock()
			c.siteID = products[i].EnergySiteID
			c.mu.Unlock()
			c.logger.Info("battery site found",
				zap.Int64("site_id", products[i].EnergySiteID),
				zap.String("name", products[i].SiteName))
			return &products[i], nil
		}
	}
	return nil, errors.New("no battery product on this account")
}

func (c *OwnerAPIClient) currentSiteID() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.siteID == 0 {
		return 0, errors.New("no site selected, call FindBatterySite first")
	}
	return c.siteID, nil
}

func (c *OwnerAPIClient) GetSiteInfo(ctx context.Context) (*SiteInfo, error) {
	siteID, err := c.currentSiteID()
	if err != nil {
		return nil, err
	}
	var info SiteInfo
	endpoint := fmt.Sprintf("api/1/energy_sites/%d/site_info", siteID)
	if err := c.request(ctx, http.MethodGet, endpoint, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *OwnerAPIClient) GetLiveStatus(ctx context.Context) (*LiveStatus, error) {
	siteID, err := c.currentSiteID()
	if err != nil {
		return nil, err
	}
	var status LiveStatus
	endpoint := fmt.Sprintf("api/1/energy_sites/%d/live_status", siteID)
	if err := c.request(ctx, http.MethodGet, endpoint, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *OwnerAPIClient) SetOperationMode(ctx context.Context, mode string) (string, error) {
	siteID, err := c.currentSiteID()
	if err != nil {
		return "", err
	}
	var result commandResult
	endpoint := fmt.Sprintf("api/1/energy_sites/%d/operation", siteID)
	payload := map[string]string{"default_real_mode": mode}
	if err := c.request(ctx, http.MethodPost, endpoint, payload, &result); err != nil {
		return "", err
	}
	if result.Message == "" {
		result.Message = "Updated"
	}
	return result.Message, nil
}

func (c *OwnerAPIClient) SetBackupReservePercent(ctx context.Context, percent int) (string, error) {
	siteID, err := c.currentSiteID()
	if err != nil {
		return "", err
	}
	var result commandResult
	endpoint := fmt.Sprintf("api/1/energy_sites/%d/backup", siteID)
	payload := map[string]int{"backup_reserve_percent": percent}
	if err := c.request(ctx, http.MethodPost, endpoint, payload, &result); err != nil {
		return "", err
	}
	if result.Message == "" {
		result.Message = "Updated"
	}
	return result.Message, nil
}

var _ GatewayClient = (*OwnerAPIClient)(nil)
