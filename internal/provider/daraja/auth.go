package daraja

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/PeterNgeno/sangpoint-payments/config"
	"github.com/PeterNgeno/sangpoint-payments/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	// tokenSafetyMargin refreshes the cached token this long before the
	// provider's stated expiry.
	tokenSafetyMargin = 30 * time.Second

	authMaxAttempts  = 3
	authBaseDelay    = 500 * time.Millisecond
	authMaxDelay     = 5 * time.Second
	defaultTokenLife = 3600 * time.Second
)

// BearerCredential is a short-lived provider token. It is held only in
// process memory, owned by the AuthClient.
type BearerCredential struct {
	Token     string
	ExpiresAt time.Time
}

func (c BearerCredential) valid(now time.Time) bool {
	return c.Token != "" && now.Before(c.ExpiresAt.Add(-tokenSafetyMargin))
}

// AuthClient exchanges the configured consumer key/secret for a bearer
// token at the Daraja OAuth endpoint. The token is cached until expiry and
// concurrent refreshes collapse into a single fetch.
type AuthClient struct {
	cfg        config.DarajaConfig
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	group  singleflight.Group
	mu     sync.Mutex
	cached BearerCredential
}

func NewAuthClient(cfg config.DarajaConfig, logger *zap.Logger) *AuthClient {
	return &AuthClient{
		cfg:        cfg,
		baseURL:    BaseURL(cfg.Environment),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// BaseURL returns the Daraja API base for the given environment.
func BaseURL(environment string) string {
	if environment == "production" {
		return "https://api.safaricom.co.ke"
	}
	return "https://sandbox.safaricom.co.ke"
}

// SetBaseURL overrides the provider endpoint. Used by tests.
func (c *AuthClient) SetBaseURL(url string) { c.baseURL = url }

// Token returns a valid bearer credential, fetching a fresh one only when
// the cache has expired. A fetch already in flight is shared by all
// callers.
func (c *AuthClient) Token(ctx context.Context) (BearerCredential, error) {
	c.mu.Lock()
	cached := c.cached
	c.mu.Unlock()

	if cached.valid(time.Now()) {
		return cached, nil
	}

	v, err, _ := c.group.Do("token", func() (interface{}, error) {
		// A waiter may arrive after the previous flight refreshed the
		// cache; recheck before fetching.
		c.mu.Lock()
		cached := c.cached
		c.mu.Unlock()
		if cached.valid(time.Now()) {
			return cached, nil
		}

		cred, err := c.fetchWithRetry(ctx)
		if err != nil {
			return BearerCredential{}, err
		}

		c.mu.Lock()
		c.cached = cred
		c.mu.Unlock()
		return cred, nil
	})
	if err != nil {
		return BearerCredential{}, err
	}
	return v.(BearerCredential), nil
}

// fetchWithRetry retries transient failures with a capped doubling delay.
// Explicit rejections (4xx) fail immediately.
func (c *AuthClient) fetchWithRetry(ctx context.Context) (BearerCredential, error) {
	delay := authBaseDelay
	var lastErr error

	for attempt := 1; attempt <= authMaxAttempts; attempt++ {
		cred, retryable, err := c.fetch(ctx)
		if err == nil {
			return cred, nil
		}
		if !retryable {
			c.logger.Warn("provider rejected credentials",
				zap.Int("attempt", attempt),
				zap.Error(err))
			return BearerCredential{}, &domain.AuthFailure{Err: err}
		}

		lastErr = err
		c.logger.Warn("token fetch failed, will retry",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		if attempt == authMaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return BearerCredential{}, &domain.AuthFailure{Err: ctx.Err()}
		case <-time.After(delay):
		}
		delay *= 2
		if delay > authMaxDelay {
			delay = authMaxDelay
		}
	}

	return BearerCredential{}, &domain.AuthFailure{Err: fmt.Errorf("exhausted %d attempts: %w", authMaxAttempts, lastErr)}
}

// fetch performs one token request. The second return value reports
// whether the failure is worth retrying.
func (c *AuthClient) fetch(ctx context.Context) (BearerCredential, bool, error) {
	url := c.baseURL + "/oauth/v1/generate?grant_type=client_credentials"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return BearerCredential{}, false, err
	}

	auth := base64.StdEncoding.EncodeToString([]byte(c.cfg.ConsumerKey + ":" + c.cfg.ConsumerSecret))
	req.Header.Set("Authorization", "Basic "+auth)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return BearerCredential{}, true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body))
		return BearerCredential{}, resp.StatusCode >= 500, err
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return BearerCredential{}, false, fmt.Errorf("decoding token response: %w", err)
	}
	if out.AccessToken == "" {
		return BearerCredential{}, false, fmt.Errorf("token response carried no access_token")
	}

	life := defaultTokenLife
	if secs, err := strconv.Atoi(out.ExpiresIn); err == nil && secs > 0 {
		life = time.Duration(secs) * time.Second
	}

	return BearerCredential{
		Token:     out.AccessToken,
		ExpiresAt: time.Now().Add(life),
	}, false, nil
}
