package connector

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/areahq/area-engine/internal/metrics"
)

// UserTokens resolves a user's OAuth token for a service. Refresh failures
// and missing links both report ok=false.
type UserTokens interface {
	AccessToken(ctx context.Context, userID, service string) (token string, ok bool)
}

// Token is an application access token with its expiry.
type Token struct {
	Value  string
	Expiry time.Time
}

// FetchFunc obtains a fresh application token.
type FetchFunc func(ctx context.Context) (Token, error)

// TokenCache shares application tokens process-wide, keyed by service and
// credential scope. Reads take a shared lock; a refresh for one key runs
// under that key's lock so concurrent callers fetch at most once.
type TokenCache struct {
	margin time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	tokens  map[string]Token
	margins map[string]time.Duration
	refresh map[string]*sync.Mutex
}

// NewTokenCache creates a cache that treats tokens as expired margin before
// their real expiry.
func NewTokenCache(margin time.Duration) *TokenCache {
	return &TokenCache{
		margin:  margin,
		now:     time.Now,
		tokens:  map[string]Token{},
		margins: map[string]time.Duration{},
		refresh: map[string]*sync.Mutex{},
	}
}

// SetMargin raises the expiry margin for one key. The larger of the cache
// margin and d applies.
func (c *TokenCache) SetMargin(key string, d time.Duration) {
	c.mu.Lock()
	c.margins[key] = d
	c.mu.Unlock()
}

// WithClock overrides the time source.
func (c *TokenCache) WithClock(now func() time.Time) *TokenCache {
	c.now = now
	return c
}

// Get returns a valid cached token for key, fetching one when needed.
func (c *TokenCache) Get(ctx context.Context, key string, fetch FetchFunc) (string, error) {
	if v, ok := c.lookup(key); ok {
		return v, nil
	}

	lock := c.keyLock(key)
	lock.Lock()
	defer lock.Unlock()

	if v, ok := c.lookup(key); ok {
		return v, nil
	}
	tok, err := fetch(ctx)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(key, "error").Inc()
		return "", err
	}
	if tok.Expiry.IsZero() {
		tok.Expiry = c.now().Add(time.Hour)
	}
	c.mu.Lock()
	c.tokens[key] = tok
	c.mu.Unlock()
	metrics.TokenRefreshesTotal.WithLabelValues(key, "ok").Inc()
	return tok.Value, nil
}

// Invalidate drops the cached token for key, e.g. after a 401.
func (c *TokenCache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.tokens, key)
	c.mu.Unlock()
}

func (c *TokenCache) lookup(key string) (string, bool) {
	c.mu.RLock()
	tok, ok := c.tokens[key]
	margin := max(c.margin, c.margins[key])
	c.mu.RUnlock()
	if !ok || tok.Value == "" {
		return "", false
	}
	if !c.now().Add(margin).Before(tok.Expiry) {
		return "", false
	}
	return tok.Value, true
}

func (c *TokenCache) keyLock(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.refresh[key]
	if !ok {
		l = &sync.Mutex{}
		c.refresh[key] = l
	}
	return l
}

// ClientCredentials adapts an OAuth2 client-credentials grant to a FetchFunc.
func ClientCredentials(cfg clientcredentials.Config, timeout time.Duration) FetchFunc {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context) (Token, error) {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
		tok, err := cfg.Token(ctx)
		if err != nil {
			return Token{}, &ConfigError{Service: cfg.TokenURL, Reason: "client credentials grant failed", Err: err}
		}
		return Token{Value: tok.AccessToken, Expiry: tok.Expiry}, nil
	}
}
