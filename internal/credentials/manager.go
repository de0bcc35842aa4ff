// Package credentials resolves per-user OAuth tokens for connectors,
// refreshing expired tokens with the stored refresh token.
package credentials

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/areahq/area-engine/internal/config"
	"github.com/areahq/area-engine/internal/metrics"
	"github.com/areahq/area-engine/internal/model"
	"github.com/areahq/area-engine/internal/store"
)

// Manager implements connector.UserTokens over the credential store.
type Manager struct {
	creds   store.Credentials
	clients map[string]*oauth2.Config
	margin  time.Duration
	http    *http.Client
	now     func() time.Time
	log     zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager builds a manager. clients maps a service name to the OAuth
// client used to refresh its tokens; services without one are served as
// stored until they expire.
func NewManager(creds store.Credentials, clients map[string]*oauth2.Config, margin time.Duration, log zerolog.Logger) *Manager {
	if clients == nil {
		clients = map[string]*oauth2.Config{}
	}
	return &Manager{
		creds:   creds,
		clients: clients,
		margin:  margin,
		http:    &http.Client{Timeout: 15 * time.Second},
		now:     time.Now,
		log:     log.With().Str("component", "credentials").Logger(),
		locks:   map[string]*sync.Mutex{},
	}
}

// ClientsFromConfig returns the refresh clients for every provider with a
// configured client id.
func ClientsFromConfig(cfg *config.Config) map[string]*oauth2.Config {
	out := map[string]*oauth2.Config{}
	add := func(service string, c config.OAuthClient, ep oauth2.Endpoint) {
		if c.ClientID == "" {
			return
		}
		out[service] = &oauth2.Config{ClientID: c.ClientID, ClientSecret: c.ClientSecret, Endpoint: ep}
	}
	add("GitHub", cfg.GitHub, endpoints.GitHub)
	add("Spotify", cfg.Spotify, endpoints.Spotify)
	add("Twitch", cfg.Twitch, endpoints.Twitch)
	add("YouTube", cfg.Google, endpoints.Google)
	return out
}

// WithClock overrides the time source.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// AccessToken returns a usable token for the user and service. A missing
// link, a store failure and a failed refresh all report ok=false.
func (m *Manager) AccessToken(ctx context.Context, userID, service string) (string, bool) {
	log := m.log.With().Str("user_id", userID).Str("service", service).Logger()

	lock := m.lock(userID + "/" + service)
	lock.Lock()
	defer lock.Unlock()

	cred, err := m.creds.Get(ctx, userID, service)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			log.Error().Err(err).Msg("credential lookup failed")
		}
		return "", false
	}
	if cred.AccessToken != "" && m.fresh(cred) {
		return cred.AccessToken, true
	}

	cfg, ok := m.clients[service]
	if !ok || cred.RefreshToken == "" {
		log.Warn().Msg("token expired and cannot be refreshed")
		return "", false
	}
	tok, err := m.refresh(ctx, cfg, cred.RefreshToken)
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues("user:"+service, "error").Inc()
		log.Warn().Err(err).Msg("token refresh failed")
		return "", false
	}
	metrics.TokenRefreshesTotal.WithLabelValues("user:"+service, "ok").Inc()

	cred.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		cred.RefreshToken = tok.RefreshToken
	}
	cred.ExpiresAt = nil
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry
		cred.ExpiresAt = &exp
	}
	if err := m.creds.Put(ctx, cred); err != nil {
		log.Error().Err(err).Msg("could not persist refreshed token")
	}
	return cred.AccessToken, true
}

// Link stores tokens obtained by an external OAuth exchange.
func (m *Manager) Link(ctx context.Context, userID, service, access, refresh string, expiresIn time.Duration) error {
	c := &model.Credential{UserID: userID, Service: service, AccessToken: access, RefreshToken: refresh}
	if expiresIn > 0 {
		exp := m.now().Add(expiresIn)
		c.ExpiresAt = &exp
	}
	return m.creds.Put(ctx, c)
}

func (m *Manager) fresh(c *model.Credential) bool {
	return c.ExpiresAt == nil || m.now().Add(m.margin).Before(*c.ExpiresAt)
}

func (m *Manager) refresh(ctx context.Context, cfg *oauth2.Config, refreshToken string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.http)
	expired := &oauth2.Token{RefreshToken: refreshToken, Expiry: m.now().Add(-time.Minute)}
	return cfg.TokenSource(ctx, expired).Token()
}

func (m *Manager) lock(key string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}
