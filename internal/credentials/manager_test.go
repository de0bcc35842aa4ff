package credentials

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/areahq/area-engine/internal/config"
	"github.com/areahq/area-engine/internal/model"
)

type memCreds struct {
	mu sync.Mutex
	m  map[string]model.Credential
}

func newMemCreds() *memCreds { return &memCreds{m: map[string]model.Credential{}} }

func (s *memCreds) Get(_ context.Context, userID, service string) (*model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.m[userID+"/"+service]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &c, nil
}

func (s *memCreds) Put(_ context.Context, c *model.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[c.UserID+"/"+c.Service] = *c
	return nil
}

func (s *memCreds) Delete(_ context.Context, userID, service string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, userID+"/"+service)
	return nil
}

var now = time.Date(2026, 5, 5, 12, 0, 0, 0, time.UTC)

func tokenServer(t *testing.T, status int, calls *atomic.Int32) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "r1", r.Form.Get("refresh_token"))
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"a2","refresh_token":"r2","token_type":"bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newManager(creds *memCreds, tokenURL string) *Manager {
	clients := map[string]*oauth2.Config{
		"GitHub": {ClientID: "id", ClientSecret: "secret", Endpoint: oauth2.Endpoint{TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams}},
	}
	return NewManager(creds, clients, time.Minute, zerolog.Nop()).WithClock(func() time.Time { return now })
}

func TestAccessToken_FreshAndMissing(t *testing.T) {
	creds := newMemCreds()
	exp := now.Add(time.Hour)
	require.NoError(t, creds.Put(context.Background(), &model.Credential{UserID: "u1", Service: "GitHub", AccessToken: "a1", ExpiresAt: &exp}))
	require.NoError(t, creds.Put(context.Background(), &model.Credential{UserID: "u2", Service: "GitHub", AccessToken: "forever"}))
	m := newManager(creds, "http://127.0.0.1:1")

	tok, ok := m.AccessToken(context.Background(), "u1", "GitHub")
	assert.True(t, ok)
	assert.Equal(t, "a1", tok)

	tok, ok = m.AccessToken(context.Background(), "u2", "GitHub")
	assert.True(t, ok)
	assert.Equal(t, "forever", tok)

	_, ok = m.AccessToken(context.Background(), "nobody", "GitHub")
	assert.False(t, ok)
}

func TestAccessToken_RefreshesWithinMargin(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, http.StatusOK, &calls)
	creds := newMemCreds()
	exp := now.Add(30 * time.Second)
	require.NoError(t, creds.Put(context.Background(), &model.Credential{UserID: "u1", Service: "GitHub", AccessToken: "a1", RefreshToken: "r1", ExpiresAt: &exp}))
	m := newManager(creds, srv.URL)

	tok, ok := m.AccessToken(context.Background(), "u1", "GitHub")
	require.True(t, ok)
	assert.Equal(t, "a2", tok)
	assert.EqualValues(t, 1, calls.Load())

	stored, err := creds.Get(context.Background(), "u1", "GitHub")
	require.NoError(t, err)
	assert.Equal(t, "a2", stored.AccessToken)
	assert.Equal(t, "r2", stored.RefreshToken)
	require.NotNil(t, stored.ExpiresAt)
	assert.True(t, stored.ExpiresAt.After(now))
}

func TestAccessToken_RefreshFailureIsAbsent(t *testing.T) {
	var calls atomic.Int32
	srv := tokenServer(t, http.StatusBadRequest, &calls)
	creds := newMemCreds()
	exp := now.Add(-time.Hour)
	require.NoError(t, creds.Put(context.Background(), &model.Credential{UserID: "u1", Service: "GitHub", AccessToken: "a1", RefreshToken: "r1", ExpiresAt: &exp}))
	require.NoError(t, creds.Put(context.Background(), &model.Credential{UserID: "u1", Service: "Spotify", AccessToken: "s1", RefreshToken: "r1", ExpiresAt: &exp}))
	m := newManager(creds, srv.URL)

	_, ok := m.AccessToken(context.Background(), "u1", "GitHub")
	assert.False(t, ok)
	_, ok = m.AccessToken(context.Background(), "u1", "Spotify")
	assert.False(t, ok, "no refresh client configured")
	assert.EqualValues(t, 1, calls.Load())
}

func TestLinkAndClientsFromConfig(t *testing.T) {
	creds := newMemCreds()
	m := newManager(creds, "http://127.0.0.1:1")
	require.NoError(t, m.Link(context.Background(), "u1", "Twitch", "t", "", 2*time.Hour))
	c, err := creds.Get(context.Background(), "u1", "Twitch")
	require.NoError(t, err)
	assert.Equal(t, now.Add(2*time.Hour), *c.ExpiresAt)

	cfg := config.NewForTesting()
	cfg.GitHub = config.OAuthClient{ClientID: "gh", ClientSecret: "s"}
	cfg.Google = config.OAuthClient{ClientID: "g", ClientSecret: "s"}
	clients := ClientsFromConfig(cfg)
	assert.Len(t, clients, 2)
	assert.Equal(t, "https://github.com/login/oauth/access_token", clients["GitHub"].Endpoint.TokenURL)
	assert.Contains(t, clients, "YouTube")
}
