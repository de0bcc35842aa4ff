package connector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2/clientcredentials"
)

type stubConnector struct {
	NoEffects
	name string
}

func (s stubConnector) Describe() Descriptor {
	return Descriptor{Name: s.name, Triggers: []string{"tick"}}
}

func (s stubConnector) CheckTrigger(context.Context, TriggerRequest) TriggerResult {
	return Fire(s.name, Payload{"n": 1})
}

func TestRegistry_ResolveAndExists(t *testing.T) {
	reg, err := NewRegistry(stubConnector{NoEffects: NoEffects{Service: "Timer"}, name: "Timer"})
	require.NoError(t, err)

	c, err := reg.Resolve("Timer")
	require.NoError(t, err)
	assert.Equal(t, "Timer", c.Describe().Name)
	assert.True(t, reg.Exists("Timer"))
	assert.False(t, reg.Exists("timer"), "lookup is exact-match")

	_, err = reg.Resolve("Foo")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownService))
	assert.True(t, IsConfigError(err))

	transient := &Failure{Category: Recoverable, Status: 503, Err: errors.New("unavailable")}
	assert.False(t, IsConfigError(transient))
	assert.False(t, errors.Is(transient, ErrUnknownService))
}

func TestRegistry_RejectsDuplicates(t *testing.T) {
	_, err := NewRegistry(stubConnector{name: "A"}, stubConnector{name: "A"})
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestFireAndNoEffects(t *testing.T) {
	res := Fire("Timer", Payload{"x": 1})
	require.True(t, res.Fired())
	assert.Equal(t, true, res.Payload["triggered"])
	assert.Equal(t, "Timer trigger fired", res.Payload.Message())

	assert.False(t, NotTriggered().Fired())

	eff := NoEffects{Service: "Timer"}.ExecuteEffect(context.Background(), EffectRequest{Effect: "send"})
	assert.False(t, eff.Success)
	assert.Equal(t, "Timer has no reactions", eff.Message)

	assert.False(t, NoTriggers{}.CheckTrigger(context.Background(), TriggerRequest{}).Fired())
}

func TestPayloadMessage(t *testing.T) {
	assert.Equal(t, "top", Payload{"message": "top", "data": map[string]any{"message": "in"}}.Message())
	assert.Equal(t, "in", Payload{"data": map[string]any{"message": "in"}}.Message())
	assert.Equal(t, "", Payload{}.Message())
}

func TestParams(t *testing.T) {
	p := Params{"repo": "", "repo_name": "x/y", "minutes": "45", "f": float64(2.5), "on": "true",
		"headers": map[string]any{"A": "1", "B": float64(2), "C": true}}
	assert.Equal(t, "x/y", p.String("repo", "repo_name", "repository"))
	assert.Equal(t, 45, p.Int("minutes", 30))
	assert.Equal(t, 30, p.Int("missing", 30))
	assert.Equal(t, 2, p.Int("f", 0))
	assert.Equal(t, 2.5, p.Float("f", 0))
	assert.True(t, p.Bool("on", false))
	assert.Equal(t, map[string]string{"A": "1", "B": "2", "C": "true"}, p.StringMap("headers"))
}

func newTestHTTP(retries int) *HTTP {
	return NewHTTP("test", HTTPConfig{Timeout: time.Second, Retries: retries, BaseBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}, zerolog.Nop())
}

func TestHTTP_RetriesIdempotentReads(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"q":"` + r.URL.Query().Get("q") + `"}`))
	}))
	defer srv.Close()

	res := newTestHTTP(2).Get(context.Background(), srv.URL, map[string]string{"q": "go"}, nil)
	require.True(t, res.OK(), "%v", res.Err)
	var body struct {
		OK bool   `json:"ok"`
		Q  string `json:"q"`
	}
	require.Nil(t, res.Decode(&body))
	assert.True(t, body.OK)
	assert.Equal(t, "go", body.Q)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTP_DoesNotRetryEffectsOrClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	h := newTestHTTP(3)
	res := h.Do(context.Background(), Request{Method: http.MethodPost, URL: srv.URL, Body: map[string]string{"a": "b"}})
	require.False(t, res.OK())
	assert.Equal(t, Recoverable, res.Err.Category)
	assert.Equal(t, int32(1), calls.Load(), "POST must be attempted exactly once")

	calls.Store(0)
	res = h.Get(context.Background(), srv.URL, nil, nil)
	require.False(t, res.OK())
	assert.Equal(t, Irrecoverable, res.Err.Category)
	assert.Equal(t, 404, res.Err.Status)
	assert.Equal(t, int32(1), calls.Load(), "4xx is not retried")
}

func TestHTTP_GetWithoutRetryFlagIsAttemptedOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	h := newTestHTTP(2)
	res := h.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL})
	require.False(t, res.OK())
	assert.Equal(t, int32(1), calls.Load())

	calls.Store(0)
	res = h.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL, Retry: true})
	require.False(t, res.OK())
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTP_NetworkAndMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	res := newTestHTTP(0).Get(context.Background(), srv.URL, nil, nil)
	require.True(t, res.OK())
	var v map[string]any
	f := res.Decode(&v)
	require.NotNil(t, f)
	assert.Equal(t, Irrecoverable, f.Category)

	srv.Close()
	res = newTestHTTP(0).Get(context.Background(), srv.URL, nil, nil)
	require.False(t, res.OK())
	assert.Equal(t, 0, res.Err.Status)
	assert.Equal(t, Recoverable, res.Err.Category)
}

func TestHTTP_TimeoutIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	h := NewHTTP("slow", HTTPConfig{Timeout: 20 * time.Millisecond}, zerolog.Nop())
	res := h.Do(context.Background(), Request{Method: http.MethodPost, URL: srv.URL})
	assert.False(t, res.OK())
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "https://api.example.com/v1/items", redact("https://api.example.com/v1/items?apiKey=secret"))
	assert.Equal(t, "https://api.telegram.org/***/sendMessage", redact("https://api.telegram.org/bot123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw/sendMessage"))
}

func TestTokenCache_RefreshesWithinMargin(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	cache := NewTokenCache(5 * time.Minute).WithClock(func() time.Time { return now })

	var fetches int
	fetch := func(context.Context) (Token, error) {
		fetches++
		return Token{Value: "t" + string(rune('0'+fetches)), Expiry: now.Add(10 * time.Minute)}, nil
	}

	v, err := cache.Get(context.Background(), "twitch", fetch)
	require.NoError(t, err)
	assert.Equal(t, "t1", v)

	v, _ = cache.Get(context.Background(), "twitch", fetch)
	assert.Equal(t, "t1", v)
	assert.Equal(t, 1, fetches)

	// 6 minutes later the token is inside the safety margin
	now = now.Add(6 * time.Minute)
	v, _ = cache.Get(context.Background(), "twitch", fetch)
	assert.Equal(t, "t2", v)

	cache.Invalidate("twitch")
	v, _ = cache.Get(context.Background(), "twitch", fetch)
	assert.Equal(t, "t3", v)

	_, err = cache.Get(context.Background(), "broken", func(context.Context) (Token, error) {
		return Token{}, errors.New("denied")
	})
	assert.Error(t, err)
}

func TestTokenCache_ConcurrentCallersFetchOnce(t *testing.T) {
	cache := NewTokenCache(time.Minute)
	var fetches atomic.Int32
	fetch := func(context.Context) (Token, error) {
		fetches.Add(1)
		time.Sleep(10 * time.Millisecond)
		return Token{Value: "shared", Expiry: time.Now().Add(time.Hour)}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := cache.Get(context.Background(), "spotify", fetch)
			assert.NoError(t, err)
			assert.Equal(t, "shared", v)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), fetches.Load())
}

func TestClientCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"app-token","token_type":"bearer","expires_in":3600}`))
	}))
	defer srv.Close()

	fetch := ClientCredentials(clientcredentials.Config{ClientID: "id", ClientSecret: "secret", TokenURL: srv.URL}, time.Second)
	tok, err := fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "app-token", tok.Value)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Expiry, time.Minute)
}

func TestParseTime(t *testing.T) {
	got, ok := ParseTime("2026-02-03T04:05:06Z")
	require.True(t, ok)
	assert.Equal(t, 2026, got.Year())
	_, ok = ParseTime("")
	assert.False(t, ok)
	_, ok = ParseTime("soon")
	assert.False(t, ok)

	wm := got.Add(-time.Second)
	assert.True(t, After(got, &wm))
	assert.False(t, After(wm, &got))
	assert.True(t, After(wm, nil))
}

type mapCache map[string]string

func (m mapCache) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m mapCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	m[key] = value
	return nil
}

func TestBaseline_SeedsOnceThenReuses(t *testing.T) {
	ctx := context.Background()
	cache := mapCache{}
	key := WatermarkKey("Spotify", "u1", "pl1")
	assert.Equal(t, "wm:spotify:u1:pl1", key)

	t0 := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	eff, seeded, err := Baseline(ctx, cache, key, nil, t0, 0)
	require.NoError(t, err)
	assert.True(t, seeded)
	assert.Nil(t, eff)

	eff, seeded, err = Baseline(ctx, cache, key, nil, t0.Add(time.Hour), 0)
	require.NoError(t, err)
	assert.False(t, seeded)
	require.NotNil(t, eff)
	assert.True(t, eff.Equal(t0))

	last := t0.Add(2 * time.Hour)
	eff, seeded, err = Baseline(ctx, cache, key, &last, t0, 0)
	require.NoError(t, err)
	assert.False(t, seeded)
	assert.Same(t, &last, eff)
}
