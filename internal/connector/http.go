package connector

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/areahq/area-engine/internal/metrics"
)

// HTTPConfig bounds every vendor call.
type HTTPConfig struct {
	Timeout     time.Duration
	Retries     int // extra attempts for requests that opt in with Request.Retry
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	UserAgent   string
}

func (c HTTPConfig) withDefaults() HTTPConfig {
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 200 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 2 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = "area-engine/1.0"
	}
	return c
}

// HTTP is the vendor call wrapper shared by HTTP connectors. It never returns
// a Go error: every call yields a Result to be inspected explicitly.
type HTTP struct {
	service string
	cfg     HTTPConfig
	client  *resty.Client
	log     zerolog.Logger
}

// NewHTTP builds a wrapper for one service.
func NewHTTP(service string, cfg HTTPConfig, log zerolog.Logger) *HTTP {
	cfg = cfg.withDefaults()
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", cfg.UserAgent)
	return &HTTP{
		service: service,
		cfg:     cfg,
		client:  client,
		log:     log.With().Str("service", service).Logger(),
	}
}

// WithTimeout returns a copy using a different per-call timeout.
func (h *HTTP) WithTimeout(d time.Duration) *HTTP {
	cfg := h.cfg
	cfg.Timeout = d
	return NewHTTP(h.service, cfg, h.log)
}

// Request describes one vendor call.
type Request struct {
	Method  string
	URL     string
	Query   map[string]string
	Headers map[string]string
	Bearer  string
	Body    any
	Form    map[string]string
	// Retry allows bounded retries of a GET or HEAD. Trigger reads set it;
	// effects never do, whatever their method.
	Retry bool
}

// Result is the outcome of a call: a 2xx response or a Failure.
type Result struct {
	Status int
	Body   []byte
	Header http.Header
	Err    *Failure
}

// OK reports whether the call returned a 2xx response.
func (r Result) OK() bool { return r.Err == nil }

// Decode unmarshals a successful JSON body.
func (r Result) Decode(v any) *Failure {
	if r.Err != nil {
		return r.Err
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return malformed("decode", err)
	}
	return nil
}

// Get performs a trigger read with bounded retries.
func (h *HTTP) Get(ctx context.Context, url string, query, headers map[string]string) Result {
	return h.Do(ctx, Request{Method: http.MethodGet, URL: url, Query: query, Headers: headers, Retry: true})
}

// Do performs the request. Only a GET or HEAD with Retry set is retried on
// recoverable failures; everything else gets exactly one attempt.
func (h *HTTP) Do(ctx context.Context, req Request) Result {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	retries := 0
	if req.Retry && idempotent(req.Method) {
		retries = h.cfg.Retries
	}

	var res Result
	op := func() error {
		res = h.once(ctx, req)
		if res.Err == nil {
			return nil
		}
		if res.Err.Category == Irrecoverable {
			return backoff.Permanent(res.Err)
		}
		return res.Err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.cfg.BaseBackoff
	b.MaxInterval = h.cfg.MaxBackoff
	b.MaxElapsedTime = 0
	_ = backoff.RetryNotify(op,
		backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx),
		func(err error, d time.Duration) {
			h.log.Debug().Err(err).Str("url", redact(req.URL)).Dur("backoff", d).Msg("retrying vendor call")
		})
	return res
}

func (h *HTTP) once(ctx context.Context, req Request) Result {
	r := h.client.R().SetContext(ctx)
	if len(req.Query) > 0 {
		r.SetQueryParams(req.Query)
	}
	if len(req.Headers) > 0 {
		r.SetHeaders(req.Headers)
	}
	if req.Bearer != "" {
		r.SetAuthToken(req.Bearer)
	}
	if req.Form != nil {
		r.SetFormData(req.Form)
	} else if req.Body != nil {
		r.SetBody(req.Body)
	}

	op := req.Method + " " + redact(req.URL)
	resp, err := r.Execute(req.Method, req.URL)
	if err != nil {
		metrics.HTTPRequestsTotal.WithLabelValues(h.service, req.Method, "network").Inc()
		return Result{Err: networkFailure(op, err)}
	}
	res := Result{Status: resp.StatusCode(), Body: resp.Body(), Header: resp.Header()}
	if res.Status < 200 || res.Status > 299 {
		res.Err = statusFailure(res.Status, res.Body, op)
		metrics.HTTPRequestsTotal.WithLabelValues(h.service, req.Method, strings.ToLower(res.Err.Category.String())).Inc()
		return res
	}
	metrics.HTTPRequestsTotal.WithLabelValues(h.service, req.Method, "ok").Inc()
	return res
}

func idempotent(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// redact strips query strings and masks long path segments, which carry API
// keys, bot tokens and webhook secrets.
func redact(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		url = url[:i]
	}
	parts := strings.Split(url, "/")
	for i, p := range parts {
		if i > 2 && len(p) >= 24 {
			parts[i] = "***"
		}
	}
	return strings.Join(parts, "/")
}
