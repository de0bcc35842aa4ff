// Package webhook calls arbitrary HTTP endpoints with trigger data.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/areahq/area-engine/internal/connector"
	"github.com/areahq/area-engine/internal/templating"
)

const (
	Name  = "Webhook"
	Call  = "webhook_call"
	Alias = "call_webhook"
)

var methods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodPatch: true, http.MethodDelete: true,
}

type Connector struct {
	connector.NoTriggers
	http *connector.HTTP
	log  zerolog.Logger
}

func New(deps connector.Deps) *Connector {
	return &Connector{
		http: connector.NewHTTP(Name, deps.HTTP, deps.Log),
		log:  deps.Logger(Name),
	}
}

func (c *Connector) Describe() connector.Descriptor {
	return connector.Descriptor{
		Name:        Name,
		AuthType:    "none",
		Description: "Call an HTTP endpoint",
		FirstRun:    connector.FireOnFirstRun,
		Effects:     []string{Call, Alias},
	}
}

func (c *Connector) ExecuteEffect(ctx context.Context, req connector.EffectRequest) connector.EffectResult {
	if req.Effect != Call && req.Effect != Alias {
		return connector.UnsupportedEffect(Name, req.Effect)
	}
	target := req.Params.String("url")
	if target == "" {
		return connector.Failed("No URL provided", nil)
	}
	if u, err := url.Parse(target); err != nil || u.Host == "" {
		return connector.Failed("Invalid URL", err)
	}
	method := strings.ToUpper(req.Params.String("method"))
	if !methods[method] {
		method = http.MethodPost
	}

	vars := fields(req.TriggerData)
	body := substitute(req.Params["body"], vars)
	r := connector.Request{Method: method, URL: target, Headers: req.Params.StringMap("headers")}
	if method == http.MethodGet {
		if m, ok := body.(map[string]any); ok {
			r.Query = flat(m)
		}
	} else if body != nil {
		r.Body = body
	} else {
		r.Body = map[string]any{}
	}

	res := c.http.Do(ctx, r)
	if res.Err != nil {
		c.log.Warn().Err(res.Err).Str("method", method).Msg("webhook call failed")
		msg := "Webhook call failed: " + res.Err.Error()
		if res.Err.Status != 0 {
			msg = fmt.Sprintf("HTTP %d", res.Err.Status)
		}
		return connector.Failed(msg, res.Err)
	}
	data := map[string]any{"status": res.Status}
	var decoded any
	if json.Unmarshal(res.Body, &decoded) == nil {
		data["response"] = decoded
	} else if len(res.Body) > 0 {
		data["response"] = string(res.Body)
	}
	return connector.Succeeded(fmt.Sprintf("Webhook %s %d", method, res.Status), data)
}

// fields collects the scalar trigger values available as {key} placeholders.
func fields(p connector.Payload) map[string]string {
	out := map[string]string{}
	for k, v := range p {
		if s, ok := templating.Scalar(v); ok {
			out[k] = s
		}
	}
	if data, ok := p[templating.DataKey].(map[string]any); ok {
		for k, v := range data {
			if s, ok := templating.Scalar(v); ok {
				out[k] = s
			}
		}
	}
	return out
}

// substitute replaces single-brace {key} placeholders in every string of v.
func substitute(v any, vars map[string]string) any {
	switch x := v.(type) {
	case string:
		for k, val := range vars {
			x = strings.ReplaceAll(x, "{"+k+"}", val)
		}
		return x
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = substitute(item, vars)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = substitute(item, vars)
		}
		return out
	default:
		return v
	}
}

func flat(m map[string]any) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := templating.Scalar(v); ok {
			out[k] = s
		}
	}
	return out
}
