// Package quote fetches random quotes, falling back to a built-in list when
// the quote API is unreachable.
package quote

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"github.com/areahq/area-engine/internal/connector"
)

const (
	Name  = "RandomQuote"
	Fetch = "random_quote_fetch"
	Daily = "random_quote_daily"

	DefaultBaseURL = "https://api.quotable.io"
)

type Quote struct {
	Content string `json:"content"`
	Author  string `json:"author"`
}

var fallback = []Quote{
	{"Le succès est la somme de petits efforts répétés chaque jour.", "Robert Collier"},
	{"La simplicité est la sophistication ultime.", "Léonard de Vinci"},
	{"Celui qui déplace une montagne commence par déplacer de petites pierres.", "Confucius"},
	{"Chaque jour est une nouvelle chance de faire mieux.", "Anonyme"},
	{"La motivation te lance. L'habitude te fait continuer.", "Jim Ryun"},
}

type Connector struct {
	connector.NoEffects
	deps    connector.Deps
	baseURL string
	http    *connector.HTTP
	log     zerolog.Logger
}

func New(deps connector.Deps, baseURL string) *Connector {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Connector{
		NoEffects: connector.NoEffects{Service: Name},
		deps:      deps,
		baseURL:   baseURL,
		http:      connector.NewHTTP(Name, deps.HTTP, deps.Log).WithTimeout(5 * time.Second),
		log:       deps.Logger(Name),
	}
}

func (c *Connector) Describe() connector.Descriptor {
	return connector.Descriptor{
		Name:        Name,
		AuthType:    "none",
		Description: "Random and daily quotes",
		FirstRun:    connector.FireOnFirstRun,
		Triggers:    []string{Fetch, Daily},
	}
}

func (c *Connector) CheckTrigger(ctx context.Context, req connector.TriggerRequest) connector.TriggerResult {
	switch req.Trigger {
	case Fetch:
		return c.fire(ctx)
	case Daily:
		now := c.deps.Clock()
		if req.LastExecutedAt != nil && req.LastExecutedAt.In(now.Location()).Format(time.DateOnly) == now.Format(time.DateOnly) {
			return connector.NotTriggered()
		}
		return c.fire(ctx)
	default:
		c.log.Warn().Str("trigger", req.Trigger).Msg("unsupported trigger")
		return connector.NotTriggered()
	}
}

func (c *Connector) fire(ctx context.Context) connector.TriggerResult {
	q := c.Random(ctx)
	return connector.Fire(Name, connector.Payload{
		"quote_content": q.Content,
		"quote_author":  q.Author,
		"message":       fmt.Sprintf("Citation du jour\n\n« %s »\n\n— %s", q.Content, q.Author),
	})
}

// Random returns a quote from the API or, on any failure, a fallback quote.
func (c *Connector) Random(ctx context.Context) Quote {
	var q Quote
	if f := c.http.Get(ctx, c.baseURL+"/random", nil, nil).Decode(&q); f != nil || q.Content == "" {
		if f != nil {
			c.log.Warn().Err(f).Msg("quote api failed, using fallback")
		}
		return fallback[rand.Intn(len(fallback))]
	}
	if q.Author == "" {
		q.Author = "Inconnu"
	}
	return q
}
