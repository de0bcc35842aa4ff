// Package weather reads current conditions and forecasts from weatherapi.com.
package weather

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/areahq/area-engine/internal/connector"
)

const (
	Name             = "Weather"
	TemperatureAbove = "weather_temperature_above"
	TemperatureBelow = "weather_temperature_below"
	RainForecast     = "weather_rain_forecast"
	DailyReport      = "weather_daily_report"

	DefaultBaseURL = "https://api.weatherapi.com/v1"
	defaultCity    = "Paris"
)

type Options struct {
	APIKey  string
	BaseURL string
}

type Connector struct {
	connector.NoEffects
	deps connector.Deps
	opts Options
	http *connector.HTTP
	log  zerolog.Logger
}

func New(deps connector.Deps, opts Options) *Connector {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	return &Connector{
		NoEffects: connector.NoEffects{Service: Name},
		deps:      deps,
		opts:      opts,
		http:      connector.NewHTTP(Name, deps.HTTP, deps.Log),
		log:       deps.Logger(Name),
	}
}

func (c *Connector) Describe() connector.Descriptor {
	return connector.Descriptor{
		Name:        Name,
		AuthType:    "api_key",
		Description: "Temperature thresholds, rain forecasts and daily reports",
		FirstRun:    connector.FireOnFirstRun,
		Triggers:    []string{TemperatureAbove, TemperatureBelow, RainForecast, DailyReport},
	}
}

type current struct {
	Location struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"location"`
	Current struct {
		TempC       float64 `json:"temp_c"`
		FeelsLikeC  float64 `json:"feelslike_c"`
		Humidity    float64 `json:"humidity"`
		WindKph     float64 `json:"wind_kph"`
		LastUpdated string  `json:"last_updated"`
		Condition   struct {
			Text string `json:"text"`
			Icon string `json:"icon"`
		} `json:"condition"`
	} `json:"current"`
	Forecast struct {
		Days []struct {
			Hours []struct {
				Time         string  `json:"time"`
				TempC        float64 `json:"temp_c"`
				WillItRain   int     `json:"will_it_rain"`
				ChanceOfRain float64 `json:"chance_of_rain"`
				Condition    struct {
					Text string `json:"text"`
				} `json:"condition"`
			} `json:"hour"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

func (c *Connector) CheckTrigger(ctx context.Context, req connector.TriggerRequest) connector.TriggerResult {
	log := c.log.With().Str("trigger", req.Trigger).Logger()
	if c.opts.APIKey == "" {
		log.Warn().Msg("weather api key missing")
		return connector.NotTriggered()
	}
	city := req.Params.String("city", "location")
	if city == "" {
		city = defaultCity
	}
	now := c.deps.Clock()

	switch req.Trigger {
	case TemperatureAbove, TemperatureBelow:
		if !cooledDown(req, now) {
			return connector.NotTriggered()
		}
		w, ok := c.fetch(ctx, log, "/current.json", city, nil)
		if !ok {
			return connector.NotTriggered()
		}
		threshold := req.Params.Float("threshold", 20)
		temp := w.Current.TempC
		if req.Trigger == TemperatureAbove && temp > threshold {
			return c.fire(w, fmt.Sprintf("> %g°C", threshold), threshold)
		}
		if req.Trigger == TemperatureBelow && temp < threshold {
			return c.fire(w, fmt.Sprintf("< %g°C", threshold), threshold)
		}
		return connector.NotTriggered()

	case RainForecast:
		if !cooledDown(req, now) {
			return connector.NotTriggered()
		}
		hours := req.Params.Int("hours", 12)
		w, ok := c.fetch(ctx, log, "/forecast.json", city, map[string]string{"days": "2"})
		if !ok {
			return connector.NotTriggered()
		}
		return c.rain(w, now, hours, req.Params.Float("chance", 50))

	case DailyReport:
		if req.LastExecutedAt != nil && sameDay(req.LastExecutedAt.In(now.Location()), now) {
			return connector.NotTriggered()
		}
		if at := req.Params.String("time"); at != "" {
			if clk, err := time.Parse("15:04", at); err == nil {
				due := time.Date(now.Year(), now.Month(), now.Day(), clk.Hour(), clk.Minute(), 0, 0, now.Location())
				if now.Before(due) {
					return connector.NotTriggered()
				}
			}
		}
		w, ok := c.fetch(ctx, log, "/current.json", city, nil)
		if !ok {
			return connector.NotTriggered()
		}
		return c.fire(w, "Rapport quotidien", 0)

	default:
		log.Warn().Msg("unsupported trigger")
		return connector.NotTriggered()
	}
}

func (c *Connector) fetch(ctx context.Context, log zerolog.Logger, path, city string, extra map[string]string) (*current, bool) {
	query := map[string]string{"key": c.opts.APIKey, "q": city, "lang": "fr"}
	for k, v := range extra {
		query[k] = v
	}
	var w current
	if f := c.http.Get(ctx, c.opts.BaseURL+path, query, nil).Decode(&w); f != nil {
		log.Warn().Err(f).Str("city", city).Msg("weather request failed")
		return nil, false
	}
	return &w, true
}

func (c *Connector) info(w *current) map[string]any {
	icon := w.Current.Condition.Icon
	if strings.HasPrefix(icon, "//") {
		icon = "https:" + icon
	}
	return map[string]any{
		"temperature":   w.Current.TempC,
		"feels_like":    w.Current.FeelsLikeC,
		"humidity":      w.Current.Humidity,
		"weather":       w.Current.Condition.Text,
		"weather_icon":  icon,
		"wind_speed":    w.Current.WindKph,
		"city":          w.Location.Name,
		"country":       w.Location.Country,
		"last_updated":  w.Current.LastUpdated,
		"temp_emoji":    temperatureEmoji(w.Current.TempC),
		"weather_emoji": conditionEmoji(w.Current.Condition.Text),
	}
}

func (c *Connector) fire(w *current, reason string, threshold float64) connector.TriggerResult {
	data := c.info(w)
	data["trigger_reason"] = reason
	if threshold != 0 {
		data["threshold"] = threshold
	}
	data["message"] = fmt.Sprintf("Météo à %s\nTempérature: %g°C\nConditions: %s\nHumidité: %g%%\nVent: %g km/h",
		w.Location.Name, w.Current.TempC, w.Current.Condition.Text, w.Current.Humidity, w.Current.WindKph)
	return connector.Fire(Name, connector.Payload{"data": data})
}

func (c *Connector) rain(w *current, now time.Time, hours int, chance float64) connector.TriggerResult {
	horizon := now.Add(time.Duration(hours) * time.Hour)
	for _, day := range w.Forecast.Days {
		for _, h := range day.Hours {
			at, err := time.ParseInLocation("2006-01-02 15:04", h.Time, now.Location())
			if err != nil || at.Before(now.Truncate(time.Hour)) || at.After(horizon) {
				continue
			}
			if h.WillItRain == 1 || h.ChanceOfRain >= chance {
				data := c.info(w)
				data["rain_at"] = h.Time
				data["chance_of_rain"] = h.ChanceOfRain
				data["trigger_reason"] = "Pluie prévue"
				data["message"] = fmt.Sprintf("Pluie prévue à %s vers %s (%g%%)", w.Location.Name, at.Format("15:04"), h.ChanceOfRain)
				return connector.Fire(Name, connector.Payload{"data": data})
			}
		}
	}
	return connector.NotTriggered()
}

// cooledDown re-arms a condition trigger cooldown_minutes after it last fired.
func cooledDown(req connector.TriggerRequest, now time.Time) bool {
	if req.LastExecutedAt == nil {
		return true
	}
	cooldown := time.Duration(req.Params.Int("cooldown_minutes", 60)) * time.Minute
	return now.Sub(*req.LastExecutedAt) >= cooldown
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func temperatureEmoji(t float64) string {
	switch {
	case t > 30:
		return "🔥"
	case t > 25:
		return "☀️"
	case t > 20:
		return "😎"
	case t > 15:
		return "🌤️"
	case t > 10:
		return "⛅"
	case t > 5:
		return "🌥️"
	case t > 0:
		return "❄️"
	default:
		return "🥶"
	}
}

func conditionEmoji(condition string) string {
	c := strings.ToLower(condition)
	switch {
	case strings.Contains(c, "sun"), strings.Contains(c, "clear"), strings.Contains(c, "soleil"):
		return "☀️"
	case strings.Contains(c, "cloud"), strings.Contains(c, "nuage"):
		return "☁️"
	case strings.Contains(c, "rain"), strings.Contains(c, "pluie"):
		return "🌧️"
	case strings.Contains(c, "storm"), strings.Contains(c, "orage"):
		return "⛈️"
	case strings.Contains(c, "snow"), strings.Contains(c, "neige"):
		return "❄️"
	case strings.Contains(c, "fog"), strings.Contains(c, "mist"), strings.Contains(c, "brouillard"):
		return "🌫️"
	default:
		return "🌈"
	}
}
