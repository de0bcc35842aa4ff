package weather

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/areahq/area-engine/internal/connector"
	"github.com/areahq/area-engine/internal/connector/connectortest"
)

var now = time.Date(2026, 7, 14, 10, 30, 0, 0, time.UTC)

func newWeather(t *testing.T, temp float64, hours []map[string]any) (*Connector, *int) {
	calls := 0
	mux := http.NewServeMux()
	body := func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "k", r.URL.Query().Get("key"))
		assert.Equal(t, "Lyon", r.URL.Query().Get("q"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"location": map[string]any{"name": "Lyon", "country": "France"},
			"current": map[string]any{
				"temp_c": temp, "humidity": 40, "wind_kph": 12,
				"condition": map[string]any{"text": "Sunny", "icon": "//cdn/icon.png"},
			},
			"forecast": map[string]any{"forecastday": []any{map[string]any{"hour": hours}}},
		})
	}
	mux.HandleFunc("/current.json", body)
	mux.HandleFunc("/forecast.json", body)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(connectortest.Deps(connectortest.NewClock(now)), Options{APIKey: "k", BaseURL: srv.URL}), &calls
}

func check(c *Connector, trigger string, params connector.Params, last *time.Time) connector.TriggerResult {
	return c.CheckTrigger(context.Background(), connector.TriggerRequest{Trigger: trigger, Params: params, LastExecutedAt: last})
}

func TestTemperatureThresholds(t *testing.T) {
	w, _ := newWeather(t, 27.5, nil)
	params := connector.Params{"city": "Lyon", "threshold": "25"}

	res := check(w, TemperatureAbove, params, nil)
	require.True(t, res.Fired())
	data := res.Payload["data"].(map[string]any)
	assert.Equal(t, 27.5, data["temperature"])
	assert.Equal(t, "https://cdn/icon.png", data["weather_icon"])
	assert.Equal(t, "☀️", data["temp_emoji"])
	assert.Contains(t, res.Payload.Message(), "Lyon")

	assert.False(t, check(w, TemperatureBelow, params, nil).Fired())
	assert.True(t, check(w, TemperatureBelow, connector.Params{"city": "Lyon", "threshold": 30}, nil).Fired())
}

func TestConditionCooldown(t *testing.T) {
	w, calls := newWeather(t, 35, nil)
	params := connector.Params{"city": "Lyon", "threshold": 20}

	recent := now.Add(-20 * time.Minute)
	assert.False(t, check(w, TemperatureAbove, params, &recent).Fired())
	assert.Zero(t, *calls, "no vendor call while cooling down")

	old := now.Add(-61 * time.Minute)
	assert.True(t, check(w, TemperatureAbove, params, &old).Fired())

	short := connector.Params{"city": "Lyon", "threshold": 20, "cooldown_minutes": 10}
	assert.True(t, check(w, TemperatureAbove, short, &recent).Fired())
}

func TestRainForecast(t *testing.T) {
	hours := []map[string]any{
		{"time": "2026-07-14 08:00", "will_it_rain": 1, "chance_of_rain": 90},
		{"time": "2026-07-14 11:00", "will_it_rain": 0, "chance_of_rain": 10},
		{"time": "2026-07-14 15:00", "will_it_rain": 0, "chance_of_rain": 70},
	}
	w, _ := newWeather(t, 18, hours)

	res := check(w, RainForecast, connector.Params{"city": "Lyon"}, nil)
	require.True(t, res.Fired())
	assert.Equal(t, "2026-07-14 15:00", res.Payload["data"].(map[string]any)["rain_at"])

	assert.False(t, check(w, RainForecast, connector.Params{"city": "Lyon", "hours": 3}, nil).Fired())
}

func TestDailyReportOncePerDay(t *testing.T) {
	w, _ := newWeather(t, 18, nil)
	params := connector.Params{"city": "Lyon"}

	assert.True(t, check(w, DailyReport, params, nil).Fired())
	earlier := now.Add(-2 * time.Hour)
	assert.False(t, check(w, DailyReport, params, &earlier).Fired())
	yesterday := now.Add(-24 * time.Hour)
	assert.True(t, check(w, DailyReport, params, &yesterday).Fired())
	assert.False(t, check(w, DailyReport, connector.Params{"city": "Lyon", "time": "18:00"}, &yesterday).Fired())
}

func TestMissingKeyAndVendorError(t *testing.T) {
	bare := New(connectortest.Deps(connectortest.NewClock(now)), Options{})
	assert.False(t, check(bare, DailyReport, nil, nil).Fired())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"No matching location found."}}`, http.StatusBadRequest)
	}))
	defer srv.Close()
	w := New(connectortest.Deps(connectortest.NewClock(now)), Options{APIKey: "k", BaseURL: srv.URL})
	assert.False(t, check(w, DailyReport, connector.Params{"city": "Nowhere"}, nil).Fired())
}
