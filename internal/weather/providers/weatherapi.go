package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"

	"github.com/mohammed-shakir/weathercache/internal/weather"
)

const (
	WeatherAPIName    = "weatherapi"
	WeatherAPIBaseURL = "http://api.weatherapi.com/v1/current.json"
)

// WeatherAPI reads current.temp_c from WeatherAPI.com.
type WeatherAPI struct {
	opts    Options
	circuit *gobreaker.CircuitBreaker
}

var _ weather.Provider = (*WeatherAPI)(nil)

func NewWeatherAPI(opts Options) *WeatherAPI {
	if opts.BaseURL == "" {
		opts.BaseURL = WeatherAPIBaseURL
	}
	return &WeatherAPI{opts: opts, circuit: newBreaker(WeatherAPIName, opts.Breaker)}
}

func (p *WeatherAPI) Name() string { return WeatherAPIName }

func (p *WeatherAPI) Fetch(ctx context.Context, location string) (weather.Reading, error) {
	if p.opts.APIKey == "" {
		return weather.Reading{}, fmt.Errorf("%s: %w", WeatherAPIName, errNoAPIKey)
	}

	build := func(ctx context.Context) (*http.Request, error) {
		v := url.Values{}
		v.Set("key", p.opts.APIKey)
		v.Set("q", location)
		return http.NewRequestWithContext(ctx, http.MethodGet, p.opts.BaseURL+"?"+v.Encode(), nil)
	}

	resp, err := doRequestWithResilience(ctx, p.opts.Client, p.opts.Backoff, p.circuit, build)
	if err != nil {
		return weather.Reading{}, fmt.Errorf("%s: %w", WeatherAPIName, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Current struct {
			TempC *float64 `json:"temp_c"`
		} `json:"current"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.Reading{}, fmt.Errorf("%s: decode: %w", WeatherAPIName, err)
	}
	if payload.Current.TempC == nil {
		return weather.Reading{}, fmt.Errorf("%s: %w", WeatherAPIName, errNoTemperature)
	}
	return weather.Reading{Temperature: *payload.Current.TempC, Provider: WeatherAPIName}, nil
}
