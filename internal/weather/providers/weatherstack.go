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
	WeatherStackName    = "weatherstack"
	WeatherStackBaseURL = "http://api.weatherstack.com/current"
)

// WeatherStack reads current.temperature from weatherstack.com. The API
// reports some failures with a 200 status and an error object, which are
// surfaced as errors here.
type WeatherStack struct {
	opts    Options
	circuit *gobreaker.CircuitBreaker
}

var _ weather.Provider = (*WeatherStack)(nil)

func NewWeatherStack(opts Options) *WeatherStack {
	if opts.BaseURL == "" {
		opts.BaseURL = WeatherStackBaseURL
	}
	return &WeatherStack{opts: opts, circuit: newBreaker(WeatherStackName, opts.Breaker)}
}

func (p *WeatherStack) Name() string { return WeatherStackName }

func (p *WeatherStack) Fetch(ctx context.Context, location string) (weather.Reading, error) {
	if p.opts.APIKey == "" {
		return weather.Reading{}, fmt.Errorf("%s: %w", WeatherStackName, errNoAPIKey)
	}

	build := func(ctx context.Context) (*http.Request, error) {
		v := url.Values{}
		v.Set("access_key", p.opts.APIKey)
		v.Set("query", location)
		return http.NewRequestWithContext(ctx, http.MethodGet, p.opts.BaseURL+"?"+v.Encode(), nil)
	}

	resp, err := doRequestWithResilience(ctx, p.opts.Client, p.opts.Backoff, p.circuit, build)
	if err != nil {
		return weather.Reading{}, fmt.Errorf("%s: %w", WeatherStackName, err)
	}
	defer resp.Body.Close()

	var payload struct {
		Current *struct {
			Temperature *float64 `json:"temperature"`
		} `json:"current"`
		Error *struct {
			Code int    `json:"code"`
			Type string `json:"type"`
			Info string `json:"info"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return weather.Reading{}, fmt.Errorf("%s: decode: %w", WeatherStackName, err)
	}
	if payload.Error != nil {
		return weather.Reading{}, fmt.Errorf("%s: api error %d (%s): %s",
			WeatherStackName, payload.Error.Code, payload.Error.Type, payload.Error.Info)
	}
	if payload.Current == nil || payload.Current.Temperature == nil {
		return weather.Reading{}, fmt.Errorf("%s: %w", WeatherStackName, errNoTemperature)
	}
	return weather.Reading{Temperature: *payload.Current.Temperature, Provider: WeatherStackName}, nil
}
