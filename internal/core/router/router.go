// Package router holds the HTTP handlers in front of the temperature resolver.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultMaxCities = 50
	batchConcurrency = 8

	errMsgNoData       = "temperature unavailable"
	errMsgMissingParam = "missing required parameter: %s"
)

// Resolver is the caller-facing resolve operation.
type Resolver interface {
	Resolve(ctx context.Context, location string) (float64, bool)
}

type temperatureResponse struct {
	Location    string   `json:"location"`
	Temperature *float64 `json:"temperature"`
}

// CityWeather is one entry of a batch answer.
type CityWeather struct {
	City               string   `json:"city"`
	AverageTemperature *float64 `json:"averageTemperature"`
	Error              string   `json:"error,omitempty"`
}

type Extreme struct {
	City        string  `json:"city"`
	Temperature float64 `json:"temperature"`
}

type batchResponse struct {
	Cities  []CityWeather `json:"cities"`
	Hottest *Extreme      `json:"hottest,omitempty"`
	Coldest *Extreme      `json:"coldest,omitempty"`
}

// HandleTemperature serves GET /v1/temperature?location=. An unresolved
// location is still a 200 with a null temperature.
func HandleTemperature(logger *slog.Logger, res Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loc := strings.TrimSpace(r.URL.Query().Get("location"))
		if loc == "" {
			http.Error(w, fmt.Sprintf(errMsgMissingParam, "location"), http.StatusBadRequest)
			return
		}

		out := temperatureResponse{Location: loc}
		if v, ok := res.Resolve(r.Context(), loc); ok {
			out.Temperature = &v
		} else {
			logger.DebugContext(r.Context(), "no temperature", "location", loc)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// HandleTemperatures serves GET /v1/temperatures?cities=a,b,c and resolves
// the cities concurrently, answering in request order.
func HandleTemperatures(logger *slog.Logger, res Resolver, maxCities int) http.HandlerFunc {
	if maxCities <= 0 {
		maxCities = DefaultMaxCities
	}
	return func(w http.ResponseWriter, r *http.Request) {
		cities := ParseCities(r.URL.Query().Get("cities"))
		if len(cities) == 0 {
			http.Error(w, fmt.Sprintf(errMsgMissingParam, "cities"), http.StatusBadRequest)
			return
		}
		if len(cities) > maxCities {
			http.Error(w, fmt.Sprintf("too many cities: %d > %d", len(cities), maxCities), http.StatusBadRequest)
			return
		}

		out := make([]CityWeather, len(cities))
		var g errgroup.Group
		g.SetLimit(batchConcurrency)
		for i, city := range cities {
			g.Go(func() error {
				out[i] = CityWeather{City: city}
				if v, ok := res.Resolve(r.Context(), city); ok {
					out[i].AverageTemperature = &v
				} else {
					out[i].Error = errMsgNoData
				}
				return nil
			})
		}
		_ = g.Wait()

		resp := batchResponse{Cities: out}
		resp.Hottest, resp.Coldest = Extremes(out)
		logger.DebugContext(r.Context(), "batch resolved", "cities", len(cities))
		writeJSON(w, http.StatusOK, resp)
	}
}

// ParseCities splits a comma separated list, trimming entries and dropping
// empty ones.
func ParseCities(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Extremes picks the hottest and coldest resolved cities. The first city
// wins ties. Both are nil when nothing resolved.
func Extremes(cities []CityWeather) (hottest, coldest *Extreme) {
	for _, c := range cities {
		if c.AverageTemperature == nil {
			continue
		}
		t := *c.AverageTemperature
		if hottest == nil || t > hottest.Temperature {
			hottest = &Extreme{City: c.City, Temperature: t}
		}
		if coldest == nil || t < coldest.Temperature {
			coldest = &Extreme{City: c.City, Temperature: t}
		}
	}
	return hottest, coldest
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
