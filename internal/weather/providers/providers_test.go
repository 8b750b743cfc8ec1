package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testOptions(baseURL string) Options {
	o := DefaultOptions()
	o.Client = &http.Client{Timeout: 2 * time.Second}
	o.BaseURL = baseURL
	o.APIKey = "k"
	o.Backoff = BackoffConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
	return o
}

func TestWeatherAPI_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("key"); got != "k" {
			t.Errorf("key=%q", got)
		}
		if got := r.URL.Query().Get("q"); got != "izmir" {
			t.Errorf("q=%q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"location":{"name":"Izmir"},"current":{"temp_c":26.0}}`))
	}))
	defer srv.Close()

	p := NewWeatherAPI(testOptions(srv.URL))
	r, err := p.Fetch(context.Background(), "izmir")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if r.Temperature != 26 || r.Provider != WeatherAPIName {
		t.Fatalf("reading=%+v", r)
	}
}

func TestWeatherStack_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("access_key"); got != "k" {
			t.Errorf("access_key=%q", got)
		}
		if got := r.URL.Query().Get("query"); got != "ankara" {
			t.Errorf("query=%q", got)
		}
		_, _ = w.Write([]byte(`{"current":{"temperature":18}}`))
	}))
	defer srv.Close()

	p := NewWeatherStack(testOptions(srv.URL))
	r, err := p.Fetch(context.Background(), "ankara")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if r.Temperature != 18 || r.Provider != WeatherStackName {
		t.Fatalf("reading=%+v", r)
	}
}

func TestWeatherStack_ErrorObjectWith200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":{"code":101,"type":"invalid_access_key","info":"bad key"}}`))
	}))
	defer srv.Close()

	_, err := NewWeatherStack(testOptions(srv.URL)).Fetch(context.Background(), "ankara")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestFetch_MissingTemperature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"current":{}}`))
	}))
	defer srv.Close()

	if _, err := NewWeatherAPI(testOptions(srv.URL)).Fetch(context.Background(), "x"); !errors.Is(err, errNoTemperature) {
		t.Fatalf("weatherapi err=%v", err)
	}
	if _, err := NewWeatherStack(testOptions(srv.URL)).Fetch(context.Background(), "x"); !errors.Is(err, errNoTemperature) {
		t.Fatalf("weatherstack err=%v", err)
	}
}

func TestFetch_MissingAPIKey(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
	defer srv.Close()

	o := testOptions(srv.URL)
	o.APIKey = ""
	if _, err := NewWeatherAPI(o).Fetch(context.Background(), "x"); !errors.Is(err, errNoAPIKey) {
		t.Fatalf("err=%v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("upstream called %d times without a key", hits.Load())
	}
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"current":{"temp_c":12.5}}`))
	}))
	defer srv.Close()

	r, err := NewWeatherAPI(testOptions(srv.URL)).Fetch(context.Background(), "bursa")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if r.Temperature != 12.5 {
		t.Fatalf("temp=%v", r.Temperature)
	}
	if hits.Load() != 3 {
		t.Fatalf("hits=%d want 3", hits.Load())
	}
}

func TestFetch_DoesNotRetryClientErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewWeatherAPI(testOptions(srv.URL)).Fetch(context.Background(), "nowhere")
	if !errors.Is(err, errUnexpected) {
		t.Fatalf("err=%v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("hits=%d want 1", hits.Load())
	}
}

func TestFetch_BreakerOpens(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	o := testOptions(srv.URL)
	o.Backoff.MaxRetries = 0
	p := NewWeatherStack(o)

	// gobreaker's default ReadyToTrip opens after more than 5 consecutive failures.
	for i := 0; i < 6; i++ {
		if _, err := p.Fetch(context.Background(), "x"); !errors.Is(err, errServerError) {
			t.Fatalf("call %d err=%v", i, err)
		}
	}
	if _, err := p.Fetch(context.Background(), "x"); !errors.Is(err, errCircuitOpen) {
		t.Fatalf("err=%v want circuit open", err)
	}
	if hits.Load() != 6 {
		t.Fatalf("hits=%d want 6", hits.Load())
	}
}

func TestFetch_ContextCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	o := testOptions(srv.URL)
	o.Backoff = BackoffConfig{MaxRetries: 5, InitialInterval: time.Second, MaxInterval: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewWeatherAPI(o).Fetch(ctx, "x")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}
	if time.Since(start) > 900*time.Millisecond {
		t.Fatal("backoff ignored context")
	}
}

func TestDoRequest_InvalidConfig(t *testing.T) {
	p := NewWeatherAPI(Options{APIKey: "k", Breaker: DefaultOptions().Breaker})
	if _, err := p.Fetch(context.Background(), "x"); !errors.Is(err, errNoHTTPClient) {
		t.Fatalf("err=%v", err)
	}
	o := testOptions("http://127.0.0.1:1")
	o.Backoff.InitialInterval = 0
	if _, err := NewWeatherAPI(o).Fetch(context.Background(), "x"); !errors.Is(err, errInvalidConfig) {
		t.Fatalf("err=%v", err)
	}
}
