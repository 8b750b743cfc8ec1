package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"golang.org/x/sync/errgroup"

	"github.com/mohammed-shakir/weathercache/internal/invalidation"
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

type stats struct {
	mu        sync.Mutex
	latencies []time.Duration
	nulls     int
	errors    int
}

func (s *stats) record(d time.Duration, resolved bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err != nil:
		s.errors++
	case !resolved:
		s.nulls++
		s.latencies = append(s.latencies, d)
	default:
		s.latencies = append(s.latencies, d)
	}
}

func (s *stats) report() {
	s.mu.Lock()
	defer s.mu.Unlock()
	slices.Sort(s.latencies)
	pct := func(p float64) time.Duration {
		if len(s.latencies) == 0 {
			return 0
		}
		return s.latencies[int(p*float64(len(s.latencies)-1))]
	}
	fmt.Printf("requests=%d null=%d errors=%d p50=%s p95=%s p99=%s max=%s\n",
		len(s.latencies)+s.errors, s.nulls, s.errors, pct(0.50), pct(0.95), pct(0.99), pct(1))
}

func resolveOnce(ctx context.Context, client *http.Client, base, city string) (bool, error) {
	u := fmt.Sprintf("%s/v1/temperature?location=%s", strings.TrimRight(base, "/"), url.QueryEscape(city))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("status %d", resp.StatusCode)
	}
	var body struct {
		Temperature *float64 `json:"temperature"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode: %w", err)
	}
	return body.Temperature != nil, nil
}

// invalidate publishes one invalidation message per city.
func invalidate(brokers []string, topic string, cities []string) error {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Version = sarama.V3_6_0_0
	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return fmt.Errorf("producer create: %w", err)
	}
	defer func() { _ = prod.Close() }()

	for _, c := range cities {
		b, err := json.Marshal(invalidation.Event{
			Version:  1,
			Op:       invalidation.OpInvalidate,
			Location: c,
			TS:       time.Now().UTC(),
			Source:   "loadgen",
		})
		if err != nil {
			return err
		}
		if _, _, err := prod.SendMessage(&sarama.ProducerMessage{
			Topic: topic, Key: sarama.StringEncoder(c), Value: sarama.ByteEncoder(b),
		}); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	fmt.Printf("published %d invalidations to %s\n", len(cities), topic)
	return nil
}

func main() {
	target := flag.String("target", getenv("TARGET_URL", "http://localhost:8090"), "weatherd base URL")
	citiesFlag := flag.String("cities", getenv("CITIES", "Istanbul,Izmir,Ankara,Bursa,Antalya"), "comma separated cities")
	workers := flag.Int("workers", 32, "concurrent clients")
	duration := flag.Duration("duration", 15*time.Second, "how long to generate load")
	doInvalidate := flag.Bool("invalidate", false, "publish an invalidation for every city before the run")
	flag.Parse()

	var cities []string
	for c := range strings.SplitSeq(*citiesFlag, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cities = append(cities, c)
		}
	}
	if len(cities) == 0 {
		fmt.Fprintln(os.Stderr, "no cities given")
		os.Exit(2)
	}

	if *doInvalidate {
		brokers := strings.Split(getenv("KAFKA_BROKERS", "localhost:9092"), ",")
		if err := invalidate(brokers, getenv("KAFKA_INVALIDATION_TOPIC", "weather-invalidation"), cities); err != nil {
			fmt.Fprintln(os.Stderr, "invalidate:", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	client := &http.Client{Timeout: 2 * time.Minute}
	st := &stats{}
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < *workers; w++ {
		g.Go(func() error {
			for i := w; gctx.Err() == nil; i++ {
				start := time.Now()
				ok, err := resolveOnce(gctx, client, *target, cities[i%len(cities)])
				if gctx.Err() != nil {
					return nil
				}
				st.record(time.Since(start), ok, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	st.report()
}
