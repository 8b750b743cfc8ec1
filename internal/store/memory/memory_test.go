package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mohammed-shakir/weathercache/internal/store"
)

func TestLatest_NotFound(t *testing.T) {
	s := New(0)
	if _, err := s.Latest(context.Background(), "ankara"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestLatest_ByTimestampNotInsertionOrder(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_ = s.Append(ctx, store.Record{Location: "ankara", Temperature: 18, Timestamp: base.Add(5 * time.Minute)})
	_ = s.Append(ctx, store.Record{Location: "ankara", Temperature: 12, Timestamp: base})
	_ = s.Append(ctx, store.Record{Location: "izmir", Temperature: 30, Timestamp: base.Add(time.Hour)})

	got, err := s.Latest(ctx, "ankara")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got.Temperature != 18 {
		t.Fatalf("temperature=%v want 18", got.Temperature)
	}
	if s.Len("ankara") != 2 {
		t.Fatalf("append-only store lost records: %d", s.Len("ankara"))
	}
}

func TestAppend_StoresUTCAndEnforcesHistory(t *testing.T) {
	s := New(2)
	ctx := context.Background()
	ist := time.FixedZone("TRT", 3*60*60)
	for i := range 3 {
		ts := time.Date(2026, 3, 1, 10, i, 0, 0, ist)
		if err := s.Append(ctx, store.Record{Location: "bursa", Temperature: float64(i), Timestamp: ts}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if s.Len("bursa") != 2 {
		t.Fatalf("len=%d want 2", s.Len("bursa"))
	}
	got, _ := s.Latest(ctx, "bursa")
	if got.Temperature != 2 || got.Timestamp.Location() != time.UTC {
		t.Fatalf("latest=%+v", got)
	}
}

func TestAppend_HistoryTrimKeepsNewestByTimestamp(t *testing.T) {
	s := New(2)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_ = s.Append(ctx, store.Record{Location: "antalya", Temperature: 31, Timestamp: base.Add(time.Hour)})
	_ = s.Append(ctx, store.Record{Location: "antalya", Temperature: 22, Timestamp: base})
	_ = s.Append(ctx, store.Record{Location: "antalya", Temperature: 25, Timestamp: base.Add(time.Minute)})

	if s.Len("antalya") != 2 {
		t.Fatalf("len=%d want 2", s.Len("antalya"))
	}
	got, err := s.Latest(ctx, "antalya")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if got.Temperature != 31 {
		t.Fatalf("late arrival evicted the newest record: latest=%+v", got)
	}
}
