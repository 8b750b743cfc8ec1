package resolver

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegistry_GetOrCreateIsAtomic(t *testing.T) {
	r := newRegistry()
	var created atomic.Int32
	var wg sync.WaitGroup
	got := make([]*group, 100)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = r.getOrCreate("izmir", func() *group {
				created.Add(1)
				return newGroup("izmir", time.Now())
			})
		}(i)
	}
	wg.Wait()

	if created.Load() != 1 {
		t.Fatalf("created %d groups want 1", created.Load())
	}
	for i := range got {
		if got[i] != got[0] {
			t.Fatalf("caller %d got a different group", i)
		}
	}
	if r.Len() != 1 {
		t.Fatalf("Len=%d want 1", r.Len())
	}
}

func TestRegistry_EvictIsIdentityChecked(t *testing.T) {
	r := newRegistry()
	old := newGroup("ankara", time.Now())
	r.getOrCreate("ankara", func() *group { return old })
	r.evict("ankara", old)
	r.evict("ankara", old) // redundant evict is a no-op

	fresh := r.getOrCreate("ankara", func() *group { return newGroup("ankara", time.Now()) })
	if fresh == old {
		t.Fatal("evicted group returned again")
	}
	r.evict("ankara", old)
	if g, ok := r.lookup("ankara"); !ok || g != fresh {
		t.Fatal("stale evict removed the successor")
	}
	r.evict("ankara", fresh)
	if r.Len() != 0 {
		t.Fatalf("Len=%d want 0", r.Len())
	}
}

func TestRegistry_LenAcrossShards(t *testing.T) {
	r := newRegistry()
	for i := 0; i < 500; i++ {
		loc := fmt.Sprintf("city-%d", i)
		r.getOrCreate(loc, func() *group { return newGroup(loc, time.Now()) })
	}
	if r.Len() != 500 {
		t.Fatalf("Len=%d want 500", r.Len())
	}
}

func TestGroup_JoinOnlyWhileOpen(t *testing.T) {
	g := newGroup("izmir", time.Now())
	if !g.join() || !g.join() {
		t.Fatal("join should succeed while open")
	}
	if n := g.beginFetch(); n != 2 {
		t.Fatalf("pending=%d want 2", n)
	}
	if g.join() {
		t.Fatal("join succeeded while fetching")
	}
	if g.currentState() != stateFetching {
		t.Fatalf("state=%v", g.currentState())
	}

	g.settle(21.5, true)
	g.broadcast()
	if g.join() {
		t.Fatal("join succeeded after close")
	}
	v, ok := g.wait(context.Background())
	if !ok || v != 21.5 {
		t.Fatalf("wait=%v,%v", v, ok)
	}
	if !g.closed(context.Background()) {
		t.Fatal("closed should report true after broadcast")
	}
}

func TestGroup_WaitHonoursCallerContext(t *testing.T) {
	g := newGroup("izmir", time.Now())
	g.join()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := g.wait(ctx); ok {
		t.Fatal("cancelled wait returned a value")
	}
	if g.closed(ctx) {
		t.Fatal("cancelled closed() reported true")
	}
	if g.currentState() != stateOpen {
		t.Fatal("caller cancel changed group state")
	}
}

func TestGroupState_String(t *testing.T) {
	for st, want := range map[groupState]string{
		stateOpen:      "open",
		stateFetching:  "fetching",
		stateClosed:    "closed",
		groupState(42): "unknown",
	} {
		if st.String() != want {
			t.Fatalf("%d.String()=%q want %q", int(st), st.String(), want)
		}
	}
}
