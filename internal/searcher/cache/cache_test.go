package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/Rifat977/search-bench/internal/catalog"
	"github.com/Rifat977/search-bench/pkg/config"
	pkgredis "github.com/Rifat977/search-bench/pkg/redis"
)

func newTestCache(t *testing.T) (*QueryCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := pkgredis.NewClient(config.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return New(client, time.Minute, nil), mr
}

func entry(q string) *Entry {
	return &Entry{Query: q, TotalHits: 1, Products: []catalog.Product{{Title: "Red Shoes", Brand: "Acme"}}}
}

func TestGetOrComputeCachesResult(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()
	calls := 0
	compute := func(context.Context) (*Entry, error) {
		calls++
		return entry("red"), nil
	}

	e, hit, err := c.GetOrCompute(ctx, "fulltext", "red", 10, compute)
	if err != nil || hit || e.TotalHits != 1 {
		t.Fatalf("first call: e=%+v hit=%v err=%v", e, hit, err)
	}
	e, hit, err = c.GetOrCompute(ctx, "fulltext", "red", 10, compute)
	if err != nil || !hit {
		t.Fatalf("second call: hit=%v err=%v", hit, err)
	}
	if e.Products[0].Title != "Red Shoes" {
		t.Errorf("cached products = %+v", e.Products)
	}
	if calls != 1 {
		t.Errorf("compute ran %d times", calls)
	}

	stats, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Hits != 1 || stats.Misses != 1 || stats.Keys != 1 || stats.HitRate != 0.5 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestKeySeparatesEngineAndLimit(t *testing.T) {
	keys := map[string]bool{
		Key("fulltext", "red", 10): true,
		Key("baseline", "red", 10): true,
		Key("fulltext", "red", 5):  true,
		Key("fulltext", "re", 10):  true,
	}
	if len(keys) != 4 {
		t.Fatalf("keys collide: %v", keys)
	}
}

func TestErrorsAreNotCached(t *testing.T) {
	c, mr := newTestCache(t)
	boom := errors.New("boom")
	_, _, err := c.GetOrCompute(context.Background(), "fulltext", "x", 10, func(context.Context) (*Entry, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if n := len(mr.Keys()); n != 0 {
		t.Fatalf("%d keys stored after error", n)
	}
}

func TestConcurrentMissesShareCompute(t *testing.T) {
	c, _ := newTestCache(t)
	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (*Entry, error) {
		calls.Add(1)
		<-release
		return entry("hat"), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := c.GetOrCompute(context.Background(), "fulltext", "hat", 10, compute); err != nil {
				t.Error(err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	if n := calls.Load(); n != 1 {
		t.Fatalf("compute ran %d times", n)
	}
}

func TestCancelledCallerDoesNotFailSharedFill(t *testing.T) {
	c, _ := newTestCache(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	compute := func(ctx context.Context) (*Entry, error) {
		once.Do(func() { close(started) })
		select {
		case <-release:
			return entry("red"), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := c.GetOrCompute(firstCtx, "fulltext", "red", 10, compute)
		firstErr <- err
	}()
	<-started

	type result struct {
		e   *Entry
		err error
	}
	second := make(chan result, 1)
	go func() {
		e, _, err := c.GetOrCompute(context.Background(), "fulltext", "red", 10, compute)
		second <- result{e, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled caller: err = %v", err)
	}
	close(release)

	got := <-second
	if got.err != nil || got.e == nil || got.e.Query != "red" {
		t.Fatalf("waiting caller: e=%+v err=%v", got.e, got.err)
	}
}

func TestInvalidate(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	for _, q := range []string{"a", "b", "c"} {
		q := q
		c.GetOrCompute(ctx, "fulltext", q, 10, func(context.Context) (*Entry, error) { return entry(q), nil })
	}
	mr.Set("unrelated", "keep")

	n, err := c.Invalidate(ctx)
	if err != nil || n != 3 {
		t.Fatalf("Invalidate = %d, %v", n, err)
	}
	if !mr.Exists("unrelated") {
		t.Error("invalidate removed a non-cache key")
	}
}

func TestRedisDownFallsBackToCompute(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()
	e, hit, err := c.GetOrCompute(context.Background(), "fulltext", "red", 10, func(context.Context) (*Entry, error) {
		return entry("red"), nil
	})
	if err != nil || hit || e == nil {
		t.Fatalf("e=%v hit=%v err=%v", e, hit, err)
	}
}
