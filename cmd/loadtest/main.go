// Command loadtest drives the search endpoints with concurrent workers and
// reports per-engine latency so the two engines can be compared.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var defaultQueries = []string{
	"shoes",
	"red",
	"wireless headphones",
	"\"running shoes\"",
	"brand:acme",
	"laptop -refurbished",
	"+kitchen knife",
	"coffee OR tea",
	"usb cable",
	"water bottle",
	"phone case",
	"gaming mouse",
}

var endpoints = map[string]string{
	"fulltext": "/search",
	"baseline": "/search/baseline",
}

type engineStats struct {
	requests  atomic.Int64
	errors    atomic.Int64
	cacheHits atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func newEngineStats() *engineStats {
	return &engineStats{
		latencies: make([]time.Duration, 0, 100000),
		codes:     make(map[int]int64),
	}
}

func (s *engineStats) record(d time.Duration, code int, cacheHit bool, err error) {
	s.requests.Add(1)
	if err != nil || code < 200 || code >= 300 {
		s.errors.Add(1)
	}
	if cacheHit {
		s.cacheHits.Add(1)
	}
	if err != nil {
		return
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[code]++
	s.mu.Unlock()
}

type options struct {
	baseURL     string
	engines     []string
	concurrency int
	duration    time.Duration
	limit       int
	queries     []string
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of searchbench")
	engine := flag.String("engine", "fulltext", "fulltext, baseline or both")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	limit := flag.Int("limit", 10, "limit parameter sent with each query")
	queriesPath := flag.String("queries", "", "file with one query per line")
	flag.Parse()

	opts := options{
		baseURL:     strings.TrimRight(*baseURL, "/"),
		concurrency: *concurrency,
		duration:    *duration,
		limit:       *limit,
		queries:     defaultQueries,
	}
	switch *engine {
	case "fulltext", "baseline":
		opts.engines = []string{*engine}
	case "both":
		opts.engines = []string{"fulltext", "baseline"}
	default:
		fmt.Fprintf(os.Stderr, "unknown engine %q\n", *engine)
		os.Exit(2)
	}
	if *queriesPath != "" {
		qs, err := readQueries(*queriesPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading queries: %v\n", err)
			os.Exit(1)
		}
		opts.queries = qs
	}

	fmt.Println("=== searchbench load test ===")
	fmt.Printf("Target:      %s\n", opts.baseURL)
	fmt.Printf("Engines:     %s\n", strings.Join(opts.engines, ", "))
	fmt.Printf("Concurrency: %d\n", opts.concurrency)
	fmt.Printf("Duration:    %s\n", opts.duration)
	fmt.Printf("Queries:     %d unique\n\n", len(opts.queries))

	stats := run(opts)
	total := int64(0)
	for _, name := range opts.engines {
		printReport(os.Stdout, name, stats[name], opts.duration)
		total += stats[name].requests.Load()
	}
	if total == 0 {
		fmt.Println("WARNING: no requests completed. Is the service running?")
		os.Exit(1)
	}
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if q := strings.TrimSpace(sc.Text()); q != "" && !strings.HasPrefix(q, "#") {
			out = append(out, q)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s contains no queries", path)
	}
	return out, nil
}

func run(opts options) map[string]*engineStats {
	stats := make(map[string]*engineStats, len(opts.engines))
	for _, name := range opts.engines {
		stats[name] = newEngineStats()
	}
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        opts.concurrency * 2,
			MaxIdleConnsPerHost: opts.concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.duration)
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < opts.concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := worker; ctx.Err() == nil; i++ {
				query := opts.queries[i%len(opts.queries)]
				name := opts.engines[i%len(opts.engines)]
				target := fmt.Sprintf("%s%s?q=%s&limit=%d", opts.baseURL, endpoints[name], url.QueryEscape(query), opts.limit)
				d, code, hit, err := send(ctx, client, target)
				if ctx.Err() != nil {
					return
				}
				stats[name].record(d, code, hit, err)
			}
		}(w)
	}
	wg.Wait()
	return stats
}

func send(ctx context.Context, client *http.Client, target string) (time.Duration, int, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, 0, false, err
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return time.Since(start), 0, false, err
	}
	defer resp.Body.Close()
	var body struct {
		CacheHit bool `json:"cache_hit"`
	}
	if resp.StatusCode == http.StatusOK {
		json.NewDecoder(resp.Body).Decode(&body)
	}
	io.Copy(io.Discard, resp.Body)
	return time.Since(start), resp.StatusCode, body.CacheHit, nil
}

func printReport(w io.Writer, name string, s *engineStats, duration time.Duration) {
	total := s.requests.Load()
	errs := s.errors.Load()
	fmt.Fprintf(w, "=== %s ===\n", name)
	fmt.Fprintf(w, "Requests:     %d\n", total)
	fmt.Fprintf(w, "Errors:       %d\n", errs)
	if total > 0 {
		fmt.Fprintf(w, "Error rate:   %.2f%%\n", float64(errs)/float64(total)*100)
		fmt.Fprintf(w, "Cache hits:   %.2f%%\n", float64(s.cacheHits.Load())/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec: %.2f\n", float64(total)/duration.Seconds())
	}

	s.mu.Lock()
	latencies := slices.Clone(s.latencies)
	codes := make([]int, 0, len(s.codes))
	for code := range s.codes {
		codes = append(codes, code)
	}
	counts := make(map[int]int64, len(s.codes))
	for code, n := range s.codes {
		counts[code] = n
	}
	s.mu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)
		mean, stddev := meanStdDev(latencies)
		fmt.Fprintf(w, "Latency min %s  avg %s  p50 %s  p95 %s  p99 %s  max %s  stddev %s\n",
			latencies[0], mean,
			percentile(latencies, 50), percentile(latencies, 95), percentile(latencies, 99),
			latencies[len(latencies)-1], stddev)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  HTTP %d: %d\n", code, counts[code])
	}
	fmt.Fprintln(w)
}

func meanStdDev(ds []time.Duration) (time.Duration, time.Duration) {
	var sum float64
	for _, d := range ds {
		sum += float64(d)
	}
	mean := sum / float64(len(ds))
	var sq float64
	for _, d := range ds {
		diff := float64(d) - mean
		sq += diff * diff
	}
	return time.Duration(mean), time.Duration(math.Sqrt(sq / float64(len(ds))))
}

// percentile uses the nearest-rank method on sorted.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
