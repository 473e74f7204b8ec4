package metrics

import (
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistersOnSuppliedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.SearchQueriesTotal.WithLabelValues("fulltext", "hit").Inc()
	m.IndexTerms.Set(42)

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{"search_queries_total", "index_terms"} {
		if !names[want] {
			t.Errorf("metric %s not gathered", want)
		}
	}

	// Two instances on separate registries must not panic.
	New(prometheus.NewRegistry())
	New(nil)
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.DocsIndexedTotal.Add(3)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "docs_indexed_total 3") {
		t.Fatalf("scrape output missing docs_indexed_total:\n%s", body)
	}
}

func TestStartServerReportsBusyPort(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	if _, err := StartServer(port, New(prometheus.NewRegistry()).Handler()); err == nil {
		t.Fatalf("expected bind error on busy port %d", port)
	}
}
