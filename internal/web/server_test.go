package web

import (
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap/zaptest"

	"github.com/sweeney/landfill-aeration/internal/history"
	"github.com/sweeney/landfill-aeration/internal/logic"
	"github.com/sweeney/landfill-aeration/internal/metrics"
	"github.com/sweeney/landfill-aeration/internal/status"
	"github.com/sweeney/landfill-aeration/internal/store"
)

type fakeLoader struct {
	mu    sync.Mutex
	set   history.Set
	calls int
}

func (f *fakeLoader) Load() history.Set {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.set
}

func (f *fakeLoader) loads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func record(offset time.Duration, r logic.Reading) logic.Record {
	return logic.Record{Timestamp: start.Add(offset), Reading: r, Decision: logic.Decide(r)}
}

var (
	onReading  = logic.Reading{Temperature: 42.5, Oxygen: 8.25, Humidity: 44, PH: 7.1}
	offReading = logic.Reading{Temperature: 33, Oxygen: 16, Humidity: 70, PH: 6.2}
)

func newTestServer(t *testing.T, loader HistoryLoader) (*httptest.Server, *status.Tracker, *metrics.Recorder) {
	t.Helper()
	cfg := status.Config{
		SiteID:      "cell-4",
		IntervalMs:  2000,
		HeartbeatMs: 900000,
		Thresholds:  logic.DefaultThresholds,
		LogTarget:   "demo_log.csv",
		Broker:      "tcp://192.168.1.200:1883",
		HTTPAddr:    ":8080",
	}
	tr := status.NewTracker("run-1", start, cfg)
	m := metrics.New()
	srv := New(Options{
		Addr:      ":0",
		Tracker:   tr,
		History:   loader,
		Metrics:   m,
		Logger:    zaptest.NewLogger(t).Sugar(),
		LiveTopic: "landfill/aeration/readings",
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr, m
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr, _ := newTestServer(t, &fakeLoader{})
	tr.PublishLive(record(0, onReading))
	tr.SetCounts(logic.Counts{On: 5, Off: 2})
	tr.SetMQTTConnected(true)

	resp, body := get(t, ts.URL+"/index.json")
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal([]byte(body), &sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if sj.Status.Aeration != "ON" {
		t.Errorf("Aeration: got %q, want ON", sj.Status.Aeration)
	}
	if sj.Status.Counts.On != 5 || sj.Status.Counts.Off != 2 {
		t.Errorf("Counts: %+v", sj.Status.Counts)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT connected")
	}
}

func TestJSONReflectsUpdates(t *testing.T) {
	ts, tr, _ := newTestServer(t, &fakeLoader{})

	var before status.StatusJSON
	_, body := get(t, ts.URL+"/index.json")
	json.Unmarshal([]byte(body), &before)
	if before.Status.Aeration != "UNKNOWN" {
		t.Errorf("before first tick: got %q, want UNKNOWN", before.Status.Aeration)
	}

	tr.PublishLive(record(2*time.Second, offReading))

	var after status.StatusJSON
	_, body = get(t, ts.URL+"/index.json")
	json.Unmarshal([]byte(body), &after)
	if after.Status.Aeration != "OFF" {
		t.Errorf("after tick: got %q, want OFF", after.Status.Aeration)
	}
}

func TestHTMLEndpoints(t *testing.T) {
	loader := &fakeLoader{set: history.Set{record(0, onReading), record(2*time.Second, offReading)}}
	ts, tr, _ := newTestServer(t, loader)
	tr.PublishLive(record(2*time.Second, offReading))

	for _, path := range []string{"/", "/index.html"} {
		resp, body := get(t, ts.URL+path)
		if resp.StatusCode != 200 {
			t.Errorf("%s status: got %d, want 200", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("%s Content-Type: got %q", path, ct)
		}
		for _, want := range []string{"Landfill Aeration", "cell-4", `id="aeration" class="off"`, "42.5", "50.0%"} {
			if !strings.Contains(body, want) {
				t.Errorf("%s: body missing %q", path, want)
			}
		}
		if strings.Contains(body, "mqtt.min.js") {
			t.Errorf("%s: live script should be absent without a websocket broker", path)
		}
	}
	if n := loader.loads(); n != 2 {
		t.Errorf("expected history reload per request, got %d loads", n)
	}
}

func TestHTMLWithoutHistory(t *testing.T) {
	ts, _, _ := newTestServer(t, &fakeLoader{set: history.Set{}})

	_, body := get(t, ts.URL+"/")
	if !strings.Contains(body, `id="no-history"`) {
		t.Error("expected the no-data message")
	}
	if !strings.Contains(body, "waiting for first tick") {
		t.Error("expected the waiting message before the first tick")
	}
}

func TestHTMLNewestFirst(t *testing.T) {
	set := history.Set{record(0, offReading), record(time.Minute, onReading)}
	d := pageData(status.Snapshot{}, set, "")
	if len(d.Recent) != 2 || !d.Recent[0].Timestamp.Equal(start.Add(time.Minute)) {
		t.Errorf("recent rows should be newest first: %v", d.Recent)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	set := history.Set{
		record(0, onReading),
		record(30*time.Minute, offReading),
		record(time.Hour, onReading),
	}
	ts, _, _ := newTestServer(t, &fakeLoader{set: set})

	resp, body := get(t, ts.URL+"/history.json?limit=2")
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}

	var hj HistoryJSON
	if err := json.Unmarshal([]byte(body), &hj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if hj.Summary.Count != 3 || hj.Summary.On != 2 {
		t.Errorf("summary: %+v", hj.Summary)
	}
	if len(hj.Records) != 2 || hj.Records[0].Timestamp != "2026-01-01T00:30:00Z" {
		t.Errorf("records: %+v", hj.Records)
	}
	if len(hj.Buckets) != 2 || hj.Buckets[0].Count != 2 || hj.Buckets[1].Start != "2026-01-01T01:00:00Z" {
		t.Errorf("buckets: %+v", hj.Buckets)
	}
}

func TestHistoryEndpointEmpty(t *testing.T) {
	ts, _, _ := newTestServer(t, &fakeLoader{set: history.Set{}})

	_, body := get(t, ts.URL+"/history.json")
	if !strings.Contains(body, `"records":[]`) || !strings.Contains(body, `"buckets":[]`) {
		t.Errorf("expected empty arrays, got %s", body)
	}
}

func TestHistoryEndpointBadQuery(t *testing.T) {
	ts, _, _ := newTestServer(t, &fakeLoader{})

	for _, q := range []string{"?limit=abc", "?limit=-1", "?bucket=soon", "?bucket=0s"} {
		resp, _ := get(t, ts.URL+"/history.json"+q)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: got %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestHistoryReadsCSVStorePerRequest(t *testing.T) {
	st := store.NewCSV(filepath.Join(t.TempDir(), "demo_log.csv"), nil)
	ts, _, _ := newTestServer(t, history.NewLoader(st, nil))

	count := func() int {
		var hj HistoryJSON
		_, body := get(t, ts.URL+"/history.json")
		json.Unmarshal([]byte(body), &hj)
		return hj.Summary.Count
	}

	if n := count(); n != 0 {
		t.Fatalf("missing log: got %d records", n)
	}
	if err := st.Append(record(0, onReading)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if n := count(); n != 1 {
		t.Errorf("after append: got %d records, want 1", n)
	}
}

func TestNonFiniteRowDoesNotBreakHistory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo_log.csv")
	raw := "2026-01-01 12:00:00,41,9,45,7,ON\n" +
		"2026-01-01 12:00:02,NaN,9,45,7,OFF\n" +
		"2026-01-01 12:00:04,+Inf,9,45,7,OFF\n" +
		"2026-01-01 12:00:06,33,16,70,6.2,OFF\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	loader := history.NewLoader(store.NewCSV(path, nil), nil)
	ts, tr, _ := newTestServer(t, loader)
	tr.PublishHistory(loader.Load())

	resp, body := get(t, ts.URL+"/history.json")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/history.json: got %d: %s", resp.StatusCode, body)
	}
	var hj HistoryJSON
	if err := json.Unmarshal([]byte(body), &hj); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if hj.Summary.Count != 2 || len(hj.Records) != 2 {
		t.Errorf("expected the 2 finite rows, got count=%d records=%d", hj.Summary.Count, len(hj.Records))
	}

	resp, body = get(t, ts.URL+"/index.json")
	if resp.StatusCode != http.StatusOK || body == "" {
		t.Fatalf("/index.json: got %d with %d bytes", resp.StatusCode, len(body))
	}
	var sj status.StatusJSON
	if err := json.Unmarshal([]byte(body), &sj); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if sj.Status.History == nil || sj.Status.History.Count != 2 {
		t.Errorf("status history: %+v", sj.Status.History)
	}
}

func TestJSONEndpointEncodeFailure(t *testing.T) {
	ts, tr, _ := newTestServer(t, &fakeLoader{})
	bad := record(0, onReading)
	bad.Reading.Temperature = math.Inf(1)
	tr.PublishLive(bad)

	resp, _ := get(t, ts.URL+"/index.json")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t, &fakeLoader{})
	get(t, ts.URL+"/index.json")

	resp, body := get(t, ts.URL+"/metrics")
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, `aeration_http_requests_total{route="/index.json",status="200"} 1`) {
		t.Errorf("metrics missing request count:\n%s", body)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _, _ := newTestServer(t, &fakeLoader{})

	resp, _ := get(t, ts.URL+"/nonexistent")
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _, _ := newTestServer(t, &fakeLoader{})

	resp, err := http.Post(ts.URL+"/index.json", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}

func TestLiveScriptWithWebsocketBroker(t *testing.T) {
	tr := status.NewTracker("run", start, status.Config{WSBroker: "ws://192.168.1.200:9001"})
	srv := New(Options{Tracker: tr, LiveTopic: "landfill/aeration/readings"})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "mqtt.min.js") || !strings.Contains(body, `id="live-dot"`) {
		t.Error("expected live update script")
	}
	if !strings.Contains(body, `landfill\/aeration\/readings`) {
		t.Error("expected the live topic in the script")
	}
}
