// Package web provides the HTTP dashboard for the aeration daemon.
package web

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"

	"github.com/sweeney/landfill-aeration/internal/history"
	"github.com/sweeney/landfill-aeration/internal/metrics"
	"github.com/sweeney/landfill-aeration/internal/status"
)

const (
	// DefaultTail is how many records /history.json returns without ?limit.
	DefaultTail = 500
	// DefaultBucket is the chart resolution without ?bucket.
	DefaultBucket = time.Hour
	// recentRows is how many records the HTML page lists.
	recentRows = 20
)

// HistoryLoader reloads the full log. Every request calls it again.
type HistoryLoader interface {
	Load() history.Set
}

// Options wires a Server. Metrics and Logger may be nil.
type Options struct {
	Addr      string
	Tracker   *status.Tracker
	History   HistoryLoader
	Metrics   *metrics.Recorder
	Logger    *zap.SugaredLogger
	LiveTopic string // MQTT topic the page subscribes to over websockets
}

// Server serves the dashboard over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	history    HistoryLoader
	liveTopic  string
	logger     *zap.SugaredLogger
}

// New creates a Server that reads state from the tracker and history loader.
func New(opts Options) *Server {
	s := &Server{
		tracker:   opts.Tracker,
		history:   opts.History,
		liveTopic: opts.LiveTopic,
		logger:    opts.Logger,
	}
	if s.logger == nil {
		s.logger = zap.NewNop().Sugar()
	}

	r := mux.NewRouter()
	route := func(path string, h http.HandlerFunc) {
		r.Handle(path, opts.Metrics.WrapHandler(path, h)).Methods(http.MethodGet, http.MethodHead)
	}
	route("/", s.handleIndex)
	route("/index.html", s.handleIndex)
	route("/index.json", s.handleJSON)
	route("/history.json", s.handleHistory)
	r.Handle("/metrics", opts.Metrics.Handler()).Methods(http.MethodGet)

	var h http.Handler = r
	if opts.Logger != nil {
		stdLog := zap.NewStdLog(opts.Logger.Desugar())
		h = handlers.CombinedLoggingHandler(stdLog.Writer(), h)
		h = handlers.RecoveryHandler(handlers.RecoveryLogger(stdLog))(h)
	} else {
		h = handlers.RecoveryHandler()(h)
	}

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) loadHistory() history.Set {
	if s.history == nil {
		return history.Set{}
	}
	return s.history.Load()
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	set := s.loadHistory()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, pageData(snap, set, s.liveTopic))
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	data, err := status.FormatJSON(s.tracker.Snapshot())
	if err != nil {
		s.logger.Errorw("status encode failed", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// HistoryJSON is the /history.json body.
type HistoryJSON struct {
	Summary status.SummaryJSON  `json:"summary"`
	Buckets []BucketJSON        `json:"buckets"`
	Records []status.RecordJSON `json:"records"`
}

// BucketJSON is one chart point: mean readings over [start, start+width).
type BucketJSON struct {
	Start       string  `json:"start"`
	Count       int     `json:"count"`
	On          int     `json:"on"`
	Temperature float64 `json:"temperature"`
	Oxygen      float64 `json:"oxygen"`
	Humidity    float64 `json:"humidity"`
	PH          float64 `json:"ph"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := DefaultTail
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	width := DefaultBucket
	if v := r.URL.Query().Get("bucket"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			http.Error(w, "bucket must be a positive duration", http.StatusBadRequest)
			return
		}
		width = d
	}

	set := s.loadHistory()
	body := HistoryJSON{
		Summary: status.NewSummaryJSON(set.Summary()),
		Buckets: []BucketJSON{},
		Records: []status.RecordJSON{},
	}
	for _, b := range set.Bucket(width) {
		body.Buckets = append(body.Buckets, BucketJSON{
			Start:       b.Start.UTC().Format(time.RFC3339),
			Count:       b.Count,
			On:          b.On,
			Temperature: b.Reading.Temperature,
			Oxygen:      b.Reading.Oxygen,
			Humidity:    b.Reading.Humidity,
			PH:          b.Reading.PH,
		})
	}
	for _, rec := range set.Tail(limit) {
		body.Records = append(body.Records, status.NewRecordJSON(rec))
	}

	data, err := json.Marshal(body)
	if err != nil {
		s.logger.Errorw("history encode failed", "records", len(set), "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
