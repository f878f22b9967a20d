// Package kafkasink streams aeration records and history summaries to Kafka.
package kafkasink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/sweeney/landfill-aeration/internal/history"
	"github.com/sweeney/landfill-aeration/internal/logic"
	"github.com/sweeney/landfill-aeration/internal/status"
)

// DefaultTopic receives both message kinds; the "kind" header tells them apart.
const DefaultTopic = "landfill.aeration"

const (
	KindReading = "reading"
	KindHistory = "history"
)

const writeTimeout = 5 * time.Second

// Config selects the brokers and topic.
type Config struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	SiteID  string   `yaml:"-"`
	RunID   string   `yaml:"-"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Envelope is the JSON value of every message.
type Envelope struct {
	Kind    string              `json:"kind"`
	SiteID  string              `json:"site_id"`
	RunID   string              `json:"run_id"`
	Reading *status.RecordJSON  `json:"reading,omitempty"`
	History *status.SummaryJSON `json:"history,omitempty"`
}

// Publisher writes one message per call, keyed by site so a site's records
// stay on one partition and keep their order.
type Publisher struct {
	cfg    Config
	writer messageWriter
	logger *zap.SugaredLogger
}

// New creates a Publisher backed by a kafka-go Writer.
func New(cfg Config, logger *zap.SugaredLogger) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
	}
	return newPublisher(cfg, w, logger), nil
}

func newPublisher(cfg Config, w messageWriter, logger *zap.SugaredLogger) *Publisher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Publisher{cfg: cfg, writer: w, logger: logger}
}

// PublishLive writes one reading message.
func (p *Publisher) PublishLive(rec logic.Record) error {
	r := status.NewRecordJSON(rec)
	return p.write(Envelope{Kind: KindReading, Reading: &r}, rec.Timestamp)
}

// PublishHistory writes the summary of the set.
func (p *Publisher) PublishHistory(set history.Set) error {
	sum := status.NewSummaryJSON(set.Summary())
	return p.write(Envelope{Kind: KindHistory, History: &sum}, time.Now())
}

func (p *Publisher) write(env Envelope, at time.Time) error {
	env.SiteID = p.cfg.SiteID
	env.RunID = p.cfg.RunID
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("kafka: encode %s: %w", env.Kind, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:     []byte(p.cfg.SiteID),
		Value:   value,
		Time:    at,
		Headers: []kafka.Header{{Key: "kind", Value: []byte(env.Kind)}},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write %s to %s: %w", env.Kind, p.cfg.Topic, err)
	}
	p.logger.Debugw("kafka message written", "kind", env.Kind, "topic", p.cfg.Topic)
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
