package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sweeney/landfill-aeration/internal/history"
	"github.com/sweeney/landfill-aeration/internal/logic"
)

// DefaultBufferSize is how many messages are held while the broker is away.
const DefaultBufferSize = 1000

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

var errConnectTimeout = errors.New("connection timeout")

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	ClientID string // empty = "landfill-aeration-<random>"
	// BufferSize bounds the replay buffer; <= 0 uses DefaultBufferSize.
	BufferSize int
	// ConnectAttempts bounds the initial connect; 0 means 3.
	ConnectAttempts uint
	ConnectDelay    time.Duration
	// OnConnectionChange, if set, is called from the client's goroutines.
	OnConnectionChange func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client   paho.Client
	logger   *zap.SugaredLogger
	onChange func(bool)

	mu        sync.Mutex
	buffer    *ringBuffer
	connected bool // set after the first successful connect
}

// NewRealPublisher creates a publisher connected to the given broker. The
// initial connect is retried; later drops are handled by auto-reconnect.
func NewRealPublisher(opts Options, logger *zap.SugaredLogger) (*RealPublisher, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.ConnectAttempts == 0 {
		opts.ConnectAttempts = 3
	}
	if opts.ConnectDelay <= 0 {
		opts.ConnectDelay = 2 * time.Second
	}
	clientID := opts.ClientID
	if clientID == "" {
		clientID = "landfill-aeration-" + uuid.NewString()[:8]
	}

	p := &RealPublisher{
		logger:   logger,
		onChange: opts.OnConnectionChange,
		buffer:   newRingBuffer(opts.BufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(30*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.handleConnect).
		SetConnectionLostHandler(p.handleConnectionLost)

	p.client = paho.NewClient(clientOpts)

	err = retry.Do(
		func() error {
			token := p.client.Connect()
			if !token.WaitTimeout(connectTimeout) {
				return errConnectTimeout
			}
			return token.Error()
		},
		retry.Attempts(opts.ConnectAttempts),
		retry.Delay(opts.ConnectDelay),
		retry.OnRetry(func(n uint, err error) {
			logger.Warnw("mqtt connect failed, retrying", "broker", opts.Broker, "attempt", n+1, "err", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to broker %s: %w", opts.Broker, err)
	}

	logger.Infow("mqtt connected", "broker", opts.Broker, "client_id", clientID)
	return p, nil
}

func (p *RealPublisher) handleConnect(c paho.Client) {
	p.mu.Lock()
	reconnect := p.connected
	p.connected = true
	pending := p.buffer.drainAll()
	p.mu.Unlock()

	if p.onChange != nil {
		p.onChange(true)
	}
	if !reconnect {
		return
	}

	p.logger.Infow("mqtt reconnected", "replaying", len(pending))
	reconnected, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
	pending = append(pending, bufferedMsg{topic: TopicSystem, payload: reconnected, qos: 1, retained: true})

	for _, msg := range pending {
		token := c.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
			p.logger.Warnw("mqtt replay failed", "topic", msg.topic, "err", token.Error())
		}
	}
}

func (p *RealPublisher) handleConnectionLost(_ paho.Client, err error) {
	p.logger.Warnw("mqtt connection lost", "err", err)
	if p.onChange != nil {
		p.onChange(false)
	}
}

// publish sends msg now, or buffers it when the connection is down.
func (p *RealPublisher) publish(msg bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		firstDrop := p.buffer.push(msg)
		p.mu.Unlock()
		if firstDrop {
			p.logger.Warnw("mqtt buffer full, dropping oldest", "capacity", p.buffer.capacity)
		}
		return nil
	}

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// PublishLive sends the record on the readings topic.
func (p *RealPublisher) PublishLive(rec logic.Record) error {
	payload, err := FormatPayload(rec)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.publish(bufferedMsg{topic: TopicReadings, payload: payload})
}

// PublishHistory sends the retained history summary.
func (p *RealPublisher) PublishHistory(set history.Set) error {
	payload, err := FormatHistoryPayload(set)
	if err != nil {
		return fmt.Errorf("format history payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicHistory, payload: payload, qos: 1, retained: true})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once): lifecycle events must not be lost
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is currently up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
