// Command landfill-aeration samples (simulated) landfill sensors, decides
// whether to aerate, logs every reading and publishes it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sweeney/landfill-aeration/internal/actuator"
	"github.com/sweeney/landfill-aeration/internal/config"
	"github.com/sweeney/landfill-aeration/internal/history"
	"github.com/sweeney/landfill-aeration/internal/kafkasink"
	"github.com/sweeney/landfill-aeration/internal/logic"
	"github.com/sweeney/landfill-aeration/internal/metrics"
	"github.com/sweeney/landfill-aeration/internal/monitor"
	"github.com/sweeney/landfill-aeration/internal/mqtt"
	"github.com/sweeney/landfill-aeration/internal/sensor"
	"github.com/sweeney/landfill-aeration/internal/status"
	"github.com/sweeney/landfill-aeration/internal/store"
	"github.com/sweeney/landfill-aeration/internal/web"
)

func main() {
	cfg, printReading, err := parseConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("fatal: %v", err)
	}
	if err := run(cfg, printReading); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// listFlag is a comma-separated string list.
type listFlag struct{ list *[]string }

func (f listFlag) String() string {
	if f.list == nil {
		return ""
	}
	return strings.Join(*f.list, ",")
}

func (f listFlag) Set(v string) error {
	*f.list = nil
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			*f.list = append(*f.list, s)
		}
	}
	return nil
}

func registerFlags(fs *flag.FlagSet, c *config.Config) {
	fs.StringVar(&c.Env, "env", c.Env, `Logging mode ("dev" for development logs)`)
	fs.StringVar(&c.SiteID, "site", c.SiteID, "Site identifier used in status and Kafka keys")
	fs.DurationVar(&c.Interval, "interval", c.Interval, "Monitoring interval")
	fs.DurationVar(&c.HistoryInterval, "history-interval", c.HistoryInterval, "History refresh interval (0 to disable)")
	fs.DurationVar(&c.Heartbeat, "heartbeat", c.Heartbeat, "Heartbeat interval (0 to disable)")
	fs.Int64Var(&c.Seed, "seed", c.Seed, "Sensor simulation seed (0 = time based)")
	fs.StringVar(&c.Log.Driver, "log-driver", c.Log.Driver, `Log backend: "csv" or "mysql"`)
	fs.StringVar(&c.Log.Path, "log-path", c.Log.Path, "CSV log file")
	fs.StringVar(&c.Log.MySQL.DSN, "mysql-dsn", c.Log.MySQL.DSN, "MySQL DSN for the mysql log driver")
	fs.StringVar(&c.Log.MySQL.Table, "mysql-table", c.Log.MySQL.Table, "MySQL log table")
	fs.Float64Var(&c.Rule.OxygenBelow, "oxygen-below", c.Rule.OxygenBelow, "Aerate when O2 % is below this")
	fs.Float64Var(&c.Rule.TemperatureAbove, "temperature-above", c.Rule.TemperatureAbove, "Aerate when temperature °C is above this")
	fs.Float64Var(&c.Rule.HumidityBelow, "humidity-below", c.Rule.HumidityBelow, "Aerate when humidity % is below this")
	fs.StringVar(&c.MQTT.Broker, "broker", c.MQTT.Broker, "MQTT broker address (empty to disable)")
	fs.StringVar(&c.MQTT.WSBroker, "ws-broker", c.MQTT.WSBroker, `MQTT websocket URL for live UI ("=broker" derives from --broker, "off" disables)`)
	fs.StringVar(&c.MQTT.ClientID, "mqtt-client-id", c.MQTT.ClientID, "MQTT client ID (empty = random)")
	fs.IntVar(&c.MQTT.Buffer, "mqtt-buffer", c.MQTT.Buffer, "Messages kept while the broker is unreachable")
	fs.Var(listFlag{&c.Kafka.Brokers}, "kafka-brokers", "Comma-separated Kafka brokers (empty to disable)")
	fs.StringVar(&c.Kafka.Topic, "kafka-topic", c.Kafka.Topic, "Kafka topic")
	fs.StringVar(&c.HTTP.Addr, "http", c.HTTP.Addr, "HTTP dashboard address (empty to disable)")
	fs.StringVar(&c.Actuator.Chip, "gpio-chip", c.Actuator.Chip, "GPIO chip for the blower relay")
	fs.IntVar(&c.Actuator.Pin, "gpio-pin", c.Actuator.Pin, "GPIO line for the blower relay (-1 to disable)")
}

// parseConfig builds the config from defaults, the optional -config file
// and the command line, in that order of precedence (flags win).
func parseConfig(args []string) (config.Config, bool, error) {
	cfg := config.Default()
	var (
		configPath   string
		printReading bool
	)

	fs := flag.NewFlagSet("landfill-aeration", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", "", "YAML config file; flags given explicitly override it")
	fs.BoolVar(&printReading, "print-reading", false, "Print one reading with its decision and exit")
	registerFlags(fs, &cfg)
	if err := fs.Parse(args); err != nil {
		return cfg, false, err
	}

	if configPath != "" {
		fileCfg, err := config.Load(configPath)
		if err != nil {
			return cfg, false, err
		}
		cfg = fileCfg

		// Re-parse onto the file values: only flags actually given change them.
		again := flag.NewFlagSet("landfill-aeration", flag.ContinueOnError)
		again.String("config", "", "")
		again.Bool("print-reading", false, "")
		registerFlags(again, &cfg)
		if err := again.Parse(args); err != nil {
			return cfg, false, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, false, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, printReading, nil
}

func newLogger(env string) (*zap.SugaredLogger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if env == "dev" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func run(cfg config.Config, printReading bool) error {
	logger, err := newLogger(cfg.Env)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	source := sensor.NewSimulated(cfg.Seed)

	// Print reading mode
	if printReading {
		reading, err := source.Next()
		if err != nil {
			return fmt.Errorf("read sensors: %w", err)
		}
		fmt.Printf("%s -> %s\n", reading, cfg.Rule.Decide(reading))
		return nil
	}

	runID := uuid.NewString()
	m := metrics.New()

	st, logTarget, closeStore, err := openStore(cfg, logger, m)
	if err != nil {
		return err
	}
	defer closeStore()

	loader := history.NewLoader(st, logger)
	loader.OnError = func(error) { m.HistoryError() }

	var wsBroker string
	if cfg.MQTT.Broker != "" {
		wsBroker = resolveWSBroker(cfg.MQTT.WSBroker, cfg.MQTT.Broker, logger)
	}
	tracker := status.NewTracker(runID, time.Now(), status.Config{
		SiteID:            cfg.SiteID,
		IntervalMs:        cfg.Interval.Milliseconds(),
		HistoryIntervalMs: cfg.HistoryInterval.Milliseconds(),
		HeartbeatMs:       cfg.Heartbeat.Milliseconds(),
		Thresholds:        cfg.Rule,
		LogTarget:         logTarget,
		Broker:            cfg.MQTT.Broker,
		WSBroker:          wsBroker,
		HTTPAddr:          cfg.HTTP.Addr,
	})

	presenters := []monitor.Presenter{tracker}
	events := &lifecycle{tracker: tracker, logger: logger, metrics: m}

	if cfg.MQTT.Broker != "" {
		publisher, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:             cfg.MQTT.Broker,
			ClientID:           cfg.MQTT.ClientID,
			BufferSize:         cfg.MQTT.Buffer,
			OnConnectionChange: tracker.SetMQTTConnected,
		}, logger)
		if err != nil {
			logger.Warnw("mqtt unavailable, continuing without it", "err", err)
		} else {
			defer publisher.Close()
			presenters = append(presenters, publisher)
			events.publisher = publisher
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kcfg := cfg.Kafka
		kcfg.SiteID = cfg.SiteID
		kcfg.RunID = runID
		sink, err := kafkasink.New(kcfg, logger)
		if err != nil {
			return fmt.Errorf("init kafka: %w", err)
		}
		defer sink.Close()
		presenters = append(presenters, sink)
		logger.Infow("kafka sink enabled", "brokers", kcfg.Brokers, "topic", kcfg.Topic)
	}

	var act actuator.Actuator = actuator.Nop{}
	if cfg.Actuator.Pin >= 0 {
		relay, err := actuator.NewReal(cfg.Actuator.Chip, cfg.Actuator.Pin)
		if err != nil {
			return fmt.Errorf("init actuator: %w", err)
		}
		act = relay
		logger.Infow("actuator enabled", "chip", cfg.Actuator.Chip, "pin", cfg.Actuator.Pin)
	}
	defer closeLogged(act, "actuator", logger)()

	loop := monitor.New(source, cfg.Rule, st, monitor.NewFanout(presenters...), logger)
	loop.Actuator = act
	loop.History = loader
	loop.Metrics = m
	loop.Heartbeat = cfg.Heartbeat
	loop.OnTick = tracker.SetCounts
	loop.OnHeartbeat = func(logic.HeartbeatData) {
		events.publish("HEARTBEAT", "", false)
	}

	// Populate history before the first page view and publish startup with it.
	loop.RefreshHistory()
	events.publish("STARTUP", "", true)

	if cfg.HTTP.Addr != "" {
		srv := web.New(web.Options{
			Addr:      cfg.HTTP.Addr,
			Tracker:   tracker,
			History:   loader,
			Metrics:   m,
			Logger:    logger,
			LiveTopic: mqtt.TopicReadings,
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorw("http server error", "err", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		logger.Infow("http dashboard listening", "addr", cfg.HTTP.Addr)
	}

	logger.Infow("started",
		"run_id", runID,
		"site", cfg.SiteID,
		"interval", cfg.Interval,
		"log", logTarget,
		"broker", cfg.MQTT.Broker,
		"heartbeat", cfg.Heartbeat,
	)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	var historyTick <-chan time.Time
	if cfg.HistoryInterval > 0 {
		ht := time.NewTicker(cfg.HistoryInterval)
		defer ht.Stop()
		historyTick = ht.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	reason, err := runUntilSignal(loop, ticker.C, historyTick, sigCh)
	logger.Infow("shutting down", "reason", reason, "counts", loop.Counts())
	events.publish("SHUTDOWN", reason, true)
	return err
}

// openStore builds the configured log backend and a func to release it.
func openStore(cfg config.Config, logger *zap.SugaredLogger, m *metrics.Recorder) (store.Store, string, func(), error) {
	onSkip := func(*store.MalformedRowError) { m.MalformedRow() }

	switch cfg.Log.Driver {
	case config.DriverMySQL:
		s, err := store.OpenMySQL(cfg.Log.MySQL, logger)
		if err != nil {
			return nil, "", nil, fmt.Errorf("open mysql log: %w", err)
		}
		s.OnSkip = onSkip
		target := "mysql:" + cfg.Log.MySQL.Table
		return s, target, closeLogged(s, "log store", logger), nil
	default:
		s := store.NewCSV(cfg.Log.Path, logger)
		s.OnSkip = onSkip
		return s, s.Path(), func() {}, nil
	}
}

// closeLogged returns a func that closes c and logs a failure at warn.
func closeLogged(c io.Closer, what string, logger *zap.SugaredLogger) func() {
	return func() {
		if err := c.Close(); err != nil {
			logger.Warnw(what+" close failed", "err", err)
		}
	}
}

// runUntilSignal runs the loop until a signal arrives and returns the signal
// name for the SHUTDOWN event. The loop finishes its current tick first.
func runUntilSignal(loop *monitor.Loop, tick, historyTick <-chan time.Time, sig <-chan os.Signal) (string, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx, tick, historyTick) }()

	select {
	case s := <-sig:
		cancel()
		return signalName(s), <-done
	case err := <-done:
		return "LOOP_EXIT", err
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// lifecycle publishes STARTUP, HEARTBEAT and SHUTDOWN status snapshots on
// the MQTT system topic. It does nothing without a publisher.
type lifecycle struct {
	publisher mqtt.Publisher
	tracker   *status.Tracker
	logger    *zap.SugaredLogger
	metrics   *metrics.Recorder
}

func (l *lifecycle) publish(event, reason string, retained bool) {
	if l.publisher == nil {
		return
	}
	if cs, ok := l.publisher.(mqtt.ConnectionStatus); ok {
		l.tracker.SetMQTTConnected(cs.IsConnected())
	}
	snap := l.tracker.Snapshot()
	payload, err := status.FormatStatusEvent(snap, event, reason)
	if err != nil {
		l.logger.Warnw("failed to encode system event", "event", event, "err", err)
		l.metrics.PublishFailed("system")
		return
	}
	err = l.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: payload,
	})
	if err != nil {
		l.logger.Warnw("failed to publish system event", "event", event, "err", err)
		l.metrics.PublishFailed("system")
		return
	}
	l.logger.Infow("published system event", "event", event)
}

// resolveWSBroker converts the --ws-broker flag value into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; "off" disables.
func resolveWSBroker(ws, broker string, logger *zap.SugaredLogger) string {
	if ws == "off" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	u, err := url.Parse(broker)
	if err != nil || u.Hostname() == "" {
		logger.Warnw("ws-broker: cannot derive from broker", "broker", broker, "err", err)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
