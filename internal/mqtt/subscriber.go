package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/kham-river/water-quality-monitor/internal/water"
)

// Sink stores readings received from the broker.
type Sink interface {
	CreateReading(ctx context.Context, r water.Reading) (water.Reading, error)
}

type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string
	QoS      byte
	Timeout  time.Duration
}

// Subscriber ingests live readings published by field stations.
type Subscriber struct {
	cfg    Config
	sink   Sink
	log    *zap.Logger
	client paho.Client
	now    func() time.Time
}

func NewSubscriber(cfg Config, sink Sink, log *zap.Logger) *Subscriber {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Subscriber{
		cfg:  cfg,
		sink: sink,
		log:  log,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Start connects to the broker and subscribes to the configured topic.
func (s *Subscriber) Start() error {
	opts := paho.NewClientOptions()
	opts.AddBroker(s.cfg.Broker)
	opts.SetClientID(s.cfg.ClientID)
	if s.cfg.Username != "" {
		opts.SetUsername(s.cfg.Username)
	}
	if s.cfg.Password != "" {
		opts.SetPassword(s.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(s.cfg.Timeout)
	opts.SetOnConnectHandler(func(c paho.Client) {
		// Subscriptions do not survive a clean-session reconnect.
		if err := s.subscribe(c); err != nil {
			s.log.Error("mqtt resubscribe failed", zap.Error(err))
		}
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		s.log.Warn("mqtt connection lost", zap.Error(err))
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(s.cfg.Timeout) {
		return fmt.Errorf("connect to mqtt broker %s: timed out", s.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to mqtt broker: %w", err)
	}
	s.client = client
	s.log.Info("mqtt subscriber started", zap.String("broker", s.cfg.Broker), zap.String("topic", s.cfg.Topic))
	return nil
}

func (s *Subscriber) subscribe(c paho.Client) error {
	token := c.Subscribe(s.cfg.Topic, s.cfg.QoS, func(_ paho.Client, msg paho.Message) {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
		defer cancel()
		if _, err := s.Handle(ctx, msg.Topic(), msg.Payload()); err != nil {
			s.log.Warn("mqtt message rejected", zap.String("topic", msg.Topic()), zap.Error(err))
		}
	})
	if token.WaitTimeout(s.cfg.Timeout) && token.Error() != nil {
		return fmt.Errorf("subscribe to topic %s: %w", s.cfg.Topic, token.Error())
	}
	return nil
}

// Stop disconnects from the broker.
func (s *Subscriber) Stop() {
	if s.client != nil {
		s.client.Disconnect(250)
	}
}

// Handle decodes a payload holding one reading object or an array of them
// and stores each. It returns the number stored. Readings without a station
// take it from the second topic segment.
func (s *Subscriber) Handle(ctx context.Context, topic string, payload []byte) (int, error) {
	records, err := decodePayload(payload)
	if err != nil {
		return 0, err
	}

	fallback := stationFromTopic(topic)
	stored := 0
	var errs []error
	for i, rec := range records {
		r, issues := water.NormalizeRecord(rec)
		if len(issues) > 0 {
			errs = append(errs, fmt.Errorf("record %d: %s", i+1, strings.Join(issues, "; ")))
			continue
		}
		if r.StationID == "" {
			r.StationID = fallback
		}
		if r.StationID == "" {
			errs = append(errs, fmt.Errorf("record %d: station id missing", i+1))
			continue
		}
		if r.Timestamp.IsZero() {
			r.Timestamp = s.now()
		}
		if _, err := s.sink.CreateReading(ctx, r); err != nil {
			errs = append(errs, fmt.Errorf("record %d: %w", i+1, err))
			continue
		}
		stored++
	}

	if stored > 0 {
		s.log.Debug("mqtt readings stored", zap.String("topic", topic), zap.Int("count", stored))
	}
	return stored, errors.Join(errs...)
}

func decodePayload(payload []byte) ([]map[string]any, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	if payload[0] == '[' {
		var recs []map[string]any
		if err := dec.Decode(&recs); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		return recs, nil
	}
	var rec map[string]any
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return []map[string]any{rec}, nil
}

func stationFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
