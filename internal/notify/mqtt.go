package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"netmonitor/internal/config"
	"netmonitor/internal/models"
)

const (
	availabilityOnline  = "online"
	availabilityOffline = "offline"
	publishTimeout      = 5 * time.Second
	disconnectQuiesceMs = 250
)

// client is the part of mqtt.Client the publisher needs.
type client interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	IsConnected() bool
}

// StatusMessage is the retained payload published on every status change.
type StatusMessage struct {
	Host        string               `json:"host"`
	Status      models.NetworkStatus `json:"status"`
	PublishedAt time.Time            `json:"published_at"`
}

// Publisher mirrors status changes to an MQTT broker as retained messages.
// A last-will on the availability topic marks the monitor itself as gone.
type Publisher struct {
	client   client
	cfg      config.MQTTConfig
	clientID string
	host     string
	clock    clock.Clock
	log      *zap.Logger

	pending sync.WaitGroup
}

// Option customises a Publisher.
type Option func(*Publisher)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.log = l
		}
	}
}

// WithClock sets the clock used to stamp messages.
func WithClock(c clock.Clock) Option {
	return func(p *Publisher) {
		if c != nil {
			p.clock = c
		}
	}
}

func withClient(c client) Option {
	return func(p *Publisher) { p.client = c }
}

// NewPublisher configures an MQTT client from cfg. It does not connect.
func NewPublisher(cfg config.MQTTConfig, opts ...Option) (*Publisher, error) {
	if cfg.Broker == "" || cfg.Topic == "" {
		return nil, fmt.Errorf("%w: mqtt broker and topic are required", config.ErrInvalidConfig)
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	p := &Publisher{
		cfg:      cfg,
		clientID: cfg.ClientID,
		host:     host,
		clock:    clock.New(),
		log:      zap.NewNop(),
	}
	if p.clientID == "" {
		p.clientID = "netmonitor-" + uuid.NewString()
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.Named("mqtt").With(zap.String("client_id", p.clientID))

	if p.client == nil {
		o := mqtt.NewClientOptions()
		o.AddBroker(cfg.Broker)
		o.SetClientID(p.clientID)
		o.SetConnectTimeout(p.connectTimeout())
		o.SetPingTimeout(10 * time.Second)
		o.SetAutoReconnect(true)
		o.SetConnectRetry(true)
		o.SetConnectRetryInterval(10 * time.Second)
		o.SetCleanSession(true)
		if cfg.Username != "" {
			o.SetUsername(cfg.Username)
			o.SetPassword(cfg.Password)
		}
		o.SetWill(p.AvailabilityTopic(), availabilityOffline, cfg.QoS, true)
		o.SetOnConnectHandler(func(mqtt.Client) {
			p.log.Info("mqtt connection established", zap.String("broker", cfg.Broker))
			p.publish(p.AvailabilityTopic(), []byte(availabilityOnline))
		})
		o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			p.log.Warn("mqtt connection lost", zap.Error(err))
		})
		p.client = mqtt.NewClient(o)
	}
	return p, nil
}

// AvailabilityTopic carries "online" while the publisher is connected.
func (p *Publisher) AvailabilityTopic() string {
	return p.cfg.Topic + "/availability"
}

// ClientID returns the MQTT client identifier.
func (p *Publisher) ClientID() string {
	return p.clientID
}

// Connect dials the broker and waits up to the configured timeout.
func (p *Publisher) Connect() error {
	p.log.Info("connecting to mqtt broker", zap.String("broker", p.cfg.Broker))
	token := p.client.Connect()
	if !token.WaitTimeout(p.connectTimeout()) {
		return fmt.Errorf("mqtt connect to %s: timeout after %s", p.cfg.Broker, p.connectTimeout())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect to %s: %w", p.cfg.Broker, err)
	}
	return nil
}

// Close marks the monitor unavailable, waits for in-flight publishes and
// disconnects.
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		p.publish(p.AvailabilityTopic(), []byte(availabilityOffline))
	}
	p.pending.Wait()
	p.client.Disconnect(disconnectQuiesceMs)
	p.log.Info("disconnected from mqtt broker")
}

// Observe publishes status as a retained message. It does not block on the
// broker, so it can be registered as a status observer.
func (p *Publisher) Observe(status models.NetworkStatus) {
	payload, err := p.Encode(status)
	if err != nil {
		p.log.Error("encode status message", zap.Error(err))
		return
	}
	p.publish(p.cfg.Topic, payload)
}

// Encode renders the retained message for status.
func (p *Publisher) Encode(status models.NetworkStatus) ([]byte, error) {
	return json.Marshal(StatusMessage{
		Host:        p.host,
		Status:      status,
		PublishedAt: p.clock.Now().UTC(),
	})
}

func (p *Publisher) publish(topic string, payload []byte) {
	if !p.client.IsConnected() {
		p.log.Debug("mqtt not connected, dropping message", zap.String("topic", topic))
		return
	}
	token := p.client.Publish(topic, p.cfg.QoS, true, payload)

	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		if !token.WaitTimeout(publishTimeout) {
			p.log.Warn("mqtt publish timed out", zap.String("topic", topic))
			return
		}
		if err := token.Error(); err != nil {
			p.log.Warn("mqtt publish failed", zap.String("topic", topic), zap.Error(err))
		}
	}()
}

func (p *Publisher) connectTimeout() time.Duration {
	if p.cfg.ConnectTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(p.cfg.ConnectTimeoutSeconds) * time.Second
}
