package notify

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netmonitor/internal/config"
	"netmonitor/internal/models"
)

type doneToken struct{ err error }

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                 { return t.err }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	connected    bool
	connectErr   error
	messages     []published
	disconnected bool
}

func (f *fakeClient) Connect() mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = f.connectErr == nil
	return doneToken{err: f.connectErr}
}

func (f *fakeClient) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnected = true
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return doneToken{}
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) sent() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.messages...)
}

func testConfig() config.MQTTConfig {
	cfg := config.DefaultConfig().MQTT
	cfg.Enabled = true
	return cfg
}

func TestNewPublisher_RequiresBrokerAndTopic(t *testing.T) {
	cfg := testConfig()
	cfg.Topic = ""
	_, err := NewPublisher(cfg)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestNewPublisher_GeneratesClientID(t *testing.T) {
	a, err := NewPublisher(testConfig())
	require.NoError(t, err)
	b, err := NewPublisher(testConfig())
	require.NoError(t, err)

	assert.Contains(t, a.ClientID(), "netmonitor-")
	assert.NotEqual(t, a.ClientID(), b.ClientID())

	cfg := testConfig()
	cfg.ClientID = "fixed"
	c, err := NewPublisher(cfg)
	require.NoError(t, err)
	assert.Equal(t, "fixed", c.ClientID())
}

func TestPublisher_ObservePublishesRetainedStatus(t *testing.T) {
	fake := &fakeClient{}
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	p, err := NewPublisher(testConfig(), withClient(fake), WithClock(mock))
	require.NoError(t, err)
	require.NoError(t, p.Connect())

	p.Observe(models.NetworkStatus{Online: true, Latency: models.Float64(42), EffectiveType: models.String("4g")})
	p.pending.Wait()

	sent := fake.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "netmonitor/status", sent[0].topic)
	assert.True(t, sent[0].retained)
	assert.Equal(t, byte(1), sent[0].qos)

	var msg StatusMessage
	require.NoError(t, json.Unmarshal(sent[0].payload, &msg))
	assert.NotEmpty(t, msg.Host)
	assert.True(t, mock.Now().Equal(msg.PublishedAt))
	assert.True(t, msg.Status.Online)
	assert.Equal(t, 42.0, *msg.Status.Latency)
	assert.Equal(t, "4g", msg.Status.LinkType())
}

func TestPublisher_DropsWhileDisconnected(t *testing.T) {
	fake := &fakeClient{}
	p, err := NewPublisher(testConfig(), withClient(fake))
	require.NoError(t, err)

	p.Observe(models.DefaultStatus())
	p.pending.Wait()
	assert.Empty(t, fake.sent())
}

func TestPublisher_ConnectError(t *testing.T) {
	fake := &fakeClient{connectErr: errors.New("refused")}
	p, err := NewPublisher(testConfig(), withClient(fake))
	require.NoError(t, err)

	err = p.Connect()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refused")
}

func TestPublisher_CloseMarksUnavailable(t *testing.T) {
	fake := &fakeClient{}
	p, err := NewPublisher(testConfig(), withClient(fake))
	require.NoError(t, err)
	require.NoError(t, p.Connect())

	p.Close()

	sent := fake.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "netmonitor/status/availability", sent[0].topic)
	assert.Equal(t, []byte(availabilityOffline), sent[0].payload)
	assert.True(t, fake.disconnected)
}
