package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ycry/ycry-go/internal/conf"
	"github.com/ycry/ycry-go/internal/errors"
	"github.com/ycry/ycry-go/internal/inference"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type published struct {
	topic   string
	payload []byte
}

// fakeClient records publishes instead of talking to a broker.
type fakeClient struct {
	mu         sync.Mutex
	connected  bool
	connectErr error
	connects   int
	messages   []published
}

func (f *fakeClient) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeClient) Publish(_ context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, published{topic: topic, payload: payload})
	return nil
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeClient) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func testEvent() inference.Event {
	return inference.Event{
		RequestID:     "req-1",
		Filename:      "cry.wav",
		Label:         "Hunger",
		Confidence:    0.8734,
		Advice:        "Feed baby",
		Probabilities: map[string]float64{"Hunger": 0.8734, "Pain": 0.1266},
		LabelSet:      "v1",
		DurationMs:    120,
		Time:          time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPublisherPublishesJSON(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{}
	p := NewPublisher(fc, "nursery/cry")
	var _ inference.Observer = p

	require.NoError(t, p.OnPrediction(context.Background(), testEvent()))
	require.Len(t, fc.messages, 1)
	assert.Equal(t, 1, fc.connects, "offline client connects on first prediction")
	assert.Equal(t, "nursery/cry", fc.messages[0].topic)

	var msg Message
	require.NoError(t, json.Unmarshal(fc.messages[0].payload, &msg))
	assert.Equal(t, "Hunger", msg.Prediction)
	assert.Equal(t, "87.3", msg.Confidence)
	assert.Equal(t, "Feed baby", msg.Advice)
	assert.Equal(t, "cry.wav", msg.Source)
	assert.Equal(t, "2026-03-01T12:00:00.000Z", msg.Timestamp)

	require.NoError(t, p.OnPrediction(context.Background(), testEvent()))
	assert.Equal(t, 1, fc.connects, "connected client is reused")

	p.Close()
	assert.False(t, fc.IsConnected())
}

func TestPublisherConnectFailure(t *testing.T) {
	t.Parallel()

	fc := &fakeClient{connectErr: errors.NewStd("broker unreachable")}
	p := NewPublisher(fc, "")
	assert.Equal(t, "mqtt", p.Name())
	assert.Equal(t, DefaultTopic, p.topic)

	err := p.OnPrediction(context.Background(), testEvent())
	require.Error(t, err)
	assert.Empty(t, fc.messages)
}

func TestNewClientValidatesBroker(t *testing.T) {
	t.Parallel()

	for _, broker := range []string{"", "localhost", "://bad"} {
		_, err := NewClient(Config{Broker: broker}, nil)
		require.Error(t, err, "broker %q", broker)
		assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
	}

	c, err := NewClient(Config{Broker: "tcp://127.0.0.1:1883"}, nil)
	require.NoError(t, err)
	assert.False(t, c.IsConnected())
	assert.Contains(t, c.(*client).config.ClientID, "ycry-")
	c.Disconnect()
}

func TestPublishWhileDisconnected(t *testing.T) {
	t.Parallel()

	c, err := NewClient(Config{Broker: "tcp://127.0.0.1:1883"}, nil)
	require.NoError(t, err)
	defer c.Disconnect()

	err = c.Publish(context.Background(), DefaultTopic, []byte("{}"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTConnection))
}

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()

	cfg := ConfigFromSettings(&conf.MQTTSettings{Broker: "tcp://broker:1883", Username: "u", Retain: true})
	assert.Equal(t, DefaultTopic, cfg.Topic)
	assert.True(t, cfg.Retain)
	assert.Equal(t, 10*time.Second, cfg.PublishTimeout)

	cfg = ConfigFromSettings(&conf.MQTTSettings{Broker: "tcp://broker:1883", Topic: "home/cry"})
	assert.Equal(t, "home/cry", cfg.Topic)
}

// doneToken is a paho.Token that has already completed.
type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

// fakePaho stands in for a paho client. Unused methods of the embedded
// interface panic if called.
type fakePaho struct {
	paho.Client
	mu          sync.Mutex
	connected   bool
	connects    int
	disconnects int
	publishes   int
}

func (f *fakePaho) Connect() paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	f.connected = true
	return doneToken{}
}

func (f *fakePaho) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakePaho) Disconnect(uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
}

func (f *fakePaho) Publish(string, byte, bool, any) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publishes++
	return doneToken{}
}

func (f *fakePaho) dropConnection() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

// fakeBrokerClient returns a client whose paho connections are recorded in
// created.
func fakeBrokerClient(t *testing.T, created *[]*fakePaho) *client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Broker = "tcp://127.0.0.1:1883"
	c, err := NewClient(cfg, nil)
	require.NoError(t, err)
	cl := c.(*client)
	var mu sync.Mutex
	cl.newPaho = func(*paho.ClientOptions) paho.Client {
		mu.Lock()
		defer mu.Unlock()
		fp := &fakePaho{}
		*created = append(*created, fp)
		return fp
	}
	return cl
}

func TestConcurrentFirstPredictionsShareConnection(t *testing.T) {
	t.Parallel()

	var created []*fakePaho
	cl := fakeBrokerClient(t, &created)
	p := NewPublisher(cl, "")

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- p.OnPrediction(context.Background(), testEvent())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Len(t, created, 1)
	assert.Equal(t, 1, created[0].connects)
	assert.Equal(t, callers, created[0].publishes)

	p.Close()
	assert.Equal(t, 1, created[0].disconnects)
}

func TestReconnectReleasesPreviousClient(t *testing.T) {
	t.Parallel()

	var created []*fakePaho
	cl := fakeBrokerClient(t, &created)
	cl.config.ReconnectCooldown = 0
	defer cl.Disconnect()

	require.NoError(t, cl.Connect(context.Background()))
	require.NoError(t, cl.Connect(context.Background()))
	require.Len(t, created, 1, "connected client is reused")

	created[0].dropConnection()
	require.NoError(t, cl.Connect(context.Background()))
	require.Len(t, created, 2)
	assert.Equal(t, 1, created[0].disconnects, "replaced client is released")
	assert.True(t, cl.IsConnected())
}
