// Package mqtt tunnels a framed byte stream between two peers over MQTT.
//
// Each peer publishes its outgoing frames, flags and stuffing included, as
// raw binary messages to "{prefix}/{peerID}" and subscribes to
// "{prefix}/{localID}". Received message bodies are concatenated into a
// receive queue and deframed by a line, so a broker that drops, reorders or
// splits messages looks like a noisy serial wire to the receiver.
package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/kabili207/sdlink/core/codec"
	"github.com/kabili207/sdlink/core/line"
	"github.com/kabili207/sdlink/transport"
	"github.com/kabili207/sdlink/transport/bytepipe"
)

// Compile-time interface check.
var _ transport.Transport = (*Transport)(nil)

const (
	// DefaultTopicPrefix is the default MQTT topic prefix for link traffic.
	DefaultTopicPrefix = "sdlink"

	// DefaultBufferSize is the default receive queue size.
	DefaultBufferSize = 4096

	publishTimeout = 10 * time.Second
)

// Config holds the configuration for an MQTT transport.
type Config struct {
	// Broker is the MQTT broker URL (e.g., "tcp://broker.example.com:1883").
	Broker string
	// Username for MQTT authentication. Leave empty if not required.
	Username string
	// Password for MQTT authentication. Leave empty if not required.
	Password string
	// UseTLS enables TLS for the MQTT connection.
	UseTLS bool
	// ClientID is the MQTT client identifier. If empty, a random one is generated.
	ClientID string
	// TopicPrefix is the MQTT topic prefix (default: "sdlink").
	TopicPrefix string
	// LocalID names this end. The transport subscribes to
	// "{TopicPrefix}/{LocalID}".
	LocalID string
	// PeerID names the other end. Frames are published to
	// "{TopicPrefix}/{PeerID}".
	PeerID string
	// Limits bounds payload size. The zero value uses codec.DefaultLimits.
	Limits codec.Limits
	// BufferSize is the receive queue size. Defaults to 4096.
	BufferSize int
	// PollInterval is how often the line is polled without new bytes.
	PollInterval time.Duration
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Transport implements transport.Transport over MQTT.
type Transport struct {
	cfg    Config
	client paho.Client
	log    *slog.Logger

	line *line.Line
	in   *bytepipe.Queue
	out  *bytepipe.Queue
	pump *transport.Pump

	mu             sync.RWMutex
	txMu           sync.Mutex
	connected      bool
	cancel         context.CancelFunc
	done           chan struct{}
	payloadHandler transport.PayloadHandler
	stateHandler   transport.StateHandler
}

// New creates a new MQTT transport with the given configuration.
func New(cfg Config) *Transport {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = transport.DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Transport{
		cfg: cfg,
		log: cfg.Logger.WithGroup("mqtt"),
	}
}

// Start connects to the MQTT broker and begins listening for frames.
func (t *Transport) Start(ctx context.Context) error {
	if t.cfg.Broker == "" {
		return errors.New("broker URL is required")
	}
	if t.cfg.LocalID == "" {
		return errors.New("local ID is required")
	}
	if t.cfg.PeerID == "" {
		return errors.New("peer ID is required")
	}

	if err := t.attach(); err != nil {
		return err
	}

	clientID := t.cfg.ClientID
	if clientID == "" {
		clientID = "sdlink-" + uuid.NewString()
	}

	opts := paho.NewClientOptions().
		AddBroker(t.cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(2 * time.Minute).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetOnConnectHandler(t.onConnected).
		SetConnectionLostHandler(t.onConnectionLost).
		SetReconnectingHandler(t.onReconnecting)

	if t.cfg.Username != "" {
		opts.SetUsername(t.cfg.Username)
	}
	if t.cfg.Password != "" {
		opts.SetPassword(t.cfg.Password)
	}
	if t.cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})
	}

	client := paho.NewClient(opts)
	t.mu.Lock()
	t.client = client
	t.mu.Unlock()

	token := client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return errors.New("connection timeout")
	}
	if token.Error() != nil {
		return fmt.Errorf("connecting to broker: %w", token.Error())
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.mu.Lock()
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	go func() {
		defer close(done)
		if err := t.pump.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			t.log.Error("mqtt receive failed", "error", err)
		}
	}()

	return nil
}

// attach builds the line and its queues.
func (t *Transport) attach() error {
	lim := t.cfg.Limits
	if lim.MaxPayload == 0 {
		lim = codec.DefaultLimits()
	}
	maxPayload := lim.Max()
	if maxPayload == codec.NoLimit {
		maxPayload = t.cfg.BufferSize
	}

	in := bytepipe.New(max(t.cfg.BufferSize, codec.FrameCapacity(maxPayload)))
	out := bytepipe.New(codec.FrameCapacity(max(maxPayload, 0)))
	l, err := line.New(line.Config{
		Sink:       out,
		Source:     in,
		Limits:     lim,
		BufferSize: t.cfg.BufferSize,
	})
	if err != nil {
		return fmt.Errorf("configuring line: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.line = l
	t.in = in
	t.out = out
	t.pump = &transport.Pump{
		Receiver:   l,
		Dispatch:   t.dispatch,
		Wake:       in.Ready(),
		Interval:   t.cfg.PollInterval,
		BufferSize: maxPayload,
		Logger:     t.log,
	}
	return nil
}

// Stop gracefully disconnects from the MQTT broker.
func (t *Transport) Stop() error {
	t.mu.Lock()
	client := t.client
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.connected = false
	t.mu.Unlock()

	if client != nil {
		client.Disconnect(1000)
	}
	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

// IsConnected returns true if the transport is connected to the broker.
func (t *Transport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected && t.client != nil && t.client.IsConnected()
}

// SetPayloadHandler sets the callback for incoming payloads.
func (t *Transport) SetPayloadHandler(fn transport.PayloadHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.payloadHandler = fn
}

// SetStateHandler sets the callback for transport state changes.
func (t *Transport) SetStateHandler(fn transport.StateHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stateHandler = fn
}

// Counters returns the line statistics, or nil before Start.
func (t *Transport) Counters() *line.Counters {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.line == nil {
		return nil
	}
	return t.line.Counters()
}

// Send frames payload and publishes it to the peer topic.
func (t *Transport) Send(payload []byte) error {
	if !t.IsConnected() {
		return errors.New("not connected")
	}

	t.txMu.Lock()
	defer t.txMu.Unlock()

	if err := t.line.Send(payload); err != nil {
		t.out.Drain()
		return fmt.Errorf("framing payload: %w", err)
	}

	token := t.client.Publish(t.peerTopic(), 0, false, t.out.Drain())
	if !token.WaitTimeout(publishTimeout) {
		return errors.New("timeout publishing to MQTT")
	}
	return token.Error()
}

func (t *Transport) localTopic() string {
	return t.cfg.TopicPrefix + "/" + t.cfg.LocalID
}

func (t *Transport) peerTopic() string {
	return t.cfg.TopicPrefix + "/" + t.cfg.PeerID
}

func (t *Transport) subscribe(client paho.Client) {
	topic := t.localTopic()
	client.Subscribe(topic, 0, t.handleMessage)
	t.log.Debug("subscribed to link topic", "topic", topic)
}

// handleMessage appends a message body to the receive stream.
func (t *Transport) handleMessage(_ paho.Client, message paho.Message) {
	before := t.in.Dropped()
	t.in.Write(message.Payload())
	if dropped := t.in.Dropped() - before; dropped > 0 {
		t.log.Debug("receive queue full, bytes dropped", "dropped", dropped)
	}
}

func (t *Transport) dispatch(payload []byte) {
	t.mu.RLock()
	handler := t.payloadHandler
	t.mu.RUnlock()

	if handler != nil {
		handler(payload, transport.PayloadSourceMQTT)
	}
}

func (t *Transport) onConnected(client paho.Client) {
	t.mu.Lock()
	t.connected = true
	handler := t.stateHandler
	t.mu.Unlock()

	t.subscribe(client)
	t.log.Info("connected to MQTT broker", "broker", t.cfg.Broker)

	if handler != nil {
		handler(t, transport.EventConnected)
	}
}

func (t *Transport) onConnectionLost(_ paho.Client, err error) {
	t.mu.Lock()
	t.connected = false
	handler := t.stateHandler
	t.mu.Unlock()

	t.log.Error("MQTT connection lost", "error", err)

	if handler != nil {
		handler(t, transport.EventDisconnected)
	}
}

func (t *Transport) onReconnecting(_ paho.Client, _ *paho.ClientOptions) {
	t.mu.RLock()
	handler := t.stateHandler
	t.mu.RUnlock()

	t.log.Info("reconnecting to MQTT broker")

	if handler != nil {
		handler(t, transport.EventReconnecting)
	}
}
