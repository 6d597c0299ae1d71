package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// DefaultBufferSize is the number of messages kept while disconnected.
const DefaultBufferSize = 64

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	BootID     string
	BufferSize int // 0 = DefaultBufferSize

	// OnConnectionChange is called from paho's goroutines when the
	// connection comes up or goes down.
	OnConnectionChange func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker. Publishing never waits
// on the broker: while disconnected messages go to an outbox that is
// replayed on (re)connect, and delivery results are only logged.
type RealPublisher struct {
	client   paho.Client
	log      zerolog.Logger
	onChange func(bool)

	mu     sync.Mutex // guards outbox and connection transitions
	outbox *outbox

	connected *atomic.Bool
	published *atomic.Uint64
	dropped   *atomic.Uint64
	failed    *atomic.Uint64
}

// NewRealPublisher creates a publisher for the given broker and starts
// connecting in the background.
func NewRealPublisher(opts Options, log zerolog.Logger) (*RealPublisher, error) {
	if opts.Broker == "" {
		return nil, errors.New("mqtt: broker not set")
	}
	if opts.ClientID == "" {
		opts.ClientID = "keypad-sync"
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}

	p := &RealPublisher{
		log:       log.With().Str("component", "mqtt").Logger(),
		onChange:  opts.OnConnectionChange,
		outbox:    newOutbox(opts.BufferSize),
		connected: atomic.NewBool(false),
		published: atomic.NewUint64(0),
		dropped:   atomic.NewUint64(0),
		failed:    atomic.NewUint64(0),
	}

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(TopicSystem, string(WillPayload(opts.BootID)), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.handleConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { p.handleLost(err) })

	p.client = paho.NewClient(co)
	p.client.Connect()
	p.log.Info().Str("broker", opts.Broker).Msg("connecting")
	return p, nil
}

// Publish sends a pulse event to the MQTT broker.
func (p *RealPublisher) Publish(event PulseEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	p.publish(message{topic: Topic, payload: payload})
	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events
	p.publish(message{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
	return nil
}

// WaitConnected waits up to timeout for the broker connection. Used before
// shutdown so a queued SHUTDOWN event has a chance to leave.
func (p *RealPublisher) WaitConnected(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for !p.connected.Load() {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(50 * time.Millisecond)
	}
	return true
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.connected.Load()
}

// Dropped returns the number of messages evicted from a full outbox.
func (p *RealPublisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	p.log.Info().
		Uint64("published", p.published.Load()).
		Uint64("dropped", p.dropped.Load()).
		Uint64("failed", p.failed.Load()).
		Msg("disconnected")
	return nil
}

func (p *RealPublisher) publish(m message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected.Load() {
		p.send(m)
		return
	}
	if p.outbox.add(m) {
		p.dropped.Inc()
		if p.outbox.evicted == 1 {
			p.log.Warn().Int("limit", p.outbox.limit).Msg("outbox full, evicting oldest")
		}
	}
}

// send must be called with mu held.
func (p *RealPublisher) send(m message) {
	tok := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	go p.await(tok, m.topic)
}

func (p *RealPublisher) await(tok paho.Token, topic string) {
	if !tok.WaitTimeout(5 * time.Second) {
		p.failed.Inc()
		p.log.Warn().Str("topic", topic).Msg("publish timeout")
		return
	}
	if err := tok.Error(); err != nil {
		p.failed.Inc()
		p.log.Warn().Err(err).Str("topic", topic).Msg("publish failed")
		return
	}
	p.published.Inc()
}

func (p *RealPublisher) handleConnect() {
	p.mu.Lock()
	p.connected.Store(true)
	pending, evicted := p.outbox.take()
	for _, m := range pending {
		p.send(m)
	}
	p.mu.Unlock()

	p.log.Info().Int("replayed", len(pending)).Int("evicted", evicted).Msg("connected")
	if p.onChange != nil {
		p.onChange(true)
	}
}

func (p *RealPublisher) handleLost(err error) {
	p.mu.Lock()
	p.connected.Store(false)
	p.mu.Unlock()

	p.log.Warn().Err(err).Msg("connection lost")
	if p.onChange != nil {
		p.onChange(false)
	}
}
