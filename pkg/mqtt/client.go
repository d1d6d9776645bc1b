// Package mqtt connects the dashboard session to a broker through the paho
// client.
package mqtt

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/denwilliams/go-mqtt-dashboard/pkg/metrics"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/session"
)

type Client struct {
	params Params

	mu       sync.RWMutex
	client   paho.Client
	broker   string
	handlers session.Handlers

	connected atomic.Bool
	logger    zerolog.Logger
}

func NewClient(params Params) *Client {
	params.EnsureDefaults()

	return &Client{
		params: params,
		logger: params.Logger,
	}
}

func (c *Client) SetHandlers(handlers session.Handlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = handlers
}

// Connect builds a fresh paho client for host:port and waits for the first
// connection attempt. Later reconnects are handled by paho and reported
// through the handlers.
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	broker := "tcp://" + net.JoinHostPort(host, strconv.Itoa(port))

	client := c.newPahoClient(broker)

	c.mu.Lock()
	previous, previousBroker := c.client, c.broker
	c.client = client
	c.broker = broker
	c.mu.Unlock()

	// paho waits for the old client's callbacks, which take c.mu.
	if previous != nil {
		previous.Disconnect(disconnectQuiet)
		c.connected.Store(false)
	}
	if previousBroker != "" && previousBroker != broker {
		metrics.ClearMQTTConnectionState(previousBroker)
	}

	c.logger.Info().Str("broker", broker).Str("client_id", c.params.ClientID).Msg("Connecting to MQTT broker")

	timer := time.NewTimer(c.params.ConnectTimeout)
	defer timer.Stop()

	token := client.Connect()
	select {
	case <-ctx.Done():
		client.Disconnect(0)
		return ctx.Err()
	case <-timer.C:
		client.Disconnect(0)
		return fmt.Errorf("%w after %v", ErrConnectTimeout, c.params.ConnectTimeout)
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("failed to connect to MQTT broker %s: %w", broker, err)
		}
	}

	return nil
}

func (c *Client) Disconnect() {
	c.mu.Lock()
	client, broker := c.client, c.broker
	c.client = nil
	c.mu.Unlock()

	if client == nil {
		return
	}

	c.logger.Info().Str("broker", broker).Msg("Disconnecting from MQTT broker")
	client.Disconnect(disconnectQuiet)
	c.connected.Store(false)
	metrics.SetMQTTConnectionState(broker, false)
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) Subscribe(pattern string) error {
	client, err := c.connectedClient()
	if err != nil {
		return err
	}

	token := client.Subscribe(pattern, c.params.QoS, nil)
	if err := waitToken(token, c.params.SubscribeTimeout, ErrSubscribeTimeout); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", pattern, err)
	}

	c.logger.Debug().Str("pattern", pattern).Msg("Subscribed to topic")
	return nil
}

func (c *Client) Unsubscribe(pattern string) error {
	client, err := c.connectedClient()
	if err != nil {
		return err
	}

	token := client.Unsubscribe(pattern)
	if err := waitToken(token, c.params.SubscribeTimeout, ErrSubscribeTimeout); err != nil {
		return fmt.Errorf("failed to unsubscribe from topic %s: %w", pattern, err)
	}

	c.logger.Debug().Str("pattern", pattern).Msg("Unsubscribed from topic")
	return nil
}

func (c *Client) Publish(topic string, payload []byte) error {
	client, err := c.connectedClient()
	if err != nil {
		return err
	}

	start := time.Now()
	token := client.Publish(topic, c.params.QoS, false, payload)
	if err := waitToken(token, c.params.PublishTimeout, ErrPublishTimeout); err != nil {
		metrics.RecordMQTTPublishError()
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	metrics.RecordMQTTPublish(time.Since(start).Seconds())

	c.logger.Debug().Str("topic", topic).Int("bytes", len(payload)).Msg("Published message")
	return nil
}

func (c *Client) connectedClient() (paho.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.client == nil || !c.connected.Load() {
		return nil, ErrNotConnected
	}
	return c.client, nil
}

func (c *Client) currentHandlers() session.Handlers {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handlers
}

func (c *Client) onConnect(client paho.Client) {
	c.connected.Store(true)

	c.mu.RLock()
	broker := c.broker
	c.mu.RUnlock()

	c.logger.Info().Str("broker", broker).Msg("Connected to MQTT broker")
	metrics.SetMQTTConnectionState(broker, true)

	if h := c.currentHandlers(); h.OnConnect != nil {
		h.OnConnect()
	}
}

func (c *Client) onConnectionLost(client paho.Client, err error) {
	c.connected.Store(false)

	c.mu.RLock()
	broker := c.broker
	c.mu.RUnlock()

	c.logger.Warn().Err(err).Str("broker", broker).Msg("Connection lost")
	metrics.SetMQTTConnectionState(broker, false)

	if h := c.currentHandlers(); h.OnDisconnect != nil {
		h.OnDisconnect(err)
	}
}

func (c *Client) onReconnecting(client paho.Client, options *paho.ClientOptions) {
	c.logger.Info().Msg("Reconnecting to MQTT broker")

	if h := c.currentHandlers(); h.OnReconnecting != nil {
		h.OnReconnecting()
	}
}

func (c *Client) onMessage(client paho.Client, msg paho.Message) {
	metrics.RecordMQTTReceive()

	if h := c.currentHandlers(); h.OnMessage != nil {
		h.OnMessage(msg.Topic(), msg.Payload())
	}
}

func (c *Client) newPahoClient(broker string) paho.Client {
	opts := paho.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(c.params.ClientID)

	if c.params.Username != "" {
		opts.SetUsername(c.params.Username)
	}
	if c.params.Password != "" {
		opts.SetPassword(c.params.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(c.params.KeepAlive)
	opts.SetConnectTimeout(c.params.ConnectTimeout)

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)
	opts.SetDefaultPublishHandler(c.onMessage)

	return c.params.NewClientFunc(opts)
}

func waitToken(token paho.Token, timeout time.Duration, timeoutErr error) error {
	if !token.WaitTimeout(timeout) {
		return timeoutErr
	}
	return token.Error()
}

var _ session.Transport = &Client{}
