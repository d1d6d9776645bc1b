package mqtt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/denwilliams/go-mqtt-dashboard/pkg/metrics"
	"github.com/denwilliams/go-mqtt-dashboard/pkg/session"
)

type capturedOptions struct {
	options *paho.ClientOptions
}

func newTestClient(mClient *MockPahoClient, captured *capturedOptions) *Client {
	return NewClient(Params{
		ClientID:       "test",
		Username:       "admin",
		Password:       "password",
		ConnectTimeout: time.Second,
		Logger:         zerolog.Nop(),
		// for testing
		NewClientFunc: func(options *paho.ClientOptions) paho.Client {
			if captured != nil {
				captured.options = options
			}
			return mClient
		},
	})
}

func connectedClient(t *testing.T, mClient *MockPahoClient, captured *capturedOptions) *Client {
	t.Helper()

	mToken := &MockToken{}
	mClient.On("Connect").Return(mToken).Once()
	mToken.On("Done").Return(closedChan()).Once()
	mToken.On("Error").Return(nil).Once()

	client := newTestClient(mClient, captured)
	require.NoError(t, client.Connect(context.Background(), "localhost", 1883))
	client.onConnect(mClient)
	return client
}

func TestClient_Connect(t *testing.T) {
	mClient := &MockPahoClient{}
	captured := &capturedOptions{}

	var connected bool
	client := connectedClient(t, mClient, captured)
	client.SetHandlers(session.Handlers{OnConnect: func() { connected = true }})
	client.onConnect(mClient)

	assert.True(t, connected)
	assert.True(t, client.IsConnected())

	opts := captured.options
	require.NotNil(t, opts)
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://localhost:1883", opts.Servers[0].String())
	assert.Equal(t, "test", opts.ClientID)
	assert.Equal(t, "admin", opts.Username)
	assert.True(t, opts.AutoReconnect)
	assert.True(t, opts.CleanSession)
	assert.Equal(t, int64(DefaultKeepAlive/time.Second), opts.KeepAlive)

	mClient.AssertExpectations(t)
}

func TestClient_ConnectError(t *testing.T) {
	mClient := &MockPahoClient{}
	mToken := &MockToken{}

	mClient.On("Connect").Return(mToken).Once()
	mToken.On("Done").Return(closedChan()).Once()
	mToken.On("Error").Return(fmt.Errorf("connection refused")).Once()

	client := newTestClient(mClient, nil)
	err := client.Connect(context.Background(), "localhost", 1883)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.False(t, client.IsConnected())

	mClient.AssertExpectations(t)
	mToken.AssertExpectations(t)
}

func TestClient_ConnectTimeout(t *testing.T) {
	mClient := &MockPahoClient{}
	mToken := &MockToken{}

	mClient.On("Connect").Return(mToken).Once()
	mClient.On("Disconnect", uint(0)).Once()
	mToken.On("Done").Return(make(chan struct{})).Once()

	client := NewClient(Params{
		ConnectTimeout: 20 * time.Millisecond,
		Logger:         zerolog.Nop(),
		NewClientFunc: func(options *paho.ClientOptions) paho.Client {
			return mClient
		},
	})

	err := client.Connect(context.Background(), "localhost", 1883)
	assert.True(t, errors.Is(err, ErrConnectTimeout))

	mClient.AssertExpectations(t)
}

func TestClient_ReconnectReleasesPreviousClient(t *testing.T) {
	first := &MockPahoClient{}
	second := &MockPahoClient{}
	clients := []*MockPahoClient{first, second}

	client := NewClient(Params{
		ConnectTimeout: time.Second,
		Logger:         zerolog.Nop(),
		NewClientFunc: func(options *paho.ClientOptions) paho.Client {
			next := clients[0]
			clients = clients[1:]
			return next
		},
	})

	var messages int
	client.SetHandlers(session.Handlers{OnMessage: func(string, []byte) { messages++ }})

	for _, m := range []*MockPahoClient{first, second} {
		mToken := &MockToken{}
		m.On("Connect").Return(mToken).Once()
		mToken.On("Done").Return(closedChan()).Once()
		mToken.On("Error").Return(nil).Once()
	}

	require.NoError(t, client.Connect(context.Background(), "old.local", 1883))
	client.onConnect(first)

	// the old client delivers one last message while paho shuts it down
	msg := &MockMessage{}
	msg.On("Topic").Return("a")
	msg.On("Payload").Return([]byte("x"))
	first.On("Disconnect", uint(disconnectQuiet)).Run(func(mock.Arguments) {
		client.onMessage(first, msg)
	}).Once()

	done := make(chan error, 1)
	go func() { done <- client.Connect(context.Background(), "new.local", 1883) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reconnect blocked on the previous client")
	}

	assert.Equal(t, 1, messages)
	assert.False(t, client.IsConnected())
	assert.False(t, metrics.MQTTConnectionState.DeleteLabelValues("tcp://old.local:1883"),
		"series for the previous broker is removed")
	first.AssertExpectations(t)
	second.AssertExpectations(t)
}

func TestClient_GeneratedClientID(t *testing.T) {
	params := Params{}
	params.EnsureDefaults()

	assert.True(t, strings.HasPrefix(params.ClientID, "mqtt-dashboard-"))
	assert.Equal(t, DefaultPublishTimeout, params.PublishTimeout)
	assert.NotNil(t, params.NewClientFunc)
}

func TestClient_NotConnected(t *testing.T) {
	client := newTestClient(&MockPahoClient{}, nil)

	assert.True(t, errors.Is(client.Publish("a", []byte("x")), ErrNotConnected))
	assert.True(t, errors.Is(client.Subscribe("a/#"), ErrNotConnected))
	assert.True(t, errors.Is(client.Unsubscribe("a/#"), ErrNotConnected))

	// disconnecting a client that never connected is harmless
	client.Disconnect()
}

func TestClient_SubscribeAndUnsubscribe(t *testing.T) {
	mClient := &MockPahoClient{}
	client := connectedClient(t, mClient, nil)

	subToken := &MockToken{}
	mClient.On("Subscribe", "sensor/#", byte(0)).Return(subToken).Once()
	subToken.On("WaitTimeout", DefaultSubscribeTimeout).Return(true).Once()
	subToken.On("Error").Return(nil).Once()

	unsubToken := &MockToken{}
	mClient.On("Unsubscribe", []string{"sensor/#"}).Return(unsubToken).Once()
	unsubToken.On("WaitTimeout", DefaultSubscribeTimeout).Return(true).Once()
	unsubToken.On("Error").Return(nil).Once()

	require.NoError(t, client.Subscribe("sensor/#"))
	require.NoError(t, client.Unsubscribe("sensor/#"))

	mClient.AssertExpectations(t)
	subToken.AssertExpectations(t)
	unsubToken.AssertExpectations(t)
}

func TestClient_Publish(t *testing.T) {
	mClient := &MockPahoClient{}
	client := connectedClient(t, mClient, nil)

	okToken := &MockToken{}
	mClient.On("Publish", "lights/kitchen", byte(0), false, []byte("on")).Return(okToken).Once()
	okToken.On("WaitTimeout", DefaultPublishTimeout).Return(true).Once()
	okToken.On("Error").Return(nil).Once()

	require.NoError(t, client.Publish("lights/kitchen", []byte("on")))

	slowToken := &MockToken{}
	mClient.On("Publish", "lights/kitchen", byte(0), false, []byte("off")).Return(slowToken).Once()
	slowToken.On("WaitTimeout", DefaultPublishTimeout).Return(false).Once()

	err := client.Publish("lights/kitchen", []byte("off"))
	assert.True(t, errors.Is(err, ErrPublishTimeout))

	mClient.AssertExpectations(t)
	okToken.AssertExpectations(t)
	slowToken.AssertExpectations(t)
}

func TestClient_Callbacks(t *testing.T) {
	mClient := &MockPahoClient{}
	client := connectedClient(t, mClient, nil)

	var (
		lostErr      error
		reconnecting bool
		gotTopic     string
		gotPayload   string
	)
	client.SetHandlers(session.Handlers{
		OnDisconnect:   func(err error) { lostErr = err },
		OnReconnecting: func() { reconnecting = true },
		OnMessage: func(topic string, payload []byte) {
			gotTopic, gotPayload = topic, string(payload)
		},
	})

	msg := &MockMessage{}
	msg.On("Topic").Return("sensor/temp")
	msg.On("Payload").Return([]byte("21.5"))
	client.onMessage(mClient, msg)
	assert.Equal(t, "sensor/temp", gotTopic)
	assert.Equal(t, "21.5", gotPayload)

	client.onConnectionLost(mClient, fmt.Errorf("connection lost"))
	assert.EqualError(t, lostErr, "connection lost")
	assert.False(t, client.IsConnected())

	client.onReconnecting(mClient, nil)
	assert.True(t, reconnecting)
}

func TestClient_Disconnect(t *testing.T) {
	mClient := &MockPahoClient{}
	client := connectedClient(t, mClient, nil)

	mClient.On("Disconnect", mock.AnythingOfType("uint")).Once()
	client.Disconnect()

	assert.False(t, client.IsConnected())
	assert.True(t, errors.Is(client.Publish("a", nil), ErrNotConnected))
	mClient.AssertExpectations(t)
}
