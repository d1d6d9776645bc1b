package mqtt

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const (
	DefaultConnectTimeout   = 10 * time.Second
	DefaultPublishTimeout   = 5 * time.Second
	DefaultSubscribeTimeout = 5 * time.Second
	DefaultKeepAlive        = 60 * time.Second

	clientIDPrefix  = "mqtt-dashboard-"
	disconnectQuiet = 250 // milliseconds
)

var (
	ErrNotConnected     = errors.New("not connected to MQTT broker")
	ErrConnectTimeout   = errors.New("connect timeout")
	ErrPublishTimeout   = errors.New("publish timeout")
	ErrSubscribeTimeout = errors.New("subscribe timeout")
)

type Params struct {
	ClientID string
	Username string
	Password string
	QoS      byte

	ConnectTimeout   time.Duration
	PublishTimeout   time.Duration
	SubscribeTimeout time.Duration
	KeepAlive        time.Duration

	NewClientFunc func(options *paho.ClientOptions) paho.Client

	Logger zerolog.Logger
}

func (p *Params) EnsureDefaults() {
	if p.ClientID == "" {
		p.ClientID = clientIDPrefix + uuid.NewString()
	}
	if p.ConnectTimeout == 0 {
		p.ConnectTimeout = DefaultConnectTimeout
	}
	if p.PublishTimeout == 0 {
		p.PublishTimeout = DefaultPublishTimeout
	}
	if p.SubscribeTimeout == 0 {
		p.SubscribeTimeout = DefaultSubscribeTimeout
	}
	if p.KeepAlive == 0 {
		p.KeepAlive = DefaultKeepAlive
	}
	if p.NewClientFunc == nil {
		p.NewClientFunc = paho.NewClient
	}
}
