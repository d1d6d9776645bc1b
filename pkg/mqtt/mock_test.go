package mqtt

import (
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/mock"
)

type MockPahoClient struct {
	mock.Mock
}

func (m *MockPahoClient) IsConnected() bool {
	return m.Called().Bool(0)
}

func (m *MockPahoClient) IsConnectionOpen() bool {
	return m.Called().Bool(0)
}

func (m *MockPahoClient) Connect() paho.Token {
	return m.Called().Get(0).(paho.Token)
}

func (m *MockPahoClient) Disconnect(quiesce uint) {
	m.Called(quiesce)
}

func (m *MockPahoClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	return m.Called(topic, qos, retained, payload).Get(0).(paho.Token)
}

func (m *MockPahoClient) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	return m.Called(topic, qos).Get(0).(paho.Token)
}

func (m *MockPahoClient) SubscribeMultiple(filters map[string]byte, callback paho.MessageHandler) paho.Token {
	return m.Called(filters).Get(0).(paho.Token)
}

func (m *MockPahoClient) Unsubscribe(topics ...string) paho.Token {
	return m.Called(topics).Get(0).(paho.Token)
}

func (m *MockPahoClient) AddRoute(topic string, callback paho.MessageHandler) {
	m.Called(topic)
}

func (m *MockPahoClient) OptionsReader() paho.ClientOptionsReader {
	return m.Called().Get(0).(paho.ClientOptionsReader)
}

var _ paho.Client = &MockPahoClient{}

type MockToken struct {
	mock.Mock
}

func (m *MockToken) Wait() bool {
	return m.Called().Bool(0)
}

func (m *MockToken) WaitTimeout(timeout time.Duration) bool {
	return m.Called(timeout).Bool(0)
}

func (m *MockToken) Done() <-chan struct{} {
	return m.Called().Get(0).(chan struct{})
}

func (m *MockToken) Error() error {
	return m.Called().Error(0)
}

var _ paho.Token = &MockToken{}

type MockMessage struct {
	mock.Mock
}

func (m *MockMessage) Duplicate() bool {
	return m.Called().Bool(0)
}

func (m *MockMessage) Qos() byte {
	return m.Called().Get(0).(byte)
}

func (m *MockMessage) Retained() bool {
	return m.Called().Bool(0)
}

func (m *MockMessage) Topic() string {
	return m.Called().String(0)
}

func (m *MockMessage) MessageID() uint16 {
	return m.Called().Get(0).(uint16)
}

func (m *MockMessage) Payload() []byte {
	return m.Called().Get(0).([]byte)
}

func (m *MockMessage) Ack() {
	m.Called()
}

var _ paho.Message = &MockMessage{}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
