package events

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/mockloc/mockloc/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic   string
	qos     byte
	retain  bool
	payload []byte
}

type fakeClient struct {
	mqtt.Client

	mu           sync.Mutex
	messages     []published
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic: topic, qos: qos, retain: retained, payload: payload.([]byte)})
	return doneToken{}
}

func (c *fakeClient) Disconnect(uint) {
	c.disconnected = true
}

func TestFanout(t *testing.T) {
	var a, b []core.Event
	f := NewFanout(SinkFunc(func(e core.Event) { a = append(a, e) }), nil)
	f.Add(SinkFunc(func(e core.Event) { b = append(b, e) }))
	f.Add(nil)

	f.Publish(core.Event{Kind: core.EventDrift})

	assert.Len(t, a, 1)
	assert.Len(t, b, 1)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := LogSink{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	sink.Publish(core.Event{
		SessionID: "s1",
		Kind:      core.EventReset,
		Provider:  "gps",
		Fields:    map[string]string{"meters": "150"},
	})

	assert.Contains(t, buf.String(), "kind=provider_reset")
	assert.Contains(t, buf.String(), "provider=gps")
	assert.Contains(t, buf.String(), "meters=150")
}

func TestMQTTPublisher_EventsAndStatus(t *testing.T) {
	client := &fakeClient{}
	p := NewMQTTPublisher(client, "/devices/test/", zerolog.Nop())

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p.Publish(core.Event{Time: at, SessionID: "abc", Kind: core.EventStrategyActivated, Strategy: "anti_detection"})
	p.Publish(core.Event{Time: at, SessionID: "abc", Kind: core.EventDrift, Provider: "gps"})
	p.Publish(core.Event{Time: at, SessionID: "abc", Kind: core.EventStopped})

	client.mu.Lock()
	defer client.mu.Unlock()
	require.Len(t, client.messages, 5)

	assert.Equal(t, "devices/test/abc/events", client.messages[0].topic)
	var e core.Event
	require.NoError(t, json.Unmarshal(client.messages[0].payload, &e))
	assert.Equal(t, core.EventStrategyActivated, e.Kind)

	status := client.messages[1]
	assert.Equal(t, "devices/test/abc/status", status.topic)
	assert.True(t, status.retain)
	assert.JSONEq(t, `{"strategy":"anti_detection","active":true,"time":"2026-03-01T09:00:00Z"}`, string(status.payload))

	assert.Equal(t, "devices/test/abc/events", client.messages[2].topic)
	assert.JSONEq(t, `{"strategy":"inactive","active":false,"time":"2026-03-01T09:00:00Z"}`, string(client.messages[4].payload))

	p.Close()
	assert.True(t, client.disconnected)
}

func TestNewMQTTPublisher_DefaultPrefix(t *testing.T) {
	client := &fakeClient{}
	p := NewMQTTPublisher(client, "", zerolog.Nop())
	p.Publish(core.Event{SessionID: "x", Kind: core.EventDrift})
	assert.Equal(t, "mockloc/x/events", client.messages[0].topic)
}
