package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/cop-agent/internal/domain/auth"
)

type recordedPublish struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	published []recordedPublish
	err       error
	closed    bool
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.published = append(c.published, recordedPublish{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

func TestEventSink_Publish(t *testing.T) {
	ch := &fakeChannel{}
	sink := NewEventSink(ch, "")

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := domainauth.SessionEvent{
		ID:         "ev-1",
		Kind:       domainauth.EventSignedIn,
		UserID:     "user-ops1",
		Backend:    domainauth.BackendOIDC,
		OccurredAt: at,
	}
	require.NoError(t, sink.Publish(context.Background(), ev))

	require.Len(t, ch.published, 1)
	p := ch.published[0]
	assert.Equal(t, DefaultExchange, p.exchange)
	assert.Equal(t, "session.signed_in", p.key)
	assert.Equal(t, "application/json", p.msg.ContentType)
	assert.Equal(t, amqp.Persistent, p.msg.DeliveryMode)
	assert.Equal(t, "ev-1", p.msg.MessageId)
	assert.Equal(t, at, p.msg.Timestamp)

	var decoded domainauth.SessionEvent
	require.NoError(t, json.Unmarshal(p.msg.Body, &decoded))
	assert.Equal(t, ev, decoded)
}

func TestEventSink_PublishError(t *testing.T) {
	sink := NewEventSink(&fakeChannel{err: amqp.ErrClosed}, "audit")

	err := sink.Publish(context.Background(), domainauth.SessionEvent{Kind: domainauth.EventSignedOut})
	require.Error(t, err)
	assert.True(t, errors.Is(err, amqp.ErrClosed))
}

func TestEventSink_Close(t *testing.T) {
	ch := &fakeChannel{}
	sink := NewEventSink(ch, "audit")

	require.NoError(t, sink.Close())
	assert.True(t, ch.closed)
}

func TestDial_RequiresURL(t *testing.T) {
	_, err := Dial("", "")
	require.Error(t, err)
}
