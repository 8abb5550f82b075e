package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"converse/pkg/codec"
	"converse/pkg/config"
	"converse/pkg/dialog/dialogtest"
	"converse/pkg/session"
)

type fakePublisher struct {
	mu        sync.Mutex
	published map[string][][]byte
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, routingKey string, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.published == nil {
		p.published = make(map[string][][]byte)
	}
	p.published[routingKey] = append(p.published[routingKey], body)
	return nil
}

func (p *fakePublisher) bodies(routingKey string) [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published[routingKey]
}

type fakeAcker struct {
	mu sync.Mutex
	op string
}

func (a *fakeAcker) set(op string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.op = op
}

func (a *fakeAcker) Ack(uint64, bool) error          { a.set("ack"); return nil }
func (a *fakeAcker) Nack(_ uint64, _ bool, requeue bool) error {
	if requeue {
		a.set("requeue")
	} else {
		a.set("nack")
	}
	return nil
}
func (a *fakeAcker) Reject(_ uint64, requeue bool) error {
	if requeue {
		a.set("reject-requeue")
	} else {
		a.set("reject")
	}
	return nil
}

func newTestWorker(t *testing.T) (*Worker, *fakePublisher, *session.Store, *prometheus.Registry) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := session.NewStore(rdb, time.Minute)

	cfg := &config.Config{
		TransportName: "whatsapp",
		Exchange:      "converse",
		Concurrency:   4,
	}

	registry := prometheus.NewRegistry()
	w := New(cfg, dialogtest.New(dialogtest.Fixture{}), store, nil, NewMetrics(registry))

	pub := &fakePublisher{}
	w.pub = pub

	return w, pub, store, registry
}

func inboundBody(t *testing.T, content *string, event codec.SessionEvent) []byte {
	t.Helper()
	body, err := json.Marshal(codec.Inbound{
		ToAddr:       "27820001002",
		FromAddr:     "27820001003",
		Content:      content,
		SessionEvent: event,
		MessageID:    "msg-1",
	})
	require.NoError(t, err)
	return body
}

func strptr(s string) *string { return &s }

func TestProcessInboundFreshSession(t *testing.T) {
	w, pub, store, _ := newTestWorker(t)
	ctx := context.Background()

	result := w.processInbound(ctx, inboundBody(t, nil, codec.SessionNew))
	require.Equal(t, outcomeAck, result)

	outs := pub.bodies("whatsapp.outbound")
	require.Len(t, outs, 1)

	var out codec.Outbound
	require.NoError(t, json.Unmarshal(outs[0], &out))
	require.Equal(t, "27820001003", out.ToAddr)
	require.Contains(t, out.Content, "Do you want to continue?")

	sess, err := store.Get(ctx, "27820001003")
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Equal(t, dialogtest.StateStart, sess.State.Name)
	require.NotEmpty(t, sess.SessionID)
}

func TestProcessInboundPublishesAnswers(t *testing.T) {
	w, pub, store, _ := newTestWorker(t)
	ctx := context.Background()

	sess := session.New("27820001003")
	sess.RotateID()
	sess.State.Name = dialogtest.StateStart
	require.NoError(t, store.Put(ctx, sess))

	result := w.processInbound(ctx, inboundBody(t, strptr("yes"), codec.SessionResume))
	require.Equal(t, outcomeAck, result)

	answers := pub.bodies("whatsapp.answer")
	require.Len(t, answers, 1)

	var answer codec.AnswerEvent
	require.NoError(t, json.Unmarshal(answers[0], &answer))
	require.Equal(t, dialogtest.StateStart, answer.Question)
	require.Equal(t, "yes", answer.Response)
	require.Equal(t, "27820001003", answer.Address)
	require.Equal(t, sess.SessionID, answer.SessionID)
	require.False(t, answer.Timestamp.IsZero())
}

func TestProcessInboundMalformedDrops(t *testing.T) {
	w, pub, _, _ := newTestWorker(t)

	result := w.processInbound(context.Background(), []byte("not json"))
	require.Equal(t, outcomeDrop, result)
	require.Empty(t, pub.bodies("whatsapp.outbound"))
}

func TestProcessInboundPublishFailureRequeues(t *testing.T) {
	w, pub, store, _ := newTestWorker(t)
	pub.err = errors.New("channel closed")

	result := w.processInbound(context.Background(), inboundBody(t, nil, codec.SessionNew))
	require.Equal(t, outcomeRequeue, result)

	// The session write happens after publishing, so a failed publish
	// leaves no snapshot and the redelivered turn starts clean.
	sess, err := store.Get(context.Background(), "27820001003")
	require.NoError(t, err)
	require.Nil(t, sess)
}

func TestStateChangeMetricIncremented(t *testing.T) {
	w, _, store, registry := newTestWorker(t)
	ctx := context.Background()

	sess := session.New("27820001003")
	sess.RotateID()
	sess.State.Name = dialogtest.StateStart
	require.NoError(t, store.Put(ctx, sess))

	require.Equal(t, outcomeAck, w.processInbound(ctx, inboundBody(t, strptr("yes"), codec.SessionResume)))

	counter := w.metrics.StateChanges.WithLabelValues(dialogtest.StateStart, dialogtest.StateAge)
	require.Equal(t, float64(1), testutil.ToFloat64(counter))

	families, err := registry.Gather()
	require.NoError(t, err)
	var found bool
	for _, family := range families {
		if family.GetName() == "state_change" {
			found = true
		}
	}
	require.True(t, found, "state_change series must be registered")
}

func TestHandleInboundSettlesDelivery(t *testing.T) {
	w, _, _, _ := newTestWorker(t)

	acker := &fakeAcker{}
	w.handleInbound(context.Background(), amqp.Delivery{
		Acknowledger: acker,
		DeliveryTag:  1,
		Body:         inboundBody(t, nil, codec.SessionNew),
	})
	require.Equal(t, "ack", acker.op)

	poison := &fakeAcker{}
	w.handleInbound(context.Background(), amqp.Delivery{
		Acknowledger: poison,
		DeliveryTag:  2,
		Body:         []byte("garbage"),
	})
	require.Equal(t, "reject", poison.op)
}

func TestHandleEvent(t *testing.T) {
	w, _, _, _ := newTestWorker(t)

	acker := &fakeAcker{}
	w.handleEvent(amqp.Delivery{
		Acknowledger: acker,
		DeliveryTag:  1,
		Body:         []byte(`{"event_type":"ack","user_message_id":"m1"}`),
	})
	require.Equal(t, "ack", acker.op)

	poison := &fakeAcker{}
	w.handleEvent(amqp.Delivery{
		Acknowledger: poison,
		DeliveryTag:  2,
		Body:         []byte("garbage"),
	})
	require.Equal(t, "reject", poison.op)
}

func TestKeyedMutexSerialisesSameAddress(t *testing.T) {
	locks := newKeyedMutex()

	unlock := locks.lock("27820001003")

	acquired := make(chan struct{})
	go func() {
		second := locks.lock("27820001003")
		close(acquired)
		second()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(50 * time.Millisecond):
	}

	// A different address is not blocked.
	other := locks.lock("27820009999")
	other()

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock never acquired after release")
	}
}
