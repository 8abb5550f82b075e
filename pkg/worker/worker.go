// Package worker consumes user inbounds and transport events from the
// broker, runs one dialog turn per inbound, publishes the replies and answer
// events, persists the session, and acknowledges the delivery.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"converse/pkg/codec"
	"converse/pkg/config"
	"converse/pkg/dialog"
	"converse/pkg/session"
)

// outcome is the acknowledgement decision for one delivery.
type outcome int

const (
	// outcomeAck: the turn completed and its effects are persisted.
	outcomeAck outcome = iota
	// outcomeDrop: poison message, reject without requeue.
	outcomeDrop
	// outcomeRequeue: transient failure, redeliver and re-run the turn.
	outcomeRequeue
)

// publisher sends one body to the exchange under a routing key.
type publisher interface {
	Publish(ctx context.Context, routingKey string, body []byte) error
}

// amqpPublisher publishes persistent JSON messages on a shared channel.
type amqpPublisher struct {
	ch       *amqp.Channel
	exchange string
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	return p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:     "application/json",
		ContentEncoding: "utf-8",
		DeliveryMode:    amqp.Persistent,
		Body:            body,
	})
}

// Worker owns the broker connection and drives dialog turns.
type Worker struct {
	cfg     *config.Config
	dialog  *dialog.Dialog
	store   *session.Store
	log     *slog.Logger
	metrics *Metrics

	locks *keyedMutex
	pub   publisher

	mu   sync.RWMutex
	conn *amqp.Connection

	wg sync.WaitGroup
}

// New wires a worker. The broker connection is opened by Run.
func New(cfg *config.Config, d *dialog.Dialog, store *session.Store, log *slog.Logger, metrics *Metrics) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		cfg:     cfg,
		dialog:  d,
		store:   store,
		log:     log.With("component", "worker"),
		metrics: metrics,
		locks:   newKeyedMutex(),
	}
}

func (w *Worker) inboundQueue() string { return w.cfg.TransportName + ".inbound" }
func (w *Worker) eventQueue() string   { return w.cfg.TransportName + ".event" }
func (w *Worker) outboundKey() string  { return w.cfg.TransportName + ".outbound" }
func (w *Worker) answerKey() string    { return w.cfg.TransportName + ".answer" }

// Run connects, declares the topology, consumes until ctx is cancelled, and
// tears down. Unacked deliveries are redelivered by the broker after close.
func (w *Worker) Run(ctx context.Context) error {
	conn, err := amqp.Dial(w.cfg.AMQPURL)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}

	if err := w.declareTopology(ch); err != nil {
		return err
	}
	if err := ch.Qos(w.cfg.Concurrency, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}
	w.pub = &amqpPublisher{ch: ch, exchange: w.cfg.Exchange}

	if err := w.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping session store: %w", err)
	}

	inbound, err := ch.ConsumeWithContext(ctx, w.inboundQueue(), "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", w.inboundQueue(), err)
	}
	events, err := ch.ConsumeWithContext(ctx, w.eventQueue(), "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", w.eventQueue(), err)
	}

	w.log.Info("Worker started",
		"exchange", w.cfg.Exchange,
		"inbound_queue", w.inboundQueue(),
		"event_queue", w.eventQueue(),
		"concurrency", w.cfg.Concurrency)

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			return nil

		case amqpErr := <-closed:
			w.wg.Wait()
			if amqpErr != nil {
				return fmt.Errorf("broker connection lost: %w", amqpErr)
			}
			return errors.New("broker connection closed")

		case d, ok := <-inbound:
			if !ok {
				inbound = nil
				continue
			}
			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				w.handleInbound(ctx, d)
			}()

		case d, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			w.handleEvent(d)
		}
	}
}

func (w *Worker) declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(w.cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, queue := range []string{w.inboundQueue(), w.eventQueue()} {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", queue, err)
		}
		if err := ch.QueueBind(queue, queue, w.cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", queue, err)
		}
	}

	return nil
}

// handleInbound runs one turn and settles the delivery per the outcome.
func (w *Worker) handleInbound(ctx context.Context, d amqp.Delivery) {
	started := time.Now()
	result := w.processInbound(ctx, d.Body)
	if w.metrics != nil {
		w.metrics.TurnDuration.Observe(time.Since(started).Seconds())
	}

	switch result {
	case outcomeAck:
		w.settle(d.Ack(false), "ack")
		w.count(w.inboundQueue(), "ack")
	case outcomeDrop:
		w.settle(d.Reject(false), "reject")
		w.count(w.inboundQueue(), "drop")
	case outcomeRequeue:
		w.settle(d.Nack(false, true), "requeue")
		w.count(w.inboundQueue(), "requeue")
	}
}

// processInbound is the per-turn pipeline: decode, lock the address, load
// the session, run the dialog, publish, persist.
func (w *Worker) processInbound(ctx context.Context, body []byte) outcome {
	msg, err := codec.DecodeInbound(body)
	if err != nil {
		w.log.Warn("Rejecting malformed inbound", "error", err)
		return outcomeDrop
	}

	log := w.log.With("address", msg.FromAddr, "message_id", msg.MessageID)

	unlock := w.locks.lock(msg.FromAddr)
	defer unlock()

	sess, err := w.store.Get(ctx, msg.FromAddr)
	if err != nil {
		log.Error("Session load failed", "error", err)
		return outcomeRequeue
	}
	if sess == nil {
		sess = session.New(msg.FromAddr)
	}

	opts := []dialog.Option{dialog.WithLogger(log)}
	if w.metrics != nil {
		opts = append(opts, dialog.WithStateChangeHook(func(from, to string) {
			w.metrics.StateChanges.WithLabelValues(from, to).Inc()
		}))
	}

	outs, answers, err := w.dialog.NewApp(sess, msg, opts...).Run(ctx)
	if err != nil {
		log.Error("Turn failed beyond containment", "error", err)
		return outcomeRequeue
	}

	for _, out := range outs {
		encoded, err := codec.EncodeOutbound(out)
		if err != nil {
			log.Error("Outbound encode failed", "error", err)
			return outcomeRequeue
		}
		if err := w.publish(ctx, w.outboundKey(), encoded); err != nil {
			log.Error("Outbound publish failed", "error", err)
			return outcomeRequeue
		}
	}

	for _, answer := range answers {
		encoded, err := codec.EncodeAnswer(answer)
		if err != nil {
			log.Error("Answer encode failed", "error", err)
			return outcomeRequeue
		}
		if err := w.publish(ctx, w.answerKey(), encoded); err != nil {
			log.Error("Answer publish failed", "error", err)
			return outcomeRequeue
		}
	}

	if err := w.store.Put(ctx, sess); err != nil {
		log.Error("Session save failed", "error", err)
		return outcomeRequeue
	}

	log.Debug("Turn complete", "state", sess.State.Name, "outbounds", len(outs), "answers", len(answers))
	return outcomeAck
}

// handleEvent logs transport ack/delivery notifications. The core does not
// route on them.
func (w *Worker) handleEvent(d amqp.Delivery) {
	ev, err := codec.DecodeTransportEvent(d.Body)
	if err != nil {
		w.log.Warn("Rejecting malformed transport event", "error", err)
		w.settle(d.Reject(false), "reject")
		w.count(w.eventQueue(), "drop")
		return
	}

	w.log.Debug("Transport event",
		"event_type", ev.EventType,
		"user_message_id", ev.UserMessageID,
		"sent_message_id", ev.SentMessageID)
	w.settle(d.Ack(false), "ack")
	w.count(w.eventQueue(), "ack")
}

func (w *Worker) publish(ctx context.Context, routingKey string, body []byte) error {
	if err := w.pub.Publish(ctx, routingKey, body); err != nil {
		return err
	}
	w.countPublished(routingKey)
	return nil
}

func (w *Worker) settle(err error, op string) {
	if err != nil {
		w.log.Error("Delivery settlement failed", "op", op, "error", err)
	}
}

func (w *Worker) count(queue, result string) {
	if w.metrics != nil {
		w.metrics.Consumed.WithLabelValues(queue, result).Inc()
	}
}

func (w *Worker) countPublished(routingKey string) {
	if w.metrics != nil {
		w.metrics.Published.WithLabelValues(routingKey).Inc()
	}
}

// BrokerConnected reports broker health for the status endpoint.
func (w *Worker) BrokerConnected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.conn != nil && !w.conn.IsClosed()
}
