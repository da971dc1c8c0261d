package bus

import (
	"context"
	"net/netip"
	"sync"
	"unicode/utf8"

	"github.com/datawire/dlib/dlog"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/benaryorg/lxddns/internal/containername"
	"github.com/benaryorg/lxddns/internal/lxderr"
)

// Inventory resolves a container name to its current global-scope IPv6
// addresses, the local half of the fanout (implemented by
// internal/inventory for the container-manager-backed case). found is
// false when this node does not own the container at all, distinct from
// owning it with a currently-empty address set.
type Inventory func(ctx context.Context, name containername.Name) (addrs []netip.Addr, found bool, err error)

// replyFunc publishes one reply body to the requester's queue, echoing its
// correlation id.
type replyFunc func(ctx context.Context, replyTo, correlationID string, body []byte) error

// Responder binds an exclusive, auto-delete queue to ExchangeName and
// answers every request it can resolve locally. Requests for
// names this node does not own are rejected without requeue and never
// replied to; the requester's deadline elapsing is the only signal that
// nobody answered.
type Responder struct {
	ch      *amqp.Channel
	queue   string
	probe   Inventory
	workers int
	reply   replyFunc
}

// NewResponder declares the fanout exchange plus a private queue bound to
// it, on its own channel taken from conn. An empty queueName yields a
// server-assigned name; a non-empty one names the queue explicitly so an
// operator can pin it across restarts.
func NewResponder(conn *Conn, probe Inventory, workers int, queueName string) (*Responder, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := declareFanout(ch); err != nil {
		return nil, lxderr.QueueConnectionError.New(err)
	}
	q, err := ch.QueueDeclare(queueName, false, true, true, false, nil)
	if err != nil {
		return nil, lxderr.QueueConnectionError.New(err)
	}
	if err := ch.QueueBind(q.Name, "", ExchangeName, false, nil); err != nil {
		return nil, lxderr.QueueConnectionError.New(err)
	}
	r := &Responder{ch: ch, queue: q.Name, probe: probe, workers: workers}
	r.reply = func(ctx context.Context, replyTo, correlationID string, body []byte) error {
		return ch.PublishWithContext(ctx, "", replyTo, false, false, amqp.Publishing{
			CorrelationId: correlationID,
			Body:          body,
		})
	}
	return r, nil
}

// Close releases the channel backing this Responder.
func (r *Responder) Close() error {
	return lxderr.QueueConnectionError.New(r.ch.Close())
}

// Run consumes requests until ctx is cancelled or the channel closes,
// dispatching each delivery to a bounded pool of handler goroutines
// (workers deliveries in flight at once, 0 meaning unlimited).
// Cancellation is a clean shutdown and
// returns nil; the delivery channel closing underneath us is not.
func (r *Responder) Run(ctx context.Context) error {
	deliveries, err := r.ch.Consume(r.queue, "", false, false, false, false, nil)
	if err != nil {
		return lxderr.ResponderError.New(err)
	}

	var sem chan struct{}
	if r.workers > 0 {
		sem = make(chan struct{}, r.workers)
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return lxderr.ResponderClosed.Newf("responder delivery channel closed")
			}
			if sem != nil {
				sem <- struct{}{}
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if sem != nil {
					defer func() { <-sem }()
				}
				r.handle(ctx, delivery)
			}()
		}
	}
}

// handle applies the per-message decision table: malformed
// requests and names this node does not own are rejected without requeue,
// transient failures are rejected with requeue so another worker retries,
// and a successful publish acks the original delivery exactly once.
func (r *Responder) handle(ctx context.Context, delivery amqp.Delivery) {
	if delivery.CorrelationId == "" || delivery.ReplyTo == "" {
		dlog.Warn(ctx, "responder: request missing correlation id or reply-to, dropping")
		_ = delivery.Reject(false)
		return
	}
	if !utf8.Valid(delivery.Body) {
		dlog.Warnf(ctx, "responder: request body is not valid UTF-8, dropping")
		_ = delivery.Reject(false)
		return
	}
	name, err := containername.Parse(string(delivery.Body))
	if err != nil {
		dlog.Debugf(ctx, "responder: rejecting request for invalid container name: %v", err)
		_ = delivery.Reject(false)
		return
	}

	addrs, found, err := r.probe(ctx, name)
	if err != nil {
		dlog.Warnf(ctx, "responder: local inventory probe failed for %q, requeueing: %v", name, err)
		_ = delivery.Reject(true)
		return
	}
	if !found {
		dlog.Debugf(ctx, "responder: %q not owned by this node", name)
		_ = delivery.Reject(false)
		return
	}

	if err := r.reply(ctx, delivery.ReplyTo, delivery.CorrelationId, encodeAddrs(addrs)); err != nil {
		dlog.Warnf(ctx, "responder: failed to publish reply, requeueing: %v", err)
		_ = delivery.Reject(true)
		return
	}
	_ = delivery.Ack(false)
}
