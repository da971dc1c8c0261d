package bus

import (
	"context"
	"net/netip"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/benaryorg/lxddns/internal/containername"
	"github.com/benaryorg/lxddns/internal/lxderr"
)

// RemoteQuery is the bus-backed pdns.RemoteQuery: it publishes a request to
// ExchangeName and waits on a shared reply queue under an adaptive
// deadline.
type RemoteQuery struct {
	ch         *amqp.Channel
	replyQueue string
	pending    *pendingSet
}

// NewRemoteQuery declares the fanout exchange and a shared, non-exclusive
// reply queue on its own channel taken from conn. The reply queue is
// shared by every concurrent outbound query on this process;
// demultiplexing is by correlation id only.
func NewRemoteQuery(conn *Conn, replyQueueName string) (*RemoteQuery, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := declareFanout(ch); err != nil {
		return nil, lxderr.QueueConnectionError.New(err)
	}
	q, err := ch.QueueDeclare(replyQueueName, false, false, false, false, nil)
	if err != nil {
		return nil, lxderr.QueueConnectionError.New(err)
	}
	return &RemoteQuery{ch: ch, replyQueue: q.Name, pending: newPendingSet()}, nil
}

// Close releases the channel backing this RemoteQuery.
func (r *RemoteQuery) Close() error {
	return lxderr.QueueConnectionError.New(r.ch.Close())
}

// Query implements pdns.RemoteQuery: it issues one fanout request tagged
// with a fresh correlation id and collects addresses from whichever peers
// reply in time, extending the deadline adaptively as replies trickle in.
// ctx expiring - whether that's the engine's per-lookup ceiling or the
// adaptive deadline simply outliving a
// canceled parent stream - ends the collection loop exactly like the
// adaptive deadline firing: whatever was collected so far is returned
// with a nil error, never as a taint. Only a genuine transport failure
// (publish/consume) is reported as an error.
func (r *RemoteQuery) Query(ctx context.Context, name containername.Name) ([]netip.Addr, error) {
	id := uuid.New()
	if err := r.pending.insert(id); err != nil {
		return nil, err
	}
	defer r.pending.remove(id)

	deliveries, err := r.ch.Consume(r.replyQueue, id.String(), false, false, true, false, nil)
	if err != nil {
		return nil, lxderr.QueueConnectionError.New(err)
	}
	defer func() { _ = r.ch.Cancel(id.String(), false) }()

	err = r.ch.PublishWithContext(ctx, ExchangeName, "", false, false, amqp.Publishing{
		CorrelationId: id.String(),
		ReplyTo:       r.replyQueue,
		Body:          []byte(name.String()),
	})
	if err != nil {
		return nil, lxderr.QueueConnectionError.New(err)
	}

	return collectReplies(ctx, deliveries, id.String()), nil
}

// collectReplies is the adaptive-deadline collection loop, split out
// from Query so the classifier's reject decisions can
// be exercised without a live broker. It returns nil if no reply was ever
// accepted, and a non-nil (possibly empty) slice otherwise.
func collectReplies(ctx context.Context, deliveries <-chan amqp.Delivery, id string) []netip.Addr {
	start := time.Now()
	deadline := initialDeadline
	var addrs []netip.Addr
	var any bool

	for {
		remaining := deadline - time.Since(start)
		if remaining <= 0 {
			break
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return addrOrNil(addrs, any)
		case <-timer.C:
			return addrOrNil(addrs, any)
		case delivery, ok := <-deliveries:
			timer.Stop()
			if !ok {
				return addrOrNil(addrs, any)
			}
			if delivery.CorrelationId != id {
				_ = delivery.Reject(false)
				continue
			}
			decoded, decErr := decodeAddrs(delivery.Body)
			if decErr != nil {
				_ = delivery.Reject(false)
				continue
			}
			_ = delivery.Ack(false)
			addrs = append(addrs, decoded...)
			any = true
			deadline = nextDeadline(time.Since(start), deadlineExtension)
		}
	}

	return addrOrNil(addrs, any)
}

func addrOrNil(addrs []netip.Addr, any bool) []netip.Addr {
	if !any {
		return nil
	}
	if addrs == nil {
		return []netip.Addr{}
	}
	return addrs
}
