package bus

import (
	"context"
	"net/netip"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benaryorg/lxddns/internal/containername"
	"github.com/benaryorg/lxddns/internal/lxderr"
)

type sentReply struct {
	replyTo       string
	correlationID string
	body          []byte
}

// testResponder wires a Responder with an in-memory reply sink, skipping
// the broker-backed construction in NewResponder.
func testResponder(probe Inventory, replyErr error) (*Responder, *[]sentReply) {
	var sent []sentReply
	r := &Responder{probe: probe}
	r.reply = func(ctx context.Context, replyTo, correlationID string, body []byte) error {
		if replyErr != nil {
			return replyErr
		}
		sent = append(sent, sentReply{replyTo: replyTo, correlationID: correlationID, body: body})
		return nil
	}
	return r, &sent
}

func ownedBy(addrs []netip.Addr) Inventory {
	return func(ctx context.Context, name containername.Name) ([]netip.Addr, bool, error) {
		return addrs, true, nil
	}
}

func notOwned(ctx context.Context, name containername.Name) ([]netip.Addr, bool, error) {
	return nil, false, nil
}

func requestDelivery(ack amqp.Acknowledger, correlationID, replyTo string, body []byte) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, CorrelationId: correlationID, ReplyTo: replyTo, Body: body}
}

// A handled delivery is acked exactly once, and only on the
// publish-succeeded path.
func TestHandleOwnedContainerRepliesAndAcks(t *testing.T) {
	addrs := []netip.Addr{netip.MustParseAddr("2001:db8::1"), netip.MustParseAddr("2001:db8::2")}
	r, sent := testResponder(ownedBy(addrs), nil)
	ack := &fakeAcknowledger{}

	r.handle(context.Background(), requestDelivery(ack, "corr-1", "reply-queue", []byte("alpha")))

	require.Len(t, *sent, 1)
	reply := (*sent)[0]
	assert.Equal(t, "reply-queue", reply.replyTo)
	assert.Equal(t, "corr-1", reply.correlationID)

	decoded, err := decodeAddrs(reply.body)
	require.NoError(t, err)
	assert.Equal(t, addrs, decoded)

	assert.Equal(t, 1, ack.acks)
	assert.Equal(t, 0, ack.rejects)
}

// Owned with an empty address set still gets a reply: an empty body, so
// the requester sees a Some([]) rather than silence.
func TestHandleOwnedContainerEmptyAddressSet(t *testing.T) {
	r, sent := testResponder(ownedBy(nil), nil)
	ack := &fakeAcknowledger{}

	r.handle(context.Background(), requestDelivery(ack, "corr-1", "reply-queue", []byte("alpha")))

	require.Len(t, *sent, 1)
	assert.Empty(t, (*sent)[0].body)
	assert.Equal(t, 1, ack.acks)
}

func TestHandleMissingPropertiesRejectsWithoutRequeue(t *testing.T) {
	r, sent := testResponder(func(ctx context.Context, name containername.Name) ([]netip.Addr, bool, error) {
		t.Fatal("probe must not run for a request without properties")
		return nil, false, nil
	}, nil)

	for _, d := range []amqp.Delivery{
		requestDelivery(&fakeAcknowledger{}, "", "reply-queue", []byte("alpha")),
		requestDelivery(&fakeAcknowledger{}, "corr-1", "", []byte("alpha")),
	} {
		ack := d.Acknowledger.(*fakeAcknowledger)
		r.handle(context.Background(), d)
		assert.Equal(t, 0, ack.acks)
		assert.Equal(t, 1, ack.rejects)
		assert.Equal(t, 0, ack.requeues)
	}
	assert.Empty(t, *sent)
}

func TestHandleInvalidNameRejectsWithoutRequeue(t *testing.T) {
	r, sent := testResponder(ownedBy(nil), nil)

	for _, body := range [][]byte{[]byte("Not-Valid"), []byte("a.b"), {0xff, 0xfe}} {
		ack := &fakeAcknowledger{}
		r.handle(context.Background(), requestDelivery(ack, "corr-1", "reply-queue", body))
		assert.Equal(t, 0, ack.acks)
		assert.Equal(t, 1, ack.rejects)
		assert.Equal(t, 0, ack.requeues)
	}
	assert.Empty(t, *sent)
}

func TestHandleUnownedContainerRejectsWithoutRequeue(t *testing.T) {
	r, sent := testResponder(notOwned, nil)
	ack := &fakeAcknowledger{}

	r.handle(context.Background(), requestDelivery(ack, "corr-1", "reply-queue", []byte("alpha")))

	assert.Empty(t, *sent)
	assert.Equal(t, 0, ack.acks)
	assert.Equal(t, 1, ack.rejects)
	assert.Equal(t, 0, ack.requeues)
}

func TestHandleProbeErrorRequeues(t *testing.T) {
	r, sent := testResponder(func(ctx context.Context, name containername.Name) ([]netip.Addr, bool, error) {
		return nil, false, lxderr.LocalExecution.Newf("transient failure")
	}, nil)
	ack := &fakeAcknowledger{}

	r.handle(context.Background(), requestDelivery(ack, "corr-1", "reply-queue", []byte("alpha")))

	assert.Empty(t, *sent)
	assert.Equal(t, 0, ack.acks)
	assert.Equal(t, 1, ack.rejects)
	assert.Equal(t, 1, ack.requeues)
}

func TestHandlePublishFailureRequeues(t *testing.T) {
	r, _ := testResponder(ownedBy([]netip.Addr{netip.MustParseAddr("2001:db8::1")}),
		lxderr.QueueConnectionError.Newf("channel gone"))
	ack := &fakeAcknowledger{}

	r.handle(context.Background(), requestDelivery(ack, "corr-1", "reply-queue", []byte("alpha")))

	assert.Equal(t, 0, ack.acks)
	assert.Equal(t, 1, ack.rejects)
	assert.Equal(t, 1, ack.requeues)
}
