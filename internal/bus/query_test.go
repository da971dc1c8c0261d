package bus

import (
	"context"
	"net/netip"
	"sync"
	"testing"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAcknowledger records every ack/reject so tests can check the
// classifier's decisions without a live broker.
type fakeAcknowledger struct {
	mu       sync.Mutex
	acks     int
	rejects  int
	requeues int
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks++
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	return f.Reject(tag, requeue)
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejects++
	if requeue {
		f.requeues++
	}
	return nil
}

func replyDelivery(ack amqp.Acknowledger, correlationID string, body []byte) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, CorrelationId: correlationID, Body: body}
}

func TestCollectRepliesAcceptsMatchingCorrelationId(t *testing.T) {
	id := uuid.NewString()
	ack := &fakeAcknowledger{}
	want := []netip.Addr{netip.MustParseAddr("2001:db8::1")}

	deliveries := make(chan amqp.Delivery, 1)
	deliveries <- replyDelivery(ack, id, encodeAddrs(want))
	close(deliveries)

	addrs := collectReplies(context.Background(), deliveries, id)
	assert.Equal(t, want, addrs)
	assert.Equal(t, 1, ack.acks)
	assert.Equal(t, 0, ack.rejects)
}

// A reply with a foreign (or malformed) correlation id is
// rejected without requeue and never merged into the result; ack count
// stays at or below the number of deliveries received.
func TestCollectRepliesRejectsForeignCorrelationId(t *testing.T) {
	id := uuid.NewString()
	ack := &fakeAcknowledger{}
	mine := []netip.Addr{netip.MustParseAddr("fd00::1")}

	deliveries := make(chan amqp.Delivery, 3)
	deliveries <- replyDelivery(ack, uuid.NewString(), encodeAddrs([]netip.Addr{netip.MustParseAddr("fd00::bad")}))
	deliveries <- replyDelivery(ack, "not-even-a-uuid", encodeAddrs([]netip.Addr{netip.MustParseAddr("fd00::bad")}))
	deliveries <- replyDelivery(ack, id, encodeAddrs(mine))
	close(deliveries)

	addrs := collectReplies(context.Background(), deliveries, id)
	assert.Equal(t, mine, addrs)
	assert.Equal(t, 1, ack.acks)
	assert.Equal(t, 2, ack.rejects)
	assert.Equal(t, 0, ack.requeues)
}

func TestCollectRepliesRejectsMalformedBody(t *testing.T) {
	id := uuid.NewString()
	ack := &fakeAcknowledger{}

	deliveries := make(chan amqp.Delivery, 1)
	deliveries <- replyDelivery(ack, id, []byte{0x01, 0x02, 0x03})
	close(deliveries)

	addrs := collectReplies(context.Background(), deliveries, id)
	assert.Nil(t, addrs)
	assert.Equal(t, 0, ack.acks)
	assert.Equal(t, 1, ack.rejects)
	assert.Equal(t, 0, ack.requeues)
}

func TestCollectRepliesMergesMultiplePeers(t *testing.T) {
	id := uuid.NewString()
	ack := &fakeAcknowledger{}
	first := []netip.Addr{netip.MustParseAddr("2001:db8::1")}
	second := []netip.Addr{netip.MustParseAddr("2001:db8::2"), netip.MustParseAddr("2001:db8::3")}

	deliveries := make(chan amqp.Delivery, 2)
	deliveries <- replyDelivery(ack, id, encodeAddrs(first))
	deliveries <- replyDelivery(ack, id, encodeAddrs(second))
	close(deliveries)

	addrs := collectReplies(context.Background(), deliveries, id)
	assert.Equal(t, append(first, second...), addrs)
	assert.Equal(t, 2, ack.acks)
}

func TestCollectRepliesNoRepliesIsNil(t *testing.T) {
	deliveries := make(chan amqp.Delivery)
	close(deliveries)

	addrs := collectReplies(context.Background(), deliveries, uuid.NewString())
	assert.Nil(t, addrs)
}

// An empty reply body is a valid answer: the peer owns the container but
// it has no addresses bound. The result is non-nil-but-empty, distinct
// from "nobody replied".
func TestCollectRepliesEmptyBodyIsAnAnswer(t *testing.T) {
	id := uuid.NewString()
	ack := &fakeAcknowledger{}

	deliveries := make(chan amqp.Delivery, 1)
	deliveries <- replyDelivery(ack, id, nil)
	close(deliveries)

	addrs := collectReplies(context.Background(), deliveries, id)
	require.NotNil(t, addrs)
	assert.Empty(t, addrs)
	assert.Equal(t, 1, ack.acks)
}

func TestCollectRepliesReturnsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	deliveries := make(chan amqp.Delivery)
	addrs := collectReplies(ctx, deliveries, uuid.NewString())
	assert.Nil(t, addrs)
}
