// Package bus implements the fanout-exchange RemoteQuery transport and its
// mirror Responder, on top of a single shared AMQP connection.
package bus

import (
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/benaryorg/lxddns/internal/lxderr"
)

// ExchangeName is the well-known fanout exchange every node publishes
// requests to and binds a responder queue against.
const ExchangeName = "lxddns"

// Conn wraps the single process-wide AMQP connection. Every logical operation -
// one RemoteQuery call, the responder's consume loop - creates its own
// Channel from it; channels are not shared across operations.
type Conn struct {
	conn *amqp.Connection
}

// Dial opens the shared connection used for the lifetime of the process.
func Dial(url string) (*Conn, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, lxderr.QueueConnectionError.New(err)
	}
	return &Conn{conn: conn}, nil
}

// Close tears down the underlying connection.
func (c *Conn) Close() error {
	return lxderr.QueueConnectionError.New(c.conn.Close())
}

// Channel opens a fresh logical channel on the shared connection.
func (c *Conn) Channel() (*amqp.Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, lxderr.QueueConnectionError.New(err)
	}
	return ch, nil
}

func declareFanout(ch *amqp.Channel) error {
	return ch.ExchangeDeclare(ExchangeName, amqp.ExchangeFanout, false, false, false, false, nil)
}
