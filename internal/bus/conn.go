package bus

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

// Msg is one message received on a subject.
type Msg struct {
	Subject string
	Reply   string
	Data    []byte
}

// Subscription is an active subscription.
type Subscription interface {
	Unsubscribe() error
}

// Conn is the part of a message bus connection the App needs.
type Conn interface {
	QueueSubscribe(subject, queue string, handler func(*Msg)) (Subscription, error)
	Publish(subject string, data []byte) error
	Close() error
}

type natsConn struct {
	nc *nats.Conn
}

// Connect dials a NATS server.
func Connect(url string, opts ...nats.Option) (Conn, error) {
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return NewNATSConn(nc), nil
}

// NewNATSConn adapts an established NATS connection.
func NewNATSConn(nc *nats.Conn) Conn {
	return natsConn{nc: nc}
}

func (c natsConn) QueueSubscribe(subject, queue string, handler func(*Msg)) (Subscription, error) {
	sub, err := c.nc.QueueSubscribe(subject, queue, func(m *nats.Msg) {
		handler(&Msg{Subject: m.Subject, Reply: m.Reply, Data: m.Data})
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (c natsConn) Publish(subject string, data []byte) error {
	return c.nc.Publish(subject, data)
}

// Close flushes pending replies and closes the connection.
func (c natsConn) Close() error {
	err := c.nc.Flush()
	c.nc.Close()
	if err != nil && err != nats.ErrConnectionClosed {
		return err
	}
	return nil
}
