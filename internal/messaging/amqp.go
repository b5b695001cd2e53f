package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"

	"github.com/ignite/commerce-marketing/internal/domain"
)

const outboundQueue = "marketing_outbound"

// AMQPMessenger publishes outbound jobs to a durable RabbitMQ queue consumed
// by the delivery workers. This is the extension seam for asynchronous
// fan-out: the engine stays synchronous up to the publish.
type AMQPMessenger struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

// DialAMQP connects to the broker and declares the outbound queue.
func DialAMQP(url string) (*AMQPMessenger, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		outboundQueue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("amqp queue declare: %w", err)
	}
	return &AMQPMessenger{conn: conn, channel: ch, queue: outboundQueue}, nil
}

// Enqueue publishes the job as a persistent JSON message.
func (m *AMQPMessenger) Enqueue(_ context.Context, job domain.OutboundJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal outbound job: %w", err)
	}
	err = m.channel.Publish(
		"",      // default exchange
		m.queue,
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
	if err != nil {
		return &domain.DeliveryError{Err: err}
	}
	return nil
}

// Close releases the channel and connection.
func (m *AMQPMessenger) Close() error {
	if m.channel != nil {
		m.channel.Close()
	}
	if m.conn != nil {
		return m.conn.Close()
	}
	return nil
}
