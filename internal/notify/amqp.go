package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/timmy/examforge/internal/domain"
)

// AMQPNotifier publishes batch events to a queue.
type AMQPNotifier struct {
	connectionString string
	queue            string
}

// NewAMQPNotifier creates an AMQPNotifier. A connection is opened per event.
func NewAMQPNotifier(connectionString, queue string) *AMQPNotifier {
	return &AMQPNotifier{
		connectionString: connectionString,
		queue:            queue,
	}
}

func (n *AMQPNotifier) Name() string { return "amqp" }

// Notify publishes ev when opts.PublishEvent is set.
func (n *AMQPNotifier) Notify(ctx context.Context, ev *Event, opts domain.NotificationOptions) error {
	if !opts.PublishEvent {
		return nil
	}

	msg, err := newPublishing(ev)
	if err != nil {
		return fmt.Errorf("publish batch event: %w", err)
	}

	conn, err := amqp091.Dial(n.connectionString)
	if err != nil {
		return fmt.Errorf("publish batch event: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("publish batch event: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		n.queue, // name
		true,    // durable
		false,   // delete when unused
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return fmt.Errorf("publish batch event: %w", err)
	}

	err = ch.PublishWithContext(ctx,
		"",     // exchange
		q.Name, // routing key
		false,  // mandatory
		false,  // immediate
		msg,
	)
	if err != nil {
		return fmt.Errorf("publish batch event: %w", err)
	}
	return nil
}

func newPublishing(ev *Event) (amqp091.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp091.Publishing{}, err
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    ev.BatchID,
		Type:         "batch." + string(ev.Status),
		Timestamp:    time.Now(),
		Body:         body,
	}, nil
}
