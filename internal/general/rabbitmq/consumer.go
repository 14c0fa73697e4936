package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const handlerTimeout = 30 * time.Second

// acker is the part of amqp.Delivery that settles a message.
type acker interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// settle acks a handled delivery. A failed delivery is requeued once and dropped when it
// fails again after redelivery.
func settle(d acker, redelivered bool, handlerErr error) (requeued bool) {
	if handlerErr == nil {
		_ = d.Ack(false)
		return false
	}
	requeue := !redelivered
	_ = d.Nack(false, requeue)
	return requeue
}

// runHandler calls handler with a bounded context and turns a panic into an error.
func runHandler(ctx context.Context, d amqp.Delivery, handler func(context.Context, amqp.Delivery) error) (err error) {
	hctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rabbitmq: handler panic: %v", r)
		}
	}()
	return handler(hctx, d)
}

func (client *Client) consumerChannel(prefetch int) (*amqp.Channel, error) {
	conn, _ := client.current()
	if conn == nil || conn.IsClosed() {
		return nil, ErrNotConnected
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("rabbitmq: set prefetch %d: %w", prefetch, err)
	}
	return ch, nil
}

// Consume delivers messages from queue to handler with manual acks until ctx is cancelled
// or the channel closes.
func (client *Client) Consume(
	ctx context.Context,
	queue string,
	consumerTag string,
	prefetch int,
	handler func(context.Context, amqp.Delivery) error,
) error {
	ch, err := client.consumerChannel(prefetch)
	if err != nil {
		return err
	}
	defer ch.Close()

	deliveries, err := ch.Consume(queue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume %s: %w", queue, err)
	}
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	for {
		select {
		case <-ctx.Done():
			_ = ch.Cancel(consumerTag, false)
			return nil
		case cerr := <-chClosed:
			if cerr != nil {
				return fmt.Errorf("rabbitmq: channel closed while consuming %s: %w", queue, cerr)
			}
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			herr := runHandler(ctx, d, handler)
			if settle(d, d.Redelivered, herr) {
				client.logger.Info(client.logCtx, "rabbitmq_message_requeued", "Handler failed; message requeued once",
					map[string]any{"queue": queue, "routing_key": d.RoutingKey})
			} else if herr != nil {
				client.logger.Error(client.logCtx, "rabbitmq_message_dropped", "Handler failed after redelivery; message dropped", herr,
					map[string]any{"queue": queue, "routing_key": d.RoutingKey})
			}
		}
	}
}

// ConsumeWithRetry keeps a consumer attached to queue until ctx is cancelled or the client
// closes, resubscribing with backoff whenever the channel goes away.
func (client *Client) ConsumeWithRetry(
	ctx context.Context,
	queue string,
	consumerTag string,
	prefetch int,
	handler func(context.Context, amqp.Delivery) error,
) {
	backoff := time.Second
	for {
		err := client.Consume(ctx, queue, consumerTag, prefetch, handler)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			client.logger.Error(client.logCtx, "rabbitmq_consumer_stopped", "Consumer stopped; resubscribing", err,
				map[string]any{"queue": queue, "backoff_ms": backoff.Milliseconds()})
		} else {
			backoff = time.Second
		}

		select {
		case <-ctx.Done():
			return
		case <-client.closed:
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}
