package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	// ErrUnroutable means the broker returned a mandatory publish because no queue is bound for it.
	ErrUnroutable = errors.New("rabbitmq: message unroutable")
	// ErrNacked means the broker refused the message.
	ErrNacked = errors.New("rabbitmq: publish not acknowledged")
)

const publishTimeout = 5 * time.Second

// Publish sends a persistent JSON message as a mandatory publish and waits for the broker's
// confirm. It fails with ErrUnroutable when the broker returns the message.
func (client *Client) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	conn, pub := client.current()
	if conn == nil || conn.IsClosed() || pub == nil || pub.ch.IsClosed() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	pub.mu.Lock()
	defer pub.mu.Unlock()

	// Returns left over from publishes that timed out.
	drainReturns(pub.returns)

	messageID := uuid.NewString()
	confirm, err := pub.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, routingKey, true, false, amqp.Publishing{
		MessageId:    messageID,
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq: publish %s/%s: %w", exchange, routingKey, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("rabbitmq: confirm %s/%s: %w", exchange, routingKey, err)
	}
	if !acked {
		return fmt.Errorf("%w: %s/%s", ErrNacked, exchange, routingKey)
	}

	// The broker sends basic.return before the ack of the same message, so by now it is buffered.
	return returnedError(pub.returns, messageID)
}

func drainReturns(returns <-chan amqp.Return) {
	for {
		select {
		case <-returns:
		default:
			return
		}
	}
}

func returnedError(returns <-chan amqp.Return, messageID string) error {
	for {
		select {
		case r, ok := <-returns:
			if !ok {
				return nil
			}
			if r.MessageId != messageID {
				continue
			}
			return fmt.Errorf("%w: %s/%s: %d %s", ErrUnroutable, r.Exchange, r.RoutingKey, r.ReplyCode, r.ReplyText)
		default:
			return nil
		}
	}
}
