package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"net"
	neturl "net/url"
	"strconv"
	"sync"
	"time"

	"pet-tracker/internal/general/config"
	"pet-tracker/internal/general/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrNotConnected is returned while the client is between connections.
var ErrNotConnected = errors.New("rabbitmq: not connected")

const (
	dialTimeout   = 30 * time.Second
	heartbeat     = 10 * time.Second
	maxBackoff    = 30 * time.Second
	returnsBuffer = 16
)

// pubChannel is the confirm-mode channel used for publishing together with its
// stream of returned (unroutable) mandatory messages. It is replaced on reconnect.
type pubChannel struct {
	mu      sync.Mutex // one publish in flight, so a return belongs to the current publish
	ch      *amqp.Channel
	returns chan amqp.Return
}

// Client owns one AMQP connection, declares the shared topology on every connect and
// reconnects in the background until Close.
type Client struct {
	url    string
	logger *logger.Logger
	logCtx context.Context

	mu   sync.RWMutex
	conn *amqp.Connection
	pub  *pubChannel

	closeOnce sync.Once
	closed    chan struct{}
	reconnect chan struct{}
}

// ConnectRabbitMQ dials once and starts the reconnect watcher. A failed first dial is returned.
func ConnectRabbitMQ(ctx context.Context, cfg *config.Config, logger *logger.Logger) (*Client, error) {
	client := &Client{
		url:       URL(cfg),
		logger:    logger,
		logCtx:    context.WithoutCancel(ctx),
		closed:    make(chan struct{}),
		reconnect: make(chan struct{}, 1),
	}
	if err := client.connectOnce(); err != nil {
		return nil, err
	}
	go client.watch()
	return client, nil
}

// URL builds the AMQP URL from cfg.
func URL(cfg *config.Config) string {
	u := &neturl.URL{
		Scheme: "amqp",
		Host:   net.JoinHostPort(cfg.RabbitMQ.Host, strconv.Itoa(cfg.RabbitMQ.Port)),
		User:   neturl.UserPassword(cfg.RabbitMQ.User, cfg.RabbitMQ.Password),
		Path:   "/",
	}
	return u.String()
}

// Ready reports whether the connection and publishing channel are open.
func (client *Client) Ready() bool {
	conn, pub := client.current()
	return conn != nil && !conn.IsClosed() && pub != nil && !pub.ch.IsClosed()
}

// Close stops the watcher and closes the connection. Consumers return once their channels close.
func (client *Client) Close() {
	client.closeOnce.Do(func() { close(client.closed) })

	client.mu.Lock()
	conn, pub := client.conn, client.pub
	client.conn, client.pub = nil, nil
	client.mu.Unlock()

	if pub != nil {
		_ = pub.ch.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

func (client *Client) current() (*amqp.Connection, *pubChannel) {
	client.mu.RLock()
	defer client.mu.RUnlock()
	return client.conn, client.pub
}

func (client *Client) connectOnce() (err error) {
	conn, err := amqp.DialConfig(client.url, amqp.Config{
		Heartbeat: heartbeat,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		client.logger.Error(client.logCtx, "rabbitmq_dial_failed", "Failed to dial RabbitMQ", err, nil)
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}
	defer func() {
		if err != nil {
			_ = conn.Close()
		}
	}()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	if err = declareTopology(ch); err != nil {
		client.logger.Error(client.logCtx, "rabbitmq_declare_topology_failed", "Failed to declare RabbitMQ topology", err, nil)
		return fmt.Errorf("rabbitmq: declare topology: %w", err)
	}
	if err = ch.Confirm(false); err != nil {
		return fmt.Errorf("rabbitmq: enable confirms: %w", err)
	}

	pub := &pubChannel{
		ch:      ch,
		returns: ch.NotifyReturn(make(chan amqp.Return, returnsBuffer)),
	}

	client.mu.Lock()
	old := client.pub
	client.conn, client.pub = conn, pub
	client.mu.Unlock()
	if old != nil && !old.ch.IsClosed() {
		_ = old.ch.Close()
	}

	go client.signalOnClose(conn, ch)

	client.logger.Info(client.logCtx, "rabbitmq_connected", "RabbitMQ connection established", nil)
	return nil
}

// signalOnClose asks the watcher for a reconnect when either the connection or the
// publishing channel goes away.
func (client *Client) signalOnClose(conn *amqp.Connection, ch *amqp.Channel) {
	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	var reason *amqp.Error
	select {
	case <-client.closed:
		return
	case reason = <-connClosed:
	case reason = <-chClosed:
	}
	if reason != nil {
		client.logger.Error(client.logCtx, "rabbitmq_connection_lost", "RabbitMQ connection or channel closed", reason, nil)
	}

	select {
	case client.reconnect <- struct{}{}:
	default:
	}
}

func (client *Client) watch() {
	for {
		select {
		case <-client.closed:
			return
		case <-client.reconnect:
		}

		backoff := time.Second
		for {
			err := client.connectOnce()
			if err == nil {
				break
			}
			client.logger.Error(client.logCtx, "retry_attempted", "Failed to reconnect to RabbitMQ", err,
				map[string]any{"backoff_ms": backoff.Milliseconds()})

			select {
			case <-client.closed:
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, maxBackoff)
		}
	}
}
