package rabbitmq

import (
	"fmt"
	"strings"

	"pet-tracker/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

type binding struct {
	queue    string
	exchange string
	key      string
}

// Both services declare the same topology on connect; declarations are idempotent.
var (
	topicExchanges = []string{contracts.ExchangeDeviceTopic, contracts.ExchangePetTopic}
	durableQueues  = []string{contracts.QueueDeviceFixes, contracts.QueuePetEvents}
	queueBindings  = []binding{
		{queue: contracts.QueueDeviceFixes, exchange: contracts.ExchangeDeviceTopic, key: contracts.BindDeviceFixes},
		{queue: contracts.QueuePetEvents, exchange: contracts.ExchangePetTopic, key: contracts.BindPetEvents},
	}
)

func declareTopology(ch *amqp.Channel) error {
	for _, name := range topicExchanges {
		if err := ch.ExchangeDeclare(name, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}
	for _, name := range durableQueues {
		if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", name, err)
		}
	}
	for _, b := range queueBindings {
		if err := ch.QueueBind(b.queue, b.key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}
	return nil
}

// routedQueues returns the queues a message published to exchange with routingKey lands in,
// following the declared bindings and AMQP topic matching.
func routedQueues(exchange, routingKey string) []string {
	var out []string
	for _, b := range queueBindings {
		if b.exchange == exchange && topicMatch(b.key, routingKey) {
			out = append(out, b.queue)
		}
	}
	return out
}

// RoutesTo reports whether a message published to exchange with routingKey reaches queue.
func RoutesTo(exchange, routingKey, queue string) bool {
	for _, q := range routedQueues(exchange, routingKey) {
		if q == queue {
			return true
		}
	}
	return false
}

// topicMatch implements AMQP topic matching: "*" is exactly one word, "#" is zero or more.
func topicMatch(pattern, key string) bool {
	return matchWords(splitWords(pattern), splitWords(key))
}

func matchWords(pat, key []string) bool {
	if len(pat) == 0 {
		return len(key) == 0
	}
	switch pat[0] {
	case "#":
		for i := 0; i <= len(key); i++ {
			if matchWords(pat[1:], key[i:]) {
				return true
			}
		}
		return false
	case "*":
		return len(key) > 0 && matchWords(pat[1:], key[1:])
	default:
		return len(key) > 0 && key[0] == pat[0] && matchWords(pat[1:], key[1:])
	}
}

func splitWords(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ".")
}
