package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/Shivanand-hulikatti/membership-registry/internal/model"
)

// RabbitPublisher publishes entries to a durable topic exchange using the
// event type as routing key, so consumers bind to patterns such as
// "member.*".
type RabbitPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      zerolog.Logger
}

// NewRabbitPublisher dials url and declares exchange.
func NewRabbitPublisher(url, exchange string, log zerolog.Logger) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	log.Info().Str("exchange", exchange).Msg("rabbitmq publisher initialized")
	return &RabbitPublisher{conn: conn, channel: ch, exchange: exchange, log: log}, nil
}

// Publish implements Publisher.
func (p *RabbitPublisher) Publish(ctx context.Context, entry model.JournalEntry) error {
	msg, err := Message(entry)
	if err != nil {
		return err
	}

	// Channels are not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.PublishWithContext(ctx, p.exchange, entry.Type, false, false, msg); err != nil {
		p.log.Error().Err(err).Str("type", entry.Type).Msg("failed to publish domain event")
		return fmt.Errorf("publish %s: %w", entry.Type, err)
	}
	p.log.Debug().Str("type", entry.Type).Int64("seq", entry.Seq).Msg("domain event published")
	return nil
}

// Close releases the channel and connection.
func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Message encodes entry as a persistent JSON AMQP message.
func Message(entry model.JournalEntry) (amqp.Publishing, error) {
	body, err := json.Marshal(entry)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode %s: %w", entry.Type, err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         entry.Type,
		MessageId:    fmt.Sprintf("%d", entry.Seq),
		Timestamp:    entry.OccurredAt,
		Body:         body,
	}, nil
}
