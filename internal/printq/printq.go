// Package printq hands print requests (kitchen tickets, cash receipts) to
// the print service through a RabbitMQ topic exchange.
package printq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	ReceiptKey     = "receipt"
	publishTimeout = 5 * time.Second
)

var ErrNotConfirmed = errors.New("printq: broker did not confirm publish")

// KitchenKey is the routing key of station's ticket printer.
func KitchenKey(station string) string {
	return "kitchen." + station
}

// Job is the message body the print service consumes.
type Job struct {
	ID        uuid.UUID       `json:"id"`
	Kind      string          `json:"kind"`
	CreatedAt time.Time       `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

func newJob(kind string, data any) (Job, []byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Job{}, nil, fmt.Errorf("marshal %s: %w", kind, err)
	}
	job := Job{ID: uuid.New(), Kind: kind, CreatedAt: time.Now().UTC(), Data: raw}
	body, err := json.Marshal(job)
	if err != nil {
		return Job{}, nil, fmt.Errorf("marshal job: %w", err)
	}
	return job, body, nil
}

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Close() error
}

// Publisher publishes jobs in confirm mode: Publish returns only after the
// broker acknowledged the message.
type Publisher struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
	log      *zap.Logger
}

// Dial connects, declares exchange as a durable topic exchange and puts the
// channel in confirm mode.
func Dial(url, exchange string, log *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("confirm mode: %w", err)
	}
	p := newPublisher(ch, exchange, log)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{ch: ch, exchange: exchange, log: log.Named("printq")}
}

func (p *Publisher) Publish(ctx context.Context, routingKey, kind string, data any) error {
	job, body, err := newJob(kind, data)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	confirm, err := p.ch.PublishWithDeferredConfirmWithContext(ctx,
		p.exchange, // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    job.ID.String(),
			Type:         kind,
			Timestamp:    job.CreatedAt,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	if confirm != nil {
		acked, err := confirm.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("await confirm %s: %w", routingKey, err)
		}
		if !acked {
			return ErrNotConfirmed
		}
	}

	p.log.Debug("print job published",
		zap.String("routing_key", routingKey),
		zap.String("kind", kind),
		zap.String("job_id", job.ID.String()))
	return nil
}

func (p *Publisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// LogPublisher stands in when no broker is configured: jobs are only logged.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogPublisher{log: log.Named("printq")}
}

func (p *LogPublisher) Publish(_ context.Context, routingKey, kind string, data any) error {
	job, body, err := newJob(kind, data)
	if err != nil {
		return err
	}
	p.log.Info("print job (no broker)",
		zap.String("routing_key", routingKey),
		zap.String("kind", kind),
		zap.String("job_id", job.ID.String()),
		zap.ByteString("body", body))
	return nil
}

func (p *LogPublisher) Close() error { return nil }
