package presence

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"jobhub/internal/errors"
	"jobhub/internal/logger"
)

// DefaultExchange is the fanout exchange shared by all API instances.
const DefaultExchange = "jobhub.presence"

const groupHeader = "group"

// AMQPPublisher publishes presence events to every API instance through a
// fanout exchange. Each instance's Relay delivers them to its local hub.
type AMQPPublisher struct {
	channel  *amqp.Channel
	exchange string
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	return ch.ExchangeDeclare(
		exchange,
		"fanout",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

func NewAMQPPublisher(conn *amqp.Connection, exchange string) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "open amqp channel")
	}
	if err := declareExchange(ch, exchange); err != nil {
		ch.Close()
		return nil, errors.Wrapf(err, "declare exchange %s", exchange)
	}
	return &AMQPPublisher{channel: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, userID string, payload []byte) error {
	return p.channel.PublishWithContext(ctx,
		p.exchange,
		"",
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Headers:     amqp.Table{groupHeader: GroupName(userID)},
			Body:        payload,
		},
	)
}

func (p *AMQPPublisher) Close() error {
	return p.channel.Close()
}

// Relay consumes the fanout exchange through an exclusive per-instance
// queue and republishes into the local hub. Events published while an
// instance is down are not replayed.
type Relay struct {
	channel *amqp.Channel
	queue   string
	hub     *Hub
	logger  *zap.SugaredLogger
}

func NewRelay(conn *amqp.Connection, exchange string, hub *Hub, log *zap.SugaredLogger) (*Relay, error) {
	if log == nil {
		log = logger.Logger
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "open amqp channel")
	}
	if err := declareExchange(ch, exchange); err != nil {
		ch.Close()
		return nil, errors.Wrapf(err, "declare exchange %s", exchange)
	}

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, errors.Wrap(err, "declare relay queue")
	}
	if err := ch.QueueBind(q.Name, "", exchange, false, nil); err != nil {
		ch.Close()
		return nil, errors.Wrapf(err, "bind relay queue to %s", exchange)
	}

	return &Relay{channel: ch, queue: q.Name, hub: hub, logger: log.Named("presence-relay")}, nil
}

// Start consumes until ctx is done or the channel closes.
func (r *Relay) Start(ctx context.Context) error {
	msgs, err := r.channel.Consume(
		r.queue,
		"",
		true, // auto-ack: delivery is at-most-once anyway
		true,
		false,
		false,
		nil,
	)
	if err != nil {
		return errors.Wrap(err, "consume relay queue")
	}

	r.logger.Infow("Presence relay started", "queue", r.queue)
	for {
		select {
		case <-ctx.Done():
			r.channel.Close()
			return nil
		case msg, ok := <-msgs:
			if !ok {
				r.logger.Warnw("Presence relay channel closed")
				return nil
			}
			r.handle(ctx, msg)
		}
	}
}

func (r *Relay) handle(ctx context.Context, msg amqp.Delivery) {
	group, _ := msg.Headers[groupHeader].(string)
	userID, ok := ParseGroup(group)
	if !ok {
		r.logger.Warnw("Dropping relay message without a valid group", "group", group)
		return
	}
	_ = r.hub.Publish(ctx, userID, msg.Body)
}
