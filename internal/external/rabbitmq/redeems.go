package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	model "github.com/glkeru/amperequest/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	QueueRedeems  = "redeems"
	QueueConfirms = "confirms"
)

// Запросы на погашение ваучеров и подтверждения
type RabbitConsumer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	Msg   <-chan amqp.Delivery
	chout *amqp.Channel
}

func NewRabbitConsumer(url string, prefetch int) (rabbit *RabbitConsumer, err error) {
	if url == "" {
		return nil, fmt.Errorf("env RABBIT_URL is not set")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			conn.Close()
		}
	}()

	// канал для входящих
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if _, err = ch.QueueDeclare(QueueRedeems, true, false, false, false, nil); err != nil {
		return nil, err
	}
	if err = ch.Qos(prefetch, 0, false); err != nil {
		return nil, err
	}

	// канал для исходящих
	chout, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if _, err = chout.QueueDeclare(QueueConfirms, true, false, false, false, nil); err != nil {
		return nil, err
	}

	// подтверждение вручную: сообщение снимается с очереди после обработки
	msg, err := ch.Consume(
		QueueRedeems, // queue
		"",           // consumer
		false,        // auto-ack
		false,        // exclusive
		false,        // no-local
		false,        // no-wait
		nil,          // args
	)
	if err != nil {
		return nil, err
	}
	return &RabbitConsumer{conn, ch, msg, chout}, nil
}

func (r *RabbitConsumer) Close() {
	r.ch.Close()
	r.chout.Close()
	r.conn.Close()
}

// Результат погашения в очередь подтверждений
func (r *RabbitConsumer) Processed(ctx context.Context, confirm *model.RedeemConfirm) error {
	msg, err := json.Marshal(confirm)
	if err != nil {
		return err
	}
	return r.chout.PublishWithContext(ctx,
		"",            // exchange
		QueueConfirms, // routing key
		false,         // mandatory
		false,         // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         msg,
		})
}
