package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	model "github.com/glkeru/amperequest/internal/models"
	"github.com/segmentio/kafka-go"
)

// Чтение топика в группе потребителей
type Reader struct {
	reader *kafka.Reader
}

func NewReader(brokers []string, topic string, groupID string) (*Reader, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("env KAFKA_URL is not set")
	}
	config := kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	}
	return &Reader{kafka.NewReader(config)}, nil
}

func (k *Reader) GetNewMessage(ctx context.Context) ([]byte, error) {
	msg, err := k.reader.ReadMessage(ctx)
	if err != nil {
		return nil, err
	}
	return msg.Value, nil
}

func (k *Reader) Close() error {
	return k.reader.Close()
}

// Публикация событий журнала, ключ - запись события
type EventWriter struct {
	writer *kafka.Writer
}

func NewEventWriter(brokers []string, topic string) (*EventWriter, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("env KAFKA_URL is not set")
	}
	return &EventWriter{&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}}, nil
}

func (k *EventWriter) Publish(ctx context.Context, events ...model.Event) error {
	msgs := make([]kafka.Message, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return err
		}
		msgs = append(msgs, kafka.Message{Key: []byte(e.Subject), Value: value, Time: e.At})
	}
	return k.writer.WriteMessages(ctx, msgs...)
}

func (k *EventWriter) Close() error {
	return k.writer.Close()
}

// Разбор события из сообщения
func DecodeEvent(value []byte) (model.Event, error) {
	var e model.Event
	if err := json.Unmarshal(value, &e); err != nil {
		return e, fmt.Errorf("event: %v: %w", err, model.ErrInvalidInput)
	}
	if e.ID == "" || e.Subject == "" {
		return e, fmt.Errorf("event: id and subject are required: %w", model.ErrInvalidInput)
	}
	return e, nil
}
