package nats

import (
	"context"
	"encoding/json"
	"fmt"

	model "github.com/glkeru/amperequest/internal/models"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Очередь запросов виртуальных сессий
type SessionQueue struct {
	conn    *nats.Conn
	subject string
	logger  *zap.Logger
}

func NewSessionQueue(url string, subject string, logger *zap.Logger) (*SessionQueue, error) {
	if url == "" {
		return nil, fmt.Errorf("env NATS_URL is not set")
	}
	nc, err := nats.Connect(url, nats.Name("amperequest"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logger.Info("Connected to NATS", zap.String("url", url), zap.String("subject", subject))
	return &SessionQueue{nc, subject, logger}, nil
}

func (q *SessionQueue) Publish(req model.VirtualSessionRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return q.conn.Publish(q.subject, data)
}

// Подписка в группе очереди: каждый запрос обрабатывает один экземпляр
func (q *SessionQueue) Subscribe(ctx context.Context, queue string, handler func(ctx context.Context, data []byte) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, queue, func(msg *nats.Msg) {
		if err := handler(ctx, msg.Data); err != nil {
			q.logger.Error("Error processing message", zap.String("subject", q.subject), zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	<-ctx.Done()
	return sub.Drain()
}

func (q *SessionQueue) Close() {
	q.conn.Drain()
}
