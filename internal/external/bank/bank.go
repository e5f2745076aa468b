package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/glkeru/amperequest/internal/identity"
	interf "github.com/glkeru/amperequest/internal/interfaces"
	model "github.com/glkeru/amperequest/internal/models"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ID - ключ идемпотентности на стороне банка
type TransferRequest struct {
	ID       identity.Identity `json:"id"`
	From     identity.Identity `json:"from"`
	To       identity.Identity `json:"to"`
	Amount   uint64            `json:"amount"`
	Reverses identity.Identity `json:"reverses,omitzero"`
}

const (
	refundNamespace = "bank_refund"
	refundAttempts  = 3
)

var refundBackoff = 200 * time.Millisecond

// Перевод во внешней платежной системе. В транзакцию хранилища не входит:
// если единица работы не применилась, перевод возвращается встречным
type Client struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewClient(url string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("env AMPERE_BANK_URL is not set")
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "bank",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		// отказ по балансу - ответ системы, а не сбой
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, model.ErrInsufficientFunds)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &Client{url, &http.Client{Timeout: timeout}, cb, logger}, nil
}

var _ interf.Transferer = (*Client)(nil)

func (c *Client) Transfer(ctx context.Context, tx interf.Tx, from, to identity.Identity, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if from == to {
		return fmt.Errorf("transfer to self %s: %w", from, model.ErrInvalidInput)
	}
	req := TransferRequest{
		ID:     identity.Identity(uuid.New()),
		From:   from,
		To:     to,
		Amount: amount,
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.post(ctx, req)
	})
	if err != nil {
		if errors.Is(err, model.ErrInsufficientFunds) || errors.Is(err, model.ErrTransfer) {
			return err
		}
		// gobreaker.ErrOpenState, ErrTooManyRequests
		return fmt.Errorf("%w: %v", model.ErrTransfer, err)
	}
	c.logger.Info("Transfer",
		zap.String("id", req.ID.String()),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
		zap.Uint64("amount", amount),
	)
	if tx != nil {
		// откат может случиться после отмены запроса, возврат все равно отправляем
		refundCtx := context.WithoutCancel(ctx)
		tx.OnRollback(func() { c.refund(refundCtx, req) })
	}
	return nil
}

// Встречный перевод. ID выводится из исходного перевода, повторная отправка
// не удваивает возврат. Идет мимо breaker: компенсацию пытаемся провести всегда
func (c *Client) refund(ctx context.Context, orig TransferRequest) {
	req := TransferRequest{
		ID:       identity.Derive(refundNamespace, identity.SeedID(orig.ID)),
		From:     orig.To,
		To:       orig.From,
		Amount:   orig.Amount,
		Reverses: orig.ID,
	}
	var err error
	for attempt := 1; attempt <= refundAttempts; attempt++ {
		if err = c.post(ctx, req); err == nil {
			c.logger.Warn("Transfer refunded",
				zap.String("transfer", orig.ID.String()),
				zap.String("refund", req.ID.String()),
				zap.Uint64("amount", req.Amount),
			)
			return
		}
		if attempt < refundAttempts {
			time.Sleep(time.Duration(attempt) * refundBackoff)
		}
	}
	c.logger.Error("Refund failed, manual reconciliation required",
		zap.Error(err),
		zap.String("transfer", orig.ID.String()),
		zap.String("refund", req.ID.String()),
		zap.String("to", req.To.String()),
		zap.Uint64("amount", req.Amount),
	)
}

func (c *Client) post(ctx context.Context, body TransferRequest) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/transfers", bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrTransfer, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	case http.StatusPaymentRequired:
		return fmt.Errorf("%s has not enough funds: %w", body.From, model.ErrInsufficientFunds)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: bank HTTP error: %s %s", model.ErrTransfer, resp.Status, bytes.TrimSpace(msg))
	}
}
