package services

import (
	"errors"

	model "github.com/glkeru/amperequest/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// метрики

var (
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amperequest_operations_total",
			Help: "Кол-во операций сервисов",
		},
		[]string{"service", "operation", "result"},
	)

	unauthorizedCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amperequest_unauthorized_calls_total",
			Help: "Кол-во отклоненных привилегированных вызовов",
		},
		[]string{"allow_list"},
	)

	pointsMovedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amperequest_points_total",
			Help: "Кол-во начисленных и списанных баллов",
		},
		[]string{"direction"},
	)
)

func observe(service, operation string, err error) {
	operationsTotal.WithLabelValues(service, operation, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, model.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, model.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, model.ErrOverflow), errors.Is(err, model.ErrUnderflow):
		return "arithmetic"
	case errors.Is(err, model.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, model.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, model.ErrConflict):
		return "conflict"
	case errors.Is(err, model.ErrTransfer):
		return "transfer"
	default:
		return "error"
	}
}
