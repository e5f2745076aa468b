package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/glkeru/amperequest/internal/identity"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// метрики

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amperequest_http_requests_total",
			Help: "Кол-во HTTP запросов",
		},
		[]string{"path", "method", "code"},
	)

	httpRequestsError = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amperequest_http_errors_total",
			Help: "Кол-во ошибочных HTTP запросов",
		},
		[]string{"path", "method", "code"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "amperequest_http_request_duration_seconds",
			Help:    "Продолжительность HTTP запросов",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)
)

// статус ответа для метрик
type logResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *logResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Метрики запросов. path - шаблон маршрута, а не фактический путь
func MiddlewareMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqtime := time.Now()
		logrw := &logResponseWriter{w, http.StatusOK}
		next.ServeHTTP(logrw, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		code := strconv.Itoa(logrw.status)
		httpRequestsTotal.WithLabelValues(path, r.Method, code).Inc()
		httpRequestDuration.WithLabelValues(path, r.Method).Observe(time.Since(reqtime).Seconds())
		if logrw.status >= http.StatusBadRequest {
			httpRequestsError.WithLabelValues(path, r.Method, code).Inc()
		}
	})
}

type callerKey struct{}

func withCaller(ctx context.Context, caller identity.Identity) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// Удостоверение вызывающего из токена
func Caller(ctx context.Context) (identity.Identity, bool) {
	caller, ok := ctx.Value(callerKey{}).(identity.Identity)
	return caller, ok
}

// Проверка токена: Authorization: Bearer <token>
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			h.writeJSON(w, http.StatusUnauthorized, errorResponse{"missing caller token"})
			return
		}
		caller, err := h.tokens.Verify(token)
		if err != nil {
			h.logger.Warn("Caller token rejected", zap.String("path", r.URL.Path), zap.Error(err))
			h.writeJSON(w, http.StatusUnauthorized, errorResponse{"invalid caller token"})
			return
		}
		next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), caller)))
	})
}
