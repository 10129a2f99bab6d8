// Package metrics содержит счётчики Prometheus конвейера заказов.
package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mmeshcher/kundali-system/internal/astrology"
	"github.com/mmeshcher/kundali-system/internal/model"
)

const (
	ProviderFailureAuth        = "auth"
	ProviderFailureRequest     = "request"
	ProviderFailureUnavailable = "unavailable"
	ProviderFailureCanceled    = "canceled"
	ProviderFailureUnknown     = "unknown"
)

// Metrics собирает сигналы о заказах, проверках платежей и деградации провайдера.
type Metrics struct {
	ordersCreated    prometheus.Counter
	verifications    *prometheus.CounterVec
	kundaliGenerated *prometheus.CounterVec
	providerFailures *prometheus.CounterVec
}

// New регистрирует счётчики в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kundali",
			Name:      "orders_created_total",
			Help:      "Payment orders issued.",
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kundali",
			Name:      "payment_verifications_total",
			Help:      "Payment signature verifications by result.",
		}, []string{"result"}),
		kundaliGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kundali",
			Name:      "charts_generated_total",
			Help:      "Charts served by data source.",
		}, []string{"source"}),
		providerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kundali",
			Name:      "provider_failures_total",
			Help:      "Astrology provider failures by kind.",
		}, []string{"kind"}),
	}

	reg.MustRegister(m.ordersCreated, m.verifications, m.kundaliGenerated, m.providerFailures)
	return m
}

// OrderCreated учитывает выданный заказ.
func (m *Metrics) OrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// PaymentVerified учитывает результат проверки подписи.
func (m *Metrics) PaymentVerified(ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.verifications.WithLabelValues(result).Inc()
}

// KundaliGenerated учитывает отданную карту.
func (m *Metrics) KundaliGenerated(source model.Source) {
	if m == nil {
		return
	}
	m.kundaliGenerated.WithLabelValues(string(source)).Inc()
}

// ProviderFailure учитывает ошибку провайдера.
func (m *Metrics) ProviderFailure(err error) {
	if m == nil || err == nil {
		return
	}
	m.providerFailures.WithLabelValues(ClassifyProviderError(err)).Inc()
}

// ClassifyProviderError сводит ошибку провайдера к метке метрики.
func ClassifyProviderError(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, astrology.ErrUnavailable):
		return ProviderFailureCanceled
	case errors.Is(err, astrology.ErrAuthFailed):
		return ProviderFailureAuth
	case errors.Is(err, astrology.ErrUnavailable), errors.Is(err, astrology.ErrNotConfigured):
		return ProviderFailureUnavailable
	case errors.Is(err, astrology.ErrRequestFailed):
		return ProviderFailureRequest
	default:
		return ProviderFailureUnknown
	}
}
