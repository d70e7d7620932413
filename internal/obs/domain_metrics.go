package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CartOperationsTotal counts cart operations by outcome.
	CartOperationsTotal *prometheus.CounterVec
	// CartOperationDuration records cart operation latency in milliseconds, lock wait included.
	CartOperationDuration *prometheus.HistogramVec
	// PriceRuleRejectionsTotal counts price rules refused by the cart, by reason.
	PriceRuleRejectionsTotal *prometheus.CounterVec
	// FixedDiscountTruncatedTotal counts fixed-amount rules the cart could not absorb fully.
	FixedDiscountTruncatedTotal *prometheus.CounterVec
	// CartEventsTotal counts lifecycle events published by carts.
	CartEventsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CartOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_operations_total",
			Help:      "Count of cart operations by outcome.",
		}, []string{"operation", "result"})
		CartOperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cart_operation_duration_ms",
			Help:      "Latency of cart operations in milliseconds.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		}, []string{"operation"})
		PriceRuleRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_price_rule_rejections_total",
			Help:      "Count of price rules rejected by the cart.",
		}, []string{"reason"})
		FixedDiscountTruncatedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_fixed_discount_truncated_total",
			Help:      "Count of fixed discounts larger than what the cart could absorb.",
		}, []string{"discount_type"})
		CartEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cart_events_total",
			Help:      "Count of cart lifecycle events by topic.",
		}, []string{"topic"})

		mustRegisterCollector(reg, CartOperationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CartOperationsTotal = v
			}
		})
		mustRegisterCollector(reg, CartOperationDuration, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				CartOperationDuration = v
			}
		})
		mustRegisterCollector(reg, PriceRuleRejectionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PriceRuleRejectionsTotal = v
			}
		})
		mustRegisterCollector(reg, FixedDiscountTruncatedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				FixedDiscountTruncatedTotal = v
			}
		})
		mustRegisterCollector(reg, CartEventsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CartEventsTotal = v
			}
		})
	})
}

// ObserveCartOperation records the outcome and latency of a cart operation. It is a no-op until
// MustRegisterDomainMetrics ran.
func ObserveCartOperation(operation, result string, durationMs float64) {
	if CartOperationsTotal != nil {
		CartOperationsTotal.WithLabelValues(operation, result).Inc()
	}
	if CartOperationDuration != nil {
		CartOperationDuration.WithLabelValues(operation).Observe(durationMs)
	}
}

// IncPriceRuleRejection counts a rejected price rule.
func IncPriceRuleRejection(reason string) {
	if PriceRuleRejectionsTotal != nil {
		PriceRuleRejectionsTotal.WithLabelValues(reason).Inc()
	}
}

// IncFixedDiscountTruncated counts a truncated fixed discount.
func IncFixedDiscountTruncated(discountType string) {
	if FixedDiscountTruncatedTotal != nil {
		FixedDiscountTruncatedTotal.WithLabelValues(discountType).Inc()
	}
}

// IncCartEvent counts a published cart event.
func IncCartEvent(topic string) {
	if CartEventsTotal != nil {
		CartEventsTotal.WithLabelValues(topic).Inc()
	}
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
