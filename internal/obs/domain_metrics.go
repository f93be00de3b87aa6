package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// OrdersSubmittedTotal counts order submission outcomes.
	OrdersSubmittedTotal *prometheus.CounterVec
	// AggregateQuantity tracks the live committed quantity per variant.
	AggregateQuantity *prometheus.GaugeVec
	// AggregateNotificationsTotal counts insert notifications applied to the tracker.
	AggregateNotificationsTotal prometheus.Counter
	// AggregateReseedsTotal counts full recomputations of the aggregate by trigger and result.
	AggregateReseedsTotal *prometheus.CounterVec
	// LiveClients tracks currently connected live-stream clients.
	LiveClients prometheus.Gauge
	// SnapshotsPublishedTotal counts reconciliation snapshots published by the worker.
	SnapshotsPublishedTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		OrdersSubmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_submitted_total",
			Help:      "Count of order submission outcomes.",
		}, []string{"result"})
		AggregateQuantity = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "aggregate_quantity",
			Help:      "Committed order quantity currently tracked, per variant.",
		}, []string{"variant"})
		AggregateNotificationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregate_notifications_total",
			Help:      "Insert notifications applied incrementally to the aggregate tracker.",
		})
		AggregateReseedsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregate_reseeds_total",
			Help:      "Full aggregate recomputations by trigger and result.",
		}, []string{"trigger", "result"})
		LiveClients = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_clients",
			Help:      "Currently connected aggregate live-stream clients.",
		})
		SnapshotsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_published_total",
			Help:      "Reconciliation snapshots published to the event bus by result.",
		}, []string{"result"})

		registerCollector(reg, OrdersSubmittedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				OrdersSubmittedTotal = v
			}
		})
		registerCollector(reg, AggregateQuantity, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.GaugeVec); ok {
				AggregateQuantity = v
			}
		})
		registerCollector(reg, AggregateNotificationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				AggregateNotificationsTotal = v
			}
		})
		registerCollector(reg, AggregateReseedsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				AggregateReseedsTotal = v
			}
		})
		registerCollector(reg, LiveClients, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Gauge); ok {
				LiveClients = v
			}
		})
		registerCollector(reg, SnapshotsPublishedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SnapshotsPublishedTotal = v
			}
		})
	})
}

// CountOrderSubmitted records an order submission outcome.
func CountOrderSubmitted(result string) {
	if OrdersSubmittedTotal != nil {
		OrdersSubmittedTotal.WithLabelValues(result).Inc()
	}
}

// SetAggregateQuantity publishes the tracked totals to the per-variant gauges.
func SetAggregateQuantity(variantA, variantB int64) {
	if AggregateQuantity != nil {
		AggregateQuantity.WithLabelValues("a").Set(float64(variantA))
		AggregateQuantity.WithLabelValues("b").Set(float64(variantB))
	}
}

// CountNotificationApplied records one insert notification applied to the tracker.
func CountNotificationApplied() {
	if AggregateNotificationsTotal != nil {
		AggregateNotificationsTotal.Inc()
	}
}

// CountReseed records a full recomputation outcome.
func CountReseed(trigger, result string) {
	if AggregateReseedsTotal != nil {
		AggregateReseedsTotal.WithLabelValues(trigger, result).Inc()
	}
}

// LiveClientConnected records one live-stream client attaching.
func LiveClientConnected() {
	if LiveClients != nil {
		LiveClients.Inc()
	}
}

// LiveClientDisconnected records one live-stream client detaching.
func LiveClientDisconnected() {
	if LiveClients != nil {
		LiveClients.Dec()
	}
}

// CountSnapshotPublished records a reconciliation snapshot publish outcome.
func CountSnapshotPublished(result string) {
	if SnapshotsPublishedTotal != nil {
		SnapshotsPublishedTotal.WithLabelValues(result).Inc()
	}
}

func registerCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
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
