package hub

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// PoolDepth is the number of operations waiting for their dependencies in a document replica.
var PoolDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "woot",
	Subsystem: "hub",
	Name:      "pool_depth",
	Help:      "Operations waiting for their dependencies, per document.",
}, []string{"doc"})

// OpsTotal counts operations integrated by document replicas.
var OpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "woot",
	Subsystem: "hub",
	Name:      "ops_total",
	Help:      "Operations integrated, per operation type.",
}, []string{"type"})

// OpsRejected counts operations refused by validation or integration.
var OpsRejected = prometheus.NewCounter(prometheus.CounterOpts{
	Namespace: "woot",
	Subsystem: "hub",
	Name:      "ops_rejected_total",
	Help:      "Operations rejected as malformed.",
})

// Clients is the number of connected clients, per document.
var Clients = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "woot",
	Subsystem: "hub",
	Name:      "clients",
	Help:      "Connected clients, per document.",
}, []string{"doc"})

// RegisterMetrics registers the hub collectors. Collectors already registered are skipped.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{PoolDepth, OpsTotal, OpsRejected, Clients} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}
