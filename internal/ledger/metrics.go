package ledger

import (
	"auction-sync/internal/biddingerrors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "auction"

// Metrics are the ledger's Prometheus instruments.
type Metrics struct {
	BidsAccepted prometheus.Counter
	BidsRejected *prometheus.CounterVec
	Subscribers  prometheus.Gauge
}

// NewMetrics builds the ledger instruments and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BidsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bids_accepted_total",
			Help:      "Number of bids accepted by the ledger.",
		}),
		BidsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bids_rejected_total",
			Help:      "Number of bids rejected by the ledger, by reason.",
		}, []string{"reason"}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "subscribers",
			Help:      "Number of live bid subscriptions.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.BidsAccepted, m.BidsRejected, m.Subscribers)
	}
	return m
}

func (m *Metrics) rejected(reason biddingerrors.RejectReason) {
	m.BidsRejected.WithLabelValues(string(reason)).Inc()
}
