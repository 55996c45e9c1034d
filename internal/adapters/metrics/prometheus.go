package metrics

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/viralforge/affiliate-ledger/internal/ports"
)

// Recorder exports ledger activity to Prometheus.
type Recorder struct {
	ingestEvents      *prometheus.CounterVec
	commissions       *prometheus.CounterVec
	commissionAmount  *prometheus.CounterVec
	payoutTransitions *prometheus.CounterVec
	clicks            *prometheus.CounterVec
}

// NewRecorder registers the collectors on reg, the default registerer when
// nil. Registering twice on one registry reuses the existing collectors.
func NewRecorder(namespace string, reg prometheus.Registerer) (*Recorder, error) {
	if namespace == "" {
		namespace = "affiliate_ledger"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Recorder{
		ingestEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_events_total",
			Help:      "Payment events seen by ingestion, by outcome.",
		}, []string{"outcome"}),
		commissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commissions_created_total",
			Help:      "Commission entries appended to the ledger, by rule.",
		}, []string{"rule"}),
		commissionAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commission_amount_total",
			Help:      "Sum of commission amounts appended, by rule.",
		}, []string{"rule"}),
		payoutTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payout_transitions_total",
			Help:      "Payout request status changes, by target status.",
		}, []string{"to"}),
		clicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clicks_tracked_total",
			Help:      "Referral link clicks, split by whether the code resolved.",
		}, []string{"valid"}),
	}
	collectors := []**prometheus.CounterVec{&r.ingestEvents, &r.commissions, &r.commissionAmount, &r.payoutTransitions, &r.clicks}
	for _, collector := range collectors {
		if err := reg.Register(*collector); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
					*collector = existing
					continue
				}
			}
			return nil, fmt.Errorf("register ledger metric: %w", err)
		}
	}
	return r, nil
}

func (r *Recorder) IngestOutcome(outcome string) {
	if r == nil {
		return
	}
	r.ingestEvents.WithLabelValues(outcome).Inc()
}

func (r *Recorder) CommissionCreated(rule string, amount decimal.Decimal) {
	if r == nil {
		return
	}
	r.commissions.WithLabelValues(rule).Inc()
	r.commissionAmount.WithLabelValues(rule).Add(amount.InexactFloat64())
}

func (r *Recorder) PayoutTransition(to string) {
	if r == nil {
		return
	}
	r.payoutTransitions.WithLabelValues(to).Inc()
}

func (r *Recorder) ClickTracked(valid bool) {
	if r == nil {
		return
	}
	r.clicks.WithLabelValues(strconv.FormatBool(valid)).Inc()
}

var _ ports.Metrics = (*Recorder)(nil)
