package metrics

import (
	"context"
	"net/http"
	"strings"

	"github.com/kjannette/trahn-treasury/internal/audit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ProposalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "treasury_proposals_total", Help: "Trade proposals by kind and outcome"},
		[]string{"kind", "outcome"},
	)
	RejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "treasury_rejections_total", Help: "Validator rejections by code"},
		[]string{"code"},
	)
	HardFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "treasury_hard_failures_total", Help: "Aborted operations by failure kind"},
		[]string{"op", "kind"},
	)
	AuditRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "treasury_audit_records_total", Help: "Audit records emitted"},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(ProposalsTotal, RejectionsTotal, HardFailuresTotal, AuditRecordsTotal)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// Sink counts audit records and the rejection codes they carry.
type Sink struct{}

func (Sink) Emit(_ context.Context, rec audit.Record) {
	AuditRecordsTotal.WithLabelValues(string(rec.Kind)).Inc()
	if rec.Kind != audit.TradeRejected {
		return
	}
	for _, code := range strings.Split(rec.Fields["codes"], ",") {
		if code != "" {
			RejectionsTotal.WithLabelValues(code).Inc()
		}
	}
}
