package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kjannette/trahn-treasury/internal/audit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestServeRegistersMetrics(t *testing.T) {
	srv := Serve(":0")
	defer srv.Close()

	ProposalsTotal.WithLabelValues("exact-input", "approved").Inc()

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "treasury_proposals_total" {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("treasury_proposals_total metric not found")
	}
}

func TestSinkCountsRejectionCodes(t *testing.T) {
	before := testutil.ToFloat64(RejectionsTotal.WithLabelValues("COOLDOWN_ACTIVE"))
	rec := audit.NewRecord(audit.TradeRejected, common.Address{}, time.Now()).
		With("codes", "COOLDOWN_ACTIVE,SLIPPAGE_EXCEEDED")

	Sink{}.Emit(context.Background(), rec)

	if got := testutil.ToFloat64(RejectionsTotal.WithLabelValues("COOLDOWN_ACTIVE")); got != before+1 {
		t.Fatalf("COOLDOWN_ACTIVE = %v, want %v", got, before+1)
	}
	if got := testutil.ToFloat64(AuditRecordsTotal.WithLabelValues(string(audit.TradeRejected))); got < 1 {
		t.Fatalf("audit record not counted: %v", got)
	}
}
