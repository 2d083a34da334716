package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/raftkit/raftd/internal/raft"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("Write error = %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestObserveRoleSetsExactlyOneGaugeToOne(t *testing.T) {
	reg := NewRegistry(prometheus.NewRegistry())

	reg.ObserveRole(raft.Leader)

	if got := gaugeValue(t, reg.Role.WithLabelValues("leader")); got != 1 {
		t.Fatalf("Leader gauge = %v, want 1", got)
	}
	if got := gaugeValue(t, reg.Role.WithLabelValues("follower")); got != 0 {
		t.Fatalf("Follower gauge = %v, want 0", got)
	}
	if got := gaugeValue(t, reg.Role.WithLabelValues("candidate")); got != 0 {
		t.Fatalf("Candidate gauge = %v, want 0", got)
	}

	reg.ObserveRole(raft.Follower)
	if got := gaugeValue(t, reg.Role.WithLabelValues("leader")); got != 0 {
		t.Fatalf("Leader gauge after switch = %v, want 0", got)
	}
	if got := gaugeValue(t, reg.Role.WithLabelValues("follower")); got != 1 {
		t.Fatalf("Follower gauge after switch = %v, want 1", got)
	}
}

func TestCollectHostStatsReturnsPlausibleValues(t *testing.T) {
	stats, err := CollectHostStats()
	if err != nil {
		t.Fatalf("CollectHostStats error = %v", err)
	}
	if stats.CPUPercent < 0 || stats.MemPercent < 0 || stats.DiskPercent < 0 {
		t.Fatalf("expected non-negative percentages, got %+v", stats)
	}
}
