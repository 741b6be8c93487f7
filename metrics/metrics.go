// Package metrics instruments the admission pipeline. The core never
// depends on these collectors for correctness; they observe, only.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Admission groups the consensus-core collectors.
type Admission struct {
	BlocksAccepted prometheus.Counter
	BlocksRejected *prometheus.CounterVec
	HeadSwitches   prometheus.Counter
	ReorgDepth     prometheus.Histogram
	ScoreMicroNats prometheus.Histogram
	EnvelopeFails  *prometheus.CounterVec
	VerifySeconds  prometheus.Histogram
}

// NewAdmission builds and registers the collectors on reg.
func NewAdmission(reg prometheus.Registerer) *Admission {
	m := &Admission{
		BlocksAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "animica",
			Subsystem: "consensus",
			Name:      "blocks_accepted_total",
			Help:      "Blocks that passed the full acceptance path.",
		}),
		BlocksRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "animica",
			Subsystem: "consensus",
			Name:      "blocks_rejected_total",
			Help:      "Rejected blocks by stable error key.",
		}, []string{"code"}),
		HeadSwitches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "animica",
			Subsystem: "consensus",
			Name:      "head_switches_total",
			Help:      "Reorgs applied by fork choice.",
		}),
		ReorgDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "animica",
			Subsystem: "consensus",
			Name:      "reorg_depth_blocks",
			Help:      "Depth of applied reorgs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		ScoreMicroNats: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "animica",
			Subsystem: "consensus",
			Name:      "block_score_micronats",
			Help:      "PoIES score S of accepted blocks.",
			Buckets:   prometheus.ExponentialBuckets(100_000, 2, 12),
		}),
		EnvelopeFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "animica",
			Subsystem: "proofs",
			Name:      "envelope_failures_total",
			Help:      "Envelope verification failures by error kind.",
		}, []string{"kind"}),
		VerifySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "animica",
			Subsystem: "proofs",
			Name:      "verify_seconds",
			Help:      "Wall time of the per-block verification fan-out.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.BlocksAccepted, m.BlocksRejected, m.HeadSwitches,
			m.ReorgDepth, m.ScoreMicroNats, m.EnvelopeFails, m.VerifySeconds,
		)
	}
	return m
}
