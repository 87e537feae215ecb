// Package epoch implements per-epoch fee pools, per-proposer block
// counters, and the oldest-unpaid-epoch payout loop, with one subtree
// per epoch.
package epoch

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dashpay/drive-platform/internal/store"
	"github.com/dashpay/drive-platform/internal/wire"
)

// Info is the stored state for one epoch.
type Info struct {
	Index            uint64
	StartBlockHeight uint64
	StartBlockTimeMs uint64
	StartCoreHeight  uint32
	ProcessingPool   uint64
	StoragePool      uint64
	EpochBlocks      uint64 // configured blocks-per-epoch length recorded at Open; the payout divides by the recorded ProposerBlocks total instead
	Paid             bool

	// ProposerOrder preserves first-seen order so the payout loop has a
	// stable, resumable traversal; ProposerBlocks is keyed by the same ids.
	ProposerOrder  []wire.ID
	ProposerBlocks map[wire.ID]uint64

	// PayoutCursor indexes into ProposerOrder: proposers before it have
	// already been paid out for this epoch.
	PayoutCursor int
}

func epochPath() store.Path {
	return store.Path{store.TagPools}
}

func epochKey(index uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(index)
		index >>= 8
	}
	return b
}

var oldestUnpaidKey = []byte("$oldest_unpaid_epoch")

func miscPath() store.Path {
	return store.Path{store.TagMisc}
}

// Metrics exposes process-wide gauges for epoch/payout bookkeeping.
type Metrics struct {
	ProcessingPool prometheus.Gauge
	StoragePool    prometheus.Gauge
	OldestUnpaid   prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ProcessingPool: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drive_epoch_processing_pool", Help: "Current epoch's processing fee pool, in credits.",
		}),
		StoragePool: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drive_epoch_storage_pool", Help: "Current epoch's storage fee pool, in credits.",
		}),
		OldestUnpaid: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drive_epoch_oldest_unpaid", Help: "Index of the oldest epoch not yet fully paid out.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ProcessingPool, m.StoragePool, m.OldestUnpaid)
	}
	return m
}
