// Package fees implements per-operation credit metering, the dry-run cost
// estimator, and the processing/storage/refund split charged against an
// identity's balance for each state transition.
package fees

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dashpay/drive-platform/internal/store"
)

// OpUnit is one of the four low-level fee units a transition can record.
type OpUnit struct {
	// Exactly one of the following is set.
	Grove       *store.Cost
	Calculated  *CalculatedCost
	PreCalc     *Result
	Function    *FunctionOp
}

// CalculatedCost is a processing-only cost computed outside the store
// (e.g. signature verification CPU time expressed as an equivalent fee).
type CalculatedCost struct {
	ProcessingCredits uint64
}

// FunctionOp is a named semantic operation (e.g. "validate_signature")
// whose processing cost is a function of the bytes it hashed.
type FunctionOp struct {
	Name        string
	HashedBytes uint64
}

// functionOpPerByteCost is the processing credits charged per hashed byte
// for semantic ops. functionOpBaseCost, a flat per-call base cost, models
// the fixed overhead of invoking the function (e.g. parsing, deriving a key).
const (
	functionOpBaseCost    = 1000
	functionOpPerByteCost = 2
	groveSeekCost         = 50
	groveHashNodeCost     = 200
	storageLoadPerByte    = 1
)

// Result is the output of CalculateFee.
type Result struct {
	ProcessingFee       uint64
	StorageFee          uint64
	FeeRefundsPerEpoch  map[uint64]uint64
	TotalRefunds        uint64
}

// Params carries the tunables CalculateFee needs: the storage cost per
// byte and how many epochs remain in the current era.
type Params struct {
	StorageCostPerByte  uint64
	EpochsPerEra        uint64
	CurrentEpochInEra   uint64 // 0-based offset of the current epoch within its era
}

func (p Params) epochsRemaining() uint64 {
	if p.CurrentEpochInEra >= p.EpochsPerEra {
		return 0
	}
	return p.EpochsPerEra - p.CurrentEpochInEra
}

// CalculateFee reduces a sequence of low-level ops into a FeeResult.
// Processing fees are additive; storage fees scale added bytes by the
// remaining era; refunds are the inverse computation over removed bytes
//.
func CalculateFee(params Params, ops []OpUnit) Result {
	res := Result{FeeRefundsPerEpoch: make(map[uint64]uint64)}
	remaining := params.epochsRemaining()

	for _, op := range ops {
		switch {
		case op.Grove != nil:
			c := op.Grove
			res.ProcessingFee += c.Seeks*groveSeekCost + c.HashNodeCalls*groveHashNodeCost + c.StorageLoadedBytes*storageLoadPerByte
			res.StorageFee += c.StorageAddedBytes * params.StorageCostPerByte * remaining
			for epoch, removed := range c.RemovedBytesByEpoch {
				refund := removed * params.StorageCostPerByte * remaining
				res.FeeRefundsPerEpoch[epoch] += refund
				res.TotalRefunds += refund
			}
		case op.Calculated != nil:
			res.ProcessingFee += op.Calculated.ProcessingCredits
		case op.PreCalc != nil:
			res.ProcessingFee += op.PreCalc.ProcessingFee
			res.StorageFee += op.PreCalc.StorageFee
			for e, r := range op.PreCalc.FeeRefundsPerEpoch {
				res.FeeRefundsPerEpoch[e] += r
				res.TotalRefunds += r
			}
		case op.Function != nil:
			res.ProcessingFee += functionOpBaseCost + op.Function.HashedBytes*functionOpPerByteCost
		}
	}
	return res
}

// ApplyUserFeeIncrease linearly scales the processing fee by a percentage
//. percent is e.g. 20 for +20%.
func ApplyUserFeeIncrease(res Result, percent uint64) Result {
	res.ProcessingFee = res.ProcessingFee + (res.ProcessingFee*percent)/100
	return res
}

// Total is the sum a payer must cover to have the transition fully applied.
func (r Result) Total() uint64 { return r.ProcessingFee + r.StorageFee }

// Metrics exposes process-wide counters for fee totals so an operator
// can watch fee flow without scraping the store.
type Metrics struct {
	ProcessingFeeTotal prometheus.Counter
	StorageFeeTotal    prometheus.Counter
	RefundTotal        prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ProcessingFeeTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drive_fees_processing_total", Help: "Cumulative processing fees charged, in credits.",
		}),
		StorageFeeTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drive_fees_storage_total", Help: "Cumulative storage fees charged, in credits.",
		}),
		RefundTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drive_fees_refund_total", Help: "Cumulative storage refunds issued, in credits.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.ProcessingFeeTotal, m.StorageFeeTotal, m.RefundTotal)
	}
	return m
}

func (m *Metrics) Observe(res Result) {
	if m == nil {
		return
	}
	m.ProcessingFeeTotal.Add(float64(res.ProcessingFee))
	m.StorageFeeTotal.Add(float64(res.StorageFee))
	m.RefundTotal.Add(float64(res.TotalRefunds))
}
