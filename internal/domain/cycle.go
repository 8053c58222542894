package domain

import "time"

// ExecutionMode selects where trades settle.
type ExecutionMode string

const (
	ModeLive      ExecutionMode = "live"
	ModeSimulated ExecutionMode = "simulated"
)

// Disposition is the final outcome of one intent in a cycle.
type Disposition string

const (
	DispositionApproved Disposition = "approved" // passed the governor, not yet executed
	DispositionRejected Disposition = "rejected"
	DispositionHeld     Disposition = "held"
	DispositionExecuted Disposition = "executed"
	DispositionSkipped  Disposition = "skipped" // too small to size
	DispositionNoop     Disposition = "noop"    // nothing to close
	DispositionFailed   Disposition = "failed"
	DispositionAborted  Disposition = "aborted" // cycle stopped before this intent ran
)

// ExecutionResult is what the engine reports for one intent.
type ExecutionResult struct {
	Disposition Disposition   `json:"disposition"`
	Reason      string        `json:"reason,omitempty"`
	Contracts   float64       `json:"contracts,omitempty"`
	Price       float64       `json:"price,omitempty"`
	Orders      []OrderAck    `json:"orders,omitempty"`
	Opened      *Position     `json:"opened,omitempty"`
	Trades      []TradeRecord `json:"trades,omitempty"`
}

// Decision ties an input intent to its outcome.
type Decision struct {
	Index       int              `json:"index"`
	Requested   TradeIntent      `json:"requested"`
	Intent      TradeIntent      `json:"intent"` // after governor mutation
	Disposition Disposition      `json:"disposition"`
	Reason      string           `json:"reason,omitempty"`
	Result      *ExecutionResult `json:"result,omitempty"`
}

// CycleInput is one batch from the decision source.
type CycleInput struct {
	Intents    []TradeIntent `json:"intents"`
	Regime     Regime        `json:"regime"`
	Volatility Volatility    `json:"volatility,omitempty"`
	FearIndex  *float64      `json:"fearIndex,omitempty"`
}

// CycleReport is the full output of one cycle.
type CycleReport struct {
	CycleID    string           `json:"cycleId" bson:"_id"`
	Mode       ExecutionMode    `json:"mode" bson:"mode"`
	Regime     Regime           `json:"regime" bson:"regime"`
	Volatility Volatility       `json:"volatility" bson:"volatility"`
	Limits     RiskLimits       `json:"limits" bson:"limits"`
	Snapshot   ExposureSnapshot `json:"snapshot" bson:"snapshot"`
	Decisions  []Decision       `json:"decisions" bson:"decisions"`
	Error      string           `json:"error,omitempty" bson:"error,omitempty"`
	StartedAt  time.Time        `json:"startedAt" bson:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt" bson:"finishedAt"`
}

// Count returns how many decisions ended with d.
func (r CycleReport) Count(d Disposition) int {
	n := 0
	for _, dec := range r.Decisions {
		if dec.Disposition == d {
			n++
		}
	}
	return n
}
