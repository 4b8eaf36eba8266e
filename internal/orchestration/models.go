package orchestration

import (
	"time"
)

// Phase is the lifecycle position of a batch. Transitions only move
// forward; Failed is reachable from any non-terminal phase.
type Phase string

const (
	PhaseAwaitingInputs Phase = "awaiting_inputs"
	PhaseComposing      Phase = "composing"
	PhasePersisting     Phase = "persisting"
	PhaseCompleted      Phase = "completed"
	PhaseFailed         Phase = "failed"
)

func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// The three uploads that make up one batch. Exact string match against
// the item name parsed from the upload URL.
const (
	ItemOrderHeaderDetails = "OrderHeaderDetails.csv"
	ItemOrderLineItems     = "OrderLineItems.csv"
	ItemProductInformation = "ProductInformation.csv"
)

func DefaultExpectedItems() []string {
	return []string{
		ItemOrderHeaderDetails,
		ItemOrderLineItems,
		ItemProductInformation,
	}
}

// Instance is the durable per-batch state machine snapshot. Version
// increments on every committed update and guards against concurrent
// writers.
type Instance struct {
	BatchID        string            `bson:"batch_id" json:"batch_id"`
	Phase          Phase             `bson:"phase" json:"phase"`
	ReceivedItems  map[string]string `bson:"received_items" json:"received_items"`
	ExpectedItems  []string          `bson:"expected_items" json:"expected_items"`
	CombinedResult string            `bson:"combined_result,omitempty" json:"combined_result,omitempty"`
	FailureReason  string            `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	Version        int64             `bson:"version" json:"version"`
	CreatedAt      time.Time         `bson:"created_at" json:"created_at"`
	LastUpdatedAt  time.Time         `bson:"last_updated_at" json:"last_updated_at"`
}

func NewInstance(batchID string) *Instance {
	now := time.Now()
	return &Instance{
		BatchID:       batchID,
		Phase:         PhaseAwaitingInputs,
		ReceivedItems: make(map[string]string),
		ExpectedItems: DefaultExpectedItems(),
		Version:       1,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
}

// Expects reports whether name is one of the required items.
func (i *Instance) Expects(name string) bool {
	for _, expected := range i.ExpectedItems {
		if expected == name {
			return true
		}
	}
	return false
}

// Complete reports whether every expected item has been received.
// Completion is pure set equality, arrival order never matters.
func (i *Instance) Complete() bool {
	for _, expected := range i.ExpectedItems {
		if _, ok := i.ReceivedItems[expected]; !ok {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so callers never share the mutable maps.
func (i *Instance) Clone() *Instance {
	cp := *i
	cp.ReceivedItems = make(map[string]string, len(i.ReceivedItems))
	for k, v := range i.ReceivedItems {
		cp.ReceivedItems[k] = v
	}
	cp.ExpectedItems = append([]string(nil), i.ExpectedItems...)
	return &cp
}
