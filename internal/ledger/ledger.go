// Package ledger computes how much of a job-order line item remains
// allocatable to downstream consumers (production releases, invoice lines)
// and validates proposed consumptions. All functions are pure; callers must
// run them inside the same transaction as the write that depends on them.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fabworks/foundry/internal/entity"
)

// Kind classifies which cap a proposed consumption violated.
type Kind string

const (
	KindQuantity Kind = "QUANTITY"
	KindValue    Kind = "VALUE"
)

// Consumption is one existing consumer of a job-order item.
type Consumption struct {
	ConsumerID int64
	Qty        decimal.Decimal
	Value      decimal.Decimal
}

// Proposed is a consumption a caller wants to add. For multi-line requests the
// caller must sum all lines into one Proposed before any line is persisted.
type Proposed struct {
	Qty   decimal.Decimal
	Value decimal.Decimal
}

// Balance reports what remains allocatable. Invalid (null) fields mean
// unlimited, mirroring a null ordered quantity on the item.
type Balance struct {
	Qty   decimal.NullDecimal
	Value decimal.NullDecimal
}

// ExceededError reports a cap violation with enough context to act on without
// a follow-up query.
type ExceededError struct {
	Kind        Kind
	Description string
	Requested   decimal.Decimal
	Available   decimal.Decimal
}

func (e *ExceededError) Error() string {
	switch e.Kind {
	case KindValue:
		return fmt.Sprintf("value of %q exceeds ordered value: requested %s, available %s",
			e.Description, e.Requested, e.Available)
	default:
		return fmt.Sprintf("quantity of %q exceeds ordered quantity: requested %s, remaining %s",
			e.Description, e.Requested, e.Available)
	}
}

// Remaining sums consumed quantity and value over the item's consumers,
// optionally excluding one consumer (for update-in-place recomputation), and
// subtracts from the ordered amounts. A null ordered quantity yields an
// unlimited balance.
func Remaining(item *entity.JobOrderItem, consumed []Consumption, excludeConsumerID int64) Balance {
	if !item.Quantity.Valid {
		return Balance{}
	}

	usedQty := decimal.Zero
	usedValue := decimal.Zero
	for _, c := range consumed {
		if excludeConsumerID != 0 && c.ConsumerID == excludeConsumerID {
			continue
		}
		usedQty = usedQty.Add(c.Qty)
		usedValue = usedValue.Add(c.Value)
	}

	orderedValue := item.Quantity.Decimal.Mul(item.UnitPrice)
	return Balance{
		Qty:   decimal.NewNullDecimal(item.Quantity.Decimal.Sub(usedQty)),
		Value: decimal.NewNullDecimal(orderedValue.Sub(usedValue)),
	}
}

// Validate checks a proposed consumption against the item's caps. Quantity is
// checked strictly before value. The value cap compares the proposed line
// value against the item's full ordered value (quantity * unit price), per
// line rather than cumulatively.
func Validate(item *entity.JobOrderItem, consumed []Consumption, excludeConsumerID int64, p Proposed) error {
	if !item.Quantity.Valid {
		return nil
	}

	balance := Remaining(item, consumed, excludeConsumerID)
	if p.Qty.GreaterThan(balance.Qty.Decimal) {
		return &ExceededError{
			Kind:        KindQuantity,
			Description: item.WorkDescription,
			Requested:   p.Qty,
			Available:   balance.Qty.Decimal,
		}
	}

	orderedValue := item.Quantity.Decimal.Mul(item.UnitPrice)
	if p.Value.GreaterThan(orderedValue) {
		return &ExceededError{
			Kind:        KindValue,
			Description: item.WorkDescription,
			Requested:   p.Value,
			Available:   orderedValue,
		}
	}
	return nil
}
