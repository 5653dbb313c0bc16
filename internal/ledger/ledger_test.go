package ledger

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/fabworks/foundry/internal/entity"
)

func item(qty string, unitPrice string) *entity.JobOrderItem {
	it := &entity.JobOrderItem{
		WorkDescription: "beam fabrication",
		UnitPrice:       decimal.RequireFromString(unitPrice),
	}
	if qty != "" {
		it.Quantity = decimal.NewNullDecimal(decimal.RequireFromString(qty))
	}
	return it
}

func consumption(id int64, qty, value string) Consumption {
	return Consumption{
		ConsumerID: id,
		Qty:        decimal.RequireFromString(qty),
		Value:      decimal.RequireFromString(value),
	}
}

func TestRemainingUnlimitedWhenQuantityNull(t *testing.T) {
	b := Remaining(item("", "10"), []Consumption{consumption(1, "500", "5000")}, 0)
	require.False(t, b.Qty.Valid)
	require.False(t, b.Value.Valid)
}

func TestRemainingSubtractsConsumers(t *testing.T) {
	cons := []Consumption{
		consumption(1, "60", "600"),
		consumption(2, "15", "150"),
	}
	b := Remaining(item("100", "10"), cons, 0)
	require.True(t, b.Qty.Valid)
	require.Equal(t, "25", b.Qty.Decimal.String())
	require.Equal(t, "250", b.Value.Decimal.String())
}

func TestRemainingExcludesOneConsumer(t *testing.T) {
	cons := []Consumption{
		consumption(1, "60", "600"),
		consumption(2, "15", "150"),
	}
	b := Remaining(item("100", "10"), cons, 2)
	require.Equal(t, "40", b.Qty.Decimal.String())
}

func TestValidateQuantityCheckedBeforeValue(t *testing.T) {
	// Both caps violated: quantity must win the tie-break.
	it := item("10", "1")
	err := Validate(it, nil, 0, Proposed{
		Qty:   decimal.RequireFromString("20"),
		Value: decimal.RequireFromString("2000"),
	})
	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)
	require.Equal(t, KindQuantity, exceeded.Kind)
	require.Equal(t, "10", exceeded.Available.String())
}

func TestValidateValueCapPerLine(t *testing.T) {
	// Ordered value is 10 * 25 = 250; a line worth 100 passes, 251 fails.
	it := item("10", "25")
	require.NoError(t, Validate(it, nil, 0, Proposed{
		Qty:   decimal.RequireFromString("5"),
		Value: decimal.RequireFromString("100"),
	}))

	err := Validate(it, nil, 0, Proposed{
		Qty:   decimal.RequireFromString("5"),
		Value: decimal.RequireFromString("251"),
	})
	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)
	require.Equal(t, KindValue, exceeded.Kind)
	require.Equal(t, "250", exceeded.Available.String())
	require.Contains(t, exceeded.Error(), "beam fabrication")
}

func TestValidateScenarioSequentialReleases(t *testing.T) {
	it := item("100", "10")

	// Release A requests 60 against an empty ledger.
	require.NoError(t, Validate(it, nil, 0, Proposed{
		Qty:   decimal.RequireFromString("60"),
		Value: decimal.RequireFromString("600"),
	}))

	cons := []Consumption{consumption(1, "60", "600")}
	require.Equal(t, "40", Remaining(it, cons, 0).Qty.Decimal.String())

	// Release B at 50 exceeds the 40 remaining.
	err := Validate(it, cons, 0, Proposed{
		Qty:   decimal.RequireFromString("50"),
		Value: decimal.RequireFromString("500"),
	})
	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)
	require.Equal(t, KindQuantity, exceeded.Kind)
	require.Equal(t, "50", exceeded.Requested.String())
	require.Equal(t, "40", exceeded.Available.String())

	// Release B at 40 drains the item exactly.
	require.NoError(t, Validate(it, cons, 0, Proposed{
		Qty:   decimal.RequireFromString("40"),
		Value: decimal.RequireFromString("400"),
	}))
	cons = append(cons, consumption(2, "40", "400"))
	require.True(t, Remaining(it, cons, 0).Qty.Decimal.IsZero())
}

func TestValidateExclusionForUpdateInPlace(t *testing.T) {
	// Updating consumer 2 from 30 to 40 must validate against its siblings
	// only, so the ledger sees 60 consumed and allows 40.
	it := item("100", "10")
	cons := []Consumption{
		consumption(1, "60", "600"),
		consumption(2, "30", "300"),
	}
	require.NoError(t, Validate(it, cons, 2, Proposed{
		Qty:   decimal.RequireFromString("40"),
		Value: decimal.RequireFromString("400"),
	}))
	require.True(t, errors.As(Validate(it, cons, 2, Proposed{
		Qty:   decimal.RequireFromString("41"),
		Value: decimal.RequireFromString("410"),
	}), new(*ExceededError)))
}
