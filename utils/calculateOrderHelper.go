package utils

import (
	"github.com/shopspring/decimal"
)

// Calculation modes as stored on orders. Kept as plain strings here so this
// package stays import-free of models (same reason CalculateTaxAmount-style
// helpers carry their own types).
const (
	CalcModeCountTimesPrice          = "count_cost"
	CalcModeSizeTimesPrice           = "size_cost"
	CalcModeCountTimesSizeTimesPrice = "count_size_cost"
)

const (
	PaymentStatusPending = "Pending"
	PaymentStatusPartial = "Partial"
	PaymentStatusPaid    = "Paid"
)

// coerce maps malformed numeric input (negatives from bad form data) to zero.
// This is the display-path policy: totals never error, validation rejects bad
// orders before commit.
func coerce(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// CalculateOrderTotal is the single canonical total formula. Every consumer
// (order commit, edits, batch updates, summaries) goes through here; the old
// aggregation path that dropped the count factor for count_size_cost was a
// defect, not a fourth mode.
func CalculateOrderTotal(quantityCount int, unitSize decimal.Decimal, unitPrice decimal.Decimal, mode string) decimal.Decimal {
	count := decimal.NewFromInt(int64(quantityCount))
	count = coerce(count)
	size := coerce(unitSize)
	price := coerce(unitPrice)

	switch mode {
	case CalcModeCountTimesPrice:
		return count.Mul(price)
	case CalcModeSizeTimesPrice:
		return size.Mul(price)
	default:
		// count_size_cost is the default mode; unknown modes fall through to
		// it rather than erroring on the display path.
		return count.Mul(size).Mul(price)
	}
}

// CalculateBalance returns total - paid, floored at zero (overpayment never
// yields a negative balance).
func CalculateBalance(total decimal.Decimal, amountPaid decimal.Decimal) decimal.Decimal {
	paid := coerce(amountPaid)
	balance := coerce(total).Sub(paid)
	if balance.IsNegative() {
		return decimal.Zero
	}
	return balance
}

// DerivePaymentStatus derives the payment status from total vs amount paid.
// A zero total is Pending regardless of payment.
func DerivePaymentStatus(total decimal.Decimal, amountPaid decimal.Decimal) string {
	t := coerce(total)
	paid := coerce(amountPaid)

	if t.IsZero() || paid.IsZero() {
		return PaymentStatusPending
	}
	if paid.GreaterThanOrEqual(t) {
		return PaymentStatusPaid
	}
	return PaymentStatusPartial
}
