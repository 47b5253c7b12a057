package service

import (
	"fulfillment-service/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Breakdown is the financial summary of an order.
type Breakdown struct {
	Subtotal    decimal.Decimal
	Discount    decimal.Decimal
	Tax         decimal.Decimal
	DeliveryFee decimal.Decimal
	Tip         decimal.Decimal
	Final       decimal.Decimal
}

func round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

func Subtotal(lines []models.OrderLine) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.LineTotal())
	}
	return round2(sum)
}

// CouponDiscount applies the coupon to subtotal. Only the minimum purchase is
// checked; validity dates and usage are settled when the order is confirmed.
func CouponDiscount(c *models.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	if c == nil || subtotal.LessThan(c.MinPurchase) {
		return decimal.Zero
	}
	var d decimal.Decimal
	switch c.DiscountType {
	case models.DiscountPercentage:
		d = subtotal.Mul(c.Value).Div(hundred)
		if c.MaxDiscount != nil && d.GreaterThan(*c.MaxDiscount) {
			d = *c.MaxDiscount
		}
	case models.DiscountFixed:
		d = c.Value
	default:
		return decimal.Zero
	}
	if d.GreaterThan(subtotal) {
		d = subtotal
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return round2(d)
}

func ComputeBreakdown(lines []models.OrderLine, coupon *models.Coupon, taxRate, deliveryFee, tip decimal.Decimal) Breakdown {
	b := Breakdown{
		Subtotal:    Subtotal(lines),
		DeliveryFee: round2(deliveryFee),
		Tip:         round2(tip),
	}
	b.Discount = CouponDiscount(coupon, b.Subtotal)
	b.Tax = round2(b.Subtotal.Sub(b.Discount).Mul(taxRate))
	b.Final = b.Subtotal.Sub(b.Discount).Add(b.Tax).Add(b.DeliveryFee).Add(b.Tip)
	return b
}

// RefundDelta is what the customer gets back when the total drops from prev to next,
// bounded by what is still refundable on the payment.
func RefundDelta(prev, next, refundable decimal.Decimal) decimal.Decimal {
	d := prev.Sub(next)
	if d.IsNegative() {
		return decimal.Zero
	}
	if refundable.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(refundable) {
		return refundable
	}
	return d
}
